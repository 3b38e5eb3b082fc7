// Package web serves a JSON API over the servers of a Registry.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anacrolix/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anacrolix/cdsbrowse/artwork"
	"github.com/anacrolix/cdsbrowse/dlna"
	"github.com/anacrolix/cdsbrowse/explorer"
	"github.com/anacrolix/cdsbrowse/ffmpeg"
	"github.com/anacrolix/cdsbrowse/metrics"
	"github.com/anacrolix/cdsbrowse/upnp"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

type Handler struct {
	Registry *explorer.Registry
	// Fetches artwork.
	HTTPClient    *http.Client
	ThumbnailSize uint
	// Defaults to ffmpeg.Probe.
	Probe func(url string) (ffmpeg.Result, error)

	logger log.Logger
}

func New(r *explorer.Registry, httpClient *http.Client) *Handler {
	return &Handler{
		Registry:      r,
		HTTPClient:    httpClient,
		ThumbnailSize: artwork.DefaultSize,
		Probe:         ffmpeg.Probe,
		logger:        log.Default.WithNames("web"),
	}
}

func (me *Handler) Router() *gin.Engine {
	router := gin.Default()
	// Object IDs may contain escaped slashes.
	router.UseRawPath = true
	router.Use(recordMetrics)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/servers", me.servers)
	srv := router.Group("/servers/:udn", me.server)
	srv.GET("/entries", me.entries)
	srv.GET("/playlist", me.playlist)
	srv.DELETE("/entries/:id", me.entry, me.delete)
	srv.GET("/entries/:id/thumbnail", me.entry, me.thumbnail)
	srv.GET("/entries/:id/probe", me.entry, me.probe)
	return router
}

func recordMetrics(c *gin.Context) {
	path := c.FullPath()
	if path == "/metrics" {
		c.Next()
		return
	}
	if path == "" {
		path = "unmatched"
	}
	started := time.Now()
	c.Next()
	status := strconv.Itoa(c.Writer.Status())
	metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(started).Seconds())
}

type serverJSON struct {
	UDN       string `json:"udn"`
	Name      string `json:"name"`
	Deletable bool   `json:"deletable"`
}

type resourceJSON struct {
	URL          string `json:"url"`
	ProtocolInfo string `json:"protocol_info,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
	Size         int    `json:"size,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	// video, audio or image, empty for other MIME types.
	Media     string `json:"media,omitempty"`
	Protected bool   `json:"protected,omitempty"`
}

func resourceMedia(mt dlna.MimeType) string {
	switch {
	case !mt.IsMedia():
		return ""
	case mt.IsVideo():
		return "video"
	case mt.IsAudio():
		return "audio"
	}
	return mt.Type()
}

type entryJSON struct {
	ID         string         `json:"id"`
	ParentID   string         `json:"parent_id"`
	Title      string         `json:"title"`
	Class      string         `json:"class"`
	Type       string         `json:"type"`
	Container  bool           `json:"container"`
	ChildCount int            `json:"child_count,omitempty"`
	Date       string         `json:"date,omitempty"`
	Artist     string         `json:"artist,omitempty"`
	Album      string         `json:"album,omitempty"`
	Deletable  bool           `json:"deletable"`
	Resources  []resourceJSON `json:"resources,omitempty"`
}

func makeEntryJSON(e *explorer.Entry) (ret entryJSON) {
	o := e.Object()
	ret = entryJSON{
		ID:         o.ObjectID(),
		ParentID:   o.ParentID(),
		Title:      o.Title(),
		Class:      o.UpnpClass(),
		Type:       o.Type().String(),
		Container:  o.IsContainer(),
		ChildCount: o.IntValue(upnpav.ChildCount, 0),
		Deletable:  e.IsDeletable(),
	}
	ret.Date, _ = o.Value(upnpav.DCDate)
	ret.Artist, _ = o.Value(upnpav.UPnPArtist)
	ret.Album, _ = o.Value(upnpav.UPnPAlbum)
	for i := range o.ResourceCount() {
		var r resourceJSON
		r.URL, _ = o.ValueAt(upnpav.Res, i)
		r.URL = strings.TrimSpace(r.URL)
		r.ProtocolInfo, _ = o.ValueAt(upnpav.ResProtocolInfo, i)
		r.Duration, _ = o.ValueAt(upnpav.ResDuration, i)
		r.Resolution, _ = o.ValueAt(upnpav.ResResolution, i)
		r.Size = o.IntValueAt(upnpav.ResSize, i, 0)
		if mt, ok := upnpav.ExtractMimeTypeFromProtocolInfo(r.ProtocolInfo); ok {
			r.MimeType = dlna.MimeType(mt).String()
			r.Media = resourceMedia(dlna.MimeType(mt))
			r.Protected = mt == upnpav.DTCPMimeType
		}
		ret.Resources = append(ret.Resources, r)
	}
	return
}

func entriesJSON(entries []*explorer.Entry) []entryJSON {
	ret := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, makeEntryJSON(e))
	}
	return ret
}

func abortError(c *gin.Context, code int, err error) {
	h := gin.H{"message": err.Error()}
	var upnpErr *upnp.Error
	if errors.As(err, &upnpErr) {
		h["upnp_error"] = upnpErr.Code
	}
	c.AbortWithStatusJSON(code, h)
}

func (me *Handler) servers(c *gin.Context) {
	ret := []serverJSON{}
	for _, s := range me.Registry.Servers() {
		ret = append(ret, serverJSON{
			UDN:       s.UDN(),
			Name:      s.Name(),
			Deletable: s.HasDeleteFunction(),
		})
	}
	c.JSON(200, ret)
}

// Resolves :udn for the handlers that follow.
func (me *Handler) server(c *gin.Context) {
	s, ok := me.Registry.Get(c.Param("udn"))
	if !ok {
		c.AbortWithStatusJSON(404, gin.H{"message": "no such server"})
		return
	}
	c.Set("server", s)
}

// Resolves :id among the entries already read from the server.
func (me *Handler) entry(c *gin.Context) {
	me.lookup(c, c.Param("id"))
}

func (me *Handler) lookup(c *gin.Context, id string) (*explorer.Entry, bool) {
	s := c.MustGet("server").(*explorer.Server)
	e, ok := s.Find(id)
	if !ok {
		c.AbortWithStatusJSON(404, gin.H{"message": "no such entry, read its parent first"})
		return nil, false
	}
	c.Set("entry", e)
	return e, true
}

func (me *Handler) container(c *gin.Context) (*explorer.Entry, bool) {
	e, ok := me.lookup(c, c.Query("id"))
	if !ok {
		return nil, false
	}
	if !e.IsContainer() {
		c.AbortWithStatusJSON(400, gin.H{"message": "not a container"})
		return nil, false
	}
	return e, true
}

func (me *Handler) entries(c *gin.Context) {
	e, ok := me.container(c)
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	entries, err := e.ReadEntries(refresh).Collect(c.Request.Context())
	if err != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		c.AbortWithStatusJSON(502, gin.H{
			"message": err.Error(),
			"entries": entriesJSON(entries),
		})
		return
	}
	c.JSON(200, entriesJSON(entries))
}

func (me *Handler) playlist(c *gin.Context) {
	t, err := upnpav.ParseContentType(c.Query("type"))
	if err != nil {
		abortError(c, 400, err)
		return
	}
	e, ok := me.container(c)
	if !ok {
		return
	}
	entries, err := e.CreatePlayList(t).Collect(c.Request.Context())
	if err != nil {
		abortError(c, 502, err)
		return
	}
	c.JSON(200, entriesJSON(entries))
}

func (me *Handler) delete(c *gin.Context) {
	e := c.MustGet("entry").(*explorer.Entry)
	if !e.IsDeletable() {
		abortError(c, 403, explorer.ErrNotDeletable)
		return
	}
	ctx := c.Request.Context()
	fut := e.Delete(ctx)
	select {
	case <-fut.Done():
	case <-ctx.Done():
		return
	}
	if err := fut.Result(); err != nil {
		me.logger.Levelf(log.Warning, "deleting %q from %v: %v", e.Object().ObjectID(), e.Server(), err)
		abortError(c, 502, err)
		return
	}
	e.Parent().ReadEntries(true)
	c.JSON(200, gin.H{"message": "The element was removed"})
}

func (me *Handler) thumbnail(c *gin.Context) {
	e := c.MustGet("entry").(*explorer.Entry)
	u, ok := artwork.URL(e.Object())
	if !ok {
		abortError(c, 404, artwork.ErrNoArtwork)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
	defer cancel()
	b, err := artwork.Thumbnail(ctx, me.HTTPClient, u, me.ThumbnailSize, me.ThumbnailSize)
	if err != nil {
		abortError(c, 502, err)
		return
	}
	c.Data(200, "image/jpeg", b)
}

func (me *Handler) probe(c *gin.Context) {
	e := c.MustGet("entry").(*explorer.Entry)
	u, ok := e.Object().Value(upnpav.Res)
	if !ok || strings.TrimSpace(u) == "" {
		abortError(c, 404, ffmpeg.ErrNoResource)
		return
	}
	res, err := me.Probe(strings.TrimSpace(u))
	if err != nil {
		abortError(c, 502, err)
		return
	}
	c.JSON(200, gin.H{
		"url":          strings.TrimSpace(u),
		"duration":     res.NPTDuration(),
		"bitrate":      res.Bitrate,
		"resolution":   res.Resolution,
		"format_name":  res.FormatName,
		"stream_count": res.Streams,
	})
}
