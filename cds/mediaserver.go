package cds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/anacrolix/log"
	"golang.org/x/net/html/charset"

	"github.com/anacrolix/cdsbrowse/metrics"
	"github.com/anacrolix/cdsbrowse/upnp"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

const (
	MediaServerDeviceType = "urn:schemas-upnp-org:device:MediaServer:"
	ContentDirectory      = "ContentDirectory"

	DefaultPageSize = 50

	maxDescriptionSize = 1 << 20
)

// A ContentDirectory service reached through a device description.
type MediaServer struct {
	Client
	// Objects requested per Browse call.
	PageSize int

	location *url.URL
	device   upnp.Device
	udn      string
	scpd     *upnp.SCPD
	logger   log.Logger
}

func getXML(ctx context.Context, c *http.Client, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	d := xml.NewDecoder(io.LimitReader(resp.Body, maxDescriptionSize))
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := base.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Fetches the device description at location and the ContentDirectory
// SCPD. A server without a fetchable SCPD can still be browsed, but doesn't
// offer DestroyObject.
func NewMediaServer(ctx context.Context, httpClient *http.Client, location string) (ret *MediaServer, err error) {
	defer func() {
		metrics.DescriptionFetches.WithLabelValues(metrics.Status(err)).Inc()
	}()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	loc, err := url.Parse(location)
	if err != nil {
		return
	}
	var desc upnp.DeviceDesc
	if err = getXML(ctx, httpClient, location, &desc); err != nil {
		err = fmt.Errorf("fetching device description: %w", err)
		return
	}
	dev := desc.Device.FindDevice(MediaServerDeviceType)
	if dev == nil {
		err = fmt.Errorf("%s describes no media server", location)
		return
	}
	svc := dev.FindService(ContentDirectory)
	if svc == nil {
		err = fmt.Errorf("%s has no %s service", dev.FriendlyName, ContentDirectory)
		return
	}
	base := loc
	if desc.URLBase != "" {
		if base, err = url.Parse(desc.URLBase); err != nil {
			err = fmt.Errorf("bad URLBase: %w", err)
			return
		}
	}
	ret = &MediaServer{
		Client: Client{
			HTTPClient:  httpClient,
			ServiceType: svc.ServiceType,
		},
		PageSize: DefaultPageSize,
		location: loc,
		device:   *dev,
		udn:      upnp.ParseUDN(dev.UDN),
	}
	ret.logger = log.Default.WithNames("cds", ret.udn)
	if ret.ControlURL, err = resolve(base, svc.ControlURL); err != nil {
		return nil, err
	}
	scpdURL, err := resolve(base, svc.SCPDURL)
	if err != nil {
		return nil, err
	}
	var scpd upnp.SCPD
	if err := getXML(ctx, httpClient, scpdURL, &scpd); err != nil {
		ret.logger.Levelf(log.Warning, "fetching SCPD: %v", err)
	} else {
		ret.scpd = &scpd
	}
	return ret, nil
}

func (me *MediaServer) UDN() string          { return me.udn }
func (me *MediaServer) FriendlyName() string { return me.device.FriendlyName }
func (me *MediaServer) Location() string     { return me.location.String() }
func (me *MediaServer) Device() upnp.Device  { return me.device }

func (me *MediaServer) HasDestroyObject() bool {
	return me.scpd != nil && me.scpd.HasAction("DestroyObject")
}

// Pages through the children of objectID, handing each to fn in the order
// the server lists them. Objects that don't parse are logged and skipped.
func (me *MediaServer) Browse(ctx context.Context, objectID string, fn func(upnpav.Object)) error {
	pageSize := me.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	skip := func(err error) {
		metrics.ObjectsMalformed.Inc()
		me.logger.Levelf(log.Warning, "skipping object in %q: %v", objectID, err)
	}
	var start uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := me.Client.Browse(ctx, BrowseArgs{
			ObjectID:       objectID,
			BrowseFlag:     BrowseDirectChildren,
			StartingIndex:  start,
			RequestedCount: uint(pageSize),
		})
		if err != nil {
			return err
		}
		objs, err := upnpav.ParseObjects(me.udn, res.Result, skip)
		if err != nil {
			return err
		}
		for _, o := range objs {
			metrics.ObjectsReceived.Inc()
			fn(o)
		}
		if res.NumberReturned == 0 {
			return nil
		}
		start += res.NumberReturned
		if res.TotalMatches != 0 && start >= res.TotalMatches {
			return nil
		}
	}
}

// The object itself rather than its children.
func (me *MediaServer) Metadata(ctx context.Context, objectID string) (upnpav.Object, error) {
	res, err := me.Client.Browse(ctx, BrowseArgs{
		ObjectID:   objectID,
		BrowseFlag: BrowseMetadata,
	})
	if err != nil {
		return nil, err
	}
	objs, err := upnpav.ParseObjects(me.udn, res.Result, nil)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: no object in metadata for %q", upnpav.ErrMalformed, objectID)
	}
	return objs[0], nil
}
