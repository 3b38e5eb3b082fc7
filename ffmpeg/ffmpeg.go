// Package ffmpeg probes media resources with ffprobe.
package ffmpeg

import (
	"errors"
	"fmt"
	"time"

	"github.com/anacrolix/ffprobe"
	"github.com/anacrolix/log"

	"github.com/anacrolix/cdsbrowse/cache"
	"github.com/anacrolix/cdsbrowse/dlna"
)

// What ffprobe reports about a resource, reduced to what a res element
// carries.
type Result struct {
	Duration   time.Duration `json:"duration"`
	Bitrate    uint          `json:"bitrate"`
	Resolution string        `json:"resolution,omitempty"`
	FormatName string        `json:"format_name,omitempty"`
	Streams    int           `json:"streams"`
}

// The duration as it appears in a res@duration attribute.
func (me Result) NPTDuration() string {
	if me.Duration <= 0 {
		return ""
	}
	return dlna.FormatNPTTime(me.Duration)
}

// returns res attributes for the raw stream
func resultFromInfo(info *ffprobe.Info) (ret Result) {
	if info == nil {
		return
	}
	ret.Bitrate, _ = info.Bitrate()
	ret.Duration, _ = info.Duration()
	if name, ok := info.Format["format_name"].(string); ok {
		ret.FormatName = name
	}
	ret.Streams = len(info.Streams)
	for _, strm := range info.Streams {
		if strm["codec_type"] != "video" {
			continue
		}
		width := strm["width"]
		height := strm["height"]
		if width != nil && height != nil {
			ret.Resolution = fmt.Sprintf("%vx%v", width, height)
			break
		}
	}
	return
}

var probeCache = cache.New[string, Result, struct{}]()

// Probes url, which may be a local path or anything ffprobe can open, such
// as a res element's http URL. Successful results are cached by url.
func Probe(url string) (Result, error) {
	return probeCache.Get(url, struct{}{}, func() (Result, struct{}, error) {
		info, err := ffprobe.Run(url)
		if err != nil {
			log.Default.WithNames("ffmpeg").Levelf(log.Debug, "probing %s: %v", url, err)
			return Result{}, struct{}{}, fmt.Errorf("probing %s: %w", url, err)
		}
		return resultFromInfo(info), struct{}{}, nil
	})
}

var ErrNoResource = errors.New("object has no resource")
