// Package artwork fetches album art and other images that media servers
// reference, and scales them down for display.
package artwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/nfnt/resize"

	"github.com/anacrolix/cdsbrowse/dlna"
	"github.com/anacrolix/cdsbrowse/upnpav"
)

const (
	DefaultSize = 160
	// Upper bound on a fetched image.
	maxImageSize = 32 << 20
)

var ErrNoArtwork = errors.New("object has no artwork")

// The object's album art URI, or failing that the URL of an image resource.
func URL(o upnpav.Object) (string, bool) {
	if u, ok := o.Value(upnpav.UPnPAlbumArtURI); ok && u != "" {
		return u, true
	}
	for i := range o.ResourceCount() {
		pi, _ := o.ValueAt(upnpav.ResProtocolInfo, i)
		mt, ok := upnpav.ExtractMimeTypeFromProtocolInfo(pi)
		if !ok || !dlna.MimeType(mt).IsImage() {
			continue
		}
		if u, ok := o.ValueAt(upnpav.Res, i); ok && u != "" {
			return strings.TrimSpace(u), true
		}
	}
	return "", false
}

func Fetch(ctx context.Context, c *http.Client, url string) (image.Image, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", url, err)
	}
	return img, nil
}

// Scales img to fit within width x height, keeping its aspect ratio. Images
// that already fit are returned as is.
func Fit(img image.Image, width, height uint) image.Image {
	b := img.Bounds()
	if uint(b.Dx()) <= width && uint(b.Dy()) <= height {
		return img
	}
	return resize.Thumbnail(width, height, img, resize.Lanczos3)
}

// Fetches the image at url and returns it scaled as a JPEG.
func Thumbnail(ctx context.Context, c *http.Client, url string, width, height uint) ([]byte, error) {
	img, err := Fetch(ctx, c, url)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(img, width, height), &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
