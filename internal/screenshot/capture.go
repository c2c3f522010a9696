package screenshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCaptureFailed wraps every failure to produce an image for a page.
var ErrCaptureFailed = errors.New("screenshot capture failed")

// Capture parameters shared by all capturers.
const (
	ViewportWidth  = 1280
	ViewportHeight = 800
	JPEGQuality    = 80
)

// Image is an encoded screenshot.
type Image struct {
	Data     []byte
	MimeType string
}

// DataURL renders the image as a data: URL suitable for inline display.
func (i *Image) DataURL() string {
	return "data:" + i.MimeType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Capturer renders a page and returns an image of it. fullPage extends the
// capture past the 1280x800 viewport to the whole scrollable height.
type Capturer interface {
	Capture(ctx context.Context, url string, fullPage bool) (*Image, error)
}

// DecodeDataURL parses a base64 data URL produced by a client (for example
// the browser extension capturing the visible tab).
func DecodeDataURL(s string) (*Image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data url", ErrCaptureFailed)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data url is not base64", ErrCaptureFailed)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	mime := http.DetectContentType(data)
	if mime != "image/jpeg" && mime != "image/png" {
		return nil, fmt.Errorf("%w: unsupported image type %s", ErrCaptureFailed, mime)
	}
	return &Image{Data: data, MimeType: mime}, nil
}
