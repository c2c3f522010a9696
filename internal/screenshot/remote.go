package screenshot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Remote captures pages through a hosted screenshot API that takes the target
// as query parameters and answers with the image bytes.
type Remote struct {
	client *resty.Client
	apiURL string
	apiKey string
}

func NewRemote(apiURL, apiKey string, timeout time.Duration) *Remote {
	return &Remote{
		client: resty.New().SetTimeout(timeout),
		apiURL: apiURL,
		apiKey: apiKey,
	}
}

var _ Capturer = (*Remote)(nil)

func (r *Remote) Capture(ctx context.Context, target string, fullPage bool) (*Image, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"access_key":           r.apiKey,
			"url":                  target,
			"viewport_width":       strconv.Itoa(ViewportWidth),
			"viewport_height":      strconv.Itoa(ViewportHeight),
			"full_page":            strconv.FormatBool(fullPage),
			"format":               "jpg",
			"image_quality":        strconv.Itoa(JPEGQuality),
			"block_cookie_banners": "true",
		}).
		Get(r.apiURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: provider returned %d", ErrCaptureFailed, resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrCaptureFailed)
	}
	mime := http.DetectContentType(body)
	if mime != "image/jpeg" && mime != "image/png" {
		return nil, fmt.Errorf("%w: unexpected content %s", ErrCaptureFailed, mime)
	}
	return &Image{Data: body, MimeType: mime}, nil
}
