package screenshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Browser captures pages with a local headless Chrome. Each capture gets its
// own browser process so a crashed renderer only fails one request.
type Browser struct {
	timeout   time.Duration
	settle    time.Duration
	allocOpts []chromedp.ExecAllocatorOption
	log       *slog.Logger
}

func NewBrowser(timeout time.Duration, userAgent string, log *slog.Logger) *Browser {
	if log == nil {
		log = slog.Default()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(ViewportWidth, ViewportHeight),
		chromedp.UserAgent(userAgent),
	)
	return &Browser{
		timeout:   timeout,
		settle:    750 * time.Millisecond,
		allocOpts: opts,
		log:       log,
	}
}

var _ Capturer = (*Browser)(nil)

func (b *Browser) Capture(ctx context.Context, target string, fullPage bool) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocOpts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var buf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(ViewportWidth, ViewportHeight),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.settle),
	}
	if fullPage {
		actions = append(actions, chromedp.FullScreenshot(&buf, JPEGQuality))
	} else {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(JPEGQuality).
				Do(ctx)
			return err
		}))
	}

	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrCaptureFailed)
	}
	b.log.Debug("screenshot captured", "url", target, "full_page", fullPage, "bytes", len(buf), "took", time.Since(start))
	return &Image{Data: buf, MimeType: "image/jpeg"}, nil
}
