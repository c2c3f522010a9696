package middleware

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit limits requests per client IP. rate uses the limiter format,
// e.g. "10-M" for ten requests per minute.
func RateLimit(rate string, trustForwardHeader bool) (func(http.Handler) http.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	lim := limiter.New(memory.NewStore(), r, limiter.WithTrustForwardHeader(trustForwardHeader))
	mw := mhttp.NewMiddleware(lim, mhttp.WithLimitReachedHandler(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"Too many requests, slow down"}`, http.StatusTooManyRequests)
	}))
	return mw.Handler, nil
}
