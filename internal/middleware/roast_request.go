package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/screenshot"
)

const ctxRoastRequestKey contextKey = "roast_request"

// MaxRoastBody bounds POST /api/roast bodies; extension clients may inline a
// full-page screenshot.
const MaxRoastBody = 8 << 20

// RoastRequest is the parsed roast body, stored in context so the handler
// can read it without re-parsing.
type RoastRequest struct {
	URL          string `json:"url" validate:"required"`
	AnalysisType string `json:"analysisType" validate:"omitempty,oneof=hero full-page"`
	Screenshot   string `json:"screenshot,omitempty"`
}

var validate = validator.New()

// RoastRequestFromCtx returns the request parsed by RoastRequestCheck, or nil.
func RoastRequestFromCtx(ctx context.Context) *RoastRequest {
	req, _ := ctx.Value(ctxRoastRequestKey).(*RoastRequest)
	return req
}

// RoastRequestCheck rejects malformed roast requests before any credits are
// touched: it requires an identity from Authenticate, a URL that normalizes
// to http(s), and a known analysis type. The body is restored for downstream
// handlers and URL is replaced by its normalized form.
func RoastRequestCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromCtx(r.Context()); !ok {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRoastBody))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek RoastRequest
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if err := validate.Struct(&peek); err != nil {
				var verrs validator.ValidationErrors
				if errors.As(err, &verrs) && verrs[0].Field() == "URL" {
					http.Error(w, `{"error":"URL is required"}`, http.StatusBadRequest)
					return
				}
				http.Error(w, `{"error":"analysisType must be \"hero\" or \"full-page\""}`, http.StatusBadRequest)
				return
			}
			normalized, err := screenshot.NormalizeURL(peek.URL)
			if err != nil {
				http.Error(w, `{"error":"Invalid URL"}`, http.StatusBadRequest)
				return
			}
			peek.URL = normalized
			if peek.AnalysisType == "" {
				peek.AnalysisType = models.AnalysisHero
			}

			ctx := context.WithValue(r.Context(), ctxRoastRequestKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
