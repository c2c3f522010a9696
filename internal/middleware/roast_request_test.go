package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roastmyui/backend/internal/models"
)

// injectIdentity wraps a handler to pre-set the caller in context,
// simulating what Authenticate would do upstream.
func injectIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithIdentity(r.Context(), models.Identity{ExternalID: "user_1"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// captureRequest records what RoastRequestCheck stored in context.
type captureRequest struct {
	got *RoastRequest
}

func (c *captureRequest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.got = RoastRequestFromCtx(r.Context())
	w.WriteHeader(http.StatusOK)
}

func serveRoastCheck(t *testing.T, body string, withIdentity bool) (*httptest.ResponseRecorder, *captureRequest) {
	t.Helper()
	sink := &captureRequest{}
	var h http.Handler = RoastRequestCheck()(sink)
	if withIdentity {
		h = injectIdentity(h)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/roast", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, sink
}

// ---------------------------------------------------------------------------
// 1. Valid request -> 200, URL normalized, default analysis type
// ---------------------------------------------------------------------------

func TestRoastRequestCheck_Valid(t *testing.T) {
	rec, sink := serveRoastCheck(t, `{"url":"  example.com "}`, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sink.got == nil {
		t.Fatal("expected parsed request in context")
	}
	if sink.got.URL != "https://example.com" {
		t.Errorf("expected normalized url, got %q", sink.got.URL)
	}
	if sink.got.AnalysisType != models.AnalysisHero {
		t.Errorf("expected default hero, got %q", sink.got.AnalysisType)
	}
}

// ---------------------------------------------------------------------------
// 2. Invalid URL -> 400 before anything downstream runs
// ---------------------------------------------------------------------------

func TestRoastRequestCheck_InvalidURL(t *testing.T) {
	rec, sink := serveRoastCheck(t, `{"url":"not a url","analysisType":"hero"}`, true)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Invalid URL") {
		t.Errorf("expected invalid url message, got: %s", rec.Body.String())
	}
	if sink.got != nil {
		t.Error("downstream handler must not run")
	}
}

// ---------------------------------------------------------------------------
// 3. Missing URL / bad analysis type / bad JSON -> 400
// ---------------------------------------------------------------------------

func TestRoastRequestCheck_BadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing url", `{"analysisType":"hero"}`, "URL is required"},
		{"unknown analysis type", `{"url":"example.com","analysisType":"deep"}`, "analysisType"},
		{"invalid json", `{"url":`, "invalid JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := serveRoastCheck(t, tc.body, true)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("expected %q in body, got: %s", tc.want, rec.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// 4. No identity -> 401
// ---------------------------------------------------------------------------

func TestRoastRequestCheck_Unauthenticated(t *testing.T) {
	rec, _ := serveRoastCheck(t, `{"url":"example.com"}`, false)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRoastRequestFromCtx_Unset(t *testing.T) {
	if RoastRequestFromCtx(context.Background()) != nil {
		t.Error("expected nil without middleware")
	}
}
