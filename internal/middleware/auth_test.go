package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roastmyui/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubVerifier struct {
	id  models.Identity
	err error
	got string
}

func (s *stubVerifier) ValidateToken(_ context.Context, token string) (models.Identity, error) {
	s.got = token
	return s.id, s.err
}

// okHandler writes 200 and the caller's external id (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := IdentityFromCtx(r.Context()); ok {
		w.Write([]byte(id.ExternalID))
	}
})

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAuthenticate_ValidToken(t *testing.T) {
	v := &stubVerifier{id: models.Identity{ExternalID: "user_42", Email: "a@example.com"}}
	mw := Authenticate(v)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer session-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != "user_42" {
		t.Errorf("expected identity user_42 in body, got %q", body)
	}
	if v.got != "session-token" {
		t.Errorf("expected raw token passed to verifier, got %q", v.got)
	}
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	mw := Authenticate(&stubVerifier{})(okHandler)

	cases := []struct {
		name   string
		header string
	}{
		{"no header at all", ""},
		{"empty bearer", "Bearer "},
		{"wrong scheme", "Basic abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	mw := Authenticate(&stubVerifier{err: errors.New("expired")})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestIdentityFromCtx_Empty(t *testing.T) {
	if _, ok := IdentityFromCtx(context.Background()); ok {
		t.Error("expected no identity on bare context")
	}
	if _, ok := IdentityFromCtx(WithIdentity(context.Background(), models.Identity{})); ok {
		t.Error("expected blank identity to be rejected")
	}
}
