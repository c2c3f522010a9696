package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/ledger/ledgertest"
	"github.com/roastmyui/backend/internal/middleware"
	"github.com/roastmyui/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type fakeProvider struct {
	orders  []Order
	err     error
	lastReq CheckoutRequest
}

func (p *fakeProvider) CreateCheckout(_ context.Context, req CheckoutRequest) (string, error) {
	p.lastReq = req
	if p.err != nil {
		return "", p.err
	}
	return "https://polar.sh/checkout/co_123", nil
}

func (p *fakeProvider) ListOrders(context.Context, string) ([]Order, error) {
	return p.orders, p.err
}

var carol = models.Identity{ExternalID: "user_carol", Email: "carol@example.com"}

func authed(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), carol))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCheckout_Create(t *testing.T) {
	p := &fakeProvider{}
	h := NewCheckoutHandler(p, config.DefaultCatalog(), ledgertest.NewMemory(3), "http://localhost:3000/?payment=success", nil, nil)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"plan":"40_CREDITS"}`)))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["url"] != "https://polar.sh/checkout/co_123" {
		t.Errorf("unexpected url %q", body["url"])
	}
	if p.lastReq.ProductID != "157b126c-4ff9-4c7c-aced-5331a7834cd5" || p.lastReq.UserID != carol.ExternalID || p.lastReq.CustomerEmail != carol.Email {
		t.Errorf("unexpected checkout request %+v", p.lastReq)
	}
}

func TestCheckout_CreateErrors(t *testing.T) {
	h := NewCheckoutHandler(&fakeProvider{}, config.DefaultCatalog(), ledgertest.NewMemory(3), "", nil, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"plan":"1000_CREDITS"}`))))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown plan: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"plan":"15_CREDITS"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", rec.Code)
	}

	failing := NewCheckoutHandler(&fakeProvider{err: ErrPolar}, config.DefaultCatalog(), ledgertest.NewMemory(3), "", nil, nil)
	rec = httptest.NewRecorder()
	failing.Create(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"plan":"15_CREDITS"}`))))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("provider failure: expected 502, got %d", rec.Code)
	}
}

func TestCheckout_VerifyIsIdempotent(t *testing.T) {
	p := &fakeProvider{orders: []Order{
		{ID: "ord_paid", Status: "paid", ProductID: "471aae7a-10a5-4d4a-9b4c-3f5cab2210e7", Metadata: map[string]any{"userId": "user_carol"}},
		{ID: "ord_pending", Status: "pending", ProductID: "471aae7a-10a5-4d4a-9b4c-3f5cab2210e7", Metadata: map[string]any{"userId": "user_carol"}},
		{ID: "ord_other", Paid: true, ProductID: "not-in-catalog", Metadata: map[string]any{"userId": "user_carol"}},
	}}
	mem := ledgertest.NewMemory(3)
	h := NewCheckoutHandler(p, config.DefaultCatalog(), mem, "", nil, nil)

	verify := func() verifyResponse {
		t.Helper()
		rec := httptest.NewRecorder()
		h.Verify(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/verify", nil)))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var out verifyResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	first := verify()
	if first.CreditsAdded != 15 || first.NewBalance != 18 {
		t.Errorf("first verify: expected +15 -> 18, got %+v", first)
	}
	second := verify()
	if second.CreditsAdded != 0 || second.NewBalance != 18 {
		t.Errorf("second verify: expected +0 -> 18, got %+v", second)
	}
}

func TestCheckout_VerifySkipsOtherUsersOrders(t *testing.T) {
	p := &fakeProvider{orders: []Order{
		{ID: "ord_mallory", Paid: true, ProductID: "157b126c-4ff9-4c7c-aced-5331a7834cd5", Metadata: map[string]any{"userId": "user_mallory"}},
		{ID: "ord_mallory_cust", Paid: true, ProductID: "157b126c-4ff9-4c7c-aced-5331a7834cd5",
			Customer: &orderCustomer{Email: "carol@example.com", Metadata: map[string]any{"userId": "user_mallory"}}},
		{ID: "ord_anon", Paid: true, ProductID: "157b126c-4ff9-4c7c-aced-5331a7834cd5", Email: "mallory@example.com"},
		{ID: "ord_carol_email", Paid: true, ProductID: "471aae7a-10a5-4d4a-9b4c-3f5cab2210e7", Email: "Carol@Example.com"},
	}}
	mem := ledgertest.NewMemory(3)
	h := NewCheckoutHandler(p, config.DefaultCatalog(), mem, "", nil, nil)

	rec := httptest.NewRecorder()
	h.Verify(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/verify", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out verifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.CreditsAdded != 15 || out.NewBalance != 18 {
		t.Errorf("expected only carol's email-matched order (+15 -> 18), got %+v", out)
	}
	for _, orderID := range []string{"ord_mallory", "ord_mallory_cust", "ord_anon"} {
		if has, _ := mem.HasOrder(context.Background(), orderID); has {
			t.Errorf("order %s should not have been granted", orderID)
		}
	}
}

func TestCheckout_VerifyProviderDown(t *testing.T) {
	h := NewCheckoutHandler(&fakeProvider{err: errors.New("timeout")}, config.DefaultCatalog(), ledgertest.NewMemory(3), "", nil, nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/verify", nil)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Polar client
// ---------------------------------------------------------------------------

func TestPolar_CreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkouts/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		var body checkoutBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		if len(body.Products) != 1 || body.Products[0] != "prod_1" || body.Metadata["userId"] != "user_carol" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"co_1","url":"https://polar.sh/checkout/co_1"}`))
	}))
	defer srv.Close()

	p := NewPolar(srv.URL, "tok", 5*time.Second)
	url, err := p.CreateCheckout(context.Background(), CheckoutRequest{ProductID: "prod_1", UserID: "user_carol"})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if url != "https://polar.sh/checkout/co_1" {
		t.Errorf("unexpected url %q", url)
	}
}

func TestPolar_ListOrdersPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("metadata[userId]") != "user_carol" {
			t.Errorf("expected metadata filter, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"items":[{"id":"ord_1","status":"paid","product_id":"p"}],"pagination":{"max_page":2}}`))
		default:
			_, _ = w.Write([]byte(`{"items":[{"id":"ord_2","paid":true,"product":{"id":"p"}}],"pagination":{"max_page":2}}`))
		}
	}))
	defer srv.Close()

	orders, err := NewPolar(srv.URL, "tok", 5*time.Second).ListOrders(context.Background(), "user_carol")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 2 || orders[1].ProductRef() != "p" || !orders[1].IsPaid() {
		t.Errorf("unexpected orders %+v", orders)
	}
}

func TestPolar_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewPolar(srv.URL, "bad", 5*time.Second).ListOrders(context.Background(), "u")
	if !errors.Is(err, ErrPolar) {
		t.Fatalf("expected ErrPolar, got %v", err)
	}
}
