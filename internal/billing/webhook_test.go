package billing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/execution"
	"github.com/roastmyui/backend/internal/ledger/ledgertest"
	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/repository"
)

const (
	testSecret  = "polar_whs_test_secret"
	pack15      = "471aae7a-10a5-4d4a-9b4c-3f5cab2210e7"
	unknownPack = "00000000-0000-0000-0000-000000000000"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type fakeUsers struct {
	byExt   map[string]*models.User
	byEmail map[string]*models.User
}

func (f *fakeUsers) GetByExternalID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.byExt[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

// inlineQueue runs the grant worker synchronously and dedupes by order id
// the way river's unique jobs do.
type inlineQueue struct {
	worker *execution.GrantCreditsWorker
	seen   map[string]bool
	jobs   []execution.GrantCreditsArgs
}

func (q *inlineQueue) EnqueueGrant(ctx context.Context, args execution.GrantCreditsArgs) (bool, error) {
	if q.seen[args.OrderID] {
		return true, nil
	}
	q.seen[args.OrderID] = true
	q.jobs = append(q.jobs, args)
	return false, q.worker.Work(ctx, &river.Job[execution.GrantCreditsArgs]{JobRow: &rivertype.JobRow{ID: int64(len(q.jobs))}, Args: args})
}

type webhookCounter struct{ results map[string]int }

func (c *webhookCounter) WebhookEvent(_, result string) { c.results[result]++ }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type webhookFixture struct {
	handler *WebhookHandler
	ledger  *ledgertest.Memory
	queue   *inlineQueue
	counter *webhookCounter
	bob     *models.User
	signer  *svix.Webhook
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	mem := ledgertest.NewMemory(3)
	bob := mem.Seed(models.Identity{ExternalID: "user_bob", Email: "bob@example.com"}, 3)
	users := &fakeUsers{
		byExt:   map[string]*models.User{"user_bob": bob},
		byEmail: map[string]*models.User{"bob@example.com": bob},
	}
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := svix.NewWebhook(base64.StdEncoding.EncodeToString([]byte(testSecret)))
	if err != nil {
		t.Fatal(err)
	}
	q := &inlineQueue{worker: execution.NewGrantCreditsWorker(mem, nil, nil), seen: map[string]bool{}}
	counter := &webhookCounter{results: map[string]int{}}
	return &webhookFixture{
		handler: NewWebhookHandler(v, config.DefaultCatalog(), users, mem, q, counter, nil),
		ledger:  mem,
		queue:   q,
		counter: counter,
		bob:     bob,
		signer:  signer,
	}
}

func (f *webhookFixture) deliver(t *testing.T, msgID, payload string) *httptest.ResponseRecorder {
	t.Helper()
	now := time.Now()
	sig, err := f.signer.Sign(msgID, now, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/polar", strings.NewReader(payload))
	req.Header.Set("webhook-id", msgID)
	req.Header.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("webhook-signature", sig)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func orderEvent(t *testing.T, order map[string]any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": EventOrderCreated, "data": order})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWebhook_OrderByMetadataUserID(t *testing.T) {
	f := newWebhookFixture(t)
	payload := orderEvent(t, map[string]any{
		"id":         "ord_1",
		"product_id": pack15,
		"metadata":   map[string]any{"userId": "user_bob"},
	})

	rec := f.deliver(t, "msg_1", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.ledger.User("user_bob").Credits; got != 18 {
		t.Errorf("expected 3+15=18, got %d", got)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].EventID != "msg_1" {
		t.Errorf("expected one queued grant carrying the event id, got %+v", f.queue.jobs)
	}
}

func TestWebhook_ReplayGrantsOnce(t *testing.T) {
	f := newWebhookFixture(t)
	payload := orderEvent(t, map[string]any{
		"id":       "ord_2",
		"product":  map[string]any{"id": pack15},
		"customer": map[string]any{"metadata": map[string]any{"userId": "user_bob"}},
	})

	for range 3 {
		if rec := f.deliver(t, "msg_2", payload); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if got := f.ledger.User("user_bob").Credits; got != 18 {
		t.Errorf("expected a single grant (18), got %d", got)
	}
	if f.counter.results[ResultDuplicate] != 2 {
		t.Errorf("expected 2 duplicate deliveries, got %v", f.counter.results)
	}
}

func TestWebhook_EmailFallback(t *testing.T) {
	f := newWebhookFixture(t)
	payload := orderEvent(t, map[string]any{
		"id":         "ord_3",
		"product_id": pack15,
		"metadata":   map[string]any{"userId": "user_missing"},
		"customer":   map[string]any{"email": "bob@example.com"},
	})

	if rec := f.deliver(t, "msg_3", payload); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.ledger.User("user_bob").Credits; got != 18 {
		t.Errorf("expected 18, got %d", got)
	}
}

func TestWebhook_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		order   map[string]any
		code    int
		message string
	}{
		{"no product", map[string]any{"id": "ord_a", "email": "bob@example.com"}, http.StatusOK, "No product info"},
		{"unknown product", map[string]any{"id": "ord_b", "product_id": unknownPack, "email": "bob@example.com"}, http.StatusOK, "Unknown product"},
		{"unknown email", map[string]any{"id": "ord_c", "product_id": pack15, "email": "who@example.com"}, http.StatusNotFound, "User not found for email: who@example.com"},
		{"no identifier", map[string]any{"id": "ord_d", "product_id": pack15}, http.StatusBadRequest, "No user identifier found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			rec := f.deliver(t, "msg_"+tc.name, orderEvent(t, tc.order))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.message) {
				t.Errorf("expected %q in body, got %s", tc.message, rec.Body.String())
			}
			if got := f.ledger.User("user_bob").Credits; got != 3 {
				t.Errorf("expected balance unchanged at 3, got %d", got)
			}
		})
	}
}

func TestWebhook_InvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)
	payload := orderEvent(t, map[string]any{"id": "ord_x", "product_id": pack15, "metadata": map[string]any{"userId": "user_bob"}})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/polar", strings.NewReader(payload))
	req.Header.Set("webhook-id", "msg_x")
	req.Header.Set("webhook-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("webhook-signature", "v1,"+base64.StdEncoding.EncodeToString([]byte("forged")))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Invalid signature") {
		t.Fatalf("expected 400 Invalid signature, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := f.ledger.User("user_bob").Credits; got != 3 {
		t.Errorf("expected no grant, got balance %d", got)
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	f := newWebhookFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/polar", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhook_CheckoutCreatedAck(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.deliver(t, "msg_c", `{"type":"checkout.created","data":{"id":"co_1"}}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("expected ack, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.queue.jobs) != 0 {
		t.Error("checkout.created must not grant")
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
