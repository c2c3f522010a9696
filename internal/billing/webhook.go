package billing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/execution"
	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/repository"
)

const maxWebhookBody = 1 << 20

// Webhook results reported to Recorder.WebhookEvent.
const (
	ResultAck           = "ack"
	ResultQueued        = "queued"
	ResultDuplicate     = "duplicate"
	ResultIgnored       = "ignored"
	ResultUserNotFound  = "user_not_found"
	ResultNoIdentifier  = "no_identifier"
	ResultBadSignature  = "bad_signature"
	ResultInternalError = "error"
)

// Verifier checks a Standard Webhooks signature over the raw body.
type Verifier interface {
	Verify(payload []byte, headers http.Header) error
}

// NewVerifier builds a Standard Webhooks verifier for a Polar secret. Polar
// signs with the raw secret bytes, so the secret is base64-encoded unless it
// already carries the whsec_ prefix.
func NewVerifier(secret string) (Verifier, error) {
	if secret == "" {
		return nil, errors.New("empty webhook secret")
	}
	if !strings.HasPrefix(secret, "whsec_") {
		secret = base64.StdEncoding.EncodeToString([]byte(secret))
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}
	return wh, nil
}

// UserLookup resolves the purchaser of an order.
type UserLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// OrderIndex reports whether an order was already credited.
type OrderIndex interface {
	HasOrder(ctx context.Context, orderID string) (bool, error)
}

// GrantQueue schedules the credit grant for a resolved order.
type GrantQueue interface {
	EnqueueGrant(ctx context.Context, args execution.GrantCreditsArgs) (duplicate bool, err error)
}

// WebhookRecorder counts webhook deliveries by type and result. It may be nil.
type WebhookRecorder interface {
	WebhookEvent(eventType, result string)
}

// WebhookHandler serves POST /api/webhooks/polar.
type WebhookHandler struct {
	verifier Verifier
	catalog  *config.Catalog
	users    UserLookup
	orders   OrderIndex
	queue    GrantQueue
	recorder WebhookRecorder
	log      *slog.Logger
}

func NewWebhookHandler(v Verifier, catalog *config.Catalog, users UserLookup, orders OrderIndex, queue GrantQueue, rec WebhookRecorder, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		verifier: v,
		catalog:  catalog,
		users:    users,
		orders:   orders,
		queue:    queue,
		recorder: rec,
		log:      log,
	}
}

// --- POST /api/webhooks/polar ---

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || r.Header.Get("webhook-signature") == "" {
		http.Error(w, `{"error":"Missing signature or secret"}`, http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return
	}
	if err := h.verifier.Verify(body, r.Header); err != nil {
		h.log.Warn("webhook verification failed", "error", err)
		h.record("unknown", ResultBadSignature)
		http.Error(w, `{"error":"Invalid signature"}`, http.StatusBadRequest)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	h.log.Info("received polar webhook", "type", ev.Type)

	switch ev.Type {
	case EventCheckoutCreated:
		h.record(ev.Type, ResultAck)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case EventOrderCreated:
		h.handleOrder(r.Context(), w, ev, r.Header.Get("webhook-id"))
	default:
		h.record(ev.Type, ResultIgnored)
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

func (h *WebhookHandler) handleOrder(ctx context.Context, w http.ResponseWriter, ev Event, eventID string) {
	var order Order
	if err := json.Unmarshal(ev.Data, &order); err != nil || order.ID == "" {
		http.Error(w, `{"error":"invalid order payload"}`, http.StatusBadRequest)
		return
	}
	log := h.log.With("order_id", order.ID)

	seen, err := h.orders.HasOrder(ctx, order.ID)
	if err != nil {
		log.Error("order idempotency check failed", "error", err)
		h.record(ev.Type, ResultInternalError)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if seen {
		log.Info("order already processed")
		h.record(ev.Type, ResultDuplicate)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Event already processed"})
		return
	}

	productID := order.ProductRef()
	if productID == "" {
		log.Error("order missing product info")
		h.record(ev.Type, ResultIgnored)
		writeJSON(w, http.StatusOK, map[string]string{"message": "No product info"})
		return
	}
	product, ok := h.catalog.ByID(productID)
	if !ok {
		log.Warn("unknown product id", "product_id", productID)
		h.record(ev.Type, ResultIgnored)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Unknown product"})
		return
	}

	user, err := h.resolveUser(ctx, &order)
	switch {
	case errors.Is(err, errNoIdentifier):
		log.Warn("no user identifier on order, credits not added")
		h.record(ev.Type, ResultNoIdentifier)
		http.Error(w, `{"error":"No user identifier found"}`, http.StatusBadRequest)
		return
	case errors.Is(err, errUserNotFound):
		email := order.CustomerEmail()
		log.Warn("user not found for email, credits not added", "email", email)
		h.record(ev.Type, ResultUserNotFound)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found for email: " + email})
		return
	case err != nil:
		log.Error("resolve purchaser failed", "error", err)
		h.record(ev.Type, ResultInternalError)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	dup, err := h.queue.EnqueueGrant(ctx, execution.GrantCreditsArgs{
		UserID:  user.ID,
		Amount:  product.Credits,
		OrderID: order.ID,
		EventID: eventID,
		Product: product.Plan,
	})
	if err != nil {
		log.Error("enqueue grant failed", "error", err)
		h.record(ev.Type, ResultInternalError)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if dup {
		log.Info("grant already queued")
		h.record(ev.Type, ResultDuplicate)
	} else {
		log.Info("grant queued", "user_id", user.ID, "credits", product.Credits)
		h.record(ev.Type, ResultQueued)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

var (
	errUserNotFound = errors.New("user not found")
	errNoIdentifier = errors.New("no user identifier")
)

// resolveUser finds the purchaser by the user id stored at checkout, then by
// email.
func (h *WebhookHandler) resolveUser(ctx context.Context, order *Order) (*models.User, error) {
	if ref := order.UserRef(); ref != "" {
		u, err := h.users.GetByExternalID(ctx, ref)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		h.log.Warn("user not found for metadata id, falling back to email", "user_ref", ref)
	}

	email := order.CustomerEmail()
	if email == "" {
		return nil, errNoIdentifier
	}
	u, err := h.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (h *WebhookHandler) record(eventType, result string) {
	if h.recorder != nil {
		h.recorder.WebhookEvent(eventType, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
