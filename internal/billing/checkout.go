package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roastmyui/backend/internal/config"
	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/middleware"
	"github.com/roastmyui/backend/internal/models"
)

// Provider is the payment API the checkout handler talks to.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	ListOrders(ctx context.Context, userID string) ([]Order, error)
}

// Ledger is the subset of ledger.Service used to settle verified orders.
type Ledger interface {
	EnsureUser(ctx context.Context, id models.Identity) (*models.User, error)
	Grant(ctx context.Context, req ledger.GrantRequest) (ledger.GrantResult, error)
}

// GrantRecorder counts credits granted by verification. It may be nil.
type GrantRecorder interface {
	CreditsGranted(source string, amount int)
}

// CheckoutHandler serves the purchase endpoints.
type CheckoutHandler struct {
	provider   Provider
	catalog    *config.Catalog
	ledger     Ledger
	successURL string
	recorder   GrantRecorder
	log        *slog.Logger
}

func NewCheckoutHandler(p Provider, catalog *config.Catalog, l Ledger, successURL string, rec GrantRecorder, log *slog.Logger) *CheckoutHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CheckoutHandler{
		provider:   p,
		catalog:    catalog,
		ledger:     l,
		successURL: successURL,
		recorder:   rec,
		log:        log,
	}
}

// --- POST /api/v1/checkout ---

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// Create opens a hosted checkout for the caller and returns its URL.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	product, ok := h.catalog.ByPlan(req.Plan)
	if !ok {
		http.Error(w, `{"error":"Invalid plan"}`, http.StatusBadRequest)
		return
	}

	url, err := h.provider.CreateCheckout(r.Context(), CheckoutRequest{
		ProductID:     product.ID,
		SuccessURL:    h.successURL,
		CustomerEmail: id.Email,
		UserID:        id.ExternalID,
	})
	if err != nil {
		h.log.Error("create checkout failed", "user", id.ExternalID, "plan", req.Plan, "error", err)
		http.Error(w, `{"error":"Failed to create checkout"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// --- POST /api/v1/checkout/verify ---

type verifyResponse struct {
	CreditsAdded int `json:"creditsAdded"`
	NewBalance   int `json:"newBalance"`
}

// Verify credits every paid order of the caller that the webhook has not
// delivered yet. Orders already credited are skipped by the ledger, so the
// call is safe to repeat. Orders that belong to someone else are ignored
// even if the provider returns them.
func (h *CheckoutHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	user, err := h.ledger.EnsureUser(r.Context(), id)
	if err != nil {
		h.log.Error("ensure user failed", "user", id.ExternalID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	orders, err := h.provider.ListOrders(r.Context(), id.ExternalID)
	if err != nil {
		h.log.Error("list orders failed", "user", id.ExternalID, "error", err)
		http.Error(w, `{"error":"Failed to verify purchase"}`, http.StatusBadGateway)
		return
	}

	resp := verifyResponse{NewBalance: user.Credits}
	for _, o := range orders {
		if !o.IsPaid() {
			continue
		}
		if !ownsOrder(id, &o) {
			h.log.Warn("skipping order owned by another user", "order_id", o.ID, "user", id.ExternalID, "order_user", o.UserRef())
			continue
		}
		product, ok := h.catalog.ByID(o.ProductRef())
		if !ok {
			h.log.Warn("skipping order with unknown product", "order_id", o.ID, "product_id", o.ProductRef())
			continue
		}
		res, err := h.ledger.Grant(r.Context(), ledger.GrantRequest{
			UserID:  user.ID,
			Amount:  product.Credits,
			OrderID: o.ID,
			Kind:    models.TxPurchase,
		})
		if err != nil {
			h.log.Error("grant verified order failed", "order_id", o.ID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		resp.NewBalance = res.Balance
		if res.Granted {
			resp.CreditsAdded += product.Credits
			if h.recorder != nil {
				h.recorder.CreditsGranted("verify", product.Credits)
			}
			h.log.Info("credits granted on verify", "order_id", o.ID, "user_id", user.ID, "amount", product.Credits)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ownsOrder matches the order's checkout user id against the caller. Orders
// without one fall back to the customer email, as the webhook does.
func ownsOrder(id models.Identity, o *Order) bool {
	if ref := o.UserRef(); ref != "" {
		return ref == id.ExternalID
	}
	email := o.CustomerEmail()
	return email != "" && id.Email != "" && strings.EqualFold(email, id.Email)
}
