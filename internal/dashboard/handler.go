package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roastmyui/backend/internal/auth"
	"github.com/roastmyui/backend/internal/middleware"
	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/repository"
)

const (
	historyLimit      = 20
	transactionsLimit = 50
	hallOfShameLimit  = 12
)

// Ledger reports balances, creating users on first visit.
type Ledger interface {
	Balance(ctx context.Context, id models.Identity) (int, error)
}

type UserStore interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

type TransactionStore interface {
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
}

type RoastStore interface {
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.Roast, error)
	HallOfShame(ctx context.Context, limit int) ([]*models.Roast, error)
}

type Handler struct {
	authSvc auth.Service
	ledger  Ledger
	users   UserStore
	txs     TransactionStore
	roasts  RoastStore
	log     *slog.Logger
}

func NewHandler(
	authSvc auth.Service,
	ledger Ledger,
	users UserStore,
	txs TransactionStore,
	roasts RoastStore,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc: authSvc,
		ledger:  ledger,
		users:   users,
		txs:     txs,
		roasts:  roasts,
		log:     log,
	}
}

// identityFromRequest prefers an identity placed by the Authenticate
// middleware and otherwise validates the bearer token itself.
func (h *Handler) identityFromRequest(r *http.Request) (models.Identity, error) {
	if id, ok := middleware.IdentityFromCtx(r.Context()); ok {
		return id, nil
	}
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return models.Identity{}, fmt.Errorf("missing authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return models.Identity{}, fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return models.Identity{}, fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

// existingUser returns the caller's row without creating one, or nil.
func (h *Handler) existingUser(ctx context.Context, id models.Identity) (*models.User, error) {
	u, err := h.users.GetByExternalID(ctx, id.ExternalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/credits
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	credits, err := h.ledger.Balance(r.Context(), id)
	if err != nil {
		h.log.Error("balance lookup failed", "user", id.ExternalID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credits": credits})
}

// GET /api/v1/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries := []*models.Transaction{}
	u, err := h.existingUser(r.Context(), id)
	if err == nil && u != nil {
		entries, err = h.txs.ListByUserID(r.Context(), u.ID, transactionsLimit)
	}
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/roasts
func (h *Handler) ListRoasts(w http.ResponseWriter, r *http.Request) {
	id, err := h.identityFromRequest(r)
	if err != nil {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	roasts := []*models.Roast{}
	u, err := h.existingUser(r.Context(), id)
	if err == nil && u != nil {
		roasts, err = h.roasts.ListByUserID(r.Context(), u.ID, historyLimit)
	}
	if err != nil {
		h.log.Error("list roasts failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if roasts == nil {
		roasts = []*models.Roast{}
	}
	writeJSON(w, http.StatusOK, roasts)
}

// shameEntry is the public view of a roast: no owner and no screenshot.
type shameEntry struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Score     float64   `json:"score"`
	Tagline   string    `json:"tagline"`
	Roast     string    `json:"roast"`
	CreatedAt time.Time `json:"created_at"`
}

// GET /api/v1/hall-of-shame (public)
func (h *Handler) HallOfShame(w http.ResponseWriter, r *http.Request) {
	roasts, err := h.roasts.HallOfShame(r.Context(), hallOfShameLimit)
	if err != nil {
		h.log.Error("hall of shame failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	out := make([]shameEntry, 0, len(roasts))
	for _, ro := range roasts {
		out = append(out, shameEntry{
			ID:        ro.ID,
			URL:       ro.URL,
			Score:     ro.Score,
			Tagline:   ro.Tagline,
			Roast:     ro.RoastContent.Roast,
			CreatedAt: ro.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
