package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roastmyui/backend/internal/auth"
	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/llm"
	"github.com/roastmyui/backend/internal/middleware"
	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/roast"
	"github.com/roastmyui/backend/internal/screenshot"
)

// Roaster runs one roast end to end.
type Roaster interface {
	Roast(ctx context.Context, id models.Identity, req roast.Request) (*roast.Result, error)
}

// RoastHandler serves POST /api/roast.
type RoastHandler struct {
	Roaster Roaster
	Logger  *slog.Logger
}

func NewRoastHandler(r Roaster, log *slog.Logger) *RoastHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RoastHandler{Roaster: r, Logger: log}
}

// --- POST /api/roast ---

// Roast handles POST /api/roast.
// Auth -> RoastRequestCheck (via middleware) -> Spend -> Capture -> Model chain -> 200.
func (h *RoastHandler) Roast(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	req := middleware.RoastRequestFromCtx(r.Context())
	if req == nil {
		req = &middleware.RoastRequest{}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxRoastBody)).Decode(req); err != nil {
			http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}
	}

	res, err := h.Roaster.Roast(r.Context(), id, roast.Request{
		URL:          req.URL,
		AnalysisType: req.AnalysisType,
		Screenshot:   req.Screenshot,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RoastHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
	case errors.Is(err, screenshot.ErrInvalidURL):
		http.Error(w, `{"error":"Invalid URL"}`, http.StatusBadRequest)
	case errors.Is(err, roast.ErrInvalidAnalysisType):
		http.Error(w, `{"error":"analysisType must be hero or full-page"}`, http.StatusBadRequest)
	case errors.Is(err, roast.ErrInvalidScreenshot):
		http.Error(w, `{"error":"Invalid screenshot"}`, http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		http.Error(w, `{"error":"Insufficient credits"}`, http.StatusPaymentRequired)
	case errors.Is(err, screenshot.ErrCaptureFailed):
		h.Logger.Warn("roast capture failed", "error", err)
		http.Error(w, `{"error":"Failed to capture screenshot"}`, http.StatusBadGateway)
	case errors.Is(err, llm.ErrAllModelsExhausted):
		h.Logger.Error("roast model chain exhausted", "error", err)
		http.Error(w, `{"error":"All AI models are busy. Please try again shortly."}`, http.StatusServiceUnavailable)
	default:
		h.Logger.Error("roast failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
