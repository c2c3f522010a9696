package roast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roastmyui/backend/internal/auth"
	"github.com/roastmyui/backend/internal/ledger"
	"github.com/roastmyui/backend/internal/llm"
	"github.com/roastmyui/backend/internal/models"
	"github.com/roastmyui/backend/internal/screenshot"
)

var (
	// ErrInvalidAnalysisType is returned for an analysis depth other than hero or full-page.
	ErrInvalidAnalysisType = errors.New("invalid analysis type")
	// ErrInvalidScreenshot is returned when a client-supplied screenshot can't be decoded.
	ErrInvalidScreenshot = errors.New("invalid screenshot")
)

// Outcomes reported to Recorder.RoastCompleted.
const (
	OutcomeSuccess             = "success"
	OutcomeInvalid             = "invalid"
	OutcomeInsufficientBalance = "insufficient_balance"
	OutcomeCaptureFailed       = "capture_failed"
	OutcomeModelsExhausted     = "models_exhausted"
	OutcomeError               = "error"
)

// Ledger is the subset of ledger.Service the orchestrator spends through.
type Ledger interface {
	Spend(ctx context.Context, id models.Identity, amount int) (ledger.SpendResult, error)
}

// Invoker runs the model fallback chain.
type Invoker interface {
	Invoke(ctx context.Context, p llm.Prompt) (*llm.Result, error)
}

// Store persists completed roasts.
type Store interface {
	Create(ctx context.Context, r *models.Roast) error
}

// Pricing maps an analysis depth to its credit cost.
type Pricing interface {
	Cost(analysisType string) int
}

// Recorder receives per-request metrics. It may be nil.
type Recorder interface {
	RoastCompleted(analysisType, outcome string)
	CreditsSpent(analysisType string, amount int)
}

// Request is one roast submission.
type Request struct {
	URL          string
	AnalysisType string
	// Screenshot is an optional client-captured data URL used instead of a
	// server-side capture.
	Screenshot string
}

// Result is returned to the caller after a successful roast.
type Result struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
	models.RoastContent
	Sources          []models.Source `json:"sources"`
	Screenshot       string          `json:"screenshot,omitempty"`
	ModelUsed        string          `json:"modelUsed"`
	AnalysisType     string          `json:"analysisType"`
	RemainingCredits int             `json:"remainingCredits"`
}

type Config struct {
	// RequireScreenshot makes a capture failure fatal. When false the roast
	// proceeds with a prompt that has no image.
	RequireScreenshot bool
}

type Service struct {
	ledger   Ledger
	capturer screenshot.Capturer
	invoker  Invoker
	store    Store
	pricing  Pricing
	recorder Recorder
	cfg      Config
	log      *slog.Logger
}

func NewService(l Ledger, c screenshot.Capturer, inv Invoker, store Store, pricing Pricing, rec Recorder, cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:   l,
		capturer: c,
		invoker:  inv,
		store:    store,
		pricing:  pricing,
		recorder: rec,
		cfg:      cfg,
		log:      log,
	}
}

// Roast validates the request, deducts credits, captures the page, runs the
// model chain and persists the result. Credits are deducted before the
// capture and model steps and are not refunded if those fail.
func (s *Service) Roast(ctx context.Context, id models.Identity, req Request) (*Result, error) {
	analysisType := req.AnalysisType
	if analysisType == "" {
		analysisType = models.AnalysisHero
	}
	res, err := s.roast(ctx, id, req, analysisType)
	s.record(analysisType, outcomeOf(err))
	return res, err
}

func (s *Service) roast(ctx context.Context, id models.Identity, req Request, analysisType string) (*Result, error) {
	if id.ExternalID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if !models.ValidAnalysisType(analysisType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAnalysisType, analysisType)
	}
	target, err := screenshot.NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	var clientImage *screenshot.Image
	if req.Screenshot != "" {
		clientImage, err = screenshot.DecodeDataURL(req.Screenshot)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScreenshot, err)
		}
	}

	cost := s.pricing.Cost(analysisType)
	spent, err := s.ledger.Spend(ctx, id, cost)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.CreditsSpent(analysisType, cost)
	}
	log := s.log.With("user", id.ExternalID, "url", target, "analysis_type", analysisType)

	img := clientImage
	if img == nil {
		img, err = s.capturer.Capture(ctx, target, analysisType == models.AnalysisFullPage)
		if err != nil {
			if s.cfg.RequireScreenshot {
				log.Warn("capture failed after spend; credits not refunded", "cost", cost, "error", err)
				return nil, err
			}
			log.Warn("capture failed, roasting without screenshot", "error", err)
		}
	}

	var prompt llm.Prompt
	if img != nil {
		prompt = llm.NewRoastPrompt(target, analysisType, img.Data, img.MimeType)
	} else {
		prompt = llm.NewRoastPrompt(target, analysisType, nil, "")
	}

	out, err := s.invoker.Invoke(ctx, prompt)
	if err != nil {
		log.Warn("model chain exhausted after spend; credits not refunded", "cost", cost, "error", err)
		return nil, err
	}

	ro := &models.Roast{
		UserID:       spent.UserID,
		URL:          target,
		RoastContent: *out.Content,
		ModelUsed:    out.Model,
		AnalysisType: analysisType,
	}
	if img != nil {
		ro.Screenshot = img.DataURL()
	}
	if err := s.store.Create(ctx, ro); err != nil {
		return nil, fmt.Errorf("persist roast: %w", err)
	}
	log.Info("roast completed", "model", out.Model, "score", ro.Score, "attempts", len(out.Attempts))

	return &Result{
		ID:               ro.ID,
		URL:              ro.URL,
		RoastContent:     ro.RoastContent,
		Sources:          out.Sources,
		Screenshot:       ro.Screenshot,
		ModelUsed:        ro.ModelUsed,
		AnalysisType:     ro.AnalysisType,
		RemainingCredits: spent.Balance,
	}, nil
}

func (s *Service) record(analysisType, outcome string) {
	if s.recorder != nil {
		s.recorder.RoastCompleted(analysisType, outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return OutcomeInsufficientBalance
	case errors.Is(err, screenshot.ErrInvalidURL), errors.Is(err, ErrInvalidAnalysisType),
		errors.Is(err, ErrInvalidScreenshot), errors.Is(err, auth.ErrUnauthenticated):
		return OutcomeInvalid
	case errors.Is(err, screenshot.ErrCaptureFailed):
		return OutcomeCaptureFailed
	case errors.Is(err, llm.ErrAllModelsExhausted):
		return OutcomeModelsExhausted
	default:
		return OutcomeError
	}
}
