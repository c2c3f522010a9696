package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/roastmyui/backend/internal/models"
)

// Attempt outcomes reported to an Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeMalformed   = "malformed"
	OutcomeError       = "error"
)

// Observer receives one call per candidate attempt.
type Observer interface {
	ObserveAttempt(model, outcome string, took time.Duration)
}

// Result is the first valid roast produced by the chain.
type Result struct {
	Content  *models.RoastContent
	Model    string
	Sources  []models.Source
	Attempts []Attempt
}

// Invoker walks an ordered list of model identifiers exactly once and
// returns the first response that parses and validates.
type Invoker struct {
	gen            Generator
	parser         *OutputParser
	candidates     []string
	rateLimitDelay time.Duration
	observer       Observer
	log            *slog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

type Option func(*Invoker)

func WithObserver(o Observer) Option { return func(i *Invoker) { i.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(i *Invoker) { i.log = l } }

// WithSleep replaces the rate-limit wait; tests use it to avoid real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) { i.sleep = fn }
}

func NewInvoker(gen Generator, parser *OutputParser, candidates []string, rateLimitDelay time.Duration, opts ...Option) *Invoker {
	inv := &Invoker{
		gen:            gen,
		parser:         parser,
		candidates:     append([]string(nil), candidates...),
		rateLimitDelay: rateLimitDelay,
		log:            slog.Default(),
		sleep:          sleepCtx,
	}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Candidates returns the chain in preference order.
func (inv *Invoker) Candidates() []string {
	return append([]string(nil), inv.candidates...)
}

// Invoke tries each candidate in order. Transport errors, rate limits and
// malformed output all advance to the next candidate; a rate limit first
// waits rateLimitDelay. No candidate is tried twice.
func (inv *Invoker) Invoke(ctx context.Context, p Prompt) (*Result, error) {
	attempts := make([]Attempt, 0, len(inv.candidates))
	for i, model := range inv.candidates {
		start := time.Now()
		content, sources, err := inv.try(ctx, model, p)
		took := time.Since(start)
		if err == nil {
			inv.observe(model, OutcomeSuccess, took)
			attempts = append(attempts, Attempt{Model: model})
			return &Result{Content: content, Model: model, Sources: sources, Attempts: attempts}, nil
		}
		attempts = append(attempts, Attempt{Model: model, Err: err})

		outcome := classify(err)
		inv.observe(model, outcome, took)
		inv.log.Warn("model attempt failed", "model", model, "outcome", outcome, "error", err)

		if ctx.Err() != nil {
			break
		}
		if outcome == OutcomeRateLimited && i < len(inv.candidates)-1 {
			if err := inv.sleep(ctx, inv.rateLimitDelay); err != nil {
				break
			}
		}
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

func (inv *Invoker) try(ctx context.Context, model string, p Prompt) (*models.RoastContent, []models.Source, error) {
	resp, err := inv.gen.Generate(ctx, model, p)
	if err != nil {
		return nil, nil, err
	}
	content, err := inv.parser.Parse(resp.Text)
	if err != nil {
		return nil, nil, err
	}
	sources := resp.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	return content, sources, nil
}

func (inv *Invoker) observe(model, outcome string, took time.Duration) {
	if inv.observer != nil {
		inv.observer.ObserveAttempt(model, outcome, took)
	}
}

func classify(err error) string {
	switch {
	case isMalformed(err):
		return OutcomeMalformed
	case IsRateLimited(err):
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
