package models

import (
	"time"

	"github.com/google/uuid"
)

// Analysis depths accepted by POST /api/roast.
const (
	AnalysisHero     = "hero"
	AnalysisFullPage = "full-page"
)

// ValidAnalysisType reports whether t is a known analysis depth.
func ValidAnalysisType(t string) bool {
	return t == AnalysisHero || t == AnalysisFullPage
}

// RoastContent is the structured critique a model must return.
type RoastContent struct {
	Score        float64  `json:"score"`
	Tagline      string   `json:"tagline"`
	Roast        string   `json:"roast"`
	ShareText    string   `json:"shareText"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	VisualCrimes []string `json:"visualCrimes,omitempty"`
	BestPart     string   `json:"bestPart,omitempty"`
	WorstPart    string   `json:"worstPart,omitempty"`
}

// Source is a web reference the model grounded its answer on.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Roast is one persisted, immutable critique.
type Roast struct {
	ID     uuid.UUID `json:"id"`
	UserID int64     `json:"user_id"`
	URL    string    `json:"url"`
	RoastContent
	Screenshot   string    `json:"screenshot,omitempty"`
	ModelUsed    string    `json:"modelUsed"`
	AnalysisType string    `json:"analysisType"`
	CreatedAt    time.Time `json:"created_at"`
}
