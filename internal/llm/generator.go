package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"github.com/roastmyui/backend/internal/models"
)

// Prompt is a multimodal request: system instruction, optional image and user text.
type Prompt struct {
	System    string
	Text      string
	Image     []byte
	ImageMIME string
}

// Response is the raw text a model produced and the web pages it cited.
type Response struct {
	Text    string
	Sources []models.Source
}

// Generator calls one model by identifier.
type Generator interface {
	Generate(ctx context.Context, model string, p Prompt) (*Response, error)
}

// ---------------------------------------------------------------------------
// Gemini
// ---------------------------------------------------------------------------

// contentModels is the slice of *genai.Models the generator uses.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates content through the Gemini API with Google Search
// grounding. The model is chosen per call so one client serves the whole
// fallback chain.
type Gemini struct {
	models      contentModels
	temperature float32
	search      bool
}

func NewGemini(ctx context.Context, apiKey string, temperature float64, search bool) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, temperature, search), nil
}

func newGemini(m contentModels, temperature float64, search bool) *Gemini {
	return &Gemini{models: m, temperature: float32(temperature), search: search}
}

var _ Generator = (*Gemini)(nil)

func (g *Gemini) Generate(ctx context.Context, model string, p Prompt) (*Response, error) {
	temp := g.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}
	if g.search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	var parts []*genai.Part
	if len(p.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(p.Image, p.ImageMIME))
	}
	parts = append(parts, genai.NewPartFromText(p.Text))

	resp, err := g.models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no candidates returned", ErrMalformedOutput)
	}
	cand := resp.Candidates[0]

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	return &Response{Text: text.String(), Sources: groundingSources(cand.GroundingMetadata)}, nil
}

// groundingSources keeps the web chunks of a grounded answer, in order.
func groundingSources(gm *genai.GroundingMetadata) []models.Source {
	sources := []models.Source{}
	if gm == nil {
		return sources
	}
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		sources = append(sources, models.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}

// ---------------------------------------------------------------------------
// OpenAI-compatible
// ---------------------------------------------------------------------------

// LangChain serves the chain from any OpenAI-compatible endpoint (OpenAI,
// OpenRouter, a local Ollama). These providers return no grounding, so
// Sources is always empty.
type LangChain struct {
	client      llms.Model
	temperature float64
}

func NewOpenAICompatible(apiKey, baseURL, defaultModel string, temperature float64) (*LangChain, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(defaultModel)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &LangChain{client: client, temperature: temperature}, nil
}

var _ Generator = (*LangChain)(nil)

func (l *LangChain) Generate(ctx context.Context, model string, p Prompt) (*Response, error) {
	resp, err := l.client.GenerateContent(ctx, messages(p),
		llms.WithModel(model),
		llms.WithTemperature(l.temperature),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedOutput)
	}
	return &Response{Text: resp.Choices[0].Content, Sources: []models.Source{}}, nil
}

func messages(p Prompt) []llms.MessageContent {
	var msgs []llms.MessageContent
	if p.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	var parts []llms.ContentPart
	if len(p.Image) > 0 {
		parts = append(parts, llms.BinaryPart(p.ImageMIME, p.Image))
	}
	parts = append(parts, llms.TextPart(p.Text))
	return append(msgs, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
}
