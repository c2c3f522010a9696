package llm

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roastmyui/backend/internal/models"
)

//go:embed schemas/roast.v1.json
var roastSchemaJSON string

const roastSchemaID = "https://roastmyui.dev/schemas/roast.v1.json"

// OutputParser turns raw model text into a validated RoastContent.
type OutputParser struct {
	schema *jsonschema.Schema
}

func NewOutputParser() (*OutputParser, error) {
	schema, err := jsonschema.CompileString(roastSchemaID, roastSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile roast schema: %w", err)
	}
	return &OutputParser{schema: schema}, nil
}

// Parse strips code fences, decodes the JSON and validates it against the
// roast schema. Every failure is wrapped in ErrMalformedOutput.
func (p *OutputParser) Parse(text string) (*models.RoastContent, error) {
	body := StripFences(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	var out models.RoastContent
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &out, nil
}

// StripFences removes a surrounding markdown code fence (``` or ```json)
// and any whitespace around it.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
