// Package enrich turns a report's name, description and query into a
// structured business context using a generative model.
package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/report-context/internal/llm"
	"github.com/jonathan/report-context/internal/prompts"
	"github.com/jonathan/report-context/internal/schemas"
	"github.com/jonathan/report-context/internal/types"
)

// MaxSQLChars bounds the query text sent to the model.
const MaxSQLChars = 2000

const noDescription = "Not provided"

// Enricher produces a business context for one report.
type Enricher interface {
	Enrich(ctx context.Context, item types.WorkItem) (types.BusinessContext, error)
}

// GeminiEnricher implements Enricher on top of an llm.Client.
type GeminiEnricher struct {
	client   llm.Client
	tier     llm.ModelTier
	validate *validator.Validate
}

// NewGeminiEnricher creates an enricher using the standard model tier.
func NewGeminiEnricher(client llm.Client) *GeminiEnricher {
	return &GeminiEnricher{
		client:   client,
		tier:     llm.TierStandard,
		validate: validator.New(),
	}
}

// Enrich builds the prompt, calls the model and validates its answer. Errors
// from the model client are returned unchanged so callers can classify them.
func (e *GeminiEnricher) Enrich(ctx context.Context, item types.WorkItem) (types.BusinessContext, error) {
	prompt, err := BuildPrompt(item)
	if err != nil {
		return types.BusinessContext{}, err
	}

	raw, err := e.client.GenerateJSON(ctx, prompt, e.tier)
	if err != nil {
		return types.BusinessContext{}, err
	}

	bc, err := ParseResponse(raw, e.validate)
	if err != nil {
		return types.BusinessContext{}, err
	}
	bc.Model = e.client.GetModel(e.tier)
	return bc, nil
}

// BuildPrompt renders the business-context prompt for item.
func BuildPrompt(item types.WorkItem) (string, error) {
	description := strings.TrimSpace(item.Description)
	if description == "" {
		description = noDescription
	}

	return prompts.Render(prompts.EnrichmentFile, prompts.BusinessContextKey, map[string]string{
		"Name":        strings.TrimSpace(item.Name),
		"Description": description,
		"SQL":         TruncateSQL(item.SQL),
	})
}

// TruncateSQL limits query text to MaxSQLChars runes, marking the cut with "...".
func TruncateSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	runes := []rune(sql)
	if len(runes) <= MaxSQLChars {
		return sql
	}
	return string(runes[:MaxSQLChars]) + "..."
}

// ParseResponse validates raw model output against the business-context
// schema and struct rules. Every failure wraps ErrInvalidResponse.
func ParseResponse(raw string, validate *validator.Validate) (types.BusinessContext, error) {
	raw = llm.CleanJSONBlock(raw)
	if raw == "" {
		return types.BusinessContext{}, &ResponseError{Message: "empty response"}
	}

	if err := schemas.Validate(schemas.BusinessContext, []byte(raw)); err != nil {
		return types.BusinessContext{}, &ResponseError{Message: "schema check failed", Cause: err}
	}

	var bc types.BusinessContext
	if err := json.Unmarshal([]byte(raw), &bc); err != nil {
		return types.BusinessContext{}, &ResponseError{Message: "decode failed", Cause: err}
	}
	bc = normalize(bc)

	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(bc); err != nil {
		return types.BusinessContext{}, &ResponseError{Message: "field check failed", Cause: err}
	}
	return bc, nil
}

// normalize trims whitespace and drops blank list entries.
func normalize(bc types.BusinessContext) types.BusinessContext {
	bc.BusinessQuestion = strings.TrimSpace(bc.BusinessQuestion)
	bc.FinalSummary = strings.TrimSpace(bc.FinalSummary)
	bc.PrimaryMetrics = compact(bc.PrimaryMetrics)
	bc.KeyFilters = compact(bc.KeyFilters)
	if bc.KeyFilters == nil {
		bc.KeyFilters = []string{}
	}
	return bc
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
