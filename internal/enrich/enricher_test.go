package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/report-context/internal/llm"
	"github.com/jonathan/report-context/internal/types"
)

type fakeClient struct {
	response   string
	err        error
	lastPrompt string
	lastTier   llm.ModelTier
}

var _ llm.Client = (*fakeClient)(nil)

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	f.lastPrompt = prompt
	f.lastTier = tier
	return f.response, f.err
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "gemini-test" }

func (f *fakeClient) Close() error { return nil }

const validResponse = `{
  "business_question": "How many users sign up per day?",
  "primary_metrics": ["daily signups", " "],
  "key_filters": ["signup date in last 30 days"],
  "final_summary": "Tracks recent signup volume."
}`

func testItem() types.WorkItem {
	return types.WorkItem{ID: 7, Name: "Signups", SQL: "SELECT count(*) FROM users"}
}

func TestEnrich_Success(t *testing.T) {
	client := &fakeClient{response: "```json\n" + validResponse + "\n```"}
	e := NewGeminiEnricher(client)

	bc, err := e.Enrich(context.Background(), testItem())
	require.NoError(t, err)

	assert.Equal(t, "How many users sign up per day?", bc.BusinessQuestion)
	assert.Equal(t, []string{"daily signups"}, bc.PrimaryMetrics)
	assert.Equal(t, []string{"signup date in last 30 days"}, bc.KeyFilters)
	assert.Equal(t, "gemini-test", bc.Model)
	assert.Equal(t, llm.TierStandard, client.lastTier)
	assert.Contains(t, client.lastPrompt, "Report Name: Signups")
	assert.Contains(t, client.lastPrompt, "Description: Not provided")
}

func TestEnrich_ClientErrorPassesThrough(t *testing.T) {
	cause := errors.New("quota")
	e := NewGeminiEnricher(&fakeClient{err: cause})

	_, err := e.Enrich(context.Background(), testItem())
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidResponse)
}

func TestEnrich_InvalidResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty", ""},
		{"prose", "I cannot describe this report."},
		{"missing fields", `{"business_question": "q"}`},
		{"wrong types", `{"business_question": "q", "primary_metrics": "m", "key_filters": [], "final_summary": "s"}`},
		{"blank metrics", `{"business_question": "q", "primary_metrics": ["  "], "key_filters": [], "final_summary": "s"}`},
		{"blank question", `{"business_question": "   ", "primary_metrics": ["m"], "key_filters": [], "final_summary": "s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewGeminiEnricher(&fakeClient{response: tt.response})
			_, err := e.Enrich(context.Background(), testItem())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestParseResponse_NoFiltersIsValid(t *testing.T) {
	bc, err := ParseResponse(`{"business_question": "q", "primary_metrics": ["m"], "key_filters": [], "final_summary": "s"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, bc.KeyFilters)
}

func TestBuildPrompt(t *testing.T) {
	item := types.WorkItem{ID: 1, Name: " Revenue ", Description: "Monthly revenue", SQL: "SELECT sum(amount) FROM orders"}

	prompt, err := BuildPrompt(item)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Report Name: Revenue\n")
	assert.Contains(t, prompt, "Description: Monthly revenue")
	assert.Contains(t, prompt, "SELECT sum(amount) FROM orders")
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, TruncateSQL(short))

	exact := strings.Repeat("a", MaxSQLChars)
	assert.Equal(t, exact, TruncateSQL(exact))

	long := strings.Repeat("é", MaxSQLChars+10)
	got := TruncateSQL(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, MaxSQLChars+3, len([]rune(got)))
}

func TestResponseError(t *testing.T) {
	cause := errors.New("bad field")
	err := &ResponseError{Message: "field check failed", Cause: cause}

	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid model response: field check failed: bad field", err.Error())
}
