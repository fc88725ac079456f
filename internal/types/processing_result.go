package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal state of a processing attempt.
type Status string

// Status values
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// FailureKind groups failures for reporting.
type FailureKind string

// FailureKind values
const (
	FailureNotFound     FailureKind = "not_found"
	FailureTransient    FailureKind = "transient"
	FailurePermanent    FailureKind = "permanent"
	FailureInvalidInput FailureKind = "invalid_input"
)

// BusinessContext is the structured summary generated for a report.
type BusinessContext struct {
	BusinessQuestion string   `json:"business_question" validate:"required"`
	PrimaryMetrics   []string `json:"primary_metrics" validate:"required,min=1,dive,required"`
	KeyFilters       []string `json:"key_filters" validate:"dive,required"`
	FinalSummary     string   `json:"final_summary" validate:"required"`
	Model            string   `json:"model,omitempty"`
}

// Failure describes why an item could not be enriched.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// ProcessingResult is the outcome of enriching one WorkItem. Exactly one of
// the success output or the failure detail is set; build values with
// NewSuccess or NewFailure.
type ProcessingResult struct {
	ItemID      ItemID
	Item        WorkItem
	ProcessedAt time.Time

	output  *BusinessContext
	failure *Failure
}

// NewSuccess records a successful enrichment.
func NewSuccess(item WorkItem, output BusinessContext, at time.Time) ProcessingResult {
	return ProcessingResult{
		ItemID:      item.ID,
		Item:        item,
		ProcessedAt: at.UTC(),
		output:      &output,
	}
}

// NewFailure records a terminal failure. The item may carry only an id when
// the detail fetch itself failed.
func NewFailure(item WorkItem, kind FailureKind, reason string, at time.Time) ProcessingResult {
	return ProcessingResult{
		ItemID:      item.ID,
		Item:        item,
		ProcessedAt: at.UTC(),
		failure:     &Failure{Kind: kind, Reason: reason},
	}
}

// Status returns StatusSuccess or StatusFailed.
func (r ProcessingResult) Status() Status {
	if r.output != nil {
		return StatusSuccess
	}
	return StatusFailed
}

// Output returns the business context for a successful result.
func (r ProcessingResult) Output() (BusinessContext, bool) {
	if r.output == nil {
		return BusinessContext{}, false
	}
	return *r.output, true
}

// Failure returns the failure detail for a failed result.
func (r ProcessingResult) Failure() (Failure, bool) {
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}

// processingResultJSON is the persisted form. The status field is the discriminator.
type processingResultJSON struct {
	ItemID      ItemID           `json:"item_id"`
	Status      Status           `json:"status"`
	Item        WorkItem         `json:"item"`
	Output      *BusinessContext `json:"output,omitempty"`
	Error       *Failure         `json:"error,omitempty"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// MarshalJSON implements json.Marshaler.
func (r ProcessingResult) MarshalJSON() ([]byte, error) {
	if (r.output == nil) == (r.failure == nil) {
		return nil, fmt.Errorf("result for item %d must have exactly one of output or failure", r.ItemID)
	}
	return json.Marshal(processingResultJSON{
		ItemID:      r.ItemID,
		Status:      r.Status(),
		Item:        r.Item,
		Output:      r.output,
		Error:       r.failure,
		ProcessedAt: r.ProcessedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler and rejects records whose status
// disagrees with the populated fields.
func (r *ProcessingResult) UnmarshalJSON(data []byte) error {
	var raw processingResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Status {
	case StatusSuccess:
		if raw.Output == nil || raw.Error != nil {
			return fmt.Errorf("item %d: success record must carry output and no error", raw.ItemID)
		}
	case StatusFailed:
		if raw.Error == nil || raw.Output != nil {
			return fmt.Errorf("item %d: failed record must carry error and no output", raw.ItemID)
		}
	default:
		return fmt.Errorf("item %d: unknown status %q", raw.ItemID, raw.Status)
	}

	if raw.Item.ID == 0 {
		raw.Item.ID = raw.ItemID
	}
	*r = ProcessingResult{
		ItemID:      raw.ItemID,
		Item:        raw.Item,
		ProcessedAt: raw.ProcessedAt,
		output:      raw.Output,
		failure:     raw.Error,
	}
	return nil
}
