// Package retry decides whether a failed call should be attempted again and
// how long to wait first. Decisions are pure; callers own the sleeping.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jonathan/report-context/internal/enrich"
	"github.com/jonathan/report-context/internal/llm"
	"github.com/jonathan/report-context/internal/metabase"
)

// Kind is the retry classification of an error.
type Kind int

const (
	// Transient failures may succeed on a later attempt.
	Transient Kind = iota
	// Permanent failures will fail the same way every time.
	Permanent
	// NotFound means the item no longer exists upstream.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Policy bounds retries with capped exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy allows four attempts with 1s, 2s, 4s waits between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Decision is the outcome of Decide.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// GiveUp is the decision to stop retrying.
var GiveUp = Decision{}

// Decide returns whether attempt (1-based, the one that just failed) should
// be followed by another, and the wait before it. Only transient failures
// are retried.
func (p Policy) Decide(attempt int, kind Kind) Decision {
	if kind != Transient {
		return GiveUp
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if attempt >= maxAttempts {
		return GiveUp
	}
	return Decision{Retry: true, Delay: p.backoff(attempt)}
}

func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Classify maps an error from the item source or the model to a Kind.
// Unknown errors are treated as permanent so they are recorded, not looped on.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Permanent
	case errors.Is(err, metabase.ErrNotFound):
		return NotFound
	case errors.Is(err, enrich.ErrInvalidResponse), errors.Is(err, llm.ErrContentBlocked):
		return Permanent
	case errors.Is(err, context.DeadlineExceeded),
		metabase.IsTransient(err),
		llm.IsTransient(err),
		errors.Is(err, llm.ErrEmptyResponse):
		return Transient
	default:
		return Permanent
	}
}

// Wait sleeps for d or until ctx is done, returning ctx.Err() in the latter case.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
