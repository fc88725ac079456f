package processor

import (
	"log/slog"
	"time"

	"github.com/jonathan/report-context/internal/retry"
)

// Defaults for Options.
const (
	DefaultCheckpointInterval = 10
	DefaultWorkers            = 1
	DefaultMinCallDelay       = 1500 * time.Millisecond
	DefaultRequestTimeout     = 30 * time.Second
	DefaultEnrichTimeout      = 60 * time.Second
)

// Options configures a Processor. Zero values take the defaults above.
type Options struct {
	// CheckpointInterval is the number of completed items between flushes.
	CheckpointInterval int
	// Workers bounds the number of items in flight.
	Workers int
	// MinCallDelay is the minimum spacing between enrichment calls across
	// all workers. A negative value disables the limit.
	MinCallDelay time.Duration
	// RequestTimeout bounds each detail fetch.
	RequestTimeout time.Duration
	// EnrichTimeout bounds each enrichment call.
	EnrichTimeout time.Duration
	Retry         retry.Policy

	// ReprocessFailed makes previously failed items pending again.
	ReprocessFailed bool
	// Limit caps the number of pending items processed in this session. 0 means no cap.
	Limit int

	Logger     *slog.Logger
	OnProgress ProgressCallback
	// Recorder, when set, receives run start and completion records.
	Recorder RunRecorder

	now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	switch {
	case o.MinCallDelay == 0:
		o.MinCallDelay = DefaultMinCallDelay
	case o.MinCallDelay < 0:
		o.MinCallDelay = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.EnrichTimeout <= 0 {
		o.EnrichTimeout = DefaultEnrichTimeout
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.DefaultPolicy()
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}
