package processor

import (
	"time"

	"github.com/jonathan/report-context/internal/types"
)

// State is a stage of the run lifecycle.
type State string

// States
const (
	StateInit        State = "init"
	StateReady       State = "ready"
	StateProcessing  State = "processing"
	StateValidating  State = "validating"
	StateInterrupted State = "interrupted"
	StateDone        State = "done"
)

// EventKind identifies a ProgressEvent.
type EventKind string

// Event kinds
const (
	EventState EventKind = "state"
	EventItem  EventKind = "item"
	EventFlush EventKind = "flush"
)

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Kind    EventKind    `json:"kind"`
	State   State        `json:"state"`
	RunID   string       `json:"run_id"`
	Message string       `json:"message"`
	ItemID  types.ItemID `json:"item_id,omitempty"`
	Status  types.Status `json:"status,omitempty"`

	// Done counts items completed this run; Pending is the session's work list size.
	Done    int `json:"done"`
	Pending int `json:"pending"`
	Stored  int `json:"stored"`

	// Total is the number of listed ids and Gaps how many of them still lack
	// a stored result. Set on flush events.
	Total int       `json:"total,omitempty"`
	Gaps  int       `json:"gaps,omitempty"`
	At    time.Time `json:"at"`
}

// ProgressCallback is called when run progress occurs. It may be called
// from several goroutines, but never concurrently.
type ProgressCallback func(event ProgressEvent)

// RunStatus is the outcome of a run.
type RunStatus string

// Run statuses
const (
	RunComplete    RunStatus = "complete"
	RunIncomplete  RunStatus = "incomplete"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// Summary reports the cumulative state of the result store after a run.
type Summary struct {
	RunID  string
	Status RunStatus
	// Total is the number of ids the source listed at the start of the run.
	Total          int
	Succeeded      int
	Failed         int
	FailuresByKind map[types.FailureKind]int
	// FailureReasons counts failed results by reason text.
	FailureReasons map[string]int
	// Gaps are source ids still without a result.
	Gaps []types.ItemID
	// Extra are stored ids the source no longer lists.
	Extra            []types.ItemID
	Pending          int
	ProcessedThisRun int
	Elapsed          time.Duration
}
