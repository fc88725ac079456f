// Package processor runs the checkpointed enrichment batch: it works out which
// reports still lack a result, enriches them with bounded concurrency and a
// shared rate limit, flushes the cumulative result set every few items and
// audits the store for gaps at the end.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonathan/report-context/internal/audit"
	"github.com/jonathan/report-context/internal/db"
	"github.com/jonathan/report-context/internal/enrich"
	"github.com/jonathan/report-context/internal/llm"
	"github.com/jonathan/report-context/internal/metabase"
	"github.com/jonathan/report-context/internal/results"
	"github.com/jonathan/report-context/internal/retry"
	"github.com/jonathan/report-context/internal/types"
)

// RunRecorder stores run history. db.DB implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, runID uuid.UUID) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status string, totals db.RunTotals) error
}

// Processor enriches every report the source lists that has no stored result.
type Processor struct {
	source   metabase.Source
	enricher enrich.Enricher
	store    results.Store
	opts     Options
	limiter  *rate.Limiter

	stateMu sync.Mutex
	state   State
}

// New creates a Processor.
func New(source metabase.Source, enricher enrich.Enricher, store results.Store, opts Options) *Processor {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.MinCallDelay > 0 {
		limit = rate.Every(opts.MinCallDelay)
	}

	return &Processor{
		source:   source,
		enricher: enricher,
		store:    store,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		state:    StateInit,
	}
}

// State returns the current lifecycle stage.
func (p *Processor) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// run is the mutable state of a single Run call.
type run struct {
	id     uuid.UUID
	logger *slog.Logger

	// sourceIDs and requeued are fixed once processing starts
	sourceIDs []types.ItemID
	requeued  map[types.ItemID]struct{}

	// mu guards everything below it up to flushMu
	mu         sync.Mutex
	set        *results.Set
	checkpoint types.RunCheckpoint
	done       int
	sinceFlush int
	pending    int

	// flushMu serializes flushes; fatal is written under it
	flushMu sync.Mutex
	fatal   error

	progressMu sync.Mutex
}

var errAbandoned = errors.New("item abandoned on cancellation")

// Run executes one session. It returns ErrInterrupted (wrapped) when ctx is
// cancelled, a *PersistenceError when the store cannot be read or written,
// and a *SourceError when the source cannot be enumerated. The summary is
// populated in every case.
func (p *Processor) Run(ctx context.Context) (Summary, error) {
	start := p.opts.now()
	r := &run{id: uuid.New()}
	r.logger = p.opts.Logger.With("run_id", r.id.String())

	p.setState(r, StateInit, "loading result store")
	loaded, err := p.store.Load(ctx)
	if err != nil {
		p.setState(r, StateDone, "result store unreadable")
		return Summary{RunID: r.id.String(), Status: RunFailed}, &PersistenceError{Message: "loading result store", Cause: err}
	}
	r.set = results.NewSet(loaded)
	r.checkpoint, r.requeued = p.initialCheckpoint(r.set, start)
	p.recordStart(ctx, r)

	var sourceIDs []types.ItemID
	err = p.withRetry(ctx, r, false, p.opts.RequestTimeout, func(callCtx context.Context) error {
		var listErr error
		sourceIDs, listErr = p.source.ListIDs(callCtx)
		return listErr
	})
	if errors.Is(err, errAbandoned) {
		p.setState(r, StateInterrupted, "cancelled before enumeration completed")
		return p.finish(ctx, r, nil, start, RunInterrupted, fmt.Errorf("%w: before enumeration completed", ErrInterrupted))
	}
	if err != nil {
		return p.finish(ctx, r, nil, start, RunFailed, &SourceError{Message: "listing reports", Cause: err})
	}

	r.sourceIDs = sourceIDs
	pending := r.checkpoint.Pending(sourceIDs)
	if p.opts.Limit > 0 && len(pending) > p.opts.Limit {
		pending = pending[:p.opts.Limit]
	}
	r.pending = len(pending)
	p.setState(r, StateReady, fmt.Sprintf("%d listed, %d stored, %d pending", len(sourceIDs), r.set.Len(), len(pending)))

	p.setState(r, StateProcessing, fmt.Sprintf("processing %d items with %d workers", len(pending), p.opts.Workers))
	if err := p.process(ctx, r, pending); err != nil {
		return p.finish(ctx, r, sourceIDs, start, RunFailed, err)
	}

	// Final flush covers the partial interval, including on interruption.
	if err := p.flush(ctx, r); err != nil {
		return p.finish(ctx, r, sourceIDs, start, RunFailed, err)
	}

	r.mu.Lock()
	unfinished := r.done < r.pending
	r.mu.Unlock()
	if ctx.Err() != nil && unfinished {
		p.setState(r, StateInterrupted, "cancelled; completed results flushed")
		summary, _ := p.finish(ctx, r, sourceIDs, start, RunInterrupted, nil)
		return summary, fmt.Errorf("%w: %d of %d pending items done", ErrInterrupted, summary.ProcessedThisRun, r.pending)
	}

	p.setState(r, StateValidating, "auditing result store")
	return p.finish(ctx, r, sourceIDs, start, "", nil)
}

// initialCheckpoint derives the checkpoint from the store. With
// ReprocessFailed, failed results are left out and returned as requeued.
func (p *Processor) initialCheckpoint(set *results.Set, at time.Time) (types.RunCheckpoint, map[types.ItemID]struct{}) {
	persisted := set.Sorted()
	if !p.opts.ReprocessFailed {
		return types.NewRunCheckpoint(persisted, at), nil
	}

	requeued := make(map[types.ItemID]struct{})
	kept := make([]types.ProcessingResult, 0, len(persisted))
	for _, r := range persisted {
		if r.Status() == types.StatusSuccess {
			kept = append(kept, r)
			continue
		}
		requeued[r.ItemID] = struct{}{}
	}
	return types.NewRunCheckpoint(kept, at), requeued
}

// process fans pending ids out to the workers. A worker only returns an
// error for a failed flush, which stops dispatch for everyone.
func (p *Processor) process(ctx context.Context, r *run, pending []types.ItemID) error {
	if len(pending) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	ids := make(chan types.ItemID)

	g.Go(func() error {
		defer close(ids)
		for _, id := range pending {
			if gCtx.Err() != nil {
				return nil
			}
			select {
			case <-gCtx.Done():
				return nil
			case ids <- id:
			}
		}
		return nil
	})

	for w := 0; w < p.opts.Workers; w++ {
		g.Go(func() error {
			for id := range ids {
				result, ok := p.processItem(gCtx, r, id)
				if !ok {
					continue
				}
				if err := p.complete(gCtx, r, result); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// processItem fetches and enriches one item. It returns false when the item
// was abandoned because ctx was cancelled while waiting; such items stay pending.
func (p *Processor) processItem(ctx context.Context, r *run, id types.ItemID) (types.ProcessingResult, bool) {
	if ctx.Err() != nil {
		return types.ProcessingResult{}, false
	}
	logger := r.logger.With("item_id", int(id))
	p.invalidate(ctx, r, id, logger)

	var item *types.WorkItem
	err := p.withRetry(ctx, r, false, p.opts.RequestTimeout, func(callCtx context.Context) error {
		var fetchErr error
		item, fetchErr = p.source.FetchDetail(callCtx, id)
		return fetchErr
	})
	if errors.Is(err, errAbandoned) {
		logger.Info("item abandoned during detail fetch")
		return types.ProcessingResult{}, false
	}
	if err != nil {
		kind := retry.Classify(err)
		reason := err.Error()
		if kind == retry.NotFound {
			reason = "not found"
		}
		logger.Warn("detail fetch failed", "kind", kind.String(), "error", err)
		return types.NewFailure(types.WorkItem{ID: id}, failureKind(kind), reason, p.opts.now()), true
	}

	work := *item
	work.ID = id
	if !work.HasEssentialData() {
		logger.Warn("item has no name or query")
		return types.NewFailure(work, types.FailureInvalidInput, "missing essential data", p.opts.now()), true
	}

	var output types.BusinessContext
	err = p.withRetry(ctx, r, true, p.opts.EnrichTimeout, func(callCtx context.Context) error {
		var enrichErr error
		output, enrichErr = p.enricher.Enrich(callCtx, work)
		return enrichErr
	})
	if errors.Is(err, errAbandoned) {
		logger.Info("item abandoned during enrichment")
		return types.ProcessingResult{}, false
	}
	if err != nil {
		kind := retry.Classify(err)
		logger.Warn("enrichment failed", "kind", kind.String(), "error", err)
		return types.NewFailure(work, failureKind(kind), err.Error(), p.opts.now()), true
	}

	logger.Debug("item enriched")
	return types.NewSuccess(work, output, p.opts.now()), true
}

// invalidate drops any cached detail for an item re-queued after a failure,
// so a card fixed upstream since the failure is fetched fresh.
func (p *Processor) invalidate(ctx context.Context, r *run, id types.ItemID, logger *slog.Logger) {
	if _, ok := r.requeued[id]; !ok {
		return
	}
	inv, ok := p.source.(metabase.Invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(context.WithoutCancel(ctx), id); err != nil {
		logger.Warn("failed to invalidate cached detail", "error", err)
	}
}

// withRetry runs call under the retry policy. Each attempt gets its own
// timeout and is not cut short by ctx; cancellation is only observed while
// waiting for the limiter or a backoff, which yields errAbandoned.
func (p *Processor) withRetry(ctx context.Context, r *run, limited bool, timeout time.Duration, call func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if limited {
			if err := p.limiter.Wait(ctx); err != nil {
				return errAbandoned
			}
		} else if ctx.Err() != nil {
			return errAbandoned
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		kind := retry.Classify(err)
		decision := p.opts.Retry.Decide(attempt, kind)
		if !decision.Retry {
			return err
		}
		r.logger.Debug("retrying after error", "attempt", attempt, "delay", decision.Delay, "error", err)
		if err := retry.Wait(ctx, decision.Delay); err != nil {
			return errAbandoned
		}
	}
}

// complete merges a result and flushes when the interval is reached.
func (p *Processor) complete(ctx context.Context, r *run, result types.ProcessingResult) error {
	r.mu.Lock()
	r.set.Merge(result)
	r.done++
	r.sinceFlush++
	due := r.sinceFlush >= p.opts.CheckpointInterval
	done, stored := r.done, r.set.Len()
	r.mu.Unlock()

	p.emit(r, ProgressEvent{
		Kind:    EventItem,
		State:   StateProcessing,
		Message: fmt.Sprintf("item %d %s", result.ItemID, result.Status()),
		ItemID:  result.ItemID,
		Status:  result.Status(),
		Done:    done,
		Pending: r.pending,
		Stored:  stored,
	})

	if !due {
		return nil
	}
	return p.flush(ctx, r)
}

// flush persists the full cumulative set and then advances the checkpoint.
// It is a no-op when nothing new has completed. After a failure every later
// flush returns the same error without writing.
func (p *Processor) flush(ctx context.Context, r *run) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	if r.fatal != nil {
		return r.fatal
	}

	r.mu.Lock()
	if r.sinceFlush == 0 {
		r.mu.Unlock()
		return nil
	}
	snapshot := r.set.Sorted()
	ids := r.set.IDs()
	flushed := r.sinceFlush
	r.mu.Unlock()

	if err := p.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		r.fatal = &PersistenceError{Message: "flushing results", Cause: err}
		r.logger.Error("flush failed; halting run", "error", err)
		return r.fatal
	}

	now := p.opts.now()
	r.mu.Lock()
	r.sinceFlush -= flushed
	r.checkpoint.Advance(ids, now)
	done := r.done
	gaps := len(audit.Compare(r.sourceIDs, ids).Missing)
	r.mu.Unlock()

	r.logger.Info("results flushed", "stored", len(snapshot), "done", done, "pending", r.pending, "gaps", gaps)
	p.emit(r, ProgressEvent{
		Kind:    EventFlush,
		State:   StateProcessing,
		Message: fmt.Sprintf("flushed %d results", len(snapshot)),
		Done:    done,
		Pending: r.pending,
		Stored:  len(snapshot),
		Total:   len(r.sourceIDs),
		Gaps:    gaps,
	})
	return nil
}

// finish builds the summary, records the run and moves to StateDone.
// An empty status is derived from the gap audit.
func (p *Processor) finish(ctx context.Context, r *run, sourceIDs []types.ItemID, start time.Time, status RunStatus, err error) (Summary, error) {
	r.mu.Lock()
	report := audit.Compare(sourceIDs, r.set.IDs())
	succeeded, failed, byKind := r.set.Counts()
	reasons := make(map[string]int)
	for _, res := range r.set.Sorted() {
		if f, ok := res.Failure(); ok {
			reasons[reasonGroup(f)]++
		}
	}
	done := r.done
	r.mu.Unlock()

	if status == "" {
		status = RunIncomplete
		if report.Complete() {
			status = RunComplete
		}
	}

	summary := Summary{
		RunID:            r.id.String(),
		Status:           status,
		Total:            report.SourceCount,
		Succeeded:        succeeded,
		Failed:           failed,
		FailuresByKind:   byKind,
		FailureReasons:   reasons,
		Gaps:             report.Missing,
		Extra:            report.Extra,
		Pending:          r.pending,
		ProcessedThisRun: done,
		Elapsed:          p.opts.now().Sub(start),
	}

	if len(report.Missing) > 0 && status != RunFailed {
		r.logger.Warn("result store has gaps", "missing", len(report.Missing), "ranges", audit.FormatRanges(report.Missing))
	}
	p.recordFinish(ctx, r, summary)
	if status != RunInterrupted {
		p.setState(r, StateDone, fmt.Sprintf("run %s", status))
	}
	return summary, err
}

func (p *Processor) setState(r *run, state State, message string) {
	p.stateMu.Lock()
	p.state = state
	p.stateMu.Unlock()

	r.logger.Info("run state", "state", string(state), "detail", message)

	r.mu.Lock()
	done, stored := r.done, 0
	if r.set != nil {
		stored = r.set.Len()
	}
	r.mu.Unlock()

	p.emit(r, ProgressEvent{
		Kind:    EventState,
		State:   state,
		Message: message,
		Done:    done,
		Pending: r.pending,
		Stored:  stored,
	})
}

func (p *Processor) emit(r *run, event ProgressEvent) {
	if p.opts.OnProgress == nil {
		return
	}
	event.RunID = r.id.String()
	event.At = p.opts.now()

	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	p.opts.OnProgress(event)
}

func (p *Processor) recordStart(ctx context.Context, r *run) {
	if p.opts.Recorder == nil {
		return
	}
	if err := p.opts.Recorder.CreateRun(ctx, r.id); err != nil {
		r.logger.Warn("failed to record run start", "error", err)
	}
}

func (p *Processor) recordFinish(ctx context.Context, r *run, s Summary) {
	if p.opts.Recorder == nil {
		return
	}
	totals := db.RunTotals{
		SourceCount: s.Total,
		ResultCount: s.Succeeded + s.Failed,
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		Missing:     len(s.Gaps),
		Processed:   s.ProcessedThisRun,
	}
	if err := p.opts.Recorder.CompleteRun(context.WithoutCancel(ctx), r.id, string(s.Status), totals); err != nil {
		r.logger.Warn("failed to record run completion", "error", err)
	}
}

func failureKind(k retry.Kind) types.FailureKind {
	switch k {
	case retry.NotFound:
		return types.FailureNotFound
	case retry.Transient:
		return types.FailureTransient
	default:
		return types.FailurePermanent
	}
}

// groupSentinels are the error texts failure reasons are grouped under. Their
// wrapped detail, such as the request path, varies per item.
var groupSentinels = []error{
	metabase.ErrNotFound,
	metabase.ErrUnavailable,
	metabase.ErrTimeout,
	metabase.ErrRejected,
	llm.ErrContentBlocked,
	llm.ErrEmptyResponse,
	enrich.ErrInvalidResponse,
}

// reasonGroup returns the summary key for a failure: its kind plus the
// sentinel text when the reason carries one, otherwise the reason itself.
func reasonGroup(f types.Failure) string {
	for _, sentinel := range groupSentinels {
		if text := sentinel.Error(); strings.Contains(f.Reason, text) {
			return fmt.Sprintf("%s: %s", f.Kind, text)
		}
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}
