package types

import (
	"sort"
	"time"
)

// RunCheckpoint is the fast-lookup index of ids whose results are durably
// stored. It is only advanced after a successful flush, so it never claims an
// id whose result has not been persisted.
type RunCheckpoint struct {
	ProcessedIDs map[ItemID]struct{}
	LastSavedAt  time.Time
}

// NewRunCheckpoint builds a checkpoint from the results already in the store.
func NewRunCheckpoint(persisted []ProcessingResult, savedAt time.Time) RunCheckpoint {
	cp := RunCheckpoint{
		ProcessedIDs: make(map[ItemID]struct{}, len(persisted)),
		LastSavedAt:  savedAt,
	}
	for _, r := range persisted {
		cp.ProcessedIDs[r.ItemID] = struct{}{}
	}
	return cp
}

// Has reports whether id has a persisted result.
func (c RunCheckpoint) Has(id ItemID) bool {
	_, ok := c.ProcessedIDs[id]
	return ok
}

// Advance records a successful flush of the given ids.
func (c *RunCheckpoint) Advance(ids []ItemID, savedAt time.Time) {
	if c.ProcessedIDs == nil {
		c.ProcessedIDs = make(map[ItemID]struct{}, len(ids))
	}
	for _, id := range ids {
		c.ProcessedIDs[id] = struct{}{}
	}
	c.LastSavedAt = savedAt
}

// Pending returns the distinct ids from source that have no persisted
// result, in ascending order.
func (c RunCheckpoint) Pending(source []ItemID) []ItemID {
	pending := make([]ItemID, 0, len(source))
	seen := make(map[ItemID]struct{}, len(source))
	for _, id := range source {
		if _, dup := seen[id]; dup || c.Has(id) {
			continue
		}
		seen[id] = struct{}{}
		pending = append(pending, id)
	}
	SortIDs(pending)
	return pending
}

// SortIDs sorts ids ascending in place.
func SortIDs(ids []ItemID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
