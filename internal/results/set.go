package results

import (
	"sort"

	"github.com/jonathan/report-context/internal/types"
)

// Set holds at most one result per item id. It is not safe for concurrent use.
type Set struct {
	byID map[types.ItemID]types.ProcessingResult
}

// NewSet builds a set from persisted results. Later duplicates win.
func NewSet(results []types.ProcessingResult) *Set {
	s := &Set{byID: make(map[types.ItemID]types.ProcessingResult, len(results))}
	s.Merge(results...)
	return s
}

// Merge adds results, replacing any existing result for the same id.
func (s *Set) Merge(results ...types.ProcessingResult) {
	for _, r := range results {
		s.byID[r.ItemID] = r
	}
}

// Get returns the result for id.
func (s *Set) Get(id types.ItemID) (types.ProcessingResult, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Len returns the number of results.
func (s *Set) Len() int {
	return len(s.byID)
}

// IDs returns every id in ascending order.
func (s *Set) IDs() []types.ItemID {
	ids := make([]types.ItemID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	types.SortIDs(ids)
	return ids
}

// FailedIDs returns the ids of failed results in ascending order.
func (s *Set) FailedIDs() []types.ItemID {
	var ids []types.ItemID
	for id, r := range s.byID {
		if r.Status() == types.StatusFailed {
			ids = append(ids, id)
		}
	}
	types.SortIDs(ids)
	return ids
}

// Sorted returns the results ordered by id.
func (s *Set) Sorted() []types.ProcessingResult {
	out := make([]types.ProcessingResult, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Counts tallies successes, failures and failures by kind.
func (s *Set) Counts() (succeeded, failed int, byKind map[types.FailureKind]int) {
	byKind = make(map[types.FailureKind]int)
	for _, r := range s.byID {
		if f, ok := r.Failure(); ok {
			failed++
			byKind[f.Kind]++
			continue
		}
		succeeded++
	}
	return succeeded, failed, byKind
}
