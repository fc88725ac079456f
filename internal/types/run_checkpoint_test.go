package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRunCheckpoint_DerivesIDsFromStore(t *testing.T) {
	persisted := []ProcessingResult{
		NewFailure(WorkItem{ID: 2}, FailureNotFound, "not found", testTime),
		NewFailure(WorkItem{ID: 1}, FailureNotFound, "not found", testTime),
	}

	cp := NewRunCheckpoint(persisted, testTime)
	assert.True(t, cp.Has(1))
	assert.True(t, cp.Has(2))
	assert.False(t, cp.Has(3))
	assert.Equal(t, testTime, cp.LastSavedAt)
}

func TestRunCheckpoint_PendingIsSortedDifference(t *testing.T) {
	cp := NewRunCheckpoint([]ProcessingResult{
		NewFailure(WorkItem{ID: 3}, FailureNotFound, "not found", testTime),
	}, testTime)

	pending := cp.Pending([]ItemID{5, 3, 1, 4})
	assert.Equal(t, []ItemID{1, 4, 5}, pending)
}

func TestRunCheckpoint_PendingDropsDuplicates(t *testing.T) {
	var cp RunCheckpoint
	assert.Equal(t, []ItemID{1, 2, 4}, cp.Pending([]ItemID{4, 2, 1, 2, 4}))
}

func TestRunCheckpoint_Advance(t *testing.T) {
	var cp RunCheckpoint
	later := testTime.Add(time.Minute)

	cp.Advance([]ItemID{10, 11}, later)
	assert.True(t, cp.Has(10))
	assert.True(t, cp.Has(11))
	assert.Equal(t, later, cp.LastSavedAt)
}
