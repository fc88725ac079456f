package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/report-context/internal/db"
	"github.com/jonathan/report-context/internal/types"
)

var testTime = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func success(id int) types.ProcessingResult {
	item := types.WorkItem{ID: types.ItemID(id), Name: "Report", SQL: "SELECT 1"}
	return types.NewSuccess(item, types.BusinessContext{
		BusinessQuestion: "How many?",
		PrimaryMetrics:   []string{"count", "sum"},
		KeyFilters:       []string{},
		FinalSummary:     "Counts things.",
		Model:            "gemini-2.5-flash",
	}, testTime)
}

func failure(id int, kind types.FailureKind) types.ProcessingResult {
	return types.NewFailure(types.WorkItem{ID: types.ItemID(id)}, kind, "not found", testTime)
}

func TestSet_MergeLastWriteWins(t *testing.T) {
	s := NewSet([]types.ProcessingResult{failure(2, types.FailureTransient), success(1)})
	s.Merge(success(2))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []types.ItemID{1, 2}, s.IDs())
	r, ok := s.Get(2)
	require.True(t, ok)
	assert.Equal(t, types.StatusSuccess, r.Status())
	assert.Empty(t, s.FailedIDs())
}

func TestSet_SortedAndCounts(t *testing.T) {
	s := NewSet([]types.ProcessingResult{
		success(5), failure(3, types.FailureNotFound), success(1), failure(4, types.FailurePermanent),
	})

	sorted := s.Sorted()
	require.Len(t, sorted, 4)
	assert.Equal(t, types.ItemID(1), sorted[0].ItemID)
	assert.Equal(t, types.ItemID(5), sorted[3].ItemID)
	assert.Equal(t, []types.ItemID{3, 4}, s.FailedIDs())

	ok, failed, byKind := s.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 2, failed)
	assert.Equal(t, map[types.FailureKind]int{types.FailureNotFound: 1, types.FailurePermanent: 1}, byKind)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "results.json"))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	store := NewFileStore(path)
	store.now = func() time.Time { return testTime }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []types.ProcessingResult{success(3), failure(1, types.FailureNotFound)}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ItemID(1), got[0].ItemID, "results are stored in id order")
	assert.Equal(t, types.StatusFailed, got[0].Status())
	out, ok := got[1].Output()
	require.True(t, ok)
	assert.Equal(t, []string{"count", "sum"}, out.PrimaryMetrics)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_SaveReplacesContent(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "results.json"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []types.ProcessingResult{success(1), success(2)}))
	require.NoError(t, store.Save(ctx, []types.ProcessingResult{success(1), success(2), success(3)}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestFileStore_CorruptFileIsError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"version": 1, "results": [`},
		{"wrong shape", `{"version": 1, "results": {"1": {}}}`},
		{"inconsistent record", `{"version": 1, "results": [{"item_id": 1, "status": "success", "error": {"kind": "permanent", "reason": "x"}, "processed_at": "2025-08-01T12:00:00Z"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := NewFileStore(path).Load(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)

			var storeErr *StoreError
			assert.ErrorAs(t, err, &storeErr)
		})
	}
}

func TestFileStore_FutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 9, "results": []}`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorContains(t, err, "unsupported version")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStore_SaveFailureKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")
	store := NewFileStore(path)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, []types.ProcessingResult{success(1)}))

	bad := types.ProcessingResult{ItemID: 2}
	err := store.Save(ctx, []types.ProcessingResult{success(1), bad})
	require.Error(t, err)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWriteFileAtomic_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := WriteFileAtomic(filepath.Join(blocker, "results.json"), []byte("{}"))
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []types.ProcessingResult{success(1), failure(2, types.FailureNotFound)}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, CSVHeader, records[0])

	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "How many?", records[1][4])
	assert.Equal(t, "count\nsum", records[1][5])
	assert.Equal(t, "success", records[1][9])

	assert.Equal(t, "2", records[2][0])
	assert.Equal(t, "failed", records[2][9])
	assert.Equal(t, "not_found", records[2][10])
	assert.Equal(t, "2025-08-01T12:00:00Z", records[2][12])
}

type fakeResultDB struct {
	rows    []db.ResultRow
	saveErr error
}

func (f *fakeResultDB) LoadResults(context.Context) ([]db.ResultRow, error) {
	return f.rows, nil
}

func (f *fakeResultDB) ReplaceResults(_ context.Context, rows []db.ResultRow) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.rows = rows
	return nil
}

func TestPostgresStore_RoundtripThroughRows(t *testing.T) {
	fake := &fakeResultDB{}
	store := NewPostgresStore(fake)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []types.ProcessingResult{success(1), failure(2, types.FailurePermanent)}))
	require.Len(t, fake.rows, 2)
	assert.Equal(t, "success", fake.rows[0].Status)
	assert.Equal(t, "Report", fake.rows[0].Name)
	assert.Equal(t, "failed", fake.rows[1].Status)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	f, ok := got[1].Failure()
	require.True(t, ok)
	assert.Equal(t, types.FailurePermanent, f.Kind)
}

func TestPostgresStore_Errors(t *testing.T) {
	fake := &fakeResultDB{saveErr: errors.New("connection reset")}
	store := NewPostgresStore(fake)

	err := store.Save(context.Background(), []types.ProcessingResult{success(1)})
	assert.ErrorContains(t, err, "connection reset")

	fake.rows = []db.ResultRow{{ItemID: 1, Record: []byte(`{"status": "bogus"}`)}}
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}
