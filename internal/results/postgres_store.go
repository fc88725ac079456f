package results

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/report-context/internal/db"
	"github.com/jonathan/report-context/internal/types"
)

// ResultDB is the subset of db.DB the Postgres store needs.
type ResultDB interface {
	LoadResults(ctx context.Context) ([]db.ResultRow, error)
	ReplaceResults(ctx context.Context, rows []db.ResultRow) error
}

// PostgresStore keeps results in the processing_results table. Each Save
// replaces the table contents in one transaction.
type PostgresStore struct {
	db ResultDB
}

// NewPostgresStore creates a store on top of database.
func NewPostgresStore(database ResultDB) *PostgresStore {
	return &PostgresStore{db: database}
}

// Load reads every row. An empty table is an empty store.
func (s *PostgresStore) Load(ctx context.Context) ([]types.ProcessingResult, error) {
	rows, err := s.db.LoadResults(ctx)
	if err != nil {
		return nil, &StoreError{Op: "load", Path: "postgres", Cause: err}
	}

	out := make([]types.ProcessingResult, 0, len(rows))
	for _, row := range rows {
		var r types.ProcessingResult
		if err := json.Unmarshal(row.Record, &r); err != nil {
			return nil, &StoreError{Op: "load", Path: "postgres", Cause: fmt.Errorf("%w: item %d: %v", ErrCorrupt, row.ItemID, err)}
		}
		out = append(out, r)
	}
	return out, nil
}

// Save replaces the table contents with results.
func (s *PostgresStore) Save(ctx context.Context, results []types.ProcessingResult) error {
	rows := make([]db.ResultRow, 0, len(results))
	for _, r := range results {
		record, err := json.Marshal(r)
		if err != nil {
			return &StoreError{Op: "encode", Path: "postgres", Cause: err}
		}
		rows = append(rows, db.ResultRow{
			ItemID:      int(r.ItemID),
			Status:      string(r.Status()),
			Name:        r.Item.Name,
			Record:      record,
			ProcessedAt: r.ProcessedAt,
		})
	}

	if err := s.db.ReplaceResults(ctx, rows); err != nil {
		return &StoreError{Op: "save", Path: "postgres", Cause: err}
	}
	return nil
}
