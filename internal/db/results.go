package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ResultRow is one persisted processing result. Record holds the full JSON
// encoding of the result; the other columns exist for querying.
type ResultRow struct {
	ItemID      int
	Status      string
	Name        string
	Record      []byte
	ProcessedAt time.Time
}

// LoadResults returns every stored result ordered by item id.
func (db *DB) LoadResults(ctx context.Context) ([]ResultRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT item_id, status, name, record, processed_at
		 FROM processing_results ORDER BY item_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.ItemID, &r.Status, &r.Name, &r.Record, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return out, nil
}

// ReplaceResults swaps the stored set for rows in a single transaction.
// Concurrent readers see the old set until commit.
func (db *DB) ReplaceResults(ctx context.Context, rows []ResultRow) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM processing_results`); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"processing_results"},
		[]string{"item_id", "status", "name", "record", "processed_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.ItemID, r.Status, r.Name, r.Record, r.ProcessedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}
