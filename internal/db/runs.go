package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Run is one processing session.
type Run struct {
	ID          uuid.UUID
	Status      string
	SourceCount int
	ResultCount int
	Succeeded   int
	Failed      int
	Missing     int
	Processed   int
	StartedAt   time.Time
	CompletedAt *time.Time
}

// RunTotals are the figures recorded when a run finishes.
type RunTotals struct {
	SourceCount int
	ResultCount int
	Succeeded   int
	Failed      int
	Missing     int
	Processed   int
}

// CreateRun records the start of a run.
func (db *DB) CreateRun(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO processing_runs (id, status) VALUES ($1, 'running')`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun records the final status and totals of a run.
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status string, totals RunTotals) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE processing_runs
		 SET status = $2, source_count = $3, result_count = $4, succeeded = $5,
		     failed = $6, missing = $7, processed = $8, completed_at = NOW()
		 WHERE id = $1`,
		runID, status, totals.SourceCount, totals.ResultCount, totals.Succeeded,
		totals.Failed, totals.Missing, totals.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. It returns nil when no such run exists.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	err := db.pool.QueryRow(ctx,
		`SELECT id, status, source_count, result_count, succeeded, failed, missing, processed, started_at, completed_at
		 FROM processing_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Status, &run.SourceCount, &run.ResultCount, &run.Succeeded,
		&run.Failed, &run.Missing, &run.Processed, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}
