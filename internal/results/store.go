// Package results persists processing results. A store always holds the
// complete cumulative result set; every Save replaces it atomically.
package results

import (
	"context"

	"github.com/jonathan/report-context/internal/types"
)

// Store is a durable, atomically rewritten collection of results.
type Store interface {
	// Load returns every persisted result. A store that has never been
	// written yields an empty slice and no error.
	Load(ctx context.Context) ([]types.ProcessingResult, error)
	// Save replaces the persisted set with results. Readers observe either
	// the previous set or the new one, never a mix.
	Save(ctx context.Context, results []types.ProcessingResult) error
}
