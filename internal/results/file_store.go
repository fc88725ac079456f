package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonathan/report-context/internal/schemas"
	"github.com/jonathan/report-context/internal/types"
)

// fileVersion is the results document format version.
const fileVersion = 1

type fileDocument struct {
	Version int                      `json:"version"`
	SavedAt time.Time                `json:"saved_at"`
	Results []types.ProcessingResult `json:"results"`
}

// FileStore keeps results in a single JSON document, replaced on every Save
// by writing a sibling temp file and renaming it over the original.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the document path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing file is an empty store; an unreadable
// or malformed one is an error so a run never silently starts from scratch.
func (s *FileStore) Load(_ context.Context) ([]types.ProcessingResult, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []types.ProcessingResult{}, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Cause: err}
	}

	if err := schemas.Validate(schemas.ResultsFile, data); err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Cause: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Cause: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	if doc.Version > fileVersion {
		return nil, &StoreError{Op: "load", Path: s.path, Cause: fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)}
	}
	if doc.Results == nil {
		doc.Results = []types.ProcessingResult{}
	}
	return doc.Results, nil
}

// Save atomically replaces the document with results, ordered by id.
func (s *FileStore) Save(_ context.Context, results []types.ProcessingResult) error {
	sorted := make([]types.ProcessingResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })

	data, err := json.MarshalIndent(fileDocument{
		Version: fileVersion,
		SavedAt: s.now().UTC(),
		Results: sorted,
	}, "", "  ")
	if err != nil {
		return &StoreError{Op: "encode", Path: s.path, Cause: err}
	}

	if err := WriteFileAtomic(s.path, data); err != nil {
		return &StoreError{Op: "save", Path: s.path, Cause: err}
	}
	return nil
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// and a rename, so readers see either the old content or the new.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
