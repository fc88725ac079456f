package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/report-context/internal/config"
	"github.com/jonathan/report-context/internal/metabase"
	"github.com/jonathan/report-context/internal/retry"
	"github.com/jonathan/report-context/internal/types"
)

// newMetabaseServer serves two live cards: 1 sits on dashboards, 3 is idle.
func newMetabaseServer(t *testing.T) *httptest.Server {
	t.Helper()
	recent := time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/current", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"email": "reader@example.com"}`))
	})
	mux.HandleFunc("/api/card", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 3, "name": "Idle"}, {"id": 1, "name": "Revenue"}, {"id": 2, "name": "Old", "archived": true}]`))
	})
	mux.HandleFunc("/api/card/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"id": 1, "name": "Revenue", "collection_id": 7, "last_query_start": %q, "dashboard_count": 2, "parameter_usage_count": 1}`, recent)
	})
	mux.HandleFunc("/api/collection", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "root", "name": "Our analytics"}, {"id": 7, "name": "Finance"}]`))
	})
	mux.HandleFunc("/api/card/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 3, "name": "Idle", "dashboard_count": 0, "parameter_usage_count": 0}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setActivityFlags(t *testing.T, out string, minScore int, recentOnly bool) {
	t.Helper()
	prev := []any{activityOutput, activityFormat, activityMinScore, activityRecentOnly, activityTop}
	activityOutput, activityFormat, activityMinScore, activityRecentOnly, activityTop = out, "", minScore, recentOnly, 10
	t.Cleanup(func() {
		activityOutput = prev[0].(string)
		activityFormat = prev[1].(string)
		activityMinScore = prev[2].(int)
		activityRecentOnly = prev[3].(bool)
		activityTop = prev[4].(int)
	})
}

func TestRunActivity(t *testing.T) {
	clearEnv(t)
	server := newMetabaseServer(t)
	t.Setenv(config.EnvMetabaseURL, server.URL)
	t.Setenv(config.EnvMetabaseAPIKey, "test-key")

	outPath := filepath.Join(t.TempDir(), "activity.json")
	setActivityFlags(t, outPath, 0, false)

	cmd, out := newTestCommand(t)
	require.NoError(t, runActivity(cmd, nil))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var doc struct {
		Records []types.ActivityRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Records, 2)

	byID := map[types.ItemID]types.ActivityRecord{}
	for _, r := range doc.Records {
		byID[r.ItemID] = r
	}
	// 10 recent + 2 dashboards + 1 parameter
	assert.Equal(t, 13, byID[1].ActivityScore)
	assert.Equal(t, types.BandHigh, byID[1].Band)
	assert.True(t, byID[1].IsRecentlyUsed)
	assert.Equal(t, 0, byID[3].ActivityScore)
	assert.Equal(t, types.BandNone, byID[3].Band)
	assert.Equal(t, "Finance", byID[1].CollectionName)
	assert.Equal(t, "Root Collection", byID[3].CollectionName)

	assert.Contains(t, out.String(), "REPORT ACTIVITY")
}

func TestRunActivity_RecentOnlyCSV(t *testing.T) {
	clearEnv(t)
	server := newMetabaseServer(t)
	t.Setenv(config.EnvMetabaseURL, server.URL)
	t.Setenv(config.EnvMetabaseAPIKey, "test-key")

	outPath := filepath.Join(t.TempDir(), "activity.csv")
	setActivityFlags(t, outPath, 0, true)

	cmd, _ := newTestCommand(t)
	require.NoError(t, runActivity(cmd, nil))

	rows := readCSV(t, outPath)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "collection_name", rows[0][2])
	assert.Equal(t, "Finance", rows[1][2])
}

func TestRunAudit_ReportsGaps(t *testing.T) {
	clearEnv(t)
	server := newMetabaseServer(t)
	t.Setenv(config.EnvMetabaseURL, server.URL)
	t.Setenv(config.EnvMetabaseAPIKey, "test-key")

	// Store holds 1 and 2; Metabase lists 1 and 3
	storePath := filepath.Join(t.TempDir(), "results.json")
	seedStore(t, storePath)

	cmd, out := newTestCommand(t, "--store-path", storePath)
	err := runAudit(cmd, nil)
	require.ErrorIs(t, err, errIncomplete)
	assert.Contains(t, err.Error(), "1 reports missing (3)")
	assert.Contains(t, out.String(), "GAP AUDIT")
}

func TestRunPing(t *testing.T) {
	clearEnv(t)
	server := newMetabaseServer(t)
	t.Setenv(config.EnvMetabaseURL, server.URL)
	t.Setenv(config.EnvMetabaseAPIKey, "test-key")

	cmd, out := newTestCommand(t)
	require.NoError(t, runPing(cmd, nil))
	assert.Contains(t, out.String(), "connected as reader@example.com")
}

type flakyUsage struct {
	failures int
	calls    int
	err      error
}

func (f *flakyUsage) ListIDs(context.Context) ([]types.ItemID, error) {
	return nil, nil
}

func (f *flakyUsage) FetchUsage(_ context.Context, id types.ItemID) (*types.Usage, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &types.Usage{ItemID: id}, nil
}

func TestFetchUsage_Retries(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	src := &flakyUsage{failures: 2, err: metabase.ErrUnavailable}
	usage, err := fetchUsage(t.Context(), src, 7, policy, logger)
	require.NoError(t, err)
	assert.Equal(t, types.ItemID(7), usage.ItemID)
	assert.Equal(t, 3, src.calls)

	src = &flakyUsage{failures: 5, err: metabase.ErrUnavailable}
	_, err = fetchUsage(t.Context(), src, 7, policy, logger)
	assert.ErrorIs(t, err, metabase.ErrUnavailable)
	assert.Equal(t, 3, src.calls)

	src = &flakyUsage{failures: 1, err: metabase.ErrNotFound}
	_, err = fetchUsage(t.Context(), src, 7, policy, logger)
	assert.ErrorIs(t, err, metabase.ErrNotFound)
	assert.Equal(t, 1, src.calls)
}
