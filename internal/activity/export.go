package activity

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jonathan/report-context/internal/types"
)

// CSVHeader lists the activity export columns in order.
var CSVHeader = []string{
	"report_id",
	"report_name",
	"collection_name",
	"last_activity_at",
	"dashboard_count",
	"parameter_usage_count",
	"activity_score",
	"is_recently_used",
	"band",
}

// WriteCSV writes one row per record.
func WriteCSV(w io.Writer, records []types.ActivityRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range records {
		last := ""
		if r.LastActivityAt != nil {
			last = r.LastActivityAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			strconv.Itoa(int(r.ItemID)),
			r.Name,
			r.CollectionName,
			last,
			strconv.Itoa(r.DashboardCount),
			strconv.Itoa(r.ParameterUsageCount),
			strconv.Itoa(r.ActivityScore),
			strconv.FormatBool(r.IsRecentlyUsed),
			string(r.Band),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for item %d: %w", r.ItemID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

type document struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Window      string                 `json:"window"`
	Records     []types.ActivityRecord `json:"records"`
}

// WriteJSON writes records wrapped with the scoring time and window.
func WriteJSON(w io.Writer, records []types.ActivityRecord, generatedAt time.Time, window time.Duration) error {
	if records == nil {
		records = []types.ActivityRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(document{
		GeneratedAt: generatedAt.UTC(),
		Window:      window.String(),
		Records:     records,
	})
}
