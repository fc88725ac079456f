package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/report-context/internal/types"
)

// CSVHeader lists the export columns in order.
var CSVHeader = []string{
	"report_id",
	"report_name",
	"description",
	"sql_query",
	"business_question",
	"primary_metrics",
	"key_filters",
	"final_summary",
	"model",
	"status",
	"error_kind",
	"error_detail",
	"processed_at",
}

// WriteCSV writes one row per result. List fields are newline separated.
func WriteCSV(w io.Writer, results []types.ProcessingResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range results {
		row := []string{
			strconv.Itoa(int(r.ItemID)),
			r.Item.Name,
			r.Item.Description,
			r.Item.SQL,
			"", "", "", "", "",
			string(r.Status()),
			"", "",
			r.ProcessedAt.UTC().Format(time.RFC3339),
		}
		if out, ok := r.Output(); ok {
			row[4] = out.BusinessQuestion
			row[5] = strings.Join(out.PrimaryMetrics, "\n")
			row[6] = strings.Join(out.KeyFilters, "\n")
			row[7] = out.FinalSummary
			row[8] = out.Model
		}
		if f, ok := r.Failure(); ok {
			row[10] = string(f.Kind)
			row[11] = f.Reason
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for item %d: %w", r.ItemID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
