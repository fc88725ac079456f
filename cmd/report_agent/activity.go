package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/report-context/internal/activity"
	"github.com/jonathan/report-context/internal/metabase"
	"github.com/jonathan/report-context/internal/observability"
	"github.com/jonathan/report-context/internal/retry"
	"github.com/jonathan/report-context/internal/types"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Score how actively each report is used",
	Long: `Fetch usage metadata for every report and derive an activity score and band.
A report queried inside the window, or placed on a dashboard, counts as
recently used. Scores are recomputed from scratch on every run.`,
	RunE: runActivity,
}

var (
	activityOutput     string
	activityFormat     string
	activityMinScore   int
	activityRecentOnly bool
	activityTop        int
)

func init() {
	activityCmd.Flags().StringVarP(&activityOutput, "out", "o", "activity.json", "Output path, or - for stdout")
	activityCmd.Flags().StringVar(&activityFormat, "format", "", "Output format: json or csv (default from the output extension)")
	activityCmd.Flags().IntVar(&activityMinScore, "min-score", 0, "Only write reports scoring at least this much")
	activityCmd.Flags().BoolVar(&activityRecentOnly, "recent-only", false, "Only write recently used reports")
	activityCmd.Flags().IntVar(&activityTop, "top", 10, "Number of most active reports in the summary")

	rootCmd.AddCommand(activityCmd)
}

func runActivity(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(activityFormat, activityOutput)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e := newEnv(cfg, cmd.OutOrStdout())
	defer e.Close()

	source, err := e.source(ctx)
	if err != nil {
		return err
	}

	ids, err := source.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	now := time.Now()
	window := cfg.ActivityWindow.Std()
	policy := e.retryPolicy()
	records := make([]types.ActivityRecord, 0, len(ids))
	for _, id := range ids {
		usage, err := fetchUsage(ctx, source, id, policy, e.logger)
		if errors.Is(err, metabase.ErrNotFound) {
			e.logger.Warn("report disappeared, skipping", "item_id", id)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch usage for report %d: %w", id, err)
		}
		records = append(records, activity.Score(*usage, now, window))
	}

	names, err := source.ListCollections(ctx)
	if err != nil {
		e.logger.Warn("could not list collections; names left unresolved", "error", err)
	}
	activity.NameCollections(records, names)

	printer := observability.NewPrinter(e.out)
	printer.PrintActivity(activity.Summarize(records, activityTop))

	selected := activity.Filter(records, activityMinScore, activityRecentOnly)
	var buf bytes.Buffer
	switch format {
	case "csv":
		err = activity.WriteCSV(&buf, selected)
	default:
		err = activity.WriteJSON(&buf, selected, now, window)
	}
	if err != nil {
		return err
	}
	if err := writeOutput(activityOutput, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", activityOutput, err)
	}

	e.logger.Info("activity scored", "reports", len(records), "written", len(selected), "out", activityOutput)
	return nil
}

// fetchUsage retries transient failures with the configured backoff.
func fetchUsage(ctx context.Context, source metabase.UsageSource, id types.ItemID, policy retry.Policy, logger *slog.Logger) (*types.Usage, error) {
	for attempt := 1; ; attempt++ {
		usage, err := source.FetchUsage(ctx, id)
		if err == nil {
			return usage, nil
		}

		kind := retry.Classify(err)
		decision := policy.Decide(attempt, kind)
		if !decision.Retry {
			return nil, err
		}
		logger.Debug("retrying usage fetch", "item_id", id, "attempt", attempt, "delay", decision.Delay, "error", err)
		if waitErr := retry.Wait(ctx, decision.Delay); waitErr != nil {
			return nil, waitErr
		}
	}
}

func outputFormat(format, path string) (string, error) {
	if format == "" {
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			return "csv", nil
		}
		return "json", nil
	}
	switch strings.ToLower(format) {
	case "json":
		return "json", nil
	case "csv":
		return "csv", nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or csv)", format)
	}
}
