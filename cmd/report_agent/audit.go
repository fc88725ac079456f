package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/report-context/internal/audit"
	"github.com/jonathan/report-context/internal/observability"
	"github.com/jonathan/report-context/internal/results"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare Metabase reports against the result store",
	Long:  "List the reports Metabase has that the result store lacks, and the stored results Metabase no longer lists. Exits non-zero when reports are missing.",
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e := newEnv(cfg, cmd.OutOrStdout())
	defer e.Close()

	client, err := e.metabaseClient()
	if err != nil {
		return err
	}
	store, _, err := e.store(ctx)
	if err != nil {
		return err
	}

	sourceIDs, err := client.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	stored, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load result store: %w", err)
	}

	report := audit.Compare(sourceIDs, results.NewSet(stored).IDs())
	observability.NewPrinter(e.out).PrintAudit(report)

	e.logger.Info("audit finished",
		"source", report.SourceCount,
		"stored", report.ResultCount,
		"missing", len(report.Missing),
		"extra", len(report.Extra))

	if !report.Complete() {
		return fmt.Errorf("%w: %d reports missing (%s)", errIncomplete, len(report.Missing), audit.FormatRanges(report.Missing))
	}
	return nil
}
