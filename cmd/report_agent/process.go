package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/report-context/internal/audit"
	"github.com/jonathan/report-context/internal/observability"
	"github.com/jonathan/report-context/internal/processor"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Describe every report that has no stored result",
	Long: `Enumerate Metabase reports, skip those already in the result store and ask
Gemini for the business context of the rest. Results are checkpointed every
--checkpoint-interval reports, and on Ctrl-C the completed ones are flushed
before exiting so the next run resumes where this one stopped.`,
	RunE: runProcess,
}

var (
	processReprocessFailed    bool
	processLimit              int
	processWorkers            int
	processCheckpointInterval int
	processMetricsFile        string
)

func init() {
	processCmd.Flags().BoolVar(&processReprocessFailed, "reprocess-failed", false, "Retry reports whose stored result is a failure")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Process at most this many pending reports (0 means all)")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "Number of reports processed concurrently (default 1)")
	processCmd.Flags().IntVar(&processCheckpointInterval, "checkpoint-interval", 0, "Completed reports between checkpoints (default 10)")
	processCmd.Flags().StringVar(&processMetricsFile, "metrics-file", "", "Write run metrics to this file in the Prometheus text format")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = processWorkers
	}
	if cmd.Flags().Changed("checkpoint-interval") {
		cfg.CheckpointInterval = processCheckpointInterval
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.MetricsFile = processMetricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := newEnv(cfg, cmd.OutOrStdout())
	defer e.Close()

	source, err := e.source(ctx)
	if err != nil {
		return err
	}
	enricher, err := e.enricher(ctx)
	if err != nil {
		return err
	}
	store, database, err := e.store(ctx)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(e.out).WithVerbose(cfg.Verbose)
	metrics := observability.NewMetrics()
	opts := processor.Options{
		CheckpointInterval: cfg.CheckpointInterval,
		Workers:            cfg.Workers,
		MinCallDelay:       cfg.MinCallDelay.Std(),
		RequestTimeout:     cfg.RequestTimeout.Std(),
		EnrichTimeout:      cfg.LLMTimeout.Std(),
		Retry:              e.retryPolicy(),
		ReprocessFailed:    processReprocessFailed,
		Limit:              processLimit,
		Logger:             e.logger,
		OnProgress: func(event processor.ProgressEvent) {
			printer.PrintProgress(event)
			metrics.Observe(event)
		},
	}
	if database != nil {
		opts.Recorder = database
	}

	summary, runErr := processor.New(source, enricher, store, opts).Run(ctx)
	printer.PrintSummary(summary)

	metrics.ObserveSummary(summary)
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			e.logger.Warn("failed to write metrics", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if summary.Status != processor.RunComplete {
		return fmt.Errorf("%w: %d reports missing (%s)", errIncomplete, len(summary.Gaps), audit.FormatRanges(summary.Gaps))
	}
	return nil
}
