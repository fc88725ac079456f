package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/report-context/internal/results"
	"github.com/jonathan/report-context/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the result store as CSV",
	RunE:  runExport,
}

var (
	exportOutput     string
	exportFailedOnly bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "out", "o", "results.csv", "Output CSV path, or - for stdout")
	exportCmd.Flags().BoolVar(&exportFailedOnly, "failed-only", false, "Export only failed results")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e := newEnv(cfg, cmd.OutOrStdout())
	defer e.Close()

	store, _, err := e.store(ctx)
	if err != nil {
		return err
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load result store: %w", err)
	}

	set := results.NewSet(loaded)
	rows := set.Sorted()
	if exportFailedOnly {
		rows = make([]types.ProcessingResult, 0, len(rows))
		for _, id := range set.FailedIDs() {
			r, _ := set.Get(id)
			rows = append(rows, r)
		}
	}

	var buf bytes.Buffer
	if err := results.WriteCSV(&buf, rows); err != nil {
		return err
	}
	if err := writeOutput(exportOutput, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}

	if exportOutput != "-" {
		_, _ = fmt.Fprintf(e.out, "Exported %d results to %s\n", len(rows), exportOutput)
	}
	return nil
}
