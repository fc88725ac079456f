// Package main provides the entry point for the report_agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "report_agent",
	Short: "Describe Metabase reports with business context",
	Long: `report_agent reads saved questions from Metabase (read-only), asks Gemini for a
business-context description of each one and checkpoints the results so an
interrupted run resumes where it stopped. It can also audit the stored results
for gaps and score report activity.`,
	SilenceUsage: true,
}

func init() {
	addPersistentFlags(rootCmd)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
