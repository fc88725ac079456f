package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/report-context/internal/cache"
	"github.com/jonathan/report-context/internal/config"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to Metabase and the optional backends",
	RunE:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, _ []string) error {
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
	email, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("metabase: %w", err)
	}
	_, _ = fmt.Fprintf(e.out, "Metabase: connected as %s\n", email)

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		defer func() { _ = rc.Close() }()
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		_, _ = fmt.Fprintln(e.out, "Cache: ok")
	}

	if cfg.Store == config.StorePostgres {
		if _, err := e.database(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(e.out, "Database: ok")
	}
	return nil
}
