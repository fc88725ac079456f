package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jonathan/report-context/internal/cache"
	"github.com/jonathan/report-context/internal/config"
	"github.com/jonathan/report-context/internal/db"
	"github.com/jonathan/report-context/internal/enrich"
	"github.com/jonathan/report-context/internal/llm"
	"github.com/jonathan/report-context/internal/metabase"
	"github.com/jonathan/report-context/internal/results"
	"github.com/jonathan/report-context/internal/retry"
)

var (
	flagConfigPath  string
	flagVerbose     bool
	flagStore       string
	flagStorePath   string
	flagDatabaseURL string
	flagLogFile     string
	flagNoColor     bool
)

func addPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&flagConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "Print per-report progress and debug logs")
	flags.StringVar(&flagStore, "store", "", "Result store backend: file or postgres (default file)")
	flags.StringVar(&flagStorePath, "store-path", "", "Path of the JSON result file (default results.json)")
	flags.StringVar(&flagDatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	flags.StringVar(&flagLogFile, "log-file", "", "Path of the JSON log file (default report_agent.log)")
	flags.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
}

// loadConfig merges the config file, explicitly set flags, the environment
// and the defaults, in that order of priority.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if flagConfigPath != "" {
		loaded, err := config.LoadConfig(flagConfigPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	if flagNoColor {
		color.NoColor = true
	}

	// Only override if the flag was explicitly set
	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = flagVerbose
	}
	if flags.Changed("store") {
		cfg.Store = flagStore
	}
	if flags.Changed("store-path") {
		cfg.StorePath = flagStorePath
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flags.Changed("log-file") {
		cfg.LogFile = flagLogFile
	}

	cfg.ApplyEnv(nil)
	cfg = cfg.MergeWithDefaults(config.Defaults())

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// env holds what every command needs once configuration is resolved.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func() error
}

func newEnv(cfg config.Config, out io.Writer) *env {
	logger, cleanup := config.SetupLogger(cfg.LogFile, config.LogLevel(cfg.Verbose))
	return &env{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		closers: []func() error{cleanup},
	}
}

func (e *env) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("cleanup failed", "error", err)
		}
	}
	e.closers = nil
}

func (e *env) metabaseClient() (*metabase.Client, error) {
	if e.cfg.MetabaseURL == "" {
		return nil, fmt.Errorf("%s environment variable or metabase_url config is required", config.EnvMetabaseURL)
	}
	if e.cfg.MetabaseAPIKey == "" {
		return nil, fmt.Errorf("%s environment variable or metabase_api_key config is required", config.EnvMetabaseAPIKey)
	}

	opts := metabase.DefaultOptions()
	opts.Timeout = e.cfg.RequestTimeout.Std()
	opts.Logger = e.logger
	return metabase.NewClient(e.cfg.MetabaseURL, e.cfg.MetabaseAPIKey, opts)
}

// sourceWithUsage is satisfied by both the plain and the cached Metabase source.
type sourceWithUsage interface {
	metabase.Source
	metabase.UsageSource
	ListCollections(ctx context.Context) (map[int]string, error)
}

// source returns the Metabase source, fronted by Redis when a cache URL is set.
// An unreachable cache is logged and skipped.
func (e *env) source(ctx context.Context) (sourceWithUsage, error) {
	client, err := e.metabaseClient()
	if err != nil {
		return nil, err
	}
	if e.cfg.RedisURL == "" {
		return client, nil
	}

	rc, err := cache.NewRedisCache(e.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		e.logger.Warn("cache unreachable, fetching details directly", "error", err)
		_ = rc.Close()
		return client, nil
	}
	e.onClose(rc.Close)

	return metabase.NewCachedSource(client, rc, e.cfg.CacheTTL.Std()), nil
}

// database connects to Postgres and creates the tables when missing.
func (e *env) database(ctx context.Context) (*db.DB, error) {
	if e.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%s environment variable or --db-url flag is required", config.EnvDatabaseURL)
	}

	database, err := db.Connect(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to prepare database: %w", err)
	}
	e.onClose(func() error {
		database.Close()
		return nil
	})
	return database, nil
}

// store opens the configured result store. The database is returned too when
// the backend is postgres so callers can record run history.
func (e *env) store(ctx context.Context) (results.Store, *db.DB, error) {
	switch e.cfg.Store {
	case config.StorePostgres:
		database, err := e.database(ctx)
		if err != nil {
			return nil, nil, err
		}
		return results.NewPostgresStore(database), database, nil
	case config.StoreFile, "":
		return results.NewFileStore(e.cfg.StorePath), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", e.cfg.Store)
	}
}

func (e *env) enricher(ctx context.Context) (enrich.Enricher, error) {
	if e.cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%s environment variable or gemini_api_key config is required", config.EnvGeminiAPIKey)
	}

	llmConfig := llm.DefaultConfig()
	if e.cfg.GeminiModel != "" {
		llmConfig = llmConfig.WithModel(llm.TierStandard, e.cfg.GeminiModel)
	}

	client, err := llm.NewClient(ctx, llmConfig, e.cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	e.onClose(client.Close)

	return enrich.NewGeminiEnricher(client), nil
}

func (e *env) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: e.cfg.MaxAttempts,
		BaseDelay:   e.cfg.BaseDelay.Std(),
		MaxDelay:    e.cfg.MaxDelay.Std(),
	}
}

// errIncomplete marks a command that ran correctly but found gaps.
var errIncomplete = errors.New("results are incomplete")

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return results.WriteFileAtomic(path, data)
}
