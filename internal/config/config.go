// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store backends
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvMetabaseURL    = "METABASE_BASE_URL"
	EnvMetabaseAPIKey = "METABASE_API_KEY"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
	EnvGeminiModel    = "GEMINI_MODEL"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvRedisURL       = "REDIS_URL"
)

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values come from the environment or defaults.
type Config struct {
	// Connections
	MetabaseURL    string `json:"metabase_url,omitempty" yaml:"metabase_url,omitempty" validate:"omitempty,url"`
	MetabaseAPIKey string `json:"metabase_api_key,omitempty" yaml:"metabase_api_key,omitempty"`
	GeminiAPIKey   string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	GeminiModel    string `json:"gemini_model,omitempty" yaml:"gemini_model,omitempty"`
	DatabaseURL    string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	RedisURL       string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" validate:"omitempty,url"`

	// Storage
	Store     string `json:"store,omitempty" yaml:"store,omitempty" validate:"omitempty,oneof=file postgres"`
	StorePath string `json:"store_path,omitempty" yaml:"store_path,omitempty"`
	LogFile   string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	// Processing
	CheckpointInterval int      `json:"checkpoint_interval,omitempty" yaml:"checkpoint_interval,omitempty" validate:"gte=0,lte=10000"`
	Workers            int      `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0,lte=64"`
	MinCallDelay       Duration `json:"min_call_delay,omitempty" yaml:"min_call_delay,omitempty"`
	RequestTimeout     Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty" validate:"gte=0"`
	LLMTimeout         Duration `json:"llm_timeout,omitempty" yaml:"llm_timeout,omitempty" validate:"gte=0"`
	MaxAttempts        int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"gte=0,lte=20"`
	BaseDelay          Duration `json:"base_delay,omitempty" yaml:"base_delay,omitempty" validate:"gte=0"`
	MaxDelay           Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty" validate:"gte=0"`

	// Activity scoring and caching
	ActivityWindow Duration `json:"activity_window,omitempty" yaml:"activity_window,omitempty" validate:"gte=0"`
	CacheTTL       Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty" validate:"gte=0"`

	// MetricsFile, when set, receives run metrics in the Prometheus text format.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Store:              StoreFile,
		StorePath:          "results.json",
		LogFile:            "report_agent.log",
		CheckpointInterval: 10,
		Workers:            1,
		MinCallDelay:       Duration(1500 * time.Millisecond),
		RequestTimeout:     Duration(30 * time.Second),
		LLMTimeout:         Duration(60 * time.Second),
		MaxAttempts:        4,
		BaseDelay:          Duration(time.Second),
		MaxDelay:           Duration(30 * time.Second),
		ActivityWindow:     Duration(365 * 24 * time.Hour),
		CacheTTL:           Duration(24 * time.Hour),
	}
}

// LoadConfig loads configuration from a JSON file, or YAML when the file
// ends in .yaml or .yml. Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks field ranges and cross-field rules. Presence of credentials
// is checked by the commands that need them.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.Store == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'store' is postgres but no database_url is set")
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("config error: 'base_delay' exceeds 'max_delay'")
	}

	return nil
}

// ApplyEnv fills empty connection fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	fill := func(field *string, key string) {
		if *field != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*field = v
		}
	}

	fill(&c.MetabaseURL, EnvMetabaseURL)
	fill(&c.MetabaseAPIKey, EnvMetabaseAPIKey)
	fill(&c.GeminiAPIKey, EnvGeminiAPIKey)
	fill(&c.GeminiModel, EnvGeminiModel)
	fill(&c.DatabaseURL, EnvDatabaseURL)
	fill(&c.RedisURL, EnvRedisURL)
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	mergeString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	mergeInt := func(field *int, def int) {
		if *field == 0 {
			*field = def
		}
	}
	mergeDuration := func(field *Duration, def Duration) {
		if *field == 0 {
			*field = def
		}
	}

	mergeString(&result.MetabaseURL, defaults.MetabaseURL)
	mergeString(&result.MetabaseAPIKey, defaults.MetabaseAPIKey)
	mergeString(&result.GeminiAPIKey, defaults.GeminiAPIKey)
	mergeString(&result.GeminiModel, defaults.GeminiModel)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)
	mergeString(&result.RedisURL, defaults.RedisURL)
	mergeString(&result.Store, defaults.Store)
	mergeString(&result.StorePath, defaults.StorePath)
	mergeString(&result.LogFile, defaults.LogFile)
	mergeString(&result.MetricsFile, defaults.MetricsFile)

	mergeInt(&result.CheckpointInterval, defaults.CheckpointInterval)
	mergeInt(&result.Workers, defaults.Workers)
	mergeInt(&result.MaxAttempts, defaults.MaxAttempts)

	mergeDuration(&result.MinCallDelay, defaults.MinCallDelay)
	mergeDuration(&result.RequestTimeout, defaults.RequestTimeout)
	mergeDuration(&result.LLMTimeout, defaults.LLMTimeout)
	mergeDuration(&result.BaseDelay, defaults.BaseDelay)
	mergeDuration(&result.MaxDelay, defaults.MaxDelay)
	mergeDuration(&result.ActivityWindow, defaults.ActivityWindow)
	mergeDuration(&result.CacheTTL, defaults.CacheTTL)

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
