// Package config loads application configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid config")

// Defaults.
const (
	DefaultMarketAPIURL    = "https://api.coingecko.com/api/v3"
	DefaultMarketCategory  = "decentralized-finance-defi"
	DefaultMarketPerPage   = 100
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultRefreshInterval = 15 * time.Minute
	DefaultPipelineTimeout = 30 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string
	LogFormat string // text | json

	// Data sources
	MarketAPIURL   string
	MarketAPIKey   string
	MarketCategory string
	MarketPerPage  int
	EthRPCURL      string // optional, latest block is skipped when empty

	// Storage
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool

	// Service
	HTTPAddr        string
	MetricsAddr     string
	RefreshInterval time.Duration
	PipelineTimeout time.Duration

	// Scoring and training
	ScoringConfigPath      string
	ClassifierMaxDepth     int
	ClassifierMinSamples   int
	ClassifierHoldoutEvery int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	env := &envReader{}

	cfg := &Config{
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:              getEnv("LOG_FORMAT", DefaultLogFormat),
		MarketAPIURL:           getEnv("MARKET_API_URL", DefaultMarketAPIURL),
		MarketAPIKey:           os.Getenv("MARKET_API_KEY"),
		MarketCategory:         getEnv("MARKET_CATEGORY", DefaultMarketCategory),
		MarketPerPage:          env.intVar("MARKET_PER_PAGE", DefaultMarketPerPage),
		EthRPCURL:              os.Getenv("ETH_RPC_URL"),
		PostgresDSN:            postgresDSN,
		ClickhouseDSN:          clickhouseDSN,
		UseMemory:              env.boolVar("USE_MEMORY", postgresDSN == ""),
		HTTPAddr:               getEnv("HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:            getEnv("METRICS_ADDR", DefaultMetricsAddr),
		RefreshInterval:        env.durationVar("REFRESH_INTERVAL", DefaultRefreshInterval),
		PipelineTimeout:        env.durationVar("PIPELINE_TIMEOUT", DefaultPipelineTimeout),
		ScoringConfigPath:      os.Getenv("SCORING_CONFIG"),
		ClassifierMaxDepth:     env.intVar("CLASSIFIER_MAX_DEPTH", 0),
		ClassifierMinSamples:   env.intVar("CLASSIFIER_MIN_SAMPLES", 2),
		ClassifierHoldoutEvery: env.intVar("CLASSIFIER_HOLDOUT_EVERY", 0),
	}

	if env.err != nil {
		return nil, env.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and required combinations.
func (c *Config) Validate() error {
	if c.MarketAPIURL == "" {
		return fmt.Errorf("%w: MARKET_API_URL is required", ErrInvalidConfig)
	}
	if c.MarketPerPage < 1 || c.MarketPerPage > 250 {
		return fmt.Errorf("%w: MARKET_PER_PAGE must be in [1, 250], got %d", ErrInvalidConfig, c.MarketPerPage)
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("%w: POSTGRES_DSN is required when USE_MEMORY=false", ErrInvalidConfig)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%w: REFRESH_INTERVAL must be positive", ErrInvalidConfig)
	}
	if c.PipelineTimeout <= 0 {
		return fmt.Errorf("%w: PIPELINE_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.ClassifierMaxDepth < 0 {
		return fmt.Errorf("%w: CLASSIFIER_MAX_DEPTH must be >= 0", ErrInvalidConfig)
	}
	if c.ClassifierMinSamples < 2 {
		return fmt.Errorf("%w: CLASSIFIER_MIN_SAMPLES must be >= 2", ErrInvalidConfig)
	}
	if c.ClassifierHoldoutEvery < 0 || c.ClassifierHoldoutEvery == 1 {
		return fmt.Errorf("%w: CLASSIFIER_HOLDOUT_EVERY must be 0 or >= 2", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be text or json", ErrInvalidConfig)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envReader parses typed variables and keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) fail(key, value, kind string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s=%q is not a valid %s: %v", ErrInvalidConfig, key, value, kind, err)
	}
}

func (r *envReader) intVar(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "integer", err)
		return fallback
	}
	return n
}

func (r *envReader) boolVar(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "boolean", err)
		return fallback
	}
	return b
}

func (r *envReader) durationVar(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "duration", err)
		return fallback
	}
	return d
}
