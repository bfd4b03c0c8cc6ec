package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DW_DB_MAX_CONNS" default:"8"`

	EmbeddingProvider   string        `envconfig:"EMBEDDING_PROVIDER" default:"http"`
	EmbeddingEndpoint   string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModelName  string        `envconfig:"EMBEDDING_MODEL_NAME" default:"Qwen3-Embedding-8B"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1024"`
	EmbeddingTimeout    time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"45s"`

	EnrichmentProvider string        `envconfig:"ENRICHMENT_PROVIDER" default:"anthropic"`
	EnrichmentModel    string        `envconfig:"ENRICHMENT_MODEL" default:"claude-3-5-haiku-latest"`
	EnrichmentTimeout  time.Duration `envconfig:"ENRICHMENT_TIMEOUT" default:"60s"`

	FetchTimeout       time.Duration `envconfig:"FETCH_TIMEOUT" default:"12s"`
	FetchBodyByteLimit int64         `envconfig:"FETCH_BODY_BYTE_LIMIT" default:"2097152"`
	FetchUserAgent     string        `envconfig:"FETCH_USER_AGENT" default:""`
	FetchRatePerSecond float64       `envconfig:"FETCH_RATE_PER_SECOND" default:"2"`
	ScrapeConcurrency  int           `envconfig:"SCRAPE_CONCURRENCY" default:"3"`
	FailureThreshold   int           `envconfig:"RESOURCE_FAILURE_THRESHOLD" default:"5"`

	SimhashTrivialThreshold   float64 `envconfig:"SIMHASH_TRIVIAL_THRESHOLD" default:"0.95"`
	SimhashMinorThreshold     float64 `envconfig:"SIMHASH_MINOR_THRESHOLD" default:"0.80"`
	EmbeddingSimilarThreshold float64 `envconfig:"EMBEDDING_SIMILAR_THRESHOLD" default:"0.90"`
	NearDuplicateThreshold    float64 `envconfig:"NEAR_DUPLICATE_THRESHOLD" default:"0.97"`
	FeedDedupWindowHours      int     `envconfig:"FEED_DEDUP_WINDOW_HOURS" default:"24"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DW_DB_MIN_CONNS (%d) cannot exceed DW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.ScrapeConcurrency < 1 {
		return fmt.Errorf("SCRAPE_CONCURRENCY must be >= 1")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("RESOURCE_FAILURE_THRESHOLD must be >= 1")
	}
	if err := validateUnitThreshold("SIMHASH_TRIVIAL_THRESHOLD", c.SimhashTrivialThreshold); err != nil {
		return err
	}
	if err := validateUnitThreshold("SIMHASH_MINOR_THRESHOLD", c.SimhashMinorThreshold); err != nil {
		return err
	}
	if err := validateUnitThreshold("EMBEDDING_SIMILAR_THRESHOLD", c.EmbeddingSimilarThreshold); err != nil {
		return err
	}
	if err := validateUnitThreshold("NEAR_DUPLICATE_THRESHOLD", c.NearDuplicateThreshold); err != nil {
		return err
	}
	if c.SimhashMinorThreshold > c.SimhashTrivialThreshold {
		return fmt.Errorf("SIMHASH_MINOR_THRESHOLD (%f) cannot exceed SIMHASH_TRIVIAL_THRESHOLD (%f)", c.SimhashMinorThreshold, c.SimhashTrivialThreshold)
	}
	if c.FeedDedupWindowHours < 1 {
		return fmt.Errorf("FEED_DEDUP_WINDOW_HOURS must be >= 1")
	}
	return nil
}

func validateUnitThreshold(name string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be within [0,1], got %f", name, value)
	}
	return nil
}
