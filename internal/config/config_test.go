package config

import "testing"

func validConfig() Config {
	return Config{
		DatabaseURL:               "postgres://localhost/driftwatch",
		DBMinConns:                1,
		DBMaxConns:                8,
		EmbeddingDimensions:       1024,
		ScrapeConcurrency:         3,
		FailureThreshold:          5,
		SimhashTrivialThreshold:   0.95,
		SimhashMinorThreshold:     0.80,
		EmbeddingSimilarThreshold: 0.90,
		NearDuplicateThreshold:    0.97,
		FeedDedupWindowHours:      24,
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "  " }},
		{"min conns above max", func(c *Config) { c.DBMinConns = 10 }},
		{"zero max conns", func(c *Config) { c.DBMaxConns = 0 }},
		{"zero dimensions", func(c *Config) { c.EmbeddingDimensions = 0 }},
		{"zero concurrency", func(c *Config) { c.ScrapeConcurrency = 0 }},
		{"zero failure threshold", func(c *Config) { c.FailureThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.NearDuplicateThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.SimhashMinorThreshold = -0.1 }},
		{"minor above trivial", func(c *Config) { c.SimhashMinorThreshold = 0.99 }},
		{"zero feed window", func(c *Config) { c.FeedDedupWindowHours = 0 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
