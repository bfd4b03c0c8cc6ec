package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/driftwatch/internal/changedetect"
	"horse.fit/driftwatch/internal/config"
	"horse.fit/driftwatch/internal/db"
	"horse.fit/driftwatch/internal/embedding"
	"horse.fit/driftwatch/internal/enrich"
	"horse.fit/driftwatch/internal/ingest"
	"horse.fit/driftwatch/internal/novelty"
	"horse.fit/driftwatch/internal/scraper"
)

// buildEmbedder resolves the configured embedding provider through the
// registry. The local provider exists for development without a running
// embedding service.
func buildEmbedder(cfg *config.Config) (embedding.Provider, error) {
	registry := embedding.NewRegistry(embedding.DefaultProviderName)
	if err := registry.Register(embedding.NewHTTPProvider(embedding.HTTPOptions{
		Endpoint:       cfg.EmbeddingEndpoint,
		ModelName:      cfg.EmbeddingModelName,
		RequestTimeout: cfg.EmbeddingTimeout,
		Dimensions:     cfg.EmbeddingDimensions,
	})); err != nil {
		return nil, fmt.Errorf("register http embedding provider: %w", err)
	}
	if err := registry.Register(embedding.NewLocalProvider(cfg.EmbeddingDimensions)); err != nil {
		return nil, fmt.Errorf("register local embedding provider: %w", err)
	}

	provider, err := registry.Provider(cfg.EmbeddingProvider)
	if err != nil {
		return nil, fmt.Errorf("resolve embedding provider %q (available: %v): %w",
			cfg.EmbeddingProvider, registry.ProviderNames(), err)
	}
	return provider, nil
}

// buildGateway resolves the configured enrichment gateway.
func buildGateway(cfg *config.Config, logger zerolog.Logger) (enrich.Gateway, error) {
	switch cfg.EnrichmentProvider {
	case "", "anthropic":
		return enrich.NewAnthropicGateway(enrich.AnthropicOptions{
			Model:   cfg.EnrichmentModel,
			Timeout: cfg.EnrichmentTimeout,
		}, logger), nil
	case "noop":
		return enrich.NoopGateway{}, nil
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q (available: [anthropic noop])", cfg.EnrichmentProvider)
	}
}

// buildIngestor assembles the verification and storage pipeline.
func buildIngestor(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*ingest.Service, *novelty.Verifier, error) {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	classifier := changedetect.New(embedder, changedetect.Thresholds{
		SimhashTrivial:   cfg.SimhashTrivialThreshold,
		SimhashMinor:     cfg.SimhashMinorThreshold,
		EmbeddingSimilar: cfg.EmbeddingSimilarThreshold,
	}, logger)

	feedWindow := time.Duration(cfg.FeedDedupWindowHours) * time.Hour
	verifier := novelty.New(pool, classifier, feedWindow, logger)

	ingestor := ingest.NewService(pool, verifier, gateway, embedder, cfg.NearDuplicateThreshold, logger)
	return ingestor, verifier, nil
}

// buildMonitor assembles the web check pipeline on top of the ingestor.
func buildMonitor(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*scraper.Monitor, error) {
	ingestor, verifier, err := buildIngestor(cfg, pool, logger)
	if err != nil {
		return nil, err
	}

	fetcher := scraper.NewFetcher(scraper.FetchOptions{
		Timeout:       cfg.FetchTimeout,
		BodyByteLimit: cfg.FetchBodyByteLimit,
		UserAgent:     cfg.FetchUserAgent,
		RatePerSecond: cfg.FetchRatePerSecond,
	}, logger)

	return scraper.NewMonitor(pool, fetcher, verifier, ingestor, cfg.FailureThreshold, cfg.ScrapeConcurrency, logger), nil
}
