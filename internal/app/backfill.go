package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/driftwatch/internal/cli"
	"horse.fit/driftwatch/internal/config"
	"horse.fit/driftwatch/internal/db"
	"horse.fit/driftwatch/internal/embedding"
	"horse.fit/driftwatch/internal/globaltime"
	"horse.fit/driftwatch/internal/logging"
)

func runBackfill(args []string) int {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	limit := fs.Int("limit", 100, "Maximum units to embed in this run")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build embedding provider: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	units, err := pool.SelectUnitsMissingEmbedding(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to select units: %v\n", err)
		return 1
	}
	if len(units) == 0 {
		fmt.Println("no units missing embeddings")
		return 0
	}

	embedded := 0
	failed := 0
	for _, unit := range units {
		input := backfillInput(unit)
		vector, err := embedder.Embed(ctx, input)
		if err != nil {
			failed++
			logger.Warn().Err(err).Int64("unit_id", unit.UnitID).Msg("embedding failed")
			continue
		}
		literal, err := embedding.ToVectorLiteral(vector, embedder.Dimensions())
		if err != nil {
			failed++
			logger.Warn().Err(err).Int64("unit_id", unit.UnitID).Msg("embedding has wrong shape")
			continue
		}
		updated, err := pool.SetUnitEmbedding(ctx, unit.UnitID, literal, embedder.Name(), globaltime.UTC())
		if err != nil {
			failed++
			logger.Warn().Err(err).Int64("unit_id", unit.UnitID).Msg("embedding write failed")
			continue
		}
		if updated {
			embedded++
		}
	}

	fmt.Printf("embedded %d of %d units (%d failed)\n", embedded, len(units), failed)
	if failed > 0 && embedded == 0 {
		return 1
	}
	return 0
}

func backfillInput(unit db.PendingEmbeddingUnit) string {
	parts := make([]string, 0, 3)
	if strings.TrimSpace(unit.Title) != "" {
		parts = append(parts, strings.TrimSpace(unit.Title))
	}
	if strings.TrimSpace(unit.Summary) != "" {
		parts = append(parts, strings.TrimSpace(unit.Summary))
	}
	if strings.TrimSpace(unit.RawText) != "" {
		parts = append(parts, strings.TrimSpace(unit.RawText))
	}
	joined := strings.Join(parts, "\n\n")
	runes := []rune(joined)
	if len(runes) > 8000 {
		joined = string(runes[:8000])
	}
	return joined
}
