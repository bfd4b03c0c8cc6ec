package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/driftwatch/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	dayStart := defaultUTCDay()
	_, dayEnd := utcDayBounds(dayStart)

	stats, err := pool.QueryStoreStats(ctx, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query store stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	sourceRows := make([][]string, 0, len(stats.SourceTypes)+1)
	for _, row := range stats.SourceTypes {
		sourceRows = append(sourceRows, []string{
			row.SourceType,
			fmt.Sprintf("%d", row.Units),
			fmt.Sprintf("%d", row.Embedded),
		})
	}
	sourceRows = append(sourceRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.Totals.Units),
		"",
	})
	if err := writeTable([]string{"source_type", "units", "embedded"}, sourceRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render source type table: %v\n", err)
		return 1
	}

	fmt.Println()
	summaryRows := [][]string{
		{"resources", fmt.Sprintf("%d", stats.Totals.Resources)},
		{"active_resources", fmt.Sprintf("%d", stats.Totals.ActiveResources)},
		{"check_events", fmt.Sprintf("%d", stats.Totals.CheckEvents)},
		{"units_created_today", fmt.Sprintf("%d", stats.Throughput.UnitsCreatedToday)},
		{"checks_run_today", fmt.Sprintf("%d", stats.Throughput.ChecksRunToday)},
		{"pending_not_embedded", fmt.Sprintf("%d", stats.Throughput.PendingNotEmbedded)},
	}
	if err := writeTable([]string{"metric", "value"}, summaryRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render summary table: %v\n", err)
		return 1
	}
	return 0
}
