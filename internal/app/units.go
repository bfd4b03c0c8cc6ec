package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/driftwatch/internal/cli"
	"horse.fit/driftwatch/internal/db"
)

func runUnits(args []string) int {
	fs := flag.NewFlagSet("units", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	companyID := fs.String("company", "", "Filter by company id")
	sourceType := fs.String("source-type", "", "Filter by source type")
	from := fs.String("from", "", "Start date YYYY-MM-DD (default: 30 days ago)")
	to := fs.String("to", defaultUTCDayString(), "End date YYYY-MM-DD inclusive")
	limit := fs.Int("limit", 50, "Maximum units to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

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

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	fromRaw := strings.TrimSpace(*from)
	if fromRaw == "" {
		fromRaw = defaultUTCDay().AddDate(0, 0, -30).Format("2006-01-02")
	}
	fromTime, toTime, err := parseUTCDateRange(fromRaw, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid date range: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := pool.ListUnits(ctx, db.UnitListOptions{
		CompanyID:  strings.TrimSpace(*companyID),
		SourceType: strings.TrimSpace(*sourceType),
		From:       fromTime,
		To:         toTime,
		Limit:      *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list units: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.UnitID),
			item.CompanyID,
			item.SourceType,
			truncateForTable(item.Source, 24),
			truncateForTable(item.Title, 48),
			item.Category,
			item.Language,
			fmt.Sprintf("%t", item.HasVector),
			formatUTCTimestamp(item.CreatedAt),
		})
	}
	if err := writeTable([]string{"id", "company", "source_type", "source", "title", "category", "lang", "embedded", "created"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
