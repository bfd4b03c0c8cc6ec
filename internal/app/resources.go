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
	"horse.fit/driftwatch/internal/globaltime"
)

func runResources(args []string) int {
	if len(args) == 0 {
		printResourcesUsage()
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printResourcesUsage()
		return 0
	case "add":
		return runResourcesAdd(args[1:])
	case "list":
		return runResourcesList(args[1:])
	case "activate":
		return runResourcesSetStatus(args[1:], "active")
	case "suspend":
		return runResourcesSetStatus(args[1:], "suspended")
	default:
		fmt.Fprintf(os.Stderr, "unknown resources action: %s\n\n", args[0])
		printResourcesUsage()
		return 2
	}
}

func printResourcesUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  driftwatch resources add --company <id> --url <url> [--source <name>] [--kind article|index]")
	fmt.Fprintln(os.Stderr, "  driftwatch resources list [--limit N] [--format table|json]")
	fmt.Fprintln(os.Stderr, "  driftwatch resources activate --id <resource_id>")
	fmt.Fprintln(os.Stderr, "  driftwatch resources suspend --id <resource_id>")
}

func runResourcesAdd(args []string) int {
	fs := flag.NewFlagSet("resources add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	companyID := fs.String("company", "", "Company the resource belongs to")
	source := fs.String("source", "web", "Source label")
	url := fs.String("url", "", "URL to monitor")
	kind := fs.String("kind", "article", "Resource kind: article or index")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*companyID) == "" || strings.TrimSpace(*url) == "" {
		fmt.Fprintln(os.Stderr, "--company and --url are required")
		return 2
	}
	if *kind != "article" && *kind != "index" {
		fmt.Fprintln(os.Stderr, "--kind must be article or index")
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	row, err := pool.UpsertResource(ctx, db.UpsertResourceParams{
		CompanyID: strings.TrimSpace(*companyID),
		Source:    strings.TrimSpace(*source),
		URL:       strings.TrimSpace(*url),
		Kind:      *kind,
	}, globaltime.UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to add resource: %v\n", err)
		return 1
	}

	fmt.Printf("resource %d (%s) registered: %s\n", row.ResourceID, row.Kind, row.URL)
	return 0
}

func runResourcesList(args []string) int {
	fs := flag.NewFlagSet("resources list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 100, "Maximum resources to list")
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

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	rows, err := pool.ListActiveResources(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list resources: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		lastChecked := ""
		if row.LastCheckedAt != nil {
			lastChecked = formatUTCTimestamp(*row.LastCheckedAt)
		}
		tableRows = append(tableRows, []string{
			fmt.Sprintf("%d", row.ResourceID),
			row.CompanyID,
			row.Kind,
			truncateForTable(row.URL, 64),
			row.Status,
			fmt.Sprintf("%d", row.ConsecutiveFailures),
			lastChecked,
		})
	}
	if err := writeTable([]string{"id", "company", "kind", "url", "status", "failures", "last_checked"}, tableRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runResourcesSetStatus(args []string, status string) int {
	fs := flag.NewFlagSet("resources "+status, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	resourceID := fs.Int64("id", 0, "Resource id")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *resourceID <= 0 {
		fmt.Fprintln(os.Stderr, "--id must be a positive resource id")
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	if err := pool.SetResourceStatus(ctx, *resourceID, status, globaltime.UTC()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to update resource: %v\n", err)
		return 1
	}

	fmt.Printf("resource %d set to %s\n", *resourceID, status)
	return 0
}
