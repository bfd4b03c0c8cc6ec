package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "resources":
		return runResources(args[1:])
	case "check":
		return runCheck(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "units":
		return runUnits(args[1:])
	case "backfill":
		return runBackfill(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "driftwatch CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  driftwatch <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  submit     Submit one content payload through the pipeline")
	fmt.Fprintln(os.Stderr, "  resources  Manage monitored web resources")
	fmt.Fprintln(os.Stderr, "  check      Check monitored resources once")
	fmt.Fprintln(os.Stderr, "  watch      Check monitored resources on an interval")
	fmt.Fprintln(os.Stderr, "  units      List stored context units")
	fmt.Fprintln(os.Stderr, "  backfill   Generate embeddings for units missing one")
	fmt.Fprintln(os.Stderr, "  stats      Show store counters and daily throughput")
	fmt.Fprintln(os.Stderr, "  serve      Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"driftwatch <command> -h\" for command-specific flags.")
}
