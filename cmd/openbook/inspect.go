package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/openbook/internal/inspect"
	"github.com/mattjoyce/openbook/internal/storage"
)

func runInspect(args []string) int {
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")

	// The query id may come before or after the flags.
	var queryID string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && queryID == "" && !isFlagValue(remainingArgs) {
			queryID = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}

	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if queryID == "" {
		fmt.Fprintln(os.Stderr, "Usage: openbook inspect <query-id> [--config PATH] [--json]")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Reading only, so a running service keeps its lock.
	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	var report string
	if jsonOut {
		report, err = inspect.BuildJSONReport(context.Background(), db, queryID)
		report += "\n"
	} else {
		report, err = inspect.BuildReport(context.Background(), db, queryID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	fmt.Print(report)
	return 0
}

// isFlagValue reports whether the next argument belongs to the last flag
// seen, as in "--config PATH".
func isFlagValue(seen []string) bool {
	if len(seen) == 0 {
		return false
	}
	last := seen[len(seen)-1]
	return last == "--config" || last == "-config"
}

func printInspectHelp() {
	fmt.Print(`Usage: openbook inspect <query-id> [--config PATH] [--json]

Print the stored record of one lookup: its outcome, the cached answer for
its book and position, and the other lookups of that position.
`)
}
