package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattjoyce/openbook/internal/config"
	"github.com/mattjoyce/openbook/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	reports, err := config.LockConfig(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	for _, report := range reports {
		if !isVerbose {
			break
		}
		fmt.Printf("Processing directory: %s\n", report.ConfigDir)
		for _, file := range report.Files {
			if file.Exists {
				fmt.Printf("  HASH %s: %s\n", file.Filename, file.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found (optional)\n", file.Filename)
		}
		if report.Written {
			fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
		} else {
			fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %d directory/ies (no files written):\n", len(reports))
	} else {
		fmt.Printf("Successfully locked configuration in %d directory/ies:\n", len(reports))
	}
	for _, report := range reports {
		fmt.Printf("  - %s\n", report.ConfigDir)
	}
	return 0
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: openbook config <action> [flags]

Actions:
  check   Validate the configuration against this machine
  lock    Write .checksums for every config file
`)
}

func printConfigCheckHelp() {
	fmt.Print(`Usage: openbook config check [--config PATH] [--strict] [--json]

Checks the reader executable, the book files, the state directory and the
API settings. Exits 1 on errors, and 2 on warnings with --strict.
`)
}

func printConfigLockHelp() {
	fmt.Print(`Usage: openbook config lock [--config PATH] [--dry-run] [-v]

Hashes the config file and its includes into a .checksums manifest next to
them. Loading fails if a locked file changes afterwards.
`)
}
