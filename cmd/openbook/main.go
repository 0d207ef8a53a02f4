package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/openbook/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "query":
		if hasHelpFlag(args) {
			printQueryHelp()
			return 0
		}
		return runQuery(args)
	case "repl":
		if hasHelpFlag(args) {
			printReplHelp()
			return 0
		}
		return runRepl(args, os.Stdin, os.Stdout)
	case "books":
		return runBooks(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "inspect":
		if hasHelpFlag(args) {
			printInspectHelp()
			return 0
		}
		return runInspect(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: openbook version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("openbook %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// loadConfig loads configPath, discovering it when empty.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, fmt.Errorf("discover config: %w", err)
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`openbook - opening book lookups over a book reader subprocess

Usage:
  openbook <command> [flags]

Commands:
  serve             Run the HTTP API in the foreground
  query <fen>       Look up a position and print its book moves
  repl <exe> [args] Drive a book reader interactively
  books             List configured books
  watch             Live TUI over a running service's API
  inspect <id>      Show the stored record of one lookup

Config Commands:
  config check      Validate configuration against this machine
  config lock       Write integrity hashes for the config files

General:
  version           Show version information
  help              Show this help message

Use 'openbook <command> --help' for command flags.
`)
}

func printServeHelp() {
	fmt.Print(`Usage: openbook serve [--config PATH]

Starts the book reader for the default (or last selected) book, the
maintenance scheduler and, if api.enabled, the HTTP API. Stops on SIGINT or
SIGTERM after shutting the reader down.
`)
}

func printQueryHelp() {
	fmt.Print(`Usage: openbook query [--config PATH] [--book NAME] [--json] <fen>

Prints the book continuations of the position with their counts, and
which are mainline or sideline. The FEN may be given as several arguments.
`)
}

func printReplHelp() {
	fmt.Print(`Usage: openbook repl [--grace DURATION] <executable> [args...]

Starts the reader and reads commands from stdin:
  fromfen <fen>   query a position
  quit            graceful shutdown, prints the exit code
  exit            hard shutdown, prints the exit code
End of input behaves like quit.
`)
}
