package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/openbook/internal/tui/watch"
)

// EnvAPIKey supplies the watch bearer token when --api-key is not given.
const EnvAPIKey = "OPENBOOK_API_KEY"

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8080", "openbook API URL")
	apiKey := fs.String("api-key", os.Getenv(EnvAPIKey), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func printWatchHelp() {
	fmt.Println("Usage: openbook watch [flags]")
	fmt.Println()
	fmt.Println("Live view of a running openbook: reader status, lookups per book,")
	fmt.Println("reader restarts and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    openbook API URL (default: http://127.0.0.1:8080)")
	fmt.Println("  --api-key KEY    Bearer token with events:ro (or OPENBOOK_API_KEY)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Select book")
	fmt.Println("  PgUp/PgDn        Scroll events")
}
