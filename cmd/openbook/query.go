package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/openbook/internal/assess"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/openings"
)

// queryTimeout bounds a CLI lookup, including reader startup.
const queryTimeout = 30 * time.Second

type queryOutput struct {
	*openings.Answer
	Assessment assess.Assessment `json:"assessment"`
}

func runQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	bookName := fs.String("book", "", "Book to query instead of the current one")
	jsonOut := fs.Bool("json", false, "Output the answer as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	position := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(position) == "" {
		fmt.Fprintln(os.Stderr, "Usage: openbook query [--config PATH] [--book NAME] [--json] <fen>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// Logs go to stdout; keep them out of the answer.
	log.Setup("error", cfg.Service.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	st, err := openStack(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open state: %v\n", err)
		return 1
	}
	defer st.shutdown()

	if *bookName != "" {
		if _, ok := cfg.Book(*bookName); !ok {
			fmt.Fprintf(os.Stderr, "Unknown book: %s\n", *bookName)
			return 1
		}
	}
	if err := st.startBook(ctx, *bookName); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start book reader: %v\n", err)
		return 1
	}

	ans, err := st.service.Lookup(ctx, position, "cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		if stderr := strings.TrimSpace(st.manager.Status().Stderr); stderr != "" {
			fmt.Fprintf(os.Stderr, "Reader stderr:\n%s\n", stderr)
		}
		return 1
	}

	out := queryOutput{
		Answer:     ans,
		Assessment: assess.Classify(ans.Result, cfg.Assessment.SidelineThreshold),
	}
	if *jsonOut {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	printAnswer(os.Stdout, out)
	return 0
}

func printAnswer(w io.Writer, out queryOutput) {
	fmt.Fprintf(w, "Book: %s (%s)\n", out.Book.Name, out.Source)
	if len(out.Result.Edges) == 0 {
		fmt.Fprintln(w, "No book moves.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MOVE\tCOUNT\tPERCENT\tLINE")
	for _, e := range out.Result.Edges {
		pct := 0
		if out.Assessment.Total > 0 {
			pct = e.Count * 100 / out.Assessment.Total
		}
		fmt.Fprintf(tw, "%s\t%d\t%d%%\t%s\n", e.Move, e.Count, pct, out.Assessment.Kind(e.Move))
	}
	_ = tw.Flush()
}

func runBooks(args []string) int {
	fs := flag.NewFlagSet("books", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(booksFromConfig(cfg.Books), "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tPATH\tDEFAULT")
	for _, b := range cfg.Books {
		def := ""
		if b.Name == cfg.DefaultBook {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Name, b.Label, b.Path, def)
	}
	_ = tw.Flush()
	return 0
}
