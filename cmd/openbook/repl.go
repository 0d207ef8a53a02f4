package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/protocol"
)

// runRepl starts a reader and relays commands read from in. Answers are
// printed in the reader's own reply format.
func runRepl(args []string, in io.Reader, out io.Writer) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	grace := fs.Duration("grace", 0, "How long a shutdown waits before terminating the reader")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-query timeout")
	logLevel := fs.String("log-level", "error", "Log level (debug shows protocol traffic)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: openbook repl [--grace DURATION] <executable> [args...]")
		return 1
	}

	log.Setup(*logLevel, "text")

	r, err := book.OpenConfig(book.Config{
		Executable: fs.Arg(0),
		Args:       fs.Args()[1:],
		Grace:      *grace,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start reader: %v\n", err)
		return 1
	}
	defer r.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		directive, rest, _ := strings.Cut(line, " ")

		switch directive {
		case protocol.DirectiveFromFen:
			replQuery(r, rest, *timeout, out)
		case protocol.DirectiveQuit:
			return replShutdown(r.ShutdownGraceful, out)
		case protocol.DirectiveExit:
			return replShutdown(r.ShutdownHard, out)
		default:
			fmt.Fprintf(out, "error: unknown command %q (want fromfen, quit or exit)\n", directive)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
	}
	return replShutdown(r.ShutdownGraceful, out)
}

func replQuery(r *book.Reader, position string, timeout time.Duration, out io.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := r.Query(ctx, position)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		if errors.Is(err, protocol.ErrProcessTerminated) {
			if stderr := strings.TrimSpace(r.Stderr()); stderr != "" {
				fmt.Fprintf(out, "reader stderr:\n%s\n", stderr)
			}
		}
		return
	}
	fmt.Fprintf(out, "%s %d\n", protocol.HeaderPositionMoves, len(res.Edges))
	for _, e := range res.Edges {
		fmt.Fprintf(out, "%s %d\n", e.Move, e.Count)
	}
}

func replShutdown(shutdown func(context.Context) (int, error), out io.Writer) int {
	code, err := shutdown(context.Background())
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "exit code %d\n", code)
	return 0
}
