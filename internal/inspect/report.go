// Package inspect builds a diagnostic report for one logged lookup: the log
// entry, the cached answer it produced and the other lookups of the same
// position.
package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/openbook/internal/protocol"
	"github.com/mattjoyce/openbook/internal/querylog"
)

// historyLimit bounds the related lookups listed in a report.
const historyLimit = 20

// Report is the structured JSON representation of a query report.
type Report struct {
	Entry    querylog.Entry   `json:"entry"`
	Duration string           `json:"duration"`
	Cache    *CacheEntry      `json:"cache,omitempty"`
	History  []querylog.Entry `json:"history"`
}

// CacheEntry is the cached answer for the entry's book and position.
type CacheEntry struct {
	Book      string          `json:"book"`
	Moves     []protocol.Edge `json:"moves"`
	Hits      int             `json:"hits"`
	CreatedAt string          `json:"created_at"`
	ExpiresAt string          `json:"expires_at,omitempty"`
}

// BuildReport renders a terminal-friendly report for a query.
func BuildReport(ctx context.Context, db *sql.DB, queryID string) (string, error) {
	report, err := gatherReportData(ctx, db, queryID)
	if err != nil {
		return "", err
	}
	e := report.Entry

	var out strings.Builder
	fmt.Fprintf(&out, "Query Report\n")
	fmt.Fprintf(&out, "Query ID     : %s\n", e.ID)
	fmt.Fprintf(&out, "Book         : %s\n", e.Book)
	fmt.Fprintf(&out, "Fingerprint  : %s\n", renderUnset(e.Fingerprint, "<none>"))
	fmt.Fprintf(&out, "Position     : %s\n", e.Position)
	fmt.Fprintf(&out, "Status       : %s\n", e.Status)
	fmt.Fprintf(&out, "Source       : %s\n", e.Source)
	fmt.Fprintf(&out, "Submitted by : %s\n", e.SubmittedBy)
	fmt.Fprintf(&out, "Completed    : %s (%s)\n", e.CompletedAt.Format(time.RFC3339), report.Duration)
	if e.BestMove != nil {
		fmt.Fprintf(&out, "Best move    : %s of %d\n", *e.BestMove, e.EdgeCount)
	}
	if e.LastError != nil {
		fmt.Fprintf(&out, "Error        : %s\n", *e.LastError)
	}
	if e.Stderr != nil && strings.TrimSpace(*e.Stderr) != "" {
		fmt.Fprintf(&out, "Reader stderr:\n")
		for _, line := range strings.Split(strings.TrimRight(*e.Stderr, "\n"), "\n") {
			fmt.Fprintf(&out, "  | %s\n", line)
		}
	}
	fmt.Fprintf(&out, "\n")

	if c := report.Cache; c != nil {
		fmt.Fprintf(&out, "Cached answer (%d hits, stored %s", c.Hits, c.CreatedAt)
		if c.ExpiresAt != "" {
			fmt.Fprintf(&out, ", expires %s", c.ExpiresAt)
		}
		fmt.Fprintf(&out, ")\n")
		if len(c.Moves) == 0 {
			fmt.Fprintf(&out, "  <no book moves>\n")
		}
		for _, m := range c.Moves {
			fmt.Fprintf(&out, "  %-6s %d\n", m.Move, m.Count)
		}
	} else {
		fmt.Fprintf(&out, "Cached answer: <none>\n")
	}
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Lookups of this position: %d\n", len(report.History))
	for _, h := range report.History {
		marker := " "
		if h.ID == e.ID {
			marker = "*"
		}
		fmt.Fprintf(&out, " %s %s  %-12s %-9s %-6s %s\n",
			marker, h.CompletedAt.Format(time.RFC3339), h.Book, h.Status, h.Source, h.SubmittedBy)
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON report.
func BuildJSONReport(ctx context.Context, db *sql.DB, queryID string) (string, error) {
	report, err := gatherReportData(ctx, db, queryID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, queryID string) (*Report, error) {
	if strings.TrimSpace(queryID) == "" {
		return nil, fmt.Errorf("query_id is required")
	}

	log := querylog.New(db)
	entry, err := log.Get(ctx, queryID)
	if errors.Is(err, querylog.ErrEntryNotFound) {
		return nil, fmt.Errorf("query %q not found", queryID)
	}
	if err != nil {
		return nil, err
	}

	report := &Report{
		Entry:    *entry,
		Duration: entry.CompletedAt.Sub(entry.CreatedAt).Round(time.Millisecond).String(),
	}

	if entry.Fingerprint != "" {
		report.Cache, err = lookupCache(ctx, db, entry.Fingerprint, entry.Position)
		if err != nil {
			return nil, err
		}
	}

	report.History, err = log.ForPosition(ctx, entry.Position, historyLimit)
	if err != nil {
		return nil, err
	}
	if report.History == nil {
		report.History = []querylog.Entry{}
	}
	return report, nil
}

// lookupCache reads the cache row directly so that inspecting does not
// count as a hit.
func lookupCache(ctx context.Context, db *sql.DB, fingerprint, position string) (*CacheEntry, error) {
	var (
		c         CacheEntry
		edgesRaw  string
		expiresAt sql.NullString
	)
	row := db.QueryRowContext(ctx, `
SELECT book, edges, hits, created_at, expires_at
FROM query_cache
WHERE fingerprint = ? AND position = ?;
`, fingerprint, position)
	if err := row.Scan(&c.Book, &edgesRaw, &c.Hits, &c.CreatedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query cache entry: %w", err)
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.String
	}
	if err := json.Unmarshal([]byte(edgesRaw), &c.Moves); err != nil {
		return nil, fmt.Errorf("decode cached moves: %w", err)
	}
	return &c, nil
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
