package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/openbook/internal/protocol"
)

// cacheTimeLayout has fixed width so stored times compare as strings.
const cacheTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ResultCache stores query results keyed by book fingerprint and position.
// A book file that changes gets a new fingerprint, so stale entries are never
// served for it.
type ResultCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewResultCache returns a cache whose entries expire after ttl. A zero ttl
// keeps entries forever.
func NewResultCache(db *sql.DB, ttl time.Duration) *ResultCache {
	return &ResultCache{db: db, ttl: ttl, now: time.Now}
}

// Get returns the cached result, or (nil, nil) on a miss.
func (c *ResultCache) Get(ctx context.Context, fingerprint, position string) (*protocol.QueryResult, error) {
	if fingerprint == "" || position == "" {
		return nil, fmt.Errorf("cache key needs a fingerprint and a position")
	}

	var (
		book      string
		edgesRaw  string
		expiresAt sql.NullString
	)
	err := c.db.QueryRowContext(ctx, `
SELECT book, edges, expires_at FROM query_cache
WHERE fingerprint = ? AND position = ?;
`, fingerprint, position).Scan(&book, &edgesRaw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read query cache: %w", err)
	}

	if expiresAt.Valid {
		if t, err := time.Parse(cacheTimeLayout, expiresAt.String); err == nil && !c.now().Before(t) {
			return nil, nil
		}
	}

	var edges []protocol.Edge
	if err := json.Unmarshal([]byte(edgesRaw), &edges); err != nil {
		return nil, fmt.Errorf("decode cached edges: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, `
UPDATE query_cache SET hits = hits + 1 WHERE fingerprint = ? AND position = ?;
`, fingerprint, position); err != nil {
		return nil, fmt.Errorf("count cache hit: %w", err)
	}

	if edges == nil {
		edges = []protocol.Edge{}
	}
	return &protocol.QueryResult{Position: position, Book: book, Edges: edges}, nil
}

// Put stores res under fingerprint, replacing any earlier entry.
func (c *ResultCache) Put(ctx context.Context, fingerprint string, res *protocol.QueryResult) error {
	if fingerprint == "" || res == nil || res.Position == "" {
		return fmt.Errorf("cache entry needs a fingerprint and a position")
	}

	edges := res.Edges
	if edges == nil {
		edges = []protocol.Edge{}
	}
	raw, err := json.Marshal(edges)
	if err != nil {
		return fmt.Errorf("encode edges: %w", err)
	}

	now := c.now().UTC()
	var expiresAt any
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl).Format(cacheTimeLayout)
	}

	_, err = c.db.ExecContext(ctx, `
INSERT INTO query_cache(fingerprint, position, book, edges, hits, created_at, expires_at)
VALUES(?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(fingerprint, position) DO UPDATE SET
  book = excluded.book,
  edges = excluded.edges,
  hits = 0,
  created_at = excluded.created_at,
  expires_at = excluded.expires_at;
`, fingerprint, res.Position, res.Book, string(raw), now.Format(cacheTimeLayout), expiresAt)
	if err != nil {
		return fmt.Errorf("write query cache: %w", err)
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (c *ResultCache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
DELETE FROM query_cache WHERE expires_at IS NOT NULL AND expires_at <= ?;
`, c.now().UTC().Format(cacheTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune query cache: %w", err)
	}
	return res.RowsAffected()
}

// Hits returns the hit counter of an entry, or 0 when it is absent.
func (c *ResultCache) Hits(ctx context.Context, fingerprint, position string) (int, error) {
	var hits int
	err := c.db.QueryRowContext(ctx, `
SELECT hits FROM query_cache WHERE fingerprint = ? AND position = ?;
`, fingerprint, position).Scan(&hits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache hits: %w", err)
	}
	return hits, nil
}
