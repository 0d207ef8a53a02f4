// Package querylog records every lookup in the state database.
package querylog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxStderrBytes = 64 * 1024

// timeLayout has fixed width so stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Log struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// Record appends an entry and returns its id.
func (l *Log) Record(ctx context.Context, req RecordRequest) (string, error) {
	if req.Position == "" {
		return "", fmt.Errorf("position is empty")
	}
	if req.Status != StatusSucceeded && req.Status != StatusFailed {
		return "", fmt.Errorf("invalid status: %q", req.Status)
	}
	if req.Source == "" {
		req.Source = SourceReader
	}
	if req.SubmittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	id := uuid.NewString()
	completed := l.now().UTC()
	created := completed
	if !req.StartedAt.IsZero() {
		created = req.StartedAt.UTC()
	}

	var bestMove, lastError, stderr any
	if req.BestMove != "" {
		bestMove = req.BestMove
	}
	if req.LastError != nil {
		lastError = req.LastError.Error()
	}
	if req.Stderr != "" {
		s := req.Stderr
		if len(s) > maxStderrBytes {
			s = s[len(s)-maxStderrBytes:]
		}
		stderr = s
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO query_log(
  id, book, fingerprint, position, status, source, edge_count, best_move, submitted_by,
  created_at, completed_at, last_error, stderr
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.Book, req.Fingerprint, req.Position, req.Status, req.Source, req.EdgeCount, bestMove, req.SubmittedBy,
		created.Format(timeLayout), completed.Format(timeLayout), lastError, stderr)
	if err != nil {
		return "", fmt.Errorf("record query: %w", err)
	}
	return id, nil
}

const selectColumns = `
  id, book, fingerprint, position, status, source, edge_count, best_move, submitted_by,
  created_at, completed_at, last_error, stderr`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e            Entry
		statusS      string
		sourceS      string
		bestMove     sql.NullString
		createdAtS   string
		completedAtS string
		lastError    sql.NullString
		stderr       sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.Book, &e.Fingerprint, &e.Position, &statusS, &sourceS, &e.EdgeCount, &bestMove, &e.SubmittedBy,
		&createdAtS, &completedAtS, &lastError, &stderr,
	); err != nil {
		return nil, err
	}

	e.Status = Status(statusS)
	e.Source = Source(sourceS)
	if bestMove.Valid {
		e.BestMove = &bestMove.String
	}
	if t, err := time.Parse(timeLayout, createdAtS); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, completedAtS); err == nil {
		e.CompletedAt = t
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if stderr.Valid {
		e.Stderr = &stderr.String
	}
	return &e, nil
}

// Get returns one entry by id.
func (l *Log) Get(ctx context.Context, id string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM query_log WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get query log entry: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT`+selectColumns+`
FROM query_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log: %w", err)
	}
	return out, nil
}

// ForPosition returns up to limit entries for position across all books,
// newest first.
func (l *Log) ForPosition(ctx context.Context, position string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT`+selectColumns+`
FROM query_log
WHERE position = ?
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;`, position, limit)
	if err != nil {
		return nil, fmt.Errorf("list query log for position: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query log entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Stats counts entries per status and source.
type Stats struct {
	Total     int `json:"total"`
	Failed    int `json:"failed"`
	CacheHits int `json:"cache_hits"`
}

// Stats summarizes the log.
func (l *Log) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0)
FROM query_log;
`, StatusFailed, SourceCache).Scan(&s.Total, &s.Failed, &s.CacheHits)
	if err != nil {
		return Stats{}, fmt.Errorf("query log stats: %w", err)
	}
	return s, nil
}

// PruneBefore deletes entries completed before cutoff.
func (l *Log) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM query_log WHERE completed_at < ?;`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune query log: %w", err)
	}
	return res.RowsAffected()
}
