package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// DefaultMaxStateBytes caps one scope's stored state.
const DefaultMaxStateBytes = 64 * 1024

// ScopeService holds service-wide settings that survive restarts, such as the
// selected book.
const ScopeService = "service"

// Store keeps small JSON objects per scope.
type Store struct {
	db          *sql.DB
	maxStateBty int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		maxStateBty: DefaultMaxStateBytes,
	}
}

// Get returns the full state blob for a scope, or {} if missing.
func (s *Store) Get(ctx context.Context, scope string) (json.RawMessage, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM service_state WHERE scope = ?;", scope).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored state is invalid JSON for scope=%q", scope)
	}
	return json.RawMessage(raw), nil
}

// GetString returns a string field of a scope's state, or "" if unset.
func (s *Store) GetString(ctx context.Context, scope, key string) (string, error) {
	raw, err := s.Get(ctx, scope)
	if err != nil {
		return "", err
	}
	m, err := decodeObjectOrEmpty(raw)
	if err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	v, ok := m[key]
	if !ok {
		return "", nil
	}
	var out string
	if err := json.Unmarshal(v, &out); err != nil {
		return "", fmt.Errorf("state key %q is not a string: %w", key, err)
	}
	return out, nil
}

// ShallowMerge applies updates as a shallow merge (top-level keys replaced).
// The merged state is persisted and returned.
func (s *Store) ShallowMerge(ctx context.Context, scope string, updates json.RawMessage) (json.RawMessage, error) {
	if scope == "" {
		return nil, fmt.Errorf("scope is empty")
	}

	upd, err := decodeObjectOrEmpty(updates)
	if err != nil {
		return nil, fmt.Errorf("decode state updates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var curRaw string
	err = tx.QueryRowContext(ctx, "SELECT state FROM service_state WHERE scope = ?;", scope).Scan(&curRaw)
	if errors.Is(err, sql.ErrNoRows) {
		curRaw = "{}"
	} else if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	cur, err := decodeObjectOrEmpty(json.RawMessage(curRaw))
	if err != nil {
		return nil, fmt.Errorf("decode stored state: %w", err)
	}

	maps.Copy(cur, upd)

	merged, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal merged state: %w", err)
	}
	if len(merged) > s.maxStateBty {
		return nil, fmt.Errorf("state exceeds max size (%d bytes)", s.maxStateBty)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
INSERT INTO service_state(scope, state, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(scope) DO UPDATE SET
  state = excluded.state,
  updated_at = excluded.updated_at;
`, scope, string(merged), now)
	if err != nil {
		return nil, fmt.Errorf("upsert state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return json.RawMessage(merged), nil
}

func decodeObjectOrEmpty(b json.RawMessage) (map[string]json.RawMessage, error) {
	if len(b) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("invalid JSON")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}
