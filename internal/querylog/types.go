package querylog

import (
	"errors"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Source string

const (
	SourceReader Source = "reader"
	SourceCache  Source = "cache"
)

// Entry is one answered (or failed) lookup.
type Entry struct {
	ID          string    `json:"id"`
	Book        string    `json:"book"`
	Fingerprint string    `json:"fingerprint"`
	Position    string    `json:"position"`
	Status      Status    `json:"status"`
	Source      Source    `json:"source"`
	EdgeCount   int       `json:"edge_count"`
	BestMove    *string   `json:"best_move,omitempty"`
	SubmittedBy string    `json:"submitted_by"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
	LastError   *string   `json:"last_error,omitempty"`
	Stderr      *string   `json:"stderr,omitempty"`
}

// RecordRequest describes a finished lookup.
type RecordRequest struct {
	Book        string
	Fingerprint string
	Position    string
	Status      Status
	Source      Source
	EdgeCount   int
	BestMove    string
	SubmittedBy string
	StartedAt   time.Time
	LastError   error
	Stderr      string
}

var ErrEntryNotFound = errors.New("query log entry not found")
