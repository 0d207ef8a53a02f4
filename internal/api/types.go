package api

import (
	"github.com/mattjoyce/openbook/internal/assess"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/protocol"
	"github.com/mattjoyce/openbook/internal/querylog"
)

// PositionRequest is the JSON body for POST /query, /assess and /bestmove.
type PositionRequest struct {
	FEN string `json:"fen"`
}

// QueryResponse is returned by POST /query.
type QueryResponse struct {
	QueryID string          `json:"query_id,omitempty"`
	Book    string          `json:"book"`
	Source  querylog.Source `json:"source"`
	FEN     string          `json:"fen"`
	Total   int             `json:"total"`
	Moves   []protocol.Edge `json:"moves"`
}

// AssessResponse is returned by POST /assess.
type AssessResponse struct {
	assess.Assessment
}

// BestMoveResponse is returned by POST /bestmove.
type BestMoveResponse struct {
	FEN   string `json:"fen"`
	Move  string `json:"move"`
	Count int    `json:"count"`
}

// SelectBookRequest is the JSON body for PUT /books/current.
type SelectBookRequest struct {
	Name string `json:"name"`
}

// BooksResponse is returned by GET /books.
type BooksResponse struct {
	Current string         `json:"current"`
	Books   []BookResponse `json:"books"`
}

type BookResponse struct {
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Current     bool   `json:"current"`
}

// QueriesResponse is returned by GET /queries.
type QueriesResponse struct {
	Queries []querylog.Entry `json:"queries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Book          string `json:"book"`
	ReaderPid     int    `json:"reader_pid,omitempty"`
	Pending       int    `json:"pending"`
	Running       bool   `json:"running"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	book.Status
}
