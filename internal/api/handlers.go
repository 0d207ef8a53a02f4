package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/openbook/internal/assess"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/openings"
	"github.com/mattjoyce/openbook/internal/protocol"
	"github.com/mattjoyce/openbook/internal/querylog"
)

const (
	maxBodyBytes        = 16 * 1024
	defaultQueriesLimit = 50
	maxQueriesLimit     = 500
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status()

	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Book:          st.Book.Name,
		ReaderPid:     st.Pid,
		Pending:       st.Pending,
		Running:       st.Running,
	}
	// A stopped reader is restarted by the next query.
	if !st.Running {
		resp.Status = "degraded"
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleQuery handles POST /query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	fen, ok := s.decodePosition(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	ans, err := s.service.Lookup(ctx, fen, submitter(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	moves := ans.Result.Edges
	if moves == nil {
		moves = []protocol.Edge{}
	}
	respondJSON(w, http.StatusOK, QueryResponse{
		QueryID: ans.QueryID,
		Book:    ans.Book.Name,
		Source:  ans.Source,
		FEN:     ans.Result.Position,
		Total:   ans.Result.Total(),
		Moves:   moves,
	})
}

// handleAssess handles POST /assess.
func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	fen, ok := s.decodePosition(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	a, err := s.service.Assess(ctx, fen, submitter(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, AssessResponse{Assessment: a})
}

// handleBestMove handles POST /bestmove.
func (s *Server) handleBestMove(w http.ResponseWriter, r *http.Request) {
	fen, ok := s.decodePosition(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	e, err := s.service.BestMove(ctx, fen, submitter(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, BestMoveResponse{FEN: openings.NormalizePosition(fen), Move: e.Move, Count: e.Count})
}

// handleListBooks handles GET /books.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	views := s.service.Books()
	resp := BooksResponse{Books: make([]BookResponse, 0, len(views))}
	for _, v := range views {
		if v.Current {
			resp.Current = v.Name
		}
		resp.Books = append(resp.Books, BookResponse{
			Name:        v.Name,
			Label:       v.Label,
			Fingerprint: v.Fingerprint,
			Current:     v.Current,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSelectBook handles PUT /books/current.
func (s *Server) handleSelectBook(w http.ResponseWriter, r *http.Request) {
	var req SelectBookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	// A swap waits for in-flight queries, so it is not tied to the request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.QueryTimeout)
	defer cancel()

	b, err := s.service.SelectBook(ctx, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, BookResponse{
		Name:        b.Name,
		Label:       b.Label,
		Fingerprint: b.Fingerprint,
		Current:     true,
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{Status: s.service.Status()})
}

// handleListQueries handles GET /queries?limit=N.
func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "query log disabled")
		return
	}

	limit := defaultQueriesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxQueriesLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read query log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read query log")
		return
	}
	if entries == nil {
		entries = []querylog.Entry{}
	}
	respondJSON(w, http.StatusOK, QueriesResponse{Queries: entries})
}

// handleGetQuery handles GET /queries/{queryID}.
func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "query log disabled")
		return
	}

	entry, err := s.history.Get(r.Context(), chi.URLParam(r, "queryID"))
	if errors.Is(err, querylog.ErrEntryNotFound) {
		s.writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read query log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read query log")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// decodePosition reads a PositionRequest and rejects positions that cannot
// be sent to the reader.
func (s *Server) decodePosition(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req PositionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if _, err := protocol.EncodeFromFen("", req.FEN); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid fen: "+err.Error())
		return "", false
	}
	return req.FEN, true
}

// writeServiceError maps service and reader faults onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, protocol.ErrInvalidPosition):
		status = http.StatusBadRequest
	case errors.Is(err, book.ErrUnknownBook), errors.Is(err, assess.ErrNoBookMove):
		status = http.StatusNotFound
	case errors.Is(err, protocol.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrSpawn),
		errors.Is(err, protocol.ErrProtocol),
		errors.Is(err, protocol.ErrProcessTerminated):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		return
	}

	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeError(w, status, err.Error())
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
