package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/openbook/internal/events"
)

const (
	keepAliveInterval = 15 * time.Second
	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 3000
)

// handleEvents streams hub events as server-sent events.
//
// Query parameters:
//   - types: comma-separated event types; an entry ending in "." matches a
//     family, so "query." selects query.completed and query.failed
//   - last_event_id: resume point for clients that cannot set the
//     Last-Event-ID header
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusNotFound, "events disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	want := parseTypeFilter(r.URL.Query().Get("types"))
	resumeFrom := r.Header.Get("Last-Event-ID")
	if resumeFrom == "" {
		resumeFrom = r.URL.Query().Get("last_event_id")
	}

	// Subscribe before the snapshot so nothing published in between is lost;
	// ids already sent are skipped.
	ch, cancel := s.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryMillis); err != nil {
		return
	}
	sent := parseLastEventID(resumeFrom)
	for _, ev := range s.events.SnapshotSince(sent) {
		sent = ev.ID
		if !want.match(ev.Type) {
			continue
		}
		if err := writeSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= sent || !want.match(ev.Type) {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			sent = ev.ID
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// typeFilter selects event types; an empty filter selects everything.
type typeFilter []string

func parseTypeFilter(raw string) typeFilter {
	var f typeFilter
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			f = append(f, part)
		}
	}
	return f
}

func (f typeFilter) match(eventType string) bool {
	if len(f) == 0 {
		return true
	}
	for _, t := range f {
		if t == eventType || (strings.HasSuffix(t, ".") && strings.HasPrefix(eventType, t)) {
			return true
		}
	}
	return false
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeSSE frames one event. Payloads are single-line JSON, so one data
// line suffices.
func writeSSE(w http.ResponseWriter, ev events.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}
