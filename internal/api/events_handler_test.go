package api

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/openbook/internal/api/mocks"
	"github.com/mattjoyce/openbook/internal/events"
)

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(42), parseLastEventID("42"))
}

func TestTypeFilter(t *testing.T) {
	tests := []struct {
		raw       string
		eventType string
		want      bool
	}{
		{raw: "", eventType: events.TypeQueryFailed, want: true},
		{raw: "query.", eventType: events.TypeQueryCompleted, want: true},
		{raw: "query.", eventType: events.TypeBookSelected, want: false},
		{raw: " book.selected , reader.", eventType: events.TypeReaderStopped, want: true},
		{raw: "book.selected", eventType: events.TypeBookSelected, want: true},
		{raw: "book", eventType: events.TypeBookSelected, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTypeFilter(tt.raw).match(tt.eventType))
		})
	}
}

// openStream connects to /events with the given query string and returns a
// func reading the next event's id, type and data.
func openStream(t *testing.T, hub *events.Hub, rawQuery string) func() (id, typ, data string) {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{}, mocks.NewMockOpeningService(ctrl), nil, hub, logger)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/events?"+rawQuery, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	return func() (id, typ, data string) {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "id: "):
				id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && typ != "":
				return id, typ, data
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return "", "", ""
	}
}

func TestEventsStreamFiltersAndResumes(t *testing.T) {
	hub := events.NewHub(16)
	hub.Publish(events.TypeQueryCompleted, map[string]string{"n": "1"})
	hub.Publish(events.TypeBookSelected, map[string]string{"book": "main"})
	hub.Publish(events.TypeQueryFailed, map[string]string{"n": "3"})

	next := openStream(t, hub, "types=query.&last_event_id=1")

	id, typ, _ := next()
	assert.Equal(t, "3", id, "event 1 is before the resume point and event 2 is filtered out")
	assert.Equal(t, events.TypeQueryFailed, typ)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(events.TypeReaderStarted, map[string]int{"pid": 1})
	hub.Publish(events.TypeQueryCompleted, map[string]string{"n": "5"})

	id, typ, data := next()
	assert.Equal(t, "5", id)
	assert.Equal(t, events.TypeQueryCompleted, typ)
	assert.JSONEq(t, `{"n":"5"}`, data)
}

func TestEventsStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := events.NewHub(16)
	hub.Publish(events.TypeBookSelected, map[string]string{"book": "main"})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{}, mocks.NewMockOpeningService(ctrl), nil, hub, logger)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	readEvent := func() (typ, data string) {
		t.Helper()
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && typ != "":
				return typ, data
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return "", ""
	}

	// Replayed from the buffer.
	typ, data := readEvent()
	assert.Equal(t, events.TypeBookSelected, typ)
	assert.JSONEq(t, `{"book":"main"}`, data)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(events.TypeQueryCompleted, map[string]int{"edges": 3})

	typ, data = readEvent()
	assert.Equal(t, events.TypeQueryCompleted, typ)
	assert.JSONEq(t, `{"edges":3}`, data)
}
