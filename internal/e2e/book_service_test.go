package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/openbook/internal/api"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/events"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/openings"
	"github.com/mattjoyce/openbook/internal/querylog"
	"github.com/mattjoyce/openbook/internal/state"
	"github.com/mattjoyce/openbook/internal/storage"
)

// readerScript logs every directive to $FAKE_LOG and answers fromfen with
// e2e4 counted by the book size and d2d4 counted by the position's last field.
const readerScript = `#!/bin/sh
book="$1"
while IFS= read -r line; do
  printf '%s %s\n' "$(basename "$book")" "$line" >> "$FAKE_LOG"
  case "$line" in
    quit) exit 0 ;;
    exit) exit 7 ;;
    fromfen*)
      last=""
      for w in $line; do last="$w"; done
      size=$(wc -c < "$book" | tr -d ' ')
      echo "positionmoves 2"
      echo "e2e4 $size"
      echo "d2d4 $last"
      ;;
  esac
done
`

type harness struct {
	server  *httptest.Server
	manager *book.Manager
	hub     *events.Hub
	logPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	log.Setup("ERROR", "json")
	tmpDir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)

	db, err := storage.OpenSQLite(ctx, filepath.Join(tmpDir, "openbook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reader := filepath.Join(tmpDir, "reader.sh")
	require.NoError(t, os.WriteFile(reader, []byte(readerScript), 0o755))
	logPath := filepath.Join(tmpDir, "directives.log")
	t.Setenv("FAKE_LOG", logPath)

	books := []book.Book{
		{Name: "italian", Label: "Italian Game", Path: filepath.Join(tmpDir, "italian.bin")},
		{Name: "sicilian", Path: filepath.Join(tmpDir, "sicilian.bin")},
	}
	require.NoError(t, os.WriteFile(books[0].Path, bytes.Repeat([]byte("x"), 40), 0o644))
	require.NoError(t, os.WriteFile(books[1].Path, bytes.Repeat([]byte("x"), 60), 0o644))

	hub := events.NewHub(256)
	mgr, err := book.NewManager(book.ManagerConfig{
		Executable: reader,
		Grace:      2 * time.Second,
		Books:      books,
		Events:     hub,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Start("italian"))

	qlog := querylog.New(db)
	svc := openings.NewService(mgr, state.NewResultCache(db, time.Hour), qlog, state.NewStore(db), hub, openings.Options{})
	srv := api.New(api.Config{}, svc, qlog, hub, log.WithComponent("api"))

	h := &harness{
		server:  httptest.NewServer(srv.Handler()),
		manager: mgr,
		hub:     hub,
		logPath: logPath,
	}
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) directives(t *testing.T) []string {
	t.Helper()
	b, err := os.ReadFile(h.logPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func fen(n int) string {
	return fmt.Sprintf("8/8/8/8/8/8/8/8 w - - 0 %d", n)
}

func TestConcurrentQueriesAreAnsweredInOrder(t *testing.T) {
	h := newHarness(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var resp api.QueryResponse
			status := h.do(t, http.MethodPost, "/query", api.PositionRequest{FEN: fen(i)}, &resp)
			if !assert.Equal(t, http.StatusOK, status) {
				return
			}
			// Each reply echoes its own position, so a misrouted reply shows up here.
			if assert.Len(t, resp.Moves, 2) {
				assert.Equal(t, 40, resp.Moves[0].Count)
				assert.Equal(t, i, resp.Moves[1].Count, "reply for %s", fen(i))
			}
			assert.Equal(t, "italian", resp.Book)
		}(i)
	}
	wg.Wait()

	lines := h.directives(t)
	assert.Len(t, lines, n)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "italian.bin fromfen "), l)
	}
}

func TestBookSwapCacheAndHistory(t *testing.T) {
	h := newHarness(t)
	sub, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	var first api.QueryResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/query", api.PositionRequest{FEN: fen(3)}, &first))
	assert.Equal(t, querylog.SourceReader, first.Source)

	var again api.QueryResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/query", api.PositionRequest{FEN: " " + fen(3) + " "}, &again))
	assert.Equal(t, querylog.SourceCache, again.Source)
	assert.Equal(t, first.Moves, again.Moves)

	var selected api.BookResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPut, "/books/current", api.SelectBookRequest{Name: "sicilian"}, &selected))
	assert.Equal(t, "sicilian", selected.Name)
	assert.NotEmpty(t, selected.Fingerprint)

	// A new book means a new cache key.
	var swapped api.QueryResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/query", api.PositionRequest{FEN: fen(3)}, &swapped))
	assert.Equal(t, querylog.SourceReader, swapped.Source)
	assert.Equal(t, "sicilian", swapped.Book)
	require.Len(t, swapped.Moves, 2)
	assert.Equal(t, 60, swapped.Moves[0].Count)

	var best api.BestMoveResponse
	// Answered from the cache entry the previous query wrote.
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/bestmove", api.PositionRequest{FEN: fen(3)}, &best))
	assert.Equal(t, "e2e4", best.Move)

	var books api.BooksResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/books", nil, &books))
	assert.Equal(t, "sicilian", books.Current)

	var history api.QueriesResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/queries?limit=10", nil, &history))
	require.Len(t, history.Queries, 4)
	assert.Equal(t, "sicilian", history.Queries[0].Book)

	var entry querylog.Entry
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/queries/"+first.QueryID, nil, &entry))
	assert.Equal(t, "italian", entry.Book)
	assert.Equal(t, querylog.StatusSucceeded, entry.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.manager.Close(ctx))

	// Cache hits never reach a reader. The old reader got quit on the swap and
	// the new one got quit on close.
	assert.Equal(t, []string{
		"italian.bin fromfen " + fen(3),
		"italian.bin quit",
		"sicilian.bin fromfen " + fen(3),
		"sicilian.bin quit",
	}, h.directives(t))

	var types []string
	timeout := time.After(2 * time.Second)
collect:
	for {
		select {
		case ev := <-sub:
			types = append(types, ev.Type)
			if ev.Type == events.TypeReaderStopped && strings.Contains(string(ev.Data), "sicilian") {
				break collect
			}
		case <-timeout:
			break collect
		}
	}
	assert.Equal(t, []string{
		events.TypeQueryCompleted,
		events.TypeQueryCompleted,
		events.TypeReaderStopped,
		events.TypeReaderStarted,
		events.TypeBookSelected,
		events.TypeQueryCompleted,
		events.TypeQueryCompleted,
		events.TypeReaderStopped,
	}, types)
}

func TestHealthzDegradesWhenReaderStops(t *testing.T) {
	h := newHarness(t)

	var health api.HealthzResponse
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", nil, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "italian", health.Book)
	assert.NotZero(t, health.ReaderPid)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.manager.Close(ctx))

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", nil, &health))
	assert.Equal(t, "degraded", health.Status)

	var errResp api.ErrorResponse
	status := h.do(t, http.MethodPost, "/query", api.PositionRequest{FEN: fen(1)}, &errResp)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NotEmpty(t, errResp.Error)
}
