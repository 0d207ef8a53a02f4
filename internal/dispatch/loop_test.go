package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/openbook/internal/command"
	"github.com/mattjoyce/openbook/internal/linechan"
	"github.com/mattjoyce/openbook/internal/protocol"
)

// fakeBook is an in-memory book reader. Directives are recorded; replies
// produced by respond are written to a pipe by a single goroutine so that
// WriteLine never blocks on the reader side.
type fakeBook struct {
	mu      sync.Mutex
	written []string
	respond func(directive string) []string

	out chan string
	pr  *io.PipeReader
	pw  *io.PipeWriter
	lr  *linechan.LineReader
}

func newFakeBook(respond func(string) []string) *fakeBook {
	pr, pw := io.Pipe()
	f := &fakeBook{
		respond: respond,
		out:     make(chan string, 4096),
		pr:      pr,
		pw:      pw,
		lr:      linechan.NewLineReader(pr),
	}
	go func() {
		for line := range f.out {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
		_ = pw.Close()
	}()
	return f
}

func (f *fakeBook) WriteLine(text string) error {
	if f.respond != nil {
		for _, l := range f.respond(text) {
			f.out <- l
		}
	}
	// Recorded after the replies are queued so a test that sees the
	// directive may safely end the stream.
	f.mu.Lock()
	f.written = append(f.written, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeBook) ReadLine() (string, error) { return f.lr.ReadLine() }

// eof ends the reply stream after any replies already produced.
func (f *fakeBook) eof() { close(f.out) }

func (f *fakeBook) directives() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// countReply answers every fromfen with one edge whose count is the FEN's
// fullmove field, so each caller can verify it got its own reply.
func countReply(directive string) []string {
	if !strings.HasPrefix(directive, "fromfen ") {
		return nil
	}
	fields := strings.Fields(directive)
	return []string{"positionmoves 1", "e2e4 " + fields[len(fields)-1]}
}

func startLoop(t *testing.T, fb *fakeBook) (*Loop, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(fb, fb, discardLogger())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = fb.pr.Close()
	})
	return l, cancel
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoopRoundTripOrdering(t *testing.T) {
	fb := newFakeBook(func(d string) []string {
		if strings.HasPrefix(d, "fromfen ") {
			return []string{"positionmoves 2", "e2e4 120", "d2d4 80"}
		}
		return nil
	})
	l, _ := startLoop(t, fb)

	q := command.NewQuery(startFEN)
	l.Submit(q)

	res, err := q.Result().Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []protocol.Edge{{Move: "e2e4", Count: 120}, {Move: "d2d4", Count: 80}}, res.Edges)
	assert.Equal(t, []string{"fromfen " + startFEN}, fb.directives())
}

func TestLoopZeroMovesDoesNotWaitForMoreInput(t *testing.T) {
	fb := newFakeBook(func(d string) []string {
		if strings.HasPrefix(d, "fromfen ") {
			return []string{"positionmoves 0"}
		}
		return nil
	})
	l, _ := startLoop(t, fb)

	q := command.NewQuery(startFEN)
	l.Submit(q)
	res, err := q.Result().Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Empty(t, res.Edges)
}

func TestLoopConcurrentSubmission(t *testing.T) {
	fb := newFakeBook(countReply)
	l, _ := startLoop(t, fb)

	const callers, perCaller = 8, 25
	var wg sync.WaitGroup
	for c := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perCaller {
				id := c*perCaller + i + 1
				q := command.NewQuery(fen(id))
				l.Submit(q)
				res, err := q.Result().Wait(waitCtx(t))
				if !assert.NoError(t, err) {
					return
				}
				if !assert.Len(t, res.Edges, 1) {
					return
				}
				assert.Equal(t, id, res.Edges[0].Count, "reply routed to the wrong caller")
			}
		}()
	}
	wg.Wait()

	// Every directive was written exactly once.
	seen := map[string]int{}
	for _, d := range fb.directives() {
		seen[d]++
	}
	assert.Len(t, seen, callers*perCaller)
	for d, n := range seen {
		assert.Equal(t, 1, n, "directive %q written %d times", d, n)
	}
}

func TestLoopFIFOAcrossConcurrentSubmitters(t *testing.T) {
	fb := newFakeBook(countReply)
	l, _ := startLoop(t, fb)

	const k = 40
	queries := make([]*command.Query, k)
	for i := range k {
		queries[i] = command.NewQuery(fen(i + 1))
	}

	// Submit serially so the FIFO order is known, then wait concurrently.
	for _, q := range queries {
		l.Submit(q)
	}
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Result().Wait(waitCtx(t))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	want := make([]string, k)
	for i := range k {
		want[i] = "fromfen " + fen(i+1)
	}
	assert.Equal(t, want, fb.directives())
}

func TestLoopEOFDrainsQueuedCommands(t *testing.T) {
	fb := newFakeBook(nil) // never replies
	l, _ := startLoop(t, fb)

	const m = 10
	queries := make([]*command.Query, m)
	for i := range m {
		queries[i] = command.NewQuery(fen(i))
		l.Submit(queries[i])
	}
	assert.Eventually(t, func() bool { return l.Pending() == m }, 2*time.Second, 5*time.Millisecond)

	fb.eof()

	for _, q := range queries {
		_, err := q.Result().Wait(waitCtx(t))
		assert.ErrorIs(t, err, protocol.ErrProcessTerminated)
	}
	<-l.Done()
	assert.ErrorIs(t, l.Err(), protocol.ErrProcessTerminated)
	assert.Equal(t, 0, l.Pending())
}

func TestLoopTruncatedReplyFails(t *testing.T) {
	fb := newFakeBook(func(d string) []string {
		if strings.HasPrefix(d, "fromfen ") {
			return []string{"positionmoves 2", "e2e4 120"}
		}
		return nil
	})
	l, _ := startLoop(t, fb)

	q := command.NewQuery(startFEN)
	l.Submit(q)
	// Let the partial reply arrive before the stream ends.
	assert.Eventually(t, func() bool { return len(fb.directives()) == 1 }, 2*time.Second, 5*time.Millisecond)
	fb.eof()

	res, err := q.Result().Wait(waitCtx(t))
	assert.Nil(t, res, "no silent truncated success")
	assert.ErrorIs(t, err, protocol.ErrProcessTerminated)
}

func TestLoopSubmitAfterStopFailsFast(t *testing.T) {
	fb := newFakeBook(nil)
	l, cancel := startLoop(t, fb)

	cancel()
	<-l.Done()
	assert.ErrorIs(t, l.Err(), protocol.ErrClosed)

	q := command.NewQuery(startFEN)
	done := make(chan struct{})
	go func() {
		l.Submit(q)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked after the loop stopped")
	}
	_, err := q.Result().Value()
	assert.ErrorIs(t, err, protocol.ErrClosed)
}

func TestLoopCancelFailsPending(t *testing.T) {
	fb := newFakeBook(nil)
	l, cancel := startLoop(t, fb)

	q := command.NewQuery(startFEN)
	l.Submit(q)
	cancel()

	_, err := q.Result().Wait(waitCtx(t))
	assert.ErrorIs(t, err, protocol.ErrClosed)
}

func TestLoopLineBeforeAnyDirectiveHalts(t *testing.T) {
	fb := newFakeBook(nil)
	l, _ := startLoop(t, fb)

	fb.out <- "positionmoves 1"
	<-l.Done()
	assert.ErrorIs(t, l.Err(), protocol.ErrProtocol)
}

func TestLoopDropsSurplusLineAfterReply(t *testing.T) {
	fb := newFakeBook(func(d string) []string {
		if strings.HasPrefix(d, "fromfen ") {
			return []string{"positionmoves 0", "e2e4 9"}
		}
		return nil
	})
	l, _ := startLoop(t, fb)

	q := command.NewQuery(startFEN)
	l.Submit(q)
	_, err := q.Result().Wait(waitCtx(t))
	require.NoError(t, err)

	fb.eof()
	<-l.Done()
	assert.ErrorIs(t, l.Err(), protocol.ErrProcessTerminated)
	assert.NotErrorIs(t, l.Err(), protocol.ErrProtocol)
}

// stuckWriter blocks every write until release is closed, like a reader
// that has stopped draining its stdin.
type stuckWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stuckWriter) WriteLine(string) error {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return fmt.Errorf("%w: broken pipe", protocol.ErrWrite)
}

func TestLoopSubmitDoesNotWaitOnBlockedWrite(t *testing.T) {
	fb := newFakeBook(nil)
	w := &stuckWriter{entered: make(chan struct{}), release: make(chan struct{})}
	l := NewLoop(w, fb, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = fb.pr.Close()
	})

	first := command.NewQuery(fen(1))
	l.Submit(first)
	<-w.entered

	second := command.NewQuery(fen(2))
	submitted := make(chan struct{})
	go func() {
		l.Submit(second)
		close(submitted)
	}()
	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked behind a stuck write")
	}

	close(w.release)
	for _, q := range []*command.Query{first, second} {
		_, err := q.Result().Wait(waitCtx(t))
		assert.ErrorIs(t, err, protocol.ErrWrite)
	}
	<-l.Done()
}

func TestStreamEnded(t *testing.T) {
	err := streamEnded(io.EOF)
	assert.ErrorIs(t, err, protocol.ErrProcessTerminated)

	cause := fmt.Errorf("read |0: file already closed")
	err = streamEnded(cause)
	assert.ErrorIs(t, err, protocol.ErrProcessTerminated)
	assert.ErrorIs(t, err, cause)
}
