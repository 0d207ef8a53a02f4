// Package book runs opening-book reader processes and routes queries to them.
package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/openbook/internal/command"
	"github.com/mattjoyce/openbook/internal/dispatch"
	"github.com/mattjoyce/openbook/internal/linechan"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/protocol"
)

const (
	// killGrace is how long a terminated reader gets between SIGTERM and SIGKILL.
	killGrace = 2 * time.Second

	// loopStopWait is how long a cancelled loop gets to stop before the
	// process is killed to unblock a directive stuck in its stdin pipe.
	loopStopWait = 250 * time.Millisecond
)

// Config describes one reader process.
type Config struct {
	Executable string
	Args       []string
	// Book names the book for logging only.
	Book string
	// Grace bounds how long a shutdown waits for the process to exit on its
	// own before it is terminated. Zero means linechan.DefaultGracePeriod.
	Grace time.Duration
}

// Reader is a running book reader. It is safe for concurrent use; queries
// are answered in submission order.
type Reader struct {
	id    string
	grace time.Duration

	ch     *linechan.Channel
	loop   *dispatch.Loop
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	closing bool

	closeOnce sync.Once
	logger    *slog.Logger
}

// Open starts executable with args.
func Open(executable string, args ...string) (*Reader, error) {
	return OpenConfig(Config{Executable: executable, Args: args})
}

// OpenConfig starts the reader described by cfg.
func OpenConfig(cfg Config) (*Reader, error) {
	if cfg.Executable == "" {
		return nil, fmt.Errorf("%w: executable is empty", protocol.ErrSpawn)
	}
	ch, err := linechan.Spawn(cfg.Executable, cfg.Args...)
	if err != nil {
		return nil, err
	}

	grace := cfg.Grace
	if grace <= 0 {
		grace = linechan.DefaultGracePeriod
	}

	id := uuid.NewString()
	logger := log.WithReader(id).With("pid", ch.Pid())
	if cfg.Book != "" {
		logger = logger.With("book", cfg.Book)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	r := &Reader{
		id:     id,
		grace:  grace,
		ch:     ch,
		loop:   dispatch.NewLoop(ch, ch, logger),
		cancel: cancel,
		logger: logger,
	}
	go func() {
		err := r.loop.Run(ctx)
		if errors.Is(err, protocol.ErrProtocol) {
			// The stream cannot be resynchronised, so the process is useless.
			r.logger.Warn("terminating desynchronised book reader", "reason", err)
			if terr := r.ch.Terminate(killGrace); terr != nil {
				r.logger.Error("failed to terminate book reader", "error", terr)
			}
			return
		}
		if err != nil {
			r.logger.Debug("reader loop stopped", "reason", err)
		}
	}()

	r.logger.Info("book reader started", "executable", cfg.Executable)
	return r, nil
}

// ID returns the instance id assigned at Open.
func (r *Reader) ID() string { return r.id }

// Pid returns the process id.
func (r *Reader) Pid() int { return r.ch.Pid() }

// Pending returns the number of commands queued or in flight.
func (r *Reader) Pending() int { return r.loop.Pending() }

// Stderr returns what the process has written to stderr so far.
func (r *Reader) Stderr() string { return r.ch.Stderr() }

// Stopped is closed once the reader no longer routes replies, either because
// it was shut down or because the process went away.
func (r *Reader) Stopped() <-chan struct{} { return r.loop.Done() }

// Err returns why the reader stopped, or nil while it is running.
func (r *Reader) Err() error { return r.loop.Err() }

// Query asks for the continuations of position.
func (r *Reader) Query(ctx context.Context, position string) (*protocol.QueryResult, error) {
	q := command.NewQuery(position)
	if err := r.enqueue(q); err != nil {
		return nil, err
	}
	return q.Result().Wait(ctx)
}

// QueryBook asks for the continuations of position in the named book file.
// Only readers that load books on demand understand this form.
func (r *Reader) QueryBook(ctx context.Context, bookPath, position string) (*protocol.QueryResult, error) {
	q := command.NewBookQuery(bookPath, position)
	if err := r.enqueue(q); err != nil {
		return nil, err
	}
	return q.Result().Wait(ctx)
}

// enqueue submits c unless a shutdown has begun. Holding mu across Submit,
// which never blocks, keeps every query ahead of the shutdown directive.
func (r *Reader) enqueue(c command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return fmt.Errorf("%w: reader is shutting down", protocol.ErrClosed)
	}
	r.loop.Submit(c)
	return nil
}

// beginShutdown marks the reader closing. It reports false if it already was.
func (r *Reader) beginShutdown(c command.Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closing {
		return false
	}
	r.closing = true
	if c != nil {
		r.loop.Submit(c)
	}
	return true
}

// ShutdownGraceful sends quit after every query already submitted, then waits
// for the process to exit and returns its exit code.
func (r *Reader) ShutdownGraceful(ctx context.Context) (int, error) {
	return r.shutdown(ctx, command.NewQuit())
}

// ShutdownHard sends exit after every query already submitted, then waits for
// the process to exit and returns its exit code.
func (r *Reader) ShutdownHard(ctx context.Context) (int, error) {
	return r.shutdown(ctx, command.NewExit())
}

func (r *Reader) shutdown(ctx context.Context, sd *command.Shutdown) (int, error) {
	if !r.beginShutdown(sd) {
		return -1, fmt.Errorf("%w: reader is already shut down", protocol.ErrClosed)
	}
	r.logger.Info("shutting down book reader", "directive", sd.Name())

	timer := time.NewTimer(r.grace)
	defer timer.Stop()

	// The directive is written only once the queries ahead of it finish.
	sent := true
	select {
	case <-sd.Result().Done():
		if _, err := sd.Result().Value(); err != nil {
			r.logger.Warn("shutdown directive not delivered", "error", err)
			sent = false
		}
	case <-timer.C:
		sent = false
	case <-ctx.Done():
		sent = false
	}

	if sent {
		_ = r.ch.CloseInput()
		select {
		case <-r.ch.Exited():
		case <-timer.C:
			sent = false
		case <-ctx.Done():
			sent = false
		}
	}

	if !sent {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = fmt.Errorf("reader did not exit within %s", r.grace)
		}
		r.logger.Warn("terminating book reader", "reason", cause)
		r.halt(cause)
		if err := r.ch.Terminate(killGrace); err != nil {
			r.release()
			return -1, err
		}
	}

	r.release()
	code, err := r.ch.Wait(context.Background())
	r.logger.Info("book reader exited", "exit_code", code)
	return code, err
}

// Close tears the reader down without a directive. Every pending query
// fails with ErrClosed.
func (r *Reader) Close() error {
	r.beginShutdown(nil)
	r.halt(errors.New("reader closed"))
	_ = r.ch.CloseInput()
	err := r.ch.Terminate(killGrace)
	r.release()
	return err
}

// halt stops the loop, failing whatever is still pending with ErrClosed. A
// loop blocked writing to a process that no longer reads stdin only stops
// once that process is gone, so it is terminated after loopStopWait.
func (r *Reader) halt(cause error) {
	r.cancel(cause)

	timer := time.NewTimer(loopStopWait)
	defer timer.Stop()
	select {
	case <-r.loop.Done():
		return
	case <-timer.C:
	}

	r.logger.Warn("reader loop blocked on write, terminating process")
	if err := r.ch.Terminate(killGrace); err != nil {
		r.logger.Error("failed to terminate book reader", "error", err)
	}
	<-r.loop.Done()
}

// stop halts the loop, failing whatever is still pending with ErrClosed.
func (r *Reader) stop(cause error) {
	r.cancel(cause)
	<-r.loop.Done()
}

// release stops the loop if it is still running and frees the pipe.
func (r *Reader) release() {
	r.closeOnce.Do(func() {
		r.stop(errors.New("reader released"))
		_ = r.ch.Close()
	})
}
