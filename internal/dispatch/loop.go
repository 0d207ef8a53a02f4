package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/openbook/internal/command"
	"github.com/mattjoyce/openbook/internal/protocol"
)

// LineSource yields reply lines; io.EOF ends the stream.
type LineSource interface {
	ReadLine() (string, error)
}

type lineEvent struct {
	line string
	err  error
}

// Loop owns a Dispatcher. All dispatch state is touched only by the
// goroutine running Run; callers interact through Submit.
type Loop struct {
	d   *Dispatcher
	src LineSource

	// inbox holds submissions until Run picks them up. It is a slice rather
	// than a channel so Submit never waits on a loop stuck writing a directive.
	mu     sync.Mutex
	inbox  []command.Command
	closed bool
	wake   chan struct{}

	stopped chan struct{}
	err     error

	pending atomic.Int64
	logger  *slog.Logger
}

// NewLoop creates a loop that writes directives to w and reads replies from src.
func NewLoop(w command.LineWriter, src LineSource, logger *slog.Logger) *Loop {
	return &Loop{
		d:       New(w, logger),
		src:     src,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run routes lines and submissions until the reply stream ends, the
// dispatcher halts, or ctx is cancelled. Every command still pending at that
// point is failed. The returned error is the halt reason.
func (l *Loop) Run(ctx context.Context) error {
	lines := make(chan lineEvent)
	go l.pump(lines)

	defer close(l.stopped)

	for {
		select {
		case <-l.wake:
			for _, c := range l.takeInbox() {
				l.d.Enqueue(c)
			}

		case ev := <-lines:
			if ev.err != nil {
				l.d.Halt(streamEnded(ev.err))
			} else {
				_ = l.d.HandleLine(ev.line)
			}

		case <-ctx.Done():
			l.d.Halt(fmt.Errorf("%w: %w", protocol.ErrClosed, context.Cause(ctx)))
		}

		l.pending.Store(int64(l.d.Pending()))
		if err := l.d.Halted(); err != nil {
			l.pending.Store(0)
			l.shut(err)
			return err
		}
	}
}

// pump reads lines for Run. Once Run has stopped it keeps draining the
// source so the process never blocks on a full pipe.
func (l *Loop) pump(lines chan<- lineEvent) {
	for {
		line, err := l.src.ReadLine()
		select {
		case lines <- lineEvent{line: line, err: err}:
		case <-l.stopped:
		}
		if err != nil {
			return
		}
	}
}

// Submit hands c to the loop. If the loop has stopped, c fails with the
// halt reason instead. Submit never blocks.
func (l *Loop) Submit(c command.Command) {
	l.mu.Lock()
	if l.closed {
		err := l.err
		l.mu.Unlock()
		c.Fail(err)
		return
	}
	l.inbox = append(l.inbox, c)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) takeInbox() []command.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	cs := l.inbox
	l.inbox = nil
	return cs
}

// shut records the halt reason and fails submissions Run never picked up.
func (l *Loop) shut(err error) {
	l.mu.Lock()
	l.closed = true
	l.err = err
	left := l.inbox
	l.inbox = nil
	l.mu.Unlock()

	for _, c := range left {
		c.Fail(err)
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// Err returns the halt reason. It is only meaningful after Done is closed.
func (l *Loop) Err() error {
	select {
	case <-l.stopped:
		return l.err
	default:
		return nil
	}
}

// Pending returns the number of commands queued or running, as of the last
// loop iteration.
func (l *Loop) Pending() int {
	return int(l.pending.Load())
}

func streamEnded(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: reader closed its output", protocol.ErrProcessTerminated)
	}
	return fmt.Errorf("%w: %w", protocol.ErrProcessTerminated, err)
}
