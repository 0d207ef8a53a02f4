package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/openbook/internal/command"
	"github.com/mattjoyce/openbook/internal/protocol"
)

// Dispatcher is the routing state machine. It is not safe for concurrent
// use; Loop provides the single owning goroutine.
type Dispatcher struct {
	w      command.LineWriter
	queue  []command.Command
	active  command.Command
	started bool
	halted  error
	logger *slog.Logger
}

// New creates a Dispatcher writing directives to w.
func New(w command.LineWriter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		w:      w,
		logger: logger,
	}
}

// Enqueue appends c to the queue and starts it if nothing is running.
// After a halt, c fails immediately with the halt reason.
func (d *Dispatcher) Enqueue(c command.Command) {
	if d.halted != nil {
		c.Fail(d.halted)
		return
	}
	d.queue = append(d.queue, c)
	d.logger.Debug("command enqueued", "command", c.Name(), "queued", len(d.queue))
	d.advance()
}

// HandleLine routes one reply line to the active command.
func (d *Dispatcher) HandleLine(line string) error {
	if d.halted != nil {
		return d.halted
	}

	d.advance()
	if d.halted != nil {
		return d.halted
	}
	if d.active == nil {
		if !d.started {
			err := &protocol.ProtocolError{Line: line, Reason: "reply before any directive"}
			d.Halt(err)
			return err
		}
		// Surplus lines after a completed reply are dropped; the next
		// command starts clean.
		d.logger.Warn("dropping unsolicited line", "line", line)
		return nil
	}

	if err := d.active.FeedLine(line); err != nil {
		d.Halt(err)
		return err
	}
	d.advance()
	return d.halted
}

// advance starts queued commands until one is running or the queue is empty.
func (d *Dispatcher) advance() {
	for d.halted == nil && (d.active == nil || d.active.Done()) {
		if len(d.queue) == 0 {
			d.active = nil
			return
		}
		next := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.active = next
		d.started = true

		d.logger.Debug("starting command", "command", next.Name(), "queued", len(d.queue))
		if err := next.Start(d.w); err != nil {
			d.Halt(terminated(err))
			return
		}
	}
}

// Halt fails the active command and every queued command with err and
// stops routing. Only the first call has an effect.
func (d *Dispatcher) Halt(err error) {
	if d.halted != nil {
		return
	}
	d.halted = err

	failed := len(d.queue)
	if d.active != nil {
		d.active.Fail(err)
		d.active = nil
		failed++
	}
	for _, c := range d.queue {
		c.Fail(err)
	}
	d.queue = nil

	d.logger.Warn("dispatcher halted", "error", err, "failed_commands", failed)
}

// Halted returns the halt reason, or nil while routing.
func (d *Dispatcher) Halted() error {
	return d.halted
}

// Pending counts the commands not yet done, including the active one.
func (d *Dispatcher) Pending() int {
	n := len(d.queue)
	if d.active != nil && !d.active.Done() {
		n++
	}
	return n
}

// Active returns the command currently owning the reply stream, if any.
func (d *Dispatcher) Active() command.Command {
	if d.active == nil || d.active.Done() {
		return nil
	}
	return d.active
}

// terminated marks err as fatal to the reader process unless it already is.
func terminated(err error) error {
	if errors.Is(err, protocol.ErrProcessTerminated) {
		return err
	}
	return fmt.Errorf("%w: %w", protocol.ErrProcessTerminated, err)
}
