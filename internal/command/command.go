// Package command holds the requests that can be sent to a book reader. Each
// command writes its own directive and parses its own reply lines; the
// dispatcher only sees the Command interface.
package command

import "fmt"

// State is a command's position in its lifecycle.
type State int

const (
	StateWaiting State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LineWriter is the directive sink, normally a *linechan.Channel.
type LineWriter interface {
	WriteLine(text string) error
}

// Command is implemented only by *Query and *Shutdown.
type Command interface {
	// Name identifies the command kind in logs.
	Name() string
	// State returns the lifecycle state.
	State() State
	// Start writes the directive and moves Waiting -> Running (or straight to
	// Done for commands that expect no reply). A returned error means the
	// writer is broken; the command has already been failed with it.
	Start(w LineWriter) error
	// FeedLine hands the command one reply line. A returned error means the
	// reply stream can no longer be trusted.
	FeedLine(line string) error
	// Done reports whether the command needs no more lines.
	Done() bool
	// Fail settles the result with err if it is not settled yet and marks
	// the command Done.
	Fail(err error)

	sealed()
}
