package command

import (
	"fmt"

	"github.com/mattjoyce/openbook/internal/protocol"
)

// ShutdownKind selects the directive a Shutdown sends.
type ShutdownKind int

const (
	// Graceful sends "quit".
	Graceful ShutdownKind = iota
	// Hard sends "exit".
	Hard
)

func (k ShutdownKind) directive() string {
	if k == Hard {
		return protocol.DirectiveExit
	}
	return protocol.DirectiveQuit
}

// Shutdown asks the reader to exit. It expects no reply and completes as
// soon as its directive is written.
type Shutdown struct {
	kind   ShutdownKind
	state  State
	result *Result[struct{}]
}

// NewQuit returns a graceful shutdown command.
func NewQuit() *Shutdown {
	return &Shutdown{kind: Graceful, result: NewResult[struct{}]()}
}

// NewExit returns a hard shutdown command.
func NewExit() *Shutdown {
	return &Shutdown{kind: Hard, result: NewResult[struct{}]()}
}

func (s *Shutdown) Name() string { return s.kind.directive() }

func (s *Shutdown) State() State { return s.state }

func (s *Shutdown) Done() bool { return s.state == StateDone }

// Result returns the result cell; it carries no value.
func (s *Shutdown) Result() *Result[struct{}] { return s.result }

func (s *Shutdown) Start(w LineWriter) error {
	if s.state != StateWaiting {
		return fmt.Errorf("%s already started", s.Name())
	}
	if err := w.WriteLine(s.kind.directive()); err != nil {
		s.Fail(err)
		return err
	}
	s.state = StateDone
	s.result.Resolve(struct{}{})
	return nil
}

// FeedLine ignores input; the reader sends nothing for a shutdown.
func (s *Shutdown) FeedLine(string) error { return nil }

func (s *Shutdown) Fail(err error) {
	s.result.Reject(err)
	s.state = StateDone
}

func (s *Shutdown) sealed() {}
