package protocol

import (
	"errors"
	"fmt"
)

// Fault taxonomy for the book reader. Callers match with errors.Is.
var (
	// ErrSpawn means the reader executable could not be started.
	ErrSpawn = errors.New("book reader spawn failed")
	// ErrProtocol means a reply line did not match the wire grammar.
	ErrProtocol = errors.New("book reader protocol violation")
	// ErrProcessTerminated means the reader hit EOF or crashed with work outstanding.
	ErrProcessTerminated = errors.New("book reader process terminated")
	// ErrWrite means a directive could not be written to the reader's stdin.
	ErrWrite = errors.New("book reader write failed")
	// ErrClosed means the reader was torn down before the command completed.
	ErrClosed = errors.New("book reader closed")
	// ErrInvalidPosition means a query could not be encoded; nothing was sent.
	ErrInvalidPosition = errors.New("invalid position")
)

// ProtocolError describes one offending reply line.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (line %q)", ErrProtocol.Error(), e.Reason, e.Line)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protocolErr(line, format string, args ...any) error {
	return &ProtocolError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
