package command

import (
	"fmt"

	"github.com/mattjoyce/openbook/internal/protocol"
)

// maxPrealloc bounds the edge slice capacity taken from an untrusted header.
const maxPrealloc = 256

// Query asks for the continuations of one position.
type Query struct {
	position string
	book     string

	state    State
	expected int // -1 until the header arrives
	seen     int
	edges    []protocol.Edge
	faulted  bool
	result   *Result[*protocol.QueryResult]
}

// NewQuery returns a query for position against the reader's own book.
func NewQuery(position string) *Query {
	return NewBookQuery("", position)
}

// NewBookQuery returns a query that names the book file inline, for readers
// that load books on demand.
func NewBookQuery(book, position string) *Query {
	return &Query{
		position: position,
		book:     book,
		expected: -1,
		result:   NewResult[*protocol.QueryResult](),
	}
}

func (q *Query) Name() string { return protocol.DirectiveFromFen }

func (q *Query) State() State { return q.state }

func (q *Query) Done() bool { return q.state == StateDone }

// Position returns the queried position.
func (q *Query) Position() string { return q.position }

// Result returns the result cell.
func (q *Query) Result() *Result[*protocol.QueryResult] { return q.result }

func (q *Query) Start(w LineWriter) error {
	if q.state != StateWaiting {
		return fmt.Errorf("query already started")
	}

	line, err := protocol.EncodeFromFen(q.book, q.position)
	if err != nil {
		// Nothing was written, so the stream is unaffected.
		q.Fail(err)
		return nil
	}
	if err := w.WriteLine(line); err != nil {
		q.Fail(err)
		return err
	}
	q.state = StateRunning
	return nil
}

func (q *Query) FeedLine(line string) error {
	switch q.state {
	case StateDone:
		return nil
	case StateWaiting:
		return fmt.Errorf("query fed a line before it started")
	}

	if q.expected < 0 {
		n, err := protocol.ParseHeader(line)
		if err != nil {
			// Without a count there is no way to find where this reply ends.
			q.Fail(err)
			return err
		}
		q.expected = n
		q.edges = make([]protocol.Edge, 0, min(n, maxPrealloc))
		if n == 0 {
			q.complete()
		}
		return nil
	}

	q.seen++
	edge, err := protocol.ParseEdge(line)
	switch {
	case err != nil:
		if !q.faulted {
			q.faulted = true
			q.result.Reject(err)
		}
	case !q.faulted:
		q.edges = append(q.edges, edge)
	}

	if q.seen == q.expected {
		if q.faulted {
			q.state = StateDone
		} else {
			q.complete()
		}
	}
	return nil
}

func (q *Query) complete() {
	q.state = StateDone
	q.result.Resolve(&protocol.QueryResult{
		Position: q.position,
		Book:     q.book,
		Edges:    q.edges,
	})
}

func (q *Query) Fail(err error) {
	q.result.Reject(err)
	q.state = StateDone
}

func (q *Query) sealed() {}
