// Package assess classifies book continuations into a mainline and sidelines.
package assess

import (
	"errors"

	"github.com/mattjoyce/openbook/internal/protocol"
)

// DefaultSidelineThreshold admits a continuation as a sideline when it was
// played at least once per this many games from the position.
const DefaultSidelineThreshold = 10

// ErrNoBookMove is returned when the book has no continuation for a position.
var ErrNoBookMove = errors.New("no book move")

// LineKind says how a move relates to the book.
type LineKind string

const (
	Main     LineKind = "main"
	Sideline LineKind = "sideline"
	Unknown  LineKind = "unknown"
)

// Line is a book move with its share of the games from the position, as a
// whole percentage rounded down.
type Line struct {
	Move    string `json:"move"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// Assessment is the classified view of one query result.
type Assessment struct {
	Position  string `json:"position"`
	Book      string `json:"book,omitempty"`
	Total     int    `json:"total"`
	Mainline  *Line  `json:"mainline,omitempty"`
	Sidelines []Line `json:"sidelines"`
}

// Classify picks the mainline and sidelines from res. The first edge is the
// mainline; a later edge is a sideline when count*threshold >= total. A
// threshold <= 0 means DefaultSidelineThreshold.
func Classify(res *protocol.QueryResult, threshold int) Assessment {
	if threshold <= 0 {
		threshold = DefaultSidelineThreshold
	}
	a := Assessment{Sidelines: []Line{}}
	if res == nil {
		return a
	}
	a.Position = res.Position
	a.Book = res.Book
	a.Total = res.Total()

	main, ok := res.Mainline()
	if !ok {
		return a
	}
	a.Mainline = &Line{Move: main.Move, Count: main.Count, Percent: percent(main.Count, a.Total)}

	for _, e := range res.Edges[1:] {
		if e.Count*threshold < a.Total {
			continue
		}
		a.Sidelines = append(a.Sidelines, Line{Move: e.Move, Count: e.Count, Percent: percent(e.Count, a.Total)})
	}
	return a
}

// Kind reports whether move is the mainline, a sideline, or neither.
func (a Assessment) Kind(move string) LineKind {
	if a.Mainline != nil && a.Mainline.Move == move {
		return Main
	}
	for _, s := range a.Sidelines {
		if s.Move == move {
			return Sideline
		}
	}
	return Unknown
}

// BestMove returns the most played continuation.
func BestMove(res *protocol.QueryResult) (protocol.Edge, error) {
	e, ok := res.Mainline()
	if !ok {
		return protocol.Edge{}, ErrNoBookMove
	}
	return e, nil
}

func percent(count, total int) int {
	if total <= 0 {
		return 0
	}
	return 100 * count / total
}
