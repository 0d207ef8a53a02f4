package protocol

// Edge is one continuation known to the book: a move in coordinate notation
// and the number of times it was played from the queried position.
type Edge struct {
	Move  string `json:"move"`
	Count int    `json:"count"`
}

// QueryResult holds the continuations for a position in the order the reader
// sent them. The reader sorts by count, so the first edge is the mainline.
type QueryResult struct {
	Position string `json:"position"`
	Book     string `json:"book,omitempty"`
	Edges    []Edge `json:"edges"`
}

// Mainline returns the first edge, if any.
func (r *QueryResult) Mainline() (Edge, bool) {
	if r == nil || len(r.Edges) == 0 {
		return Edge{}, false
	}
	return r.Edges[0], true
}

// Total returns the sum of all edge counts.
func (r *QueryResult) Total() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, e := range r.Edges {
		total += e.Count
	}
	return total
}
