package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Directives written to the reader, and the header keyword it answers with.
const (
	DirectiveFromFen = "fromfen"
	DirectiveQuit    = "quit"
	DirectiveExit    = "exit"

	HeaderPositionMoves = "positionmoves"
)

// MaxDirectiveBytes caps an outbound directive. A FEN is under 100 bytes; the
// cap keeps a bogus position from filling the reader's stdin pipe.
const MaxDirectiveBytes = 4096

var movePattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// EncodeFromFen builds the query directive. book is optional; when set the
// reader loads that book file itself instead of the one it was started with.
func EncodeFromFen(book, position string) (string, error) {
	position = strings.TrimSpace(position)
	if position == "" {
		return "", fmt.Errorf("%w: position is empty", ErrInvalidPosition)
	}
	if strings.ContainsAny(position, "\r\n") {
		return "", fmt.Errorf("%w: position must be a single line", ErrInvalidPosition)
	}

	line := DirectiveFromFen + " " + position
	book = strings.TrimSpace(book)
	if book != "" {
		if strings.ContainsAny(book, " \t\r\n") {
			return "", fmt.Errorf("%w: book path %q must not contain whitespace", ErrInvalidPosition, book)
		}
		line = DirectiveFromFen + " " + book + " " + position
	}
	if len(line) > MaxDirectiveBytes {
		return "", fmt.Errorf("%w: directive is %d bytes, limit is %d", ErrInvalidPosition, len(line), MaxDirectiveBytes)
	}
	return line, nil
}

// ParseHeader parses a "positionmoves <N>" line and returns N.
func ParseHeader(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != HeaderPositionMoves {
		return 0, protocolErr(line, "expected %q header", HeaderPositionMoves+" <N>")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return 0, protocolErr(line, "move count must be a non-negative integer")
	}
	return n, nil
}

// ParseEdge parses a "<move> <count>" data line.
func ParseEdge(line string) (Edge, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Edge{}, protocolErr(line, "expected two fields, got %d", len(fields))
	}
	if !ValidMove(fields[0]) {
		return Edge{}, protocolErr(line, "move %q is not in coordinate notation", fields[0])
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil || count < 0 {
		return Edge{}, protocolErr(line, "count must be a non-negative integer")
	}
	return Edge{Move: fields[0], Count: count}, nil
}

// ValidMove reports whether s is a coordinate-notation move such as e2e4 or e7e8q.
func ValidMove(s string) bool {
	return movePattern.MatchString(s)
}
