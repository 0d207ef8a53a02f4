package linechan

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"strings"
)

// LineReader reassembles newline-terminated lines from an io.Reader,
// independent of how the underlying reads are sized.
type LineReader struct {
	r   *bufio.Reader
	err error
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator ("\n" or "\r\n").
// A final fragment with no newline is returned as a line before io.EOF.
// Once an error is returned, every later call returns the same error.
func (lr *LineReader) ReadLine() (string, error) {
	if lr.err != nil {
		return "", lr.err
	}
	s, err := lr.r.ReadString('\n')
	if err != nil {
		lr.err = err
		if errors.Is(err, io.EOF) && s != "" {
			return trimEOL(s), nil
		}
		return "", err
	}
	return trimEOL(s), nil
}

// Lines yields lines until EOF. A non-EOF read error is yielded once as the
// final element.
func (lr *LineReader) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := lr.ReadLine()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
