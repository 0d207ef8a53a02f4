package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/openbook/internal/events"
)

const maxReaders = 5

// ReaderState is one reader process seen on the event stream.
type ReaderState struct {
	ID        string
	Book      string
	Pid       int
	StartedAt time.Time
	StoppedAt time.Time
	ExitCode  int
	Reason    string
}

func (r *ReaderState) Running() bool { return r.StoppedAt.IsZero() }

type readerEvent struct {
	Book     string `json:"book"`
	ReaderID string `json:"reader_id"`
	Pid      int    `json:"pid"`
	ExitCode *int   `json:"exit_code"`
	Reason   string `json:"reason"`
}

// updateReaders folds a reader lifecycle event into readers, newest first.
// It returns the book that became current, if any.
func updateReaders(readers []*ReaderState, e events.Event) ([]*ReaderState, string) {
	if e.Type != events.TypeReaderStarted && e.Type != events.TypeReaderStopped && e.Type != events.TypeBookSelected {
		return readers, ""
	}
	var ev readerEvent
	if err := json.Unmarshal(e.Data, &ev); err != nil {
		return readers, ""
	}

	switch e.Type {
	case events.TypeBookSelected:
		return readers, ev.Book

	case events.TypeReaderStarted:
		r := &ReaderState{ID: ev.ReaderID, Book: ev.Book, Pid: ev.Pid, StartedAt: e.At}
		readers = append([]*ReaderState{r}, readers...)
		if len(readers) > maxReaders {
			readers = readers[:maxReaders]
		}
		return readers, ev.Book

	default:
		for _, r := range readers {
			if r.ID == ev.ReaderID {
				r.StoppedAt = e.At
				r.Reason = ev.Reason
				if ev.ExitCode != nil {
					r.ExitCode = *ev.ExitCode
				}
				break
			}
		}
		return readers, ""
	}
}

func renderReaders(readers []*ReaderState, theme Theme, width int) string {
	innerWidth := width - 4
	if len(readers) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("READERS"),
			theme.Dim.Render("  No reader events yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := []string{theme.Title.Render("READERS")}
	for _, r := range readers {
		lines = append(lines, renderReaderRow(r, theme))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderReaderRow(r *ReaderState, theme Theme) string {
	var status string
	switch {
	case r.Running():
		status = theme.StatusOK.Render("running")
	case r.ExitCode == 0:
		status = theme.StatusDead.Render("exited 0")
	default:
		status = theme.StatusFailed.Render(fmt.Sprintf("exited %d", r.ExitCode))
	}

	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	row := fmt.Sprintf("  %-14s pid %-7d [%s] %s  since %s",
		r.Book, r.Pid, id, status, r.StartedAt.Format("15:04:05"))
	if r.Reason != "" {
		row += theme.Dim.Render("  " + strings.TrimSpace(r.Reason))
	}
	return row
}
