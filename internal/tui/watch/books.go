package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/openbook/internal/events"
)

// BookStats counts lookups against one book as seen on the event stream.
type BookStats struct {
	Name         string
	Lookups      int
	CacheHits    int
	Failures     int
	LastPosition string
	LastError    string
	LastAt       time.Time
}

// lookupEvent is the payload of query.completed and query.failed.
type lookupEvent struct {
	QueryID  string `json:"query_id"`
	Book     string `json:"book"`
	Position string `json:"position"`
	Source   string `json:"source"`
	Edges    int    `json:"edges"`
	Error    string `json:"error"`
}

// updateBookStats folds a lookup event into stats. It reports whether the
// event was a lookup.
func updateBookStats(stats map[string]*BookStats, e events.Event) bool {
	if e.Type != events.TypeQueryCompleted && e.Type != events.TypeQueryFailed {
		return false
	}
	var ev lookupEvent
	if err := json.Unmarshal(e.Data, &ev); err != nil || ev.Book == "" {
		return false
	}

	s, ok := stats[ev.Book]
	if !ok {
		s = &BookStats{Name: ev.Book}
		stats[ev.Book] = s
	}
	s.Lookups++
	s.LastPosition = ev.Position
	s.LastAt = e.At
	if e.Type == events.TypeQueryFailed {
		s.Failures++
		s.LastError = ev.Error
	} else if ev.Source == "cache" {
		s.CacheHits++
	}
	return true
}

func newBookTable() table.Model {
	t := table.New(
		table.WithColumns(bookColumns(80)),
		table.WithFocused(true),
		table.WithHeight(6),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// bookColumns gives the last column whatever width is left.
func bookColumns(width int) []table.Column {
	fixed := []table.Column{
		{Title: "", Width: 1},
		{Title: "Book", Width: 14},
		{Title: "Lookups", Width: 8},
		{Title: "Cache", Width: 6},
		{Title: "Failed", Width: 6},
	}
	used := 0
	for _, c := range fixed {
		used += c.Width + 2
	}
	return append(fixed, table.Column{Title: "Last position", Width: max(width-used, 10)})
}

// bookRows lists books by name. current is marked with an asterisk.
func bookRows(stats map[string]*BookStats, current string) []table.Row {
	names := make([]string, 0, len(stats)+1)
	for name := range stats {
		names = append(names, name)
	}
	if _, ok := stats[current]; !ok && current != "" {
		names = append(names, current)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		mark := ""
		if name == current {
			mark = "*"
		}
		s, ok := stats[name]
		if !ok {
			rows = append(rows, table.Row{mark, name, "0", "0", "0", ""})
			continue
		}
		rows = append(rows, table.Row{
			mark,
			name,
			fmt.Sprintf("%d", s.Lookups),
			fmt.Sprintf("%d", s.CacheHits),
			fmt.Sprintf("%d", s.Failures),
			s.LastPosition,
		})
	}
	return rows
}

func renderBooks(t table.Model, stats map[string]*BookStats, theme Theme, width int) string {
	innerWidth := width - 4
	if len(t.Rows()) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("BOOKS"),
			theme.Dim.Render("  No lookups yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	parts := []string{theme.Title.Render("BOOKS"), t.View()}
	if row := t.SelectedRow(); row != nil {
		if s, ok := stats[row[1]]; ok && s.LastError != "" {
			parts = append(parts, theme.StatusFailed.Render(" last error: "+s.LastError))
		}
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
