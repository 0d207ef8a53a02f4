package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/openbook/internal/events"
)

const maxEventLog = 50

func renderEventStream(eventLog []events.Event, theme Theme) string {
	if len(eventLog) == 0 {
		return theme.Dim.Render("  Waiting for events...")
	}
	lines := make([]string, 0, len(eventLog))
	for _, e := range eventLog {
		lines = append(lines, formatEvent(e, theme))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeQueryCompleted:
		typeStyle = theme.StatusOK
	case events.TypeQueryFailed:
		typeStyle = theme.StatusFailed
	case events.TypeReaderStarted, events.TypeBookSelected:
		typeStyle = theme.StatusRunning
	case events.TypeReaderStopped:
		typeStyle = theme.StatusDead
	case events.TypeMaintenancePruned:
		typeStyle = theme.StatusCache
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

// extractEventDesc summarises the payload fields worth a glance.
func extractEventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if id, ok := data["query_id"].(string); ok && id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", id))
	}
	if b, ok := data["book"].(string); ok {
		parts = append(parts, b)
	}
	if prev, ok := data["previous"].(string); ok && prev != "" {
		parts = append(parts, "from "+prev)
	}
	if src, ok := data["source"].(string); ok {
		parts = append(parts, src)
	}
	if n, ok := data["edges"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d moves", int(n)))
	}
	if pid, ok := data["pid"].(float64); ok && pid > 0 {
		parts = append(parts, fmt.Sprintf("pid %d", int(pid)))
	}
	if code, ok := data["exit_code"].(float64); ok {
		parts = append(parts, fmt.Sprintf("exit %d", int(code)))
	}
	if n, ok := data["cache_entries"].(float64); ok {
		parts = append(parts, fmt.Sprintf("cache -%d", int(n)))
	}
	if n, ok := data["query_log_entries"].(float64); ok {
		parts = append(parts, fmt.Sprintf("log -%d", int(n)))
	}
	if msg, ok := data["error"].(string); ok {
		parts = append(parts, msg)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
