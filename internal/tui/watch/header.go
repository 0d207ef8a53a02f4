package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState is the last /healthz answer.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Book          string
	ReaderPid     int
	Pending       int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, ticker Ticker, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("READY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		// The service restarts the reader on the next query.
		statusText = theme.StatusRunning.Render("READER DOWN")
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}

	title := fmt.Sprintf(" OPENBOOK WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	pid := "-"
	if health.ReaderPid > 0 {
		pid = fmt.Sprintf("%d", health.ReaderPid)
	}
	statsLine := fmt.Sprintf(" %s  Book: %s  Reader pid: %s  Pending: %d  Up: %s",
		statusText,
		theme.Highlight.Render(orDash(health.Book)),
		pid,
		health.Pending,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, activity.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
