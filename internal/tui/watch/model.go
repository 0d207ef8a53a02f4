package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/openbook/internal/events"
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health   HealthState
	current  string
	books    map[string]*BookStats
	readers  []*ReaderState
	eventLog []events.Event
	lastID   int64

	ticker   Ticker
	activity Activity

	theme     Theme
	bookTable table.Model
	stream    viewport.Model

	hubEvents chan events.Event
	lastError string
	now       func() time.Time
}

// New creates a watch model for the API at apiURL. apiKey may be empty
// when the API is open.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		books:     make(map[string]*BookStats),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     NewDefaultTheme(),
		bookTable: newBookTable(),
		stream:    viewport.New(80, 10),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.stream, cmd = m.stream.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bookTable.SetColumns(bookColumns(m.width - 8))
		m.bookTable.SetWidth(m.width - 6)
		m.stream.Width = m.width - 6
		m.stream.Height = max(m.height-24, 5)
		m.stream.SetContent(renderEventStream(m.eventLog, m.theme))

	case tickMsg:
		m.ticker.Tick()
		m.activity.Decay(m.now())
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m.applyEvent(events.Event(msg))
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			Status:        msg.Status,
			UptimeSeconds: msg.UptimeSeconds,
			Book:          msg.Book,
			ReaderPid:     msg.ReaderPid,
			Pending:       msg.Pending,
			Connected:     true,
			LastCheck:     m.now(),
		}
		if m.current == "" {
			m.current = msg.Book
			m.bookTable.SetRows(bookRows(m.books, m.current))
		}
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		// The pending receiveNextEvent keeps reading the same channel, so it
		// picks up the new subscription.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	var cmd tea.Cmd
	m.bookTable, cmd = m.bookTable.Update(msg)
	return m, cmd
}

// applyEvent updates every panel from e.
func (m *Model) applyEvent(e events.Event) {
	if e.At.IsZero() {
		e.At = m.now()
	}
	if e.ID > m.lastID {
		m.lastID = e.ID
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.activity.OnEvent(e.At)

	updateBookStats(m.books, e)
	var current string
	m.readers, current = updateReaders(m.readers, e)
	if current != "" {
		m.current = current
	}

	m.bookTable.SetRows(bookRows(m.books, m.current))
	m.stream.SetContent(renderEventStream(m.eventLog, m.theme))
	m.health.Connected = true
	m.lastError = ""
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.apiURL + "..."
	}

	header := renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, m.now())
	books := renderBooks(m.bookTable, m.books, m.theme, m.width)
	readers := renderReaders(m.readers, m.theme, m.width)
	stream := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.theme.Title.Render("EVENT STREAM"), m.stream.View()),
	)

	parts := []string{header, books, readers, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Books • [PgUp/PgDn] Events"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
