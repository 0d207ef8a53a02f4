package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/openbook/internal/api"
	"github.com/mattjoyce/openbook/internal/events"
)

type eventMsg events.Event

type healthMsg api.HealthzResponse

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{ err error }

type reconnectMsg struct{}

// subscribeToEvents streams /events into ch until the connection drops.
// lastID resumes the stream after a reconnect.
func subscribeToEvents(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		setAuth(req, apiKey)
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{err: fmt.Errorf("GET /events: %s", resp.Status)}
		}

		return sseDisconnectedMsg{err: readSSE(resp.Body, ch)}
	}
}

// readSSE parses an event stream. Comment lines and events without data are
// skipped.
func readSSE(r io.Reader, ch chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	var cur events.Event

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(cur.Data) > 0 {
				cur.At = time.Now()
				ch <- cur
			}
			cur = events.Event{}
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.ID = id
			}
		case "event":
			cur.Type = value
		case "data":
			cur.Data = append(cur.Data, value...)
		}
	}
	return scanner.Err()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries /healthz.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+"/healthz", nil)
	if err != nil {
		return errMsg(err)
	}
	setAuth(req, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(fmt.Errorf("decode /healthz: %w", err))
	}
	return h
}

func setAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
