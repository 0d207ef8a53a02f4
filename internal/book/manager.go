package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/openbook/internal/command"
	"github.com/mattjoyce/openbook/internal/events"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/protocol"
)

// BookArgPlaceholder in reader args is replaced by the book file path.
const BookArgPlaceholder = "{book}"

// ErrUnknownBook is returned when a book name is not configured.
var ErrUnknownBook = errors.New("unknown book")

// Book is one configured opening book.
type Book struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Path  string `json:"path"`
	// Fingerprint identifies the book file contents. It is filled in when the
	// book becomes current.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Opener starts a reader for b. In inline mode b is the zero Book.
type Opener func(b Book) (*Reader, error)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Executable string
	Args       []string
	// InlineBooks keeps one reader and names the book in every query instead
	// of restarting the reader on a swap.
	InlineBooks bool
	Grace       time.Duration
	Books       []Book
	// Events receives reader lifecycle events. Optional.
	Events events.Publisher
}

// Manager owns the reader for the current book and replaces it when the book
// changes. Queries issued during a swap wait for the new reader.
type Manager struct {
	open   Opener
	inline bool
	books  []Book

	mu      sync.RWMutex
	current Book
	reader  *Reader
	closed  bool

	events events.Publisher
	logger *slog.Logger
}

// NewManager validates cfg. If open is nil, readers are started from
// cfg.Executable and cfg.Args. No reader runs until Start.
func NewManager(cfg ManagerConfig, open Opener) (*Manager, error) {
	if len(cfg.Books) == 0 {
		return nil, fmt.Errorf("no books configured")
	}
	seen := make(map[string]struct{}, len(cfg.Books))
	for _, b := range cfg.Books {
		if b.Name == "" {
			return nil, fmt.Errorf("book with path %q has no name", b.Path)
		}
		if b.Path == "" {
			return nil, fmt.Errorf("book %q has no path", b.Name)
		}
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("duplicate book name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	if open == nil {
		if cfg.Executable == "" {
			return nil, fmt.Errorf("reader executable is empty")
		}
		open = ExecOpener(cfg.Executable, cfg.Args, cfg.Grace)
	}
	return &Manager{
		open:   open,
		inline: cfg.InlineBooks,
		books:  slices.Clone(cfg.Books),
		events: cfg.Events,
		logger: log.WithComponent("book-manager"),
	}, nil
}

// ExecOpener starts executable for each book. Args equal to
// BookArgPlaceholder are replaced by the book path; if there is none the path
// is appended. In inline mode the placeholder is dropped.
func ExecOpener(executable string, args []string, grace time.Duration) Opener {
	return func(b Book) (*Reader, error) {
		return OpenConfig(Config{
			Executable: executable,
			Args:       ExpandArgs(args, b.Path),
			Book:       b.Name,
			Grace:      grace,
		})
	}
}

// ExpandArgs substitutes path into args.
func ExpandArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	substituted := false
	for _, a := range args {
		if !strings.Contains(a, BookArgPlaceholder) {
			out = append(out, a)
			continue
		}
		substituted = true
		if path == "" && a == BookArgPlaceholder {
			continue
		}
		out = append(out, strings.ReplaceAll(a, BookArgPlaceholder, path))
	}
	if !substituted && path != "" {
		out = append(out, path)
	}
	return out
}

// Books returns the configured books in configuration order.
func (m *Manager) Books() []Book {
	return slices.Clone(m.books)
}

func (m *Manager) lookup(name string) (Book, bool) {
	i := slices.IndexFunc(m.books, func(b Book) bool { return b.Name == name })
	if i < 0 {
		return Book{}, false
	}
	return m.books[i], true
}

// Start opens the reader for the named book, or the first configured book if
// name is empty.
func (m *Manager) Start(name string) error {
	if name == "" {
		name = m.books[0].Name
	}
	b, ok := m.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBook, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%w: manager is closed", protocol.ErrClosed)
	}
	if m.reader != nil {
		return fmt.Errorf("manager already started")
	}
	return m.activateLocked(b)
}

// activateLocked makes b current, starting a reader for it unless inline
// mode already has one running.
func (m *Manager) activateLocked(b Book) error {
	b.Fingerprint = fingerprintOrPath(b.Path, m.logger)

	if m.inline && m.reader != nil {
		m.current = b
		return nil
	}

	var target Book
	if !m.inline {
		target = b
	}
	r, err := m.open(target)
	if err != nil {
		return fmt.Errorf("open reader for book %q: %w", b.Name, err)
	}
	m.reader = r
	m.current = b
	m.logger.Info("book reader active", "book", b.Name, "reader_id", r.ID(), "pid", r.Pid())
	m.publish(events.TypeReaderStarted, map[string]any{
		"book":      b.Name,
		"reader_id": r.ID(),
		"pid":       r.Pid(),
	})
	return nil
}

// readerStopped publishes the end of r. exitCode is -1 when unknown.
func (m *Manager) readerStopped(r *Reader, book string, exitCode int, reason error) {
	data := map[string]any{
		"book":      book,
		"reader_id": r.ID(),
		"pid":       r.Pid(),
		"exit_code": exitCode,
	}
	if reason != nil {
		data["reason"] = reason.Error()
	}
	m.publish(events.TypeReaderStopped, data)
}

func (m *Manager) publish(eventType string, data any) {
	if m.events != nil {
		m.events.Publish(eventType, data)
	}
}

// Current returns the current book.
func (m *Manager) Current() Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Status reports the live reader, if any.
type Status struct {
	Book     Book   `json:"book"`
	ReaderID string `json:"reader_id,omitempty"`
	Pid      int    `json:"pid,omitempty"`
	Pending  int    `json:"pending"`
	Running  bool   `json:"running"`
	Stderr   string `json:"-"`
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{Book: m.current}
	if r := m.reader; r != nil {
		s.ReaderID = r.ID()
		s.Pid = r.Pid()
		s.Pending = r.Pending()
		s.Running = r.Err() == nil
		s.Stderr = r.Stderr()
	}
	return s
}

// Query answers position from the current book. The returned Book is the one
// that answered, which can differ from Current if a swap completed meanwhile.
func (m *Manager) Query(ctx context.Context, position string) (*protocol.QueryResult, Book, error) {
	q, b, err := m.submit(position)
	if err != nil {
		return nil, Book{}, err
	}
	res, err := q.Result().Wait(ctx)
	if err != nil {
		return nil, b, err
	}
	res.Book = b.Name
	return res, b, nil
}

// submit hands a query to the current reader, reviving the reader first if
// its process has gone away.
func (m *Manager) submit(position string) (*command.Query, Book, error) {
	for attempt := 0; ; attempt++ {
		m.mu.RLock()
		if m.closed {
			m.mu.RUnlock()
			return nil, Book{}, fmt.Errorf("%w: manager is closed", protocol.ErrClosed)
		}
		r, b := m.reader, m.current
		if r != nil && r.Err() == nil {
			q := command.NewQuery(position)
			if m.inline {
				q = command.NewBookQuery(b.Path, position)
			}
			err := r.enqueue(q)
			m.mu.RUnlock()
			if err != nil {
				return nil, b, err
			}
			return q, b, nil
		}
		m.mu.RUnlock()

		if attempt > 0 {
			return nil, b, fmt.Errorf("%w: no book reader is running", protocol.ErrProcessTerminated)
		}
		if err := m.revive(r); err != nil {
			return nil, b, err
		}
	}
}

// revive replaces dead with a fresh reader for the current book. It does
// nothing if another caller already replaced it.
func (m *Manager) revive(dead *Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%w: manager is closed", protocol.ErrClosed)
	}
	if m.reader != dead {
		return nil
	}
	if dead != nil {
		m.logger.Warn("book reader stopped, restarting", "book", m.current.Name, "reason", dead.Err(), "stderr", dead.Stderr())
		_ = dead.Close()
		m.reader = nil
		m.readerStopped(dead, m.current.Name, -1, dead.Err())
	}
	if m.current.Name == "" {
		return fmt.Errorf("%w: manager not started", protocol.ErrClosed)
	}
	return m.activateLocked(m.current)
}

// Swap makes the named book current. Queries already submitted are answered
// by the old reader; any still pending after its grace period fail with
// ErrClosed. If the new reader cannot start, the previous book is restored.
func (m *Manager) Swap(ctx context.Context, name string) (Book, error) {
	b, ok := m.lookup(name)
	if !ok {
		return Book{}, fmt.Errorf("%w: %q", ErrUnknownBook, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Book{}, fmt.Errorf("%w: manager is closed", protocol.ErrClosed)
	}
	prev := m.current
	if prev.Name == b.Name && m.reader != nil {
		return m.current, nil
	}

	if m.inline && m.reader != nil {
		if err := m.activateLocked(b); err != nil {
			return Book{}, err
		}
		m.logger.Info("book swapped", "from", prev.Name, "to", b.Name, "inline", true)
		return m.current, nil
	}

	if old := m.reader; old != nil {
		m.reader = nil
		code, err := old.ShutdownGraceful(ctx)
		if err != nil {
			m.logger.Warn("old book reader did not shut down cleanly", "book", prev.Name, "error", err)
		} else {
			m.logger.Debug("old book reader exited", "book", prev.Name, "exit_code", code)
		}
		m.readerStopped(old, prev.Name, code, err)
	}

	if err := m.activateLocked(b); err != nil {
		if prev.Name != "" {
			if rerr := m.activateLocked(prev); rerr != nil {
				m.logger.Error("failed to restore previous book", "book", prev.Name, "error", rerr)
			}
		}
		return Book{}, err
	}
	m.logger.Info("book swapped", "from", prev.Name, "to", b.Name)
	return m.current, nil
}

// Close shuts the current reader down gracefully. Later calls fail with
// ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.reader == nil {
		return nil
	}
	r := m.reader
	m.reader = nil
	code, err := r.ShutdownGraceful(ctx)
	m.readerStopped(r, m.current.Name, code, err)
	if err != nil {
		return fmt.Errorf("shut down book reader: %w", err)
	}
	return nil
}
