// Package openings answers opening-book questions for the API and CLI. It
// puts a result cache, a query log and event publication in front of the
// book manager.
package openings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/openbook/internal/assess"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/events"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/protocol"
	"github.com/mattjoyce/openbook/internal/querylog"
	"github.com/mattjoyce/openbook/internal/state"
)

// ErrNoBookMove is returned by BestMove when the book has no continuation.
var ErrNoBookMove = assess.ErrNoBookMove

// Books is the book manager as seen by the service.
type Books interface {
	Current() book.Book
	Books() []book.Book
	Status() book.Status
	Query(ctx context.Context, position string) (*protocol.QueryResult, book.Book, error)
	Swap(ctx context.Context, name string) (book.Book, error)
}

// Cache stores results per book fingerprint.
type Cache interface {
	Get(ctx context.Context, fingerprint, position string) (*protocol.QueryResult, error)
	Put(ctx context.Context, fingerprint string, res *protocol.QueryResult) error
}

// QueryLog records lookups.
type QueryLog interface {
	Record(ctx context.Context, req querylog.RecordRequest) (string, error)
}

// SettingsStore persists service settings.
type SettingsStore interface {
	GetString(ctx context.Context, scope, key string) (string, error)
	ShallowMerge(ctx context.Context, scope string, updates json.RawMessage) (json.RawMessage, error)
}

const settingCurrentBook = "current_book"

// Options tunes a Service.
type Options struct {
	// SidelineThreshold is passed to assess.Classify.
	SidelineThreshold int
}

// Service is safe for concurrent use. Cache, log, settings and events are
// optional; a nil one is skipped.
type Service struct {
	books    Books
	cache    Cache
	log      QueryLog
	settings SettingsStore
	events   events.Publisher

	threshold int
	logger    *slog.Logger
}

func NewService(books Books, cache Cache, qlog QueryLog, settings SettingsStore, pub events.Publisher, opts Options) *Service {
	return &Service{
		books:     books,
		cache:     cache,
		log:       qlog,
		settings:  settings,
		events:    pub,
		threshold: opts.SidelineThreshold,
		logger:    log.WithComponent("openings"),
	}
}

// Answer is a lookup result with its provenance.
type Answer struct {
	QueryID string                `json:"query_id,omitempty"`
	Source  querylog.Source       `json:"source"`
	Book    book.Book             `json:"book"`
	Result  *protocol.QueryResult `json:"result"`
}

// NormalizePosition collapses runs of whitespace so equal positions share a
// cache entry.
func NormalizePosition(position string) string {
	return strings.Join(strings.Fields(position), " ")
}

// Lookup returns the continuations of position in the current book.
// submittedBy names the caller in the query log.
func (s *Service) Lookup(ctx context.Context, position, submittedBy string) (*Answer, error) {
	position = NormalizePosition(position)
	if position == "" {
		return nil, fmt.Errorf("%w: position is empty", protocol.ErrInvalidPosition)
	}
	started := time.Now()

	if s.cache != nil {
		cur := s.books.Current()
		res, err := s.cache.Get(ctx, cur.Fingerprint, position)
		if err != nil {
			s.logger.Warn("cache read failed", "error", err)
		} else if res != nil {
			res.Book = cur.Name
			ans := &Answer{Source: querylog.SourceCache, Book: cur, Result: res}
			s.finish(ctx, ans, position, submittedBy, started, nil)
			return ans, nil
		}
	}

	res, b, err := s.books.Query(ctx, position)
	if err != nil {
		if b.Name == "" {
			b = s.books.Current()
		}
		s.finish(ctx, &Answer{Source: querylog.SourceReader, Book: b}, position, submittedBy, started, err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, b.Fingerprint, res); err != nil {
			s.logger.Warn("cache write failed", "error", err)
		}
	}
	ans := &Answer{Source: querylog.SourceReader, Book: b, Result: res}
	s.finish(ctx, ans, position, submittedBy, started, nil)
	return ans, nil
}

// finish logs the lookup and publishes its event. Neither may fail the lookup.
func (s *Service) finish(ctx context.Context, ans *Answer, position, submittedBy string, started time.Time, qerr error) {
	req := querylog.RecordRequest{
		Book:        ans.Book.Name,
		Fingerprint: ans.Book.Fingerprint,
		Position:    position,
		Status:      querylog.StatusSucceeded,
		Source:      ans.Source,
		SubmittedBy: submittedBy,
		StartedAt:   started,
	}
	if submittedBy == "" {
		req.SubmittedBy = "unknown"
	}
	if qerr != nil {
		req.Status = querylog.StatusFailed
		req.LastError = qerr
		// Reader stderr only helps when the process itself failed.
		if errors.Is(qerr, protocol.ErrProcessTerminated) || errors.Is(qerr, protocol.ErrProtocol) {
			req.Stderr = s.books.Status().Stderr
		}
	} else {
		req.EdgeCount = len(ans.Result.Edges)
		if e, ok := ans.Result.Mainline(); ok {
			req.BestMove = e.Move
		}
	}

	if s.log != nil {
		// Record even if the caller's context is already done.
		id, err := s.log.Record(context.WithoutCancel(ctx), req)
		if err != nil {
			s.logger.Warn("query log write failed", "error", err)
		}
		ans.QueryID = id
	}

	if s.events == nil {
		return
	}
	payload := map[string]any{
		"query_id": ans.QueryID,
		"book":     ans.Book.Name,
		"position": position,
		"source":   ans.Source,
	}
	if qerr != nil {
		payload["error"] = qerr.Error()
		s.events.Publish(events.TypeQueryFailed, payload)
		return
	}
	payload["edges"] = req.EdgeCount
	s.events.Publish(events.TypeQueryCompleted, payload)
}

// Assess classifies the continuations of position.
func (s *Service) Assess(ctx context.Context, position, submittedBy string) (assess.Assessment, error) {
	ans, err := s.Lookup(ctx, position, submittedBy)
	if err != nil {
		return assess.Assessment{}, err
	}
	return assess.Classify(ans.Result, s.threshold), nil
}

// BestMove returns the most played continuation of position.
func (s *Service) BestMove(ctx context.Context, position, submittedBy string) (protocol.Edge, error) {
	ans, err := s.Lookup(ctx, position, submittedBy)
	if err != nil {
		return protocol.Edge{}, err
	}
	return assess.BestMove(ans.Result)
}

// BookView is a configured book and whether it is current.
type BookView struct {
	book.Book
	Current bool `json:"current"`
}

// Books lists the configured books.
func (s *Service) Books() []BookView {
	cur := s.books.Current().Name
	all := s.books.Books()
	out := make([]BookView, 0, len(all))
	for _, b := range all {
		out = append(out, BookView{Book: b, Current: b.Name == cur})
	}
	return out
}

// Status reports the live reader.
func (s *Service) Status() book.Status {
	return s.books.Status()
}

// SelectBook makes name the current book and remembers the choice.
func (s *Service) SelectBook(ctx context.Context, name string) (book.Book, error) {
	prev := s.books.Current()
	b, err := s.books.Swap(ctx, name)
	if err != nil {
		return book.Book{}, err
	}

	if s.settings != nil {
		upd, _ := json.Marshal(map[string]string{settingCurrentBook: b.Name})
		if _, err := s.settings.ShallowMerge(context.WithoutCancel(ctx), state.ScopeService, upd); err != nil {
			s.logger.Warn("failed to persist book selection", "book", b.Name, "error", err)
		}
	}
	if s.events != nil {
		st := s.books.Status()
		s.events.Publish(events.TypeBookSelected, map[string]any{
			"book":      b.Name,
			"previous":  prev.Name,
			"reader_id": st.ReaderID,
			"pid":       st.Pid,
		})
	}
	s.logger.Info("book selected", "book", b.Name, "previous", prev.Name)
	return b, nil
}

// SavedBook returns the book selected before the last shutdown, or "".
func (s *Service) SavedBook(ctx context.Context) string {
	if s.settings == nil {
		return ""
	}
	name, err := s.settings.GetString(ctx, state.ScopeService, settingCurrentBook)
	if err != nil {
		s.logger.Warn("failed to read saved book selection", "error", err)
		return ""
	}
	return name
}
