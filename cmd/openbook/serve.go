package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/openbook/internal/api"
	"github.com/mattjoyce/openbook/internal/auth"
	"github.com/mattjoyce/openbook/internal/book"
	"github.com/mattjoyce/openbook/internal/config"
	"github.com/mattjoyce/openbook/internal/events"
	"github.com/mattjoyce/openbook/internal/lock"
	"github.com/mattjoyce/openbook/internal/log"
	"github.com/mattjoyce/openbook/internal/openings"
	"github.com/mattjoyce/openbook/internal/querylog"
	"github.com/mattjoyce/openbook/internal/scheduler"
	"github.com/mattjoyce/openbook/internal/state"
	"github.com/mattjoyce/openbook/internal/storage"
)

// closeTimeout bounds the reader shutdown when the service stops.
const closeTimeout = 15 * time.Second

// stack is everything a lookup needs, opened from one config.
type stack struct {
	cfg     *config.Config
	lock    *lock.PIDLock
	db      *sql.DB
	hub     *events.Hub
	cache   *state.ResultCache
	log     *querylog.Log
	manager *book.Manager
	service *openings.Service
}

// openStack locks the state directory, opens the database and builds the
// service. The reader is not started.
func openStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	pidLock, err := lock.Acquire(lock.PathFor(cfg.State.Path))
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		_ = pidLock.Release()
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &stack{
		cfg:  cfg,
		lock: pidLock,
		db:   db,
		hub:  events.NewHub(256),
		log:  querylog.New(db),
	}

	// A nil *ResultCache must not reach the service as a non-nil interface.
	var cache openings.Cache
	if cfg.Cache.IsEnabled() {
		s.cache = state.NewResultCache(db, cfg.Cache.TTL)
		cache = s.cache
	}

	s.manager, err = book.NewManager(book.ManagerConfig{
		Executable:  cfg.Reader.Executable,
		Args:        cfg.Reader.Args,
		InlineBooks: cfg.Reader.InlineBooks,
		Grace:       cfg.Reader.ShutdownGrace,
		Books:       booksFromConfig(cfg.Books),
		Events:      s.hub,
	}, nil)
	if err != nil {
		s.close()
		return nil, err
	}

	s.service = openings.NewService(s.manager, cache, s.log, state.NewStore(db), s.hub, openings.Options{
		SidelineThreshold: cfg.Assessment.SidelineThreshold,
	})
	return s, nil
}

// startBook starts the reader on name, or on the saved selection, or on the
// configured default, in that order.
func (s *stack) startBook(ctx context.Context, name string) error {
	if name == "" {
		name = s.service.SavedBook(ctx)
		if _, ok := s.cfg.Book(name); !ok {
			name = s.cfg.DefaultBook
		}
	}
	return s.manager.Start(name)
}

func (s *stack) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.manager.Close(ctx); err != nil {
		log.WithComponent("main").Warn("book reader shutdown", "error", err)
	}
	s.close()
}

func (s *stack) close() {
	_ = s.db.Close()
	_ = s.lock.Release()
}

func booksFromConfig(in []config.BookConfig) []book.Book {
	out := make([]book.Book, 0, len(in))
	for _, b := range in {
		out = append(out, book.Book{Name: b.Name, Label: b.Label, Path: b.Path})
	}
	return out
}

func tokensFromConfig(in []config.APITokenConfig) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(in))
	for _, t := range in {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("openbook starting", "version", version, "config", cfg.SourcePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStack(ctx, cfg)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		} else {
			logger.Error("failed to start", "error", err)
		}
		return 1
	}
	defer st.shutdown()
	logger.Info("database opened", "path", cfg.State.Path, "lock", st.lock.Path())

	if err := st.startBook(ctx, ""); err != nil {
		logger.Error("failed to start book reader", "error", err)
		return 1
	}

	// An unset cache leaves a nil interface rather than a typed nil.
	var cachePruner scheduler.CachePruner
	if st.cache != nil {
		cachePruner = st.cache
	}
	sched, err := scheduler.New(cfg.Maintenance, cachePruner, st.log, st.hub, log.WithComponent("scheduler"))
	if err != nil {
		logger.Error("failed to configure maintenance", "error", err)
		return 1
	}
	sched.Start(ctx)
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)

	if cfg.API.Enabled {
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokensFromConfig(cfg.API.Auth.Tokens),
		}
		apiServer := api.New(apiConfig, st.service, st.log, st.hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("openbook running (press Ctrl+C to stop)", "book", st.manager.Current().Name)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("openbook stopped")
	return 0
}
