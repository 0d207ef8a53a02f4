// Package scheduler runs periodic maintenance: pruning expired cache
// entries and old query log rows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/openbook/internal/config"
	"github.com/mattjoyce/openbook/internal/events"
)

// Scheduler runs maintenance passes on a jittered interval.
type Scheduler struct {
	interval  time.Duration
	jitter    time.Duration
	retention time.Duration

	cache  CachePruner
	log    LogPruner
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Scheduler. cache and log may be nil when that store is
// disabled.
func New(cfg config.MaintenanceConfig, cache CachePruner, log LogPruner, pub events.Publisher, logger *slog.Logger) (*Scheduler, error) {
	interval, err := config.ParseInterval(cfg.Every)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		interval:  interval,
		jitter:    cfg.Jitter,
		retention: cfg.QueryLogRetention,
		cache:     cache,
		log:       log,
		events:    pub,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins the tick loop. The first pass runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler", "every", s.interval, "jitter", s.jitter)
	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop ends the tick loop and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)

	timer := time.NewTimer(calculateJitteredInterval(s.interval, s.jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(calculateJitteredInterval(s.interval, s.jitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Debug("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// PruneResult reports one maintenance pass.
type PruneResult struct {
	CacheEntries    int64 `json:"cache_entries"`
	QueryLogEntries int64 `json:"query_log_entries"`
}

// tick performs a single maintenance pass. Failures are logged; the next
// pass tries again.
func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Maintenance pass failed", "error", err)
	}
	if res.CacheEntries == 0 && res.QueryLogEntries == 0 {
		s.logger.Debug("Maintenance pass found nothing to prune")
		return
	}
	s.logger.Info("Maintenance pass pruned entries", "cache", res.CacheEntries, "query_log", res.QueryLogEntries)
	if s.events != nil {
		s.events.Publish(events.TypeMaintenancePruned, res)
	}
}

// RunOnce prunes both stores and returns how much it removed. It attempts
// both even if the first fails.
func (s *Scheduler) RunOnce(ctx context.Context) (PruneResult, error) {
	var (
		res  PruneResult
		errs []error
	)

	if s.cache != nil {
		n, err := s.cache.Prune(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune cache: %w", err))
		}
		res.CacheEntries = n
	}

	if s.log != nil && s.retention > 0 {
		cutoff := s.now().Add(-s.retention)
		n, err := s.log.PruneBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune query log: %w", err))
		}
		res.QueryLogEntries = n
	}

	return res, errors.Join(errs...)
}

func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	randomJitter := time.Duration(rand.Int63n(jitter.Nanoseconds()))
	return baseInterval + randomJitter
}
