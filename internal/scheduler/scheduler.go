// Package scheduler re-runs discovery for a configured query list on an
// interval and re-analyzes catalog entries whose last analysis has gone
// stale.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
	"github.com/mcpwizard/mcpwizard/internal/discovery"
)

const staleBatchSize = 100

// Discoverer is the discovery surface the scheduler drives.
type Discoverer interface {
	Discover(ctx context.Context, opts discovery.Options) ([]*catalog.Entry, error)
	AnalyzeSingle(ctx context.Context, url string) (*catalog.Entry, error)
}

// StaleSource yields entries due for re-analysis.
type StaleSource interface {
	GetStaleEntries(ctx context.Context, maxAge time.Duration, limit int) ([]*catalog.Entry, error)
}

// Scheduler owns the background refresh loops.
type Scheduler struct {
	discovery  Discoverer
	store      StaleSource
	logger     *zap.Logger
	queries    []string
	interval   time.Duration
	staleAfter time.Duration
	workers    int
}

// Config wires a Scheduler.
type Config struct {
	Discovery  Discoverer
	Store      StaleSource
	Logger     *zap.Logger
	Queries    []string
	Interval   time.Duration
	StaleAfter time.Duration
	Workers    int
}

// New creates a scheduler. An empty query list disables the discovery
// loop; a nil store disables the stale re-analysis loop.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Scheduler{
		discovery:  cfg.Discovery,
		store:      cfg.Store,
		logger:     cfg.Logger,
		queries:    cfg.Queries,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		workers:    cfg.Workers,
	}
}

// Start runs the refresh loops until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		zap.Strings("queries", s.queries),
		zap.Duration("interval", s.interval))

	s.runRefresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			s.runRefresh(ctx)
		}
	}
}

// runRefresh runs one full refresh pass: configured queries first, then
// stale entries.
func (s *Scheduler) runRefresh(ctx context.Context) {
	for _, query := range s.queries {
		opts := discovery.DefaultOptions()
		opts.Query = query

		entries, err := s.discovery.Discover(ctx, opts)
		if err != nil {
			s.logger.Warn("scheduled discovery failed",
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		s.logger.Info("scheduled discovery complete",
			zap.String("query", query),
			zap.Int("entries", len(entries)))
	}

	s.refreshStale(ctx)
}

// refreshStale re-analyzes repository-sourced entries whose last
// analysis is older than the configured age.
func (s *Scheduler) refreshStale(ctx context.Context) {
	if s.store == nil || s.staleAfter <= 0 {
		return
	}

	stale, err := s.store.GetStaleEntries(ctx, s.staleAfter, staleBatchSize)
	if err != nil {
		s.logger.Warn("stale entry lookup failed", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	s.logger.Info("refreshing stale entries",
		zap.Int("count", len(stale)),
		zap.Int("workers", s.workers))

	jobs := make(chan *catalog.Entry, len(stale))
	for _, entry := range stale {
		// Only repository-sourced entries can be re-analyzed by URL.
		if entry.Source == catalog.SourceRepository && entry.SourceURL != "" {
			jobs <- entry
		}
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				if _, err := s.discovery.AnalyzeSingle(ctx, entry.SourceURL); err != nil {
					s.logger.Warn("stale refresh failed",
						zap.String("identity", entry.Identity),
						zap.Error(err))
				}
			}
		}()
	}
	wg.Wait()
}
