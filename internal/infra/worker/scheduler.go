// Package worker runs the periodic maintenance jobs of the store: session
// pruning and connection pool gauges.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nexus-voice/internal/observability/metrics"
	"nexus-voice/internal/pkg/config"
)

// Pruner deletes sessions idle or ended for longer than olderThan.
type Pruner interface {
	PruneSessions(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StatsFunc returns the current connection pool statistics.
type StatsFunc func() sql.DBStats

// Scheduler owns the cron instance running the maintenance jobs.
type Scheduler struct {
	cfg     WorkerConfig
	pruner  Pruner
	stats   StatsFunc
	metrics *WorkerMetrics
	logger  *slog.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	baseCtx context.Context
}

// NewScheduler validates cfg and registers the jobs. A nil stats disables
// the pool gauge job.
func NewScheduler(cfg WorkerConfig, pruner Pruner, stats StatsFunc, m *WorkerMetrics, logger *slog.Logger) (*Scheduler, error) {
	if pruner == nil {
		return nil, errors.New("worker: pruner is required")
	}
	if m == nil {
		return nil, errors.New("worker: metrics are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	s := &Scheduler{
		cfg:     cfg,
		pruner:  pruner,
		stats:   stats,
		metrics: m,
		logger:  logger,
		baseCtx: context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(config.CronParser),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}

	if _, err := s.cron.AddFunc(cfg.PruneSchedule, s.runPruneJob); err != nil {
		return nil, fmt.Errorf("add prune job: %w", err)
	}
	if stats != nil {
		if _, err := s.cron.AddFunc(cfg.StatsSchedule, s.CollectStats); err != nil {
			return nil, fmt.Errorf("add stats job: %w", err)
		}
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is done. Running jobs are
// cancelled through ctx and awaited before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("worker started",
		slog.String("prune_schedule", s.cfg.PruneSchedule),
		slog.String("timezone", s.cfg.Timezone),
		slog.Duration("retention", s.cfg.SessionRetention))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("worker stopped")
	return nil
}

// PruneNow runs one prune with the configured retention and timeout.
func (s *Scheduler) PruneNow(ctx context.Context) (int64, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PruneTimeout)
	defer cancel()

	deleted, err := s.pruner.PruneSessions(ctx, s.cfg.SessionRetention)
	s.metrics.RecordJobDuration(JobPrune, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordJobRun(JobPrune, "failure")
		return 0, err
	}
	s.metrics.RecordJobRun(JobPrune, "success")
	s.metrics.RecordLastSuccess(JobPrune)
	return deleted, nil
}

func (s *Scheduler) runPruneJob() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.logger.Info("session prune started")
	deleted, err := s.PruneNow(ctx)
	if err != nil {
		s.logger.Error("session prune failed", slog.Any("error", err))
		return
	}
	s.logger.Info("session prune completed", slog.Int64("deleted", deleted))
}

// CollectStats copies the pool statistics into the database gauges.
func (s *Scheduler) CollectStats() {
	start := time.Now()
	metrics.UpdateDBConnectionStats(s.stats())
	s.metrics.RecordJobDuration(JobStats, time.Since(start).Seconds())
	s.metrics.RecordJobRun(JobStats, "success")
	s.metrics.RecordLastSuccess(JobStats)
}
