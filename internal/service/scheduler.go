package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/config"
)

// Runner performs one orchestrator invocation.
type Runner interface {
	Run(ctx context.Context, trigger string) (*RunSummary, error)
}

// Scheduler triggers the orchestrator in-process on a cron expression. It is
// an alternative to an external caller hitting the cron endpoint; both may be
// active at once since runs are idempotent.
type Scheduler struct {
	config *config.SchedulerConfig
	logger *zap.Logger
	runner Runner
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, runner Runner) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger,
		runner: runner,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.config.Cron, s.tick); err != nil {
		s.logger.Error("Invalid scheduler cron expression", zap.String("cron", s.config.Cron), zap.Error(err))
		return fmt.Errorf("invalid cron expression %q: %w", s.config.Cron, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	c.Start()

	s.logger.Info("Starting scheduler", zap.String("cron", s.config.Cron))
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	if c == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.cron = nil
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	summary, err := s.runner.Run(ctx, TriggerScheduler)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Scheduled run failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled run completed",
		zap.String("run_id", summary.RunID),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", duration))
}
