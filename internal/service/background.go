package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TaskRunner runs detached background work. Every task is tracked so the
// process can drain in-flight work before exiting.
type TaskRunner struct {
	logger   *zap.Logger
	metrics  *Metrics
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewTaskRunner(logger *zap.Logger, metrics *Metrics) *TaskRunner {
	return &TaskRunner{
		logger:  logger,
		metrics: metrics,
	}
}

// Go runs fn in its own goroutine. When group is non-nil the task also counts
// towards it. A panic inside fn is logged and never crashes the process.
func (r *TaskRunner) Go(ctx context.Context, group *sync.WaitGroup, name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	if group != nil {
		group.Add(1)
	}
	r.inFlight.Add(1)
	r.metrics.TaskStarted()

	go func() {
		defer func() {
			r.inFlight.Add(-1)
			r.metrics.TaskDone()
			if group != nil {
				group.Done()
			}
			r.wg.Done()
		}()

		if err := r.run(ctx, name, fn); err != nil {
			r.logger.Warn("Background task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

func (r *TaskRunner) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Background task panicked",
				zap.String("task", name),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("task %s panicked: %v", name, rec)
		}
	}()
	return fn(ctx)
}

// InFlight returns the number of running tasks.
func (r *TaskRunner) InFlight() int64 {
	return r.inFlight.Load()
}

// Wait blocks until every task has returned or ctx is done.
func (r *TaskRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d background tasks: %w", r.InFlight(), ctx.Err())
	}
}
