package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ifuryst/inkwell/internal/models"
)

const maxRunLogLines = 200

// RunSummary is what one invocation reports back to its trigger.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	Trigger    string             `json:"trigger"`
	StartedAt  time.Time          `json:"started_at"`
	Processed  int                `json:"processed"`
	Dispatched int                `json:"dispatched"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	Results    []models.RunResult `json:"results"`
}

// RunRecorder accumulates the outcomes of one run. Background finalizers
// report into it concurrently with the scan.
type RunRecorder struct {
	mu      sync.Mutex
	summary RunSummary
	logs    []string
	metrics *Metrics
}

func NewRunRecorder(runID, trigger string, startedAt time.Time, metrics *Metrics) *RunRecorder {
	return &RunRecorder{
		summary: RunSummary{
			RunID:     runID,
			Trigger:   trigger,
			StartedAt: startedAt,
			Results:   []models.RunResult{},
		},
		metrics: metrics,
	}
}

// Record adds the scan-time outcome of one item.
func (r *RunRecorder) Record(result models.RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Processed++
	switch result.Outcome {
	case models.OutcomeDispatched:
		r.summary.Dispatched++
	case models.OutcomeSkipped, models.OutcomeSkippedDuplicate:
		r.summary.Skipped++
	case models.OutcomeFailed:
		r.summary.Failed++
	case models.OutcomeSucceeded:
		r.summary.Succeeded++
	}
	r.summary.Results = append(r.summary.Results, result)
	r.metrics.RecordItem(result.Origin, result.Outcome)
}

// Complete records the background outcome of a dispatched article.
func (r *RunRecorder) Complete(articleID uint, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := models.OutcomeSucceeded
	if err != nil {
		outcome = models.OutcomeFailed
		r.summary.Failed++
	} else {
		r.summary.Succeeded++
	}

	origin := ""
	for i := range r.summary.Results {
		res := &r.summary.Results[i]
		if res.ArticleID == articleID && res.Outcome == models.OutcomeDispatched {
			res.Outcome = outcome
			if err != nil {
				res.Error = err.Error()
			}
			origin = res.Origin
			break
		}
	}
	r.metrics.RecordItem(origin, outcome)
}

// Logf appends a line to the run's log.
func (r *RunRecorder) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.logs) >= maxRunLogLines {
		return
	}
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

// Summary returns a snapshot of the counts and results.
func (r *RunRecorder) Summary() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.Results = append([]models.RunResult(nil), r.summary.Results...)
	return s
}

func (r *RunRecorder) entry(status string, duration time.Duration, runErr error) *models.RunLog {
	s := r.Summary()

	r.mu.Lock()
	logs := append([]string(nil), r.logs...)
	r.mu.Unlock()

	entry := &models.RunLog{
		RunID:      s.RunID,
		Trigger:    s.Trigger,
		StartedAt:  s.StartedAt,
		DurationMs: duration.Milliseconds(),
		Processed:  s.Processed,
		Dispatched: s.Dispatched,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Status:     status,
		Results:    s.Results,
		Logs:       logs,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	return entry
}

// RunLogger persists one entry per run and keeps the table bounded.
type RunLogger struct {
	store     RunLogStore
	retention int
	logger    *zap.Logger
}

func NewRunLogger(store RunLogStore, retention int, logger *zap.Logger) *RunLogger {
	return &RunLogger{
		store:     store,
		retention: retention,
		logger:    logger,
	}
}

// Start writes the entry of a run whose scan finished. It returns the row id,
// or 0 when the write failed.
func (l *RunLogger) Start(ctx context.Context, rec *RunRecorder, scan time.Duration) uint {
	return l.create(ctx, rec.entry(models.RunStatusScanned, scan, nil))
}

// Fail writes the entry of a run aborted by err.
func (l *RunLogger) Fail(ctx context.Context, rec *RunRecorder, duration time.Duration, err error) uint {
	return l.create(ctx, rec.entry(models.RunStatusError, duration, err))
}

// Finish writes the final counts once every finalizer of the run returned.
func (l *RunLogger) Finish(ctx context.Context, id uint, rec *RunRecorder, duration time.Duration) {
	entry := rec.entry(models.RunStatusCompleted, duration, nil)
	if id == 0 {
		l.create(ctx, entry)
		return
	}

	err := l.store.UpdateRunLog(ctx, id, map[string]any{
		"duration_ms": entry.DurationMs,
		"processed":   entry.Processed,
		"dispatched":  entry.Dispatched,
		"succeeded":   entry.Succeeded,
		"failed":      entry.Failed,
		"skipped":     entry.Skipped,
		"status":      entry.Status,
		"results":     datatypes.JSONSlice[models.RunResult](entry.Results),
		"logs":        datatypes.JSONSlice[string](entry.Logs),
	})
	if err != nil {
		l.logger.Warn("Failed to finish run log",
			zap.String("run_id", entry.RunID),
			zap.Error(err))
	}
}

// Recent returns the newest entries.
func (l *RunLogger) Recent(ctx context.Context, limit int) ([]models.RunLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return l.store.ListRunLogs(ctx, limit)
}

func (l *RunLogger) create(ctx context.Context, entry *models.RunLog) uint {
	if err := l.store.CreateRunLog(ctx, entry); err != nil {
		l.logger.Warn("Failed to write run log",
			zap.String("run_id", entry.RunID),
			zap.String("status", entry.Status),
			zap.Error(err))
		return 0
	}

	deleted, err := l.store.PruneRunLogs(ctx, l.retention)
	if err != nil {
		l.logger.Warn("Failed to prune run logs", zap.Error(err))
	} else if deleted > 0 {
		l.logger.Debug("Pruned run logs", zap.Int64("deleted", deleted))
	}
	return entry.ID
}
