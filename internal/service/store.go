package service

import (
	"context"
	"time"

	"github.com/ifuryst/inkwell/internal/models"
	"github.com/ifuryst/inkwell/internal/store"
)

// Store is the persistence the publishing engine needs. *store.GormStore
// implements it.
type Store interface {
	DedupStore
	RunLogStore
	NotificationStore

	GetSite(ctx context.Context, id uint) (*models.Site, error)
	FindDueScheduledArticles(ctx context.Context, now time.Time) ([]models.Article, error)
	FindActivePlans(ctx context.Context) ([]models.SchedulePlan, error)
	FindActiveJobs(ctx context.Context) ([]models.RecurringJob, error)

	CreateArticle(ctx context.Context, article *models.Article) error
	UpdateArticle(ctx context.Context, id uint, fields map[string]any) error
	SavePlanTopics(ctx context.Context, plan *models.SchedulePlan) error

	RecordError(ctx context.Context, level, source, title, message string, options ...store.ErrorLogOption) error
}

// RunLogStore persists run log entries.
type RunLogStore interface {
	CreateRunLog(ctx context.Context, entry *models.RunLog) error
	UpdateRunLog(ctx context.Context, id uint, fields map[string]any) error
	ListRunLogs(ctx context.Context, limit int) ([]models.RunLog, error)
	PruneRunLogs(ctx context.Context, keep int) (int64, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

var _ Store = (*store.GormStore)(nil)
