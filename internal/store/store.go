// Package store is the gorm-backed persistence layer. It holds no state of its
// own; every "already processed" question is answered from the rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ifuryst/inkwell/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// GormStore implements the persistence operations used by the service layer.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetSite loads a site by id.
func (s *GormStore) GetSite(ctx context.Context, id uint) (*models.Site, error) {
	var site models.Site
	if err := s.db.WithContext(ctx).First(&site, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("site %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get site %d: %w", id, err)
	}
	return &site, nil
}

// FindDueScheduledArticles returns scheduled articles whose time has come.
func (s *GormStore) FindDueScheduledArticles(ctx context.Context, now time.Time) ([]models.Article, error) {
	var articles []models.Article
	err := s.db.WithContext(ctx).
		Where("status = ?", models.ArticleStatusScheduled).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now.UTC()).
		Order("scheduled_at ASC, id ASC").
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due scheduled articles: %w", err)
	}
	return articles, nil
}

// ClaimScheduledArticle moves an article from scheduled to generating. It
// reports false when the article was no longer scheduled.
func (s *GormStore) ClaimScheduledArticle(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND status = ?", id, models.ArticleStatusScheduled).
		Updates(map[string]any{
			"status":        models.ArticleStatusGenerating,
			"error_message": "",
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim article %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindActivePlans returns every active schedule plan.
func (s *GormStore) FindActivePlans(ctx context.Context) ([]models.SchedulePlan, error) {
	var plans []models.SchedulePlan
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PlanStatusActive).
		Order("id ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active schedule plans: %w", err)
	}
	return plans, nil
}

// FindActiveJobs returns every active recurring job.
func (s *GormStore) FindActiveJobs(ctx context.Context) ([]models.RecurringJob, error) {
	var jobs []models.RecurringJob
	err := s.db.WithContext(ctx).
		Where("status = ?", models.JobStatusActive).
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active recurring jobs: %w", err)
	}
	return jobs, nil
}

// HasPlanTopicArticle reports whether a plan-originated article already exists
// for the user and exact topic title.
func (s *GormStore) HasPlanTopicArticle(ctx context.Context, userID, title string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("user_id = ? AND plan_topic_title = ?", userID, title).
		Where("schedule_plan_id IS NOT NULL").
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check topic %q: %w", title, err)
	}
	return count > 0, nil
}

// HasSlotArticle reports whether the job already produced an article for the
// slot day created within [start, end].
func (s *GormStore) HasSlotArticle(ctx context.Context, jobID uint, day string, start, end time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("recurring_job_id = ? AND slot_day = ?", jobID, day).
		Where("created_at >= ? AND created_at <= ?", start.UTC(), end.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check slot %s of job %d: %w", day, jobID, err)
	}
	return count > 0, nil
}

// CreateArticle inserts a new article. The insert is the dedup fence, so it
// must not be batched or deferred.
func (s *GormStore) CreateArticle(ctx context.Context, article *models.Article) error {
	if !article.CreatedAt.IsZero() {
		article.CreatedAt = article.CreatedAt.UTC()
	}
	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// GetArticle loads an article by id.
func (s *GormStore) GetArticle(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return &article, nil
}

// UpdateArticle writes the given columns of one article.
func (s *GormStore) UpdateArticle(ctx context.Context, id uint, fields map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update article %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return nil
}

// SavePlanTopics persists the topic flags and status of a plan.
func (s *GormStore) SavePlanTopics(ctx context.Context, plan *models.SchedulePlan) error {
	err := s.db.WithContext(ctx).
		Model(&models.SchedulePlan{}).
		Where("id = ?", plan.ID).
		Updates(map[string]any{
			"topics": plan.Topics,
			"status": plan.Status,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save topics of plan %d: %w", plan.ID, err)
	}
	return nil
}

// GetPlan loads a schedule plan by id.
func (s *GormStore) GetPlan(ctx context.Context, id uint) (*models.SchedulePlan, error) {
	var plan models.SchedulePlan
	if err := s.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plan %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plan %d: %w", id, err)
	}
	return &plan, nil
}

// CreateNotification inserts a notification row.
func (s *GormStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
