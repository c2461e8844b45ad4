package store

import (
	"context"
	"encoding/json"

	"github.com/ifuryst/inkwell/internal/models"
)

// ErrorLogOption sets an optional field of an ErrorLog row.
type ErrorLogOption func(*models.ErrorLog)

// WithSite sets the site id.
func WithSite(siteID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.SiteID = &siteID
	}
}

// WithArticle sets the article id.
func WithArticle(articleID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ArticleID = &articleID
	}
}

// WithRun sets the run id.
func WithRun(runID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.RunID = runID
	}
}

// WithStackTrace attaches a stack trace.
func WithStackTrace(stackTrace string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.StackTrace = stackTrace
	}
}

// WithContext attaches structured context, stored as JSON.
func WithContext(context map[string]any) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordError inserts an ErrorLog row.
func (s *GormStore) RecordError(ctx context.Context, level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return s.db.WithContext(ctx).Create(errorLog).Error
}

// RecentErrors returns the newest error log rows.
func (s *GormStore) RecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	var errors []models.ErrorLog
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&errors).Error
	return errors, err
}
