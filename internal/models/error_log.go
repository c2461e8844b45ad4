package models

import (
	"time"
)

// ErrorLog records a failure worth surfacing to operators.
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN, INFO
	Source     string     `gorm:"size:100;not null;index" json:"source"` // orchestrator, finalizer, publisher
	SiteID     *uint      `gorm:"index" json:"site_id"`
	ArticleID  *uint      `gorm:"index" json:"article_id"`
	RunID      string     `gorm:"size:36;index" json:"run_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	StackTrace string     `gorm:"type:text" json:"stack_trace"`
	Context    string     `gorm:"type:text" json:"context"` // JSON
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
