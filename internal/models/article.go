package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ArticleStatusGenerating = "generating"
	ArticleStatusDraft      = "draft"
	ArticleStatusPublished  = "published"
	ArticleStatusScheduled  = "scheduled"
	ArticleStatusFailed     = "failed"
)

// Origins of a work item.
const (
	OriginScheduled    = "scheduled"
	OriginSchedulePlan = "schedule_plan"
	OriginRecurringJob = "recurring_job"
)

// Article is both a user-facing article and the unit of dedup and dispatch.
// The origin columns correlate it with the slot, topic or schedule that
// produced it.
type Article struct {
	ID           uint                       `gorm:"primaryKey" json:"id"`
	UserID       string                     `gorm:"not null;size:64;index" json:"user_id"`
	SiteID       uint                       `gorm:"not null;index" json:"site_id"`
	Title        string                     `gorm:"not null;size:500" json:"title"`
	Content      string                     `gorm:"type:text" json:"content"`
	Excerpt      string                     `gorm:"type:text" json:"excerpt"`
	Status       string                     `gorm:"size:20;not null;index;default:'draft'" json:"status"`
	ArticleType  string                     `gorm:"size:100" json:"article_type"`
	Language     string                     `gorm:"size:32" json:"language"`
	Keywords     datatypes.JSONSlice[string] `json:"keywords"`
	WordCount    int                        `gorm:"default:0" json:"word_count"`
	QualityScore int                        `gorm:"default:0" json:"quality_score"`
	ThumbnailURL string                     `gorm:"size:1000" json:"thumbnail_url"`
	ImageURLs    datatypes.JSONSlice[string] `json:"image_urls"`
	PublishedID  string                     `gorm:"size:100" json:"published_id"`
	PublishedURL string                     `gorm:"size:1000" json:"published_url"`
	ScheduledAt  *time.Time                 `gorm:"index" json:"scheduled_at"`
	PublishedAt  *time.Time                 `json:"published_at"`
	ErrorMessage string                     `gorm:"type:text" json:"error_message"`

	// Generation parameters carried to the finalizer.
	Topic            string `gorm:"size:500" json:"topic"`
	TopicDescription string `gorm:"type:text" json:"topic_description"`
	MinWords         int    `json:"min_words"`
	MaxWords         int    `json:"max_words"`
	ImageCount       int    `json:"image_count"`
	Style            string `gorm:"size:200" json:"style"`
	AutoPublish      bool   `json:"auto_publish"`
	NotifyEmail      string `gorm:"size:320" json:"notify_email"`

	// Origin marker.
	Origin         string `gorm:"size:32;index" json:"origin"`
	RecurringJobID *uint  `gorm:"index:idx_articles_slot" json:"recurring_job_id"`
	SlotDay        string `gorm:"size:16;index:idx_articles_slot" json:"slot_day"`
	SlotTime       string `gorm:"size:8" json:"slot_time"`
	SchedulePlanID *uint  `gorm:"index" json:"schedule_plan_id"`
	PlanTopicTitle string `gorm:"size:500;index" json:"plan_topic_title"`

	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
