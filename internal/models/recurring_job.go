package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusActive = "active"
	JobStatusPaused = "paused"
	JobStatusDraft  = "draft"
)

// Slot is one weekly entry of a recurring job. Slots carry no run state.
type Slot struct {
	Day         string `json:"day"`  // English weekday name
	Time        string `json:"time"` // HH:MM in the job's zone
	ArticleType string `json:"article_type"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (s Slot) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RecurringJob publishes on a weekly template of slots for one site.
type RecurringJob struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	UserID           string                      `gorm:"not null;size:64;index" json:"user_id"`
	SiteID           uint                        `gorm:"not null;index" json:"site_id"`
	Name             string                      `gorm:"size:200" json:"name"`
	Slots            datatypes.JSONSlice[Slot]   `json:"slots"`
	Language         string                      `gorm:"size:32" json:"language"`
	Theme            string                      `gorm:"size:500" json:"theme"`
	Keywords         datatypes.JSONSlice[string] `json:"keywords"`
	MinWords         int                         `gorm:"default:1000" json:"min_words"`
	MaxWords         int                         `gorm:"default:2000" json:"max_words"`
	ImagesPerArticle int                         `gorm:"default:0" json:"images_per_article"`
	Style            string                      `gorm:"size:200" json:"style"`
	NotifyEmail      string                      `gorm:"size:320" json:"notify_email"`
	Timezone         string                      `gorm:"size:64" json:"timezone"`
	AutoPublish      bool                        `gorm:"default:false" json:"auto_publish"`
	Status           string                      `gorm:"size:20;index;default:'draft'" json:"status"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt              `gorm:"index" json:"deleted_at"`
}
