package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusPaused    = "paused"
)

// Topic is one entry of a schedule plan. Once Generated is set it is never
// dispatched again.
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"` // YYYY-MM-DD in the plan's zone
	Time        string `json:"time"` // HH:MM in the plan's zone
	Generated   bool   `json:"generated"`
	ArticleID   *uint  `json:"article_id,omitempty"`
}

// SchedulePlan is a one-off list of dated topics for one site.
type SchedulePlan struct {
	ID               uint                       `gorm:"primaryKey" json:"id"`
	UserID           string                     `gorm:"not null;size:64;index" json:"user_id"`
	SiteID           uint                       `gorm:"not null;index" json:"site_id"`
	Name             string                     `gorm:"size:200" json:"name"`
	Topics           datatypes.JSONSlice[Topic] `json:"topics"`
	MinWords         int                        `gorm:"default:1000" json:"min_words"`
	MaxWords         int                        `gorm:"default:2000" json:"max_words"`
	ImagesPerArticle int                        `gorm:"default:0" json:"images_per_article"`
	Style            string                     `gorm:"size:200" json:"style"`
	AutoPublish      bool                       `gorm:"default:false" json:"auto_publish"`
	Status           string                     `gorm:"size:20;index;default:'active'" json:"status"`
	CreatedAt        time.Time                  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt             `gorm:"index" json:"deleted_at"`
}

// AllGenerated reports whether every topic has been dispatched.
func (p *SchedulePlan) AllGenerated() bool {
	for _, t := range p.Topics {
		if !t.Generated {
			return false
		}
	}
	return true
}
