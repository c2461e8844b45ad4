package models

import "time"

const (
	NotificationArticlePublished = "article_published"
	NotificationArticleDrafted   = "article_drafted"
	NotificationArticleFailed    = "article_failed"
)

// Notification is an in-app message. Rows with EmailTo set and Delivered
// false are picked up by the mail relay.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    string     `gorm:"not null;size:64;index" json:"user_id"`
	Category  string     `gorm:"size:50;index" json:"category"`
	Title     string     `gorm:"size:500" json:"title"`
	Body      string     `gorm:"type:text" json:"body"`
	Link      string     `gorm:"size:1000" json:"link"`
	ArticleID *uint      `gorm:"index" json:"article_id"`
	EmailTo   string     `gorm:"size:320" json:"email_to"`
	Delivered bool       `gorm:"default:false;index" json:"delivered"`
	Read      bool       `gorm:"default:false" json:"read"`
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
