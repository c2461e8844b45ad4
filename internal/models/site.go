package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const PlatformWordPress = "wordpress"

// Site is a publishing destination owned by one user.
type Site struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      string         `gorm:"not null;size:64;index" json:"user_id"`
	Name        string         `gorm:"not null;size:200" json:"name"`
	URL         string         `gorm:"size:500" json:"url"`
	Platform    string         `gorm:"size:50;default:'wordpress'" json:"platform"`
	Username    string         `gorm:"size:200" json:"username"`
	AppPassword string         `gorm:"size:500" json:"-"`
	Timezone    string         `gorm:"size:64" json:"timezone"`
	Language    string         `gorm:"size:32" json:"language"`
	Enabled     bool           `gorm:"default:true" json:"enabled"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// HasCredentials reports whether the site can be published to.
func (s *Site) HasCredentials() bool {
	return strings.TrimSpace(s.URL) != "" &&
		strings.TrimSpace(s.Username) != "" &&
		strings.TrimSpace(s.AppPassword) != ""
}
