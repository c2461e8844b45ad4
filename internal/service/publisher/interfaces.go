package publisher

import (
	"context"
	"time"

	"github.com/ifuryst/inkwell/internal/models"
)

// PublishContent represents the content to be published
type PublishContent struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Content         string            `json:"content"`
	Summary         string            `json:"summary"`
	Tags            []string          `json:"tags"`
	Slug            string            `json:"slug"`
	Status          string            `json:"status"`
	FeaturedMediaID string            `json:"featured_media_id,omitempty"`
	PublishDate     *time.Time        `json:"publish_date"`
	Metadata        map[string]string `json:"metadata"`
	Resources       []Resource        `json:"resources"`
}

// Resource represents a media resource (image, video, etc.)
type Resource struct {
	ID       string            `json:"id"`
	Type     ResourceType      `json:"type"`
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	MimeType string            `json:"mime_type"`
	Data     []byte            `json:"-"`
	Metadata map[string]string `json:"metadata"`
}

// ResourceType defines the type of resource
type ResourceType string

const (
	ResourceTypeImage ResourceType = "image"
	ResourceTypeVideo ResourceType = "video"
	ResourceTypeFile  ResourceType = "file"
)

// Post statuses understood by publishers.
const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
)

// PublishResult represents the result of a publish operation
type PublishResult struct {
	Success     bool              `json:"success"`
	PublishID   string            `json:"publish_id,omitempty"`
	URL         string            `json:"url,omitempty"`
	Error       error             `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// PublishConfig represents platform-specific configuration
type PublishConfig struct {
	PlatformName string            `json:"platform_name"`
	Enabled      bool              `json:"enabled"`
	Config       map[string]string `json:"config"`
}

// Publisher is the unified interface for all platform operations.
// Implementations keep no per-site state: everything a call needs arrives in
// its PublishConfig, so one publisher serves concurrent finalizers.
type Publisher interface {
	GetPlatformName() string

	ValidateConfig(config PublishConfig) error

	UploadResource(ctx context.Context, resource Resource, config PublishConfig) (*Resource, error)
	PublishDirect(ctx context.Context, content PublishContent, config PublishConfig) (*PublishResult, error)
}

// FromArticle converts an Article to PublishContent
func FromArticle(article *models.Article) *PublishContent {
	metadata := map[string]string{
		"article_id": itoa(article.ID),
		"origin":     article.Origin,
	}
	if article.Language != "" {
		metadata["language"] = article.Language
	}

	return &PublishContent{
		ID:          itoa(article.ID),
		Title:       article.Title,
		Content:     article.Content,
		Summary:     article.Excerpt,
		Tags:        []string(article.Keywords),
		Status:      StatusPublish,
		PublishDate: article.ScheduledAt,
		Metadata:    metadata,
		Resources:   []Resource{},
	}
}
