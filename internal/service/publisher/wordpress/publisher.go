package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/models"
	"github.com/ifuryst/inkwell/internal/service/publisher"
)

// WordPressPublisher publishes through the WordPress REST API using
// application passwords.
type WordPressPublisher struct {
	logger *zap.Logger
	client *http.Client
}

// WordPress API request structures
type WordPressPostRequest struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Excerpt       string `json:"excerpt,omitempty"`
	Status        string `json:"status"`
	Slug          string `json:"slug,omitempty"`
	DateGMT       string `json:"date_gmt,omitempty"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
}

type WordPressPostResponse struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

type WordPressMediaResponse struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
	MimeType  string `json:"mime_type"`
}

type WordPressError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewWordPressPublisher(logger *zap.Logger, timeout time.Duration) publisher.Publisher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WordPressPublisher{
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *WordPressPublisher) GetPlatformName() string {
	return models.PlatformWordPress
}

func (p *WordPressPublisher) ValidateConfig(config publisher.PublishConfig) error {
	required := []string{"base_url", "username", "app_password"}

	for _, key := range required {
		if config.Config[key] == "" {
			return fmt.Errorf("missing required config: %s", key)
		}
	}

	return nil
}

func (p *WordPressPublisher) UploadResource(ctx context.Context, resource publisher.Resource, config publisher.PublishConfig) (*publisher.Resource, error) {
	if len(resource.Data) == 0 {
		return nil, fmt.Errorf("resource %s has no data", resource.Filename)
	}

	mimeType := resource.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(resource.Data)
	}

	endpoint := config.Config["base_url"] + "/wp-json/wp/v2/media"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(resource.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, resource.Filename))
	p.setAuth(req, config)

	var media WordPressMediaResponse
	if err := p.do(req, &media); err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	uploaded := resource
	uploaded.ID = strconv.Itoa(media.ID)
	uploaded.URL = media.SourceURL
	uploaded.Data = nil
	if uploaded.Metadata == nil {
		uploaded.Metadata = make(map[string]string)
	}
	uploaded.Metadata["uploaded_url"] = media.SourceURL

	p.logger.Debug("Uploaded media to WordPress",
		zap.Int("media_id", media.ID),
		zap.String("url", media.SourceURL))
	return &uploaded, nil
}

func (p *WordPressPublisher) PublishDirect(ctx context.Context, content publisher.PublishContent, config publisher.PublishConfig) (*publisher.PublishResult, error) {
	status := content.Status
	if status == "" {
		status = publisher.StatusPublish
	}

	post := WordPressPostRequest{
		Title:   content.Title,
		Content: content.Content,
		Excerpt: content.Summary,
		Status:  status,
		Slug:    content.Slug,
	}
	if content.FeaturedMediaID != "" {
		if id, err := strconv.Atoi(content.FeaturedMediaID); err == nil {
			post.FeaturedMedia = id
		}
	}

	body, err := json.Marshal(post)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal post: %w", err)
	}

	endpoint := config.Config["base_url"] + "/wp-json/wp/v2/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.setAuth(req, config)

	var created WordPressPostResponse
	if err := p.do(req, &created); err != nil {
		return &publisher.PublishResult{
			Success: false,
			Error:   err,
		}, fmt.Errorf("failed to create post: %w", err)
	}

	return &publisher.PublishResult{
		Success:   true,
		PublishID: strconv.Itoa(created.ID),
		URL:       created.Link,
		Metadata: map[string]string{
			"status": created.Status,
		},
		PublishedAt: time.Now().UTC(),
	}, nil
}

func (p *WordPressPublisher) setAuth(req *http.Request, config publisher.PublishConfig) {
	req.SetBasicAuth(config.Config["username"], config.Config["app_password"])
	req.Header.Set("Accept", "application/json")
}

func (p *WordPressPublisher) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr WordPressError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("wordpress returned %d (%s): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("wordpress returned %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
