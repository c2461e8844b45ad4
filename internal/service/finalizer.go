package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ifuryst/inkwell/internal/models"
	"github.com/ifuryst/inkwell/internal/service/generator"
	"github.com/ifuryst/inkwell/internal/service/publisher"
	"github.com/ifuryst/inkwell/internal/store"
	"github.com/ifuryst/inkwell/pkg/util"
)

const (
	failedTitlePrefix  = "[Failed] "
	maxFailedTitle     = 200
	maxFailedExcerpt   = 300
	maxErrorMessage    = 2000
	defaultWriteBudget = 15 * time.Second
)

// SitePublisher pushes media and posts to a user's site.
type SitePublisher interface {
	UploadImage(ctx context.Context, site *models.Site, resource publisher.Resource) (*publisher.Resource, error)
	Publish(ctx context.Context, site *models.Site, content publisher.PublishContent) (*publisher.PublishResult, error)
}

// FinalizeTask is one dispatched article awaiting its content.
type FinalizeTask struct {
	RunID   string
	Article *models.Article
	Site    *models.Site
}

// ArticleFinalizer completes a dispatched article.
type ArticleFinalizer interface {
	Finalize(ctx context.Context, task FinalizeTask) error
}

// FinalizerStore is the persistence a finalizer writes to.
type FinalizerStore interface {
	UpdateArticle(ctx context.Context, id uint, fields map[string]any) error
	RecordError(ctx context.Context, level, source, title, message string, options ...store.ErrorLogOption) error
}

// Finalizer generates, illustrates, publishes and records one article. It
// always leaves the article in a terminal state: draft, published or failed.
type Finalizer struct {
	store        FinalizerStore
	content      generator.ContentGenerator
	images       generator.ImageGenerator
	publisher    SitePublisher
	notifier     Notifier
	metrics      *Metrics
	logger       *zap.Logger
	writeTimeout time.Duration
}

var _ ArticleFinalizer = (*Finalizer)(nil)

// NewFinalizer wires a finalizer. images and publisher may be nil, which
// disables illustrations and remote publishing respectively.
func NewFinalizer(
	store FinalizerStore,
	content generator.ContentGenerator,
	images generator.ImageGenerator,
	publisher SitePublisher,
	notifier Notifier,
	metrics *Metrics,
	logger *zap.Logger,
) *Finalizer {
	return &Finalizer{
		store:        store,
		content:      content,
		images:       images,
		publisher:    publisher,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		writeTimeout: defaultWriteBudget,
	}
}

// Finalize runs the article to a terminal state. The returned error is the
// reason the article failed.
func (f *Finalizer) Finalize(ctx context.Context, task FinalizeTask) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("finalizer panicked: %v", rec)
			f.fail(ctx, task, err, string(debug.Stack()))
		}
		status := "success"
		if err != nil {
			status = "failed"
		}
		f.metrics.ObserveFinalizer(status, time.Since(start))
	}()

	if err = f.finalize(ctx, task); err != nil {
		f.fail(ctx, task, err, "")
	}
	return err
}

func (f *Finalizer) finalize(ctx context.Context, task FinalizeTask) error {
	article := task.Article
	site := task.Site

	content := generator.Content{
		Title:   article.Title,
		Body:    article.Content,
		Excerpt: article.Excerpt,
	}

	// Directly-scheduled articles usually carry their body already.
	if article.Origin != models.OriginScheduled || strings.TrimSpace(article.Content) == "" {
		generated, err := f.content.GenerateContent(ctx, generationRequest(article))
		if err != nil {
			return fmt.Errorf("content generation failed: %w", err)
		}
		content = *generated
	}

	canUpload := f.publisher != nil && site.HasCredentials()
	shouldPublish := canUpload && (article.AutoPublish || article.Origin == models.OriginScheduled)

	body := content.Body
	var imageURLs []string
	thumbnail := article.ThumbnailURL
	featuredID := ""
	// One thumbnail plus ImageCount inline images.
	if article.ImageCount > 0 && f.images != nil && canUpload {
		uploaded := f.illustrate(ctx, task, content.Title, article.ImageCount+1)
		if len(uploaded) > 0 {
			thumbnail = uploaded[0].URL
			featuredID = uploaded[0].ID
		}
		for _, res := range uploaded[min(1, len(uploaded)):] {
			imageURLs = append(imageURLs, res.URL)
		}
		if len(imageURLs) > 0 {
			withImages, err := InsertImages(body, imageURLs, content.Title)
			if err != nil {
				f.logger.Warn("Failed to insert images, keeping text only",
					zap.Uint("article_id", article.ID),
					zap.Error(err))
			} else {
				body = withImages
			}
		}
	}

	status := models.ArticleStatusDraft
	var publishedID, publishedURL string
	var publishedAt *time.Time
	if shouldPublish {
		post := publisher.FromArticle(article)
		post.Title = content.Title
		post.Content = body
		post.Summary = content.Excerpt
		post.Slug = util.GenerateSlug(content.Title)
		post.FeaturedMediaID = featuredID

		result, err := f.publisher.Publish(ctx, site, *post)
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}

		status = models.ArticleStatusPublished
		publishedID = result.PublishID
		publishedURL = result.URL
		at := result.PublishedAt
		if at.IsZero() {
			at = time.Now()
		}
		at = at.UTC()
		publishedAt = &at
	}

	words := CountWords(body)
	score := QualityScore(QualityInput{
		HTML:       body,
		Excerpt:    content.Excerpt,
		Keywords:   []string(article.Keywords),
		MinWords:   article.MinWords,
		MaxWords:   article.MaxWords,
		WantImages: article.ImageCount,
	})

	fields := map[string]any{
		"title":         content.Title,
		"content":       body,
		"excerpt":       content.Excerpt,
		"status":        status,
		"word_count":    words,
		"quality_score": score,
		"thumbnail_url": thumbnail,
		"image_urls":    datatypes.JSONSlice[string](imageURLs),
		"published_id":  publishedID,
		"published_url": publishedURL,
		"published_at":  publishedAt,
		"error_message": "",
	}

	writeCtx, cancel := f.writeContext(ctx)
	defer cancel()

	if err := f.store.UpdateArticle(writeCtx, article.ID, fields); err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}

	category := models.NotificationArticleDrafted
	if status == models.ArticleStatusPublished {
		category = models.NotificationArticlePublished
	}
	f.notifier.Notify(writeCtx, NotifyMessage{
		UserID:       article.UserID,
		Category:     category,
		Language:     article.Language,
		ArticleID:    article.ID,
		ArticleTitle: content.Title,
		Link:         publishedURL,
		Email:        article.NotifyEmail,
	})

	f.logger.Info("Article finalized",
		zap.String("run_id", task.RunID),
		zap.Uint("article_id", article.ID),
		zap.String("origin", article.Origin),
		zap.String("status", status),
		zap.Int("word_count", words),
		zap.Int("quality_score", score),
		zap.Int("images", len(imageURLs)))
	return nil
}

// illustrate generates and uploads up to count images. Failures are logged
// and skipped.
func (f *Finalizer) illustrate(ctx context.Context, task FinalizeTask, title string, count int) []publisher.Resource {
	var uploaded []publisher.Resource
	slug := util.GenerateSlug(title)
	if slug == "" {
		slug = "article"
	}

	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}

		prompt := imagePrompt(title, task.Article.Style, i)
		img, err := f.images.GenerateImage(ctx, prompt)
		if err != nil {
			f.logger.Warn("Image generation failed, skipping",
				zap.Uint("article_id", task.Article.ID),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}

		res, err := f.publisher.UploadImage(ctx, task.Site, publisher.Resource{
			Type:     publisher.ResourceTypeImage,
			Filename: fmt.Sprintf("%s-%s%s", slug, uuid.NewString()[:8], imageExtension(img.MimeType)),
			MimeType: img.MimeType,
			Data:     img.Data,
			Metadata: map[string]string{"prompt": prompt},
		})
		if err != nil {
			f.logger.Warn("Image upload failed, skipping",
				zap.Uint("article_id", task.Article.ID),
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		uploaded = append(uploaded, *res)
	}
	return uploaded
}

// fail moves the article to failed, records an error log and tells the user.
// Each write is attempted even when an earlier one failed.
func (f *Finalizer) fail(ctx context.Context, task FinalizeTask, cause error, stack string) {
	article := task.Article
	writeCtx, cancel := f.writeContext(ctx)
	defer cancel()

	label := article.Topic
	if label == "" {
		label = article.Title
	}

	fields := map[string]any{
		"status":        models.ArticleStatusFailed,
		"title":         failedTitlePrefix + util.Truncate(label, maxFailedTitle),
		"excerpt":       util.Truncate(fmt.Sprintf("Sorry, this article could not be generated: %v", cause), maxFailedExcerpt),
		"error_message": util.Truncate(cause.Error(), maxErrorMessage),
	}
	if err := f.store.UpdateArticle(writeCtx, article.ID, fields); err != nil {
		f.logger.Error("Failed to mark article as failed",
			zap.Uint("article_id", article.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}

	opts := []store.ErrorLogOption{
		store.WithSite(article.SiteID),
		store.WithArticle(article.ID),
		store.WithRun(task.RunID),
		store.WithContext(map[string]any{
			"origin": article.Origin,
			"topic":  label,
		}),
	}
	if stack != "" {
		opts = append(opts, store.WithStackTrace(stack))
	}
	if err := f.store.RecordError(writeCtx, "ERROR", "finalizer", "Article generation failed", cause.Error(), opts...); err != nil {
		f.logger.Warn("Failed to record error log", zap.Error(err))
	}

	f.notifier.Notify(writeCtx, NotifyMessage{
		UserID:       article.UserID,
		Category:     models.NotificationArticleFailed,
		Language:     article.Language,
		ArticleID:    article.ID,
		ArticleTitle: label,
		Email:        article.NotifyEmail,
		Reason:       util.Truncate(cause.Error(), maxFailedExcerpt),
	})

	f.logger.Error("Article failed",
		zap.String("run_id", task.RunID),
		zap.Uint("article_id", article.ID),
		zap.String("origin", article.Origin),
		zap.Error(cause))
}

// writeContext outlives the run budget so terminal writes land even after
// the budget expired.
func (f *Finalizer) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), f.writeTimeout)
}

func generationRequest(article *models.Article) generator.Request {
	topic := article.Topic
	if topic == "" {
		topic = article.Title
	}
	return generator.Request{
		Topic:       topic,
		Description: article.TopicDescription,
		ArticleType: article.ArticleType,
		Language:    article.Language,
		Keywords:    []string(article.Keywords),
		Style:       article.Style,
		MinWords:    article.MinWords,
		MaxWords:    article.MaxWords,
	}
}

func imagePrompt(title, style string, index int) string {
	prompt := fmt.Sprintf("Editorial blog illustration for an article titled %q, scene %d, no text", title, index+1)
	if style != "" {
		prompt += ", style: " + style
	}
	return prompt
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
