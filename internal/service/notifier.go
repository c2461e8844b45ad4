package service

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/ifuryst/inkwell/internal/models"
)

// Message keys double as the English text.
const (
	msgPublishedTitle = "Article published: %s"
	msgPublishedBody  = "Your article \"%s\" is live."
	msgDraftedTitle   = "Article ready for review: %s"
	msgDraftedBody    = "Your article \"%s\" was saved as a draft."
	msgFailedTitle    = "Article generation failed: %s"
	msgFailedBody     = "We could not create \"%s\". Reason: %s"
)

var supportedLanguages = []language.Tag{language.English, language.Japanese}

var notificationCatalog = newNotificationCatalog()

func newNotificationCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	ja := map[string]string{
		msgPublishedTitle: "記事を公開しました: %s",
		msgPublishedBody:  "記事「%s」が公開されました。",
		msgDraftedTitle:   "記事の下書きができました: %s",
		msgDraftedBody:    "記事「%s」を下書きとして保存しました。",
		msgFailedTitle:    "記事の生成に失敗しました: %s",
		msgFailedBody:     "申し訳ありません。「%s」を作成できませんでした。理由: %s",
	}
	for key, text := range ja {
		if err := b.SetString(language.Japanese, key, text); err != nil {
			panic(err)
		}
	}
	return b
}

// NotifyMessage describes one article event.
type NotifyMessage struct {
	UserID       string
	Category     string
	Language     string
	ArticleID    uint
	ArticleTitle string
	Link         string
	Email        string
	Reason       string
}

// Notifier delivers article events to users. Delivery is best-effort and never
// fails the caller.
type Notifier interface {
	Notify(ctx context.Context, msg NotifyMessage)
}

// NotificationService stores localized in-app notifications. Rows carrying an
// email address are picked up by the mail relay.
type NotificationService struct {
	store   NotificationStore
	logger  *zap.Logger
	matcher language.Matcher
}

var _ Notifier = (*NotificationService)(nil)

func NewNotificationService(store NotificationStore, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		store:   store,
		logger:  logger,
		matcher: language.NewMatcher(supportedLanguages),
	}
}

func (s *NotificationService) Notify(ctx context.Context, msg NotifyMessage) {
	title, body := s.Render(msg)

	n := &models.Notification{
		UserID:   msg.UserID,
		Category: msg.Category,
		Title:    title,
		Body:     body,
		Link:     msg.Link,
		EmailTo:  strings.TrimSpace(msg.Email),
	}
	if msg.ArticleID != 0 {
		id := msg.ArticleID
		n.ArticleID = &id
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("Failed to store notification",
			zap.String("user_id", msg.UserID),
			zap.String("category", msg.Category),
			zap.Uint("article_id", msg.ArticleID),
			zap.Error(err))
		return
	}

	s.logger.Debug("Notification stored",
		zap.String("user_id", msg.UserID),
		zap.String("category", msg.Category),
		zap.Uint("article_id", msg.ArticleID))
}

// Render returns the localized title and body of msg.
func (s *NotificationService) Render(msg NotifyMessage) (string, string) {
	p := message.NewPrinter(s.tag(msg.Language), message.Catalog(notificationCatalog))

	switch msg.Category {
	case models.NotificationArticlePublished:
		return p.Sprintf(msgPublishedTitle, msg.ArticleTitle), p.Sprintf(msgPublishedBody, msg.ArticleTitle)
	case models.NotificationArticleDrafted:
		return p.Sprintf(msgDraftedTitle, msg.ArticleTitle), p.Sprintf(msgDraftedBody, msg.ArticleTitle)
	default:
		return p.Sprintf(msgFailedTitle, msg.ArticleTitle), p.Sprintf(msgFailedBody, msg.ArticleTitle, msg.Reason)
	}
}

func (s *NotificationService) tag(lang string) language.Tag {
	code := BaseLanguage(lang)
	if code == "" {
		return language.English
	}
	_, index, confidence := s.matcher.Match(language.Make(code))
	if confidence == language.No {
		return language.English
	}
	return supportedLanguages[index]
}
