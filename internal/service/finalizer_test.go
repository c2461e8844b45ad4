package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/models"
	"github.com/ifuryst/inkwell/internal/store"
)

type finalizerFixture struct {
	st        *store.GormStore
	content   *fakeContent
	images    *fakeImages
	publisher *fakePublisher
	notifier  *fakeNotifier
	finalizer *Finalizer
	site      *models.Site
}

func newFinalizerFixture(t *testing.T, withCredentials bool) *finalizerFixture {
	t.Helper()
	st := newTestStore(t)
	site := &models.Site{UserID: "u1", Name: "Blog", Enabled: true}
	if withCredentials {
		site.URL = "https://blog.example.com"
		site.Username = "editor"
		site.AppPassword = "secret"
	}
	require.NoError(t, st.DB().Create(site).Error)

	f := &finalizerFixture{
		st:        st,
		content:   &fakeContent{},
		images:    &fakeImages{fail: map[int]bool{}},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		site:      site,
	}
	f.finalizer = NewFinalizer(st, f.content, f.images, f.publisher, f.notifier, nil, zap.NewNop())
	return f
}

func (f *finalizerFixture) placeholder(t *testing.T, a *models.Article) *models.Article {
	t.Helper()
	a.UserID = "u1"
	a.SiteID = f.site.ID
	if a.Status == "" {
		a.Status = models.ArticleStatusGenerating
	}
	require.NoError(t, f.st.CreateArticle(context.Background(), a))
	return a
}

func (f *finalizerFixture) reload(t *testing.T, id uint) *models.Article {
	t.Helper()
	a, err := f.st.GetArticle(context.Background(), id)
	require.NoError(t, err)
	return a
}

func TestFinalize_PublishesWithImages(t *testing.T) {
	f := newFinalizerFixture(t, true)
	a := f.placeholder(t, &models.Article{
		Title: "Ramen", Topic: "Ramen", Origin: models.OriginRecurringJob,
		AutoPublish: true, ImageCount: 2, Keywords: []string{"noodles"}, MinWords: 5, MaxWords: 500,
	})

	err := f.finalizer.Finalize(context.Background(), FinalizeTask{RunID: "r1", Article: a, Site: f.site})
	require.NoError(t, err)

	got := f.reload(t, a.ID)
	assert.Equal(t, models.ArticleStatusPublished, got.Status)
	assert.Equal(t, "Generated: Ramen", got.Title)
	assert.Equal(t, "About Ramen", got.Excerpt)
	assert.Equal(t, "101", got.PublishedID)
	assert.NotNil(t, got.PublishedAt)
	assert.Positive(t, got.WordCount)
	assert.Positive(t, got.QualityScore)

	require.Len(t, f.publisher.uploads, 3, "thumbnail plus two inline images")
	assert.True(t, strings.HasPrefix(got.ThumbnailURL, "https://cdn.example.com/generated-ramen-"))
	assert.Len(t, got.ImageURLs, 2)
	for _, u := range got.ImageURLs {
		assert.Contains(t, got.Content, u)
	}
	assert.NotContains(t, got.Content, got.ThumbnailURL)

	require.Len(t, f.publisher.posts, 1)
	post := f.publisher.posts[0]
	assert.Equal(t, "m"+f.publisher.uploads[0].Filename, post.FeaturedMediaID)
	assert.Equal(t, "generated-ramen", post.Slug)

	msgs := f.notifier.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.NotificationArticlePublished, msgs[0].Category)
	assert.Equal(t, "https://blog.example.com/?p=101", msgs[0].Link)
}

func TestFinalize_ImageFailuresAreBestEffort(t *testing.T) {
	f := newFinalizerFixture(t, true)
	f.images.fail = map[int]bool{0: true, 2: true}
	a := f.placeholder(t, &models.Article{Topic: "Tea", Origin: models.OriginSchedulePlan, ImageCount: 2})

	require.NoError(t, f.finalizer.Finalize(context.Background(), FinalizeTask{Article: a, Site: f.site}))

	got := f.reload(t, a.ID)
	assert.Equal(t, models.ArticleStatusDraft, got.Status, "not auto-published")
	require.Len(t, f.publisher.uploads, 1)
	assert.NotEmpty(t, got.ThumbnailURL)
	assert.Empty(t, got.ImageURLs)
	assert.Empty(t, f.publisher.posts)
}

func TestFinalize_DraftWithoutCredentials(t *testing.T) {
	f := newFinalizerFixture(t, false)
	a := f.placeholder(t, &models.Article{Topic: "Tea", Origin: models.OriginRecurringJob, AutoPublish: true, ImageCount: 3})

	require.NoError(t, f.finalizer.Finalize(context.Background(), FinalizeTask{Article: a, Site: f.site}))

	got := f.reload(t, a.ID)
	assert.Equal(t, models.ArticleStatusDraft, got.Status)
	assert.Empty(t, f.publisher.uploads)
	assert.Zero(t, f.images.calls)

	msgs := f.notifier.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.NotificationArticleDrafted, msgs[0].Category)
}

func TestFinalize_PublishFailureMarksFailed(t *testing.T) {
	f := newFinalizerFixture(t, true)
	f.publisher.publishErr = errors.New("wordpress returned 500")
	a := f.placeholder(t, &models.Article{Topic: "A very long topic " + strings.Repeat("x", 300), Origin: models.OriginRecurringJob, AutoPublish: true})

	err := f.finalizer.Finalize(context.Background(), FinalizeTask{RunID: "r9", Article: a, Site: f.site})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish failed")

	got := f.reload(t, a.ID)
	assert.Equal(t, models.ArticleStatusFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.Title, "[Failed] A very long topic"))
	assert.LessOrEqual(t, len([]rune(got.Title)), len("[Failed] ")+200)
	assert.Contains(t, got.Excerpt, "Sorry")
	assert.Contains(t, got.ErrorMessage, "wordpress returned 500")

	errs, err := f.st.RecentErrors(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "r9", errs[0].RunID)
	assert.Equal(t, "finalizer", errs[0].Source)

	msgs := f.notifier.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.NotificationArticleFailed, msgs[0].Category)
	assert.Contains(t, msgs[0].Reason, "wordpress returned 500")
}

func TestFinalize_UsesGenerationParameters(t *testing.T) {
	f := newFinalizerFixture(t, false)
	a := f.placeholder(t, &models.Article{
		Topic: "Kyoto", TopicDescription: "Temples in autumn", ArticleType: "guide",
		Language: "ja", Style: "friendly", MinWords: 800, MaxWords: 1200, Origin: models.OriginSchedulePlan,
	})

	require.NoError(t, f.finalizer.Finalize(context.Background(), FinalizeTask{Article: a, Site: f.site}))

	require.Len(t, f.content.requests, 1)
	req := f.content.requests[0]
	assert.Equal(t, "Kyoto", req.Topic)
	assert.Equal(t, "Temples in autumn", req.Description)
	assert.Equal(t, "guide", req.ArticleType)
	assert.Equal(t, "ja", req.Language)
	assert.Equal(t, 800, req.MinWords)
}
