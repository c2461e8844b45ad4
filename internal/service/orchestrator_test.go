package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/inkwell/internal/models"
)

func TestRun_PlanTopicDueInUTC(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog", Timezone: "UTC"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Name: "February", Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "A", Date: "2026-02-27", Time: "09:00"}},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)

	summary := h.run(t)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Dispatched)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "A", summary.Results[0].Item)

	articles := h.articles(t)
	require.Len(t, articles, 1)
	assert.Equal(t, models.ArticleStatusDraft, articles[0].Status)
	assert.Equal(t, models.OriginSchedulePlan, articles[0].Origin)
	assert.Equal(t, "A", articles[0].PlanTopicTitle)
	require.NotNil(t, articles[0].SchedulePlanID)
	assert.Equal(t, plan.ID, *articles[0].SchedulePlanID)

	got, err := h.store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, got.Status)
	assert.True(t, got.Topics[0].Generated)
	require.NotNil(t, got.Topics[0].ArticleID)
	assert.Equal(t, articles[0].ID, *got.Topics[0].ArticleID)

	logs, err := h.store.ListRunLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusCompleted, logs[0].Status)
	assert.Equal(t, 1, logs[0].Dispatched)
	assert.Equal(t, 1, logs[0].Succeeded)
	assert.Equal(t, summary.RunID, logs[0].RunID)

	// A second run finds nothing to do.
	h.now = h.now.Add(10 * time.Minute)
	summary = h.run(t)
	assert.Zero(t, summary.Processed)
	assert.Len(t, h.articles(t), 1)
}

func TestRun_PlanTopicInSiteZone(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 26, 23, 59, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog", Timezone: "Asia/Tokyo"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "Sakura", Date: "2026-02-27", Time: "09:00"}},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)

	// 08:59 in Tokyo.
	summary := h.run(t)
	assert.Zero(t, summary.Dispatched)

	// 09:00 in Tokyo.
	h.now = time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	summary = h.run(t)
	assert.Equal(t, 1, summary.Dispatched)
}

func TestRun_GeneratedTopicNeverRedispatched(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{
			{Title: "Done", Date: "2026-02-27", Time: "09:00", Generated: true},
			{Title: "Later", Date: "2026-04-01", Time: "09:00"},
		},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)
	planID := plan.ID
	require.NoError(t, h.store.CreateArticle(context.Background(), &models.Article{
		UserID: "u1", SiteID: site.ID, Title: "[Failed] Done", Status: models.ArticleStatusFailed,
		Origin: models.OriginSchedulePlan, SchedulePlanID: &planID, PlanTopicTitle: "Done",
	}))

	summary := h.run(t)
	assert.Zero(t, summary.Processed)
	assert.Len(t, h.articles(t), 1)
	assert.Zero(t, h.content.calls())
}

func TestRun_PlanTopicSelfHeals(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "A", Date: "2026-02-27", Time: "09:00"}},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)
	otherPlan := uint(77)
	require.NoError(t, h.store.CreateArticle(context.Background(), &models.Article{
		UserID: "u1", SiteID: site.ID, Title: "A", Status: models.ArticleStatusDraft,
		Origin: models.OriginSchedulePlan, SchedulePlanID: &otherPlan, PlanTopicTitle: "A",
	}))

	summary := h.run(t)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.OutcomeSkippedDuplicate, summary.Results[0].Outcome)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, h.articles(t), 1)

	got, err := h.store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, got.Topics[0].Generated)
	assert.Equal(t, models.PlanStatusCompleted, got.Status)
}

func TestRun_SlotDueOncePerLocalDay(t *testing.T) {
	// Monday 2026-02-23 11:40 in Tokyo.
	h := newHarness(t, time.Date(2026, 2, 23, 2, 40, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog", Timezone: "Asia/Tokyo", Language: "ja"})

	job := &models.RecurringJob{
		UserID: "u1", SiteID: site.ID, Name: "Weekly", Theme: "Tokyo food",
		Status: models.JobStatusActive,
		Slots:  []models.Slot{{Day: "Monday", Time: "11:00", ArticleType: "guide"}},
	}
	require.NoError(t, h.store.DB().Create(job).Error)

	summary := h.run(t)
	assert.Equal(t, 1, summary.Dispatched)

	articles := h.articles(t)
	require.Len(t, articles, 1)
	assert.Equal(t, models.OriginRecurringJob, articles[0].Origin)
	assert.Equal(t, "Monday", articles[0].SlotDay)
	assert.Equal(t, "11:00", articles[0].SlotTime)
	assert.Equal(t, "guide", articles[0].ArticleType)
	assert.Equal(t, "ja", articles[0].Language)

	// A second invocation within the same hour is a duplicate.
	h.now = h.now.Add(15 * time.Minute)
	summary = h.run(t)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.OutcomeSkippedDuplicate, summary.Results[0].Outcome)
	assert.Len(t, h.articles(t), 1)

	// 12:00 local is outside the slot hour.
	h.now = time.Date(2026, 2, 23, 3, 0, 0, 0, time.UTC)
	summary = h.run(t)
	assert.Zero(t, summary.Processed)

	// Next Monday the slot runs again.
	h.now = time.Date(2026, 3, 2, 2, 10, 0, 0, time.UTC)
	summary = h.run(t)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Len(t, h.articles(t), 2)
}

func TestRun_SecondSlotOnSameLocalDayIsDuplicate(t *testing.T) {
	// Monday 2026-02-23 09:10 UTC.
	h := newHarness(t, time.Date(2026, 2, 23, 9, 10, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	job := &models.RecurringJob{
		UserID: "u1", SiteID: site.ID, Theme: "Coffee", Status: models.JobStatusActive,
		Slots: []models.Slot{{Day: "Monday", Time: "09:00"}, {Day: "Monday", Time: "15:00"}},
	}
	require.NoError(t, h.store.DB().Create(job).Error)

	summary := h.run(t)
	assert.Equal(t, 1, summary.Dispatched)

	h.now = time.Date(2026, 2, 23, 15, 10, 0, 0, time.UTC)
	summary = h.run(t)
	assert.Zero(t, summary.Dispatched)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.OutcomeSkippedDuplicate, summary.Results[0].Outcome)
	assert.Equal(t, "Monday 15:00", summary.Results[0].Item)

	articles := h.articles(t)
	require.Len(t, articles, 1)
	assert.Equal(t, "09:00", articles[0].SlotTime)
}

func TestNormalizeKeywords(t *testing.T) {
	got := normalizeKeywords([]string{"ramen, tokyo", " Ramen ", `["noodles", 'broth']`, ""})
	assert.Equal(t, []string{"ramen", "tokyo", "noodles", "broth"}, []string(got))
	assert.Empty(t, normalizeKeywords(nil))
}

func TestRun_SlotArticleKeywordsAreNormalized(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 23, 9, 10, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	job := &models.RecurringJob{
		UserID: "u1", SiteID: site.ID, Theme: "Coffee", Status: models.JobStatusActive,
		Keywords: []string{"espresso, latte", "Latte"},
		Slots:    []models.Slot{{Day: "Monday", Time: "09:00"}},
	}
	require.NoError(t, h.store.DB().Create(job).Error)

	h.run(t)

	articles := h.articles(t)
	require.Len(t, articles, 1)
	assert.Equal(t, []string{"espresso", "latte"}, []string(articles[0].Keywords))
	require.Len(t, h.content.requests, 1)
	assert.Equal(t, []string{"espresso", "latte"}, h.content.requests[0].Keywords)
}

func TestRun_FailedSlotDoesNotBlockNextWeek(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 23, 2, 40, 0, 0, time.UTC))
	h.content.err = errors.New("model overloaded")
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog", Timezone: "Asia/Tokyo"})

	job := &models.RecurringJob{
		UserID: "u1", SiteID: site.ID, Theme: "Ramen", Status: models.JobStatusActive,
		Slots: []models.Slot{{Day: "Monday", Time: "11:00"}},
	}
	require.NoError(t, h.store.DB().Create(job).Error)

	h.run(t)
	h.content.err = nil
	h.now = h.now.AddDate(0, 0, 7)
	summary := h.run(t)
	assert.Equal(t, 1, summary.Dispatched)

	articles := h.articles(t)
	require.Len(t, articles, 2)
	assert.Equal(t, models.ArticleStatusFailed, articles[0].Status)
	assert.Equal(t, models.ArticleStatusDraft, articles[1].Status)
}

func TestRun_GenerationFailureFailsItemNotRun(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC))
	h.content.err = errors.New("model overloaded")
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{
			{Title: "A", Date: "2026-02-27", Time: "08:00"},
			{Title: "B", Date: "2026-02-27", Time: "09:00"},
		},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)

	summary := h.run(t)
	assert.Equal(t, 2, summary.Dispatched)

	for _, a := range h.articles(t) {
		assert.Equal(t, models.ArticleStatusFailed, a.Status)
		assert.True(t, strings.HasPrefix(a.Title, "[Failed] "), a.Title)
		assert.NotEmpty(t, a.Excerpt)
		assert.Contains(t, a.ErrorMessage, "model overloaded")
	}

	logs, err := h.store.ListRunLogs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].Failed)
	assert.Zero(t, logs[0].Succeeded)
	for _, res := range logs[0].Results {
		assert.Equal(t, models.OutcomeFailed, res.Outcome)
	}

	errs, err := h.store.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, errs, 2)

	failed := 0
	for _, msg := range h.notifier.all() {
		if msg.Category == models.NotificationArticleFailed {
			failed++
		}
	}
	assert.Equal(t, 2, failed)

	// The topics stay generated; a failed topic is not retried.
	got, err := h.store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, got.AllGenerated())
}

func TestRun_FinalizerPanicIsContained(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC))
	h.content.panicMsg = "kaboom"
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "A", Date: "2026-02-27", Time: "09:00"}},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)

	h.run(t)

	articles := h.articles(t)
	require.Len(t, articles, 1)
	assert.Equal(t, models.ArticleStatusFailed, articles[0].Status)

	errs, err := h.store.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "kaboom")
	assert.NotEmpty(t, errs[0].StackTrace)
}

func TestRun_BudgetExpiryLeavesFailedNotGenerating(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC))
	WithBudget(50 * time.Millisecond)(h.orch)
	h.content.block = true
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Blog"})

	plan := &models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "A", Date: "2026-02-27", Time: "09:00"}},
	}
	require.NoError(t, h.store.DB().Create(plan).Error)

	h.run(t)

	articles := h.articles(t)
	require.Len(t, articles, 1)
	assert.Equal(t, models.ArticleStatusFailed, articles[0].Status)
	assert.Contains(t, articles[0].ErrorMessage, "deadline exceeded")
}

func TestRun_ScheduledArticlePublishesWithoutGeneration(t *testing.T) {
	now := time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC)
	h := newHarness(t, now)
	site := h.createSite(t, &models.Site{
		UserID: "u1", Name: "Blog", URL: "https://blog.example.com", Username: "editor", AppPassword: "secret",
	})

	at := now.Add(-5 * time.Minute)
	article := &models.Article{
		UserID: "u1", SiteID: site.ID, Title: "Hand written", Content: "<p>Already here</p>",
		Status: models.ArticleStatusScheduled, ScheduledAt: &at, Origin: models.OriginScheduled,
	}
	require.NoError(t, h.store.CreateArticle(context.Background(), article))

	summary := h.run(t)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Zero(t, h.content.calls())

	got, err := h.store.GetArticle(context.Background(), article.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusPublished, got.Status)
	assert.Equal(t, "101", got.PublishedID)
	assert.Equal(t, "https://blog.example.com/?p=101", got.PublishedURL)
	require.NotNil(t, got.PublishedAt)

	require.Len(t, h.publisher.posts, 1)
	assert.Equal(t, "Hand written", h.publisher.posts[0].Title)

	summary = h.run(t)
	assert.Zero(t, summary.Processed)
}

func TestRun_InputErrorsAreSkipped(t *testing.T) {
	now := time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC)
	h := newHarness(t, now)
	noCreds := h.createSite(t, &models.Site{UserID: "u1", Name: "No creds"})

	at := now.Add(-time.Minute)
	scheduled := &models.Article{
		UserID: "u1", SiteID: noCreds.ID, Title: "Needs creds",
		Status: models.ArticleStatusScheduled, ScheduledAt: &at, Origin: models.OriginScheduled,
	}
	require.NoError(t, h.store.CreateArticle(context.Background(), scheduled))

	require.NoError(t, h.store.DB().Create(&models.SchedulePlan{
		UserID: "u1", SiteID: 999, Name: "Orphan", Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "X", Date: "2026-02-27", Time: "09:00"}},
	}).Error)
	require.NoError(t, h.store.DB().Create(&models.SchedulePlan{
		UserID: "u1", SiteID: noCreds.ID, Name: "Typos", Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "Y", Date: "27/02/2026", Time: "09:00"}},
	}).Error)
	require.NoError(t, h.store.DB().Create(&models.RecurringJob{
		UserID: "u1", SiteID: noCreds.ID, Name: "Bad slot", Status: models.JobStatusActive,
		Slots: []models.Slot{{Day: "Caturday", Time: "09:00"}},
	}).Error)

	summary := h.run(t)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 4, summary.Skipped)
	assert.Zero(t, summary.Dispatched)
	for _, res := range summary.Results {
		assert.Equal(t, models.OutcomeSkipped, res.Outcome, res.Label)
		assert.NotEmpty(t, res.Error)
	}

	got, err := h.store.GetArticle(context.Background(), scheduled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusScheduled, got.Status, "skipped article stays scheduled")
}

func TestRun_DisabledSiteSkipped(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC))
	site := h.createSite(t, &models.Site{UserID: "u1", Name: "Off"})
	require.NoError(t, h.store.DB().Model(site).Update("enabled", false).Error)

	require.NoError(t, h.store.DB().Create(&models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "X", Date: "2026-02-27", Time: "09:00"}},
	}).Error)

	summary := h.run(t)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.OutcomeSkipped, summary.Results[0].Outcome)
	assert.Contains(t, summary.Results[0].Error, "disabled")
}

func TestRun_ProcessesInFixedOrder(t *testing.T) {
	now := time.Date(2026, 2, 23, 2, 40, 0, 0, time.UTC)
	h := newHarness(t, now)
	site := h.createSite(t, &models.Site{
		UserID: "u1", Name: "Blog", Timezone: "Asia/Tokyo",
		URL: "https://blog.example.com", Username: "editor", AppPassword: "secret",
	})

	require.NoError(t, h.store.DB().Create(&models.RecurringJob{
		UserID: "u1", SiteID: site.ID, Theme: "Job", Status: models.JobStatusActive,
		Slots: []models.Slot{{Day: "Monday", Time: "11:00"}},
	}).Error)
	require.NoError(t, h.store.DB().Create(&models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "Plan topic", Date: "2026-02-23", Time: "09:00"}},
	}).Error)
	at := now.Add(-time.Hour)
	require.NoError(t, h.store.CreateArticle(context.Background(), &models.Article{
		UserID: "u1", SiteID: site.ID, Title: "Scheduled", Content: "<p>x</p>",
		Status: models.ArticleStatusScheduled, ScheduledAt: &at, Origin: models.OriginScheduled,
	}))

	summary := h.run(t)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, models.OriginScheduled, summary.Results[0].Origin)
	assert.Equal(t, models.OriginSchedulePlan, summary.Results[1].Origin)
	assert.Equal(t, models.OriginRecurringJob, summary.Results[2].Origin)
}

func TestRun_FatalStoreErrorReturnsError(t *testing.T) {
	h := newHarness(t, time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC))
	sqlDB, err := h.store.DB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	summary, err := h.orch.Run(context.Background(), TriggerHTTP)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "scheduled articles")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.orch.Wait(ctx))
}

func TestRun_ReturnsBeforeFinalizersComplete(t *testing.T) {
	st := newTestStore(t)
	logger := zap.NewNop()
	release := make(chan struct{})
	fin := &blockingFinalizer{release: release}

	orch := NewOrchestrator(st, fin, NewTaskRunner(logger, nil), NewRunLogger(st, 5, logger), nil, logger,
		WithClock(func() time.Time { return time.Date(2026, 2, 27, 9, 5, 0, 0, time.UTC) }))

	site := &models.Site{UserID: "u1", Name: "Blog", Enabled: true}
	require.NoError(t, st.DB().Create(site).Error)
	require.NoError(t, st.DB().Create(&models.SchedulePlan{
		UserID: "u1", SiteID: site.ID, Status: models.PlanStatusActive,
		Topics: []models.Topic{{Title: "A", Date: "2026-02-27", Time: "09:00"}},
	}).Error)

	summary, err := orch.Run(context.Background(), TriggerHTTP)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Zero(t, summary.Succeeded, "finalizer still running")

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Wait(ctx))

	runs, err := orch.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
}

type blockingFinalizer struct {
	release chan struct{}
}

func (b *blockingFinalizer) Finalize(ctx context.Context, _ FinalizeTask) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
