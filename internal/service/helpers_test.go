package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"

	"github.com/ifuryst/inkwell/internal/models"
	"github.com/ifuryst/inkwell/internal/service/generator"
	"github.com/ifuryst/inkwell/internal/service/publisher"
	"github.com/ifuryst/inkwell/internal/store"
)

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	db, err := store.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, store.Migrate(db))
	return store.NewGormStore(db)
}

type fakeContent struct {
	mu       sync.Mutex
	requests []generator.Request
	err      error
	panicMsg string
	block    bool
}

func (f *fakeContent) GenerateContent(ctx context.Context, req generator.Request) (*generator.Content, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Content{
		Title:   "Generated: " + req.Topic,
		Body:    "<h2>Intro</h2><p>Some text about " + req.Topic + "</p><h2>More</h2><p>Even more text</p>",
		Excerpt: "About " + req.Topic,
	}, nil
}

func (f *fakeContent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeImages struct {
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string) (*generator.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls
	f.calls++
	if f.fail[n] {
		return nil, errors.New("image backend unavailable")
	}
	return &generator.Image{Data: []byte("\x89PNG\r\n\x1a\n"), MimeType: "image/png"}, nil
}

type fakePublisher struct {
	mu         sync.Mutex
	posts      []publisher.PublishContent
	uploads    []publisher.Resource
	publishErr error
}

func (f *fakePublisher) UploadImage(ctx context.Context, site *models.Site, res publisher.Resource) (*publisher.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, res)
	res.ID = "m" + res.Filename
	res.URL = "https://cdn.example.com/" + res.Filename
	return &res, nil
}

func (f *fakePublisher) Publish(ctx context.Context, site *models.Site, content publisher.PublishContent) (*publisher.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.posts = append(f.posts, content)
	return &publisher.PublishResult{
		Success:     true,
		PublishID:   "101",
		URL:         "https://blog.example.com/?p=101",
		PublishedAt: time.Date(2026, 2, 27, 9, 6, 0, 0, time.UTC),
	}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []NotifyMessage
}

func (f *fakeNotifier) Notify(ctx context.Context, msg NotifyMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeNotifier) all() []NotifyMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NotifyMessage(nil), f.msgs...)
}

type harness struct {
	store     *store.GormStore
	content   *fakeContent
	publisher *fakePublisher
	notifier  *fakeNotifier
	orch      *Orchestrator
	now       time.Time
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		store:     newTestStore(t),
		content:   &fakeContent{},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		now:       now,
	}

	logger := zap.NewNop()
	finalizer := NewFinalizer(h.store, h.content, nil, h.publisher, h.notifier, nil, logger)
	h.orch = NewOrchestrator(
		h.store,
		finalizer,
		NewTaskRunner(logger, nil),
		NewRunLogger(h.store, 50, logger),
		nil,
		logger,
		WithClock(func() time.Time { return h.now }),
		WithBudget(10*time.Second),
	)
	return h
}

// run performs one invocation and waits for its background work.
func (h *harness) run(t *testing.T) *RunSummary {
	t.Helper()
	summary, err := h.orch.Run(context.Background(), TriggerCLI)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Wait(ctx))
	return summary
}

func (h *harness) createSite(t *testing.T, site *models.Site) *models.Site {
	t.Helper()
	site.Enabled = true
	require.NoError(t, h.store.DB().Create(site).Error)
	return site
}

func (h *harness) articles(t *testing.T) []models.Article {
	t.Helper()
	var out []models.Article
	require.NoError(t, h.store.DB().Order("id ASC").Find(&out).Error)
	return out
}
