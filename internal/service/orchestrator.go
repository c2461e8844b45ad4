package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ifuryst/inkwell/internal/localtime"
	"github.com/ifuryst/inkwell/internal/models"
	"github.com/ifuryst/inkwell/internal/store"
	"github.com/ifuryst/inkwell/pkg/util"
)

// Triggers of a run.
const (
	TriggerHTTP      = "http"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

const (
	defaultRunBudget = 300 * time.Second
	runLogWriteLimit = 10 * time.Second
)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock sets the clock used to decide what is due.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithBudget caps the wall clock of one run including its background work.
func WithBudget(budget time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if budget > 0 {
			o.budget = budget
		}
	}
}

// Orchestrator scans every source of due work once per invocation and hands
// each due item to a background finalizer.
type Orchestrator struct {
	store     Store
	dedup     *DedupGuard
	finalizer ArticleFinalizer
	runner    *TaskRunner
	runLogger *RunLogger
	metrics   *Metrics
	logger    *zap.Logger

	now    func() time.Time
	budget time.Duration

	// scans never overlap; dedup relies on it
	scanMu sync.Mutex
}

func NewOrchestrator(
	st Store,
	finalizer ArticleFinalizer,
	runner *TaskRunner,
	runLogger *RunLogger,
	metrics *Metrics,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		dedup:     NewDedupGuard(st),
		finalizer: finalizer,
		runner:    runner,
		runLogger: runLogger,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		budget:    defaultRunBudget,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type siteLookup struct {
	site *models.Site
	err  error
}

// run is the state of one invocation.
type run struct {
	id    string
	now   time.Time
	rec   *RunRecorder
	ctx   context.Context
	group sync.WaitGroup
	sites map[uint]siteLookup
}

// Run performs one invocation. It returns once every due item is dispatched;
// finalizers keep running in the background within the run budget. The error
// is non-nil only when the scan could not complete.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (*RunSummary, error) {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()

	started := time.Now()
	now := o.now().UTC()
	runID := uuid.NewString()

	// The budget covers detached work, so it must not end with the caller.
	budgetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.budget)

	r := &run{
		id:    runID,
		now:   now,
		rec:   NewRunRecorder(runID, trigger, now, o.metrics),
		ctx:   budgetCtx,
		sites: make(map[uint]siteLookup),
	}

	o.logger.Info("Run started",
		zap.String("run_id", runID),
		zap.String("trigger", trigger),
		zap.Time("now", now))
	r.rec.Logf("run started at %s by %s", now.Format(time.RFC3339), trigger)

	scanErr := o.scan(r)
	scanDuration := time.Since(started)

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), runLogWriteLimit)
	defer cancelWrite()

	if scanErr != nil {
		o.logger.Error("Run aborted",
			zap.String("run_id", runID),
			zap.Duration("duration", scanDuration),
			zap.Error(scanErr))
		r.rec.Logf("run aborted: %v", scanErr)
		o.metrics.RecordRun(trigger, models.RunStatusError, scanDuration)
		o.runLogger.Fail(writeCtx, r.rec, scanDuration, scanErr)

		// Items dispatched before the failure still finish within the budget.
		o.runner.Go(context.Background(), nil, "run-drain:"+runID, func(context.Context) error {
			r.group.Wait()
			cancel()
			return nil
		})
		return nil, fmt.Errorf("run %s failed: %w", runID, scanErr)
	}

	summary := r.rec.Summary()
	o.metrics.RecordRun(trigger, models.RunStatusScanned, scanDuration)
	logID := o.runLogger.Start(writeCtx, r.rec, scanDuration)

	o.logger.Info("Run scanned",
		zap.String("run_id", runID),
		zap.Int("processed", summary.Processed),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", scanDuration))

	o.runner.Go(context.Background(), nil, "run-finish:"+runID, func(context.Context) error {
		r.group.Wait()
		cancel()

		finishCtx, cancelFinish := context.WithTimeout(context.Background(), runLogWriteLimit)
		defer cancelFinish()
		o.runLogger.Finish(finishCtx, logID, r.rec, time.Since(started))

		final := r.rec.Summary()
		o.logger.Info("Run completed",
			zap.String("run_id", runID),
			zap.Int("succeeded", final.Succeeded),
			zap.Int("failed", final.Failed),
			zap.Duration("duration", time.Since(started)))
		return nil
	})

	return &summary, nil
}

// Wait blocks until every background task of every run has returned.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.runner.Wait(ctx)
}

// RecentRuns returns the newest run log entries.
func (o *Orchestrator) RecentRuns(ctx context.Context, limit int) ([]models.RunLog, error) {
	return o.runLogger.Recent(ctx, limit)
}

func (o *Orchestrator) scan(r *run) error {
	if err := o.processScheduledArticles(r); err != nil {
		return err
	}
	if err := o.processPlans(r); err != nil {
		return err
	}
	return o.processJobs(r)
}

func (o *Orchestrator) processScheduledArticles(r *run) error {
	articles, err := o.store.FindDueScheduledArticles(r.ctx, r.now)
	if err != nil {
		return fmt.Errorf("failed to list scheduled articles: %w", err)
	}

	for i := range articles {
		article := &articles[i]
		if !ScheduledArticleDue(article, r.now) {
			continue
		}

		result := models.RunResult{
			Origin: models.OriginScheduled,
			Label:  fmt.Sprintf("article #%d", article.ID),
			Item:   article.Title,
		}

		site, err := o.site(r, article.SiteID, true)
		if err != nil {
			o.reject(r, result, err)
			continue
		}

		claimed, err := o.dedup.ClaimScheduledArticle(r.ctx, article.ID)
		if err != nil {
			o.reject(r, result, err)
			continue
		}
		if !claimed {
			o.duplicate(r, result)
			continue
		}

		article.Status = models.ArticleStatusGenerating
		if article.Origin == "" {
			article.Origin = models.OriginScheduled
		}
		o.dispatch(r, article, site, result)
	}
	return nil
}

func (o *Orchestrator) processPlans(r *run) error {
	plans, err := o.store.FindActivePlans(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to list schedule plans: %w", err)
	}

	for i := range plans {
		o.processPlan(r, &plans[i])
	}
	return nil
}

func (o *Orchestrator) processPlan(r *run, plan *models.SchedulePlan) {
	label := plan.Name
	if label == "" {
		label = fmt.Sprintf("plan #%d", plan.ID)
	}

	site, err := o.site(r, plan.SiteID, plan.AutoPublish)
	if err != nil {
		o.reject(r, models.RunResult{Origin: models.OriginSchedulePlan, Label: label}, err)
		return
	}
	tz := ResolvePlanTimezone(site)

	dirty := false
	for idx := range plan.Topics {
		topic := plan.Topics[idx]
		result := models.RunResult{
			Origin: models.OriginSchedulePlan,
			Label:  label,
			Item:   topic.Title,
		}

		due, err := TopicDue(topic, tz, r.now)
		if err != nil {
			o.reject(r, result, err)
			continue
		}
		if !due {
			continue
		}

		exists, err := o.dedup.TopicAlreadyGenerated(r.ctx, plan.UserID, topic.Title)
		if err != nil {
			o.reject(r, result, err)
			continue
		}
		if exists {
			// The article landed but the flag did not; heal the flag.
			plan.Topics[idx].Generated = true
			dirty = true
			o.duplicate(r, result)
			continue
		}

		article := newPlanArticle(plan, topic, site, r.now)
		if err := o.store.CreateArticle(r.ctx, article); err != nil {
			o.reject(r, result, err)
			continue
		}

		plan.Topics[idx].Generated = true
		plan.Topics[idx].ArticleID = &article.ID
		if plan.AllGenerated() {
			plan.Status = models.PlanStatusCompleted
		}
		if err := o.store.SavePlanTopics(r.ctx, plan); err != nil {
			// The article row already blocks a second dispatch.
			o.logger.Warn("Failed to flag plan topic",
				zap.Uint("plan_id", plan.ID),
				zap.String("topic", topic.Title),
				zap.Error(err))
			dirty = true
		}

		o.dispatch(r, article, site, result)
	}

	if plan.AllGenerated() && plan.Status == models.PlanStatusActive {
		plan.Status = models.PlanStatusCompleted
		dirty = true
	}
	if !dirty {
		return
	}
	if err := o.store.SavePlanTopics(r.ctx, plan); err != nil {
		o.logger.Warn("Failed to save plan", zap.Uint("plan_id", plan.ID), zap.Error(err))
		return
	}
	if plan.Status == models.PlanStatusCompleted {
		r.rec.Logf("plan %q completed", label)
	}
}

func (o *Orchestrator) processJobs(r *run) error {
	jobs, err := o.store.FindActiveJobs(r.ctx)
	if err != nil {
		return fmt.Errorf("failed to list recurring jobs: %w", err)
	}

	for i := range jobs {
		o.processJob(r, &jobs[i])
	}
	return nil
}

func (o *Orchestrator) processJob(r *run, job *models.RecurringJob) {
	label := job.Name
	if label == "" {
		label = fmt.Sprintf("job #%d", job.ID)
	}

	site, err := o.site(r, job.SiteID, job.AutoPublish)
	if err != nil {
		o.reject(r, models.RunResult{Origin: models.OriginRecurringJob, Label: label}, err)
		return
	}
	tz := ResolveJobTimezone(site, job)
	clock := localtime.WallClock(r.now, tz)

	for _, slot := range job.Slots {
		result := models.RunResult{
			Origin: models.OriginRecurringJob,
			Label:  label,
			Item:   fmt.Sprintf("%s %s", slot.Day, slot.Time),
		}

		due, err := SlotDue(slot, clock)
		if err != nil {
			o.reject(r, result, err)
			continue
		}
		if !due {
			continue
		}

		day, _ := NormalizeDayName(slot.Day)
		hour, minute, _ := localtime.ParseClock(slot.Time)
		slotTime := fmt.Sprintf("%02d:%02d", hour, minute)
		result.Item = day + " " + slotTime

		exists, err := o.dedup.SlotAlreadyClaimed(r.ctx, job.ID, day, r.now, tz)
		if err != nil {
			o.reject(r, result, err)
			continue
		}
		if exists {
			o.duplicate(r, result)
			continue
		}

		article := newSlotArticle(job, slot, day, slotTime, site, r.now)
		if err := o.store.CreateArticle(r.ctx, article); err != nil {
			o.reject(r, result, err)
			continue
		}

		o.dispatch(r, article, site, result)
	}
}

// dispatch records the item and starts its finalizer.
func (o *Orchestrator) dispatch(r *run, article *models.Article, site *models.Site, result models.RunResult) {
	result.ArticleID = article.ID
	result.Outcome = models.OutcomeDispatched
	r.rec.Record(result)
	r.rec.Logf("%s %s: dispatched article #%d", result.Label, result.Item, article.ID)

	o.logger.Info("Item dispatched",
		zap.String("run_id", r.id),
		zap.String("origin", result.Origin),
		zap.String("label", result.Label),
		zap.String("item", result.Item),
		zap.Uint("article_id", article.ID))

	task := FinalizeTask{RunID: r.id, Article: article, Site: site}
	o.runner.Go(r.ctx, &r.group, fmt.Sprintf("finalize:%d", article.ID), func(ctx context.Context) error {
		err := o.finalizer.Finalize(ctx, task)
		r.rec.Complete(article.ID, err)
		return err
	})
}

func (o *Orchestrator) duplicate(r *run, result models.RunResult) {
	result.Outcome = models.OutcomeSkippedDuplicate
	r.rec.Record(result)
	r.rec.Logf("%s %s: already processed", result.Label, result.Item)
}

// reject records an item that was not dispatched. Input data errors skip the
// item; anything else counts as a failure.
func (o *Orchestrator) reject(r *run, result models.RunResult, err error) {
	result.Error = err.Error()
	if isInputError(err) {
		result.Outcome = models.OutcomeSkipped
		o.logger.Warn("Item skipped",
			zap.String("run_id", r.id),
			zap.String("origin", result.Origin),
			zap.String("label", result.Label),
			zap.String("item", result.Item),
			zap.Error(err))
	} else {
		result.Outcome = models.OutcomeFailed
		o.logger.Error("Item failed",
			zap.String("run_id", r.id),
			zap.String("origin", result.Origin),
			zap.String("label", result.Label),
			zap.String("item", result.Item),
			zap.Error(err))
	}
	r.rec.Record(result)
	r.rec.Logf("%s %s: %s (%v)", result.Label, result.Item, result.Outcome, err)
}

func isInputError(err error) bool {
	return errors.Is(err, ErrSiteNotFound) ||
		errors.Is(err, ErrSiteDisabled) ||
		errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidSchedule)
}

// site loads a site once per run and checks that it can take the item.
func (o *Orchestrator) site(r *run, id uint, needsCredentials bool) (*models.Site, error) {
	lookup, ok := r.sites[id]
	if !ok {
		site, err := o.store.GetSite(r.ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: site %d", ErrSiteNotFound, id)
		}
		lookup = siteLookup{site: site, err: err}
		r.sites[id] = lookup
	}
	if lookup.err != nil {
		return nil, lookup.err
	}

	site := lookup.site
	if !site.Enabled {
		return nil, fmt.Errorf("%w: site %d", ErrSiteDisabled, id)
	}
	if needsCredentials && !site.HasCredentials() {
		return nil, fmt.Errorf("%w: site %d", ErrMissingCredentials, id)
	}
	return site, nil
}

func newPlanArticle(plan *models.SchedulePlan, topic models.Topic, site *models.Site, now time.Time) *models.Article {
	planID := plan.ID
	return &models.Article{
		UserID:           plan.UserID,
		SiteID:           plan.SiteID,
		Title:            topic.Title,
		Status:           models.ArticleStatusGenerating,
		Language:         site.Language,
		Topic:            topic.Title,
		TopicDescription: topic.Description,
		MinWords:         plan.MinWords,
		MaxWords:         plan.MaxWords,
		ImageCount:       plan.ImagesPerArticle,
		Style:            plan.Style,
		AutoPublish:      plan.AutoPublish,
		Origin:           models.OriginSchedulePlan,
		SchedulePlanID:   &planID,
		PlanTopicTitle:   topic.Title,
		CreatedAt:        now,
	}
}

func newSlotArticle(job *models.RecurringJob, slot models.Slot, day, slotTime string, site *models.Site, now time.Time) *models.Article {
	jobID := job.ID
	lang := job.Language
	if lang == "" {
		lang = site.Language
	}
	topic := job.Theme
	if topic == "" {
		topic = job.Name
	}
	return &models.Article{
		UserID:         job.UserID,
		SiteID:         job.SiteID,
		Title:          topic,
		Status:         models.ArticleStatusGenerating,
		ArticleType:    slot.ArticleType,
		Language:       lang,
		Keywords:       normalizeKeywords(job.Keywords),
		Topic:          topic,
		MinWords:       job.MinWords,
		MaxWords:       job.MaxWords,
		ImageCount:     job.ImagesPerArticle,
		Style:          job.Style,
		AutoPublish:    job.AutoPublish,
		NotifyEmail:    job.NotifyEmail,
		Origin:         models.OriginRecurringJob,
		RecurringJobID: &jobID,
		SlotDay:        day,
		SlotTime:       slotTime,
		CreatedAt:      now,
	}
}

// normalizeKeywords splits entries typed as one comma-separated string and
// drops case-insensitive duplicates.
func normalizeKeywords(raw []string) datatypes.JSONSlice[string] {
	var out []string
	seen := make(map[string]bool)
	for _, entry := range raw {
		for _, tag := range util.ParseTags(entry) {
			key := strings.ToLower(tag)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tag)
		}
	}
	return out
}
