package service

import (
	"context"
	"time"

	"github.com/ifuryst/inkwell/internal/localtime"
)

// DedupStore is the subset of persistence the dedup guard reads.
type DedupStore interface {
	HasPlanTopicArticle(ctx context.Context, userID, title string) (bool, error)
	HasSlotArticle(ctx context.Context, jobID uint, day string, start, end time.Time) (bool, error)
	ClaimScheduledArticle(ctx context.Context, id uint) (bool, error)
}

// DedupGuard answers "was this already processed" from persisted work items.
// It relies on a single orchestrator running at a time.
type DedupGuard struct {
	store DedupStore
}

func NewDedupGuard(store DedupStore) *DedupGuard {
	return &DedupGuard{store: store}
}

// TopicAlreadyGenerated reports whether a plan-originated article with the
// exact topic title already exists for the user.
func (g *DedupGuard) TopicAlreadyGenerated(ctx context.Context, userID, title string) (bool, error) {
	return g.store.HasPlanTopicArticle(ctx, userID, title)
}

// SlotAlreadyClaimed reports whether the job produced an article for day
// during the current calendar day of tz. The day is the job's own local day,
// not the server's, so a failure yesterday never blocks today. At most one
// article per job and local day is produced, however many slots share it.
func (g *DedupGuard) SlotAlreadyClaimed(ctx context.Context, jobID uint, day string, now time.Time, tz string) (bool, error) {
	start, end := localtime.DayBoundsUTC(now, tz)
	return g.store.HasSlotArticle(ctx, jobID, day, start, end)
}

// ClaimScheduledArticle flips a scheduled article to generating. False means
// another actor got there first.
func (g *DedupGuard) ClaimScheduledArticle(ctx context.Context, id uint) (bool, error) {
	return g.store.ClaimScheduledArticle(ctx, id)
}
