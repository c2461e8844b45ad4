package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ifuryst/inkwell/internal/localtime"
	"github.com/ifuryst/inkwell/internal/models"
)

var dayNames = map[string]string{}

func init() {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		dayNames[strings.ToLower(name)] = name
		dayNames[strings.ToLower(name[:3])] = name
	}
}

// NormalizeDayName returns the canonical English weekday name for day
// ("mon", "MONDAY" and "Monday" all give "Monday").
func NormalizeDayName(day string) (string, bool) {
	name, ok := dayNames[strings.ToLower(strings.TrimSpace(day))]
	return name, ok
}

// ScheduledArticleDue reports whether a directly-scheduled article should be
// published now.
func ScheduledArticleDue(article *models.Article, now time.Time) bool {
	return article.Status == models.ArticleStatusScheduled &&
		article.ScheduledAt != nil &&
		!article.ScheduledAt.After(now)
}

// TopicDue reports whether a plan topic's local date and time have passed in
// tz. Malformed dates or times return an ErrInvalidSchedule error.
func TopicDue(topic models.Topic, tz string, now time.Time) (bool, error) {
	if topic.Generated {
		return false, nil
	}
	at, err := localtime.LocalToUTC(topic.Date, topic.Time, tz)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return !at.After(now), nil
}

// SlotDue reports whether a recurring slot falls in the current local hour.
// The driver runs hourly, so matching on the hour alone catches each slot in
// exactly one run per day; the dedup guard covers extra runs in the same hour.
func SlotDue(slot models.Slot, clock localtime.Clock) (bool, error) {
	if !slot.IsEnabled() {
		return false, nil
	}
	day, ok := NormalizeDayName(slot.Day)
	if !ok {
		return false, fmt.Errorf("%w: unknown day %q", ErrInvalidSchedule, slot.Day)
	}
	hour, _, err := localtime.ParseClock(slot.Time)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return day == clock.DayName && hour == clock.Hour, nil
}
