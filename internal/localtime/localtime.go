// Package localtime converts between a site's local calendar and UTC instants.
//
// Every function degrades to UTC when the zone name is empty, "UTC" or unknown
// to the tz database, so callers never have to handle a zone error.
package localtime

import (
	"fmt"
	"strings"
	"time"

	// Zone resolution must not depend on the host having a tz database.
	_ "time/tzdata"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Clock is a wall-clock reading in some zone.
type Clock struct {
	Date    string // YYYY-MM-DD
	DayName string // English weekday name, e.g. "Monday"
	Hour    int
	Minute  int
}

// LoadLocation resolves tz. The second return value reports whether tz named
// a real zone; when it is false the returned location is UTC.
func LoadLocation(tz string) (*time.Location, bool) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, false
	}
	// time.LoadLocation treats "Local" as the server zone, which is never what
	// a site means.
	if strings.EqualFold(tz, "local") {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// IsValidZone reports whether tz names a zone other than UTC.
func IsValidZone(tz string) bool {
	loc, ok := LoadLocation(tz)
	return ok && loc.String() != "UTC"
}

// WallClock renders now in tz.
func WallClock(now time.Time, tz string) Clock {
	loc, _ := LoadLocation(tz)
	local := now.In(loc)
	return Clock{
		Date:    local.Format(DateLayout),
		DayName: local.Weekday().String(),
		Hour:    local.Hour(),
		Minute:  local.Minute(),
	}
}

// LocalToUTC returns the instant at which the wall clock in tz reads date and
// clock. It fails only for malformed date or time strings.
//
// Times inside a spring-forward gap resolve to the instant time.Date picks,
// which lands one offset-change later. Ambiguous fall-back times resolve to
// one of the two candidates.
func LocalToUTC(date, clock, tz string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	loc, _ := LoadLocation(tz)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc).UTC(), nil
}

// DayBoundsUTC returns the first and last millisecond of today's local date
// in tz, expressed in UTC.
func DayBoundsUTC(now time.Time, tz string) (start, end time.Time) {
	loc, _ := LoadLocation(tz)
	local := now.In(loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
	end = start.Add(24*time.Hour - time.Millisecond)
	return start, end
}

// ParseClock parses "HH:MM" or "HH:MM:SS". A single-digit hour is accepted.
func ParseClock(clock string) (hour, minute int, err error) {
	clock = strings.TrimSpace(clock)
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		t, err = time.Parse("15:04:05", clock)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: expected HH:MM", clock)
	}
	return t.Hour(), t.Minute(), nil
}
