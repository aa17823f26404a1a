// Package clock resolves user timezones and provides ISO-week helpers.
package clock

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnknownTimezone is returned when a timezone string cannot be resolved.
var ErrUnknownTimezone = errors.New("unknown timezone")

// Clock is the time source used by the services.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns the current instant in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a settable clock for tests and replays.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed creates a clock frozen at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

var (
	locMu    sync.RWMutex
	locCache = map[string]*time.Location{}
)

// Resolve turns a stored timezone into a location. Both the bare IANA name
// ("America/Bogota") and the display form "(GMT-05:00) America/Bogota" are
// accepted. An empty string resolves to UTC.
func Resolve(tz string) (*time.Location, error) {
	name := strings.TrimSpace(tz)
	if strings.HasPrefix(name, "(") {
		idx := strings.Index(name, ")")
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
		}
		name = strings.TrimSpace(name[idx+1:])
	}
	if name == "" {
		return time.UTC, nil
	}

	locMu.RLock()
	loc, ok := locCache[name]
	locMu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, tz)
	}

	locMu.Lock()
	locCache[name] = loc
	locMu.Unlock()
	return loc, nil
}

// WeekOf returns the ISO week-year and week number of t in loc.
func WeekOf(t time.Time, loc *time.Location) (year, week int) {
	return t.In(loc).ISOWeek()
}

// WeekKey formats an ISO week bucket as "YYYY-Www".
func WeekKey(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// SameWeek reports whether a and b fall in the same ISO week in loc.
func SameWeek(a, b time.Time, loc *time.Location) bool {
	ay, aw := WeekOf(a, loc)
	by, bw := WeekOf(b, loc)
	return ay == by && aw == bw
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns Monday 00:00 of t's ISO week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// EndOfWeek returns the last nanosecond of t's ISO week in loc.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	return StartOfWeek(t, loc).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// DayInZone places the calendar date of civil (its year, month and day, read
// in civil's own location) at the given wall clock time in loc.
func DayInZone(civil time.Time, loc *time.Location, hour, min, sec int) time.Time {
	y, m, d := civil.Date()
	return time.Date(y, m, d, hour, min, sec, 0, loc)
}

// EpochMillis returns t as milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
