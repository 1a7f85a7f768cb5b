// Package timewindow resolves the calendar-aligned and rolling windows used by
// the statistics aggregates. Calendar boundaries are computed in a reference
// location; the returned instants can be compared against UTC timestamps.
package timewindow

import (
	"time"
	// embedded zone database for minimal container images
	_ "time/tzdata"

	"github.com/nemscan/backend/domain"
)

// DefaultLocation is the reference timezone for local-day bucketing.
const DefaultLocation = "Europe/Copenhagen"

// Window is a time interval. To is inclusive unless OpenEnd is set.
type Window struct {
	From    time.Time
	To      time.Time
	OpenEnd bool
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	if w.OpenEnd {
		return t.Before(w.To)
	}
	return !t.After(w.To)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Preceding returns the window of equal length that ends where w starts.
func (w Window) Preceding() Window {
	return Window{From: w.From.Add(-w.Duration()), To: w.From, OpenEnd: true}
}

// Resolver computes windows relative to a clock and a reference location.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// NewResolver builds a resolver. A nil location means UTC and a nil clock means time.Now.
func NewResolver(loc *time.Location, now func() time.Time) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{loc: loc, now: now}
}

// LoadLocation resolves name, falling back to UTC when the zone database lacks it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location returns the reference location.
func (r *Resolver) Location() *time.Location { return r.loc }

// Now returns the current instant in the reference location.
func (r *Resolver) Now() time.Time { return r.now().In(r.loc) }

// Bounded merges caller-supplied bounds into def. Missing bounds keep the
// default; a range with from after to is rejected.
func (r *Resolver) Bounded(from, to *time.Time, def Window) (Window, error) {
	w := def
	if from != nil {
		w.From = *from
	}
	if to != nil {
		w.To = *to
		w.OpenEnd = false
	}
	if w.From.After(w.To) {
		return Window{}, domain.ErrInvalidRange
	}
	return w, nil
}

// CurrentMonth spans the first to the last instant of the current calendar month.
func (r *Resolver) CurrentMonth() Window {
	start := r.monthStart(r.Now())
	return Window{From: start, To: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// PreviousMonth spans the calendar month before the one containing t.
func (r *Resolver) PreviousMonth(t time.Time) Window {
	start := r.monthStart(t.In(r.loc))
	return Window{From: start.AddDate(0, -1, 0), To: start.Add(-time.Nanosecond)}
}

// Trailing spans the last days days ending now.
func (r *Resolver) Trailing(days int) Window {
	now := r.Now()
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// TrailingPair returns the trailing window and the equally long window right before it.
func (r *Resolver) TrailingPair(days int) (current, previous Window) {
	now := r.Now()
	start := now.AddDate(0, 0, -days)
	current = Window{From: start, To: now}
	previous = Window{From: start.AddDate(0, 0, -days), To: start, OpenEnd: true}
	return current, previous
}

// Week spans Monday 00:00 local through the following Monday, exclusive.
func (r *Resolver) Week() Window {
	monday := WeekStart(r.Now())
	return Window{From: monday, To: monday.AddDate(0, 0, 7), OpenEnd: true}
}

// MonthToDate spans the first of the current month through now.
func (r *Resolver) MonthToDate() Window {
	now := r.Now()
	return Window{From: r.monthStart(now), To: now}
}

// Today spans the current local calendar day.
func (r *Resolver) Today() Window {
	start := DayStart(r.Now())
	return Window{From: start, To: start.AddDate(0, 0, 1), OpenEnd: true}
}

// TodayUTC spans the current UTC calendar day.
func (r *Resolver) TodayUTC() Window {
	start := DayStart(r.now().UTC())
	return Window{From: start, To: start.AddDate(0, 0, 1), OpenEnd: true}
}

func (r *Resolver) monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// WeekStart returns Monday 00:00 of the week containing t, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return DayStart(t).AddDate(0, 0, -offset)
}
