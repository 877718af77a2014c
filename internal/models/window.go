package models

import (
	"time"
)

// Window is a half-open [Start, End) time range used to slice both ledgers
// for a single cashier. It is a query parameter, never a stored entity.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayWindow returns the window covering the calendar day of t in loc.
func DayWindow(t time.Time, loc *time.Location) Window {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// RangeWindow returns the window spanning the calendar days of from and to
// (inclusive) in loc.
func RangeWindow(from, to time.Time, loc *time.Location) Window {
	start := DayWindow(from, loc).Start
	end := DayWindow(to, loc).End
	return Window{Start: start, End: end}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
