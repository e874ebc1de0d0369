package model

import "time"

type RepeatRule string

const (
	RepeatNone    RepeatRule = "none"
	RepeatDaily   RepeatRule = "daily"
	RepeatWeekly  RepeatRule = "weekly"
	RepeatMonthly RepeatRule = "monthly"
	RepeatCustom  RepeatRule = "custom"
)

func (r RepeatRule) IsValid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatCustom:
		return true
	default:
		return false
	}
}

// IsRecurring reports whether the rule produces one instance per matching
// calendar day. Custom rules are evaluated as single reminders.
func (r RepeatRule) IsRecurring() bool {
	switch r {
	case RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	default:
		return false
	}
}

// OccursOn reports whether the rule, anchored at anchor, has an instance on
// the calendar day of day. Both times are compared in day's location.
func (r RepeatRule) OccursOn(anchor, day time.Time) bool {
	anchor = anchor.In(day.Location())
	if StartOfDay(day).Before(StartOfDay(anchor)) {
		return false
	}
	switch r {
	case RepeatDaily:
		return true
	case RepeatWeekly:
		return day.Weekday() == anchor.Weekday()
	case RepeatMonthly:
		y, m, _ := day.Date()
		want := anchor.Day()
		if last := lastDayOfMonth(y, m, day.Location()); want > last {
			want = last
		}
		return day.Day() == want
	default:
		return false
	}
}

func lastDayOfMonth(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m, 1, 0, 0, 0, 0, loc).AddDate(0, 1, -1).Day()
}

// AtClock combines the calendar date of day with the wall clock of clock.
func AtClock(day, clock time.Time) time.Time {
	clock = clock.In(day.Location())
	y, m, d := day.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, day.Location())
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateKey renders the ISO calendar date of t.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
