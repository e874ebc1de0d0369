// Package window computes the due instant of a task for the current day.
package window

import (
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

type Kind string

const (
	KindSingle    Kind = "single"
	KindMultiDay  Kind = "multi_day"
	KindRecurring Kind = "recurring"
)

// Window is the result of one evaluation. Due is only meaningful when HasDue
// is set; Date is the ISO day the instance belongs to.
type Window struct {
	Kind   Kind
	Due    time.Time
	HasDue bool
	Date   string
}

// PerDay reports whether the window fires once per calendar day.
func (w Window) PerDay() bool {
	return w.Kind == KindMultiDay || w.Kind == KindRecurring
}

// Compute classifies the task and resolves its due instant relative to now.
// All calendar arithmetic happens in now's location.
func Compute(t model.Task, now time.Time) Window {
	if t.ReminderTime == nil {
		return Window{Kind: KindSingle}
	}
	loc := now.Location()
	start := t.ReminderTime.In(loc)

	if t.IsMultiDay(loc) {
		w := Window{Kind: KindMultiDay, Date: model.DateKey(now)}
		first := model.StartOfDay(start)
		last := model.EndOfDay(t.EndTime.In(loc))
		if now.Before(first) || now.After(last) {
			return w
		}
		w.Due = model.AtClock(now, start)
		w.HasDue = true
		return w
	}

	if t.RepeatRule.IsRecurring() {
		w := Window{Kind: KindRecurring, Date: model.DateKey(now)}
		if !t.RepeatRule.OccursOn(start, now) {
			return w
		}
		w.Due = model.AtClock(now, start)
		w.HasDue = true
		return w
	}

	due := start
	if t.SnoozeUntil != nil {
		due = t.SnoozeUntil.In(loc)
	}
	return Window{Kind: KindSingle, Due: due, HasDue: true, Date: model.DateKey(due)}
}

// MinutesUntil returns the fractional minutes from now until due.
func MinutesUntil(due, now time.Time) float64 {
	return due.Sub(now).Minutes()
}

// GraceMinutes is the width of the band in which an advance checkpoint may
// still fire after its exact moment.
const GraceMinutes = 5

// CheckpointEligible reports whether an advance checkpoint offset minutes
// before due may fire at now.
func CheckpointEligible(due, now time.Time, offset int) bool {
	m := MinutesUntil(due, now)
	return m > 0 && m <= float64(offset) && m > float64(offset-GraceMinutes)
}
