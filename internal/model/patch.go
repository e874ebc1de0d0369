package model

import (
	"slices"
	"time"
)

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Status           *Status
	ReminderSent     *bool
	SnoozeUntil      *time.Time
	ClearSnooze      bool
	SnoozeCount      *int
	Progress         *int
	CompletedAt      *time.Time
	ClearCompletedAt bool
	Dependencies     *[]string
}

func (p TaskPatch) Apply(t *Task) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ReminderSent != nil {
		t.ReminderSent = *p.ReminderSent
	}
	if p.ClearSnooze {
		t.SnoozeUntil = nil
	} else if p.SnoozeUntil != nil {
		t.SnoozeUntil = cloneTime(p.SnoozeUntil)
	}
	if p.SnoozeCount != nil {
		t.SnoozeCount = *p.SnoozeCount
	}
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	if p.ClearCompletedAt {
		t.CompletedAt = nil
	} else if p.CompletedAt != nil {
		t.CompletedAt = cloneTime(p.CompletedAt)
	}
	if p.Dependencies != nil {
		t.Dependencies = slices.Clone(*p.Dependencies)
	}
}

func (p TaskPatch) IsEmpty() bool {
	return p.Status == nil && p.ReminderSent == nil && p.SnoozeUntil == nil && !p.ClearSnooze &&
		p.SnoozeCount == nil && p.Progress == nil && p.CompletedAt == nil && !p.ClearCompletedAt &&
		p.Dependencies == nil
}
