package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidStatus     = errors.New("model: invalid task status")
	ErrInvalidPriority   = errors.New("model: invalid task priority")
	ErrInvalidRepeatRule = errors.New("model: invalid repeat rule")
	ErrInvalidWindow     = errors.New("model: end_time must not precede reminder_time")
)

// DefaultNotificationInterval is the nag period, in minutes, used when a
// persistent task does not set one.
const DefaultNotificationInterval = 15

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusSnoozed    Status = "snoozed"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusSnoozed, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the task no longer takes part in scheduling.
func (s Status) IsClosed() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

func (p Priority) IsElevated() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

type MessageType string

const (
	MessageDefault     MessageType = "default"
	MessageUrgent      MessageType = "urgent"
	MessageEncouraging MessageType = "encouraging"
	MessageSummary     MessageType = "summary"
)

func (m MessageType) IsValid() bool {
	switch m {
	case MessageDefault, MessageUrgent, MessageEncouraging, MessageSummary:
		return true
	default:
		return false
	}
}

type StrategyStep struct {
	OffsetMinutes int         `json:"offset_minutes"`
	MessageType   MessageType `json:"message_type"`
	CustomMessage string      `json:"custom_message,omitempty"`
}

type ReminderStrategy struct {
	Steps             []StrategyStep `json:"steps"`
	DynamicAdjustment bool           `json:"dynamic_adjustment"`
}

type Task struct {
	ID                   string
	Title                string
	Status               Status
	Priority             Priority
	Category             string
	ReminderTime         *time.Time
	EndTime              *time.Time
	RepeatRule           RepeatRule
	ParentTaskID         string
	Dependencies         []string
	Progress             int
	AdvanceReminders     []int
	Strategy             *ReminderStrategy
	PersistentReminder   bool
	NotificationInterval int
	SnoozeUntil          *time.Time
	SnoozeCount          int
	ReminderSent         bool
	CompletedAt          *time.Time
	CreatedAt            time.Time
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("model: task title is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, t.Priority)
	}
	if t.RepeatRule != "" && !t.RepeatRule.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRepeatRule, t.RepeatRule)
	}
	if t.ReminderTime != nil && t.EndTime != nil && t.EndTime.Before(*t.ReminderTime) {
		return ErrInvalidWindow
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("model: progress out of range: %d", t.Progress)
	}
	for _, offset := range t.AdvanceReminders {
		if offset <= 0 {
			return fmt.Errorf("model: advance reminder must be positive: %d", offset)
		}
	}
	if t.Strategy != nil {
		for _, step := range t.Strategy.Steps {
			if step.OffsetMinutes <= 0 {
				return fmt.Errorf("model: strategy offset must be positive: %d", step.OffsetMinutes)
			}
			if step.MessageType != "" && !step.MessageType.IsValid() {
				return fmt.Errorf("model: invalid strategy message type: %q", step.MessageType)
			}
		}
	}
	if slices.Contains(t.Dependencies, t.ID) {
		return errors.New("model: task cannot depend on itself")
	}
	if t.ParentTaskID == t.ID {
		return errors.New("model: task cannot be its own parent")
	}
	if t.Status == StatusCompleted && t.CompletedAt == nil {
		return errors.New("model: completed_at is required when task status is completed")
	}
	return nil
}

// Interval returns the persistent reminder period.
func (t Task) Interval() time.Duration {
	minutes := t.NotificationInterval
	if minutes <= 0 {
		minutes = DefaultNotificationInterval
	}
	return time.Duration(minutes) * time.Minute
}

// IsMultiDay reports whether reminder_time and end_time fall on different
// calendar days in loc.
func (t Task) IsMultiDay(loc *time.Location) bool {
	if t.ReminderTime == nil || t.EndTime == nil {
		return false
	}
	return !SameDay(t.ReminderTime.In(loc), t.EndTime.In(loc))
}

func (t Task) IsSubtask() bool {
	return t.ParentTaskID != ""
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Task) Clone() Task {
	out := t
	out.ReminderTime = cloneTime(t.ReminderTime)
	out.EndTime = cloneTime(t.EndTime)
	out.SnoozeUntil = cloneTime(t.SnoozeUntil)
	out.CompletedAt = cloneTime(t.CompletedAt)
	out.Dependencies = slices.Clone(t.Dependencies)
	out.AdvanceReminders = slices.Clone(t.AdvanceReminders)
	if t.Strategy != nil {
		s := *t.Strategy
		s.Steps = slices.Clone(t.Strategy.Steps)
		out.Strategy = &s
	}
	return out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
