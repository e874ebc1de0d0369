package model

import "time"

type BehaviorAction string

const (
	BehaviorCompleted   BehaviorAction = "task_completed"
	BehaviorUncompleted BehaviorAction = "task_uncompleted"
	BehaviorSnoozed     BehaviorAction = "reminder_snoozed"
	BehaviorClicked     BehaviorAction = "notification_clicked"
)

// Behavior is one entry of the recent user activity sample.
type Behavior struct {
	ID         string
	TaskID     string
	Action     BehaviorAction
	OccurredAt time.Time
}

// CompletionRecord is the history entry written when a task is completed.
type CompletionRecord struct {
	ID          string
	TaskID      string
	CompletedAt time.Time
	Narrative   string
}
