package scheduler

import (
	"fmt"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
)

func plainNotification(t model.Task, due time.Time) notify.Notification {
	return notify.Notification{
		Title:       "Reminder: " + t.Title,
		Body:        fmt.Sprintf("Due at %s", due.Format("15:04")),
		MessageType: model.MessageDefault,
	}
}

func snoozeNotification(t model.Task) notify.Notification {
	body := "Snoozed reminder is due"
	if t.SnoozeCount > 1 {
		body = fmt.Sprintf("Snoozed %d times", t.SnoozeCount)
	}
	return notify.Notification{
		Title:       "Reminder: " + t.Title,
		Body:        body,
		MessageType: model.MessageDefault,
	}
}

func advanceNotification(t model.Task, offset int) notify.Notification {
	return notify.Notification{
		Title:       "Upcoming: " + t.Title,
		Body:        fmt.Sprintf("%d minutes until due", offset),
		MessageType: model.MessageDefault,
	}
}

func strategyNotification(t model.Task, step model.StrategyStep) notify.Notification {
	kind := step.MessageType
	if kind == "" {
		kind = model.MessageDefault
	}
	n := notify.Notification{Title: "Upcoming: " + t.Title, MessageType: kind}
	switch kind {
	case model.MessageUrgent:
		n.Title = "Urgent: " + t.Title
		n.Body = fmt.Sprintf("Due in %d minutes. Time to act.", step.OffsetMinutes)
		n.RequireInteraction = true
	case model.MessageEncouraging:
		n.Body = fmt.Sprintf("You've got this. %d minutes to go.", step.OffsetMinutes)
	case model.MessageSummary:
		n.Title = "Coming up: " + t.Title
		n.Body = fmt.Sprintf("%s priority, due in %d minutes", t.Priority, step.OffsetMinutes)
	default:
		n.Body = fmt.Sprintf("%d minutes until due", step.OffsetMinutes)
	}
	if step.CustomMessage != "" {
		n.Body = step.CustomMessage
	}
	return n
}

func neglectNotification(t model.Task, overdue time.Duration) notify.Notification {
	return notify.Notification{
		Title:              "Still pending: " + t.Title,
		Body:               fmt.Sprintf("This %s priority task is %d hours overdue.", t.Priority, int(overdue.Hours())),
		RequireInteraction: true,
		MessageType:        model.MessageUrgent,
	}
}

func persistentNotification(t model.Task) notify.Notification {
	return notify.Notification{
		Title:              "Still waiting: " + t.Title,
		Body:               fmt.Sprintf("Reminding every %d minutes until done", int(t.Interval().Minutes())),
		RequireInteraction: true,
		MessageType:        model.MessageDefault,
	}
}
