package update

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/remindd/internal/notify"
)

func waitForAlertCmd(ch <-chan notify.Alert) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		a, ok := <-ch
		if !ok {
			return nil
		}
		return AlertMsg{Alert: a}
	}
}

func waitForNarrativeCmd(ch <-chan NarrativeMsg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return n
	}
}

func (m *Model) snoozeTask(taskID string, minutes int) (string, error) {
	if m.Controller == nil {
		return "", errNoController
	}
	task, err := m.Controller.Snooze(m.ctx, taskID, minutes)
	if err != nil {
		return "", err
	}
	m.markTask(taskID, AlertSnoozed)
	until := "later"
	if task.SnoozeUntil != nil {
		until = formatFiredAt(*task.SnoozeUntil)
	}
	return fmt.Sprintf("snoozed %s until %s", task.Title, until), nil
}

func (m *Model) completeTask(taskID string) (string, error) {
	if m.Controller == nil {
		return "", errNoController
	}
	res, err := m.Controller.Complete(m.ctx, taskID)
	if err != nil {
		return "", err
	}
	m.markTask(taskID, AlertCompleted)
	for _, id := range res.Subtasks {
		m.markTask(id, AlertCompleted)
	}
	msg := fmt.Sprintf("completed %s", res.Task.Title)
	if n := len(res.Subtasks); n > 0 {
		msg += fmt.Sprintf(" (+%d subtasks)", n)
	}
	if n := len(res.Unblocked); n > 0 {
		msg += fmt.Sprintf(", unblocked %d", n)
	}
	return msg, nil
}

func (m *Model) uncompleteTask(taskID string) (string, error) {
	if m.Controller == nil {
		return "", errNoController
	}
	res, err := m.Controller.Uncomplete(m.ctx, taskID)
	if err != nil {
		return "", err
	}
	m.markTask(taskID, AlertOpened)
	return fmt.Sprintf("reopened %s", res.Task.Title), nil
}

func (m *Model) runTick() string {
	if m.Controller == nil {
		return "no engine attached"
	}
	report := m.Controller.Tick(m.ctx)
	return fmt.Sprintf("tick at %s: %d evaluated, %d fired", formatFiredAt(report.At), report.Evaluated, len(report.Fired))
}
