package views

import (
	"fmt"
	"strings"
)

type AlertRowData struct {
	Selected bool
	Time     string
	Kind     string
	Title    string
	Body     string
	Urgent   bool
	State    string
}

type TaskDetailData struct {
	TaskID       string
	Title        string
	Body         string
	Kind         string
	Found        bool
	Status       string
	Priority     string
	ProgressPct  int
	ProgressView string
	Dependencies []string
	SnoozeUntil  string
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
}

func RenderAlertList(items []AlertRowData) string {
	var b strings.Builder
	b.WriteString("reminders:\n")
	if len(items) == 0 {
		b.WriteString("(no reminders yet)")
		return b.String()
	}
	// newest first
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		cursor := " "
		if item.Selected {
			cursor = ">"
		}
		title := item.Title
		if item.Urgent {
			title = urgentStyle.Render(title)
		}
		b.WriteString(fmt.Sprintf("%s %s [%s] %s %s\n", cursor, item.Time, strings.ToUpper(item.Kind), title, item.State))
		if item.Body != "" {
			b.WriteString(fmt.Sprintf("    %s\n", item.Body))
		}
	}
	return strings.TrimSpace(b.String())
}

func RenderTaskDetail(data TaskDetailData) string {
	if data.TaskID == "" {
		return "task:\n(select a reminder)"
	}
	var b strings.Builder
	b.WriteString("task:\n")
	b.WriteString(fmt.Sprintf("id: %s\n", data.TaskID))
	b.WriteString(fmt.Sprintf("title: %s\n", data.Title))
	if data.Kind != "" {
		b.WriteString(fmt.Sprintf("reminder: %s\n", data.Kind))
	}
	if !data.Found {
		b.WriteString("(task no longer tracked)")
		return strings.TrimSpace(b.String())
	}
	b.WriteString(fmt.Sprintf("status: %s\n", data.Status))
	if data.Priority != "" {
		b.WriteString(fmt.Sprintf("priority: %s\n", data.Priority))
	}
	if data.SnoozeUntil != "" {
		b.WriteString(fmt.Sprintf("snoozed until: %s\n", data.SnoozeUntil))
	}
	if len(data.Dependencies) > 0 {
		b.WriteString(fmt.Sprintf("depends on: %s\n", strings.Join(data.Dependencies, ", ")))
	}
	b.WriteString(fmt.Sprintf("progress: %s %d%%\n", data.ProgressView, data.ProgressPct))
	b.WriteString("actions: [s]snooze [c]complete [enter]open")
	return strings.TrimSpace(b.String())
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func RenderHelpPanel(data HelpPanelData) string {
	var b strings.Builder
	b.WriteString("help:\n")
	for _, line := range data.Bindings {
		b.WriteString(line + "\n")
	}
	if data.HelpView != "" {
		b.WriteString("\n" + data.HelpView)
	}
	return strings.TrimSpace(b.String())
}
