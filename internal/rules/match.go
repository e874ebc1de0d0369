// Package rules selects the notification rule that applies to a task.
package rules

import (
	"slices"

	"github.com/sandeepkv93/remindd/internal/model"
)

// Match returns the first enabled rule whose category and priority
// conditions both accept the task, or nil. Earlier rules win.
func Match(task model.Task, rules []model.NotificationRule) *model.NotificationRule {
	for i := range rules {
		r := rules[i]
		if !r.IsEnabled {
			continue
		}
		if !accepts(r.ConditionCategory, task.Category) {
			continue
		}
		if !accepts(r.ConditionPriority, string(task.Priority)) {
			continue
		}
		return &r
	}
	return nil
}

func accepts(condition, value string) bool {
	return condition == "" || condition == model.MatchAll || condition == value
}

// AdvanceOffsets merges the task's own advance reminders with the ones
// contributed by rule, deduplicated and sorted descending.
func AdvanceOffsets(task model.Task, rule *model.NotificationRule) []int {
	seen := make(map[int]bool)
	out := make([]int, 0, len(task.AdvanceReminders))
	add := func(items []int) {
		for _, m := range items {
			if m > 0 && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	add(task.AdvanceReminders)
	if rule != nil {
		add(rule.ActionAdvanceMinutes)
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}
