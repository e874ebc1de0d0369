package model

import (
	"errors"
	"fmt"
	"strings"
)

// MatchAll is the wildcard value for rule conditions.
const MatchAll = "all"

type NotificationRule struct {
	ID                   string
	Name                 string
	IsEnabled            bool
	ConditionCategory    string
	ConditionPriority    string
	ActionMute           bool
	ActionSound          string
	ActionAdvanceMinutes []int
	Position             int
}

func (r NotificationRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: rule id is required")
	}
	if p := r.ConditionPriority; p != "" && p != MatchAll && !Priority(p).IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, p)
	}
	for _, m := range r.ActionAdvanceMinutes {
		if m <= 0 {
			return fmt.Errorf("model: rule advance minutes must be positive: %d", m)
		}
	}
	return nil
}

// DNDConfig is a do-not-disturb window. Start and End are "HH:MM" strings and
// may describe an overnight window.
type DNDConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Start   string `yaml:"start" json:"start_time"`
	End     string `yaml:"end" json:"end_time"`
}

type UserSettings struct {
	UserID string
	DND    DNDConfig
}
