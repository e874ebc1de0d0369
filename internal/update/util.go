package update

import (
	"errors"
	"strings"

	"github.com/sandeepkv93/remindd/internal/model"
)

var errNoController = errors.New("update: no engine attached")

func progressFraction(t model.Task) float64 {
	p := t.Progress
	if t.Status == model.StatusCompleted {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return float64(p) / 100
}

func stateLabel(s AlertState) string {
	if s == AlertNew {
		return "*"
	}
	return strings.ToLower(string(s))
}
