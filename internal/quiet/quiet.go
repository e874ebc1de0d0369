// Package quiet decides whether do-not-disturb hours suppress notifications.
package quiet

import (
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/remindd/internal/model"
)

const (
	DefaultStart = "22:00"
	DefaultEnd   = "08:00"
)

// Suppressed reports whether cfg silences notifications at now. Malformed or
// missing times fall back to DefaultStart and DefaultEnd.
func Suppressed(now time.Time, cfg model.DNDConfig) bool {
	if !cfg.Enabled {
		return false
	}
	start, ok := parseClock(cfg.Start)
	if !ok {
		start, _ = parseClock(DefaultStart)
	}
	end, ok := parseClock(cfg.End)
	if !ok {
		end, _ = parseClock(DefaultEnd)
	}
	current := now.Hour()*60 + now.Minute()
	if start < end {
		return current >= start && current < end
	}
	return current >= start || current < end
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(raw string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
