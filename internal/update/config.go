package update

import (
	"os"
	"strconv"
	"strings"
)

type RuntimeConfig struct {
	AlertHistory     int
	SnoozeMinutes    int
	RenderNarratives bool
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		AlertHistory:     20,
		SnoozeMinutes:    15,
		RenderNarratives: true,
	}
}

func RuntimeConfigFromEnv(base RuntimeConfig) RuntimeConfig {
	cfg := base
	if v, ok := getEnvInt("REMINDD_CONSOLE_ALERT_HISTORY"); ok && v > 0 {
		cfg.AlertHistory = v
	}
	if v, ok := getEnvInt("REMINDD_CONSOLE_SNOOZE_MINUTES"); ok && v > 0 {
		cfg.SnoozeMinutes = v
	}
	if v, ok := getEnvBool("REMINDD_CONSOLE_RENDER_NARRATIVES"); ok {
		cfg.RenderNarratives = v
	}
	return cfg
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
