// Package config loads remindd settings from YAML with REMINDD_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/remindd/internal/model"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type MarkerStoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

type NotificationsConfig struct {
	Desktop      bool   `yaml:"desktop"`
	Sound        bool   `yaml:"sound"`
	Permission   string `yaml:"permission"`
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
}

type AssistConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	PollInterval   time.Duration       `yaml:"poll_interval"`
	DatabasePath   string              `yaml:"database_path"`
	MarkerStore    MarkerStoreConfig   `yaml:"marker_store"`
	Notifications  NotificationsConfig `yaml:"notifications"`
	DefaultDND     model.DNDConfig     `yaml:"default_dnd"`
	BehaviorSample int                 `yaml:"behavior_sample"`
	Assist         AssistConfig        `yaml:"assist"`
	MetricsAddr    string              `yaml:"metrics_addr"`
	Log            LogConfig           `yaml:"log"`
}

func Default() Config {
	return Config{
		PollInterval: 30 * time.Second,
		DatabasePath: "remindd.db",
		MarkerStore: MarkerStoreConfig{
			Backend: BackendSQLite,
			Prefix:  "remindd:marker:",
		},
		Notifications: NotificationsConfig{
			Desktop:      true,
			Sound:        true,
			Permission:   "default",
			AMQPExchange: "remindd.events",
		},
		DefaultDND:     model.DNDConfig{Enabled: false, Start: "22:00", End: "08:00"},
		BehaviorSample: 10,
		Assist:         AssistConfig{Timeout: 20 * time.Second},
		Log:            LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive: %s", c.PollInterval)
	}
	switch c.MarkerStore.Backend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("config: unknown marker_store.backend %q", c.MarkerStore.Backend)
	}
	if c.MarkerStore.Backend == BackendRedis && c.MarkerStore.RedisAddr == "" {
		return errors.New("config: marker_store.redis_addr is required for the redis backend")
	}
	switch c.Notifications.Permission {
	case "default", "granted", "denied":
	default:
		return fmt.Errorf("config: unknown notifications.permission %q", c.Notifications.Permission)
	}
	return nil
}

func FromEnv(base Config) Config {
	cfg := base
	if v, ok := getEnvDuration("REMINDD_POLL_INTERVAL"); ok && v > 0 {
		cfg.PollInterval = v
	}
	if v, ok := getEnvString("REMINDD_DATABASE_PATH"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := getEnvString("REMINDD_MARKER_BACKEND"); ok {
		cfg.MarkerStore.Backend = strings.ToLower(v)
	}
	if v, ok := getEnvString("REMINDD_REDIS_ADDR"); ok {
		cfg.MarkerStore.RedisAddr = v
	}
	if v, ok := getEnvString("REMINDD_REDIS_PASSWORD"); ok {
		cfg.MarkerStore.RedisPassword = v
	}
	if v, ok := getEnvInt("REMINDD_REDIS_DB"); ok && v >= 0 {
		cfg.MarkerStore.RedisDB = v
	}
	if v, ok := getEnvBool("REMINDD_DESKTOP_NOTIFICATIONS"); ok {
		cfg.Notifications.Desktop = v
	}
	if v, ok := getEnvBool("REMINDD_SOUND"); ok {
		cfg.Notifications.Sound = v
	}
	if v, ok := getEnvString("REMINDD_NOTIFICATION_PERMISSION"); ok {
		cfg.Notifications.Permission = strings.ToLower(v)
	}
	if v, ok := getEnvString("REMINDD_AMQP_URL"); ok {
		cfg.Notifications.AMQPURL = v
	}
	if v, ok := getEnvInt("REMINDD_BEHAVIOR_SAMPLE"); ok && v > 0 {
		cfg.BehaviorSample = v
	}
	if v, ok := getEnvString("REMINDD_ASSIST_ENDPOINT"); ok {
		cfg.Assist.Endpoint = v
	}
	if v, ok := getEnvDuration("REMINDD_ASSIST_TIMEOUT"); ok && v > 0 {
		cfg.Assist.Timeout = v
	}
	if v, ok := getEnvString("REMINDD_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := getEnvString("REMINDD_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := getEnvBool("REMINDD_LOG_DEVELOPMENT"); ok {
		cfg.Log.Development = v
	}
	return cfg
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
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

func getEnvDuration(name string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
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
