// Package config loads bifrost settings from a YAML or JSON file overlaid with
// BIFROST_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "BIFROST_"

// Config is the full process configuration.
type Config struct {
	Listen string       `mapstructure:"listen"`
	Widget WidgetConfig `mapstructure:"widget"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
	Outbox OutboxConfig `mapstructure:"outbox"`
}

// WidgetConfig selects the widget a client attaches to.
type WidgetConfig struct {
	ID string `mapstructure:"id"`
}

// RedisConfig points at a shared host store. An empty Addr keeps state in memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutboxConfig tunes the widget's pending write queue.
type OutboxConfig struct {
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Listen: ":8080",
		Widget: WidgetConfig{ID: "default"},
		Redis:  RedisConfig{Prefix: "bifrost:widget:"},
		Log:    LogConfig{Level: "info", Format: logging.FormatText},
		Outbox: OutboxConfig{RetryInterval: 2 * time.Second},
	}
}

// envKeys maps environment variables to settings.
var envKeys = map[string]string{
	"LISTEN":                "listen",
	"WIDGET_ID":             "widget.id",
	"REDIS_ADDR":            "redis.addr",
	"REDIS_PASSWORD":        "redis.password",
	"REDIS_DB":              "redis.db",
	"REDIS_PREFIX":          "redis.prefix",
	"REDIS_TTL":             "redis.ttl",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"OUTBOX_RETRY_INTERVAL": "outbox.retry_interval",
}

// Load reads path (when non-empty and present) and then applies overrides
// from environ, given as KEY=value pairs like os.Environ.
// A missing file is treated as an empty one.
func Load(path string, environ []string) (Config, error) {
	raw := make(map[string]any)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := parse(path, data, &raw); err != nil {
				return Config{}, err
			}
		}
	}

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if key, known := envKeys[strings.TrimPrefix(name, EnvPrefix)]; known {
			setPath(raw, key, value)
		}
	}

	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, fmt.Errorf("config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parse(path string, data []byte, out *map[string]any) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	// Default to YAML
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if *out == nil {
		*out = make(map[string]any)
	}
	return nil
}

// setPath stores value under a dotted key, creating nested maps as needed.
func setPath(m map[string]any, key, value string) {
	parts := strings.Split(key, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Widget.ID == "" {
		errs = append(errs, errors.New("widget id is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Outbox.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("outbox retry interval must be positive, got %s", c.Outbox.RetryInterval))
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis ttl must not be negative, got %s", c.Redis.TTL))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}
