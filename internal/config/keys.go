package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RESQ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "RESQ_SERVER_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "backend.base_url", typ: kString, env: "RESQ_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.api_token", typ: kString, env: "RESQ_BACKEND_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Backend.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.APIToken },
	},
	{
		key: "monitor.port", typ: kInt, env: "RESQ_MONITOR_PORT",
		apply:   func(cfg *Config, v any) { cfg.Monitor.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Monitor.Port },
	},
	{
		key: "monitor.sensor_interval", typ: kDuration, env: "RESQ_MONITOR_SENSOR_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Monitor.SensorInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Monitor.SensorInterval },
	},
	{
		key: "monitor.clock_interval", typ: kDuration, env: "RESQ_MONITOR_CLOCK_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Monitor.ClockInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Monitor.ClockInterval },
	},
	{
		key: "monitor.notification_interval", typ: kDuration, env: "RESQ_MONITOR_NOTIFICATION_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Monitor.NotificationInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Monitor.NotificationInterval },
	},
	{
		key: "monitor.use_server_label", typ: kBool, env: "RESQ_MONITOR_USE_SERVER_LABEL",
		apply:   func(cfg *Config, v any) { cfg.Monitor.UseServerLabel = v.(bool) },
		extract: func(cfg Config) any { return cfg.Monitor.UseServerLabel },
	},
	{
		key: "session.vegetable_name", typ: kString, env: "RESQ_SESSION_VEGETABLE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Session.VegetableName = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.VegetableName },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RESQ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "RESQ_OPENROUTER_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.default_model", typ: kString, env: "RESQ_PROXY_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "alerts.webhook_url", typ: kString, env: "RESQ_ALERTS_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Alerts.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Alerts.WebhookURL },
	},
	{
		key: "alerts.webhook_key", typ: kString, env: "RESQ_ALERTS_WEBHOOK_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Alerts.WebhookKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Alerts.WebhookKey },
	},
	{
		key: "log.level", typ: kString, env: "RESQ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.file", typ: kString, env: "RESQ_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func findSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text to the spec's type.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			return nil, fmt.Errorf("duration must be positive, got %s", raw)
		}
		return d, err
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secret keys still empty after the environment pass.
func applySecrets(cfg *Config, secrets secretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
