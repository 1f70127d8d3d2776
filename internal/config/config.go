// Package config loads layered configuration: built-in defaults, a JSON file
// under $XDG_CONFIG_HOME/resqfreeze, a .env file, RESQ_* environment
// variables, and a secrets file under $XDG_DATA_HOME/resqfreeze.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Monitor MonitorConfig
	Session SessionConfig
	Storage StorageConfig
	Proxy   ProxyConfig
	Alerts  AlertsConfig
	Log     LogConfig
}

// ServerConfig is the reference backend listener.
type ServerConfig struct {
	Port     int
	APIToken string
}

// BackendConfig tells the monitor and CLI where the backend lives.
type BackendConfig struct {
	BaseURL  string
	APIToken string
}

type MonitorConfig struct {
	Port                 int
	SensorInterval       time.Duration
	ClockInterval        time.Duration
	NotificationInterval time.Duration
	UseServerLabel       bool
}

type SessionConfig struct {
	VegetableName string
}

type StorageConfig struct {
	DataDir string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	DefaultModel     string
}

type AlertsConfig struct {
	WebhookURL string
	WebhookKey string
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8000},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8000/api",
		},
		Monitor: MonitorConfig{
			Port:                 4100,
			SensorInterval:       5 * time.Second,
			ClockInterval:        time.Second,
			NotificationInterval: time.Minute,
			UseServerLabel:       true,
		},
		Session: SessionConfig{VegetableName: "Bayam"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Proxy:   ProxyConfig{DefaultModel: "openai/gpt-4o-mini"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads configuration from every layer. A .env file in the working
// directory is loaded into the environment first; variables already set win
// over it. Missing files are not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
	return loadWith(newFileBackend(configFilePath()), secretsFile{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	return cfg, nil
}
