// Package config implements the hot-reloadable configuration snapshot:
// YAML on disk, an immutable typed struct in memory, reload swaps an
// atomic.Pointer rather than mutating in place.
package config

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ProtocolsConfig lists which decoders are registered at startup.
type ProtocolsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// LoggingConfig mirrors internal/logger.Config so it can be loaded
// straight from the same YAML document.
type LoggingConfig struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// PersistenceConfig holds the Postgres connection string and buffer
// sizing for pkg/persistence.
type PersistenceConfig struct {
	DSN        string `yaml:"dsn"`
	BufferSize int    `yaml:"buffer_size"`
}

// Config is the full, immutable configuration snapshot. A reload builds
// a new Config and atomically swaps it in; nothing here is ever mutated
// after NewManager/Reload returns it.
type Config struct {
	Workers                     int    `yaml:"workers"`
	SessionTimeoutSeconds       int    `yaml:"session_timeout_seconds"`
	SessionSweepIntervalSeconds int    `yaml:"session_sweep_interval_seconds"`
	EventRetentionDays          int    `yaml:"event_retention_days"`
	CDRRetentionDays            int    `yaml:"cdr_retention_days"`
	InputBufferSize             int    `yaml:"input_buffer_size"`
	PersistenceBufferSize       int    `yaml:"persistence_buffer_size"`
	EventsDir                   string `yaml:"events_dir"`
	CDRDir                      string `yaml:"cdr_dir"`

	Protocols   ProtocolsConfig   `yaml:"protocols"`
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// defaults fills in the documented default for every option.
func defaults() Config {
	return Config{
		Workers:                     runtime.NumCPU(),
		SessionTimeoutSeconds:       300,
		SessionSweepIntervalSeconds: 30,
		EventRetentionDays:          30,
		CDRRetentionDays:            90,
		InputBufferSize:             10000,
		PersistenceBufferSize:       10000,
		EventsDir:                   "events",
		CDRDir:                      "cdr",
		Protocols: ProtocolsConfig{
			Enabled: []string{"map", "cap", "inap", "diameter", "gtp", "pfcp", "http2", "ngap", "s1ap", "nas"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Persistence: PersistenceConfig{
			BufferSize: 10000,
		},
	}
}

// ConfigError wraps a configuration load/parse failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %s", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &cfg, nil
}

// Manager holds the live configuration snapshot behind an atomic
// pointer. Readers call Current(); reload never mutates a returned
// *Config, it only swaps the pointer to a freshly parsed one.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
}

// NewManager loads path and returns a Manager. A failure here is the
// one configuration error callers treat as fatal.
func NewManager(path string) (*Manager, error) {
	cfg, err := parse(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.current.Store(cfg)
	return m, nil
}

// Current returns the active configuration snapshot. Safe for
// concurrent use; the returned value is never mutated in place.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Reload re-parses the config file and swaps it in atomically. A reload
// failure is non-fatal: the old snapshot stays active and the error is
// returned for the caller to log.
func (m *Manager) Reload() error {
	cfg, err := parse(m.path)
	if err != nil {
		return err
	}
	m.current.Store(cfg)
	return nil
}
