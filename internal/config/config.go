// Package config loads the runtime's single YAML configuration file:
// database location, LLM provider credentials and model selection,
// server/scheduler ports, and logging. Grounded on a Config-struct/
// $include-aware-loader/JSON-schema-export package, trimmed to the
// surfaces this runtime actually has — channel/plugin/marketplace/RAG/
// identity configuration belonged to a multi-channel gateway, which is out
// of scope here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Version int `yaml:"version"`

	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Workspace WorkspaceConfig `yaml:"workspace"`
}

// MetricsConfig controls the Prometheus /metrics HTTP endpoint exposed by
// the "serve" command.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// WorkspaceConfig points the tool registry and scheduler file staging at a
// directory on disk. Root-relative tool paths (read_file, write_file, shell,
// ...) and a scheduled job's named files are both resolved against Path.
type WorkspaceConfig struct {
	Path      string `yaml:"path"`
	SkillsDir string `yaml:"skills_dir"`
}

// ServerConfig configures the HTTP API the runtime exposes for job
// submission, ask-user responses, and cancellation.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig points at the durable sqlite store.
type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SchedulerConfig controls the CRON trigger scheduler.
type SchedulerConfig struct {
	DefaultTimezone string `yaml:"default_timezone"`
	FilesDir        string `yaml:"files_dir"`
}

// LoggingConfig controls the structured logger's level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads path, resolves $include directives, expands environment
// variables, and decodes into a Config with defaults applied.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Database.Path == "" {
		c.Database.Path = "agentrund.db"
	}
	if c.Workspace.Path == "" {
		c.Workspace.Path = "."
	}
	if c.Scheduler.DefaultTimezone == "" {
		c.Scheduler.DefaultTimezone = "Europe/Warsaw"
	}
	if c.Scheduler.FilesDir == "" {
		c.Scheduler.FilesDir = filepath.Join(c.Workspace.Path, ".scheduled-files")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "agentrund"
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "anthropic"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9090"
	}
	c.LLM.applyDefaults()
}

// EnvOrDefault returns the named environment variable, or def if unset.
func EnvOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
