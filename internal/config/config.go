// Package config provides configuration types and defaults for arbiter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/registry"
	"github.com/zjrosen/arbiter/internal/tracing"
)

// Config holds all configuration options for arbiter.
type Config struct {
	// Policies maps a kind name ("route", "content_type", ...) to a merge
	// policy. Kinds left out keep their built-in default.
	Policies map[string]string `mapstructure:"policies"`
	Audit    AuditConfig       `mapstructure:"audit"`
	Watch    WatchConfig       `mapstructure:"watch"`
	Server   ServerConfig      `mapstructure:"server"`
	Tracing  TracingConfig     `mapstructure:"tracing"`
	Log      LogConfig         `mapstructure:"log"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Flags    map[string]bool   `mapstructure:"flags"`
}

// AuditConfig controls the in-memory conflict log and its optional journal.
type AuditConfig struct {
	// MaxHistory bounds the in-memory audit log. 0 keeps every conflict.
	MaxHistory int `mapstructure:"max_history"`

	// JournalPath is the SQLite file conflicts are archived to when the
	// "journal" flag is on.
	// Default: ~/.config/arbiter/journal.db
	JournalPath string `mapstructure:"journal_path"`
}

// WatchConfig controls policy hot reload.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// ServerConfig holds the diagnostics HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"` // e.g. "127.0.0.1:7420"
}

// CacheConfig tunes the ownership query cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Path  string `mapstructure:"path"`  // empty logs to stderr
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/arbiter/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/arbiter/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "arbiter", "traces", "traces.jsonl")
}

// DefaultJournalPath returns ~/.config/arbiter/journal.db or empty string if
// home dir unavailable.
func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "arbiter", "journal.db")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	trace := tracing.DefaultConfig()
	return Config{
		Policies: map[string]string{},
		Audit: AuditConfig{
			MaxHistory:  1000,
			JournalPath: DefaultJournalPath(),
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
		Tracing: TracingConfig{
			Enabled:      trace.Enabled,
			Exporter:     trace.Exporter,
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: trace.OTLPEndpoint,
			SampleRate:   trace.SampleRate,
		},
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Flags: map[string]bool{},
	}
}

// PolicyTable resolves the configured policies over the built-in defaults.
func (c Config) PolicyTable() (registry.PolicyTable, error) {
	return registry.ParsePolicyTable(c.Policies)
}

// Validate checks the whole configuration and returns the first problem.
func Validate(c Config) error {
	if _, err := c.PolicyTable(); err != nil {
		return fmt.Errorf("policies: %w", err)
	}
	if c.Audit.MaxHistory < 0 {
		return fmt.Errorf("audit.max_history must be >= 0, got %d", c.Audit.MaxHistory)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0, got %s", c.Watch.Debounce)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0, got %s", c.Cache.TTL)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Arbiter Configuration

# Merge policy per resource kind, applied when an extension claims a
# resource another extension already owns.
#   ignore   - keep the existing owner, report the claim as ignored
#   override - the new claimant takes the resource
#   error    - reject the claim; the batch reports a per-resource failure
#   fallback - keep the existing definition as the effective one
policies:
  content_type: error
  route: error
  menu_entry: override
  ui_block: override
  field_group_extension: override

# Conflict audit log
audit:
  max_history: 1000   # Conflicts kept in memory (0 = unbounded)
  # journal_path: ~/.config/arbiter/journal.db  # Used when flags.journal is on

# Policy hot reload (flags.policy-hot-reload)
watch:
  debounce: 200ms

# Diagnostics server (arbiter serve)
server:
  addr: 127.0.0.1:7420

# Ownership query cache (flags.owner-cache)
cache:
  ttl: 5m

log:
  level: info
  # path: ~/.config/arbiter/arbiter.log  # Empty logs to stderr

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/arbiter/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags
flags:
  journal: false            # Archive conflicts to SQLite
  policy-hot-reload: false  # Reload policies when this file changes
  owner-cache: false        # Cache ownership queries
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
