package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. ARBITER_SERVER_ADDR.
const EnvPrefix = "ARBITER"

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("audit.max_history", d.Audit.MaxHistory)
	v.SetDefault("audit.journal_path", d.Audit.JournalPath)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads the config file at path on top of the defaults. It uses its
// own viper instance so a reload never disturbs the process-wide one.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Decode(v)
}
