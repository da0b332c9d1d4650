package tts

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// LoadConfig builds the effective configuration: defaults, then the
// viper-backed config file, then the environment overlay. The result is
// validated; a config that does not validate is returned alongside the
// error so callers can report what was loaded.
func LoadConfig() (Config, error) {
	cfg := loadFromViper()

	if err := env.Parse(&cfg); err != nil {
		return cfg, NewError(KindConfiguration, "config.env", err)
	}

	cfg.Cache.Dir = expandPath(cfg.Cache.Dir)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromViper overlays the config file onto the defaults.
func loadFromViper() Config {
	cfg := DefaultConfig()

	if viper.IsSet("language") {
		cfg.Language = viper.GetString("language")
	}

	if viper.IsSet("provider.kind") {
		cfg.Provider.Kind = viper.GetString("provider.kind")
	}
	if viper.IsSet("provider.endpoint") {
		cfg.Provider.Endpoint = viper.GetString("provider.endpoint")
	}
	if viper.IsSet("provider.token") {
		cfg.Provider.Token = viper.GetString("provider.token")
	}
	if viper.IsSet("provider.format") {
		cfg.Provider.Format = viper.GetString("provider.format")
	}
	if viper.IsSet("provider.fallback_kind") {
		cfg.Provider.FallbackKind = viper.GetString("provider.fallback_kind")
	}
	if viper.IsSet("provider.fallback_endpoint") {
		cfg.Provider.FallbackEndpoint = viper.GetString("provider.fallback_endpoint")
	}
	if viper.IsSet("provider.requests_per_minute") {
		cfg.Provider.RequestsPerMinute = viper.GetInt("provider.requests_per_minute")
	}
	if viper.IsSet("provider.fetch_timeout") {
		if d, err := time.ParseDuration(viper.GetString("provider.fetch_timeout")); err == nil {
			cfg.Provider.FetchTimeout = d
		}
	}

	if viper.IsSet("cache.dir") {
		cfg.Cache.Dir = viper.GetString("cache.dir")
	}
	if viper.IsSet("cache.name") {
		cfg.Cache.Name = viper.GetString("cache.name")
	}
	if viper.IsSet("cache.version") {
		cfg.Cache.Version = viper.GetInt("cache.version")
	}
	if viper.IsSet("cache.memory_max_entries") {
		cfg.Cache.MemoryMaxEntries = viper.GetInt("cache.memory_max_entries")
	}
	if viper.IsSet("cache.memory_max_bytes") {
		cfg.Cache.MemoryMaxBytes = viper.GetInt64("cache.memory_max_bytes")
	}
	if viper.IsSet("cache.disk_max_bytes") {
		cfg.Cache.DiskMaxBytes = viper.GetInt64("cache.disk_max_bytes")
	}
	if viper.IsSet("cache.remote_endpoint") {
		cfg.Cache.RemoteEndpoint = viper.GetString("cache.remote_endpoint")
	}
	if viper.IsSet("cache.metadata_timeout") {
		if d, err := time.ParseDuration(viper.GetString("cache.metadata_timeout")); err == nil {
			cfg.Cache.MetadataTimeout = d
		}
	}

	if viper.IsSet("playback.sample_rate") {
		cfg.Playback.SampleRate = viper.GetInt("playback.sample_rate")
	}
	if viper.IsSet("playback.channels") {
		cfg.Playback.Channels = viper.GetInt("playback.channels")
	}
	if viper.IsSet("playback.start_timeout") {
		if d, err := time.ParseDuration(viper.GetString("playback.start_timeout")); err == nil {
			cfg.Playback.StartTimeout = d
		}
	}
	if viper.IsSet("playback.max_start_attempts") {
		cfg.Playback.MaxStartAttempts = viper.GetInt("playback.max_start_attempts")
	}
	if viper.IsSet("playback.volume") {
		cfg.Playback.Volume = viper.GetFloat64("playback.volume")
	}

	if viper.IsSet("prefetch.enabled") {
		cfg.Prefetch.Enabled = viper.GetBool("prefetch.enabled")
	}
	if viper.IsSet("prefetch.lookahead") {
		cfg.Prefetch.Lookahead = viper.GetInt("prefetch.lookahead")
	}
	if viper.IsSet("prefetch.workers") {
		cfg.Prefetch.Workers = viper.GetInt("prefetch.workers")
	}

	if viper.IsSet("log.level") {
		cfg.Log.Level = viper.GetString("log.level")
	}
	if viper.IsSet("log.file") {
		cfg.Log.File = viper.GetString("log.file")
	}

	return cfg
}

// SetDefaults registers the default configuration with viper so a
// freshly written config file documents every key.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("language", defaults.Language)

	viper.SetDefault("provider.kind", defaults.Provider.Kind)
	viper.SetDefault("provider.endpoint", defaults.Provider.Endpoint)
	viper.SetDefault("provider.format", defaults.Provider.Format)
	viper.SetDefault("provider.requests_per_minute", defaults.Provider.RequestsPerMinute)
	viper.SetDefault("provider.fetch_timeout", defaults.Provider.FetchTimeout.String())

	viper.SetDefault("cache.name", defaults.Cache.Name)
	viper.SetDefault("cache.version", defaults.Cache.Version)
	viper.SetDefault("cache.memory_max_entries", defaults.Cache.MemoryMaxEntries)
	viper.SetDefault("cache.memory_max_bytes", defaults.Cache.MemoryMaxBytes)
	viper.SetDefault("cache.disk_max_bytes", defaults.Cache.DiskMaxBytes)
	viper.SetDefault("cache.metadata_timeout", defaults.Cache.MetadataTimeout.String())

	viper.SetDefault("playback.sample_rate", defaults.Playback.SampleRate)
	viper.SetDefault("playback.channels", defaults.Playback.Channels)
	viper.SetDefault("playback.start_timeout", defaults.Playback.StartTimeout.String())
	viper.SetDefault("playback.max_start_attempts", defaults.Playback.MaxStartAttempts)
	viper.SetDefault("playback.volume", defaults.Playback.Volume)

	viper.SetDefault("prefetch.enabled", defaults.Prefetch.Enabled)
	viper.SetDefault("prefetch.lookahead", defaults.Prefetch.Lookahead)
	viper.SetDefault("prefetch.workers", defaults.Prefetch.Workers)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.file", defaults.Log.File)
}

// WatchConfig re-applies the log level when the config file changes on
// disk, so long-running sessions can turn debug logging on and off
// without a restart.
func WatchConfig(logger *log.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		level := viper.GetString("log.level")
		parsed, err := log.ParseLevel(level)
		if err != nil {
			logger.Warn("Ignoring config change with bad log level", "path", e.Name, "level", level)
			return
		}
		logger.SetLevel(parsed)
		logger.Debug("Reloaded log level from config", "path", e.Name, "level", level)
	})
	viper.WatchConfig()
}

// expandPath resolves a leading ~ in configured paths.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
