package tts

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/text/language"
)

// Config is the complete engine configuration. Values load from the
// config file, then the environment overlays via the env tags.
type Config struct {
	// Language is the default language code for lines played without
	// an explicit one, e.g. "sa", "deva", "en-US".
	Language string `yaml:"language" env:"SHRAVAN_LANGUAGE" envDefault:"sa"`

	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Playback PlaybackConfig `yaml:"playback"`
	Prefetch PrefetchConfig `yaml:"prefetch"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig selects and tunes the synthesis provider chain.
type ProviderConfig struct {
	Kind              string        `yaml:"kind" env:"SHRAVAN_PROVIDER_KIND" envDefault:"http"`
	Endpoint          string        `yaml:"endpoint" env:"SHRAVAN_PROVIDER_ENDPOINT"`
	Token             string        `yaml:"token" env:"SHRAVAN_PROVIDER_TOKEN"`
	Format            string        `yaml:"format" env:"SHRAVAN_PROVIDER_FORMAT" envDefault:"mp3"`
	FallbackKind      string        `yaml:"fallback_kind" env:"SHRAVAN_PROVIDER_FALLBACK_KIND"`
	FallbackEndpoint  string        `yaml:"fallback_endpoint" env:"SHRAVAN_PROVIDER_FALLBACK_ENDPOINT"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"SHRAVAN_PROVIDER_REQUESTS_PER_MINUTE" envDefault:"60"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" env:"SHRAVAN_PROVIDER_FETCH_TIMEOUT" envDefault:"15s"`
}

// CacheConfig bounds the tiered audio cache.
type CacheConfig struct {
	Dir              string        `yaml:"dir" env:"SHRAVAN_CACHE_DIR"`
	Name             string        `yaml:"name" env:"SHRAVAN_CACHE_NAME" envDefault:"audio"`
	Version          int           `yaml:"version" env:"SHRAVAN_CACHE_VERSION" envDefault:"1"`
	MemoryMaxEntries int           `yaml:"memory_max_entries" env:"SHRAVAN_CACHE_MEMORY_MAX_ENTRIES" envDefault:"64"`
	MemoryMaxBytes   int64         `yaml:"memory_max_bytes" env:"SHRAVAN_CACHE_MEMORY_MAX_BYTES" envDefault:"33554432"`
	DiskMaxBytes     int64         `yaml:"disk_max_bytes" env:"SHRAVAN_CACHE_DISK_MAX_BYTES" envDefault:"268435456"`
	RemoteEndpoint   string        `yaml:"remote_endpoint" env:"SHRAVAN_CACHE_REMOTE_ENDPOINT"`
	MetadataTimeout  time.Duration `yaml:"metadata_timeout" env:"SHRAVAN_CACHE_METADATA_TIMEOUT" envDefault:"2s"`
}

// PlaybackConfig tunes the playback controller and device.
type PlaybackConfig struct {
	SampleRate       int           `yaml:"sample_rate" env:"SHRAVAN_PLAYBACK_SAMPLE_RATE" envDefault:"24000"`
	Channels         int           `yaml:"channels" env:"SHRAVAN_PLAYBACK_CHANNELS" envDefault:"1"`
	StartTimeout     time.Duration `yaml:"start_timeout" env:"SHRAVAN_PLAYBACK_START_TIMEOUT" envDefault:"1500ms"`
	MaxStartAttempts int           `yaml:"max_start_attempts" env:"SHRAVAN_PLAYBACK_MAX_START_ATTEMPTS" envDefault:"2"`
	Volume           float64       `yaml:"volume" env:"SHRAVAN_PLAYBACK_VOLUME" envDefault:"1.0"`
}

// PrefetchConfig tunes the cache warmer.
type PrefetchConfig struct {
	Enabled   bool `yaml:"enabled" env:"SHRAVAN_PREFETCH_ENABLED" envDefault:"true"`
	Lookahead int  `yaml:"lookahead" env:"SHRAVAN_PREFETCH_LOOKAHEAD" envDefault:"2"`
	Workers   int  `yaml:"workers" env:"SHRAVAN_PREFETCH_WORKERS" envDefault:"1"`
}

// LogConfig configures the engine logger.
type LogConfig struct {
	Level string `yaml:"level" env:"SHRAVAN_LOG_LEVEL" envDefault:"info"`
	File  string `yaml:"file" env:"SHRAVAN_LOG_FILE"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() Config {
	return Config{
		Language: "sa",
		Provider: ProviderConfig{
			Kind:              "http",
			Format:            "mp3",
			RequestsPerMinute: 60,
			FetchTimeout:      15 * time.Second,
		},
		Cache: CacheConfig{
			Name:             "audio",
			Version:          1,
			MemoryMaxEntries: 64,
			MemoryMaxBytes:   32 << 20,
			DiskMaxBytes:     256 << 20,
			MetadataTimeout:  2 * time.Second,
		},
		Playback: PlaybackConfig{
			SampleRate:       24000,
			Channels:         1,
			StartTimeout:     1500 * time.Millisecond,
			MaxStartAttempts: 2,
			Volume:           1.0,
		},
		Prefetch: PrefetchConfig{
			Enabled:   true,
			Lookahead: 2,
			Workers:   1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Bare language tokens like "deva" are not well-formed BCP 47 tags but
// are valid provider language identifiers.
var bareLanguageRegex = regexp.MustCompile(`^[a-z0-9]{2,16}(-[a-z0-9]{1,16})*$`)

// validLanguage accepts BCP 47 tags and bare provider tokens.
func validLanguage(code string) bool {
	if code == "" {
		return false
	}
	if _, err := language.Parse(code); err == nil {
		return true
	}
	return bareLanguageRegex.MatchString(code)
}

// Validate checks every tunable and returns a single configuration
// error listing all violations. The engine refuses to construct on a
// config that does not validate.
func (c Config) Validate() error {
	var errs []error

	if !validLanguage(c.Language) {
		errs = append(errs, fmt.Errorf("language %q is not a usable language code", c.Language))
	}

	switch c.Provider.Kind {
	case "http", "stream", "mock":
	default:
		errs = append(errs, fmt.Errorf("provider kind %q: %w", c.Provider.Kind, ErrInvalidProvider))
	}
	if c.Provider.Kind != "mock" && c.Provider.Endpoint == "" {
		errs = append(errs, fmt.Errorf("provider kind %q needs an endpoint: %w", c.Provider.Kind, ErrNoProviderConfigured))
	}
	if _, ok := ParseAudioFormat(c.Provider.Format); !ok {
		errs = append(errs, fmt.Errorf("provider format %q is not one of mp3, wav, pcm", c.Provider.Format))
	}
	if c.Provider.FallbackKind != "" {
		switch c.Provider.FallbackKind {
		case "http", "stream", "mock":
		default:
			errs = append(errs, fmt.Errorf("fallback provider kind %q: %w", c.Provider.FallbackKind, ErrInvalidProvider))
		}
		if c.Provider.FallbackKind != "mock" && c.Provider.FallbackEndpoint == "" {
			errs = append(errs, fmt.Errorf("fallback provider kind %q needs an endpoint: %w", c.Provider.FallbackKind, ErrNoProviderConfigured))
		}
	}
	if c.Provider.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("requests_per_minute must be at least 1, got %d", c.Provider.RequestsPerMinute))
	}
	if c.Provider.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %v", c.Provider.FetchTimeout))
	}

	if c.Cache.Name == "" {
		errs = append(errs, errors.New("cache name must not be empty"))
	}
	if c.Cache.MemoryMaxEntries < 1 {
		errs = append(errs, fmt.Errorf("memory_max_entries must be at least 1, got %d", c.Cache.MemoryMaxEntries))
	}
	if c.Cache.MemoryMaxBytes < 1 {
		errs = append(errs, fmt.Errorf("memory_max_bytes must be positive, got %d", c.Cache.MemoryMaxBytes))
	}
	if c.Cache.DiskMaxBytes < 1 {
		errs = append(errs, fmt.Errorf("disk_max_bytes must be positive, got %d", c.Cache.DiskMaxBytes))
	}
	if c.Cache.MetadataTimeout <= 0 {
		errs = append(errs, fmt.Errorf("metadata_timeout must be positive, got %v", c.Cache.MetadataTimeout))
	}

	if c.Playback.SampleRate < 8000 || c.Playback.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate %d outside 8000..192000", c.Playback.SampleRate))
	}
	if c.Playback.Channels != 1 && c.Playback.Channels != 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", c.Playback.Channels))
	}
	if c.Playback.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start_timeout must be positive, got %v", c.Playback.StartTimeout))
	}
	if c.Playback.MaxStartAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_start_attempts must be at least 1, got %d", c.Playback.MaxStartAttempts))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 2 {
		errs = append(errs, fmt.Errorf("volume %v outside 0..2", c.Playback.Volume))
	}

	if c.Prefetch.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("prefetch lookahead must not be negative, got %d", c.Prefetch.Lookahead))
	}
	if c.Prefetch.Enabled && c.Prefetch.Workers < 1 {
		errs = append(errs, fmt.Errorf("prefetch workers must be at least 1 when enabled, got %d", c.Prefetch.Workers))
	}

	if len(errs) > 0 {
		return NewError(KindConfiguration, "config.validate", errors.Join(errs...))
	}
	return nil
}
