package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/spf13/viper"
)

// Config is the reader configuration as stored in rsvp.yml.
type Config struct {
	WPM         int     `yaml:"wpm" env:"RSVP_WPM"`
	Sensitivity float64 `yaml:"sensitivity" env:"RSVP_SENSITIVITY"`

	Cache    CacheConfig    `yaml:"cache"`
	Document DocumentConfig `yaml:"document"`
	Playback PlaybackConfig `yaml:"playback"`
	Store    StoreConfig    `yaml:"store"`
}

// CacheConfig controls segment caching.
type CacheConfig struct {
	// Segments is how many segments stay tokenized in memory.
	Segments int `yaml:"segments"`
	// Dir holds compressed segment text. Empty disables the disk cache.
	Dir         string `yaml:"dir"`
	DiskSize    int64  `yaml:"disk_size"`
	Compression int    `yaml:"compression"`
}

// DocumentConfig controls how documents are cut into segments.
type DocumentConfig struct {
	PageWords int `yaml:"page_words"`
}

// PlaybackConfig controls the scheduler.
type PlaybackConfig struct {
	ScrubFactor     float64       `yaml:"scrub_factor"`
	PersistInterval time.Duration `yaml:"persist_interval"`
	Lookahead       int           `yaml:"lookahead"`
}

// StoreConfig points at the position database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		WPM:         prosody.DefaultWPM,
		Sensitivity: prosody.DefaultSensitivity,
		Cache: CacheConfig{
			Segments:    3,
			DiskSize:    64 * 1024 * 1024,
			Compression: 3,
		},
		Document: DocumentConfig{PageWords: 500},
		Playback: PlaybackConfig{
			ScrubFactor:     4,
			PersistInterval: 5 * time.Second,
			Lookahead:       50,
		},
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.WPM < MinWPM || c.WPM > MaxWPM {
		errs = append(errs, fmt.Errorf("wpm must be between %d and %d, got %d", MinWPM, MaxWPM, c.WPM))
	}
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("sensitivity must be between 0 and 1, got %.2f", c.Sensitivity))
	}
	if c.Cache.Segments < 2 {
		errs = append(errs, fmt.Errorf("cache.segments must be at least 2, got %d", c.Cache.Segments))
	}
	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		errs = append(errs, fmt.Errorf("cache.compression must be between 0 and 22, got %d", c.Cache.Compression))
	}
	if c.Document.PageWords < 50 {
		errs = append(errs, fmt.Errorf("document.page_words must be at least 50, got %d", c.Document.PageWords))
	}
	if c.Playback.ScrubFactor <= 1 {
		errs = append(errs, fmt.Errorf("playback.scrub_factor must be greater than 1, got %.1f", c.Playback.ScrubFactor))
	}
	if c.Playback.PersistInterval < time.Second {
		errs = append(errs, fmt.Errorf("playback.persist_interval must be at least 1s, got %s", c.Playback.PersistInterval))
	}
	if c.Playback.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("playback.lookahead must not be negative, got %d", c.Playback.Lookahead))
	}
	return errors.Join(errs...)
}

// LoadConfigFromViper reads the configuration from the global viper
// instance, falling back to defaults for unset keys.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("wpm") {
		cfg.WPM = viper.GetInt("wpm")
	}
	if viper.IsSet("sensitivity") {
		cfg.Sensitivity = viper.GetFloat64("sensitivity")
	}

	if viper.IsSet("cache.segments") {
		cfg.Cache.Segments = viper.GetInt("cache.segments")
	}
	if viper.IsSet("cache.dir") {
		cfg.Cache.Dir = viper.GetString("cache.dir")
	}
	if viper.IsSet("cache.disk_size") {
		cfg.Cache.DiskSize = viper.GetInt64("cache.disk_size")
	}
	if viper.IsSet("cache.compression") {
		cfg.Cache.Compression = viper.GetInt("cache.compression")
	}

	if viper.IsSet("document.page_words") {
		cfg.Document.PageWords = viper.GetInt("document.page_words")
	}

	if viper.IsSet("playback.scrub_factor") {
		cfg.Playback.ScrubFactor = viper.GetFloat64("playback.scrub_factor")
	}
	if viper.IsSet("playback.persist_interval") {
		if d, err := time.ParseDuration(viper.GetString("playback.persist_interval")); err == nil {
			cfg.Playback.PersistInterval = d
		}
	}
	if viper.IsSet("playback.lookahead") {
		cfg.Playback.Lookahead = viper.GetInt("playback.lookahead")
	}

	if viper.IsSet("store.path") {
		cfg.Store.Path = viper.GetString("store.path")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers the defaults with viper.
func SetDefaults() {
	d := DefaultConfig()
	viper.SetDefault("wpm", d.WPM)
	viper.SetDefault("sensitivity", d.Sensitivity)
	viper.SetDefault("cache.segments", d.Cache.Segments)
	viper.SetDefault("cache.dir", d.Cache.Dir)
	viper.SetDefault("cache.disk_size", d.Cache.DiskSize)
	viper.SetDefault("cache.compression", d.Cache.Compression)
	viper.SetDefault("document.page_words", d.Document.PageWords)
	viper.SetDefault("playback.scrub_factor", d.Playback.ScrubFactor)
	viper.SetDefault("playback.persist_interval", d.Playback.PersistInterval.String())
	viper.SetDefault("playback.lookahead", d.Playback.Lookahead)
	viper.SetDefault("store.path", d.Store.Path)
}
