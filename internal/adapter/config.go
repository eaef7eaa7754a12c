package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmcdole/albumcache/internal/itunes"
	"github.com/mmcdole/albumcache/internal/service"
	"github.com/mmcdole/albumcache/internal/store"
)

const (
	appName   = "albumcache"
	envPrefix = "ALBUMCACHE"
)

// Config holds all application configuration
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig holds encrypted store configuration
type StoreConfig struct {
	Dir         string        `mapstructure:"dir"`        // Empty keeps the cache in memory only
	File        string        `mapstructure:"file"`       // Database file name inside Dir
	Passphrase  string        `mapstructure:"passphrase"` // Prompted for when empty and Dir is set
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// RemoteConfig holds iTunes Search API configuration
type RemoteConfig struct {
	SearchURL string        `mapstructure:"search_url"`
	Country   string        `mapstructure:"country"`
	Limit     int           `mapstructure:"limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	// MaxBodyBytes caps each response body
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// CacheConfig holds cache policy configuration
type CacheConfig struct {
	StrictReads     bool `mapstructure:"strict_reads"`
	PrefetchArtwork bool `mapstructure:"prefetch_artwork"`
	PrefetchWorkers int  `mapstructure:"prefetch_workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:         defaultDataPath(),
			File:        "albumcache.db",
			OpenTimeout: time.Second,
		},
		Remote: RemoteConfig{
			SearchURL: itunes.DefaultSearchURL,
			Country:   "us",
			Limit:     50,
			Timeout:   30 * time.Second,
			UserAgent: "albumcache/1.0",

			MaxBodyBytes: itunes.DefaultMaxBodyBytes,
		},
		Cache: CacheConfig{
			StrictReads:     false,
			PrefetchArtwork: false,
			PrefetchWorkers: 4,
		},
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), "albumcache.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", appName)
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// newViper returns a viper instance seeded with the defaults so that every
// key is known to AutomaticEnv, even when no config file sets it
func newViper(defaults *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Environment variable overrides, e.g. ALBUMCACHE_STORE_PASSPHRASE.
	// An empty ALBUMCACHE_STORE_DIR selects the in-memory cache.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	setDefaults(v, defaults)
	return v
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("store.dir", cfg.Store.Dir)
	v.SetDefault("store.file", cfg.Store.File)
	v.SetDefault("store.passphrase", cfg.Store.Passphrase)
	v.SetDefault("store.open_timeout", cfg.Store.OpenTimeout)

	v.SetDefault("remote.search_url", cfg.Remote.SearchURL)
	v.SetDefault("remote.country", cfg.Remote.Country)
	v.SetDefault("remote.limit", cfg.Remote.Limit)
	v.SetDefault("remote.timeout", cfg.Remote.Timeout)
	v.SetDefault("remote.user_agent", cfg.Remote.UserAgent)
	v.SetDefault("remote.max_body_bytes", cfg.Remote.MaxBodyBytes)

	v.SetDefault("cache.strict_reads", cfg.Cache.StrictReads)
	v.SetDefault("cache.prefetch_artwork", cfg.Cache.PrefetchArtwork)
	v.SetDefault("cache.prefetch_workers", cfg.Cache.PrefetchWorkers)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// LoadConfig loads configuration from the default config directory, the
// working directory and the environment
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("", defaultConfigPath(), ".")
}

// LoadConfigFrom loads configuration from file (when set) or the first
// config.yaml found in dirs, then applies environment overrides
func LoadConfigFrom(file string, dirs ...string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)

	if file != "" {
		v.SetConfigFile(file)
	}
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.Store.Dir = expandHome(cfg.Store.Dir)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	return cfg, nil
}

// SaveConfig saves cfg to config.yaml in the default config directory.
// The passphrase is never written.
func SaveConfig(cfg *Config) error {
	return SaveConfigTo(cfg, defaultConfigPath())
}

// SaveConfigTo saves cfg to config.yaml in dir
func SaveConfigTo(cfg *Config, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.Set("store.dir", cfg.Store.Dir)
	v.Set("store.file", cfg.Store.File)
	v.Set("store.open_timeout", cfg.Store.OpenTimeout.String())

	v.Set("remote.search_url", cfg.Remote.SearchURL)
	v.Set("remote.country", cfg.Remote.Country)
	v.Set("remote.limit", cfg.Remote.Limit)
	v.Set("remote.timeout", cfg.Remote.Timeout.String())
	v.Set("remote.user_agent", cfg.Remote.UserAgent)
	v.Set("remote.max_body_bytes", cfg.Remote.MaxBodyBytes)

	v.Set("cache.strict_reads", cfg.Cache.StrictReads)
	v.Set("cache.prefetch_artwork", cfg.Cache.PrefetchArtwork)
	v.Set("cache.prefetch_workers", cfg.Cache.PrefetchWorkers)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InMemory returns true if the cache is not persisted to disk
func (c *Config) InMemory() bool {
	return c.Store.Dir == ""
}

// StoreOptions converts the store section to store.Options
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Dir:         c.Store.Dir,
		File:        c.Store.File,
		Passphrase:  c.Store.Passphrase,
		OpenTimeout: c.Store.OpenTimeout,
	}
}

// RemoteOptions converts the remote section to itunes.Options
func (c *Config) RemoteOptions() itunes.Options {
	return itunes.Options{
		SearchURL: c.Remote.SearchURL,
		Country:   c.Remote.Country,
		Limit:     c.Remote.Limit,
		Timeout:   c.Remote.Timeout,
		UserAgent: c.Remote.UserAgent,

		MaxBodyBytes: c.Remote.MaxBodyBytes,
	}
}

// ServiceOptions converts the cache section to service.Options
func (c *Config) ServiceOptions() service.Options {
	return service.Options{
		StrictReads:     c.Cache.StrictReads,
		PrefetchArtwork: c.Cache.PrefetchArtwork,
		PrefetchWorkers: c.Cache.PrefetchWorkers,
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
