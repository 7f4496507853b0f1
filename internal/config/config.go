package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tnunamak/tokentorch/internal/forecast"
)

const (
	DefaultPollInterval = 5 * time.Minute
	MinPollInterval     = 10 * time.Second
	envPrefix           = "TOKENTORCH"
)

// Config holds the complete application configuration. The session key is
// not part of it; see api.ReadSessionKey.
type Config struct {
	OrgID        string            `mapstructure:"org_id"`
	PollInterval time.Duration     `mapstructure:"poll_interval"`
	Timezone     string            `mapstructure:"timezone"`
	ActiveHours  ActiveHoursConfig `mapstructure:"active_hours"`
	Logging      LoggingConfig     `mapstructure:"logging"`
	Cache        CacheConfig       `mapstructure:"cache"`
	History      HistoryConfig     `mapstructure:"history"`
	Metrics      MetricsConfig     `mapstructure:"metrics"`
	Update       UpdateConfig      `mapstructure:"update"`

	// Path is the file the configuration was read from.
	Path string `mapstructure:"-"`
}

// ActiveHoursConfig is the daily window during which usage is assumed to happen.
type ActiveHoursConfig struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"` // "file" or "redis"
	TTL     time.Duration `mapstructure:"ttl"`
	Dir     string        `mapstructure:"dir"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type UpdateConfig struct {
	Check    bool   `mapstructure:"check"`
	Schedule string `mapstructure:"schedule"`
}

func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokentorch", "config.yaml"), nil
}

// Load loads configuration from file and environment variables. A missing
// file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Path = configPath

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("org_id", "")
	v.SetDefault("poll_interval", DefaultPollInterval.String())
	v.SetDefault("timezone", "Local")

	v.SetDefault("active_hours.start", forecast.DefaultActiveStart)
	v.SetDefault("active_hours.end", forecast.DefaultActiveEnd)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "tokentorch:usage")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention", "720h")

	v.SetDefault("metrics.addr", "127.0.0.1:9477")

	v.SetDefault("update.check", true)
	v.SetDefault("update.schedule", "@every 6h")
}

func validate(cfg *Config) error {
	if cfg.PollInterval < MinPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", MinPollInterval, cfg.PollInterval)
	}
	if cfg.ActiveHours.Start < 0 || cfg.ActiveHours.End > 24 || cfg.ActiveHours.Start >= cfg.ActiveHours.End {
		return fmt.Errorf("active_hours must satisfy 0 <= start < end <= 24, got %d-%d",
			cfg.ActiveHours.Start, cfg.ActiveHours.End)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	switch cfg.Cache.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Logging.Format)
	}
	return nil
}

// IsConfigured reports whether enough is known to poll the API.
func (c *Config) IsConfigured() bool {
	return c.OrgID != ""
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// Engine builds the evaluation engine for the configured active hours.
func (c *Config) Engine() (forecast.Engine, error) {
	loc, err := c.Location()
	if err != nil {
		return forecast.Engine{}, err
	}
	return forecast.NewEngine(forecast.ActiveHours{
		Start:    c.ActiveHours.Start,
		End:      c.ActiveHours.End,
		Location: loc,
	}), nil
}

// CacheDir returns the configured cache directory or the per-user default.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return expandPath(c.Cache.Dir), nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokentorch"), nil
}

// HistoryPath returns the SQLite database path for sample history.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return expandPath(c.History.Path), nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokentorch", "history.db"), nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	return path
}
