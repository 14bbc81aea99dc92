package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONTENTEXPIRY"

type Config struct {
	HTTP      HTTP      `mapstructure:"http"`
	DB        Database  `mapstructure:"db"`
	Log       Logger    `mapstructure:"log"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	// Debug enables verbose diagnostics: failed actions are logged, storage errors
	// are shown in API responses and pprof is mounted.
	Debug bool `mapstructure:"debug"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
}

type Database struct {
	Path string `mapstructure:"path"`
}

type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Scheduler struct {
	Interval        time.Duration `mapstructure:"interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	RuntimeThrottle time.Duration `mapstructure:"runtime_throttle"`
	OnceMinDelay    time.Duration `mapstructure:"once_min_delay"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.path", "contentexpiry.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("scheduler.runtime_throttle", time.Minute)
	v.SetDefault("scheduler.once_min_delay", 5*time.Second)
	v.SetDefault("debug", false)
}

// Load reads .env (if present), then path or ./config.yaml (if present), then
// CONTENTEXPIRY_* environment variables, on top of the defaults.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if c.DB.Path == "" {
		return errors.New("config: db.path is required")
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("config: scheduler.interval %s is below 1s", c.Scheduler.Interval)
	}
	if c.Scheduler.BatchSize <= 0 {
		return errors.New("config: scheduler.batch_size must be positive")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}
