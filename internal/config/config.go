// Package config loads the dashboard's settings from the environment and an
// optional config.yaml.
//
// Environment variables win over the file. Variable names follow the ones the
// dashboard has always used (DATABASE_URL, NYT_KEY, IP, PORT, and the legacy
// lowercase username/password for the statistics API).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string `mapstructure:"database_url"`

	StatsUsername   string        `mapstructure:"stats_username"`
	StatsPassword   string        `mapstructure:"stats_password"`
	NewsAPIKey      string        `mapstructure:"news_api_key"`
	StatsBaseURL    string        `mapstructure:"stats_base_url"`
	NewsBaseURL     string        `mapstructure:"news_base_url"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`

	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// env lists the environment variables bound to each key, in precedence order.
var env = map[string][]string{
	"database_url":     {"DATABASE_URL"},
	"stats_username":   {"STATS_USERNAME", "username"},
	"stats_password":   {"STATS_PASSWORD", "password"},
	"news_api_key":     {"NYT_KEY"},
	"stats_base_url":   {"STATS_BASE_URL"},
	"news_base_url":    {"NEWS_BASE_URL"},
	"upstream_timeout": {"UPSTREAM_TIMEOUT"},
	"host":             {"IP"},
	"port":             {"PORT"},
	"static_dir":       {"STATIC_DIR"},
	"redis_addr":       {"REDIS_ADDR"},
	"redis_password":   {"REDIS_PASSWORD"},
	"cache_ttl":        {"CACHE_TTL"},
	"log_level":        {"LOG_LEVEL"},
	"log_format":       {"LOG_FORMAT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8081)
	v.SetDefault("static_dir", "./build")
	v.SetDefault("stats_base_url", "https://api.covid19api.com")
	v.SetDefault("news_base_url", "https://api.nytimes.com")
	v.SetDefault("upstream_timeout", "20s")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("cache_ttl", "10m")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads config.yaml from the given directories (the working directory
// and ./config when none are given) and the environment. A missing file is
// fine; a file that exists but cannot be parsed is an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	for key, names := range env {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and value ranges. The error names the
// first problem and the environment variable that fixes it.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"database_url", c.DatabaseURL},
		{"stats_username", c.StatsUsername},
		{"stats_password", c.StatsPassword},
		{"news_api_key", c.NewsAPIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("config: %s is required (set %s)", r.key, env[r.key][0])
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("config: upstream_timeout must be positive, got %s", c.UpstreamTimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache_ttl must be positive, got %s", c.CacheTTL)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address, host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level maps log_level to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
