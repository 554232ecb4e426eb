package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultUserAgent identifies requests as a desktop browser to get past trivial bot filters.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config stores all configuration for the application.
type Config struct {
	InputPath        string `mapstructure:"INPUT_PATH"`
	OutputPath       string `mapstructure:"OUTPUT_PATH"`
	Workers          int    `mapstructure:"WORKERS"`
	MaxPages         int    `mapstructure:"MAX_PAGES"`
	RequestTimeout   int    `mapstructure:"REQUEST_TIMEOUT"` // seconds
	RowTimeout       int    `mapstructure:"ROW_TIMEOUT"`     // seconds, 0 disables
	MinContentLength int    `mapstructure:"MIN_CONTENT_LENGTH"`
	MaxBodyBytes     int64  `mapstructure:"MAX_BODY_BYTES"`
	MaxRedirects     int    `mapstructure:"MAX_REDIRECTS"`
	UserAgent        string `mapstructure:"USER_AGENT"`
	Proxies          string `mapstructure:"PROXIES"`
	PhoneRegion      string `mapstructure:"PHONE_REGION"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	LogFile          string `mapstructure:"LOG_FILE"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	CacheTTLHours    int    `mapstructure:"CACHE_TTL_HOURS"`
	PostgresURL      string `mapstructure:"POSTGRES_URL"`
	ServerPort       string `mapstructure:"SERVER_PORT"`
	MetricsAddr      string `mapstructure:"METRICS_ADDR"`
}

var defaults = map[string]any{
	"INPUT_PATH":         "",
	"OUTPUT_PATH":        "",
	"WORKERS":            5,
	"MAX_PAGES":          5,
	"REQUEST_TIMEOUT":    30,
	"ROW_TIMEOUT":        300,
	"MIN_CONTENT_LENGTH": 100,
	"MAX_BODY_BYTES":     5 << 20,
	"MAX_REDIRECTS":      10,
	"USER_AGENT":         DefaultUserAgent,
	"PROXIES":            "",
	"PHONE_REGION":       "",
	"LOG_LEVEL":          "info",
	"LOG_FILE":           "website_scanner.log",
	"REDIS_ADDR":         "",
	"CACHE_TTL_HOURS":    48,
	"POSTGRES_URL":       "",
	"SERVER_PORT":        "8080",
	"METRICS_ADDR":       "",
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"output":  "OUTPUT_PATH",
	"workers": "WORKERS",
	"pages":   "MAX_PAGES",
	"timeout": "REQUEST_TIMEOUT",
}

// Flags returns the command line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("output", "o", "", "Output file path (default processed_<input>)")
	fs.IntP("workers", "w", 5, "Number of concurrent workers")
	fs.IntP("pages", "p", 5, "Maximum pages to scan per website")
	fs.IntP("timeout", "t", 30, "Per-request timeout in seconds")
	return fs
}

// Load reads configuration from the .env file, the environment and, when fs is
// not nil, the parsed command line flags. Explicitly set flags win.
func Load(envFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// A missing .env file is fine; everything can come from the environment.
	if envFile != "" {
		_ = v.ReadInConfig()
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
		if args := fs.Args(); len(args) > 0 {
			v.Set("INPUT_PATH", args[0])
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("max pages must be at least 1, got %d", c.MaxPages))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %d", c.RequestTimeout))
	}
	if c.RowTimeout < 0 {
		errs = append(errs, fmt.Errorf("row timeout must not be negative, got %d", c.RowTimeout))
	}
	return errors.Join(errs...)
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) RowDeadline() time.Duration {
	return time.Duration(c.RowTimeout) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// ProxyList splits PROXIES on commas, dropping blanks.
func (c *Config) ProxyList() []string {
	var out []string
	for _, p := range strings.Split(c.Proxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolvedOutputPath returns OutputPath or processed_<input basename>.
func (c *Config) ResolvedOutputPath() string {
	if c.OutputPath != "" {
		return c.OutputPath
	}
	return "processed_" + filepath.Base(c.InputPath)
}
