/*
Package config loads runtime settings from the environment.

Values come from MAKTABDL_* variables, optionally seeded from a .env file.
Variables already set in the process environment win over the file.

	cfg, err := config.Load(".env")
	if err != nil {
	    return err
	}
*/
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "MAKTABDL_"

// Config holds all runtime configuration of the CLI.
type Config struct {
	// Platform
	BaseURL string `env:"BASE_URL" envDefault:"https://maktabkhooneh.org"`

	// Where downloads and the cookie file go
	OutputDir   string `env:"OUTPUT_DIR" envDefault:"."`
	CookiesPath string `env:"COOKIES"`

	// Credentials used when no cookie file exists
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`

	// HTTP
	Proxy             string        `env:"PROXY"`
	Timeout           time.Duration `env:"TIMEOUT"             envDefault:"60s"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS"        envDefault:"3"`
	RateLimitBackoff  time.Duration `env:"RATE_LIMIT_BACKOFF"  envDefault:"60s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"0"`

	Verbose bool `env:"VERBOSE" envDefault:"false"`
}

// Load reads dotenv when it exists and parses the process environment.
func Load(dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", dotenv, err)
		}
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses settings from vars instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if cfg.CookiesPath == "" {
		cfg.CookiesPath = DefaultCookiesPath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config: REQUESTS_PER_SECOND must not be negative")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid BASE_URL %q", c.BaseURL)
	}
	if c.Proxy != "" {
		if _, err := c.ProxyURL(); err != nil {
			return err
		}
	}
	return nil
}

// ProxyURL returns the parsed proxy, or nil when none is set.
func (c *Config) ProxyURL() (*url.URL, error) {
	if c.Proxy == "" {
		return nil, nil
	}
	u, err := url.Parse(c.Proxy)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("config: invalid PROXY %q", c.Proxy)
	}
	return u, nil
}

// DefaultCookiesPath is the cookie file location when none is configured.
func DefaultCookiesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "maktabdl", "cookies.json")
}
