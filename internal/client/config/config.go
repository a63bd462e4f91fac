package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds runtime settings for the session and data layers.
type Config struct {
	BackendURL        string
	APIKey            string
	RestPath          string
	AuthPath          string
	SessionDBPath     string
	SessionSecret     string
	RedirectURL       string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	SearchDebounce    time.Duration
	PageSize          int
	LogLevel          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:54321"
	c.RestPath = "/rest/v1"
	c.AuthPath = "/auth/v1"
	c.SessionDBPath = "session.db"
	c.RequestTimeout = 15 * time.Second
	c.RequestsPerSecond = 10
	c.SearchDebounce = 500 * time.Millisecond
	c.PageSize = 10
	c.LogLevel = "info"
}

// Validate reports settings the client cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("backend url is required"))
	} else if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend url %q is not absolute", c.BackendURL))
	}
	if c.SessionDBPath == "" {
		errs = append(errs, errors.New("session db path cannot be empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	if c.SearchDebounce < 0 {
		errs = append(errs, errors.New("search debounce cannot be negative"))
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}

	return errors.Join(errs...)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseEnv(cfg, args, lookup); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
