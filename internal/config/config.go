// Package config builds the immutable process configuration once at startup.
//
// Precedence, lowest first: built-in defaults, the optional YAML file named by
// CONFIG_FILE, then environment variables. Core packages never read the
// environment themselves; they receive the slices of Config they need.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gabihorn/beiter-alert-bot/internal/dedup"
	"github.com/gabihorn/beiter-alert-bot/internal/locality"
	"github.com/gabihorn/beiter-alert-bot/internal/logging"
	"github.com/gabihorn/beiter-alert-bot/internal/poller"
	"github.com/gabihorn/beiter-alert-bot/internal/source"
	"github.com/gabihorn/beiter-alert-bot/internal/webhook"
)

const (
	DefaultPort        = 10000
	DefaultAlertType   = "beiter_illit"
	DefaultSourceTag   = "render_monitor"
	DefaultMetricsAddr = ":2112"
	defaultTimeout     = 10 * time.Second
)

// ErrMissingWebhook is the startup fault for an unset destination.
var ErrMissingWebhook = errors.New("WEBHOOK_URL is required")

// Config is read-only after Load.
type Config struct {
	WebhookURL          string
	AllowMissingWebhook bool
	WebhookTimeout      time.Duration

	Port int

	Interval   time.Duration
	ErrorPause time.Duration

	SourceURLs     []string
	FetchTimeout   time.Duration
	UserAgent      string
	AcceptLanguage string

	Locality     locality.Config
	AlertType    string
	SourceTag    string
	DedupHistory int

	LogLevel  string
	LogFormat string

	MetricsAddr    string
	MetricsDisable bool
}

// fileConfig is the YAML shape. Pointers distinguish "unset" from zero.
type fileConfig struct {
	Webhook struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"webhook"`
	Poll struct {
		Interval   string `yaml:"interval"`
		ErrorPause string `yaml:"error_pause"`
	} `yaml:"poll"`
	Source struct {
		URLs           []string `yaml:"urls"`
		Timeout        string   `yaml:"timeout"`
		UserAgent      string   `yaml:"user_agent"`
		AcceptLanguage string   `yaml:"accept_language"`
	} `yaml:"source"`
	Locality struct {
		Name          string   `yaml:"name"`
		Variants      []string `yaml:"variants"`
		CaseSensitive *bool    `yaml:"case_sensitive"`
		StripMarks    *bool    `yaml:"strip_marks"`
	} `yaml:"locality"`
	Payload struct {
		AlertType string `yaml:"alert_type"`
		Source    string `yaml:"source"`
	} `yaml:"payload"`
	DedupHistory int `yaml:"dedup_history"`
	Port         int `yaml:"port"`
}

// Default returns the configuration used when nothing is overridden. The
// webhook URL is left empty.
func Default() *Config {
	return &Config{
		WebhookTimeout: defaultTimeout,
		Port:           DefaultPort,
		Interval:       poller.DefaultInterval,
		ErrorPause:     poller.DefaultErrorPause,
		SourceURLs:     append([]string(nil), source.DefaultURLs...),
		FetchTimeout:   defaultTimeout,
		UserAgent:      source.DefaultUserAgent,
		AcceptLanguage: source.DefaultAcceptLanguage,
		Locality:       locality.DefaultConfig(),
		AlertType:      DefaultAlertType,
		SourceTag:      DefaultSourceTag,
		DedupHistory:   dedup.DefaultHistory,
		LogLevel:       "info",
		LogFormat:      "json",
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// Load builds and validates the configuration. getenv is usually os.Getenv.
func Load(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Default()
	if path := env("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	if f.Webhook.URL != "" {
		c.WebhookURL = f.Webhook.URL
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"webhook.timeout", f.Webhook.Timeout, &c.WebhookTimeout},
		{"poll.interval", f.Poll.Interval, &c.Interval},
		{"poll.error_pause", f.Poll.ErrorPause, &c.ErrorPause},
		{"source.timeout", f.Source.Timeout, &c.FetchTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := parseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.name, err)
		}
		*d.dst = v
	}
	if len(f.Source.URLs) > 0 {
		c.SourceURLs = cleanList(f.Source.URLs)
	}
	if f.Source.UserAgent != "" {
		c.UserAgent = f.Source.UserAgent
	}
	if f.Source.AcceptLanguage != "" {
		c.AcceptLanguage = f.Source.AcceptLanguage
	}
	if f.Locality.Name != "" {
		c.Locality.Name = f.Locality.Name
	}
	if len(f.Locality.Variants) > 0 {
		c.Locality.Variants = cleanList(f.Locality.Variants)
	}
	if f.Locality.CaseSensitive != nil {
		c.Locality.CaseSensitive = *f.Locality.CaseSensitive
	}
	if f.Locality.StripMarks != nil {
		c.Locality.StripMarks = *f.Locality.StripMarks
	}
	if f.Payload.AlertType != "" {
		c.AlertType = f.Payload.AlertType
	}
	if f.Payload.Source != "" {
		c.SourceTag = f.Payload.Source
	}
	if f.DedupHistory != 0 {
		c.DedupHistory = f.DedupHistory
	}
	if f.Port != 0 {
		c.Port = f.Port
	}
	return nil
}

func (c *Config) applyEnv(env func(key, def string) string) error {
	var err error
	c.WebhookURL = env("WEBHOOK_URL", c.WebhookURL)
	if c.AllowMissingWebhook, err = parseBool("ALLOW_MISSING_WEBHOOK", env("ALLOW_MISSING_WEBHOOK", ""), c.AllowMissingWebhook); err != nil {
		return err
	}
	if v := env("PORT", ""); v != "" {
		if c.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CHECK_INTERVAL", &c.Interval},
		{"ERROR_PAUSE", &c.ErrorPause},
		{"FETCH_TIMEOUT", &c.FetchTimeout},
		{"WEBHOOK_TIMEOUT", &c.WebhookTimeout},
	}
	for _, d := range durations {
		v := env(d.key, "")
		if v == "" {
			continue
		}
		if *d.dst, err = parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	if v := env("ALERT_URLS", ""); v != "" {
		c.SourceURLs = splitList(v)
	}
	c.UserAgent = env("USER_AGENT", c.UserAgent)
	c.AcceptLanguage = env("ACCEPT_LANGUAGE", c.AcceptLanguage)

	c.Locality.Name = env("LOCALITY_NAME", c.Locality.Name)
	if v := env("LOCALITY_VARIANTS", ""); v != "" {
		c.Locality.Variants = splitList(v)
	}
	if c.Locality.CaseSensitive, err = parseBool("LOCALITY_CASE_SENSITIVE", env("LOCALITY_CASE_SENSITIVE", ""), c.Locality.CaseSensitive); err != nil {
		return err
	}
	if c.Locality.StripMarks, err = parseBool("LOCALITY_STRIP_MARKS", env("LOCALITY_STRIP_MARKS", ""), c.Locality.StripMarks); err != nil {
		return err
	}

	c.AlertType = env("ALERT_TYPE", c.AlertType)
	c.SourceTag = env("ALERT_SOURCE", c.SourceTag)
	if v := env("DEDUP_HISTORY", ""); v != "" {
		if c.DedupHistory, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("DEDUP_HISTORY: %w", err)
		}
	}

	c.LogLevel = strings.ToLower(env("LOG_LEVEL", c.LogLevel))
	if env("DEBUG", "") != "" {
		c.LogLevel = "debug"
	}
	c.LogFormat = env("LOG_FORMAT", c.LogFormat)
	c.MetricsAddr = env("METRICS_ADDR", c.MetricsAddr)
	if c.MetricsDisable, err = parseBool("METRICS_DISABLE", env("METRICS_DISABLE", ""), c.MetricsDisable); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.WebhookURL == "" {
		if !c.AllowMissingWebhook {
			return ErrMissingWebhook
		}
	} else if err := webhook.ValidateURL(c.WebhookURL); err != nil {
		return fmt.Errorf("WEBHOOK_URL: %w", err)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	for name, d := range map[string]time.Duration{
		"CHECK_INTERVAL":  c.Interval,
		"ERROR_PAUSE":     c.ErrorPause,
		"FETCH_TIMEOUT":   c.FetchTimeout,
		"WEBHOOK_TIMEOUT": c.WebhookTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if len(c.SourceURLs) == 0 {
		return errors.New("at least one alert source URL is required")
	}
	if len(locality.New(c.Locality).Variants()) == 0 {
		return errors.New("at least one non-empty locality variant is required")
	}
	if c.DedupHistory < 1 {
		return fmt.Errorf("DEDUP_HISTORY must be at least 1, got %d", c.DedupHistory)
	}
	return nil
}

// ListenAddr is the liveness listen address.
func (c *Config) ListenAddr() string { return ":" + strconv.Itoa(c.Port) }

// SourceConfig is the feed reader's slice of the configuration.
func (c *Config) SourceConfig() source.Config {
	return source.Config{
		URLs:           append([]string(nil), c.SourceURLs...),
		Timeout:        c.FetchTimeout,
		UserAgent:      c.UserAgent,
		AcceptLanguage: c.AcceptLanguage,
	}
}

// WebhookConfig is the dispatcher's destination and timeout.
func (c *Config) WebhookConfig() webhook.Config {
	return webhook.Config{URL: c.WebhookURL, Timeout: c.WebhookTimeout}
}

// PollerConfig is the loop cadence and payload tags.
func (c *Config) PollerConfig() poller.Config {
	return poller.Config{
		Interval:   c.Interval,
		ErrorPause: c.ErrorPause,
		AlertType:  c.AlertType,
		SourceTag:  c.SourceTag,
	}
}

// LoggingConfig selects the logger level and format.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// parseDuration accepts whole seconds ("10") or a Go duration ("1m30s").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func parseBool(key, v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

// splitList splits on ";" when present, otherwise on ",".
func splitList(v string) []string {
	sep := ","
	if strings.Contains(v, ";") {
		sep = ";"
	}
	return cleanList(strings.Split(v, sep))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
