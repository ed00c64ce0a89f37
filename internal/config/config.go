// Package config loads sessionprobe settings from file, environment and
// flags, and converts them into the settings of each component.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"sessionprobe/internal/logx"
	"sessionprobe/internal/probe"
	"sessionprobe/internal/sender"
	"sessionprobe/internal/storage"
)

type Config struct {
	Probe   ProbeSettings   `yaml:"probe" mapstructure:"probe"`
	Request RequestSettings `yaml:"request" mapstructure:"request"`
	HTTP    HTTPSettings    `yaml:"http" mapstructure:"http"`
	Log     LogSettings     `yaml:"log" mapstructure:"log"`
	Storage StorageSettings `yaml:"storage" mapstructure:"storage"`
	Metrics MetricsSettings `yaml:"metrics" mapstructure:"metrics"`
}

// ProbeSettings are durations as text: "900", "900s", "15m", "1h".
type ProbeSettings struct {
	Match    string `yaml:"match" mapstructure:"match"`
	Min      string `yaml:"min" mapstructure:"min" validate:"required"`
	Max      string `yaml:"max" mapstructure:"max" validate:"required"`
	Interval string `yaml:"interval" mapstructure:"interval" validate:"required"`
}

type RequestSettings struct {
	File   string `yaml:"file" mapstructure:"file"`
	Target string `yaml:"target" mapstructure:"target"`
	Plain  bool   `yaml:"plain" mapstructure:"plain"`
}

type HTTPSettings struct {
	Timeout      string  `yaml:"timeout" mapstructure:"timeout"`
	VerifyTLS    bool    `yaml:"verify_tls" mapstructure:"verify_tls"`
	Proxy        string  `yaml:"proxy" mapstructure:"proxy"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gte=0"`
}

type LogSettings struct {
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	File  string `yaml:"file" mapstructure:"file"`
}

type StorageSettings struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=json bolt bbolt sqlite sqlite3 none off"`
	Path   string `yaml:"path" mapstructure:"path"`
}

type MetricsSettings struct {
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// Original tool defaults: probe from 15 to 120 minutes, one minute apart.
const (
	DefaultMin      = "15m"
	DefaultMax      = "120m"
	DefaultInterval = "1m"
	DefaultTimeout  = "30s"
)

// SetDefaults fills empty optional fields.
func (c *Config) SetDefaults() {
	if c.Probe.Min == "" {
		c.Probe.Min = DefaultMin
	}
	if c.Probe.Max == "" {
		c.Probe.Max = DefaultMax
	}
	if c.Probe.Interval == "" {
		c.Probe.Interval = DefaultInterval
	}
	if c.HTTP.Timeout == "" {
		c.HTTP.Timeout = DefaultTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(storage.DefaultDir(), "sessionprobe.log")
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "json"
	}
}

// Validate checks struct tags, then that the durations parse. The match
// string is checked when a run starts, since the TUI can supply it later.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	var errs []error
	for _, f := range []struct{ name, value string }{
		{"probe.min", c.Probe.Min},
		{"probe.max", c.Probe.Max},
		{"probe.interval", c.Probe.Interval},
	} {
		if _, err := ParseSeconds(f.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	if c.HTTP.Timeout != "" {
		if d, err := time.ParseDuration(c.HTTP.Timeout); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("http.timeout: invalid duration %q", c.HTTP.Timeout))
		}
	}
	if _, err := sender.ParseProxyURL(c.HTTP.Proxy); err != nil {
		errs = append(errs, fmt.Errorf("http.proxy: %w", err))
	}
	return errors.Join(errs...)
}

// ProbeConfig converts the probe settings to whole seconds.
func (c *Config) ProbeConfig() (probe.Config, error) {
	min, err := ParseSeconds(c.Probe.Min)
	if err != nil {
		return probe.Config{}, fmt.Errorf("probe.min: %w", err)
	}
	max, err := ParseSeconds(c.Probe.Max)
	if err != nil {
		return probe.Config{}, fmt.Errorf("probe.max: %w", err)
	}
	interval, err := ParseSeconds(c.Probe.Interval)
	if err != nil {
		return probe.Config{}, fmt.Errorf("probe.interval: %w", err)
	}
	return probe.Config{Match: c.Probe.Match, MinOffset: min, MaxOffset: max, Interval: interval}, nil
}

func (c *Config) SenderConfig() sender.Config {
	cfg := sender.DefaultConfig()
	if d, err := time.ParseDuration(c.HTTP.Timeout); err == nil && d > 0 {
		cfg.Timeout = d
	}
	cfg.InsecureSkipVerify = !c.HTTP.VerifyTLS
	cfg.Proxy = c.HTTP.Proxy
	cfg.RateLimit = c.HTTP.RateLimit
	if c.HTTP.MaxBodyBytes > 0 {
		cfg.MaxBodyBytes = c.HTTP.MaxBodyBytes
	}
	return cfg
}

func (c *Config) LogConfig(console bool) logx.Config {
	return logx.Config{Level: c.Log.Level, Console: console, File: c.Log.File}
}

func (c *Config) StorageConfig() storage.Config {
	return storage.Config{Driver: c.Storage.Driver, Path: c.Storage.Path}
}

// ParseSeconds reads a non-negative whole number of seconds. A bare number
// is seconds; anything else goes through time.ParseDuration and is
// truncated to the second.
func ParseSeconds(s string) (uint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.ParseUint(s, 10, 0); err == nil {
		return uint(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return uint(d / time.Second), nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
