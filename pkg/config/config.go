package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletx/gatt"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/devicefactory"
	"github.com/srg/bletx/schedule"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Backend              string        `yaml:"backend" default:"goble"`
	LogLevel             string        `yaml:"log_level" default:"info"`
	ScanWindow           time.Duration `yaml:"scan_window" default:"5s"`
	ActiveScan           bool          `yaml:"active_scan" default:"true"`
	SendInterval         time.Duration `yaml:"send_interval" default:"1s"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" default:"30s"`
	WriteTimeout         time.Duration `yaml:"write_timeout" default:"5s"`
	TargetCharacteristic string        `yaml:"target_characteristic" default:"6e400002-b5a3-f393-e0a9-e50e24dcca9e"`
	WritePolicy          string        `yaml:"write_policy" default:"prefer-without-response"`
	InitialMode          string        `yaml:"initial_mode" default:"auto"`
	EventBuffer          int           `yaml:"event_buffer" default:"256"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg; keys absent from data keep their current values
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(devicefactory.Backends, strings.ToLower(c.Backend)) {
		errs = append(errs, fmt.Errorf("backend: unknown backend %q (supported: %s)", c.Backend, strings.Join(devicefactory.Backends, ", ")))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := device.ValidateUUID(c.TargetCharacteristic); err != nil {
		errs = append(errs, fmt.Errorf("target_characteristic: %w", err))
	}
	if _, err := gatt.ParseWritePolicy(c.WritePolicy); err != nil {
		errs = append(errs, fmt.Errorf("write_policy: %w", err))
	}
	if m, err := schedule.ParseMode(c.InitialMode); err != nil || m == schedule.Idle {
		errs = append(errs, fmt.Errorf("initial_mode: must be auto or manual, got %q", c.InitialMode))
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"scan_window", c.ScanWindow},
		{"send_interval", c.SendInterval},
		{"connect_timeout", c.ConnectTimeout},
		{"write_timeout", c.WriteTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", d.name, d.value))
		}
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer: must be positive, got %d", c.EventBuffer))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Mode returns the parsed initial transmission mode, falling back to Automatic
func (c *Config) Mode() schedule.Mode {
	m, err := schedule.ParseMode(c.InitialMode)
	if err != nil || m == schedule.Idle {
		return schedule.Automatic
	}
	return m
}

// Policy returns the parsed write policy, falling back to the default
func (c *Config) Policy() gatt.WritePolicy {
	p, err := gatt.ParseWritePolicy(c.WritePolicy)
	if err != nil {
		return gatt.PreferWithoutResponse
	}
	return p
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
