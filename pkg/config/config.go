package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level  `yaml:"-" json:"log_level"`
	LogLevelName string        `yaml:"log_level" json:"-" default:"info"`
	ReplyTimeout time.Duration `yaml:"reply_timeout" json:"reply_timeout" default:"5s"`
	Codec        string        `yaml:"codec" json:"codec" default:"json"`
	Port         string        `yaml:"port" json:"port"`
	AlertBuffer  int           `yaml:"alert_buffer" json:"alert_buffer" default:"64"`
	OutputFormat string        `yaml:"output_format" json:"output_format" default:"text"` // text, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// Load reads a YAML config file; keys missing from the file keep their defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.SetLogLevel(cfg.LogLevelName); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetLogLevel parses and applies a level name (trace, debug, info, warn, error)
func (c *Config) SetLogLevel(name string) error {
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", name)
	}
	c.LogLevel = level
	c.LogLevelName = level.String()
	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("reply_timeout must be positive, got %s", c.ReplyTimeout)
	}
	if c.AlertBuffer <= 0 {
		return fmt.Errorf("alert_buffer must be positive, got %d", c.AlertBuffer)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output_format %q (must be text or json)", c.OutputFormat)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
