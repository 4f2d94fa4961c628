// Package logger provides the zerolog backed implementation of the kernel
// Logger interface.
package logger

import (
	"fmt"
	"strings"

	corelogger "github.com/kilianp07/agvkernel/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards every message.
type NopLogger = corelogger.NopLogger

// Config selects the level, format and destination of log output.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	// File enables a rotating log file next to stdout.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.File != "" {
		if c.MaxSizeMB == 0 {
			c.MaxSizeMB = 50
		}
		if c.MaxBackups == 0 {
			c.MaxBackups = 5
		}
		if c.MaxAgeDays == 0 {
			c.MaxAgeDays = 14
		}
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation settings must not be negative")
	}
	return nil
}

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable unless Setup configured an explicit format.
func New(component string) Logger {
	return NewZerologLogger(component)
}
