package config

import (
	"fmt"

	"github.com/kilianp07/agvkernel/core/factory"
)

// OrderLogConfig defines settings for order log storage and rotation.
type OrderLogConfig struct {
	// Backend selects the store type: "jsonl", "jsonl_rotating" or "sqlite".
	// "none" disables the order log.
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *OrderLogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		c.Path = "orders.log"
	}
}

// Enabled reports whether an order log is configured.
func (c OrderLogConfig) Enabled() bool { return c.Backend != "none" }

// Validate checks mandatory fields.
func (c OrderLogConfig) Validate() error {
	switch c.Backend {
	case "none":
		return nil
	case "jsonl", "jsonl_rotating", "sqlite":
	default:
		return fmt.Errorf("order_log: unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("order_log: path is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("order_log: rotation limits must not be negative")
	}
	return nil
}

// Module converts the settings into the factory form used by
// orderlog.NewStore.
func (c OrderLogConfig) Module() factory.ModuleConfig {
	conf := map[string]any{"path": c.Path}
	if c.MaxSizeMB > 0 {
		conf["max_size_mb"] = c.MaxSizeMB
	}
	if c.MaxBackups > 0 {
		conf["max_backups"] = c.MaxBackups
	}
	if c.MaxAgeDays > 0 {
		conf["max_age_days"] = c.MaxAgeDays
	}
	return factory.ModuleConfig{Type: c.Backend, Conf: conf}
}
