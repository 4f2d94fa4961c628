// Package config loads the service configuration from a YAML or JSON file
// with environment overrides. Variables prefixed with K_ override file
// values; a double underscore separates nesting levels, so
// K_MQTT__BROKER sets mqtt.broker.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/agvkernel/api"
	"github.com/kilianp07/agvkernel/core/coordinator"
	"github.com/kilianp07/agvkernel/core/dispatch"
	"github.com/kilianp07/agvkernel/core/factory"
	"github.com/kilianp07/agvkernel/core/kernel"
	"github.com/kilianp07/agvkernel/core/metrics"
	"github.com/kilianp07/agvkernel/core/sweeper"
	"github.com/kilianp07/agvkernel/infra/eventstream"
	"github.com/kilianp07/agvkernel/infra/logger"
	"github.com/kilianp07/agvkernel/infra/monitoring"
	"github.com/kilianp07/agvkernel/infra/mqtt"
	"github.com/kilianp07/agvkernel/infra/statecache"
	"github.com/kilianp07/agvkernel/simulator"
)

// Vehicle adapters.
const (
	AdapterMQTT     = "mqtt"
	AdapterLoopback = "loopback"
)

type Config struct {
	// ModelFile is a plant model loaded while the kernel is in MODELLING.
	ModelFile   string              `json:"model_file"`
	Kernel      kernel.Config       `json:"kernel"`
	Sweeper     sweeper.Config      `json:"sweeper"`
	Coordinator coordinator.Options `json:"coordinator"`
	Dispatch    dispatch.Config     `json:"dispatch"`
	Vehicles    VehiclesConfig      `json:"vehicles"`
	MQTT        mqtt.Config         `json:"mqtt"`
	Simulator   simulator.Config    `json:"simulator"`
	// Persistence selects the model persister. An empty type disables it.
	Persistence factory.ModuleConfig `json:"persistence"`
	OrderLog    OrderLogConfig       `json:"order_log"`
	Metrics     metrics.Config       `json:"metrics"`
	Log         logger.Config        `json:"log"`
	API         api.Config           `json:"api"`
	StateCache  StateCacheConfig     `json:"state_cache"`
	EventStream eventstream.Config   `json:"event_stream"`
	Sentry      monitoring.Config    `json:"sentry"`
}

// VehiclesConfig selects how the kernel talks to vehicles.
type VehiclesConfig struct {
	// Adapter is "mqtt" or "loopback".
	Adapter string `json:"adapter"`
}

// StateCacheConfig enables the Redis mirror of vehicle and order state.
type StateCacheConfig struct {
	Enabled bool              `json:"enabled"`
	Redis   statecache.Config `json:"redis"`
}

// EventStreamEnabled reports whether events are exported to Kafka.
func (c Config) EventStreamEnabled() bool { return len(c.EventStream.Brokers) > 0 }

// SetDefaults fills zero values in every section.
func (c *Config) SetDefaults() {
	c.Kernel.SetDefaults()
	c.Sweeper.SetDefaults()
	c.Dispatch.SetDefaults()
	if c.Vehicles.Adapter == "" {
		c.Vehicles.Adapter = AdapterLoopback
	}
	if c.Vehicles.Adapter == AdapterMQTT {
		c.MQTT.SetDefaults()
	}
	c.Simulator.SetDefaults()
	c.OrderLog.SetDefaults()
	c.Log.SetDefaults()
	c.API.SetDefaults()
	c.StateCache.Redis.SetDefaults()
	if c.EventStreamEnabled() {
		c.EventStream.SetDefaults()
	}
}

// Validate checks every section and joins the errors.
func (c Config) Validate() error {
	var errs []error
	errs = append(errs,
		c.Kernel.Validate(),
		c.Sweeper.Validate(),
		c.Dispatch.Validate(),
		c.Simulator.Validate(),
		c.OrderLog.Validate(),
		c.Log.Validate(),
		c.API.Validate(),
		c.Sentry.Validate(),
	)
	switch c.Vehicles.Adapter {
	case AdapterMQTT:
		errs = append(errs, c.MQTT.Validate())
	case AdapterLoopback:
	default:
		errs = append(errs, fmt.Errorf("vehicles: unknown adapter %q", c.Vehicles.Adapter))
	}
	if c.EventStreamEnabled() {
		errs = append(errs, c.EventStream.Validate())
	}
	return errors.Join(errs...)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// Load reads the file at path, applies K_ environment overrides, fills
// defaults and validates the result. An empty path reads the environment
// only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
