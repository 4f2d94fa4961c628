package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/sweeper"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `model_file: plant.yaml
kernel:
  load_model_on_start: true
  shutdown_grace: 2s
sweeper:
  interval: 30s
  policy: amount
  max_orders: 50
coordinator:
  reroute_on_drive_order_finished: true
dispatch:
  solver: greedy
vehicles:
  adapter: mqtt
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "kernel"
  username: "user"
  password: "pass"
  ack_timeout: 3s
  qos:
    command: 2
persistence:
  type: sqlite
  conf:
    path: model.db
    keep: 5
order_log:
  backend: jsonl_rotating
  path: orders.jsonl
  max_size_mb: 5
metrics:
  listen: ":9100"
  sinks:
    - type: prometheus
log:
  level: debug
api:
  addr: ":9000"
  token: secret
state_cache:
  enabled: true
  redis:
    address: "redis:6379"
event_stream:
  brokers: ["kafka:9092"]
sentry:
  dsn: "https://public@sentry.example.com/1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"model_file", cfg.ModelFile, "plant.yaml"},
		{"kernel.load_model_on_start", cfg.Kernel.LoadModelOnStart, true},
		{"kernel.shutdown_grace", cfg.Kernel.ShutdownGrace, 2 * time.Second},
		{"sweeper.interval", cfg.Sweeper.Interval, 30 * time.Second},
		{"sweeper.policy", cfg.Sweeper.Policy, sweeper.PolicyAmount},
		{"sweeper.max_orders", cfg.Sweeper.MaxOrders, 50},
		{"coordinator", cfg.Coordinator.RerouteOnDriveOrderFinished, true},
		{"dispatch.solver", cfg.Dispatch.Solver, "greedy"},
		{"vehicles.adapter", cfg.Vehicles.Adapter, AdapterMQTT},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.client_id", cfg.MQTT.ClientID, "kernel"},
		{"mqtt.username", cfg.MQTT.Username, "user"},
		{"mqtt.ack_timeout", cfg.MQTT.AckTimeout, 3 * time.Second},
		{"mqtt.qos", cfg.MQTT.QoS["command"], byte(2)},
		{"persistence.type", cfg.Persistence.Type, "sqlite"},
		{"persistence.path", cfg.Persistence.Conf["path"], "model.db"},
		{"order_log.backend", cfg.OrderLog.Backend, "jsonl_rotating"},
		{"order_log.max_size_mb", cfg.OrderLog.MaxSizeMB, 5},
		{"metrics.listen", cfg.Metrics.Listen, ":9100"},
		{"metrics.sinks", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"log.level", cfg.Log.Level, "debug"},
		{"api.addr", cfg.API.Addr, ":9000"},
		{"api.token", cfg.API.Token, "secret"},
		{"state_cache.enabled", cfg.StateCache.Enabled, true},
		{"state_cache.redis.address", cfg.StateCache.Redis.Address, "redis:6379"},
		{"event_stream.enabled", cfg.EventStreamEnabled(), true},
		{"event_stream.topic", cfg.EventStream.Topic, "agvkernel.events"},
		{"sentry.dsn", cfg.Sentry.DSN, "https://public@sentry.example.com/1"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"vehicles":{"adapter":"loopback"},"simulator":{"step_delay":"10ms"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AdapterLoopback, cfg.Vehicles.Adapter)
	assert.Equal(t, 10*time.Millisecond, cfg.Simulator.StepDelay)
	assert.Equal(t, "CHARGE", cfg.Simulator.RechargeOperation)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", "vehicles:\n  adapter: mqtt\nmqtt:\n  broker: tcp://file:1883\n")
	t.Setenv("K_MQTT__BROKER", "tcp://env:1883")
	t.Setenv("K_API__TOKEN", "from-env")
	t.Setenv("K_SWEEPER__SWEEP_AGE", "1h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.Equal(t, "from-env", cfg.API.Token)
	assert.Equal(t, time.Hour, cfg.Sweeper.SweepAge)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("K_LOG__LEVEL", "warn")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, AdapterLoopback, cfg.Vehicles.Adapter)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", ""))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "bad.yaml", "vehicles:\n  adapter: mqtt\n"))
	assert.ErrorContains(t, err, "mqtt: broker is required")

	_, err = Load(writeConfig(t, "bad.yaml", "vehicles:\n  adapter: canbus\nsweeper:\n  policy: random\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown adapter")
	assert.ErrorContains(t, err, "unknown policy")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AdapterLoopback, cfg.Vehicles.Adapter)
	assert.Equal(t, "jsonl", cfg.OrderLog.Backend)
	assert.True(t, cfg.OrderLog.Enabled())
	assert.False(t, cfg.EventStreamEnabled())
	assert.Equal(t, ":8080", cfg.API.Addr)
}

func TestOrderLogModule(t *testing.T) {
	c := OrderLogConfig{Backend: "jsonl_rotating", Path: "o.jsonl", MaxBackups: 3}
	m := c.Module()
	assert.Equal(t, "jsonl_rotating", m.Type)
	assert.Equal(t, map[string]any{"path": "o.jsonl", "max_backups": 3}, m.Conf)

	assert.NoError(t, OrderLogConfig{Backend: "none"}.Validate())
	assert.False(t, OrderLogConfig{Backend: "none"}.Enabled())
	assert.Error(t, OrderLogConfig{Backend: "csv", Path: "x"}.Validate())
	assert.Error(t, OrderLogConfig{Backend: "sqlite"}.Validate())
}
