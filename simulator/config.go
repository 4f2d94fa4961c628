package simulator

import (
	"fmt"
	"time"
)

// Config holds parameters for simulated vehicles.
type Config struct {
	// StepDelay is the travel time between two route points.
	StepDelay     time.Duration `json:"step_delay"`
	InitialEnergy float64       `json:"initial_energy"`
	DrainPerStep  float64       `json:"drain_per_step"`
	ChargePerStep float64       `json:"charge_per_step"`
	// FailRate is the probability that a drive order ends in failure.
	FailRate          float64 `json:"fail_rate"`
	RechargeOperation string  `json:"recharge_operation"`
	QueueSize         int     `json:"queue_size"`
	// InitialPositions places vehicles on a point when they start.
	InitialPositions map[string]string `json:"initial_positions"`
	AckDelay         time.Duration     `json:"ack_delay"`
	DropRate         float64           `json:"drop_rate"`
}

func (c *Config) SetDefaults() {
	if c.StepDelay <= 0 {
		c.StepDelay = 500 * time.Millisecond
	}
	if c.InitialEnergy == 0 {
		c.InitialEnergy = 100
	}
	if c.DrainPerStep == 0 {
		c.DrainPerStep = 1
	}
	if c.ChargePerStep == 0 {
		c.ChargePerStep = 10
	}
	if c.RechargeOperation == "" {
		c.RechargeOperation = "CHARGE"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 8
	}
}

func (c Config) Validate() error {
	if c.InitialEnergy < 0 || c.InitialEnergy > 100 {
		return fmt.Errorf("simulator: initial_energy must be within [0, 100]")
	}
	if c.DrainPerStep < 0 || c.ChargePerStep < 0 {
		return fmt.Errorf("simulator: drain and charge rates must not be negative")
	}
	if c.FailRate < 0 || c.FailRate > 1 {
		return fmt.Errorf("simulator: fail_rate must be within [0, 1]")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("simulator: drop_rate must be within [0, 1]")
	}
	return nil
}
