package simulator

import (
	"math"
	"sync"
)

// Battery models a vehicle battery as a percentage with fixed drain and
// charge steps.
type Battery struct {
	mu            sync.Mutex
	level         float64
	drainPerStep  float64
	chargePerStep float64
}

func NewBattery(level, drainPerStep, chargePerStep float64) *Battery {
	return &Battery{level: clamp(level), drainPerStep: drainPerStep, chargePerStep: chargePerStep}
}

// Drain consumes one travel step and returns the new level.
func (b *Battery) Drain() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(b.level - b.drainPerStep)
	return b.rounded()
}

// Charge adds one charging step and returns the new level.
func (b *Battery) Charge() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(b.level + b.chargePerStep)
	return b.rounded()
}

// Set overrides the level.
func (b *Battery) Set(level float64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(level)
	return b.rounded()
}

func (b *Battery) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rounded()
}

func (b *Battery) Full() bool { return b.Level() >= 100 }

func (b *Battery) rounded() int { return int(math.Round(b.level)) }

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
