package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/agvkernel/core/mqtt"
)

// Publisher is the subset of paho.Client used to answer the kernel.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// AckStrategy defines how a vehicle acknowledges commands.
type AckStrategy interface {
	Ack(ctx context.Context, pub Publisher, prefix string, ack coremqtt.AckMessage)
}

// AutoAck sends an ACK after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, pub Publisher, prefix string, ack coremqtt.AckMessage) {
	if !wait(ctx, a.Delay) {
		return
	}
	publishAck(pub, prefix, ack)
}

// RandomAck drops acknowledgments with the configured probability and
// waits for the specified delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomAck(delay time.Duration, dropRate float64, seed int64) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

// Ack implements AckStrategy.
func (r *RandomAck) Ack(ctx context.Context, pub Publisher, prefix string, ack coremqtt.AckMessage) {
	r.mu.Lock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	drop := r.DropRate > 0 && r.rng.Float64() < r.DropRate
	r.mu.Unlock()
	if drop || !wait(ctx, r.Delay) {
		return
	}
	publishAck(pub, prefix, ack)
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAck(pub Publisher, prefix string, ack coremqtt.AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		return
	}
	token := pub.Publish(coremqtt.AckTopic(prefix, ack.Vehicle), 1, false, payload)
	token.WaitTimeout(5 * time.Second)
}
