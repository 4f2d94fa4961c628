// Package eventstream publishes kernel events to Kafka as JSON envelopes so
// other systems (MES, WMS, analytics) can follow orders and vehicles.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Config holds the Kafka settings.
type Config struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// Buffer is the capacity of the queue between the bus and Kafka.
	Buffer int `json:"buffer"`
}

func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "agvkernel.events"
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 100 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("eventstream: at least one broker is required")
	}
	return nil
}

// Envelope wraps one event on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Event types carried in Envelope.Type.
const (
	TypeOrderChanged    = "transport_order.changed"
	TypeOrderRemoved    = "transport_order.removed"
	TypeSequenceChanged = "order_sequence.changed"
	TypeSequenceRemoved = "order_sequence.removed"
	TypeVehicleChanged  = "vehicle.changed"
	TypeKernelState     = "kernel.state"
)

// Writer is the subset of kafka.Writer used by the exporter.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a batching writer for cfg.
func NewKafkaWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
}

// Exporter forwards bus events to a Writer.
type Exporter struct {
	cfg Config
	w   Writer
	log logger.Logger
	now func() time.Time
}

func NewExporter(cfg Config, w Writer, log logger.Logger) *Exporter {
	cfg.SetDefaults()
	return &Exporter{cfg: cfg, w: w, log: logger.OrNop(log), now: time.Now}
}

// Start consumes bus events until ctx is done and closes the writer on exit.
// Events are queued without blocking the publisher; when the queue is full
// they are dropped and counted.
func (e *Exporter) Start(ctx context.Context, bus eventbus.EventBus) <-chan struct{} {
	done := make(chan struct{})
	queue := make(chan kafka.Message, e.cfg.Buffer)
	id := bus.SubscribeFunc(func(ev eventbus.Event) {
		msg, ok, err := e.Encode(ev)
		if err != nil {
			e.log.Warnf("encode %T: %v", ev, err)
			return
		}
		if !ok {
			return
		}
		select {
		case queue <- msg:
		default:
			exported.WithLabelValues("dropped").Inc()
		}
	})
	go func() {
		defer close(done)
		defer func() {
			bus.UnsubscribeFunc(id)
			if err := e.w.Close(); err != nil {
				e.log.Warnf("close kafka writer: %v", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-queue:
				batch := []kafka.Message{msg}
			fill:
				for len(batch) < 100 {
					select {
					case m := <-queue:
						batch = append(batch, m)
					default:
						break fill
					}
				}
				e.write(ctx, batch)
			}
		}
	}()
	return done
}

func (e *Exporter) write(ctx context.Context, batch []kafka.Message) {
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	if err := e.w.WriteMessages(wctx, batch...); err != nil {
		exported.WithLabelValues("error").Add(float64(len(batch)))
		e.log.Errorf("export %d events: %v", len(batch), err)
		return
	}
	exported.WithLabelValues("sent").Add(float64(len(batch)))
}

// Encode maps a bus event to a Kafka message keyed by entity name. It
// reports false for events that are not exported.
func (e *Exporter) Encode(ev eventbus.Event) (kafka.Message, bool, error) {
	var (
		typ     string
		key     string
		payload any
	)
	switch x := ev.(type) {
	case events.TransportOrderChangedEvent:
		switch {
		case x.Current != nil:
			typ, key, payload = TypeOrderChanged, x.Current.Name, x.Current
		case x.Previous != nil:
			typ, key, payload = TypeOrderRemoved, x.Previous.Name, x.Previous
		default:
			return kafka.Message{}, false, nil
		}
	case events.OrderSequenceChangedEvent:
		switch {
		case x.Current != nil:
			typ, key, payload = TypeSequenceChanged, x.Current.Name, x.Current
		case x.Previous != nil:
			typ, key, payload = TypeSequenceRemoved, x.Previous.Name, x.Previous
		default:
			return kafka.Message{}, false, nil
		}
	case events.VehicleChangedEvent:
		typ, key, payload = TypeVehicleChanged, x.Current.Name, x.Current
	case events.KernelStateTransitionEvent:
		if !x.Finished {
			return kafka.Message{}, false, nil
		}
		typ, key = TypeKernelState, "kernel"
		payload = map[string]string{"old": x.Old.String(), "new": x.New.String()}
	default:
		return kafka.Message{}, false, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, false, err
	}
	now := e.now()
	val, err := json.Marshal(Envelope{Type: typ, Time: now, Key: key, Payload: raw})
	if err != nil {
		return kafka.Message{}, false, err
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   val,
		Time:    now,
		Headers: []kafka.Header{{Key: "type", Value: []byte(typ)}},
	}, true, nil
}
