// Package mqtt implements the vehicle controller pool on top of an MQTT
// broker using Eclipse Paho. Drive orders and aborts are published on
// per-vehicle command topics; acknowledgments and status reports are
// consumed from the ack and status topics and fed back to the kernel.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	coremqtt "github.com/kilianp07/agvkernel/core/mqtt"
	"github.com/kilianp07/agvkernel/core/strategy"
)

// pahoClient is the subset of paho.Client the pool uses.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Fleet resolves vehicle names against the plant model.
type Fleet interface {
	Vehicle(name string) (model.Vehicle, error)
}

// ack is the outcome of a command as reported by the vehicle.
type ack struct {
	accepted bool
	reason   string
}

// ControllerPool is a strategy.VehicleControllerPool backed by MQTT.
type ControllerPool struct {
	cfg   Config
	fleet Fleet
	sink  strategy.StatusSink
	log   logger.Logger

	mu      sync.Mutex
	cli     pahoClient
	acks    map[string]chan ack
	inbox   chan coremqtt.StatusMessage
	stop    chan struct{}
	worker  sync.WaitGroup
	running bool
}

var _ strategy.VehicleControllerPool = (*ControllerPool)(nil)

// NewControllerPool validates cfg. The broker connection is opened by
// Initialize and closed by Terminate.
func NewControllerPool(cfg Config, fleet Fleet, sink strategy.StatusSink, log logger.Logger) (*ControllerPool, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fleet == nil || sink == nil {
		return nil, fmt.Errorf("mqtt: fleet and status sink are required")
	}
	return &ControllerPool{
		cfg:   cfg,
		fleet: fleet,
		sink:  sink,
		log:   logger.OrNop(log),
		acks:  map[string]chan ack{},
	}, nil
}

// Initialize connects to the broker and starts consuming status reports.
func (p *ControllerPool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	opts, err := NewClientOptions(p.cfg)
	if err != nil {
		return err
	}
	opts.OnConnect = func(paho.Client) {
		p.log.Infof("MQTT connected to %s", p.cfg.Broker)
		p.subscribe()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		connectionLost.Inc()
		p.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		p.log.Warnf("reconnecting to MQTT broker")
	}
	p.inbox = make(chan coremqtt.StatusMessage, p.cfg.InboxSize)
	p.stop = make(chan struct{})
	p.worker.Add(1)
	go p.consume(p.inbox, p.stop)

	c := newMQTTClient(opts)
	p.cli = c
	token := c.Connect()
	if err := waitToken(ctx, token); err != nil {
		close(p.stop)
		p.worker.Wait()
		p.cli = nil
		return fmt.Errorf("mqtt connect %s: %w", p.cfg.Broker, err)
	}
	p.running = true
	return nil
}

// Terminate unsubscribes, disconnects and stops the status worker. Pending
// acknowledgment waits fail with ErrNotConnected.
func (p *ControllerPool) Terminate() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cli := p.cli
	p.cli = nil
	for id, ch := range p.acks {
		close(ch)
		delete(p.acks, id)
	}
	stop := p.stop
	p.mu.Unlock()

	if cli != nil {
		cli.Unsubscribe(coremqtt.StatusSubscription(p.cfg.TopicPrefix), coremqtt.AckSubscription(p.cfg.TopicPrefix))
		cli.Disconnect(250)
	}
	close(stop)
	p.worker.Wait()
}

// subscribe is called on every (re)connect. The client field is read without
// the pool lock because OnConnect may fire while Initialize holds it.
func (p *ControllerPool) subscribe() {
	c := p.cli
	if c == nil {
		return
	}
	status := coremqtt.StatusSubscription(p.cfg.TopicPrefix)
	if token := c.Subscribe(status, p.cfg.qos("status"), p.onStatus); token.Wait() && token.Error() != nil {
		p.log.Errorf("subscribe %s: %v", status, token.Error())
	}
	acks := coremqtt.AckSubscription(p.cfg.TopicPrefix)
	if token := c.Subscribe(acks, p.cfg.qos("ack"), p.onAck); token.Wait() && token.Error() != nil {
		p.log.Errorf("subscribe %s: %v", acks, token.Error())
	}
}

// Controller returns the controller of a known vehicle.
func (p *ControllerPool) Controller(vehicle string) (strategy.VehicleController, error) {
	if _, err := p.fleet.Vehicle(vehicle); err != nil {
		return nil, err
	}
	return &controller{pool: p, vehicle: vehicle}, nil
}

func (p *ControllerPool) client() (pahoClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.cli == nil {
		return nil, coremqtt.ErrNotConnected
	}
	return p.cli, nil
}

// send publishes cmd with retries and exponential backoff. When waitAck is
// set it blocks until the vehicle acknowledged the command.
func (p *ControllerPool) send(ctx context.Context, cmd coremqtt.CommandMessage, waitAck bool) error {
	cli, err := p.client()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	var ch chan ack
	if waitAck {
		ch = make(chan ack, 1)
		p.mu.Lock()
		p.acks[cmd.CommandID] = ch
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			delete(p.acks, cmd.CommandID)
			p.mu.Unlock()
		}()
	}

	topic := coremqtt.CommandTopic(p.cfg.TopicPrefix, cmd.Vehicle)
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := cli.Publish(topic, p.cfg.qos("command"), false, payload)
		publishErr = waitToken(ctx, token)
		if publishErr == nil {
			p.log.Debugf("sent %s command %s to %s", cmd.Kind, cmd.CommandID, topic)
			break
		}
		p.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(1<<attempt)):
		}
	}
	if publishErr != nil {
		commandsSent.WithLabelValues(cmd.Kind, "publish_error").Inc()
		return publishErr
	}
	if !waitAck {
		commandsSent.WithLabelValues(cmd.Kind, "sent").Inc()
		return nil
	}

	start := time.Now()
	timer := time.NewTimer(p.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case a, ok := <-ch:
		ackLatency.Observe(time.Since(start).Seconds())
		switch {
		case !ok:
			commandsSent.WithLabelValues(cmd.Kind, "disconnected").Inc()
			return coremqtt.ErrNotConnected
		case !a.accepted:
			commandsSent.WithLabelValues(cmd.Kind, "rejected").Inc()
			return fmt.Errorf("%w: %s", coremqtt.ErrRejected, a.reason)
		}
		commandsSent.WithLabelValues(cmd.Kind, "acknowledged").Inc()
		return nil
	case <-timer.C:
		commandsSent.WithLabelValues(cmd.Kind, "ack_timeout").Inc()
		return fmt.Errorf("command %s to %s: %w", cmd.CommandID, cmd.Vehicle, coremqtt.ErrAckTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ControllerPool) onAck(_ paho.Client, msg paho.Message) {
	var m coremqtt.AckMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.log.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.acks[m.CommandID]
	if !ok {
		p.log.Debugf("ack for unknown command %s", m.CommandID)
		return
	}
	select {
	case ch <- ack{accepted: m.Accepted, reason: m.Reason}:
	default:
	}
}

func (p *ControllerPool) onStatus(_ paho.Client, msg paho.Message) {
	var m coremqtt.StatusMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.log.Errorf("failed to decode status on %s: %v", msg.Topic(), err)
		statusMessages.WithLabelValues("invalid").Inc()
		return
	}
	if name, ok := coremqtt.VehicleFromTopic(p.cfg.TopicPrefix, msg.Topic()); ok {
		m.Vehicle = name
	}
	if m.Vehicle == "" {
		statusMessages.WithLabelValues("invalid").Inc()
		return
	}
	p.enqueue(m)
}

// enqueue hands m to the status worker. Paho delivers messages on a single
// goroutine, so a full inbox drops the report instead of stalling acks.
func (p *ControllerPool) enqueue(m coremqtt.StatusMessage) {
	p.mu.Lock()
	inbox := p.inbox
	p.mu.Unlock()
	select {
	case inbox <- m:
	default:
		statusMessages.WithLabelValues("dropped").Inc()
		p.log.Warnf("status inbox full, dropping report of %s", m.Vehicle)
	}
}

func (p *ControllerPool) consume(inbox <-chan coremqtt.StatusMessage, stop <-chan struct{}) {
	defer p.worker.Done()
	for {
		select {
		case <-stop:
			return
		case m := <-inbox:
			if err := p.apply(m); err != nil {
				statusMessages.WithLabelValues("rejected").Inc()
				p.log.Warnf("status of %s: %v", m.Vehicle, err)
				continue
			}
			statusMessages.WithLabelValues("applied").Inc()
		}
	}
}

// apply forwards the fields of one status report to the kernel, position
// first so a finished drive is evaluated at the new point.
func (p *ControllerPool) apply(m coremqtt.StatusMessage) error {
	if m.Position != nil {
		if err := p.sink.UpdateVehiclePosition(m.Vehicle, *m.Position); err != nil {
			return err
		}
	}
	if m.EnergyLevel != nil {
		if err := p.sink.UpdateVehicleEnergyLevel(m.Vehicle, *m.EnergyLevel); err != nil {
			return err
		}
	}
	if m.State != nil {
		if err := p.sink.UpdateVehicleState(m.Vehicle, *m.State); err != nil {
			return err
		}
	}
	switch m.Event {
	case "":
		return nil
	case coremqtt.EventDriveFinished:
		return p.sink.DriveOrderFinished(m.Vehicle)
	case coremqtt.EventDriveFailed:
		return p.sink.DriveOrderFailed(m.Vehicle, m.Reason)
	default:
		return errs.NewIllegalArgumentError("event", fmt.Sprintf("unknown status event %q", m.Event))
	}
}

// waitToken waits for token completion or ctx cancellation.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// controller is the per-vehicle view of the pool.
type controller struct {
	pool    *ControllerPool
	vehicle string
}

func (c *controller) SendDriveOrder(ctx context.Context, order model.TransportOrder, drive model.DriveOrder) error {
	cmd := coremqtt.NewDriveCommand(uuid.NewString(), c.vehicle, order, drive, time.Now().UnixMilli())
	return c.pool.send(ctx, cmd, c.pool.cfg.AckTimeout > 0)
}

func (c *controller) AbortDriveOrder(ctx context.Context, immediate bool) error {
	return c.pool.send(ctx, coremqtt.CommandMessage{
		CommandID: uuid.NewString(),
		Vehicle:   c.vehicle,
		Kind:      coremqtt.CommandAbort,
		Immediate: immediate,
		Timestamp: time.Now().UnixMilli(),
	}, false)
}

func (c *controller) SendCommAdapterMessage(ctx context.Context, msg map[string]any) error {
	return c.pool.send(ctx, coremqtt.CommandMessage{
		CommandID: uuid.NewString(),
		Vehicle:   c.vehicle,
		Kind:      coremqtt.CommandMsg,
		Payload:   msg,
		Timestamp: time.Now().UnixMilli(),
	}, false)
}
