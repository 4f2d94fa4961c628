package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	coremqtt "github.com/kilianp07/agvkernel/core/mqtt"
)

// Client is the subset of paho.Client used by MQTTFleet.
type Client interface {
	Publisher
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// MQTTFleet exposes simulated vehicles on a broker using the kernel's
// command, ack and status topics.
type MQTTFleet struct {
	cli      Client
	prefix   string
	strat    AckStrategy
	log      logger.Logger
	vehicles map[string]*Vehicle

	ctx context.Context
}

// NewMQTTFleet creates one vehicle per name. cfg defaults are applied.
func NewMQTTFleet(cli Client, prefix string, names []string, cfg Config, strat AckStrategy, log logger.Logger) (*MQTTFleet, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = coremqtt.DefaultPrefix
	}
	if strat == nil {
		strat = AutoAck{Delay: cfg.AckDelay}
	}
	f := &MQTTFleet{
		cli:      cli,
		prefix:   prefix,
		strat:    strat,
		log:      logger.OrNop(log),
		vehicles: map[string]*Vehicle{},
	}
	for _, n := range names {
		f.vehicles[n] = NewVehicle(n, cfg, &statusPublisher{pub: cli, prefix: prefix}, f.log)
	}
	return f, nil
}

// Vehicle returns the simulated vehicle with the given name.
func (f *MQTTFleet) Vehicle(name string) (*Vehicle, bool) {
	v, ok := f.vehicles[name]
	return v, ok
}

// Run subscribes to the command topics and runs every vehicle until ctx is
// done.
func (f *MQTTFleet) Run(ctx context.Context) error {
	f.ctx = ctx
	topic := coremqtt.CommandTopic(f.prefix, "+")
	if token := f.cli.Subscribe(topic, 1, f.onCommand); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	var wg sync.WaitGroup
	for _, v := range f.vehicles {
		wg.Add(1)
		go func(v *Vehicle) {
			defer wg.Done()
			v.Run(ctx)
		}(v)
	}
	f.log.Infof("simulating %d vehicles on %s", len(f.vehicles), topic)
	<-ctx.Done()
	f.cli.Unsubscribe(topic)
	wg.Wait()
	return nil
}

func (f *MQTTFleet) onCommand(_ paho.Client, msg paho.Message) {
	var cmd coremqtt.CommandMessage
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		f.log.Errorf("decode command on %s: %v", msg.Topic(), err)
		return
	}
	name, ok := coremqtt.VehicleFromTopic(f.prefix, msg.Topic())
	if !ok {
		return
	}
	v, ok := f.vehicles[name]
	if !ok {
		f.log.Debugf("command for unknown vehicle %s", name)
		return
	}
	var err error
	switch cmd.Kind {
	case coremqtt.CommandDrive:
		if cmd.Drive == nil {
			err = fmt.Errorf("drive command without drive order")
			break
		}
		err = v.Drive(cmd.Drive.Order, model.DriveOrder{
			Destination: model.Destination{
				Location:   cmd.Drive.Location,
				Operation:  cmd.Drive.Operation,
				Properties: cmd.Drive.Properties,
			},
			Route: cmd.Drive.Route,
		})
	case coremqtt.CommandAbort:
		v.Abort(cmd.Immediate)
		return
	case coremqtt.CommandMsg:
		if err := v.HandleMessage(cmd.Payload); err != nil {
			f.log.Warnf("%s: %v", name, err)
		}
		return
	default:
		f.log.Warnf("%s: unknown command kind %q", name, cmd.Kind)
		return
	}
	ack := coremqtt.AckMessage{CommandID: cmd.CommandID, Vehicle: name, Accepted: err == nil}
	if err != nil {
		ack.Reason = err.Error()
	}
	go f.strat.Ack(f.ctx, f.cli, f.prefix, ack)
}

// statusPublisher is a strategy.StatusSink that publishes status messages.
type statusPublisher struct {
	pub    Publisher
	prefix string
}

func (s *statusPublisher) publish(m coremqtt.StatusMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	token := s.pub.Publish(coremqtt.StatusTopic(s.prefix, m.Vehicle), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("status publish timeout for %s", m.Vehicle)
	}
	return token.Error()
}

func (s *statusPublisher) UpdateVehiclePosition(vehicle, point string) error {
	return s.publish(coremqtt.StatusMessage{Vehicle: vehicle, Position: &point})
}

func (s *statusPublisher) UpdateVehicleState(vehicle string, st model.VehicleState) error {
	return s.publish(coremqtt.StatusMessage{Vehicle: vehicle, State: &st})
}

func (s *statusPublisher) UpdateVehicleEnergyLevel(vehicle string, level int) error {
	return s.publish(coremqtt.StatusMessage{Vehicle: vehicle, EnergyLevel: &level})
}

func (s *statusPublisher) DriveOrderFinished(vehicle string) error {
	return s.publish(coremqtt.StatusMessage{Vehicle: vehicle, Event: coremqtt.EventDriveFinished})
}

func (s *statusPublisher) DriveOrderFailed(vehicle, reason string) error {
	return s.publish(coremqtt.StatusMessage{Vehicle: vehicle, Event: coremqtt.EventDriveFailed, Reason: reason})
}
