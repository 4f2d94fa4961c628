package simulator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/model"
	coremqtt "github.com/kilianp07/agvkernel/core/mqtt"
)

type stubToken struct{}

func (stubToken) Wait() bool                     { return true }
func (stubToken) WaitTimeout(time.Duration) bool { return true }
func (stubToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (stubToken) Error() error                   { return nil }

type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 1 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

type stubClient struct {
	mu      sync.Mutex
	handler paho.MessageHandler
	subs    []string
	pubs    map[string][][]byte
}

func (c *stubClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubs == nil {
		c.pubs = map[string][][]byte{}
	}
	c.pubs[topic] = append(c.pubs[topic], payload.([]byte))
	return stubToken{}
}

func (c *stubClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, topic)
	c.handler = cb
	return stubToken{}
}

func (c *stubClient) Unsubscribe(...string) paho.Token { return stubToken{} }

func (c *stubClient) published(topic string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.pubs[topic]...)
}

func (c *stubClient) send(t *testing.T, topic string, cmd coremqtt.CommandMessage) {
	t.Helper()
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(nil, stubMessage{topic: topic, payload: b})
}

func TestMQTTFleetAcksAndReports(t *testing.T) {
	cli := &stubClient{}
	cfg := Config{StepDelay: time.Millisecond, InitialPositions: map[string]string{"V1": "A"}}
	f, err := NewMQTTFleet(cli, "plant", []string{"V1"}, cfg, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool {
		cli.mu.Lock()
		defer cli.mu.Unlock()
		return cli.handler != nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"plant/vehicles/+/command"}, cli.subs)

	cli.send(t, "plant/vehicles/V1/command", coremqtt.NewDriveCommand("c1", "V1",
		modelOrder("T1"), driveTo("L1", "A", "B"), 0))

	require.Eventually(t, func() bool { return len(cli.published("plant/vehicles/V1/ack")) == 1 }, time.Second, time.Millisecond)
	var ack coremqtt.AckMessage
	require.NoError(t, json.Unmarshal(cli.published("plant/vehicles/V1/ack")[0], &ack))
	assert.Equal(t, coremqtt.AckMessage{CommandID: "c1", Vehicle: "V1", Accepted: true}, ack)

	require.Eventually(t, func() bool {
		for _, b := range cli.published("plant/vehicles/V1/status") {
			var st coremqtt.StatusMessage
			if json.Unmarshal(b, &st) == nil && st.Event == coremqtt.EventDriveFinished {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	v, ok := f.Vehicle("V1")
	require.True(t, ok)
	assert.Equal(t, "B", v.Position())
}

func TestMQTTFleetRejectsDriveWithoutOrder(t *testing.T) {
	cli := &stubClient{}
	f, err := NewMQTTFleet(cli, "", []string{"V1"}, Config{}, AutoAck{}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool {
		cli.mu.Lock()
		defer cli.mu.Unlock()
		return cli.handler != nil
	}, time.Second, time.Millisecond)

	cli.send(t, "agv/vehicles/V1/command", coremqtt.CommandMessage{CommandID: "c2", Kind: coremqtt.CommandDrive})
	require.Eventually(t, func() bool { return len(cli.published("agv/vehicles/V1/ack")) == 1 }, time.Second, time.Millisecond)
	var ack coremqtt.AckMessage
	require.NoError(t, json.Unmarshal(cli.published("agv/vehicles/V1/ack")[0], &ack))
	assert.False(t, ack.Accepted)
	assert.NotEmpty(t, ack.Reason)
}

func TestRandomAckDropsEverything(t *testing.T) {
	cli := &stubClient{}
	r := NewRandomAck(0, 1, 1)
	r.Ack(context.Background(), cli, "agv", coremqtt.AckMessage{CommandID: "c", Vehicle: "V1"})
	assert.Empty(t, cli.published("agv/vehicles/V1/ack"))

	r = NewRandomAck(0, 0, 1)
	r.Ack(context.Background(), cli, "agv", coremqtt.AckMessage{CommandID: "c", Vehicle: "V1"})
	assert.Len(t, cli.published("agv/vehicles/V1/ack"), 1)
}

func modelOrder(name string) model.TransportOrder { return model.TransportOrder{Name: name} }

func driveTo(location string, route ...string) model.DriveOrder {
	return model.DriveOrder{Destination: model.Destination{Location: location, Operation: "LOAD"}, Route: route}
}
