package mqtt

import (
	"strings"

	"github.com/kilianp07/agvkernel/core/model"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "agv"

// Command kinds.
const (
	CommandDrive = "drive"
	CommandAbort = "abort"
	CommandMsg   = "message"
)

// Status events reported alongside a status message.
const (
	EventDriveFinished = "drive_finished"
	EventDriveFailed   = "drive_failed"
)

func CommandTopic(prefix, vehicle string) string {
	return prefix + "/vehicles/" + vehicle + "/command"
}

func AckTopic(prefix, vehicle string) string {
	return prefix + "/vehicles/" + vehicle + "/ack"
}

func StatusTopic(prefix, vehicle string) string {
	return prefix + "/vehicles/" + vehicle + "/status"
}

// AckSubscription matches the ack topics of all vehicles.
func AckSubscription(prefix string) string { return AckTopic(prefix, "+") }

// StatusSubscription matches the status topics of all vehicles.
func StatusSubscription(prefix string) string { return StatusTopic(prefix, "+") }

// VehicleFromTopic extracts the vehicle name from a per-vehicle topic.
func VehicleFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/vehicles/")
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// DriveCommand is the drive order part of a CommandMessage.
type DriveCommand struct {
	Order      string            `json:"order"`
	Location   string            `json:"location"`
	Operation  string            `json:"operation"`
	Route      []string          `json:"route"`
	Properties map[string]string `json:"properties,omitempty"`
}

// CommandMessage is published on a vehicle's command topic.
type CommandMessage struct {
	CommandID string         `json:"command_id"`
	Vehicle   string         `json:"vehicle"`
	Kind      string         `json:"kind"`
	Drive     *DriveCommand  `json:"drive,omitempty"`
	Immediate bool           `json:"immediate,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// NewDriveCommand builds the command for drive of order.
func NewDriveCommand(id, vehicle string, order model.TransportOrder, drive model.DriveOrder, ts int64) CommandMessage {
	return CommandMessage{
		CommandID: id,
		Vehicle:   vehicle,
		Kind:      CommandDrive,
		Drive: &DriveCommand{
			Order:      order.Name,
			Location:   drive.Destination.Location,
			Operation:  drive.Destination.Operation,
			Route:      drive.Route,
			Properties: drive.Destination.Properties,
		},
		Timestamp: ts,
	}
}

// AckMessage answers a command.
type AckMessage struct {
	CommandID string `json:"command_id"`
	Vehicle   string `json:"vehicle"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

// StatusMessage carries a vehicle report. Nil fields were not reported.
type StatusMessage struct {
	Vehicle     string              `json:"vehicle"`
	Position    *string             `json:"position,omitempty"`
	State       *model.VehicleState `json:"state,omitempty"`
	EnergyLevel *int                `json:"energy_level,omitempty"`
	Event       string              `json:"event,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}
