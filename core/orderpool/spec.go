package orderpool

import (
	"time"

	"github.com/kilianp07/agvkernel/core/model"
)

// TransportOrderSpec describes an order to create. Name may be empty, in
// which case one is generated.
type TransportOrderSpec struct {
	Name             string              `json:"name"`
	Type             string              `json:"type"`
	Destinations     []model.Destination `json:"destinations"`
	Deadline         time.Time           `json:"deadline"`
	IntendedVehicle  string              `json:"intended_vehicle"`
	Dependencies     []string            `json:"dependencies"`
	WrappingSequence string              `json:"wrapping_sequence"`
	Dispensable      bool                `json:"dispensable"`
	Properties       map[string]string   `json:"properties"`
}

// OrderSequenceSpec describes a sequence to create.
type OrderSequenceSpec struct {
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	IntendedVehicle string            `json:"intended_vehicle"`
	FailureFatal    bool              `json:"failure_fatal"`
	Properties      map[string]string `json:"properties"`
}

const (
	orderNamePrefix    = "TOrder-"
	sequenceNamePrefix = "OrderSeq-"
)
