package events

import "github.com/kilianp07/agvkernel/core/model"

// VehicleChangedEvent is published after a vehicle attribute changed.
type VehicleChangedEvent struct {
	Previous model.Vehicle
	Current  model.Vehicle
}

// PathChangedEvent is published after a path attribute changed.
type PathChangedEvent struct {
	Previous model.Path
	Current  model.Path
}

// LocationChangedEvent is published after a location's lock state changed.
type LocationChangedEvent struct {
	Previous model.Location
	Current  model.Location
}
