// Package strategy declares the pluggable collaborators the kernel drives:
// dispatcher, router, scheduler, vehicle controllers and model persistence.
//
// Strategies are invoked without the domain lock held. They report results
// back through the kernel and pool APIs, which take the lock per call.
package strategy

import (
	"context"
	"errors"

	"github.com/kilianp07/agvkernel/core/model"
)

// ErrNoRoute is returned by a Router when no route connects two points.
var ErrNoRoute = errors.New("no route")

// Lifecycle is shared by all mode-scoped strategies.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Terminate()
}

// Dispatcher assigns transport orders to vehicles and handles withdrawal and
// rerouting.
type Dispatcher interface {
	Lifecycle
	// Dispatch evaluates all vehicles and orders.
	Dispatch()
	// DispatchVehicle evaluates a single vehicle.
	DispatchVehicle(vehicle string)
	WithdrawOrder(order string, immediate, disableVehicle bool) error
	WithdrawByVehicle(vehicle string, immediate, disableVehicle bool) error
	// ReleaseVehicle frees every resource and order binding of a vehicle.
	ReleaseVehicle(vehicle string) error
	Reroute(vehicle string, kind model.ReroutingType) error
	RerouteAll(kind model.ReroutingType)
}

// Router computes travel costs and routes over the plant topology.
type Router interface {
	Lifecycle
	// UpdateRoutingTopology is called with the paths whose routing relevant
	// attributes changed. An empty slice means the whole topology.
	UpdateRoutingTopology(paths []model.Path)
	Costs(vehicle model.Vehicle, source, destination string) (int64, error)
	// Route returns the point names from source to destination, inclusive.
	Route(vehicle model.Vehicle, source, destination string) ([]string, int64, error)
	Info() string
}

// Scheduler manages exclusive allocation of plant resources to vehicles.
type Scheduler interface {
	Lifecycle
	Allocate(vehicle string, resources []string) error
	Free(vehicle string, resources []string)
	FreeAll(vehicle string)
	// Allocations returns a copy of the current resource allocations keyed
	// by vehicle.
	Allocations() map[string][]string
}

// VehicleController talks to one vehicle's communication adapter.
type VehicleController interface {
	SendDriveOrder(ctx context.Context, order model.TransportOrder, drive model.DriveOrder) error
	AbortDriveOrder(ctx context.Context, immediate bool) error
	SendCommAdapterMessage(ctx context.Context, msg map[string]any) error
}

// VehicleControllerPool looks up controllers by vehicle name.
type VehicleControllerPool interface {
	Lifecycle
	Controller(vehicle string) (VehicleController, error)
}

// ModelPersister stores the plant model between runs. It is only used at
// mode transitions.
type ModelPersister interface {
	SaveModel(ctx context.Context, m model.PlantModel) error
	LoadModel(ctx context.Context) (model.PlantModel, error)
	HasModel(ctx context.Context) (bool, error)
}

// StatusSink receives vehicle reports from controllers.
type StatusSink interface {
	UpdateVehiclePosition(vehicle, point string) error
	UpdateVehicleState(vehicle string, st model.VehicleState) error
	UpdateVehicleEnergyLevel(vehicle string, level int) error
	DriveOrderFinished(vehicle string) error
	DriveOrderFailed(vehicle, reason string) error
}
