package coordinator

import "github.com/kilianp07/agvkernel/core/model"

// Options selects the optional reactions of the coordinator.
type Options struct {
	RerouteOnDriveOrderFinished    bool `json:"reroute_on_drive_order_finished"`
	UpdateTopologyOnPathLockChange bool `json:"update_topology_on_path_lock_change"`
	RerouteOnTopologyUpdate        bool `json:"reroute_on_topology_update"`
}

// Decision lists the strategy calls a change calls for.
type Decision struct {
	Dispatch       bool
	Reroute        bool
	UpdateTopology bool
	RerouteAll     bool
}

// Empty reports whether no action is required.
func (d Decision) Empty() bool {
	return d == Decision{}
}

// VehicleTriggers evaluates a vehicle change. It depends on nothing but its
// arguments.
func VehicleTriggers(prev, cur model.Vehicle, opts Options) Decision {
	var d Decision
	procChanged := prev.ProcState != cur.ProcState

	// A vehicle that just finished a drive order awaits the next one.
	if procChanged && cur.ProcState == model.ProcAwaitingOrder && opts.RerouteOnDriveOrderFinished {
		d.Reroute = true
	}

	if !cur.ShouldBeUtilized() {
		return d
	}
	idleEnergyChanged := cur.ProcState == model.ProcIdle && cur.IsIdleOrCharging() &&
		prev.EnergyLevel != cur.EnergyLevel
	becameAvailable := procChanged &&
		(cur.ProcState == model.ProcIdle || cur.ProcState == model.ProcAwaitingOrder)
	sequenceReleased := prev.OrderSequence != "" && cur.OrderSequence == ""
	nowUtilized := !prev.ShouldBeUtilized()

	d.Dispatch = idleEnergyChanged || becameAvailable || sequenceReleased || nowUtilized
	return d
}

// PathTriggers evaluates a path change.
func PathTriggers(prev, cur model.Path, opts Options) Decision {
	var d Decision
	if prev.Locked == cur.Locked || !opts.UpdateTopologyOnPathLockChange {
		return d
	}
	d.UpdateTopology = true
	d.RerouteAll = opts.RerouteOnTopologyUpdate
	return d
}
