package events

import "github.com/kilianp07/agvkernel/core/model"

// KernelStateTransitionEvent is published twice per transition: once before
// the old mode is torn down and once after the new mode is running.
type KernelStateTransitionEvent struct {
	Old      model.KernelState
	New      model.KernelState
	Finished bool
}
