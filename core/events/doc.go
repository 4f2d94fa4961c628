// Package events defines the payloads published on the kernel event bus.
//
// Change events carry previous and current snapshots:
//   - VehicleChangedEvent, PathChangedEvent: plant model changes
//   - TransportOrderChangedEvent, OrderSequenceChangedEvent: pool changes.
//     A nil Previous marks creation, a nil Current marks removal.
//   - KernelStateTransitionEvent: mode transition started or finished
//   - StrategyEvent: notable decisions taken by a strategy
package events
