package events

import "github.com/kilianp07/agvkernel/core/model"

// TransportOrderChangedEvent is published for every transport order mutation.
type TransportOrderChangedEvent struct {
	Previous *model.TransportOrder
	Current  *model.TransportOrder
}

// Created reports whether the event announces a new order.
func (e TransportOrderChangedEvent) Created() bool { return e.Previous == nil && e.Current != nil }

// Removed reports whether the event announces a deleted order.
func (e TransportOrderChangedEvent) Removed() bool { return e.Previous != nil && e.Current == nil }

// OrderSequenceChangedEvent is published for every order sequence mutation.
type OrderSequenceChangedEvent struct {
	Previous *model.OrderSequence
	Current  *model.OrderSequence
}

func (e OrderSequenceChangedEvent) Created() bool { return e.Previous == nil && e.Current != nil }

func (e OrderSequenceChangedEvent) Removed() bool { return e.Previous != nil && e.Current == nil }
