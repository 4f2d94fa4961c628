package orderpool

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/plantmodel"
)

// Writer runs pool operations inside an open domain transaction so callers
// can couple them with plant model updates. A Writer must not outlive its
// transaction.
type Writer struct {
	p     *Pool
	tx    *domain.Tx
	plant *plantmodel.Writer
}

// With binds the pool to tx.
func (p *Pool) With(tx *domain.Tx) *Writer {
	return &Writer{p: p, tx: tx, plant: p.plant.With(tx)}
}

// Plant returns the plant model writer of the same transaction.
func (w *Writer) Plant() *plantmodel.Writer { return w.plant }

func (w *Writer) order(name string) (*model.TransportOrder, error) {
	o, ok := w.p.orders[name]
	if !ok {
		return nil, errs.NewObjectUnknownError("transport order", name)
	}
	return o, nil
}

func (w *Writer) sequence(name string) (*model.OrderSequence, error) {
	s, ok := w.p.sequences[name]
	if !ok {
		return nil, errs.NewObjectUnknownError("order sequence", name)
	}
	return s, nil
}

func (w *Writer) orderChanged(prev *model.TransportOrder, cur *model.TransportOrder) {
	var c *model.TransportOrder
	if cur != nil {
		cp := cur.Clone()
		c = &cp
	}
	w.tx.Emit(events.TransportOrderChangedEvent{Previous: prev, Current: c})
}

func (w *Writer) sequenceChanged(prev *model.OrderSequence, cur *model.OrderSequence) {
	var c *model.OrderSequence
	if cur != nil {
		cp := cur.Clone()
		c = &cp
	}
	w.tx.Emit(events.OrderSequenceChangedEvent{Previous: prev, Current: c})
}

func snapshotOrder(o *model.TransportOrder) *model.TransportOrder {
	c := o.Clone()
	return &c
}

func snapshotSequence(s *model.OrderSequence) *model.OrderSequence {
	c := s.Clone()
	return &c
}

// CreateTransportOrder validates spec and stores a new RAW order.
func (w *Writer) CreateTransportOrder(spec TransportOrderSpec) (model.TransportOrder, error) {
	if len(spec.Destinations) == 0 {
		return model.TransportOrder{}, errs.NewIllegalArgumentError("destinations", "at least one destination is required")
	}
	name := spec.Name
	if name == "" {
		name = orderNamePrefix + uuid.NewString()
	}
	if _, exists := w.p.orders[name]; exists {
		return model.TransportOrder{}, errs.NewObjectExistsError("transport order", name)
	}

	drives := make([]model.DriveOrder, 0, len(spec.Destinations))
	for _, d := range spec.Destinations {
		loc, err := w.plant.Location(d.Location)
		if err != nil {
			return model.TransportOrder{}, err
		}
		lt, err := w.plant.LocationType(loc.Type)
		if err != nil {
			return model.TransportOrder{}, err
		}
		op := d.Operation
		if op == "" {
			op = model.OperationNop
		}
		if !lt.Allows(op) {
			return model.TransportOrder{}, errs.NewIllegalArgumentError("operation",
				fmt.Sprintf("operation %q not allowed at location %q", op, d.Location))
		}
		drives = append(drives, model.DriveOrder{
			Destination: model.Destination{Location: d.Location, Operation: op, Properties: maps.Clone(d.Properties)},
			State:       model.DrivePristine,
		})
	}
	if spec.IntendedVehicle != "" && !w.plant.HasVehicle(spec.IntendedVehicle) {
		return model.TransportOrder{}, errs.NewObjectUnknownError("vehicle", spec.IntendedVehicle)
	}
	deps := make([]string, 0, len(spec.Dependencies))
	for _, d := range spec.Dependencies {
		if _, err := w.order(d); err != nil {
			return model.TransportOrder{}, err
		}
		if !slices.Contains(deps, d) {
			deps = append(deps, d)
		}
	}

	var seq *model.OrderSequence
	if spec.WrappingSequence != "" {
		s, err := w.sequence(spec.WrappingSequence)
		if err != nil {
			return model.TransportOrder{}, err
		}
		if s.Complete {
			return model.TransportOrder{}, errs.NewIllegalStateError("order sequence %q is complete", s.Name)
		}
		if s.Contains(name) {
			return model.TransportOrder{}, errs.NewIllegalStateError("order sequence %q already contains %q", s.Name, name)
		}
		if s.IntendedVehicle != "" && spec.IntendedVehicle != "" && s.IntendedVehicle != spec.IntendedVehicle {
			return model.TransportOrder{}, errs.NewIllegalArgumentError("intended_vehicle",
				fmt.Sprintf("order intends %q but sequence %q intends %q", spec.IntendedVehicle, s.Name, s.IntendedVehicle))
		}
		seq = s
	}

	o := &model.TransportOrder{
		ID:               uuid.NewString(),
		Name:             name,
		Type:             spec.Type,
		DriveOrders:      drives,
		State:            model.OrderRaw,
		Deadline:         spec.Deadline,
		CreationTime:     w.p.now(),
		IntendedVehicle:  spec.IntendedVehicle,
		Dependencies:     deps,
		WrappingSequence: spec.WrappingSequence,
		Dispensable:      spec.Dispensable,
		Properties:       maps.Clone(spec.Properties),
	}
	if seq != nil && o.IntendedVehicle == "" {
		o.IntendedVehicle = seq.IntendedVehicle
	}
	w.p.orders[name] = o
	w.orderChanged(nil, o)
	ordersCreated.Inc()

	if seq != nil {
		prev := snapshotSequence(seq)
		seq.Orders = append(seq.Orders, name)
		w.sequenceChanged(prev, seq)
	}
	return o.Clone(), nil
}

// ActivateTransportOrder moves a RAW order to ACTIVE.
func (w *Writer) ActivateTransportOrder(name string) (model.TransportOrder, error) {
	o, err := w.order(name)
	if err != nil {
		return model.TransportOrder{}, err
	}
	if o.State != model.OrderRaw {
		return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q is %s, not RAW", name, o.State)
	}
	w.setState(o, model.OrderActive)
	return o.Clone(), nil
}

// SetTransportOrderState moves an order to st if the transition is legal.
func (w *Writer) SetTransportOrderState(name string, st model.OrderState) (model.TransportOrder, error) {
	o, err := w.order(name)
	if err != nil {
		return model.TransportOrder{}, err
	}
	if o.State == st {
		return o.Clone(), nil
	}
	if !o.State.CanTransitionTo(st) {
		return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q: illegal transition %s -> %s", name, o.State, st)
	}
	if st == model.OrderBeingProcessed {
		return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q: use assignment to start processing", name)
	}
	w.setState(o, st)
	return o.Clone(), nil
}

// setState applies a transition already checked by the caller, including the
// coupled updates of the wrapping sequence.
func (w *Writer) setState(o *model.TransportOrder, st model.OrderState) {
	w.transition(o, st)
	if st.IsFinal() && o.WrappingSequence != "" {
		if seq, ok := w.p.sequences[o.WrappingSequence]; ok {
			w.onMemberFinal(seq, o)
		}
	}
}

// transition updates the order and the processing vehicle's back-reference.
func (w *Writer) transition(o *model.TransportOrder, st model.OrderState) {
	prev := snapshotOrder(o)
	o.State = st
	if st.IsFinal() {
		o.FinishedTime = w.p.now()
		o.WithdrawalPending = false
		if cur, ok := o.CurrentDrive(); ok && prev.State == model.OrderBeingProcessed && !isDriveDone(cur.State) {
			if st == model.OrderFinished {
				o.DriveOrders[o.CurrentDriveOrder].State = model.DriveFinished
			} else {
				o.DriveOrders[o.CurrentDriveOrder].State = model.DriveFailed
			}
		}
		if o.ProcessingVehicle != "" {
			if v, err := w.plant.Vehicle(o.ProcessingVehicle); err == nil && v.TransportOrder == o.Name {
				_ = w.plant.SetVehicleTransportOrder(v.Name, "")
			}
			o.ProcessingVehicle = ""
		}
	}
	w.orderChanged(prev, o)
	orderTransitions.WithLabelValues(st.String()).Inc()
}

func isDriveDone(st model.DriveOrderState) bool {
	return st == model.DriveFinished || st == model.DriveFailed
}

// AssignTransportOrder marks a DISPATCHABLE order BEING_PROCESSED by vehicle.
// When drives is non-nil it replaces the order's drive orders, which lets the
// dispatcher attach routes.
func (w *Writer) AssignTransportOrder(name, vehicle string, drives []model.DriveOrder) (model.TransportOrder, error) {
	o, err := w.order(name)
	if err != nil {
		return model.TransportOrder{}, err
	}
	v, err := w.plant.Vehicle(vehicle)
	if err != nil {
		return model.TransportOrder{}, err
	}
	if o.State != model.OrderDispatchable {
		return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q is %s, not DISPATCHABLE", name, o.State)
	}
	if o.IntendedVehicle != "" && o.IntendedVehicle != vehicle {
		return model.TransportOrder{}, errs.NewIllegalArgumentError("vehicle",
			fmt.Sprintf("transport order %q is intended for %q", name, o.IntendedVehicle))
	}
	if v.TransportOrder != "" {
		return model.TransportOrder{}, errs.NewIllegalStateError("vehicle %q already processes %q", vehicle, v.TransportOrder)
	}
	if drives != nil && len(drives) != len(o.DriveOrders) {
		return model.TransportOrder{}, errs.NewIllegalArgumentError("drives",
			fmt.Sprintf("expected %d drive orders, got %d", len(o.DriveOrders), len(drives)))
	}
	var seq *model.OrderSequence
	if o.WrappingSequence != "" {
		seq = w.p.sequences[o.WrappingSequence]
	}
	if seq != nil {
		if seq.ProcessingVehicle != "" && seq.ProcessingVehicle != vehicle {
			return model.TransportOrder{}, errs.NewIllegalStateError("order sequence %q is processed by %q", seq.Name, seq.ProcessingVehicle)
		}
		if next, ok := seq.NextUnfinishedOrder(); !ok || next != name {
			return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q is not next in sequence %q", name, seq.Name)
		}
	}
	if v.OrderSequence != "" && v.OrderSequence != o.WrappingSequence {
		return model.TransportOrder{}, errs.NewIllegalStateError("vehicle %q is bound to order sequence %q", vehicle, v.OrderSequence)
	}

	prev := snapshotOrder(o)
	if drives != nil {
		o.DriveOrders = make([]model.DriveOrder, len(drives))
		for i, d := range drives {
			o.DriveOrders[i] = d.Clone()
			o.DriveOrders[i].State = model.DrivePristine
		}
	}
	o.State = model.OrderBeingProcessed
	o.ProcessingVehicle = vehicle
	o.CurrentDriveOrder = 0
	o.DriveOrders[0].State = model.DriveTravelling
	w.orderChanged(prev, o)
	orderTransitions.WithLabelValues(model.OrderBeingProcessed.String()).Inc()

	_ = w.plant.SetVehicleTransportOrder(vehicle, name)
	_ = w.plant.SetVehicleProcState(vehicle, model.ProcProcessingOrder)
	if seq != nil {
		if seq.ProcessingVehicle == "" {
			sp := snapshotSequence(seq)
			seq.ProcessingVehicle = vehicle
			w.sequenceChanged(sp, seq)
		}
		_ = w.plant.SetVehicleOrderSequence(vehicle, seq.Name)
	}
	return o.Clone(), nil
}

// SetTransportOrderNextDriveOrder finishes the current drive order and makes
// the following one current.
func (w *Writer) SetTransportOrderNextDriveOrder(name string) (model.TransportOrder, error) {
	o, err := w.order(name)
	if err != nil {
		return model.TransportOrder{}, err
	}
	if o.State != model.OrderBeingProcessed {
		return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q is %s, not BEING_PROCESSED", name, o.State)
	}
	if !o.HasNextDrive() {
		return model.TransportOrder{}, errs.NewIllegalStateError("transport order %q has no further drive order", name)
	}
	prev := snapshotOrder(o)
	o.DriveOrders[o.CurrentDriveOrder].State = model.DriveFinished
	o.CurrentDriveOrder++
	o.DriveOrders[o.CurrentDriveOrder].State = model.DriveTravelling
	w.orderChanged(prev, o)
	return o.Clone(), nil
}

// SetDriveOrderState sets the state of the order's current drive order.
func (w *Writer) SetDriveOrderState(name string, st model.DriveOrderState) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if o.State != model.OrderBeingProcessed {
		return errs.NewIllegalStateError("transport order %q is %s, not BEING_PROCESSED", name, o.State)
	}
	cur, ok := o.CurrentDrive()
	if !ok {
		return errs.NewIllegalStateError("transport order %q has no current drive order", name)
	}
	if cur.State == st {
		return nil
	}
	prev := snapshotOrder(o)
	o.DriveOrders[o.CurrentDriveOrder].State = st
	w.orderChanged(prev, o)
	return nil
}

// UpdateFutureDriveOrders replaces routes and costs of the current and all
// following drive orders. Destinations must match.
func (w *Writer) UpdateFutureDriveOrders(name string, drives []model.DriveOrder) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	future := o.FutureDriveOrders()
	if len(drives) != len(future) {
		return errs.NewIllegalArgumentError("drives", fmt.Sprintf("expected %d drive orders, got %d", len(future), len(drives)))
	}
	for i := range drives {
		if drives[i].Destination.Location != future[i].Destination.Location {
			return errs.NewIllegalArgumentError("drives", "destinations must not change")
		}
	}
	prev := snapshotOrder(o)
	start := len(o.DriveOrders) - len(future)
	for i, d := range drives {
		o.DriveOrders[start+i].Route = slices.Clone(d.Route)
		o.DriveOrders[start+i].RouteCost = d.RouteCost
	}
	w.orderChanged(prev, o)
	return nil
}

// AddRejection appends a rejection record.
func (w *Writer) AddRejection(name, vehicle, reason string) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if !w.plant.HasVehicle(vehicle) {
		return errs.NewObjectUnknownError("vehicle", vehicle)
	}
	prev := snapshotOrder(o)
	o.Rejections = append(o.Rejections, model.Rejection{Vehicle: vehicle, Reason: reason, Timestamp: w.p.now()})
	w.orderChanged(prev, o)
	return nil
}

// AddDependency makes name wait for dependency to finish. Only RAW and ACTIVE
// orders accept new dependencies, and cycles are rejected.
func (w *Writer) AddDependency(name, dependency string) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if _, err := w.order(dependency); err != nil {
		return err
	}
	if o.State != model.OrderRaw && o.State != model.OrderActive {
		return errs.NewIllegalStateError("transport order %q is %s; dependencies are fixed", name, o.State)
	}
	if slices.Contains(o.Dependencies, dependency) {
		return nil
	}
	if w.dependsOn(dependency, name, map[string]bool{}) {
		return errs.NewIllegalArgumentError("dependency", fmt.Sprintf("%q -> %q would create a cycle", name, dependency))
	}
	prev := snapshotOrder(o)
	o.Dependencies = append(o.Dependencies, dependency)
	w.orderChanged(prev, o)
	return nil
}

// dependsOn reports whether from transitively depends on target.
func (w *Writer) dependsOn(from, target string, seen map[string]bool) bool {
	if from == target {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	o, ok := w.p.orders[from]
	if !ok {
		return false
	}
	for _, d := range o.Dependencies {
		if w.dependsOn(d, target, seen) {
			return true
		}
	}
	return false
}

// RemoveDependency drops dependency from name's dependency set.
func (w *Writer) RemoveDependency(name, dependency string) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if o.State.IsFinal() {
		return errs.NewIllegalStateError("transport order %q is %s", name, o.State)
	}
	i := slices.Index(o.Dependencies, dependency)
	if i < 0 {
		return nil
	}
	prev := snapshotOrder(o)
	o.Dependencies = slices.Delete(o.Dependencies, i, i+1)
	w.orderChanged(prev, o)
	return nil
}

// SetDeadline changes the deadline of a non-final order.
func (w *Writer) SetDeadline(name string, deadline time.Time) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if o.State.IsFinal() {
		return errs.NewIllegalStateError("transport order %q is %s", name, o.State)
	}
	prev := snapshotOrder(o)
	o.Deadline = deadline
	w.orderChanged(prev, o)
	return nil
}

// SetIntendedVehicle changes the intended vehicle of an unassigned order. An
// empty vehicle lets any vehicle process it.
func (w *Writer) SetIntendedVehicle(name, vehicle string) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if vehicle != "" && !w.plant.HasVehicle(vehicle) {
		return errs.NewObjectUnknownError("vehicle", vehicle)
	}
	switch o.State {
	case model.OrderRaw, model.OrderActive, model.OrderDispatchable:
	default:
		return errs.NewIllegalStateError("transport order %q is %s; intended vehicle is fixed", name, o.State)
	}
	prev := snapshotOrder(o)
	o.IntendedVehicle = vehicle
	w.orderChanged(prev, o)
	return nil
}

// MarkWithdrawal withdraws the order. Unassigned orders and immediate
// withdrawals reach WITHDRAWN at once; a graceful withdrawal of an assigned
// order only sets WithdrawalPending, and with disableVehicle also
// DisableVehicle for whoever resolves it. Withdrawing a WITHDRAWN order is a
// no-op.
func (w *Writer) MarkWithdrawal(name string, immediate, disableVehicle bool) (bool, error) {
	o, err := w.order(name)
	if err != nil {
		return false, err
	}
	switch {
	case o.State == model.OrderWithdrawn:
		return true, nil
	case o.State.IsTerminal():
		return false, errs.NewIllegalStateError("transport order %q is already %s", name, o.State)
	case o.ProcessingVehicle == "" || immediate:
		w.setState(o, model.OrderWithdrawn)
		return true, nil
	case o.WithdrawalPending && (o.DisableVehicle || !disableVehicle):
		return false, nil
	}
	prev := snapshotOrder(o)
	o.WithdrawalPending = true
	o.DisableVehicle = o.DisableVehicle || disableVehicle
	w.orderChanged(prev, o)
	return false, nil
}

// ResolveWithdrawal moves an order with a pending withdrawal to WITHDRAWN.
func (w *Writer) ResolveWithdrawal(name string) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if o.State == model.OrderWithdrawn {
		return nil
	}
	if !o.WithdrawalPending {
		return errs.NewIllegalStateError("transport order %q has no pending withdrawal", name)
	}
	w.setState(o, model.OrderWithdrawn)
	return nil
}

// RemoveTransportOrder deletes a final order and detaches it from its
// sequence.
func (w *Writer) RemoveTransportOrder(name string) error {
	o, err := w.order(name)
	if err != nil {
		return err
	}
	if !o.State.IsFinal() {
		return errs.NewIllegalStateError("transport order %q is %s and cannot be removed", name, o.State)
	}
	if o.WrappingSequence != "" {
		if seq, ok := w.p.sequences[o.WrappingSequence]; ok {
			w.detachFromSequence(seq, name)
		}
	}
	w.deleteOrder(o)
	return nil
}

func (w *Writer) deleteOrder(o *model.TransportOrder) {
	for _, v := range w.plant.Vehicles() {
		if v.TransportOrder == o.Name {
			_ = w.plant.SetVehicleTransportOrder(v.Name, "")
		}
	}
	delete(w.p.orders, o.Name)
	w.orderChanged(snapshotOrder(o), nil)
	ordersRemoved.Inc()
}

// Clear removes every order and sequence.
func (w *Writer) Clear() {
	for _, o := range w.sortedOrders() {
		delete(w.p.orders, o.Name)
		w.orderChanged(snapshotOrder(o), nil)
	}
	for _, s := range w.sortedSequences() {
		delete(w.p.sequences, s.Name)
		w.sequenceChanged(snapshotSequence(s), nil)
	}
}

// TransportOrder returns a snapshot of the named order.
func (w *Writer) TransportOrder(name string) (model.TransportOrder, error) {
	o, err := w.order(name)
	if err != nil {
		return model.TransportOrder{}, err
	}
	return o.Clone(), nil
}

// TransportOrders returns snapshots of matching orders, oldest first.
func (w *Writer) TransportOrders(filter func(model.TransportOrder) bool) []model.TransportOrder {
	var out []model.TransportOrder
	for _, o := range w.sortedOrders() {
		if filter == nil || filter(*o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// DependenciesResolved reports whether all dependencies have FINISHED.
// Dependencies no longer in the pool count as resolved.
func (w *Writer) DependenciesResolved(name string) (bool, error) {
	o, err := w.order(name)
	if err != nil {
		return false, err
	}
	for _, d := range o.Dependencies {
		if dep, ok := w.p.orders[d]; ok && dep.State != model.OrderFinished {
			return false, nil
		}
	}
	return true, nil
}

// DependenciesBroken reports whether a dependency ended FAILED or WITHDRAWN,
// so the order can never become dispatchable.
func (w *Writer) DependenciesBroken(name string) (bool, error) {
	o, err := w.order(name)
	if err != nil {
		return false, err
	}
	for _, d := range o.Dependencies {
		if dep, ok := w.p.orders[d]; ok && (dep.State == model.OrderFailed || dep.State == model.OrderWithdrawn) {
			return true, nil
		}
	}
	return false, nil
}

func (w *Writer) sortedOrders() []*model.TransportOrder {
	out := make([]*model.TransportOrder, 0, len(w.p.orders))
	for _, o := range w.p.orders {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b *model.TransportOrder) int {
		if c := a.CreationTime.Compare(b.CreationTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
