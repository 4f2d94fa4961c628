package orderpool

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
)

// CreateOrderSequence stores a new, incomplete sequence.
func (w *Writer) CreateOrderSequence(spec OrderSequenceSpec) (model.OrderSequence, error) {
	name := spec.Name
	if name == "" {
		name = sequenceNamePrefix + uuid.NewString()
	}
	if _, exists := w.p.sequences[name]; exists {
		return model.OrderSequence{}, errs.NewObjectExistsError("order sequence", name)
	}
	if spec.IntendedVehicle != "" && !w.plant.HasVehicle(spec.IntendedVehicle) {
		return model.OrderSequence{}, errs.NewObjectUnknownError("vehicle", spec.IntendedVehicle)
	}
	s := &model.OrderSequence{
		ID:              uuid.NewString(),
		Name:            name,
		Type:            spec.Type,
		FinishedIndex:   -1,
		FailureFatal:    spec.FailureFatal,
		IntendedVehicle: spec.IntendedVehicle,
		CreationTime:    w.p.now(),
		Properties:      maps.Clone(spec.Properties),
	}
	w.p.sequences[name] = s
	w.sequenceChanged(nil, s)
	return s.Clone(), nil
}

// onMemberFinal advances the sequence after one of its orders reached a final
// state. With FailureFatal set, an order that did not finish withdraws all
// remaining members and completes the sequence.
func (w *Writer) onMemberFinal(seq *model.OrderSequence, o *model.TransportOrder) {
	prev := snapshotSequence(seq)
	if o.State != model.OrderFinished && seq.FailureFatal {
		for _, name := range seq.Orders {
			m, ok := w.p.orders[name]
			if ok && !m.State.IsFinal() {
				w.transition(m, model.OrderWithdrawn)
			}
		}
		seq.Complete = true
	}
	w.advanceFinishedIndex(seq)
	if seq.Complete && !seq.Finished && w.allFinal(seq) {
		w.finishSequence(seq)
	}
	w.emitIfChanged(prev, seq)
}

func (w *Writer) advanceFinishedIndex(seq *model.OrderSequence) {
	for i := seq.FinishedIndex + 1; i < len(seq.Orders); i++ {
		if m, ok := w.p.orders[seq.Orders[i]]; ok && !m.State.IsFinal() {
			return
		}
		seq.FinishedIndex = i
	}
}

func (w *Writer) allFinal(seq *model.OrderSequence) bool {
	for _, name := range seq.Orders {
		if m, ok := w.p.orders[name]; ok && !m.State.IsFinal() {
			return false
		}
	}
	return true
}

// finishSequence marks seq finished and releases the processing vehicle's
// back-reference. The caller emits the sequence event.
func (w *Writer) finishSequence(seq *model.OrderSequence) {
	seq.Finished = true
	seq.FinishedIndex = len(seq.Orders) - 1
	seq.FinishedTime = w.p.now()
	if seq.ProcessingVehicle != "" {
		if v, err := w.plant.Vehicle(seq.ProcessingVehicle); err == nil && v.OrderSequence == seq.Name {
			_ = w.plant.SetVehicleOrderSequence(v.Name, "")
		}
	}
	sequencesFinished.Inc()
}

func (w *Writer) emitIfChanged(prev *model.OrderSequence, seq *model.OrderSequence) {
	if prev.FinishedIndex == seq.FinishedIndex && prev.Complete == seq.Complete &&
		prev.Finished == seq.Finished && prev.ProcessingVehicle == seq.ProcessingVehicle &&
		slices.Equal(prev.Orders, seq.Orders) {
		return
	}
	w.sequenceChanged(prev, seq)
}

// SetOrderSequenceComplete declares that no more orders will be added. A
// sequence whose orders are all final finishes right away.
func (w *Writer) SetOrderSequenceComplete(name string) error {
	seq, err := w.sequence(name)
	if err != nil {
		return err
	}
	if seq.Complete {
		return nil
	}
	prev := snapshotSequence(seq)
	seq.Complete = true
	w.advanceFinishedIndex(seq)
	if w.allFinal(seq) {
		w.finishSequence(seq)
	}
	w.emitIfChanged(prev, seq)
	return nil
}

// SetOrderSequenceFinished marks a complete sequence with only final orders as
// finished. It reports false when the sequence was already finished.
func (w *Writer) SetOrderSequenceFinished(name string) (bool, error) {
	seq, err := w.sequence(name)
	if err != nil {
		return false, err
	}
	if seq.Finished {
		return false, nil
	}
	if !seq.Complete {
		return false, errs.NewIllegalStateError("order sequence %q is not complete", name)
	}
	if !w.allFinal(seq) {
		return false, errs.NewIllegalStateError("order sequence %q has unfinished orders", name)
	}
	prev := snapshotSequence(seq)
	w.finishSequence(seq)
	w.emitIfChanged(prev, seq)
	return true, nil
}

// SetOrderSequenceProcessingVehicle binds the sequence to a vehicle. An empty
// vehicle unbinds it and clears the previous vehicle's back-reference.
func (w *Writer) SetOrderSequenceProcessingVehicle(name, vehicle string) error {
	seq, err := w.sequence(name)
	if err != nil {
		return err
	}
	if vehicle != "" && !w.plant.HasVehicle(vehicle) {
		return errs.NewObjectUnknownError("vehicle", vehicle)
	}
	if seq.ProcessingVehicle == vehicle {
		return nil
	}
	prev := snapshotSequence(seq)
	if vehicle == "" {
		if v, err := w.plant.Vehicle(seq.ProcessingVehicle); err == nil && v.OrderSequence == name {
			_ = w.plant.SetVehicleOrderSequence(v.Name, "")
		}
	}
	seq.ProcessingVehicle = vehicle
	w.sequenceChanged(prev, seq)
	return nil
}

// SetOrderSequenceFinishedIndex moves the finished index forward. All orders
// up to idx must be final.
func (w *Writer) SetOrderSequenceFinishedIndex(name string, idx int) error {
	seq, err := w.sequence(name)
	if err != nil {
		return err
	}
	if idx < seq.FinishedIndex || idx >= len(seq.Orders) {
		return errs.NewIllegalArgumentError("finished_index",
			fmt.Sprintf("%d outside [%d, %d)", idx, seq.FinishedIndex, len(seq.Orders)))
	}
	for _, n := range seq.Orders[:idx+1] {
		if m, ok := w.p.orders[n]; ok && !m.State.IsFinal() {
			return errs.NewIllegalStateError("order %q of sequence %q is %s", n, name, m.State)
		}
	}
	prev := snapshotSequence(seq)
	seq.FinishedIndex = idx
	if seq.Complete && !seq.Finished && w.allFinal(seq) {
		w.finishSequence(seq)
	}
	w.emitIfChanged(prev, seq)
	return nil
}

// RemoveOrderSequence deletes a sequence whose orders are all final, together
// with its orders.
func (w *Writer) RemoveOrderSequence(name string) error {
	seq, err := w.sequence(name)
	if err != nil {
		return err
	}
	if !w.allFinal(seq) {
		return errs.NewIllegalStateError("order sequence %q has unfinished orders", name)
	}
	for _, n := range seq.Orders {
		if o, ok := w.p.orders[n]; ok {
			w.deleteOrder(o)
		}
	}
	for _, v := range w.plant.Vehicles() {
		if v.OrderSequence == name {
			_ = w.plant.SetVehicleOrderSequence(v.Name, "")
		}
	}
	delete(w.p.sequences, name)
	w.sequenceChanged(snapshotSequence(seq), nil)
	return nil
}

// RemoveOrderSequenceOrder deletes a final member order of a sequence.
func (w *Writer) RemoveOrderSequenceOrder(seqName, orderName string) error {
	seq, err := w.sequence(seqName)
	if err != nil {
		return err
	}
	o, err := w.order(orderName)
	if err != nil {
		return err
	}
	if !seq.Contains(orderName) {
		return errs.NewIllegalArgumentError("order", fmt.Sprintf("%q is not part of sequence %q", orderName, seqName))
	}
	if !o.State.IsFinal() {
		return errs.NewIllegalStateError("transport order %q is %s and cannot be removed", orderName, o.State)
	}
	w.detachFromSequence(seq, orderName)
	w.deleteOrder(o)
	return nil
}

// detachFromSequence drops the order from the sequence. The finished index
// shifts with the list so it keeps pointing at the same order.
func (w *Writer) detachFromSequence(seq *model.OrderSequence, order string) {
	i := slices.Index(seq.Orders, order)
	if i < 0 {
		return
	}
	prev := snapshotSequence(seq)
	seq.Orders = slices.Delete(seq.Orders, i, i+1)
	if i <= seq.FinishedIndex {
		seq.FinishedIndex--
	}
	w.sequenceChanged(prev, seq)
}

// OrderSequence returns a snapshot of the named sequence.
func (w *Writer) OrderSequence(name string) (model.OrderSequence, error) {
	s, err := w.sequence(name)
	if err != nil {
		return model.OrderSequence{}, err
	}
	return s.Clone(), nil
}

// OrderSequences returns snapshots of all sequences, oldest first.
func (w *Writer) OrderSequences() []model.OrderSequence {
	out := make([]model.OrderSequence, 0, len(w.p.sequences))
	for _, s := range w.sortedSequences() {
		out = append(out, s.Clone())
	}
	return out
}

func (w *Writer) sortedSequences() []*model.OrderSequence {
	out := make([]*model.OrderSequence, 0, len(w.p.sequences))
	for _, s := range w.p.sequences {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *model.OrderSequence) int {
		if c := a.CreationTime.Compare(b.CreationTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
