package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
)

type createOrderRequest struct {
	orderpool.TransportOrderSpec
	// Activate defaults to true.
	Activate *bool `json:"activate,omitempty"`
}

func (h *Handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.svc.CreateTransportOrder(req.TransportOrderSpec)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Activate == nil || *req.Activate {
		if o, err = h.svc.ActivateTransportOrder(o.Name); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, o)
}

// parseStates reads a comma separated list of order states.
func parseStates(s string) ([]model.OrderState, error) {
	if s == "" {
		return nil, nil
	}
	var out []model.OrderState
	for _, part := range strings.Split(s, ",") {
		var st model.OrderState
		if err := st.UnmarshalText([]byte(strings.TrimSpace(part))); err != nil {
			return nil, errs.NewIllegalArgumentError("state", err.Error())
		}
		out = append(out, st)
	}
	return out, nil
}

func (h *Handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	states, err := parseStates(q.Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	vehicle, typ := q.Get("vehicle"), q.Get("type")
	orders, err := h.svc.TransportOrders(func(o model.TransportOrder) bool {
		if len(states) > 0 && !slices.Contains(states, o.State) {
			return false
		}
		if vehicle != "" && o.ProcessingVehicle != vehicle && o.IntendedVehicle != vehicle {
			return false
		}
		return typ == "" || o.Type == typ
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if orders == nil {
		orders = []model.TransportOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.TransportOrder(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// withdrawOrder accepts the query flags immediate and disable_vehicle.
func (h *Handlers) withdrawOrder(w http.ResponseWriter, r *http.Request) {
	immediate, err := queryBool(r, "immediate")
	if err != nil {
		writeError(w, err)
		return
	}
	disable, err := queryBool(r, "disable_vehicle")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.WithdrawTransportOrder(chi.URLParam(r, "name"), immediate, disable); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) addDependency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dependency string `json:"dependency"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.AddDependency(chi.URLParam(r, "name"), req.Dependency); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) removeDependency(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveDependency(chi.URLParam(r, "name"), chi.URLParam(r, "dependency")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// putDeadline sets the deadline. A null or missing deadline clears it.
func (h *Handlers) putDeadline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Deadline *time.Time `json:"deadline"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var deadline time.Time
	if req.Deadline != nil {
		deadline = *req.Deadline
	}
	if err := h.svc.UpdateOrderDeadline(chi.URLParam(r, "name"), deadline); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) putIntendedVehicle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vehicle string `json:"vehicle"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.UpdateIntendedVehicle(chi.URLParam(r, "name"), req.Vehicle); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) createSequence(w http.ResponseWriter, r *http.Request) {
	var spec orderpool.OrderSequenceSpec
	if err := decode(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.svc.CreateOrderSequence(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handlers) listSequences(w http.ResponseWriter, _ *http.Request) {
	seqs, err := h.svc.OrderSequences()
	if err != nil {
		writeError(w, err)
		return
	}
	if seqs == nil {
		seqs = []model.OrderSequence{}
	}
	writeJSON(w, http.StatusOK, seqs)
}

func (h *Handlers) getSequence(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.OrderSequence(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) completeSequence(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.SetOrderSequenceComplete(name); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.svc.OrderSequence(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
