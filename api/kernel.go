package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/model"
)

type stateBody struct {
	State model.KernelState `json:"state"`
}

func (h *Handlers) getKernelState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateBody{State: h.svc.State()})
}

// putKernelState blocks until the transition has finished.
func (h *Handlers) putKernelState(w http.ResponseWriter, r *http.Request) {
	var req stateBody
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.SetState(r.Context(), req.State); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateBody{State: h.svc.State()})
}

func (h *Handlers) saveModel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SaveModel(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listPaths(w http.ResponseWriter, _ *http.Request) {
	ps := h.svc.Paths()
	if ps == nil {
		ps = []model.Path{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handlers) putPathLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locked bool `json:"locked"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.LockPath(chi.URLParam(r, "name"), req.Locked); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) routerInfo(w http.ResponseWriter, _ *http.Request) {
	info, err := h.svc.RouterInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"info": info})
}

func (h *Handlers) routeCosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vehicle, src, dst := q.Get("vehicle"), q.Get("source"), q.Get("destination")
	if vehicle == "" || src == "" || dst == "" {
		writeError(w, errs.NewIllegalArgumentError("query", "vehicle, source and destination are required"))
		return
	}
	costs, err := h.svc.RouteCosts(vehicle, src, dst)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle":     vehicle,
		"source":      src,
		"destination": dst,
		"costs":       costs,
	})
}

func (h *Handlers) allocations(w http.ResponseWriter, _ *http.Request) {
	a, err := h.svc.Allocations()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
