package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/agvkernel/core/model"
)

func (h *Handlers) listVehicles(w http.ResponseWriter, _ *http.Request) {
	vs := h.svc.Vehicles()
	if vs == nil {
		vs = []model.Vehicle{}
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *Handlers) getVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Vehicle(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) putIntegrationLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level model.IntegrationLevel `json:"level"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.svc.UpdateVehicleIntegrationLevel(name, req.Level); err != nil {
		writeError(w, err)
		return
	}
	h.respondVehicle(w, name)
}

func (h *Handlers) dispatchVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DispatchVehicle(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) releaseVehicle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.ReleaseVehicle(name); err != nil {
		writeError(w, err)
		return
	}
	h.respondVehicle(w, name)
}

func (h *Handlers) withdrawByVehicle(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.WithdrawByVehicle(chi.URLParam(r, "name"), immediate, disable); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// rerouteVehicle takes the rerouting type from the "type" query parameter,
// REGULAR by default.
func (h *Handlers) rerouteVehicle(w http.ResponseWriter, r *http.Request) {
	kind := model.RerouteRegular
	if s := r.URL.Query().Get("type"); s != "" {
		if err := kind.UnmarshalText([]byte(s)); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "illegal_argument"})
			return
		}
	}
	if err := h.svc.RerouteVehicle(chi.URLParam(r, "name"), kind); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) respondVehicle(w http.ResponseWriter, name string) {
	v, err := h.svc.Vehicle(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
