package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/orderlog"
	"github.com/kilianp07/agvkernel/pkg/export"
)

// parseLogQuery reads start, end (RFC 3339), vehicle, state and limit.
func parseLogQuery(r *http.Request) (orderlog.Query, error) {
	v := r.URL.Query()
	var q orderlog.Query
	for key, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := v.Get(key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, errs.NewIllegalArgumentError(key, err.Error())
		}
		*dst = t
	}
	q.Vehicle = v.Get("vehicle")
	states, err := parseStates(v.Get("state"))
	if err != nil {
		return q, err
	}
	q.States = states
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, errs.NewIllegalArgumentError("limit", "must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}

// queryOrderLog answers in JSON, or in CSV when format=csv.
func (h *Handlers) queryOrderLog(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errNoOrderLog.Error(), Kind: "unavailable"})
		return
	}
	q, err := parseLogQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != export.FormatJSON && format != export.FormatCSV {
		writeError(w, errs.NewIllegalArgumentError("format", "must be json or csv"))
		return
	}
	recs, err := h.orders.Query(r.Context(), q)
	if err != nil {
		h.log.Errorf("order log query: %v", err)
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, recs); err != nil {
		writeError(w, err)
		return
	}
	if format == export.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="orderlog.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
