package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kilianp07/agvkernel/core/errs"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code by its kind.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.Kind(err)
	code := http.StatusInternalServerError
	switch kind {
	case "object_unknown":
		code = http.StatusNotFound
	case "object_exists", "illegal_state":
		code = http.StatusConflict
	case "illegal_argument":
		code = http.StatusBadRequest
	case "unauthorized":
		code = http.StatusUnauthorized
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.NewIllegalArgumentError("body", err.Error())
	}
	return nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, errs.NewIllegalArgumentError(key, fmt.Sprintf("%q is not a boolean", s))
	}
	return b, nil
}

// requireToken rejects requests without the configured bearer token.
func (h *Handlers) requireToken(next http.Handler) http.Handler {
	if h.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			principal := r.RemoteAddr
			if principal == "" {
				principal = "anonymous"
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="agvkernel"`)
			writeError(w, &errs.UnauthorizedError{Principal: principal})
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errNoOrderLog = errors.New("order log is not configured")
