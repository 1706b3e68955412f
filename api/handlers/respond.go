package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"skimo-var/core/faults"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeFault maps the engine taxonomy onto HTTP statuses. Conflict bodies
// carry the reason code so viewing clients can branch without parsing
// message text.
func writeFault(w http.ResponseWriter, err error) {
	var f *faults.Fault
	if !errors.As(err, &f) {
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	status := http.StatusInternalServerError
	switch f.Kind {
	case faults.KindValidation:
		status = http.StatusBadRequest
	case faults.KindForbidden:
		status = http.StatusForbidden
	case faults.KindNotFound:
		status = http.StatusNotFound
	case faults.KindConflict:
		status = http.StatusConflict
	case faults.KindTransient:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, f.Code(), f.Error())
}
