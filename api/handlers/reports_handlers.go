package handlers

import (
	"encoding/json"
	"net/http"

	"skimo-var/core/authz"
	"skimo-var/core/reports"
	"skimo-var/core/utils"
)

type ReportsHandler struct {
	svc    *reports.Service
	logger *utils.Logger
}

func NewReportsHandler(svc *reports.Service, logger *utils.Logger) *ReportsHandler {
	return &ReportsHandler{svc: svc, logger: logger}
}

func (h *ReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	var in reports.CreateReportInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "malformed json body")
		return
	}
	rep, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep})
}

func (h *ReportsHandler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid report id")
		return
	}
	rep, err := h.svc.Review(r.Context(), actor, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep})
}

func (h *ReportsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid report id")
		return
	}
	rep, err := h.svc.Archive(r.Context(), actor, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep})
}
