package handlers

import (
	"encoding/json"
	"net/http"

	"skimo-var/core/authz"
	"skimo-var/core/incidents"
	"skimo-var/core/utils"
)

type IncidentsHandler struct {
	svc    *incidents.Service
	authz  authz.Authorizer
	logger *utils.Logger
}

func NewIncidentsHandler(svc *incidents.Service, az authz.Authorizer, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, authz: az, logger: logger}
}

func (h *IncidentsHandler) Merge(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	targetID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid incident id")
		return
	}
	var body struct {
		SourceIDs []int64 `json:"source_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "malformed json body")
		return
	}
	inc, err := h.svc.Merge(r.Context(), actor, targetID, body.SourceIDs)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

func (h *IncidentsHandler) Officialize(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid incident id")
		return
	}
	inc, err := h.svc.Officialize(r.Context(), actor, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

func (h *IncidentsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid incident id")
		return
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "malformed json body")
		return
	}
	inc, err := h.svc.Decide(r.Context(), actor, id, incidents.DecisionAction(body.Action))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

// Get and ListByRace are viewing-client reads; edge devices are write-only
// and carry no subscribe capability.
func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid incident id")
		return
	}
	if err := h.authz.Authorize(actor, authz.ActRaceSubscribe, id); err != nil {
		writeFault(w, err)
		return
	}
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *IncidentsHandler) ListByRace(w http.ResponseWriter, r *http.Request) {
	actor, ok := authz.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no actor")
		return
	}
	raceID, ok := pathID(r, "race_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid race id")
		return
	}
	if err := h.authz.Authorize(actor, authz.ActRaceSubscribe, raceID); err != nil {
		writeFault(w, err)
		return
	}
	items, err := h.svc.ListByRace(r.Context(), raceID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
