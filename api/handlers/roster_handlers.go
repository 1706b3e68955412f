package handlers

import (
	"net/http"
	"strconv"

	"skimo-var/core/authz"
	"skimo-var/core/roster"
	"skimo-var/core/utils"
)

type RosterHandler struct {
	lookup roster.Lookup
	authz  authz.Authorizer
	logger *utils.Logger
}

func NewRosterHandler(lookup roster.Lookup, az authz.Authorizer, logger *utils.Logger) *RosterHandler {
	return &RosterHandler{lookup: lookup, authz: az, logger: logger}
}

func (h *RosterHandler) ResolveBib(w http.ResponseWriter, r *http.Request) {
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
	bib, err := strconv.Atoi(urlParam(r, "bib"))
	if err != nil || bib <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid bib number")
		return
	}
	position := 0
	if raw := r.URL.Query().Get("position"); raw != "" {
		position, err = strconv.Atoi(raw)
		if err != nil || position < 0 || position > 2 {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid athlete position")
			return
		}
	}
	if err := h.authz.Authorize(actor, authz.ActRosterResolve, raceID); err != nil {
		writeFault(w, err)
		return
	}
	identity, err := h.lookup.ResolveBib(r.Context(), raceID, bib, position)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity})
}
