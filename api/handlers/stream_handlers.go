package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"skimo-var/core/authz"
	"skimo-var/core/broadcast"
	"skimo-var/core/utils"
)

const streamKeepalive = 25 * time.Second

// StreamHandler serves the per-race event feed over SSE. Viewing clients
// treat the feed as a change hint: on connect, and on any gap, they
// refetch current state through the read endpoints.
type StreamHandler struct {
	hub    *broadcast.Hub
	authz  authz.Authorizer
	logger *utils.Logger
}

func NewStreamHandler(hub *broadcast.Hub, az authz.Authorizer, logger *utils.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, authz: az, logger: logger}
}

func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
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
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	sub := h.hub.Subscribe(raceID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if h.logger != nil {
		h.logger.Printf("STREAM open race=%d sub=%d actor=%s", raceID, sub.ID, actor.Name)
	}

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-sub.C:
			if !open {
				// Dropped as a slow consumer. The client reconnects and
				// refetches; ending the response is the signal.
				if h.logger != nil {
					h.logger.Printf("STREAM closed race=%d sub=%d", raceID, sub.ID)
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
