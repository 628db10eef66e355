package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/geo"
)

// EventsHandler streams session transitions and location-preference changes
// to the browser over server-sent events, so every open tab reacts to a login,
// logout, approaching expiry or currency switch without polling.
type EventsHandler struct {
	sessions *auth.Manager
	location *geo.Detector
}

func NewEventsHandler(sessions *auth.Manager, location *geo.Detector) *EventsHandler {
	return &EventsHandler{
		sessions: sessions,
		location: location,
	}
}

// GET /api/v1/events
//
// The stream only carries events for the caller's own session. Each stream is
// bounded by the server's request timeout; clients are expected to reconnect.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, http.StatusInternalServerError, "streaming_unsupported", "streaming is not supported")
		return
	}

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	sessionEvents, unsubscribeSessions := h.sessions.Subscribe()
	defer unsubscribeSessions()

	changes, unsubscribeChanges := h.location.Subscribe(r.Context())
	defer unsubscribeChanges()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case event, open := <-sessionEvents:
			if !open {
				return
			}
			if event.SessionID != sessionID {
				continue
			}
			writeEvent(w, flusher, "session", event)
		case change, open := <-changes:
			if !open {
				return
			}
			if change.VisitorID != sessionID {
				continue
			}
			writeEvent(w, flusher, "location", change.Pref)
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", name, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	flusher.Flush()
}
