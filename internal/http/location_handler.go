package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/planmarket/storefront/internal/geo"
)

type LocationHandler struct {
	location *geo.Detector
	timeout  time.Duration
}

func NewLocationHandler(location *geo.Detector, timeout time.Duration) *LocationHandler {
	return &LocationHandler{
		location: location,
		timeout:  timeout,
	}
}

type OverrideLocationRequestDTO struct {
	CountryCode string `json:"country_code"`
}

// GET /api/v1/location
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondJSON(w, http.StatusOK, geo.DefaultPreference)
		return
	}

	respondJSON(w, http.StatusOK, h.location.Resolve(ctx, sessionID))
}

// PUT /api/v1/location
func (h *LocationHandler) Override(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req OverrideLocationRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CountryCode == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_country", "country_code is required")
		return
	}

	pref, err := h.location.Override(ctx, sessionID, req.CountryCode)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to save preference")
		return
	}

	respondJSON(w, http.StatusOK, pref)
}
