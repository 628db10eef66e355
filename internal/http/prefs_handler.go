package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/planmarket/storefront/internal/prefs"
)

type PrefsHandler struct {
	store   *prefs.Store
	timeout time.Duration
}

func NewPrefsHandler(store *prefs.Store, timeout time.Duration) *PrefsHandler {
	return &PrefsHandler{
		store:   store,
		timeout: timeout,
	}
}

type FavoriteRequestDTO struct {
	ProductID int64 `json:"product_id"`
}

type LanguageRequestDTO struct {
	Language string `json:"language"`
}

// GET /api/v1/favorites
func (h *PrefsHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondJSON(w, http.StatusOK, []int64{})
		return
	}

	favorites := h.store.Favorites(ctx, sessionID)
	if favorites == nil {
		favorites = []int64{}
	}
	respondJSON(w, http.StatusOK, favorites)
}

// POST /api/v1/favorites
func (h *PrefsHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req FavoriteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	if err := h.store.AddFavorite(ctx, sessionID, req.ProductID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to save favorite")
		return
	}

	respondJSON(w, http.StatusCreated, h.store.Favorites(ctx, sessionID))
}

// DELETE /api/v1/favorites/{product_id}
func (h *PrefsHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.store.RemoveFavorite(ctx, sessionID, productID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to remove favorite")
		return
	}

	favorites := h.store.Favorites(ctx, sessionID)
	if favorites == nil {
		favorites = []int64{}
	}
	respondJSON(w, http.StatusOK, favorites)
}

// POST /api/v1/cookies/accept
func (h *PrefsHandler) AcceptCookies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	if err := h.store.SetAcceptedCookies(ctx, sessionID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to save preference")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

// PUT /api/v1/language
func (h *PrefsHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req LanguageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "language is required")
		return
	}

	if err := h.store.SetLanguage(ctx, sessionID, req.Language); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to save preference")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"language": req.Language})
}
