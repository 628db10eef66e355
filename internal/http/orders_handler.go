package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/upstream"
)

type OrdersHandler struct {
	ordersAPI *upstream.OrdersClient
	sessions  *auth.Manager
	timeout   time.Duration
}

func NewOrdersHandler(ordersAPI *upstream.OrdersClient, sessions *auth.Manager, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		ordersAPI: ordersAPI,
		sessions:  sessions,
		timeout:   timeout,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if getPrincipal(r.Context()) == nil {
		respondError(w, r, http.StatusUnauthorized, "unauthenticated", "sign in to view your orders")
		return
	}

	credential, err := h.sessions.Credential(ctx, sessionID)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredential) {
			respondError(w, r, http.StatusUnauthorized, "unauthenticated", "sign in to view your orders")
			return
		}
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to read session")
		return
	}

	orders, err := h.ordersAPI.ListOrders(ctx, credential)
	if err != nil {
		handleUpstreamError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}
