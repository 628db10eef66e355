package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/planmarket/storefront/internal/checkout"
	"github.com/planmarket/storefront/internal/geo"
	"github.com/planmarket/storefront/internal/service"
	"github.com/planmarket/storefront/internal/upstream"
)

type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	carts        *service.CartService
	location     *geo.Detector
	timeout      time.Duration
}

func NewCheckoutHandler(orchestrator *checkout.Orchestrator, carts *service.CartService, location *geo.Detector, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		carts:        carts,
		location:     location,
		timeout:      timeout,
	}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	cart, err := h.carts.GetCart(ctx, sessionID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	pref := h.location.Resolve(ctx, sessionID)

	redirect, err := h.orchestrator.Begin(ctx, sessionID, cart, pref.CurrencyCode)
	if err != nil {
		handleCheckoutError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, redirect)
}

// handleCheckoutError keeps every failure class distinguishable for the
// caller: validation refusals, missing configuration, authentication, order
// creation, payment-session creation, plain connectivity.
func handleCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, r, http.StatusBadRequest, "empty_cart", "your cart is empty")
	case errors.Is(err, checkout.ErrInvalidTotal):
		respondError(w, r, http.StatusBadRequest, "invalid_total", "cart total must be a positive amount")
	case errors.Is(err, checkout.ErrBelowMinimum):
		respondError(w, r, http.StatusBadRequest, "below_minimum", "order total must be at least $0.50")
	case errors.Is(err, checkout.ErrNotAuthenticated):
		respondError(w, r, http.StatusUnauthorized, "unauthenticated", "sign in to check out")
	case errors.Is(err, checkout.ErrNotConfigured):
		respondError(w, r, http.StatusServiceUnavailable, "payment_not_configured", "payments are not set up")
	case errors.Is(err, checkout.ErrAlreadyInFlight):
		respondError(w, r, http.StatusConflict, "checkout_in_flight", "a checkout is already in progress")
	default:
		var upErr *upstream.Error
		if errors.As(err, &upErr) {
			code := "order_failed"
			if upErr.Op == "create checkout session" {
				code = "payment_failed"
			}
			message := upErr.Message
			if message == "" {
				message = "checkout could not be completed, please try again"
			}
			respondError(w, r, http.StatusBadGateway, code, message)
			return
		}
		respondError(w, r, http.StatusBadGateway, "network_error", "could not reach the payment or order service")
	}
}
