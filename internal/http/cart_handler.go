package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planmarket/storefront/internal/currency"
	"github.com/planmarket/storefront/internal/domain"
	"github.com/planmarket/storefront/internal/geo"
	"github.com/planmarket/storefront/internal/service"
	"github.com/planmarket/storefront/internal/upstream"
)

type CartHandler struct {
	carts     *service.CartService
	converter *currency.Converter
	location  *geo.Detector
	timeout   time.Duration
}

func NewCartHandler(carts *service.CartService, converter *currency.Converter, location *geo.Detector, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:     carts,
		converter: converter,
		location:  location,
		timeout:   timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID    int64          `json:"product_id"`
	Name         string         `json:"name"`
	UnitPriceUSD float64        `json:"unit_price_usd"`
	Variant      domain.Variant `json:"variant"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int            `json:"quantity"`
	Variant  domain.Variant `json:"variant"`
}

// CartResponseDTO is the cart plus its display-currency rendering. The
// display block is presentation only; totals are authoritative in USD.
type CartResponseDTO struct {
	Cart           *domain.Cart `json:"cart"`
	Count          int          `json:"count"`
	TotalUSD       float64      `json:"total_usd"`
	Currency       string       `json:"currency"`
	TotalDisplay   float64      `json:"total_display"`
	TotalFormatted string       `json:"total_formatted"`
}

// ErrorResponse carries the request id so a caller can quote it when
// reporting a failure.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
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

	respondJSON(w, http.StatusOK, h.withDisplay(ctx, sessionID, cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_name", "name is required")
		return
	}
	if req.UnitPriceUSD < 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_price", "unit_price_usd must not be negative")
		return
	}

	cart, err := h.carts.AddItem(ctx, sessionID, domain.CartItem{
		ProductID:    req.ProductID,
		Name:         req.Name,
		UnitPriceUSD: req.UnitPriceUSD,
		Variant:      req.Variant,
	})
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to update cart")
		return
	}

	respondJSON(w, http.StatusCreated, h.withDisplay(ctx, sessionID, cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > 99 {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	// A quantity below one removes the line item.
	cart, err := h.carts.SetQuantity(ctx, sessionID, productID, req.Quantity, req.Variant)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to update cart")
		return
	}

	respondJSON(w, http.StatusOK, h.withDisplay(ctx, sessionID, cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
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

	variant := domain.Variant{
		Format: r.URL.Query().Get("format"),
		Units:  r.URL.Query().Get("units"),
	}

	cart, err := h.carts.RemoveItem(ctx, sessionID, productID, variant)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to update cart")
		return
	}

	respondJSON(w, http.StatusOK, h.withDisplay(ctx, sessionID, cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	if err := h.carts.ClearCart(ctx, sessionID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to clear cart")
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Cart:           &domain.Cart{SessionID: sessionID},
		Currency:       "usd",
		TotalFormatted: h.converter.Format(0, "usd", "$"),
	})
}

func (h *CartHandler) withDisplay(ctx context.Context, sessionID string, cart *domain.Cart) CartResponseDTO {
	pref := h.location.Resolve(ctx, sessionID)
	totalUSD := cart.TotalUSD()
	totalDisplay := h.converter.Convert(totalUSD, pref.CurrencyCode)

	return CartResponseDTO{
		Cart:           cart,
		Count:          cart.Count(),
		TotalUSD:       totalUSD,
		Currency:       pref.CurrencyCode,
		TotalDisplay:   totalDisplay,
		TotalFormatted: h.converter.Format(totalDisplay, pref.CurrencyCode, pref.CurrencySymbol),
	}
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: getRequestID(r.Context()),
	})
}

// handleUpstreamError maps upstream answers onto the error taxonomy: a
// non-2xx with a server message is relayed, anything else reads as a generic
// connectivity failure. Nothing is retried automatically.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		message := upErr.Message
		if message == "" {
			message = "the request could not be completed, please try again"
		}
		respondError(w, r, http.StatusBadGateway, "upstream_error", message)
		return
	}
	respondError(w, r, http.StatusBadGateway, "network_error", "could not reach the service, please try again")
}
