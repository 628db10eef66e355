package http

import "net/http"

// ReconcileHandler serves the landing pages the payment provider redirects
// back to. Both outcomes are presentational only: the redirect is not proof
// of payment, and the authoritative confirmation (receipt email, order
// status) comes from the backend out-of-band.
type ReconcileHandler struct{}

func NewReconcileHandler() *ReconcileHandler {
	return &ReconcileHandler{}
}

type ReconcileResponseDTO struct {
	Status            string `json:"status"`
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	Message           string `json:"message"`
	CatalogPath       string `json:"catalog_path"`
	CartPath          string `json:"cart_path,omitempty"`
}

// GET /checkout/success?session_id=...
func (h *ReconcileHandler) Success(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ReconcileResponseDTO{
		Status:            "success",
		CheckoutSessionID: r.URL.Query().Get("session_id"),
		Message:           "thank you for your purchase, a confirmation email is on its way",
		CatalogPath:       "/api/v1/products",
	})
}

// GET /checkout/cancel
func (h *ReconcileHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ReconcileResponseDTO{
		Status:      "cancelled",
		Message:     "checkout was cancelled, you have not been charged",
		CatalogPath: "/api/v1/products",
		CartPath:    "/api/v1/cart",
	})
}
