package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/checkout"
	"github.com/planmarket/storefront/internal/currency"
	"github.com/planmarket/storefront/internal/geo"
	"github.com/planmarket/storefront/internal/prefs"
	"github.com/planmarket/storefront/internal/service"
	"github.com/planmarket/storefront/internal/upstream"
)

type RouterDeps struct {
	Carts        *service.CartService
	Converter    *currency.Converter
	Location     *geo.Detector
	Sessions     *auth.Manager
	Prefs        *prefs.Store
	Orchestrator *checkout.Orchestrator
	AuthAPI      *upstream.AuthClient
	OrdersAPI    *upstream.OrdersClient

	RequestTimeout time.Duration
}

func NewRouter(deps RouterDeps) http.Handler {
	cartHandler := NewCartHandler(deps.Carts, deps.Converter, deps.Location, deps.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(deps.Orchestrator, deps.Carts, deps.Location, deps.RequestTimeout)
	reconcileHandler := NewReconcileHandler()
	locationHandler := NewLocationHandler(deps.Location, deps.RequestTimeout)
	authHandler := NewAuthHandler(deps.AuthAPI, deps.Sessions, deps.RequestTimeout)
	ordersHandler := NewOrdersHandler(deps.OrdersAPI, deps.Sessions, deps.RequestTimeout)
	prefsHandler := NewPrefsHandler(deps.Prefs, deps.RequestTimeout)
	eventsHandler := NewEventsHandler(deps.Sessions, deps.Location)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(deps.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(SessionMiddleware)
	r.Use(AuthMiddleware(deps.Sessions))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Payment-provider return paths
	r.Get("/checkout/success", reconcileHandler.Success)
	r.Get("/checkout/cancel", reconcileHandler.Cancel)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
		})

		r.Post("/checkout", checkoutHandler.Begin)

		r.Get("/location", locationHandler.Get)
		r.Put("/location", locationHandler.Override)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
		})

		r.Get("/orders", ordersHandler.ListOrders)

		r.Get("/events", eventsHandler.Stream)

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", prefsHandler.ListFavorites)
			r.Post("/", prefsHandler.AddFavorite)
			r.Delete("/{product_id}", prefsHandler.RemoveFavorite)
		})

		r.Post("/cookies/accept", prefsHandler.AcceptCookies)
		r.Put("/language", prefsHandler.SetLanguage)
	})

	return r
}
