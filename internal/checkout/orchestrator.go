// Package checkout turns the local cart into an order record plus a hosted
// payment session and hands the caller the redirect target.
package checkout

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/domain"
	"github.com/planmarket/storefront/internal/upstream"
	"github.com/shopspring/decimal"
)

// MinimumChargeUSD is the smallest total the payment provider will accept.
// Anything below is rejected before any network call.
const MinimumChargeUSD = 0.50

// OrderCreator and SessionCreator are the slices of the upstream clients the
// orchestrator needs. Consumers define these interfaces, not the clients.
type OrderCreator interface {
	CreateOrder(ctx context.Context, credential string, order *upstream.OrderRequest) (*upstream.Order, error)
}

type SessionCreator interface {
	Configured() bool
	CreateSession(ctx context.Context, session *upstream.SessionRequest) (*upstream.Session, error)
}

type SessionChecker interface {
	CheckAuth(ctx context.Context, sessionID string) (auth.State, *auth.Principal, error)
	Credential(ctx context.Context, sessionID string) (string, error)
}

// Redirect is the outcome of a successful checkout start: the browser is sent
// to URL, the order already exists upstream.
type Redirect struct {
	OrderID           string `json:"order_id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	URL               string `json:"url"`
}

type Orchestrator struct {
	orders   OrderCreator
	payments SessionCreator
	sessions SessionChecker

	successURL string
	cancelURL  string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewOrchestrator(orders OrderCreator, payments SessionCreator, sessions SessionChecker, successURL, cancelURL string) *Orchestrator {
	return &Orchestrator{
		orders:     orders,
		payments:   payments,
		sessions:   sessions,
		successURL: successURL,
		cancelURL:  cancelURL,
		inFlight:   make(map[string]struct{}),
	}
}

// Begin validates the cart, creates the upstream order and the hosted payment
// session, and returns the redirect target. Validation failures abort before
// any network call. Nothing here mutates the cart: clearing happens only
// after the backend confirms payment, out-of-band.
//
// displayCurrency is carried for logging only; the charge is always USD.
func (o *Orchestrator) Begin(ctx context.Context, sessionID string, cart *domain.Cart, displayCurrency string) (*Redirect, error) {
	if !o.acquire(sessionID) {
		return nil, ErrAlreadyInFlight
	}
	defer o.release(sessionID)

	total := cart.TotalUSD()
	switch {
	case len(cart.Items) == 0:
		return nil, ErrEmptyCart
	case math.IsNaN(total) || math.IsInf(total, 0) || total <= 0:
		return nil, ErrInvalidTotal
	case total < MinimumChargeUSD:
		return nil, ErrBelowMinimum
	}

	if !o.payments.Configured() {
		return nil, ErrNotConfigured
	}

	state, principal, err := o.sessions.CheckAuth(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if state != auth.StateAuthenticated {
		return nil, ErrNotAuthenticated
	}

	credential, err := o.sessions.Credential(ctx, sessionID)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	order, err := o.orders.CreateOrder(ctx, credential, orderRequest(cart, total))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	session, err := o.payments.CreateSession(ctx, &upstream.SessionRequest{
		Items:      sessionItems(cart),
		SuccessURL: o.successURL,
		CancelURL:  o.cancelURL,
		Metadata: map[string]string{
			"order_id":   order.ID,
			"user_id":    fmt.Sprint(principal.UserID),
			"session_id": sessionID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	log.Printf("checkout started: order=%s session=%s total=%.2f usd (display %s)",
		order.ID, session.ID, total, displayCurrency)

	return &Redirect{
		OrderID:           order.ID,
		CheckoutSessionID: session.ID,
		URL:               session.URL,
	}, nil
}

func orderRequest(cart *domain.Cart, total float64) *upstream.OrderRequest {
	items := make([]upstream.OrderItem, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = upstream.OrderItem{
			ProductID:    item.ProductID,
			Name:         item.Name,
			UnitPriceUSD: item.UnitPriceUSD,
			Quantity:     item.Quantity,
		}
	}
	return &upstream.OrderRequest{
		Items:    items,
		Total:    total,
		Currency: "usd",
	}
}

// sessionItems re-prices every line in integer cents, the provider's unit.
// Decimal arithmetic avoids drift from float cent math ($25.00 → 2500).
func sessionItems(cart *domain.Cart) []upstream.SessionLineItem {
	items := make([]upstream.SessionLineItem, len(cart.Items))
	for i, item := range cart.Items {
		cents := decimal.NewFromFloat(item.UnitPriceUSD).
			Mul(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		items[i] = upstream.SessionLineItem{
			Name:       item.Name,
			UnitAmount: cents,
			Quantity:   item.Quantity,
		}
	}
	return items
}

// acquire marks the session's checkout as in flight; a second concurrent
// attempt for the same session is refused rather than queued.
func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[sessionID]; busy {
		return false
	}
	o.inFlight[sessionID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, sessionID)
}
