package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/domain"
	"github.com/planmarket/storefront/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockOrders struct {
	m       sync.Mutex
	request *upstream.OrderRequest
	order   *upstream.Order
	err     error
	calls   int
}

func (m *mockOrders) CreateOrder(_ context.Context, _ string, order *upstream.OrderRequest) (*upstream.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	m.request = order
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

type mockPayments struct {
	m          sync.Mutex
	configured bool
	request    *upstream.SessionRequest
	session    *upstream.Session
	err        error
	calls      int
}

func (m *mockPayments) Configured() bool { return m.configured }

func (m *mockPayments) CreateSession(_ context.Context, session *upstream.SessionRequest) (*upstream.Session, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	m.request = session
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

type mockSessions struct {
	state      auth.State
	principal  *auth.Principal
	credential string
	checkErr   error
	credErr    error

	// began, when set, is closed once CheckAuth is entered; proceed blocks
	// the call until closed. Used to hold a checkout in flight.
	began   chan struct{}
	proceed chan struct{}
}

func (m *mockSessions) CheckAuth(context.Context, string) (auth.State, *auth.Principal, error) {
	if m.began != nil {
		close(m.began)
		<-m.proceed
	}
	return m.state, m.principal, m.checkErr
}

func (m *mockSessions) Credential(context.Context, string) (string, error) {
	return m.credential, m.credErr
}

func authenticated() *mockSessions {
	return &mockSessions{
		state:      auth.StateAuthenticated,
		principal:  &auth.Principal{UserID: 42, Username: "dana"},
		credential: "bearer-token",
	}
}

func cartWith(items ...domain.CartItem) *domain.Cart {
	return &domain.Cart{SessionID: "s123", Items: items}
}

func newSut(orders *mockOrders, payments *mockPayments, sessions *mockSessions) *Orchestrator {
	return NewOrchestrator(orders, payments, sessions,
		"https://shop.example/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		"https://shop.example/checkout/cancel")
}

func TestBegin_Success(t *testing.T) {
	orders := &mockOrders{order: &upstream.Order{ID: "order-1"}}
	payments := &mockPayments{
		configured: true,
		session:    &upstream.Session{ID: "cs_1", URL: "https://pay.example/cs_1"},
	}
	sut := newSut(orders, payments, authenticated())

	cart := cartWith(
		domain.CartItem{ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00, Quantity: 2},
		domain.CartItem{ProductID: 2, Name: "Hillside Barn", UnitPriceUSD: 10.50, Quantity: 1},
	)

	redirect, err := sut.Begin(context.Background(), "s123", cart, "eur")
	require.NoError(t, err)
	assert.Equal(t, "order-1", redirect.OrderID)
	assert.Equal(t, "cs_1", redirect.CheckoutSessionID)
	assert.Equal(t, "https://pay.example/cs_1", redirect.URL)

	// The order carries the USD total regardless of the display currency.
	require.NotNil(t, orders.request)
	assert.Equal(t, 60.50, orders.request.Total)
	assert.Equal(t, "usd", orders.request.Currency)
	require.Len(t, orders.request.Items, 2)

	// Line items are re-priced in integer cents.
	require.NotNil(t, payments.request)
	require.Len(t, payments.request.Items, 2)
	assert.Equal(t, int64(2500), payments.request.Items[0].UnitAmount)
	assert.Equal(t, 2, payments.request.Items[0].Quantity)
	assert.Equal(t, int64(1050), payments.request.Items[1].UnitAmount)

	assert.Equal(t, "order-1", payments.request.Metadata["order_id"])
	assert.Equal(t, "42", payments.request.Metadata["user_id"])
	assert.Equal(t, "s123", payments.request.Metadata["session_id"])
}

func TestBegin_EmptyCart(t *testing.T) {
	orders := &mockOrders{}
	payments := &mockPayments{configured: true}
	sut := newSut(orders, payments, authenticated())

	_, err := sut.Begin(context.Background(), "s123", cartWith(), "usd")
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, orders.calls)
	assert.Zero(t, payments.calls)
}

func TestBegin_BelowMinimum_NoNetworkCalls(t *testing.T) {
	orders := &mockOrders{}
	payments := &mockPayments{configured: true}
	sut := newSut(orders, payments, authenticated())

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 0.20, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.Zero(t, orders.calls)
	assert.Zero(t, payments.calls)
}

func TestBegin_ExactMinimumAccepted(t *testing.T) {
	orders := &mockOrders{order: &upstream.Order{ID: "order-1"}}
	payments := &mockPayments{configured: true, session: &upstream.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}}
	sut := newSut(orders, payments, authenticated())

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 0.50, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(50), payments.request.Items[0].UnitAmount)
}

func TestBegin_InvalidTotal(t *testing.T) {
	sut := newSut(&mockOrders{}, &mockPayments{configured: true}, authenticated())

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: -5, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	assert.ErrorIs(t, err, ErrInvalidTotal)
}

func TestBegin_PaymentNotConfigured(t *testing.T) {
	orders := &mockOrders{}
	sut := newSut(orders, &mockPayments{configured: false}, authenticated())

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 25, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, orders.calls)
}

func TestBegin_Unauthenticated(t *testing.T) {
	orders := &mockOrders{}
	sessions := &mockSessions{state: auth.StateUnauthenticated}
	sut := newSut(orders, &mockPayments{configured: true}, sessions)

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 25, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, orders.calls)
}

func TestBegin_OrderFailure_NoPaymentSession(t *testing.T) {
	orders := &mockOrders{err: &upstream.Error{Op: "create order", StatusCode: 500, Message: "boom"}}
	payments := &mockPayments{configured: true}
	sut := newSut(orders, payments, authenticated())

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 25, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	require.ErrorContains(t, err, "create order")

	var upErr *upstream.Error
	assert.ErrorAs(t, err, &upErr)
	assert.Zero(t, payments.calls)
}

func TestBegin_SessionFailure_Wrapped(t *testing.T) {
	orders := &mockOrders{order: &upstream.Order{ID: "order-1"}}
	payments := &mockPayments{
		configured: true,
		err:        &upstream.Error{Op: "create checkout session", StatusCode: 502, Message: "provider down"},
	}
	sut := newSut(orders, payments, authenticated())

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 25, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	require.ErrorContains(t, err, "create checkout session")
}

func TestBegin_SecondAttemptWhileInFlight(t *testing.T) {
	sessions := authenticated()
	sessions.began = make(chan struct{})
	sessions.proceed = make(chan struct{})

	orders := &mockOrders{order: &upstream.Order{ID: "order-1"}}
	payments := &mockPayments{configured: true, session: &upstream.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}}
	sut := newSut(orders, payments, sessions)

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 25, Quantity: 1})

	firstDone := make(chan error, 1)
	go func() {
		_, err := sut.Begin(context.Background(), "s123", cart, "usd")
		firstDone <- err
	}()

	<-sessions.began

	_, err := sut.Begin(context.Background(), "s123", cart, "usd")
	assert.ErrorIs(t, err, ErrAlreadyInFlight)

	close(sessions.proceed)
	require.NoError(t, <-firstDone)

	// The guard is released once the first attempt finishes.
	sessions.began = nil
	_, err = sut.Begin(context.Background(), "s123", cart, "usd")
	require.NoError(t, err)
}

func TestBegin_DifferentSessionsNotBlocked(t *testing.T) {
	sessions := authenticated()
	orders := &mockOrders{order: &upstream.Order{ID: "order-1"}}
	payments := &mockPayments{configured: true, session: &upstream.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}}
	sut := newSut(orders, payments, sessions)

	cart := cartWith(domain.CartItem{ProductID: 1, UnitPriceUSD: 25, Quantity: 1})

	_, err := sut.Begin(context.Background(), "s1", cart, "usd")
	require.NoError(t, err)
	_, err = sut.Begin(context.Background(), "s2", cart, "usd")
	require.NoError(t, err)
}
