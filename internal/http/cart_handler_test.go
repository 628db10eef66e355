package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planmarket/storefront/internal/cache"
	"github.com/planmarket/storefront/internal/currency"
	"github.com/planmarket/storefront/internal/domain"
	"github.com/planmarket/storefront/internal/geo"
	"github.com/planmarket/storefront/internal/repository"
	"github.com/planmarket/storefront/internal/service"
)

type memRepo struct {
	m     sync.Mutex
	carts map[string]*domain.Cart
}

func newMemRepo() *memRepo {
	return &memRepo{carts: make(map[string]*domain.Cart)}
}

func (r *memRepo) GetCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	r.m.Lock()
	defer r.m.Unlock()
	cart, ok := r.carts[sessionID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	clone := *cart
	return &clone, nil
}

func (r *memRepo) UpsertCart(_ context.Context, cart *domain.Cart) error {
	r.m.Lock()
	defer r.m.Unlock()
	clone := *cart
	r.carts[cart.SessionID] = &clone
	return nil
}

func (r *memRepo) DeleteCart(_ context.Context, sessionID string) error {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.carts[sessionID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(r.carts, sessionID)
	return nil
}

type memCache struct{}

func (memCache) Get(context.Context, string) (*domain.Cart, error) { return nil, cache.ErrCacheMiss }
func (memCache) Set(context.Context, string, *domain.Cart) error   { return nil }
func (memCache) Delete(context.Context, string) error              { return nil }

type cartTestEnv struct {
	router http.Handler
	repo   *memRepo
}

// newCartTestEnv wires the cart routes exactly as the full router does, with
// an in-memory repository and a location detector that falls back to the
// default preference (no geolocation endpoint is reachable).
func newCartTestEnv(t *testing.T) *cartTestEnv {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close(); mr.Close() })

	repo := newMemRepo()
	carts := service.NewCartService(repo, memCache{})
	converter := currency.NewConverter(currency.NewStaticRates())
	location := geo.NewDetector(client, "")

	handler := NewCartHandler(carts, converter, location, 5*time.Second)

	r := chi.NewRouter()
	r.Use(SessionMiddleware)
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Delete("/", handler.ClearCart)
		r.Post("/items", handler.AddItem)
		r.Put("/items/{product_id}", handler.UpdateQuantity)
		r.Delete("/items/{product_id}", handler.RemoveItem)
	})

	return &cartTestEnv{router: r, repo: repo}
}

func doJSON(t *testing.T, router http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "s123"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) CartResponseDTO {
	t.Helper()
	var dto CartResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dto))
	return dto
}

func TestGetCart_EmptyForNewSession(t *testing.T) {
	env := newCartTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decodeCart(t, rec)
	assert.Empty(t, dto.Cart.Items)
	assert.Zero(t, dto.Count)
	assert.Zero(t, dto.TotalUSD)
	assert.Equal(t, "usd", dto.Currency)
}

func TestGetCart_AssignsSessionCookie(t *testing.T) {
	env := newCartTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestAddItem_CreatedWithDisplayTotals(t *testing.T) {
	env := newCartTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID:    1,
		Name:         "Lakeside Cottage",
		UnitPriceUSD: 25.00,
		Variant:      domain.Variant{Format: "pdf", Units: "imperial"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	dto := decodeCart(t, rec)
	require.Len(t, dto.Cart.Items, 1)
	assert.Equal(t, 1, dto.Count)
	assert.Equal(t, 25.00, dto.TotalUSD)
	assert.Equal(t, 25.00, dto.TotalDisplay)
	assert.NotEmpty(t, dto.TotalFormatted)
}

func TestAddItem_SamePairIncrements(t *testing.T) {
	env := newCartTestEnv(t)
	item := AddItemRequestDTO{ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00,
		Variant: domain.Variant{Format: "pdf", Units: "imperial"}}

	doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", item)
	rec := doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", item)
	require.Equal(t, http.StatusCreated, rec.Code)

	dto := decodeCart(t, rec)
	require.Len(t, dto.Cart.Items, 1)
	assert.Equal(t, 2, dto.Cart.Items[0].Quantity)
}

func TestAddItem_Validation(t *testing.T) {
	env := newCartTestEnv(t)

	cases := []struct {
		name string
		body AddItemRequestDTO
		code string
	}{
		{"zero product id", AddItemRequestDTO{Name: "x", UnitPriceUSD: 1}, "invalid_product_id"},
		{"missing name", AddItemRequestDTO{ProductID: 1, UnitPriceUSD: 1}, "invalid_name"},
		{"negative price", AddItemRequestDTO{ProductID: 1, Name: "x", UnitPriceUSD: -1}, "invalid_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
			assert.Equal(t, tc.code, errResp.Code)
		})
	}
}

func TestUpdateQuantity(t *testing.T) {
	env := newCartTestEnv(t)
	variant := domain.Variant{Format: "pdf", Units: "imperial"}

	doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00, Variant: variant})

	rec := doJSON(t, env.router, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{
		Quantity: 3, Variant: variant})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decodeCart(t, rec)
	require.Len(t, dto.Cart.Items, 1)
	assert.Equal(t, 3, dto.Cart.Items[0].Quantity)
	assert.Equal(t, 75.00, dto.TotalUSD)
}

func TestUpdateQuantity_ZeroRemovesLine(t *testing.T) {
	env := newCartTestEnv(t)
	variant := domain.Variant{Format: "pdf", Units: "imperial"}

	doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00, Variant: variant})

	rec := doJSON(t, env.router, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{
		Quantity: 0, Variant: variant})
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decodeCart(t, rec)
	assert.Empty(t, dto.Cart.Items)
}

func TestUpdateQuantity_RejectsAboveCap(t *testing.T) {
	env := newCartTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPut, "/api/v1/cart/items/1", UpdateQuantityRequestDTO{Quantity: 100})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "invalid_quantity", errResp.Code)
}

func TestUpdateQuantity_BadProductID(t *testing.T) {
	env := newCartTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPut, "/api/v1/cart/items/abc", UpdateQuantityRequestDTO{Quantity: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveItem_VariantFromQuery(t *testing.T) {
	env := newCartTestEnv(t)

	doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00,
		Variant: domain.Variant{Format: "pdf", Units: "imperial"}})
	doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00,
		Variant: domain.Variant{Format: "print", Units: "imperial"}})

	rec := doJSON(t, env.router, http.MethodDelete, "/api/v1/cart/items/1?format=pdf&units=imperial", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dto := decodeCart(t, rec)
	require.Len(t, dto.Cart.Items, 1)
	assert.Equal(t, "print", dto.Cart.Items[0].Variant.Format)
}

func TestClearCart(t *testing.T) {
	env := newCartTestEnv(t)

	doJSON(t, env.router, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{
		ProductID: 1, Name: "Lakeside Cottage", UnitPriceUSD: 25.00})

	rec := doJSON(t, env.router, http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	after := doJSON(t, env.router, http.MethodGet, "/api/v1/cart", nil)
	dto := decodeCart(t, after)
	assert.Empty(t, dto.Cart.Items)
}
