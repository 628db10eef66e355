package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type OrderItem struct {
	ProductID    int64   `json:"product_id"`
	Name         string  `json:"name"`
	UnitPriceUSD float64 `json:"unit_price_usd"`
	Quantity     int     `json:"quantity"`
}

type OrderRequest struct {
	Items    []OrderItem `json:"items"`
	Total    float64     `json:"total"`
	Currency string      `json:"currency"`
}

type Order struct {
	ID        string      `json:"id"`
	Total     float64     `json:"total"`
	Currency  string      `json:"currency"`
	Status    string      `json:"status"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}

type OrdersClient struct {
	baseURL string
	http    *http.Client
}

func NewOrdersClient(baseURL string, timeout time.Duration) *OrdersClient {
	return &OrdersClient{
		baseURL: baseURL,
		http:    newClient(timeout),
	}
}

// CreateOrder posts the cart contents and obtains the authoritative order
// record. The backend re-validates the total; this client does not correct
// for any divergence.
func (c *OrdersClient) CreateOrder(ctx context.Context, credential string, order *OrderRequest) (*Order, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError("create order", resp)
	}

	var created Order
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &created, nil
}

// ListOrders fetches the caller's order history.
func (c *OrdersClient) ListOrders(ctx context.Context, credential string) ([]Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("build orders request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError("list orders", resp)
	}

	var orders []Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("decode orders response: %w", err)
	}
	return orders, nil
}
