package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SessionLineItem is one purchasable line in the provider's hosted checkout.
// UnitAmount is in integer minor units (cents) of USD; the provider charges
// in USD regardless of the visitor's display currency.
type SessionLineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

type SessionRequest struct {
	Items      []SessionLineItem `json:"items"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Session is the provider's hosted flow instance. The browser is redirected
// to URL and this service does not otherwise control the flow.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PaymentClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewPaymentClient(baseURL, secretKey string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      newClient(timeout),
	}
}

// Configured reports whether the payment provider is set up at all. Checkout
// refuses to start without it.
func (c *PaymentClient) Configured() bool {
	return c.secretKey != ""
}

func (c *PaymentClient) CreateSession(ctx context.Context, session *SessionRequest) (*Session, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError("create checkout session", resp)
	}

	var created Session
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if created.URL == "" {
		return nil, fmt.Errorf("checkout session response missing redirect url")
	}
	return &created, nil
}
