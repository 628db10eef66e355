package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is the bearer credential pair issued by the auth API.
type TokenPair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

type AuthClient struct {
	baseURL string
	http    *http.Client
}

func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		baseURL: baseURL,
		http:    newClient(timeout),
	}
}

func (c *AuthClient) Login(ctx context.Context, login *LoginRequest) (*TokenPair, error) {
	return c.exchange(ctx, "login", "/api/auth/login", login)
}

func (c *AuthClient) Register(ctx context.Context, register *RegisterRequest) (*TokenPair, error) {
	return c.exchange(ctx, "register", "/api/auth/register", register)
}

// Refresh exchanges a refresh credential for a new access credential.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return c.exchange(ctx, "refresh", "/api/auth/refresh", map[string]string{"refresh": refreshToken})
}

func (c *AuthClient) exchange(ctx context.Context, op, path string, body interface{}) (*TokenPair, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(op, resp)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%s response missing access token", op)
	}
	return &pair, nil
}
