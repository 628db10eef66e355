package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/planmarket/storefront/internal/auth"
	"github.com/planmarket/storefront/internal/upstream"
)

type AuthHandler struct {
	authAPI  *upstream.AuthClient
	sessions *auth.Manager
	timeout  time.Duration
}

func NewAuthHandler(authAPI *upstream.AuthClient, sessions *auth.Manager, timeout time.Duration) *AuthHandler {
	return &AuthHandler{
		authAPI:  authAPI,
		sessions: sessions,
		timeout:  timeout,
	}
}

type LoginRequestDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequestDTO struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequestDTO struct {
	RefreshToken string `json:"refresh"`
}

type SessionResponseDTO struct {
	Principal    *auth.Principal `json:"principal"`
	RefreshToken string          `json:"refresh,omitempty"`
}

// SessionStatusDTO is the session probe the storefront polls. ExpiresAt and
// ExpiringSoon let the UI warn the user before the credential lapses instead
// of surprising them with a forced logout.
type SessionStatusDTO struct {
	State        auth.State      `json:"state"`
	Principal    *auth.Principal `json:"principal"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	ExpiringSoon bool            `json:"expiring_soon,omitempty"`
	Admin        bool            `json:"admin,omitempty"`
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, r, http.StatusBadRequest, "missing_credentials", "username and password are required")
		return
	}

	pair, err := h.authAPI.Login(ctx, &upstream.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		handleAuthUpstreamError(w, r, err)
		return
	}

	h.establish(ctx, w, r, sessionID, pair)
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req RegisterRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, r, http.StatusBadRequest, "missing_credentials", "username, email and password are required")
		return
	}

	pair, err := h.authAPI.Register(ctx, &upstream.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleAuthUpstreamError(w, r, err)
		return
	}

	h.establish(ctx, w, r, sessionID, pair)
}

// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	var req RefreshRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "refresh token is required")
		return
	}

	pair, err := h.authAPI.Refresh(ctx, req.RefreshToken)
	if err != nil {
		handleAuthUpstreamError(w, r, err)
		return
	}

	h.establish(ctx, w, r, sessionID, pair)
}

// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "missing_session", "no browsing session")
		return
	}

	if err := h.sessions.Logout(ctx, sessionID); err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to log out")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out", "login_path": "/api/v1/auth/login"})
}

// GET /api/v1/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	state, principal, err := h.sessions.CheckAuth(ctx, sessionID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to check session")
		return
	}

	status := SessionStatusDTO{State: state, Principal: principal}
	if state == auth.StateAuthenticated {
		if remaining, ok := h.sessions.RemainingValidity(sessionID); ok {
			expiresAt := time.Now().Add(remaining)
			status.ExpiresAt = &expiresAt
		}
		status.ExpiringSoon = h.sessions.ExpiringSoon(sessionID)
		status.Admin = h.sessions.IsAdmin(ctx, sessionID)
	}

	respondJSON(w, http.StatusOK, status)
}

func (h *AuthHandler) establish(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID string, pair *upstream.TokenPair) {
	principal, err := h.sessions.Login(ctx, sessionID, pair.AccessToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredCredential) || errors.Is(err, auth.ErrMalformedCredential) {
			respondError(w, r, http.StatusBadGateway, "bad_credential", "auth service returned an unusable credential")
			return
		}
		respondError(w, r, http.StatusInternalServerError, "internal_error", "failed to establish session")
		return
	}

	respondJSON(w, http.StatusOK, SessionResponseDTO{
		Principal:    principal,
		RefreshToken: pair.RefreshToken,
	})
}

func handleAuthUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		status := http.StatusBadGateway
		code := "upstream_error"
		if upErr.StatusCode == http.StatusUnauthorized || upErr.StatusCode == http.StatusBadRequest {
			status = http.StatusUnauthorized
			code = "invalid_credentials"
		}
		message := upErr.Message
		if message == "" {
			message = "sign-in failed, please try again"
		}
		respondError(w, r, status, code, message)
		return
	}
	respondError(w, r, http.StatusBadGateway, "network_error", "could not reach the sign-in service")
}
