package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the identity decoded from a bearer credential.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin,omitempty"`
}

type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrMalformedCredential = errors.New("malformed bearer credential")
	ErrExpiredCredential   = errors.New("bearer credential is expired")
)

// ParseCredential verifies the token signature and extracts the principal and
// expiry. An expired token returns ErrExpiredCredential along with the decoded
// claims so callers can still identify whose session just died.
func ParseCredential(credential string, secret []byte) (*Principal, time.Time, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(credential, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return principalFromClaims(&claims), expiryFromClaims(&claims), ErrExpiredCredential
		}
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	if claims.ExpiresAt == nil {
		return nil, time.Time{}, fmt.Errorf("%w: missing expiry claim", ErrMalformedCredential)
	}

	return principalFromClaims(&claims), claims.ExpiresAt.Time, nil
}

func principalFromClaims(claims *Claims) *Principal {
	return &Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
		Admin:    claims.IsAdmin,
	}
}

func expiryFromClaims(claims *Claims) time.Time {
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
