package repository

import (
	"context"
	"errors"

	"github.com/planmarket/storefront/internal/domain"
)

// CartRepository defines the interface for cart persistence.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrCartCorrupt  = errors.New("stored cart is corrupt")
)
