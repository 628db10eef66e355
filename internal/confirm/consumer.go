// Package confirm consumes backend payment confirmations. The storefront
// never clears a cart on its own after checkout; the backend announces a
// confirmed payment and only then is the session's cart dropped.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/planmarket/storefront/internal/cache"
	"github.com/planmarket/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	repo   repository.CartRepository
	cache  cache.CartCache
	reader *kafka.Reader
}

func NewConsumer(repo repository.CartRepository, cache cache.CartCache, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "payment-confirmed",
		GroupID:  "storefront-confirm",
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{repo, cache, reader}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.consumeAndClearCart(ctx)
	}
}

func (c *Consumer) Close() {
	err := c.reader.Close()
	if err != nil {
		fmt.Printf("error closing reader: %v\n", err)
	}
}

type confirmation struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

func (c *Consumer) consumeAndClearCart(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		fmt.Printf("error reading message: %v\n", err)
		return
	}

	c.handleMessage(ctx, m.Value)
}

func (c *Consumer) handleMessage(ctx context.Context, value []byte) {
	var payload confirmation
	if errUnmarshal := json.Unmarshal(value, &payload); errUnmarshal != nil {
		fmt.Printf("error parsing message: %v\n", errUnmarshal)
		return
	}
	if payload.SessionID == "" {
		fmt.Println("missing or invalid session_id")
		return
	}

	c.clearCart(ctx, payload)
}

func (c *Consumer) clearCart(ctx context.Context, payload confirmation) {
	errDelete := c.repo.DeleteCart(ctx, payload.SessionID)
	if errDelete != nil && !errors.Is(errDelete, repository.ErrCartNotFound) {
		fmt.Printf("failed to delete cart for order %s: %v\n", payload.OrderID, errDelete)
	}

	errCacheDelete := c.cache.Delete(ctx, payload.SessionID)
	if errCacheDelete != nil {
		fmt.Printf("failed to delete cache: %v\n", errCacheDelete)
	}
}
