package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/planmarket/storefront/internal/cache"
	"github.com/planmarket/storefront/internal/domain"
	"github.com/planmarket/storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache) *CartService {
	return &CartService{
		repo:  repo,
		cache: cache,
	}
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {

		cart, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return cart, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v \n", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, sessionID)
		if errGet != nil {
			// A missing or unreadable document both rehydrate as an empty cart.
			if errors.Is(errGet, repository.ErrCartNotFound) || errors.Is(errGet, repository.ErrCartCorrupt) {
				return &domain.Cart{
					SessionID: sessionID,
					Items:     nil,
					CreatedAt: time.Now(),
					UpdatedAt: time.Now(),
				}, nil
			}
			return nil, errGet
		}

		// set cache
		go func() {
			errSet := s.cache.Set(context.Background(), sessionID, cart)
			if errSet != nil {
				log.Printf("cache set error: %v \n", errSet)
			}
		}()

		return cart, nil // cart was not in cache, return it from repo
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem merges the item into the cart and persists the full collection.
// A matching (product, variant) entry gains quantity instead of duplicating.
func (s *CartService) AddItem(ctx context.Context, sessionID string, item domain.CartItem) (*domain.Cart, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart) {
		cart.Add(item)
	})
}

// SetQuantity overwrites the matching entry's quantity; below one it removes
// the entry.
func (s *CartService) SetQuantity(ctx context.Context, sessionID string, productID int64, quantity int, variant domain.Variant) (*domain.Cart, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart) {
		cart.SetQuantity(productID, quantity, variant)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID string, productID int64, variant domain.Variant) (*domain.Cart, error) {
	return s.mutate(ctx, sessionID, func(cart *domain.Cart) {
		cart.Remove(productID, variant)
	})
}

// ClearCart drops the persisted cart entirely. A cart that was never persisted
// clears without error.
func (s *CartService) ClearCart(ctx context.Context, sessionID string) error {
	errDelete := s.repo.DeleteCart(ctx, sessionID)
	if errDelete != nil && !errors.Is(errDelete, repository.ErrCartNotFound) {
		log.Printf("repo delete cart error: %v \n", errDelete)
		return errDelete
	}

	invalidateCache(s, sessionID)
	return nil
}

func (s *CartService) mutate(ctx context.Context, sessionID string, apply func(cart *domain.Cart)) (*domain.Cart, error) {
	cart, err := s.loadForWrite(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	apply(cart)

	if errUpsert := s.repo.UpsertCart(ctx, cart); errUpsert != nil {
		log.Printf("repo upsert cart error: %v \n", errUpsert)
		return nil, errUpsert
	}

	invalidateCache(s, sessionID)
	return cart, nil
}

// loadForWrite reads the authoritative copy, bypassing the cache so mutations
// never operate on stale data.
func (s *CartService) loadForWrite(ctx context.Context, sessionID string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) || errors.Is(err, repository.ErrCartCorrupt) {
			return &domain.Cart{
				SessionID: sessionID,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		return nil, err
	}
	return cart, nil
}

func invalidateCache(s *CartService, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errInvalidate := s.cache.Delete(ctx, sessionID)
	if errInvalidate != nil {
		log.Printf("cache invalidate error: %v \n", errInvalidate)
	}
}
