package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CredentialStore persists bearer credentials per browsing session.
// Consumers define this interface, not the Redis implementation.
type CredentialStore interface {
	Get(ctx context.Context, sessionID string) (string, error)
	Set(ctx context.Context, sessionID, credential string, ttl time.Duration) error
	// Delete removes the credential and any related session markers,
	// including the separate admin flag.
	Delete(ctx context.Context, sessionID string) error
	// SetAdmin records the flag-style admin marker alongside the credential.
	SetAdmin(ctx context.Context, sessionID string, ttl time.Duration) error
	IsAdmin(ctx context.Context, sessionID string) bool
}

var ErrNoCredential = errors.New("no stored credential")

type RedisCredentialStore struct {
	client *redis.Client
}

func NewRedisCredentialStore(client *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{client: client}
}

func (s *RedisCredentialStore) Get(ctx context.Context, sessionID string) (string, error) {
	credential, err := s.client.Get(ctx, credentialKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return credential, nil
}

func (s *RedisCredentialStore) Set(ctx context.Context, sessionID, credential string, ttl time.Duration) error {
	if err := s.client.Set(ctx, credentialKey(sessionID), credential, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, credentialKey(sessionID), adminKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// SetAdmin records the separate flag-style admin marker.
func (s *RedisCredentialStore) SetAdmin(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, adminKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) IsAdmin(ctx context.Context, sessionID string) bool {
	ok, err := s.client.Exists(ctx, adminKey(sessionID)).Result()
	return err == nil && ok == 1
}

func credentialKey(sessionID string) string {
	return fmt.Sprintf("session:cred:%s", sessionID)
}

func adminKey(sessionID string) string {
	return fmt.Sprintf("session:admin:%s", sessionID)
}
