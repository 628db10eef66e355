package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*RedisCredentialStore, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return NewRedisCredentialStore(client), cleanup
}

func TestCredentialStore_SetGet(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "s123", "credential-value", time.Hour))

	got, err := store.Get(ctx, "s123")
	require.NoError(t, err)
	assert.Equal(t, "credential-value", got)
}

func TestCredentialStore_GetAbsent(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestCredentialStore_DeleteClearsAdminMarker(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "s123", "credential-value", time.Hour))
	require.NoError(t, store.SetAdmin(ctx, "s123", time.Hour))
	assert.True(t, store.IsAdmin(ctx, "s123"))

	require.NoError(t, store.Delete(ctx, "s123"))

	_, err := store.Get(ctx, "s123")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.False(t, store.IsAdmin(ctx, "s123"))
}
