package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore/internal/domain/cart"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestCartCache_SetGet(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewCartCache(client, time.Minute)
	ctx := context.Background()

	in := &cart.Cart{
		UserID: "u1",
		Lines: []cart.Line{
			{BookID: "b1", Quantity: 2, PriceAtAdd: decimal.RequireFromString("12.50")},
			{BookID: "b2", Quantity: 1, PriceAtAdd: decimal.RequireFromString("3.99")},
		},
		UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, c.Set(ctx, in))
	assert.True(t, mr.Exists("cart:u1"))

	ttl := mr.TTL("cart:u1")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.Less(t, ttl, time.Minute+maxJitter)

	out, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", out.UserID)
	require.Len(t, out.Lines, 2)
	assert.Equal(t, "b1", out.Lines[0].BookID)
	assert.True(t, out.Lines[0].PriceAtAdd.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, out.UpdatedAt.Equal(in.UpdatedAt))
}

func TestCartCache_Miss(t *testing.T) {
	client, _ := setupRedis(t)
	c := NewCartCache(client, 0)

	out, err := c.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, cart.ErrCacheMiss)
	assert.Nil(t, out)
}

func TestCartCache_InvalidJSON(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewCartCache(client, 0)
	require.NoError(t, mr.Set("cart:u1", "{not json"))

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cart.ErrCacheMiss)
}

func TestCartCache_Delete(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewCartCache(client, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &cart.Cart{UserID: "u1"}))
	require.NoError(t, c.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("cart:u1"))

	// Deleting again is fine.
	require.NoError(t, c.Delete(ctx, "u1"))
}

func TestCartCache_ServerDown(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewCartCache(client, 0)
	mr.Close()

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cart.ErrCacheMiss)
}

func TestIdempotency(t *testing.T) {
	client, mr := setupRedis(t)
	idem := NewIdempotency(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, idem.Reserve(ctx, "u1", "k1"))
	require.ErrorIs(t, idem.Reserve(ctx, "u1", "k1"), ErrKeyInUse)

	// Keys are scoped per user.
	require.NoError(t, idem.Reserve(ctx, "u2", "k1"))

	assert.Equal(t, time.Hour, mr.TTL("idem:checkout:u1:k1"))

	require.NoError(t, idem.Release(ctx, "u1", "k1"))
	require.NoError(t, idem.Reserve(ctx, "u1", "k1"))
}

func TestIdempotency_Expiry(t *testing.T) {
	client, mr := setupRedis(t)
	idem := NewIdempotency(client, 0)
	ctx := context.Background()

	require.NoError(t, idem.Reserve(ctx, "u1", "k1"))
	mr.FastForward(DefaultIdempotencyTTL + time.Second)
	require.NoError(t, idem.Reserve(ctx, "u1", "k1"))
}
