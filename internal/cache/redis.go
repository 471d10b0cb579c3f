// Package cache holds the Redis-backed caches: cached carts and checkout
// idempotency keys.
package cache

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/bookstore/internal/domain/cart"
)

// DefaultCartTTL is the base lifetime of a cached cart.
const DefaultCartTTL = 15 * time.Minute

// maxJitter spreads expiries so carts cached together do not expire
// together.
const maxJitter = 5 * time.Minute

// NewClient connects to the Redis server at url (redis://host:port/db) and
// checks that it answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

var _ cart.Cache = (*CartCache)(nil)

// CartCache stores carts as JSON under cart:<user id>.
type CartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewCartCache returns a CartCache. A non-positive ttl selects
// DefaultCartTTL.
func NewCartCache(client *redis.Client, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartCache{client: client, baseTTL: ttl}
}

// Get returns the cached cart or cart.ErrCacheMiss.
func (c *CartCache) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var v cart.Cart
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart")
	}
	return &v, nil
}

// Set caches the cart for the base TTL plus up to five minutes of jitter.
func (c *CartCache) Set(ctx context.Context, v *cart.Cart) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal cart")
	}
	ttl := c.baseTTL + rand.N(maxJitter)
	if err := c.client.Set(ctx, cartKey(v.UserID), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete drops the cached cart, if any.
func (c *CartCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "redis delete")
	}
	return nil
}

func cartKey(userID string) string {
	return "cart:" + userID
}
