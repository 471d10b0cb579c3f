package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyTTL is how long a checkout idempotency key stays
// reserved.
const DefaultIdempotencyTTL = 24 * time.Hour

// ErrKeyInUse is returned by Reserve when the key was already taken.
var ErrKeyInUse = errors.New("idempotency key already used")

// Idempotency reserves client-supplied keys so a retried request is not
// executed twice.
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotency returns an Idempotency store. A non-positive ttl selects
// DefaultIdempotencyTTL.
func NewIdempotency(client *redis.Client, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &Idempotency{client: client, ttl: ttl}
}

// Reserve claims key for the user. It returns ErrKeyInUse if the key has
// been claimed before and not released.
func (i *Idempotency) Reserve(ctx context.Context, userID, key string) error {
	ok, err := i.client.SetNX(ctx, idempotencyKey(userID, key), time.Now().UTC().Format(time.RFC3339), i.ttl).Result()
	if err != nil {
		return errors.Wrap(err, "reserve idempotency key")
	}
	if !ok {
		return ErrKeyInUse
	}
	return nil
}

// Release frees a key whose request failed, so the client may retry it.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	if err := i.client.Del(ctx, idempotencyKey(userID, key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

func idempotencyKey(userID, key string) string {
	return "idem:checkout:" + userID + ":" + key
}
