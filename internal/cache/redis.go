package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/redis/go-redis/v9"
)

// cartEnvelope is the stored form of a session cart.
type cartEnvelope struct {
	Items   []domain.CartItem `json:"items"`
	SavedAt time.Time         `json:"savedAt"`
}

type RedisOption func(*RedisCache)

// WithTTL sets how long an untouched session cart survives. Reads extend it.
func WithTTL(d time.Duration) RedisOption {
	return func(r *RedisCache) { r.baseTTL = d }
}

// WithJitter spreads expirations of carts written at the same moment.
func WithJitter(d time.Duration) RedisOption {
	return func(r *RedisCache) { r.maxJitter = d }
}

type RedisCache struct {
	client    *redis.Client
	baseTTL   time.Duration
	maxJitter time.Duration
	now       func() time.Time
}

func NewRedisCache(client *redis.Client, opts ...RedisOption) *RedisCache {
	r := &RedisCache{
		client:    client,
		baseTTL:   24 * time.Hour,
		maxJitter: 5 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get loads the session cart and slides its expiry forward.
func (r *RedisCache) Get(ctx context.Context, sessionID string) ([]domain.CartItem, error) {
	data, err := r.client.GetEx(ctx, cacheKey(sessionID), r.ttl()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session cart: %w", err)
	}

	var env cartEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode session cart %s: %w", sessionID, err)
	}
	return env.Items, nil
}

// Set replaces the session cart. An empty cart removes the key.
func (r *RedisCache) Set(ctx context.Context, sessionID string, items []domain.CartItem) error {
	if len(items) == 0 {
		return r.Delete(ctx, sessionID)
	}

	data, err := json.Marshal(cartEnvelope{Items: items, SavedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode session cart %s: %w", sessionID, err)
	}
	if err := r.client.Set(ctx, cacheKey(sessionID), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set session cart: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session cart: %w", err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	if r.maxJitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + time.Duration(rand.Int63n(int64(r.maxJitter)))
}

func cacheKey(sessionID string) string {
	return "cart:session:" + sessionID
}
