package cache

import (
	"context"
	"errors"

	"github.com/fjod/qrorder/internal/domain"
)

// CartCache persists session carts between requests and process restarts.
type CartCache interface {
	Get(ctx context.Context, sessionID string) ([]domain.CartItem, error)
	Set(ctx context.Context, sessionID string, items []domain.CartItem) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop is used when no Redis is configured: carts then live only in memory.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]domain.CartItem, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, string, []domain.CartItem) error    { return nil }
func (Nop) Delete(context.Context, string) error                   { return nil }
