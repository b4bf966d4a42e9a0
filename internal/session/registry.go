// Package session keeps one Cart Store and one Checkout Flow per browser
// session. Carts are written through to the cart cache on every mutation so a
// session survives process restarts and idle eviction.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/qrorder/internal/cache"
	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/checkout"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidID = errors.New("invalid session id")

type Session struct {
	ID       string
	Cart     *cart.Store
	Checkout *checkout.Flow

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// FlowFactory builds the checkout flow bound to a session's cart.
type FlowFactory func(store *cart.Store) *checkout.Flow

type Option func(*Registry)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

type Registry struct {
	cache   cache.CartCache
	newFlow FlowFactory
	logger  zerolog.Logger
	idleTTL time.Duration
	now     func() time.Time

	sfg      singleflight.Group // one cache load per session id
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(c cache.CartCache, newFlow FlowFactory, opts ...Option) *Registry {
	r := &Registry{
		cache:    c,
		newFlow:  newFlow,
		logger:   zerolog.Nop(),
		idleTTL:  30 * time.Minute,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func NewID() string {
	return uuid.NewString()
}

func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the live session for id, restoring its cart from the cache the
// first time the id is seen by this process.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	if s := r.lookup(id); s != nil {
		s.touch(r.now())
		return s, nil
	}

	v, err, _ := r.sfg.Do(id, func() (interface{}, error) {
		if s := r.lookup(id); s != nil {
			return s, nil
		}
		s := r.restore(ctx, id)
		r.mu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s := v.(*Session)
	s.touch(r.now())
	return s, nil
}

func (r *Registry) lookup(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) restore(ctx context.Context, id string) *Session {
	items, err := r.cache.Get(ctx, id)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn().Err(err).Str("session_id", id).Msg("cart cache get failed, starting empty")
	}

	store := cart.New(items...)
	store.Subscribe(func(snap cart.Snapshot) {
		r.persist(id, snap)
	})
	return &Session{
		ID:       id,
		Cart:     store,
		Checkout: r.newFlow(store),
	}
}

func (r *Registry) persist(id string, snap cart.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.cache.Set(ctx, id, snap.Items); err != nil {
		r.logger.Warn().Err(err).Str("session_id", id).Uint64("version", snap.Version).Msg("cart cache set failed")
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the idle TTL. Their carts stay in
// the cache; any checkout still running is cancelled.
func (r *Registry) Sweep() int {
	now := r.now()
	var evicted []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince(now) > r.idleTTL {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Checkout.Cancel()
	}
	if len(evicted) > 0 {
		r.logger.Debug().Int("evicted", len(evicted)).Msg("swept idle sessions")
	}
	return len(evicted)
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
