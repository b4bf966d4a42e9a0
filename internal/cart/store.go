// Package cart holds the session-scoped Cart Store.
//
// Reads may run concurrently from any number of views. Writes are serialized
// through the store's own operations and every successful mutation notifies all
// subscribers synchronously, in mutation order, before the operation returns.
// Listeners receive an immutable Snapshot and must not mutate the store.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/qrorder/internal/domain"
	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 999

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrQuantityLimit   = fmt.Errorf("%w and at most %d per item", ErrInvalidQuantity, MaxLineQuantity)
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidItem     = errors.New("item id is required")
	ErrCartHeld        = errors.New("cart cannot change while a payment is in progress")
)

type Snapshot struct {
	Items   []domain.CartItem `json:"items"`
	Count   int               `json:"count"`
	Total   decimal.Decimal   `json:"total"`
	Version uint64            `json:"version"`
}

type Listener func(Snapshot)

type Store struct {
	writeMu sync.Mutex // serializes mutation + notification

	mu      sync.RWMutex
	items   []domain.CartItem
	version uint64
	held    bool

	subMu     sync.RWMutex
	listeners map[uint64]Listener
	nextSubID uint64
}

// New returns a store seeded with items. Seed items violating the cart
// invariants (empty id, quantity < 1, duplicate id) are merged or dropped, and
// line quantities are capped at MaxLineQuantity.
func New(items ...domain.CartItem) *Store {
	s := &Store{listeners: make(map[uint64]Listener)}
	for _, item := range items {
		if item.ID == "" || item.Quantity < 1 {
			continue
		}
		if i := s.indexOf(item.ID); i >= 0 {
			s.items[i].Quantity = min(MaxLineQuantity, s.items[i].Quantity+min(item.Quantity, MaxLineQuantity))
			continue
		}
		item.Quantity = min(item.Quantity, MaxLineQuantity)
		s.items = append(s.items, item)
	}
	return s
}

// Add appends item, or increments the quantity of the existing line with the same id.
func (s *Store) Add(item domain.CartItem, quantity int) error {
	if item.ID == "" {
		return ErrInvalidItem
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if quantity > MaxLineQuantity {
		return ErrQuantityLimit
	}

	var err error
	s.mutate(func() bool {
		if s.held {
			err = ErrCartHeld
			return false
		}
		if i := s.indexOf(item.ID); i >= 0 {
			if quantity > MaxLineQuantity-s.items[i].Quantity {
				err = ErrQuantityLimit
				return false
			}
			s.items[i].Quantity += quantity
			return true
		}
		item.Quantity = quantity
		s.items = append(s.items, item)
		return true
	})
	return err
}

// Remove deletes the line with id; unknown ids are a no-op.
func (s *Store) Remove(id string) error {
	var err error
	s.mutate(func() bool {
		if s.held {
			err = ErrCartHeld
			return false
		}
		return s.removeLocked(id)
	})
	return err
}

// UpdateQuantity sets the quantity of the line with id. A quantity below 1
// removes the line.
func (s *Store) UpdateQuantity(id string, quantity int) error {
	if quantity > MaxLineQuantity {
		return ErrQuantityLimit
	}
	var err error
	s.mutate(func() bool {
		if s.held {
			err = ErrCartHeld
			return false
		}
		i := s.indexOf(id)
		if i < 0 {
			err = ErrItemNotFound
			return false
		}
		if quantity < 1 {
			return s.removeLocked(id)
		}
		if s.items[i].Quantity == quantity {
			return false
		}
		s.items[i].Quantity = quantity
		return true
	})
	return err
}

// Clear empties the cart. It is the one write allowed while the cart is held.
func (s *Store) Clear() {
	s.mutate(func() bool {
		if len(s.items) == 0 {
			return false
		}
		s.items = nil
		return true
	})
}

// Hold freezes the cart for a payment attempt and returns the lines being paid
// for. Add, Remove and UpdateQuantity fail with ErrCartHeld until Release.
func (s *Store) Hold() []domain.CartItem {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = true
	return s.copyLocked()
}

func (s *Store) Release() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
}

func (s *Store) Held() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.held
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.TotalOf(s.items)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers l and returns a function that unregisters it.
func (s *Store) Subscribe(l Listener) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = l
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

// mutate runs change under the write lock and, when it reports a change,
// bumps the version and notifies listeners before returning.
func (s *Store) mutate(change func() bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := change()
	if changed {
		s.version++
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.subMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) indexOf(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *Store) copyLocked() []domain.CartItem {
	out := make([]domain.CartItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:   s.copyLocked(),
		Count:   len(s.items),
		Total:   domain.TotalOf(s.items),
		Version: s.version,
	}
}
