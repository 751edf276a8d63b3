package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/veloura/marketplace/internal/keylock"
	"github.com/veloura/marketplace/internal/orders"
)

// MemoryStore is the in-process Store. Items are published copy-on-write: a
// struct in the map is never mutated after publication, writers build a fresh
// copy and swap the map entry under mu. The per-item keylock serializes the
// read-modify-publish sequence, which is what makes Reserve a true
// check-and-set; mu alone only guards the map itself, so lock-free snapshot
// reads stay safe.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*orders.Item
	locks *keylock.KeyLock
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*orders.Item),
		locks: keylock.New(),
		now:   time.Now,
	}
}

// WithClock swaps the time source. Tests use it to move reservations past
// their expiry without sleeping.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Add(ctx context.Context, it *orders.Item) error {
	unlock := s.locks.Lock(it.ID)
	defer unlock()

	cp := *it
	if cp.Status == "" {
		cp.Status = orders.ItemAvailable
	}
	t := s.now()
	cp.CreatedAt, cp.UpdatedAt = t, t

	s.put(&cp)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, itemID string) (*orders.Item, error) {
	it, err := s.get(itemID)
	if err != nil {
		return nil, err
	}
	cp := *it
	return &cp, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, itemID, buyerID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	unlock := s.locks.Lock(itemID)
	defer unlock()

	it, err := s.get(itemID)
	if err != nil {
		return err
	}

	now := s.now()
	switch it.Status {
	case orders.ItemSold:
		return orders.ErrAlreadySold
	case orders.ItemWithdrawn:
		return orders.ErrItemWithdrawn
	case orders.ItemReserved:
		// A stale hold is treated exactly as AVAILABLE. A live hold only
		// yields to its own buyer, who gets a refreshed expiry.
		if it.Reserved(now) && it.ReservedBy != buyerID {
			return orders.ErrReservedByOther
		}
	}

	until := now.Add(ttl)
	cp := *it
	cp.Status = orders.ItemReserved
	cp.ReservedBy = buyerID
	cp.ReservedUntil = &until
	cp.UpdatedAt = now
	s.put(&cp)
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, itemID string) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	it, err := s.get(itemID)
	if err != nil {
		return err
	}
	if it.Status != orders.ItemReserved && it.Status != orders.ItemSold {
		return nil
	}
	s.put(cleared(it, orders.ItemAvailable, s.now()))
	return nil
}

func (s *MemoryStore) MarkSold(ctx context.Context, itemID string) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	it, err := s.get(itemID)
	if err != nil {
		return err
	}
	s.put(cleared(it, orders.ItemSold, s.now()))
	return nil
}

func (s *MemoryStore) Withdraw(ctx context.Context, itemID string) error {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	it, err := s.get(itemID)
	if err != nil {
		return err
	}
	if it.Status == orders.ItemSold {
		return orders.ErrAlreadySold
	}
	s.put(cleared(it, orders.ItemWithdrawn, s.now()))
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context) ([]string, error) {
	// Snapshot candidate ids first, then take each item's lock one at a
	// time so the sweep never stalls reservations on unrelated items.
	s.mu.RLock()
	candidates := make([]string, 0)
	for id, it := range s.items {
		if it.Status == orders.ItemReserved {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	var swept []string
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		unlock := s.locks.Lock(id)
		it, err := s.get(id)
		if err == nil && it.Status == orders.ItemReserved && !it.Reserved(s.now()) {
			s.put(cleared(it, orders.ItemAvailable, s.now()))
			swept = append(swept, id)
		}
		unlock()
	}
	return swept, nil
}

// get returns the published snapshot, which is immutable; callers intending
// to write must hold the item's keylock so the copy they publish isn't stale.
func (s *MemoryStore) get(itemID string) (*orders.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[itemID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return it, nil
}

func (s *MemoryStore) put(it *orders.Item) {
	s.mu.Lock()
	s.items[it.ID] = it
	s.mu.Unlock()
}

// cleared copies it into status with the reservation fields wiped.
func cleared(it *orders.Item, status orders.ItemStatus, now time.Time) *orders.Item {
	cp := *it
	cp.Status = status
	cp.ReservedBy = ""
	cp.ReservedUntil = nil
	cp.UpdatedAt = now
	return &cp
}
