package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo keeps orders and disputes in process. It backs the default
// single-node deployment and every test that doesn't want a database.
type MemoryRepo struct {
	mu       sync.RWMutex
	orders   map[string]*Order
	disputes map[string]*Dispute // keyed by dispute id
	byOrder  map[string]string   // order id -> dispute id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders:   make(map[string]*Order),
		disputes: make(map[string]*Dispute),
		byOrder:  make(map[string]string),
	}
}

func (r *MemoryRepo) CreateOrder(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetOrder(ctx context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepo) UpdateOrder(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return ErrNotFound
	}
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryRepo) ActiveOrderForItem(ctx context.Context, itemID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.ItemID == itemID && o.Status != OrderCancelled {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) DeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Order
	for _, o := range r.orders {
		if len(out) >= limit {
			break
		}
		if o.Status == OrderDelivered && o.Shipping.DeliveredAt != nil && o.Shipping.DeliveredAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *MemoryRepo) CreateDispute(ctx context.Context, d *Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[d.OrderID]; ok {
		return ErrDisputeExists
	}
	cp := *d
	cp.Messages = append([]DisputeMessage(nil), d.Messages...)
	r.disputes[d.ID] = &cp
	r.byOrder[d.OrderID] = d.ID
	return nil
}

func (r *MemoryRepo) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDispute(d), nil
}

func (r *MemoryRepo) DisputeForOrder(ctx context.Context, orderID string) (*Dispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDispute(r.disputes[id]), nil
}

func (r *MemoryRepo) UpdateDispute(ctx context.Context, d *Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.disputes[d.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = d.Status
	cur.Resolution = d.Resolution
	cur.ResolvedAt = d.ResolvedAt
	return nil
}

func (r *MemoryRepo) AddDisputeMessage(ctx context.Context, disputeID string, m DisputeMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[disputeID]
	if !ok {
		return ErrNotFound
	}
	d.Messages = append(d.Messages, m)
	return nil
}

func copyDispute(d *Dispute) *Dispute {
	cp := *d
	cp.Messages = append([]DisputeMessage(nil), d.Messages...)
	return &cp
}
