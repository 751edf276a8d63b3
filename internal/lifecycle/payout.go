package lifecycle

import (
	"context"
	"errors"

	"github.com/veloura/marketplace/internal/orders"
)

// IsPayoutEligible is the pure predicate the payout job runs: delivered, out
// of the hold period, and no dispute still in flight. Pass dispute nil when
// the order has none.
func (m *Manager) IsPayoutEligible(o *orders.Order, d *orders.Dispute) bool {
	if o.Status != orders.OrderDelivered || o.Shipping.DeliveredAt == nil {
		return false
	}
	if m.cfg.Now().Sub(*o.Shipping.DeliveredAt) <= m.cfg.PayoutHold {
		return false
	}
	if d != nil && d.Open() {
		return false
	}
	return true
}

// CheckPayout loads the order and its dispute (if any) and evaluates
// eligibility. Returns the order so the caller can compute the payout amount.
func (m *Manager) CheckPayout(ctx context.Context, orderID string) (*orders.Order, bool, error) {
	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	d, err := m.repo.DisputeForOrder(ctx, orderID)
	if err != nil && !errors.Is(err, orders.ErrNotFound) {
		return nil, false, err
	}
	return o, m.IsPayoutEligible(o, d), nil
}

// PayoutBackfill lists orders already sitting past the hold period. The
// payout job seeds its candidate set from this on every pass, so orders whose
// delivered event predates the job (or was lost) still reach disbursement.
func (m *Manager) PayoutBackfill(ctx context.Context, limit int) ([]orders.Order, error) {
	return m.repo.DeliveredBefore(ctx, m.cfg.Now().Add(-m.cfg.PayoutHold), limit)
}

// GetOrder is a read-through for the glue layer.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return m.repo.GetOrder(ctx, orderID)
}
