package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/veloura/marketplace/internal/orders"
)

// OpenDispute creates the order's single dispute. Only the buyer may open
// one, only while the order is DELIVERED, and only inside the window.
func (m *Manager) OpenDispute(ctx context.Context, orderID, buyerID, reason string) (*orders.Dispute, error) {
	unlock := m.locks.Lock("order:" + orderID)
	defer unlock()

	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, orders.ErrNotFound
	}
	if o.Status != orders.OrderDelivered || o.DisputeDeadline == nil {
		return nil, orders.ErrDisputeWindowClosed
	}
	now := m.cfg.Now()
	if now.After(*o.DisputeDeadline) {
		return nil, orders.ErrDisputeWindowClosed
	}

	if _, err := m.repo.DisputeForOrder(ctx, orderID); err == nil {
		return nil, orders.ErrDisputeExists
	} else if !errors.Is(err, orders.ErrNotFound) {
		return nil, err
	}

	d := &orders.Dispute{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		BuyerID:   buyerID,
		Status:    orders.DisputeOpen,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := m.repo.CreateDispute(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// AddDisputeMessage appends to the thread. The first seller message moves an
// OPEN dispute to SELLER_RESPONSE.
func (m *Manager) AddDisputeMessage(ctx context.Context, disputeID, authorID, body string) (*orders.Dispute, error) {
	d, err := m.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, orders.ErrDisputeWindowClosed
	}

	msg := orders.DisputeMessage{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: m.cfg.Now(),
	}
	if err := m.repo.AddDisputeMessage(ctx, disputeID, msg); err != nil {
		return nil, err
	}
	d.Messages = append(d.Messages, msg)

	if d.Status == orders.DisputeOpen && authorID != d.BuyerID {
		d.Status = orders.DisputeSellerResponse
		if err := m.repo.UpdateDispute(ctx, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ReviewDispute parks the dispute with the trust & safety team.
func (m *Manager) ReviewDispute(ctx context.Context, disputeID string) (*orders.Dispute, error) {
	d, err := m.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, orders.ErrDisputeWindowClosed
	}
	d.Status = orders.DisputeUnderReview
	if err := m.repo.UpdateDispute(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ResolveDispute closes the dispute. Resolution in the buyer's favor refunds
// the order (DELIVERED -> REFUNDED); otherwise the dispute is CLOSED and the
// order stands.
func (m *Manager) ResolveDispute(ctx context.Context, disputeID, resolution string, refundBuyer bool) (*orders.Dispute, error) {
	d, err := m.repo.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Open() {
		return nil, orders.ErrDisputeWindowClosed
	}

	unlock := m.locks.Lock("order:" + d.OrderID)
	defer unlock()

	now := m.cfg.Now()
	if refundBuyer {
		o, err := m.repo.GetOrder(ctx, d.OrderID)
		if err != nil {
			return nil, err
		}
		if !orders.CanTransition(o.Status, orders.OrderRefunded) {
			return nil, transitionErrRefund(o)
		}
		o.Status = orders.OrderRefunded
		o.UpdatedAt = now
		if err := m.repo.UpdateOrder(ctx, o); err != nil {
			return nil, err
		}
		m.emit(ctx, orders.TopicOrderRefunded, o.ID, orders.EventOrderRefunded, orders.OrderStatusPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Status:      o.Status,
			Reason:      "DISPUTE_RESOLVED",
		})
		d.Status = orders.DisputeResolved
	} else {
		d.Status = orders.DisputeClosed
	}
	d.Resolution = resolution
	d.ResolvedAt = &now
	if err := m.repo.UpdateDispute(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func transitionErrRefund(o *orders.Order) error {
	return transitionErr(o, refundEvent{})
}

// refundEvent only exists to reuse transitionErr's message shape; refunds are
// driven by dispute resolution, not by a public transition event.
type refundEvent struct{}

func (refundEvent) eventName() string { return "Refund" }
