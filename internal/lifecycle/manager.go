// Package lifecycle drives orders through their state machine and keeps order
// state consistent with item state at the two points where they meet: payment
// capture (item becomes SOLD) and cancellation (reservation released).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/veloura/marketplace/internal/inventory"
	"github.com/veloura/marketplace/internal/kafka"
	"github.com/veloura/marketplace/internal/keylock"
	"github.com/veloura/marketplace/internal/orders"
)

const (
	// DefaultDisputeWindow is how long after delivery a buyer may open a
	// dispute.
	DefaultDisputeWindow = 14 * 24 * time.Hour
	// DefaultPayoutHold is how long after delivery seller funds stay held.
	DefaultPayoutHold = 7 * 24 * time.Hour
	// DefaultTakeRateBps is the platform commission when no store-specific
	// rate is configured (6%).
	DefaultTakeRateBps = 600
)

// Config carries the manager's collaborators and tuning. Zero values get
// sensible defaults in NewManager.
type Config struct {
	Events        orders.EventSink
	TakeRateBps   func(storeID string) int
	DisputeWindow time.Duration
	PayoutHold    time.Duration
	Now           func() time.Time
	Service       string
}

type Manager struct {
	items inventory.Store
	repo  orders.Repo
	cfg   Config
	locks *keylock.KeyLock
}

func NewManager(items inventory.Store, repo orders.Repo, cfg Config) *Manager {
	if cfg.TakeRateBps == nil {
		cfg.TakeRateBps = func(string) int { return DefaultTakeRateBps }
	}
	if cfg.DisputeWindow <= 0 {
		cfg.DisputeWindow = DefaultDisputeWindow
	}
	if cfg.PayoutHold <= 0 {
		cfg.PayoutHold = DefaultPayoutHold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{items: items, repo: repo, cfg: cfg, locks: keylock.New()}
}

type CreateOrderInput struct {
	BuyerID       string
	ItemID        string
	ShippingCents int
	TaxCents      int
	Address       orders.Address
}

// CreateOrder opens a PENDING order against the buyer's live reservation.
// No reservation, no order: checkout must have reserved the item first.
func (m *Manager) CreateOrder(ctx context.Context, in CreateOrderInput) (*orders.Order, error) {
	unlock := m.locks.Lock("item:" + in.ItemID)
	defer unlock()

	it, err := m.items.Get(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	now := m.cfg.Now()
	if !it.Reserved(now) || it.ReservedBy != in.BuyerID {
		return nil, orders.ErrNotReserved
	}

	if _, err := m.repo.ActiveOrderForItem(ctx, in.ItemID); err == nil {
		return nil, orders.ErrOrderExists
	} else if !errors.Is(err, orders.ErrNotFound) {
		return nil, err
	}

	subtotal := it.PriceCents
	fee := orders.PlatformFee(subtotal, m.cfg.TakeRateBps(it.StoreID))
	o := &orders.Order{
		ID:               uuid.NewString(),
		OrderNumber:      newOrderNumber(),
		BuyerID:          in.BuyerID,
		ItemID:           in.ItemID,
		StoreID:          it.StoreID,
		Status:           orders.OrderPending,
		PaymentStatus:    orders.PaymentPending,
		SubtotalCents:    subtotal,
		ShippingCents:    in.ShippingCents,
		TaxCents:         in.TaxCents,
		TotalCents:       orders.Total(subtotal, in.ShippingCents, in.TaxCents),
		PlatformFeeCents: fee,
		Shipping:         orders.Shipping{Address: in.Address},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	m.emit(ctx, orders.TopicOrderCreated, o.ID, orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		BuyerID:     o.BuyerID,
		ItemID:      o.ItemID,
		StoreID:     o.StoreID,
		TotalCents:  o.TotalCents,
	})
	return o, nil
}

// Transition applies one lifecycle event to the order. Transitions for a
// given order are serialized on its lock; the guard and the resulting state
// live together per event type.
func (m *Manager) Transition(ctx context.Context, orderID string, ev Event) (*orders.Order, error) {
	unlock := m.locks.Lock("order:" + orderID)
	defer unlock()

	o, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := m.cfg.Now()

	switch e := ev.(type) {
	case PaymentAuthorized:
		if o.Status != orders.OrderPending || o.PaymentStatus != orders.PaymentPending {
			return nil, transitionErr(o, ev)
		}
		o.PaymentStatus = orders.PaymentAuthorized

	case PaymentCaptured:
		if o.Status != orders.OrderPending {
			return nil, transitionErr(o, ev)
		}
		o.Status = orders.OrderConfirmed
		o.PaymentStatus = orders.PaymentCaptured
		if err := m.items.MarkSold(ctx, o.ItemID); err != nil {
			return nil, fmt.Errorf("mark sold: %w", err)
		}

	case PaymentFailed:
		if o.Status != orders.OrderPending {
			return nil, transitionErr(o, ev)
		}
		o.Status = orders.OrderCancelled
		o.PaymentStatus = orders.PaymentFailed
		if err := m.items.Release(ctx, o.ItemID); err != nil {
			return nil, fmt.Errorf("release: %w", err)
		}

	case BuyerCancelled:
		if !orders.CanTransition(o.Status, orders.OrderCancelled) {
			return nil, transitionErr(o, ev)
		}
		o.Status = orders.OrderCancelled
		if err := m.items.Release(ctx, o.ItemID); err != nil {
			return nil, fmt.Errorf("release: %w", err)
		}

	case Shipped:
		if o.Status != orders.OrderConfirmed {
			return nil, transitionErr(o, ev)
		}
		if e.TrackingNumber == "" || e.Carrier == "" {
			return nil, fmt.Errorf("shipped: tracking number and carrier required: %w", orders.ErrInvalidTransition)
		}
		o.Status = orders.OrderShipped
		o.Shipping.TrackingNumber = e.TrackingNumber
		o.Shipping.Carrier = e.Carrier
		t := now
		o.Shipping.ShippedAt = &t

	case Delivered:
		if o.Status != orders.OrderShipped {
			return nil, transitionErr(o, ev)
		}
		o.Status = orders.OrderDelivered
		t := now
		o.Shipping.DeliveredAt = &t
		deadline := now.Add(m.cfg.DisputeWindow)
		o.DisputeDeadline = &deadline

	default:
		return nil, fmt.Errorf("unknown event %T: %w", ev, orders.ErrInvalidTransition)
	}

	o.UpdatedAt = now
	if err := m.repo.UpdateOrder(ctx, o); err != nil {
		return nil, err
	}
	m.emitStatus(ctx, o, ev)
	return o, nil
}

func transitionErr(o *orders.Order, ev Event) error {
	return fmt.Errorf("%s not allowed from %s: %w", ev.eventName(), o.Status, orders.ErrInvalidTransition)
}

func (m *Manager) emitStatus(ctx context.Context, o *orders.Order, ev Event) {
	topic, typ := "", ""
	reason := ""
	switch ev.(type) {
	case PaymentCaptured:
		topic, typ = orders.TopicOrderConfirmed, orders.EventOrderConfirmed
	case PaymentFailed:
		topic, typ = orders.TopicOrderCancelled, orders.EventOrderCancelled
		reason = "PAYMENT_FAILED"
	case BuyerCancelled:
		topic, typ = orders.TopicOrderCancelled, orders.EventOrderCancelled
		reason = "BUYER_CANCELLED"
	case Shipped:
		topic, typ = orders.TopicOrderShipped, orders.EventOrderShipped
	case Delivered:
		topic, typ = orders.TopicOrderDelivered, orders.EventOrderDelivered
	default:
		return // PaymentAuthorized has no outward event
	}
	m.emit(ctx, topic, o.ID, typ, orders.OrderStatusPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Reason:      reason,
	})
	if _, ok := ev.(PaymentCaptured); ok {
		m.emit(ctx, orders.TopicItemSold, o.ItemID, orders.EventItemSold, orders.ItemSoldPayload{
			ItemID:  o.ItemID,
			OrderID: o.ID,
		})
	}
}

func (m *Manager) emit(ctx context.Context, topic, correlationID, eventType string, payload any) {
	if m.cfg.Events == nil {
		return
	}
	m.cfg.Events.Emit(ctx, topic, orders.PartitionKey(correlationID), orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    m.cfg.Now().UTC(),
		Producer:      m.cfg.Service,
		CorrelationID: correlationID,
		Payload:       kafka.MustMarshal(payload),
	})
}

func newOrderNumber() string {
	u := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "VL-" + strings.ToUpper(u[:8])
}
