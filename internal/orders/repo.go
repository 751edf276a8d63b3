package orders

import (
	"context"
	"time"
)

// Repo is the persistence boundary for orders and disputes. Writes only ever
// come from the lifecycle manager, which serializes them per order; the repo
// itself does not need to arbitrate concurrent writers.
type Repo interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error

	// ActiveOrderForItem returns the non-cancelled order referencing the
	// item, or ErrNotFound. At most one can exist.
	ActiveOrderForItem(ctx context.Context, itemID string) (*Order, error)

	// DeliveredBefore lists orders sitting in DELIVERED whose delivery is
	// older than the cutoff. Used by the payout job.
	DeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]Order, error)

	CreateDispute(ctx context.Context, d *Dispute) error
	GetDispute(ctx context.Context, id string) (*Dispute, error)
	DisputeForOrder(ctx context.Context, orderID string) (*Dispute, error)
	UpdateDispute(ctx context.Context, d *Dispute) error
	AddDisputeMessage(ctx context.Context, disputeID string, m DisputeMessage) error
}
