// Package inventory owns item availability: at most one buyer holds a live
// reservation on an item at any instant, and a reservation that outlives its
// expiry is indistinguishable from no reservation at all.
package inventory

import (
	"context"
	"time"

	"github.com/veloura/marketplace/internal/orders"
)

// DefaultReservationTTL bounds how long a checkout can sit on an item before
// it goes back on the shelf.
const DefaultReservationTTL = 10 * time.Minute

// Store is the availability state machine for items. Reserve is the single
// atomicity boundary of the whole system: it must behave as one conditional
// check-and-set, never a read followed by a write.
//
// Reserve outcomes map to the sentinels in the orders package:
// ErrNotFound, ErrAlreadySold, ErrReservedByOther, ErrItemWithdrawn.
// Re-reserving by the current holder succeeds and refreshes the expiry.
// An expired reservation is overwritten as if the item were AVAILABLE.
type Store interface {
	Add(ctx context.Context, it *orders.Item) error
	Get(ctx context.Context, itemID string) (*orders.Item, error)

	Reserve(ctx context.Context, itemID, buyerID string, ttl time.Duration) error

	// Release puts a reserved item back to AVAILABLE. Not an error if the
	// item holds no reservation.
	Release(ctx context.Context, itemID string) error

	// MarkSold finalizes the sale. Ownership is the caller's problem: the
	// lifecycle manager only calls this after payment capture against its
	// own recorded reservation.
	MarkSold(ctx context.Context, itemID string) error

	// Withdraw takes an unsold listing off the market permanently.
	Withdraw(ctx context.Context, itemID string) error

	// SweepExpired releases every stale reservation and returns the ids it
	// cleared. Reserve already self-heals lazily; the sweep frees inventory
	// even when no competing buyer shows up.
	SweepExpired(ctx context.Context) ([]string, error)
}
