package orders

import "time"

// Item is a one-of-a-kind sellable unit. There is no quantity: each item is a
// single physical piece, so availability is a status, not a stock count.
type Item struct {
	ID            string
	StoreID       string
	Title         string
	PriceCents    int
	Status        ItemStatus
	ReservedBy    string     // buyer holding the reservation, only when RESERVED
	ReservedUntil *time.Time // reservation expiry, only when RESERVED
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Reserved reports whether the item carries a live (unexpired) reservation at t.
func (it *Item) Reserved(t time.Time) bool {
	return it.Status == ItemReserved && it.ReservedUntil != nil && t.Before(*it.ReservedUntil)
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Shipping struct {
	Address        Address
	TrackingNumber string
	Carrier        string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

type Order struct {
	ID          string
	OrderNumber string // human-facing, e.g. VL-9F3A21C4
	BuyerID     string
	ItemID      string
	StoreID     string

	Status        OrderStatus
	PaymentStatus PaymentStatus

	// Money is integer cents throughout. SubtotalCents is the item price
	// snapshotted at order creation and never recomputed afterwards.
	SubtotalCents    int
	ShippingCents    int
	TaxCents         int
	TotalCents       int
	PlatformFeeCents int

	Shipping        Shipping
	DisputeDeadline *time.Time // set on the transition into DELIVERED

	CreatedAt time.Time
	UpdatedAt time.Time
}

type DisputeMessage struct {
	ID        string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Dispute is order-scoped: at most one per order, creatable only inside the
// order's dispute window.
type Dispute struct {
	ID         string
	OrderID    string
	BuyerID    string
	Status     DisputeStatus
	Reason     string
	Resolution string
	Messages   []DisputeMessage
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Open reports whether the dispute still blocks payout.
func (d *Dispute) Open() bool {
	return d.Status != DisputeResolved && d.Status != DisputeClosed
}
