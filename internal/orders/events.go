package orders

import (
	"encoding/json"
	"time"
)

const (
	EventItemReserved = "ItemReserved"
	EventItemReleased = "ItemReleased"
	EventItemSold     = "ItemSold"

	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCancelled = "OrderCancelled"
	EventOrderRefunded  = "OrderRefunded"

	EventPayoutEligible = "PayoutEligible"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or item id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event ----

type ItemReservedPayload struct {
	ItemID        string    `json:"item_id"`
	BuyerID       string    `json:"buyer_id"`
	ReservedUntil time.Time `json:"reserved_until"`
}

type ItemReleasedPayload struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"` // EXPIRED | ORDER_CANCELLED | PAYMENT_FAILED
}

type ItemSoldPayload struct {
	ItemID  string `json:"item_id"`
	OrderID string `json:"order_id"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	BuyerID     string `json:"buyer_id"`
	ItemID      string `json:"item_id"`
	StoreID     string `json:"store_id"`
	TotalCents  int    `json:"total_cents"`
}

type OrderStatusPayload struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

type PayoutEligiblePayload struct {
	OrderID     string    `json:"order_id"`
	StoreID     string    `json:"store_id"`
	PayoutCents int       `json:"payout_cents"`
	DeliveredAt time.Time `json:"delivered_at"`
}
