package lifecycle

// Transition events form a closed tagged set: one type per trigger, consumed
// by Manager.Transition, which validates the guard and applies the single
// resulting state. Illegal combinations are rejected with
// orders.ErrInvalidTransition instead of being an accident of call order.

type Event interface{ eventName() string }

// PaymentAuthorized records a hold on the buyer's card. The order stays
// PENDING; only capture confirms it.
type PaymentAuthorized struct{ Reference string }

// PaymentCaptured confirms the order and finalizes the sale of the item.
type PaymentCaptured struct{ Reference string }

// PaymentFailed cancels the order and releases the reservation.
type PaymentFailed struct{ Reason string }

// Shipped attaches tracking; only valid from CONFIRMED.
type Shipped struct {
	TrackingNumber string
	Carrier        string
}

// Delivered opens the dispute window.
type Delivered struct{}

// BuyerCancelled is an explicit cancel before shipment.
type BuyerCancelled struct{ Reason string }

func (PaymentAuthorized) eventName() string { return "PaymentAuthorized" }
func (PaymentCaptured) eventName() string   { return "PaymentCaptured" }
func (PaymentFailed) eventName() string     { return "PaymentFailed" }
func (Shipped) eventName() string           { return "Shipped" }
func (Delivered) eventName() string         { return "Delivered" }
func (BuyerCancelled) eventName() string    { return "BuyerCancelled" }
