package orders

type ItemStatus string

const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemReserved  ItemStatus = "RESERVED"
	ItemSold      ItemStatus = "SOLD"
	ItemWithdrawn ItemStatus = "WITHDRAWN"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
	PaymentCaptured   PaymentStatus = "CAPTURED"
	PaymentFailed     PaymentStatus = "FAILED"
)

type DisputeStatus string

const (
	DisputeOpen           DisputeStatus = "OPEN"
	DisputeSellerResponse DisputeStatus = "SELLER_RESPONSE"
	DisputeUnderReview    DisputeStatus = "UNDER_REVIEW"
	DisputeResolved       DisputeStatus = "RESOLVED"
	DisputeClosed         DisputeStatus = "CLOSED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderConfirmed: true, OrderCancelled: true},
	OrderConfirmed: {OrderShipped: true, OrderCancelled: true},
	OrderShipped:   {OrderDelivered: true},
	OrderDelivered: {OrderRefunded: true},
	OrderCancelled: {},
	OrderRefunded:  {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// TerminalOrder reports whether no further status transition is possible.
func TerminalOrder(s OrderStatus) bool {
	return len(validNext[s]) == 0
}
