package orders

const (
	TopicItemReserved = "item.reserved"
	TopicItemReleased = "item.released"
	TopicItemSold     = "item.sold"

	TopicOrderCreated   = "order.created"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderShipped   = "order.shipped"
	TopicOrderDelivered = "order.delivered"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderRefunded  = "order.refunded"

	TopicPayoutEligible = "payout.eligible"
)

// Partition key: order id for order events, item id for item events, so each
// entity's events stay ordered within a partition.
func PartitionKey(id string) []byte { return []byte(id) }
