package orders

const (
	TopicOrderCreated      = "order.created"
	TopicPaymentConfirmed  = "order.payment.confirmed"
	TopicOrderCancelled    = "order.cancelled"
	TopicOrderStateChanged = "order.state.changed"
	TopicOrderDeleted      = "order.deleted"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
