package orders

// TopicLifecycle carries OrderCreated, OrderUpdated and OrderDeleted.
const TopicLifecycle = "orders.lifecycle"

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
