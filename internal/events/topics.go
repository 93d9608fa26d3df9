package events

const (
	TopicWalletEvents = "wallet.events"
	TopicStockEvents  = "stock.events"
	TopicOrderEvents  = "order.events"
)

// PartitionKey keeps all events of one order (or account) on one partition
// so consumers see them in order.
func PartitionKey(id string) []byte { return []byte(id) }
