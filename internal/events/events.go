package events

import (
	"github.com/bookstore/fulfillment/internal/db"
)

const (
	// ExchangeName is the durable direct exchange shared by the placing
	// service and the reconciler.
	ExchangeName = "order_events"
	ExchangeType = "direct"

	// DeadLetterExchange receives messages the reconciler gives up on.
	DeadLetterExchange = "order_events.dlx"

	// QueueName is the reconciler's durable queue.
	QueueName = "inventory_update_queue"

	// DeadLetterQueue holds poison messages for operator inspection.
	DeadLetterQueue = "inventory_update_dlq"

	// WireVersion is stamped on every published event. Older producers
	// omitted the field; decoding tolerates its absence.
	WireVersion = 1
)

// OrderEvent is the wire message announcing an order status change. It
// carries the line items so the consumer can compute stock effects without
// re-querying order lines.
type OrderEvent struct {
	Version int              `json:"version,omitempty"`
	OrderID uint             `json:"order_id"`
	UserID  uint             `json:"user_id"`
	Items   []OrderEventItem `json:"items"`
	Status  string           `json:"status"`
}

// OrderEventItem is one (book, quantity) pair of an order event.
type OrderEventItem struct {
	BookID   uint `json:"book_id"`
	Quantity int  `json:"quantity"`
}

// RoutingKey derives the broker routing key for a status, always of the form
// order.<status>.
func RoutingKey(status db.OrderStatus) string {
	return "order." + string(status)
}

// Kind is the tagged variant of an order event, decoded once at the consumer
// boundary so dispatch is an exhaustive switch instead of string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindPaid
	KindCancelled
	KindRefunded
)

// KindFromRoutingKey maps a routing key to its event kind.
func KindFromRoutingKey(key string) Kind {
	switch key {
	case "order.paid":
		return KindPaid
	case "order.cancelled":
		return KindCancelled
	case "order.refunded":
		return KindRefunded
	}
	return KindUnknown
}

// String returns the kind label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindPaid:
		return "paid"
	case KindCancelled:
		return "cancelled"
	case KindRefunded:
		return "refunded"
	}
	return "unknown"
}
