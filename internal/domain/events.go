package domain

import "time"

// OrderShippedEventType is the event-type header value of OrderShippedEvent
// messages.
const OrderShippedEventType = "OrderShipped"

// OrderShippedEvent is emitted once per save that leaves an order shipped.
type OrderShippedEvent struct {
	OrderID        string    `json:"order_id"`
	RecipientEmail string    `json:"recipient_email"`
	ReferenceLink  string    `json:"reference_link"`
	Timestamp      time.Time `json:"timestamp"`
}
