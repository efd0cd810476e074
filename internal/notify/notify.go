package notify

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

// DeliveryError reports a notification that could not be handed off.
type DeliveryError struct {
	OrderID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver shipment notification for order %s: %v", e.OrderID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// EventNotifier hands shipment events to the message broker; the worker
// delivers them.
type EventNotifier struct {
	publisher Publisher
}

func NewEventNotifier(publisher Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

func (n *EventNotifier) NotifyShipped(ctx context.Context, event domain.OrderShippedEvent) error {
	if err := n.publisher.Publish(ctx, event.OrderID, event); err != nil {
		return &DeliveryError{OrderID: event.OrderID, Err: err}
	}
	return nil
}

func ShipmentSubject(event domain.OrderShippedEvent) string {
	return fmt.Sprintf("Order #%s has been shipped", event.OrderID)
}

func ShipmentBody(event domain.OrderShippedEvent) string {
	return fmt.Sprintf("Your order #%s has been shipped. You can view the details here: %s", event.OrderID, event.ReferenceLink)
}
