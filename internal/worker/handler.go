package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

type Notifier interface {
	NotifyShipped(ctx context.Context, event domain.OrderShippedEvent) error
}

// ShipmentHandler delivers OrderShipped events consumed from the broker.
type ShipmentHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewShipmentHandler(notifier Notifier, logger *slog.Logger) *ShipmentHandler {
	return &ShipmentHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// Handle sends the shipment email. Delivery is attempted once; a failure is
// returned to the consumer, which logs it and moves on.
func (h *ShipmentHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderShippedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order shipped event: %w", err)
	}

	if event.OrderID == "" || event.RecipientEmail == "" {
		return errors.New("order shipped event missing order id or recipient")
	}

	h.logger.Info("processing order shipped event", "order_id", event.OrderID, "recipient", event.RecipientEmail)

	if err := h.notifier.NotifyShipped(ctx, event); err != nil {
		h.logger.Error("failed to send shipment email", "error", err, "order_id", event.OrderID)
		return err
	}

	h.logger.Info("shipment email sent", "order_id", event.OrderID)
	return nil
}
