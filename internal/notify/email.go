package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

const senderAddress = "ecommerce@email.com"

// EmailNotifier delivers shipment notifications straight to the email
// service.
type EmailNotifier struct {
	emailServiceURL string
	httpClient      *http.Client
}

func NewEmailNotifier(emailServiceURL string, client *http.Client) *EmailNotifier {
	return &EmailNotifier{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
	}
}

func (n *EmailNotifier) NotifyShipped(ctx context.Context, event domain.OrderShippedEvent) error {
	body := map[string]string{
		"from":    senderAddress,
		"to":      event.RecipientEmail,
		"subject": ShipmentSubject(event),
		"body":    ShipmentBody(event),
	}

	if err := n.send(ctx, body); err != nil {
		return &DeliveryError{OrderID: event.OrderID, Err: err}
	}
	return nil
}

func (n *EmailNotifier) send(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
