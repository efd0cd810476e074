package email

import (
	"log/slog"
	"math/rand"
	"net/http"
	"net/mail"
	"time"

	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
)

// Handler stands in for an SMTP relay: it validates the message, simulates
// delivery latency and logs it.
type Handler struct {
	logger *slog.Logger
	delay  func() time.Duration
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		delay: func() time.Duration {
			return time.Duration(50+rand.Intn(151)) * time.Millisecond
		},
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (req sendRequest) validate() error {
	if _, err := mail.ParseAddress(req.To); err != nil {
		return domain.NewValidationError("to", "enter a valid email address")
	}
	if req.From != "" {
		if _, err := mail.ParseAddress(req.From); err != nil {
			return domain.NewValidationError("from", "enter a valid email address")
		}
	}
	if req.Subject == "" {
		return domain.NewValidationError("subject", "this field may not be blank")
	}
	return nil
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}
	if err := req.validate(); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	select {
	case <-time.After(h.delay()):
	case <-r.Context().Done():
		h.logger.Warn("email send cancelled", "to", req.To, "subject", req.Subject)
		return
	}

	h.logger.Info("email sent", "from", req.From, "to", req.To, "subject", req.Subject)

	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}
