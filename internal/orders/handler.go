package orders

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type itemRequest struct {
	Product  string `json:"product"`
	Quantity *int   `json:"quantity"`
}

type createOrderRequest struct {
	Items []itemRequest `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	items, err := toItems(req.Items)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	order, err := h.service.Create(r.Context(), actor, items)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create order", "user_id", actor.UserID)
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "total_price", order.TotalPrice.String())
	httpx.WriteJSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	id := r.PathValue("id")
	order, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get order", "id", id)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

// HandleUpdate serves both PUT and PATCH; absent fields are left untouched.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	patch, err := decodePatch(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	id := r.PathValue("id")
	order, err := h.service.Update(r.Context(), actor, id, patch)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update order", "id", id)
		return
	}

	h.logger.Info("order updated", "order_id", order.ID, "status", order.Status)
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	id := r.PathValue("id")
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete order", "id", id)
		return
	}

	h.logger.Info("order deleted", "order_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
		return
	}

	orders, err := h.service.List(r.Context(), actor)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list orders", "user_id", actor.UserID)
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

// decodePatch records which fields were present in the body, since presence
// of status or user is itself subject to authorization.
func decodePatch(r *http.Request) (domain.OrderPatch, error) {
	var patch domain.OrderPatch

	var raw map[string]json.RawMessage
	if err := httpx.DecodeJSON(r, &raw); err != nil {
		return patch, err
	}

	for _, field := range []string{"items", "status", "user"} {
		if v, ok := raw[field]; ok && string(bytes.TrimSpace(v)) == "null" {
			return patch, domain.NewValidationError(field, "this field may not be null")
		}
	}

	if v, ok := raw["items"]; ok {
		var reqItems []itemRequest
		if err := json.Unmarshal(v, &reqItems); err != nil {
			return patch, domain.NewValidationError("items", "expected a list of items")
		}
		items, err := toItems(reqItems)
		if err != nil {
			return patch, err
		}
		patch.Items = &items
	}

	if v, ok := raw["status"]; ok {
		var status domain.OrderStatus
		if err := json.Unmarshal(v, &status); err != nil {
			return patch, domain.NewValidationError("status", "expected a string")
		}
		patch.Status = &status
	}

	if v, ok := raw["user"]; ok {
		var userID string
		if err := json.Unmarshal(v, &userID); err != nil {
			return patch, domain.NewValidationError("user", "expected a user id")
		}
		patch.UserID = &userID
	}

	return patch, nil
}

func toItems(reqItems []itemRequest) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(reqItems))
	for _, it := range reqItems {
		if it.Product == "" {
			return nil, domain.NewValidationError("items", "product is required")
		}
		quantity := 1
		if it.Quantity != nil {
			quantity = *it.Quantity
		}
		items = append(items, domain.OrderItem{ProductID: it.Product, Quantity: quantity})
	}
	return items, nil
}
