package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusShipped:
		return true
	}
	return false
}

// OrderItem is a product line owned by exactly one order.
type OrderItem struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user"`
	Items      []OrderItem     `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// MarshalJSON renders total_price with exactly two decimal places.
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		TotalPrice string `json:"total_price"`
	}{order(o), o.TotalPrice.StringFixed(2)})
}

// OrderPatch carries the fields of a partial order update. A nil field was
// absent from the request.
type OrderPatch struct {
	Items  *[]OrderItem `json:"items"`
	Status *OrderStatus `json:"status"`
	UserID *string      `json:"user"`
}
