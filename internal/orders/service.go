package orders

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order, replaceItems bool) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// ProductLookup returns nil, nil for an unknown product.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// UserLookup returns nil, nil for an unknown user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type Notifier interface {
	NotifyShipped(ctx context.Context, event domain.OrderShippedEvent) error
}

type Service struct {
	store         Store
	products      ProductLookup
	users         UserLookup
	notifier      Notifier
	publicBaseURL string
	logger        *slog.Logger

	created       metric.Int64Counter
	notifications metric.Int64Counter
}

func NewService(store Store, products ProductLookup, users UserLookup, notifier Notifier, publicBaseURL string, logger *slog.Logger) (*Service, error) {
	meter := otel.Meter("orders")

	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Number of orders created"))
	if err != nil {
		return nil, fmt.Errorf("create orders.created counter: %w", err)
	}

	notifications, err := meter.Int64Counter("orders.shipment_notifications",
		metric.WithDescription("Shipment notifications dispatched, by result"))
	if err != nil {
		return nil, fmt.Errorf("create orders.shipment_notifications counter: %w", err)
	}

	return &Service{
		store:         store,
		products:      products,
		users:         users,
		notifier:      notifier,
		publicBaseURL: publicBaseURL,
		logger:        logger,
		created:       created,
		notifications: notifications,
	}, nil
}

func (s *Service) Create(ctx context.Context, owner domain.Actor, items []domain.OrderItem) (*domain.Order, error) {
	total, err := s.priceItems(ctx, items)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		UserID:     owner.UserID,
		UserName:   owner.Name,
		Items:      items,
		TotalPrice: total,
		Status:     domain.OrderStatusPending,
	}
	if order.Items == nil {
		order.Items = []domain.OrderItem{}
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.created.Add(ctx, 1)
	return order, nil
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	return s.visibleOrder(ctx, actor, id)
}

func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, patch domain.OrderPatch) (*domain.Order, error) {
	order, err := s.visibleOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	// Presence of either field is enough; the submitted value is irrelevant.
	if !actor.IsStaff && (patch.Status != nil || patch.UserID != nil) {
		return nil, domain.ErrForbidden
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, domain.NewValidationError("status", fmt.Sprintf("%q is not a valid choice", *patch.Status))
		}
		order.Status = *patch.Status
	}

	if patch.UserID != nil {
		owner, err := s.users.GetByID(ctx, *patch.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user %s: %w", *patch.UserID, err)
		}
		if owner == nil {
			return nil, domain.NewValidationError("user", fmt.Sprintf("invalid pk %q - object does not exist", *patch.UserID))
		}
		order.UserID = owner.ID
		order.UserName = owner.Name
	}

	// Every save reprices at current product prices, whether or not the
	// item set changed.
	replaceItems := patch.Items != nil
	if replaceItems {
		order.Items = *patch.Items
		if order.Items == nil {
			order.Items = []domain.OrderItem{}
		}
	}
	total, err := s.priceItems(ctx, order.Items)
	if err != nil {
		return nil, err
	}
	order.TotalPrice = total

	if err := s.store.Update(ctx, order, replaceItems); err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}

	if order.Status == domain.OrderStatusShipped {
		s.emitOrderShipped(ctx, order)
	}

	return order, nil
}

func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := s.visibleOrder(ctx, actor, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	return nil
}

// List is scoped to the actor's own orders for every actor, staff included.
func (s *Service) List(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	orders, err := s.store.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *Service) visibleOrder(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if order.UserID != actor.UserID && !actor.IsStaff {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

// Bounds of the order_items.quantity INTEGER and orders.total_price
// NUMERIC(10,2) columns.
const maxQuantity = math.MaxInt32

var maxTotal = decimal.New(1, 8)

// priceItems validates the item set and sums each product's current price
// times the quantity.
func (s *Service) priceItems(ctx context.Context, items []domain.OrderItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 {
			return decimal.Zero, domain.NewValidationError("items", "ensure quantity is greater than or equal to 1")
		}
		if item.Quantity > maxQuantity {
			return decimal.Zero, domain.NewValidationError("items", fmt.Sprintf("ensure quantity is less than or equal to %d", maxQuantity))
		}

		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("get product %s: %w", item.ProductID, err)
		}
		if product == nil {
			return decimal.Zero, fmt.Errorf("product %s: %w", item.ProductID, domain.ErrNotFound)
		}

		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	total = total.Round(2)
	if total.GreaterThanOrEqual(maxTotal) {
		return decimal.Zero, domain.NewValidationError("items", "ensure the order total has no more than 10 digits")
	}
	return total, nil
}

// emitOrderShipped dispatches the shipment notification for a save that left
// the order shipped. Failures are logged and never reach the caller.
func (s *Service) emitOrderShipped(ctx context.Context, order *domain.Order) {
	ctx = context.WithoutCancel(ctx)

	owner, err := s.users.GetByID(ctx, order.UserID)
	if err != nil || owner == nil {
		s.logger.Error("failed to resolve order owner for shipment notification", "error", err, "order_id", order.ID, "user_id", order.UserID)
		s.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		return
	}

	event := domain.OrderShippedEvent{
		OrderID:        order.ID,
		RecipientEmail: owner.Email,
		ReferenceLink:  fmt.Sprintf("%s/orders/%s/", s.publicBaseURL, order.ID),
		Timestamp:      time.Now().UTC(),
	}

	if err := s.notifier.NotifyShipped(ctx, event); err != nil {
		s.logger.Error("failed to dispatch shipment notification", "error", err, "order_id", order.ID)
		s.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		return
	}

	s.logger.Info("shipment notification dispatched", "order_id", order.ID, "recipient", owner.Email)
	s.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "sent")))
}
