package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

type memStore struct {
	orders map[string]domain.Order
	seq    int
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]domain.Order{}}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem{}, o.Items...)
	return o
}

func (s *memStore) Create(_ context.Context, order *domain.Order) error {
	s.seq++
	order.ID = "order-" + strconv.Itoa(s.seq)
	order.CreatedAt = time.Now().UTC().Add(time.Duration(s.seq) * time.Second)
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *memStore) Update(_ context.Context, order *domain.Order, replaceItems bool) error {
	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	next := cloneOrder(*order)
	if !replaceItems {
		next.Items = current.Items
	}
	s.orders[order.ID] = next
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	if _, ok := s.orders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type productMap map[string]*domain.Product

func (m productMap) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	return m[id], nil
}

type userMap map[string]*domain.User

func (m userMap) GetByID(_ context.Context, id string) (*domain.User, error) {
	return m[id], nil
}

type recordingNotifier struct {
	events []domain.OrderShippedEvent
	err    error
}

func (n *recordingNotifier) NotifyShipped(_ context.Context, event domain.OrderShippedEvent) error {
	n.events = append(n.events, event)
	return n.err
}

type fixture struct {
	store    *memStore
	products productMap
	notifier *recordingNotifier
	service  *Service

	owner domain.Actor
	other domain.Actor
	staff domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: newMemStore(),
		products: productMap{
			"p1": {ID: "p1", Name: "Product1", Price: decimal.NewFromInt(100)},
			"p2": {ID: "p2", Name: "Product2", Price: decimal.RequireFromString("19.99")},
		},
		notifier: &recordingNotifier{},
		owner:    domain.Actor{UserID: "u-owner", Email: "owner@user.com", Name: "Owner"},
		other:    domain.Actor{UserID: "u-other", Email: "other@user.com", Name: "Other"},
		staff:    domain.Actor{UserID: "u-staff", Email: "staff@user.com", Name: "Staff", IsStaff: true},
	}

	users := userMap{
		"u-owner": {ID: "u-owner", Email: "owner@user.com", Name: "Owner"},
		"u-other": {ID: "u-other", Email: "other@user.com", Name: "Other"},
		"u-staff": {ID: "u-staff", Email: "staff@user.com", Name: "Staff", IsStaff: true},
	}

	svc, err := NewService(f.store, f.products, users, f.notifier, "http://127.0.0.1:8080", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *fixture) createOrder(t *testing.T, items ...domain.OrderItem) *domain.Order {
	t.Helper()
	order, err := f.service.Create(context.Background(), f.owner, items)
	require.NoError(t, err)
	return order
}

func statusPtr(s domain.OrderStatus) *domain.OrderStatus { return &s }

func itemsPtr(items ...domain.OrderItem) *[]domain.OrderItem { return &items }

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("computes total over repeated products", func(t *testing.T) {
		f := newFixture(t)

		order := f.createOrder(t,
			domain.OrderItem{ProductID: "p1", Quantity: 2},
			domain.OrderItem{ProductID: "p1", Quantity: 1},
		)

		assert.True(t, decimal.NewFromInt(300).Equal(order.TotalPrice), "got %s", order.TotalPrice)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
		assert.Equal(t, "Owner", order.UserName)
		assert.Len(t, order.Items, 2)
		assert.Empty(t, f.notifier.events)

		stored, err := f.store.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.True(t, stored.TotalPrice.Equal(order.TotalPrice))
	})

	t.Run("keeps two decimal places", func(t *testing.T) {
		f := newFixture(t)

		order := f.createOrder(t, domain.OrderItem{ProductID: "p2", Quantity: 3})

		assert.Equal(t, "59.97", order.TotalPrice.StringFixed(2))
	})

	t.Run("allows an empty item list", func(t *testing.T) {
		f := newFixture(t)

		order := f.createOrder(t)

		assert.True(t, order.TotalPrice.IsZero())
		assert.NotNil(t, order.Items)
		assert.Empty(t, order.Items)
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Create(ctx, f.owner, []domain.OrderItem{{ProductID: "missing", Quantity: 1}})

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, f.store.orders)
	})

	t.Run("quantity below one is a validation error", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Create(ctx, f.owner, []domain.OrderItem{{ProductID: "p1", Quantity: 0}})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "items", verr.Field)
		assert.Empty(t, f.store.orders)
	})
}

func TestService_Visibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

	t.Run("non-owner get is not found", func(t *testing.T) {
		_, err := f.service.Get(ctx, f.other, order.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("non-owner update is not found even when touching status", func(t *testing.T) {
		_, err := f.service.Update(ctx, f.other, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusShipped)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NotErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("non-owner delete is not found", func(t *testing.T) {
		err := f.service.Delete(ctx, f.other, order.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, f.store.orders, order.ID)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := f.service.Get(ctx, f.owner, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("owner and staff can read", func(t *testing.T) {
		got, err := f.service.Get(ctx, f.owner, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)

		got, err = f.service.Get(ctx, f.staff, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
	})
}

func TestService_UpdateAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("owner may not set status even to its current value", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		_, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusPending)})

		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("owner may not set user even to themselves", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})
		self := f.owner.UserID

		_, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{UserID: &self})

		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("a forbidden field aborts the whole patch", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 2})

		_, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{
			Items:  itemsPtr(domain.OrderItem{ProductID: "p2", Quantity: 3}),
			Status: statusPtr(domain.OrderStatusShipped),
		})
		require.ErrorIs(t, err, domain.ErrForbidden)

		stored := f.store.orders[order.ID]
		assert.Equal(t, []domain.OrderItem{{ProductID: "p1", Quantity: 2}}, stored.Items)
		assert.Equal(t, domain.OrderStatusPending, stored.Status)
		assert.Empty(t, f.notifier.events)
	})

	t.Run("staff may reassign the owner", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})
		newOwner := f.other.UserID

		updated, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{UserID: &newOwner})
		require.NoError(t, err)

		assert.Equal(t, "u-other", updated.UserID)
		assert.Equal(t, "Other", updated.UserName)
	})

	t.Run("staff reassigning to an unknown user is a validation error", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})
		ghost := "u-ghost"

		_, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{UserID: &ghost})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "user", verr.Field)
	})

	t.Run("staff setting an unknown status is a validation error", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		_, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr("lost")})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "status", verr.Field)
		assert.Equal(t, domain.OrderStatusPending, f.store.orders[order.ID].Status)
	})

	t.Run("staff may move status backwards", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		_, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusPreparing)})
		require.NoError(t, err)
		updated, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusPending)})
		require.NoError(t, err)

		assert.Equal(t, domain.OrderStatusPending, updated.Status)
	})
}

func TestService_UpdateItems(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the whole item set and recomputes", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 2})

		updated, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{
			Items: itemsPtr(domain.OrderItem{ProductID: "p2", Quantity: 3}),
		})
		require.NoError(t, err)

		assert.Equal(t, []domain.OrderItem{{ProductID: "p2", Quantity: 3}}, updated.Items)
		assert.Equal(t, "59.97", updated.TotalPrice.StringFixed(2))
		assert.Equal(t, []domain.OrderItem{{ProductID: "p2", Quantity: 3}}, f.store.orders[order.ID].Items)
	})

	t.Run("an explicit empty list empties the order", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 2})

		updated, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{Items: itemsPtr()})
		require.NoError(t, err)

		assert.Empty(t, updated.Items)
		assert.True(t, updated.TotalPrice.IsZero())
	})

	t.Run("uses the product's current price", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 2})
		f.products["p1"].Price = decimal.NewFromInt(150)

		updated, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{
			Items: itemsPtr(domain.OrderItem{ProductID: "p1", Quantity: 2}),
		})
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(300).Equal(updated.TotalPrice))
	})

	t.Run("a status-only save reprices the stored items", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 2})
		f.products["p1"].Price = decimal.NewFromInt(150)

		updated, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusPreparing)})
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(300).Equal(updated.TotalPrice), "got %s", updated.TotalPrice)
		assert.Equal(t, []domain.OrderItem{{ProductID: "p1", Quantity: 2}}, updated.Items)
		assert.True(t, decimal.NewFromInt(300).Equal(f.store.orders[order.ID].TotalPrice))
	})

	t.Run("an owner change reprices the stored items", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p2", Quantity: 1})
		f.products["p2"].Price = decimal.RequireFromString("25.50")
		newOwner := f.other.UserID

		updated, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{UserID: &newOwner})
		require.NoError(t, err)

		assert.Equal(t, "25.50", updated.TotalPrice.StringFixed(2))
	})

	t.Run("quantity beyond the column range is a validation error", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		_, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{
			Items: itemsPtr(domain.OrderItem{ProductID: "p2", Quantity: 2147483648}),
		})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "items", verr.Field)
		assert.Equal(t, []domain.OrderItem{{ProductID: "p1", Quantity: 1}}, f.store.orders[order.ID].Items)
	})

	t.Run("a total with more than ten digits is a validation error", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Create(ctx, f.owner, []domain.OrderItem{{ProductID: "p1", Quantity: 1000000}})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "items", verr.Field)
		assert.Empty(t, f.store.orders)
	})

	t.Run("the largest quantity and total still fit", func(t *testing.T) {
		f := newFixture(t)

		order, err := f.service.Create(ctx, f.owner, []domain.OrderItem{{ProductID: "p1", Quantity: 999999}})
		require.NoError(t, err)

		assert.Equal(t, "99999900.00", order.TotalPrice.StringFixed(2))
	})

	t.Run("unknown product leaves the order untouched", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 2})

		_, err := f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{
			Items: itemsPtr(domain.OrderItem{ProductID: "missing", Quantity: 1}),
		})

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, []domain.OrderItem{{ProductID: "p1", Quantity: 2}}, f.store.orders[order.ID].Items)
	})
}

func TestService_ShipmentNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("every write to shipped notifies the owner once", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t,
			domain.OrderItem{ProductID: "p1", Quantity: 2},
			domain.OrderItem{ProductID: "p1", Quantity: 1},
		)
		require.True(t, decimal.NewFromInt(300).Equal(order.TotalPrice))

		_, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusShipped)})
		require.NoError(t, err)
		require.Len(t, f.notifier.events, 1)

		event := f.notifier.events[0]
		assert.Equal(t, order.ID, event.OrderID)
		assert.Equal(t, "owner@user.com", event.RecipientEmail)
		assert.Equal(t, "http://127.0.0.1:8080/orders/"+order.ID+"/", event.ReferenceLink)

		_, err = f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusShipped)})
		require.NoError(t, err)
		assert.Len(t, f.notifier.events, 2)
	})

	t.Run("any save of a shipped order notifies again", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})
		_, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusShipped)})
		require.NoError(t, err)

		_, err = f.service.Update(ctx, f.owner, order.ID, domain.OrderPatch{
			Items: itemsPtr(domain.OrderItem{ProductID: "p2", Quantity: 1}),
		})
		require.NoError(t, err)

		assert.Len(t, f.notifier.events, 2)
	})

	t.Run("other statuses do not notify", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		_, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusPreparing)})
		require.NoError(t, err)

		assert.Empty(t, f.notifier.events)
	})

	t.Run("notifier failure does not fail the update", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.err = errors.New("smtp down")
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		updated, err := f.service.Update(ctx, f.staff, order.ID, domain.OrderPatch{Status: statusPtr(domain.OrderStatusShipped)})

		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusShipped, updated.Status)
		assert.Equal(t, domain.OrderStatusShipped, f.store.orders[order.ID].Status)
		assert.Len(t, f.notifier.events, 1)
	})
}

func TestService_DeleteAndList(t *testing.T) {
	ctx := context.Background()

	t.Run("owner deletes", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		require.NoError(t, f.service.Delete(ctx, f.owner, order.ID))
		assert.NotContains(t, f.store.orders, order.ID)
	})

	t.Run("staff deletes another user's order", func(t *testing.T) {
		f := newFixture(t)
		order := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})

		require.NoError(t, f.service.Delete(ctx, f.staff, order.ID))
		assert.NotContains(t, f.store.orders, order.ID)
	})

	t.Run("list is scoped to the actor for staff too", func(t *testing.T) {
		f := newFixture(t)
		first := f.createOrder(t, domain.OrderItem{ProductID: "p1", Quantity: 1})
		second := f.createOrder(t)
		_, err := f.service.Create(ctx, f.other, nil)
		require.NoError(t, err)

		mine, err := f.service.List(ctx, f.owner)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, second.ID, mine[0].ID)
		assert.Equal(t, first.ID, mine[1].ID)

		staffOrders, err := f.service.List(ctx, f.staff)
		require.NoError(t, err)
		assert.Empty(t, staffOrders)
	})
}
