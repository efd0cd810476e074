//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/catalog"
	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/messaging"
	"github.com/joao-fontenele/storefront-api/internal/notify"
	"github.com/joao-fontenele/storefront-api/internal/orders"
	"github.com/joao-fontenele/storefront-api/internal/users"
	"github.com/joao-fontenele/storefront-api/internal/worker"
)

const testSecret = "integration-secret"

type emailCapture struct {
	mu     sync.Mutex
	emails []map[string]string
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, req)
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (e *emailCapture) getEmails() []map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]map[string]string, len(e.emails))
	copy(result, e.emails)
	return result
}

func newEmailServer(t *testing.T) (*emailCapture, *httptest.Server) {
	t.Helper()
	emailCap := &emailCapture{}
	emailMux := http.NewServeMux()
	emailMux.HandleFunc("POST /send", emailCap.handler)
	return emailCap, httptest.NewServer(emailMux)
}

func actorOf(u *domain.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Email: u.Email, Name: u.Name, IsStaff: u.IsStaff}
}

// storefront holds the services of one test database.
type storefront struct {
	db       *sql.DB
	tokens   *auth.TokenIssuer
	users    *users.Service
	catalog  *catalog.Service
	catalogs *catalog.Repository
	staff    *domain.User
	customer *domain.User
	logger   *slog.Logger
}

func newStorefront(ctx context.Context, t *testing.T, connStr string) *storefront {
	t.Helper()

	db, err := OpenDB(connStr)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tokens := auth.NewTokenIssuer(testSecret, time.Hour)
	usersService := users.NewService(users.NewUserRepository(db), tokens)

	staff, err := usersService.EnsureStaff(ctx, "admin@shop.com", "Admin", "admin-password")
	if err != nil {
		t.Fatalf("failed to create staff: %v", err)
	}

	customer, err := usersService.Register(ctx, users.Registration{
		Email:     "customer@user.com",
		Name:      "Customer",
		Password:  "secret123",
		Password2: "secret123",
	})
	if err != nil {
		t.Fatalf("failed to register customer: %v", err)
	}

	repo := catalog.NewRepository(db)

	return &storefront{
		db:       db,
		tokens:   tokens,
		users:    usersService,
		catalog:  catalog.NewService(repo),
		catalogs: repo,
		staff:    staff,
		customer: customer,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *storefront) createProduct(ctx context.Context, t *testing.T, name string, price decimal.Decimal, categoryID *string) *domain.Product {
	t.Helper()

	brand := &domain.Brand{Name: name + " Brand"}
	if err := s.catalog.CreateBrand(ctx, actorOf(s.staff), brand); err != nil {
		t.Fatalf("failed to create brand: %v", err)
	}

	product := &domain.Product{
		Name:       name,
		Price:      price,
		InStock:    true,
		BrandID:    brand.ID,
		CategoryID: categoryID,
	}
	if err := s.catalog.CreateProduct(ctx, actorOf(s.staff), product); err != nil {
		t.Fatalf("failed to create product: %v", err)
	}
	return product
}

func (s *storefront) ordersServer(t *testing.T, notifier orders.Notifier) *httptest.Server {
	t.Helper()

	service, err := orders.NewService(
		orders.NewOrderRepository(s.db),
		s.catalogs,
		users.NewUserRepository(s.db),
		notifier,
		"http://127.0.0.1:8080",
		s.logger,
	)
	if err != nil {
		t.Fatalf("failed to create orders service: %v", err)
	}

	handler := orders.NewHandler(service, s.logger)
	mw := auth.NewMiddleware(s.tokens, s.logger).WithAccounts(users.NewUserRepository(s.db))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", mw.Require(handler.HandleList))
	mux.HandleFunc("POST /orders", mw.Require(handler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", mw.Require(handler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}", mw.Require(handler.HandleUpdate))
	mux.HandleFunc("DELETE /orders/{id}", mw.Require(handler.HandleDelete))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (s *storefront) login(ctx context.Context, t *testing.T, email, password string) string {
	t.Helper()
	token, err := s.users.Login(ctx, email, password)
	if err != nil {
		t.Fatalf("failed to login %s: %v", email, err)
	}
	return token
}

func doJSON(t *testing.T, method, url, token, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, data
}

func TestOrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	sf := newStorefront(ctx, t, pg.ConnStr)
	product := sf.createProduct(ctx, t, "Keyboard", decimal.NewFromInt(100), nil)

	emailCap, emailServer := newEmailServer(t)
	defer emailServer.Close()

	server := sf.ordersServer(t, notify.NewEmailNotifier(emailServer.URL, &http.Client{Timeout: 10 * time.Second}))

	customerToken := sf.login(ctx, t, "customer@user.com", "secret123")
	staffToken := sf.login(ctx, t, "admin@shop.com", "admin-password")

	status, body := doJSON(t, http.MethodPost, server.URL+"/orders", customerToken,
		`{"items":[{"product":"`+product.ID+`","quantity":2},{"product":"`+product.ID+`"}]}`)
	if status != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, status, body)
	}

	var created domain.Order
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if !created.TotalPrice.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total 300, got %s", created.TotalPrice)
	}
	if created.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pending, got %s", created.Status)
	}
	if created.UserName != "Customer" {
		t.Fatalf("expected user Customer, got %s", created.UserName)
	}

	status, body = doJSON(t, http.MethodPatch, server.URL+"/orders/"+created.ID, customerToken, `{"status":"shipped"}`)
	if status != http.StatusForbidden {
		t.Fatalf("expected customer status change to be forbidden, got %d: %s", status, body)
	}

	// Price changes after creation are picked up on the next item update.
	product.Price = decimal.NewFromInt(50)
	if err := sf.catalog.UpdateProduct(ctx, actorOf(sf.staff), product); err != nil {
		t.Fatalf("failed to update product price: %v", err)
	}

	status, body = doJSON(t, http.MethodPatch, server.URL+"/orders/"+created.ID, customerToken,
		`{"items":[{"product":"`+product.ID+`","quantity":3}]}`)
	if status != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, status, body)
	}

	stored, err := orders.NewOrderRepository(sf.db).GetByID(ctx, created.ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if !stored.TotalPrice.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected stored total 150, got %s", stored.TotalPrice)
	}
	if len(stored.Items) != 1 || stored.Items[0].Quantity != 3 {
		t.Fatalf("expected items to be replaced, got %+v", stored.Items)
	}

	for i := 0; i < 2; i++ {
		status, body = doJSON(t, http.MethodPatch, server.URL+"/orders/"+created.ID, staffToken, `{"status":"shipped"}`)
		if status != http.StatusOK {
			t.Fatalf("expected staff ship to succeed, got %d: %s", status, body)
		}
	}

	emails := emailCap.getEmails()
	if len(emails) != 2 {
		t.Fatalf("expected one email per shipped save, got %d", len(emails))
	}
	email := emails[0]
	if email["to"] != "customer@user.com" {
		t.Fatalf("expected email to customer, got %s", email["to"])
	}
	if email["subject"] != "Order #"+created.ID+" has been shipped" {
		t.Fatalf("unexpected subject: %s", email["subject"])
	}
	if !strings.Contains(email["body"], "http://127.0.0.1:8080/orders/"+created.ID+"/") {
		t.Fatalf("expected body to link to the order, got: %s", email["body"])
	}

	status, body = doJSON(t, http.MethodGet, server.URL+"/orders", staffToken, "")
	if status != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected staff list to be scoped to own orders, got %d: %s", status, body)
	}

	status, _ = doJSON(t, http.MethodDelete, server.URL+"/orders/"+created.ID, customerToken, "")
	if status != http.StatusNoContent {
		t.Fatalf("expected delete to return %d, got %d", http.StatusNoContent, status)
	}

	status, _ = doJSON(t, http.MethodGet, server.URL+"/orders/"+created.ID, customerToken, "")
	if status != http.StatusNotFound {
		t.Fatalf("expected deleted order to be gone, got %d", status)
	}
}

func TestCategoryTree(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	sf := newStorefront(ctx, t, pg.ConnStr)
	staff := actorOf(sf.staff)

	electronics := &domain.Category{Name: "Electronics"}
	if err := sf.catalog.CreateCategory(ctx, staff, electronics); err != nil {
		t.Fatalf("failed to create category: %v", err)
	}
	phones := &domain.Category{Name: "Phones", ParentID: &electronics.ID}
	if err := sf.catalog.CreateCategory(ctx, staff, phones); err != nil {
		t.Fatalf("failed to create category: %v", err)
	}

	phone := sf.createProduct(ctx, t, "Phone X", decimal.RequireFromString("999.99"), &phones.ID)
	sf.createProduct(ctx, t, "Loose Cable", decimal.RequireFromString("5.00"), nil)

	found, err := sf.catalog.ListProducts(ctx, domain.ProductFilter{Category: "electronics"})
	if err != nil {
		t.Fatalf("failed to list products: %v", err)
	}
	if len(found) != 1 || found[0].ID != phone.ID {
		t.Fatalf("expected category filter to include descendants, got %+v", found)
	}
	if found[0].CategoryName == nil || *found[0].CategoryName != "Phones" {
		t.Fatalf("expected category name Phones, got %v", found[0].CategoryName)
	}

	electronics.ParentID = &phones.ID
	err = sf.catalog.UpdateCategory(ctx, staff, electronics)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "parent" {
		t.Fatalf("expected parent validation error, got %v", err)
	}

	err = sf.catalog.DeleteCategory(ctx, staff, electronics.ID)
	if !errors.As(err, &verr) {
		t.Fatalf("expected deleting a category with children to fail validation, got %v", err)
	}

	if err := sf.catalog.DeleteCategory(ctx, staff, phones.ID); err != nil {
		t.Fatalf("failed to delete leaf category: %v", err)
	}

	reloaded, err := sf.catalog.GetProduct(ctx, phone.ID)
	if err != nil {
		t.Fatalf("failed to reload product: %v", err)
	}
	if reloaded.CategoryID != nil {
		t.Fatalf("expected product category to be cleared, got %v", *reloaded.CategoryID)
	}
}

func TestCommentRatings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	sf := newStorefront(ctx, t, pg.ConnStr)
	product := sf.createProduct(ctx, t, "Mouse", decimal.RequireFromString("19.99"), nil)

	first := &domain.Comment{ProductID: product.ID, CommentText: "great", Rating: 5}
	if err := sf.catalog.CreateComment(ctx, actorOf(sf.customer), first); err != nil {
		t.Fatalf("failed to create comment: %v", err)
	}
	if err := sf.catalog.CreateComment(ctx, actorOf(sf.staff), &domain.Comment{ProductID: product.ID, CommentText: "ok", Rating: 2}); err != nil {
		t.Fatalf("failed to create comment: %v", err)
	}

	err := sf.catalog.CreateComment(ctx, actorOf(sf.customer), &domain.Comment{ProductID: product.ID, CommentText: "again", Rating: 1})
	if !errors.Is(err, catalog.ErrDuplicateComment) {
		t.Fatalf("expected duplicate comment error, got %v", err)
	}

	reloaded, err := sf.catalog.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("failed to reload product: %v", err)
	}
	if reloaded.NumberOfRatings != 2 {
		t.Fatalf("expected 2 ratings, got %d", reloaded.NumberOfRatings)
	}
	if !reloaded.AverageRating.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("expected average rating 3.5, got %s", reloaded.AverageRating)
	}

	minRating := decimal.NewFromInt(4)
	rated, err := sf.catalog.ListProducts(ctx, domain.ProductFilter{AverageRatingMin: &minRating})
	if err != nil {
		t.Fatalf("failed to list products: %v", err)
	}
	if len(rated) != 0 {
		t.Fatalf("expected no product with average >= 4, got %d", len(rated))
	}
}

func TestShipmentNotificationThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	const topic = "order.shipped"
	if err := CreateTopic(ctx, brokers, topic); err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}

	sf := newStorefront(ctx, t, pg.ConnStr)
	product := sf.createProduct(ctx, t, "Monitor", decimal.NewFromInt(200), nil)

	emailCap, emailServer := newEmailServer(t)
	defer emailServer.Close()

	producer := messaging.NewProducer(brokers, topic, domain.OrderShippedEventType)
	defer func() { _ = producer.Close() }()

	consumer := messaging.NewConsumer(brokers, topic, "shipment-notifier-test", domain.OrderShippedEventType, sf.logger,
		messaging.WithStartOffset(kafkago.FirstOffset))
	defer func() { _ = consumer.Close() }()

	shipmentHandler := worker.NewShipmentHandler(
		notify.NewEmailNotifier(emailServer.URL, &http.Client{Timeout: 10 * time.Second}),
		sf.logger,
	)

	consumeCtx, stopConsumer := context.WithCancel(ctx)
	consumeDone := make(chan error, 1)
	go func() { consumeDone <- consumer.Consume(consumeCtx, shipmentHandler.Handle) }()

	server := sf.ordersServer(t, notify.NewEventNotifier(producer))
	customerToken := sf.login(ctx, t, "customer@user.com", "secret123")
	staffToken := sf.login(ctx, t, "admin@shop.com", "admin-password")

	status, body := doJSON(t, http.MethodPost, server.URL+"/orders", customerToken,
		`{"items":[{"product":"`+product.ID+`","quantity":1}]}`)
	if status != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, status, body)
	}

	var created domain.Order
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}

	status, body = doJSON(t, http.MethodPatch, server.URL+"/orders/"+created.ID, staffToken, `{"status":"shipped"}`)
	if status != http.StatusOK {
		t.Fatalf("expected staff ship to succeed, got %d: %s", status, body)
	}

	deadline := time.Now().Add(time.Minute)
	var emails []map[string]string
	for time.Now().Before(deadline) {
		emails = emailCap.getEmails()
		if len(emails) > 0 {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	stopConsumer()
	if err := <-consumeDone; err != nil {
		t.Fatalf("consumer returned error: %v", err)
	}

	if len(emails) != 1 {
		t.Fatalf("expected 1 email delivered through kafka, got %d", len(emails))
	}
	if emails[0]["to"] != "customer@user.com" {
		t.Fatalf("expected email to customer, got %s", emails[0]["to"])
	}
	if !strings.Contains(emails[0]["subject"], created.ID) {
		t.Fatalf("expected subject to contain order ID %s, got: %s", created.ID, emails[0]["subject"])
	}
}
