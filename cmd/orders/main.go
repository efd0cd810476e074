package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/catalog"
	"github.com/joao-fontenele/storefront-api/internal/config"
	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
	"github.com/joao-fontenele/storefront-api/internal/messaging"
	"github.com/joao-fontenele/storefront-api/internal/notify"
	"github.com/joao-fontenele/storefront-api/internal/orders"
	"github.com/joao-fontenele/storefront-api/internal/telemetry"
	"github.com/joao-fontenele/storefront-api/internal/users"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8081")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	if len(cfg.KafkaBrokers) == 0 && cfg.EmailServiceURL == "" {
		logger.Error("KAFKA_BROKERS or EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "orders")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var notifier orders.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.ShipmentTopic, domain.OrderShippedEventType)
		defer func() { _ = producer.Close() }()
		notifier = notify.NewEventNotifier(producer)
		logger.Info("shipment notifications go through kafka", "topic", cfg.ShipmentTopic)
	} else {
		notifier = notify.NewEmailNotifier(cfg.EmailServiceURL, httpx.NewClient())
		logger.Info("shipment notifications go straight to the email service")
	}

	service, err := orders.NewService(
		orders.NewOrderRepository(db),
		catalog.NewRepository(db),
		users.NewUserRepository(db),
		notifier,
		cfg.PublicBaseURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to create orders service", "error", err)
		os.Exit(1)
	}

	handler := orders.NewHandler(service, logger)
	mw := auth.NewMiddleware(auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger).
		WithAccounts(users.NewUserRepository(db))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(mw.Require(handler.HandleList)))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(mw.Require(handler.HandleCreate)))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(mw.Require(handler.HandleGet)))
	mux.HandleFunc("PUT /orders/{id}", telemetry.WithHTTPRoute(mw.Require(handler.HandleUpdate)))
	mux.HandleFunc("PATCH /orders/{id}", telemetry.WithHTTPRoute(mw.Require(handler.HandleUpdate)))
	mux.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(mw.Require(handler.HandleDelete)))
	mux.Handle("GET /metrics", metricsHandler)

	if err := httpx.Run(logger, "orders", httpx.NewServer("orders", cfg.Port, mux)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
