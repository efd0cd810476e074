package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/catalog"
	"github.com/joao-fontenele/storefront-api/internal/config"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
	"github.com/joao-fontenele/storefront-api/internal/telemetry"
	"github.com/joao-fontenele/storefront-api/internal/users"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8082")
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

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "catalog")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("catalog")
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

	handler := catalog.NewHandler(catalog.NewService(catalog.NewRepository(db)), logger)
	mw := auth.NewMiddleware(auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger).
		WithAccounts(users.NewUserRepository(db))

	mux := http.NewServeMux()
	handler.Register(mux, mw.Require)
	mux.Handle("GET /metrics", metricsHandler)

	if err := httpx.Run(logger, "catalog", httpx.NewServer("catalog", cfg.Port, mux)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
