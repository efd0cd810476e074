package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/config"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
	"github.com/joao-fontenele/storefront-api/internal/telemetry"
	"github.com/joao-fontenele/storefront-api/internal/users"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8083")
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

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "users")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("users")
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

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	service := users.NewService(users.NewUserRepository(db), tokens)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := service.EnsureStaff(ctx, cfg.AdminEmail, cfg.AdminName, cfg.AdminPassword)
		if err != nil {
			logger.Error("failed to ensure staff account", "error", err, "email", cfg.AdminEmail)
			os.Exit(1)
		}
		logger.Info("staff account ready", "user_id", admin.ID)
	}

	handler := users.NewHandler(service, logger)
	mw := auth.NewMiddleware(tokens, logger).WithAccounts(users.NewUserRepository(db))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/register", telemetry.WithHTTPRoute(handler.HandleRegister))
	mux.HandleFunc("POST /users/login", telemetry.WithHTTPRoute(handler.HandleLogin))
	mux.HandleFunc("GET /users/me", telemetry.WithHTTPRoute(mw.Require(handler.HandleMe)))
	mux.HandleFunc("PATCH /users/me", telemetry.WithHTTPRoute(mw.Require(handler.HandleUpdateMe)))
	mux.Handle("GET /metrics", metricsHandler)

	if err := httpx.Run(logger, "users", httpx.NewServer("users", cfg.Port, mux)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
