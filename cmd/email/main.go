package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joao-fontenele/storefront-api/internal/config"
	"github.com/joao-fontenele/storefront-api/internal/email"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
	"github.com/joao-fontenele/storefront-api/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8084")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "email")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	handler := email.NewHandler(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", telemetry.WithHTTPRoute(handler.HandleSend))

	if err := httpx.Run(logger, "email", httpx.NewServer("email", cfg.Port, mux)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
