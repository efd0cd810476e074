package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joao-fontenele/storefront-api/internal/config"
	"github.com/joao-fontenele/storefront-api/internal/gateway"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
	"github.com/joao-fontenele/storefront-api/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("8080")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.UsersServiceURL == "" {
		logger.Error("USERS_SERVICE_URL is required")
		os.Exit(1)
	}

	if cfg.CatalogServiceURL == "" {
		logger.Error("CATALOG_SERVICE_URL is required")
		os.Exit(1)
	}

	if cfg.OrdersServiceURL == "" {
		logger.Error("ORDERS_SERVICE_URL is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "gateway")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	httpClient := httpx.NewClient()
	handler := gateway.NewHandler(
		gateway.NewServiceProxy(cfg.UsersServiceURL, httpClient),
		gateway.NewServiceProxy(cfg.CatalogServiceURL, httpClient),
		gateway.NewServiceProxy(cfg.OrdersServiceURL, httpClient),
		logger,
	)

	routes := map[string]http.HandlerFunc{
		"users":      handler.HandleUsers,
		"categories": handler.HandleCatalog,
		"brands":     handler.HandleCatalog,
		"products":   handler.HandleCatalog,
		"comments":   handler.HandleCatalog,
		"orders":     handler.HandleOrders,
	}

	mux := http.NewServeMux()
	for resource, h := range routes {
		for _, prefix := range []string{"", "/api"} {
			mux.HandleFunc(prefix+"/"+resource, telemetry.WithHTTPRoute(h))
			mux.HandleFunc(prefix+"/"+resource+"/{rest...}", telemetry.WithHTTPRoute(h))
		}
	}

	if err := httpx.Run(logger, "gateway", httpx.NewServer("gateway", cfg.Port, mux)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
