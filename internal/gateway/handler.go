package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront-api/internal/httpx"
)

// Handler routes the public API onto the users, catalog and orders services.
// An optional /api prefix is accepted and stripped.
type Handler struct {
	usersProxy   *ServiceProxy
	catalogProxy *ServiceProxy
	ordersProxy  *ServiceProxy
	logger       *slog.Logger
}

func NewHandler(usersProxy, catalogProxy, ordersProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		usersProxy:   usersProxy,
		catalogProxy: catalogProxy,
		ordersProxy:  ordersProxy,
		logger:       logger,
	}
}

func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.usersProxy)
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.catalogProxy)
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy)
}

// backendPath drops the /api prefix and a trailing slash, so /api/orders/1/
// reaches the backend as /orders/1.
func backendPath(path string) string {
	path = strings.TrimPrefix(path, "/api")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy) {
	path := backendPath(r.URL.Path)

	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
