package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-api/internal/auth"
	"github.com/joao-fontenele/storefront-api/internal/domain"
	"github.com/joao-fontenele/storefront-api/internal/httpx"
	"github.com/joao-fontenele/storefront-api/internal/telemetry"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register wires the catalog routes. Reads are public; writes go through
// requireAuth and are authorized by the service.
func (h *Handler) Register(mux *http.ServeMux, requireAuth func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /categories", telemetry.WithHTTPRoute(h.HandleListCategories))
	mux.HandleFunc("GET /categories/{id}", telemetry.WithHTTPRoute(h.HandleGetCategory))
	mux.HandleFunc("POST /categories", telemetry.WithHTTPRoute(requireAuth(h.HandleCreateCategory)))
	mux.HandleFunc("PUT /categories/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateCategory)))
	mux.HandleFunc("PATCH /categories/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateCategory)))
	mux.HandleFunc("DELETE /categories/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleDeleteCategory)))

	mux.HandleFunc("GET /brands", telemetry.WithHTTPRoute(h.HandleListBrands))
	mux.HandleFunc("GET /brands/{id}", telemetry.WithHTTPRoute(h.HandleGetBrand))
	mux.HandleFunc("POST /brands", telemetry.WithHTTPRoute(requireAuth(h.HandleCreateBrand)))
	mux.HandleFunc("PUT /brands/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateBrand)))
	mux.HandleFunc("PATCH /brands/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateBrand)))
	mux.HandleFunc("DELETE /brands/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleDeleteBrand)))

	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(h.HandleListProducts))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(h.HandleGetProduct))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(requireAuth(h.HandleCreateProduct)))
	mux.HandleFunc("PUT /products/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateProduct)))
	mux.HandleFunc("PATCH /products/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateProduct)))
	mux.HandleFunc("DELETE /products/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleDeleteProduct)))

	mux.HandleFunc("GET /comments", telemetry.WithHTTPRoute(h.HandleListComments))
	mux.HandleFunc("GET /comments/{id}", telemetry.WithHTTPRoute(h.HandleGetComment))
	mux.HandleFunc("POST /comments", telemetry.WithHTTPRoute(requireAuth(h.HandleCreateComment)))
	mux.HandleFunc("PUT /comments/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateComment)))
	mux.HandleFunc("PATCH /comments/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleUpdateComment)))
	mux.HandleFunc("DELETE /comments/{id}", telemetry.WithHTTPRoute(requireAuth(h.HandleDeleteComment)))
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, domain.ErrUnauthenticated, "")
	}
	return actor, ok
}

type categoryRequest struct {
	Name   string  `json:"name"`
	Parent *string `json:"parent"`
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list categories")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, categories)
}

func (h *Handler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get category", "id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, category)
}

func (h *Handler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	category := &domain.Category{Name: req.Name, ParentID: req.Parent}
	if err := h.service.CreateCategory(r.Context(), actor, category); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create category")
		return
	}

	h.logger.Info("category created", "category_id", category.ID)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, category)
}

// HandleUpdateCategory serves PUT and PATCH. PATCH starts from the stored
// values so absent fields are kept.
func (h *Handler) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	// Staff check first so non-staff callers get 403 whether or not the
	// category exists.
	if err := requireStaff(actor); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	id := r.PathValue("id")
	current, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get category", "id", id)
		return
	}

	var req categoryRequest
	if r.Method == http.MethodPatch {
		req = categoryRequest{Name: current.Name, Parent: current.ParentID}
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	category := &domain.Category{ID: current.ID, Name: req.Name, ParentID: req.Parent}
	if err := h.service.UpdateCategory(r.Context(), actor, category); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update category", "id", id)
		return
	}

	h.logger.Info("category updated", "category_id", category.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, category)
}

func (h *Handler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.service.DeleteCategory(r.Context(), actor, id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete category", "id", id)
		return
	}

	h.logger.Info("category deleted", "category_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type brandRequest struct {
	Name string `json:"name"`
}

func (h *Handler) HandleListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.service.ListBrands(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list brands")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, brands)
}

func (h *Handler) HandleGetBrand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	brand, err := h.service.GetBrand(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get brand", "id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, brand)
}

func (h *Handler) HandleCreateBrand(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req brandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	brand := &domain.Brand{Name: req.Name}
	if err := h.service.CreateBrand(r.Context(), actor, brand); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create brand")
		return
	}

	h.logger.Info("brand created", "brand_id", brand.ID)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, brand)
}

func (h *Handler) HandleUpdateBrand(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	// Staff check first so non-staff callers get 403 whether or not the
	// brand exists.
	if err := requireStaff(actor); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	id := r.PathValue("id")
	current, err := h.service.GetBrand(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get brand", "id", id)
		return
	}

	var req brandRequest
	if r.Method == http.MethodPatch {
		req.Name = current.Name
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	brand := &domain.Brand{ID: current.ID, Name: req.Name}
	if err := h.service.UpdateBrand(r.Context(), actor, brand); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update brand", "id", id)
		return
	}

	h.logger.Info("brand updated", "brand_id", brand.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, brand)
}

func (h *Handler) HandleDeleteBrand(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.service.DeleteBrand(r.Context(), actor, id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete brand", "id", id)
		return
	}

	h.logger.Info("brand deleted", "brand_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type productRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       *string         `json:"image"`
	InStock     bool            `json:"in_stock"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand"`
	Category    *string         `json:"category"`
}

func (req productRequest) product(id string) *domain.Product {
	return &domain.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
		InStock:     req.InStock,
		Price:       req.Price,
		BrandID:     req.Brand,
		CategoryID:  req.Category,
	}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	products, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list products")
		return
	}

	h.logger.Info("products listed", "count", len(products))
	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get product", "id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	req := productRequest{InStock: true}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	product := req.product("")
	if err := h.service.CreateProduct(r.Context(), actor, product); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create product")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "price", product.Price.String())
	httpx.WriteJSON(w, h.logger, http.StatusCreated, product)
}

func (h *Handler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	// Staff check first so non-staff callers get 403 whether or not the
	// product exists.
	if err := requireStaff(actor); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	id := r.PathValue("id")
	current, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get product", "id", id)
		return
	}

	req := productRequest{InStock: true}
	if r.Method == http.MethodPatch {
		req = productRequest{
			Name:        current.Name,
			Description: current.Description,
			Image:       current.Image,
			InStock:     current.InStock,
			Price:       current.Price,
			Brand:       current.BrandID,
			Category:    current.CategoryID,
		}
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	product := req.product(current.ID)
	if err := h.service.UpdateProduct(r.Context(), actor, product); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update product", "id", id)
		return
	}

	h.logger.Info("product updated", "product_id", product.ID, "price", product.Price.String())
	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.service.DeleteProduct(r.Context(), actor, id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete product", "id", id)
		return
	}

	h.logger.Info("product deleted", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	f := domain.ProductFilter{
		ID:       q.Get("id"),
		Name:     q.Get("name"),
		Brand:    q.Get("brand"),
		Category: q.Get("category"),
		Ordering: q.Get("ordering"),
	}

	for param, dst := range map[string]**decimal.Decimal{
		"price_min":          &f.PriceMin,
		"price_max":          &f.PriceMax,
		"average_rating_min": &f.AverageRatingMin,
	} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return f, domain.NewValidationError(param, "enter a number")
		}
		*dst = &v
	}

	if raw := q.Get("in_stock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, domain.NewValidationError("in_stock", "enter a valid boolean")
		}
		f.InStock = &v
	}

	return f, nil
}

type commentRequest struct {
	Product     string `json:"product"`
	CommentText string `json:"comment_text"`
	Rating      int    `json:"rating"`
}

func (h *Handler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	filter := domain.CommentFilter{
		ProductID: r.URL.Query().Get("product"),
		UserID:    r.URL.Query().Get("user"),
	}

	comments, err := h.service.ListComments(r.Context(), filter)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to list comments")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, comments)
}

func (h *Handler) HandleGetComment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	comment, err := h.service.GetComment(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get comment", "id", id)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, comment)
}

func (h *Handler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	comment := &domain.Comment{ProductID: req.Product, CommentText: req.CommentText, Rating: req.Rating}
	if err := h.service.CreateComment(r.Context(), actor, comment); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to create comment", "product_id", req.Product)
		return
	}

	h.logger.Info("comment created", "comment_id", comment.ID, "product_id", comment.ProductID, "rating", comment.Rating)
	httpx.WriteJSON(w, h.logger, http.StatusCreated, comment)
}

func (h *Handler) HandleUpdateComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	current, err := h.service.GetComment(r.Context(), id)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to get comment", "id", id)
		return
	}

	req := commentRequest{Product: current.ProductID}
	if r.Method == http.MethodPatch {
		req.CommentText = current.CommentText
		req.Rating = current.Rating
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "")
		return
	}

	comment := &domain.Comment{ID: current.ID, ProductID: current.ProductID, CommentText: req.CommentText, Rating: req.Rating}
	if err := h.service.UpdateComment(r.Context(), actor, comment); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to update comment", "id", id)
		return
	}

	h.logger.Info("comment updated", "comment_id", comment.ID)
	httpx.WriteJSON(w, h.logger, http.StatusOK, comment)
}

func (h *Handler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.service.DeleteComment(r.Context(), actor, id); err != nil {
		httpx.WriteDomainError(w, h.logger, err, "failed to delete comment", "id", id)
		return
	}

	h.logger.Info("comment deleted", "comment_id", id)
	w.WriteHeader(http.StatusNoContent)
}
