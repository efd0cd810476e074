package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

const maxNameLength = 100

// maxPrice is the first value that does not fit NUMERIC(10,2).
var maxPrice = decimal.New(1, 8)

// Store is implemented by Repository. Getters return nil, nil for a missing
// row; updates and deletes return domain.ErrNotFound.
type Store interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
	UpdateCategory(ctx context.Context, c *domain.Category) error
	DeleteCategory(ctx context.Context, id string) error
	IsDescendant(ctx context.Context, id, candidate string) (bool, error)

	ListBrands(ctx context.Context) ([]domain.Brand, error)
	GetBrand(ctx context.Context, id string) (*domain.Brand, error)
	CreateBrand(ctx context.Context, b *domain.Brand) error
	UpdateBrand(ctx context.Context, b *domain.Brand) error
	DeleteBrand(ctx context.Context, id string) error

	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	ListComments(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error)
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	CreateComment(ctx context.Context, c *domain.Comment) error
	UpdateComment(ctx context.Context, c *domain.Comment) error
	DeleteComment(ctx context.Context, id string) error
}

// Service owns catalog authorization: reads are public, category, brand and
// product writes are staff-only, comments belong to their author.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func requireStaff(actor domain.Actor) error {
	if !actor.IsStaff {
		return domain.ErrForbidden
	}
	return nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.NewValidationError("name", "this field may not be blank")
	}
	if len(name) > maxNameLength {
		return domain.NewValidationError("name", fmt.Sprintf("ensure this field has no more than %d characters", maxNameLength))
	}
	return nil
}

func invalidPK(field, id string) error {
	return domain.NewValidationError(field, fmt.Sprintf("invalid pk %q - object does not exist", id))
}

func found[T any](v *T, err error, what, id string) (*T, error) {
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", what, id, err)
	}
	if v == nil {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	return found(c, err, "category", id)
}

func (s *Service) CreateCategory(ctx context.Context, actor domain.Actor, c *domain.Category) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := s.validateCategory(ctx, c); err != nil {
		return err
	}
	return s.store.CreateCategory(ctx, c)
}

func (s *Service) UpdateCategory(ctx context.Context, actor domain.Actor, c *domain.Category) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := s.validateCategory(ctx, c); err != nil {
		return err
	}
	if c.ParentID != nil {
		cycle, err := s.store.IsDescendant(ctx, c.ID, *c.ParentID)
		if err != nil {
			return fmt.Errorf("check category tree: %w", err)
		}
		if cycle {
			return domain.NewValidationError("parent", "a category cannot be placed under itself or its descendants")
		}
	}
	return s.store.UpdateCategory(ctx, c)
}

func (s *Service) DeleteCategory(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteCategory(ctx, id)
}

func (s *Service) validateCategory(ctx context.Context, c *domain.Category) error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if c.ParentID == nil {
		return nil
	}
	parent, err := s.store.GetCategory(ctx, *c.ParentID)
	if err != nil {
		return fmt.Errorf("get parent category: %w", err)
	}
	if parent == nil {
		return invalidPK("parent", *c.ParentID)
	}
	return nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.store.ListBrands(ctx)
}

func (s *Service) GetBrand(ctx context.Context, id string) (*domain.Brand, error) {
	b, err := s.store.GetBrand(ctx, id)
	return found(b, err, "brand", id)
}

func (s *Service) CreateBrand(ctx context.Context, actor domain.Actor, b *domain.Brand) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := validateName(b.Name); err != nil {
		return err
	}
	return s.store.CreateBrand(ctx, b)
}

func (s *Service) UpdateBrand(ctx context.Context, actor domain.Actor, b *domain.Brand) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := validateName(b.Name); err != nil {
		return err
	}
	return s.store.UpdateBrand(ctx, b)
}

func (s *Service) DeleteBrand(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if _, err := s.GetBrand(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteBrand(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	return s.store.ListProducts(ctx, f)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	return found(p, err, "product", id)
}

// CreateProduct and UpdateProduct refresh p from the store so derived fields
// (brand and category names, ratings) are populated.
func (s *Service) CreateProduct(ctx context.Context, actor domain.Actor, p *domain.Product) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := s.validateProduct(ctx, p); err != nil {
		return err
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return err
	}
	return s.reloadProduct(ctx, p)
}

func (s *Service) UpdateProduct(ctx context.Context, actor domain.Actor, p *domain.Product) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if err := s.validateProduct(ctx, p); err != nil {
		return err
	}
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return err
	}
	return s.reloadProduct(ctx, p)
}

func (s *Service) DeleteProduct(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteProduct(ctx, id)
}

func (s *Service) reloadProduct(ctx context.Context, p *domain.Product) error {
	fresh, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = *fresh
	return nil
}

func (s *Service) validateProduct(ctx context.Context, p *domain.Product) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if p.Price.IsNegative() {
		return domain.NewValidationError("price", "ensure this value is greater than or equal to 0")
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return domain.NewValidationError("price", "ensure that there are no more than 2 decimal places")
	}
	if p.Price.GreaterThanOrEqual(maxPrice) {
		return domain.NewValidationError("price", "ensure that there are no more than 10 digits in total")
	}

	if p.BrandID == "" {
		return domain.NewValidationError("brand", "this field is required")
	}
	brand, err := s.store.GetBrand(ctx, p.BrandID)
	if err != nil {
		return fmt.Errorf("get brand: %w", err)
	}
	if brand == nil {
		return invalidPK("brand", p.BrandID)
	}

	if p.CategoryID != nil {
		category, err := s.store.GetCategory(ctx, *p.CategoryID)
		if err != nil {
			return fmt.Errorf("get category: %w", err)
		}
		if category == nil {
			return invalidPK("category", *p.CategoryID)
		}
	}
	return nil
}

func (s *Service) ListComments(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error) {
	return s.store.ListComments(ctx, f)
}

func (s *Service) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	c, err := s.store.GetComment(ctx, id)
	return found(c, err, "comment", id)
}

// CreateComment attributes the comment to actor. A second comment by the same
// user on the same product is rejected by the store.
func (s *Service) CreateComment(ctx context.Context, actor domain.Actor, c *domain.Comment) error {
	c.UserID = actor.UserID
	if err := validateComment(c); err != nil {
		return err
	}
	product, err := s.store.GetProduct(ctx, c.ProductID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return invalidPK("product", c.ProductID)
	}
	return s.store.CreateComment(ctx, c)
}

// UpdateComment only changes text and rating; the author or staff may edit.
func (s *Service) UpdateComment(ctx context.Context, actor domain.Actor, c *domain.Comment) error {
	current, err := s.GetComment(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.UserID != actor.UserID && !actor.IsStaff {
		return domain.ErrForbidden
	}
	if err := validateComment(c); err != nil {
		return err
	}

	current.CommentText = c.CommentText
	current.Rating = c.Rating
	if err := s.store.UpdateComment(ctx, current); err != nil {
		return err
	}
	*c = *current
	return nil
}

func (s *Service) DeleteComment(ctx context.Context, actor domain.Actor, id string) error {
	current, err := s.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if current.UserID != actor.UserID && !actor.IsStaff {
		return domain.ErrForbidden
	}
	return s.store.DeleteComment(ctx, id)
}

func validateComment(c *domain.Comment) error {
	if c.Rating < domain.MinRating || c.Rating > domain.MaxRating {
		return domain.NewValidationError("rating", fmt.Sprintf("ensure this value is between %d and %d", domain.MinRating, domain.MaxRating))
	}
	if strings.TrimSpace(c.CommentText) == "" {
		return domain.NewValidationError("comment_text", "this field may not be blank")
	}
	if c.ProductID == "" {
		return domain.NewValidationError("product", "this field is required")
	}
	return nil
}
