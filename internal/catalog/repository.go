package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, parent_id
		FROM categories
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	if !validUUID(id) {
		return nil, nil
	}

	c := &domain.Category{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, parent_id
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.ParentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c *domain.Category) error {
	c.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, parent_id)
		VALUES ($1, $2, $3)
	`, c.ID, c.Name, c.ParentID)
	return err
}

func (r *Repository) UpdateCategory(ctx context.Context, c *domain.Category) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, parent_id = $3
		WHERE id = $1
	`, c.ID, c.Name, c.ParentID)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// DeleteCategory refuses to remove a category that still has subcategories.
// Products in the category keep existing without one.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return domain.NewValidationError("non_field_errors", "cannot delete a category that has subcategories")
		}
		return err
	}
	return expectRow(result)
}

// IsDescendant reports whether candidate is id itself or lies anywhere below it
// in the category tree.
func (r *Repository) IsDescendant(ctx context.Context, id, candidate string) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx, `
		WITH RECURSIVE tree AS (
			SELECT id FROM categories WHERE id = $1
			UNION ALL
			SELECT c.id FROM categories c JOIN tree t ON c.parent_id = t.id
		)
		SELECT EXISTS (SELECT 1 FROM tree WHERE id = $2)
	`, id, candidate).Scan(&found)
	return found, err
}

func (r *Repository) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name
		FROM brands
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	brands := []domain.Brand{}
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return brands, nil
}

func (r *Repository) GetBrand(ctx context.Context, id string) (*domain.Brand, error) {
	if !validUUID(id) {
		return nil, nil
	}

	b := &domain.Brand{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM brands WHERE id = $1`, id).Scan(&b.ID, &b.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return b, nil
}

func (r *Repository) CreateBrand(ctx context.Context, b *domain.Brand) error {
	b.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `INSERT INTO brands (id, name) VALUES ($1, $2)`, b.ID, b.Name)
	return err
}

func (r *Repository) UpdateBrand(ctx context.Context, b *domain.Brand) error {
	result, err := r.db.ExecContext(ctx, `UPDATE brands SET name = $2 WHERE id = $1`, b.ID, b.Name)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// DeleteBrand cascades to the brand's products.
func (r *Repository) DeleteBrand(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

func expectRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
