package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

const productSelect = `
	SELECT p.id, p.name, p.description, p.image, p.in_stock, p.price,
		p.brand_id, b.name, p.category_id, c.name,
		COALESCE(ROUND(AVG(cm.rating), 2), 0), COUNT(cm.id)
	FROM products p
	JOIN brands b ON b.id = p.brand_id
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN comments cm ON cm.product_id = p.id
`

const productGroupBy = ` GROUP BY p.id, b.name, c.name`

var productOrderings = map[string]string{
	"name":   "p.name, p.id",
	"-name":  "p.name DESC, p.id",
	"price":  "p.price, p.id",
	"-price": "p.price DESC, p.id",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Image, &p.InStock, &p.Price,
		&p.BrandID, &p.BrandName, &p.CategoryID, &p.CategoryName,
		&p.AverageRating, &p.NumberOfRatings)
	return p, err
}

// ListProducts applies every non-zero field of f. An id that is not a valid
// uuid, or a category name that matches nothing, yields an empty list.
func (r *Repository) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		where  []string
		having []string
		args   []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ID != "" {
		if !validUUID(f.ID) {
			return []domain.Product{}, nil
		}
		where = append(where, "p.id = "+arg(f.ID))
	}
	if f.Name != "" {
		where = append(where, "p.name ILIKE '%' || "+arg(f.Name)+" || '%'")
	}
	if f.Brand != "" {
		where = append(where, "b.name ILIKE '%' || "+arg(f.Brand)+" || '%'")
	}
	if f.Category != "" {
		where = append(where, `p.category_id IN (
			WITH RECURSIVE tree AS (
				SELECT id FROM categories WHERE lower(name) = lower(`+arg(f.Category)+`)
				UNION ALL
				SELECT c2.id FROM categories c2 JOIN tree t ON c2.parent_id = t.id
			)
			SELECT id FROM tree
		)`)
	}
	if f.PriceMin != nil {
		where = append(where, "p.price >= "+arg(*f.PriceMin))
	}
	if f.PriceMax != nil {
		where = append(where, "p.price <= "+arg(*f.PriceMax))
	}
	if f.InStock != nil {
		where = append(where, "p.in_stock = "+arg(*f.InStock))
	}
	if f.AverageRatingMin != nil {
		having = append(having, "AVG(cm.rating) >= "+arg(*f.AverageRatingMin))
	}

	var query strings.Builder
	query.WriteString(productSelect)
	if len(where) > 0 {
		query.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	query.WriteString(productGroupBy)
	if len(having) > 0 {
		query.WriteString(" HAVING " + strings.Join(having, " AND "))
	}
	order, ok := productOrderings[f.Ordering]
	if !ok {
		order = productOrderings["name"]
	}
	query.WriteString(" ORDER BY " + order)

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !validUUID(id) {
		return nil, nil
	}

	p, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+" WHERE p.id = $1"+productGroupBy, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &p, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, image, in_stock, price, brand_id, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Name, p.Description, p.Image, p.InStock, p.Price, p.BrandID, p.CategoryID)
	return err
}

func (r *Repository) UpdateProduct(ctx context.Context, p *domain.Product) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, image = $4, in_stock = $5, price = $6, brand_id = $7, category_id = $8
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Image, p.InStock, p.Price, p.BrandID, p.CategoryID)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// DeleteProduct cascades to the product's comments and to order items that
// reference it.
func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}
