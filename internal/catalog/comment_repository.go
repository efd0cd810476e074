package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-api/internal/domain"
)

// ErrDuplicateComment is what the one-comment-per-user-per-product constraint
// surfaces as.
var ErrDuplicateComment = domain.NewValidationError("product", "you have already commented on this product")

func (r *Repository) ListComments(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error) {
	var (
		where []string
		args  []any
	)
	for column, value := range map[string]string{"product_id": f.ProductID, "user_id": f.UserID} {
		if value == "" {
			continue
		}
		if !validUUID(value) {
			return []domain.Comment{}, nil
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	query := `SELECT id, product_id, user_id, comment_text, rating, created_at FROM comments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ProductID, &c.UserID, &c.CommentText, &c.Rating, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return comments, nil
}

func (r *Repository) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	if !validUUID(id) {
		return nil, nil
	}

	c := &domain.Comment{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, user_id, comment_text, rating, created_at
		FROM comments
		WHERE id = $1
	`, id).Scan(&c.ID, &c.ProductID, &c.UserID, &c.CommentText, &c.Rating, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return c, nil
}

func (r *Repository) CreateComment(ctx context.Context, c *domain.Comment) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments (id, product_id, user_id, comment_text, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.ProductID, c.UserID, c.CommentText, c.Rating, c.CreatedAt)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateComment
		case pgForeignKeyViolation:
			return domain.NewValidationError("product", "product does not exist")
		}
		return err
	}
	return nil
}

func (r *Repository) UpdateComment(ctx context.Context, c *domain.Comment) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE comments
		SET comment_text = $2, rating = $3
		WHERE id = $1
	`, c.ID, c.CommentText, c.Rating)
	if err != nil {
		return err
	}
	return expectRow(result)
}

func (r *Repository) DeleteComment(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}
