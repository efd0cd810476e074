package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent"`
}

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Image           *string         `json:"image"`
	InStock         bool            `json:"in_stock"`
	Price           decimal.Decimal `json:"price"`
	BrandID         string          `json:"brand"`
	BrandName       string          `json:"brand_name"`
	CategoryID      *string         `json:"category"`
	CategoryName    *string         `json:"category_name"`
	AverageRating   decimal.Decimal `json:"average_rating"`
	NumberOfRatings int             `json:"number_of_ratings"`
}

// MarshalJSON renders price with exactly two decimal places.
func (p Product) MarshalJSON() ([]byte, error) {
	type product Product
	return json.Marshal(struct {
		product
		Price string `json:"price"`
	}{product(p), p.Price.StringFixed(2)})
}

// ProductFilter mirrors the query parameters accepted by the product list.
// Zero values mean "no constraint".
type ProductFilter struct {
	ID               string
	Name             string
	Brand            string
	Category         string
	PriceMin         *decimal.Decimal
	PriceMax         *decimal.Decimal
	AverageRatingMin *decimal.Decimal
	InStock          *bool
	Ordering         string
}

type Comment struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product"`
	UserID      string    `json:"user"`
	CommentText string    `json:"comment_text"`
	Rating      int       `json:"rating"`
	CreatedAt   time.Time `json:"created_at"`
}

type CommentFilter struct {
	ProductID string
	UserID    string
}

const (
	MinRating = 1
	MaxRating = 5
)
