package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an item in the storefront catalog.
// Price is authoritative for every charge; client-supplied prices are never used.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price_cents"`
	Images      []string        `json:"images" db:"images"`
	Category    string          `json:"category" db:"category"`
	IsActive    bool            `json:"isActive" db:"is_active"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// PrimaryImage returns the first catalog image, or nil when the product has none.
func (p Product) PrimaryImage() *string {
	if len(p.Images) == 0 || p.Images[0] == "" {
		return nil
	}
	img := p.Images[0]
	return &img
}
