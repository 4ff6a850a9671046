// Package catalog imports product snapshots from gzipped JSON-lines files.
package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"storefront/internal/model"

	"github.com/shopspring/decimal"
)

// Loader reads a catalog snapshot.
type Loader interface {
	Load(ctx context.Context, path string) ([]model.Product, error)
}

// record is one line of a snapshot file.
type record struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Category    string          `json:"category"`
	Active      *bool           `json:"active"`
}

func (r record) product() model.Product {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return model.Product{
		ID:          strings.TrimSpace(r.ID),
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Price:       r.Price,
		Images:      r.Images,
		Category:    r.Category,
		IsActive:    active,
	}
}

// decode reads JSON lines from r. Blank lines are skipped; a malformed line
// fails the whole file.
func decode(ctx context.Context, r io.Reader, source string) ([]model.Product, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var products []model.Product
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", source, lineNo, err)
		}
		products = append(products, rec.product())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", source, err)
	}
	return products, nil
}

// Validate checks a product before import.
func Validate(p model.Product) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("product id is required")
	case p.Name == "":
		return fmt.Errorf("product %s: name is required", p.ID)
	case p.Price.IsNegative():
		return fmt.Errorf("product %s: price must not be negative", p.ID)
	case !p.Price.Equal(p.Price.Round(2)):
		return fmt.Errorf("product %s: price has more than two decimal places", p.ID)
	}
	return nil
}
