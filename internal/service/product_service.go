package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// productService serves the public catalog. It never returns prices for
// checkout; CreateCheckout reads the repository directly.
type productService struct {
	productRepo repository.ProductRepository
	logger      zerolog.Logger
}

// NewProductService returns the catalog browsing service.
func NewProductService(productRepo repository.ProductRepository, logger zerolog.Logger) ProductService {
	return &productService{
		productRepo: productRepo,
		logger:      logger.With().Str("service", "product").Logger(),
	}
}

// GetAll lists a page of active products. Page sizes outside 1..100 are
// clamped and a negative offset starts from the beginning.
func (s *productService) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	limit, offset = clampPage(limit, offset)

	products, err := s.productRepo.GetAll(ctx, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).
			Int("limit", limit).
			Int("offset", offset).
			Msg("catalog page query failed")
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	s.logger.Debug().
		Int("count", len(products)).
		Int("offset", offset).
		Msg("catalog page served")

	return products, nil
}

// GetByID returns one product if it is on sale.
func (s *productService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.ErrProductNotFound
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", id).Msg("catalog lookup failed")
		return nil, fmt.Errorf("failed to load product %s: %w", id, err)
	}

	// Retired products stay in the table for order history but are not browsable.
	if product == nil || !product.IsActive {
		return nil, model.ErrProductNotFound.WithDetails(id)
	}

	return product, nil
}

func clampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	return limit, max(offset, 0)
}
