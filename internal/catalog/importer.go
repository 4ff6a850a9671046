package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// ProductWriter persists imported products.
type ProductWriter interface {
	Upsert(ctx context.Context, products []model.Product) (int, error)
}

// Result summarises one import run.
type Result struct {
	Files    int
	Read     int
	Invalid  int
	Upserted int
}

// Importer loads snapshot files and writes the merged catalog.
type Importer struct {
	loader   Loader
	products ProductWriter
	logger   zerolog.Logger
}

func NewImporter(loader Loader, products ProductWriter, logger zerolog.Logger) *Importer {
	return &Importer{
		loader:   loader,
		products: products,
		logger:   logger.With().Str("component", "catalog-importer").Logger(),
	}
}

// Import loads every path concurrently and merges the results by product id,
// with later paths overriding earlier ones. Invalid products are skipped and
// counted. Any load failure aborts the run before anything is written.
func (im *Importer) Import(ctx context.Context, paths ...string) (Result, error) {
	if len(paths) == 0 {
		return Result{}, errors.New("no catalog files given")
	}

	type loadResult struct {
		index    int
		products []model.Product
		err      error
	}

	resultChan := make(chan loadResult, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()
			products, err := im.loader.Load(ctx, path)
			resultChan <- loadResult{index: index, products: products, err: err}
		}(i, path)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(paths))
	for r := range resultChan {
		results[r.index] = r
	}

	res := Result{Files: len(paths)}
	merged := make(map[string]model.Product)
	var order []string

	for i, r := range results {
		if r.err != nil {
			im.logger.Error().Err(r.err).Str("file", paths[i]).Msg("failed to load catalog file")
			return res, fmt.Errorf("failed to load catalog file %s: %w", paths[i], r.err)
		}
		for _, p := range r.products {
			res.Read++
			if err := Validate(p); err != nil {
				res.Invalid++
				im.logger.Warn().Err(err).Str("file", paths[i]).Msg("skipping invalid product")
				continue
			}
			if _, seen := merged[p.ID]; !seen {
				order = append(order, p.ID)
			}
			merged[p.ID] = p
		}
	}

	products := make([]model.Product, 0, len(order))
	for _, id := range order {
		products = append(products, merged[id])
	}

	n, err := im.products.Upsert(ctx, products)
	if err != nil {
		im.logger.Error().Err(err).Int("products", len(products)).Msg("failed to upsert catalog")
		return res, fmt.Errorf("failed to upsert catalog: %w", err)
	}
	res.Upserted = n

	im.logger.Info().
		Int("files", res.Files).
		Int("read", res.Read).
		Int("invalid", res.Invalid).
		Int("upserted", res.Upserted).
		Msg("catalog import finished")

	return res, nil
}
