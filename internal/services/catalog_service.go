package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/piiderlab/api/internal/repositories"
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested test does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogStoreError indicates the backing store failed.
var ErrCatalogStoreError = errors.New("catalog service: store error")

var errCatalogRepositoryRequired = errors.New("catalog service: repository is required")

const catalogListLimit = 200

type catalogService struct {
	repo repositories.CatalogRepository
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo repositories.CatalogRepository) (CatalogService, error) {
	if repo == nil {
		return nil, errCatalogRepositoryRequired
	}
	return &catalogService{repo: repo}, nil
}

// ListTests returns the bookable catalog with highlighted packages first.
func (s *catalogService) ListTests(ctx context.Context, highlightOnly bool) ([]Test, error) {
	tests, err := s.repo.ListTests(ctx, repositories.TestFilter{
		HighlightOnly: highlightOnly,
		Limit:         catalogListLimit,
	})
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogStoreError, err)
	}

	sort.SliceStable(tests, func(i, j int) bool {
		if tests[i].Highlight != tests[j].Highlight {
			return tests[i].Highlight
		}
		return tests[i].Name < tests[j].Name
	})
	return tests, nil
}

// GetTestBySlug resolves a catalog entry by its URL slug.
func (s *catalogService) GetTestBySlug(ctx context.Context, slug string) (Test, error) {
	trimmed := strings.ToLower(strings.TrimSpace(slug))
	if trimmed == "" {
		return Test{}, ErrCatalogInvalidInput
	}

	test, err := s.repo.FindTestBySlug(ctx, trimmed)
	if err != nil {
		if isRepoNotFound(err) {
			return Test{}, ErrCatalogNotFound
		}
		return Test{}, fmt.Errorf("%w: %v", ErrCatalogStoreError, err)
	}
	return test, nil
}

// PriceItem resolves the authoritative name and unit price for a product id.
// The cart service calls this on every add so stored prices always come from
// the catalog.
func (s *catalogService) PriceItem(ctx context.Context, productID string) (PricedItem, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return PricedItem{}, ErrCatalogInvalidInput
	}

	test, err := s.repo.FindTestByID(ctx, trimmed)
	if err != nil {
		if isRepoNotFound(err) {
			return PricedItem{}, ErrCatalogNotFound
		}
		return PricedItem{}, fmt.Errorf("%w: %v", ErrCatalogStoreError, err)
	}
	return PricedItem{
		ProductID: test.ID,
		Name:      test.Name,
		UnitPrice: test.Price,
	}, nil
}
