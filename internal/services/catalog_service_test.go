package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/piiderlab/api/internal/domain"
	"github.com/piiderlab/api/internal/repositories"
)

type stubCatalogRepository struct {
	tests   []domain.Test
	listErr error
}

func (r *stubCatalogRepository) ListTests(ctx context.Context, filter repositories.TestFilter) ([]domain.Test, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Test
	for _, test := range r.tests {
		if filter.HighlightOnly && !test.Highlight {
			continue
		}
		out = append(out, test)
	}
	return out, nil
}

func (r *stubCatalogRepository) FindTestByID(ctx context.Context, testID string) (domain.Test, error) {
	for _, test := range r.tests {
		if test.ID == testID {
			return test, nil
		}
	}
	return domain.Test{}, &fakeRepoError{notFound: true}
}

func (r *stubCatalogRepository) FindTestBySlug(ctx context.Context, slug string) (domain.Test, error) {
	for _, test := range r.tests {
		if test.Slug == slug {
			return test, nil
		}
	}
	return domain.Test{}, &fakeRepoError{notFound: true}
}

var _ repositories.CatalogRepository = (*stubCatalogRepository)(nil)

func TestCatalogListTestsOrdersHighlightsFirst(t *testing.T) {
	repo := &stubCatalogRepository{tests: []domain.Test{
		{ID: "test-101", Slug: "cbc", Name: "Complete Blood Count", Price: 39900},
		{ID: "pkg-7", Slug: "full-body", Name: "Full Body Checkup", Price: 199900, Highlight: true},
		{ID: "test-205", Slug: "vitamin-d", Name: "Vitamin D (25-OH)", Price: 89900},
		{ID: "pkg-2", Slug: "diabetes", Name: "Diabetes Screen", Price: 99900, Highlight: true},
	}}
	svc, err := NewCatalogService(repo)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	tests, err := svc.ListTests(context.Background(), false)
	if err != nil {
		t.Fatalf("ListTests: %v", err)
	}
	if len(tests) != 4 {
		t.Fatalf("expected 4 tests, got %d", len(tests))
	}
	wantOrder := []string{"pkg-2", "pkg-7", "test-101", "test-205"}
	for i, id := range wantOrder {
		if tests[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, tests[i].ID)
		}
	}
}

func TestCatalogListTestsHighlightOnly(t *testing.T) {
	repo := &stubCatalogRepository{tests: []domain.Test{
		{ID: "test-101", Slug: "cbc", Name: "Complete Blood Count"},
		{ID: "pkg-7", Slug: "full-body", Name: "Full Body Checkup", Highlight: true},
	}}
	svc, err := NewCatalogService(repo)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	tests, err := svc.ListTests(context.Background(), true)
	if err != nil {
		t.Fatalf("ListTests: %v", err)
	}
	if len(tests) != 1 || tests[0].ID != "pkg-7" {
		t.Fatalf("expected only the highlighted package, got %+v", tests)
	}
}

func TestCatalogGetTestBySlug(t *testing.T) {
	repo := &stubCatalogRepository{tests: []domain.Test{
		{ID: "test-205", Slug: "vitamin-d", Name: "Vitamin D (25-OH)", Price: 89900},
	}}
	svc, err := NewCatalogService(repo)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	ctx := context.Background()

	test, err := svc.GetTestBySlug(ctx, "  Vitamin-D ")
	if err != nil {
		t.Fatalf("GetTestBySlug: %v", err)
	}
	if test.ID != "test-205" {
		t.Fatalf("unexpected test %+v", test)
	}

	if _, err := svc.GetTestBySlug(ctx, "thyroid"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetTestBySlug(ctx, "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogPriceItem(t *testing.T) {
	repo := &stubCatalogRepository{tests: []domain.Test{
		{ID: "test-205", Slug: "vitamin-d", Name: "Vitamin D (25-OH)", Price: 89900},
	}}
	svc, err := NewCatalogService(repo)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	ctx := context.Background()

	priced, err := svc.PriceItem(ctx, " test-205 ")
	if err != nil {
		t.Fatalf("PriceItem: %v", err)
	}
	if priced.ProductID != "test-205" || priced.Name != "Vitamin D (25-OH)" || priced.UnitPrice != 89900 {
		t.Fatalf("unexpected priced item %+v", priced)
	}

	if _, err := svc.PriceItem(ctx, "test-999"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.PriceItem(ctx, "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogListTestsWrapsStoreError(t *testing.T) {
	repo := &stubCatalogRepository{listErr: errors.New("firestore down")}
	svc, err := NewCatalogService(repo)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}

	if _, err := svc.ListTests(context.Background(), false); !errors.Is(err, ErrCatalogStoreError) {
		t.Fatalf("expected store error, got %v", err)
	}
}
