package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/piiderlab/api/internal/domain"
	pfirestore "github.com/piiderlab/api/internal/platform/firestore"
	"github.com/piiderlab/api/internal/repositories"
)

const testCollection = "tests"

// CatalogRepository reads the bookable test catalog from Firestore.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[testDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[testDocument](provider, testCollection, nil, nil)
	return &CatalogRepository{base: base}, nil
}

// ListTests returns catalog entries ordered by name.
func (r *CatalogRepository) ListTests(ctx context.Context, filter repositories.TestFilter) ([]domain.Test, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("catalog repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.HighlightOnly {
			q = q.Where("highlight", "==", true)
		}
		q = q.OrderBy("name", firestore.Asc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	tests := make([]domain.Test, 0, len(docs))
	for _, doc := range docs {
		test := toDomainTest(doc.Data)
		test.ID = doc.ID
		if test.UpdatedAt.IsZero() {
			test.UpdatedAt = doc.UpdateTime
		}
		tests = append(tests, test)
	}
	return tests, nil
}

// FindTestByID loads a catalog entry by document ID.
func (r *CatalogRepository) FindTestByID(ctx context.Context, testID string) (domain.Test, error) {
	if r == nil || r.base == nil {
		return domain.Test{}, errors.New("catalog repository not initialised")
	}
	if strings.TrimSpace(testID) == "" {
		return domain.Test{}, errors.New("test id is required")
	}

	doc, err := r.base.Get(ctx, testID)
	if err != nil {
		return domain.Test{}, err
	}

	test := toDomainTest(doc.Data)
	test.ID = doc.ID
	if test.UpdatedAt.IsZero() {
		test.UpdatedAt = doc.UpdateTime
	}
	return test, nil
}

// FindTestBySlug looks a catalog entry up by its URL slug.
func (r *CatalogRepository) FindTestBySlug(ctx context.Context, slug string) (domain.Test, error) {
	if r == nil || r.base == nil {
		return domain.Test{}, errors.New("catalog repository not initialised")
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return domain.Test{}, errors.New("test slug is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Test{}, err
	}
	if len(docs) == 0 {
		return domain.Test{}, pfirestore.WrapError("tests.find_by_slug",
			status.Errorf(codes.NotFound, "test %s not found", slug))
	}

	test := toDomainTest(docs[0].Data)
	test.ID = docs[0].ID
	if test.UpdatedAt.IsZero() {
		test.UpdatedAt = docs[0].UpdateTime
	}
	return test, nil
}

type testDocument struct {
	Slug        string               `firestore:"slug"`
	Name        string               `firestore:"name"`
	Price       int64                `firestore:"price"`
	MRP         *int64               `firestore:"mrp,omitempty"`
	Highlight   bool                 `firestore:"highlight"`
	Includes    []string             `firestore:"includes"`
	Description string               `firestore:"description"`
	ReportTime  string               `firestore:"reportTime"`
	Preparation string               `firestore:"preparation"`
	Purpose     string               `firestore:"purpose"`
	Markers     []testMarkerDocument `firestore:"markers"`
	UpdatedAt   time.Time            `firestore:"updatedAt"`
}

type testMarkerDocument struct {
	Name string `firestore:"name"`
	Info string `firestore:"info"`
}

func toDomainTest(doc testDocument) domain.Test {
	markers := make([]domain.TestMarker, 0, len(doc.Markers))
	for _, m := range doc.Markers {
		markers = append(markers, domain.TestMarker{Name: m.Name, Info: m.Info})
	}
	if len(markers) == 0 {
		markers = nil
	}

	includes := make([]string, 0, len(doc.Includes))
	for _, inc := range doc.Includes {
		if trimmed := strings.TrimSpace(inc); trimmed != "" {
			includes = append(includes, trimmed)
		}
	}
	if len(includes) == 0 {
		includes = nil
	}

	return domain.Test{
		Slug:        strings.TrimSpace(doc.Slug),
		Name:        strings.TrimSpace(doc.Name),
		Price:       doc.Price,
		MRP:         doc.MRP,
		Highlight:   doc.Highlight,
		Includes:    includes,
		Description: doc.Description,
		ReportTime:  strings.TrimSpace(doc.ReportTime),
		Preparation: doc.Preparation,
		Purpose:     doc.Purpose,
		Markers:     markers,
		UpdatedAt:   doc.UpdatedAt,
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
