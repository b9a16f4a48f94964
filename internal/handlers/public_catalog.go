package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/piiderlab/api/internal/platform/httpx"
	"github.com/piiderlab/api/internal/services"
)

// PublicHandlers exposes the unauthenticated catalog endpoints.
type PublicHandlers struct {
	catalog services.CatalogService
}

// NewPublicHandlers constructs the public catalog handlers.
func NewPublicHandlers(catalog services.CatalogService) *PublicHandlers {
	return &PublicHandlers{catalog: catalog}
}

// Routes wires the /public endpoints onto the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/tests", h.listTests)
	r.Get("/tests/{slug}", h.getTest)
}

func (h *PublicHandlers) listTests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	highlightOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("highlight")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "highlight must be a boolean", http.StatusBadRequest))
			return
		}
		highlightOnly = parsed
	}

	tests, err := h.catalog.ListTests(ctx, highlightOnly)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]testPayload, 0, len(tests))
	for _, test := range tests {
		items = append(items, buildTestPayload(test))
	}
	writeJSONResponse(w, http.StatusOK, testListResponse{Tests: items, Count: len(items)})
}

func (h *PublicHandlers) getTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := chi.URLParam(r, "slug")
	test, err := h.catalog.GetTestBySlug(ctx, slug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, testResponse{Test: buildTestPayload(test)})
}

type testListResponse struct {
	Tests []testPayload `json:"tests"`
	Count int           `json:"count"`
}

type testResponse struct {
	Test testPayload `json:"test"`
}

type testPayload struct {
	ID          string              `json:"id"`
	Slug        string              `json:"slug"`
	Name        string              `json:"name"`
	Price       int64               `json:"price"`
	MRP         *int64              `json:"mrp,omitempty"`
	Highlight   bool                `json:"highlight"`
	Includes    []string            `json:"includes,omitempty"`
	Description string              `json:"description,omitempty"`
	ReportTime  string              `json:"reportTime,omitempty"`
	Preparation string              `json:"preparation,omitempty"`
	Purpose     string              `json:"purpose,omitempty"`
	Markers     []testMarkerPayload `json:"markers,omitempty"`
}

type testMarkerPayload struct {
	Name string `json:"name"`
	Info string `json:"info,omitempty"`
}

func buildTestPayload(test services.Test) testPayload {
	payload := testPayload{
		ID:          test.ID,
		Slug:        test.Slug,
		Name:        test.Name,
		Price:       test.Price,
		Highlight:   test.Highlight,
		Includes:    test.Includes,
		Description: test.Description,
		ReportTime:  test.ReportTime,
		Preparation: test.Preparation,
		Purpose:     test.Purpose,
	}
	if test.MRP != nil {
		mrp := *test.MRP
		payload.MRP = &mrp
	}
	for _, marker := range test.Markers {
		payload.Markers = append(payload.Markers, testMarkerPayload{Name: marker.Name, Info: marker.Info})
	}
	return payload
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("test_not_found", "test not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogStoreError):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog store is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog", http.StatusInternalServerError))
	}
}
