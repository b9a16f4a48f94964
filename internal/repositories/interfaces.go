package repositories

import (
	"context"
	"time"

	domain "github.com/piiderlab/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order records created at checkout and queried from
// the account area.
type OrderRepository interface {
	// Insert creates the order document. It fails with a conflict error when a
	// document with the same ID already exists, which keeps retried
	// submissions from producing duplicates.
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) ([]domain.Order, error)
	// UpdateStatus records a fulfillment status transition. ReportPath is only
	// written when non-nil.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, reportPath *string, now time.Time) (domain.Order, error)
	// Reschedule moves the collection appointment for orders that have not
	// been collected yet.
	Reschedule(ctx context.Context, orderID string, collectionDate string, slot domain.TimeSlot, now time.Time) (domain.Order, error)
}

// OrderListFilter bounds and filters user order listings.
type OrderListFilter struct {
	Status []domain.OrderStatus
	Limit  int
}

// UserRepository stores user profile documents keyed by Firebase UID.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	// Upsert merges the profile into the stored document, creating it when
	// absent. Zero-valued fields never clobber existing data.
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	AddFamilyMember(ctx context.Context, userID string, member domain.FamilyMember, now time.Time) (domain.UserProfile, error)
	// RemoveFamilyMember deletes every member whose name matches. No match is
	// a no-op, not an error.
	RemoveFamilyMember(ctx context.Context, userID string, name string, now time.Time) (domain.UserProfile, error)
	// AddAddress appends to the saved address book, collapsing duplicates.
	AddAddress(ctx context.Context, userID string, address string, now time.Time) (domain.UserProfile, error)
	RemoveAddress(ctx context.Context, userID string, address string, now time.Time) (domain.UserProfile, error)
}

// CatalogRepository reads the bookable test and package catalog.
type CatalogRepository interface {
	ListTests(ctx context.Context, filter TestFilter) ([]domain.Test, error)
	FindTestByID(ctx context.Context, testID string) (domain.Test, error)
	FindTestBySlug(ctx context.Context, slug string) (domain.Test, error)
}

// TestFilter narrows catalog listings.
type TestFilter struct {
	HighlightOnly bool
	Limit         int
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
