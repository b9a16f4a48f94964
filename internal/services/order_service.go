package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/piiderlab/api/internal/domain"
	pstorage "github.com/piiderlab/api/internal/platform/storage"
	"github.com/piiderlab/api/internal/repositories"
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderUnavailable indicates the order service is missing dependencies.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// ErrOrderNotFound indicates the order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderAccessDenied indicates the order belongs to a different user. Kept
// distinct from not-found so the two surface different messages.
var ErrOrderAccessDenied = errors.New("order service: access denied")

// ErrOrderConflict indicates a concurrent modification or duplicate create.
var ErrOrderConflict = errors.New("order service: conflict")

// ErrOrderStoreError indicates the backing store failed; the caller may retry.
var ErrOrderStoreError = errors.New("order service: store error")

// ErrOrderReportNotReady indicates no diagnostic report exists yet.
var ErrOrderReportNotReady = errors.New("order service: report not ready")

// ErrOrderNotReschedulable indicates the collection has already happened.
var ErrOrderNotReschedulable = errors.New("order service: collection already completed")

var (
	errOrderRepositoryRequired = errors.New("order service: repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

const (
	orderIDPrefix           = "ord_"
	defaultReportURLExpiry  = 5 * time.Minute
	eventOrderCreated       = "order.created"
	eventOrderStatusChanged = "order.status_changed"
)

type reportSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts pstorage.SignedURLOptions) (pstorage.SignedURLResult, error)
}

// OrderServiceDeps wires the order service dependencies. Publisher and Signer
// are optional; without them events are skipped and report URLs unavailable.
type OrderServiceDeps struct {
	Repository    repositories.OrderRepository
	Publisher     OrderEventPublisher
	Signer        reportSigner
	ReportsBucket string
	ReportURLTTL  time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(context.Context, string, map[string]any)
}

type orderService struct {
	repo      repositories.OrderRepository
	publisher OrderEventPublisher
	signer    reportSigner
	bucket    string
	urlTTL    time.Duration
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	urlTTL := deps.ReportURLTTL
	if urlTTL <= 0 {
		urlTTL = defaultReportURLExpiry
	}

	return &orderService{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		signer:    deps.Signer,
		bucket:    strings.TrimSpace(deps.ReportsBucket),
		urlTTL:    urlTTL,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// Place persists the checkout snapshot as exactly one order document with the
// initial "Pending Collection" status.
func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	email := strings.TrimSpace(cmd.UserEmail)
	if uid == "" || email == "" {
		return Order{}, fmt.Errorf("%w: user identity is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order requires at least one item", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.ID) == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: order item %q is malformed", ErrOrderInvalidInput, item.ID)
		}
	}
	derived := computeCartTotals(cmd.Items)
	if cmd.TotalPrice != derived.TotalPrice {
		return Order{}, fmt.Errorf("%w: total %d does not match item sum %d", ErrOrderInvalidInput, cmd.TotalPrice, derived.TotalPrice)
	}
	if err := validateAddressStep(cmd.BookingDetails); err != nil {
		return Order{}, fmt.Errorf("%w: booking details incomplete", ErrOrderInvalidInput)
	}
	normalizedDate, err := normalizeCollectionDate(cmd.BookingDetails.CollectionDate)
	if err != nil {
		return Order{}, fmt.Errorf("%w: collection date is invalid", ErrOrderInvalidInput)
	}
	if !domain.ValidTimeSlot(cmd.BookingDetails.TimeSlot) {
		return Order{}, fmt.Errorf("%w: time slot is invalid", ErrOrderInvalidInput)
	}

	details := cmd.BookingDetails
	details.CollectionDate = normalizedDate
	if strings.TrimSpace(details.PaymentMethod) == "" {
		details.PaymentMethod = domain.DefaultPaymentMethod
	}

	order := domain.Order{
		ID:             orderIDPrefix + strings.ToLower(strings.TrimSpace(s.newID())),
		UserID:         uid,
		UserEmail:      email,
		Items:          cloneCartItems(cmd.Items),
		TotalPrice:     derived.TotalPrice,
		BookingDetails: details,
		Status:         domain.OrderStatusPendingCollection,
	}

	saved, err := s.repo.Insert(ctx, order)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:      eventOrderCreated,
		OrderID:    saved.ID,
		UserID:     saved.UserID,
		Status:     string(saved.Status),
		TotalPaise: saved.TotalPrice,
		OccurredAt: s.now(),
	})
	return saved, nil
}

// ListForUser returns the user's order history newest first.
func (s *orderService) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrOrderInvalidInput
	}

	orders, err := s.repo.ListByUser(ctx, uid, repositories.OrderListFilter{})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return orders, nil
}

// GetForUser loads one order, distinguishing a missing order from one owned
// by somebody else.
func (s *orderService) GetForUser(ctx context.Context, userID string, orderID string) (Order, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(orderID)
	if uid == "" || id == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.UserID != uid {
		return Order{}, ErrOrderAccessDenied
	}
	return order, nil
}

// ReportURL issues a signed download URL for the diagnostic report PDF.
func (s *orderService) ReportURL(ctx context.Context, cmd ReportURLCommand) (ReportURLResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" || (uid == "" && !cmd.AsAdmin) {
		return ReportURLResult{}, ErrOrderInvalidInput
	}
	if s.signer == nil || s.bucket == "" {
		return ReportURLResult{}, ErrOrderUnavailable
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ReportURLResult{}, s.translateRepoError(err)
	}
	if !cmd.AsAdmin && order.UserID != uid {
		return ReportURLResult{}, ErrOrderAccessDenied
	}
	if !order.Status.HasReport() {
		return ReportURLResult{}, ErrOrderReportNotReady
	}

	object := strings.TrimSpace(order.ReportPath)
	if object == "" {
		object, err = pstorage.ReportObjectPath(order.ID, "")
		if err != nil {
			return ReportURLResult{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, object, pstorage.SignedURLOptions{
		Download: &pstorage.DownloadOptions{
			ExpiresIn: s.urlTTL,
			// Ownership was checked above against the order document.
			AllowAnonymous: true,
			Disposition:    fmt.Sprintf("attachment; filename=%q", order.ID+"-report.pdf"),
			ResponseType:   "application/pdf",
		},
	})
	if err != nil {
		return ReportURLResult{}, fmt.Errorf("%w: sign report url: %v", ErrOrderUnavailable, err)
	}

	s.logger(ctx, "order.report_url_issued", map[string]any{
		"orderID": order.ID,
		"userID":  uid,
	})
	return ReportURLResult{URL: result.URL, ExpiresAt: result.ExpiresAt}, nil
}

// Reschedule moves the collection appointment for a still-pending order.
func (s *orderService) Reschedule(ctx context.Context, cmd RescheduleOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	id := strings.TrimSpace(cmd.OrderID)
	if uid == "" || id == "" {
		return Order{}, ErrOrderInvalidInput
	}
	normalizedDate, err := normalizeCollectionDate(cmd.CollectionDate)
	if err != nil {
		return Order{}, fmt.Errorf("%w: collection date is invalid", ErrOrderInvalidInput)
	}
	if !domain.ValidTimeSlot(cmd.TimeSlot) {
		return Order{}, fmt.Errorf("%w: time slot is invalid", ErrOrderInvalidInput)
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.UserID != uid {
		return Order{}, ErrOrderAccessDenied
	}
	if !order.Status.IsReschedulable() {
		return Order{}, ErrOrderNotReschedulable
	}

	updated, err := s.repo.Reschedule(ctx, id, normalizedDate, domain.TimeSlot(strings.TrimSpace(cmd.TimeSlot)), s.now())
	if err != nil {
		if isRepoConflict(err) {
			return Order{}, ErrOrderNotReschedulable
		}
		return Order{}, s.translateRepoError(err)
	}
	return updated, nil
}

// UpdateStatus records a fulfillment transition reported by the lab pipeline.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, ErrOrderInvalidInput
	}

	// Status values are owned by the fulfillment process but must still map
	// onto the canonical set; anything else is rejected, never stored.
	parsed, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var reportPath *string
	if cmd.ReportPath != nil {
		trimmed := strings.TrimSpace(*cmd.ReportPath)
		if trimmed != "" {
			reportPath = &trimmed
		}
	}
	if parsed == domain.OrderStatusReportReady && reportPath == nil {
		object, err := pstorage.ReportObjectPath(id, "")
		if err == nil {
			reportPath = &object
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, id, parsed, reportPath, s.now())
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:      eventOrderStatusChanged,
		OrderID:    updated.ID,
		UserID:     updated.UserID,
		Status:     string(updated.Status),
		OccurredAt: s.now(),
	})
	return updated, nil
}

// publishEvent notifies downstream consumers best effort; a publish failure
// never fails the order operation.
func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"event":   message.Event,
			"orderID": message.OrderID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrOrderNotFound
	case isRepoConflict(err):
		return ErrOrderConflict
	default:
		return fmt.Errorf("%w: %v", ErrOrderStoreError, err)
	}
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
