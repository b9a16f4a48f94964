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

const orderCollection = "orders"

// OrderRepository persists orders in Firestore. Order documents are written
// once at checkout; afterwards only the fulfillment fields change.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. Create preconditions make the write fail
// with a conflict when the ID is already taken, so a retried submission can
// never yield two orders.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if strings.TrimSpace(order.UserID) == "" {
		return domain.Order{}, errors.New("order user id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}

	doc := fromDomainOrder(order)
	result, err := docRef.Create(ctx, doc)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}

	saved := toDomainOrder(doc)
	saved.ID = order.ID
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = result.UpdateTime
	}
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = result.UpdateTime
	}
	return saved, nil
}

// FindByID loads a single order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	order := toDomainOrder(doc.Data)
	order.ID = doc.ID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = doc.UpdateTime
	}
	return order, nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		trimmed := strings.TrimSpace(string(s))
		if trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", strings.TrimSpace(userID))
		if len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := toDomainOrder(doc.Data)
		order.ID = doc.ID
		if order.CreatedAt.IsZero() {
			order.CreatedAt = doc.CreateTime
		}
		if order.UpdatedAt.IsZero() {
			order.UpdatedAt = doc.UpdateTime
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// UpdateStatus transitions the fulfillment status inside a transaction so a
// concurrent update cannot be lost. ReportPath is written only when provided.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, reportPath *string, now time.Time) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(newStatus)},
		{Path: "updatedAt", Value: now.UTC()},
	}
	if reportPath != nil {
		updates = append(updates, firestore.Update{Path: "reportPath", Value: strings.TrimSpace(*reportPath)})
	}

	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(docRef); err != nil {
			return err
		}
		return tx.Update(docRef, updates)
	}); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update_status", err)
	}

	return r.FindByID(ctx, orderID)
}

// Reschedule moves the collection appointment. Orders already collected are
// rejected with a conflict so the caller can surface a meaningful error.
func (r *OrderRepository) Reschedule(ctx context.Context, orderID string, collectionDate string, slot domain.TimeSlot, now time.Time) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}

		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		current, _ := domain.ParseOrderStatus(doc.Status)
		if !current.IsReschedulable() {
			return status.Error(codes.FailedPrecondition, "order collection already completed")
		}

		return tx.Update(docRef, []firestore.Update{
			{Path: "bookingDetails.collectionDate", Value: strings.TrimSpace(collectionDate)},
			{Path: "bookingDetails.timeSlot", Value: string(slot)},
			{Path: "updatedAt", Value: now.UTC()},
		})
	}); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.reschedule", err)
	}

	return r.FindByID(ctx, orderID)
}

type orderDocument struct {
	UserID         string                 `firestore:"userId"`
	UserEmail      string                 `firestore:"userEmail"`
	Items          []orderItemDocument    `firestore:"items"`
	TotalPrice     int64                  `firestore:"totalPrice"`
	BookingDetails bookingDetailsDocument `firestore:"bookingDetails"`
	Status         string                 `firestore:"status"`
	ReportPath     string                 `firestore:"reportPath,omitempty"`
	CreatedAt      time.Time              `firestore:"createdAt,serverTimestamp"`
	UpdatedAt      time.Time              `firestore:"updatedAt,serverTimestamp"`
}

type orderItemDocument struct {
	ID        string `firestore:"id"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

type bookingDetailsDocument struct {
	FullName       string `firestore:"fullName"`
	Email          string `firestore:"email"`
	Mobile         string `firestore:"mobile"`
	Address        string `firestore:"address"`
	Pincode        string `firestore:"pincode"`
	CollectionDate string `firestore:"collectionDate"`
	TimeSlot       string `firestore:"timeSlot"`
	PaymentMethod  string `firestore:"paymentMethod"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:        strings.TrimSpace(item.ID),
			Name:      strings.TrimSpace(item.Name),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	// Zero timestamps are filled in by Firestore at write time via the
	// serverTimestamp tag, so the client clock never decides createdAt.
	return orderDocument{
		UserID:     strings.TrimSpace(order.UserID),
		UserEmail:  strings.ToLower(strings.TrimSpace(order.UserEmail)),
		Items:      items,
		TotalPrice: order.TotalPrice,
		BookingDetails: bookingDetailsDocument{
			FullName:       strings.TrimSpace(order.BookingDetails.FullName),
			Email:          strings.ToLower(strings.TrimSpace(order.BookingDetails.Email)),
			Mobile:         strings.TrimSpace(order.BookingDetails.Mobile),
			Address:        strings.TrimSpace(order.BookingDetails.Address),
			Pincode:        strings.TrimSpace(order.BookingDetails.Pincode),
			CollectionDate: strings.TrimSpace(order.BookingDetails.CollectionDate),
			TimeSlot:       strings.TrimSpace(order.BookingDetails.TimeSlot),
			PaymentMethod:  strings.TrimSpace(order.BookingDetails.PaymentMethod),
		},
		Status:     string(order.Status),
		ReportPath: strings.TrimSpace(order.ReportPath),
		CreatedAt:  order.CreatedAt.UTC(),
		UpdatedAt:  order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(doc orderDocument) domain.Order {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return domain.Order{
		UserID:     doc.UserID,
		UserEmail:  doc.UserEmail,
		Items:      items,
		TotalPrice: doc.TotalPrice,
		BookingDetails: domain.BookingDetails{
			FullName:       doc.BookingDetails.FullName,
			Email:          doc.BookingDetails.Email,
			Mobile:         doc.BookingDetails.Mobile,
			Address:        doc.BookingDetails.Address,
			Pincode:        doc.BookingDetails.Pincode,
			CollectionDate: doc.BookingDetails.CollectionDate,
			TimeSlot:       doc.BookingDetails.TimeSlot,
			PaymentMethod:  doc.BookingDetails.PaymentMethod,
		},
		Status:     domain.OrderStatus(doc.Status),
		ReportPath: doc.ReportPath,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
