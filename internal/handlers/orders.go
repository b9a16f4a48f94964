package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/piiderlab/api/internal/platform/auth"
	"github.com/piiderlab/api/internal/platform/httpx"
	"github.com/piiderlab/api/internal/services"
)

const maxOrderBodySize = 4 * 1024

// OrderHandlers exposes the authenticated order history endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/report", h.reportURL)
	r.Post("/{orderID}:reschedule", h.reschedule)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListForUser(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Orders: items, Count: len(items)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetForUser(ctx, identity.UID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) reportURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	result, err := h.orders.ReportURL(ctx, services.ReportURLCommand{
		UserID:  identity.UID,
		OrderID: orderID,
		AsAdmin: identity.HasAnyRole(auth.RoleLab, auth.RoleAdmin),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reportURLResponse{
		URL:       result.URL,
		ExpiresAt: formatTime(result.ExpiresAt),
	})
}

func (h *OrderHandlers) reschedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req rescheduleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Reschedule(ctx, services.RescheduleOrderCommand{
		UserID:         identity.UID,
		OrderID:        orderID,
		CollectionDate: req.CollectionDate,
		TimeSlot:       req.TimeSlot,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type rescheduleRequest struct {
	CollectionDate string `json:"collectionDate"`
	TimeSlot       string `json:"timeSlot"`
}

type orderListResponse struct {
	Orders []orderPayload `json:"orders"`
	Count  int            `json:"count"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type reportURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type orderPayload struct {
	ID             string                 `json:"id"`
	Items          []cartItemPayload      `json:"items"`
	TotalPrice     int64                  `json:"totalPrice"`
	Status         string                 `json:"status"`
	StatusLabel    string                 `json:"statusLabel"`
	Reschedulable  bool                   `json:"reschedulable"`
	HasReport      bool                   `json:"hasReport"`
	BookingDetails checkoutDetailsPayload `json:"bookingDetails"`
	CreatedAt      string                 `json:"createdAt,omitempty"`
	UpdatedAt      string                 `json:"updatedAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		Items:         make([]cartItemPayload, 0, len(order.Items)),
		TotalPrice:    order.TotalPrice,
		Status:        string(order.Status),
		StatusLabel:   order.Status.DisplayLabel(),
		Reschedulable: order.Status.IsReschedulable(),
		HasReport:     order.Status.HasReport(),
		BookingDetails: checkoutDetailsPayload{
			FullName:       order.BookingDetails.FullName,
			Email:          order.BookingDetails.Email,
			Mobile:         order.BookingDetails.Mobile,
			Address:        order.BookingDetails.Address,
			Pincode:        order.BookingDetails.Pincode,
			CollectionDate: order.BookingDetails.CollectionDate,
			TimeSlot:       order.BookingDetails.TimeSlot,
			PaymentMethod:  order.BookingDetails.PaymentMethod,
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ID:        item.ID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		})
	}
	return payload
}

func writeOrderUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("order_access_denied", "order belongs to a different user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderReportNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("report_not_ready", "report is not ready yet", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotReschedulable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_reschedulable", "collection has already been completed", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrOrderStoreError):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
