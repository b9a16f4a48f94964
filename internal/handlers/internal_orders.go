package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/piiderlab/api/internal/platform/httpx"
	"github.com/piiderlab/api/internal/services"
)

const maxStatusBodySize = 8 * 1024

// InternalOrderHandlers receives fulfillment status callbacks from the lab
// pipeline. The surrounding /internal group carries HMAC verification, so
// these handlers see only authenticated requests.
type InternalOrderHandlers struct {
	orders services.OrderService
}

// NewInternalOrderHandlers constructs the internal order webhook handlers.
func NewInternalOrderHandlers(orders services.OrderService) *InternalOrderHandlers {
	return &InternalOrderHandlers{orders: orders}
}

// Routes registers the /internal/orders endpoints.
func (h *InternalOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/{orderID}/status", h.updateStatus)
}

func (h *InternalOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}

	body, err := readLimitedBody(r, maxStatusBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:    orderID,
		Status:     req.Status,
		ReportPath: cloneStringPointer(req.ReportPath),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type updateStatusRequest struct {
	Status     string  `json:"status"`
	ReportPath *string `json:"reportPath"`
}
