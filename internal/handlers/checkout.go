package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/piiderlab/api/internal/platform/auth"
	"github.com/piiderlab/api/internal/platform/httpx"
	"github.com/piiderlab/api/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

// CheckoutHandlers drives the three-step booking wizard over HTTP.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	placing  RateLimiter
}

// NewCheckoutHandlers constructs handlers enforcing Firebase authentication
// before invoking the checkout service. The rate limiter bounds order
// submissions per user; nil disables it.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, placing RateLimiter) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		placing:  placing,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.begin)
	r.Get("/", h.state)
	r.Patch("/details", h.updateDetails)
	r.Post("/advance", h.advance)
	r.Post("/back", h.back)
	r.Post("/order", h.placeOrder)
	r.Get("/confirmation", h.confirmation)
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	state, err := h.checkout.Begin(ctx, services.BeginCheckoutCommand{
		UserID: identity.UID,
		Email:  identity.Email,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutResponse(state))
}

func (h *CheckoutHandlers) state(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	state, err := h.checkout.State(ctx, identity.UID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutResponse(state))
}

func (h *CheckoutHandlers) updateDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req updateDetailsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	state, err := h.checkout.UpdateDetails(ctx, services.UpdateDetailsCommand{
		UserID:         identity.UID,
		FullName:       req.FullName,
		Email:          req.Email,
		Mobile:         req.Mobile,
		Address:        req.Address,
		Pincode:        req.Pincode,
		CollectionDate: req.CollectionDate,
		TimeSlot:       req.TimeSlot,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutResponse(state))
}

// advance and back hand step a closure instead of a method value: a method
// value on a nil service would panic before step's nil check runs.
func (h *CheckoutHandlers) advance(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, func(ctx context.Context, userID string) (services.CheckoutState, error) {
		return h.checkout.Advance(ctx, userID)
	})
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, func(ctx context.Context, userID string) (services.CheckoutState, error) {
		return h.checkout.Back(ctx, userID)
	})
}

func (h *CheckoutHandlers) step(w http.ResponseWriter, r *http.Request, move func(context.Context, string) (services.CheckoutState, error)) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	state, err := move(ctx, identity.UID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutResponse(state))
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.placing != nil && !h.placing.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order submissions; try again shortly", http.StatusTooManyRequests))
		return
	}

	confirmation, err := h.checkout.PlaceOrder(ctx, services.PlaceCheckoutOrderCommand{
		UserID: identity.UID,
		Email:  identity.Email,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildConfirmationResponse(confirmation))
}

func (h *CheckoutHandlers) confirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	confirmation, err := h.checkout.Confirmation(ctx, identity.UID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildConfirmationResponse(confirmation))
}

type updateDetailsRequest struct {
	FullName       *string `json:"fullName"`
	Email          *string `json:"email"`
	Mobile         *string `json:"mobile"`
	Address        *string `json:"address"`
	Pincode        *string `json:"pincode"`
	CollectionDate *string `json:"collectionDate"`
	TimeSlot       *string `json:"timeSlot"`
}

type checkoutResponse struct {
	Step       string                 `json:"step"`
	Details    checkoutDetailsPayload `json:"details"`
	Items      []cartItemPayload      `json:"items"`
	TotalItems int                    `json:"totalItems"`
	TotalPrice int64                  `json:"totalPrice"`
	InFlight   bool                   `json:"inFlight"`
	ExitToCart bool                   `json:"exitToCart,omitempty"`
}

type checkoutDetailsPayload struct {
	FullName       string `json:"fullName,omitempty"`
	Email          string `json:"email,omitempty"`
	Mobile         string `json:"mobile,omitempty"`
	Address        string `json:"address,omitempty"`
	Pincode        string `json:"pincode,omitempty"`
	CollectionDate string `json:"collectionDate,omitempty"`
	TimeSlot       string `json:"timeSlot,omitempty"`
	PaymentMethod  string `json:"paymentMethod,omitempty"`
}

type confirmationResponse struct {
	OrderID        string `json:"orderId"`
	TotalPrice     int64  `json:"totalPrice"`
	CollectionSlot string `json:"collectionSlot"`
	PaymentMethod  string `json:"paymentMethod"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Mobile         string `json:"mobile"`
	Address        string `json:"address"`
	Pincode        string `json:"pincode"`
}

func buildCheckoutResponse(state services.CheckoutState) checkoutResponse {
	response := checkoutResponse{
		Step: state.Step.String(),
		Details: checkoutDetailsPayload{
			FullName:       state.Details.FullName,
			Email:          state.Details.Email,
			Mobile:         state.Details.Mobile,
			Address:        state.Details.Address,
			Pincode:        state.Details.Pincode,
			CollectionDate: state.Details.CollectionDate,
			TimeSlot:       state.Details.TimeSlot,
			PaymentMethod:  state.Details.PaymentMethod,
		},
		Items:      make([]cartItemPayload, 0, len(state.Items)),
		TotalItems: state.Totals.TotalItems,
		TotalPrice: state.Totals.TotalPrice,
		InFlight:   state.InFlight,
		ExitToCart: state.ExitToCart,
	}
	for _, item := range state.Items {
		response.Items = append(response.Items, cartItemPayload{
			ID:        item.ID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		})
	}
	return response
}

func buildConfirmationResponse(confirmation services.OrderConfirmation) confirmationResponse {
	return confirmationResponse{
		OrderID:        confirmation.OrderID,
		TotalPrice:     confirmation.TotalPrice,
		CollectionSlot: confirmation.CollectionSlot,
		PaymentMethod:  confirmation.PaymentMethod,
		FullName:       confirmation.FullName,
		Email:          confirmation.Email,
		Mobile:         confirmation.Mobile,
		Address:        confirmation.Address,
		Pincode:        confirmation.Pincode,
	}
}

func writeCheckoutUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutNotStarted):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_started", "checkout has not been started", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutExpired):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_expired", "checkout session expired; start again", http.StatusGone))
	case errors.Is(err, services.ErrCheckoutValidation):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_validation_failed", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutSubmissionInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("submission_in_flight", "an order submission is already in progress", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	case errors.Is(err, services.ErrCheckoutNoConfirmation):
		httpx.WriteError(ctx, w, httpx.NewError("no_confirmation", "no order confirmation available", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderStoreError), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order could not be saved; please retry", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
