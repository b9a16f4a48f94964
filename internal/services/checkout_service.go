package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/piiderlab/api/internal/domain"
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutUnavailable indicates the checkout service is missing dependencies.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrCheckoutCartEmpty indicates the wizard cannot be entered with an empty cart.
var ErrCheckoutCartEmpty = errors.New("checkout service: cart is empty")

// ErrCheckoutNotStarted indicates no wizard session exists for the user.
var ErrCheckoutNotStarted = errors.New("checkout service: not started")

// ErrCheckoutExpired indicates the wizard session outlived its TTL.
var ErrCheckoutExpired = errors.New("checkout service: session expired")

// ErrCheckoutValidation indicates a step's required fields are missing or invalid.
var ErrCheckoutValidation = errors.New("checkout service: validation failed")

// ErrCheckoutSubmissionInFlight indicates an order submission is outstanding.
var ErrCheckoutSubmissionInFlight = errors.New("checkout service: submission in flight")

// ErrCheckoutUnauthenticated indicates order placement was attempted without
// an authenticated identity.
var ErrCheckoutUnauthenticated = errors.New("checkout service: authentication required")

// ErrCheckoutNoConfirmation indicates no one-shot confirmation is pending.
var ErrCheckoutNoConfirmation = errors.New("checkout service: no confirmation available")

var (
	errCheckoutCartRequired   = errors.New("checkout service: cart service is required")
	errCheckoutOrdersRequired = errors.New("checkout service: order service is required")
	errCheckoutClockRequired  = errors.New("checkout service: clock is required")
)

const (
	defaultCheckoutSessionTTL = 45 * time.Minute
	collectionDateLayout      = "2006-01-02"
)

type cartAccessor interface {
	Get(ctx context.Context, userID string) (CartView, error)
	Snapshot(ctx context.Context, userID string) ([]CartItem, error)
	Clear(ctx context.Context, userID string) error
}

type orderPlacer interface {
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
}

type profileReader interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
}

// CheckoutServiceDeps wires the wizard's collaborators.
type CheckoutServiceDeps struct {
	Cart       cartAccessor
	Orders     orderPlacer
	Profiles   profileReader
	Clock      func() time.Time
	SessionTTL time.Duration
	Logger     func(context.Context, string, map[string]any)
}

type checkoutWizard struct {
	step         domain.CheckoutStep
	details      domain.BookingDetails
	inFlight     bool
	lastActivity time.Time
}

type checkoutService struct {
	cart     cartAccessor
	orders   orderPlacer
	profiles profileReader
	now      func() time.Time
	ttl      time.Duration
	logger   func(context.Context, string, map[string]any)
	policy   *bluemonday.Policy

	mu            sync.Mutex
	wizards       map[string]*checkoutWizard
	confirmations map[string]OrderConfirmation
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Cart == nil {
		return nil, errCheckoutCartRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = defaultCheckoutSessionTTL
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		cart:          deps.Cart,
		orders:        deps.Orders,
		profiles:      deps.Profiles,
		now:           func() time.Time { return deps.Clock().UTC() },
		ttl:           ttl,
		logger:        logger,
		policy:        bluemonday.StrictPolicy(),
		wizards:       make(map[string]*checkoutWizard),
		confirmations: make(map[string]OrderConfirmation),
	}, nil
}

// Begin opens the wizard at the address step. The entry guard rejects empty
// carts; contact fields are prefilled from the stored profile when available.
func (s *checkoutService) Begin(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutState, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutState{}, ErrCheckoutInvalidInput
	}

	view, err := s.cart.Get(ctx, uid)
	if err != nil {
		return CheckoutState{}, err
	}
	if len(view.Items) == 0 {
		return CheckoutState{}, ErrCheckoutCartEmpty
	}

	// Profile prefill happens before the lock; the live-wizard check and the
	// install share one critical section so two overlapping Begins cannot
	// both install and drop each other's edits.
	details := domain.BookingDetails{
		Email:         strings.TrimSpace(cmd.Email),
		PaymentMethod: domain.DefaultPaymentMethod,
	}
	if s.profiles != nil {
		if profile, err := s.profiles.GetProfile(ctx, uid); err == nil {
			details.FullName = profile.FullName
			details.Mobile = profile.Mobile
			details.Address = profile.Address
			details.Pincode = profile.Pincode
			if details.Email == "" {
				details.Email = profile.Email
			}
		}
	}

	s.mu.Lock()
	if wizard := s.liveWizard(uid); wizard != nil {
		// Begin is idempotent: re-entering resumes the existing session.
		wizard.lastActivity = s.now()
		state := s.stateLocked(wizard, view)
		s.mu.Unlock()
		return state, nil
	}
	wizard := &checkoutWizard{
		step:         domain.StepAddress,
		details:      details,
		lastActivity: s.now(),
	}
	s.wizards[uid] = wizard
	state := s.stateLocked(wizard, view)
	s.mu.Unlock()

	s.logger(ctx, "checkout.started", map[string]any{"userID": uid})
	return state, nil
}

// State returns the current wizard view.
func (s *checkoutService) State(ctx context.Context, userID string) (CheckoutState, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutState{}, ErrCheckoutInvalidInput
	}

	view, err := s.cart.Get(ctx, uid)
	if err != nil {
		return CheckoutState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wizard, err := s.requireWizard(uid)
	if err != nil {
		return CheckoutState{}, err
	}
	return s.stateLocked(wizard, view), nil
}

// UpdateDetails patches booking fields in place. Values are trimmed and
// HTML-stripped before storage; validation happens at Advance.
func (s *checkoutService) UpdateDetails(ctx context.Context, cmd UpdateDetailsCommand) (CheckoutState, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutState{}, ErrCheckoutInvalidInput
	}

	view, err := s.cart.Get(ctx, uid)
	if err != nil {
		return CheckoutState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wizard, err := s.requireWizard(uid)
	if err != nil {
		return CheckoutState{}, err
	}
	if wizard.inFlight {
		return CheckoutState{}, ErrCheckoutSubmissionInFlight
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = s.sanitize(*src)
		}
	}
	apply(&wizard.details.FullName, cmd.FullName)
	apply(&wizard.details.Email, cmd.Email)
	apply(&wizard.details.Mobile, cmd.Mobile)
	apply(&wizard.details.Address, cmd.Address)
	apply(&wizard.details.Pincode, cmd.Pincode)
	apply(&wizard.details.CollectionDate, cmd.CollectionDate)
	apply(&wizard.details.TimeSlot, cmd.TimeSlot)
	wizard.lastActivity = s.now()

	return s.stateLocked(wizard, view), nil
}

// Advance moves one step forward when the current step validates. On failure
// the step is unchanged and the error names the offending field.
func (s *checkoutService) Advance(ctx context.Context, userID string) (CheckoutState, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutState{}, ErrCheckoutInvalidInput
	}

	view, err := s.cart.Get(ctx, uid)
	if err != nil {
		return CheckoutState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wizard, err := s.requireWizard(uid)
	if err != nil {
		return CheckoutState{}, err
	}
	if wizard.inFlight {
		return CheckoutState{}, ErrCheckoutSubmissionInFlight
	}

	switch wizard.step {
	case domain.StepAddress:
		if err := validateAddressStep(wizard.details); err != nil {
			return CheckoutState{}, err
		}
		wizard.step = domain.StepSlot
	case domain.StepSlot:
		normalized, err := validateSlotStep(wizard.details, s.now())
		if err != nil {
			return CheckoutState{}, err
		}
		wizard.details.CollectionDate = normalized
		wizard.step = domain.StepPayment
	case domain.StepPayment:
		return CheckoutState{}, fmt.Errorf("%w: already at the payment step", ErrCheckoutValidation)
	default:
		return CheckoutState{}, ErrCheckoutUnavailable
	}
	wizard.lastActivity = s.now()

	return s.stateLocked(wizard, view), nil
}

// Back regresses one step without validation. From the address step the
// wizard exits back to the cart.
func (s *checkoutService) Back(ctx context.Context, userID string) (CheckoutState, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutState{}, ErrCheckoutInvalidInput
	}

	view, err := s.cart.Get(ctx, uid)
	if err != nil {
		return CheckoutState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wizard, err := s.requireWizard(uid)
	if err != nil {
		return CheckoutState{}, err
	}
	if wizard.inFlight {
		return CheckoutState{}, ErrCheckoutSubmissionInFlight
	}

	switch wizard.step {
	case domain.StepPayment:
		wizard.step = domain.StepSlot
	case domain.StepSlot:
		wizard.step = domain.StepAddress
	case domain.StepAddress:
		delete(s.wizards, uid)
		state := CheckoutState{
			Step:       domain.StepAddress,
			Details:    wizard.details,
			Items:      view.Items,
			Totals:     view.Totals,
			ExitToCart: true,
		}
		return state, nil
	}
	wizard.lastActivity = s.now()

	return s.stateLocked(wizard, view), nil
}

// PlaceOrder submits exactly one order for the wizard. The in-flight flag is
// set before the store call and cleared on every exit path, so a second call
// while the first is outstanding is refused instead of creating a duplicate.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceCheckoutOrderCommand) (OrderConfirmation, error) {
	uid := strings.TrimSpace(cmd.UserID)
	email := strings.TrimSpace(cmd.Email)
	if uid == "" || email == "" {
		// No identity, no store call.
		return OrderConfirmation{}, ErrCheckoutUnauthenticated
	}

	s.mu.Lock()
	wizard, err := s.requireWizard(uid)
	if err != nil {
		s.mu.Unlock()
		return OrderConfirmation{}, err
	}
	if wizard.step != domain.StepPayment {
		s.mu.Unlock()
		return OrderConfirmation{}, fmt.Errorf("%w: order can only be placed from the payment step", ErrCheckoutValidation)
	}
	if wizard.inFlight {
		s.mu.Unlock()
		return OrderConfirmation{}, ErrCheckoutSubmissionInFlight
	}
	wizard.inFlight = true
	details := wizard.details
	s.mu.Unlock()

	clearInFlight := func() {
		s.mu.Lock()
		if w, ok := s.wizards[uid]; ok {
			w.inFlight = false
		}
		s.mu.Unlock()
	}

	items, err := s.cart.Snapshot(ctx, uid)
	if err != nil {
		clearInFlight()
		return OrderConfirmation{}, err
	}
	if len(items) == 0 {
		clearInFlight()
		return OrderConfirmation{}, ErrCheckoutCartEmpty
	}

	normalizedDate, err := normalizeCollectionDate(details.CollectionDate)
	if err != nil {
		clearInFlight()
		return OrderConfirmation{}, fmt.Errorf("%w: collection date is invalid", ErrCheckoutValidation)
	}
	details.CollectionDate = normalizedDate
	if strings.TrimSpace(details.PaymentMethod) == "" {
		details.PaymentMethod = domain.DefaultPaymentMethod
	}
	if strings.TrimSpace(details.Email) == "" {
		details.Email = email
	}

	totals := computeCartTotals(items)
	order, err := s.orders.Place(ctx, PlaceOrderCommand{
		UserID:         uid,
		UserEmail:      email,
		Items:          items,
		TotalPrice:     totals.TotalPrice,
		BookingDetails: details,
	})
	if err != nil {
		// The cart and details stay untouched so the user can retry.
		clearInFlight()
		s.logger(ctx, "checkout.place_order_failed", map[string]any{
			"userID": uid,
			"error":  err.Error(),
		})
		return OrderConfirmation{}, err
	}

	confirmation := OrderConfirmation{
		OrderID:        order.ID,
		TotalPrice:     order.TotalPrice,
		CollectionSlot: formatCollectionSlot(details.CollectionDate, details.TimeSlot),
		PaymentMethod:  details.PaymentMethod,
		FullName:       details.FullName,
		Email:          details.Email,
		Mobile:         details.Mobile,
		Address:        details.Address,
		Pincode:        details.Pincode,
	}

	if err := s.cart.Clear(ctx, uid); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userID": uid,
			"error":  err.Error(),
		})
	}

	s.mu.Lock()
	delete(s.wizards, uid)
	s.confirmations[uid] = confirmation
	s.mu.Unlock()

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"userID":  uid,
		"orderID": order.ID,
		"total":   order.TotalPrice,
	})
	return confirmation, nil
}

// Confirmation hands the one-shot confirmation over exactly once. A second
// read, or a direct visit with no checkout behind it, is refused.
func (s *checkoutService) Confirmation(ctx context.Context, userID string) (OrderConfirmation, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return OrderConfirmation{}, ErrCheckoutInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	confirmation, ok := s.confirmations[uid]
	if !ok {
		return OrderConfirmation{}, ErrCheckoutNoConfirmation
	}
	delete(s.confirmations, uid)
	return confirmation, nil
}

// Drop discards the wizard and any unconsumed confirmation, used at logout.
func (s *checkoutService) Drop(userID string) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return
	}
	s.mu.Lock()
	delete(s.wizards, uid)
	delete(s.confirmations, uid)
	s.mu.Unlock()
}

// liveWizard returns the wizard when present and fresh, expiring stale ones.
// Callers hold s.mu.
func (s *checkoutService) liveWizard(uid string) *checkoutWizard {
	wizard, ok := s.wizards[uid]
	if !ok {
		return nil
	}
	if s.now().Sub(wizard.lastActivity) > s.ttl {
		delete(s.wizards, uid)
		return nil
	}
	return wizard
}

// requireWizard distinguishes a never-started session from an expired one.
// Callers hold s.mu.
func (s *checkoutService) requireWizard(uid string) (*checkoutWizard, error) {
	wizard, ok := s.wizards[uid]
	if !ok {
		return nil, ErrCheckoutNotStarted
	}
	if s.now().Sub(wizard.lastActivity) > s.ttl {
		delete(s.wizards, uid)
		return nil, ErrCheckoutExpired
	}
	return wizard, nil
}

func (s *checkoutService) stateLocked(wizard *checkoutWizard, view CartView) CheckoutState {
	return CheckoutState{
		Step:     wizard.step,
		Details:  wizard.details,
		Items:    view.Items,
		Totals:   view.Totals,
		InFlight: wizard.inFlight,
	}
}

func (s *checkoutService) sanitize(value string) string {
	return strings.TrimSpace(s.policy.Sanitize(value))
}

func validateAddressStep(details domain.BookingDetails) error {
	switch {
	case strings.TrimSpace(details.FullName) == "":
		return fmt.Errorf("%w: full name is required", ErrCheckoutValidation)
	case strings.TrimSpace(details.Address) == "":
		return fmt.Errorf("%w: address is required", ErrCheckoutValidation)
	case strings.TrimSpace(details.Pincode) == "":
		return fmt.Errorf("%w: pincode is required", ErrCheckoutValidation)
	case strings.TrimSpace(details.Mobile) == "":
		return fmt.Errorf("%w: mobile number is required", ErrCheckoutValidation)
	}
	return nil
}

func validateSlotStep(details domain.BookingDetails, now time.Time) (string, error) {
	normalized, err := normalizeCollectionDate(details.CollectionDate)
	if err != nil {
		return "", fmt.Errorf("%w: collection date is required", ErrCheckoutValidation)
	}

	chosen, err := time.Parse(collectionDateLayout, normalized)
	if err != nil {
		return "", fmt.Errorf("%w: collection date is invalid", ErrCheckoutValidation)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if chosen.Before(today) {
		return "", fmt.Errorf("%w: collection date must be today or later", ErrCheckoutValidation)
	}

	if !domain.ValidTimeSlot(details.TimeSlot) {
		return "", fmt.Errorf("%w: time slot must be one of the offered windows", ErrCheckoutValidation)
	}
	return normalized, nil
}

// normalizeCollectionDate canonicalizes the stored date to YYYY-MM-DD. RFC3339
// timestamps are accepted and reduced to their calendar date.
func normalizeCollectionDate(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("collection date is empty")
	}
	if parsed, err := time.Parse(collectionDateLayout, trimmed); err == nil {
		return parsed.Format(collectionDateLayout), nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.Format(collectionDateLayout), nil
	}
	return "", fmt.Errorf("collection date %q is not a calendar date", trimmed)
}

func formatCollectionSlot(date string, slot string) string {
	date = strings.TrimSpace(date)
	slot = strings.TrimSpace(slot)
	if date == "" {
		return slot
	}
	if slot == "" {
		return date
	}
	return fmt.Sprintf("%s (%s)", date, slot)
}
