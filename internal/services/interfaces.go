package services

import (
	"context"
	"time"

	domain "github.com/piiderlab/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	CartItem           = domain.CartItem
	CartTotals         = domain.CartTotals
	BookingDetails     = domain.BookingDetails
	CheckoutStep       = domain.CheckoutStep
	TimeSlot           = domain.TimeSlot
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	UserProfile        = domain.UserProfile
	FamilyMember       = domain.FamilyMember
	Test               = domain.Test
	SystemHealthReport = domain.SystemHealthReport
)

// CartService owns the per-user in-memory cart and its derived totals.
type CartService interface {
	Get(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, userID string, itemID string) (CartView, error)
	Clear(ctx context.Context, userID string) error
	// Snapshot returns a deep copy of the item list for order building.
	Snapshot(ctx context.Context, userID string) ([]CartItem, error)
	// Drop discards the user's cart entirely, used on logout.
	Drop(userID string)
}

// CartView is the cart plus its derived aggregates. Totals are always
// recomputed from the item list, never stored.
type CartView struct {
	Items  []CartItem
	Totals CartTotals
}

// AddCartItemCommand identifies the catalog entry being added. The entry's
// name and price are resolved from the catalog, never taken from the caller.
// Repeat adds of the same ID accumulate quantity.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
}

// CheckoutService drives the three-step booking wizard and the one-shot
// confirmation hand-off.
type CheckoutService interface {
	Begin(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutState, error)
	State(ctx context.Context, userID string) (CheckoutState, error)
	UpdateDetails(ctx context.Context, cmd UpdateDetailsCommand) (CheckoutState, error)
	Advance(ctx context.Context, userID string) (CheckoutState, error)
	Back(ctx context.Context, userID string) (CheckoutState, error)
	PlaceOrder(ctx context.Context, cmd PlaceCheckoutOrderCommand) (OrderConfirmation, error)
	// Confirmation returns the confirmation exactly once; subsequent calls
	// fail until another order is placed.
	Confirmation(ctx context.Context, userID string) (OrderConfirmation, error)
	// Drop discards the user's wizard, used on logout.
	Drop(userID string)
}

// BeginCheckoutCommand opens the wizard for a user, prefilling contact fields
// from the stored profile.
type BeginCheckoutCommand struct {
	UserID string
	Email  string
}

// UpdateDetailsCommand patches booking fields. Nil pointers leave the stored
// value untouched.
type UpdateDetailsCommand struct {
	UserID         string
	FullName       *string
	Email          *string
	Mobile         *string
	Address        *string
	Pincode        *string
	CollectionDate *string
	TimeSlot       *string
}

// PlaceCheckoutOrderCommand carries the authenticated identity into order
// placement.
type PlaceCheckoutOrderCommand struct {
	UserID string
	Email  string
}

// CheckoutState is the wizard as seen by the client.
type CheckoutState struct {
	Step       CheckoutStep
	Details    BookingDetails
	Items      []CartItem
	Totals     CartTotals
	InFlight   bool
	ExitToCart bool
}

// OrderConfirmation is the one-time navigation payload shown after a
// successful checkout.
type OrderConfirmation struct {
	OrderID        string
	TotalPrice     int64
	CollectionSlot string
	PaymentMethod  string
	FullName       string
	Email          string
	Mobile         string
	Address        string
	Pincode        string
}

// OrderService persists orders and exposes the user's history.
type OrderService interface {
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	ListForUser(ctx context.Context, userID string) ([]Order, error)
	GetForUser(ctx context.Context, userID string, orderID string) (Order, error)
	ReportURL(ctx context.Context, cmd ReportURLCommand) (ReportURLResult, error)
	Reschedule(ctx context.Context, cmd RescheduleOrderCommand) (Order, error)
	// UpdateStatus records a transition reported by the external fulfillment
	// pipeline. Unknown status strings are rejected.
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// PlaceOrderCommand is the immutable snapshot captured at submission time.
type PlaceOrderCommand struct {
	UserID         string
	UserEmail      string
	Items          []CartItem
	TotalPrice     int64
	BookingDetails BookingDetails
}

// ReportURLCommand requests a signed download URL for an order's report.
type ReportURLCommand struct {
	UserID  string
	OrderID string
	// AsAdmin is set for lab and admin identities, which may fetch any report.
	AsAdmin bool
}

// ReportURLResult carries the signed URL and its expiry.
type ReportURLResult struct {
	URL       string
	ExpiresAt time.Time
}

// RescheduleOrderCommand moves the collection appointment of a pending order.
type RescheduleOrderCommand struct {
	UserID         string
	OrderID        string
	CollectionDate string
	TimeSlot       string
}

// UpdateOrderStatusCommand is produced by the fulfillment webhook.
type UpdateOrderStatusCommand struct {
	OrderID    string
	Status     string
	ReportPath *string
}

// OrderEventMessage is published to Pub/Sub on order lifecycle changes.
type OrderEventMessage struct {
	Event      string    `json:"event"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	TotalPaise int64     `json:"totalPaise,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher accepts order lifecycle notifications for downstream
// processing.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// UserService manages the users/{uid} profile document.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	// EnsureProfile creates the profile on first login and syncs identity
	// fields on every session start. It is idempotent.
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	AddFamilyMember(ctx context.Context, cmd AddFamilyMemberCommand) (UserProfile, error)
	RemoveFamilyMember(ctx context.Context, cmd RemoveFamilyMemberCommand) (UserProfile, error)
	// AddAddress saves a collection address to the profile's address book.
	// Duplicate saves collapse into one entry.
	AddAddress(ctx context.Context, cmd AddAddressCommand) (UserProfile, error)
	RemoveAddress(ctx context.Context, cmd RemoveAddressCommand) (UserProfile, error)
}

// EnsureProfileCommand carries the identity fields known at session start.
type EnsureProfileCommand struct {
	UserID      string
	Email       string
	DisplayName string
	Locale      string
}

// UpdateProfileCommand patches address-book fields. Nil pointers leave stored
// values untouched.
type UpdateProfileCommand struct {
	UserID            string
	FullName          *string
	Mobile            *string
	Address           *string
	Pincode           *string
	PreferredLanguage *string
}

// AddFamilyMemberCommand appends a dependent bookable under the account.
type AddFamilyMemberCommand struct {
	UserID   string
	Name     string
	Relation string
	Age      int
}

// RemoveFamilyMemberCommand deletes every family member matching the name.
// Removing an absent name is a no-op.
type RemoveFamilyMemberCommand struct {
	UserID string
	Name   string
}

// AddAddressCommand saves a collection address to the address book.
type AddAddressCommand struct {
	UserID  string
	Address string
}

// RemoveAddressCommand deletes a saved address. Removing an absent address is
// a no-op.
type RemoveAddressCommand struct {
	UserID  string
	Address string
}

// CatalogService reads the bookable test catalog. It is also the price
// authority for cart adds via PriceItem.
type CatalogService interface {
	ListTests(ctx context.Context, highlightOnly bool) ([]Test, error)
	GetTestBySlug(ctx context.Context, slug string) (Test, error)
	PriceItem(ctx context.Context, productID string) (PricedItem, error)
}

// SystemService aggregates dependency health for readiness probes.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
