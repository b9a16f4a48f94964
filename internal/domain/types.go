package domain

import (
	"strings"
	"time"
)

// CartItem stores a single test or package entry within a cart. Prices are
// held in paise (minor units) so totals never drift under summation.
type CartItem struct {
	ID        string
	Name      string
	UnitPrice int64
	Quantity  int
}

// LineTotal returns the price contribution of this entry.
func (i CartItem) LineTotal() int64 {
	if i.Quantity <= 0 {
		return 0
	}
	return i.UnitPrice * int64(i.Quantity)
}

// CartTotals summarizes derived aggregates for a cart. Both values are pure
// functions of the item list.
type CartTotals struct {
	TotalItems int
	TotalPrice int64
}

// TimeSlot enumerates the fixed home-collection windows offered at checkout.
type TimeSlot string

const (
	// TimeSlotMorning covers the 8AM-10AM collection window.
	TimeSlotMorning TimeSlot = "8AM-10AM"
	// TimeSlotLateMorning covers the 10AM-12PM collection window.
	TimeSlotLateMorning TimeSlot = "10AM-12PM"
	// TimeSlotNoon covers the 12PM-2PM collection window.
	TimeSlotNoon TimeSlot = "12PM-2PM"
	// TimeSlotEvening covers the 4PM-6PM collection window.
	TimeSlotEvening TimeSlot = "4PM-6PM"
)

// TimeSlots lists every bookable collection window in display order.
func TimeSlots() []TimeSlot {
	return []TimeSlot{TimeSlotMorning, TimeSlotLateMorning, TimeSlotNoon, TimeSlotEvening}
}

// ValidTimeSlot reports whether the value is one of the fixed windows.
func ValidTimeSlot(value string) bool {
	for _, slot := range TimeSlots() {
		if string(slot) == strings.TrimSpace(value) {
			return true
		}
	}
	return false
}

// DefaultPaymentMethod is the only payment option currently offered; payment
// is collected by the phlebotomist at the door.
const DefaultPaymentMethod = "Pay On Collection"

// BookingDetails captures the address, slot, and payment information gathered
// across the checkout steps. CollectionDate is a calendar date in YYYY-MM-DD.
type BookingDetails struct {
	FullName       string
	Email          string
	Mobile         string
	Address        string
	Pincode        string
	CollectionDate string
	TimeSlot       string
	PaymentMethod  string
}

// CheckoutStep identifies a stage of the three-step checkout wizard.
type CheckoutStep int

const (
	// StepAddress collects contact and collection-address fields.
	StepAddress CheckoutStep = iota + 1
	// StepSlot collects the collection date and time slot.
	StepSlot
	// StepPayment confirms the summary and exposes order placement.
	StepPayment
)

// String returns the human-readable step name.
func (s CheckoutStep) String() string {
	switch s {
	case StepAddress:
		return "address"
	case StepSlot:
		return "slot"
	case StepPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// OrderStatus enumerates the fulfillment lifecycle states recorded on orders.
// The values are owned by the external fulfillment process; this service only
// records and displays them.
type OrderStatus string

const (
	// OrderStatusPendingCollection is the initial status of every new order.
	OrderStatusPendingCollection OrderStatus = "Pending Collection"
	// OrderStatusConfirmed indicates the collection visit has been confirmed.
	OrderStatusConfirmed OrderStatus = "Confirmed"
	// OrderStatusProcessing indicates the sample is being analysed at the lab.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusReportReady indicates the diagnostic report is available.
	OrderStatusReportReady OrderStatus = "Report Ready"
	// OrderStatusCanceled indicates the booking was canceled.
	OrderStatusCanceled OrderStatus = "Canceled"
)

// KnownOrderStatuses lists every status the fulfillment pipeline may record.
func KnownOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPendingCollection,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusReportReady,
		OrderStatusCanceled,
	}
}

// ParseOrderStatus maps a stored status string onto the canonical enum.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	trimmed := strings.TrimSpace(value)
	for _, status := range KnownOrderStatuses() {
		if strings.EqualFold(string(status), trimmed) {
			return status, true
		}
	}
	return "", false
}

// DisplayLabel returns the user-facing label for the status. Unknown values
// from the store fall back to a neutral label rather than being invented.
func (s OrderStatus) DisplayLabel() string {
	if _, ok := ParseOrderStatus(string(s)); ok {
		return string(s)
	}
	return "In Progress"
}

// IsReschedulable reports whether the collection appointment may still be
// moved. Only orders awaiting collection qualify.
func (s OrderStatus) IsReschedulable() bool {
	return s == OrderStatusPendingCollection || s == OrderStatusConfirmed
}

// HasReport reports whether a diagnostic report exists for download.
func (s OrderStatus) HasReport() bool {
	return s == OrderStatusReportReady
}

// Order is the persisted record of a completed checkout. Items and
// BookingDetails are immutable snapshots taken at submission time; only
// Status changes afterwards, driven by the external fulfillment process.
type Order struct {
	ID             string
	UserID         string
	UserEmail      string
	Items          []CartItem
	TotalPrice     int64
	BookingDetails BookingDetails
	Status         OrderStatus
	ReportPath     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FamilyMember stores a dependent profile bookable under the same account.
type FamilyMember struct {
	Name     string
	Relation string
	Age      int
}

// UserProfile is the users/{uid} document merged with the identity provider
// data at session start.
type UserProfile struct {
	ID                string
	FullName          string
	Email             string
	Mobile            string
	Address           string
	Pincode           string
	Addresses         []string
	FamilyMembers     []FamilyMember
	IsAdmin           bool
	PreferredLanguage string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TestMarker describes one measured parameter within a diagnostic test.
type TestMarker struct {
	Name string
	Info string
}

// Test is a bookable diagnostic test or package from the catalog. MRP is an
// optional externally supplied list price; it is never derived from Price.
type Test struct {
	ID          string
	Slug        string
	Name        string
	Price       int64
	MRP         *int64
	Highlight   bool
	Includes    []string
	Description string
	ReportTime  string
	Preparation string
	Purpose     string
	Markers     []TestMarker
	UpdatedAt   time.Time
}
