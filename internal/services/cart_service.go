package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/piiderlab/api/internal/domain"
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnknownProduct indicates the product id has no catalog entry.
var ErrCartUnknownProduct = errors.New("cart service: unknown product")

// ErrCartUnavailable indicates the cart service is missing dependencies.
var ErrCartUnavailable = errors.New("cart service: unavailable")

var (
	errCartClockRequired  = errors.New("cart service: clock is required")
	errCartPricerRequired = errors.New("cart service: pricer is required")
)

const maxCartItemNameLength = 200

// CartPricer resolves the catalog entry backing a cart add. The catalog is
// the price authority; names and prices sent by clients are never persisted.
type CartPricer interface {
	PriceItem(ctx context.Context, productID string) (PricedItem, error)
}

// PricedItem is the catalog-resolved identity of a bookable product.
type PricedItem struct {
	ProductID string
	Name      string
	UnitPrice int64
}

// CartServiceDeps wires the cart service dependencies.
type CartServiceDeps struct {
	Pricer CartPricer
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

// cartService keeps one item list per user. Carts are session-scoped, not
// persisted: a mutex-guarded registry keyed by UID, dropped on logout.
type cartService struct {
	mu     sync.RWMutex
	carts  map[string][]domain.CartItem
	pricer CartPricer
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Pricer == nil {
		return nil, errCartPricerRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:  make(map[string][]domain.CartItem),
		pricer: deps.Pricer,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// Get returns the cart with derived totals, which are always recomputed from
// the item list.
func (s *cartService) Get(ctx context.Context, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}

	s.mu.RLock()
	items := cloneCartItems(s.carts[uid])
	s.mu.RUnlock()

	return newCartView(items), nil
}

// AddItem merges the product into the cart. Name and price come from the
// catalog lookup, never from the caller. An existing entry gains quantity one
// and keeps its first-seen name and price; a new entry starts at one.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	priced, err := s.pricer.PriceItem(ctx, productID)
	if err != nil {
		switch {
		case errors.Is(err, ErrCatalogNotFound):
			return CartView{}, fmt.Errorf("%w: %s", ErrCartUnknownProduct, productID)
		case errors.Is(err, ErrCatalogInvalidInput):
			return CartView{}, fmt.Errorf("%w: product id is invalid", ErrCartInvalidInput)
		default:
			return CartView{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	name := strings.TrimSpace(priced.Name)
	if name == "" || len(name) > maxCartItemNameLength || priced.UnitPrice < 0 {
		return CartView{}, fmt.Errorf("%w: catalog entry %s is not bookable", ErrCartUnknownProduct, productID)
	}

	s.mu.Lock()
	items := s.carts[uid]
	idx := indexOfCartItem(items, productID)
	if idx >= 0 {
		items[idx].Quantity++
	} else {
		items = append(items, domain.CartItem{
			ID:        productID,
			Name:      name,
			UnitPrice: priced.UnitPrice,
			Quantity:  1,
		})
	}
	s.carts[uid] = items
	view := newCartView(cloneCartItems(items))
	s.mu.Unlock()

	s.logger(ctx, "cart.item_added", map[string]any{
		"userID":    uid,
		"productID": productID,
		"items":     view.Totals.TotalItems,
	})
	return view, nil
}

// RemoveItem decrements the entry's quantity, deleting it at one. A missing
// ID is a no-op rather than an error.
func (s *cartService) RemoveItem(ctx context.Context, userID string, itemID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return CartView{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}

	s.mu.Lock()
	items := s.carts[uid]
	idx := indexOfCartItem(items, id)
	if idx >= 0 {
		if items[idx].Quantity > 1 {
			items[idx].Quantity--
		} else {
			items = append(items[:idx], items[idx+1:]...)
		}
		if len(items) == 0 {
			delete(s.carts, uid)
		} else {
			s.carts[uid] = items
		}
	}
	view := newCartView(cloneCartItems(items))
	s.mu.Unlock()

	return view, nil
}

// Clear empties the cart unconditionally.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	s.mu.Lock()
	delete(s.carts, uid)
	s.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy of the item list for order building. Mutating
// the returned slice never affects the live cart.
func (s *cartService) Snapshot(ctx context.Context, userID string) ([]CartItem, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrCartInvalidInput
	}

	s.mu.RLock()
	items := cloneCartItems(s.carts[uid])
	s.mu.RUnlock()
	return items, nil
}

// Drop discards the cart entirely, used at logout.
func (s *cartService) Drop(userID string) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return
	}
	s.mu.Lock()
	delete(s.carts, uid)
	s.mu.Unlock()
}

func newCartView(items []domain.CartItem) CartView {
	return CartView{Items: items, Totals: computeCartTotals(items)}
}

// computeCartTotals is the single place totals are derived. Prices are int64
// paise so summation cannot drift.
func computeCartTotals(items []domain.CartItem) domain.CartTotals {
	totals := domain.CartTotals{}
	for _, item := range items {
		totals.TotalItems += item.Quantity
		totals.TotalPrice += item.LineTotal()
	}
	return totals
}

func indexOfCartItem(items []domain.CartItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out
}
