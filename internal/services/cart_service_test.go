package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type stubCartPricer struct {
	items map[string]PricedItem
	err   error
}

func (s *stubCartPricer) PriceItem(ctx context.Context, productID string) (PricedItem, error) {
	if s.err != nil {
		return PricedItem{}, s.err
	}
	item, ok := s.items[productID]
	if !ok {
		return PricedItem{}, ErrCatalogNotFound
	}
	return item, nil
}

func newStubCartPricer() *stubCartPricer {
	return &stubCartPricer{items: map[string]PricedItem{
		"test-101": {ProductID: "test-101", Name: "CBC", UnitPrice: 39900},
		"test-205": {ProductID: "test-205", Name: "Vitamin D (25-OH)", UnitPrice: 89900},
		"pkg-7":    {ProductID: "pkg-7", Name: "Full Body Checkup", UnitPrice: 199900},
		"a":        {ProductID: "a", Name: "Test a", UnitPrice: 10000},
		"b":        {ProductID: "b", Name: "Test b", UnitPrice: 10000},
		"c":        {ProductID: "c", Name: "Test c", UnitPrice: 10000},
	}}
}

func newTestCartService(t *testing.T) (CartService, *stubCartPricer) {
	t.Helper()
	pricer := newStubCartPricer()
	svc, err := NewCartService(CartServiceDeps{
		Pricer: pricer,
		Clock:  func() time.Time { return time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc, pricer
}

func TestCartAddItemMergesQuantity(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	add := AddCartItemCommand{UserID: "uid-1", ProductID: "test-205"}
	if _, err := svc.AddItem(ctx, add); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	view, err := svc.AddItem(ctx, add)
	if err != nil {
		t.Fatalf("AddItem repeat: %v", err)
	}

	if len(view.Items) != 1 {
		t.Fatalf("expected 1 distinct item, got %d", len(view.Items))
	}
	item := view.Items[0]
	if item.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", item.Quantity)
	}
	if item.Name != "Vitamin D (25-OH)" {
		t.Fatalf("expected catalog name, got %q", item.Name)
	}
	if view.Totals.TotalItems != 2 {
		t.Fatalf("expected total items 2, got %d", view.Totals.TotalItems)
	}
	if view.Totals.TotalPrice != 179800 {
		t.Fatalf("expected total 179800 paise, got %d", view.Totals.TotalPrice)
	}
}

func TestCartAddItemPricesFromCatalog(t *testing.T) {
	svc, pricer := newTestCartService(t)
	ctx := context.Background()

	view, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-205"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if view.Items[0].UnitPrice != 89900 || view.Items[0].Name != "Vitamin D (25-OH)" {
		t.Fatalf("expected catalog price and name, got %+v", view.Items[0])
	}

	// A catalog price change between adds does not touch the first-seen
	// entry; the repeat add only accumulates quantity.
	pricer.items["test-205"] = PricedItem{ProductID: "test-205", Name: "Vitamin D (25-OH)", UnitPrice: 99900}
	view, err = svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-205"})
	if err != nil {
		t.Fatalf("AddItem repeat: %v", err)
	}
	if view.Items[0].UnitPrice != 89900 || view.Totals.TotalPrice != 179800 {
		t.Fatalf("repeat add must keep the first-seen price, got %+v", view)
	}
}

func TestCartAddItemRejectsUnknownProduct(t *testing.T) {
	svc, pricer := newTestCartService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-999"}); !errors.Is(err, ErrCartUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}

	pricer.err = errors.New("firestore down")
	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-205"}); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable on catalog failure, got %v", err)
	}

	// Nothing landed in the cart on either failure.
	view, err := svc.Get(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("failed adds must not touch the cart, got %+v", view.Items)
	}
}

func TestCartRemoveItemIsInverseOfAdd(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	seed := []string{"test-101", "test-101", "pkg-7"}
	for _, id := range seed {
		if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: id}); err != nil {
			t.Fatalf("seed AddItem: %v", err)
		}
	}

	before, err := svc.Get(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-205"}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	after, err := svc.RemoveItem(ctx, "uid-1", "test-205")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("add then remove must restore prior cart\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestCartRemoveItemDecrementsThenDeletes(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-101"}); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}

	view, err := svc.RemoveItem(ctx, "uid-1", "test-101")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 1 {
		t.Fatalf("expected quantity 1 after decrement, got %+v", view.Items)
	}

	view, err = svc.RemoveItem(ctx, "uid-1", "test-101")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", view.Items)
	}
	if view.Totals.TotalItems != 0 || view.Totals.TotalPrice != 0 {
		t.Fatalf("expected zero totals, got %+v", view.Totals)
	}

	// Removing an absent id is a no-op, not an error.
	if _, err := svc.RemoveItem(ctx, "uid-1", "test-101"); err != nil {
		t.Fatalf("RemoveItem on missing id: %v", err)
	}
}

func TestCartTotalsAlwaysMatchItems(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	ops := []struct {
		add bool
		id  string
	}{
		{true, "a"}, {true, "b"}, {true, "a"}, {false, "b"},
		{true, "c"}, {false, "a"}, {false, "missing"}, {true, "a"},
	}
	for _, op := range ops {
		var view CartView
		var err error
		if op.add {
			view, err = svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: op.id})
		} else {
			view, err = svc.RemoveItem(ctx, "uid-1", op.id)
		}
		if err != nil {
			t.Fatalf("op %+v: %v", op, err)
		}

		sumQty := 0
		var sumPrice int64
		for _, item := range view.Items {
			if item.Quantity <= 0 {
				t.Fatalf("item %q observable with quantity %d", item.ID, item.Quantity)
			}
			sumQty += item.Quantity
			sumPrice += item.UnitPrice * int64(item.Quantity)
		}
		if view.Totals.TotalItems != sumQty || view.Totals.TotalPrice != sumPrice {
			t.Fatalf("totals drifted from items: %+v vs qty=%d price=%d", view.Totals, sumQty, sumPrice)
		}
	}
}

func TestCartClearAndDrop(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-101"}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := svc.Clear(ctx, "uid-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	view, err := svc.Get(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart after clear, got %+v", view.Items)
	}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-2", ProductID: "test-101"}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	svc.Drop("uid-2")
	view, err = svc.Get(ctx, "uid-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart after drop, got %+v", view.Items)
	}
}

func TestCartSnapshotIsDeepCopy(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "uid-1", ProductID: "test-101"}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	snapshot, err := svc.Snapshot(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snapshot[0].Quantity = 99
	snapshot[0].UnitPrice = 1

	view, err := svc.Get(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.Items[0].Quantity != 1 || view.Items[0].UnitPrice != 39900 {
		t.Fatalf("snapshot mutation leaked into live cart: %+v", view.Items[0])
	}
}

func TestCartAddItemValidatesInput(t *testing.T) {
	svc, _ := newTestCartService(t)
	ctx := context.Background()

	cases := []AddCartItemCommand{
		{UserID: "", ProductID: "test-101"},
		{UserID: "uid-1", ProductID: " "},
	}
	for _, cmd := range cases {
		if _, err := svc.AddItem(ctx, cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", cmd, err)
		}
	}
}
