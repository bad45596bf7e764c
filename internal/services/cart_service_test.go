package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
)

func newCartFixture(t *testing.T) (CartService, *stubRegistry) {
	t.Helper()
	reg := newStubRegistry()
	reg.products.put(domain.Product{ID: "p1", StoreID: "s1", CategoryID: "produce", Name: "Avocado", PriceCents: 250, Stock: 10, Active: true})
	reg.products.put(domain.Product{ID: "p2", StoreID: "s2", CategoryID: "bakery", Name: "Sourdough", PriceCents: 600, Stock: 3, Active: true})
	reg.products.put(domain.Product{ID: "p3", StoreID: "s1", CategoryID: "produce", Name: "Retired Item", PriceCents: 100, Stock: 5, Active: false})

	svc, err := NewCartService(CartServiceDeps{
		Registry: reg,
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc, reg
}

func TestCartAddItemMergesLines(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()
	identity := Identity{UserID: "user_1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	lines, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p1", Quantity: 3})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(lines))
	}
	if lines[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", lines[0].Quantity)
	}
	if lines[0].UnitPrice != 250 || lines[0].Name != "Avocado" {
		t.Fatalf("line must carry live catalog data: %+v", lines[0])
	}
}

func TestCartAddItemInsufficientStock(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, AddCartItemCommand{Identity: Identity{UserID: "user_1"}, ProductID: "p2", Quantity: 5})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.ProductID != "p2" || stockErr.Available != 3 || stockErr.Requested != 5 {
		t.Fatalf("unexpected stock error: %+v", stockErr)
	}

	lines, err := svc.GetLineItems(ctx, Identity{UserID: "user_1"})
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("failed add must not leave a line behind, got %d", len(lines))
	}
}

func TestCartAddItemMergeRejectsOverQuantityLimit(t *testing.T) {
	svc, reg := newCartFixture(t)
	ctx := context.Background()
	identity := Identity{UserID: "user_1"}
	reg.products.put(domain.Product{ID: "p4", StoreID: "s1", CategoryID: "pantry", Name: "Rice", PriceCents: 1200, Stock: 500, Active: true})

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p4", Quantity: 60}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	// Merging past the per-line limit must fail loudly, not truncate.
	_, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p4", Quantity: 60})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for merged quantity over the limit, got %v", err)
	}

	lines, err := svc.GetLineItems(ctx, identity)
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 60 {
		t.Fatalf("failed merge must leave the line untouched, got %+v", lines)
	}
}

func TestCartAddItemRejectsInactiveProduct(t *testing.T) {
	svc, _ := newCartFixture(t)

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{Identity: Identity{UserID: "user_1"}, ProductID: "p3", Quantity: 1})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for inactive product, got %v", err)
	}
}

func TestCartLinesDropDeletedProducts(t *testing.T) {
	svc, reg := newCartFixture(t)
	ctx := context.Background()
	identity := Identity{UserID: "user_1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("add p1: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p2", Quantity: 1}); err != nil {
		t.Fatalf("add p2: %v", err)
	}

	reg.products.mu.Lock()
	delete(reg.products.products, "p2")
	reg.products.mu.Unlock()

	lines, err := svc.GetLineItems(ctx, identity)
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	if len(lines) != 1 || lines[0].ProductID != "p1" {
		t.Fatalf("expected only the surviving product, got %+v", lines)
	}
}

func TestCartAnonymousLineKeyRoundTrip(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()
	identity := Identity{SessionID: "sess_1"}

	lines, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p1", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	key := lines[0].LineKey
	productID, _, ok := parseAnonLineKey(key)
	if !ok || productID != "p1" {
		t.Fatalf("line key %q failed to round trip", key)
	}

	lines, err = svc.UpdateItem(ctx, UpdateCartItemCommand{Identity: identity, LineKey: key, Quantity: 4})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if lines[0].Quantity != 4 {
		t.Fatalf("expected quantity 4 after update, got %d", lines[0].Quantity)
	}

	if err := svc.RemoveItem(ctx, identity, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	lines, err = svc.GetLineItems(ctx, identity)
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart after remove, got %d lines", len(lines))
	}
}

func TestCartRejectsForeignLineKeyFormat(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	// A user identity must not accept anonymous-format keys and vice versa.
	if _, err := svc.UpdateItem(ctx, UpdateCartItemCommand{
		Identity: Identity{UserID: "user_1"},
		LineKey:  "anonymous_p1_1717243200000",
		Quantity: 1,
	}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for anonymous key on user cart, got %v", err)
	}
	if _, err := svc.UpdateItem(ctx, UpdateCartItemCommand{
		Identity: Identity{SessionID: "sess_1"},
		LineKey:  "p1",
		Quantity: 1,
	}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for user key on anonymous cart, got %v", err)
	}
}

func TestCartMergeSessionIntoUserIdempotent(t *testing.T) {
	svc, reg := newCartFixture(t)
	ctx := context.Background()

	reg.anonCarts.carts["sess_1"] = domain.AnonymousCart{
		SessionID: "sess_1",
		Entries: []domain.AnonymousCartEntry{
			{ProductID: "p1", Quantity: 2, AddedAt: time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)},
			{ProductID: "p2", Quantity: 2, AddedAt: time.Date(2025, 5, 30, 9, 1, 0, 0, time.UTC)},
		},
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{Identity: Identity{UserID: "user_1"}, ProductID: "p2", Quantity: 2}); err != nil {
		t.Fatalf("seed user cart: %v", err)
	}

	if err := svc.MergeSessionIntoUser(ctx, "sess_1", "user_1"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	lines, err := svc.GetLineItems(ctx, Identity{UserID: "user_1"})
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	byProduct := map[string]int64{}
	for _, line := range lines {
		byProduct[line.ProductID] = line.Quantity
	}
	if byProduct["p1"] != 2 {
		t.Fatalf("expected p1 quantity 2, got %d", byProduct["p1"])
	}
	// 2 in the user cart plus 2 from the session exceeds stock 3; the merge
	// clamps instead of failing the login.
	if byProduct["p2"] != 3 {
		t.Fatalf("expected p2 clamped to stock 3, got %d", byProduct["p2"])
	}

	if _, err := svc.GetLineItems(ctx, Identity{SessionID: "sess_1"}); err != nil {
		t.Fatalf("session cart read after merge: %v", err)
	}

	// A replayed merge finds the emptied session blob and changes nothing.
	if err := svc.MergeSessionIntoUser(ctx, "sess_1", "user_1"); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	lines, err = svc.GetLineItems(ctx, Identity{UserID: "user_1"})
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	for _, line := range lines {
		if line.Quantity != byProduct[line.ProductID] {
			t.Fatalf("merge replay changed %s from %d to %d", line.ProductID, byProduct[line.ProductID], line.Quantity)
		}
	}
}

func TestCartWriteContentionSurfacesConflict(t *testing.T) {
	svc, reg := newCartFixture(t)
	reg.carts.conflictsLeft = cartWriteAttempts

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{Identity: Identity{UserID: "user_1"}, ProductID: "p1", Quantity: 1})
	if !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected conflict after exhausted retries, got %v", err)
	}
}

func TestCartValidatesIdentity(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()

	cases := []Identity{
		{},
		{UserID: "user_1", SessionID: "sess_1"},
	}
	for _, identity := range cases {
		if _, err := svc.GetLineItems(ctx, identity); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("identity %+v: expected invalid input, got %v", identity, err)
		}
	}
}

func TestCartClear(t *testing.T) {
	svc, _ := newCartFixture(t)
	ctx := context.Background()
	identity := Identity{UserID: "user_1"}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{Identity: identity, ProductID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.Clear(ctx, identity); err != nil {
		t.Fatalf("clear: %v", err)
	}
	lines, err := svc.GetLineItems(ctx, identity)
	if err != nil {
		t.Fatalf("get line items: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(lines))
	}

	// Clearing a session that never had a cart is a no-op.
	if err := svc.Clear(ctx, Identity{SessionID: "sess_never"}); err != nil {
		t.Fatalf("clear absent session cart: %v", err)
	}
}
