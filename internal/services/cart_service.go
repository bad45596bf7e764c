package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/repositories"
)

var (
	errCartRegistryRequired = errors.New("cart service: registry is required")
	errCartClockRequired    = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartLineNotFound indicates the addressed line does not exist.
var ErrCartLineNotFound = errors.New("cart service: line not found")

// ErrCartConflict indicates the cart could not be updated after retrying
// against concurrent writers.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartUnavailable indicates a backend failure.
var ErrCartUnavailable = errors.New("cart service: unavailable")

const cartWriteAttempts = 3

// CartServiceDeps wires the repositories and policy inputs for cart operations.
type CartServiceDeps struct {
	Registry repositories.Registry
	Clock    Clock
	Logger   func(context.Context, string, map[string]any)
}

type cartService struct {
	products repositories.ProductRepository
	carts    repositories.CartRepository
	anon     repositories.AnonymousCartRepository
	settings repositories.SettingsRepository
	now      Clock
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Registry == nil {
		return nil, errCartRegistryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		products: deps.Registry.Products(),
		carts:    deps.Registry.Carts(),
		anon:     deps.Registry.AnonymousCarts(),
		settings: deps.Registry.Settings(),
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
	}, nil
}

// GetLineItems returns the unified view of the identity's cart. Lines whose
// product no longer exists or is inactive are dropped from the response
// without touching storage.
func (s *cartService) GetLineItems(ctx context.Context, identity Identity) ([]CartLineItem, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	if identity.IsUser() {
		items, err := s.carts.ListItems(ctx, identity.UserID)
		if err != nil {
			return nil, s.translate(err)
		}
		return s.resolveUserLines(ctx, items)
	}

	cart, err := s.anon.Get(ctx, identity.SessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, s.translate(err)
	}
	return s.resolveAnonLines(ctx, cart.Entries)
}

// AddItem adds quantity of a product to the cart, merging with an existing
// line for the same product instead of duplicating it.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) ([]CartLineItem, error) {
	if err := validateIdentity(cmd.Identity); err != nil {
		return nil, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	maxQty, err := s.maxLineQuantity(ctx)
	if err != nil {
		return nil, err
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxQty {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxQty)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: unknown product %s", ErrCartInvalidInput, productID)
		}
		return nil, s.translate(err)
	}
	if !product.Sellable() {
		return nil, fmt.Errorf("%w: product %s is not available", ErrCartInvalidInput, productID)
	}

	if cmd.Identity.IsUser() {
		if err := s.mutateUserLine(ctx, cmd.Identity.UserID, productID, func(current int64) (int64, error) {
			return s.mergedQuantity(current, cmd.Quantity, maxQty, product)
		}); err != nil {
			return nil, err
		}
		return s.GetLineItems(ctx, cmd.Identity)
	}

	if err := s.mutateAnonCart(ctx, cmd.Identity.SessionID, func(cart *domain.AnonymousCart) error {
		for i := range cart.Entries {
			if cart.Entries[i].ProductID != productID {
				continue
			}
			merged, err := s.mergedQuantity(cart.Entries[i].Quantity, cmd.Quantity, maxQty, product)
			if err != nil {
				return err
			}
			cart.Entries[i].Quantity = merged
			return nil
		}
		if cmd.Quantity > product.Stock {
			return &InsufficientStockError{ProductID: productID, Requested: cmd.Quantity, Available: product.Stock}
		}
		cart.Entries = append(cart.Entries, domain.AnonymousCartEntry{
			ProductID: productID,
			Quantity:  cmd.Quantity,
			AddedAt:   s.now(),
		})
		return nil
	}); err != nil {
		return nil, err
	}
	return s.GetLineItems(ctx, cmd.Identity)
}

// UpdateItem replaces the quantity on an existing line.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) ([]CartLineItem, error) {
	if err := validateIdentity(cmd.Identity); err != nil {
		return nil, err
	}
	maxQty, err := s.maxLineQuantity(ctx)
	if err != nil {
		return nil, err
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxQty {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxQty)
	}

	productID, err := s.lineKeyProduct(cmd.Identity, cmd.LineKey)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrCartLineNotFound
		}
		return nil, s.translate(err)
	}
	if cmd.Quantity > product.Stock {
		return nil, &InsufficientStockError{ProductID: productID, Requested: cmd.Quantity, Available: product.Stock}
	}

	if cmd.Identity.IsUser() {
		if err := s.mutateUserLine(ctx, cmd.Identity.UserID, productID, func(current int64) (int64, error) {
			if current == 0 {
				return 0, ErrCartLineNotFound
			}
			return cmd.Quantity, nil
		}); err != nil {
			return nil, err
		}
		return s.GetLineItems(ctx, cmd.Identity)
	}

	if err := s.mutateAnonCart(ctx, cmd.Identity.SessionID, func(cart *domain.AnonymousCart) error {
		for i := range cart.Entries {
			if anonLineKey(cart.Entries[i].ProductID, cart.Entries[i].AddedAt) != cmd.LineKey {
				continue
			}
			cart.Entries[i].Quantity = cmd.Quantity
			return nil
		}
		return ErrCartLineNotFound
	}); err != nil {
		return nil, err
	}
	return s.GetLineItems(ctx, cmd.Identity)
}

// RemoveItem deletes one line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, identity Identity, lineKey string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	productID, err := s.lineKeyProduct(identity, lineKey)
	if err != nil {
		return err
	}

	if identity.IsUser() {
		if err := s.carts.DeleteItem(ctx, identity.UserID, productID); err != nil {
			if isRepoNotFound(err) {
				return ErrCartLineNotFound
			}
			return s.translate(err)
		}
		return nil
	}

	return s.mutateAnonCart(ctx, identity.SessionID, func(cart *domain.AnonymousCart) error {
		for i := range cart.Entries {
			if anonLineKey(cart.Entries[i].ProductID, cart.Entries[i].AddedAt) != lineKey {
				continue
			}
			cart.Entries = append(cart.Entries[:i], cart.Entries[i+1:]...)
			return nil
		}
		return ErrCartLineNotFound
	})
}

// Clear empties the cart.
func (s *cartService) Clear(ctx context.Context, identity Identity) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	if identity.IsUser() {
		if err := s.carts.DeleteAll(ctx, identity.UserID); err != nil {
			return s.translate(err)
		}
		return nil
	}
	if err := s.anon.Clear(ctx, identity.SessionID); err != nil && !isRepoNotFound(err) {
		return s.translate(err)
	}
	return nil
}

// MergeSessionIntoUser folds the visitor cart into the user cart on login and
// empties the blob. Quantities that would exceed live stock are clamped
// rather than failing the login. Running the merge again is a no-op because
// the blob is already empty.
func (s *cartService) MergeSessionIntoUser(ctx context.Context, sessionID string, userID string) error {
	sessionID = strings.TrimSpace(sessionID)
	userID = strings.TrimSpace(userID)
	if sessionID == "" || userID == "" {
		return fmt.Errorf("%w: session id and user id are required", ErrCartInvalidInput)
	}

	cart, err := s.anon.Get(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translate(err)
	}
	if len(cart.Entries) == 0 {
		return nil
	}

	maxQty, err := s.maxLineQuantity(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(cart.Entries))
	for _, entry := range cart.Entries {
		ids = append(ids, entry.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return s.translate(err)
	}

	for _, entry := range cart.Entries {
		product, ok := products[entry.ProductID]
		if !ok || !product.Sellable() {
			continue
		}
		entry := entry
		if err := s.mutateUserLine(ctx, userID, entry.ProductID, func(current int64) (int64, error) {
			merged := current + entry.Quantity
			if merged > maxQty {
				merged = maxQty
			}
			if merged > product.Stock {
				s.logger(ctx, "cart.merge_clamped", map[string]any{
					"userId":    userID,
					"productId": entry.ProductID,
					"requested": merged,
					"available": product.Stock,
				})
				merged = product.Stock
			}
			if merged < 1 {
				return current, nil
			}
			return merged, nil
		}); err != nil {
			return err
		}
	}

	if err := s.anon.Clear(ctx, sessionID); err != nil && !isRepoNotFound(err) {
		return s.translate(err)
	}
	return nil
}

// mutateUserLine applies fn to the current quantity of (userID, productID)
// and writes the result, retrying on precondition conflicts. fn receives 0
// when the line does not exist yet.
func (s *cartService) mutateUserLine(ctx context.Context, userID, productID string, fn func(current int64) (int64, error)) error {
	for attempt := 0; attempt < cartWriteAttempts; attempt++ {
		items, err := s.carts.ListItems(ctx, userID)
		if err != nil {
			return s.translate(err)
		}

		var existing *domain.CartItem
		for i := range items {
			if items[i].ProductID == productID {
				existing = &items[i]
				break
			}
		}

		current := int64(0)
		if existing != nil {
			current = existing.Quantity
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == current && existing != nil {
			return nil
		}
		if next < 1 && existing == nil {
			return nil
		}

		item := domain.CartItem{
			UserID:    userID,
			ProductID: productID,
			Quantity:  next,
			AddedAt:   s.now(),
		}
		var expected *time.Time
		if existing != nil {
			item.AddedAt = existing.AddedAt
			updated := existing.UpdatedAt
			expected = &updated
		}

		if _, err := s.carts.UpsertItem(ctx, item, expected); err != nil {
			if isRepoConflict(err) {
				continue
			}
			return s.translate(err)
		}
		return nil
	}
	s.logger(ctx, "cart.write_contention", map[string]any{
		"userId":    userID,
		"productId": productID,
	})
	return ErrCartConflict
}

// mutateAnonCart loads the blob (creating an empty one in memory when
// absent), applies fn and saves with the original update-time precondition.
func (s *cartService) mutateAnonCart(ctx context.Context, sessionID string, fn func(cart *domain.AnonymousCart) error) error {
	for attempt := 0; attempt < cartWriteAttempts; attempt++ {
		cart, err := s.anon.Get(ctx, sessionID)
		var expected *time.Time
		if err != nil {
			if !isRepoNotFound(err) {
				return s.translate(err)
			}
			cart = domain.AnonymousCart{SessionID: sessionID, CreatedAt: s.now()}
		} else {
			updated := cart.UpdatedAt
			expected = &updated
		}

		if err := fn(&cart); err != nil {
			return err
		}

		if _, err := s.anon.Save(ctx, cart, expected); err != nil {
			if isRepoConflict(err) {
				continue
			}
			return s.translate(err)
		}
		return nil
	}
	return ErrCartConflict
}

func (s *cartService) mergedQuantity(current, add, maxQty int64, product Product) (int64, error) {
	merged := current + add
	if merged > maxQty {
		return 0, fmt.Errorf("%w: quantity %d exceeds the limit of %d per item", ErrCartInvalidInput, merged, maxQty)
	}
	if merged > product.Stock {
		return 0, &InsufficientStockError{ProductID: product.ID, Requested: merged, Available: product.Stock}
	}
	return merged, nil
}

func (s *cartService) resolveUserLines(ctx context.Context, items []domain.CartItem) ([]CartLineItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.translate(err)
	}

	lines := make([]CartLineItem, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Sellable() {
			continue
		}
		lines = append(lines, CartLineItem{
			LineKey:    userLineKey(item.ProductID),
			ProductID:  item.ProductID,
			StoreID:    product.StoreID,
			CategoryID: product.CategoryID,
			Name:       product.Name,
			Quantity:   item.Quantity,
			UnitPrice:  product.PriceCents,
			AddedAt:    item.AddedAt,
		})
	}
	return lines, nil
}

func (s *cartService) resolveAnonLines(ctx context.Context, entries []domain.AnonymousCartEntry) ([]CartLineItem, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, s.translate(err)
	}

	lines := make([]CartLineItem, 0, len(entries))
	for _, entry := range entries {
		product, ok := products[entry.ProductID]
		if !ok || !product.Sellable() {
			continue
		}
		lines = append(lines, CartLineItem{
			LineKey:    anonLineKey(entry.ProductID, entry.AddedAt),
			ProductID:  entry.ProductID,
			StoreID:    product.StoreID,
			CategoryID: product.CategoryID,
			Name:       product.Name,
			Quantity:   entry.Quantity,
			UnitPrice:  product.PriceCents,
			AddedAt:    entry.AddedAt,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].AddedAt.Before(lines[j].AddedAt) })
	return lines, nil
}

// lineKeyProduct validates a line key against the identity's key format and
// returns the product it addresses.
func (s *cartService) lineKeyProduct(identity Identity, lineKey string) (string, error) {
	lineKey = strings.TrimSpace(lineKey)
	if lineKey == "" {
		return "", fmt.Errorf("%w: line key is required", ErrCartInvalidInput)
	}
	if identity.IsUser() {
		if strings.HasPrefix(lineKey, anonLineKeyPrefix) {
			return "", fmt.Errorf("%w: malformed line key", ErrCartInvalidInput)
		}
		return lineKey, nil
	}
	productID, _, ok := parseAnonLineKey(lineKey)
	if !ok {
		return "", fmt.Errorf("%w: malformed line key", ErrCartInvalidInput)
	}
	return productID, nil
}

func (s *cartService) maxLineQuantity(ctx context.Context) (int64, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return 0, s.translate(err)
	}
	if settings.MaxLineQuantity <= 0 {
		return 99, nil
	}
	return settings.MaxLineQuantity, nil
}

func validateIdentity(identity Identity) error {
	if !identity.Valid() {
		return fmt.Errorf("%w: exactly one of user id or session id must be set", ErrCartInvalidInput)
	}
	return nil
}

func (s *cartService) translate(err error) error {
	if err == nil {
		return nil
	}
	if isRepoNotFound(err) {
		return ErrCartLineNotFound
	}
	if isRepoConflict(err) {
		return ErrCartConflict
	}
	return ErrCartUnavailable
}
