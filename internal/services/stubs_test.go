package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/repositories"
)

// stubRepoError implements repositories.RepositoryError for in-memory stubs.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func errNotFound(format string, args ...any) error {
	return &stubRepoError{msg: fmt.Sprintf(format, args...), notFound: true}
}

func errConflict(format string, args ...any) error {
	return &stubRepoError{msg: fmt.Sprintf(format, args...), conflict: true}
}

func errUnavailable(format string, args ...any) error {
	return &stubRepoError{msg: fmt.Sprintf(format, args...), unavailable: true}
}

// stubRegistry wires every stub repository behind the Registry interface.
// RunInTx simply invokes the callback; transactional semantics are covered by
// ordering assertions in the order and reconciliation tests.
type stubRegistry struct {
	products  *stubProductRepo
	stores    *stubStoreRepo
	carts     *stubCartRepo
	anonCarts *stubAnonCartRepo
	orders    *stubOrderRepo
	txns      *stubTxnRepo
	events    *stubEventRepo
	discounts *stubDiscountRepo
	usage     *stubUsageRepo
	addresses *stubAddressRepo
	settings  *stubSettingsRepo
	counters  *stubSequenceRepo
	health    *stubHealthRepo

	txCalls int
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		products:  &stubProductRepo{products: map[string]domain.Product{}},
		stores:    &stubStoreRepo{stores: map[string]domain.Store{}},
		carts:     &stubCartRepo{items: map[string][]domain.CartItem{}},
		anonCarts: &stubAnonCartRepo{carts: map[string]domain.AnonymousCart{}},
		orders:    &stubOrderRepo{orders: map[string]domain.Order{}},
		txns:      &stubTxnRepo{txns: map[string]domain.PaymentTransaction{}},
		events:    &stubEventRepo{events: map[string]domain.WebhookEvent{}},
		discounts: &stubDiscountRepo{byID: map[string]domain.Discount{}},
		usage:     &stubUsageRepo{},
		addresses: &stubAddressRepo{addrs: map[string]map[string]domain.Address{}},
		settings: &stubSettingsRepo{settings: domain.SystemSettings{
			DeliveryFeeCents:   499,
			TaxRateBasisPoints: 800,
			MaxLineQuantity:    99,
			CurrencyCode:       "usd",
			PaymentTimeout:     30 * time.Minute,
		}},
		counters: &stubSequenceRepo{},
		health:   &stubHealthRepo{},
	}
}

func (r *stubRegistry) Close(context.Context) error { return nil }

func (r *stubRegistry) Products() repositories.ProductRepository        { return r.products }
func (r *stubRegistry) Stores() repositories.StoreRepository            { return r.stores }
func (r *stubRegistry) Carts() repositories.CartRepository              { return r.carts }
func (r *stubRegistry) AnonymousCarts() repositories.AnonymousCartRepository {
	return r.anonCarts
}
func (r *stubRegistry) Orders() repositories.OrderRepository { return r.orders }
func (r *stubRegistry) PaymentTransactions() repositories.PaymentTransactionRepository {
	return r.txns
}
func (r *stubRegistry) WebhookEvents() repositories.WebhookEventRepository { return r.events }
func (r *stubRegistry) Discounts() repositories.DiscountRepository         { return r.discounts }
func (r *stubRegistry) DiscountUsage() repositories.DiscountUsageRepository {
	return r.usage
}
func (r *stubRegistry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *stubRegistry) Settings() repositories.SettingsRepository { return r.settings }
func (r *stubRegistry) Counters() repositories.CounterRepository  { return r.counters }
func (r *stubRegistry) Health() repositories.HealthRepository     { return r.health }

func (r *stubRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txCalls++
	return fn(ctx)
}

var _ repositories.Registry = (*stubRegistry)(nil)

// stubProductRepo ------------------------------------------------------------

type stubProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
	order    []string

	decrementErr   error
	decrementCalls []map[string]int64
	listErr        error
}

func (s *stubProductRepo) put(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.products[p.ID] = p
}

func (s *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, errNotFound("product %s not found", productID)
	}
	return p, nil
}

func (s *stubProductRepo) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (s *stubProductRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listErr != nil {
		return domain.CursorPage[domain.Product]{}, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Product
	for _, id := range s.order {
		p := s.products[id]
		if filter.OnlyActive && !p.Active {
			continue
		}
		if filter.StoreID != "" && p.StoreID != filter.StoreID {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		items = append(items, p)
	}
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (s *stubProductRepo) DecrementStocks(_ context.Context, quantities map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrementCalls = append(s.decrementCalls, quantities)
	if s.decrementErr != nil {
		return s.decrementErr
	}
	for id, qty := range quantities {
		p, ok := s.products[id]
		if !ok {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, id, 0, "", nil)
		}
		if p.Stock < qty {
			return repositories.NewStockError(repositories.StockErrorInsufficient, id, p.Stock, "", nil)
		}
	}
	for id, qty := range quantities {
		p := s.products[id]
		p.Stock -= qty
		s.products[id] = p
	}
	return nil
}

func (s *stubProductRepo) Upsert(_ context.Context, product domain.Product) (domain.Product, error) {
	s.put(product)
	return product, nil
}

// stubStoreRepo --------------------------------------------------------------

type stubStoreRepo struct {
	mu     sync.Mutex
	stores map[string]domain.Store
}

func (s *stubStoreRepo) put(store domain.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[store.ID] = store
}

func (s *stubStoreRepo) FindByID(_ context.Context, storeID string) (domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[storeID]
	if !ok {
		return domain.Store{}, errNotFound("store %s not found", storeID)
	}
	return store, nil
}

func (s *stubStoreRepo) FindByIDs(_ context.Context, storeIDs []string) (map[string]domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make(map[string]domain.Store, len(storeIDs))
	for _, id := range storeIDs {
		if store, ok := s.stores[id]; ok {
			found[id] = store
		}
	}
	return found, nil
}

func (s *stubStoreRepo) List(context.Context, domain.Pagination) (domain.CursorPage[domain.Store], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Store
	for _, store := range s.stores {
		items = append(items, store)
	}
	return domain.CursorPage[domain.Store]{Items: items}, nil
}

// stubCartRepo ---------------------------------------------------------------

type stubCartRepo struct {
	mu    sync.Mutex
	items map[string][]domain.CartItem
	rev   int64

	conflictsLeft int
	deleteCalls   []string
}

func (s *stubCartRepo) ListItems(_ context.Context, userID string) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.items[userID]
	out := make([]domain.CartItem, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *stubCartRepo) UpsertItem(_ context.Context, item domain.CartItem, expectedUpdate *time.Time) (domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return domain.CartItem{}, errConflict("cart row contended")
	}
	rows := s.items[item.UserID]
	for i := range rows {
		if rows[i].ProductID != item.ProductID {
			continue
		}
		if expectedUpdate != nil && !expectedUpdate.Equal(rows[i].UpdatedAt) {
			return domain.CartItem{}, errConflict("cart row changed")
		}
		s.rev++
		item.UpdatedAt = time.Unix(s.rev, 0).UTC()
		rows[i] = item
		return item, nil
	}
	s.rev++
	item.UpdatedAt = time.Unix(s.rev, 0).UTC()
	s.items[item.UserID] = append(rows, item)
	return item, nil
}

func (s *stubCartRepo) DeleteItem(_ context.Context, userID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, userID+"/"+productID)
	rows := s.items[userID]
	for i := range rows {
		if rows[i].ProductID == productID {
			s.items[userID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return errNotFound("cart row %s/%s not found", userID, productID)
}

func (s *stubCartRepo) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
	return nil
}

// stubAnonCartRepo -----------------------------------------------------------

type stubAnonCartRepo struct {
	mu    sync.Mutex
	carts map[string]domain.AnonymousCart
	rev   int64
}

func (s *stubAnonCartRepo) Get(_ context.Context, sessionID string) (domain.AnonymousCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[sessionID]
	if !ok {
		return domain.AnonymousCart{}, errNotFound("anonymous cart %s not found", sessionID)
	}
	return cart, nil
}

func (s *stubAnonCartRepo) Save(_ context.Context, cart domain.AnonymousCart, expectedUpdate *time.Time) (domain.AnonymousCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.carts[cart.SessionID]; ok {
		if expectedUpdate != nil && !expectedUpdate.Equal(stored.UpdatedAt) {
			return domain.AnonymousCart{}, errConflict("anonymous cart changed")
		}
	} else if expectedUpdate != nil {
		return domain.AnonymousCart{}, errConflict("anonymous cart vanished")
	}
	s.rev++
	cart.UpdatedAt = time.Unix(s.rev, 0).UTC()
	s.carts[cart.SessionID] = cart
	return cart, nil
}

func (s *stubAnonCartRepo) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}

// stubOrderRepo --------------------------------------------------------------

type stubOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	insertErr   error
	insertCalls int
}

func (s *stubOrderRepo) put(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

func (s *stubOrderRepo) get(orderID string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	return order, ok
}

func (s *stubOrderRepo) Insert(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, exists := s.orders[order.ID]; exists {
		return errConflict("order %s exists", order.ID)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) Update(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; !exists {
		return errNotFound("order %s not found", order.ID)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound("order %s not found", orderID)
	}
	return order, nil
}

func (s *stubOrderRepo) FindByNumber(_ context.Context, number string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.OrderNumber == number {
			return order, nil
		}
	}
	return domain.Order{}, errNotFound("order number %s not found", number)
}

func (s *stubOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Order
	for _, order := range s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (s *stubOrderRepo) UpdateItemStatus(_ context.Context, orderID string, itemID string, status domain.OrderItemStatus, now time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound("order %s not found", orderID)
	}
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			order.Items[i].Status = status
			order.UpdatedAt = now
			s.orders[orderID] = order
			return order, nil
		}
	}
	return domain.Order{}, errNotFound("item %s not found", itemID)
}

// stubTxnRepo ----------------------------------------------------------------

type stubTxnRepo struct {
	mu   sync.Mutex
	txns map[string]domain.PaymentTransaction

	updateErr error
}

func (s *stubTxnRepo) put(txn domain.PaymentTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[txn.ID] = txn
}

func (s *stubTxnRepo) get(txnID string) (domain.PaymentTransaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txnID]
	return txn, ok
}

func (s *stubTxnRepo) Insert(_ context.Context, txn domain.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txns[txn.ID]; exists {
		return errConflict("transaction %s exists", txn.ID)
	}
	s.txns[txn.ID] = txn
	return nil
}

func (s *stubTxnRepo) Update(_ context.Context, txn domain.PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, exists := s.txns[txn.ID]; !exists {
		return errNotFound("transaction %s not found", txn.ID)
	}
	s.txns[txn.ID] = txn
	return nil
}

func (s *stubTxnRepo) FindByID(_ context.Context, txnID string) (domain.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[txnID]
	if !ok {
		return domain.PaymentTransaction{}, errNotFound("transaction %s not found", txnID)
	}
	return txn, nil
}

func (s *stubTxnRepo) FindByGatewayID(_ context.Context, gatewayID string) (domain.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.txns {
		if txn.GatewayID == gatewayID {
			return txn, nil
		}
	}
	return domain.PaymentTransaction{}, errNotFound("gateway id %s not found", gatewayID)
}

func (s *stubTxnRepo) ListByOrder(_ context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentTransaction
	for _, txn := range s.txns {
		if txn.OrderID == orderID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (s *stubTxnRepo) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentTransaction
	for _, txn := range s.txns {
		if txn.Status == domain.PaymentStatusPending && txn.CreatedAt.Before(cutoff) {
			out = append(out, txn)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// stubEventRepo --------------------------------------------------------------

type stubEventRepo struct {
	mu     sync.Mutex
	events map[string]domain.WebhookEvent
}

func (s *stubEventRepo) InsertNew(_ context.Context, event domain.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return errConflict("event %s exists", event.ID)
	}
	s.events[event.ID] = event
	return nil
}

func (s *stubEventRepo) MarkProcessed(_ context.Context, eventID string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return errNotFound("event %s not found", eventID)
	}
	event.ProcessedAt = &processedAt
	s.events[eventID] = event
	return nil
}

func (s *stubEventRepo) FindByID(_ context.Context, eventID string) (domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return domain.WebhookEvent{}, errNotFound("event %s not found", eventID)
	}
	return event, nil
}

// stubDiscountRepo -----------------------------------------------------------

type stubDiscountRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Discount
	auto []domain.Discount

	listAutoErr error
}

func (s *stubDiscountRepo) put(d domain.Discount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.ID] = d
	if d.AutoApply {
		s.auto = append(s.auto, d)
	}
}

func (s *stubDiscountRepo) Insert(_ context.Context, discount domain.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Code == discount.Code {
			return errConflict("code %s exists", discount.Code)
		}
	}
	s.byID[discount.ID] = discount
	return nil
}

func (s *stubDiscountRepo) Update(_ context.Context, discount domain.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[discount.ID]; !exists {
		return errNotFound("discount %s not found", discount.ID)
	}
	s.byID[discount.ID] = discount
	return nil
}

func (s *stubDiscountRepo) Delete(_ context.Context, discountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[discountID]; !exists {
		return errNotFound("discount %s not found", discountID)
	}
	delete(s.byID, discountID)
	return nil
}

func (s *stubDiscountRepo) FindByCode(_ context.Context, code string) (domain.Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, discount := range s.byID {
		if discount.Code == code {
			return discount, nil
		}
	}
	return domain.Discount{}, errNotFound("code %s not found", code)
}

func (s *stubDiscountRepo) ListAutoApply(context.Context, time.Time) ([]domain.Discount, error) {
	if s.listAutoErr != nil {
		return nil, s.listAutoErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Discount, len(s.auto))
	copy(out, s.auto)
	return out, nil
}

func (s *stubDiscountRepo) List(context.Context, repositories.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Discount
	for _, discount := range s.byID {
		items = append(items, discount)
	}
	return domain.CursorPage[domain.Discount]{Items: items}, nil
}

// stubUsageRepo --------------------------------------------------------------

type stubUsageRepo struct {
	mu   sync.Mutex
	rows []domain.DiscountUsage

	countErr error
}

func (s *stubUsageRepo) Insert(_ context.Context, usage domain.DiscountUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, usage)
	return nil
}

func (s *stubUsageRepo) CountByDiscount(_ context.Context, discountID string) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.DiscountID == discountID {
			n++
		}
	}
	return n, nil
}

func (s *stubUsageRepo) CountByDiscountAndUser(_ context.Context, discountID string, userID string) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.rows {
		if row.DiscountID == discountID && row.UserID == userID {
			n++
		}
	}
	return n, nil
}

// stubAddressRepo ------------------------------------------------------------

type stubAddressRepo struct {
	mu    sync.Mutex
	addrs map[string]map[string]domain.Address
	seq   int
}

func (s *stubAddressRepo) put(userID string, addr domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addrs[userID] == nil {
		s.addrs[userID] = map[string]domain.Address{}
	}
	s.addrs[userID][addr.ID] = addr
}

func (s *stubAddressRepo) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.addrs[userID])
}

func (s *stubAddressRepo) List(_ context.Context, userID string) ([]domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Address
	for _, addr := range s.addrs[userID] {
		out = append(out, addr)
	}
	return out, nil
}

func (s *stubAddressRepo) Get(_ context.Context, userID string, addressID string) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.addrs[userID][addressID]
	if !ok {
		return domain.Address{}, errNotFound("address %s not found", addressID)
	}
	return addr, nil
}

func (s *stubAddressRepo) Upsert(_ context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addrs[userID] == nil {
		s.addrs[userID] = map[string]domain.Address{}
	}
	if addressID != nil {
		addr.ID = *addressID
	}
	if addr.ID == "" {
		s.seq++
		addr.ID = fmt.Sprintf("addr_stub_%d", s.seq)
	}
	addr.UserID = userID
	s.addrs[userID][addr.ID] = addr
	return addr, nil
}

func (s *stubAddressRepo) Insert(_ context.Context, userID string, addr domain.Address) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addrs[userID] == nil {
		s.addrs[userID] = map[string]domain.Address{}
	}
	if addr.ID == "" {
		s.seq++
		addr.ID = fmt.Sprintf("addr_stub_%d", s.seq)
	}
	if addr.Hash == "" {
		addr.Hash = addr.Fingerprint()
	}
	addr.UserID = userID
	s.addrs[userID][addr.ID] = addr
	return addr, nil
}

func (s *stubAddressRepo) Delete(_ context.Context, userID string, addressID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[userID][addressID]; !ok {
		return errNotFound("address %s not found", addressID)
	}
	delete(s.addrs[userID], addressID)
	return nil
}

func (s *stubAddressRepo) FindByHash(_ context.Context, userID string, hash string) (domain.Address, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range s.addrs[userID] {
		if addr.Hash == hash {
			return addr, true, nil
		}
	}
	return domain.Address{}, false, nil
}

func (s *stubAddressRepo) HasAny(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.addrs[userID]) > 0, nil
}

func (s *stubAddressRepo) SetDefault(_ context.Context, userID string, addressID string) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.addrs[userID][addressID]
	if !ok {
		return domain.Address{}, errNotFound("address %s not found", addressID)
	}
	for id, addr := range s.addrs[userID] {
		addr.Default = id == addressID
		s.addrs[userID][id] = addr
	}
	target.Default = true
	return target, nil
}

// stubSettingsRepo -----------------------------------------------------------

type stubSettingsRepo struct {
	mu       sync.Mutex
	settings domain.SystemSettings

	getErr   error
	getCalls int
}

func (s *stubSettingsRepo) Get(context.Context) (domain.SystemSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return domain.SystemSettings{}, s.getErr
	}
	return s.settings, nil
}

func (s *stubSettingsRepo) Save(_ context.Context, settings domain.SystemSettings) (domain.SystemSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return settings, nil
}

// stubSequenceRepo -----------------------------------------------------------

type stubSequenceRepo struct {
	mu        sync.Mutex
	value     int64
	nextCalls int
	nextErr   error
}

func (s *stubSequenceRepo) Next(_ context.Context, _ string, step int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCalls++
	if s.nextErr != nil {
		return 0, s.nextErr
	}
	if step <= 0 {
		step = 1
	}
	s.value += step
	return s.value, nil
}

func (s *stubSequenceRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

// stubHealthRepo -------------------------------------------------------------

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	if s.err != nil {
		return domain.SystemHealthReport{}, s.err
	}
	return s.report, nil
}

// stubPaymentProvider --------------------------------------------------------

type stubPaymentProvider struct {
	mu       sync.Mutex
	createFn func(context.Context, payments.IntentRequest) (payments.Intent, error)
	refundFn func(context.Context, payments.RefundRequest) (payments.PaymentDetails, error)
	intents  []payments.IntentRequest
	refunds  []payments.RefundRequest
}

func (s *stubPaymentProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	s.mu.Lock()
	s.intents = append(s.intents, req)
	s.mu.Unlock()
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.Intent{
		ID:           "pi_" + req.IdempotencyKey,
		ClientSecret: "secret_" + req.IdempotencyKey,
		Status:       payments.StatusPending,
	}, nil
}

func (s *stubPaymentProvider) ConfirmIntent(context.Context, string) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

func (s *stubPaymentProvider) Refund(ctx context.Context, req payments.RefundRequest) (payments.PaymentDetails, error) {
	s.mu.Lock()
	s.refunds = append(s.refunds, req)
	s.mu.Unlock()
	if s.refundFn != nil {
		return s.refundFn(ctx, req)
	}
	return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusRefunded}, nil
}

func (s *stubPaymentProvider) LookupIntent(context.Context, string) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

func (s *stubPaymentProvider) VerifyWebhook([]byte, string) (payments.Event, error) {
	return payments.Event{}, nil
}

// stubDispatcher records notifications instead of publishing them.
type stubDispatcher struct {
	mu    sync.Mutex
	calls []dispatchedNotification
}

type dispatchedNotification struct {
	UserID  string
	Kind    NotificationKind
	Payload map[string]any
}

func (s *stubDispatcher) Dispatch(_ context.Context, userID string, kind NotificationKind, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, dispatchedNotification{UserID: userID, Kind: kind, Payload: payload})
}

func (s *stubDispatcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
