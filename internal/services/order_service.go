package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderItemIDPrefix  = "itm_"
	paymentTxnIDPrefix = "txn_"

	orderNumberCounter = "orders"
	orderNumberPrefix  = "FB"

	orderCreateAttempts = 3

	defaultPaymentMethod  = "card"
	defaultShippingMethod = "standard"
)

// ErrOrderInvalidInput signals the caller provided invalid data.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order could not be located or is not
// visible to the caller.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderInvalidTransition indicates an illegal status transition was
// attempted.
var ErrOrderInvalidTransition = errors.New("order service: invalid status transition")

// ErrOrderCreationFailed wraps any assembly failure that rolled the
// transaction back. The cause is logged; callers see an opaque message.
var ErrOrderCreationFailed = errors.New("order service: order creation failed")

// ErrOrderUnavailable indicates a backend failure.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// orderStatusTransitions lists the admissible next statuses per current
// status. Cancellation and refunds are reachable pre-delivery; refunds are
// normally driven by the reconciliation service.
var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusRefunded},
	domain.OrderStatusDelivered:  {domain.OrderStatusRefunded},
}

// orderItemStatusNext encodes the strictly sequential fulfillment ladder.
var orderItemStatusNext = map[domain.OrderItemStatus]domain.OrderItemStatus{
	domain.OrderItemStatusPending:   domain.OrderItemStatusReady,
	domain.OrderItemStatusReady:     domain.OrderItemStatusCollected,
	domain.OrderItemStatusCollected: domain.OrderItemStatusPackaged,
	domain.OrderItemStatusPackaged:  domain.OrderItemStatusShipped,
	domain.OrderItemStatusShipped:   domain.OrderItemStatusDelivered,
}

var cancellableOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:    true,
	domain.OrderStatusConfirmed:  true,
	domain.OrderStatusProcessing: true,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Registry  repositories.Registry
	Cart      CartService
	Pricing   PricingService
	Discounts DiscountService
	Payments  *payments.Manager
	Clock     Clock
	IDGen     func() string
	Logger    func(context.Context, string, map[string]any)
}

type orderService struct {
	registry  repositories.Registry
	orders    repositories.OrderRepository
	txns      repositories.PaymentTransactionRepository
	products  repositories.ProductRepository
	carts     repositories.CartRepository
	addresses repositories.AddressRepository
	counters  repositories.CounterRepository
	cart      CartService
	pricing   PricingService
	discounts DiscountService
	gateway   *payments.Manager
	now       Clock
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Registry == nil {
		return nil, errors.New("order service: registry is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("order service: cart service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing service is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("order service: discount service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment manager is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		registry:  deps.Registry,
		orders:    deps.Registry.Orders(),
		txns:      deps.Registry.PaymentTransactions(),
		products:  deps.Registry.Products(),
		carts:     deps.Registry.Carts(),
		addresses: deps.Registry.Addresses(),
		counters:  deps.Registry.Counters(),
		cart:      deps.Cart,
		pricing:   deps.Pricing,
		discounts: deps.Discounts,
		gateway:   deps.Payments,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// PlaceOrder assembles an order from the caller's cart inside one unit of
// work: authoritative pricing, stock decrement, address resolution, order and
// pending transaction creation, discount usage, and cart clearing all commit
// or roll back together. The gateway payment intent is created after commit
// so a gateway outage never leaves half an order behind.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	if !cmd.Identity.Valid() || !cmd.Identity.IsUser() {
		return PlacedOrder{}, fmt.Errorf("%w: checkout requires an authenticated user", ErrOrderInvalidInput)
	}
	if err := s.validateAddressInput(cmd); err != nil {
		return PlacedOrder{}, err
	}

	var placed PlacedOrder
	var lastErr error
	for attempt := 0; attempt < orderCreateAttempts; attempt++ {
		number, err := s.nextOrderNumber(ctx)
		if err != nil {
			return PlacedOrder{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}

		err = s.registry.RunInTx(ctx, func(txCtx context.Context) error {
			assembled, err := s.assemble(txCtx, cmd, number)
			if err != nil {
				return err
			}
			placed = assembled
			return nil
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if isRepoConflict(err) {
			// Order document collision; burn the number and retry.
			s.logger(ctx, "order.create_conflict", map[string]any{
				"order_number": number,
				"attempt":      attempt + 1,
			})
			continue
		}
		break
	}
	if lastErr != nil {
		return PlacedOrder{}, s.classifyAssemblyError(ctx, lastErr)
	}

	return s.createPaymentIntent(ctx, placed)
}

// assemble runs inside the ambient transaction. Every read happens before the
// first write so the stock decrement's transactional re-reads stay legal.
func (s *orderService) assemble(ctx context.Context, cmd PlaceOrderCommand, number string) (PlacedOrder, error) {
	userID := cmd.Identity.UserID

	lines, err := s.cart.GetLineItems(ctx, cmd.Identity)
	if err != nil {
		return PlacedOrder{}, err
	}
	if len(lines) == 0 {
		return PlacedOrder{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}

	priced, err := s.pricing.ComputeTotals(ctx, ComputeTotalsCommand{
		Lines:        lines,
		UserID:       userID,
		DiscountCode: cmd.DiscountCode,
	})
	if err != nil {
		if errors.Is(err, ErrPricingInvalidInput) {
			return PlacedOrder{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return PlacedOrder{}, err
	}

	snapshot, pendingAddr, addressID, err := s.resolveAddress(ctx, userID, cmd)
	if err != nil {
		return PlacedOrder{}, err
	}

	// Write phase begins here.
	quantities := make(map[string]int64, len(lines))
	for _, line := range lines {
		quantities[line.ProductID] += line.Quantity
	}
	if err := s.products.DecrementStocks(ctx, quantities); err != nil {
		return PlacedOrder{}, translateStockError(err, quantities)
	}

	if pendingAddr != nil {
		saved, err := s.addresses.Insert(ctx, userID, *pendingAddr)
		if err != nil {
			return PlacedOrder{}, err
		}
		addressID = saved.ID
	}

	now := s.now()
	order := s.buildOrder(cmd, number, userID, addressID, snapshot, lines, priced, now)
	if err := s.orders.Insert(ctx, order); err != nil {
		return PlacedOrder{}, err
	}

	txn := domain.PaymentTransaction{
		ID:          paymentTxnIDPrefix + s.newID(),
		OrderID:     order.ID,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Method:      paymentMethodOrDefault(cmd.PaymentMethod),
		Status:      domain.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.txns.Insert(ctx, txn); err != nil {
		return PlacedOrder{}, err
	}

	if len(priced.AppliedDiscounts) > 0 {
		err := s.discounts.RecordUsage(ctx, RecordDiscountUsageCommand{
			Applied: priced.AppliedDiscounts,
			UserID:  userID,
			OrderID: order.ID,
		})
		if err != nil {
			return PlacedOrder{}, err
		}
	}

	for productID := range quantities {
		if err := s.carts.DeleteItem(ctx, userID, productID); err != nil {
			return PlacedOrder{}, err
		}
	}

	return PlacedOrder{Order: order, Transaction: txn}, nil
}

func (s *orderService) buildOrder(cmd PlaceOrderCommand, number, userID, addressID string, snapshot AddressSnapshot, lines []CartLineItem, priced PricingResult, now time.Time) domain.Order {
	names := make(map[string]string, len(lines))
	for _, line := range lines {
		names[line.ProductID] = line.Name
	}

	orderID := orderIDPrefix + s.newID()
	items := make([]domain.OrderItem, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		items = append(items, domain.OrderItem{
			ID:              orderItemIDPrefix + s.newID(),
			OrderID:         orderID,
			ProductID:       line.ProductID,
			StoreID:         line.StoreID,
			ProductName:     names[line.ProductID],
			Quantity:        line.Quantity,
			UnitPriceCents:  line.UnitPrice,
			TotalPriceCents: line.TotalCents,
			Status:          domain.OrderItemStatusPending,
		})
	}

	primaryStore := ""
	if len(items) > 0 {
		primaryStore = items[0].StoreID
	}

	shipping := strings.TrimSpace(cmd.ShippingMethod)
	if shipping == "" {
		shipping = defaultShippingMethod
	}

	return domain.Order{
		ID:               orderID,
		OrderNumber:      number,
		UserID:           userID,
		PrimaryStoreID:   primaryStore,
		AddressID:        addressID,
		Status:           domain.OrderStatusPending,
		SubtotalCents:    priced.SubtotalCents,
		DiscountCents:    priced.DiscountCents,
		DeliveryFeeCents: priced.DeliveryFeeCents,
		TaxCents:         priced.TaxCents,
		TotalCents:       priced.TotalCents,
		Currency:         priced.Currency,
		DeliveryAddress:  snapshot,
		ShippingMethod:   shipping,
		Items:            items,
		PlacedAt:         now,
		UpdatedAt:        now,
	}
}

// resolveAddress picks the delivery address without writing anything. When a
// fresh insert is needed it is returned for the caller to persist during the
// write phase. The first address a user ever saves becomes their default.
func (s *orderService) resolveAddress(ctx context.Context, userID string, cmd PlaceOrderCommand) (AddressSnapshot, *domain.Address, string, error) {
	if cmd.AddressID != nil {
		id := strings.TrimSpace(*cmd.AddressID)
		if id == "" {
			return AddressSnapshot{}, nil, "", fmt.Errorf("%w: address id cannot be empty", ErrOrderInvalidInput)
		}
		addr, err := s.addresses.Get(ctx, userID, id)
		if err != nil {
			if isRepoNotFound(err) {
				return AddressSnapshot{}, nil, "", fmt.Errorf("%w: address %s not found", ErrOrderInvalidInput, id)
			}
			return AddressSnapshot{}, nil, "", err
		}
		return addressSnapshot(addr), nil, addr.ID, nil
	}

	input := domain.Address{
		UserID:       userID,
		Label:        strings.TrimSpace(cmd.Address.Label),
		Line1:        strings.TrimSpace(cmd.Address.Line1),
		Line2:        strings.TrimSpace(cmd.Address.Line2),
		City:         strings.TrimSpace(cmd.Address.City),
		Region:       strings.TrimSpace(cmd.Address.Region),
		PostalCode:   strings.TrimSpace(cmd.Address.PostalCode),
		Country:      strings.TrimSpace(cmd.Address.Country),
		Instructions: strings.TrimSpace(cmd.Address.Instructions),
	}
	input.Hash = input.Fingerprint()

	existing, found, err := s.addresses.FindByHash(ctx, userID, input.Hash)
	if err != nil {
		return AddressSnapshot{}, nil, "", err
	}
	if found {
		return addressSnapshot(input), nil, existing.ID, nil
	}

	hasAny, err := s.addresses.HasAny(ctx, userID)
	if err != nil {
		return AddressSnapshot{}, nil, "", err
	}
	input.ID = "addr_" + s.newID()
	input.Default = !hasAny
	return addressSnapshot(input), &input, input.ID, nil
}

func (s *orderService) validateAddressInput(cmd PlaceOrderCommand) error {
	if cmd.AddressID != nil {
		return nil
	}
	missing := make([]string, 0, 4)
	if strings.TrimSpace(cmd.Address.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(cmd.Address.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(cmd.Address.PostalCode) == "" {
		missing = append(missing, "postal code")
	}
	if strings.TrimSpace(cmd.Address.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: address is missing %s", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// nextOrderNumber allocates a sequence number outside the assembly
// transaction. A rolled-back order burns its number, which keeps the counter
// free of cross-transaction coupling.
func (s *orderService) nextOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%06d", orderNumberPrefix, s.now().Format("0601"), seq), nil
}

func (s *orderService) classifyAssemblyError(ctx context.Context, err error) error {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return err
	}
	if errors.Is(err, ErrOrderInvalidInput) {
		return err
	}
	if errors.Is(err, ErrCartInvalidInput) || errors.Is(err, ErrCartLineNotFound) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	s.logger(ctx, "order.create_failed", map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
}

// createPaymentIntent runs after the assembly transaction committed. A
// gateway failure leaves the order pending with its pending transaction; the
// classified payments error tells the client what went wrong.
func (s *orderService) createPaymentIntent(ctx context.Context, placed PlacedOrder) (PlacedOrder, error) {
	intent, err := s.gateway.CreateIntent(ctx, "", payments.IntentRequest{
		Amount:         placed.Order.TotalCents,
		Currency:       placed.Order.Currency,
		Description:    "Order " + placed.Order.OrderNumber,
		IdempotencyKey: placed.Transaction.ID,
		Metadata: map[string]string{
			"order_id":       placed.Order.ID,
			"order_number":   placed.Order.OrderNumber,
			"transaction_id": placed.Transaction.ID,
		},
	})
	if err != nil {
		s.logger(ctx, "order.payment_intent_failed", map[string]any{
			"order_id": placed.Order.ID,
			"error":    err.Error(),
		})
		return PlacedOrder{}, err
	}

	placed.Transaction.GatewayID = intent.ID
	placed.Transaction.UpdatedAt = s.now()
	if err := s.txns.Update(ctx, placed.Transaction); err != nil {
		// The intent is idempotent on the transaction ID, so the order
		// stands; reconciliation recovers the link from intent metadata on
		// the first webhook.
		s.logger(ctx, "order.gateway_ref_update_failed", map[string]any{
			"order_id":       placed.Order.ID,
			"transaction_id": placed.Transaction.ID,
			"error":          err.Error(),
		})
	}
	placed.ClientSecret = intent.ClientSecret
	return placed, nil
}

// GetOrder loads one order. A non-empty UserID scopes the read to that
// customer; foreign orders read as not found rather than forbidden.
func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	if cmd.UserID != "" && order.UserID != cmd.UserID {
		return Order{}, fmt.Errorf("%w: order %s not found", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// ListOrders pages orders for a customer or, with an empty UserID filter, for
// admin views.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translate(err)
	}
	return page, nil
}

// TransitionStatus applies one admissible order status change with its
// lifecycle timestamp.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var saved Order
	err := s.registry.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		next, err := applyOrderStatus(order, cmd.TargetStatus, s.now())
		if err != nil {
			return err
		}
		if cmd.TargetStatus == domain.OrderStatusShipped && strings.TrimSpace(cmd.TrackingCode) != "" {
			next.TrackingCode = strings.TrimSpace(cmd.TrackingCode)
		}
		if err := s.orders.Update(txCtx, next); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	s.logger(ctx, "order.status_changed", map[string]any{
		"order_id": saved.ID,
		"status":   string(saved.Status),
		"actor_id": cmd.ActorID,
	})
	return saved, nil
}

// TransitionItemStatus advances one item a single step along the fulfillment
// ladder. Items from different stores progress independently.
func (s *orderService) TransitionItemStatus(ctx context.Context, cmd TransitionItemStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if orderID == "" || itemID == "" {
		return Order{}, fmt.Errorf("%w: order id and item id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	var current *domain.OrderItem
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			current = &order.Items[i]
			break
		}
	}
	if current == nil {
		return Order{}, fmt.Errorf("%w: item %s not found on order %s", ErrOrderNotFound, itemID, orderID)
	}
	if next, ok := orderItemStatusNext[current.Status]; !ok || next != cmd.TargetStatus {
		return Order{}, fmt.Errorf("%w: item cannot move from %s to %s", ErrOrderInvalidTransition, current.Status, cmd.TargetStatus)
	}

	saved, err := s.orders.UpdateItemStatus(ctx, orderID, itemID, cmd.TargetStatus, s.now())
	if err != nil {
		return Order{}, s.translate(err)
	}
	s.logger(ctx, "order.item_status_changed", map[string]any{
		"order_id": orderID,
		"item_id":  itemID,
		"status":   string(cmd.TargetStatus),
		"actor_id": cmd.ActorID,
	})
	return saved, nil
}

// Cancel marks an order cancelled while fulfillment has not shipped. A
// non-empty UserID restricts the operation to the order's owner.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	var saved Order
	err := s.registry.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if cmd.UserID != "" && order.UserID != cmd.UserID {
			return fmt.Errorf("%w: order %s not found", ErrOrderNotFound, orderID)
		}
		if !cancellableOrderStatuses[order.Status] {
			return fmt.Errorf("%w: order in status %s cannot be cancelled", ErrOrderInvalidTransition, order.Status)
		}
		now := s.now()
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		saved = order
		return nil
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	s.logger(ctx, "order.cancelled", map[string]any{
		"order_id": saved.ID,
		"actor_id": cmd.ActorID,
		"reason":   cmd.Reason,
	})
	return saved, nil
}

func (s *orderService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderInvalidInput),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrOrderInvalidTransition):
		return err
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}

// applyOrderStatus validates the transition and stamps lifecycle timestamps.
func applyOrderStatus(order domain.Order, target domain.OrderStatus, now time.Time) (domain.Order, error) {
	allowed := false
	for _, next := range orderStatusTransitions[order.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Order{}, fmt.Errorf("%w: order cannot move from %s to %s", ErrOrderInvalidTransition, order.Status, target)
	}

	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return order, nil
}

func translateStockError(err error, requested map[string]int64) error {
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) {
		return err
	}
	switch stockErr.Code {
	case repositories.StockErrorInsufficient:
		return &InsufficientStockError{
			ProductID: stockErr.ProductID,
			Requested: requested[stockErr.ProductID],
			Available: stockErr.Available,
		}
	case repositories.StockErrorProductNotFound:
		return fmt.Errorf("%w: product %s is no longer available", ErrOrderInvalidInput, stockErr.ProductID)
	default:
		return err
	}
}

func paymentMethodOrDefault(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return defaultPaymentMethod
	}
	return method
}

func addressSnapshot(addr domain.Address) AddressSnapshot {
	return AddressSnapshot{
		Label:        addr.Label,
		Line1:        addr.Line1,
		Line2:        addr.Line2,
		City:         addr.City,
		Region:       addr.Region,
		PostalCode:   addr.PostalCode,
		Country:      addr.Country,
		Instructions: addr.Instructions,
	}
}

var _ OrderService = (*orderService)(nil)
