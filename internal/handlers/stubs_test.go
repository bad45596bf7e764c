package handlers

import (
	"context"
	"errors"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/repositories"
	"github.com/freshbasket/api/internal/services"
)

var errPublishDown = errors.New("publish backend down")

type stubCartService struct {
	lines    []domain.CartLineItem
	err      error
	addCmds  []services.AddCartItemCommand
	updates  []services.UpdateCartItemCommand
	removed  []string
	cleared  []domain.Identity
	mergedTo []string
	mergeErr error
}

func (s *stubCartService) GetLineItems(ctx context.Context, identity domain.Identity) ([]domain.CartLineItem, error) {
	return s.lines, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) ([]domain.CartLineItem, error) {
	s.addCmds = append(s.addCmds, cmd)
	return s.lines, s.err
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) ([]domain.CartLineItem, error) {
	s.updates = append(s.updates, cmd)
	return s.lines, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, identity domain.Identity, lineKey string) error {
	s.removed = append(s.removed, lineKey)
	return s.err
}

func (s *stubCartService) Clear(ctx context.Context, identity domain.Identity) error {
	s.cleared = append(s.cleared, identity)
	return s.err
}

func (s *stubCartService) MergeSessionIntoUser(ctx context.Context, sessionID string, userID string) error {
	s.mergedTo = append(s.mergedTo, sessionID+"->"+userID)
	return s.mergeErr
}

type stubPricingService struct {
	result   domain.PricingResult
	err      error
	commands []services.ComputeTotalsCommand
}

func (s *stubPricingService) ComputeTotals(ctx context.Context, cmd services.ComputeTotalsCommand) (domain.PricingResult, error) {
	s.commands = append(s.commands, cmd)
	return s.result, s.err
}

type stubOrderService struct {
	placed      services.PlacedOrder
	placeErr    error
	placeCmds   []services.PlaceOrderCommand
	order       domain.Order
	orderErr    error
	getCmds     []services.GetOrderCommand
	page        domain.CursorPage[domain.Order]
	listErr     error
	listFilters []services.OrderListFilter
	transitions []services.TransitionOrderStatusCommand
	itemMoves   []services.TransitionItemStatusCommand
	cancels     []services.CancelOrderCommand
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
	s.placeCmds = append(s.placeCmds, cmd)
	return s.placed, s.placeErr
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
	s.getCmds = append(s.getCmds, cmd)
	return s.order, s.orderErr
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.listFilters = append(s.listFilters, filter)
	return s.page, s.listErr
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionOrderStatusCommand) (domain.Order, error) {
	s.transitions = append(s.transitions, cmd)
	return s.order, s.orderErr
}

func (s *stubOrderService) TransitionItemStatus(ctx context.Context, cmd services.TransitionItemStatusCommand) (domain.Order, error) {
	s.itemMoves = append(s.itemMoves, cmd)
	return s.order, s.orderErr
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	s.cancels = append(s.cancels, cmd)
	return s.order, s.orderErr
}

type stubReconciliationService struct {
	order      domain.Order
	err        error
	refunds    []services.RefundOrderCommand
	events     []payments.Event
	swept      int
	handledErr error
}

func (s *stubReconciliationService) HandleGatewayEvent(ctx context.Context, event payments.Event) error {
	s.events = append(s.events, event)
	return s.handledErr
}

func (s *stubReconciliationService) Refund(ctx context.Context, cmd services.RefundOrderCommand) (domain.Order, error) {
	s.refunds = append(s.refunds, cmd)
	return s.order, s.err
}

func (s *stubReconciliationService) SweepPendingTimeouts(ctx context.Context) (int, error) {
	return s.swept, s.err
}

type stubCatalogService struct {
	products    domain.CursorPage[domain.Product]
	product     domain.Product
	stores      domain.CursorPage[domain.Store]
	store       domain.Store
	err         error
	searchCmds  []services.SearchProductsCommand
	listFilters []repositories.ProductListFilter
	upserts     []services.UpsertProductCommand
	imageURL    string
	imageErr    error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	s.listFilters = append(s.listFilters, filter)
	return s.products, s.err
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return s.product, s.err
}

func (s *stubCatalogService) SearchProducts(ctx context.Context, cmd services.SearchProductsCommand) (domain.CursorPage[domain.Product], error) {
	s.searchCmds = append(s.searchCmds, cmd)
	return s.products, s.err
}

func (s *stubCatalogService) ListStores(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Store], error) {
	return s.stores, s.err
}

func (s *stubCatalogService) GetStore(ctx context.Context, storeID string) (domain.Store, error) {
	return s.store, s.err
}

func (s *stubCatalogService) UpsertProduct(ctx context.Context, cmd services.UpsertProductCommand) (domain.Product, error) {
	s.upserts = append(s.upserts, cmd)
	return s.product, s.err
}

func (s *stubCatalogService) ProductImageURL(ctx context.Context, product domain.Product) (string, error) {
	return s.imageURL, s.imageErr
}

type stubAddressService struct {
	addresses []domain.Address
	address   domain.Address
	err       error
	saved     []services.SaveAddressCommand
	deleted   []string
	defaults  []string
}

func (s *stubAddressService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	return s.addresses, s.err
}

func (s *stubAddressService) GetAddress(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	return s.address, s.err
}

func (s *stubAddressService) CreateAddress(ctx context.Context, cmd services.SaveAddressCommand) (domain.Address, error) {
	s.saved = append(s.saved, cmd)
	return s.address, s.err
}

func (s *stubAddressService) UpdateAddress(ctx context.Context, cmd services.SaveAddressCommand) (domain.Address, error) {
	s.saved = append(s.saved, cmd)
	return s.address, s.err
}

func (s *stubAddressService) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	s.deleted = append(s.deleted, addressID)
	return s.err
}

func (s *stubAddressService) SetDefaultAddress(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	s.defaults = append(s.defaults, addressID)
	return s.address, s.err
}

type stubDiscountService struct {
	resolution services.DiscountResolution
	page       domain.CursorPage[domain.Discount]
	discount   domain.Discount
	err        error
	upserts    []services.UpsertDiscountCommand
	deleted    []string
}

func (s *stubDiscountService) Resolve(ctx context.Context, cmd services.ResolveDiscountsCommand) (services.DiscountResolution, error) {
	return s.resolution, s.err
}

func (s *stubDiscountService) RecordUsage(ctx context.Context, cmd services.RecordDiscountUsageCommand) error {
	return s.err
}

func (s *stubDiscountService) ListDiscounts(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	return s.page, s.err
}

func (s *stubDiscountService) CreateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (domain.Discount, error) {
	s.upserts = append(s.upserts, cmd)
	return s.discount, s.err
}

func (s *stubDiscountService) UpdateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (domain.Discount, error) {
	s.upserts = append(s.upserts, cmd)
	return s.discount, s.err
}

func (s *stubDiscountService) DeleteDiscount(ctx context.Context, discountID string) error {
	s.deleted = append(s.deleted, discountID)
	return s.err
}

type stubSystemService struct {
	report   domain.SystemHealthReport
	settings domain.SystemSettings
	err      error
	updates  []services.UpdateSettingsCommand
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func (s *stubSystemService) GetSettings(ctx context.Context) (domain.SystemSettings, error) {
	return s.settings, s.err
}

func (s *stubSystemService) UpdateSettings(ctx context.Context, cmd services.UpdateSettingsCommand) (domain.SystemSettings, error) {
	s.updates = append(s.updates, cmd)
	return s.settings, s.err
}

type stubEventPublisher struct {
	events []payments.Event
	id     string
	err    error
}

func (s *stubEventPublisher) PublishGatewayEvent(ctx context.Context, event payments.Event) (string, error) {
	s.events = append(s.events, event)
	return s.id, s.err
}

// stubWebhookProvider verifies webhooks with a fixed expectation and fails
// intent operations, which webhook tests never reach.
type stubWebhookProvider struct {
	event        payments.Event
	verifyErr    error
	gotPayload   []byte
	gotSignature string
}

func (p *stubWebhookProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	return payments.Intent{}, payments.NewError(payments.ErrorKindConfiguration, "", "not supported", nil)
}

func (p *stubWebhookProvider) ConfirmIntent(ctx context.Context, intentID string) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, payments.NewError(payments.ErrorKindConfiguration, "", "not supported", nil)
}

func (p *stubWebhookProvider) Refund(ctx context.Context, req payments.RefundRequest) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, payments.NewError(payments.ErrorKindConfiguration, "", "not supported", nil)
}

func (p *stubWebhookProvider) LookupIntent(ctx context.Context, intentID string) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, payments.NewError(payments.ErrorKindConfiguration, "", "not supported", nil)
}

func (p *stubWebhookProvider) VerifyWebhook(payload []byte, signature string) (payments.Event, error) {
	p.gotPayload = payload
	p.gotSignature = signature
	if p.verifyErr != nil {
		return payments.Event{}, p.verifyErr
	}
	return p.event, nil
}
