package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order aggregates in Firestore. Items live inside
// the order document so the aggregate is written and read as one unit.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. Inside a unit of work the create joins
// the ambient transaction and fails with a conflict if the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update rewrites the full order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrderDocument(order)

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		return nil
	}

	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return err
	}
	return nil
}

// FindByID loads a single order aggregate.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByNumber resolves an order by its human-facing order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	iter := client.Collection(ordersCollection).
		Where("orderNumber", "==", number).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.NewNotFoundError("orders.findByNumber", fmt.Errorf("order %s not found", number))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByNumber", err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns a filtered page of orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if storeID := strings.TrimSpace(filter.StoreID); storeID != "" {
		query = query.Where("storeIds", "array-contains", storeID)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				statuses = append(statuses, trimmed)
			}
		}
		if len(statuses) > 0 {
			query = query.Where("status", "in", statuses)
		}
	}
	if filter.DateRange.From != nil {
		query = query.Where("placedAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("placedAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("placedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)

	token, err := decodePageToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	if token != nil {
		query = query.StartAfter(token.PlacedAt, token.ID)
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	query = query.Limit(pageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	page := domain.CursorPage[domain.Order]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		last := page.Items[len(page.Items)-1]
		encoded, err := encodePageToken(pageToken{PlacedAt: last.PlacedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextCursor = encoded
	}
	return page, nil
}

// UpdateItemStatus transitions a single item's fulfillment status inside a
// transaction so concurrent item updates never clobber each other.
func (r *OrderRepository) UpdateItemStatus(ctx context.Context, orderID string, itemID string, status domain.OrderItemStatus, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	iid := strings.TrimSpace(itemID)
	if oid == "" || iid == "" {
		return domain.Order{}, errors.New("order repository: order id and item id are required")
	}

	var saved domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, oid)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", oid, err)
		}

		found := false
		for i := range doc.Items {
			if doc.Items[i].ID == iid {
				doc.Items[i].Status = string(status)
				found = true
				break
			}
		}
		if !found {
			return pfirestore.NewNotFoundError("orders.updateItemStatus", fmt.Errorf("item %s not found on order %s", iid, oid))
		}
		doc.UpdatedAt = now.UTC()

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(oid)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateItemStatus", err)
	}
	return saved, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	storeIDs := make([]string, 0, len(order.Items))
	seenStores := make(map[string]struct{}, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:              item.ID,
			ProductID:       item.ProductID,
			StoreID:         item.StoreID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
			Status:          string(item.Status),
		})
		if _, ok := seenStores[item.StoreID]; !ok && item.StoreID != "" {
			seenStores[item.StoreID] = struct{}{}
			storeIDs = append(storeIDs, item.StoreID)
		}
	}

	return orderDocument{
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		PrimaryStoreID:   order.PrimaryStoreID,
		StoreIDs:         storeIDs,
		AddressID:        order.AddressID,
		Status:           string(order.Status),
		SubtotalCents:    order.SubtotalCents,
		DiscountCents:    order.DiscountCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		TaxCents:         order.TaxCents,
		TotalCents:       order.TotalCents,
		Currency:         order.Currency,
		DeliveryAddress:  encodeAddressSnapshot(order.DeliveryAddress),
		ShippingMethod:   order.ShippingMethod,
		TrackingCode:     order.TrackingCode,
		PaymentFailed:    order.PaymentFailed,
		Items:            items,
		PlacedAt:         order.PlacedAt.UTC(),
		ConfirmedAt:      cloneTimePtr(order.ConfirmedAt),
		ShippedAt:        cloneTimePtr(order.ShippedAt),
		DeliveredAt:      cloneTimePtr(order.DeliveredAt),
		CancelledAt:      cloneTimePtr(order.CancelledAt),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

type orderDocument struct {
	OrderNumber      string                  `firestore:"orderNumber"`
	UserID           string                  `firestore:"userId"`
	PrimaryStoreID   string                  `firestore:"primaryStoreId,omitempty"`
	StoreIDs         []string                `firestore:"storeIds"`
	AddressID        string                  `firestore:"addressId,omitempty"`
	Status           string                  `firestore:"status"`
	SubtotalCents    int64                   `firestore:"subtotalCents"`
	DiscountCents    int64                   `firestore:"discountCents"`
	DeliveryFeeCents int64                   `firestore:"deliveryFeeCents"`
	TaxCents         int64                   `firestore:"taxCents"`
	TotalCents       int64                   `firestore:"totalCents"`
	Currency         string                  `firestore:"currency"`
	DeliveryAddress  addressSnapshotDocument `firestore:"deliveryAddress"`
	ShippingMethod   string                  `firestore:"shippingMethod,omitempty"`
	TrackingCode     string                  `firestore:"trackingCode,omitempty"`
	PaymentFailed    bool                    `firestore:"paymentFailed"`
	Items            []orderItemDocument     `firestore:"items"`
	PlacedAt         time.Time               `firestore:"placedAt"`
	ConfirmedAt      *time.Time              `firestore:"confirmedAt,omitempty"`
	ShippedAt        *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time              `firestore:"cancelledAt,omitempty"`
	UpdatedAt        time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID              string `firestore:"id"`
	ProductID       string `firestore:"productId"`
	StoreID         string `firestore:"storeId"`
	ProductName     string `firestore:"productName"`
	Quantity        int64  `firestore:"quantity"`
	UnitPriceCents  int64  `firestore:"unitPriceCents"`
	TotalPriceCents int64  `firestore:"totalPriceCents"`
	Status          string `firestore:"status"`
}

type addressSnapshotDocument struct {
	Label        string `firestore:"label,omitempty"`
	Line1        string `firestore:"line1"`
	Line2        string `firestore:"line2,omitempty"`
	City         string `firestore:"city"`
	Region       string `firestore:"region,omitempty"`
	PostalCode   string `firestore:"postalCode"`
	Country      string `firestore:"country"`
	Instructions string `firestore:"instructions,omitempty"`
}

func encodeAddressSnapshot(addr domain.AddressSnapshot) addressSnapshotDocument {
	return addressSnapshotDocument{
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

func (d addressSnapshotDocument) toDomain() domain.AddressSnapshot {
	return domain.AddressSnapshot{
		Label:        d.Label,
		Line1:        d.Line1,
		Line2:        d.Line2,
		City:         d.City,
		Region:       d.Region,
		PostalCode:   d.PostalCode,
		Country:      d.Country,
		Instructions: d.Instructions,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ID:              item.ID,
			OrderID:         id,
			ProductID:       item.ProductID,
			StoreID:         item.StoreID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
			Status:          domain.OrderItemStatus(item.Status),
		})
	}

	return domain.Order{
		ID:               id,
		OrderNumber:      d.OrderNumber,
		UserID:           d.UserID,
		PrimaryStoreID:   d.PrimaryStoreID,
		AddressID:        d.AddressID,
		Status:           domain.OrderStatus(d.Status),
		SubtotalCents:    d.SubtotalCents,
		DiscountCents:    d.DiscountCents,
		DeliveryFeeCents: d.DeliveryFeeCents,
		TaxCents:         d.TaxCents,
		TotalCents:       d.TotalCents,
		Currency:         d.Currency,
		DeliveryAddress:  d.DeliveryAddress.toDomain(),
		ShippingMethod:   d.ShippingMethod,
		TrackingCode:     d.TrackingCode,
		PaymentFailed:    d.PaymentFailed,
		Items:            items,
		PlacedAt:         d.PlacedAt,
		ConfirmedAt:      d.ConfirmedAt,
		ShippedAt:        d.ShippedAt,
		DeliveredAt:      d.DeliveredAt,
		CancelledAt:      d.CancelledAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
