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

const paymentTransactionsCollection = "payment_transactions"

// PaymentTransactionRepository stores gateway attempts as a top-level
// collection so reconciliation can look them up by gateway ID across orders.
type PaymentTransactionRepository struct {
	base     *pfirestore.BaseRepository[paymentTransactionDocument]
	provider *pfirestore.Provider
}

// NewPaymentTransactionRepository constructs a Firestore-backed transaction repository.
func NewPaymentTransactionRepository(provider *pfirestore.Provider) (*PaymentTransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("payment transaction repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentTransactionDocument](provider, paymentTransactionsCollection, nil, nil)
	return &PaymentTransactionRepository{base: base, provider: provider}, nil
}

// Insert creates the transaction document, joining the ambient transaction
// inside a unit of work.
func (r *PaymentTransactionRepository) Insert(ctx context.Context, txn domain.PaymentTransaction) error {
	if r == nil || r.base == nil {
		return errors.New("payment transaction repository not initialised")
	}
	id := strings.TrimSpace(txn.ID)
	if id == "" {
		return errors.New("payment transaction repository: transaction id is required")
	}

	doc := encodePaymentTransaction(txn)

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("paymentTransactions.insert", err)
		}
		return nil
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("paymentTransactions.insert", err)
	}
	return nil
}

// Update rewrites the transaction document.
func (r *PaymentTransactionRepository) Update(ctx context.Context, txn domain.PaymentTransaction) error {
	if r == nil || r.base == nil {
		return errors.New("payment transaction repository not initialised")
	}
	id := strings.TrimSpace(txn.ID)
	if id == "" {
		return errors.New("payment transaction repository: transaction id is required")
	}

	doc := encodePaymentTransaction(txn)

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("paymentTransactions.update", err)
		}
		return nil
	}

	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return err
	}
	return nil
}

// FindByID loads a single transaction.
func (r *PaymentTransactionRepository) FindByID(ctx context.Context, txnID string) (domain.PaymentTransaction, error) {
	if r == nil || r.base == nil {
		return domain.PaymentTransaction{}, errors.New("payment transaction repository not initialised")
	}
	id := strings.TrimSpace(txnID)
	if id == "" {
		return domain.PaymentTransaction{}, errors.New("payment transaction repository: transaction id is required")
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.PaymentTransaction{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.PaymentTransaction{}, pfirestore.WrapError("paymentTransactions.get", err)
		}
		var doc paymentTransactionDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.PaymentTransaction{}, fmt.Errorf("decode payment transaction %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PaymentTransaction{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByGatewayID resolves a transaction by the gateway's payment intent ID.
func (r *PaymentTransactionRepository) FindByGatewayID(ctx context.Context, gatewayID string) (domain.PaymentTransaction, error) {
	if r == nil || r.provider == nil {
		return domain.PaymentTransaction{}, errors.New("payment transaction repository not initialised")
	}
	gid := strings.TrimSpace(gatewayID)
	if gid == "" {
		return domain.PaymentTransaction{}, errors.New("payment transaction repository: gateway id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.PaymentTransaction{}, err
	}

	query := client.Collection(paymentTransactionsCollection).
		Where("gatewayId", "==", gid).
		Limit(1)

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return domain.PaymentTransaction{}, pfirestore.WrapError("paymentTransactions.findByGatewayId", err)
		}
		if len(snaps) == 0 {
			return domain.PaymentTransaction{}, pfirestore.NewNotFoundError("paymentTransactions.findByGatewayId", fmt.Errorf("gateway id %s not found", gid))
		}
		var doc paymentTransactionDocument
		if err := snaps[0].DataTo(&doc); err != nil {
			return domain.PaymentTransaction{}, fmt.Errorf("decode payment transaction %s: %w", snaps[0].Ref.ID, err)
		}
		return doc.toDomain(snaps[0].Ref.ID), nil
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.PaymentTransaction{}, pfirestore.NewNotFoundError("paymentTransactions.findByGatewayId", fmt.Errorf("gateway id %s not found", gid))
	}
	if err != nil {
		return domain.PaymentTransaction{}, pfirestore.WrapError("paymentTransactions.findByGatewayId", err)
	}

	var doc paymentTransactionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.PaymentTransaction{}, fmt.Errorf("decode payment transaction %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByOrder returns all transactions for an order ordered by creation.
func (r *PaymentTransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment transaction repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("payment transaction repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(paymentTransactionsCollection).
		Where("orderId", "==", oid).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.PaymentTransaction
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("paymentTransactions.listByOrder", err)
		}
		var doc paymentTransactionDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode payment transaction %s: %w", snap.Ref.ID, err)
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}

// ListPendingOlderThan returns pending transactions created before cutoff that
// have not yet triggered a timeout notification.
func (r *PaymentTransactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentTransaction, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment transaction repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(paymentTransactionsCollection).
		Where("status", "==", string(domain.PaymentStatusPending)).
		Where("createdAt", "<", cutoff.UTC()).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.PaymentTransaction
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("paymentTransactions.listPending", err)
		}
		var doc paymentTransactionDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode payment transaction %s: %w", snap.Ref.ID, err)
		}
		if doc.TimeoutNotifiedAt != nil {
			continue
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}

func encodePaymentTransaction(txn domain.PaymentTransaction) paymentTransactionDocument {
	createdAt := txn.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := txn.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return paymentTransactionDocument{
		OrderID:           strings.TrimSpace(txn.OrderID),
		AmountCents:       txn.AmountCents,
		Currency:          strings.ToUpper(strings.TrimSpace(txn.Currency)),
		Method:            strings.TrimSpace(txn.Method),
		GatewayID:         strings.TrimSpace(txn.GatewayID),
		Status:            string(txn.Status),
		FailureReason:     strings.TrimSpace(txn.FailureReason),
		TimeoutNotifiedAt: cloneTimePtr(txn.TimeoutNotifiedAt),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}
}

type paymentTransactionDocument struct {
	OrderID           string     `firestore:"orderId"`
	AmountCents       int64      `firestore:"amountCents"`
	Currency          string     `firestore:"currency"`
	Method            string     `firestore:"method,omitempty"`
	GatewayID         string     `firestore:"gatewayId,omitempty"`
	Status            string     `firestore:"status"`
	FailureReason     string     `firestore:"failureReason,omitempty"`
	TimeoutNotifiedAt *time.Time `firestore:"timeoutNotifiedAt,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func (d paymentTransactionDocument) toDomain(id string) domain.PaymentTransaction {
	return domain.PaymentTransaction{
		ID:                id,
		OrderID:           d.OrderID,
		AmountCents:       d.AmountCents,
		Currency:          d.Currency,
		Method:            d.Method,
		GatewayID:         d.GatewayID,
		Status:            domain.PaymentTransactionStatus(d.Status),
		FailureReason:     d.FailureReason,
		TimeoutNotifiedAt: d.TimeoutNotifiedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

var _ repositories.PaymentTransactionRepository = (*PaymentTransactionRepository)(nil)
