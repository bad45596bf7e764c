package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const anonymousCartsCollection = "anonymous_carts"

// AnonymousCartRepository stores one blob document per visitor session.
type AnonymousCartRepository struct {
	base     *pfirestore.BaseRepository[anonymousCartDocument]
	provider *pfirestore.Provider
}

// NewAnonymousCartRepository constructs a Firestore-backed anonymous cart repository.
func NewAnonymousCartRepository(provider *pfirestore.Provider) (*AnonymousCartRepository, error) {
	if provider == nil {
		return nil, errors.New("anonymous cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[anonymousCartDocument](provider, anonymousCartsCollection, nil, nil)
	return &AnonymousCartRepository{base: base, provider: provider}, nil
}

// Get returns the session's cart. Absence surfaces as a not-found repository
// error; reads never create the document.
func (r *AnonymousCartRepository) Get(ctx context.Context, sessionID string) (domain.AnonymousCart, error) {
	if r == nil || r.base == nil {
		return domain.AnonymousCart{}, errors.New("anonymous cart repository not initialised")
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.AnonymousCart{}, errors.New("anonymous cart repository: session id is required")
	}

	doc, err := r.base.Get(ctx, sid)
	if err != nil {
		return domain.AnonymousCart{}, err
	}
	return doc.Data.toDomain(sid, doc.UpdateTime), nil
}

// Save writes the whole blob. A non-nil expectedUpdate preconditions the
// write on the stored update time so concurrent mutations conflict instead of
// overwriting each other.
func (r *AnonymousCartRepository) Save(ctx context.Context, cart domain.AnonymousCart, expectedUpdate *time.Time) (domain.AnonymousCart, error) {
	if r == nil || r.base == nil {
		return domain.AnonymousCart{}, errors.New("anonymous cart repository not initialised")
	}
	sid := strings.TrimSpace(cart.SessionID)
	if sid == "" {
		return domain.AnonymousCart{}, errors.New("anonymous cart repository: session id is required")
	}

	now := time.Now().UTC()
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	entries := make([]anonymousCartEntryDocument, 0, len(cart.Entries))
	for _, entry := range cart.Entries {
		entries = append(entries, anonymousCartEntryDocument{
			ProductID: strings.TrimSpace(entry.ProductID),
			Quantity:  entry.Quantity,
			AddedAt:   entry.AddedAt.UTC(),
		})
	}

	doc := anonymousCartDocument{
		Entries:   entries,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	var updateTime time.Time
	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, sid, doc)
		if err != nil {
			return domain.AnonymousCart{}, err
		}
		updateTime = result.UpdateTime
	} else {
		updates := []firestore.Update{
			{Path: "entries", Value: doc.Entries},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}
		result, err := r.base.Update(ctx, sid, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
		if err != nil {
			return domain.AnonymousCart{}, err
		}
		updateTime = result.UpdateTime
	}

	return doc.toDomain(sid, updateTime), nil
}

// Clear resets the blob to an empty entry list, keeping the document. Inside a
// unit of work the reset joins the ambient transaction.
func (r *AnonymousCartRepository) Clear(ctx context.Context, sessionID string) error {
	if r == nil || r.base == nil {
		return errors.New("anonymous cart repository not initialised")
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return errors.New("anonymous cart repository: session id is required")
	}

	ref, err := r.base.DocumentRef(ctx, sid)
	if err != nil {
		return err
	}

	updates := []firestore.Update{
		{Path: "entries", Value: []anonymousCartEntryDocument{}},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Update(ref, updates); err != nil {
			return pfirestore.WrapError("anonymousCarts.clear", err)
		}
		return nil
	}

	if _, err := ref.Update(ctx, updates); err != nil {
		return pfirestore.WrapError("anonymousCarts.clear", err)
	}
	return nil
}

type anonymousCartDocument struct {
	Entries   []anonymousCartEntryDocument `firestore:"entries"`
	CreatedAt time.Time                    `firestore:"createdAt"`
	UpdatedAt time.Time                    `firestore:"updatedAt"`
}

type anonymousCartEntryDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int64     `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func (d anonymousCartDocument) toDomain(sessionID string, updateTime time.Time) domain.AnonymousCart {
	entries := make([]domain.AnonymousCartEntry, 0, len(d.Entries))
	for _, entry := range d.Entries {
		entries = append(entries, domain.AnonymousCartEntry{
			ProductID: entry.ProductID,
			Quantity:  entry.Quantity,
			AddedAt:   entry.AddedAt,
		})
	}
	cart := domain.AnonymousCart{
		SessionID: sessionID,
		Entries:   entries,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if !updateTime.IsZero() {
		cart.UpdatedAt = updateTime
	}
	return cart
}

var _ repositories.AnonymousCartRepository = (*AnonymousCartRepository)(nil)
