package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists user delivery addresses in Firestore.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the specified user ordered by most recent update.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("updatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap, userID)
		if err != nil {
			return nil, err
		}
		if addr.Hash == "" {
			addr.Hash = addr.Fingerprint()
		}
		results = append(results, addr)
	}
	return results, nil
}

// Upsert creates or updates an address, deduplicating by normalized hash.
// A saved address with the default flag clears the flag on every other
// address of the same user within the same transaction.
func (r *AddressRepository) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	hash := strings.TrimSpace(addr.Hash)
	if hash == "" {
		hash = addr.Fingerprint()
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var docRef *firestore.DocumentRef
		var existingSnap *firestore.DocumentSnapshot

		if addressID != nil {
			id := strings.TrimSpace(*addressID)
			if id != "" {
				docRef = coll.Doc(id)
			}
		}

		if docRef == nil {
			query := coll.Where("hash", "==", hash).Limit(1)
			docsIter := tx.Documents(query)
			snaps, err := docsIter.GetAll()
			if err != nil {
				if status.Code(err) != codes.NotFound {
					return err
				}
			}
			if len(snaps) > 0 {
				existingSnap = snaps[0]
				docRef = existingSnap.Ref
			}
		}

		if docRef == nil {
			docRef = coll.NewDoc()
		}

		var doc addressDocument
		snapshot, err := tx.Get(docRef)
		switch status.Code(err) {
		case codes.NotFound:
			// new document, leave doc zeroed
		case codes.OK:
			if existingSnap == nil {
				existingSnap = snapshot
			}
		default:
			return err
		}

		if existingSnap != nil {
			if err := existingSnap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode address %s: %w", existingSnap.Ref.ID, err)
			}
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			if !addr.CreatedAt.IsZero() {
				doc.CreatedAt = addr.CreatedAt.UTC()
			} else {
				doc.CreatedAt = now
			}
		}
		doc.UpdatedAt = now
		doc.Label = strings.TrimSpace(addr.Label)
		doc.Line1 = strings.TrimSpace(addr.Line1)
		doc.Line2 = strings.TrimSpace(addr.Line2)
		doc.City = strings.TrimSpace(addr.City)
		doc.Region = strings.TrimSpace(addr.Region)
		doc.PostalCode = strings.TrimSpace(addr.PostalCode)
		doc.Country = strings.TrimSpace(addr.Country)
		doc.Instructions = strings.TrimSpace(addr.Instructions)
		doc.Default = addr.Default
		doc.Hash = hash

		if err := tx.Set(docRef, doc); err != nil {
			return err
		}

		if doc.Default {
			if err := r.clearDefault(tx, coll, docRef.ID); err != nil {
				return err
			}
		}

		saved = doc.toDomain(docRef.ID, userID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return saved, nil
}

// Insert creates a fresh address document without hash deduplication or a
// default-flag sweep. Inside a unit of work the create is a pure write, so
// checkout can record the delivery address after its transactional reads.
func (r *AddressRepository) Insert(ctx context.Context, userID string, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}

	hash := strings.TrimSpace(addr.Hash)
	if hash == "" {
		hash = addr.Fingerprint()
	}

	now := time.Now().UTC()
	createdAt := addr.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	doc := addressDocument{
		Label:        strings.TrimSpace(addr.Label),
		Line1:        strings.TrimSpace(addr.Line1),
		Line2:        strings.TrimSpace(addr.Line2),
		City:         strings.TrimSpace(addr.City),
		Region:       strings.TrimSpace(addr.Region),
		PostalCode:   strings.TrimSpace(addr.PostalCode),
		Country:      strings.TrimSpace(addr.Country),
		Instructions: strings.TrimSpace(addr.Instructions),
		Default:      addr.Default,
		Hash:         hash,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	var docRef *firestore.DocumentRef
	id := strings.TrimSpace(addr.ID)
	if id != "" {
		docRef = coll.Doc(id)
	} else {
		docRef = coll.NewDoc()
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Create(docRef, doc); err != nil {
			return domain.Address{}, pfirestore.WrapError("addresses.insert", err)
		}
	} else if _, err := docRef.Create(ctx, doc); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.insert", err)
	}
	return doc.toDomain(docRef.ID, userID), nil
}

// Delete removes the specified address document.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap, userID)
}

// FindByHash resolves the existing address matching a normalized hash, used
// by checkout to reuse an address instead of inserting a duplicate.
func (r *AddressRepository) FindByHash(ctx context.Context, userID string, hash string) (domain.Address, bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, false, err
	}
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return domain.Address{}, false, nil
	}

	query := coll.Where("hash", "==", trimmed).Limit(1)
	var snaps []*firestore.DocumentSnapshot
	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		snaps, err = tx.Documents(query).GetAll()
	} else {
		iter := query.Documents(ctx)
		defer iter.Stop()
		snaps, err = iter.GetAll()
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Address{}, false, nil
		}
		return domain.Address{}, false, pfirestore.WrapError("addresses.findByHash", err)
	}
	if len(snaps) == 0 {
		return domain.Address{}, false, nil
	}
	addr, err := decodeAddressDocument(snaps[0], userID)
	if err != nil {
		return domain.Address{}, false, err
	}
	return addr, true, nil
}

// HasAny reports whether the user has stored at least one address. The first
// address saved for a user becomes their default.
func (r *AddressRepository) HasAny(ctx context.Context, userID string) (bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return false, err
	}

	query := coll.Limit(1)
	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return false, nil
			}
			return false, pfirestore.WrapError("addresses.hasAny", err)
		}
		return len(snaps) > 0, nil
	}

	iter := query.Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil {
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, pfirestore.WrapError("addresses.hasAny", err)
	}
	return true, nil
}

// SetDefault marks one address as the user's default and clears the flag on
// every other address in the same transaction.
func (r *AddressRepository) SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	var saved domain.Address
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef := coll.Doc(id)
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc addressDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode address %s: %w", snap.Ref.ID, err)
		}

		now := time.Now().UTC()
		doc.Default = true
		doc.UpdatedAt = now
		updates := []firestore.Update{
			{Path: "default", Value: true},
			{Path: "updatedAt", Value: now},
		}
		if err := tx.Update(docRef, updates); err != nil {
			return err
		}

		if err := r.clearDefault(tx, coll, docRef.ID); err != nil {
			return err
		}

		saved = doc.toDomain(docRef.ID, userID)
		return nil
	})
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.setDefault", err)
	}
	return saved, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf(addressCollectionPattern, uid)
	return client.Collection(path), nil
}

func (r *AddressRepository) clearDefault(tx *firestore.Transaction, coll *firestore.CollectionRef, currentID string) error {
	query := coll.Where("default", "==", true).OrderBy("updatedAt", firestore.Desc).Limit(10)
	snaps, err := tx.Documents(query).GetAll()
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return err
	}
	for _, snap := range snaps {
		if snap.Ref.ID == currentID {
			continue
		}
		if err := tx.Update(snap.Ref, []firestore.Update{{Path: "default", Value: false}}); err != nil {
			return err
		}
	}
	return nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot, userID string) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID, userID), nil
}

type addressDocument struct {
	Label        string    `firestore:"label,omitempty"`
	Line1        string    `firestore:"line1"`
	Line2        string    `firestore:"line2,omitempty"`
	City         string    `firestore:"city"`
	Region       string    `firestore:"region,omitempty"`
	PostalCode   string    `firestore:"postalCode"`
	Country      string    `firestore:"country"`
	Instructions string    `firestore:"instructions,omitempty"`
	Default      bool      `firestore:"default"`
	Hash         string    `firestore:"hash"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d addressDocument) toDomain(id, userID string) domain.Address {
	return domain.Address{
		ID:           id,
		UserID:       userID,
		Label:        d.Label,
		Line1:        d.Line1,
		Line2:        d.Line2,
		City:         d.City,
		Region:       d.Region,
		PostalCode:   d.PostalCode,
		Country:      d.Country,
		Instructions: d.Instructions,
		Default:      d.Default,
		Hash:         d.Hash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ repositories.AddressRepository = (*AddressRepository)(nil)
