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

const webhookEventsCollection = "webhook_events"

// WebhookEventRepository is the first-writer-wins dedup store for gateway
// events. Document IDs are the gateway's own event IDs so a replay collides
// on Create and surfaces as a conflict.
type WebhookEventRepository struct {
	base     *pfirestore.BaseRepository[webhookEventDocument]
	provider *pfirestore.Provider
}

// NewWebhookEventRepository constructs a Firestore-backed webhook event repository.
func NewWebhookEventRepository(provider *pfirestore.Provider) (*WebhookEventRepository, error) {
	if provider == nil {
		return nil, errors.New("webhook event repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[webhookEventDocument](provider, webhookEventsCollection, nil, nil)
	return &WebhookEventRepository{base: base, provider: provider}, nil
}

// InsertNew records the event, failing with a conflict when the ID exists.
func (r *WebhookEventRepository) InsertNew(ctx context.Context, event domain.WebhookEvent) error {
	if r == nil || r.base == nil {
		return errors.New("webhook event repository not initialised")
	}
	id := strings.TrimSpace(event.ID)
	if id == "" {
		return errors.New("webhook event repository: event id is required")
	}

	receivedAt := event.ReceivedAt.UTC()
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	doc := webhookEventDocument{
		Provider:       strings.TrimSpace(event.Provider),
		Kind:           strings.TrimSpace(event.Kind),
		TransactionRef: strings.TrimSpace(event.TransactionRef),
		ReceivedAt:     receivedAt,
		ProcessedAt:    cloneTimePtr(event.ProcessedAt),
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("webhookEvents.insertNew", err)
		}
		return nil
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("webhookEvents.insertNew", err)
	}
	return nil
}

// MarkProcessed stamps the event once its side effects have been applied.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("webhook event repository not initialised")
	}
	id := strings.TrimSpace(eventID)
	if id == "" {
		return errors.New("webhook event repository: event id is required")
	}

	updates := []firestore.Update{
		{Path: "processedAt", Value: processedAt.UTC()},
	}

	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Update(ref, updates); err != nil {
			return pfirestore.WrapError("webhookEvents.markProcessed", err)
		}
		return nil
	}

	if _, err := r.base.Update(ctx, id, updates); err != nil {
		return err
	}
	return nil
}

// FindByID loads a single event record.
func (r *WebhookEventRepository) FindByID(ctx context.Context, eventID string) (domain.WebhookEvent, error) {
	if r == nil || r.base == nil {
		return domain.WebhookEvent{}, errors.New("webhook event repository not initialised")
	}
	id := strings.TrimSpace(eventID)
	if id == "" {
		return domain.WebhookEvent{}, errors.New("webhook event repository: event id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.WebhookEvent{}, err
	}
	return domain.WebhookEvent{
		ID:             doc.ID,
		Provider:       doc.Data.Provider,
		Kind:           doc.Data.Kind,
		TransactionRef: doc.Data.TransactionRef,
		ReceivedAt:     doc.Data.ReceivedAt,
		ProcessedAt:    doc.Data.ProcessedAt,
	}, nil
}

type webhookEventDocument struct {
	Provider       string     `firestore:"provider"`
	Kind           string     `firestore:"kind"`
	TransactionRef string     `firestore:"transactionRef,omitempty"`
	ReceivedAt     time.Time  `firestore:"receivedAt"`
	ProcessedAt    *time.Time `firestore:"processedAt,omitempty"`
}

var _ repositories.WebhookEventRepository = (*WebhookEventRepository)(nil)
