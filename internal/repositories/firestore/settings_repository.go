package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	pfirestore "github.com/freshbasket/api/internal/platform/firestore"
	"github.com/freshbasket/api/internal/repositories"
)

const (
	settingsCollection = "settings"
	settingsDocumentID = "system"
)

// Defaults applied when the singleton document has never been written.
const (
	defaultDeliveryFeeCents   = 499
	defaultTaxRateBasisPoints = 800
	defaultMaxLineQuantity    = 99
	defaultCurrencyCode       = "USD"
	defaultPaymentTimeout     = 30 * time.Minute
)

// SettingsRepository reads and writes the singleton system settings document.
type SettingsRepository struct {
	base *pfirestore.BaseRepository[settingsDocument]
}

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[settingsDocument](provider, settingsCollection, nil, nil)
	return &SettingsRepository{base: base}, nil
}

// Get loads the system settings, falling back to defaults when the document
// does not exist yet.
func (r *SettingsRepository) Get(ctx context.Context) (domain.SystemSettings, error) {
	if r == nil || r.base == nil {
		return domain.SystemSettings{}, errors.New("settings repository not initialised")
	}

	ref, err := r.base.DocumentRef(ctx, settingsDocumentID)
	if err != nil {
		return domain.SystemSettings{}, err
	}

	var (
		doc   settingsDocument
		found = true
	)
	if tx := pfirestore.TxFromContext(ctx); tx != nil {
		snap, err := tx.Get(ref)
		if err != nil {
			wrapped := pfirestore.WrapError("settings.get", err)
			var repoErr repositories.RepositoryError
			if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
				found = false
			} else {
				return domain.SystemSettings{}, wrapped
			}
		} else if err := snap.DataTo(&doc); err != nil {
			return domain.SystemSettings{}, pfirestore.WrapError("settings.get", err)
		}
	} else {
		snap, err := ref.Get(ctx)
		if err != nil {
			wrapped := pfirestore.WrapError("settings.get", err)
			var repoErr repositories.RepositoryError
			if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
				found = false
			} else {
				return domain.SystemSettings{}, wrapped
			}
		} else if err := snap.DataTo(&doc); err != nil {
			return domain.SystemSettings{}, pfirestore.WrapError("settings.get", err)
		}
	}

	if !found {
		return defaultSettings(), nil
	}
	return doc.toDomain(), nil
}

// Save persists the system settings and returns the stored value.
func (r *SettingsRepository) Save(ctx context.Context, settings domain.SystemSettings) (domain.SystemSettings, error) {
	if r == nil || r.base == nil {
		return domain.SystemSettings{}, errors.New("settings repository not initialised")
	}
	if settings.TaxRateBasisPoints < 0 || settings.TaxRateBasisPoints > 10000 {
		return domain.SystemSettings{}, errors.New("settings repository: tax rate out of range")
	}
	if settings.DeliveryFeeCents < 0 {
		return domain.SystemSettings{}, errors.New("settings repository: delivery fee must not be negative")
	}
	if settings.MaxLineQuantity <= 0 {
		settings.MaxLineQuantity = defaultMaxLineQuantity
	}
	if settings.CurrencyCode == "" {
		settings.CurrencyCode = defaultCurrencyCode
	}
	if settings.PaymentTimeout <= 0 {
		settings.PaymentTimeout = defaultPaymentTimeout
	}
	settings.UpdatedAt = time.Now().UTC()

	doc := settingsDocument{
		DeliveryFeeCents:      settings.DeliveryFeeCents,
		TaxRateBasisPoints:    settings.TaxRateBasisPoints,
		MaxLineQuantity:       settings.MaxLineQuantity,
		CurrencyCode:          settings.CurrencyCode,
		PaymentTimeoutSeconds: int64(settings.PaymentTimeout / time.Second),
		UpdatedAt:             settings.UpdatedAt,
	}
	if _, err := r.base.Set(ctx, settingsDocumentID, doc); err != nil {
		return domain.SystemSettings{}, err
	}
	return settings, nil
}

func defaultSettings() domain.SystemSettings {
	return domain.SystemSettings{
		DeliveryFeeCents:   defaultDeliveryFeeCents,
		TaxRateBasisPoints: defaultTaxRateBasisPoints,
		MaxLineQuantity:    defaultMaxLineQuantity,
		CurrencyCode:       defaultCurrencyCode,
		PaymentTimeout:     defaultPaymentTimeout,
	}
}

type settingsDocument struct {
	DeliveryFeeCents      int64     `firestore:"deliveryFeeCents"`
	TaxRateBasisPoints    int64     `firestore:"taxRateBasisPoints"`
	MaxLineQuantity       int64     `firestore:"maxLineQuantity"`
	CurrencyCode          string    `firestore:"currencyCode"`
	PaymentTimeoutSeconds int64     `firestore:"paymentTimeoutSeconds"`
	UpdatedAt             time.Time `firestore:"updatedAt"`
}

func (d settingsDocument) toDomain() domain.SystemSettings {
	settings := domain.SystemSettings{
		DeliveryFeeCents:   d.DeliveryFeeCents,
		TaxRateBasisPoints: d.TaxRateBasisPoints,
		MaxLineQuantity:    d.MaxLineQuantity,
		CurrencyCode:       d.CurrencyCode,
		PaymentTimeout:     time.Duration(d.PaymentTimeoutSeconds) * time.Second,
		UpdatedAt:          d.UpdatedAt,
	}
	if settings.MaxLineQuantity <= 0 {
		settings.MaxLineQuantity = defaultMaxLineQuantity
	}
	if settings.CurrencyCode == "" {
		settings.CurrencyCode = defaultCurrencyCode
	}
	if settings.PaymentTimeout <= 0 {
		settings.PaymentTimeout = defaultPaymentTimeout
	}
	return settings
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)
