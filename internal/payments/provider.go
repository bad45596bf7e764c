package payments

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

// EventType enumerates the normalised webhook event types the reconciler consumes.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentRefunded  EventType = "payment.refunded"
	// EventIgnored marks gateway events outside the reconciler's interest.
	EventIgnored EventType = "ignored"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// IntentRequest captures the payload required to open a payment intent for
// an assembled order.
type IntentRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the gateway handle returned to the client for payment collection.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Status       Status
	CreatedAt    time.Time
}

// RefundRequest defines a gateway refund attempt. A nil Amount refunds in full.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentDetails normalises gateway specific fields for storage.
type PaymentDetails struct {
	Provider      string
	IntentID      string
	Status        Status
	Amount        int64
	Currency      string
	FailureReason string
	RefundedAt    *time.Time
}

// Event is a verified, normalised gateway webhook event.
type Event struct {
	ID       string
	Provider string
	Type     EventType
	IntentID string
	Amount   int64
	Currency string
	Reason   string
	Metadata map[string]string
	Raw      []byte
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	ConfirmIntent(ctx context.Context, intentID string) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	LookupIntent(ctx context.Context, intentID string) (PaymentDetails, error)
	VerifyWebhook(payload []byte, signature string) (Event, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, NewError(ErrorKindConfiguration, "", "invalid provider registration for key "+k, nil)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, NewError(ErrorKindConfiguration, "", "no payment providers registered", nil)
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, preferred string, req IntentRequest) (Intent, error) {
	key, provider, err := m.resolve(preferred)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// ConfirmIntent delegates to the resolved provider.
func (m *Manager) ConfirmIntent(ctx context.Context, preferred string, intentID string) (PaymentDetails, error) {
	_, provider, err := m.resolve(preferred)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.ConfirmIntent(ctx, intentID)
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, preferred string, req RefundRequest) (PaymentDetails, error) {
	_, provider, err := m.resolve(preferred)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Refund(ctx, req)
}

// LookupIntent delegates to the resolved provider.
func (m *Manager) LookupIntent(ctx context.Context, preferred string, intentID string) (PaymentDetails, error) {
	_, provider, err := m.resolve(preferred)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupIntent(ctx, intentID)
}

// VerifyWebhook delegates signature verification to the resolved provider.
func (m *Manager) VerifyWebhook(preferred string, payload []byte, signature string) (Event, error) {
	key, provider, err := m.resolve(preferred)
	if err != nil {
		return Event{}, err
	}
	event, err := provider.VerifyWebhook(payload, signature)
	if err != nil {
		return Event{}, err
	}
	event.Provider = key
	return event, nil
}
