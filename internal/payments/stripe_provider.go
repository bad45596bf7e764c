package payments

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	AccountID     string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api           stripeClients
	webhookSecret string
	account       string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, NewError(ErrorKindConfiguration, "", "stripe api key is required", nil)
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.refunds == nil {
		return nil, NewError(ErrorKindConfiguration, "", "incomplete stripe client configuration", nil)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		account:       strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a Stripe Payment Intent for the given amount. The
// idempotency key ties retries of the same checkout to one intent.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, NewError(ErrorKindConfiguration, "", "stripe provider is nil", nil)
	}
	if req.Amount <= 0 {
		return Intent{}, NewError(ErrorKindConfiguration, "", "intent amount must be positive", nil)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, classifyStripeError("create intent", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return Intent{
		ID:           intent.ID,
		Provider:     "stripe",
		ClientSecret: intent.ClientSecret,
		Status:       stripeIntentStatus(intent),
		CreatedAt:    time.Unix(intent.Created, 0).UTC(),
	}, nil
}

// ConfirmIntent confirms a Stripe Payment Intent.
func (p *StripeProvider) ConfirmIntent(ctx context.Context, intentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, NewError(ErrorKindConfiguration, "", "stripe provider is nil", nil)
	}
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Confirm(intentID, params)
	if err != nil {
		return PaymentDetails{}, classifyStripeError("confirm intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})
	return stripePaymentDetails(intent), nil
}

// Refund creates a refund for the provided Payment Intent and returns the
// refreshed payment details.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, NewError(ErrorKindConfiguration, "", "stripe provider is nil", nil)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}
	if _, err := p.api.refunds.New(params); err != nil {
		return PaymentDetails{}, classifyStripeError("refund intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.IntentID,
	})
	return p.LookupIntent(ctx, req.IntentID)
}

// LookupIntent retrieves a Stripe Payment Intent.
func (p *StripeProvider) LookupIntent(ctx context.Context, intentID string) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, NewError(ErrorKindConfiguration, "", "stripe provider is nil", nil)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(intentID, params)
	if err != nil {
		return PaymentDetails{}, classifyStripeError("lookup intent", err)
	}
	return stripePaymentDetails(intent), nil
}

// VerifyWebhook checks the Stripe-Signature header against the configured
// endpoint secret and normalises the event. Unknown event types come back as
// EventIgnored rather than an error so callers can acknowledge them.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (Event, error) {
	if p == nil {
		return Event{}, NewError(ErrorKindConfiguration, "", "stripe provider is nil", nil)
	}
	if p.webhookSecret == "" {
		return Event{}, NewError(ErrorKindConfiguration, "", "stripe webhook secret is not configured", nil)
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, NewError(ErrorKindConfiguration, "", "webhook signature verification failed", err)
	}

	event := Event{
		ID:   stripeEvent.ID,
		Type: EventIgnored,
		Raw:  payload,
	}

	switch stripeEvent.Type {
	case "payment_intent.succeeded":
		event.Type = EventPaymentSucceeded
	case "payment_intent.payment_failed":
		event.Type = EventPaymentFailed
	case "charge.refunded":
		event.Type = EventPaymentRefunded
	default:
		return event, nil
	}

	var intent struct {
		ID               string            `json:"id"`
		PaymentIntent    string            `json:"payment_intent"`
		Amount           int64             `json:"amount"`
		Currency         string            `json:"currency"`
		Metadata         map[string]string `json:"metadata"`
		LastPaymentError *struct {
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if err := json.Unmarshal(stripeEvent.Data.Raw, &intent); err != nil {
		return Event{}, NewError(ErrorKindConfiguration, "", "malformed webhook payload", err)
	}

	event.IntentID = intent.ID
	if event.Type == EventPaymentRefunded && intent.PaymentIntent != "" {
		// Charge objects reference their intent indirectly.
		event.IntentID = intent.PaymentIntent
	}
	event.Amount = intent.Amount
	event.Currency = strings.ToUpper(intent.Currency)
	event.Metadata = intent.Metadata
	if intent.LastPaymentError != nil {
		event.Reason = intent.LastPaymentError.Message
	}
	return event, nil
}

func stripeIntentStatus(intent *stripe.PaymentIntent) Status {
	if intent == nil {
		return StatusPending
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := stripeIntentStatus(intent)

	var refundedAt *time.Time
	var failureReason string
	if charge := intent.LatestCharge; charge != nil {
		if charge.Refunded || charge.AmountRefunded > 0 {
			t := time.Unix(charge.Created, 0).UTC()
			refundedAt = &t
			if charge.AmountRefunded >= charge.Amount && charge.Amount > 0 {
				status = StatusRefunded
			}
		}
		if charge.FailureMessage != "" {
			failureReason = charge.FailureMessage
		}
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		failureReason = intent.LastPaymentError.Msg
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	return PaymentDetails{
		Provider:      "stripe",
		IntentID:      intent.ID,
		Status:        status,
		Amount:        intent.Amount,
		Currency:      currency,
		FailureReason: failureReason,
		RefundedAt:    refundedAt,
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

var _ Provider = (*StripeProvider)(nil)
