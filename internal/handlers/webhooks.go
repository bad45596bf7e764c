package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/platform/httpx"
	"github.com/freshbasket/api/internal/services"
)

const (
	maxWebhookBodySize    = 256 * 1024
	webhookRateLimit      = 120
	webhookRateWindow     = time.Minute
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookHandlers receives gateway callbacks, verifies their signatures and
// hands the normalised events to the async reconciliation pipeline. The HTTP
// response only acknowledges receipt; reconciliation outcome never leaks back
// to the gateway.
type WebhookHandlers struct {
	gateway *payments.Manager
	events  services.GatewayEventPublisher
	limiter rateLimiter
	logger  func(context.Context, string, map[string]any)
}

// WebhookHandlersDeps bundles the webhook handler dependencies.
type WebhookHandlersDeps struct {
	Gateway *payments.Manager
	Events  services.GatewayEventPublisher
	Logger  func(context.Context, string, map[string]any)
}

// NewWebhookHandlers constructs the gateway webhook handlers.
func NewWebhookHandlers(deps WebhookHandlersDeps) (*WebhookHandlers, error) {
	if deps.Gateway == nil {
		return nil, errors.New("webhook handlers: payment gateway is required")
	}
	if deps.Events == nil {
		return nil, errors.New("webhook handlers: event publisher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &WebhookHandlers{
		gateway: deps.Gateway,
		events:  deps.Events,
		limiter: newSimpleRateLimiter(webhookRateLimit, webhookRateWindow, time.Now),
		logger:  logger,
	}, nil
}

// Routes wires the webhook endpoints onto the /webhooks group.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.handlePaymentWebhook)
}

func (h *WebhookHandlers) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))

	if h.limiter != nil && !h.limiter.Allow(provider) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries", http.StatusTooManyRequests))
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	event, err := h.gateway.VerifyWebhook(provider, payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		h.writeVerifyError(ctx, w, provider, err)
		return
	}

	messageID, err := h.events.PublishGatewayEvent(ctx, event)
	if err != nil {
		h.logger(ctx, "webhook.publish_failed", map[string]any{
			"provider": provider,
			"event_id": event.ID,
			"error":    err.Error(),
		})
		// A 5xx makes the gateway redeliver, which the dedup store absorbs.
		httpx.WriteError(ctx, w, httpx.NewError("webhook_queue_unavailable", "event could not be queued", http.StatusServiceUnavailable))
		return
	}

	h.logger(ctx, "webhook.accepted", map[string]any{
		"provider":   provider,
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"message_id": messageID,
	})
	writeJSONResponse(w, http.StatusAccepted, webhookAckResponse{Received: true, EventID: event.ID})
}

func (h *WebhookHandlers) writeVerifyError(ctx context.Context, w http.ResponseWriter, provider string, err error) {
	if errors.Is(err, payments.ErrUnsupportedProvider) {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_provider", "unknown payment provider", http.StatusNotFound))
		return
	}
	h.logger(ctx, "webhook.verification_failed", map[string]any{
		"provider": provider,
		"error":    err.Error(),
	})
	httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
}

type webhookAckResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
}
