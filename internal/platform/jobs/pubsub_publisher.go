package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/services"
)

// PubSubNotificationPublisher publishes customer notification messages to a
// Pub/Sub topic consumed by the delivery worker.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishNotification enqueues a notification message on the configured topic.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, message services.NotificationMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "userId", message.UserID)
	setAttr(attrs, "kind", message.Kind)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

// PubSubGatewayEventPublisher publishes verified gateway webhook events to a
// Pub/Sub topic. The reconciliation subscriber consumes them so webhook
// handlers never block on reconciliation work.
type PubSubGatewayEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubGatewayEventPublisher constructs a Pub/Sub backed gateway event publisher.
func NewPubSubGatewayEventPublisher(topic *pubsub.Topic) (*PubSubGatewayEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub gateway event publisher: topic is required")
	}
	return &PubSubGatewayEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishGatewayEvent enqueues one verified gateway event.
func (p *PubSubGatewayEventPublisher) PublishGatewayEvent(ctx context.Context, event payments.Event) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub gateway event publisher: not initialised")
	}

	data, err := p.marshal(gatewayEventMessage{
		ID:       event.ID,
		Provider: event.Provider,
		Type:     string(event.Type),
		IntentID: event.IntentID,
		Amount:   event.Amount,
		Currency: event.Currency,
		Reason:   event.Reason,
		Metadata: event.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("marshal gateway event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "provider", event.Provider)
	setAttr(attrs, "type", string(event.Type))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish gateway event: %w", err)
	}
	return id, nil
}

// DecodeGatewayEvent parses a queued gateway event message back into the
// form HandleGatewayEvent consumes.
func DecodeGatewayEvent(data []byte) (payments.Event, error) {
	var msg gatewayEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return payments.Event{}, fmt.Errorf("decode gateway event: %w", err)
	}
	if strings.TrimSpace(msg.ID) == "" {
		return payments.Event{}, errors.New("decode gateway event: missing event id")
	}
	return payments.Event{
		ID:       msg.ID,
		Provider: msg.Provider,
		Type:     payments.EventType(msg.Type),
		IntentID: msg.IntentID,
		Amount:   msg.Amount,
		Currency: msg.Currency,
		Reason:   msg.Reason,
		Metadata: msg.Metadata,
	}, nil
}

type gatewayEventMessage struct {
	ID       string            `json:"id"`
	Provider string            `json:"provider"`
	Type     string            `json:"type"`
	IntentID string            `json:"intentId"`
	Amount   int64             `json:"amount,omitempty"`
	Currency string            `json:"currency,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.NotificationPublisher = (*PubSubNotificationPublisher)(nil)
var _ services.GatewayEventPublisher = (*PubSubGatewayEventPublisher)(nil)
