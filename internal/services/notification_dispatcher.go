package services

import (
	"context"
	"errors"
	"time"
)

// NotificationMessage is the wire payload handed to the notification
// publisher. Rendering the message into channel-specific content happens in
// the consumer, not here.
type NotificationMessage struct {
	UserID  string         `json:"userId"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sentAt"`
}

// NotificationPublisher enqueues notification messages for asynchronous delivery.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// NotificationDispatcherDeps bundles collaborators for the dispatcher.
type NotificationDispatcherDeps struct {
	Publisher NotificationPublisher
	Clock     Clock
	Logger    func(context.Context, string, map[string]any)
}

type notificationDispatcher struct {
	publisher NotificationPublisher
	now       Clock
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationDispatcher constructs the fire-and-forget dispatcher.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationDispatcher{
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// Dispatch enqueues one notification. Publish failures are logged and
// swallowed; a notification must never fail the operation that produced it.
func (d *notificationDispatcher) Dispatch(ctx context.Context, userID string, kind NotificationKind, payload map[string]any) {
	if userID == "" {
		return
	}
	id, err := d.publisher.PublishNotification(ctx, NotificationMessage{
		UserID:  userID,
		Kind:    string(kind),
		Payload: payload,
		SentAt:  d.now(),
	})
	if err != nil {
		d.logger(ctx, "notify.publish_failed", map[string]any{
			"user_id": userID,
			"kind":    string(kind),
			"error":   err.Error(),
		})
		return
	}
	d.logger(ctx, "notify.published", map[string]any{
		"user_id":    userID,
		"kind":       string(kind),
		"message_id": id,
	})
}

var _ NotificationDispatcher = (*notificationDispatcher)(nil)
