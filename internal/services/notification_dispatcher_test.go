package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
)

type stubNotificationPublisher struct {
	messages []NotificationMessage
	err      error
}

func (s *stubNotificationPublisher) PublishNotification(_ context.Context, message NotificationMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.messages = append(s.messages, message)
	return "msg_1", nil
}

func newDispatcher(t *testing.T, publisher NotificationPublisher) NotificationDispatcher {
	t.Helper()
	dispatcher, err := NewNotificationDispatcher(NotificationDispatcherDeps{
		Publisher: publisher,
		Clock:     func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func TestDispatchPublishesMessage(t *testing.T) {
	publisher := &stubNotificationPublisher{}
	dispatcher := newDispatcher(t, publisher)

	dispatcher.Dispatch(context.Background(), "u1", domain.NotificationOrderConfirmed, map[string]any{"order_id": "ord_1"})

	if len(publisher.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.UserID != "u1" || msg.Kind != "order_confirmed" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Payload["order_id"] != "ord_1" {
		t.Fatalf("payload not carried: %+v", msg.Payload)
	}
	if msg.SentAt.IsZero() {
		t.Fatalf("sent timestamp must be stamped")
	}
}

func TestDispatchSwallowsPublishFailure(t *testing.T) {
	publisher := &stubNotificationPublisher{err: errors.New("topic gone")}
	dispatcher := newDispatcher(t, publisher)

	// Must not panic or surface the error to the caller.
	dispatcher.Dispatch(context.Background(), "u1", domain.NotificationPaymentFailed, nil)
}

func TestDispatchSkipsEmptyUser(t *testing.T) {
	publisher := &stubNotificationPublisher{}
	dispatcher := newDispatcher(t, publisher)

	dispatcher.Dispatch(context.Background(), "", domain.NotificationOrderConfirmed, nil)
	if len(publisher.messages) != 0 {
		t.Fatalf("anonymous notifications must be dropped, got %d", len(publisher.messages))
	}
}
