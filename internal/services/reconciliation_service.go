package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/payments"
	"github.com/freshbasket/api/internal/repositories"
)

const timeoutSweepBatchSize = 100

// ErrReconcileInvalidInput signals a malformed event or command.
var ErrReconcileInvalidInput = errors.New("reconciliation service: invalid input")

// ErrReconcileNotFound indicates the addressed order or transaction does not exist.
var ErrReconcileNotFound = errors.New("reconciliation service: not found")

// ErrReconcileInvalidState indicates the order or transaction is not in a
// state the requested operation can act on.
var ErrReconcileInvalidState = errors.New("reconciliation service: invalid state")

// ErrReconcileUnavailable indicates a backend failure.
var ErrReconcileUnavailable = errors.New("reconciliation service: unavailable")

// GatewayEventPublisher enqueues verified gateway events so webhook requests
// return quickly and gateway retries are absorbed by the queue instead of
// the request path.
type GatewayEventPublisher interface {
	PublishGatewayEvent(ctx context.Context, event payments.Event) (string, error)
}

// ReconciliationServiceDeps bundles collaborators for payment reconciliation.
type ReconciliationServiceDeps struct {
	Registry      repositories.Registry
	Payments      *payments.Manager
	Notifications NotificationDispatcher
	Clock         Clock
	Logger        func(context.Context, string, map[string]any)
}

type reconciliationService struct {
	registry repositories.Registry
	txns     repositories.PaymentTransactionRepository
	orders   repositories.OrderRepository
	events   repositories.WebhookEventRepository
	settings repositories.SettingsRepository
	gateway  *payments.Manager
	notify   NotificationDispatcher
	now      Clock
	logger   func(context.Context, string, map[string]any)
}

// NewReconciliationService wires the gateway event reconciler.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Registry == nil {
		return nil, errors.New("reconciliation service: registry is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("reconciliation service: payment manager is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("reconciliation service: notification dispatcher is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reconciliationService{
		registry: deps.Registry,
		txns:     deps.Registry.PaymentTransactions(),
		orders:   deps.Registry.Orders(),
		events:   deps.Registry.WebhookEvents(),
		settings: deps.Registry.Settings(),
		gateway:  deps.Payments,
		notify:   deps.Notifications,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// pendingNotification is assembled inside the reconciliation transaction and
// dispatched only after it commits, so a rolled-back transition never
// notifies and a replayed event never notifies twice.
type pendingNotification struct {
	userID  string
	kind    NotificationKind
	payload map[string]any
}

// HandleGatewayEvent applies one verified gateway event. The dedup record and
// the state transitions commit in a single unit of work; a replayed event ID
// collides on the dedup insert and the whole call degrades to a no-op.
func (s *reconciliationService) HandleGatewayEvent(ctx context.Context, event payments.Event) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("%w: event id is required", ErrReconcileInvalidInput)
	}
	if event.Type == payments.EventIgnored {
		return nil
	}

	var note *pendingNotification
	err := s.registry.RunInTx(ctx, func(txCtx context.Context) error {
		now := s.now()

		txn, txnFound, recovered, err := s.lookupTransaction(txCtx, event)
		if err != nil {
			return err
		}

		var order domain.Order
		if txnFound {
			order, err = s.orders.FindByID(txCtx, txn.OrderID)
			if err != nil {
				return err
			}
		}

		// Write phase. The dedup insert goes first so replays abort before
		// touching anything else.
		record := domain.WebhookEvent{
			ID:         event.ID,
			Provider:   event.Provider,
			Kind:       string(event.Type),
			ReceivedAt: now,
		}
		if txnFound {
			record.TransactionRef = txn.ID
		}
		record.ProcessedAt = &now
		if err := s.events.InsertNew(txCtx, record); err != nil {
			return err
		}

		if !txnFound {
			s.logger(txCtx, "reconcile.orphaned_event", map[string]any{
				"event_id":  event.ID,
				"intent_id": event.IntentID,
				"type":      string(event.Type),
			})
			return nil
		}

		if recovered {
			txn.UpdatedAt = now
			if err := s.txns.Update(txCtx, txn); err != nil {
				return err
			}
			s.logger(txCtx, "reconcile.gateway_ref_recovered", map[string]any{
				"transaction_id": txn.ID,
				"intent_id":      txn.GatewayID,
			})
		}

		note, err = s.applyEvent(txCtx, event, txn, order, now)
		return err
	})
	if err != nil {
		if isRepoConflict(err) {
			s.logger(ctx, "reconcile.duplicate_event", map[string]any{"event_id": event.ID})
			return nil
		}
		return s.translate(err)
	}

	if note != nil {
		s.notify.Dispatch(ctx, note.userID, note.kind, note.payload)
	}
	return nil
}

// applyEvent performs the transaction and order transitions for one event
// type. Transitions only fire from the expected source state; anything else
// is logged and skipped, which makes out-of-order deliveries harmless.
func (s *reconciliationService) applyEvent(ctx context.Context, event payments.Event, txn domain.PaymentTransaction, order domain.Order, now time.Time) (*pendingNotification, error) {
	switch event.Type {
	case payments.EventPaymentSucceeded:
		if txn.Status != domain.PaymentStatusPending {
			s.logger(ctx, "reconcile.transition_skipped", map[string]any{
				"event_id":   event.ID,
				"txn_id":     txn.ID,
				"txn_status": string(txn.Status),
			})
			return nil, nil
		}
		txn.Status = domain.PaymentStatusCompleted
		txn.UpdatedAt = now
		if err := s.txns.Update(ctx, txn); err != nil {
			return nil, err
		}
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusConfirmed
			order.ConfirmedAt = &now
			order.PaymentFailed = false
			order.UpdatedAt = now
			if err := s.orders.Update(ctx, order); err != nil {
				return nil, err
			}
		}
		return &pendingNotification{
			userID: order.UserID,
			kind:   domain.NotificationOrderConfirmed,
			payload: map[string]any{
				"order_id":     order.ID,
				"order_number": order.OrderNumber,
				"amount":       txn.AmountCents,
				"currency":     txn.Currency,
			},
		}, nil

	case payments.EventPaymentFailed:
		if txn.Status != domain.PaymentStatusPending {
			s.logger(ctx, "reconcile.transition_skipped", map[string]any{
				"event_id":   event.ID,
				"txn_id":     txn.ID,
				"txn_status": string(txn.Status),
			})
			return nil, nil
		}
		txn.Status = domain.PaymentStatusFailed
		txn.FailureReason = event.Reason
		txn.UpdatedAt = now
		if err := s.txns.Update(ctx, txn); err != nil {
			return nil, err
		}
		if !order.PaymentFailed {
			order.PaymentFailed = true
			order.UpdatedAt = now
			if err := s.orders.Update(ctx, order); err != nil {
				return nil, err
			}
		}
		return &pendingNotification{
			userID: order.UserID,
			kind:   domain.NotificationPaymentFailed,
			payload: map[string]any{
				"order_id":     order.ID,
				"order_number": order.OrderNumber,
				"reason":       event.Reason,
			},
		}, nil

	case payments.EventPaymentRefunded:
		if txn.Status != domain.PaymentStatusCompleted {
			s.logger(ctx, "reconcile.transition_skipped", map[string]any{
				"event_id":   event.ID,
				"txn_id":     txn.ID,
				"txn_status": string(txn.Status),
			})
			return nil, nil
		}
		_, note, err := s.markRefunded(ctx, txn, order, event.Reason, now)
		return note, err

	default:
		return nil, nil
	}
}

// Refund issues a gateway refund for the order's completed transaction and
// flips both records to refunded. A nil amount refunds in full.
func (s *reconciliationService) Refund(ctx context.Context, cmd RefundOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrReconcileInvalidInput)
	}
	if cmd.Amount != nil && *cmd.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: refund amount must be positive", ErrReconcileInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	txns, err := s.txns.ListByOrder(ctx, orderID)
	if err != nil {
		return Order{}, s.translate(err)
	}
	var completed *domain.PaymentTransaction
	for i := range txns {
		if txns[i].Status == domain.PaymentStatusCompleted {
			completed = &txns[i]
		}
	}
	if completed == nil {
		return Order{}, fmt.Errorf("%w: order %s has no completed payment", ErrReconcileInvalidState, orderID)
	}
	if cmd.Amount != nil && *cmd.Amount > completed.AmountCents {
		return Order{}, fmt.Errorf("%w: refund exceeds captured amount", ErrReconcileInvalidInput)
	}

	_, err = s.gateway.Refund(ctx, "", payments.RefundRequest{
		IntentID:       completed.GatewayID,
		Amount:         cmd.Amount,
		Reason:         cmd.Reason,
		IdempotencyKey: "refund_" + completed.ID,
		Metadata: map[string]string{
			"order_id":       order.ID,
			"transaction_id": completed.ID,
		},
	})
	if err != nil {
		return Order{}, err
	}

	var saved Order
	var note *pendingNotification
	err = s.registry.RunInTx(ctx, func(txCtx context.Context) error {
		txn, err := s.txns.FindByID(txCtx, completed.ID)
		if err != nil {
			return err
		}
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if txn.Status == domain.PaymentStatusRefunded {
			saved = current
			return nil
		}
		saved, note, err = s.markRefunded(txCtx, txn, current, cmd.Reason, s.now())
		return err
	})
	if err != nil {
		return Order{}, s.translate(err)
	}
	s.logger(ctx, "reconcile.refunded", map[string]any{
		"order_id": orderID,
		"actor_id": cmd.ActorID,
		"reason":   cmd.Reason,
	})
	if note != nil {
		s.notify.Dispatch(ctx, note.userID, note.kind, note.payload)
	}
	return saved, nil
}

func (s *reconciliationService) markRefunded(ctx context.Context, txn domain.PaymentTransaction, order domain.Order, reason string, now time.Time) (domain.Order, *pendingNotification, error) {
	txn.Status = domain.PaymentStatusRefunded
	txn.UpdatedAt = now
	if err := s.txns.Update(ctx, txn); err != nil {
		return domain.Order{}, nil, err
	}
	if order.Status != domain.OrderStatusRefunded {
		order.Status = domain.OrderStatusRefunded
		order.UpdatedAt = now
		if err := s.orders.Update(ctx, order); err != nil {
			return domain.Order{}, nil, err
		}
	}
	return order, &pendingNotification{
		userID: order.UserID,
		kind:   domain.NotificationOrderRefunded,
		payload: map[string]any{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"amount":       txn.AmountCents,
			"currency":     txn.Currency,
			"reason":       reason,
		},
	}, nil
}

// SweepPendingTimeouts notifies customers whose payment has sat pending
// longer than the configured window. Transactions are notified once and left
// pending; the gateway remains the source of truth for the final outcome.
func (s *reconciliationService) SweepPendingTimeouts(ctx context.Context) (int, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return 0, s.translate(err)
	}
	now := s.now()
	cutoff := now.Add(-settings.PaymentTimeout)

	stale, err := s.txns.ListPendingOlderThan(ctx, cutoff, timeoutSweepBatchSize)
	if err != nil {
		return 0, s.translate(err)
	}

	notified := 0
	for _, txn := range stale {
		if txn.TimeoutNotifiedAt != nil {
			continue
		}
		order, err := s.orders.FindByID(ctx, txn.OrderID)
		if err != nil {
			s.logger(ctx, "reconcile.sweep_order_missing", map[string]any{
				"txn_id":   txn.ID,
				"order_id": txn.OrderID,
				"error":    err.Error(),
			})
			continue
		}
		stamp := now
		txn.TimeoutNotifiedAt = &stamp
		txn.UpdatedAt = now
		if err := s.txns.Update(ctx, txn); err != nil {
			s.logger(ctx, "reconcile.sweep_stamp_failed", map[string]any{
				"txn_id": txn.ID,
				"error":  err.Error(),
			})
			continue
		}
		s.notify.Dispatch(ctx, order.UserID, domain.NotificationPaymentTimeout, map[string]any{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"pending_for":  now.Sub(txn.CreatedAt).String(),
		})
		notified++
	}
	return notified, nil
}

// lookupTransaction resolves the event to its transaction. The primary key is
// the stored gateway intent ID; when that reference was never persisted, the
// transaction_id the intent was created with comes back in the event metadata
// and the lookup falls through to it. The recovered flag tells the caller to
// re-stamp the gateway ID during the write phase so later events resolve
// directly. This function only reads.
func (s *reconciliationService) lookupTransaction(ctx context.Context, event payments.Event) (domain.PaymentTransaction, bool, bool, error) {
	intentID := strings.TrimSpace(event.IntentID)
	if intentID != "" {
		txn, err := s.txns.FindByGatewayID(ctx, intentID)
		if err == nil {
			return txn, true, false, nil
		}
		if !isRepoNotFound(err) {
			return domain.PaymentTransaction{}, false, false, err
		}
	}

	ref := strings.TrimSpace(event.Metadata["transaction_id"])
	if ref == "" {
		return domain.PaymentTransaction{}, false, false, nil
	}
	txn, err := s.txns.FindByID(ctx, ref)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.PaymentTransaction{}, false, false, nil
		}
		return domain.PaymentTransaction{}, false, false, err
	}
	recovered := false
	if intentID != "" && txn.GatewayID == "" {
		txn.GatewayID = intentID
		recovered = true
	}
	return txn, true, recovered, nil
}

func (s *reconciliationService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrReconcileInvalidInput),
		errors.Is(err, ErrReconcileNotFound),
		errors.Is(err, ErrReconcileInvalidState):
		return err
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrReconcileNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrReconcileUnavailable, err)
	}
}

var _ ReconciliationService = (*reconciliationService)(nil)
