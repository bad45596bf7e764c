package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/freshbasket/api/internal/payments"
)

func newWebhookRouter(t *testing.T, provider *stubWebhookProvider, publisher *stubEventPublisher) chi.Router {
	t.Helper()
	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	handlers, err := NewWebhookHandlers(WebhookHandlersDeps{
		Gateway: manager,
		Events:  publisher,
	})
	if err != nil {
		t.Fatalf("NewWebhookHandlers: %v", err)
	}
	r := chi.NewRouter()
	handlers.Routes(r)
	return r
}

func TestPaymentWebhookAcceptsVerifiedEvent(t *testing.T) {
	provider := &stubWebhookProvider{
		event: payments.Event{
			ID:       "evt_1",
			Type:     payments.EventPaymentSucceeded,
			IntentID: "pi_1",
			Amount:   3199,
			Currency: "usd",
		},
	}
	publisher := &stubEventPublisher{id: "msg_1"}
	router := newWebhookRouter(t, provider, publisher)

	req := httptest.NewRequest(http.MethodPost, "/payments/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if provider.gotSignature != "t=1,v1=abc" {
		t.Fatalf("signature = %q", provider.gotSignature)
	}
	if string(provider.gotPayload) != `{"id":"evt_1"}` {
		t.Fatalf("payload = %s", provider.gotPayload)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("published = %d, want 1", len(publisher.events))
	}
	if publisher.events[0].ID != "evt_1" || publisher.events[0].Provider != "stripe" {
		t.Fatalf("event = %+v", publisher.events[0])
	}

	var resp struct {
		Received bool   `json:"received"`
		EventID  string `json:"event_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received || resp.EventID != "evt_1" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	provider := &stubWebhookProvider{
		verifyErr: payments.NewError(payments.ErrorKindConfiguration, "", "webhook signature verification failed", nil),
	}
	publisher := &stubEventPublisher{}
	router := newWebhookRouter(t, provider, publisher)

	req := httptest.NewRequest(http.MethodPost, "/payments/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("published = %d, want 0", len(publisher.events))
	}
}

func TestPaymentWebhookQueueFailureAsksForRedelivery(t *testing.T) {
	provider := &stubWebhookProvider{
		event: payments.Event{ID: "evt_1", Type: payments.EventPaymentSucceeded},
	}
	publisher := &stubEventPublisher{err: errPublishDown}
	router := newWebhookRouter(t, provider, publisher)

	req := httptest.NewRequest(http.MethodPost, "/payments/stripe", strings.NewReader(`{"id":"evt_1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestPaymentWebhookRejectsEmptyBody(t *testing.T) {
	router := newWebhookRouter(t, &stubWebhookProvider{}, &stubEventPublisher{})

	req := httptest.NewRequest(http.MethodPost, "/payments/stripe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
