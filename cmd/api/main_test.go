package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/freshbasket/api/internal/platform/config"
)

func TestWebhookSecretResolverSkipsGatewayRoutes(t *testing.T) {
	resolver := webhookSecretResolver(map[string]string{"default": "sek"})

	if name, ok := resolver(httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/stripe", nil)); ok {
		t.Fatalf("gateway route must not resolve the shared secret, got %q", name)
	}
	name, ok := resolver(httptest.NewRequest(http.MethodPost, "/v1/webhooks/partner/inventory", nil))
	if !ok || name != "default" {
		t.Fatalf("expected default secret for partner route, got %q ok=%v", name, ok)
	}
}

func TestWebhookSecretResolverHonoursExplicitGatewaySecret(t *testing.T) {
	resolver := webhookSecretResolver(map[string]string{
		"default":         "sek",
		"payments/stripe": "sek2",
	})

	name, ok := resolver(httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/stripe", nil))
	if !ok || name != "payments/stripe" {
		t.Fatalf("expected the explicitly configured gateway secret, got %q ok=%v", name, ok)
	}
}

func TestHMACMiddlewarePassesGatewaySignedWebhooks(t *testing.T) {
	cfg := config.Config{}
	cfg.Webhooks.SigningSecret = "sek"

	mw := buildHMACMiddleware(zap.NewNop(), cfg)
	if mw == nil {
		t.Fatalf("expected middleware to be built")
	}

	reached := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusAccepted)
	}))

	// Stripe signs with its own header; the shared-secret check must step
	// aside so the handler can verify the native signature.
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1735689600,v1=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !reached || rec.Code != http.StatusAccepted {
		t.Fatalf("gateway webhook must reach the handler, status=%d reached=%v", rec.Code, reached)
	}

	// Routes covered by the shared secret still require a valid signature.
	reached = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/webhooks/partner/inventory", strings.NewReader(`{}`)))
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned shared-secret webhook must be rejected, status=%d reached=%v", rec.Code, reached)
	}
}
