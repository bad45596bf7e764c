package services

import (
	"testing"
	"time"
)

func TestAnonLineKeyRoundTrip(t *testing.T) {
	addedAt := time.Date(2025, 6, 1, 12, 0, 0, 500*int(time.Millisecond), time.UTC)
	key := anonLineKey("p1", addedAt)

	productID, parsed, ok := parseAnonLineKey(key)
	if !ok {
		t.Fatalf("round trip failed for %q", key)
	}
	if productID != "p1" {
		t.Fatalf("expected p1, got %q", productID)
	}
	if !parsed.Equal(addedAt) {
		t.Fatalf("expected %v, got %v", addedAt, parsed)
	}
}

func TestAnonLineKeySurvivesUnderscoredProductID(t *testing.T) {
	addedAt := time.UnixMilli(1748779200000).UTC()
	key := anonLineKey("bulk_grain_01", addedAt)

	productID, parsed, ok := parseAnonLineKey(key)
	if !ok || productID != "bulk_grain_01" || !parsed.Equal(addedAt) {
		t.Fatalf("unexpected parse of %q: %q %v %v", key, productID, parsed, ok)
	}
}

func TestParseAnonLineKeyRejectsMalformed(t *testing.T) {
	cases := []string{
		"p1",
		"anonymous_",
		"anonymous_p1",
		"anonymous_p1_",
		"anonymous__1748779200000",
		"anonymous_p1_notanumber",
	}
	for _, key := range cases {
		if _, _, ok := parseAnonLineKey(key); ok {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}
