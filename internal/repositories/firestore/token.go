package firestore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// pageToken carries the cursor fields for ordered list queries. Name covers
// name-ordered listings, PlacedAt covers time-ordered ones; ID always breaks
// ties.
type pageToken struct {
	Name     string    `json:"n,omitempty"`
	PlacedAt time.Time `json:"t,omitempty"`
	ID       string    `json:"id"`
}

func encodePageToken(token pageToken) (string, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encode page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

func decodePageToken(encoded string) (*pageToken, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode page token: %w", err)
	}
	var token pageToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("decode page token: %w", err)
	}
	return &token, nil
}
