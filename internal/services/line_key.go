package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Line keys are the stable handles clients use to address a cart line.
// User carts key lines by product ID. Anonymous carts key lines by product ID
// plus the millisecond timestamp the entry was first added, which keeps keys
// stable across merges of the same blob. All encoding and decoding lives here
// so the two formats never leak into callers.

const anonLineKeyPrefix = "anonymous_"

func userLineKey(productID string) string {
	return productID
}

func anonLineKey(productID string, addedAt time.Time) string {
	return fmt.Sprintf("%s%s_%d", anonLineKeyPrefix, productID, addedAt.UTC().UnixMilli())
}

// parseAnonLineKey splits an anonymous line key back into its product ID and
// added-at timestamp. ok is false for keys in any other format.
func parseAnonLineKey(key string) (productID string, addedAt time.Time, ok bool) {
	rest, found := strings.CutPrefix(key, anonLineKeyPrefix)
	if !found {
		return "", time.Time{}, false
	}
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return "", time.Time{}, false
	}
	millis, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return rest[:idx], time.UnixMilli(millis).UTC(), true
}
