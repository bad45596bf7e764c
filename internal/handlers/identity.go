package handlers

import (
	"net/http"
	"strings"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/platform/auth"
)

// sessionIDHeader carries the opaque session identifier anonymous visitors
// use in place of a Firebase token.
const sessionIDHeader = "X-Session-Id"

// requestIdentity resolves the cart identity for a request. Authenticated
// callers win; otherwise the session header is used. ok is false when the
// request carries neither.
func requestIdentity(r *http.Request) (domain.Identity, bool) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			return domain.Identity{UserID: uid}, true
		}
	}
	if sid := strings.TrimSpace(r.Header.Get(sessionIDHeader)); sid != "" {
		return domain.Identity{SessionID: sid}, true
	}
	return domain.Identity{}, false
}

// requestUserID resolves the authenticated user, empty when the request is
// anonymous.
func requestUserID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil {
		return strings.TrimSpace(identity.UID)
	}
	return ""
}
