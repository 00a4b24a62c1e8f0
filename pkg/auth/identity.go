package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig drives authentication, CORS and rate limiting. Signing keys
// verify the X-User-Signature header; the core trusts the resulting
// user id and does no credential verification of its own.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	FrontendKeys   map[string]struct{}
	BackendKeys    map[string]struct{}
	AdminKeys      map[string]struct{}
	SigningKeys    map[string]struct{}
	AllowUnauth    bool
}

type ctxUserKey struct{}

// UserIDFromContext returns the signature-verified user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxUserKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithUserID returns a context carrying a verified user id. Exposed for
// tests and for the websocket upgrade path, which verifies out of band.
func WithUserID(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, user)
}

// VerifySignature checks sig against HMAC-SHA256(key, userID) for every
// configured signing key.
func VerifySignature(userID, sig string, keys map[string]struct{}) bool {
	for k := range keys {
		mac := hmac.New(sha256.New, []byte(k))
		mac.Write([]byte(userID))
		expected := hex.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

// authenticate resolves the caller role from the API key in the
// Authorization header (or X-API-Key) against the configured key sets.
func authenticate(r *http.Request, cfg SecConfig) (Role, string, bool) {
	key := strings.TrimSpace(r.Header.Get("X-API-Key"))
	if key == "" {
		h := r.Header.Get("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			key = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if key == "" {
		return RoleUnauth, clientIP(r), false
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key, true
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key, true
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key, true
	}
	return RoleUnauth, key, false
}

// RoleFromRequest maps the role header set by the middleware back to a
// Role for handlers that gate on it.
func RoleFromRequest(r *http.Request) Role {
	switch r.Header.Get("X-Role-Name") {
	case "admin":
		return RoleAdmin
	case "backend":
		return RoleBackend
	case "frontend":
		return RoleFrontend
	}
	return RoleUnauth
}
