package auth

import (
	"net"
	"net/http"
	"strings"

	"chatcore/pkg/logger"
	"chatcore/pkg/utils"
)

// Middleware wraps an http.Handler with origin checks, API-key role
// resolution, per-key rate limiting and user signature verification.
// Health endpoints pass through untouched.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	pool := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin != "" {
				if !originAllowed(origin, cfg.AllowedOrigins) {
					logger.Warn("origin_rejected", "origin", origin, "path", r.URL.Path)
					utils.JSONError(w, "origin not allowed", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-User-ID, X-User-Signature")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if len(cfg.IPWhitelist) > 0 && !ipAllowed(clientIP(r), cfg.IPWhitelist) {
				utils.JSONError(w, "forbidden", http.StatusForbidden)
				return
			}

			role, key, ok := authenticate(r, cfg)
			if !ok && !cfg.AllowUnauth {
				logger.Warn("request_denied", "path", r.URL.Path, "remote", clientIP(r))
				utils.JSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			switch role {
			case RoleAdmin:
				r.Header.Set("X-Role-Name", "admin")
			case RoleBackend:
				r.Header.Set("X-Role-Name", "backend")
			case RoleFrontend:
				r.Header.Set("X-Role-Name", "frontend")
			default:
				r.Header.Set("X-Role-Name", "unauth")
			}

			if !pool.Allow(key) {
				logger.Warn("request_rate_limited", "path", r.URL.Path)
				utils.JSONError(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			// Frontend callers act on behalf of an end user and must
			// present a signed user id. Backend and admin callers may
			// pass one through unsigned.
			userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
			if role == RoleFrontend {
				sig := strings.TrimSpace(r.Header.Get("X-User-Signature"))
				if userID == "" || sig == "" {
					utils.JSONError(w, "missing user identity", http.StatusUnauthorized)
					return
				}
				if !VerifySignature(userID, sig, cfg.SigningKeys) {
					logger.Warn("signature_rejected", "user", userID, "path", r.URL.Path)
					utils.JSONError(w, "invalid user signature", http.StatusUnauthorized)
					return
				}
			}
			if userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}

			logger.Debug("request_allowed", "path", r.URL.Path, "role", r.Header.Get("X-Role-Name"))
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipAllowed(ip string, whitelist []string) bool {
	for _, w := range whitelist {
		if w == ip {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
