package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/carljohntruya-art/taskflow-auth/app/ratelimit"
)

// PrincipalFunc extracts the rate-limit actor from a request (user id or IP).
type PrincipalFunc func(*http.Request) string

// PrincipalIP identifies callers by client IP, honoring X-Forwarded-For.
func PrincipalIP() PrincipalFunc {
	return func(r *http.Request) string {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			parts := strings.Split(xf, ",")
			if len(parts) > 0 {
				return "ip:" + strings.TrimSpace(parts[0])
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil && host != "" {
			return "ip:" + host
		}
		return "ip:unknown"
	}
}

// PrincipalUserOrIP prefers the authenticated user id, falling back to IP.
func PrincipalUserOrIP() PrincipalFunc {
	return func(r *http.Request) string {
		if uid, ok := UserIDFromContext(r.Context()); ok {
			return fmt.Sprintf("user:%d", uid)
		}
		return PrincipalIP()(r)
	}
}

// RateLimit rejects requests once the limiter's fixed window for the action
// is exhausted. Auth endpoints consult the limiter inside the service layer
// instead, so they can report domain-specific wait messages; this middleware
// covers the general API budget on protected routes.
func RateLimit(limiter *ratelimit.Limiter, action ratelimit.Action, principal PrincipalFunc) func(http.Handler) http.Handler {
	if principal == nil {
		principal = PrincipalIP()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Allow(r.Context(), action, principal(r))
			if !decision.Allowed {
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", decision.RetryAfter))
				}
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
