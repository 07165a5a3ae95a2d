package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taracart/api/internal/platform/httpx"
)

// KeyFunc derives the limiter identifier for an incoming request.
type KeyFunc func(r *http.Request) string

// RouteIPKey keys windows by route pattern and caller IP.
func RouteIPKey(route string) KeyFunc {
	return func(r *http.Request) string {
		return route + ":" + clientIP(r)
	}
}

// Middleware rejects requests over the limit with 429 and standard headers.
func Middleware(limiter *Limiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = func(r *http.Request) string { return clientIP(r) }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			result := limiter.Allow(key(r))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
			if !result.Allowed {
				retryAfter := time.Until(result.ResetTime)
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests; slow down and retry shortly", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
