package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

const limiterTimeout = 250 * time.Millisecond

// RateLimit limits each client IP to limit requests per window. Limiter
// errors fail open and are logged.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limiterTimeout)
			allowed, err := limiter.Allow(ctx, "api:"+clientIP(r), limit, window)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(window/time.Second))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers X-Forwarded-For, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalLimiter is an in-process domain.RateLimiter keyed token buckets,
// used when no shared Redis limiter is configured.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLocalLimiter creates an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow implements domain.RateLimiter. The bucket refills limit tokens per
// window with a burst of limit.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(), nil
}

var _ domain.RateLimiter = (*LocalLimiter)(nil)
