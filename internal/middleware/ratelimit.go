package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle caller keeps its bucket.
const visitorTTL = 10 * time.Minute

// RateLimiter hands out one token bucket per caller. The number of tracked
// callers is bounded; the least recently seen are evicted first.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	visitors *expirable.LRU[string, *rate.Limiter]
	logger   zerolog.Logger
}

// NewRateLimiter creates a limiter from the configured rate and burst.
func NewRateLimiter(cfg config.RateLimitConfig, logger zerolog.Logger) *RateLimiter {
	size := cfg.MaxVisitors
	if size <= 0 {
		size = 10000
	}
	return &RateLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
		visitors: expirable.NewLRU[string, *rate.Limiter](size, nil, visitorTTL),
		logger:   logger.With().Str("component", "rate_limiter").Logger(),
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.visitors.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.visitors.Add(key, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware rejects callers over their rate with 429. Authenticated callers
// are keyed by user id, anonymous ones by client address.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := visitorKey(r)
		if !l.Allow(key) {
			l.logger.Warn().
				Str("visitor", key).
				Str("path", r.URL.Path).
				Str("request_id", RequestIDFromContext(r.Context())).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.limit)))
			writeError(w, http.StatusTooManyRequests, model.ErrCodeRateLimited, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func visitorKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + id.UserID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 {
		return 60
	}
	secs := int(1 / float64(limit))
	if secs < 1 {
		return 1
	}
	return secs
}
