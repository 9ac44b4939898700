package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/mindwave/backend/internal/metrics"
	"github.com/zhouzirui/mindwave/backend/pkg/utils"
)

// RateLimiter applies a token bucket per user id.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	logger zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter allows perMinute requests per user per minute. A
// non-positive value disables limiting.
func NewRateLimiter(perMinute int, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit:    rate.Inf,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
		limiters: make(map[string]*rate.Limiter),
	}
	if perMinute > 0 {
		rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
		rl.burst = perMinute
	}
	return rl
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit == rate.Inf {
		return true
	}
	return rl.limiter(key).Allow()
}

// Middleware keys requests by the authenticated user id.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := IdentityFrom(r.Context()).UserID
		if key == "" {
			key = r.RemoteAddr
		}
		if !rl.Allow(key) {
			metrics.SendsRejected.WithLabelValues("rate_limited").Inc()
			rl.logger.Warn().Str("key", key).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.retryAfter().Seconds())+1))
			utils.RespondError(w, http.StatusTooManyRequests, "too many messages, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) retryAfter() time.Duration {
	if rl.limit <= 0 || rl.limit == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(rl.limit))
}
