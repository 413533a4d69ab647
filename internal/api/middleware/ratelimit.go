package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/kchat-io/kchat/internal/metrics"
	"github.com/kchat-io/kchat/internal/store"
)

// Limit defines the budget for an endpoint bucket.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting on Redis counters,
// keyed by the authenticated tenant and user. It must run after auth.
type RateLimiter struct {
	redis     *store.RedisStore
	logger    zerolog.Logger
	limits    map[string]Limit
	whitelist map[string]bool // tenants exempt from limiting
}

// NewRateLimiter creates a new rate limiter. A nil redis store disables
// limiting entirely, which is the development default.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger, whitelist []string) *RateLimiter {
	rl := &RateLimiter{
		redis:     redis,
		logger:    logger,
		whitelist: make(map[string]bool),
		limits: map[string]Limit{
			"POST /groups":               {30, time.Hour},
			"DELETE /groups/:id":         {30, time.Hour},
			"POST /groups/:id/messages":  {60, time.Minute},
			"GET /groups/:id/messages":   {240, time.Minute},
			"PUT /messages/:id":          {60, time.Minute},
			"DELETE /messages/:id":       {60, time.Minute},
			"POST /private-messages":     {60, time.Minute},
			"GET /private-messages":      {240, time.Minute},
			"GET /conversations":         {240, time.Minute},
		},
	}

	for _, tenant := range whitelist {
		rl.whitelist[tenant] = true
	}

	return rl
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		principal := GetPrincipal(r.Context())
		if principal == nil || rl.whitelist[principal.Tenant] {
			next.ServeHTTP(w, r)
			return
		}

		bucket := r.Method + " " + NormalizePath(r.URL.Path)
		limit, ok := rl.limits[bucket]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		caller := principal.Tenant + ":" + principal.User
		count, err := rl.redis.IncrRateLimit(r.Context(), bucket, caller, limit.Window)
		if err != nil {
			// Redis trouble never blocks traffic
			rl.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Requests, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > limit.Requests {
			metrics.RateLimitHits.WithLabelValues(bucket).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
