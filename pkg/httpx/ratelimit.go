package httpx

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the throttle parameters of one profile.
type RateLimitConfig struct {
	Name              string
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Throttle profiles. They guard the HTTP surface and are independent of the
// login lockout kept in the database.
var (
	// StrictLimit guards credential endpoints.
	StrictLimit = RateLimitConfig{Name: "strict", RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	// ModerateLimit guards authenticated writes.
	ModerateLimit = RateLimitConfig{Name: "moderate", RequestsPerWindow: 30, Window: time.Minute, Burst: 30}

	LenientLimit = RateLimitConfig{Name: "lenient", RequestsPerWindow: 120, Window: time.Minute, Burst: 120}

	PublicLimit = RateLimitConfig{Name: "public", RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

// RateLimitFromEnv overrides a profile from RATELIMIT_{prefix}_{REQUESTS,WINDOW_SEC,BURST}.
func RateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// Limiter decides whether one more request for key fits in cfg. retryAfter
// is meaningful only when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, cfg RateLimitConfig, key string) (allowed bool, retryAfter time.Duration, err error)
}

// KeyExtractor groups requests for throttling (IP, user id, ...).
type KeyExtractor func(*http.Request) string

// UserOrIPKeyExtractor keys on the authenticated user and falls back to the IP.
func UserOrIPKeyExtractor(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + ClientIP(r)
}

// IPKeyExtractor keys on the client address.
func IPKeyExtractor(r *http.Request) string { return "ip:" + ClientIP(r) }

// MemoryLimiter is a per-process token bucket limiter.
type MemoryLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*rate.Limiter
	lastCleanup time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*rate.Limiter), lastCleanup: time.Now()}
}

func (m *MemoryLimiter) Allow(_ context.Context, cfg RateLimitConfig, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	bucketKey := cfg.Name + "|" + key
	lim, ok := m.buckets[bucketKey]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerWindow)/cfg.Window.Seconds()), cfg.Burst)
		m.buckets[bucketKey] = lim
	}
	m.cleanupLocked()
	m.mu.Unlock()

	if lim.Allow() {
		return true, 0, nil
	}

	r := lim.Reserve()
	delay := r.Delay()
	r.Cancel()
	return false, delay, nil
}

// cleanupLocked drops idle buckets every few minutes. A bucket holding its
// full burst has not been used recently.
func (m *MemoryLimiter) cleanupLocked() {
	if time.Since(m.lastCleanup) < 5*time.Minute {
		return
	}
	m.lastCleanup = time.Now()
	for k, lim := range m.buckets {
		if lim.Tokens() >= float64(lim.Burst()) {
			delete(m.buckets, k)
		}
	}
}

// RateLimitMiddleware throttles requests by key. Limiter errors fail open
// and are logged, so a Redis outage does not take the portal down.
func RateLimitMiddleware(limiter Limiter, cfg RateLimitConfig, keyFn KeyExtractor) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyFn(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			allowed, retryAfter, err := limiter.Allow(ctx, cfg, key)
			if err != nil {
				log.Error("rate limit backend failed, allowing request", "profile", cfg.Name, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := max(int(retryAfter.Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", cfg.Window.String())

				log.Warn("rate limit exceeded", "profile", cfg.Name, "key", key, "retry_after", secs)
				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					"Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
