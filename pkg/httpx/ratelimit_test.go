package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.ClientIP(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.ClientIP(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.ClientIP(req))
	})
}

func TestUserOrIPKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	require.Equal(t, "ip:10.0.0.1", httpx.UserOrIPKeyExtractor(req))

	req = req.WithContext(httpx.WithUserID(req.Context(), "01J0USER"))
	require.Equal(t, "user:01J0USER", httpx.UserOrIPKeyExtractor(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{Name: "test", RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
	h := httpx.RateLimitMiddleware(httpx.NewMemoryLimiter(), cfg, httpx.IPKeyExtractor)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for range 3 {
		require.Equal(t, http.StatusOK, hit("192.0.2.1").Code)
	}

	rec := hit("192.0.2.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))

	// Other clients keep their own bucket.
	require.Equal(t, http.StatusOK, hit("192.0.2.2").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, httpx.RateLimitConfig, string) (bool, time.Duration, error) {
	return false, 0, errors.New("backend down")
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	h := httpx.RateLimitMiddleware(failingLimiter{}, httpx.StrictLimit, httpx.IPKeyExtractor)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "1000")
	t.Setenv("RATELIMIT_STRICT_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_STRICT_BURST", "-4")

	cfg := httpx.RateLimitFromEnv("STRICT", httpx.StrictLimit)
	require.Equal(t, 1000, cfg.RequestsPerWindow)
	require.Equal(t, 30*time.Second, cfg.Window)
	require.Equal(t, httpx.StrictLimit.Burst, cfg.Burst)
	require.Equal(t, "strict", cfg.Name)
}
