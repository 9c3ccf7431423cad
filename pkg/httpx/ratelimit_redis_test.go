package httpx_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := startRedis(t)
	limiter := httpx.NewRedisLimiter(client)
	ctx := context.Background()
	cfg := httpx.RateLimitConfig{Name: "redis-test", RequestsPerWindow: 2, Window: time.Minute}

	for range 2 {
		ok, _, err := limiter.Allow(ctx, cfg, "ip:198.51.100.1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, retry, err := limiter.Allow(ctx, cfg, "ip:198.51.100.1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Positive(t, retry)

	ok, _, err = limiter.Allow(ctx, cfg, "ip:198.51.100.2")
	require.NoError(t, err)
	require.True(t, ok)
}
