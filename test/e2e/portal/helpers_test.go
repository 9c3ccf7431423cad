package portal_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/portal/internal/portal/app"
	"github.com/aussiebroadwan/portal/internal/portal/mailer"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

/*
 * End-to-end helpers: the portal runs in process against real Redis and
 * RabbitMQ containers, and mail is read back off the broker.
 */

const (
	bootstrapToken = "test-bootstrap-token-12345"
	mailQueue      = "portal.mail.e2e"
	rootPassword   = "root password for e2e"
	userPassword   = "user password for e2e"
)

type portalEnv struct {
	URL   string
	Redis *redis.Client
	mail  *amqp.Channel
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return container
}

// setupPortal starts the containers and an in-process portal wired to them.
// Only one portal may run per test binary since metrics use the default
// registry.
func setupPortal(t *testing.T) *portalEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e containers in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	redisC := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	})
	redisAddr, err := redisC.Endpoint(ctx, "")
	require.NoError(t, err)

	rabbitC := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
	})
	amqpURL, err := rabbitC.PortEndpoint(ctx, "5672/tcp", "amqp")
	require.NoError(t, err)
	amqpURL += "/"

	dir := t.TempDir()
	// Tests make many rapid requests from one address.
	generous := func(name string) httpx.RateLimitConfig {
		return httpx.RateLimitConfig{Name: name, RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
	}
	cfg := app.Config{
		Issuer:               "portal-e2e",
		BaseURL:              "http://portal.e2e",
		BootstrapToken:       bootstrapToken,
		DatabaseFile:         filepath.Join(dir, "portal.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		MasterKey:            "e2e master key",
		SessionSecret:        "e2e session secret that is long enough",
		SessionTTL:           time.Hour,
		MaxLoginAttempts:     5,
		LockoutDuration:      time.Minute,
		MFASetupTTL:          time.Minute,
		MFAChallengeTTL:      time.Minute,
		MFAChallengeAttempts: 5,
		ResetTokenTTL:        time.Hour,
		AMQPURL:              amqpURL,
		MailQueue:            mailQueue,
		RedisAddr:            redisAddr,
		StrictLimit:          generous("strict"),
		ModerateLimit:        generous("moderate"),
		LenientLimit:         generous("lenient"),
		PublicLimit:          generous("public"),
		Env:                  "test",
		LogLevel:             "warn",
		LogFormat:            "json",
		ShutdownGracePeriod:  5 * time.Second,
		HousekeepingInterval: time.Hour,
	}

	application, err := app.New(cfg)
	require.NoError(t, err)
	application.Start()

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		if err := application.Shutdown(); err != nil {
			t.Logf("failed to shut down portal: %v", err)
		}
	})

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = rdb.Close() })

	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)

	return &portalEnv{URL: srv.URL, Redis: rdb, mail: ch}
}

// awaitMail pops messages off the mail queue until one of kind addressed to
// to arrives, and returns the token carried in its link.
func (e *portalEnv) awaitMail(t *testing.T, kind, to string) string {
	t.Helper()

	var token string
	require.Eventually(t, func() bool {
		d, ok, err := e.mail.Get(mailQueue, true)
		if err != nil || !ok {
			return false
		}
		var msg mailer.Message
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			return false
		}
		if msg.Kind != kind || msg.To != to {
			return false
		}
		link, err := url.Parse(msg.Link)
		if err != nil {
			return false
		}
		token = link.Query().Get("token")
		return token != ""
	}, 15*time.Second, 100*time.Millisecond)

	return token
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *portalapi.APIError
	require.True(t, errors.As(err, &apiErr), "expected *portalapi.APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
}
