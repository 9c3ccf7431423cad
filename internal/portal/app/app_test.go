package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/pkg/httpx"
)

func TestNewWiresRouter(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Issuer:               "portal-test",
		BaseURL:              "http://portal.test",
		DatabaseFile:         filepath.Join(dir, "portal.db"),
		PepperFile:           filepath.Join(dir, "pepper"),
		MasterKey:            "test-master-key",
		SessionTTL:           time.Hour,
		MaxLoginAttempts:     5,
		LockoutDuration:      time.Minute,
		MFASetupTTL:          time.Minute,
		MFAChallengeTTL:      time.Minute,
		MFAChallengeAttempts: 5,
		ResetTokenTTL:        time.Hour,
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		Port:                 0,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
		StrictLimit:          httpx.StrictLimit,
		ModerateLimit:        httpx.ModerateLimit,
		LenientLimit:         httpx.LenientLimit,
		PublicLimit:          httpx.PublicLimit,
	}

	application, err := New(cfg)
	require.NoError(t, err)
	require.Nil(t, application.bootstrapService)

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	application.Start()
	require.NoError(t, application.Shutdown())
}
