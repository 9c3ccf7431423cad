package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceInfo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		ua      string
		os      string
		browser string
		device  string
	}{
		{
			name:    "chrome on windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			os:      "Windows",
			browser: "Chrome",
			device:  "Desktop",
		},
		{
			name:    "safari on iphone",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			os:      "iOS",
			browser: "Safari",
			device:  "Mobile",
		},
		{
			name:    "ipad is a tablet",
			ua:      "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			os:      "iOS",
			browser: "Safari",
			device:  "Tablet",
		},
		{
			name:    "firefox on android",
			ua:      "Mozilla/5.0 (Android 14; Mobile; rv:121.0) Gecko/121.0 Firefox/121.0",
			os:      "Android",
			browser: "Firefox",
			device:  "Mobile",
		},
		{
			name:    "edge on macos",
			ua:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0",
			os:      "macOS",
			browser: "Edge",
			device:  "Desktop",
		},
		{
			name:    "opera on linux",
			ua:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 OPR/106.0",
			os:      "Linux",
			browser: "Opera",
			device:  "Desktop",
		},
		{
			name:    "empty agent",
			ua:      "",
			os:      "Unknown",
			browser: "Unknown",
			device:  "Desktop",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := domain.ParseDeviceInfo(tc.ua, "10.0.0.1")
			require.Equal(t, tc.os, info.OS)
			require.Equal(t, tc.browser, info.Browser)
			require.Equal(t, tc.device, info.DeviceType)
			require.Equal(t, "10.0.0.1", info.IP)
		})
	}
}

func TestUserAuthority(t *testing.T) {
	t.Parallel()

	t.Run("custom role id wins over role tag", func(t *testing.T) {
		roleID := "01HROLE"
		u := domain.User{Role: domain.RoleAdmin, RoleID: &roleID}

		a := u.Authority()
		require.True(t, a.IsCustom())
		id, ok := a.CustomRoleID()
		require.True(t, ok)
		require.Equal(t, roleID, id)
		_, ok = a.SystemRole()
		require.False(t, ok)
	})

	t.Run("falls back to the system role", func(t *testing.T) {
		u := domain.User{Role: domain.RolePersonal}

		a := u.Authority()
		require.False(t, a.IsCustom())
		r, ok := a.SystemRole()
		require.True(t, ok)
		require.Equal(t, domain.RolePersonal, r)
	})

	t.Run("empty role id is ignored", func(t *testing.T) {
		empty := ""
		u := domain.User{Role: domain.RoleUser, RoleID: &empty}
		require.False(t, u.Authority().IsCustom())
	})
}

func TestRateLimitLockState(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	require.False(t, domain.RateLimit{}.LockedAt(now))
	require.True(t, domain.RateLimit{LockedUntil: &later}.LockedAt(now))
	require.False(t, domain.RateLimit{LockedUntil: &earlier}.LockedAt(now))
	require.True(t, domain.RateLimit{LockedUntil: &earlier}.LockExpiredAt(now))
	require.False(t, domain.RateLimit{LockedUntil: &now}.LockedAt(now), "lock must be strictly in the future")
}
