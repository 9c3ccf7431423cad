package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/stretchr/testify/require"
)

func TestRateLimitLockoutCycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	rl := e.rateLimit
	const ip = "10.0.0.1"

	for i := 1; i < DefaultMaxAttempts; i++ {
		n, err := rl.RecordAttempt(ctx, ip, domain.ActionLogin)
		require.NoError(t, err)
		require.Equal(t, i, n)

		blocked, err := rl.IsBlocked(ctx, ip, domain.ActionLogin)
		require.NoError(t, err)
		require.False(t, blocked, "attempt %d must not lock", i)
	}

	remaining, err := rl.RemainingAttempts(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.Equal(t, 1, remaining)

	n, err := rl.RecordAttempt(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxAttempts, n)

	blocked, err := rl.IsBlocked(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.True(t, blocked)

	left, err := rl.LockoutRemaining(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.Equal(t, DefaultLockoutDuration, left)

	// Other actions and other addresses are unaffected.
	blocked, err = rl.IsBlocked(ctx, ip, domain.ActionPasswordReset)
	require.NoError(t, err)
	require.False(t, blocked)
	blocked, err = rl.IsBlocked(ctx, "10.0.0.2", domain.ActionLogin)
	require.NoError(t, err)
	require.False(t, blocked)

	e.clock.Advance(DefaultLockoutDuration)

	blocked, err = rl.IsBlocked(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.False(t, blocked, "a lock ending exactly now no longer holds")

	n, err = rl.RecordAttempt(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.Equal(t, 1, n, "an expired lock restarts the count")

	blocked, err = rl.IsBlocked(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestRateLimitResetAndUnlock(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	rl := e.rateLimit
	const ip = "10.0.0.9"

	for range DefaultMaxAttempts {
		_, err := rl.RecordAttempt(ctx, ip, domain.ActionLogin)
		require.NoError(t, err)
	}
	_, err := rl.RecordAttempt(ctx, ip, domain.ActionPasswordReset)
	require.NoError(t, err)

	locked, err := rl.BlockedIPs(ctx)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	require.Equal(t, ip, locked[0].IPAddress)

	require.NoError(t, rl.UnlockIP(ctx, ip))

	blocked, err := rl.IsBlocked(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.False(t, blocked)

	remaining, err := rl.RemainingAttempts(ctx, ip, domain.ActionPasswordReset)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxAttempts, remaining, "unlock clears every action of the address")

	_, err = rl.RecordAttempt(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.NoError(t, rl.ResetAttempts(ctx, ip, domain.ActionLogin))
	remaining, err = rl.RemainingAttempts(ctx, ip, domain.ActionLogin)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxAttempts, remaining)

	// Resetting an unknown pair is a no-op.
	require.NoError(t, rl.ResetAttempts(ctx, "192.0.2.1", domain.ActionLogin))
}

func TestRateLimitCustomThreshold(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	rl := &RateLimitService{Store: e.store, MaxAttempts: 2, LockoutDuration: time.Minute, Now: e.clock.Now}

	_, err := rl.RecordAttempt(ctx, "h", domain.ActionLogin)
	require.NoError(t, err)
	_, err = rl.RecordAttempt(ctx, "h", domain.ActionLogin)
	require.NoError(t, err)

	left, err := rl.LockoutRemaining(ctx, "h", domain.ActionLogin)
	require.NoError(t, err)
	require.Equal(t, time.Minute, left)

	left, err = rl.LockoutRemaining(ctx, "other", domain.ActionLogin)
	require.NoError(t, err)
	require.Zero(t, left)
}
