package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/stretchr/testify/require"
)

func TestDomainAllowList(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	ok, err := e.domains.IsAllowed(ctx, "Example.COM")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.domains.IsAllowed(ctx, "corp.test")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.domains.Add(ctx, " Corp.Test "))
	require.NoError(t, e.domains.Add(ctx, "corp.test"), "adding twice is not an error")

	var verr *ValidationError
	require.ErrorAs(t, e.domains.Add(ctx, "user@corp.test"), &verr)
	require.ErrorAs(t, e.domains.Add(ctx, "localhost"), &verr)

	active, err := e.domains.ListActive(ctx)
	require.NoError(t, err)

	var id string
	for _, d := range active {
		if d.Domain == "corp.test" {
			id = d.ID
		}
	}
	require.NotEmpty(t, id)

	require.NoError(t, e.domains.Deactivate(ctx, id))
	ok, err = e.domains.IsAllowed(ctx, "corp.test")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = e.auth.Register(ctx, RegisterInput{
		Fullname: "Carol", Username: "carol", Email: "carol@corp.test",
		Password: testPassword, PasswordConfirm: testPassword,
	}, testClient)
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "email")

	require.NoError(t, e.domains.Activate(ctx, id))
	_, err = e.auth.Register(ctx, RegisterInput{
		Fullname: "Carol", Username: "carol", Email: "carol@corp.test",
		Password: testPassword, PasswordConfirm: testPassword,
	}, testClient)
	require.NoError(t, err)

	require.ErrorIs(t, e.domains.Deactivate(ctx, "missing"), ErrDomainNotFound)
}

func TestHousekeepingRunOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)
	bob := e.createUser(t, "bob", domain.RoleUser)
	e.enableTOTP(t, bob)

	_, token, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "agent")
	require.NoError(t, err)
	_, err = e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.NoError(t, err)
	_, _, err = e.mfa.BeginChallenge(ctx, bob.ID, "10.0.0.2", "agent")
	require.NoError(t, err)

	e.clock.Advance(DefaultSessionTTL)

	hk := NewHousekeepingService(e.sessions, e.mfa, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	require.Equal(t, time.Hour, hk.Interval)
	hk.RunOnce(ctx)

	_, err = e.sessions.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionInvalid)

	setups, logins, err := e.mfa.CleanExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, setups, "the pass already removed the lapsed setup")
	require.Zero(t, logins)

	active, err := e.sessions.ActiveSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestHousekeepingStartStop(t *testing.T) {
	e := newTestEnv(t)
	hk := NewHousekeepingService(e.sessions, e.mfa, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	hk.Start()
	hk.Stop()
}
