package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSessionCreateAndValidate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	sess, token, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEqual(t, token, sess.TokenHash, "only the fingerprint is stored")
	require.Equal(t, cryptox.FingerprintToken(token), sess.TokenHash)
	require.Equal(t, e.clock.Now().Add(DefaultSessionTTL), sess.ExpiresAt)

	got, err := e.sessions.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)

	_, err = e.sessions.Validate(ctx, "bogus")
	require.ErrorIs(t, err, ErrSessionInvalid)
	_, err = e.sessions.Validate(ctx, "")
	require.ErrorIs(t, err, ErrSessionInvalid)

	e.clock.Advance(DefaultSessionTTL)
	_, err = e.sessions.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionInvalid, "an expired session behaves as absent")
}

func TestDeactivateOthersKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)
	other := e.createUser(t, "bob", domain.RoleUser)

	var tokens []string
	for range 4 {
		_, tok, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "agent")
		require.NoError(t, err)
		tokens = append(tokens, tok)
		e.clock.Advance(time.Second)
	}
	_, otherToken, err := e.sessions.Create(ctx, other.ID, "10.0.0.2", "agent")
	require.NoError(t, err)

	current := tokens[2]
	n, err := e.sessions.DeactivateOthers(ctx, u.ID, current)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	active, err := e.sessions.ActiveSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, cryptox.FingerprintToken(current), active[0].TokenHash)

	_, err = e.sessions.Validate(ctx, otherToken)
	require.NoError(t, err, "other users are untouched")

	n, err = e.sessions.DeactivateAll(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	active, err = e.sessions.ActiveSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestActiveSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	first, _, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "a")
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	second, _, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "b")
	require.NoError(t, err)

	active, err := e.sessions.ActiveSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, second.ID, active[0].ID)
	require.Equal(t, first.ID, active[1].ID)
}

func TestRevokeChecksOwnership(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	alice := e.createUser(t, "alice", domain.RoleUser)
	bob := e.createUser(t, "bob", domain.RoleUser)

	sess, token, err := e.sessions.Create(ctx, alice.ID, "10.0.0.1", "agent")
	require.NoError(t, err)

	require.ErrorIs(t, e.sessions.Revoke(ctx, e.actor(bob), sess.ID), ErrSessionForbidden)
	_, err = e.sessions.Validate(ctx, token)
	require.NoError(t, err, "a forbidden revoke changes nothing")

	require.ErrorIs(t, e.sessions.Revoke(ctx, e.actor(alice), "missing"), ErrSessionNotFound)

	require.NoError(t, e.sessions.Revoke(ctx, e.actor(alice), sess.ID))
	_, err = e.sessions.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.Equal(t, 1, e.events.count(EventSessionRevoked))
}

func TestRenewAndCleanExpired(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	kept, keptToken, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "a")
	require.NoError(t, err)
	_, staleToken, err := e.sessions.Create(ctx, u.ID, "10.0.0.1", "b")
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	require.NoError(t, e.sessions.Renew(ctx, kept.ID, 0))
	e.clock.Advance(90 * time.Minute)

	n, err := e.sessions.CleanExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = e.sessions.Validate(ctx, keptToken)
	require.NoError(t, err)
	_, err = e.sessions.Validate(ctx, staleToken)
	require.ErrorIs(t, err, ErrSessionInvalid)

	require.ErrorIs(t, e.sessions.Renew(ctx, "missing", time.Hour), ErrSessionNotFound)
}
