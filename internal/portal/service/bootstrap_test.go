package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	in := BootstrapInput{
		Fullname: "Site Owner",
		Username: "owner",
		Email:    "owner@corp.internal",
		Password: testPassword,
	}

	disabled := &BootstrapService{Users: e.users, Activity: e.activity}
	_, err := disabled.Bootstrap(ctx, "", in, testClient)
	require.ErrorIs(t, err, ErrBootstrapUnauthorized)

	bs := &BootstrapService{Users: e.users, Activity: e.activity, Token: "let-me-in"}
	_, err = bs.Bootstrap(ctx, "wrong", in, testClient)
	require.ErrorIs(t, err, ErrBootstrapUnauthorized)

	var verr *ValidationError
	_, err = bs.Bootstrap(ctx, "let-me-in", BootstrapInput{Email: "nope"}, testClient)
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "fullname")
	require.Contains(t, verr.Fields, "email")
	require.Contains(t, verr.Fields, "password")

	done, err := bs.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, done)

	root, err := bs.Bootstrap(ctx, "let-me-in", in, testClient)
	require.NoError(t, err)
	require.Equal(t, domain.RoleRoot, root.Role)
	require.True(t, root.EmailVerified)

	// The allow-list does not apply, so the root can sign in right away.
	res, err := e.auth.Login(ctx, LoginInput{Email: in.Email, Password: testPassword}, testClient)
	require.NoError(t, err)
	require.Equal(t, root.ID, res.User.ID)

	_, err = bs.Bootstrap(ctx, "let-me-in", in, testClient)
	require.ErrorIs(t, err, ErrBootstrapAlready)

	// A deleted root no longer counts.
	require.NoError(t, e.store.Users().SoftDelete(ctx, root.ID, e.clock.Now()))
	done, err = bs.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, done)
}
