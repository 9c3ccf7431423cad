package portal_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/internal/portal/mailer"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

func TestPortalEndToEnd(t *testing.T) {
	env := setupPortal(t)
	ctx := context.Background()

	root := portalapi.NewClient(env.URL)
	user := portalapi.NewClient(env.URL)

	t.Run("health", func(t *testing.T) {
		health, err := root.GetLiveness(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, health.Status)
	})

	t.Run("bootstrap", func(t *testing.T) {
		req := portalapi.BootstrapRequest{
			Token:    "wrong-token",
			Fullname: "Root Operator",
			Username: "root",
			Email:    "root@example.com",
			Password: rootPassword,
		}
		_, err := root.Bootstrap(ctx, req)
		requireAPIError(t, err, http.StatusUnauthorized, portalapi.ErrorCodeUnauthorized)

		req.Token = bootstrapToken
		u, err := root.Bootstrap(ctx, req)
		require.NoError(t, err)
		require.Equal(t, "root", u.Role)
		require.True(t, u.EmailVerified)

		_, err = root.Bootstrap(ctx, req)
		requireAPIError(t, err, http.StatusConflict, portalapi.ErrorCodeConflict)

		_, err = root.Login(ctx, portalapi.LoginRequest{Email: "root@example.com", Password: rootPassword})
		require.NoError(t, err)
	})

	t.Run("registration mail via broker", func(t *testing.T) {
		u, err := user.Register(ctx, portalapi.RegisterRequest{
			Fullname:        "Erin Example",
			Username:        "erin",
			Email:           "erin@example.com",
			Password:        userPassword,
			PasswordConfirm: userPassword,
			Captcha:         "ok",
		})
		require.NoError(t, err)
		require.False(t, u.EmailVerified)

		token := env.awaitMail(t, mailer.KindVerification, "erin@example.com")
		require.NoError(t, user.VerifyEmail(ctx, token))

		resp, err := user.Login(ctx, portalapi.LoginRequest{Email: "erin@example.com", Password: userPassword})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Token)

		me, err := user.Me(ctx)
		require.NoError(t, err)
		require.Equal(t, u.ID, me.ID)
	})

	t.Run("permission guard", func(t *testing.T) {
		_, err := user.ListUsers(ctx)
		requireAPIError(t, err, http.StatusForbidden, portalapi.ErrorCodeForbidden)

		users, err := root.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
	})

	t.Run("password reset mail via broker", func(t *testing.T) {
		anon := portalapi.NewClient(env.URL)
		require.NoError(t, anon.ForgotPassword(ctx, "erin@example.com"))

		token := env.awaitMail(t, mailer.KindPasswordReset, "erin@example.com")
		const newPassword = "a fresh e2e password"
		require.NoError(t, anon.ResetPassword(ctx, portalapi.ResetPasswordRequest{
			Token:           token,
			Password:        newPassword,
			PasswordConfirm: newPassword,
		}))

		_, err := anon.Login(ctx, portalapi.LoginRequest{Email: "erin@example.com", Password: newPassword})
		require.NoError(t, err)
	})

	t.Run("throttle state lives in redis", func(t *testing.T) {
		keys, err := env.Redis.Keys(ctx, "portal:throttle:*").Result()
		require.NoError(t, err)
		require.NotEmpty(t, keys)
	})
}
