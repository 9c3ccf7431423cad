package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var secret = []byte(strings.Repeat("k", jwtx.MinSecretSize))

func TestHS256RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	h, err := jwtx.NewHS256(secret, "portal")
	require.NoError(t, err)
	h.WithClock(func() time.Time { return now.Add(time.Minute) })

	token, err := h.Sign(jwtx.NewSessionClaims("user-1", "sid-1", "portal", now, now.Add(2*time.Hour)))
	require.NoError(t, err)

	claims, err := h.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "sid-1", claims.SID)
	require.NotEmpty(t, claims.ID)
}

func TestHS256Rejections(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	h, err := jwtx.NewHS256(secret, "portal")
	require.NoError(t, err)
	h.WithClock(func() time.Time { return now })

	t.Run("expired", func(t *testing.T) {
		token, err := h.Sign(jwtx.NewSessionClaims("u", "s", "portal", now.Add(-3*time.Hour), now.Add(-time.Hour)))
		require.NoError(t, err)
		_, err = h.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := h.Sign(jwtx.NewSessionClaims("u", "s", "elsewhere", now, now.Add(time.Hour)))
		require.NoError(t, err)
		_, err = h.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := jwtx.NewHS256([]byte(strings.Repeat("z", jwtx.MinSecretSize)), "portal")
		require.NoError(t, err)
		token, err := other.Sign(jwtx.NewSessionClaims("u", "s", "portal", now, now.Add(time.Hour)))
		require.NoError(t, err)
		_, err = h.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("missing session id", func(t *testing.T) {
		token, err := h.Sign(jwtx.NewSessionClaims("u", "", "portal", now, now.Add(time.Hour)))
		require.NoError(t, err)
		_, err = h.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
	})

	t.Run("algorithm none", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone,
			jwtx.NewSessionClaims("u", "s", "portal", now, now.Add(time.Hour))).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = h.Verify(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := h.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestNewHS256Secret(t *testing.T) {
	_, err := jwtx.NewHS256([]byte("short"), "portal")
	require.Error(t, err)

	h, err := jwtx.NewHS256(nil, "portal")
	require.NoError(t, err)
	require.NotNil(t, h)
}
