package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

// enableTOTP runs the setup protocol and returns the shared secret.
func (e *testEnv) enableTOTP(t *testing.T, u domain.User) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.NoError(t, err)
	require.NoError(t, e.mfa.ConfirmSetup(ctx, e.actor(u), codeAt(t, enrollment.Secret, e.clock.Now())))
	return enrollment.Secret
}

func TestVerifyCodeWindow(t *testing.T) {
	e := newTestEnv(t)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Portal", AccountName: "a@example.com"})
	require.NoError(t, err)
	now := e.clock.Now()

	require.True(t, e.mfa.VerifyCode(key.Secret(), codeAt(t, key.Secret(), now)))
	require.True(t, e.mfa.VerifyCode(key.Secret(), codeAt(t, key.Secret(), now.Add(-60*time.Second))))
	require.True(t, e.mfa.VerifyCode(key.Secret(), codeAt(t, key.Secret(), now.Add(60*time.Second))))
	require.False(t, e.mfa.VerifyCode(key.Secret(), codeAt(t, key.Secret(), now.Add(10*time.Minute))))
	require.False(t, e.mfa.VerifyCode(key.Secret(), "12345"))
	require.False(t, e.mfa.VerifyCode(key.Secret(), ""))
}

func TestTOTPSetupProtocol(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	require.ErrorIs(t, e.mfa.ConfirmSetup(ctx, e.actor(u), "000000"), ErrNoPendingSetup)

	enrollment, err := e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.NoError(t, err)
	require.Len(t, enrollment.Secret, 16)
	require.True(t, strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/Portal:"))
	require.Contains(t, enrollment.ProvisioningURI, "secret="+enrollment.Secret)
	require.Contains(t, enrollment.ProvisioningURI, "issuer=Portal")
	require.Equal(t, e.clock.Now().Add(DefaultSetupTTL), enrollment.ExpiresAt)

	// The pending secret is sealed at rest.
	setup, err := e.store.MFAPending().GetLiveSetup(ctx, u.ID, e.clock.Now())
	require.NoError(t, err)
	require.NotContains(t, string(setup.Secret), enrollment.Secret)

	// A wrong code keeps the pending setup for another try.
	wrong := codeAt(t, enrollment.Secret, e.clock.Now().Add(10*time.Minute))
	require.ErrorIs(t, e.mfa.ConfirmSetup(ctx, e.actor(u), wrong), ErrInvalidTOTPCode)

	enabled, err := e.mfa.Enabled(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, enabled)

	require.NoError(t, e.mfa.ConfirmSetup(ctx, e.actor(u), codeAt(t, enrollment.Secret, e.clock.Now())))

	enabled, err = e.mfa.Enabled(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, enabled)
	got, err := e.users.Get(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled)

	// The secret is single use.
	require.ErrorIs(t, e.mfa.ConfirmSetup(ctx, e.actor(u), codeAt(t, enrollment.Secret, e.clock.Now())), ErrNoPendingSetup)

	_, err = e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	require.NoError(t, e.mfa.VerifyUserCode(ctx, u.ID, codeAt(t, enrollment.Secret, e.clock.Now())))
}

func TestTOTPSetupExpires(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	enrollment, err := e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.NoError(t, err)

	e.clock.Advance(DefaultSetupTTL)
	err = e.mfa.ConfirmSetup(ctx, e.actor(u), codeAt(t, enrollment.Secret, e.clock.Now()))
	require.ErrorIs(t, err, ErrNoPendingSetup)

	setups, _, err := e.mfa.CleanExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, setups)
}

func TestTOTPRestartReplacesSecret(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	first, err := e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.NoError(t, err)
	second, err := e.mfa.BeginSetup(ctx, u.ID, u.Email)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	require.ErrorIs(t, e.mfa.ConfirmSetup(ctx, e.actor(u), codeAt(t, first.Secret, e.clock.Now())), ErrInvalidTOTPCode)
	require.NoError(t, e.mfa.ConfirmSetup(ctx, e.actor(u), codeAt(t, second.Secret, e.clock.Now())))
}

func TestDisableTwoFactor(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)

	require.ErrorIs(t, e.mfa.Disable(ctx, e.actor(u)), ErrMFANotEnabled)

	secret := e.enableTOTP(t, u)
	require.NoError(t, e.mfa.Disable(ctx, e.actor(u)))

	factors, err := e.store.MFAFactors().ListFactors(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, factors)

	got, err := e.users.Get(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled)

	require.ErrorIs(t, e.mfa.VerifyUserCode(ctx, u.ID, codeAt(t, secret, e.clock.Now())), ErrMFANotEnabled)
}

func TestChallengeAttemptCap(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)
	secret := e.enableTOTP(t, u)

	token, _, err := e.mfa.BeginChallenge(ctx, u.ID, "10.0.0.1", "agent")
	require.NoError(t, err)

	wrong := codeAt(t, secret, e.clock.Now().Add(time.Hour))
	for i := 1; i < DefaultChallengeAttempts; i++ {
		p, err := e.mfa.ResolveChallenge(ctx, token, wrong)
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
		require.Equal(t, i, p.Attempts)
	}

	_, err = e.mfa.ResolveChallenge(ctx, token, wrong)
	require.ErrorIs(t, err, ErrChallengeExhausted)

	_, err = e.mfa.ResolveChallenge(ctx, token, codeAt(t, secret, e.clock.Now()))
	require.ErrorIs(t, err, ErrChallengeNotFound, "an exhausted challenge is gone")
}

func TestChallengeExpires(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	u := e.createUser(t, "alice", domain.RoleUser)
	secret := e.enableTOTP(t, u)

	token, expiresAt, err := e.mfa.BeginChallenge(ctx, u.ID, "10.0.0.1", "agent")
	require.NoError(t, err)
	require.Equal(t, e.clock.Now().Add(DefaultChallengeTTL), expiresAt)

	e.clock.Advance(DefaultChallengeTTL)
	_, err = e.mfa.ResolveChallenge(ctx, token, codeAt(t, secret, e.clock.Now()))
	require.ErrorIs(t, err, ErrChallengeNotFound)

	_, logins, err := e.mfa.CleanExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, logins)
}
