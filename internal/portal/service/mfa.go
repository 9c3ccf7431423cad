package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSkew       = 2  // steps accepted either side of now
	totpSecretSize = 10 // 80 bits, 16 base32 characters

	DefaultSetupTTL          = 10 * time.Minute
	DefaultChallengeTTL      = 5 * time.Minute
	DefaultChallengeAttempts = 5
)

// MFAService is the two-factor engine. Secrets are sealed with Box before
// they reach the store.
type MFAService struct {
	Store    store.Store
	Box      *cryptox.SecretBox
	Issuer   string
	Activity *ActivityService

	SetupTTL          time.Duration
	ChallengeTTL      time.Duration
	ChallengeAttempts int

	Now func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MFAService) setupTTL() time.Duration {
	if s.SetupTTL > 0 {
		return s.SetupTTL
	}
	return DefaultSetupTTL
}

func (s *MFAService) challengeTTL() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return DefaultChallengeTTL
}

func (s *MFAService) challengeAttempts() int {
	if s.ChallengeAttempts > 0 {
		return s.ChallengeAttempts
	}
	return DefaultChallengeAttempts
}

// Enabled reports whether the user has a verified factor.
func (s *MFAService) Enabled(ctx context.Context, userID string) (bool, error) {
	return s.Store.MFAFactors().HasVerifiedFactor(ctx, userID)
}

// BeginSetup generates a TOTP secret and parks it as the user's pending
// setup, replacing any earlier one.
func (s *MFAService) BeginSetup(ctx context.Context, userID, account string) (domain.TOTPEnrollment, error) {
	enabled, err := s.Enabled(ctx, userID)
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to check factors: %w", err)
	}
	if enabled {
		return domain.TOTPEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	sealed, err := s.Box.Seal([]byte(key.Secret()))
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to seal TOTP secret: %w", err)
	}

	now := s.now()
	setup := domain.PendingSetup{
		ID:        idx.New().String(),
		UserID:    userID,
		Secret:    sealed,
		CreatedAt: now,
		ExpiresAt: now.Add(s.setupTTL()),
	}
	if err := s.Store.MFAPending().ReplaceSetup(ctx, setup); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to store pending setup: %w", err)
	}

	return domain.TOTPEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		Issuer:          s.Issuer,
		Account:         account,
		ExpiresAt:       setup.ExpiresAt,
	}, nil
}

// ConfirmSetup checks code against the pending secret. On success the factor
// is stored as verified, the user flag is set and the pending setup is
// consumed. A wrong code leaves the setup in place until it expires.
func (s *MFAService) ConfirmSetup(ctx context.Context, actor domain.AuthContext, code string) error {
	setup, err := s.Store.MFAPending().GetLiveSetup(ctx, actor.UserID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoPendingSetup
	}
	if err != nil {
		return fmt.Errorf("failed to load pending setup: %w", err)
	}

	secret, err := s.Box.Open(setup.Secret)
	if err != nil {
		return fmt.Errorf("failed to open pending secret: %w", err)
	}
	if !s.VerifyCode(string(secret), code) {
		return ErrInvalidTOTPCode
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		enabled, err := tx.MFAFactors().HasVerifiedFactor(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if enabled {
			return ErrMFAAlreadyEnabled
		}

		err = tx.MFAFactors().CreateFactor(ctx, domain.MFAFactor{
			ID:         idx.New().String(),
			UserID:     actor.UserID,
			Type:       domain.FactorTOTP,
			Secret:     setup.Secret,
			IsVerified: true,
			CreatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("failed to store factor: %w", err)
		}
		if err := tx.Users().SetTwoFactorEnabled(ctx, actor.UserID, true, now); err != nil {
			return fmt.Errorf("failed to enable two-factor: %w", err)
		}
		return tx.MFAPending().DeleteSetups(ctx, actor.UserID)
	})
	if err != nil {
		return err
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.Activity2FAEnabled, "Enabled two-factor authentication",
		actor.IPAddress, nil)
	return nil
}

// Disable removes every factor of the user and clears the flag together.
func (s *MFAService) Disable(ctx context.Context, actor domain.AuthContext) error {
	u, err := s.Store.Users().GetUserByID(ctx, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	enabled, err := s.Enabled(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to check factors: %w", err)
	}
	if !enabled && !u.TwoFactorEnabled {
		return ErrMFANotEnabled
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAFactors().DeleteUserFactors(ctx, actor.UserID); err != nil {
			return fmt.Errorf("failed to delete factors: %w", err)
		}
		if err := tx.MFAPending().DeleteSetups(ctx, actor.UserID); err != nil {
			return fmt.Errorf("failed to delete pending setups: %w", err)
		}
		if err := tx.Users().SetTwoFactorEnabled(ctx, actor.UserID, false, s.now()); err != nil {
			return fmt.Errorf("failed to disable two-factor: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.Activity2FADisabled, "Disabled two-factor authentication",
		actor.IPAddress, nil)
	return nil
}

// VerifyCode checks a 6-digit code against a base32 secret, accepting
// totpSkew steps of drift either way.
func (s *MFAService) VerifyCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// VerifyUserCode checks code against the user's verified factor. Only the
// oldest verified factor is consulted.
func (s *MFAService) VerifyUserCode(ctx context.Context, userID, code string) error {
	f, err := s.Store.MFAFactors().GetVerifiedFactor(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMFANotEnabled
	}
	if err != nil {
		return fmt.Errorf("failed to load factor: %w", err)
	}

	secret, err := s.Box.Open(f.Secret)
	if err != nil {
		return fmt.Errorf("failed to open factor secret: %w", err)
	}
	if !s.VerifyCode(string(secret), code) {
		return ErrInvalidTOTPCode
	}
	return nil
}

// BeginChallenge parks a pending login for a user who passed the password
// step. The returned token is handed to the client and never stored raw.
func (s *MFAService) BeginChallenge(ctx context.Context, userID, ip, userAgent string) (string, time.Time, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate challenge token: %w", err)
	}

	now := s.now()
	p := domain.PendingLogin{
		ID:        idx.New().String(),
		TokenHash: cryptox.FingerprintToken(token),
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.challengeTTL()),
	}
	if err := s.Store.MFAPending().CreateLogin(ctx, p); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store challenge: %w", err)
	}
	return token, p.ExpiresAt, nil
}

// ResolveChallenge verifies code for the pending login behind token. A wrong
// code keeps the challenge until the attempt cap is reached, after which it
// is deleted.
func (s *MFAService) ResolveChallenge(ctx context.Context, token, code string) (domain.PendingLogin, error) {
	if token == "" {
		return domain.PendingLogin{}, ErrChallengeNotFound
	}
	hash := cryptox.FingerprintToken(token)

	p, err := s.Store.MFAPending().GetLiveLogin(ctx, hash, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.PendingLogin{}, ErrChallengeNotFound
	}
	if err != nil {
		return domain.PendingLogin{}, fmt.Errorf("failed to load challenge: %w", err)
	}

	verr := s.VerifyUserCode(ctx, p.UserID, code)
	if verr == nil {
		if err := s.Store.MFAPending().DeleteLogin(ctx, hash); err != nil {
			return domain.PendingLogin{}, fmt.Errorf("failed to consume challenge: %w", err)
		}
		return p, nil
	}
	if !errors.Is(verr, ErrInvalidTOTPCode) {
		return domain.PendingLogin{}, verr
	}

	p, err = s.Store.MFAPending().IncrementLoginAttempts(ctx, hash)
	if err != nil {
		return domain.PendingLogin{}, fmt.Errorf("failed to count challenge attempt: %w", err)
	}
	if p.Attempts >= s.challengeAttempts() {
		if err := s.Store.MFAPending().DeleteLogin(ctx, hash); err != nil {
			return domain.PendingLogin{}, fmt.Errorf("failed to drop challenge: %w", err)
		}
		return p, ErrChallengeExhausted
	}
	return p, ErrInvalidTOTPCode
}

// CleanExpired drops lapsed setups and challenges.
func (s *MFAService) CleanExpired(ctx context.Context) (setups, logins int64, err error) {
	now := s.now()
	if setups, err = s.Store.MFAPending().DeleteExpiredSetups(ctx, now); err != nil {
		return 0, 0, fmt.Errorf("failed to delete expired setups: %w", err)
	}
	if logins, err = s.Store.MFAPending().DeleteExpiredLogins(ctx, now); err != nil {
		return setups, 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return setups, logins, nil
}
