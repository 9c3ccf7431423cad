package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// CaptchaVerifier decides whether a form submission came from a human.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// Mailer delivers account emails. Delivery is best effort: a failure is
// logged and never undoes the state change that triggered it.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// ClientInfo identifies where a request came from.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type RegisterInput struct {
	Fullname        string
	Username        string
	Alias           string
	Email           string
	Password        string
	PasswordConfirm string
	Captcha         string
}

type LoginInput struct {
	Email    string
	Password string
	Captcha  string
}

// dummyPasswordHash is verified against when no account matches the email.
var dummyPasswordHash = sync.OnceValue(func() string {
	hash, err := cryptox.HashPassword(cryptox.MustGenerateToken(cryptox.TokenSize256))
	if err != nil {
		return ""
	}
	return hash
})

// LoginResult is either an established session or a pending second factor.
type LoginResult struct {
	User domain.User

	Session      domain.UserSession
	SessionToken string

	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// RequiresTwoFactor reports whether the login stopped at the 2FA challenge.
func (r LoginResult) RequiresTwoFactor() bool { return r.ChallengeToken != "" }

// AuthService orchestrates registration, login, the 2FA challenge, logout
// and password recovery on top of the credential, rate limit, session and
// two-factor services.
type AuthService struct {
	Users     *UserService
	Sessions  *SessionService
	MFA       *MFAService
	RateLimit *RateLimitService
	Domains   *DomainService
	Activity  *ActivityService

	Captcha CaptchaVerifier
	Mailer  Mailer
	Events  EventRecorder
}

// Register validates and stores a new user, then emails the verification
// link. The captcha is checked before anything is persisted.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, client ClientInfo) (domain.User, error) {
	if err := s.checkCaptcha(ctx, in.Captcha, client.IP); err != nil {
		return domain.User{}, err
	}

	in.Email = NormalizeEmail(in.Email)
	in.Fullname = strings.TrimSpace(in.Fullname)
	in.Username = strings.TrimSpace(in.Username)
	in.Alias = strings.TrimSpace(in.Alias)

	verr := &ValidationError{}
	if in.Fullname == "" {
		verr.add("fullname", "is required")
	}
	if in.Username == "" {
		verr.add("username", "is required")
	}
	if in.Alias != "" && !aliasPattern.MatchString(in.Alias) {
		verr.add("alias", aliasReason)
	}

	host, ok := emailDomain(in.Email)
	if !ok {
		verr.add("email", "is not a valid email address")
	} else {
		allowed, err := s.Domains.IsAllowed(ctx, host)
		if err != nil {
			return domain.User{}, err
		}
		if !allowed {
			verr.add("email", "domain is not allowed to register")
		}
	}

	if err := validatePassword(in.Password, in.PasswordConfirm); err != nil {
		var pv *ValidationError
		if errors.As(err, &pv) {
			for k, v := range pv.Fields {
				verr.add(k, v)
			}
		}
	}
	if err := verr.orNil(); err != nil {
		return domain.User{}, err
	}

	u, token, err := s.Users.Create(ctx, domain.NewUser{
		Fullname: in.Fullname,
		Username: in.Username,
		Alias:    in.Alias,
		Email:    in.Email,
		Password: in.Password,
		Role:     domain.RoleUser,
	})
	if err != nil {
		return domain.User{}, err
	}

	if s.Mailer != nil {
		if err := s.Mailer.SendVerification(ctx, u.Email, u.Fullname, token); err != nil {
			slogx.FromContext(ctx).Warn("failed to send verification email", "user_id", u.ID, "error", err)
		}
	}

	recorderOrNop(s.Events).Record(EventRegistration)
	s.Activity.LogUser(ctx, u.ID, domain.ActivityRegistration, "New user registered", client.IP,
		map[string]any{"email": u.Email})
	return u, nil
}

// VerifyEmail consumes the token from the verification link.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (domain.User, error) {
	return s.Users.VerifyEmail(ctx, token)
}

// Login checks the lockout, the captcha and the credentials, in that order.
// Unknown emails and wrong passwords are indistinguishable to the caller and
// both count against the rate limiter.
func (s *AuthService) Login(ctx context.Context, in LoginInput, client ClientInfo) (LoginResult, error) {
	log := slogx.FromContext(ctx)
	events := recorderOrNop(s.Events)

	blocked, err := s.RateLimit.IsBlocked(ctx, client.IP, domain.ActionLogin)
	if err != nil {
		return LoginResult{}, err
	}
	if blocked {
		remaining, err := s.RateLimit.LockoutRemaining(ctx, client.IP, domain.ActionLogin)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, &LockoutError{Remaining: remaining}
	}

	in.Email = NormalizeEmail(in.Email)
	verr := &ValidationError{}
	if in.Email == "" {
		verr.add("email", "is required")
	}
	if in.Password == "" {
		verr.add("password", "is required")
	}
	if err := verr.orNil(); err != nil {
		return LoginResult{}, err
	}

	if err := s.checkCaptcha(ctx, in.Captcha, client.IP); err != nil {
		if errors.Is(err, ErrCaptchaFailed) {
			if _, rerr := s.recordFailure(ctx, client, in.Email, "", "captcha failed"); rerr != nil {
				return LoginResult{}, rerr
			}
		}
		return LoginResult{}, err
	}

	u, err := s.Users.Store.Users().GetUserByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, fmt.Errorf("failed to load user: %w", err)
	}
	if err != nil {
		// Unknown emails pay the same hashing cost as a wrong password.
		_ = cryptox.VerifyPassword(in.Password, dummyPasswordHash())
	}
	if err != nil || cryptox.VerifyPassword(in.Password, u.PasswordHash) != nil {
		if _, rerr := s.recordFailure(ctx, client, in.Email, u.ID, "invalid credentials"); rerr != nil {
			return LoginResult{}, rerr
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if !u.IsActive {
		return LoginResult{}, ErrAccountInactive
	}
	if !u.EmailVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	if err := s.RateLimit.ResetAttempts(ctx, client.IP, domain.ActionLogin); err != nil {
		return LoginResult{}, err
	}

	if cryptox.NeedsRehash(u.PasswordHash) {
		s.upgradeHash(ctx, u.ID, in.Password)
	}

	if u.TwoFactorEnabled {
		token, expiresAt, err := s.MFA.BeginChallenge(ctx, u.ID, client.IP, client.UserAgent)
		if err != nil {
			return LoginResult{}, err
		}
		events.Record(EventTwoFactorAsked)
		log.Info("two-factor challenge issued", "user_id", u.ID)
		return LoginResult{User: u, ChallengeToken: token, ChallengeExpiresAt: expiresAt}, nil
	}

	return s.establish(ctx, u, client)
}

// CompleteTwoFactor finishes a login parked at the 2FA challenge.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, challengeToken, code string, client ClientInfo) (LoginResult, error) {
	pending, err := s.MFA.ResolveChallenge(ctx, challengeToken, code)
	if err != nil {
		if errors.Is(err, ErrInvalidTOTPCode) || errors.Is(err, ErrChallengeExhausted) {
			recorderOrNop(s.Events).Record(EventTwoFactorFail)
			slogx.FromContext(ctx).Warn("two-factor challenge failed",
				"user_id", pending.UserID, "attempts", pending.Attempts, "client_ip", client.IP)
			s.Activity.LogUser(ctx, pending.UserID, domain.ActivityFailedLogin, "Invalid two-factor code",
				client.IP, map[string]any{"reason": "invalid_2fa_code"})
		}
		return LoginResult{}, err
	}

	u, err := s.Users.Get(ctx, pending.UserID)
	if err != nil {
		return LoginResult{}, err
	}
	if u.IsDeleted() || !u.IsActive {
		return LoginResult{}, ErrAccountInactive
	}

	return s.establish(ctx, u, client)
}

// Logout ends the caller's current session.
func (s *AuthService) Logout(ctx context.Context, actor domain.AuthContext) error {
	if actor.SessionID != "" {
		if err := s.Sessions.Deactivate(ctx, actor.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityLogout, "User logged out", actor.IPAddress, nil)
	return nil
}

// RenewSession extends the caller's current session by the session TTL and
// returns it so the transport can re-issue its credential.
func (s *AuthService) RenewSession(ctx context.Context, actor domain.AuthContext) (LoginResult, error) {
	if err := s.Sessions.Renew(ctx, actor.SessionID, 0); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return LoginResult{}, ErrSessionInvalid
		}
		return LoginResult{}, err
	}

	sess, err := s.Sessions.Validate(ctx, actor.SessionToken)
	if err != nil {
		return LoginResult{}, err
	}
	u, err := s.Users.Get(ctx, actor.UserID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: u, Session: sess, SessionToken: actor.SessionToken}, nil
}

// RequestPasswordReset emails a reset link to a registered address. Requests
// for unknown addresses count against the caller's reset rate limit.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, client ClientInfo) error {
	blocked, err := s.RateLimit.IsBlocked(ctx, client.IP, domain.ActionPasswordReset)
	if err != nil {
		return err
	}
	if blocked {
		remaining, err := s.RateLimit.LockoutRemaining(ctx, client.IP, domain.ActionPasswordReset)
		if err != nil {
			return err
		}
		return &LockoutError{Remaining: remaining}
	}

	u, token, err := s.Users.GenerateResetToken(ctx, email)
	if errors.Is(err, ErrEmailNotRegistered) {
		if _, rerr := s.RateLimit.RecordAttempt(ctx, client.IP, domain.ActionPasswordReset); rerr != nil {
			return rerr
		}
		slogx.FromContext(ctx).Warn("password reset for unknown email", "client_ip", client.IP)
	}
	if err != nil {
		return err
	}

	if s.Mailer != nil {
		if err := s.Mailer.SendPasswordReset(ctx, u.Email, u.Fullname, token); err != nil {
			slogx.FromContext(ctx).Warn("failed to send password reset email", "user_id", u.ID, "error", err)
		}
	}

	s.Activity.LogUser(ctx, u.ID, domain.ActivityPasswordResetRequest, "Password reset requested", client.IP, nil)
	return nil
}

// ResetPassword sets a new password from an emailed token.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	_, err := s.Users.ResetPassword(ctx, token, password, confirm)
	return err
}

// Authenticate turns a raw session token into the caller's AuthContext. The
// session registry is consulted on every call, so a revoked session stops
// working immediately.
func (s *AuthService) Authenticate(ctx context.Context, sessionToken string, client ClientInfo) (domain.AuthContext, error) {
	sess, err := s.Sessions.Validate(ctx, sessionToken)
	if err != nil {
		return domain.AuthContext{}, err
	}

	u, err := s.Users.Get(ctx, sess.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return domain.AuthContext{}, ErrSessionInvalid
	}
	if err != nil {
		return domain.AuthContext{}, err
	}
	if u.IsDeleted() || !u.IsActive {
		if err := s.Sessions.Deactivate(ctx, sess.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			slogx.FromContext(ctx).Error("failed to deactivate session of disabled user", "error", err)
		}
		return domain.AuthContext{}, ErrSessionInvalid
	}

	return domain.AuthContext{
		UserID:       u.ID,
		SessionID:    sess.ID,
		SessionToken: sessionToken,
		Role:         u.Role,
		Authority:    u.Authority(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
	}, nil
}

func (s *AuthService) establish(ctx context.Context, u domain.User, client ClientInfo) (LoginResult, error) {
	sess, token, err := s.Sessions.Create(ctx, u.ID, client.IP, client.UserAgent)
	if err != nil {
		return LoginResult{}, err
	}

	now := s.Sessions.now()
	if err := s.Users.Store.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
		slogx.FromContext(ctx).Warn("failed to update last login", "user_id", u.ID, "error", err)
	} else {
		u.LastLogin = &now
	}

	recorderOrNop(s.Events).Record(EventLoginSuccess)
	s.Activity.LogUser(ctx, u.ID, domain.ActivityLogin, "User logged in", client.IP,
		map[string]any{"session_id": sess.ID, "user_agent": client.UserAgent})
	return LoginResult{User: u, Session: sess, SessionToken: token}, nil
}

// recordFailure counts a failed login and reports a lockout when the attempt
// crossed the threshold.
func (s *AuthService) recordFailure(ctx context.Context, client ClientInfo, email, userID, reason string) (int, error) {
	attempts, err := s.RateLimit.RecordAttempt(ctx, client.IP, domain.ActionLogin)
	if err != nil {
		return 0, err
	}

	events := recorderOrNop(s.Events)
	events.Record(EventLoginFailure)

	log := slogx.FromContext(ctx)
	log.Warn("login failed", "reason", reason, "client_ip", client.IP, "attempts", attempts)
	if attempts >= s.RateLimit.maxAttempts() {
		events.Record(EventLockout)
		log.Warn("client locked out", "client_ip", client.IP, "action", domain.ActionLogin)
	}

	s.Activity.LogUser(ctx, userID, domain.ActivityFailedLogin, "Failed login attempt", client.IP,
		map[string]any{"email": email, "reason": reason, "attempts": attempts})
	return attempts, nil
}

func (s *AuthService) checkCaptcha(ctx context.Context, response, ip string) error {
	if s.Captcha == nil {
		return nil
	}
	ok, err := s.Captcha.Verify(ctx, response, ip)
	if err != nil {
		return fmt.Errorf("failed to verify captcha: %w", err)
	}
	if !ok {
		return ErrCaptchaFailed
	}
	return nil
}

// upgradeHash rewrites a legacy or stale hash after a successful login.
func (s *AuthService) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := cryptox.HashPassword(password)
	if err == nil {
		err = s.Users.Store.Users().UpdatePasswordHash(ctx, userID, hash, s.Users.now())
	}
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to upgrade password hash", "user_id", userID, "error", err)
	}
}
