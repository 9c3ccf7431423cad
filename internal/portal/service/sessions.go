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
)

const DefaultSessionTTL = 2 * time.Hour

// SessionService is the registry of concurrent logins. Clients hold the raw
// token; only its fingerprint is stored.
type SessionService struct {
	Store    store.Store
	TTL      time.Duration
	Activity *ActivityService
	Events   EventRecorder
	Now      func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SessionService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

// Create issues a fresh session for userID and returns it with the raw token.
func (s *SessionService) Create(ctx context.Context, userID, ip, userAgent string) (domain.UserSession, string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.UserSession{}, "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	sess := domain.UserSession{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(token),
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(s.ttl()),
		IsActive:  true,
		CreatedAt: now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.UserSession{}, "", fmt.Errorf("failed to create session: %w", err)
	}
	return sess, token, nil
}

// Validate returns the live session behind a raw token.
func (s *SessionService) Validate(ctx context.Context, token string) (domain.UserSession, error) {
	if token == "" {
		return domain.UserSession{}, ErrSessionInvalid
	}
	sess, err := s.Store.Sessions().GetLiveSessionByToken(ctx, cryptox.FingerprintToken(token), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.UserSession{}, ErrSessionInvalid
	}
	if err != nil {
		return domain.UserSession{}, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// ActiveSessions lists the live sessions of a user, newest first.
func (s *SessionService) ActiveSessions(ctx context.Context, userID string) ([]domain.UserSession, error) {
	sessions, err := s.Store.Sessions().ListLiveSessions(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Deactivate ends one session by id.
func (s *SessionService) Deactivate(ctx context.Context, sessionID string) error {
	err := s.Store.Sessions().DeactivateSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Revoke ends a session on behalf of its owner. A session of another user
// is reported as forbidden, distinct from a missing one.
func (s *SessionService) Revoke(ctx context.Context, actor domain.AuthContext, sessionID string) error {
	sess, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if sess.UserID != actor.UserID {
		return ErrSessionForbidden
	}

	if err := s.Deactivate(ctx, sessionID); err != nil {
		return err
	}

	recorderOrNop(s.Events).Record(EventSessionRevoked)
	s.Activity.LogUser(ctx, actor.UserID, domain.ActivitySessionRevoked, "Revoked a session", actor.IPAddress,
		map[string]any{"session_id": sessionID})
	return nil
}

// DeactivateOthers ends every active session of userID except the one
// holding exceptToken.
func (s *SessionService) DeactivateOthers(ctx context.Context, userID, exceptToken string) (int64, error) {
	n, err := s.Store.Sessions().DeactivateOtherSessions(ctx, userID, cryptox.FingerprintToken(exceptToken))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke other sessions: %w", err)
	}
	return n, nil
}

// RevokeOthers is DeactivateOthers for the caller, with auditing.
func (s *SessionService) RevokeOthers(ctx context.Context, actor domain.AuthContext) (int64, error) {
	n, err := s.DeactivateOthers(ctx, actor.UserID, actor.SessionToken)
	if err != nil {
		return 0, err
	}
	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityOtherSessionsRevoked, "Revoked all other sessions",
		actor.IPAddress, map[string]any{"count": n})
	return n, nil
}

// DeactivateAll ends every active session of userID.
func (s *SessionService) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.Sessions().DeactivateAllSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return n, nil
}

// Renew pushes the expiry of a session to now plus ttl, or the default TTL
// when ttl is zero.
func (s *SessionService) Renew(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl()
	}
	err := s.Store.Sessions().RenewSession(ctx, sessionID, s.now().Add(ttl))
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// CleanExpired deactivates every session past its expiry and returns how
// many were flipped.
func (s *SessionService) CleanExpired(ctx context.Context) (int64, error) {
	n, err := s.Store.Sessions().DeactivateExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired sessions: %w", err)
	}
	return n, nil
}
