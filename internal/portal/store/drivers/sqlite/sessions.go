package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, user_id, session_token, ip_address, user_agent, expires_at, is_active, created_at`

func scanSession(row scanner) (domain.UserSession, error) {
	var s domain.UserSession
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return domain.UserSession{}, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.UserSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenHash, s.IPAddress, s.UserAgent, utc(s.ExpiresAt), s.IsActive, utc(s.CreatedAt))
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.UserSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE id = ?`, id))
	if err != nil {
		return domain.UserSession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *sessionsRepo) GetLiveSessionByToken(
	ctx context.Context,
	tokenHash string,
	now time.Time,
) (domain.UserSession, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions
		 WHERE session_token = ? AND is_active = 1 AND expires_at > ?`, tokenHash, utc(now)))
	if err != nil {
		return domain.UserSession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *sessionsRepo) ListLiveSessions(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]domain.UserSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions
		 WHERE user_id = ? AND is_active = 1 AND expires_at > ?
		 ORDER BY created_at DESC, id DESC`, userID, utc(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) DeactivateSession(ctx context.Context, id string) error {
	return requireAffected(r.db.ExecContext(ctx, `UPDATE user_sessions SET is_active = 0 WHERE id = ?`, id))
}

func (r *sessionsRepo) DeactivateOtherSessions(ctx context.Context, userID, exceptTokenHash string) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0
		 WHERE user_id = ? AND session_token != ? AND is_active = 1`, userID, exceptTokenHash))
}

func (r *sessionsRepo) DeactivateAllSessions(ctx context.Context, userID string) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1`, userID))
}

func (r *sessionsRepo) RenewSession(ctx context.Context, id string, expiresAt time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE user_sessions SET expires_at = ? WHERE id = ?`, utc(expiresAt), id))
}

func (r *sessionsRepo) DeactivateExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0 WHERE is_active = 1 AND expires_at < ?`, utc(now)))
}
