package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type mfaPendingRepo struct {
	db dbtx
}

const (
	setupColumns = `id, user_id, secret, created_at, expires_at`
	loginColumns = `id, token_hash, user_id, ip_address, user_agent, attempts, created_at, expires_at`
)

func scanSetup(row scanner) (domain.PendingSetup, error) {
	var p domain.PendingSetup
	if err := row.Scan(&p.ID, &p.UserID, &p.Secret, &p.CreatedAt, &p.ExpiresAt); err != nil {
		return domain.PendingSetup{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	return p, nil
}

func scanLogin(row scanner) (domain.PendingLogin, error) {
	var p domain.PendingLogin
	err := row.Scan(&p.ID, &p.TokenHash, &p.UserID, &p.IPAddress, &p.UserAgent, &p.Attempts, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return domain.PendingLogin{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
	return p, nil
}

func (r *mfaPendingRepo) ReplaceSetup(ctx context.Context, p domain.PendingSetup) error {
	if err := r.DeleteSetups(ctx, p.UserID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_setups (`+setupColumns+`) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Secret, utc(p.CreatedAt), utc(p.ExpiresAt))
	return mapConstraint(err)
}

func (r *mfaPendingRepo) GetLiveSetup(ctx context.Context, userID string, now time.Time) (domain.PendingSetup, error) {
	p, err := scanSetup(r.db.QueryRowContext(ctx,
		`SELECT `+setupColumns+` FROM mfa_setups
		 WHERE user_id = ? AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`, userID, utc(now)))
	if err != nil {
		return domain.PendingSetup{}, mapNotFound(err)
	}
	return p, nil
}

func (r *mfaPendingRepo) DeleteSetups(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_setups WHERE user_id = ?`, userID)
	return err
}

func (r *mfaPendingRepo) DeleteExpiredSetups(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM mfa_setups WHERE expires_at <= ?`, utc(now)))
}

func (r *mfaPendingRepo) CreateLogin(ctx context.Context, p domain.PendingLogin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_logins (`+loginColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TokenHash, p.UserID, p.IPAddress, p.UserAgent, p.Attempts, utc(p.CreatedAt), utc(p.ExpiresAt))
	return mapConstraint(err)
}

func (r *mfaPendingRepo) GetLiveLogin(ctx context.Context, tokenHash string, now time.Time) (domain.PendingLogin, error) {
	p, err := scanLogin(r.db.QueryRowContext(ctx,
		`SELECT `+loginColumns+` FROM mfa_logins WHERE token_hash = ? AND expires_at > ?`, tokenHash, utc(now)))
	if err != nil {
		return domain.PendingLogin{}, mapNotFound(err)
	}
	return p, nil
}

func (r *mfaPendingRepo) IncrementLoginAttempts(ctx context.Context, tokenHash string) (domain.PendingLogin, error) {
	p, err := scanLogin(r.db.QueryRowContext(ctx,
		`UPDATE mfa_logins SET attempts = attempts + 1 WHERE token_hash = ? RETURNING `+loginColumns, tokenHash))
	if err != nil {
		return domain.PendingLogin{}, mapNotFound(err)
	}
	return p, nil
}

func (r *mfaPendingRepo) DeleteLogin(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_logins WHERE token_hash = ?`, tokenHash)
	return err
}

func (r *mfaPendingRepo) DeleteExpiredLogins(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM mfa_logins WHERE expires_at <= ?`, utc(now)))
}
