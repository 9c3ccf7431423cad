package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type rateLimitsRepo struct {
	db dbtx
}

const rateLimitColumns = `ip_address, action, attempts, last_attempt_at, locked_until`

func scanRateLimit(row scanner) (domain.RateLimit, error) {
	var (
		rl          domain.RateLimit
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&rl.IPAddress, &rl.Action, &rl.Attempts, &rl.LastAttemptAt, &lockedUntil); err != nil {
		return domain.RateLimit{}, err
	}
	rl.LastAttemptAt = rl.LastAttemptAt.UTC()
	rl.LockedUntil = mapNullTimePtr(lockedUntil)
	return rl, nil
}

func (r *rateLimitsRepo) GetRateLimit(ctx context.Context, ip, action string) (domain.RateLimit, error) {
	rl, err := scanRateLimit(r.db.QueryRowContext(ctx,
		`SELECT `+rateLimitColumns+` FROM rate_limits WHERE ip_address = ? AND action = ?`, ip, action))
	if err != nil {
		return domain.RateLimit{}, mapNotFound(err)
	}
	return rl, nil
}

func (r *rateLimitsRepo) CreateRateLimit(ctx context.Context, rl domain.RateLimit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rate_limits (`+rateLimitColumns+`) VALUES (?, ?, ?, ?, ?)`,
		rl.IPAddress, rl.Action, rl.Attempts, utc(rl.LastAttemptAt), mapOptionalTime(rl.LockedUntil))
	return mapConstraint(err)
}

func (r *rateLimitsRepo) IncrementAttempts(
	ctx context.Context,
	ip, action string,
	now time.Time,
) (domain.RateLimit, error) {
	rl, err := scanRateLimit(r.db.QueryRowContext(ctx, `
		UPDATE rate_limits
		SET attempts = attempts + 1, last_attempt_at = ?
		WHERE ip_address = ? AND action = ?
		RETURNING `+rateLimitColumns, utc(now), ip, action))
	if err != nil {
		return domain.RateLimit{}, mapNotFound(err)
	}
	return rl, nil
}

func (r *rateLimitsRepo) LockUntil(ctx context.Context, ip, action string, until time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE rate_limits SET locked_until = ? WHERE ip_address = ? AND action = ?`, utc(until), ip, action))
}

func (r *rateLimitsRepo) ResetRateLimit(ctx context.Context, ip, action string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rate_limits SET attempts = 0, locked_until = NULL WHERE ip_address = ? AND action = ?`, ip, action)
	return err
}

func (r *rateLimitsRepo) ClearIP(ctx context.Context, ip string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rate_limits SET attempts = 0, locked_until = NULL WHERE ip_address = ?`, ip)
	return err
}

func (r *rateLimitsRepo) ListLocked(ctx context.Context, now time.Time) ([]domain.RateLimit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+rateLimitColumns+` FROM rate_limits WHERE locked_until > ? ORDER BY locked_until DESC`, utc(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RateLimit
	for rows.Next() {
		rl, err := scanRateLimit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}
