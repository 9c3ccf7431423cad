package sqlite

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type mfaFactorsRepo struct {
	db dbtx
}

const factorColumns = `id, user_id, factor_type, secret, is_verified, created_at`

func scanFactor(row scanner) (domain.MFAFactor, error) {
	var (
		f          domain.MFAFactor
		factorType string
	)
	if err := row.Scan(&f.ID, &f.UserID, &factorType, &f.Secret, &f.IsVerified, &f.CreatedAt); err != nil {
		return domain.MFAFactor{}, err
	}
	f.Type = domain.FactorType(factorType)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

func (r *mfaFactorsRepo) CreateFactor(ctx context.Context, f domain.MFAFactor) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_factors (`+factorColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, string(f.Type), f.Secret, f.IsVerified, utc(f.CreatedAt))
	return mapConstraint(err)
}

func (r *mfaFactorsRepo) GetVerifiedFactor(ctx context.Context, userID string) (domain.MFAFactor, error) {
	f, err := scanFactor(r.db.QueryRowContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors
		 WHERE user_id = ? AND is_verified = 1
		 ORDER BY created_at ASC, id ASC LIMIT 1`, userID))
	if err != nil {
		return domain.MFAFactor{}, mapNotFound(err)
	}
	return f, nil
}

func (r *mfaFactorsRepo) HasVerifiedFactor(ctx context.Context, userID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mfa_factors WHERE user_id = ? AND is_verified = 1`, userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mfaFactorsRepo) ListFactors(ctx context.Context, userID string) ([]domain.MFAFactor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MFAFactor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *mfaFactorsRepo) DeleteUserFactors(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_factors WHERE user_id = ?`, userID)
	return err
}
