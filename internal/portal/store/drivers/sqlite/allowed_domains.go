package sqlite

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type allowedDomainsRepo struct {
	db dbtx
}

func (r *allowedDomainsRepo) IsAllowed(ctx context.Context, d string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM allowed_domains WHERE domain = ? AND is_active = 1`, d).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *allowedDomainsRepo) ListActive(ctx context.Context) ([]domain.AllowedDomain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, domain, is_active, created_at FROM allowed_domains WHERE is_active = 1 ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AllowedDomain
	for rows.Next() {
		var d domain.AllowedDomain
		if err := rows.Scan(&d.ID, &d.Domain, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *allowedDomainsRepo) AddDomain(ctx context.Context, d domain.AllowedDomain) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allowed_domains (id, domain, is_active, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Domain, d.IsActive, utc(d.CreatedAt))
	return mapConstraint(err)
}

func (r *allowedDomainsRepo) SetDomainActive(ctx context.Context, id string, active bool) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE allowed_domains SET is_active = ? WHERE id = ?`, active, id))
}
