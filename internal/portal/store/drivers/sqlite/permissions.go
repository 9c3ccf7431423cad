package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type permissionsRepo struct {
	db dbtx
}

const permissionColumns = `id, name, display_name, category, description, created_at`

func scanPermission(row scanner) (domain.Permission, error) {
	var (
		p        domain.Permission
		category sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &category, &p.Description, &p.CreatedAt); err != nil {
		return domain.Permission{}, err
	}
	p.Category = mapNullString(category)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func listPermissions(ctx context.Context, db dbtx, query string, args ...any) ([]domain.Permission, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *permissionsRepo) GetPermissionByID(ctx context.Context, id string) (domain.Permission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE id = ?`, id))
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	return p, nil
}

func (r *permissionsRepo) GetPermissionByName(ctx context.Context, name string) (domain.Permission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE name = ?`, name))
	if err != nil {
		return domain.Permission{}, mapNotFound(err)
	}
	return p, nil
}

func (r *permissionsRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return listPermissions(ctx, r.db,
		`SELECT `+permissionColumns+` FROM permissions ORDER BY category, display_name`)
}

func (r *permissionsRepo) CreatePermission(ctx context.Context, p domain.Permission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (`+permissionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.DisplayName, mapStringNull(p.Category), p.Description, utc(p.CreatedAt))
	return mapConstraint(err)
}

func (r *permissionsRepo) UpdatePermission(ctx context.Context, p domain.Permission) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE permissions SET display_name = ?, category = ?, description = ? WHERE id = ?`,
		p.DisplayName, mapStringNull(p.Category), p.Description, p.ID))
}
