package sqlite

import (
	"context"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type rolesRepo struct {
	db dbtx
}

const roleColumns = `id, name, display_name, description, is_system_role, is_active, created_at, updated_at`

func scanRole(row scanner) (domain.Role, error) {
	var r domain.Role
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.IsSystemRole, &r.IsActive,
		&r.CreatedAt, &r.UpdatedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, err
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ?`, id))
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = ?`, name))
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func (r *rolesRepo) GetSystemRoleByName(ctx context.Context, name string) (domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE name = ? AND is_system_role = 1`, name))
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func (r *rolesRepo) ListRoles(ctx context.Context, includeSystem bool) ([]domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles`
	if !includeSystem {
		query += ` WHERE is_system_role = 0`
	}
	query += ` ORDER BY is_system_role DESC, display_name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (`+roleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		role.ID, role.Name, role.DisplayName, role.Description, role.IsSystemRole, role.IsActive,
		utc(role.CreatedAt), utc(role.UpdatedAt),
	)
	return mapConstraint(err)
}

// UpdateRole writes the editable columns. Name and is_system_role are never
// touched here.
func (r *rolesRepo) UpdateRole(ctx context.Context, role domain.Role) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE roles SET display_name = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		role.DisplayName, role.Description, role.IsActive, utc(role.UpdatedAt), role.ID))
}

func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	return requireAffected(r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID))
}

func (r *rolesRepo) ListRolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	return listPermissions(ctx, r.db, `
		SELECT p.id, p.name, p.display_name, p.category, p.description, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = ?
		ORDER BY p.category, p.display_name`, roleID)
}

func (r *rolesRepo) RoleHasPermission(ctx context.Context, roleID, permissionName string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ? AND p.name = ?`, roleID, permissionName).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *rolesRepo) ClearRolePermissions(ctx context.Context, roleID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, roleID)
	return err
}

func (r *rolesRepo) AddRolePermission(ctx context.Context, rp domain.RolePermission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, granted_by, created_at) VALUES (?, ?, ?, ?)`,
		rp.RoleID, rp.PermissionID, mapOptionalString(rp.GrantedBy), utc(rp.CreatedAt))
	return mapConstraint(err)
}
