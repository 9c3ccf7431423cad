package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type userPermissionsRepo struct {
	db dbtx
}

const overrideSelect = `
	SELECT up.user_id, up.permission_id, p.name, up.is_granted, up.granted_by, up.created_at
	FROM user_permissions up
	JOIN permissions p ON p.id = up.permission_id`

func scanOverride(row scanner) (domain.UserPermission, error) {
	var (
		up        domain.UserPermission
		grantedBy sql.NullString
	)
	err := row.Scan(&up.UserID, &up.PermissionID, &up.PermissionName, &up.IsGranted, &grantedBy, &up.CreatedAt)
	if err != nil {
		return domain.UserPermission{}, err
	}
	up.GrantedBy = mapNullStringPtr(grantedBy)
	up.CreatedAt = up.CreatedAt.UTC()
	return up, nil
}

func (r *userPermissionsRepo) GetOverride(
	ctx context.Context,
	userID, permissionName string,
) (domain.UserPermission, error) {
	up, err := scanOverride(r.db.QueryRowContext(ctx,
		overrideSelect+` WHERE up.user_id = ? AND p.name = ?`, userID, permissionName))
	if err != nil {
		return domain.UserPermission{}, mapNotFound(err)
	}
	return up, nil
}

func (r *userPermissionsRepo) ListOverrides(ctx context.Context, userID string) ([]domain.UserPermission, error) {
	rows, err := r.db.QueryContext(ctx, overrideSelect+` WHERE up.user_id = ? ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserPermission
	for rows.Next() {
		up, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, rows.Err()
}

func (r *userPermissionsRepo) UpsertOverride(ctx context.Context, up domain.UserPermission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, is_granted, granted_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, permission_id)
		DO UPDATE SET is_granted = excluded.is_granted, granted_by = excluded.granted_by`,
		up.UserID, up.PermissionID, up.IsGranted, mapOptionalString(up.GrantedBy), utc(up.CreatedAt))
	return err
}

func (r *userPermissionsRepo) DeleteOverride(ctx context.Context, userID, permissionID string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`DELETE FROM user_permissions WHERE user_id = ? AND permission_id = ?`, userID, permissionID))
}
