package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, fullname, username, alias, email, password_hash, role, role_id,
	email_verified, verification_token, is_active, is_2fa_enabled,
	reset_token, reset_token_expires_at, last_login, created_at, updated_at, deleted_at`

func scanUser(row scanner) (domain.User, error) {
	var (
		u                 domain.User
		role              string
		roleID            sql.NullString
		verificationToken sql.NullString
		resetToken        sql.NullString
		resetExpires      sql.NullTime
		lastLogin         sql.NullTime
		deletedAt         sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Fullname, &u.Username, &u.Alias, &u.Email, &u.PasswordHash, &role, &roleID,
		&u.EmailVerified, &verificationToken, &u.IsActive, &u.TwoFactorEnabled,
		&resetToken, &resetExpires, &lastLogin, &u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.SystemRole(role)
	u.RoleID = mapNullStringPtr(roleID)
	u.VerificationToken = mapNullStringPtr(verificationToken)
	u.ResetToken = mapNullStringPtr(resetToken)
	u.ResetTokenExpiresAt = mapNullTimePtr(resetExpires)
	u.LastLogin = mapNullTimePtr(lastLogin)
	u.DeletedAt = mapNullTimePtr(deletedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) getOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) list(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username)
}

func (r *usersRepo) GetUserByAlias(ctx context.Context, alias string) (domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE alias = ? AND deleted_at IS NULL`, alias)
}

func (r *usersRepo) GetUserByVerificationToken(ctx context.Context, tokenHash string) (domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = ? AND deleted_at IS NULL`, tokenHash)
}

func (r *usersRepo) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE reset_token = ? AND reset_token_expires_at > ? AND deleted_at IS NULL`,
		tokenHash, utc(now))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, fullname, username, alias, email, password_hash, role, role_id,
			email_verified, verification_token, is_active, is_2fa_enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Fullname, u.Username, u.Alias, u.Email, u.PasswordHash, string(u.Role),
		mapOptionalString(u.RoleID), u.EmailVerified, mapOptionalString(u.VerificationToken),
		u.IsActive, u.TwoFactorEnabled, utc(u.CreatedAt), utc(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) AliasTaken(ctx context.Context, alias string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE alias = ?`, alias).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *usersRepo) Conflicts(ctx context.Context, email, username, alias, exceptID string) (store.Conflicts, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email = ?1, username = ?2, alias = ?3 FROM users
		WHERE (email = ?1 OR username = ?2 OR alias = ?3) AND id <> ?4`,
		email, username, alias, exceptID)
	if err != nil {
		return store.Conflicts{}, err
	}
	defer rows.Close()

	var c store.Conflicts
	for rows.Next() {
		var e, u, a bool
		if err := rows.Scan(&e, &u, &a); err != nil {
			return store.Conflicts{}, err
		}
		c.Email = c.Email || (e && email != "")
		c.Username = c.Username || (u && username != "")
		c.Alias = c.Alias || (a && alias != "")
	}
	return c, rows.Err()
}

func (r *usersRepo) UpdateProfile(ctx context.Context, u domain.User, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET fullname = ?, username = ?, alias = ?, email = ?, updated_at = ? WHERE id = ?`,
		u.Fullname, u.Username, u.Alias, u.Email, utc(now), u.ID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res, nil)
}

func (r *usersRepo) Stats(ctx context.Context) (domain.UserStats, error) {
	var st domain.UserStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_active), 0),
		       COALESCE(SUM(email_verified), 0),
		       COALESCE(SUM(is_2fa_enabled), 0)
		FROM users WHERE deleted_at IS NULL`,
	).Scan(&st.Total, &st.Active, &st.Verified, &st.TwoFactor)
	if err != nil {
		return domain.UserStats{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT role, COUNT(*) FROM users WHERE deleted_at IS NULL GROUP BY role`)
	if err != nil {
		return domain.UserStats{}, err
	}
	defer rows.Close()

	st.ByRole = make(map[domain.SystemRole]int)
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return domain.UserStats{}, err
		}
		st.ByRole[domain.SystemRole(role)] = n
	}
	return st, rows.Err()
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY created_at DESC`)
}

func (r *usersRepo) ListDeletedUsers(ctx context.Context) ([]domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC`)
}

func (r *usersRepo) CountByRoleID(ctx context.Context, roleID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role_id = ?`, roleID).Scan(&n)
	return n, err
}

func (r *usersRepo) CountBySystemRole(ctx context.Context, role domain.SystemRole) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND deleted_at IS NULL`, string(role)).Scan(&n)
	return n, err
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = 1, verification_token = NULL, updated_at = ? WHERE id = ?`,
		utc(now), userID))
}

func (r *usersRepo) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET reset_token = ?, reset_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		tokenHash, utc(expiresAt), utc(now), userID))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, reset_token = NULL, reset_token_expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		hash, utc(now), userID))
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, utc(now), userID))
}

func (r *usersRepo) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET is_2fa_enabled = ?, updated_at = ? WHERE id = ?`, enabled, utc(now), userID))
}

func (r *usersRepo) SetAuthority(
	ctx context.Context,
	userID string,
	role domain.SystemRole,
	roleID *string,
	now time.Time,
) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, role_id = ?, updated_at = ? WHERE id = ?`,
		string(role), mapOptionalString(roleID), utc(now), userID))
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, utc(now), userID))
}

func (r *usersRepo) SoftDelete(ctx context.Context, userID string, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		utc(now), utc(now), userID))
}

func (r *usersRepo) Restore(ctx context.Context, userID string, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = NULL, updated_at = ? WHERE id = ? AND deleted_at IS NOT NULL`,
		utc(now), userID))
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	return requireAffected(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID))
}
