package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

type activityLogsRepo struct {
	db dbtx
}

const activitySelect = `
	SELECT l.id, l.user_id, l.action, l.description, l.metadata, l.ip_address, l.created_at,
	       COALESCE(u.fullname, ''), COALESCE(u.email, '')
	FROM activity_logs l
	LEFT JOIN users u ON u.id = l.user_id`

func scanActivity(row scanner) (domain.ActivityLog, error) {
	var (
		l        domain.ActivityLog
		userID   sql.NullString
		metadata sql.NullString
	)
	err := row.Scan(&l.ID, &userID, &l.Action, &l.Description, &metadata, &l.IPAddress, &l.CreatedAt,
		&l.UserFullname, &l.UserEmail)
	if err != nil {
		return domain.ActivityLog{}, err
	}
	l.UserID = mapNullStringPtr(userID)
	l.CreatedAt = l.CreatedAt.UTC()
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &l.Metadata); err != nil {
			return domain.ActivityLog{}, fmt.Errorf("decode activity metadata: %w", err)
		}
	}
	return l, nil
}

func (r *activityLogsRepo) CreateLog(ctx context.Context, l domain.ActivityLog) error {
	var metadata sql.NullString
	if len(l.Metadata) > 0 {
		raw, err := json.Marshal(l.Metadata)
		if err != nil {
			return fmt.Errorf("encode activity metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, action, description, metadata, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, mapOptionalString(l.UserID), l.Action, l.Description, metadata, l.IPAddress, utc(l.CreatedAt))
	return mapConstraint(err)
}

func (r *activityLogsRepo) list(ctx context.Context, query string, args ...any) ([]domain.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityLog
	for rows.Next() {
		l, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *activityLogsRepo) ListRecent(ctx context.Context, limit, offset int) ([]domain.ActivityLog, error) {
	return r.list(ctx, activitySelect+` ORDER BY l.created_at DESC, l.id DESC LIMIT ? OFFSET ?`, limit, offset)
}

func (r *activityLogsRepo) ListForUser(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error) {
	return r.list(ctx,
		activitySelect+` WHERE l.user_id = ? ORDER BY l.created_at DESC, l.id DESC LIMIT ?`, userID, limit)
}

func (r *activityLogsRepo) CountLogs(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs`).Scan(&n)
	return n, err
}
