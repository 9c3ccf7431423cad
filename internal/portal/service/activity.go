package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityService is the audit sink. Writing never fails from the caller's
// point of view; a storage error is logged and dropped.
type ActivityService struct {
	Store store.Store
	Now   func() time.Time
}

func (s *ActivityService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Log records an audit entry. A nil service is a valid no-op sink.
func (s *ActivityService) Log(ctx context.Context, entry domain.ActivityLog) {
	if s == nil || s.Store == nil {
		return
	}

	entry.ID = idx.New().String()
	entry.CreatedAt = s.now()
	if err := s.Store.ActivityLogs().CreateLog(ctx, entry); err != nil {
		slogx.FromContext(ctx).Error("failed to write activity log", "action", entry.Action, "error", err)
	}
}

// LogUser is a shorthand for events attributed to a user.
func (s *ActivityService) LogUser(ctx context.Context, userID, action, description, ip string, metadata map[string]any) {
	var uid *string
	if userID != "" {
		uid = &userID
	}
	s.Log(ctx, domain.ActivityLog{
		UserID:      uid,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		IPAddress:   ip,
	})
}

// Recent returns the newest entries with the user's name and email joined in.
func (s *ActivityService) Recent(ctx context.Context, limit, offset int) ([]domain.ActivityLog, error) {
	logs, err := s.Store.ActivityLogs().ListRecent(ctx, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return logs, nil
}

// ForUser returns the newest entries of one user.
func (s *ActivityService) ForUser(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error) {
	logs, err := s.Store.ActivityLogs().ListForUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list user activity: %w", err)
	}
	return logs, nil
}

func (s *ActivityService) Count(ctx context.Context) (int, error) {
	return s.Store.ActivityLogs().CountLogs(ctx)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultActivityLimit
	case limit > maxActivityLimit:
		return maxActivityLimit
	}
	return limit
}
