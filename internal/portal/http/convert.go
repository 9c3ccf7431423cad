package http

import (
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/pkg/portalapi"
)

func toUserInfo(u domain.User) portalapi.UserInfo {
	return portalapi.UserInfo{
		ID:               u.ID,
		Fullname:         u.Fullname,
		Username:         u.Username,
		Alias:            u.Alias,
		Email:            u.Email,
		Role:             u.Role.String(),
		RoleID:           u.RoleID,
		EmailVerified:    u.EmailVerified,
		IsActive:         u.IsActive,
		TwoFactorEnabled: u.TwoFactorEnabled,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
		DeletedAt:        u.DeletedAt,
	}
}

func toUserInfos(users []domain.User) []portalapi.UserInfo {
	out := make([]portalapi.UserInfo, len(users))
	for i, u := range users {
		out[i] = toUserInfo(u)
	}
	return out
}

func toPermissionInfo(p domain.Permission) portalapi.PermissionInfo {
	return portalapi.PermissionInfo{
		ID:          p.ID,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Category:    p.CategoryOrDefault(),
		Description: p.Description,
	}
}

func toRoleInfo(r domain.Role) portalapi.RoleInfo {
	return portalapi.RoleInfo{
		ID:           r.ID,
		Name:         r.Name,
		DisplayName:  r.DisplayName,
		Description:  r.Description,
		IsSystemRole: r.IsSystemRole,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
	}
}

func toSessionInfo(s domain.UserSession, currentID string) portalapi.SessionInfo {
	dev := domain.ParseDeviceInfo(s.UserAgent, s.IPAddress)
	return portalapi.SessionInfo{
		ID:        s.ID,
		Current:   s.ID == currentID,
		IPAddress: dev.IP,
		OS:        dev.OS,
		Browser:   dev.Browser,
		Device:    dev.DeviceType,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func toActivityEntry(a domain.ActivityLog) portalapi.ActivityEntry {
	return portalapi.ActivityEntry{
		ID:           a.ID,
		UserID:       a.UserID,
		UserFullname: a.UserFullname,
		UserEmail:    a.UserEmail,
		Action:       a.Action,
		Description:  a.Description,
		IPAddress:    a.IPAddress,
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt,
	}
}
