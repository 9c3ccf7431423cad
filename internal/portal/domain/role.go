package domain

import "time"

type Role struct {
	ID           string
	Name         string // immutable after creation
	DisplayName  string
	Description  string
	IsSystemRole bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DefaultPermissionCategory is the bucket for permissions without a category.
const DefaultPermissionCategory = "other"

type Permission struct {
	ID          string
	Name        string // stable identifier used in code, e.g. manage_users
	DisplayName string
	Category    string
	Description string
	CreatedAt   time.Time
}

// CategoryOrDefault returns the grouping bucket for the permission.
func (p Permission) CategoryOrDefault() string {
	if p.Category == "" {
		return DefaultPermissionCategory
	}
	return p.Category
}

type RolePermission struct {
	RoleID       string
	PermissionID string
	GrantedBy    *string
	CreatedAt    time.Time
}

// UserPermission is a per-user override. It always wins over the role.
type UserPermission struct {
	UserID         string
	PermissionID   string
	PermissionName string
	IsGranted      bool
	GrantedBy      *string
	CreatedAt      time.Time
}

// PermissionGroup is one category of the permission catalog.
type PermissionGroup struct {
	Category    string
	Permissions []Permission
}

// RoleDraft holds the caller-controlled fields of a new role.
type RoleDraft struct {
	Name        string
	DisplayName string
	Description string
}

// RoleChanges holds the editable fields of a role. Name and the system flag
// are intentionally absent.
type RoleChanges struct {
	DisplayName *string
	Description *string
	IsActive    *bool
}
