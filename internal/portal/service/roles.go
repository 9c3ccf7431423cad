package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/idx"
)

var roleNamePattern = regexp.MustCompile(`^[a-z0-9_]{2,50}$`)

// RolesService manages custom roles and their permission sets. System roles
// are read-only here; they are provisioned by the seed catalog.
type RolesService struct {
	Store    store.Store
	Activity *ActivityService
	Now      func() time.Time
}

func (s *RolesService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GetRole fetches a role by id.
func (s *RolesService) GetRole(ctx context.Context, roleID string) (domain.Role, error) {
	r, err := s.Store.Roles().GetRoleByID(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, ErrRoleNotFound
	}
	return r, err
}

// ListRoles returns custom roles, plus the system roles when includeSystem.
func (s *RolesService) ListRoles(ctx context.Context, includeSystem bool) ([]domain.Role, error) {
	return s.Store.Roles().ListRoles(ctx, includeSystem)
}

// CreateRole inserts an active custom role. The system flag is never taken
// from the caller.
func (s *RolesService) CreateRole(ctx context.Context, actor domain.AuthContext, draft domain.RoleDraft) (domain.Role, error) {
	name := strings.ToLower(strings.TrimSpace(draft.Name))
	display := strings.TrimSpace(draft.DisplayName)

	verr := &ValidationError{}
	if !roleNamePattern.MatchString(name) {
		verr.add("name", "must be 2-50 characters of a-z, 0-9 or underscore")
	}
	if display == "" {
		verr.add("display_name", "is required")
	}
	if err := verr.orNil(); err != nil {
		return domain.Role{}, err
	}

	now := s.now()
	role := domain.Role{
		ID:           idx.New().String(),
		Name:         name,
		DisplayName:  display,
		Description:  strings.TrimSpace(draft.Description),
		IsSystemRole: false,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Roles().CreateRole(ctx, role); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Role{}, ErrRoleNameTaken
		}
		return domain.Role{}, fmt.Errorf("failed to create role: %w", err)
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityRoleCreated,
		"Created role "+role.Name, actor.IPAddress, map[string]any{"role_id": role.ID})
	return role, nil
}

// UpdateRole applies the editable fields. The name and the system flag
// cannot change.
func (s *RolesService) UpdateRole(
	ctx context.Context,
	actor domain.AuthContext,
	roleID string,
	changes domain.RoleChanges,
) (domain.Role, error) {
	role, err := s.mutableRole(ctx, roleID)
	if err != nil {
		return domain.Role{}, err
	}

	if changes.DisplayName != nil {
		display := strings.TrimSpace(*changes.DisplayName)
		if display == "" {
			return domain.Role{}, &ValidationError{Fields: map[string]string{"display_name": "is required"}}
		}
		role.DisplayName = display
	}
	if changes.Description != nil {
		role.Description = strings.TrimSpace(*changes.Description)
	}
	if changes.IsActive != nil {
		role.IsActive = *changes.IsActive
	}
	role.UpdatedAt = s.now()

	if err := s.Store.Roles().UpdateRole(ctx, role); err != nil {
		return domain.Role{}, fmt.Errorf("failed to update role: %w", err)
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityRoleUpdated,
		"Updated role "+role.Name, actor.IPAddress, map[string]any{"role_id": role.ID})
	return role, nil
}

// DeleteRole removes a custom role nobody references.
func (s *RolesService) DeleteRole(ctx context.Context, actor domain.AuthContext, roleID string) error {
	role, err := s.mutableRole(ctx, roleID)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Users().CountByRoleID(ctx, roleID)
		if err != nil {
			return fmt.Errorf("failed to count role users: %w", err)
		}
		if n > 0 {
			return ErrRoleInUse
		}
		if err := tx.Roles().ClearRolePermissions(ctx, roleID); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		if err := tx.Roles().DeleteRole(ctx, roleID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityRoleDeleted,
		"Deleted role "+role.Name, actor.IPAddress, map[string]any{"role_id": role.ID})
	return nil
}

// AssignPermissions replaces the whole permission set of a custom role in one
// transaction. An empty list clears it.
func (s *RolesService) AssignPermissions(
	ctx context.Context,
	actor domain.AuthContext,
	roleID string,
	permissionIDs []string,
) error {
	role, err := s.mutableRole(ctx, roleID)
	if err != nil {
		return err
	}

	now := s.now()
	var grantedBy *string
	if actor.UserID != "" {
		by := actor.UserID
		grantedBy = &by
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Roles().ClearRolePermissions(ctx, roleID); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}

		seen := make(map[string]bool, len(permissionIDs))
		for _, pid := range permissionIDs {
			if seen[pid] {
				continue
			}
			seen[pid] = true

			if _, err := tx.Permissions().GetPermissionByID(ctx, pid); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrPermissionNotFound, pid)
				}
				return fmt.Errorf("failed to load permission: %w", err)
			}

			err := tx.Roles().AddRolePermission(ctx, domain.RolePermission{
				RoleID:       roleID,
				PermissionID: pid,
				GrantedBy:    grantedBy,
				CreatedAt:    now,
			})
			if err != nil {
				return fmt.Errorf("failed to assign permission: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityRolePermissions,
		"Updated permissions of role "+role.Name, actor.IPAddress,
		map[string]any{"role_id": role.ID, "permission_count": len(permissionIDs)})
	return nil
}

// RolePermissions lists the permissions attached to a role.
func (s *RolesService) RolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.Store.Roles().ListRolePermissions(ctx, roleID)
}

// PermissionIDs lists the ids attached to a role, for form pre-selection.
func (s *RolesService) PermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	perms, err := s.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	return ids, nil
}

// UserCount reports how many users reference the custom role.
func (s *RolesService) UserCount(ctx context.Context, roleID string) (int, error) {
	return s.Store.Users().CountByRoleID(ctx, roleID)
}

// PermissionsByCategory groups the catalog by category, in catalog order.
func (s *RolesService) PermissionsByCategory(ctx context.Context) ([]domain.PermissionGroup, error) {
	perms, err := s.Store.Permissions().ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	var groups []domain.PermissionGroup
	index := make(map[string]int)
	for _, p := range perms {
		cat := p.CategoryOrDefault()
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, domain.PermissionGroup{Category: cat})
		}
		groups[i].Permissions = append(groups[i].Permissions, p)
	}
	return groups, nil
}

// SetUserAuthority points a user at a system role or, when roleID is given,
// at a custom role. Only root may grant root or change a root account.
func (s *RolesService) SetUserAuthority(
	ctx context.Context,
	actor domain.AuthContext,
	userID string,
	role domain.SystemRole,
	roleID *string,
) error {
	if roleID != nil && *roleID == "" {
		roleID = nil
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return &ValidationError{Fields: map[string]string{"role": "unknown system role"}}
	}
	if role == domain.RoleRoot && actor.Role != domain.RoleRoot {
		return ErrRootRequired
	}

	target, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if err := guardRoot(actor, target); err != nil {
		return err
	}

	if roleID != nil {
		r, err := s.GetRole(ctx, *roleID)
		if err != nil {
			return err
		}
		if r.IsSystemRole {
			return &ValidationError{Fields: map[string]string{"role_id": "must reference a custom role"}}
		}
	}

	if err := s.Store.Users().SetAuthority(ctx, userID, role, roleID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update user role: %w", err)
	}

	meta := map[string]any{"target_user_id": userID, "role": string(role)}
	if roleID != nil {
		meta["role_id"] = *roleID
	}
	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityUserRoleChanged, "Changed user role", actor.IPAddress, meta)
	return nil
}

// mutableRole loads a role and rejects system roles.
func (s *RolesService) mutableRole(ctx context.Context, roleID string) (domain.Role, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return domain.Role{}, err
	}
	if role.IsSystemRole {
		return domain.Role{}, ErrSystemRoleProtected
	}
	return role, nil
}
