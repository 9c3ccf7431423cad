package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
)

// PermissionService resolves what a user may do. Resolution order is fixed:
// root bypass, then the user's override, then the role named by the user's
// authority.
type PermissionService struct {
	Store    store.Store
	Activity *ActivityService
	Now      func() time.Time
}

func (s *PermissionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// HasPermission reports whether userID holds permission. Unknown users and
// unresolvable roles yield false without an error.
func (s *PermissionService) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}

	if u.Role == domain.RoleRoot {
		return true, nil
	}

	override, err := s.Store.UserPermissions().GetOverride(ctx, userID, permission)
	switch {
	case err == nil:
		return override.IsGranted, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, fmt.Errorf("failed to load permission override: %w", err)
	}

	roleID, ok, err := s.resolveRoleID(ctx, u.Authority())
	if err != nil || !ok {
		return false, err
	}

	has, err := s.Store.Roles().RoleHasPermission(ctx, roleID, permission)
	if err != nil {
		return false, fmt.Errorf("failed to check role permission: %w", err)
	}
	return has, nil
}

// HasAnyPermission short-circuits on the first held permission.
func (s *PermissionService) HasAnyPermission(ctx context.Context, userID string, permissions ...string) (bool, error) {
	for _, p := range permissions {
		ok, err := s.HasPermission(ctx, userID, p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions short-circuits on the first missing permission.
func (s *PermissionService) HasAllPermissions(ctx context.Context, userID string, permissions ...string) (bool, error) {
	for _, p := range permissions {
		ok, err := s.HasPermission(ctx, userID, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EffectivePermissions returns the role's permissions with the user's
// overrides applied. Root receives the whole catalog.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return []domain.Permission{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if u.Role == domain.RoleRoot {
		all, err := s.Store.Permissions().ListPermissions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list permissions: %w", err)
		}
		return all, nil
	}

	var perms []domain.Permission
	roleID, ok, err := s.resolveRoleID(ctx, u.Authority())
	if err != nil {
		return nil, err
	}
	if ok {
		perms, err = s.Store.Roles().ListRolePermissions(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("failed to list role permissions: %w", err)
		}
	}

	overrides, err := s.Store.UserPermissions().ListOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission overrides: %w", err)
	}

	held := make(map[string]bool, len(perms))
	for _, p := range perms {
		held[p.ID] = true
	}

	revoked := make(map[string]bool)
	for _, o := range overrides {
		if !o.IsGranted {
			revoked[o.PermissionID] = true
			continue
		}
		if held[o.PermissionID] {
			continue
		}
		p, err := s.Store.Permissions().GetPermissionByID(ctx, o.PermissionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load granted permission: %w", err)
		}
		perms = append(perms, p)
		held[p.ID] = true
	}

	out := make([]domain.Permission, 0, len(perms))
	for _, p := range perms {
		if !revoked[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// EffectivePermissionNames is EffectivePermissions reduced to names.
func (s *PermissionService) EffectivePermissionNames(ctx context.Context, userID string) ([]string, error) {
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names, nil
}

// Overrides lists the explicit grants and revokes of a user.
func (s *PermissionService) Overrides(ctx context.Context, userID string) ([]domain.UserPermission, error) {
	return s.Store.UserPermissions().ListOverrides(ctx, userID)
}

// Grant gives userID the permission regardless of role.
func (s *PermissionService) Grant(ctx context.Context, actor domain.AuthContext, userID, permission string) error {
	return s.setOverride(ctx, actor, userID, permission, true)
}

// Revoke removes the permission from userID regardless of role.
func (s *PermissionService) Revoke(ctx context.Context, actor domain.AuthContext, userID, permission string) error {
	return s.setOverride(ctx, actor, userID, permission, false)
}

// Clear drops the override so the role decides again.
func (s *PermissionService) Clear(ctx context.Context, actor domain.AuthContext, userID, permission string) error {
	p, err := s.lookup(ctx, userID, permission)
	if err != nil {
		return err
	}

	err = s.Store.UserPermissions().DeleteOverride(ctx, userID, p.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to clear override: %w", err)
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityOverrideCleared,
		fmt.Sprintf("Cleared override of %s", p.Name), actor.IPAddress,
		map[string]any{"target_user_id": userID, "permission": p.Name})
	return nil
}

func (s *PermissionService) setOverride(
	ctx context.Context,
	actor domain.AuthContext,
	userID, permission string,
	granted bool,
) error {
	p, err := s.lookup(ctx, userID, permission)
	if err != nil {
		return err
	}

	up := domain.UserPermission{
		UserID:       userID,
		PermissionID: p.ID,
		IsGranted:    granted,
		CreatedAt:    s.now(),
	}
	if actor.UserID != "" {
		by := actor.UserID
		up.GrantedBy = &by
	}
	if err := s.Store.UserPermissions().UpsertOverride(ctx, up); err != nil {
		return fmt.Errorf("failed to store override: %w", err)
	}

	s.Activity.LogUser(ctx, actor.UserID, domain.ActivityOverrideSet,
		fmt.Sprintf("Set override of %s", p.Name), actor.IPAddress,
		map[string]any{"target_user_id": userID, "permission": p.Name, "granted": granted})
	return nil
}

func (s *PermissionService) lookup(ctx context.Context, userID, permission string) (domain.Permission, error) {
	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Permission{}, ErrUserNotFound
		}
		return domain.Permission{}, fmt.Errorf("failed to load user: %w", err)
	}

	p, err := s.Store.Permissions().GetPermissionByName(ctx, permission)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Permission{}, ErrPermissionNotFound
	}
	if err != nil {
		return domain.Permission{}, fmt.Errorf("failed to load permission: %w", err)
	}
	return p, nil
}

// resolveRoleID maps an authority to the role row consulted for permissions.
// A system role resolves only to a row flagged as a system role.
func (s *PermissionService) resolveRoleID(ctx context.Context, a domain.Authority) (string, bool, error) {
	if id, ok := a.CustomRoleID(); ok {
		return id, true, nil
	}

	name, ok := a.SystemRole()
	if !ok {
		return "", false, nil
	}

	role, err := s.Store.Roles().GetSystemRoleByName(ctx, string(name))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve system role: %w", err)
	}
	return role.ID, true, nil
}
