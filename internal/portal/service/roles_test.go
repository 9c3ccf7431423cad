package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/stretchr/testify/require"
)

func TestSystemRolesAreImmutable(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)
	actor := e.actor(root)

	display := "Renamed"
	active := false
	viewLogs := e.permissionID(t, "view_logs")

	for _, name := range domain.SystemRoles {
		t.Run(string(name), func(t *testing.T) {
			role := e.systemRole(t, name)
			before, err := e.roles.RolePermissions(ctx, role.ID)
			require.NoError(t, err)

			_, err = e.roles.UpdateRole(ctx, actor, role.ID, domain.RoleChanges{DisplayName: &display, IsActive: &active})
			require.ErrorIs(t, err, ErrSystemRoleProtected)

			require.ErrorIs(t, e.roles.DeleteRole(ctx, actor, role.ID), ErrSystemRoleProtected)
			require.ErrorIs(t, e.roles.AssignPermissions(ctx, actor, role.ID, []string{viewLogs}), ErrSystemRoleProtected)
			require.ErrorIs(t, e.roles.AssignPermissions(ctx, actor, role.ID, nil), ErrSystemRoleProtected)

			after, err := e.roles.GetRole(ctx, role.ID)
			require.NoError(t, err)
			require.Equal(t, role.DisplayName, after.DisplayName)
			require.True(t, after.IsActive)

			perms, err := e.roles.RolePermissions(ctx, role.ID)
			require.NoError(t, err)
			require.Equal(t, permissionNames(before), permissionNames(perms))
		})
	}
}

func TestCreateRole(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)

	r, err := e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: " Editor ", DisplayName: "Editor"})
	require.NoError(t, err)
	require.Equal(t, "editor", r.Name)
	require.False(t, r.IsSystemRole)
	require.True(t, r.IsActive)

	_, err = e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "editor", DisplayName: "Again"})
	require.ErrorIs(t, err, ErrRoleNameTaken)

	// A custom role may not shadow a system role name.
	_, err = e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "admin", DisplayName: "Admin"})
	require.ErrorIs(t, err, ErrRoleNameTaken)

	_, err = e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "bad name!", DisplayName: ""})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "display_name")

	roles, err := e.roles.ListRoles(ctx, false)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	roles, err = e.roles.ListRoles(ctx, true)
	require.NoError(t, err)
	require.Len(t, roles, 5)
	require.True(t, roles[0].IsSystemRole, "system roles are listed first")
}

func TestUpdateRoleKeepsName(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)

	r, err := e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "support", DisplayName: "Support"})
	require.NoError(t, err)

	display := "Customer support"
	desc := "Handles tickets"
	inactive := false
	updated, err := e.roles.UpdateRole(ctx, e.actor(root), r.ID, domain.RoleChanges{
		DisplayName: &display,
		Description: &desc,
		IsActive:    &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, "support", updated.Name)
	require.Equal(t, display, updated.DisplayName)
	require.False(t, updated.IsActive)

	got, err := e.roles.GetRole(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "support", got.Name)
	require.Equal(t, desc, got.Description)
	require.False(t, got.IsSystemRole)

	_, err = e.roles.UpdateRole(ctx, e.actor(root), "missing", domain.RoleChanges{})
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestDeleteRoleGuard(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)
	u := e.createUser(t, "erin", domain.RoleUser)

	r, err := e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "temp", DisplayName: "Temp"})
	require.NoError(t, err)
	require.NoError(t, e.roles.AssignPermissions(ctx, e.actor(root), r.ID, []string{e.permissionID(t, "view_logs")}))
	require.NoError(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, domain.RoleUser, &r.ID))

	n, err := e.roles.UserCount(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.ErrorIs(t, e.roles.DeleteRole(ctx, e.actor(root), r.ID), ErrRoleInUse)
	_, err = e.roles.GetRole(ctx, r.ID)
	require.NoError(t, err, "a refused delete leaves the role in place")

	require.NoError(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, domain.RoleUser, nil))
	require.NoError(t, e.roles.DeleteRole(ctx, e.actor(root), r.ID))

	_, err = e.roles.GetRole(ctx, r.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestAssignPermissionsReplacesAtomically(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)

	r, err := e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "ops", DisplayName: "Ops"})
	require.NoError(t, err)

	logs := e.permissionID(t, "view_logs")
	security := e.permissionID(t, "manage_security")

	require.NoError(t, e.roles.AssignPermissions(ctx, e.actor(root), r.ID, []string{logs, security, logs}))
	ids, err := e.roles.PermissionIDs(ctx, r.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{logs, security}, ids)

	// An unknown id aborts the whole replacement.
	err = e.roles.AssignPermissions(ctx, e.actor(root), r.ID, []string{logs, "missing"})
	require.ErrorIs(t, err, ErrPermissionNotFound)
	ids, err = e.roles.PermissionIDs(ctx, r.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{logs, security}, ids)

	// An empty set is a real clear.
	require.NoError(t, e.roles.AssignPermissions(ctx, e.actor(root), r.ID, []string{}))
	ids, err = e.roles.PermissionIDs(ctx, r.ID)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestPermissionsByCategory(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	groups, err := e.roles.PermissionsByCategory(ctx)
	require.NoError(t, err)

	byCat := make(map[string][]string)
	for _, g := range groups {
		byCat[g.Category] = permissionNames(g.Permissions)
	}
	require.ElementsMatch(t, []string{"manage_users", "manage_roles"}, byCat["users"])
	require.Contains(t, byCat["security"], "manage_2fa")

	// Uncategorised permissions land in the default bucket.
	require.NoError(t, e.store.Permissions().CreatePermission(ctx, domain.Permission{
		ID: "01JPERMOTHER0000000000000", Name: "misc", DisplayName: "Misc", CreatedAt: e.clock.Now(),
	}))
	groups, err = e.roles.PermissionsByCategory(ctx)
	require.NoError(t, err)

	var found bool
	for _, g := range groups {
		if g.Category == domain.DefaultPermissionCategory {
			found = true
			require.Equal(t, []string{"misc"}, permissionNames(g.Permissions))
		}
	}
	require.True(t, found)
}

func TestCustomRoleScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)

	now := e.clock.Now()
	require.NoError(t, e.store.Permissions().CreatePermission(ctx, domain.Permission{
		ID: "01JPERMEDIT00000000000000", Name: "edit_content", DisplayName: "Edit content",
		Category: "content", CreatedAt: now,
	}))

	editor, err := e.roles.CreateRole(ctx, e.actor(root), domain.RoleDraft{Name: "editor", DisplayName: "Editor"})
	require.NoError(t, err)
	require.NoError(t, e.roles.AssignPermissions(ctx, e.actor(root), editor.ID, []string{e.permissionID(t, "edit_content")}))

	u := e.createUser(t, "frank", domain.RoleUser)
	require.NoError(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, domain.RoleUser, &editor.ID))

	ok, err := e.permissions.HasPermission(ctx, u.ID, "edit_content")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.permissions.HasPermission(ctx, u.ID, "manage_users")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetUserAuthorityValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	root := e.createUser(t, "root", domain.RoleRoot)
	u := e.createUser(t, "gina", domain.RoleUser)

	admin := e.systemRole(t, domain.RoleAdmin)
	var verr *ValidationError
	require.ErrorAs(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, domain.RoleUser, &admin.ID), &verr)
	require.ErrorAs(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, "wizard", nil), &verr)

	missing := "missing"
	require.ErrorIs(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, domain.RoleUser, &missing), ErrRoleNotFound)
	require.ErrorIs(t, e.roles.SetUserAuthority(ctx, e.actor(root), "nobody", domain.RoleAdmin, nil), ErrUserNotFound)

	require.NoError(t, e.roles.SetUserAuthority(ctx, e.actor(root), u.ID, domain.RolePersonal, nil))
	got, err := e.users.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RolePersonal, got.Role)
	require.Nil(t, got.RoleID)
}
