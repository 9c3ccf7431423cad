package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func createUser(t *testing.T, s *Store, username string) domain.User {
	t.Helper()

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		Fullname:     "Test " + username,
		Username:     username,
		Alias:        username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsersUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice := createUser(t, s, "alice")

	dup := alice
	dup.ID = idx.New().String()
	dup.Username = "alice2"
	dup.Alias = "alice2"
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	taken, err := s.Users().AliasTaken(ctx, "alice")
	require.NoError(t, err)
	require.True(t, taken)

	_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsersSoftDeleteHidesLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	require.NoError(t, s.Users().SoftDelete(ctx, alice.ID, now))
	require.ErrorIs(t, s.Users().SoftDelete(ctx, alice.ID, now), store.ErrNotFound)

	_, err := s.Users().GetUserByEmail(ctx, alice.Email)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted())

	deleted, err := s.Users().ListDeletedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	require.NoError(t, s.Users().Restore(ctx, alice.ID, now))
	_, err = s.Users().GetUserByEmail(ctx, alice.Email)
	require.NoError(t, err)
}

func TestUsersResetTokenExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	require.NoError(t, s.Users().SetResetToken(ctx, alice.ID, "fp", now.Add(time.Hour), now))

	got, err := s.Users().GetUserByResetToken(ctx, "fp", now)
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.ID)

	_, err = s.Users().GetUserByResetToken(ctx, "fp", now.Add(2*time.Hour))
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Users().UpdatePasswordHash(ctx, alice.ID, "new-hash", now))
	got, err = s.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.Nil(t, got.ResetToken)
}

func TestRolePermissions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	role := domain.Role{
		ID: idx.New().String(), Name: "support", DisplayName: "Support",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.Roles().CreateRole(ctx, role))

	perm := domain.Permission{ID: idx.New().String(), Name: "view_logs", DisplayName: "View logs", CreatedAt: now}
	require.NoError(t, s.Permissions().CreatePermission(ctx, perm))

	require.NoError(t, s.Roles().AddRolePermission(ctx, domain.RolePermission{
		RoleID: role.ID, PermissionID: perm.ID, CreatedAt: now,
	}))
	require.ErrorIs(t, s.Roles().AddRolePermission(ctx, domain.RolePermission{
		RoleID: role.ID, PermissionID: perm.ID, CreatedAt: now,
	}), store.ErrAlreadyExists)

	ok, err := s.Roles().RoleHasPermission(ctx, role.ID, "view_logs")
	require.NoError(t, err)
	require.True(t, ok)

	perms, err := s.Roles().ListRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Equal(t, domain.DefaultPermissionCategory, perms[0].CategoryOrDefault())

	require.NoError(t, s.Roles().ClearRolePermissions(ctx, role.ID))
	ok, err = s.Roles().RoleHasPermission(ctx, role.ID, "view_logs")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Roles().GetSystemRoleByName(ctx, "support")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOverridesUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	perm := domain.Permission{ID: idx.New().String(), Name: "manage_users", DisplayName: "Manage users", CreatedAt: now}
	require.NoError(t, s.Permissions().CreatePermission(ctx, perm))

	up := domain.UserPermission{UserID: alice.ID, PermissionID: perm.ID, IsGranted: true, CreatedAt: now}
	require.NoError(t, s.UserPermissions().UpsertOverride(ctx, up))
	up.IsGranted = false
	require.NoError(t, s.UserPermissions().UpsertOverride(ctx, up))

	overrides, err := s.UserPermissions().ListOverrides(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.False(t, overrides[0].IsGranted)
	require.Equal(t, "manage_users", overrides[0].PermissionName)

	require.NoError(t, s.UserPermissions().DeleteOverride(ctx, alice.ID, perm.ID))
	_, err = s.UserPermissions().GetOverride(ctx, alice.ID, "manage_users")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRateLimitCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	rl := domain.RateLimit{IPAddress: "10.0.0.1", Action: domain.ActionLogin, Attempts: 1, LastAttemptAt: now}
	require.NoError(t, s.RateLimits().CreateRateLimit(ctx, rl))

	got, err := s.RateLimits().IncrementAttempts(ctx, rl.IPAddress, rl.Action, now)
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)

	_, err = s.RateLimits().IncrementAttempts(ctx, "10.0.0.2", rl.Action, now)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.RateLimits().LockUntil(ctx, rl.IPAddress, rl.Action, now.Add(time.Minute)))
	locked, err := s.RateLimits().ListLocked(ctx, now)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	require.True(t, locked[0].LockedAt(now))

	require.NoError(t, s.RateLimits().ClearIP(ctx, rl.IPAddress))
	got, err = s.RateLimits().GetRateLimit(ctx, rl.IPAddress, rl.Action)
	require.NoError(t, err)
	require.Zero(t, got.Attempts)
	require.Nil(t, got.LockedUntil)
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	mk := func(hash string, expires time.Time) domain.UserSession {
		sess := domain.UserSession{
			ID: idx.New().String(), UserID: alice.ID, TokenHash: hash,
			ExpiresAt: expires, IsActive: true, CreatedAt: now,
		}
		require.NoError(t, s.Sessions().CreateSession(ctx, sess))
		return sess
	}

	current := mk("a", now.Add(time.Hour))
	mk("b", now.Add(time.Hour))
	stale := mk("c", now.Add(-time.Minute))

	live, err := s.Sessions().ListLiveSessions(ctx, alice.ID, now)
	require.NoError(t, err)
	require.Len(t, live, 2)

	_, err = s.Sessions().GetLiveSessionByToken(ctx, "c", now)
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.Sessions().DeactivateExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := s.Sessions().GetSessionByID(ctx, stale.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	n, err = s.Sessions().DeactivateOtherSessions(ctx, alice.ID, current.TokenHash)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.Sessions().GetLiveSessionByToken(ctx, "a", now)
	require.NoError(t, err)
}

func TestPendingLoginAttempts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	p := domain.PendingLogin{
		ID: idx.New().String(), TokenHash: "pending", UserID: alice.ID,
		CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, s.MFAPending().CreateLogin(ctx, p))

	got, err := s.MFAPending().IncrementLoginAttempts(ctx, "pending")
	require.NoError(t, err)
	require.Equal(t, 1, got.Attempts)

	_, err = s.MFAPending().GetLiveLogin(ctx, "pending", now.Add(10*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.MFAPending().DeleteExpiredLogins(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestReplaceSetupKeepsOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	for _, secret := range []string{"first", "second"} {
		require.NoError(t, s.MFAPending().ReplaceSetup(ctx, domain.PendingSetup{
			ID: idx.New().String(), UserID: alice.ID, Secret: []byte(secret),
			CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
		}))
	}

	got, err := s.MFAPending().GetLiveSetup(ctx, alice.ID, now)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got.Secret)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.Users().SetTwoFactorEnabled(ctx, alice.ID, true, now))
		return store.ErrNotFound
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Users().GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled)
}

func TestActivityLogMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice")
	now := time.Now().UTC()

	require.NoError(t, s.ActivityLogs().CreateLog(ctx, domain.ActivityLog{
		ID: idx.New().String(), UserID: &alice.ID, Action: domain.ActivityLogin,
		Metadata: map[string]any{"two_factor": true}, IPAddress: "10.0.0.1", CreatedAt: now,
	}))
	require.NoError(t, s.ActivityLogs().CreateLog(ctx, domain.ActivityLog{
		ID: idx.New().String(), Action: domain.ActivityFailedLogin, CreatedAt: now.Add(time.Second),
	}))

	recent, err := s.ActivityLogs().ListRecent(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, domain.ActivityFailedLogin, recent[0].Action)
	require.Nil(t, recent[0].UserID)
	require.Equal(t, alice.Email, recent[1].UserEmail)
	require.Equal(t, true, recent[1].Metadata["two_factor"])

	count, err := s.ActivityLogs().CountLogs(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestAllowedDomains(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d := domain.AllowedDomain{ID: idx.New().String(), Domain: "example.com", IsActive: true, CreatedAt: time.Now()}
	require.NoError(t, s.AllowedDomains().AddDomain(ctx, d))
	require.ErrorIs(t, s.AllowedDomains().AddDomain(ctx, d), store.ErrAlreadyExists)

	ok, err := s.AllowedDomains().IsAllowed(ctx, "example.com")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.AllowedDomains().SetDomainActive(ctx, d.ID, false))
	ok, err = s.AllowedDomains().IsAllowed(ctx, "example.com")
	require.NoError(t, err)
	require.False(t, ok)
}
