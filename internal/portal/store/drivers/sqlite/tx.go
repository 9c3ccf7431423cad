package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/portal/internal/portal/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits or rolls back; the outer DB stays open

// Ping is a no-op for transactions, the connection is already held.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                     { return &usersRepo{db: t.tx} }
func (t *txStore) Roles() store.Roles                     { return &rolesRepo{db: t.tx} }
func (t *txStore) Permissions() store.Permissions         { return &permissionsRepo{db: t.tx} }
func (t *txStore) UserPermissions() store.UserPermissions { return &userPermissionsRepo{db: t.tx} }
func (t *txStore) RateLimits() store.RateLimits           { return &rateLimitsRepo{db: t.tx} }
func (t *txStore) Sessions() store.Sessions               { return &sessionsRepo{db: t.tx} }
func (t *txStore) MFAFactors() store.MFAFactors           { return &mfaFactorsRepo{db: t.tx} }
func (t *txStore) MFAPending() store.MFAPending           { return &mfaPendingRepo{db: t.tx} }
func (t *txStore) ActivityLogs() store.ActivityLogs       { return &activityLogsRepo{db: t.tx} }
func (t *txStore) AllowedDomains() store.AllowedDomains   { return &allowedDomainsRepo{db: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
