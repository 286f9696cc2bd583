package governance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagemd/governance/internal/tenant"
)

// SyncTx exposes the mutation surface available inside one sync
// transaction. Everything either commits together or rolls back together.
type SyncTx interface {
	FetchRole(ctx context.Context, roleKey, displayName string) (tenant.Role, error)
	CreateRole(ctx context.Context, name, description, sourceRoleKey string) (tenant.Role, error)
	LinkRoleToTemplate(ctx context.Context, roleID uuid.UUID, sourceRoleKey, name string) error
	FetchOrCreatePrivilege(ctx context.Context, name, description, category string) (uuid.UUID, error)
	LinkPrivilege(ctx context.Context, roleID, privilegeID uuid.UUID) error
	UnlinkPrivilegeByName(ctx context.Context, roleID uuid.UUID, name string) error
	ListLinkedPrivilegeNames(ctx context.Context, roleID uuid.UUID) ([]string, error)
	CountUsersReferencing(ctx context.Context, roleID uuid.UUID) (int64, error)
}

// RepositoryPort is the persistence contract the service depends on.
type RepositoryPort interface {
	// RoleState reads a lock-free snapshot of one tenant role.
	RoleState(ctx context.Context, t tenant.Tenant, roleKey, displayName string) (RoleState, error)
	// SyncTx runs fn inside one transaction holding the tenant's
	// advisory lock. A contended lock fails immediately with
	// ErrSyncInProgress; nothing is queued.
	SyncTx(ctx context.Context, t tenant.Tenant, fn func(context.Context, SyncTx) error) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RoleState implements RepositoryPort.
func (r *Repository) RoleState(ctx context.Context, t tenant.Tenant, roleKey, displayName string) (RoleState, error) {
	store := tenant.NewStore(t)
	role, err := store.FetchRole(ctx, r.pool, roleKey, displayName)
	if err != nil {
		if errors.Is(err, tenant.ErrRoleNotFound) {
			return RoleState{}, nil
		}
		return RoleState{}, err
	}
	names, err := store.ListLinkedPrivilegeNames(ctx, r.pool, role.ID)
	if err != nil {
		return RoleState{}, err
	}
	return RoleState{Role: role, Found: true, Privileges: names}, nil
}

// SyncTx implements RepositoryPort. The advisory lock is transaction
// scoped: commit or rollback releases it, including on cancellation.
func (r *Repository) SyncTx(ctx context.Context, t tenant.Tenant, fn func(context.Context, SyncTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("governance: begin sync tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked bool
	if err := tx.QueryRow(ctx,
		`SELECT pg_try_advisory_xact_lock($1)`, LockKey(t.ID),
	).Scan(&locked); err != nil {
		return fmt.Errorf("governance: acquire sync lock: %w", err)
	}
	if !locked {
		return ErrSyncInProgress
	}

	wrapper := &syncTx{store: tenant.NewStore(t), tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("governance: commit sync tx: %w", err)
	}
	return nil
}

type syncTx struct {
	store *tenant.Store
	tx    pgx.Tx
}

func (s *syncTx) FetchRole(ctx context.Context, roleKey, displayName string) (tenant.Role, error) {
	return s.store.FetchRole(ctx, s.tx, roleKey, displayName)
}

func (s *syncTx) CreateRole(ctx context.Context, name, description, sourceRoleKey string) (tenant.Role, error) {
	return s.store.CreateRole(ctx, s.tx, name, description, sourceRoleKey)
}

func (s *syncTx) LinkRoleToTemplate(ctx context.Context, roleID uuid.UUID, sourceRoleKey, name string) error {
	return s.store.LinkRoleToTemplate(ctx, s.tx, roleID, sourceRoleKey, name)
}

func (s *syncTx) FetchOrCreatePrivilege(ctx context.Context, name, description, category string) (uuid.UUID, error) {
	return s.store.FetchOrCreatePrivilege(ctx, s.tx, name, description, category)
}

func (s *syncTx) LinkPrivilege(ctx context.Context, roleID, privilegeID uuid.UUID) error {
	return s.store.LinkPrivilege(ctx, s.tx, roleID, privilegeID)
}

func (s *syncTx) UnlinkPrivilegeByName(ctx context.Context, roleID uuid.UUID, name string) error {
	return s.store.UnlinkPrivilegeByName(ctx, s.tx, roleID, name)
}

func (s *syncTx) ListLinkedPrivilegeNames(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	return s.store.ListLinkedPrivilegeNames(ctx, s.tx, roleID)
}

func (s *syncTx) CountUsersReferencing(ctx context.Context, roleID uuid.UUID) (int64, error) {
	return s.store.CountUsersReferencing(ctx, s.tx, roleID)
}
