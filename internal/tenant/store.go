package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx. Every
// store call receives its querier explicitly; the store never captures a
// connection or relies on session state such as search_path, so pooled
// connections can be reused freely between calls.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store executes role and privilege operations against exactly one tenant
// schema. The schema is resolved once from the registry row and baked into
// each statement as a sanitized identifier.
type Store struct {
	schema string
}

// NewStore binds a store to the tenant's resolved schema.
func NewStore(t Tenant) *Store {
	return &Store{schema: pgx.Identifier{t.SchemaName}.Sanitize()}
}

// FetchRole finds the tenant role matching a canonical template: the
// source_role_key hard link wins, then the role key or display name.
// Pre-governance tenants only have the name to go by.
func (s *Store) FetchRole(ctx context.Context, q Querier, roleKey, displayName string) (Role, error) {
	row := q.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, name, COALESCE(description, ''), is_system_role, COALESCE(source_role_key, '')
		 FROM %s.roles
		 WHERE source_role_key = $1 OR name = $1 OR name = $2
		 ORDER BY (source_role_key = $1) DESC NULLS LAST
		 LIMIT 1`, s.schema),
		roleKey, displayName)
	return scanRole(row)
}

// FetchRoleByName finds a role by exact name.
func (s *Store) FetchRoleByName(ctx context.Context, q Querier, name string) (Role, error) {
	row := q.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, name, COALESCE(description, ''), is_system_role, COALESCE(source_role_key, '')
		 FROM %s.roles WHERE name = $1`, s.schema), name)
	return scanRole(row)
}

// CreateRole inserts a system-managed role carrying the template link.
func (s *Store) CreateRole(ctx context.Context, q Querier, name, description, sourceRoleKey string) (Role, error) {
	row := q.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s.roles (name, description, is_system_role, source_role_key)
		 VALUES ($1, $2, TRUE, $3)
		 RETURNING id, name, COALESCE(description, ''), is_system_role, COALESCE(source_role_key, '')`,
		s.schema), name, description, sourceRoleKey)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, fmt.Errorf("tenant: create role %q: %w", name, err)
	}
	return role, nil
}

// LinkRoleToTemplate repairs the hard link and the standard name on an
// existing role. The role id is never changed, so user assignments keep
// resolving.
func (s *Store) LinkRoleToTemplate(ctx context.Context, q Querier, roleID uuid.UUID, sourceRoleKey, name string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(
		`UPDATE %s.roles SET source_role_key = $1, name = $2, is_system_role = TRUE,
		 updated_at = CURRENT_TIMESTAMP WHERE id = $3`, s.schema),
		sourceRoleKey, name, roleID)
	if err != nil {
		return fmt.Errorf("tenant: link role to template: %w", err)
	}
	return nil
}

// FetchOrCreatePrivilege returns the privilege row id for the name,
// inserting it when the tenant has not seen the name before. The upsert
// always returns an id, so two concurrent calls cannot race into an error.
func (s *Store) FetchOrCreatePrivilege(ctx context.Context, q Querier, name, description, category string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s.privileges (name, description, category)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, s.schema),
		name, description, category).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("tenant: ensure privilege %q: %w", name, err)
	}
	return id, nil
}

// LinkPrivilege grants a privilege to a role. Re-linking is a no-op.
func (s *Store) LinkPrivilege(ctx context.Context, q Querier, roleID, privilegeID uuid.UUID) error {
	_, err := q.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s.role_privileges (role_id, privilege_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, s.schema),
		roleID, privilegeID)
	if err != nil {
		return fmt.Errorf("tenant: link privilege: %w", err)
	}
	return nil
}

// UnlinkPrivilegeByName removes the role link for a privilege name. The
// privilege row itself stays; other roles may still reference it.
func (s *Store) UnlinkPrivilegeByName(ctx context.Context, q Querier, roleID uuid.UUID, name string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s.role_privileges rp
		 USING %s.privileges p
		 WHERE rp.role_id = $1 AND rp.privilege_id = p.id AND p.name = $2`,
		s.schema, s.schema),
		roleID, name)
	if err != nil {
		return fmt.Errorf("tenant: unlink privilege %q: %w", name, err)
	}
	return nil
}

// ListLinkedPrivilegeNames returns the names granted to a role, sorted.
func (s *Store) ListLinkedPrivilegeNames(ctx context.Context, q Querier, roleID uuid.UUID) ([]string, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(
		`SELECT p.name
		 FROM %s.role_privileges rp
		 JOIN %s.privileges p ON rp.privilege_id = p.id
		 WHERE rp.role_id = $1`, s.schema, s.schema),
		roleID)
	if err != nil {
		return nil, fmt.Errorf("tenant: list linked privileges: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("tenant: scan privilege name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenant: list linked privileges: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// CountUsersReferencing reports how many user rows point at the role.
func (s *Store) CountUsersReferencing(ctx context.Context, q Querier, roleID uuid.UUID) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s.users WHERE role_id = $1`, s.schema),
		roleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("tenant: count users: %w", err)
	}
	return count, nil
}

// IsUniqueViolation reports whether the error is a unique-constraint race.
// Within a transaction the caller may safely retry the statement.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.SourceRoleKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("tenant: scan role: %w", err)
	}
	return role, nil
}
