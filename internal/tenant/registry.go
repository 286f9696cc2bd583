package tenant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagemd/governance/internal/platform/db"
	"github.com/pagemd/governance/migrations"
)

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,40}$`)

// Registry resolves tenant identities against the control-plane tenants
// table and provisions new tenant schemas from the pinned template.
type Registry struct {
	pool *pgxpool.Pool
}

// NewRegistry constructs a Registry.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

const tenantColumns = `id, slug, display_name, schema_name, status, schema_version, created_at, updated_at`

// Resolve returns the tenant registered under the given id.
func (r *Registry) Resolve(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// ResolveSlug returns the tenant registered under the given slug.
func (r *Registry) ResolveSlug(ctx context.Context, slug string) (Tenant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	return scanTenant(row)
}

// List returns all registered tenants ordered by slug.
func (r *Registry) List(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("tenant: list: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tenant: list: %w", err)
	}
	return tenants, nil
}

// Provision creates the tenant schema from the pinned template and registers
// the tenant. The registered schema_version records which template built the
// schema, so later code never has to probe table structure at request time.
func (r *Registry) Provision(ctx context.Context, slug, displayName string) (Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return Tenant{}, ErrInvalidSlug
	}
	schemaName := "tenant_" + slug

	ddl, err := renderTenantTemplate(schemaName)
	if err != nil {
		return Tenant{}, err
	}

	var created Tenant
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range ddl {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("tenant: provision schema %s: %w", schemaName, err)
			}
		}
		row := tx.QueryRow(ctx,
			`INSERT INTO tenants (slug, display_name, schema_name, status, schema_version)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+tenantColumns,
			slug, displayName, schemaName, StatusActive, migrations.TenantSchemaVersion)
		created, err = scanTenant(row)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return Tenant{}, ErrSlugTaken
		}
		return Tenant{}, err
	}
	return created, nil
}

// renderTenantTemplate expands every template file into executable
// statements for one schema, in lexical file order.
func renderTenantTemplate(schemaName string) ([]string, error) {
	entries, err := fs.ReadDir(migrations.Tenant, "tenant")
	if err != nil {
		return nil, fmt.Errorf("tenant: read template: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	quoted := pgx.Identifier{schemaName}.Sanitize()
	var stmts []string
	for _, name := range names {
		raw, err := fs.ReadFile(migrations.Tenant, "tenant/"+name)
		if err != nil {
			return nil, fmt.Errorf("tenant: read template %s: %w", name, err)
		}
		sql := strings.ReplaceAll(string(raw), "{{schema}}", quoted)
		sql = strings.ReplaceAll(sql, "{{schema_raw}}", schemaName)
		stmts = append(stmts, sql)
	}
	return stmts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.DisplayName, &t.SchemaName, &t.Status,
		&t.SchemaVersion, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenant: scan: %w", err)
	}
	return t, nil
}
