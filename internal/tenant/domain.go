// Package tenant provides the control-plane tenant registry and the
// schema-scoped data accessor. One tenant maps to one isolated Postgres
// schema inside the shared physical database.
package tenant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status values for a tenant lifecycle.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Tenant is one clinic's registration in the control plane.
type Tenant struct {
	ID            uuid.UUID `json:"id"`
	Slug          string    `json:"slug"`
	DisplayName   string    `json:"displayName"`
	SchemaName    string    `json:"schemaName"`
	Status        string    `json:"status"`
	SchemaVersion int       `json:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Role is a role row inside a tenant schema.
type Role struct {
	ID            uuid.UUID
	Name          string
	Description   string
	IsSystemRole  bool
	SourceRoleKey string
}

// Privilege is a privilege row inside a tenant schema. Privilege rows are
// schema-local even though names are platform-standard; a tenant may hold
// names absent from the global catalog.
type Privilege struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    string
}

var (
	// ErrNotFound indicates the tenant could not be resolved.
	ErrNotFound = errors.New("tenant: not found")
	// ErrRoleNotFound indicates no matching role row in the tenant schema.
	ErrRoleNotFound = errors.New("tenant: role not found")
	// ErrInvalidSlug indicates a slug that cannot form a schema name.
	ErrInvalidSlug = errors.New("tenant: invalid slug")
	// ErrSlugTaken indicates the slug is already registered.
	ErrSlugTaken = errors.New("tenant: slug already registered")
)
