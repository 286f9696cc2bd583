// Package migrations ships the pinned SQL schema for the control plane and
// the per-tenant schema template. Every tenant is provisioned from the same
// versioned template; runtime code never probes table structure.
package migrations

import "embed"

// Control holds control-plane migrations applied once per database.
//
//go:embed control/*.sql
var Control embed.FS

// Tenant holds the per-tenant schema template. Statements contain the
// {{schema}} placeholder which is replaced with the quoted tenant schema
// name at provisioning time.
//
//go:embed tenant/*.sql
var Tenant embed.FS

// TenantSchemaVersion is the version recorded on tenants provisioned from
// the current template. Bump together with new tenant/*.sql files.
const TenantSchemaVersion = 1
