// Package governance implements the role governance reconciliation engine:
// drift detection between tenant role state and the canonical catalog, and
// the force-sync repair path that brings a tenant role back to canonical
// without disturbing role identity or user assignments.
package governance

import (
	"errors"

	"github.com/google/uuid"

	"github.com/pagemd/governance/internal/tenant"
)

// DriftStatus classifies one tenant role against its canonical template.
type DriftStatus string

const (
	// StatusMissing means the role was never created in the tenant.
	StatusMissing DriftStatus = "MISSING"
	// StatusDrifted means the role exists but its privilege set diverges.
	StatusDrifted DriftStatus = "DRIFTED"
	// StatusSynced means the role matches canonical exactly.
	StatusSynced DriftStatus = "SYNCED"
)

// RoleDrift is the per-role drift classification. Unknown is always a
// subset of Extra: extra-but-recognized names may be deliberate tenant
// customization, while unknown names match no capability anywhere in the
// platform and are surfaced separately for operator triage.
type RoleDrift struct {
	RoleKey     string      `json:"roleKey"`
	DisplayName string      `json:"displayName"`
	Status      DriftStatus `json:"status"`
	Linked      bool        `json:"linked"`
	Missing     []string    `json:"missing"`
	Extra       []string    `json:"extra"`
	Unknown     []string    `json:"unknown"`
}

// Report is a full drift report for one tenant, one entry per canonical
// role key in key order.
type Report struct {
	TenantID       uuid.UUID   `json:"tenantId"`
	CatalogVersion int         `json:"catalogVersion"`
	Drift          []RoleDrift `json:"drift"`
}

// RoleState is the read-side snapshot of one tenant role.
type RoleState struct {
	Role       tenant.Role
	Found      bool
	Privileges []string
}

var (
	// ErrUnknownRoleKey indicates a role key outside the canonical catalog.
	ErrUnknownRoleKey = errors.New("governance: unknown role key")
	// ErrSyncInProgress indicates another sync currently holds the
	// tenant's lock. Safe to retry with backoff.
	ErrSyncInProgress = errors.New("governance: sync already in progress for tenant")
)
