package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/tenant"
)

func physicianTemplate() catalog.RoleTemplate {
	return catalog.RoleTemplate{
		Key:         "PHYSICIAN",
		DisplayName: "Physician",
		Privileges:  []string{"notes:sign", "patients:view_chart", "schedule:view"},
	}
}

func allKnown(string) bool { return true }

func TestComputeDriftMissingRole(t *testing.T) {
	drift := computeDrift(physicianTemplate(), RoleState{Found: false}, allKnown)

	assert.Equal(t, StatusMissing, drift.Status)
	assert.False(t, drift.Linked)
	assert.Equal(t, []string{"notes:sign", "patients:view_chart", "schedule:view"}, drift.Missing)
	assert.Equal(t, []string{}, drift.Extra)
	assert.Equal(t, []string{}, drift.Unknown)
}

func TestComputeDriftSynced(t *testing.T) {
	state := RoleState{
		Role:       tenant.Role{Name: "Physician", SourceRoleKey: "PHYSICIAN"},
		Found:      true,
		Privileges: []string{"notes:sign", "patients:view_chart", "schedule:view"},
	}
	drift := computeDrift(physicianTemplate(), state, allKnown)

	assert.Equal(t, StatusSynced, drift.Status)
	assert.True(t, drift.Linked)
	assert.Empty(t, drift.Missing)
	assert.Empty(t, drift.Extra)
}

func TestComputeDriftDivergentPrivileges(t *testing.T) {
	state := RoleState{
		Role:       tenant.Role{Name: "Physician", SourceRoleKey: "PHYSICIAN"},
		Found:      true,
		Privileges: []string{"schedule:view", "users:manage", "legacy.rx.v1"},
	}
	known := func(name string) bool { return name != "legacy.rx.v1" }
	drift := computeDrift(physicianTemplate(), state, known)

	assert.Equal(t, StatusDrifted, drift.Status)
	assert.Equal(t, []string{"notes:sign", "patients:view_chart"}, drift.Missing)
	assert.Equal(t, []string{"legacy.rx.v1", "users:manage"}, drift.Extra)
	assert.Equal(t, []string{"legacy.rx.v1"}, drift.Unknown)
}

func TestComputeDriftUnlinkedButMatching(t *testing.T) {
	// An unlinked role with an exact privilege match still counts as
	// SYNCED; linkage is reported separately.
	state := RoleState{
		Role:       tenant.Role{Name: "Physician"},
		Found:      true,
		Privileges: []string{"notes:sign", "patients:view_chart", "schedule:view"},
	}
	drift := computeDrift(physicianTemplate(), state, allKnown)

	assert.Equal(t, StatusSynced, drift.Status)
	assert.False(t, drift.Linked)
}
