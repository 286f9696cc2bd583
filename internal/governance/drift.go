package governance

import (
	"sort"

	"github.com/pagemd/governance/internal/catalog"
)

// computeDrift classifies one tenant role snapshot against its canonical
// template. Pure set arithmetic; callers take the snapshot lock-free and a
// concurrent sync may make it stale, which is fine because repair is
// idempotent and cheap to recompute.
func computeDrift(tpl catalog.RoleTemplate, state RoleState, known func(string) bool) RoleDrift {
	drift := RoleDrift{
		RoleKey:     tpl.Key,
		DisplayName: tpl.DisplayName,
		Missing:     []string{},
		Extra:       []string{},
		Unknown:     []string{},
	}

	if !state.Found {
		drift.Status = StatusMissing
		drift.Missing = append(drift.Missing, tpl.Privileges...)
		sort.Strings(drift.Missing)
		return drift
	}

	drift.Linked = state.Role.SourceRoleKey == tpl.Key

	canonical := make(map[string]struct{}, len(tpl.Privileges))
	for _, name := range tpl.Privileges {
		canonical[name] = struct{}{}
	}
	actual := make(map[string]struct{}, len(state.Privileges))
	for _, name := range state.Privileges {
		actual[name] = struct{}{}
	}

	for _, name := range tpl.Privileges {
		if _, ok := actual[name]; !ok {
			drift.Missing = append(drift.Missing, name)
		}
	}
	for name := range actual {
		if _, ok := canonical[name]; !ok {
			drift.Extra = append(drift.Extra, name)
			if !known(name) {
				drift.Unknown = append(drift.Unknown, name)
			}
		}
	}
	sort.Strings(drift.Missing)
	sort.Strings(drift.Extra)
	sort.Strings(drift.Unknown)

	if len(drift.Missing) == 0 && len(drift.Extra) == 0 {
		drift.Status = StatusSynced
	} else {
		drift.Status = StatusDrifted
	}
	return drift
}
