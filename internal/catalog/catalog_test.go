package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	templates := c.RoleTemplates()
	require.NotEmpty(t, templates)
	assert.True(t, sort.SliceIsSorted(templates, func(i, j int) bool {
		return templates[i].Key < templates[j].Key
	}), "templates must be ordered by key")

	physician, ok := c.Template("PHYSICIAN")
	require.True(t, ok)
	assert.Equal(t, "Physician", physician.DisplayName)
	assert.Contains(t, physician.Privileges, "meds:prescribe")
	assert.Contains(t, physician.Privileges, "patients:view_list")
	assert.True(t, sort.StringsAreSorted(physician.Privileges))

	admin, ok := c.Template("CLINIC_ADMIN")
	require.True(t, ok)
	assert.True(t, admin.Required)

	assert.True(t, c.KnownPrivilege("meds:prescribe"))
	assert.False(t, c.KnownPrivilege("extra:priv"))
}

func TestTemplatePrivilegesAllInNamespace(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	for _, tpl := range c.RoleTemplates() {
		for _, name := range tpl.Privileges {
			assert.True(t, c.KnownPrivilege(name), "template %s references %s", tpl.Key, name)
		}
	}
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown privilege reference": `
version: 1
privileges:
  - { name: "a:b", category: x }
roles:
  - { key: R, display_name: R, privileges: ["a:b", "c:d"] }
`,
		"duplicate role key": `
version: 1
privileges:
  - { name: "a:b", category: x }
roles:
  - { key: R, display_name: R, privileges: ["a:b"] }
  - { key: R, display_name: R2, privileges: ["a:b"] }
`,
		"empty privilege set": `
version: 1
privileges:
  - { name: "a:b", category: x }
roles:
  - { key: R, display_name: R, privileges: [] }
`,
		"duplicate privilege": `
version: 1
privileges:
  - { name: "a:b", category: x }
  - { name: "a:b", category: y }
roles:
  - { key: R, display_name: R, privileges: ["a:b"] }
`,
		"missing version": `
privileges:
  - { name: "a:b", category: x }
roles:
  - { key: R, display_name: R, privileges: ["a:b"] }
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParseSortsTemplatePrivileges(t *testing.T) {
	doc := `
version: 1
privileges:
  - { name: "z:z", category: x }
  - { name: "a:a", category: x }
roles:
  - { key: R, display_name: R, privileges: ["z:z", "a:a"] }
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	tpl, ok := c.Template("R")
	require.True(t, ok)
	assert.Equal(t, []string{"a:a", "z:z"}, tpl.Privileges)
}
