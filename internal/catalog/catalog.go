// Package catalog holds the canonical role templates and the global
// privilege namespace. The catalog is loaded once at process start and is
// immutable afterwards; a malformed catalog is a boot failure, never a
// per-request error.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// PrivilegeDefinition describes one entry of the global privilege namespace.
type PrivilegeDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Category    string `yaml:"category" json:"category"`
}

// RoleTemplate is the canonical specification of a system-managed role.
type RoleTemplate struct {
	Key         string   `yaml:"key" json:"roleKey"`
	DisplayName string   `yaml:"display_name" json:"displayName"`
	Description string   `yaml:"description" json:"description"`
	Required    bool     `yaml:"required" json:"required"`
	Privileges  []string `yaml:"privileges" json:"privileges"`
}

type document struct {
	Version    int                   `yaml:"version"`
	Privileges []PrivilegeDefinition `yaml:"privileges"`
	Roles      []RoleTemplate        `yaml:"roles"`
}

// Catalog is the immutable in-process registry.
type Catalog struct {
	version    int
	templates  []RoleTemplate
	byKey      map[string]RoleTemplate
	privileges []PrivilegeDefinition
	namespace  map[string]PrivilegeDefinition
}

// Default parses the embedded catalog document.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Parse builds and validates a Catalog from a YAML document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if doc.Version <= 0 {
		return nil, fmt.Errorf("catalog: version must be positive, got %d", doc.Version)
	}
	if len(doc.Privileges) == 0 {
		return nil, fmt.Errorf("catalog: privilege namespace is empty")
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("catalog: no role templates defined")
	}

	namespace := make(map[string]PrivilegeDefinition, len(doc.Privileges))
	for _, p := range doc.Privileges {
		if p.Name == "" {
			return nil, fmt.Errorf("catalog: privilege with empty name")
		}
		if _, dup := namespace[p.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate privilege %q", p.Name)
		}
		namespace[p.Name] = p
	}

	byKey := make(map[string]RoleTemplate, len(doc.Roles))
	templates := make([]RoleTemplate, 0, len(doc.Roles))
	for _, tpl := range doc.Roles {
		if tpl.Key == "" {
			return nil, fmt.Errorf("catalog: role template with empty key")
		}
		if tpl.DisplayName == "" {
			return nil, fmt.Errorf("catalog: role template %q has no display name", tpl.Key)
		}
		if _, dup := byKey[tpl.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate role template %q", tpl.Key)
		}
		if len(tpl.Privileges) == 0 {
			return nil, fmt.Errorf("catalog: role template %q has an empty privilege set", tpl.Key)
		}
		seen := make(map[string]struct{}, len(tpl.Privileges))
		privs := make([]string, 0, len(tpl.Privileges))
		for _, name := range tpl.Privileges {
			if _, ok := namespace[name]; !ok {
				return nil, fmt.Errorf("catalog: role template %q references unknown privilege %q", tpl.Key, name)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("catalog: role template %q lists privilege %q twice", tpl.Key, name)
			}
			seen[name] = struct{}{}
			privs = append(privs, name)
		}
		sort.Strings(privs)
		tpl.Privileges = privs
		byKey[tpl.Key] = tpl
		templates = append(templates, tpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Key < templates[j].Key })

	privileges := make([]PrivilegeDefinition, 0, len(namespace))
	for _, p := range namespace {
		privileges = append(privileges, p)
	}
	sort.Slice(privileges, func(i, j int) bool { return privileges[i].Name < privileges[j].Name })

	return &Catalog{
		version:    doc.Version,
		templates:  templates,
		byKey:      byKey,
		privileges: privileges,
		namespace:  namespace,
	}, nil
}

// Version returns the catalog document version.
func (c *Catalog) Version() int {
	return c.version
}

// RoleTemplates returns all templates ordered by role key.
func (c *Catalog) RoleTemplates() []RoleTemplate {
	out := make([]RoleTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}

// Template looks up a role template by its stable key.
func (c *Catalog) Template(roleKey string) (RoleTemplate, bool) {
	tpl, ok := c.byKey[roleKey]
	return tpl, ok
}

// KnownPrivilege reports whether the name exists in the global privilege
// namespace. Names outside the namespace correspond to no capability
// anywhere in the platform.
func (c *Catalog) KnownPrivilege(name string) bool {
	_, ok := c.namespace[name]
	return ok
}

// PrivilegeDef looks up a privilege definition by name.
func (c *Catalog) PrivilegeDef(name string) (PrivilegeDefinition, bool) {
	def, ok := c.namespace[name]
	return def, ok
}

// Privileges returns the full namespace ordered by name.
func (c *Catalog) Privileges() []PrivilegeDefinition {
	out := make([]PrivilegeDefinition, len(c.privileges))
	copy(out, c.privileges)
	return out
}
