package config

import (
	"fmt"

	"github.com/rhunor/oliehauspma-sub006/pkg/state"
)

// RoleSet maps a role name to its compiled capability bitmap. It is built
// once at load time and read-only afterwards.
type RoleSet map[string]state.Capability

// DefaultRoles covers the three application roles when the config file does
// not override them.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"client":          {"read", "write"},
		"project_manager": {"read", "write", "notify"},
		"super_admin":     {"read", "write", "notify", "admin"},
	}
}

// CompileRoles resolves capability names into bitmaps. An unknown capability
// name is a configuration error, caught at startup rather than at dispatch.
func CompileRoles(roles map[string][]string) (RoleSet, error) {
	if len(roles) == 0 {
		roles = DefaultRoles()
	}

	set := make(RoleSet, len(roles))
	for role, capNames := range roles {
		var bitmap state.Capability
		for _, name := range capNames {
			value, ok := state.BuiltInCaps[name]
			if !ok {
				return nil, fmt.Errorf("role '%s' references unknown capability '%s'", role, name)
			}
			bitmap |= value
		}
		set[role] = bitmap
	}
	return set, nil
}

// Capabilities returns the compiled bitmap for a role. Unknown roles get no
// capabilities, which the auth gate treats as a rejection.
func (r RoleSet) Capabilities(role string) (state.Capability, bool) {
	caps, ok := r[role]
	return caps, ok
}
