// Package access decides what an operator is allowed to see.
package access

import "strings"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
	RoleDebug  Role = "debug"
)

type UIMode string

const (
	ModeProd  UIMode = "prod"
	ModeDebug UIMode = "debug"
)

// ParseUIMode maps anything other than "debug" to prod.
func ParseUIMode(s string) UIMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeDebug)) {
		return ModeDebug
	}
	return ModeProd
}

// ParseRoles reads a comma separated role list. Unknown names are kept so the
// backend can interpret them; an empty list means viewer.
func ParseRoles(csv string) []Role {
	var out []Role
	for _, p := range strings.Split(csv, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, Role(p))
		}
	}
	if len(out) == 0 {
		return []Role{RoleViewer}
	}
	return out
}

// CanShowDebug reports whether the debug/trace panel may be shown at all.
// The user's own toggle is applied separately.
func CanShowDebug(roles []Role, mode UIMode) bool {
	if mode == ModeDebug {
		return true
	}
	for _, r := range roles {
		if r == RoleAdmin || r == RoleDebug {
			return true
		}
	}
	return false
}
