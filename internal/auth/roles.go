// Package auth models desk access control as flat capability sets over a
// closed role enumeration, plus HMAC token verification for live viewer
// connections. Session issuance lives outside this service; tokens are
// only verified here.
package auth

import (
	"errors"
	"fmt"
)

// Role is one of the desk's four access levels.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleTrader Role = "trader"
	RoleRisk   Role = "risk"
	RoleAdmin  Role = "admin"
)

// Permission is a single capability. Roles are sets of permissions, not an
// inheritance hierarchy.
type Permission string

const (
	PermView       Permission = "view"
	PermQuote      Permission = "quote"
	PermTrade      Permission = "trade"
	PermManageRisk Permission = "manage_risk"
	PermAdmin      Permission = "admin"
)

// ErrUnknownRole is returned when parsing a role string that is not part
// of the enumeration.
var ErrUnknownRole = errors.New("auth: unknown role")

var rolePermissions = map[Role]map[Permission]bool{
	RoleViewer: {
		PermView: true,
	},
	RoleTrader: {
		PermView:  true,
		PermQuote: true,
		PermTrade: true,
	},
	RoleRisk: {
		PermView:       true,
		PermManageRisk: true,
	},
	RoleAdmin: {
		PermView:       true,
		PermQuote:      true,
		PermTrade:      true,
		PermManageRisk: true,
		PermAdmin:      true,
	},
}

// Can reports whether the role holds the permission. Unknown roles hold
// nothing.
func (r Role) Can(p Permission) bool {
	return rolePermissions[r][p]
}

// Valid reports whether the role is part of the enumeration.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}
