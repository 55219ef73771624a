package auth

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"lawdesk.org/internal/apperr"
)

// Role is the closed set of permission tiers. The zero value is not a valid role.
type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleLawyer
	RoleAssistant
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleAdmin, RoleLawyer, RoleAssistant}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleLawyer:
		return "lawyer"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleAssistant
}

// ParseRole converts the wire name of a role. Unknown names are a validation error.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "lawyer":
		return RoleLawyer, nil
	case "assistant":
		return RoleAssistant, nil
	}
	return 0, apperr.Validation("invalid_role", "role %q is not one of admin, lawyer, assistant", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("auth: cannot marshal invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role by name.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("auth: invalid role %d", uint8(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("auth: cannot scan %T into Role", src)
	}
}

// In reports whether r is a member of allowed.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
