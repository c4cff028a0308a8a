// Package guard decides whether a session may see a protected route. Every
// guard kind shares one state machine: pending while the session is still
// loading, then authorized or unauthorized.
package guard

import (
	"slices"

	"github.com/banoo-shop/storefront/internal/storefront_service/domain"
)

type State int

const (
	Pending State = iota
	Authorized
	Unauthorized
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

type Kind int

const (
	KindAuth Kind = iota
	KindRole
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRole:
		return "role"
	case KindPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Reason explains an Unauthorized decision.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonUnauthenticated: nobody is logged in.
	ReasonUnauthenticated
	// ReasonForbidden: logged in, but the role or permissions do not match.
	ReasonForbidden
)

type Policy struct {
	Kind                Kind
	AllowedRoles        []string
	RequiredPermissions []string
	// RequireAll switches permission checks from any-of to all-of.
	RequireAll bool
}

func AuthRequired() Policy { return Policy{Kind: KindAuth} }

func RoleRequired(roles ...string) Policy {
	return Policy{Kind: KindRole, AllowedRoles: roles}
}

func PermissionRequired(requireAll bool, perms ...string) Policy {
	return Policy{Kind: KindPermission, RequiredPermissions: perms, RequireAll: requireAll}
}

type Decision struct {
	State  State
	Reason Reason
}

// Evaluate derives the guard state from a session snapshot.
func Evaluate(p Policy, s domain.Session) Decision {
	if s.IsLoading {
		return Decision{State: Pending}
	}
	if !s.IsAuthenticated || s.User == nil {
		return Decision{State: Unauthorized, Reason: ReasonUnauthenticated}
	}
	if p.allows(s.User) {
		return Decision{State: Authorized}
	}
	return Decision{State: Unauthorized, Reason: ReasonForbidden}
}

func (p Policy) allows(u *domain.User) bool {
	switch p.Kind {
	case KindRole:
		return slices.Contains(p.AllowedRoles, u.Role)
	case KindPermission:
		// An empty requirement list grants access under both modes.
		if len(p.RequiredPermissions) == 0 {
			return true
		}
		if p.RequireAll {
			for _, perm := range p.RequiredPermissions {
				if !u.HasPermission(perm) {
					return false
				}
			}
			return true
		}
		for _, perm := range p.RequiredPermissions {
			if u.HasPermission(perm) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
