// Package gate decides whether a UI fragment should be shown for a set of
// granted permissions.
//
// The gate is a presentation convenience. It hides affordances the user
// cannot use; it is never a security boundary. The server re-checks every
// operation with rbac.Enforcer.
package gate

import (
	"html/template"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Decision is the outcome of a gate check
type Decision int

const (
	// Deny renders the fallback
	Deny Decision = iota
	// Allow renders the gated content
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Decide returns Allow iff every required permission is granted. An empty
// requirement always allows; an empty granted set denies any non-empty
// requirement.
func Decide(granted rbac.PermissionSet, required []rbac.Permission) Decision {
	if granted.HasAll(required...) {
		return Allow
	}
	return Deny
}

// Gate binds a granted permission set, typically the one loaded from the
// permission query endpoint for the current user
type Gate struct {
	granted rbac.PermissionSet
}

// New creates a gate over granted
func New(granted rbac.PermissionSet) *Gate {
	return &Gate{granted: granted}
}

// Decide checks required against the bound set
func (g *Gate) Decide(required ...rbac.Permission) Decision {
	return Decide(g.granted, required)
}

// Render returns content when required is satisfied and fallback otherwise
func (g *Gate) Render(required []rbac.Permission, content, fallback template.HTML) template.HTML {
	if g.Decide(required...) == Allow {
		return content
	}
	return fallback
}

// FuncMap exposes the gate to html/template:
//
//	{{if can "products.create"}}<button>New product</button>{{end}}
//	{{if can "users.read" "users.update"}}...{{end}}
//
// can is variadic with AND semantics.
func FuncMap(granted rbac.PermissionSet) template.FuncMap {
	g := New(granted)
	return template.FuncMap{
		"can": func(perms ...string) bool {
			required := make([]rbac.Permission, len(perms))
			for i, p := range perms {
				required[i] = rbac.Permission(p)
			}
			return g.Decide(required...) == Allow
		},
	}
}
