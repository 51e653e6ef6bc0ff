package rbac

import (
	"fmt"
	"strings"
)

// Vocabulary is an optional closed list of permissions an application
// declares. Resolution ignores it; write paths use it to reject typos.
type Vocabulary struct {
	known map[Permission]struct{}
}

// NewVocabulary builds a vocabulary from perms. An empty vocabulary accepts
// every permission.
func NewVocabulary(perms ...Permission) *Vocabulary {
	v := &Vocabulary{known: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		if p != "" {
			v.known[p] = struct{}{}
		}
	}
	return v
}

// Open reports whether the vocabulary accepts any permission
func (v *Vocabulary) Open() bool {
	return v == nil || len(v.known) == 0
}

// Contains reports whether p is declared
func (v *Vocabulary) Contains(p Permission) bool {
	if v.Open() {
		return true
	}
	_, ok := v.known[p]
	return ok
}

// Permissions returns the declared permissions, sorted
func (v *Vocabulary) Permissions() []Permission {
	if v == nil {
		return nil
	}
	list := make([]Permission, 0, len(v.known))
	for p := range v.known {
		list = append(list, p)
	}
	return NewPermissionSet(list...).List()
}

// Validate returns an error naming every permission outside the vocabulary
func (v *Vocabulary) Validate(perms []Permission) error {
	var unknown []string
	for _, p := range perms {
		if p == "" {
			unknown = append(unknown, `""`)
			continue
		}
		if !v.Contains(p) {
			unknown = append(unknown, string(p))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown permissions: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// DefaultVocabulary is the permission set the bundled demo application
// declares, plus the role administration permissions
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(
		"users.read", "users.create", "users.update", "users.delete",
		"products.read", "products.create", "products.update", "products.delete",
		"settings.read", "settings.update",
		"roles.read", "roles.create", "roles.update", "roles.delete",
	)
}
