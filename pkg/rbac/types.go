package rbac

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Permission is an opaque capability token such as "users.read".
// Permissions are compared by exact, case-sensitive equality.
type Permission string

// String returns the permission token
func (p Permission) String() string {
	return string(p)
}

// Resource returns the part before the first dot ("users" for "users.read").
// Tokens without a dot return the whole token.
func (p Permission) Resource() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p[:i])
	}
	return string(p)
}

// Action returns the part after the first dot, or "" when there is none
func (p Permission) Action() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p[i+1:])
	}
	return ""
}

// PermissionFor builds a permission following the resource.action convention
func PermissionFor(resource, action string) Permission {
	return Permission(resource + "." + action)
}

// PermissionSet is the resolved set of permissions for one role.
// The zero value is an empty set and is safe to use.
type PermissionSet struct {
	perms map[Permission]struct{}
}

// NewPermissionSet builds a set from perms, dropping duplicates and empty tokens
func NewPermissionSet(perms ...Permission) PermissionSet {
	if len(perms) == 0 {
		return PermissionSet{}
	}
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return PermissionSet{perms: set}
}

// ParsePermissionSet builds a set from raw strings
func ParsePermissionSet(raw []string) PermissionSet {
	perms := make([]Permission, 0, len(raw))
	for _, r := range raw {
		perms = append(perms, Permission(r))
	}
	return NewPermissionSet(perms...)
}

// Has reports whether p is a member of the set
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.perms[p]
	return ok
}

// HasAll reports whether every permission in required is a member.
// An empty requirement is always satisfied.
func (s PermissionSet) HasAll(required ...Permission) bool {
	for _, p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one permission in candidates is a member
func (s PermissionSet) HasAny(candidates ...Permission) bool {
	for _, p := range candidates {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Missing returns the permissions in required that are not in the set, in order
func (s PermissionSet) Missing(required ...Permission) []Permission {
	var missing []Permission
	for _, p := range required {
		if !s.Has(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Len returns the number of permissions in the set
func (s PermissionSet) Len() int {
	return len(s.perms)
}

// IsEmpty reports whether the set has no permissions
func (s PermissionSet) IsEmpty() bool {
	return len(s.perms) == 0
}

// List returns the permissions sorted lexically
func (s PermissionSet) List() []Permission {
	list := make([]Permission, 0, len(s.perms))
	for p := range s.perms {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// Strings returns the permissions as sorted strings, never nil
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s.perms))
	for _, p := range s.List() {
		out = append(out, string(p))
	}
	return out
}

// Equal reports whether both sets hold exactly the same permissions
func (s PermissionSet) Equal(other PermissionSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for p := range s.perms {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes the set from an array of strings
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParsePermissionSet(raw)
	return nil
}

// Role is a named, mutable set of permissions. The name never changes once
// created; renaming is a soft delete followed by a create.
type Role struct {
	Name        string       `json:"name" yaml:"name"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	CreatedAt   time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time    `json:"updated_at" yaml:"-"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty" yaml:"-"`
}

// IsDeleted reports whether the role carries a tombstone
func (r Role) IsDeleted() bool {
	return r.DeletedAt != nil
}

// PermissionSet returns the role's permissions as a set.
// Tombstoned roles yield the empty set.
func (r Role) PermissionSet() PermissionSet {
	if r.IsDeleted() {
		return PermissionSet{}
	}
	return NewPermissionSet(r.Permissions...)
}

// Normalize trims the name and deduplicates permissions, keeping sorted order
func (r *Role) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Permissions = NewPermissionSet(r.Permissions...).List()
}

// User is the identity-owned record the core reads to find a role.
// An empty Role means no role is assigned.
type User struct {
	ID   string `json:"id" yaml:"id"`
	Role string `json:"role,omitempty" yaml:"role"`
}
