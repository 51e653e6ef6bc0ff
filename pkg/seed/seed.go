// Package seed loads role and user assignments from a YAML file and writes
// them through an adapter's administrative interfaces.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

//go:embed default.yaml
var defaultSeed []byte

// File is the seed document
type File struct {
	// Permissions optionally closes the vocabulary roles may reference
	Permissions []rbac.Permission `yaml:"permissions"`
	Roles       []RoleSpec        `yaml:"roles"`
	Users       []UserSpec        `yaml:"users"`
}

// RoleSpec declares a role and its permissions
type RoleSpec struct {
	Name        string            `yaml:"name"`
	Permissions []rbac.Permission `yaml:"permissions"`
}

// UserSpec assigns a role to a user id
type UserSpec struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
}

// Report counts what Apply changed
type Report struct {
	Created  int
	Updated  int
	Assigned int
}

func (r Report) String() string {
	return fmt.Sprintf("%d roles created, %d roles updated, %d users assigned", r.Created, r.Updated, r.Assigned)
}

// Load reads and validates a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Default returns the bundled seed with the demo roles and users
func Default() *File {
	f, err := Parse(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("bundled seed is invalid: %v", err))
	}
	return f
}

// Vocabulary returns the declared permissions; nil means open
func (f *File) Vocabulary() *rbac.Vocabulary {
	if len(f.Permissions) == 0 {
		return nil
	}
	return rbac.NewVocabulary(f.Permissions...)
}

// Validate checks names, duplicates, vocabulary membership and that every
// user references a declared role
func (f *File) Validate() error {
	var errs []error
	vocab := f.Vocabulary()

	roles := make(map[string]struct{}, len(f.Roles))
	for i, r := range f.Roles {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("roles[%d]: name is required", i))
			continue
		}
		if _, dup := roles[name]; dup {
			errs = append(errs, fmt.Errorf("roles[%d]: duplicate role %q", i, name))
		}
		roles[name] = struct{}{}
		if err := vocab.Validate(r.Permissions); err != nil {
			errs = append(errs, fmt.Errorf("role %q: %w", name, err))
		}
	}

	users := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("users[%d]: id is required", i))
			continue
		}
		if _, dup := users[id]; dup {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate user %q", i, id))
		}
		users[id] = struct{}{}
		if role := strings.TrimSpace(u.Role); role != "" {
			if _, ok := roles[role]; !ok {
				errs = append(errs, fmt.Errorf("user %q: role %q is not declared", id, role))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid seed file: %w", errors.Join(errs...))
	}
	return nil
}

// Apply writes roles then user assignments. Existing roles have their
// permissions replaced; tombstoned roles are revived. Apply is idempotent.
func Apply(ctx context.Context, adapter rbac.Adapter, f *File) (Report, error) {
	var report Report

	store, ok := rbac.RoleStoreOf(adapter)
	if !ok && len(f.Roles) > 0 {
		return report, fmt.Errorf("failed to seed roles: %w", rbac.ErrReadOnly)
	}

	for _, rs := range f.Roles {
		role := &rbac.Role{Name: rs.Name, Permissions: rs.Permissions}
		role.Normalize()

		err := store.CreateRole(ctx, role)
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, rbac.ErrRoleExists):
			if err := store.UpdateRolePermissions(ctx, role.Name, role.Permissions); err != nil {
				return report, fmt.Errorf("failed to update role %q: %w", role.Name, err)
			}
			report.Updated++
		default:
			return report, fmt.Errorf("failed to create role %q: %w", role.Name, err)
		}
	}

	if len(f.Users) == 0 {
		return report, nil
	}
	assigner, ok := rbac.AssignerOf(adapter)
	if !ok {
		return report, fmt.Errorf("failed to assign users: %w", rbac.ErrReadOnly)
	}
	for _, u := range f.Users {
		id := strings.TrimSpace(u.ID)
		if err := assigner.AssignUserRole(ctx, id, strings.TrimSpace(u.Role)); err != nil {
			return report, fmt.Errorf("failed to assign role to %q: %w", id, err)
		}
		report.Assigned++
	}
	return report, nil
}
