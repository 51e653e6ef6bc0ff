package rbac

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionParts(t *testing.T) {
	tests := []struct {
		perm     Permission
		resource string
		action   string
	}{
		{"users.read", "users", "read"},
		{"settings.update", "settings", "update"},
		{"admin", "admin", ""},
		{"a.b.c", "a", "b.c"},
	}

	for _, tt := range tests {
		t.Run(string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.resource, tt.perm.Resource())
			assert.Equal(t, tt.action, tt.perm.Action())
		})
	}

	assert.Equal(t, Permission("products.create"), PermissionFor("products", "create"))
}

func TestPermissionSet_ZeroValue(t *testing.T) {
	var s PermissionSet

	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has("users.read"))
	assert.True(t, s.HasAll())
	assert.False(t, s.HasAll("users.read"))
	assert.False(t, s.HasAny("users.read"))
	assert.Equal(t, []string{}, s.Strings())
}

func TestPermissionSet_DropsDuplicatesAndEmpty(t *testing.T) {
	s := NewPermissionSet("users.read", "", "users.read", "users.create")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Permission{"users.create", "users.read"}, s.List())
}

func TestPermissionSet_CaseSensitive(t *testing.T) {
	s := NewPermissionSet("users.read")

	assert.True(t, s.Has("users.read"))
	assert.False(t, s.Has("Users.Read"))
	assert.False(t, s.Has("users.read "))
}

func TestPermissionSet_HasAllHasAnyMissing(t *testing.T) {
	s := NewPermissionSet("users.read", "products.read")

	assert.True(t, s.HasAll("users.read", "products.read"))
	assert.False(t, s.HasAll("users.read", "users.create"))
	assert.True(t, s.HasAny("users.create", "products.read"))
	assert.False(t, s.HasAny("users.create", "products.create"))
	assert.Equal(t, []Permission{"users.create", "products.delete"},
		s.Missing("users.read", "users.create", "products.delete"))
}

func TestPermissionSet_Equal(t *testing.T) {
	a := NewPermissionSet("b", "a")
	b := NewPermissionSet("a", "b", "a")
	c := NewPermissionSet("a")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, PermissionSet{}.Equal(NewPermissionSet()))
}

func TestPermissionSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewPermissionSet("users.read", "products.read"))
	require.NoError(t, err)
	assert.JSONEq(t, `["products.read","users.read"]`, string(data))

	data, err = json.Marshal(PermissionSet{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	var s PermissionSet
	require.NoError(t, json.Unmarshal([]byte(`["x","y","x"]`), &s))
	assert.Equal(t, 2, s.Len())

	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &s))
}

func TestRole_PermissionSetExcludesTombstoned(t *testing.T) {
	role := Role{Name: "editor", Permissions: []Permission{"posts.update"}}
	assert.True(t, role.PermissionSet().Has("posts.update"))

	now := time.Now()
	role.DeletedAt = &now
	assert.True(t, role.IsDeleted())
	assert.True(t, role.PermissionSet().IsEmpty())
}

func TestRole_Normalize(t *testing.T) {
	role := Role{Name: "  manager ", Permissions: []Permission{"b", "a", "b", ""}}
	role.Normalize()

	assert.Equal(t, "manager", role.Name)
	assert.Equal(t, []Permission{"a", "b"}, role.Permissions)
}

func TestVocabulary(t *testing.T) {
	v := NewVocabulary("users.read", "users.create")

	assert.False(t, v.Open())
	assert.True(t, v.Contains("users.read"))
	assert.False(t, v.Contains("users.delete"))
	assert.NoError(t, v.Validate([]Permission{"users.read"}))

	err := v.Validate([]Permission{"users.read", "users.delete", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.delete")
	assert.Contains(t, err.Error(), "bogus")

	var open *Vocabulary
	assert.True(t, open.Open())
	assert.NoError(t, open.Validate([]Permission{"anything"}))
	assert.Error(t, open.Validate([]Permission{""}))

	assert.True(t, DefaultVocabulary().Contains("settings.update"))
}
