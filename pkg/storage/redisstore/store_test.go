package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// setupRedisStoreTest starts miniredis and opens a Store against it
func setupRedisStoreTest(t *testing.T, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	store, err := Open(context.Background(), Config{
		URL:       "redis://" + mr.Addr(),
		KeyPrefix: prefix,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "http://not-redis"})

	var cfgErr *rbac.AdapterConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "connection_target", cfgErr.Field)
}

func TestOpen_MissingURL(t *testing.T) {
	_, err := Open(context.Background(), Config{})

	var cfgErr *rbac.AdapterConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), Config{URL: "redis://" + addr, ConnectTimeout: 200 * time.Millisecond})

	var ae *rbac.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "connect", ae.Op)
	assert.Equal(t, "redis", ae.Backend)
}

func TestNew_InvalidKeys(t *testing.T) {
	_, err := New(nil, "", "roles:x", "users")
	var cfgErr *rbac.AdapterConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "role_collection", cfgErr.Field)

	_, err = New(nil, "", "same", "same")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "user_collection", cfgErr.Field)
}

func TestStore_ResolveLifecycle(t *testing.T) {
	store, mr := setupRedisStoreTest(t, "gk:")
	ctx := context.Background()

	require.NoError(t, store.CreateRole(ctx, &rbac.Role{
		Name:        "admin",
		Permissions: []rbac.Permission{"users.read", "users.create"},
	}))
	require.NoError(t, store.AssignUserRole(ctx, "alice", "admin"))

	assert.True(t, mr.Exists("gk:roles:admin"))
	assert.Equal(t, "admin", mr.HGet("gk:users:alice", "role"))
	members, err := mr.Members("gk:roles")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, members)

	role, found, err := store.GetUserRole(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "admin", role)

	perms, err := store.GetRolePermissions(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"users.create", "users.read"}, perms.Strings())
}

func TestStore_AbsentUserAndRole(t *testing.T) {
	store, mr := setupRedisStoreTest(t, "")
	ctx := context.Background()

	_, found, err := store.GetUserRole(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, found)

	mr.HSet("users:empty", "role", "")
	_, found, err = store.GetUserRole(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, found)

	perms, err := store.GetRolePermissions(ctx, "missing")
	require.NoError(t, err)
	assert.True(t, perms.IsEmpty())
}

func TestStore_SoftDeleteAndRevive(t *testing.T) {
	store, _ := setupRedisStoreTest(t, "")
	ctx := context.Background()

	require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: "editor", Permissions: []rbac.Permission{"posts.update"}}))
	assert.ErrorIs(t, store.CreateRole(ctx, &rbac.Role{Name: "editor"}), rbac.ErrRoleExists)

	require.NoError(t, store.SoftDeleteRole(ctx, "editor"))
	perms, err := store.GetRolePermissions(ctx, "editor")
	require.NoError(t, err)
	assert.True(t, perms.IsEmpty())

	role, err := store.GetRole(ctx, "editor")
	require.NoError(t, err)
	assert.True(t, role.IsDeleted())

	assert.ErrorIs(t, store.SoftDeleteRole(ctx, "editor"), rbac.ErrRoleNotFound)
	assert.ErrorIs(t, store.UpdateRolePermissions(ctx, "editor", nil), rbac.ErrRoleNotFound)

	active, err := store.ListRoles(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: "editor", Permissions: []rbac.Permission{"posts.read"}}))
	role, err = store.GetRole(ctx, "editor")
	require.NoError(t, err)
	assert.False(t, role.IsDeleted())
	assert.Equal(t, []rbac.Permission{"posts.read"}, role.Permissions)
}

func TestStore_UpdateAndList(t *testing.T) {
	store, _ := setupRedisStoreTest(t, "")
	ctx := context.Background()

	require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: "user", Permissions: []rbac.Permission{"users.read"}}))
	require.NoError(t, store.CreateRole(ctx, &rbac.Role{Name: "manager", Permissions: []rbac.Permission{"users.read", "products.update"}}))
	require.NoError(t, store.UpdateRolePermissions(ctx, "user", []rbac.Permission{"users.read", "products.read"}))

	roles, err := store.ListRoles(ctx, true)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "manager", roles[0].Name)
	assert.Equal(t, "user", roles[1].Name)
	assert.Equal(t, []rbac.Permission{"products.read", "users.read"}, roles[1].Permissions)
	assert.False(t, roles[1].CreatedAt.IsZero())

	_, err = store.GetRole(ctx, "nope")
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
}

func TestStore_ClearUserRole(t *testing.T) {
	store, _ := setupRedisStoreTest(t, "")
	ctx := context.Background()

	require.NoError(t, store.AssignUserRole(ctx, "bob", "user"))
	require.NoError(t, store.AssignUserRole(ctx, "bob", ""))

	_, found, err := store.GetUserRole(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CorruptPermissions(t *testing.T) {
	store, mr := setupRedisStoreTest(t, "")

	mr.HSet("roles:broken", "permissions", "{oops")
	_, err := store.GetRolePermissions(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, rbac.IsAdapterError(err))
	assert.False(t, rbac.IsTransient(err))
}

func TestStore_ServerDown(t *testing.T) {
	store, mr := setupRedisStoreTest(t, "")
	mr.Close()

	_, _, err := store.GetUserRole(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, rbac.IsTransient(err))

	assert.Error(t, store.Ping(context.Background()))

	err = rbac.NewEnforcer(rbac.NewResolver(store)).Require(context.Background(), "alice", "users.read")
	assert.True(t, rbac.IsUnavailable(err))
}
