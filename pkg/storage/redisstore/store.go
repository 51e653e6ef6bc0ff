// Package redisstore is the Redis adapter built on go-redis.
//
// Layout, with P the configured key prefix:
//
//	P<roles>              SET of role names
//	P<roles>:<name>       HASH permissions (JSON array), created_at, updated_at, deleted_at
//	P<users>:<id>         HASH role
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

const backend = "redis"

// Config holds the connection settings for a Store
type Config struct {
	URL            string
	KeyPrefix      string
	RolesKey       string
	UsersKey       string
	PoolSize       int
	ConnectTimeout time.Duration
}

// Store implements rbac.Adapter, rbac.RoleStore and rbac.UserRoleAssigner
type Store struct {
	client *redis.Client
	prefix string
	roles  string
	users  string
}

// Open parses cfg.URL, connects and verifies the server with a ping
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, &rbac.AdapterConfigError{Field: "connection_target", Reason: "required"}
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, &rbac.AdapterConfigError{Field: "connection_target", Reason: "invalid redis URL", Err: err}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	store, err := New(client, cfg.KeyPrefix, cfg.RolesKey, cfg.UsersKey)
	if err != nil {
		client.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, &rbac.AdapterError{Op: "connect", Backend: backend, Err: err, Transient: true}
	}

	return store, nil
}

// New wraps an existing client. Empty collection names default to
// "roles" and "users".
func New(client *redis.Client, prefix, rolesKey, usersKey string) (*Store, error) {
	if rolesKey == "" {
		rolesKey = "roles"
	}
	if usersKey == "" {
		usersKey = "users"
	}
	if err := validKeySegment("role_collection", rolesKey); err != nil {
		return nil, err
	}
	if err := validKeySegment("user_collection", usersKey); err != nil {
		return nil, err
	}
	if rolesKey == usersKey {
		return nil, &rbac.AdapterConfigError{Field: "user_collection", Reason: "must differ from role_collection"}
	}

	return &Store{
		client: client,
		prefix: prefix,
		roles:  rolesKey,
		users:  usersKey,
	}, nil
}

func validKeySegment(field, name string) error {
	if strings.ContainsAny(name, ": \t\r\n*?[]") {
		return &rbac.AdapterConfigError{Field: field, Reason: fmt.Sprintf("invalid key name %q", name)}
	}
	return nil
}

// Client returns the underlying redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) roleIndexKey() string {
	return s.prefix + s.roles
}

func (s *Store) roleKey(name string) string {
	return s.prefix + s.roles + ":" + name
}

func (s *Store) userKey(id string) string {
	return s.prefix + s.users + ":" + id
}

// GetUserRole reads the role field of the user hash
func (s *Store) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	role, err := s.client.HGet(ctx, s.userKey(userID), "role").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, rbac.NewAdapterError(backend, "get_user_role", err)
	}
	if role == "" {
		return "", false, nil
	}
	return role, true, nil
}

// GetRolePermissions reads an active role's permissions. Missing and
// tombstoned roles resolve to the empty set.
func (s *Store) GetRolePermissions(ctx context.Context, role string) (rbac.PermissionSet, error) {
	vals, err := s.client.HMGet(ctx, s.roleKey(role), "permissions", "deleted_at").Result()
	if err != nil {
		return rbac.PermissionSet{}, rbac.NewAdapterError(backend, "get_role_permissions", err)
	}

	raw, _ := vals[0].(string)
	deletedAt, _ := vals[1].(string)
	if raw == "" || deletedAt != "" {
		return rbac.PermissionSet{}, nil
	}

	var perms []rbac.Permission
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return rbac.PermissionSet{}, rbac.PermanentAdapterError(backend, "get_role_permissions",
			fmt.Errorf("failed to unmarshal permissions for role %q: %w", role, err))
	}
	return rbac.NewPermissionSet(perms...), nil
}

// CreateRole stores a new role or revives a tombstoned one. WATCH guards the
// existence check against a concurrent create.
func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	role.Normalize()
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}

	data, err := json.Marshal(nonNil(role.Permissions))
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	key := s.roleKey(role.Name)
	now := time.Now().UTC()

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "permissions", "deleted_at").Result()
		if err != nil {
			return err
		}
		if exists, _ := vals[0].(string); exists != "" {
			if deleted, _ := vals[1].(string); deleted == "" {
				return rbac.ErrRoleExists
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"permissions", string(data),
				"created_at", formatTime(now),
				"updated_at", formatTime(now))
			pipe.HDel(ctx, key, "deleted_at")
			pipe.SAdd(ctx, s.roleIndexKey(), role.Name)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, rbac.ErrRoleExists) {
		return err
	}
	if err != nil {
		return rbac.NewAdapterError(backend, "create_role", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	role.DeletedAt = nil
	return nil
}

// GetRole retrieves a role by name, including tombstoned roles
func (s *Store) GetRole(ctx context.Context, name string) (*rbac.Role, error) {
	fields, err := s.client.HGetAll(ctx, s.roleKey(name)).Result()
	if err != nil {
		return nil, rbac.NewAdapterError(backend, "get_role", err)
	}
	if len(fields) == 0 {
		return nil, rbac.ErrRoleNotFound
	}
	role, err := decodeRole(name, fields)
	if err != nil {
		return nil, rbac.PermanentAdapterError(backend, "get_role", err)
	}
	return role, nil
}

// ListRoles lists roles from the index set, ordered by name
func (s *Store) ListRoles(ctx context.Context, includeDeleted bool) ([]*rbac.Role, error) {
	names, err := s.client.SMembers(ctx, s.roleIndexKey()).Result()
	if err != nil {
		return nil, rbac.NewAdapterError(backend, "list_roles", err)
	}
	sort.Strings(names)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.HGetAll(ctx, s.roleKey(name))
	}
	if len(names) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, rbac.NewAdapterError(backend, "list_roles", err)
		}
	}

	roles := make([]*rbac.Role, 0, len(names))
	for i, name := range names {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		role, err := decodeRole(name, fields)
		if err != nil {
			return nil, rbac.PermanentAdapterError(backend, "list_roles", err)
		}
		if role.IsDeleted() && !includeDeleted {
			continue
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// UpdateRolePermissions replaces the permission set of an active role
func (s *Store) UpdateRolePermissions(ctx context.Context, name string, perms []rbac.Permission) error {
	data, err := json.Marshal(rbac.NewPermissionSet(perms...).List())
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	return s.mutateActive(ctx, "update_role", name, func(pipe redis.Pipeliner, key string, now time.Time) {
		pipe.HSet(ctx, key, "permissions", string(data), "updated_at", formatTime(now))
	})
}

// SoftDeleteRole tombstones an active role
func (s *Store) SoftDeleteRole(ctx context.Context, name string) error {
	return s.mutateActive(ctx, "delete_role", name, func(pipe redis.Pipeliner, key string, now time.Time) {
		pipe.HSet(ctx, key, "deleted_at", formatTime(now), "updated_at", formatTime(now))
	})
}

// mutateActive runs fn in a MULTI/EXEC block when name is an active role
func (s *Store) mutateActive(ctx context.Context, op, name string, fn func(redis.Pipeliner, string, time.Time)) error {
	key := s.roleKey(name)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "permissions", "deleted_at").Result()
		if err != nil {
			return err
		}
		exists, _ := vals[0].(string)
		deleted, _ := vals[1].(string)
		if exists == "" || deleted != "" {
			return rbac.ErrRoleNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			fn(pipe, key, time.Now().UTC())
			return nil
		})
		return err
	}, key)

	if errors.Is(err, rbac.ErrRoleNotFound) {
		return err
	}
	if err != nil {
		return rbac.NewAdapterError(backend, op, err)
	}
	return nil
}

// AssignUserRole sets the user's role. An empty role removes the field.
func (s *Store) AssignUserRole(ctx context.Context, userID, role string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	key := s.userKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if role == "" {
			pipe.HDel(ctx, key, "role")
		} else {
			pipe.HSet(ctx, key, "role", role)
		}
		pipe.HSet(ctx, key, "updated_at", formatTime(time.Now().UTC()))
		return nil
	})
	if err != nil {
		return rbac.NewAdapterError(backend, "assign_user_role", err)
	}
	return nil
}

// Ping checks the server is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return rbac.NewAdapterError(backend, "ping", err)
	}
	return nil
}

// Close releases the client's connections
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeRole(name string, fields map[string]string) (*rbac.Role, error) {
	role := &rbac.Role{Name: name}

	if raw := fields["permissions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions for role %q: %w", name, err)
		}
	}

	var err error
	if role.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, err
	}
	if role.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return nil, err
	}
	if raw := fields["deleted_at"]; raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		role.DeletedAt = &t
	}
	return role, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t, nil
}

func nonNil(perms []rbac.Permission) []rbac.Permission {
	if perms == nil {
		return []rbac.Permission{}
	}
	return perms
}
