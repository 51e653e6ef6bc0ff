// Package sqlstore is the database/sql adapter. It serves PostgreSQL through
// lib/pq and SQLite through mattn/go-sqlite3 with the same queries.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Driver names registered by the imported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name is safe to use as a table name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Config holds the connection settings for a Store
type Config struct {
	Driver          string
	DSN             string
	RolesTable      string
	UsersTable      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	AutoMigrate     bool
}

// Store implements rbac.Adapter, rbac.RoleStore and rbac.UserRoleAssigner
// on top of two tables
type Store struct {
	db      *sql.DB
	driver  string
	roles   string
	users   string
	queries queries
}

// Open connects to the database described by cfg and verifies it with a ping
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, &rbac.AdapterConfigError{Field: "type", Reason: fmt.Sprintf("unsupported sql driver %q", cfg.Driver)}
	}
	if cfg.DSN == "" {
		return nil, &rbac.AdapterConfigError{Field: "connection_target", Reason: "required"}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, &rbac.AdapterConfigError{Field: "connection_target", Reason: "cannot open", Err: err}
	}

	if cfg.Driver == DriverSQLite {
		// One writer avoids SQLITE_BUSY and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &rbac.AdapterError{Op: "connect", Backend: backendName(cfg.Driver), Err: err, Transient: true}
	}

	store, err := New(db, cfg.Driver, cfg.RolesTable, cfg.UsersTable)
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return store, nil
}

// New wraps an existing connection. Empty table names default to
// "roles" and "users".
func New(db *sql.DB, driver, rolesTable, usersTable string) (*Store, error) {
	if rolesTable == "" {
		rolesTable = "roles"
	}
	if usersTable == "" {
		usersTable = "users"
	}
	if !ValidIdentifier(rolesTable) {
		return nil, &rbac.AdapterConfigError{Field: "role_collection", Reason: fmt.Sprintf("invalid table name %q", rolesTable)}
	}
	if !ValidIdentifier(usersTable) {
		return nil, &rbac.AdapterConfigError{Field: "user_collection", Reason: fmt.Sprintf("invalid table name %q", usersTable)}
	}
	if rolesTable == usersTable {
		return nil, &rbac.AdapterConfigError{Field: "user_collection", Reason: "must differ from role_collection"}
	}

	return &Store{
		db:      db,
		driver:  driver,
		roles:   rolesTable,
		users:   usersTable,
		queries: buildQueries(quote(rolesTable), quote(usersTable)),
	}, nil
}

func quote(name string) string {
	return `"` + name + `"`
}

func backendName(driver string) string {
	if driver == DriverSQLite {
		return "sqlite"
	}
	return driver
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

// Backend names the engine for metrics and errors
func (s *Store) Backend() string {
	return backendName(s.driver)
}

func (s *Store) fail(op string, err error) error {
	return rbac.NewAdapterError(s.Backend(), op, err)
}

// GetUserRole reads the role column for userID. A missing row, a NULL role
// and an empty role all mean no role is assigned.
func (s *Store) GetUserRole(ctx context.Context, userID string) (string, bool, error) {
	var role sql.NullString
	err := s.db.QueryRowContext(ctx, s.queries.userRole, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("get_user_role", err)
	}
	if !role.Valid || role.String == "" {
		return "", false, nil
	}
	return role.String, true, nil
}

// GetRolePermissions reads the permissions of an active role. Missing and
// soft-deleted roles resolve to the empty set.
func (s *Store) GetRolePermissions(ctx context.Context, role string) (rbac.PermissionSet, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.queries.rolePermissions, role).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.PermissionSet{}, nil
	}
	if err != nil {
		return rbac.PermissionSet{}, s.fail("get_role_permissions", err)
	}

	perms, err := decodePermissions(raw)
	if err != nil {
		return rbac.PermissionSet{}, rbac.PermanentAdapterError(s.Backend(), "get_role_permissions",
			fmt.Errorf("failed to unmarshal permissions for role %q: %w", role, err))
	}
	return rbac.NewPermissionSet(perms...), nil
}

// CreateRole inserts a role, or revives a tombstoned one with the new
// permissions. An active role with the same name fails with ErrRoleExists.
func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	role.Normalize()
	if role.Name == "" {
		return fmt.Errorf("role name is required")
	}

	permissionsJSON, err := encodePermissions(role.Permissions)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.queries.createRole, role.Name, permissionsJSON, now)
	if err != nil {
		return s.fail("create_role", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return s.fail("create_role", err)
	}
	if n == 0 {
		return rbac.ErrRoleExists
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	role.DeletedAt = nil
	return nil
}

// GetRole retrieves a role by name, including tombstoned roles
func (s *Store) GetRole(ctx context.Context, name string) (*rbac.Role, error) {
	row := s.db.QueryRowContext(ctx, s.queries.getRole, name)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrRoleNotFound
	}
	if err != nil {
		return nil, s.fail("get_role", err)
	}
	return role, nil
}

// ListRoles lists roles ordered by name
func (s *Store) ListRoles(ctx context.Context, includeDeleted bool) ([]*rbac.Role, error) {
	query := s.queries.listActiveRoles
	if includeDeleted {
		query = s.queries.listAllRoles
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail("list_roles", err)
	}
	defer rows.Close()

	var roles []*rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, s.fail("list_roles", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("list_roles", err)
	}
	return roles, nil
}

// UpdateRolePermissions replaces the permission set of an active role
func (s *Store) UpdateRolePermissions(ctx context.Context, name string, perms []rbac.Permission) error {
	permissionsJSON, err := encodePermissions(rbac.NewPermissionSet(perms...).List())
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.queries.updateRole, name, permissionsJSON, time.Now().UTC())
	if err != nil {
		return s.fail("update_role", err)
	}
	return expectOne(res, s, "update_role")
}

// SoftDeleteRole tombstones an active role
func (s *Store) SoftDeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, s.queries.deleteRole, name, time.Now().UTC())
	if err != nil {
		return s.fail("delete_role", err)
	}
	return expectOne(res, s, "delete_role")
}

// AssignUserRole upserts the user's role. An empty role is stored as NULL.
func (s *Store) AssignUserRole(ctx context.Context, userID, role string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	var value sql.NullString
	if role != "" {
		value = sql.NullString{String: role, Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, s.queries.assignRole, userID, value, time.Now().UTC()); err != nil {
		return s.fail("assign_user_role", err)
	}
	return nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

func expectOne(res sql.Result, s *Store, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail(op, err)
	}
	if n == 0 {
		return rbac.ErrRoleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*rbac.Role, error) {
	var (
		role      rbac.Role
		raw       string
		deletedAt sql.NullTime
	)
	if err := row.Scan(&role.Name, &raw, &role.CreatedAt, &role.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}

	perms, err := decodePermissions(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	role.Permissions = perms

	if deletedAt.Valid {
		t := deletedAt.Time
		role.DeletedAt = &t
	}
	return &role, nil
}

func encodePermissions(perms []rbac.Permission) (string, error) {
	if perms == nil {
		perms = []rbac.Permission{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(data), nil
}

func decodePermissions(raw string) ([]rbac.Permission, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var perms []rbac.Permission
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		return nil, err
	}
	return perms, nil
}
