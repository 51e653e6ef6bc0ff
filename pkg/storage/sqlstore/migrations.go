package sqlstore

import (
	"context"
	"fmt"
)

// Migration represents a schema step
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema steps for this store's tables. The DDL is
// shared by PostgreSQL and SQLite, so timestamps are stored without zone
// and always written in UTC.
func (s *Store) Migrations() []Migration {
	roles, users := quote(s.roles), quote(s.users)
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					name TEXT PRIMARY KEY,
					permissions TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					deleted_at TIMESTAMP NULL
				)`, roles),
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					role TEXT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`, users),
		},
		{
			Version:     3,
			Description: "Index users by role",
			SQL: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (role)`,
				quote("idx_"+s.users+"_role"), users),
		},
	}
}

// Migrate applies every migration in order. Each step is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range s.Migrations() {
		if _, err := s.db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}
