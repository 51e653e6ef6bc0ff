package sqlstore

import "fmt"

// queries holds the statements for one pair of table names. Both engines
// accept $n placeholders and ON CONFLICT upserts.
type queries struct {
	userRole        string
	rolePermissions string
	createRole      string
	getRole         string
	listActiveRoles string
	listAllRoles    string
	updateRole      string
	deleteRole      string
	assignRole      string
}

func buildQueries(roles, users string) queries {
	const roleColumns = "name, permissions, created_at, updated_at, deleted_at"

	return queries{
		userRole: fmt.Sprintf(`SELECT role FROM %s WHERE id = $1`, users),

		rolePermissions: fmt.Sprintf(
			`SELECT permissions FROM %s WHERE name = $1 AND deleted_at IS NULL`, roles),

		// A conflicting tombstoned row is revived; a conflicting active row
		// is left alone and reports zero rows affected
		createRole: fmt.Sprintf(`
			INSERT INTO %[1]s (name, permissions, created_at, updated_at, deleted_at)
			VALUES ($1, $2, $3, $3, NULL)
			ON CONFLICT (name) DO UPDATE
			SET permissions = excluded.permissions,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				deleted_at = NULL
			WHERE %[1]s.deleted_at IS NOT NULL`, roles),

		getRole: fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1`, roleColumns, roles),

		listActiveRoles: fmt.Sprintf(
			`SELECT %s FROM %s WHERE deleted_at IS NULL ORDER BY name`, roleColumns, roles),

		listAllRoles: fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, roleColumns, roles),

		updateRole: fmt.Sprintf(`
			UPDATE %s SET permissions = $2, updated_at = $3
			WHERE name = $1 AND deleted_at IS NULL`, roles),

		deleteRole: fmt.Sprintf(`
			UPDATE %s SET deleted_at = $2, updated_at = $2
			WHERE name = $1 AND deleted_at IS NULL`, roles),

		assignRole: fmt.Sprintf(`
			INSERT INTO %s (id, role, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (id) DO UPDATE
			SET role = excluded.role, updated_at = excluded.updated_at`, users),
	}
}
