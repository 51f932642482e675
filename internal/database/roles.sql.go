package database

import "context"

const listRolePermissions = `-- name: ListRolePermissions :many
SELECT r.name AS role_name, p.name AS permission_name
FROM role_permissions rp
JOIN roles r ON r.id = rp.role_id
JOIN permissions p ON p.id = rp.permission_id
ORDER BY r.name, p.name
`

type ListRolePermissionsRow struct {
	RoleName       string `json:"role_name"`
	PermissionName string `json:"permission_name"`
}

func (q *Queries) ListRolePermissions(ctx context.Context) ([]ListRolePermissionsRow, error) {
	rows, err := q.db.Query(ctx, listRolePermissions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListRolePermissionsRow{}
	for rows.Next() {
		var i ListRolePermissionsRow
		if err := rows.Scan(&i.RoleName, &i.PermissionName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listRoles = `-- name: ListRoles :many
SELECT name FROM roles ORDER BY name
`

func (q *Queries) ListRoles(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listRoles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertRole = `-- name: UpsertRole :one
INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`

func (q *Queries) UpsertRole(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRow(ctx, upsertRole, name)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const upsertPermission = `-- name: UpsertPermission :one
INSERT INTO permissions (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`

func (q *Queries) UpsertPermission(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRow(ctx, upsertPermission, name)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const grantPermission = `-- name: GrantPermission :exec
INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type GrantPermissionParams struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

func (q *Queries) GrantPermission(ctx context.Context, arg GrantPermissionParams) error {
	_, err := q.db.Exec(ctx, grantPermission, arg.RoleID, arg.PermissionID)
	return err
}
