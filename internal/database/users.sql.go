package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, restaurant_id, name, email, hashed_password, phone, status,
    suspension_reason, deleted_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Email,
		&i.HashedPassword,
		&i.Phone,
		&i.Status,
		&i.SuspensionReason,
		&i.DeletedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1 AND deleted_at IS NULL
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUser, id))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + `
FROM users
WHERE email = $1 AND deleted_at IS NULL
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const listUserRoles = `-- name: ListUserRoles :many
SELECT r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY r.name
`

func (q *Queries) ListUserRoles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, listUserRoles, userID)
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

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + `
FROM users u
WHERE u.deleted_at IS NULL
  AND ($1::bigint IS NULL OR u.restaurant_id = $1)
  AND ($2::text IS NULL OR u.status = $2)
  AND ($3::text IS NULL OR EXISTS (
        SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
        WHERE ur.user_id = u.id AND r.name = $3))
  AND ($4::text IS NULL OR u.name ILIKE '%' || $4 || '%' OR u.email ILIKE '%' || $4 || '%')
ORDER BY u.created_at DESC, u.id DESC
LIMIT $5 OFFSET $6
`

type ListUsersParams struct {
	RestaurantID pgtype.Int8 `json:"restaurant_id"`
	Status       pgtype.Text `json:"status"`
	Role         pgtype.Text `json:"role"`
	Search       pgtype.Text `json:"search"`
	Limit        int32       `json:"limit"`
	Offset       int32       `json:"offset"`
}

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers,
		arg.RestaurantID,
		arg.Status,
		arg.Role,
		arg.Search,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (restaurant_id, name, email, hashed_password, phone, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns

type CreateUserParams struct {
	RestaurantID   pgtype.Int8 `json:"restaurant_id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"hashed_password"`
	Phone          pgtype.Text `json:"phone"`
	Status         string      `json:"status"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.RestaurantID,
		arg.Name,
		arg.Email,
		arg.HashedPassword,
		arg.Phone,
		arg.Status,
	))
}

const addUserRole = `-- name: AddUserRole :execrows
INSERT INTO user_roles (user_id, role_id)
SELECT $1, id FROM roles WHERE name = $2
ON CONFLICT DO NOTHING
`

type AddUserRoleParams struct {
	UserID   int64  `json:"user_id"`
	RoleName string `json:"role_name"`
}

func (q *Queries) AddUserRole(ctx context.Context, arg AddUserRoleParams) (int64, error) {
	result, err := q.db.Exec(ctx, addUserRole, arg.UserID, arg.RoleName)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const clearUserRoles = `-- name: ClearUserRoles :exec
DELETE FROM user_roles WHERE user_id = $1
`

func (q *Queries) ClearUserRoles(ctx context.Context, userID int64) error {
	_, err := q.db.Exec(ctx, clearUserRoles, userID)
	return err
}

const updateUserStatus = `-- name: UpdateUserStatus :one
UPDATE users SET status = $2, suspension_reason = $3, updated_at = now()
WHERE id = $1 AND deleted_at IS NULL
RETURNING ` + userColumns

type UpdateUserStatusParams struct {
	ID               int64       `json:"id"`
	Status           string      `json:"status"`
	SuspensionReason pgtype.Text `json:"suspension_reason"`
}

func (q *Queries) UpdateUserStatus(ctx context.Context, arg UpdateUserStatusParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUserStatus, arg.ID, arg.Status, arg.SuspensionReason))
}

const softDeleteUser = `-- name: SoftDeleteUser :execrows
UPDATE users SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND deleted_at IS NULL
`

func (q *Queries) SoftDeleteUser(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, softDeleteUser, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
