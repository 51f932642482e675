package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getRestaurant = `-- name: GetRestaurant :one
SELECT id, name, slug, currency, settings, status, created_at, updated_at
FROM restaurants
WHERE id = $1
`

func (q *Queries) GetRestaurant(ctx context.Context, id int64) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurant, id)
	var i Restaurant
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.Currency,
		&i.Settings,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getProductForOrder = `-- name: GetProductForOrder :one
SELECT id, restaurant_id, name, sku, prices, channels, stock_quantity, track_stock, is_active
FROM products
WHERE id = $1 AND restaurant_id = $2
`

type GetProductForOrderParams struct {
	ID           int64 `json:"id"`
	RestaurantID int64 `json:"restaurant_id"`
}

type GetProductForOrderRow struct {
	ID            int64       `json:"id"`
	RestaurantID  int64       `json:"restaurant_id"`
	Name          []byte      `json:"name"`
	Sku           pgtype.Text `json:"sku"`
	Prices        []byte      `json:"prices"`
	Channels      []byte      `json:"channels"`
	StockQuantity pgtype.Int4 `json:"stock_quantity"`
	TrackStock    bool        `json:"track_stock"`
	IsActive      bool        `json:"is_active"`
}

func (q *Queries) GetProductForOrder(ctx context.Context, arg GetProductForOrderParams) (GetProductForOrderRow, error) {
	row := q.db.QueryRow(ctx, getProductForOrder, arg.ID, arg.RestaurantID)
	var i GetProductForOrderRow
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Sku,
		&i.Prices,
		&i.Channels,
		&i.StockQuantity,
		&i.TrackStock,
		&i.IsActive,
	)
	return i, err
}

const upsertRestaurant = `-- name: UpsertRestaurant :one
INSERT INTO restaurants (name, slug, currency, settings, status)
VALUES ($1, $2, $3, $4, 'active')
ON CONFLICT (slug) DO UPDATE SET
    name = EXCLUDED.name,
    currency = EXCLUDED.currency,
    settings = EXCLUDED.settings,
    updated_at = now()
RETURNING id, name, slug, currency, settings, status, created_at, updated_at
`

type UpsertRestaurantParams struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Currency string `json:"currency"`
	Settings []byte `json:"settings"`
}

func (q *Queries) UpsertRestaurant(ctx context.Context, arg UpsertRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, upsertRestaurant, arg.Name, arg.Slug, arg.Currency, arg.Settings)
	var i Restaurant
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.Currency,
		&i.Settings,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (restaurant_id, name, sort_order)
VALUES ($1, $2, $3)
RETURNING id
`

type CreateCategoryParams struct {
	RestaurantID int64  `json:"restaurant_id"`
	Name         []byte `json:"name"`
	SortOrder    int32  `json:"sort_order"`
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (int64, error) {
	row := q.db.QueryRow(ctx, createCategory, arg.RestaurantID, arg.Name, arg.SortOrder)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createMenu = `-- name: CreateMenu :one
INSERT INTO menus (restaurant_id, name, type, channels)
VALUES ($1, $2, $3, $4)
RETURNING id
`

type CreateMenuParams struct {
	RestaurantID int64  `json:"restaurant_id"`
	Name         []byte `json:"name"`
	Type         string `json:"type"`
	Channels     []byte `json:"channels"`
}

func (q *Queries) CreateMenu(ctx context.Context, arg CreateMenuParams) (int64, error) {
	row := q.db.QueryRow(ctx, createMenu, arg.RestaurantID, arg.Name, arg.Type, arg.Channels)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (
    restaurant_id, category_id, name, description, sku, type, prices, channels,
    stock_quantity, track_stock, is_active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id
`

type CreateProductParams struct {
	RestaurantID  int64       `json:"restaurant_id"`
	CategoryID    pgtype.Int8 `json:"category_id"`
	Name          []byte      `json:"name"`
	Description   []byte      `json:"description"`
	Sku           pgtype.Text `json:"sku"`
	Type          string      `json:"type"`
	Prices        []byte      `json:"prices"`
	Channels      []byte      `json:"channels"`
	StockQuantity pgtype.Int4 `json:"stock_quantity"`
	TrackStock    bool        `json:"track_stock"`
	IsActive      bool        `json:"is_active"`
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (int64, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.RestaurantID,
		arg.CategoryID,
		arg.Name,
		arg.Description,
		arg.Sku,
		arg.Type,
		arg.Prices,
		arg.Channels,
		arg.StockQuantity,
		arg.TrackStock,
		arg.IsActive,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const attachMenuProduct = `-- name: AttachMenuProduct :exec
INSERT INTO menu_product (menu_id, product_id, sort_order, is_featured)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`

type AttachMenuProductParams struct {
	MenuID     int64 `json:"menu_id"`
	ProductID  int64 `json:"product_id"`
	SortOrder  int32 `json:"sort_order"`
	IsFeatured bool  `json:"is_featured"`
}

func (q *Queries) AttachMenuProduct(ctx context.Context, arg AttachMenuProductParams) error {
	_, err := q.db.Exec(ctx, attachMenuProduct, arg.MenuID, arg.ProductID, arg.SortOrder, arg.IsFeatured)
	return err
}
