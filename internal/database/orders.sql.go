package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, user_id, order_number, channel, status, payment_status,
    customer_info, delivery_info, items_total, tax_amount, delivery_fee, service_fee,
    discount_amount, total_amount, currency, notes, special_instructions, estimated_prep_time,
    scheduled_at, confirmed_at, prepared_at, picked_up_at, delivered_at, cancelled_at,
    cancellation_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.UserID,
		&i.OrderNumber,
		&i.Channel,
		&i.Status,
		&i.PaymentStatus,
		&i.CustomerInfo,
		&i.DeliveryInfo,
		&i.ItemsTotal,
		&i.TaxAmount,
		&i.DeliveryFee,
		&i.ServiceFee,
		&i.DiscountAmount,
		&i.TotalAmount,
		&i.Currency,
		&i.Notes,
		&i.SpecialInstructions,
		&i.EstimatedPrepTime,
		&i.ScheduledAt,
		&i.ConfirmedAt,
		&i.PreparedAt,
		&i.PickedUpAt,
		&i.DeliveredAt,
		&i.CancelledAt,
		&i.CancellationReason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    restaurant_id, user_id, channel, status, payment_status, customer_info, delivery_info,
    items_total, tax_amount, delivery_fee, service_fee, discount_amount, total_amount,
    currency, notes, special_instructions, estimated_prep_time, scheduled_at
) VALUES (
    $1, $2, $3, 'pending', 'pending', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	RestaurantID        int64              `json:"restaurant_id"`
	UserID              pgtype.Int8        `json:"user_id"`
	Channel             string             `json:"channel"`
	CustomerInfo        []byte             `json:"customer_info"`
	DeliveryInfo        []byte             `json:"delivery_info"`
	ItemsTotal          pgtype.Numeric     `json:"items_total"`
	TaxAmount           pgtype.Numeric     `json:"tax_amount"`
	DeliveryFee         pgtype.Numeric     `json:"delivery_fee"`
	ServiceFee          pgtype.Numeric     `json:"service_fee"`
	DiscountAmount      pgtype.Numeric     `json:"discount_amount"`
	TotalAmount         pgtype.Numeric     `json:"total_amount"`
	Currency            string             `json:"currency"`
	Notes               pgtype.Text        `json:"notes"`
	SpecialInstructions pgtype.Text        `json:"special_instructions"`
	EstimatedPrepTime   pgtype.Int4        `json:"estimated_prep_time"`
	ScheduledAt         pgtype.Timestamptz `json:"scheduled_at"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.RestaurantID,
		arg.UserID,
		arg.Channel,
		arg.CustomerInfo,
		arg.DeliveryInfo,
		arg.ItemsTotal,
		arg.TaxAmount,
		arg.DeliveryFee,
		arg.ServiceFee,
		arg.DiscountAmount,
		arg.TotalAmount,
		arg.Currency,
		arg.Notes,
		arg.SpecialInstructions,
		arg.EstimatedPrepTime,
		arg.ScheduledAt,
	)
	return scanOrder(row)
}

const setOrderNumber = `-- name: SetOrderNumber :one
UPDATE orders SET order_number = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type SetOrderNumberParams struct {
	ID          int64  `json:"id"`
	OrderNumber string `json:"order_number"`
}

func (q *Queries) SetOrderNumber(ctx context.Context, arg SetOrderNumberParams) (Order, error) {
	row := q.db.QueryRow(ctx, setOrderNumber, arg.ID, arg.OrderNumber)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (
    order_id, product_id, product_name, product_sku, quantity, unit_price, total_price,
    modifiers, special_instructions
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, order_id, product_id, product_name, product_sku, quantity, unit_price,
    total_price, modifiers, special_instructions, created_at
`

type CreateOrderItemParams struct {
	OrderID             int64          `json:"order_id"`
	ProductID           pgtype.Int8    `json:"product_id"`
	ProductName         []byte         `json:"product_name"`
	ProductSku          pgtype.Text    `json:"product_sku"`
	Quantity            int32          `json:"quantity"`
	UnitPrice           pgtype.Numeric `json:"unit_price"`
	TotalPrice          pgtype.Numeric `json:"total_price"`
	Modifiers           []byte         `json:"modifiers"`
	SpecialInstructions pgtype.Text    `json:"special_instructions"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.ProductName,
		arg.ProductSku,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalPrice,
		arg.Modifiers,
		arg.SpecialInstructions,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.ProductName,
		&i.ProductSku,
		&i.Quantity,
		&i.UnitPrice,
		&i.TotalPrice,
		&i.Modifiers,
		&i.SpecialInstructions,
		&i.CreatedAt,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	return scanOrder(row)
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::bigint IS NULL OR restaurant_id = $1)
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR channel = $3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at < $5)
  AND ($6::boolean IS NOT TRUE OR status IN ('pending', 'confirmed', 'preparing', 'ready', 'out_for_delivery'))
ORDER BY created_at DESC, id DESC
LIMIT $7 OFFSET $8
`

type ListOrdersParams struct {
	RestaurantID pgtype.Int8        `json:"restaurant_id"`
	Status       pgtype.Text        `json:"status"`
	Channel      pgtype.Text        `json:"channel"`
	DateFrom     pgtype.Timestamptz `json:"date_from"`
	DateTo       pgtype.Timestamptz `json:"date_to"`
	ActiveOnly   pgtype.Bool        `json:"active_only"`
	Limit        int32              `json:"limit"`
	Offset       int32              `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.RestaurantID,
		arg.Status,
		arg.Channel,
		arg.DateFrom,
		arg.DateTo,
		arg.ActiveOnly,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT id, order_id, product_id, product_name, product_sku, quantity, unit_price,
    total_price, modifiers, special_instructions, created_at
FROM order_items
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.ProductID,
			&i.ProductName,
			&i.ProductSku,
			&i.Quantity,
			&i.UnitPrice,
			&i.TotalPrice,
			&i.Modifiers,
			&i.SpecialInstructions,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Timestamp parameters left invalid keep the stored value (COALESCE), so a
// transition only ever writes the milestone it stamps.
const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET
    status = $2,
    confirmed_at = COALESCE($4, confirmed_at),
    prepared_at = COALESCE($5, prepared_at),
    picked_up_at = COALESCE($6, picked_up_at),
    delivered_at = COALESCE($7, delivered_at),
    cancelled_at = COALESCE($8, cancelled_at),
    cancellation_reason = COALESCE($9, cancellation_reason),
    updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	ExpectedStatus     string             `json:"expected_status"`
	ConfirmedAt        pgtype.Timestamptz `json:"confirmed_at"`
	PreparedAt         pgtype.Timestamptz `json:"prepared_at"`
	PickedUpAt         pgtype.Timestamptz `json:"picked_up_at"`
	DeliveredAt        pgtype.Timestamptz `json:"delivered_at"`
	CancelledAt        pgtype.Timestamptz `json:"cancelled_at"`
	CancellationReason pgtype.Text        `json:"cancellation_reason"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID,
		arg.Status,
		arg.ExpectedStatus,
		arg.ConfirmedAt,
		arg.PreparedAt,
		arg.PickedUpAt,
		arg.DeliveredAt,
		arg.CancelledAt,
		arg.CancellationReason,
	)
	return scanOrder(row)
}
