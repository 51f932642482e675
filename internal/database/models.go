package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type Restaurant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Currency  string    `json:"currency"`
	Settings  []byte    `json:"settings"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID            int64       `json:"id"`
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
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type Order struct {
	ID                  int64              `json:"id"`
	RestaurantID        int64              `json:"restaurant_id"`
	UserID              pgtype.Int8        `json:"user_id"`
	OrderNumber         pgtype.Text        `json:"order_number"`
	Channel             string             `json:"channel"`
	Status              string             `json:"status"`
	PaymentStatus       string             `json:"payment_status"`
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
	ConfirmedAt         pgtype.Timestamptz `json:"confirmed_at"`
	PreparedAt          pgtype.Timestamptz `json:"prepared_at"`
	PickedUpAt          pgtype.Timestamptz `json:"picked_up_at"`
	DeliveredAt         pgtype.Timestamptz `json:"delivered_at"`
	CancelledAt         pgtype.Timestamptz `json:"cancelled_at"`
	CancellationReason  pgtype.Text        `json:"cancellation_reason"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type OrderItem struct {
	ID                  int64          `json:"id"`
	OrderID             int64          `json:"order_id"`
	ProductID           pgtype.Int8    `json:"product_id"`
	ProductName         []byte         `json:"product_name"`
	ProductSku          pgtype.Text    `json:"product_sku"`
	Quantity            int32          `json:"quantity"`
	UnitPrice           pgtype.Numeric `json:"unit_price"`
	TotalPrice          pgtype.Numeric `json:"total_price"`
	Modifiers           []byte         `json:"modifiers"`
	SpecialInstructions pgtype.Text    `json:"special_instructions"`
	CreatedAt           time.Time      `json:"created_at"`
}

type User struct {
	ID               int64              `json:"id"`
	RestaurantID     pgtype.Int8        `json:"restaurant_id"`
	Name             string             `json:"name"`
	Email            string             `json:"email"`
	HashedPassword   string             `json:"hashed_password"`
	Phone            pgtype.Text        `json:"phone"`
	Status           string             `json:"status"`
	SuspensionReason pgtype.Text        `json:"suspension_reason"`
	DeletedAt        pgtype.Timestamptz `json:"deleted_at"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
