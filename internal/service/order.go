package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/apperr"
	"github.com/tabletap/api/internal/catalog"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/pricing"
)

const (
	maxOrderNumberRetries = 3
	// MaxItemQuantity bounds a single line so totals fit NUMERIC(10,2).
	MaxItemQuantity       = 1000

	orderNumberConstraint = "orders_order_number_key"
	defaultOrderPrefix    = "ORD"
)

// Errors returned by the order service.
var (
	ErrEmptyItems          = apperr.New(apperr.KindValidation, "items are required")
	ErrInvalidChannel      = apperr.New(apperr.KindValidation, "invalid channel")
	ErrInvalidQuantity     = apperr.New(apperr.KindValidation, "quantity must be between 1 and 1000")
	ErrInvalidDeliveryType = apperr.New(apperr.KindValidation, "delivery type must be delivery or pickup")
	ErrAddressRequired     = apperr.New(apperr.KindValidation, "address is required for delivery")
	ErrScheduledInPast     = apperr.New(apperr.KindValidation, "scheduled_at must be in the future")
	ErrCustomerRequired    = apperr.New(apperr.KindValidation, "customer name and phone are required")
	ErrNegativeModifier    = apperr.New(apperr.KindValidation, "modifier price must not be negative")
	ErrRestaurantNotFound  = apperr.New(apperr.KindNotFound, "restaurant not found")
	ErrRestaurantInactive  = apperr.New(apperr.KindBusinessRule, "restaurant is not accepting orders")
	ErrAmountOutOfRange    = apperr.New(apperr.KindBusinessRule, "order amount is out of range")
	ErrNumberExhausted     = apperr.New(apperr.KindConflict, "could not allocate order number")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	catalog.ProductGetter
	GetRestaurant(ctx context.Context, id int64) (database.Restaurant, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	SetOrderNumber(ctx context.Context, arg database.SetOrderNumberParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type DeliveryInfo struct {
	Type        string     `json:"type"`
	Address     string     `json:"address,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	RestaurantID        int64
	UserID              *int64 // nil for guest orders
	Channel             string
	Customer            CustomerInfo
	Delivery            DeliveryInfo
	Notes               string
	SpecialInstructions string
	Items               []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single item in the order.
type CreateOrderItemRequest struct {
	ProductID           int64
	Quantity            int32
	Modifiers           []pricing.Modifier
	SpecialInstructions string
}

// CreateOrderResult is the full created order with items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order creation.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	log      *slog.Logger
	now      func() time.Time
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{pool: pool, newStore: newStore, log: log, now: time.Now}
}

// CreateOrder validates, prices and persists an order with its items
// atomically. Retries up to maxOrderNumberRetries times when the generated
// order number collides with an existing one.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			s.log.WarnContext(ctx, "order number conflict, retrying",
				"restaurant_id", req.RestaurantID,
				"attempt", attempt+1,
			)
			lastErr = err
			continue
		}
		if isNumericOverflow(err) {
			s.log.WarnContext(ctx, "order amount overflow",
				"restaurant_id", req.RestaurantID,
				"error", err,
			)
			return nil, ErrAmountOutOfRange
		}
		return nil, err
	}
	s.log.ErrorContext(ctx, "order number retries exhausted",
		"restaurant_id", req.RestaurantID,
		"error", lastErr,
	)
	return nil, ErrNumberExhausted
}

func (s *OrderService) validate(req CreateOrderRequest) error {
	if !enum.IsChannel(req.Channel) {
		return ErrInvalidChannel
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	if strings.TrimSpace(req.Customer.Name) == "" || strings.TrimSpace(req.Customer.Phone) == "" {
		return ErrCustomerRequired
	}
	switch req.Delivery.Type {
	case enum.DeliveryTypeDelivery:
		if strings.TrimSpace(req.Delivery.Address) == "" {
			return ErrAddressRequired
		}
	case enum.DeliveryTypePickup:
	default:
		return ErrInvalidDeliveryType
	}
	if req.Delivery.ScheduledAt != nil && !req.Delivery.ScheduledAt.After(s.now()) {
		return ErrScheduledInPast
	}
	for i, item := range req.Items {
		if item.Quantity < 1 || item.Quantity > MaxItemQuantity {
			return fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		for j, m := range item.Modifiers {
			if m.Price.IsNegative() {
				return fmt.Errorf("items[%d].modifiers[%d]: %w", i, j, ErrNegativeModifier)
			}
		}
	}
	return nil
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == orderNumberConstraint
	}
	return false
}

// isNumericOverflow reports a numeric field overflow (22003) from Postgres.
func isNumericOverflow(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22003"
}

// createOrderTx executes the full order creation in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	restaurant, err := store.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	if restaurant.Status != enum.StatusActive {
		return nil, ErrRestaurantInactive
	}
	settings, err := pricing.ParseSettings(restaurant.Settings)
	if err != nil {
		return nil, fmt.Errorf("restaurant %d: %w", restaurant.ID, err)
	}

	// --- Resolve every item before writing anything ---
	products := catalog.New(store, s.log)
	resolved := make([]catalog.Resolved, len(req.Items))
	lines := make([]pricing.Line, len(req.Items))
	for i, item := range req.Items {
		res, err := products.ResolvePrice(ctx, req.RestaurantID, item.ProductID, req.Channel, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: product %d: %w", i, item.ProductID, err)
		}
		resolved[i] = res
		lines[i] = pricing.Line{
			UnitPrice: res.UnitPrice,
			Quantity:  item.Quantity,
			Modifiers: item.Modifiers,
		}
	}

	totals := pricing.Compute(settings, req.Delivery.Type, lines)

	customerInfo, err := json.Marshal(req.Customer)
	if err != nil {
		return nil, fmt.Errorf("encode customer info: %w", err)
	}
	deliveryInfo, err := json.Marshal(req.Delivery)
	if err != nil {
		return nil, fmt.Errorf("encode delivery info: %w", err)
	}

	userID := pgtype.Int8{}
	if req.UserID != nil {
		userID = pgtype.Int8{Int64: *req.UserID, Valid: true}
	}
	scheduledAt := pgtype.Timestamptz{}
	if req.Delivery.ScheduledAt != nil {
		scheduledAt = pgtype.Timestamptz{Time: *req.Delivery.ScheduledAt, Valid: true}
	}

	// --- Insert order ---
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID:        restaurant.ID,
		UserID:              userID,
		Channel:             req.Channel,
		CustomerInfo:        customerInfo,
		DeliveryInfo:        deliveryInfo,
		ItemsTotal:          decimalToNumeric(totals.ItemsTotal),
		TaxAmount:           decimalToNumeric(totals.TaxAmount),
		DeliveryFee:         decimalToNumeric(totals.DeliveryFee),
		ServiceFee:          decimalToNumeric(totals.ServiceFee),
		DiscountAmount:      decimalToNumeric(totals.DiscountAmount),
		TotalAmount:         decimalToNumeric(totals.TotalAmount),
		Currency:            restaurant.Currency,
		Notes:               optionalText(req.Notes),
		SpecialInstructions: optionalText(req.SpecialInstructions),
		EstimatedPrepTime:   pgtype.Int4{Int32: settings.EstimatedPrepTime, Valid: true},
		ScheduledAt:         scheduledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order, err = store.SetOrderNumber(ctx, database.SetOrderNumberParams{
		ID:          order.ID,
		OrderNumber: FormatOrderNumber(restaurant.Name, order.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("set order number: %w", err)
	}

	// --- Insert items ---
	items := make([]database.OrderItem, 0, len(req.Items))
	for i, item := range req.Items {
		res := resolved[i]

		name, err := json.Marshal(res.Name)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: encode name: %w", i, err)
		}
		modifiers := item.Modifiers
		if modifiers == nil {
			modifiers = []pricing.Modifier{}
		}
		mods, err := json.Marshal(modifiers)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: encode modifiers: %w", i, err)
		}

		created, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:             order.ID,
			ProductID:           pgtype.Int8{Int64: res.ProductID, Valid: true},
			ProductName:         name,
			ProductSku:          optionalText(res.Sku),
			Quantity:            item.Quantity,
			UnitPrice:           decimalToNumeric(res.UnitPrice),
			TotalPrice:          decimalToNumeric(totals.LineTotals[i]),
			Modifiers:           mods,
			SpecialInstructions: optionalText(item.SpecialInstructions),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, created)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber.String,
		"restaurant_id", order.RestaurantID,
		"channel", order.Channel,
		"total_amount", totals.TotalAmount.StringFixed(2),
	)

	return &CreateOrderResult{Order: order, Items: items}, nil
}

// FormatOrderNumber builds PREFIX-000042 from the restaurant name and the
// order id. The prefix is the first three letters or digits of the name,
// uppercased, or ORD when the name has none.
func FormatOrderNumber(restaurantName string, id int64) string {
	return fmt.Sprintf("%s-%06d", orderPrefix(restaurantName), id)
}

func orderPrefix(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
			if b.Len() == 3 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return defaultOrderPrefix
	}
	return b.String()
}

// --- Helpers ---

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
