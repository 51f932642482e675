package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tabletap/api/internal/apperr"
	"github.com/tabletap/api/internal/catalog"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/pricing"
)

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	commits     int
	rollbacks   int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.commits++
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error {
	m.rollbacks++
	return m.rollbackErr
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx    pgx.Tx
	err   error
	calls int
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	m.calls++
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getRestaurantFn      func(ctx context.Context, id int64) (database.Restaurant, error)
	getProductForOrderFn func(ctx context.Context, arg database.GetProductForOrderParams) (database.GetProductForOrderRow, error)
	createOrderFn        func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	setOrderNumberFn     func(ctx context.Context, arg database.SetOrderNumberParams) (database.Order, error)
	createOrderItemFn    func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)

	createdOrders []database.CreateOrderParams
	createdItems  []database.CreateOrderItemParams
}

func (m *mockOrderStore) GetRestaurant(ctx context.Context, id int64) (database.Restaurant, error) {
	return m.getRestaurantFn(ctx, id)
}
func (m *mockOrderStore) GetProductForOrder(ctx context.Context, arg database.GetProductForOrderParams) (database.GetProductForOrderRow, error) {
	return m.getProductForOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	m.createdOrders = append(m.createdOrders, arg)
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) SetOrderNumber(ctx context.Context, arg database.SetOrderNumberParams) (database.Order, error) {
	return m.setOrderNumberFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	m.createdItems = append(m.createdItems, arg)
	return m.createOrderItemFn(ctx, arg)
}

// --- Test helpers ---

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

const (
	pizzaPalaceID  = int64(1)
	margheritaID   = int64(10)
	pepperoniID    = int64(11)
	telegramOnlyID = int64(12)
)

// newTestService creates an OrderService with mocked dependencies.
func newTestService(store *mockOrderStore) (*OrderService, *mockTx, *mockTxBeginner) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, newStore, nil), tx, pool
}

// defaultStore returns a mockOrderStore backed by the Pizza Palace catalog.
// Individual tests override the functions they care about.
func defaultStore() *mockOrderStore {
	var lastOrder database.Order
	nextItemID := int64(100)
	return &mockOrderStore{
		getRestaurantFn: func(ctx context.Context, id int64) (database.Restaurant, error) {
			if id != pizzaPalaceID {
				return database.Restaurant{}, pgx.ErrNoRows
			}
			return database.Restaurant{
				ID:       pizzaPalaceID,
				Name:     "Pizza Palace",
				Currency: "USD",
				Status:   "active",
				Settings: []byte(`{"tax_rate":8,"delivery_fee":"3.00","service_fee":1.00,"estimated_prep_time":25}`),
			}, nil
		},
		getProductForOrderFn: func(ctx context.Context, arg database.GetProductForOrderParams) (database.GetProductForOrderRow, error) {
			if arg.RestaurantID != pizzaPalaceID {
				return database.GetProductForOrderRow{}, pgx.ErrNoRows
			}
			row := database.GetProductForOrderRow{
				ID:           arg.ID,
				RestaurantID: pizzaPalaceID,
				IsActive:     true,
			}
			switch arg.ID {
			case margheritaID:
				row.Name = []byte(`{"en":"Margherita","ru":"Маргарита","uz":"Margarita"}`)
				row.Sku = pgtype.Text{String: "PIZ-MAR", Valid: true}
				row.Prices = []byte(`{"web":12.99,"mobile":12.49}`)
				row.Channels = []byte(`["web","mobile","phone"]`)
			case pepperoniID:
				row.Name = []byte(`{"en":"Pepperoni"}`)
				row.Prices = []byte(`{"web":"14.50"}`)
				row.Channels = []byte(`["web","mobile","phone"]`)
			case telegramOnlyID:
				row.Name = []byte(`{"en":"Bot special"}`)
				row.Prices = []byte(`{"telegram":9}`)
				row.Channels = []byte(`["telegram"]`)
			default:
				return database.GetProductForOrderRow{}, pgx.ErrNoRows
			}
			return row, nil
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			lastOrder = database.Order{
				ID:                42,
				RestaurantID:      arg.RestaurantID,
				UserID:            arg.UserID,
				Channel:           arg.Channel,
				Status:            "pending",
				PaymentStatus:     "pending",
				CustomerInfo:      arg.CustomerInfo,
				DeliveryInfo:      arg.DeliveryInfo,
				ItemsTotal:        arg.ItemsTotal,
				TaxAmount:         arg.TaxAmount,
				DeliveryFee:       arg.DeliveryFee,
				ServiceFee:        arg.ServiceFee,
				DiscountAmount:    arg.DiscountAmount,
				TotalAmount:       arg.TotalAmount,
				Currency:          arg.Currency,
				EstimatedPrepTime: arg.EstimatedPrepTime,
			}
			return lastOrder, nil
		},
		setOrderNumberFn: func(ctx context.Context, arg database.SetOrderNumberParams) (database.Order, error) {
			o := lastOrder
			o.OrderNumber = pgtype.Text{String: arg.OrderNumber, Valid: true}
			return o, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			nextItemID++
			return database.OrderItem{
				ID:                  nextItemID,
				OrderID:             arg.OrderID,
				ProductID:           arg.ProductID,
				ProductName:         arg.ProductName,
				ProductSku:          arg.ProductSku,
				Quantity:            arg.Quantity,
				UnitPrice:           arg.UnitPrice,
				TotalPrice:          arg.TotalPrice,
				Modifiers:           arg.Modifiers,
				SpecialInstructions: arg.SpecialInstructions,
			}, nil
		},
	}
}

func basicReq(items ...CreateOrderItemRequest) CreateOrderRequest {
	if len(items) == 0 {
		items = []CreateOrderItemRequest{{ProductID: margheritaID, Quantity: 2}}
	}
	return CreateOrderRequest{
		RestaurantID: pizzaPalaceID,
		Channel:      "web",
		Customer:     CustomerInfo{Name: "Ann", Phone: "+998901234567"},
		Delivery:     DeliveryInfo{Type: "pickup"},
		Items:        items,
	}
}

// =====================
// Validation tests
// =====================

func TestCreateOrder_EmptyItems(t *testing.T) {
	svc, _, pool := newTestService(defaultStore())

	req := basicReq()
	req.Items = nil
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
	if !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation kind, got %q", apperr.KindOf(err))
	}
	if pool.calls != 0 {
		t.Errorf("validation failure must not open a transaction")
	}
}

func TestCreateOrder_InvalidChannel(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	req := basicReq()
	req.Channel = "fax"
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got: %v", err)
	}
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	_, err := svc.CreateOrder(context.Background(), basicReq(CreateOrderItemRequest{ProductID: margheritaID, Quantity: 0}))
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
	if !strings.Contains(err.Error(), "items[0]") {
		t.Errorf("error should name the item: %v", err)
	}
}

func TestCreateOrder_DeliveryRequiresAddress(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	req := basicReq()
	req.Delivery = DeliveryInfo{Type: "delivery"}
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got: %v", err)
	}
}

func TestCreateOrder_InvalidDeliveryType(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	req := basicReq()
	req.Delivery = DeliveryInfo{Type: "drone"}
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidDeliveryType) {
		t.Fatalf("expected ErrInvalidDeliveryType, got: %v", err)
	}
}

func TestCreateOrder_ScheduledInPast(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	past := time.Now().Add(-time.Hour)
	req := basicReq()
	req.Delivery.ScheduledAt = &past
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrScheduledInPast) {
		t.Fatalf("expected ErrScheduledInPast, got: %v", err)
	}
}

func TestCreateOrder_MissingCustomer(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	req := basicReq()
	req.Customer.Phone = " "
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrCustomerRequired) {
		t.Fatalf("expected ErrCustomerRequired, got: %v", err)
	}
}

func TestCreateOrder_NegativeModifier(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	_, err := svc.CreateOrder(context.Background(), basicReq(CreateOrderItemRequest{
		ProductID: margheritaID,
		Quantity:  1,
		Modifiers: []pricing.Modifier{{Name: "Discount hack", Price: decimal.RequireFromString("-5")}},
	}))
	if !errors.Is(err, ErrNegativeModifier) {
		t.Fatalf("expected ErrNegativeModifier, got: %v", err)
	}
}

// =====================
// Lookup failures
// =====================

func TestCreateOrder_RestaurantNotFound(t *testing.T) {
	svc, tx, _ := newTestService(defaultStore())

	req := basicReq()
	req.RestaurantID = 99
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got: %v", err)
	}
	if tx.commits != 0 || tx.rollbacks != 1 {
		t.Errorf("expected rollback only, got commits=%d rollbacks=%d", tx.commits, tx.rollbacks)
	}
}

func TestCreateOrder_RestaurantInactive(t *testing.T) {
	store := defaultStore()
	store.getRestaurantFn = func(ctx context.Context, id int64) (database.Restaurant, error) {
		return database.Restaurant{ID: id, Name: "Closed", Status: "suspended"}, nil
	}
	svc, _, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq())
	if !errors.Is(err, ErrRestaurantInactive) {
		t.Fatalf("expected ErrRestaurantInactive, got: %v", err)
	}
	if apperr.HTTPStatus(err) != 400 {
		t.Errorf("status: got %d, want 400", apperr.HTTPStatus(err))
	}
}

func TestCreateOrder_ProductNotFound(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	_, err := svc.CreateOrder(context.Background(), basicReq(CreateOrderItemRequest{ProductID: 404, Quantity: 1}))
	if !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got: %v", err)
	}
	if !strings.Contains(err.Error(), "product 404") {
		t.Errorf("error should name the product: %v", err)
	}
}

func TestCreateOrder_ChannelMismatchAbortsWholeOrder(t *testing.T) {
	store := defaultStore()
	svc, tx, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq(
		CreateOrderItemRequest{ProductID: margheritaID, Quantity: 1},
		CreateOrderItemRequest{ProductID: telegramOnlyID, Quantity: 1},
	))
	if !errors.Is(err, catalog.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got: %v", err)
	}
	if !strings.Contains(err.Error(), "items[1]") {
		t.Errorf("error should name the offending item: %v", err)
	}
	if apperr.HTTPStatus(err) != 400 {
		t.Errorf("status: got %d, want 400", apperr.HTTPStatus(err))
	}
	if len(store.createdOrders) != 0 || len(store.createdItems) != 0 {
		t.Errorf("nothing may be written: orders=%d items=%d", len(store.createdOrders), len(store.createdItems))
	}
	if tx.commits != 0 {
		t.Error("commit must not be called")
	}
	if tx.rollbacks != 1 {
		t.Errorf("expected rollback, got %d", tx.rollbacks)
	}
}

func TestCreateOrder_ItemInsertFailureRollsBack(t *testing.T) {
	store := defaultStore()
	calls := 0
	base := store.createOrderItemFn
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		calls++
		if calls == 2 {
			return database.OrderItem{}, errors.New("disk full")
		}
		return base(ctx, arg)
	}
	svc, tx, _ := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq(
		CreateOrderItemRequest{ProductID: margheritaID, Quantity: 1},
		CreateOrderItemRequest{ProductID: pepperoniID, Quantity: 1},
	))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected insert failure, got: %v", err)
	}
	if apperr.HTTPStatus(err) != 500 {
		t.Errorf("status: got %d, want 500", apperr.HTTPStatus(err))
	}
	if tx.commits != 0 || tx.rollbacks != 1 {
		t.Errorf("expected rollback only, got commits=%d rollbacks=%d", tx.commits, tx.rollbacks)
	}
}

func TestCreateOrder_CommitFailure(t *testing.T) {
	svc, tx, _ := newTestService(defaultStore())
	tx.commitErr = errors.New("connection lost")

	_, err := svc.CreateOrder(context.Background(), basicReq())
	if err == nil || !strings.Contains(err.Error(), "commit tx") {
		t.Fatalf("expected commit error, got: %v", err)
	}
}

// =====================
// Pricing and snapshot tests
// =====================

func TestCreateOrder_PizzaPalaceTotals(t *testing.T) {
	store := defaultStore()
	svc, tx, _ := newTestService(store)

	result, err := svc.CreateOrder(context.Background(), basicReq(CreateOrderItemRequest{
		ProductID: margheritaID,
		Quantity:  2,
		Modifiers: []pricing.Modifier{{Name: "Extra cheese", Price: decimal.RequireFromString("1.50")}},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o := result.Order
	checks := []struct {
		name string
		got  pgtype.Numeric
		want string
	}{
		{"items_total", o.ItemsTotal, "28.98"},
		{"tax_amount", o.TaxAmount, "2.32"},
		{"delivery_fee", o.DeliveryFee, "0"},
		{"service_fee", o.ServiceFee, "1.00"},
		{"discount_amount", o.DiscountAmount, "0"},
		{"total_amount", o.TotalAmount, "32.30"},
	}
	for _, c := range checks {
		if !numericEquals(c.got, c.want) {
			t.Errorf("%s: got %s, want %s", c.name, numericToDecimal(c.got), c.want)
		}
	}

	if o.Currency != "USD" {
		t.Errorf("currency: got %q, want USD", o.Currency)
	}
	if o.EstimatedPrepTime.Int32 != 25 {
		t.Errorf("estimated_prep_time: got %d, want 25", o.EstimatedPrepTime.Int32)
	}
	if tx.commits != 1 {
		t.Errorf("expected one commit, got %d", tx.commits)
	}

	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	item := result.Items[0]
	if !numericEquals(item.UnitPrice, "12.99") {
		t.Errorf("unit_price: got %s", numericToDecimal(item.UnitPrice))
	}
	if !numericEquals(item.TotalPrice, "28.98") {
		t.Errorf("total_price: got %s", numericToDecimal(item.TotalPrice))
	}
	if item.ProductSku.String != "PIZ-MAR" {
		t.Errorf("sku snapshot: got %q", item.ProductSku.String)
	}

	var name map[string]string
	if err := json.Unmarshal(item.ProductName, &name); err != nil {
		t.Fatalf("product name snapshot: %v", err)
	}
	if name["en"] != "Margherita" || name["ru"] != "Маргарита" || name["uz"] != "Margarita" {
		t.Errorf("product name snapshot: got %v", name)
	}

	var mods []pricing.Modifier
	if err := json.Unmarshal(item.Modifiers, &mods); err != nil {
		t.Fatalf("modifiers: %v", err)
	}
	if len(mods) != 1 || mods[0].Name != "Extra cheese" || !mods[0].Price.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("modifiers snapshot: got %+v", mods)
	}
}

func TestCreateOrder_DeliveryFeeAndChannelPrice(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	req := basicReq(CreateOrderItemRequest{ProductID: margheritaID, Quantity: 1})
	req.Channel = "mobile"
	req.Delivery = DeliveryInfo{Type: "delivery", Address: "Amir Temur 1"}
	result, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 12.49 + tax 1.00 (0.9992) + delivery 3.00 + service 1.00
	if !numericEquals(result.Order.ItemsTotal, "12.49") {
		t.Errorf("items_total: got %s", numericToDecimal(result.Order.ItemsTotal))
	}
	if !numericEquals(result.Order.DeliveryFee, "3.00") {
		t.Errorf("delivery_fee: got %s", numericToDecimal(result.Order.DeliveryFee))
	}
	if !numericEquals(result.Order.TotalAmount, "17.49") {
		t.Errorf("total_amount: got %s", numericToDecimal(result.Order.TotalAmount))
	}

	var delivery map[string]any
	if err := json.Unmarshal(result.Order.DeliveryInfo, &delivery); err != nil {
		t.Fatalf("delivery info: %v", err)
	}
	if delivery["type"] != "delivery" || delivery["address"] != "Amir Temur 1" {
		t.Errorf("delivery info: got %v", delivery)
	}
}

func TestCreateOrder_MultipleItems(t *testing.T) {
	store := defaultStore()
	svc, _, _ := newTestService(store)

	result, err := svc.CreateOrder(context.Background(), basicReq(
		CreateOrderItemRequest{ProductID: margheritaID, Quantity: 1},
		CreateOrderItemRequest{ProductID: pepperoniID, Quantity: 2, SpecialInstructions: "well done"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 12.99 + 29.00 = 41.99
	if !numericEquals(result.Order.ItemsTotal, "41.99") {
		t.Errorf("items_total: got %s", numericToDecimal(result.Order.ItemsTotal))
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[1].SpecialInstructions.String != "well done" {
		t.Errorf("special instructions: got %q", result.Items[1].SpecialInstructions.String)
	}
	if string(result.Items[0].Modifiers) != "[]" {
		t.Errorf("empty modifiers should be stored as [], got %s", result.Items[0].Modifiers)
	}
	for _, it := range store.createdItems {
		if it.OrderID != 42 {
			t.Errorf("item order_id: got %d, want 42", it.OrderID)
		}
	}
}

func TestCreateOrder_GuestAndUser(t *testing.T) {
	store := defaultStore()
	svc, _, _ := newTestService(store)

	if _, err := svc.CreateOrder(context.Background(), basicReq()); err != nil {
		t.Fatalf("guest order: %v", err)
	}
	if store.createdOrders[0].UserID.Valid {
		t.Error("guest order must have NULL user_id")
	}

	uid := int64(5)
	req := basicReq()
	req.UserID = &uid
	if _, err := svc.CreateOrder(context.Background(), req); err != nil {
		t.Fatalf("user order: %v", err)
	}
	if got := store.createdOrders[1].UserID; !got.Valid || got.Int64 != 5 {
		t.Errorf("user_id: got %+v", got)
	}
}

// =====================
// Order number tests
// =====================

var orderNumberPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}-\d{6}$`)

func TestCreateOrder_OrderNumber(t *testing.T) {
	svc, _, _ := newTestService(defaultStore())

	result, err := svc.CreateOrder(context.Background(), basicReq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Order.OrderNumber.String; got != "PIZ-000042" {
		t.Errorf("order number: got %q, want PIZ-000042", got)
	}
}

func TestFormatOrderNumber(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want string
	}{
		{"Pizza Palace", 1, "PIZ-000001"},
		{"sushi bar", 123456, "SUS-123456"},
		{"A1 Grill", 7, "A1G-000007"},
		{"Mr. B's", 9, "MRB-000009"},
		{"Yo", 10, "YO-000010"},
		{"Кафе Лагман", 11, "ORD-000011"},
		{"", 12, "ORD-000012"},
		{"!!!", 13, "ORD-000013"},
	}
	for _, tt := range tests {
		got := FormatOrderNumber(tt.name, tt.id)
		if got != tt.want {
			t.Errorf("FormatOrderNumber(%q, %d) = %q, want %q", tt.name, tt.id, got, tt.want)
		}
		if !orderNumberPattern.MatchString(got) {
			t.Errorf("%q does not match %s", got, orderNumberPattern)
		}
	}
}

func TestCreateOrder_RetryOnUniqueViolation(t *testing.T) {
	store := defaultStore()
	attempts := 0
	base := store.setOrderNumberFn
	store.setOrderNumberFn = func(ctx context.Context, arg database.SetOrderNumberParams) (database.Order, error) {
		attempts++
		if attempts == 1 {
			return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
		}
		return base(ctx, arg)
	}
	svc, tx, pool := newTestService(store)

	result, err := svc.CreateOrder(context.Background(), basicReq())
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if attempts != 2 || pool.calls != 2 {
		t.Errorf("expected 2 attempts in 2 transactions, got attempts=%d begins=%d", attempts, pool.calls)
	}
	if tx.commits != 1 {
		t.Errorf("expected one commit, got %d", tx.commits)
	}
	if result.Order.OrderNumber.String == "" {
		t.Error("order number not set")
	}
}

func TestCreateOrder_RetryExhausted(t *testing.T) {
	store := defaultStore()
	store.setOrderNumberFn = func(ctx context.Context, arg database.SetOrderNumberParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
	}
	svc, _, pool := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq())
	if !errors.Is(err, apperr.Conflict) {
		t.Fatalf("expected Conflict after retries, got: %v", err)
	}
	if pool.calls != maxOrderNumberRetries {
		t.Errorf("expected %d attempts, got %d", maxOrderNumberRetries, pool.calls)
	}
	if strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "orders_order_number_key") {
		t.Errorf("error must not expose database details: %q", err.Error())
	}
}

func TestCreateOrder_NumericOverflowIsBusinessRule(t *testing.T) {
	store := defaultStore()
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{Code: "22003", Message: "numeric field overflow"}
	}
	svc, tx, pool := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq())
	if !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got: %v", err)
	}
	if pool.calls != 1 || tx.commits != 0 {
		t.Errorf("overflow must not retry or commit: begins=%d commits=%d", pool.calls, tx.commits)
	}
	if strings.Contains(err.Error(), "22003") {
		t.Errorf("error must not expose SQLSTATE: %q", err.Error())
	}
}

func TestCreateOrder_QuantityUpperBound(t *testing.T) {
	svc, _, pool := newTestService(defaultStore())
	req := basicReq()
	req.Items[0].Quantity = MaxItemQuantity + 1

	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
	if pool.calls != 0 {
		t.Errorf("validation failure must not open a transaction, got %d", pool.calls)
	}
}

func TestCreateOrder_NonUniqueErrorNotRetried(t *testing.T) {
	store := defaultStore()
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{Code: "23514", ConstraintName: "orders_total_amount_check"}
	}
	svc, _, pool := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), basicReq())
	if err == nil {
		t.Fatal("expected error")
	}
	if pool.calls != 1 {
		t.Errorf("expected a single attempt, got %d", pool.calls)
	}
}

func TestCreateOrder_BeginFailure(t *testing.T) {
	store := defaultStore()
	pool := &mockTxBeginner{err: errors.New("pool closed")}
	svc := NewOrderService(pool, func(db database.DBTX) OrderStore { return store }, nil)

	_, err := svc.CreateOrder(context.Background(), basicReq())
	if err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got: %v", err)
	}
}
