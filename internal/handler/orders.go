package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/middleware"
	"github.com/tabletap/api/internal/policy"
	"github.com/tabletap/api/internal/pricing"
	"github.com/tabletap/api/internal/service"
)

const (
	defaultListLimit = 15
	maxListLimit     = 100
	qrSize           = 256
)

// OrderCreator is satisfied by *service.OrderService.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// StatusChanger is satisfied by *service.StatusService.
type StatusChanger interface {
	Transition(ctx context.Context, req service.TransitionRequest) (database.Order, error)
	Cancel(ctx context.Context, req service.CancelRequest) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID int64) ([]database.OrderItem, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	orders OrderCreator
	status StatusChanger
	store  OrderStore
	policy *policy.Policy
	log    *slog.Logger
}

func NewOrderHandler(orders OrderCreator, status StatusChanger, store OrderStore, p *policy.Policy, log *slog.Logger) *OrderHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OrderHandler{orders: orders, status: status, store: store, policy: p, log: log}
}

// RegisterPublicRoutes mounts order intake. Guests may order; when a token
// is present the order is attributed to its user.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
}

// RegisterRoutes mounts the authenticated order endpoints. Expects claims in
// the request context.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	view := middleware.RequirePermission(h.policy, enum.PermViewOrders)

	r.With(view).Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Get("/orders/{id}/qr", h.QRCode)
	r.With(middleware.RequirePermission(h.policy, enum.PermUpdateOrderStatus)).
		Put("/orders/{id}/status", h.UpdateStatus)
	r.With(middleware.RequirePermission(h.policy, enum.PermCancelOrders)).
		Post("/orders/{id}/cancel", h.Cancel)
	r.With(view, middleware.RequireRestaurant).Get("/restaurants/{rid}/orders", h.ListByRestaurant)
}

// --- Request / Response types ---

type createOrderRequest struct {
	RestaurantID        int64                    `json:"restaurant_id" validate:"required,gt=0"`
	Channel             string                   `json:"channel" validate:"required,channel"`
	CustomerInfo        customerInfoRequest      `json:"customer_info"`
	DeliveryInfo        deliveryInfoRequest      `json:"delivery_info"`
	Notes               string                   `json:"notes" validate:"max=1000"`
	SpecialInstructions string                   `json:"special_instructions" validate:"max=1000"`
	Items               []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type customerInfoRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Phone string `json:"phone" validate:"required,max=32"`
	Email string `json:"email" validate:"omitempty,email"`
}

type deliveryInfoRequest struct {
	Type        string     `json:"type" validate:"required,oneof=delivery pickup"`
	Address     string     `json:"address" validate:"required_if=Type delivery,max=500"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type createOrderItemRequest struct {
	ProductID           int64             `json:"product_id" validate:"required,gt=0"`
	Quantity            int32             `json:"quantity" validate:"required,min=1,max=1000"`
	Modifiers           []modifierRequest `json:"modifiers" validate:"dive"`
	SpecialInstructions string            `json:"special_instructions" validate:"max=500"`
}

type modifierRequest struct {
	Name  string          `json:"name" validate:"required,max=255"`
	Price decimal.Decimal `json:"price"`
}

type updateStatusRequest struct {
	Status             string `json:"status" validate:"required"`
	CancellationReason string `json:"cancellation_reason" validate:"max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type orderResponse struct {
	ID                  int64               `json:"id"`
	RestaurantID        int64               `json:"restaurant_id"`
	UserID              *int64              `json:"user_id"`
	OrderNumber         string              `json:"order_number"`
	Channel             string              `json:"channel"`
	Status              string              `json:"status"`
	PaymentStatus       string              `json:"payment_status"`
	CustomerInfo        json.RawMessage     `json:"customer_info"`
	DeliveryInfo        json.RawMessage     `json:"delivery_info"`
	ItemsTotal          string              `json:"items_total"`
	TaxAmount           string              `json:"tax_amount"`
	DeliveryFee         string              `json:"delivery_fee"`
	ServiceFee          string              `json:"service_fee"`
	DiscountAmount      string              `json:"discount_amount"`
	TotalAmount         string              `json:"total_amount"`
	Currency            string              `json:"currency"`
	Notes               *string             `json:"notes"`
	SpecialInstructions *string             `json:"special_instructions"`
	EstimatedPrepTime   *int32              `json:"estimated_prep_time"`
	ScheduledAt         *time.Time          `json:"scheduled_at"`
	ConfirmedAt         *time.Time          `json:"confirmed_at"`
	PreparedAt          *time.Time          `json:"prepared_at"`
	PickedUpAt          *time.Time          `json:"picked_up_at"`
	DeliveredAt         *time.Time          `json:"delivered_at"`
	CancelledAt         *time.Time          `json:"cancelled_at"`
	CancellationReason  *string             `json:"cancellation_reason"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	Items               []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID                  int64           `json:"id"`
	ProductID           *int64          `json:"product_id"`
	ProductName         json.RawMessage `json:"product_name"`
	ProductSku          *string         `json:"product_sku"`
	Quantity            int32           `json:"quantity"`
	UnitPrice           string          `json:"unit_price"`
	TotalPrice          string          `json:"total_price"`
	Modifiers           json.RawMessage `json:"modifiers"`
	SpecialInstructions *string         `json:"special_instructions"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	items := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		var mods []pricing.Modifier
		if len(item.Modifiers) > 0 {
			mods = make([]pricing.Modifier, len(item.Modifiers))
			for j, m := range item.Modifiers {
				mods[j] = pricing.Modifier{Name: m.Name, Price: m.Price}
			}
		}
		items[i] = service.CreateOrderItemRequest{
			ProductID:           item.ProductID,
			Quantity:            item.Quantity,
			Modifiers:           mods,
			SpecialInstructions: item.SpecialInstructions,
		}
	}

	svcReq := service.CreateOrderRequest{
		RestaurantID: req.RestaurantID,
		Channel:      req.Channel,
		Customer: service.CustomerInfo{
			Name:  req.CustomerInfo.Name,
			Phone: req.CustomerInfo.Phone,
			Email: req.CustomerInfo.Email,
		},
		Delivery: service.DeliveryInfo{
			Type:        req.DeliveryInfo.Type,
			Address:     req.DeliveryInfo.Address,
			ScheduledAt: req.DeliveryInfo.ScheduledAt,
		},
		Notes:               req.Notes,
		SpecialInstructions: req.SpecialInstructions,
		Items:               items,
	}
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		uid := claims.UserID
		svcReq.UserID = &uid
	}

	result, err := h.orders.CreateOrder(r.Context(), svcReq)
	if err != nil {
		respondError(w, r, h.log, "create order", err)
		return
	}

	resp := dbOrderToResponse(result.Order)
	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, item := range result.Items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}
	respondMessage(w, http.StatusCreated, "order created", resp)
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	actor := claims.Actor()

	params, limit, offset, ok := parseListParams(w, r)
	if !ok {
		return
	}

	if s := r.URL.Query().Get("restaurant_id"); s != "" {
		rid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid restaurant_id")
			return
		}
		params.RestaurantID = pgtype.Int8{Int64: rid, Valid: true}
	}
	if !actor.IsPlatform() {
		if actor.RestaurantID == nil {
			fail(w, http.StatusForbidden, "restaurant is outside your scope")
			return
		}
		if params.RestaurantID.Valid && params.RestaurantID.Int64 != *actor.RestaurantID {
			fail(w, http.StatusForbidden, "restaurant is outside your scope")
			return
		}
		params.RestaurantID = pgtype.Int8{Int64: *actor.RestaurantID, Valid: true}
	}

	h.writeOrderList(w, r, params, limit, offset)
}

// ListByRestaurant handles GET /restaurants/{rid}/orders. Only active
// orders are returned unless ?status= or ?all=true is given.
func (h *OrderHandler) ListByRestaurant(w http.ResponseWriter, r *http.Request) {
	rid, err := strconv.ParseInt(chi.URLParam(r, "rid"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid restaurant ID")
		return
	}

	params, limit, offset, ok := parseListParams(w, r)
	if !ok {
		return
	}
	params.RestaurantID = pgtype.Int8{Int64: rid, Valid: true}
	if !params.Status.Valid && r.URL.Query().Get("all") != "true" {
		params.ActiveOnly = pgtype.Bool{Bool: true, Valid: true}
	}

	h.writeOrderList(w, r, params, limit, offset)
}

func (h *OrderHandler) writeOrderList(w http.ResponseWriter, r *http.Request, params database.ListOrdersParams, limit, offset int) {
	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		respondError(w, r, h.log, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	respondMessage(w, http.StatusOK, "orders retrieved", orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		respondError(w, r, h.log, "list order items", err)
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = make([]orderItemResponse, len(items))
	for i, item := range items {
		resp.Items[i] = dbOrderItemToResponse(item)
	}
	respondMessage(w, http.StatusOK, "order retrieved", resp)
}

// QRCode handles GET /orders/{id}/qr: a PNG encoding the order number, for
// receipts and pickup counters.
func (h *OrderHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	if !order.OrderNumber.Valid {
		fail(w, http.StatusNotFound, "order has no number yet")
		return
	}

	png, err := qrcode.Encode(order.OrderNumber.String, qrcode.Medium, qrSize)
	if err != nil {
		respondError(w, r, h.log, "encode order qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png) //nolint:errcheck
}

// UpdateStatus handles PUT /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	updated, err := h.status.Transition(r.Context(), service.TransitionRequest{
		OrderID: orderID,
		Status:  req.Status,
		Reason:  req.CancellationReason,
		Actor:   claims.Actor(),
	})
	if err != nil {
		respondError(w, r, h.log, "update order status", err)
		return
	}
	respondMessage(w, http.StatusOK, "order status updated", dbOrderToResponse(updated))
}

// Cancel handles POST /orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		decodeFailure(w, err)
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	cancelled, err := h.status.Cancel(r.Context(), service.CancelRequest{
		OrderID: orderID,
		Reason:  req.Reason,
		Actor:   claims.Actor(),
	})
	if err != nil {
		respondError(w, r, h.log, "cancel order", err)
		return
	}
	respondMessage(w, http.StatusOK, "order cancelled", dbOrderToResponse(cancelled))
}

// loadVisibleOrder fetches the {id} order and checks the caller may see it:
// the customer who placed it, or staff with view-orders in its restaurant.
func (h *OrderHandler) loadVisibleOrder(w http.ResponseWriter, r *http.Request) (database.Order, bool) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return database.Order{}, false
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fail(w, http.StatusNotFound, "order not found")
			return database.Order{}, false
		}
		respondError(w, r, h.log, "get order", err)
		return database.Order{}, false
	}

	actor := middleware.ClaimsFromContext(r.Context()).Actor()
	if err := h.canView(actor, order); err != nil {
		fail(w, http.StatusForbidden, err.Error())
		return database.Order{}, false
	}
	return order, true
}

func (h *OrderHandler) canView(actor policy.Actor, order database.Order) error {
	if order.UserID.Valid && order.UserID.Int64 == actor.UserID {
		return nil
	}
	if err := h.policy.Require(actor, enum.PermViewOrders); err != nil {
		return err
	}
	return policy.RequireRestaurant(actor, order.RestaurantID)
}

// --- Helpers ---

func parseOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		fail(w, http.StatusBadRequest, "invalid order ID")
		return 0, false
	}
	return id, true
}

// parseListParams reads the shared filters: status, channel, date_from,
// date_to (YYYY-MM-DD, inclusive), limit and offset.
func parseListParams(w http.ResponseWriter, r *http.Request) (database.ListOrdersParams, int, int, bool) {
	q := r.URL.Query()

	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := 0
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}

	if s := q.Get("status"); s != "" {
		if !enum.IsOrderStatus(s) {
			fail(w, http.StatusUnprocessableEntity, "invalid status")
			return params, 0, 0, false
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("channel"); s != "" {
		if !enum.IsChannel(s) {
			fail(w, http.StatusUnprocessableEntity, "invalid channel")
			return params, 0, 0, false
		}
		params.Channel = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("date_from"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid date_from format, use YYYY-MM-DD")
			return params, 0, 0, false
		}
		params.DateFrom = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("date_to"); s != "" {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid date_to format, use YYYY-MM-DD")
			return params, 0, 0, false
		}
		params.DateTo = pgtype.Timestamptz{Time: t.AddDate(0, 0, 1), Valid: true}
	}

	return params, limit, offset, true
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func rawJSON(b []byte, fallback string) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(b)
}

// dbOrderToResponse converts a database.Order to an orderResponse.
func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:                  o.ID,
		RestaurantID:        o.RestaurantID,
		OrderNumber:         o.OrderNumber.String,
		Channel:             o.Channel,
		Status:              o.Status,
		PaymentStatus:       o.PaymentStatus,
		CustomerInfo:        rawJSON(o.CustomerInfo, "{}"),
		DeliveryInfo:        rawJSON(o.DeliveryInfo, "{}"),
		ItemsTotal:          numericToString(o.ItemsTotal),
		TaxAmount:           numericToString(o.TaxAmount),
		DeliveryFee:         numericToString(o.DeliveryFee),
		ServiceFee:          numericToString(o.ServiceFee),
		DiscountAmount:      numericToString(o.DiscountAmount),
		TotalAmount:         numericToString(o.TotalAmount),
		Currency:            o.Currency,
		Notes:               textPtr(o.Notes),
		SpecialInstructions: textPtr(o.SpecialInstructions),
		ScheduledAt:         timePtr(o.ScheduledAt),
		ConfirmedAt:         timePtr(o.ConfirmedAt),
		PreparedAt:          timePtr(o.PreparedAt),
		PickedUpAt:          timePtr(o.PickedUpAt),
		DeliveredAt:         timePtr(o.DeliveredAt),
		CancelledAt:         timePtr(o.CancelledAt),
		CancellationReason:  textPtr(o.CancellationReason),
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	if o.UserID.Valid {
		uid := o.UserID.Int64
		resp.UserID = &uid
	}
	if o.EstimatedPrepTime.Valid {
		v := o.EstimatedPrepTime.Int32
		resp.EstimatedPrepTime = &v
	}
	return resp
}

func dbOrderItemToResponse(item database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:                  item.ID,
		ProductName:         rawJSON(item.ProductName, "{}"),
		ProductSku:          textPtr(item.ProductSku),
		Quantity:            item.Quantity,
		UnitPrice:           numericToString(item.UnitPrice),
		TotalPrice:          numericToString(item.TotalPrice),
		Modifiers:           rawJSON(item.Modifiers, "[]"),
		SpecialInstructions: textPtr(item.SpecialInstructions),
	}
	if item.ProductID.Valid {
		pid := item.ProductID.Int64
		resp.ProductID = &pid
	}
	return resp
}
