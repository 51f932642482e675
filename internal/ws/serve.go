package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/tabletap/api/internal/auth"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/notify"
	"github.com/tabletap/api/internal/policy"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (we validate via JWT)
	},
}

// OrderGetter is satisfied by *database.Queries.
type OrderGetter interface {
	GetOrder(ctx context.Context, id int64) (database.Order, error)
}

// Handler upgrades subscription requests after checking that the token
// holder may watch the requested topic.
type Handler struct {
	hub    *Hub
	secret string
	policy *policy.Policy
	orders OrderGetter
	log    *slog.Logger
}

func NewHandler(hub *Hub, jwtSecret string, p *policy.Policy, orders OrderGetter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{hub: hub, secret: jwtSecret, policy: p, orders: orders, log: log}
}

// RegisterRoutes mounts the subscription endpoints. Tokens travel in the
// token query parameter since browsers cannot set headers on upgrades.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/restaurants/{rid}/orders", h.RestaurantOrders)
	r.Get("/ws/orders", h.AllOrders)
	r.Get("/ws/orders/{id}", h.Order)
}

// RestaurantOrders subscribes to restaurant.{rid}.
func (h *Handler) RestaurantOrders(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	rid, err := strconv.ParseInt(chi.URLParam(r, "rid"), 10, 64)
	if err != nil {
		http.Error(w, "invalid restaurant id", http.StatusBadRequest)
		return
	}
	actor := claims.Actor()
	if err := h.policy.Require(actor, enum.PermViewOrders); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err := policy.RequireRestaurant(actor, rid); err != nil {
		http.Error(w, "restaurant access denied", http.StatusForbidden)
		return
	}
	h.serve(w, r, notify.RestaurantTopic(rid))
}

// AllOrders subscribes to the platform-wide orders topic.
func (h *Handler) AllOrders(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	actor := claims.Actor()
	if !actor.IsPlatform() {
		http.Error(w, "platform role required", http.StatusForbidden)
		return
	}
	h.serve(w, r, notify.TopicOrders)
}

// Order subscribes to order.{id}. Staff of the order's restaurant may watch
// it, and so may the customer who placed it.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		h.log.ErrorContext(r.Context(), "ws: get order", "order_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	actor := claims.Actor()
	owner := order.UserID.Valid && order.UserID.Int64 == actor.UserID
	staff := h.policy.Can(actor, enum.PermViewOrders) && policy.RequireRestaurant(actor, order.RestaurantID) == nil
	if !owner && !staff {
		http.Error(w, "order access denied", http.StatusForbidden)
		return
	}
	h.serve(w, r, notify.OrderTopic(order.ID))
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := auth.ValidateToken(h.secret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", "topic", topic, "error", err)
		return
	}

	client := &Client{
		hub:   h.hub,
		conn:  conn,
		topic: topic,
		send:  make(chan []byte, 256),
		log:   h.log,
	}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
