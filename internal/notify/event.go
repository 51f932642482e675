package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletap/api/internal/database"
)

// EventOrderStatusChanged is the name every status-change event carries.
const EventOrderStatusChanged = "order.status.changed"

const TopicOrders = "orders"

func RestaurantTopic(restaurantID int64) string { return fmt.Sprintf("restaurant.%d", restaurantID) }

func OrderTopic(orderID int64) string { return fmt.Sprintf("order.%d", orderID) }

// Topics returns the three topics a change to order is published on.
func Topics(restaurantID, orderID int64) []string {
	return []string{RestaurantTopic(restaurantID), TopicOrders, OrderTopic(orderID)}
}

type Event struct {
	ID         string       `json:"event_id"`
	Name       string       `json:"event"`
	OccurredAt time.Time    `json:"occurred_at"`
	Order      OrderPayload `json:"order"`
}

type OrderPayload struct {
	ID           int64           `json:"id"`
	OrderNumber  string          `json:"order_number"`
	Status       string          `json:"status"`
	OldStatus    string          `json:"old_status"`
	NewStatus    string          `json:"new_status"`
	TotalAmount  string          `json:"total_amount"`
	Currency     string          `json:"currency"`
	Channel      string          `json:"channel"`
	CustomerInfo json.RawMessage `json:"customer_info"`
	RestaurantID int64           `json:"restaurant_id"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewEvent snapshots order after a status change.
func NewEvent(order database.Order, oldStatus, newStatus string) Event {
	customer := json.RawMessage(order.CustomerInfo)
	if len(customer) == 0 {
		customer = json.RawMessage("null")
	}
	return Event{
		ID:         uuid.NewString(),
		Name:       EventOrderStatusChanged,
		OccurredAt: time.Now().UTC(),
		Order: OrderPayload{
			ID:           order.ID,
			OrderNumber:  order.OrderNumber.String,
			Status:       order.Status,
			OldStatus:    oldStatus,
			NewStatus:    newStatus,
			TotalAmount:  numericString(order.TotalAmount),
			Currency:     order.Currency,
			Channel:      order.Channel,
			CustomerInfo: customer,
			RestaurantID: order.RestaurantID,
			UpdatedAt:    order.UpdatedAt,
		},
	}
}

func numericString(n pgtype.Numeric) string {
	v, err := n.Value()
	if err != nil || v == nil {
		return "0.00"
	}
	s, ok := v.(string)
	if !ok {
		return "0.00"
	}
	return s
}
