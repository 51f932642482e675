// Package notify broadcasts order status changes to every configured
// publisher. Publishing is fire-and-forget: failures are logged and never
// reach the caller that changed the order.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tabletap/api/internal/database"
)

const DefaultTimeout = 5 * time.Second

// Publisher delivers one encoded event to one topic.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Emitter struct {
	publishers []Publisher
	timeout    time.Duration
	log        *slog.Logger
	wg         sync.WaitGroup
}

func NewEmitter(log *slog.Logger, timeout time.Duration, publishers ...Publisher) *Emitter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{publishers: publishers, timeout: timeout, log: log}
}

// Emit publishes the change of order from oldStatus to newStatus on its
// restaurant, global and per-order topics. It returns immediately.
func (e *Emitter) Emit(ctx context.Context, order database.Order, oldStatus, newStatus string) {
	event := NewEvent(order, oldStatus, newStatus)
	payload, err := json.Marshal(event)
	if err != nil {
		e.log.ErrorContext(ctx, "notify: encode event", "order_id", order.ID, "error", err)
		return
	}

	for _, topic := range Topics(order.RestaurantID, order.ID) {
		for _, p := range e.publishers {
			e.wg.Add(1)
			go e.publish(p, topic, event.ID, payload)
		}
	}
}

func (e *Emitter) publish(p Publisher, topic, eventID string, payload []byte) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	if err := p.Publish(ctx, topic, payload); err != nil {
		e.log.Error("notify: publish failed",
			"publisher", p.Name(),
			"topic", topic,
			"event_id", eventID,
			"error", err,
		)
		return
	}
	e.log.Debug("notify: published", "publisher", p.Name(), "topic", topic, "event_id", eventID)
}

// Close waits for in-flight publishes.
func (e *Emitter) Close() {
	e.wg.Wait()
}
