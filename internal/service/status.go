package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tabletap/api/internal/apperr"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/enum"
	"github.com/tabletap/api/internal/policy"
)

var (
	ErrInvalidStatus    = apperr.New(apperr.KindValidation, "invalid status")
	ErrOrderNotFound    = apperr.New(apperr.KindNotFound, "order not found")
	ErrReasonRequired   = apperr.New(apperr.KindValidation, "cancellation reason is required")
	ErrNotCancellable   = apperr.New(apperr.KindInvalidTransition, "order cannot be cancelled in its current status")
	ErrConcurrentUpdate = apperr.New(apperr.KindConflict, "order status was changed by another request")
)

// StatusStore is satisfied by *database.Queries.
type StatusStore interface {
	GetOrder(ctx context.Context, id int64) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// StatusEmitter receives every applied status change. Implementations must
// not block.
type StatusEmitter interface {
	Emit(ctx context.Context, order database.Order, oldStatus, newStatus string)
}

type TransitionRequest struct {
	OrderID int64
	Status  string
	Reason  string // required when Status is cancelled
	Actor   policy.Actor
}

type CancelRequest struct {
	OrderID int64
	Reason  string
	Actor   policy.Actor
}

// StatusService applies order status transitions.
//
// Any enumerated status may be set from any other; the only hard guard is
// that cancellation is possible from pending or confirmed. Setting the same
// status again re-stamps its milestone timestamp.
type StatusService struct {
	store   StatusStore
	policy  *policy.Policy
	emitter StatusEmitter
	log     *slog.Logger
	now     func() time.Time
}

func NewStatusService(store StatusStore, p *policy.Policy, emitter StatusEmitter, log *slog.Logger) *StatusService {
	if log == nil {
		log = slog.Default()
	}
	return &StatusService{store: store, policy: p, emitter: emitter, log: log, now: time.Now}
}

// Transition moves an order to req.Status.
func (s *StatusService) Transition(ctx context.Context, req TransitionRequest) (database.Order, error) {
	if !enum.IsOrderStatus(req.Status) {
		return database.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if err := s.authorize(req.Actor, order, req.Status); err != nil {
		return database.Order{}, err
	}

	reason := strings.TrimSpace(req.Reason)
	if req.Status == enum.OrderStatusCancelled {
		if reason == "" {
			return database.Order{}, ErrReasonRequired
		}
		if !enum.CanBeCancelled(order.Status) {
			return database.Order{}, ErrNotCancellable
		}
	}

	params := stampParams(req.Status, s.now())
	params.ID = order.ID
	params.ExpectedStatus = order.Status
	if req.Status == enum.OrderStatusCancelled {
		params.CancellationReason = pgtype.Text{String: reason, Valid: true}
	}

	updated, err := s.store.UpdateOrderStatus(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrConcurrentUpdate
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	s.log.InfoContext(ctx, "order status changed",
		"order_id", updated.ID,
		"restaurant_id", updated.RestaurantID,
		"old_status", order.Status,
		"new_status", updated.Status,
		"actor_id", req.Actor.UserID,
	)
	if s.emitter != nil {
		s.emitter.Emit(ctx, updated, order.Status, updated.Status)
	}
	return updated, nil
}

// Cancel is Transition to cancelled with a mandatory reason.
func (s *StatusService) Cancel(ctx context.Context, req CancelRequest) (database.Order, error) {
	return s.Transition(ctx, TransitionRequest{
		OrderID: req.OrderID,
		Status:  enum.OrderStatusCancelled,
		Reason:  req.Reason,
		Actor:   req.Actor,
	})
}

func (s *StatusService) authorize(actor policy.Actor, order database.Order, target string) error {
	if err := s.policy.Require(actor, enum.PermUpdateOrderStatus); err != nil {
		return err
	}
	if target == enum.OrderStatusCancelled {
		if err := s.policy.Require(actor, enum.PermCancelOrders); err != nil {
			return err
		}
	}
	return policy.RequireRestaurant(actor, order.RestaurantID)
}

// stampParams sets the milestone timestamp owned by status. pending owns
// none; ready shares prepared_at with preparing.
func stampParams(status string, now time.Time) database.UpdateOrderStatusParams {
	ts := pgtype.Timestamptz{Time: now, Valid: true}
	p := database.UpdateOrderStatusParams{Status: status}
	switch status {
	case enum.OrderStatusConfirmed:
		p.ConfirmedAt = ts
	case enum.OrderStatusPreparing, enum.OrderStatusReady:
		p.PreparedAt = ts
	case enum.OrderStatusOutForDelivery:
		p.PickedUpAt = ts
	case enum.OrderStatusDelivered:
		p.DeliveredAt = ts
	case enum.OrderStatusCancelled:
		p.CancelledAt = ts
	}
	return p
}
