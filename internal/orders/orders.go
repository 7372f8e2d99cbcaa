// Package orders owns the canonical state of every order and its lifecycle
// transitions. Fills and cancels funnel through here; status is always
// recomputed from (filled, requested, cancelled).
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/types"
)

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrUnknownOrder  = errors.New("unknown order")
	ErrOverFill      = errors.New("fill exceeds remaining quantity")
	ErrNotOwner      = errors.New("order belongs to a different account")
	ErrTerminalState = errors.New("order is already in a terminal state")
)

// Service handles order lifecycle operations
type Service struct {
	db *Database
}

// NewService creates a new order registry with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Create validates the spec against the instrument's tick size and persists
// a NEW order. An idempotency key, when present, is recorded in the same
// transaction so replays return the original order.
func (s *Service) Create(spec Spec, tickSize int64, idempotencyKey string) (*types.Order, error) {
	if err := validate(spec, tickSize); err != nil {
		return nil, err
	}

	order := &types.Order{
		OrderID:   uuid.New().String(),
		AccountID: spec.AccountID,
		Ticker:    spec.Ticker,
		Side:      spec.Side,
		OrderType: spec.OrderType,
		Price:     spec.Price,
		Quantity:  spec.Quantity,
		Filled:    0,
		Status:    types.StatusNew,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.db.CreateOrderWithIdempotency(order, idempotencyKey); err != nil {
		return nil, err
	}

	log.Debug().
		Str("order_id", order.OrderID).
		Str("ticker", order.Ticker).
		Str("side", order.Side).
		Str("order_type", order.OrderType).
		Int64("qty", order.Quantity).
		Msg("order created")

	return order, nil
}

func validate(spec Spec, tickSize int64) error {
	if spec.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	switch spec.OrderType {
	case types.OrderTypeLimit:
		if spec.Price <= 0 {
			return fmt.Errorf("%w: limit orders require a positive price", ErrInvalidOrder)
		}
		if tickSize > 0 && spec.Price%tickSize != 0 {
			return fmt.Errorf("%w: price %d is not a multiple of tick size %d",
				ErrInvalidOrder, spec.Price, tickSize)
		}
	case types.OrderTypeMarket:
		if spec.Price != 0 {
			return fmt.Errorf("%w: market orders must not carry a price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, spec.OrderType)
	}

	return nil
}

// Lookup resolves an idempotency key to the order it originally created.
// Expired or unknown keys return (nil, nil).
func (s *Service) Lookup(idempotencyKey string) (*types.Order, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil || record == nil {
		return nil, err
	}
	if record.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}

	order, err := s.db.GetOrder(record.ResourceID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: idempotency record points at missing order %s",
			ErrUnknownOrder, record.ResourceID)
	}
	return order, nil
}

// RecordFill increments the order's filled quantity and recomputes its
// status: EXECUTED when fully filled, PARTIALLY_EXECUTED when partially.
func (s *Service) RecordFill(orderID string, quantity int64) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	if quantity <= 0 || quantity > order.Remaining() {
		return nil, fmt.Errorf("%w: fill %d against remaining %d on order %s",
			ErrOverFill, quantity, order.Remaining(), orderID)
	}

	order.Filled += quantity
	if order.Filled == order.Quantity {
		order.Status = types.StatusExecuted
	} else {
		order.Status = types.StatusPartiallyExecuted
	}
	order.UpdatedAt = time.Now()

	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel transitions a non-terminal order to CANCELLED. Only the owning
// account may cancel.
func (s *Service) Cancel(orderID, accountID string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if order.AccountID != accountID {
		return nil, fmt.Errorf("%w: order %s", ErrNotOwner, orderID)
	}
	if order.Terminal() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrTerminalState, orderID, order.Status)
	}

	order.Status = types.StatusCancelled
	order.UpdatedAt = time.Now()
	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}

	log.Debug().Str("order_id", orderID).Msg("order cancelled")
	return order, nil
}

// Get retrieves an order by its ID.
func (s *Service) Get(orderID string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return order, nil
}

// ListByAccount returns every order the account has submitted, oldest first.
func (s *Service) ListByAccount(accountID string) ([]types.Order, error) {
	return s.db.GetOrdersByAccount(accountID)
}

// OpenOrders returns the ticker's resting-eligible limit orders in time
// priority order.
func (s *Service) OpenOrders(ticker string) ([]types.Order, error) {
	return s.db.GetOpenOrders(ticker)
}
