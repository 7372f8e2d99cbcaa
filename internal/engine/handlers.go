package engine

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/ksred/exchange-api/internal/instruments"
	"github.com/ksred/exchange-api/internal/orders"
	"github.com/ksred/exchange-api/internal/types"
	"github.com/ksred/exchange-api/pkg/response"
)

// GinHandlers contains HTTP handlers for order and market data endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the matching engine
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// SubmitOrderHandler handles POST requests submitting new orders. A price in
// the payload selects a limit order, no price selects a market order. An
// optional Idempotency-Key header makes replays return the original order.
func (h *GinHandlers) SubmitOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Submit(req, accountID, c.GetHeader("Idempotency-Key"))
		switch {
		case errors.Is(err, instruments.ErrNotFound):
			response.InstrumentNotFound(c, err.Error())
		case errors.Is(err, orders.ErrInvalidOrder):
			response.InvalidOrder(c, err.Error())
		case errors.Is(err, ErrInsufficientBalance):
			response.InsufficientBalance(c, err.Error())
		case errors.Is(err, ErrInsufficientLiquidity):
			response.InsufficientLiquidity(c, fmt.Sprintf("market order cancelled: %s", err))
		case errors.Is(err, ErrSettlementFailure):
			response.SettlementFailure(c, err.Error())
		case err != nil:
			response.InternalError(c, err.Error())
		default:
			response.Success(c, result)
		}
	}
}

// ListOrdersHandler handles GET requests for the account's orders
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		list, err := h.service.OrdersOf(accountID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, list)
	}
}

// GetOrderHandler handles GET requests for a single order. Orders are only
// visible to the account that placed them.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		orderID := c.Param("order_id")

		order, err := h.service.Order(orderID)
		if errors.Is(err, orders.ErrUnknownOrder) {
			response.UnknownOrder(c, err.Error())
			return
		}
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if order.AccountID != accountID {
			response.UnknownOrder(c, "unknown order: "+orderID)
			return
		}
		response.Success(c, order)
	}
}

// CancelOrderHandler handles DELETE requests cancelling an order
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		orderID := c.Param("order_id")

		order, err := h.service.Cancel(orderID, accountID)
		switch {
		case errors.Is(err, orders.ErrUnknownOrder):
			response.UnknownOrder(c, err.Error())
		case errors.Is(err, orders.ErrNotOwner):
			response.NotOwner(c, err.Error())
		case errors.Is(err, orders.ErrTerminalState):
			response.TerminalState(c, err.Error())
		case err != nil:
			response.InternalError(c, err.Error())
		default:
			response.Success(c, order)
		}
	}
}

// DepthHandler handles public GET requests for a ticker's aggregated book
func (h *GinHandlers) DepthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		depth, err := h.service.Depth(c.Param("ticker"))
		if errors.Is(err, instruments.ErrNotFound) {
			response.InstrumentNotFound(c, err.Error())
			return
		}
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, depth)
	}
}

// TradesHandler handles public GET requests for a ticker's trade history
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.Trades(c.Param("ticker"))
		if errors.Is(err, instruments.ErrNotFound) {
			response.InstrumentNotFound(c, err.Error())
			return
		}
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, trades)
	}
}
