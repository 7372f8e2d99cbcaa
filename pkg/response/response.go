package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// Exchange error codes
const (
	ErrCodeInvalidOrder          = "INVALID_ORDER"
	ErrCodeInstrumentNotFound    = "INSTRUMENT_NOT_FOUND"
	ErrCodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
	ErrCodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	ErrCodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	ErrCodeUnknownOrder          = "UNKNOWN_ORDER"
	ErrCodeNotOwner              = "NOT_OWNER"
	ErrCodeTerminalState         = "TERMINAL_STATE"
	ErrCodeSettlementFailure     = "SETTLEMENT_FAILURE"
	ErrCodeInstrumentInUse       = "INSTRUMENT_IN_USE"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeDuplicateResource, message)
}

// InvalidOrder sends a 422 response for orders that fail validation
func InvalidOrder(c *gin.Context, message string) {
	fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidOrder, message)
}

// InstrumentNotFound sends a 404 response with the instrument-specific code
func InstrumentNotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeInstrumentNotFound, message)
}

// InsufficientBalance sends a 400 response for failed pre-trade checks
func InsufficientBalance(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeInsufficientBalance, message)
}

// InsufficientFunds sends a 400 response for overdrawing withdrawals
func InsufficientFunds(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeInsufficientFunds, message)
}

// InsufficientLiquidity sends a 400 response for market orders the book
// cannot fill
func InsufficientLiquidity(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeInsufficientLiquidity, message)
}

// UnknownOrder sends a 404 response with the order-specific code
func UnknownOrder(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeUnknownOrder, message)
}

// NotOwner sends a 403 response for operations on another account's order
func NotOwner(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodeNotOwner, message)
}

// TerminalState sends a 409 response for cancels of finished orders
func TerminalState(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeTerminalState, message)
}

// SettlementFailure sends a 500 response; it signals a conservation defect,
// never a user error
func SettlementFailure(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeSettlementFailure, message)
}

// InstrumentInUse sends a 409 response for deletes of referenced instruments
func InstrumentInUse(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeInstrumentInUse, message)
}
