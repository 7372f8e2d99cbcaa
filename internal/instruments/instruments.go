// Package instruments is the registry of tradeable instruments.
package instruments

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/types"
	"github.com/ksred/exchange-api/pkg/response"
)

var (
	ErrNotFound          = errors.New("instrument not found")
	ErrInvalidInstrument = errors.New("invalid instrument")
	ErrAlreadyExists     = errors.New("instrument already exists")
	ErrInUse             = errors.New("instrument has open orders or held balances")
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// Service handles instrument registry operations
type Service struct {
	db *Database
}

// NewService creates a new instrument service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Create registers a new instrument. Tickers are uppercase alphabetic, 2-10
// characters; a zero tick size defaults to 1.
func (s *Service) Create(ticker, name string, tickSize int64) (*types.Instrument, error) {
	if !tickerPattern.MatchString(ticker) {
		return nil, fmt.Errorf("%w: ticker must be 2-10 uppercase letters", ErrInvalidInstrument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInstrument)
	}
	if tickSize < 0 {
		return nil, fmt.Errorf("%w: tick size must be positive", ErrInvalidInstrument)
	}
	if tickSize == 0 {
		tickSize = 1
	}
	if ticker == types.QuoteAsset {
		return nil, fmt.Errorf("%w: %s is reserved as the quote currency", ErrInvalidInstrument, ticker)
	}

	existing, err := s.db.GetInstrument(ticker)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, ticker)
	}

	instrument := &types.Instrument{
		Ticker:   ticker,
		Name:     name,
		TickSize: tickSize,
	}
	if err := s.db.CreateInstrument(instrument); err != nil {
		return nil, err
	}

	log.Info().Str("ticker", ticker).Int64("tick_size", tickSize).Msg("instrument registered")
	return instrument, nil
}

// Get returns the instrument for the ticker.
func (s *Service) Get(ticker string) (*types.Instrument, error) {
	instrument, err := s.db.GetInstrument(ticker)
	if err != nil {
		return nil, err
	}
	if instrument == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	return instrument, nil
}

// List returns all registered instruments ordered by ticker.
func (s *Service) List() ([]types.Instrument, error) {
	return s.db.ListInstruments()
}

// Delete removes an instrument. Deletion is refused while any open order or
// nonzero balance still references the ticker; cascading would destroy value.
func (s *Service) Delete(ticker string) error {
	instrument, err := s.db.GetInstrument(ticker)
	if err != nil {
		return err
	}
	if instrument == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}

	references, err := s.db.countReferences(ticker)
	if err != nil {
		return err
	}
	if references > 0 {
		return fmt.Errorf("%w: %s", ErrInUse, ticker)
	}

	if err := s.db.DeleteInstrument(ticker); err != nil {
		return err
	}

	log.Info().Str("ticker", ticker).Msg("instrument deleted")
	return nil
}

// GinHandlers contains HTTP handlers for instrument endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListHandler handles public GET requests for the instrument list
func (h *GinHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instruments, err := h.service.List()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, instruments)
	}
}

// CreateHandler handles admin POST requests registering a new instrument
func (h *GinHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.InstrumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		instrument, err := h.service.Create(req.Ticker, req.Name, req.TickSize)
		switch {
		case errors.Is(err, ErrInvalidInstrument):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrAlreadyExists):
			response.Conflict(c, err.Error())
		case err != nil:
			response.InternalError(c, err.Error())
		default:
			response.Success(c, instrument)
		}
	}
}

// DeleteHandler handles admin DELETE requests for an instrument
func (h *GinHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ticker := c.Param("ticker")

		err := h.service.Delete(ticker)
		switch {
		case errors.Is(err, ErrNotFound):
			response.InstrumentNotFound(c, err.Error())
		case errors.Is(err, ErrInUse):
			response.InstrumentInUse(c, err.Error())
		case err != nil:
			response.InternalError(c, err.Error())
		default:
			response.Success(c, gin.H{"deleted": ticker})
		}
	}
}
