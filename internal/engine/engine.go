// Package engine orchestrates matching: it validates submissions, walks the
// book for counterparties, settles each match through the ledger and records
// the resulting fills and trades.
//
// All state mutation for one submission happens under the instrument's lock,
// so no other submission observes a partially applied match. The four
// balance legs of each match step commit in a single ledger transaction.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/book"
	"github.com/ksred/exchange-api/internal/instruments"
	"github.com/ksred/exchange-api/internal/ledger"
	"github.com/ksred/exchange-api/internal/orders"
	"github.com/ksred/exchange-api/internal/types"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance for order")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSettlementFailure     = errors.New("settlement failure")
)

// SubmitResult is the outcome of one submission: the order's final state and
// every trade the matching pass produced.
type SubmitResult struct {
	Order  *types.Order  `json:"order"`
	Trades []types.Trade `json:"trades"`
}

// Service is the matching engine. It holds one in-memory book and one lock
// per instrument; books are rebuilt from open orders at startup.
type Service struct {
	registry    *orders.Service
	ledger      *ledger.Service
	instruments *instruments.Service
	db          *Database

	mu    sync.Mutex
	books map[string]*book.Book
	locks map[string]*sync.Mutex
}

// NewService creates a new matching engine over the given collaborators
func NewService(gormDB *gorm.DB, registry *orders.Service, ledgerSvc *ledger.Service, instrumentSvc *instruments.Service) *Service {
	return &Service{
		registry:    registry,
		ledger:      ledgerSvc,
		instruments: instrumentSvc,
		db:          NewDatabase(gormDB),
		books:       make(map[string]*book.Book),
		locks:       make(map[string]*sync.Mutex),
	}
}

// instrumentScope returns the lock and book that serialize all matching
// against the ticker, creating them on first use.
func (s *Service) instrumentScope(ticker string) (*sync.Mutex, *book.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[ticker]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ticker] = lock
	}
	bk, ok := s.books[ticker]
	if !ok {
		bk = book.New(ticker)
		s.books[ticker] = bk
	}
	return lock, bk
}

// Rebuild loads every open limit order into its instrument's book. Called
// once at startup, before the engine accepts submissions.
func (s *Service) Rebuild() error {
	list, err := s.instruments.List()
	if err != nil {
		return err
	}

	for _, instrument := range list {
		lock, bk := s.instrumentScope(instrument.Ticker)
		lock.Lock()

		open, err := s.registry.OpenOrders(instrument.Ticker)
		if err != nil {
			lock.Unlock()
			return err
		}
		for i := range open {
			o := &open[i]
			bk.Insert(&book.Resting{
				OrderID:   o.OrderID,
				AccountID: o.AccountID,
				Side:      o.Side,
				Price:     o.Price,
				Remaining: o.Remaining(),
				CreatedAt: o.CreatedAt,
			})
		}

		lock.Unlock()
		log.Info().
			Str("ticker", instrument.Ticker).
			Int("open_orders", len(open)).
			Msg("order book rebuilt")
	}
	return nil
}

// Submit runs one order through the matching pass: instrument check,
// pre-trade balance check, order creation, matching at maker prices in
// price-time priority, then resting or cancelling the residue.
//
// On ErrInsufficientLiquidity and ErrSettlementFailure the returned result
// still carries the order's final state and any trades that completed before
// the failure; completed match steps are never unwound, and the unfilled
// residue is cancelled so the order ends in a terminal state either way.
func (s *Service) Submit(req types.OrderRequest, accountID, idempotencyKey string) (*SubmitResult, error) {
	instrument, err := s.instruments.Get(req.Ticker)
	if err != nil {
		return nil, err
	}

	lock, bk := s.instrumentScope(req.Ticker)
	lock.Lock()
	defer lock.Unlock()

	// Replayed submissions return the original order untouched.
	if existing, err := s.registry.Lookup(idempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return &SubmitResult{Order: existing, Trades: []types.Trade{}}, nil
	}

	orderType := types.OrderTypeMarket
	var price int64
	if req.Price != nil {
		orderType = types.OrderTypeLimit
		price = *req.Price
	}

	if err := s.checkBalance(bk, accountID, req, orderType, price); err != nil {
		return nil, err
	}

	order, err := s.registry.Create(orders.Spec{
		AccountID: accountID,
		Ticker:    req.Ticker,
		Side:      req.Side,
		OrderType: orderType,
		Price:     price,
		Quantity:  req.Quantity,
	}, instrument.TickSize, idempotencyKey)
	if err != nil {
		return nil, err
	}

	var limit *int64
	if orderType == types.OrderTypeLimit {
		limit = &price
	}

	result := &SubmitResult{Order: order, Trades: []types.Trade{}}

	for order.Remaining() > 0 {
		maker, ok := bk.BestEligible(order.Side, limit)
		if !ok {
			break
		}

		matchQty := min(order.Remaining(), maker.Remaining)
		matchPrice := maker.Price // the resting order sets the trade price

		buyerID, sellerID := accountID, maker.AccountID
		if order.Side == types.SideSell {
			buyerID, sellerID = maker.AccountID, accountID
		}

		// Settle before recording fills: if any of the four legs fails the
		// match step leaves no trace, and the submission stops here with the
		// completed steps intact. The taker's residue is cancelled so the
		// order still reaches a terminal state.
		if err := s.ledger.Settle(buyerID, sellerID, req.Ticker, matchQty, matchPrice); err != nil {
			log.Error().Err(err).
				Str("taker_order_id", order.OrderID).
				Str("maker_order_id", maker.OrderID).
				Msg("settlement failed mid-match")
			if cancelled, cancelErr := s.registry.Cancel(order.OrderID, accountID); cancelErr != nil {
				log.Error().Err(cancelErr).
					Str("order_id", order.OrderID).
					Msg("failed to cancel residue after settlement failure")
			} else {
				result.Order = cancelled
			}
			return result, fmt.Errorf("%w: %s", ErrSettlementFailure, err)
		}

		if _, err := s.registry.RecordFill(maker.OrderID, matchQty); err != nil {
			return result, fmt.Errorf("record maker fill: %w", err)
		}
		order, err = s.registry.RecordFill(order.OrderID, matchQty)
		if err != nil {
			return result, fmt.Errorf("record taker fill: %w", err)
		}
		result.Order = order

		trade := types.Trade{
			TradeID:      uuid.New().String(),
			Ticker:       req.Ticker,
			Quantity:     matchQty,
			Price:        matchPrice,
			MakerOrderID: maker.OrderID,
			TakerOrderID: order.OrderID,
			BuyerID:      buyerID,
			SellerID:     sellerID,
			ExecutedAt:   time.Now(),
		}
		if err := s.db.CreateTrade(&trade); err != nil {
			return result, fmt.Errorf("record trade: %w", err)
		}
		result.Trades = append(result.Trades, trade)

		if bk.Reduce(maker.OrderID, matchQty) == 0 {
			bk.Remove(maker.OrderID)
		}

		log.Info().
			Str("ticker", req.Ticker).
			Int64("qty", matchQty).
			Int64("price", matchPrice).
			Str("maker_order_id", maker.OrderID).
			Str("taker_order_id", order.OrderID).
			Msg("trade executed")
	}

	if order.Remaining() > 0 {
		if orderType == types.OrderTypeLimit {
			bk.Insert(&book.Resting{
				OrderID:   order.OrderID,
				AccountID: accountID,
				Side:      order.Side,
				Price:     price,
				Remaining: order.Remaining(),
				CreatedAt: order.CreatedAt,
			})
		} else {
			// Market orders never rest; the unfilled residue is cancelled.
			cancelled, err := s.registry.Cancel(order.OrderID, accountID)
			if err != nil {
				return result, fmt.Errorf("cancel market residue: %w", err)
			}
			result.Order = cancelled
			return result, fmt.Errorf("%w: filled %d of %d",
				ErrInsufficientLiquidity, cancelled.Filled, cancelled.Quantity)
		}
	}

	return result, nil
}

// checkBalance is the pre-trade admission check. Sellers need the asset,
// limit buyers need quantity times limit price in quote currency. Market
// buyers are checked against the best resting opposing price; that is an
// admission estimate, not a guaranteed fill cost, and each match step is
// re-verified by Settle. An empty opposing book skips the estimate and lets
// the matching pass cancel the order for lack of liquidity.
func (s *Service) checkBalance(bk *book.Book, accountID string, req types.OrderRequest, orderType string, price int64) error {
	if req.Side == types.SideSell {
		balance, err := s.ledger.BalanceOf(accountID, req.Ticker)
		if err != nil {
			return err
		}
		if balance.LessThan(decimal.NewFromInt(req.Quantity)) {
			return fmt.Errorf("%w: need %d %s, have %s",
				ErrInsufficientBalance, req.Quantity, req.Ticker, balance)
		}
		return nil
	}

	estimate := price
	if orderType == types.OrderTypeMarket {
		best, ok := bk.BestEligible(types.SideBuy, nil)
		if !ok {
			return nil
		}
		estimate = best.Price
	}

	required := decimal.NewFromInt(req.Quantity).Mul(decimal.NewFromInt(estimate))
	balance, err := s.ledger.BalanceOf(accountID, types.QuoteAsset)
	if err != nil {
		return err
	}
	if balance.LessThan(required) {
		return fmt.Errorf("%w: need %s %s, have %s",
			ErrInsufficientBalance, required, types.QuoteAsset, balance)
	}
	return nil
}

// Cancel transitions the order to CANCELLED and removes it from its book.
// Serialized against matching on the same instrument, so there is no
// cancel-in-flight race.
func (s *Service) Cancel(orderID, accountID string) (*types.Order, error) {
	order, err := s.registry.Get(orderID)
	if err != nil {
		return nil, err
	}

	lock, bk := s.instrumentScope(order.Ticker)
	lock.Lock()
	defer lock.Unlock()

	cancelled, err := s.registry.Cancel(orderID, accountID)
	if err != nil {
		return nil, err
	}
	bk.Remove(orderID)
	return cancelled, nil
}

// Depth returns the aggregated book for the ticker.
func (s *Service) Depth(ticker string) (types.Depth, error) {
	if _, err := s.instruments.Get(ticker); err != nil {
		return types.Depth{}, err
	}

	_, bk := s.instrumentScope(ticker)
	return bk.Depth(), nil
}

// Trades returns the ticker's trade feed ordered by execution time.
func (s *Service) Trades(ticker string) ([]types.Trade, error) {
	if _, err := s.instruments.Get(ticker); err != nil {
		return nil, err
	}
	return s.db.GetTradesByTicker(ticker)
}

// Order returns a single order by id.
func (s *Service) Order(orderID string) (*types.Order, error) {
	return s.registry.Get(orderID)
}

// OrdersOf returns every order the account has submitted.
func (s *Service) OrdersOf(accountID string) ([]types.Order, error) {
	return s.registry.ListByAccount(accountID)
}
