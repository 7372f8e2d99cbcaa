// Package ledger is the per-account, per-asset balance store. Every balance
// mutation goes through Adjust or Settle, both of which refuse to leave any
// amount negative.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/exchange-api/internal/types"
	"github.com/ksred/exchange-api/pkg/response"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Service serializes balance mutations per account. Adjustments touching
// several accounts take the account locks in sorted order, so concurrent
// settlements cannot deadlock.
type Service struct {
	db *Database

	mu       sync.Mutex
	accounts map[string]*sync.Mutex
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		accounts: make(map[string]*sync.Mutex),
	}
}

// lockAccounts acquires the per-account locks for the given accounts in a
// fixed global order and returns the matching unlock.
func (s *Service) lockAccounts(accountIDs ...string) func() {
	ids := append([]string(nil), accountIDs...)
	sort.Strings(ids)

	locks := make([]*sync.Mutex, 0, len(ids))
	var prev string
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		locks = append(locks, s.accountLock(id))
	}

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (s *Service) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.accounts[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.accounts[accountID] = l
	}
	return l
}

// Adjust applies a signed delta to the account's balance for the asset and
// returns the new amount. The balance row is created lazily; a delta that
// would take the amount negative fails with ErrInsufficientFunds and mutates
// nothing.
func (s *Service) Adjust(accountID, asset string, delta decimal.Decimal) (decimal.Decimal, error) {
	unlock := s.lockAccounts(accountID)
	defer unlock()

	tx := s.db.db.Begin()
	if err := tx.Error; err != nil {
		return decimal.Zero, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	amount, err := s.db.applyDelta(tx, accountID, asset, delta)
	if err != nil {
		tx.Rollback()
		return decimal.Zero, err
	}

	if err := tx.Commit().Error; err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// BalanceOf returns the current amount for (account, asset), zero when no
// row exists.
func (s *Service) BalanceOf(accountID, asset string) (decimal.Decimal, error) {
	return s.db.GetBalance(accountID, asset)
}

// Snapshot returns every nonzero-or-touched asset amount for the account.
func (s *Service) Snapshot(accountID string) (map[string]decimal.Decimal, error) {
	balances, err := s.db.GetBalances(accountID)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		snapshot[b.Asset] = b.Amount
	}
	return snapshot, nil
}

// Settle moves the two legs of a trade between buyer and seller in one
// transaction: the buyer receives qty of the asset and pays qty*price in
// quote currency, the seller the reverse. Either all four adjustments apply
// or none do.
func (s *Service) Settle(buyerID, sellerID, asset string, qty, price int64) error {
	quantity := decimal.NewFromInt(qty)
	notional := quantity.Mul(decimal.NewFromInt(price))

	unlock := s.lockAccounts(buyerID, sellerID)
	defer unlock()

	tx := s.db.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	legs := []struct {
		accountID string
		asset     string
		delta     decimal.Decimal
	}{
		{buyerID, asset, quantity},
		{buyerID, types.QuoteAsset, notional.Neg()},
		{sellerID, asset, quantity.Neg()},
		{sellerID, types.QuoteAsset, notional},
	}

	for _, leg := range legs {
		if _, err := s.db.applyDelta(tx, leg.accountID, leg.asset, leg.delta); err != nil {
			tx.Rollback()
			return fmt.Errorf("settle %s leg for account %s: %w", leg.asset, leg.accountID, err)
		}
	}

	return tx.Commit().Error
}

// GinHandlers contains HTTP handlers for balance endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// BalancesHandler handles GET requests for the authenticated account's
// balance snapshot.
func (h *GinHandlers) BalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		snapshot, err := h.service.Snapshot(accountID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, snapshot)
	}
}

// DepositHandler handles POST requests crediting an asset to the
// authenticated account.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return h.transferHandler(false)
}

// WithdrawHandler handles POST requests debiting an asset from the
// authenticated account. Overdrawing fails without changing the balance.
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return h.transferHandler(true)
}

func (h *GinHandlers) transferHandler(withdraw bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		if accountID == "" {
			response.Unauthorized(c, "Missing account identity")
			return
		}

		var req types.TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		delta := decimal.NewFromInt(req.Amount)
		if withdraw {
			delta = delta.Neg()
		}

		amount, err := h.service.Adjust(accountID, req.Ticker, delta)
		if errors.Is(err, ErrInsufficientFunds) {
			response.InsufficientFunds(c, "Withdrawal exceeds available balance")
			return
		}
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		log.Debug().
			Str("account_id", accountID).
			Str("asset", req.Ticker).
			Str("amount", amount.String()).
			Bool("withdraw", withdraw).
			Msg("balance adjusted")

		response.Success(c, gin.H{"asset": req.Ticker, "amount": amount})
	}
}
