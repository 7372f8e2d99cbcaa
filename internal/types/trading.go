package types

import (
	"time"

	"gorm.io/gorm"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types. The wire contract selects LIMIT when a price is present and
// MARKET when it is absent; internally the type is always explicit.
const (
	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"
)

// Order statuses.
const (
	StatusNew               = "NEW"
	StatusPartiallyExecuted = "PARTIALLY_EXECUTED"
	StatusExecuted          = "EXECUTED"
	StatusCancelled         = "CANCELLED"
)

// QuoteAsset is the currency every instrument trades against.
const QuoteAsset = "USD"

type Instrument struct {
	gorm.Model `json:"-"`
	Ticker     string `gorm:"uniqueIndex" json:"ticker"`
	Name       string `json:"name"`
	TickSize   int64  `json:"tick_size"` // minimum price increment, in price units
}

type Order struct {
	gorm.Model `json:"-"`
	OrderID    string    `gorm:"uniqueIndex" json:"order_id"`
	AccountID  string    `gorm:"index" json:"account_id"`
	Ticker     string    `gorm:"index" json:"ticker"`
	Side       string    `json:"direction"`  // BUY or SELL
	OrderType  string    `json:"order_type"` // LIMIT or MARKET
	Price      int64     `json:"price,omitempty"` // set iff LIMIT
	Quantity   int64     `json:"qty"`
	Filled     int64     `json:"filled"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Terminal reports whether the order can no longer change.
func (o *Order) Terminal() bool {
	return o.Status == StatusExecuted || o.Status == StatusCancelled
}

type Trade struct {
	gorm.Model   `json:"-"`
	TradeID      string    `gorm:"uniqueIndex" json:"trade_id"`
	Ticker       string    `gorm:"index" json:"ticker"`
	Quantity     int64     `json:"qty"`
	Price        int64     `json:"price"`
	MakerOrderID string    `json:"maker_order_id"`
	TakerOrderID string    `json:"taker_order_id"`
	BuyerID      string    `json:"buyer_account_id"`
	SellerID     string    `json:"seller_account_id"`
	ExecutedAt   time.Time `json:"executed_at"`
}
