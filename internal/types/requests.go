package types

// OrderRequest is the submission payload. A present price selects a LIMIT
// order; an absent price selects a MARKET order.
type OrderRequest struct {
	Ticker   string `json:"ticker" binding:"required"`
	Side     string `json:"direction" binding:"required,oneof=BUY SELL"`
	Quantity int64  `json:"qty" binding:"required,gt=0"`
	Price    *int64 `json:"price,omitempty"`
}

// TransferRequest covers both deposits and withdrawals.
type TransferRequest struct {
	Ticker string `json:"ticker" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

type InstrumentRequest struct {
	Ticker   string `json:"ticker" binding:"required"`
	Name     string `json:"name" binding:"required"`
	TickSize int64  `json:"tick_size"`
}

type DepthLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"qty"`
}

// Depth is the aggregated view of a book: remaining quantity summed per
// distinct price, bids best-first (descending), asks best-first (ascending).
type Depth struct {
	BidLevels []DepthLevel `json:"bid_levels"`
	AskLevels []DepthLevel `json:"ask_levels"`
}
