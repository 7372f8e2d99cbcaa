// Package book holds the resting limit orders for a single instrument,
// sorted by price-time priority on each side.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/ksred/exchange-api/internal/types"
)

// Resting is the book's view of an open limit order. Remaining is kept in
// sync by the matching engine through Reduce.
type Resting struct {
	OrderID   string
	AccountID string
	Side      string
	Price     int64
	Remaining int64
	CreatedAt time.Time
}

// level groups resting orders at one price. Orders are appended on insert
// and consumed from the front, which gives strict FIFO within the level.
type level struct {
	price  int64
	orders []*Resting
}

// Book is the per-instrument resting-order index. Bids are sorted by price
// descending, asks ascending; within a level, earlier orders come first.
type Book struct {
	ticker string

	bids []*level
	asks []*level

	// Quick lookup by order ID
	byID map[string]*Resting

	mu sync.RWMutex
}

func New(ticker string) *Book {
	return &Book{
		ticker: ticker,
		bids:   make([]*level, 0),
		asks:   make([]*level, 0),
		byID:   make(map[string]*Resting),
	}
}

// Insert adds a limit order with remaining quantity to the appropriate side.
// Market orders are never inserted; they fill immediately or are cancelled.
func (b *Book) Insert(r *Resting) {
	if r.Remaining <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.byID[r.OrderID] = r
	if r.Side == types.SideBuy {
		b.bids = addToSide(b.bids, r, func(i, j *level) bool { return i.price > j.price })
	} else {
		b.asks = addToSide(b.asks, r, func(i, j *level) bool { return i.price < j.price })
	}
}

func addToSide(side []*level, r *Resting, better func(i, j *level) bool) []*level {
	for _, lvl := range side {
		if lvl.price == r.Price {
			lvl.orders = append(lvl.orders, r)
			return side
		}
	}

	side = append(side, &level{price: r.Price, orders: []*Resting{r}})
	sort.Slice(side, func(i, j int) bool {
		return better(side[i], side[j])
	})
	return side
}

// Remove drops an order from the book. It is a no-op if the order is not
// resting, so callers can remove unconditionally.
func (b *Book) Remove(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.byID[orderID]
	if !ok {
		return
	}
	delete(b.byID, orderID)

	if r.Side == types.SideBuy {
		b.bids = removeFromSide(b.bids, orderID)
	} else {
		b.asks = removeFromSide(b.asks, orderID)
	}
}

func removeFromSide(side []*level, orderID string) []*level {
	for li, lvl := range side {
		for oi, o := range lvl.orders {
			if o.OrderID != orderID {
				continue
			}
			lvl.orders = append(lvl.orders[:oi], lvl.orders[oi+1:]...)
			if len(lvl.orders) == 0 {
				side = append(side[:li], side[li+1:]...)
			}
			return side
		}
	}
	return side
}

// Reduce consumes quantity from a resting order and returns the remaining
// amount. Exhausted orders must still be removed by the caller.
func (b *Book) Reduce(orderID string, qty int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.byID[orderID]
	if !ok {
		return 0
	}
	r.Remaining -= qty
	if r.Remaining < 0 {
		r.Remaining = 0
	}
	return r.Remaining
}

// BestEligible returns the resting order a taker on the given side would
// match next: best price first, oldest first within a price. A nil limit
// (market taker) accepts any price; otherwise asks must be at or below a
// buyer's limit and bids at or above a seller's limit. Callers loop
// peek-match-reduce, so the view stays live as orders are consumed.
func (b *Book) BestEligible(takerSide string, limit *int64) (Resting, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var side []*level
	if takerSide == types.SideBuy {
		side = b.asks
	} else {
		side = b.bids
	}

	if len(side) == 0 {
		return Resting{}, false
	}

	best := side[0]
	if limit != nil {
		if takerSide == types.SideBuy && best.price > *limit {
			return Resting{}, false
		}
		if takerSide == types.SideSell && best.price < *limit {
			return Resting{}, false
		}
	}

	return *best.orders[0], true
}

// Depth aggregates remaining quantity per price level on both sides using
// integer arithmetic only.
func (b *Book) Depth() types.Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return types.Depth{
		BidLevels: aggregate(b.bids),
		AskLevels: aggregate(b.asks),
	}
}

func aggregate(side []*level) []types.DepthLevel {
	levels := make([]types.DepthLevel, 0, len(side))
	for _, lvl := range side {
		var total int64
		for _, o := range lvl.orders {
			total += o.Remaining
		}
		levels = append(levels, types.DepthLevel{Price: lvl.price, Quantity: total})
	}
	return levels
}
