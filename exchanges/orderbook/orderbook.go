// Package orderbook defines the unified order book snapshot shape
package orderbook

import (
	"errors"
	"time"

	"github.com/unifex/unifex/currency"
)

var (
	errBidsOutOfOrder = errors.New("bids are not sorted best first")
	errAsksOutOfOrder = errors.New("asks are not sorted best first")
)

// Item stores the amount and price values for one book level
type Item struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Base holds a normalized order book snapshot. Bids are sorted best-first
// descending, asks best-first ascending.
type Base struct {
	Pair        currency.Pair `json:"pair"`
	Bids        []Item        `json:"bids"`
	Asks        []Item        `json:"asks"`
	Nonce       int64         `json:"nonce,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// Verify checks both sides hold venue sort order
func (b *Base) Verify() error {
	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price > b.Bids[i-1].Price {
			return errBidsOutOfOrder
		}
	}
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price < b.Asks[i-1].Price {
			return errAsksOutOfOrder
		}
	}
	return nil
}

// Limit truncates both sides to at most n levels. n <= 0 leaves the book
// untouched.
func (b *Base) Limit(n int) {
	if n <= 0 {
		return
	}
	if len(b.Bids) > n {
		b.Bids = b.Bids[:n]
	}
	if len(b.Asks) > n {
		b.Asks = b.Asks[:n]
	}
}

// BestBid returns the top bid level, zero when empty
func (b *Base) BestBid() Item {
	if len(b.Bids) == 0 {
		return Item{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask level, zero when empty
func (b *Base) BestAsk() Item {
	if len(b.Asks) == 0 {
		return Item{}
	}
	return b.Asks[0]
}
