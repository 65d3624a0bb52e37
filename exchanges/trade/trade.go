// Package trade defines the unified trade/fill shape
package trade

import (
	"sort"
	"time"

	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/order"
)

// Data is a normalized public trade or private fill. Public trades leave
// OrderID and Fee zero.
type Data struct {
	ID        string        `json:"id"`
	OrderID   string        `json:"orderId,omitempty"`
	Pair      currency.Pair `json:"pair"`
	Price     float64       `json:"price"`
	Amount    float64       `json:"amount"`
	Cost      float64       `json:"cost"`
	Side      order.Side    `json:"side"`
	IsMaker   bool          `json:"isMaker,omitempty"`
	Fee       order.Fee     `json:"fee,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Info      interface{}   `json:"-"`
}

// DeriveCost fills Cost as Price*Amount when the venue did not report it
func (d *Data) DeriveCost() {
	if d.Cost == 0 && d.Price > 0 && d.Amount > 0 {
		d.Cost = d.Price * d.Amount
	}
}

// SortByTimestamp orders trades chronologically ascending in place
func SortByTimestamp(trades []Data) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}

// Limit truncates to the most recent n trades of a chronologically ascending
// slice. n <= 0 returns the slice untouched.
func Limit(trades []Data, n int) []Data {
	if n <= 0 || len(trades) <= n {
		return trades
	}
	return trades[len(trades)-n:]
}
