// Package account defines unified balance shapes
package account

import (
	"time"

	"github.com/unifex/unifex/currency"
)

// Balance holds the funds for one currency. Total = Free + Used except where
// a venue reports total directly, in which case venue figures are stored
// verbatim.
type Balance struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// Holdings is the normalized account snapshot for one venue
type Holdings struct {
	Exchange  string                     `json:"exchange"`
	Balances  map[currency.Code]Balance  `json:"balances"`
	Timestamp time.Time                  `json:"timestamp"`
	Info      interface{}                `json:"-"`
}

// NewHoldings returns holdings with an allocated balance map
func NewHoldings(exchange string) Holdings {
	return Holdings{
		Exchange: exchange,
		Balances: make(map[currency.Code]Balance),
	}
}

// Set stores a balance, deriving the missing third figure when the venue
// supplies only two of free/used/total
func (h *Holdings) Set(code currency.Code, b Balance) {
	if b.Total == 0 && (b.Free != 0 || b.Used != 0) {
		b.Total = b.Free + b.Used
	} else if b.Free == 0 && b.Total != 0 {
		b.Free = b.Total - b.Used
	}
	h.Balances[code] = b
}
