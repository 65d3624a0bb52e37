// Package ticker defines the unified ticker shape emitted by venue drivers
package ticker

import (
	"time"

	"github.com/unifex/unifex/currency"
)

// Price holds a normalized ticker. Numeric fields a venue does not supply
// stay zero; Change, Percentage and Average are derived only when both Last
// and Open are present.
type Price struct {
	Pair        currency.Pair `json:"pair"`
	Last        float64       `json:"last"`
	High        float64       `json:"high"`
	Low         float64       `json:"low"`
	Bid         float64       `json:"bid"`
	BidSize     float64       `json:"bidSize"`
	Ask         float64       `json:"ask"`
	AskSize     float64       `json:"askSize"`
	Open        float64       `json:"open"`
	Close       float64       `json:"close"`
	Volume      float64       `json:"volume"`
	QuoteVolume float64       `json:"quoteVolume"`
	VWAP        float64       `json:"vwap"`
	Change      float64       `json:"change"`
	Percentage  float64       `json:"percentage"`
	Average     float64       `json:"average"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Info        interface{}   `json:"-"`
}

// DeriveChange fills Change, Percentage and Average from Last and Open when
// both are present and the venue supplied neither
func (p *Price) DeriveChange() {
	if p.Last == 0 || p.Open == 0 {
		return
	}
	if p.Change == 0 {
		p.Change = p.Last - p.Open
	}
	if p.Percentage == 0 {
		p.Percentage = (p.Last - p.Open) / p.Open * 100
	}
	if p.Average == 0 {
		p.Average = (p.Last + p.Open) / 2
	}
}
