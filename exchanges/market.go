package exchange

import (
	"fmt"
	"sort"

	"github.com/unifex/unifex/currency"
)

// MinMax bounds one order dimension. Zero means the venue publishes no bound.
type MinMax struct {
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
}

// MarketPrecision holds decimal places per dimension
type MarketPrecision struct {
	Price  int `json:"price"`
	Amount int `json:"amount"`
	Base   int `json:"base,omitempty"`
	Quote  int `json:"quote,omitempty"`
}

// MarketLimits bounds order dimensions
type MarketLimits struct {
	Amount MinMax `json:"amount,omitempty"`
	Price  MinMax `json:"price,omitempty"`
	Cost   MinMax `json:"cost,omitempty"`
}

// Market describes one venue trading pair
type Market struct {
	// ID is the venue-specific token, unique within the venue
	ID string `json:"id"`
	// Symbol is the unified BASE/QUOTE form
	Symbol string `json:"symbol"`
	Pair   currency.Pair `json:"pair"`
	// BaseID and QuoteID are the venue spellings of each leg
	BaseID  string `json:"baseId,omitempty"`
	QuoteID string `json:"quoteId,omitempty"`
	Active  bool   `json:"active"`
	// AltIDs are additional venue identifiers resolving to this market
	// (Kraken altname/wsname)
	AltIDs    []string        `json:"altIds,omitempty"`
	Precision MarketPrecision `json:"precision"`
	Limits    MarketLimits    `json:"limits"`
	TickSize  float64         `json:"tickSize,omitempty"`
	StepSize  float64         `json:"stepSize,omitempty"`
	Maker     float64         `json:"maker,omitempty"`
	Taker     float64         `json:"taker,omitempty"`
	Info      interface{}     `json:"-"`
}

// StoreMarkets publishes a freshly built market set. The construction is
// write-once-publish: readers always observe a complete consistent snapshot.
func (b *Base) StoreMarkets(markets []*Market) {
	bySymbol := make(map[string]*Market, len(markets))
	byID := make(map[string]*Market, len(markets))
	symbols := make([]string, 0, len(markets))
	for _, m := range markets {
		bySymbol[m.Symbol] = m
		byID[m.ID] = m
		for _, alt := range m.AltIDs {
			if alt != "" && alt != m.ID {
				byID[alt] = m
			}
		}
		symbols = append(symbols, m.Symbol)
	}
	sort.Strings(symbols)

	b.marketsMu.Lock()
	b.marketsBySymbol = bySymbol
	b.marketsByID = byID
	b.symbols = symbols
	b.marketsLoaded = true
	b.marketsMu.Unlock()
}

// MarketsLoaded reports whether LoadMarkets has completed
func (b *Base) MarketsLoaded() bool {
	b.marketsMu.RLock()
	defer b.marketsMu.RUnlock()
	return b.marketsLoaded
}

// MarketFromSymbol resolves a unified BASE/QUOTE symbol
func (b *Base) MarketFromSymbol(symbol string) (*Market, error) {
	b.marketsMu.RLock()
	defer b.marketsMu.RUnlock()
	if !b.marketsLoaded {
		return nil, fmt.Errorf("%s: %w", b.Name, ErrMarketsNotLoaded)
	}
	m, ok := b.marketsBySymbol[symbol]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", b.Name, symbol, ErrBadSymbol)
	}
	return m, nil
}

// MarketFromID resolves a venue market id or registered alternative id
func (b *Base) MarketFromID(id string) (*Market, error) {
	b.marketsMu.RLock()
	defer b.marketsMu.RUnlock()
	if !b.marketsLoaded {
		return nil, fmt.Errorf("%s: %w", b.Name, ErrMarketsNotLoaded)
	}
	m, ok := b.marketsByID[id]
	if !ok {
		return nil, fmt.Errorf("%s id %q: %w", b.Name, id, ErrBadSymbol)
	}
	return m, nil
}

// PairFromID resolves a venue id to a unified pair, falling back to EMPTYPAIR
// when unknown
func (b *Base) PairFromID(id string) currency.Pair {
	m, err := b.MarketFromID(id)
	if err != nil {
		return currency.EMPTYPAIR
	}
	return m.Pair
}

// Symbols returns the sorted unified symbol list
func (b *Base) Symbols() []string {
	b.marketsMu.RLock()
	defer b.marketsMu.RUnlock()
	out := make([]string, len(b.symbols))
	copy(out, b.symbols)
	return out
}

// Markets returns the symbol-keyed market map snapshot
func (b *Base) Markets() map[string]*Market {
	b.marketsMu.RLock()
	defer b.marketsMu.RUnlock()
	out := make(map[string]*Market, len(b.marketsBySymbol))
	for k, v := range b.marketsBySymbol {
		out[k] = v
	}
	return out
}
