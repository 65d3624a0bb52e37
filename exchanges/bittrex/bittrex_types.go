package bittrex

import (
	"encoding/json"
	"time"
)

// TimeInForce is the venue's order lifetime policy token
type TimeInForce string

// Order lifetime policies. Limit orders default to GoodTilCancelled and
// market orders to ImmediateOrCancel.
const (
	GoodTilCancelled  TimeInForce = "GOOD_TIL_CANCELLED"
	ImmediateOrCancel TimeInForce = "IMMEDIATE_OR_CANCEL"
	FillOrKill        TimeInForce = "FILL_OR_KILL"
)

// apiError is the failure body: HTTP error statuses carry a top-level code
// token and sometimes a human detail line
type apiError struct {
	Code   string          `json:"code"`
	Detail string          `json:"detail"`
	Data   json.RawMessage `json:"data"`
}

// MarketData is one listing row from /markets
type MarketData struct {
	Symbol              string    `json:"symbol"`
	BaseCurrencySymbol  string    `json:"baseCurrencySymbol"`
	QuoteCurrencySymbol string    `json:"quoteCurrencySymbol"`
	MinTradeSize        float64   `json:"minTradeSize,string"`
	Precision           int32     `json:"precision"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"createdAt"`
	Notice              string    `json:"notice"`
}

// TickerData is the current top of book and last trade for one market
type TickerData struct {
	Symbol        string  `json:"symbol"`
	LastTradeRate float64 `json:"lastTradeRate,string"`
	BidRate       float64 `json:"bidRate,string"`
	AskRate       float64 `json:"askRate,string"`
}

// MarketSummaryData is the rolling 24 hour statistics for one market
type MarketSummaryData struct {
	Symbol        string    `json:"symbol"`
	High          float64   `json:"high,string"`
	Low           float64   `json:"low,string"`
	Volume        float64   `json:"volume,string"`
	QuoteVolume   float64   `json:"quoteVolume,string"`
	PercentChange float64   `json:"percentChange,string"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OrderbookEntryData is one price level
type OrderbookEntryData struct {
	Quantity float64 `json:"quantity,string"`
	Rate     float64 `json:"rate,string"`
}

// OrderbookData is a depth snapshot; the snapshot sequence arrives on the
// Sequence response header, not in the body
type OrderbookData struct {
	Bid []OrderbookEntryData `json:"bid"`
	Ask []OrderbookEntryData `json:"ask"`
}

// TradeData is one public trade
type TradeData struct {
	ID         string    `json:"id"`
	ExecutedAt time.Time `json:"executedAt"`
	Quantity   float64   `json:"quantity,string"`
	Rate       float64   `json:"rate,string"`
	TakerSide  string    `json:"takerSide"`
}

// CandleData is one candle row
type CandleData struct {
	StartsAt    time.Time `json:"startsAt"`
	Open        float64   `json:"open,string"`
	High        float64   `json:"high,string"`
	Low         float64   `json:"low,string"`
	Close       float64   `json:"close,string"`
	Volume      float64   `json:"volume,string"`
	QuoteVolume float64   `json:"quoteVolume,string"`
}

// BalanceData is one currency wallet; the venue reports total and available,
// never the held amount
type BalanceData struct {
	CurrencySymbol string    `json:"currencySymbol"`
	Total          float64   `json:"total,string"`
	Available      float64   `json:"available,string"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewOrderRequest is the POST /orders body
type NewOrderRequest struct {
	MarketSymbol  string      `json:"marketSymbol"`
	Direction     string      `json:"direction"`
	Type          string      `json:"type"`
	Quantity      float64     `json:"quantity,string"`
	Limit         float64     `json:"limit,string,omitempty"`
	TimeInForce   TimeInForce `json:"timeInForce"`
	ClientOrderID string      `json:"clientOrderId,omitempty"`
}

// OrderData is one order in any lifecycle state. Status is OPEN or CLOSED;
// the fill quantity disambiguates the terminal states.
type OrderData struct {
	ID            string    `json:"id"`
	MarketSymbol  string    `json:"marketSymbol"`
	Direction     string    `json:"direction"`
	Type          string    `json:"type"`
	Quantity      float64   `json:"quantity,string"`
	Limit         float64   `json:"limit,string"`
	Ceiling       float64   `json:"ceiling,string"`
	TimeInForce   string    `json:"timeInForce"`
	ClientOrderID string    `json:"clientOrderId"`
	FillQuantity  float64   `json:"fillQuantity,string"`
	Commission    float64   `json:"commission,string"`
	Proceeds      float64   `json:"proceeds,string"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	ClosedAt      time.Time `json:"closedAt"`
}

// BulkCancelResultData is one row of the cancel-open-orders response
type BulkCancelResultData struct {
	ID         string    `json:"id"`
	StatusCode string    `json:"statusCode"`
	Result     OrderData `json:"result"`
}

// ExecutionData is one account fill. Commission is quoted without a
// currency.
type ExecutionData struct {
	ID           string    `json:"id"`
	MarketSymbol string    `json:"marketSymbol"`
	ExecutedAt   time.Time `json:"executedAt"`
	Quantity     float64   `json:"quantity,string"`
	Rate         float64   `json:"rate,string"`
	OrderID      string    `json:"orderId"`
	Commission   float64   `json:"commission,string"`
	IsTaker      bool      `json:"isTaker"`
}

// TradingFeeData is the account's fee rates for one market
type TradingFeeData struct {
	MarketSymbol string  `json:"marketSymbol"`
	MakerRate    float64 `json:"makerRate,string"`
	TakerRate    float64 `json:"takerRate,string"`
}

// wsHubRequest is a SignalR hub invocation sent as a raw text frame
type wsHubRequest struct {
	Hub          string     `json:"H"`
	Method       string     `json:"M"`
	Arguments    [][]string `json:"A"`
	InvocationID int64      `json:"I"`
}

// wsHubMessage is one hub callback inside an inbound frame. Each argument
// is itself a JSON document encoded as a string.
type wsHubMessage struct {
	Hub       string   `json:"H"`
	Method    string   `json:"M"`
	Arguments []string `json:"A"`
}

// wsHubFrame is an inbound SignalR frame. Frames without M are invocation
// acknowledgements or keep-alives.
type wsHubFrame struct {
	C        string         `json:"C"`
	Messages []wsHubMessage `json:"M"`
}

// wsTradeEvent carries public trade deltas for one market
type wsTradeEvent struct {
	MarketSymbol string      `json:"marketSymbol"`
	Sequence     int64       `json:"sequence"`
	Deltas       []TradeData `json:"deltas"`
}

// wsOrderbookEvent carries depth deltas for one market. A zero quantity
// removes the price level.
type wsOrderbookEvent struct {
	MarketSymbol string               `json:"marketSymbol"`
	Depth        int                  `json:"depth"`
	Sequence     int64                `json:"sequence"`
	BidDeltas    []OrderbookEntryData `json:"bidDeltas"`
	AskDeltas    []OrderbookEntryData `json:"askDeltas"`
}

// wsCandleEvent carries the building candle for one market and interval
type wsCandleEvent struct {
	Sequence     int64      `json:"sequence"`
	MarketSymbol string     `json:"marketSymbol"`
	Interval     string     `json:"interval"`
	Delta        CandleData `json:"delta"`
}
