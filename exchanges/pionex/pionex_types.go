package pionex

import "encoding/json"

// envelope wraps every REST response. result=false carries a string code
// and message instead of data.
type envelope struct {
	Result  bool            `json:"result"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// SymbolsData is the /common/symbols payload
type SymbolsData struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one tradable symbol
type SymbolInfo struct {
	Symbol          string `json:"symbol"`
	Type            string `json:"type"`
	BaseCurrency    string `json:"baseCurrency"`
	QuoteCurrency   string `json:"quoteCurrency"`
	BasePrecision   int    `json:"basePrecision"`
	QuotePrecision  int    `json:"quotePrecision"`
	AmountPrecision int    `json:"amountPrecision"`
	MinAmount       string `json:"minAmount"`
	MinTradeSize    string `json:"minTradeSize"`
	MaxTradeSize    string `json:"maxTradeSize"`
	Enable          bool   `json:"enable"`
}

// TimestampData is the /common/timestamp payload
type TimestampData struct {
	Timestamp int64 `json:"timestamp"`
}

// TickersData is the /market/tickers payload
type TickersData struct {
	Tickers []Ticker24 `json:"tickers"`
}

// Ticker24 is one rolling 24 hour statistics row. volume is base
// denominated, amount quote denominated.
type Ticker24 struct {
	Symbol string `json:"symbol"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	Amount string `json:"amount"`
	Count  int64  `json:"count"`
	Time   int64  `json:"time"`
}

// DepthData is the /market/depth payload
type DepthData struct {
	Bids       [][]string `json:"bids"`
	Asks       [][]string `json:"asks"`
	UpdateTime int64      `json:"updateTime"`
}

// TradesData is the /market/trades payload
type TradesData struct {
	Trades []PublicTrade `json:"trades"`
}

// PublicTrade is one public trade row
type PublicTrade struct {
	TradeID   int64  `json:"tradeId"`
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp int64  `json:"timestamp"`
}

// KlinesData is the /market/klines payload
type KlinesData struct {
	Klines []KlineRow `json:"klines"`
}

// KlineRow is one candle with a millisecond open time
type KlineRow struct {
	Time   int64  `json:"time"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Volume string `json:"volume"`
}

// BalancesData is the /account/balances payload
type BalancesData struct {
	Balances []AssetBalance `json:"balances"`
}

// AssetBalance is one per-coin balance row
type AssetBalance struct {
	Coin   string `json:"coin"`
	Free   string `json:"free"`
	Frozen string `json:"frozen"`
}

// PlaceOrderRequest is the JSON body of POST /trade/order. Market buys
// carry amount (quote denominated), market sells and limit orders size.
type PlaceOrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Size          string `json:"size,omitempty"`
	Price         string `json:"price,omitempty"`
	Amount        string `json:"amount,omitempty"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	IOC           bool   `json:"IOC,omitempty"`
}

// OrderAck acknowledges a placement
type OrderAck struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
}

// cancelRequest is the JSON body of DELETE /trade/order and
// /trade/allOrders
type cancelRequest struct {
	Symbol  string `json:"symbol"`
	OrderID int64  `json:"orderId,omitempty"`
}

// VenueOrder is one order row. status is OPEN or CLOSED only; the closed
// substate derives from the filled size.
type VenueOrder struct {
	OrderID       int64  `json:"orderId"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Amount        string `json:"amount"`
	FilledSize    string `json:"filledSize"`
	FilledAmount  string `json:"filledAmount"`
	Fee           string `json:"fee"`
	FeeCoin       string `json:"feeCoin"`
	Status        string `json:"status"`
	ClientOrderID string `json:"clientOrderId"`
	IOC           bool   `json:"IOC"`
	CreateTime    int64  `json:"createTime"`
	UpdateTime    int64  `json:"updateTime"`
}

// OrdersData wraps order listings
type OrdersData struct {
	Orders []VenueOrder `json:"orders"`
}

// FillsData is the /trade/fills payload
type FillsData struct {
	Fills []Fill `json:"fills"`
}

// Fill is one account fill row
type Fill struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"orderId"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Role      string `json:"role"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Fee       string `json:"fee"`
	FeeCoin   string `json:"feeCoin"`
	Timestamp int64  `json:"timestamp"`
}

// wsRequest is an outbound stream operation
type wsRequest struct {
	Op        string `json:"op"`
	Topic     string `json:"topic,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

/// wsInbound is the inbound stream framing: operations carry op, data
// frames carry topic and symbol
type wsInbound struct {
	Op        string          `json:"op"`
	Topic     string          `json:"topic"`
	Symbol    string          `json:"symbol"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// wsTradeRow is one streamed trade
type wsTradeRow struct {
	TradeID   int64  `json:"tradeId"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp int64  `json:"timestamp"`
}

// wsDepthData is one streamed book snapshot
type wsDepthData struct {
	Bids       [][]string `json:"bids"`
	Asks       [][]string `json:"asks"`
	UpdateTime int64      `json:"updateTime"`
}
