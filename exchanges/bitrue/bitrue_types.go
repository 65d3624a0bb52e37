package bitrue

import "encoding/json"

// ExchangeInfo is the trading rules directory
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// SymbolInfo is one listed pair with its trading filters
type SymbolInfo struct {
	Symbol             string   `json:"symbol"`
	Status             string   `json:"status"`
	BaseAsset          string   `json:"baseAsset"`
	BaseAssetPrecision int      `json:"baseAssetPrecision"`
	QuoteAsset         string   `json:"quoteAsset"`
	QuotePrecision     int      `json:"quotePrecision"`
	OrderTypes         []string `json:"orderTypes"`
	Filters            []Filter `json:"filters"`
}

// Filter is one exchangeInfo trading rule. The populated fields depend on
// filterType.
type Filter struct {
	FilterType  string `json:"filterType"`
	MinPrice    string `json:"minPrice"`
	MaxPrice    string `json:"maxPrice"`
	TickSize    string `json:"tickSize"`
	MinQty      string `json:"minQty"`
	MaxQty      string `json:"maxQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
}

// ServerTime is the venue clock
type ServerTime struct {
	ServerTime int64 `json:"serverTime"`
}

// Ticker24hr is one rolling-window price statistic row
type Ticker24hr struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	Count              int64  `json:"count"`
}

// Depth is an order book snapshot; levels are [price, quantity] string pairs
type Depth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// PublicTrade is one public execution
type PublicTrade struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// KlineRow is one candle; is carries the open time in unix seconds
type KlineRow struct {
	OpenTime int64  `json:"is"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
}

// KlineResponse wraps the market kline payload
type KlineResponse struct {
	Symbol string     `json:"symbol"`
	Scale  string     `json:"scale"`
	Data   []KlineRow `json:"data"`
}

// AssetBalance is one wallet row
type AssetBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// Account is the account descriptor with wallet balances
type Account struct {
	MakerCommission  int64          `json:"makerCommission"`
	TakerCommission  int64          `json:"takerCommission"`
	BuyerCommission  int64          `json:"buyerCommission"`
	SellerCommission int64          `json:"sellerCommission"`
	CanTrade         bool           `json:"canTrade"`
	CanWithdraw      bool           `json:"canWithdraw"`
	CanDeposit       bool           `json:"canDeposit"`
	UpdateTime       int64          `json:"updateTime"`
	Balances         []AssetBalance `json:"balances"`
}

// OrderAck is the order placement acknowledgement
type OrderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
}

// VenueOrder is one resting or historical order
type VenueOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	StopPrice     string `json:"stopPrice"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
	IsWorking     bool   `json:"isWorking"`
}

// MyTrade is one account execution. The venue misspells the commission
// asset field as commissionAssert.
type MyTrade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAssert"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
	IsMaker         bool   `json:"isMaker"`
}

// venueError is the {code, msg} failure shape; code is negative on failure
type venueError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

// wsParams addresses one channel in a subscribe frame
type wsParams struct {
	Channel string `json:"channel"`
	CbID    string `json:"cb_id"`
}

// wsRequest is the subscribe/unsubscribe frame
type wsRequest struct {
	Event  string   `json:"event"`
	Params wsParams `json:"params"`
}

// wsPong answers a server application ping
type wsPong struct {
	Pong int64 `json:"pong"`
}

// wsEnvelope frames every inbound message after decompression. Server
// pings arrive as a bare {"ping": ts}.
type wsEnvelope struct {
	Channel  string          `json:"channel"`
	EventRep string          `json:"event_rep"`
	Status   string          `json:"status"`
	Ts       int64           `json:"ts"`
	Tick     json.RawMessage `json:"tick"`
	Ping     int64           `json:"ping"`
}

// wsDepthTick is a book snapshot; the venue names the bid side buys.
// Levels arrive as [price, quantity] arrays of mixed number/string scalars.
type wsDepthTick struct {
	Buys [][]interface{} `json:"buys"`
	Asks [][]interface{} `json:"asks"`
}

// wsTradeRow is one streamed execution
type wsTradeRow struct {
	ID           int64       `json:"id"`
	Price        interface{} `json:"price"`
	Amount       interface{} `json:"amount"`
	Vol          interface{} `json:"vol"`
	Ts           int64       `json:"ts"`
	IsBuyerMaker bool        `json:"isBuyerMaker"`
}

// wsTradeTick wraps streamed executions
type wsTradeTick struct {
	Data []wsTradeRow `json:"data"`
}

// wsTickerTick is a rolling statistics frame
type wsTickerTick struct {
	Amount interface{} `json:"amount"`
	Close  interface{} `json:"close"`
	Open   interface{} `json:"open"`
	High   interface{} `json:"high"`
	Low    interface{} `json:"low"`
	Vol    interface{} `json:"vol"`
	Rose   interface{} `json:"rose"`
}

// wsKlineTick is one streamed candle; i carries the open time in unix
// seconds
type wsKlineTick struct {
	I interface{} `json:"i"`
	O interface{} `json:"o"`
	H interface{} `json:"h"`
	L interface{} `json:"l"`
	C interface{} `json:"c"`
	V interface{} `json:"v"`
}
