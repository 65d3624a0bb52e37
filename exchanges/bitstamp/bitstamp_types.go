package bitstamp

import "encoding/json"

// TradingPair holds details about one tradable pair
type TradingPair struct {
	Name            string `json:"name"`
	URLSymbol       string `json:"url_symbol"`
	BaseDecimals    int    `json:"base_decimals"`
	CounterDecimals int    `json:"counter_decimals"`
	MinimumOrder    string `json:"minimum_order"`
	Trading         string `json:"trading"`
	Description     string `json:"description"`
}

// Ticker holds ticker information
type Ticker struct {
	Last      float64 `json:"last,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Vwap      float64 `json:"vwap,string"`
	Volume    float64 `json:"volume,string"`
	Bid       float64 `json:"bid,string"`
	Ask       float64 `json:"ask,string"`
	Timestamp int64   `json:"timestamp,string"`
	Open      float64 `json:"open,string"`
}

// Orderbook holds the raw book rows; each row is [price, amount]
type Orderbook struct {
	Timestamp      int64      `json:"timestamp,string"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

// Transaction is one public trade
type Transaction struct {
	Date   int64   `json:"date,string"`
	TID    int64   `json:"tid,string"`
	Price  float64 `json:"price,string"`
	Amount float64 `json:"amount,string"`
	Type   int     `json:"type,string"`
}

// OHLCResponse wraps the candle payload
type OHLCResponse struct {
	Data struct {
		Pair string    `json:"pair"`
		OHLC []OHLCRow `json:"ohlc"`
	} `json:"data"`
}

// OHLCRow is one candle
type OHLCRow struct {
	Timestamp int64   `json:"timestamp,string"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
}

// OpenOrder is one resting order
type OpenOrder struct {
	ID            string  `json:"id"`
	Datetime      string  `json:"datetime"`
	Type          int     `json:"type,string"`
	Price         float64 `json:"price,string"`
	Amount        float64 `json:"amount,string"`
	CurrencyPair  string  `json:"currency_pair"`
	Market        string  `json:"market"`
	ClientOrderID string  `json:"client_order_id"`
}

// OrderStatus is the order_status payload
type OrderStatus struct {
	ID              int64              `json:"id"`
	Status          string             `json:"status"`
	Datetime        string             `json:"datetime"`
	Type            int                `json:"type,string"`
	Market          string             `json:"market"`
	AmountRemaining float64            `json:"amount_remaining,string"`
	ClientOrderID   string             `json:"client_order_id"`
	Transactions    []OrderTransaction `json:"transactions"`
}

// OrderTransaction is one fill attached to an order_status payload. Base and
// quote amounts arrive under currency-named keys, so the row is kept loose.
type OrderTransaction map[string]interface{}

// PlacedOrder is the buy/sell response
type PlacedOrder struct {
	ID            string  `json:"id"`
	Datetime      string  `json:"datetime"`
	Type          int     `json:"type,string"`
	Price         float64 `json:"price,string"`
	Amount        float64 `json:"amount,string"`
	Market        string  `json:"market"`
	ClientOrderID string  `json:"client_order_id"`
}

// CancelledOrder is the cancel_order response
type CancelledOrder struct {
	ID     int64   `json:"id"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Type   int     `json:"type"`
}

// CancelAllResult is the cancel_all_orders response
type CancelAllResult struct {
	Success  bool `json:"success"`
	Canceled []struct {
		ID int64 `json:"id"`
	} `json:"canceled"`
}

// TradingFee is one entry of the trading fee listing
type TradingFee struct {
	CurrencyPair string `json:"currency_pair"`
	Market       string `json:"market"`
	Fees         struct {
		Maker float64 `json:"maker,string"`
		Taker float64 `json:"taker,string"`
	} `json:"fees"`
}

// WebsocketToken authorizes private channel subscriptions
type WebsocketToken struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	ValidSec int64  `json:"valid_sec"`
}

// errorCapture is the failure envelope: status == "error" with a code and a
// reason that is either a string or a field-keyed map of messages
type errorCapture struct {
	Status string      `json:"status"`
	Code   string      `json:"code"`
	Error  string      `json:"error"`
	Reason interface{} `json:"reason"`
}

// websocketEnvelope frames every inbound stream message
type websocketEnvelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// websocketAuth carries the private channel token inside a subscribe message
type websocketAuth struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

// websocketTrade is the live_trades payload
type websocketTrade struct {
	ID             int64   `json:"id"`
	Timestamp      int64   `json:"timestamp,string"`
	Amount         float64 `json:"amount"`
	Price          float64 `json:"price"`
	Type           int     `json:"type"`
	Microtimestamp string  `json:"microtimestamp"`
}

// websocketOrderBook is the order_book payload
type websocketOrderBook struct {
	Timestamp      int64      `json:"timestamp,string"`
	Microtimestamp string     `json:"microtimestamp"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
}

// websocketOrder is the private my_orders payload
type websocketOrder struct {
	ID             int64   `json:"id"`
	IDStr          string  `json:"id_str"`
	ClientOrderID  string  `json:"client_order_id"`
	Amount         float64 `json:"amount"`
	Price          float64 `json:"price"`
	OrderType      int     `json:"order_type"`
	Datetime       string  `json:"datetime"`
	Microtimestamp string  `json:"microtimestamp"`
}
