package coinbase

import "encoding/json"

// Product holds tradable product metadata and its rolling 24h statistics
type Product struct {
	ProductID                 string `json:"product_id"`
	Price                     string `json:"price"`
	PricePercentageChange24H  string `json:"price_percentage_change_24h"`
	Volume24H                 string `json:"volume_24h"`
	VolumePercentageChange24H string `json:"volume_percentage_change_24h"`
	BaseIncrement             string `json:"base_increment"`
	QuoteIncrement            string `json:"quote_increment"`
	QuoteMinSize              string `json:"quote_min_size"`
	QuoteMaxSize              string `json:"quote_max_size"`
	BaseMinSize               string `json:"base_min_size"`
	BaseMaxSize               string `json:"base_max_size"`
	BaseName                  string `json:"base_name"`
	QuoteName                 string `json:"quote_name"`
	Status                    string `json:"status"`
	IsDisabled                bool   `json:"is_disabled"`
	TradingDisabled           bool   `json:"trading_disabled"`
	CancelOnly                bool   `json:"cancel_only"`
	ProductType               string `json:"product_type"`
	BaseCurrencyID            string `json:"base_currency_id"`
	QuoteCurrencyID           string `json:"quote_currency_id"`
}

// ProductsResponse wraps the product directory
type ProductsResponse struct {
	Products    []Product `json:"products"`
	NumProducts int64     `json:"num_products"`
}

// PriceSize is one book level
type PriceSize struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ProductBook holds one product's aggregated book
type ProductBook struct {
	ProductID string      `json:"product_id"`
	Bids      []PriceSize `json:"bids"`
	Asks      []PriceSize `json:"asks"`
	Time      string      `json:"time"`
}

// ProductBookResponse wraps the product book endpoint payload
type ProductBookResponse struct {
	Pricebook ProductBook `json:"pricebook"`
}

// MarketTrade is one public trade from the product ticker endpoint
type MarketTrade struct {
	TradeID   string `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Time      string `json:"time"`
	Side      string `json:"side"`
}

// TickerResponse holds recent trades plus the touch prices
type TickerResponse struct {
	Trades  []MarketTrade `json:"trades"`
	BestBid string        `json:"best_bid"`
	BestAsk string        `json:"best_ask"`
}

// CandleRow is one kline row. Every numeric field arrives as a string and
// start is unix seconds.
type CandleRow struct {
	Start  string `json:"start"`
	Low    string `json:"low"`
	High   string `json:"high"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// CandlesResponse wraps the product candles payload
type CandlesResponse struct {
	Candles []CandleRow `json:"candles"`
}

// MarketMarketIOC configures an immediate-or-cancel market order. Exactly
// one of QuoteSize or BaseSize is set: buys spend quote, sells shed base.
type MarketMarketIOC struct {
	QuoteSize string `json:"quote_size,omitempty"`
	BaseSize  string `json:"base_size,omitempty"`
}

// LimitLimitGTC configures a good-till-cancelled limit order
type LimitLimitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
	PostOnly   bool   `json:"post_only,omitempty"`
}

// OrderConfiguration selects the order dialect; exactly one member is set
type OrderConfiguration struct {
	MarketMarketIOC *MarketMarketIOC `json:"market_market_ioc,omitempty"`
	LimitLimitGTC   *LimitLimitGTC   `json:"limit_limit_gtc,omitempty"`
}

// PlaceOrderRequest is the order placement body
type PlaceOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration OrderConfiguration `json:"order_configuration"`
}

// PlaceOrderResponse carries the placement outcome. Failures arrive with
// HTTP 200 and Success false.
type PlaceOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID       string `json:"order_id"`
		ProductID     string `json:"product_id"`
		Side          string `json:"side"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error                string `json:"error"`
		Message              string `json:"message"`
		ErrorDetails         string `json:"error_details"`
		PreviewFailureReason string `json:"preview_failure_reason"`
	} `json:"error_response"`
}

// BatchCancelRequest lists order ids to cancel
type BatchCancelRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// BatchCancelResponse reports the per-order cancel outcome
type BatchCancelResponse struct {
	Results []struct {
		Success       bool   `json:"success"`
		OrderID       string `json:"order_id"`
		FailureReason string `json:"failure_reason"`
	} `json:"results"`
}

// VenueOrder is one historical or resting order
type VenueOrder struct {
	OrderID            string             `json:"order_id"`
	ProductID          string             `json:"product_id"`
	OrderConfiguration OrderConfiguration `json:"order_configuration"`
	Side               string             `json:"side"`
	ClientOrderID      string             `json:"client_order_id"`
	Status             string             `json:"status"`
	TimeInForce        string             `json:"time_in_force"`
	CreatedTime        string             `json:"created_time"`
	FilledSize         string             `json:"filled_size"`
	AverageFilledPrice string             `json:"average_filled_price"`
	FilledValue        string             `json:"filled_value"`
	TotalFees          string             `json:"total_fees"`
	SizeInQuote        bool               `json:"size_in_quote"`
	OrderType          string             `json:"order_type"`
	RejectReason       string             `json:"reject_reason"`
}

// GetOrderResponse wraps the single order payload
type GetOrderResponse struct {
	Order VenueOrder `json:"order"`
}

// ListOrdersResponse is one page of historical orders
type ListOrdersResponse struct {
	Orders  []VenueOrder `json:"orders"`
	HasNext bool         `json:"has_next"`
	Cursor  string       `json:"cursor"`
}

// VenueFill is one account execution
type VenueFill struct {
	EntryID            string `json:"entry_id"`
	TradeID            string `json:"trade_id"`
	OrderID            string `json:"order_id"`
	TradeTime          string `json:"trade_time"`
	Price              string `json:"price"`
	Size               string `json:"size"`
	Commission         string `json:"commission"`
	ProductID          string `json:"product_id"`
	LiquidityIndicator string `json:"liquidity_indicator"`
	Side               string `json:"side"`
}

// FillsResponse is one page of account executions
type FillsResponse struct {
	Fills  []VenueFill `json:"fills"`
	Cursor string      `json:"cursor"`
}

// CurrencyAmount pairs a value with its currency code
type CurrencyAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// VenueAccount is one currency wallet
type VenueAccount struct {
	UUID             string         `json:"uuid"`
	Name             string         `json:"name"`
	Currency         string         `json:"currency"`
	AvailableBalance CurrencyAmount `json:"available_balance"`
	Hold             CurrencyAmount `json:"hold"`
	Type             string         `json:"type"`
	Active           bool           `json:"active"`
}

// AccountsResponse is one page of currency wallets
type AccountsResponse struct {
	Accounts []VenueAccount `json:"accounts"`
	HasNext  bool           `json:"has_next"`
	Cursor   string         `json:"cursor"`
}

// FeeTier holds the account's current maker/taker rates
type FeeTier struct {
	PricingTier  string `json:"pricing_tier"`
	TakerFeeRate string `json:"taker_fee_rate"`
	MakerFeeRate string `json:"maker_fee_rate"`
}

// TransactionSummary wraps the account fee schedule
type TransactionSummary struct {
	FeeTier FeeTier `json:"fee_tier"`
}

// apiErrorBody is the non-2xx failure payload
type apiErrorBody struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	ErrorDetails string `json:"error_details"`
}

// wsRequest is the subscribe/unsubscribe frame. The jwt field authorizes
// account channels.
type wsRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Channel    string   `json:"channel"`
	JWT        string   `json:"jwt,omitempty"`
}

// wsEnvelope frames every inbound websocket message. Payloads arrive as an
// events array whose element shape depends on the channel.
type wsEnvelope struct {
	Channel     string          `json:"channel"`
	ClientID    string          `json:"client_id"`
	Timestamp   string          `json:"timestamp"`
	SequenceNum int64           `json:"sequence_num"`
	Events      json.RawMessage `json:"events"`
}

// wsTickerRow is one ticker channel row
type wsTickerRow struct {
	ProductID          string `json:"product_id"`
	Price              string `json:"price"`
	Volume24H          string `json:"volume_24_h"`
	Low24H             string `json:"low_24_h"`
	High24H            string `json:"high_24_h"`
	PricePercentChg24H string `json:"price_percent_chg_24_h"`
	BestBid            string `json:"best_bid"`
	BestBidQuantity    string `json:"best_bid_quantity"`
	BestAsk            string `json:"best_ask"`
	BestAskQuantity    string `json:"best_ask_quantity"`
}

// wsTickerEvent is one ticker channel event
type wsTickerEvent struct {
	Type    string        `json:"type"`
	Tickers []wsTickerRow `json:"tickers"`
}

// wsTradeRow is one market_trades channel row
type wsTradeRow struct {
	TradeID   string `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
}

// wsTradesEvent is one market_trades channel event
type wsTradesEvent struct {
	Type   string       `json:"type"`
	Trades []wsTradeRow `json:"trades"`
}

// wsL2Update is one level2 book delta; NewQuantity zero removes the level
type wsL2Update struct {
	Side        string `json:"side"`
	EventTime   string `json:"event_time"`
	PriceLevel  string `json:"price_level"`
	NewQuantity string `json:"new_quantity"`
}

// wsL2Event is one l2_data channel event
type wsL2Event struct {
	Type      string       `json:"type"`
	ProductID string       `json:"product_id"`
	Updates   []wsL2Update `json:"updates"`
}

// wsCandleRow is one candles channel row
type wsCandleRow struct {
	Start     string `json:"start"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	ProductID string `json:"product_id"`
}

// wsCandlesEvent is one candles channel event
type wsCandlesEvent struct {
	Type    string        `json:"type"`
	Candles []wsCandleRow `json:"candles"`
}

// wsUserOrder is one user channel order row
type wsUserOrder struct {
	OrderID            string `json:"order_id"`
	ClientOrderID      string `json:"client_order_id"`
	CumulativeQuantity string `json:"cumulative_quantity"`
	LeavesQuantity     string `json:"leaves_quantity"`
	AveragePrice       string `json:"avg_price"`
	TotalFees          string `json:"total_fees"`
	Status             string `json:"status"`
	ProductID          string `json:"product_id"`
	CreationTime       string `json:"creation_time"`
	OrderSide          string `json:"order_side"`
	OrderType          string `json:"order_type"`
	LimitPrice         string `json:"limit_price"`
}

// wsUserEvent is one user channel event
type wsUserEvent struct {
	Type   string        `json:"type"`
	Orders []wsUserOrder `json:"orders"`
}
