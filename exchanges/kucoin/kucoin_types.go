package kucoin

import (
	"encoding/json"
	"fmt"

	"github.com/unifex/unifex/common/convert"
)

// genericResponse is the envelope wrapping every REST payload. code is
// "200000" on success; anything else carries a failure with msg set.
type genericResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// SymbolInfo holds tradable symbol metadata from /api/v2/symbols
type SymbolInfo struct {
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	BaseCurrency    string `json:"baseCurrency"`
	QuoteCurrency   string `json:"quoteCurrency"`
	FeeCurrency     string `json:"feeCurrency"`
	Market          string `json:"market"`
	BaseMinSize     string `json:"baseMinSize"`
	QuoteMinSize    string `json:"quoteMinSize"`
	BaseMaxSize     string `json:"baseMaxSize"`
	QuoteMaxSize    string `json:"quoteMaxSize"`
	BaseIncrement   string `json:"baseIncrement"`
	QuoteIncrement  string `json:"quoteIncrement"`
	PriceIncrement  string `json:"priceIncrement"`
	PriceLimitRate  string `json:"priceLimitRate"`
	MinFunds        string `json:"minFunds"`
	IsMarginEnabled bool   `json:"isMarginEnabled"`
	EnableTrading   bool   `json:"enableTrading"`
}

// Stats24hr holds the 24 hour market statistics for one symbol
type Stats24hr struct {
	Time         int64  `json:"time"`
	Symbol       string `json:"symbol"`
	Buy          string `json:"buy"`
	Sell         string `json:"sell"`
	ChangeRate   string `json:"changeRate"`
	ChangePrice  string `json:"changePrice"`
	High         string `json:"high"`
	Low          string `json:"low"`
	Volume       string `json:"vol"`
	VolumeValue  string `json:"volValue"`
	Last         string `json:"last"`
	AveragePrice string `json:"averagePrice"`
}

// AllTickers wraps the market wide ticker snapshot
type AllTickers struct {
	Time    int64        `json:"time"`
	Tickers []TickerInfo `json:"ticker"`
}

// TickerInfo is one row of the market wide ticker snapshot
type TickerInfo struct {
	Symbol      string `json:"symbol"`
	Buy         string `json:"buy"`
	Sell        string `json:"sell"`
	Last        string `json:"last"`
	Volume      string `json:"vol"`
	VolumeValue string `json:"volValue"`
	High        string `json:"high"`
	Low         string `json:"low"`
	ChangeRate  string `json:"changeRate"`
	ChangePrice string `json:"changePrice"`
}

// OrderbookSnapshot is a part level 2 book from the aggregated endpoints
type OrderbookSnapshot struct {
	Sequence string     `json:"sequence"`
	Time     int64      `json:"time"`
	Bids     [][]string `json:"bids"`
	Asks     [][]string `json:"asks"`
}

// TradeHistory is one public trade. Time is in nanoseconds.
type TradeHistory struct {
	Sequence string `json:"sequence"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	Side     string `json:"side"`
	Time     int64  `json:"time"`
}

// Candle is one kline row. The wire format is a string tuple of
// [time, open, close, high, low, volume, turnover] with time in unix seconds.
type Candle struct {
	Time     int64
	Open     float64
	Close    float64
	High     float64
	Low      float64
	Volume   float64
	Turnover float64
}

// UnmarshalJSON decodes the candle string tuple
func (c *Candle) UnmarshalJSON(data []byte) error {
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) < 7 {
		return fmt.Errorf("candle row has %d fields, want 7", len(fields))
	}
	var err error
	if c.Time, err = convert.Int64FromString(fields[0]); err != nil {
		return err
	}
	for i, dst := range []*float64{&c.Open, &c.Close, &c.High, &c.Low, &c.Volume, &c.Turnover} {
		if *dst, err = convert.FloatFromString(fields[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// AccountBalance is one ledger account. Type distinguishes main, trade and
// margin ledgers.
type AccountBalance struct {
	ID        string `json:"id"`
	Currency  string `json:"currency"`
	Type      string `json:"type"`
	Balance   string `json:"balance"`
	Available string `json:"available"`
	Holds     string `json:"holds"`
}

// OrderRequest is the spot order placement body
type OrderRequest struct {
	ClientOID   string `json:"clientOid"`
	Side        string `json:"side"`
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	Price       string `json:"price,omitempty"`
	Size        string `json:"size,omitempty"`
	Funds       string `json:"funds,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

// PlaceOrderResponse carries the venue assigned order id
type PlaceOrderResponse struct {
	OrderID string `json:"orderId"`
}

// CancelOrderResponse lists the order ids accepted for cancellation
type CancelOrderResponse struct {
	CancelledOrderIDs []string `json:"cancelledOrderIds"`
}

// OrderDetail is one spot order. isActive and cancelExist together encode
// the lifecycle state.
type OrderDetail struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	OpType      string `json:"opType"`
	Type        string `json:"type"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	Funds       string `json:"funds"`
	DealFunds   string `json:"dealFunds"`
	DealSize    string `json:"dealSize"`
	Fee         string `json:"fee"`
	FeeCurrency string `json:"feeCurrency"`
	TimeInForce string `json:"timeInForce"`
	ClientOID   string `json:"clientOid"`
	IsActive    bool   `json:"isActive"`
	CancelExist bool   `json:"cancelExist"`
	CreatedAt   int64  `json:"createdAt"`
}

// OrdersPage is one page of the paginated order list
type OrdersPage struct {
	CurrentPage int64         `json:"currentPage"`
	PageSize    int64         `json:"pageSize"`
	TotalNum    int64         `json:"totalNum"`
	TotalPage   int64         `json:"totalPage"`
	Items       []OrderDetail `json:"items"`
}

// Fill is one account execution
type Fill struct {
	Symbol         string `json:"symbol"`
	TradeID        string `json:"tradeId"`
	OrderID        string `json:"orderId"`
	CounterOrderID string `json:"counterOrderId"`
	Side           string `json:"side"`
	Liquidity      string `json:"liquidity"`
	ForceTaker     bool   `json:"forceTaker"`
	Price          string `json:"price"`
	Size           string `json:"size"`
	Funds          string `json:"funds"`
	Fee            string `json:"fee"`
	FeeRate        string `json:"feeRate"`
	FeeCurrency    string `json:"feeCurrency"`
	Type           string `json:"type"`
	CreatedAt      int64  `json:"createdAt"`
}

// FillsPage is one page of the paginated fill list
type FillsPage struct {
	CurrentPage int64  `json:"currentPage"`
	PageSize    int64  `json:"pageSize"`
	TotalNum    int64  `json:"totalNum"`
	TotalPage   int64  `json:"totalPage"`
	Items       []Fill `json:"items"`
}

// TradeFee is the actual fee rate pair for one symbol
type TradeFee struct {
	Symbol       string `json:"symbol"`
	TakerFeeRate string `json:"takerFeeRate"`
	MakerFeeRate string `json:"makerFeeRate"`
}

// BulletResponse is the websocket bootstrap issued by the bullet endpoints:
// a connect token plus the instance servers it is valid for
type BulletResponse struct {
	Token           string           `json:"token"`
	InstanceServers []InstanceServer `json:"instanceServers"`
}

// InstanceServer is one websocket endpoint with its heartbeat cadence in
// milliseconds
type InstanceServer struct {
	Endpoint     string `json:"endpoint"`
	Protocol     string `json:"protocol"`
	Encrypt      bool   `json:"encrypt"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// wsEnvelope frames every inbound websocket message
type wsEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Code    int64           `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// wsSubscribeRequest is the subscribe/unsubscribe frame
type wsSubscribeRequest struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic"`
	PrivateChannel bool   `json:"privateChannel"`
	Response       bool   `json:"response"`
}

// wsTicker is the /market/ticker payload
type wsTicker struct {
	Sequence    string `json:"sequence"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	BestAsk     string `json:"bestAsk"`
	BestAskSize string `json:"bestAskSize"`
	BestBid     string `json:"bestBid"`
	BestBidSize string `json:"bestBidSize"`
	Time        int64  `json:"time"`
}

// wsDepth is the /spotMarket/level2Depth50 payload, a full book snapshot
type wsDepth struct {
	Bids      [][]string `json:"bids"`
	Asks      [][]string `json:"asks"`
	Timestamp int64      `json:"timestamp"`
}

// wsMatch is the /market/match payload. Time is nanoseconds as a string.
type wsMatch struct {
	Sequence     string `json:"sequence"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	TradeID      string `json:"tradeId"`
	TakerOrderID string `json:"takerOrderId"`
	MakerOrderID string `json:"makerOrderId"`
	Time         string `json:"time"`
	Type         string `json:"type"`
}

// wsCandles is the /market/candles payload carrying one tuple row
type wsCandles struct {
	Symbol  string `json:"symbol"`
	Candles Candle `json:"candles"`
	Time    int64  `json:"time"`
}

// wsOrder is the private /spotMarket/tradeOrders payload
type wsOrder struct {
	Symbol     string `json:"symbol"`
	OrderType  string `json:"orderType"`
	Side       string `json:"side"`
	OrderID    string `json:"orderId"`
	Type       string `json:"type"`
	OrderTime  int64  `json:"orderTime"`
	Size       string `json:"size"`
	FilledSize string `json:"filledSize"`
	Price      string `json:"price"`
	ClientOID  string `json:"clientOid"`
	RemainSize string `json:"remainSize"`
	Status     string `json:"status"`
	Timestamp  int64  `json:"ts"`
}

// wsAccountBalance is the private /account/balance payload
type wsAccountBalance struct {
	Total           string `json:"total"`
	Available       string `json:"available"`
	AvailableChange string `json:"availableChange"`
	Currency        string `json:"currency"`
	Hold            string `json:"hold"`
	HoldChange      string `json:"holdChange"`
	RelationEvent   string `json:"relationEvent"`
	Time            string `json:"time"`
}
