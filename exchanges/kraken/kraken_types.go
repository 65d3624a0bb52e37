package kraken

import (
	"encoding/json"

	"github.com/unifex/unifex/common/convert"
)

// genericResponse wraps every REST reply. Errors arrive as a list of
// "ESeverity:reason" strings; warnings use a W prefix.
type genericResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// ServerTime holds the venue clock
type ServerTime struct {
	UnixTime int64  `json:"unixtime"`
	RFC1123  string `json:"rfc1123"`
}

// AssetPair holds tradable pair metadata
type AssetPair struct {
	Altname      string `json:"altname"`
	WSName       string `json:"wsname"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	PairDecimals int    `json:"pair_decimals"`
	LotDecimals  int    `json:"lot_decimals"`
	OrderMin     string `json:"ordermin"`
	CostMin      string `json:"costmin"`
	TickSize     string `json:"tick_size"`
	Status       string `json:"status"`
}

// Ticker holds one pair's price statistics. Array fields carry
// [price, whole lot volume, lot volume] style tuples where index 0 covers
// today and index 1 the rolling 24 hours.
type Ticker struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Last   []string `json:"c"`
	Volume []string `json:"v"`
	VWAP   []string `json:"p"`
	Trades []int64  `json:"t"`
	Low    []string `json:"l"`
	High   []string `json:"h"`
	Open   string   `json:"o"`
}

// DepthLevel is one order book row, decoded from a
// [price, volume, timestamp] tuple
type DepthLevel struct {
	Price  float64
	Volume float64
	Time   int64
}

// UnmarshalJSON decodes the mixed string/number tuple form
func (d *DepthLevel) UnmarshalJSON(data []byte) error {
	var price, volume string
	var ts float64
	dest := []interface{}{&price, &volume, &ts}
	if err := json.Unmarshal(data, &dest); err != nil {
		return err
	}
	var err error
	if d.Price, err = convert.FloatFromString(price); err != nil {
		return err
	}
	if d.Volume, err = convert.FloatFromString(volume); err != nil {
		return err
	}
	d.Time = int64(ts)
	return nil
}

// Depth holds both sides of the order book
type Depth struct {
	Asks []DepthLevel `json:"asks"`
	Bids []DepthLevel `json:"bids"`
}

// RecentTrade is one public trade, decoded from a
// [price, volume, time, side, type, misc, id] tuple
type RecentTrade struct {
	Price     float64
	Volume    float64
	Time      float64
	Side      string
	OrderType string
	Misc      string
	TradeID   int64
}

// UnmarshalJSON decodes the mixed tuple form
func (r *RecentTrade) UnmarshalJSON(data []byte) error {
	var price, volume string
	dest := []interface{}{&price, &volume, &r.Time, &r.Side, &r.OrderType, &r.Misc, &r.TradeID}
	if err := json.Unmarshal(data, &dest); err != nil {
		return err
	}
	var err error
	if r.Price, err = convert.FloatFromString(price); err != nil {
		return err
	}
	r.Volume, err = convert.FloatFromString(volume)
	return err
}

// OHLCRow is one candle, decoded from a
// [time, open, high, low, close, vwap, volume, count] tuple
type OHLCRow struct {
	Time   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	VWAP   float64
	Volume float64
	Count  int64
}

// UnmarshalJSON decodes the mixed tuple form
func (o *OHLCRow) UnmarshalJSON(data []byte) error {
	var open, high, low, closePrice, vwap, volume string
	var ts float64
	dest := []interface{}{&ts, &open, &high, &low, &closePrice, &vwap, &volume, &o.Count}
	if err := json.Unmarshal(data, &dest); err != nil {
		return err
	}
	o.Time = int64(ts)
	for _, f := range []struct {
		src string
		dst *float64
	}{
		{open, &o.Open}, {high, &o.High}, {low, &o.Low},
		{closePrice, &o.Close}, {vwap, &o.VWAP}, {volume, &o.Volume},
	} {
		v, err := convert.FloatFromString(f.src)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

// OrderDescription carries the order terms as submitted
type OrderDescription struct {
	Pair      string `json:"pair"`
	Side      string `json:"type"`
	OrderType string `json:"ordertype"`
	Price     string `json:"price"`
	Price2    string `json:"price2"`
	Leverage  string `json:"leverage"`
	Order     string `json:"order"`
	Close     string `json:"close"`
}

// OrderInfo is one order as reported by the private order endpoints
type OrderInfo struct {
	RefID          string           `json:"refid"`
	ClientOrderID  string           `json:"cl_ord_id"`
	Status         string           `json:"status"`
	Reason         string           `json:"reason"`
	OpenTime       float64          `json:"opentm"`
	CloseTime      float64          `json:"closetm"`
	Descr          OrderDescription `json:"descr"`
	Volume         string           `json:"vol"`
	VolumeExecuted string           `json:"vol_exec"`
	Cost           string           `json:"cost"`
	Fee            string           `json:"fee"`
	Price          string           `json:"price"`
	StopPrice      string           `json:"stopprice"`
	LimitPrice     string           `json:"limitprice"`
	Misc           string           `json:"misc"`
	OFlags         string           `json:"oflags"`
	Trades         []string         `json:"trades"`
}

// OpenOrdersResponse wraps the open order map keyed by transaction id
type OpenOrdersResponse struct {
	Open map[string]OrderInfo `json:"open"`
}

// ClosedOrdersResponse wraps the closed order map keyed by transaction id
type ClosedOrdersResponse struct {
	Closed map[string]OrderInfo `json:"closed"`
	Count  int64                `json:"count"`
}

// TradeHistoryRow is one account fill
type TradeHistoryRow struct {
	OrderTxID string  `json:"ordertxid"`
	Pair      string  `json:"pair"`
	Time      float64 `json:"time"`
	Side      string  `json:"type"`
	OrderType string  `json:"ordertype"`
	Price     string  `json:"price"`
	Cost      string  `json:"cost"`
	Fee       string  `json:"fee"`
	Volume    string  `json:"vol"`
	Margin    string  `json:"margin"`
	Maker     bool    `json:"maker"`
	Misc      string  `json:"misc"`
}

// TradesHistoryResponse wraps account fills keyed by trade id
type TradesHistoryResponse struct {
	Trades map[string]TradeHistoryRow `json:"trades"`
	Count  int64                      `json:"count"`
}

// AddOrderResponse confirms order placement
type AddOrderResponse struct {
	Description struct {
		Order string `json:"order"`
		Close string `json:"close"`
	} `json:"descr"`
	TransactionIDs []string `json:"txid"`
}

// CancelOrderResponse confirms cancellations
type CancelOrderResponse struct {
	Count int64 `json:"count"`
}

// FeeTier is one pair's fee information at the account's volume tier
type FeeTier struct {
	Fee        string `json:"fee"`
	MinFee     string `json:"minfee"`
	MaxFee     string `json:"maxfee"`
	NextFee    string `json:"nextfee"`
	NextVolume string `json:"nextvolume"`
	TierVolume string `json:"tiervolume"`
}

// TradeVolumeResponse holds 30 day volume and the per-pair fee schedule
type TradeVolumeResponse struct {
	Currency  string             `json:"currency"`
	Volume    string             `json:"volume"`
	Fees      map[string]FeeTier `json:"fees"`
	FeesMaker map[string]FeeTier `json:"fees_maker"`
}

// WebsocketToken authenticates private stream subscriptions
type WebsocketToken struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// wsEnvelope wraps every v2 stream message. Channel messages carry data;
// method messages acknowledge requests.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Method  string          `json:"method"`
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	ReqID   int64           `json:"req_id"`
}

type wsRequest struct {
	Method string   `json:"method"`
	Params wsParams `json:"params"`
	ReqID  int64    `json:"req_id,omitempty"`
}

type wsParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol,omitempty"`
	Interval int64    `json:"interval,omitempty"`
	Depth    int      `json:"depth,omitempty"`
	Token    string   `json:"token,omitempty"`
}

type wsTicker struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	BidQty    float64 `json:"bid_qty"`
	Ask       float64 `json:"ask"`
	AskQty    float64 `json:"ask_qty"`
	Last      float64 `json:"last"`
	Volume    float64 `json:"volume"`
	VWAP      float64 `json:"vwap"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

type wsBookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

type wsBook struct {
	Symbol    string        `json:"symbol"`
	Bids      []wsBookLevel `json:"bids"`
	Asks      []wsBookLevel `json:"asks"`
	Checksum  uint32        `json:"checksum"`
	Timestamp string        `json:"timestamp"`
}

type wsTrade struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	OrderType string  `json:"ord_type"`
	TradeID   int64   `json:"trade_id"`
	Timestamp string  `json:"timestamp"`
}

type wsCandle struct {
	Symbol        string  `json:"symbol"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	IntervalBegin string  `json:"interval_begin"`
	Interval      int64   `json:"interval"`
}

type wsExecution struct {
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"cl_ord_id"`
	Symbol        string  `json:"symbol"`
	OrderStatus   string  `json:"order_status"`
	ExecType      string  `json:"exec_type"`
	Side          string  `json:"side"`
	OrderType     string  `json:"order_type"`
	OrderQty      float64 `json:"order_qty"`
	CumQty        float64 `json:"cum_qty"`
	CumCost       float64 `json:"cum_cost"`
	LimitPrice    float64 `json:"limit_price"`
	AvgPrice      float64 `json:"avg_price"`
	Timestamp     string  `json:"timestamp"`
}

type wsBalance struct {
	Asset     string  `json:"asset"`
	Balance   float64 `json:"balance"`
	HoldTrade float64 `json:"hold_trade"`
}
