package lbank

import (
	"bytes"
	"encoding/json"
	"strings"
)

// envelope is the venue response wrapper. The result flag arrives as the
// quoted strings "true"/"false" on most endpoints and as a bare bool on a
// few, so it is kept raw and folded by failed. user_info parks its payload
// under info instead of data.
type envelope struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode int64           `json:"error_code"`
	Data      json.RawMessage `json:"data"`
	Info      json.RawMessage `json:"info"`
	TS        int64           `json:"ts"`
}

// failed reports a venue failure: an explicit "false" result or a nonzero
// error code.
func (e *envelope) failed() bool {
	if e.ErrorCode != 0 {
		return true
	}
	return strings.Trim(string(e.Result), `"`) == "false"
}

// payload returns whichever slot the venue filled
func (e *envelope) payload() json.RawMessage {
	if len(e.Data) > 0 && !bytes.Equal(bytes.TrimSpace(e.Data), []byte("null")) {
		return e.Data
	}
	return e.Info
}

// PairAccuracy is one accuracy.do row
type PairAccuracy struct {
	Symbol           string `json:"symbol"`
	QuantityAccuracy string `json:"quantityAccuracy"`
	MinimumQuantity  string `json:"minTranQua"`
	PriceAccuracy    string `json:"priceAccuracy"`
}

// TickerStats carries the rolling 24 hour figures inside a ticker row
type TickerStats struct {
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Volume   float64 `json:"vol"`
	Turnover float64 `json:"turnover"`
	Latest   float64 `json:"latest"`
	Change   float64 `json:"change"`
}

// TickerRow is one ticker.do row
type TickerRow struct {
	Symbol    string      `json:"symbol"`
	Timestamp int64       `json:"timestamp"`
	Ticker    TickerStats `json:"ticker"`
}

// DepthData is the depth.do payload with numeric price and amount levels
type DepthData struct {
	Asks      [][]float64 `json:"asks"`
	Bids      [][]float64 `json:"bids"`
	Timestamp int64       `json:"timestamp"`
}

// TradeRow is one trades.do row. Type arrives as a string on most markets
// and a bare 0/1 on some feeds, so it stays untyped for the side fold.
type TradeRow struct {
	DateMS int64       `json:"date_ms"`
	Amount float64     `json:"amount"`
	Price  float64     `json:"price"`
	Type   interface{} `json:"type"`
	TID    string      `json:"tid"`
}

// UserAssets carries the per-coin balance maps from user_info.do
type UserAssets struct {
	Freeze map[string]string `json:"freeze"`
	Asset  map[string]string `json:"asset"`
	Free   map[string]string `json:"free"`
}

// CreateOrderData acknowledges create_order.do
type CreateOrderData struct {
	OrderID string `json:"order_id"`
}

// CancelOrderData acknowledges cancel_order.do. Batch cancels report
// accepted and rejected ids as comma joined lists.
type CancelOrderData struct {
	OrderID string `json:"order_id"`
	Success string `json:"success"`
	Error   string `json:"error"`
}

// VenueOrder is one order row from the orders_info family. Type carries
// side and order kind combined (buy, sell, buy_market, sell_market).
type VenueOrder struct {
	Symbol     string  `json:"symbol"`
	Amount     float64 `json:"amount"`
	CreateTime int64   `json:"create_time"`
	Price      float64 `json:"price"`
	AvgPrice   float64 `json:"avg_price"`
	Type       string  `json:"type"`
	OrderID    string  `json:"order_id"`
	CustomID   string  `json:"custom_id"`
	DealAmount float64 `json:"deal_amount"`
	Status     int64   `json:"status"`
}

// OrdersPage is one page from the paged order endpoints. Orders stays raw
// because the venue emits a bare object for single hits and an array
// otherwise.
type OrdersPage struct {
	PageLength  int64           `json:"page_length"`
	CurrentPage int64           `json:"current_page"`
	Total       string          `json:"total"`
	Orders      json.RawMessage `json:"orders"`
}

// decodeOrders folds the venue's order payload, which arrives as an array
// for multi-id queries and a bare object for single hits
func decodeOrders(raw json.RawMessage) ([]VenueOrder, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var rows []VenueOrder
		return rows, json.Unmarshal(trimmed, &rows)
	}
	var row VenueOrder
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, err
	}
	return []VenueOrder{row}, nil
}

// FillRow is one transaction_history.do row
type FillRow struct {
	TxUUID          string  `json:"txUuid"`
	OrderUUID       string  `json:"orderUuid"`
	TradeType       string  `json:"tradeType"`
	DealTime        int64   `json:"dealTime"`
	DealPrice       float64 `json:"dealPrice"`
	DealQuantity    float64 `json:"dealQuantity"`
	DealVolumePrice float64 `json:"dealVolumePrice"`
	TradeFee        float64 `json:"tradeFee"`
	TradeFeeRate    float64 `json:"tradeFeeRate"`
}

// TransactionsData wraps the transaction_history.do payload
type TransactionsData struct {
	Transaction []FillRow `json:"transaction"`
}

// wsRequest is an outbound stream message. Depth and Kbar ride along as
// channel extras on their subscribes.
type wsRequest struct {
	Action    string `json:"action"`
	Subscribe string `json:"subscribe,omitempty"`
	Pair      string `json:"pair,omitempty"`
	Depth     string `json:"depth,omitempty"`
	Kbar      string `json:"kbar,omitempty"`
}

// wsInbound is one stream frame. The payload sits under the field named by
// Type; ping frames carry Action and Ping instead.
type wsInbound struct {
	Action string          `json:"action"`
	Ping   string          `json:"ping"`
	Type   string          `json:"type"`
	Pair   string          `json:"pair"`
	TS     string          `json:"TS"`
	Tick   json.RawMessage `json:"tick"`
	Depth  json.RawMessage `json:"depth"`
	Trade  json.RawMessage `json:"trade"`
	Kbar   json.RawMessage `json:"kbar"`
}

// wsTick is the tick channel payload
type wsTick struct {
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Latest    float64 `json:"latest"`
	Volume    float64 `json:"vol"`
	Turnover  float64 `json:"turnover"`
	Change    float64 `json:"change"`
	Direction string  `json:"dir"`
}

// wsDepth is the depth channel payload
type wsDepth struct {
	Asks [][]float64 `json:"asks"`
	Bids [][]float64 `json:"bids"`
}

// wsTrade is the trade channel payload. Volume is the base quantity and
// amount the quote turnover.
type wsTrade struct {
	Volume    float64 `json:"volume"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Direction string  `json:"direction"`
	TS        string  `json:"TS"`
}

// wsKbar is the kbar channel payload. Slot echoes the subscribed scale.
type wsKbar struct {
	Time     string  `json:"t"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
	Turnover float64 `json:"a"`
	Count    int64   `json:"n"`
	Slot     string  `json:"slot"`
}
