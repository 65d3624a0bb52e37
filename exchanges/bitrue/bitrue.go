// Package bitrue implements the Bitrue venue driver: the Binance-family
// /api/v1 REST dialect with its sorted-query HMAC-SHA256 signer and the
// gzip-compressed market websocket.
package bitrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/buger/jsonparser"

	"github.com/unifex/unifex/common"
	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	bitrueAPIURL = "https://openapi.bitrue.com"
	bitrueWSURL  = "wss://ws.bitrue.com/market/ws"

	bitrueServerTime   = "/api/v1/time"
	bitrueExchangeInfo = "/api/v1/exchangeInfo"
	bitrueTicker24hr   = "/api/v1/ticker/24hr"
	bitrueDepth        = "/api/v1/depth"
	bitrueTrades       = "/api/v1/trades"
	bitrueKlines       = "/api/v1/market/kline"
	bitrueAccount      = "/api/v1/account"
	bitrueOrder        = "/api/v1/order"
	bitrueOpenOrders   = "/api/v1/openOrders"
	bitrueAllOrders    = "/api/v1/allOrders"
	bitrueMyTrades     = "/api/v1/myTrades"

	// the venue reports consumed weight through X-MBX-USED-WEIGHT-1M, so the
	// local bucket is denominated in weight units per minute
	bitrueRateInterval    = time.Minute
	bitrueRequestRate     = 1200
	bitrueUsedWeightLimit = "X-MBX-USED-WEIGHT-1M"

	bitrueRecvWindow = 5 * time.Second
)

// bitrueErrors maps the venue's negative failure codes onto the unified
// taxonomy
var bitrueErrors = map[string]error{
	"-1003": exchange.ErrRateLimitExceeded,
	"-1013": exchange.ErrInvalidOrder,
	"-1021": exchange.ErrAuthentication,
	"-1100": exchange.ErrBadRequest,
	"-1101": exchange.ErrBadRequest,
	"-1102": exchange.ErrBadRequest,
	"-1121": exchange.ErrBadSymbol,
	"-2010": exchange.ErrInsufficientFunds,
	"-2011": exchange.ErrOrderNotFound,
	"-2013": exchange.ErrOrderNotFound,
	"-2014": exchange.ErrAuthentication,
	"-2015": exchange.ErrAuthentication,
}

// Bitrue is the overarching type across the bitrue package
type Bitrue struct {
	exchange.Base

	APIURL       string
	WebsocketURL string

	// nowMS feeds the signer timestamp and is fixed in tests
	nowMS func() int64
}

// New returns a configured Bitrue driver
func New(cfg *exchange.Config) (*Bitrue, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "Bitrue"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bitrue{}
	b.SetDefaults(cfg)
	b.APIURL = bitrueAPIURL
	b.WebsocketURL = bitrueWSURL
	b.nowMS = func() int64 {
		return time.Now().UnixMilli()
	}
	b.Features = exchange.Features{
		Ticker:         true,
		Tickers:        true,
		OrderBook:      true,
		Trades:         true,
		OHLCV:          true,
		CreateOrder:    true,
		CancelOrder:    true,
		FetchOrder:     true,
		OpenOrders:     true,
		ClosedOrders:   true,
		MyTrades:       true,
		Balance:        true,
		TradingFees:    true,
		WatchTicker:    true,
		WatchOrderBook: true,
		WatchTrades:    true,
		WatchOHLCV:     true,
	}
	opts := []request.RequesterOption{}
	if cfg.EnableRateLimit {
		opts = append(opts,
			request.WithLimiter(request.NewRateLimiter(bitrueRateInterval, bitrueRequestRate)),
			request.WithUsedWeightHeader(bitrueUsedWeightLimit))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	b.Requester = request.New(b.Name, new(http.Client), opts...)
	return b, nil
}

// GetServerTime returns the venue clock in milliseconds
func (b *Bitrue) GetServerTime(ctx context.Context) (*ServerTime, error) {
	var resp ServerTime
	return &resp, b.SendHTTPRequest(ctx, bitrueServerTime, nil, 1, &resp)
}

// GetExchangeInfo returns tradable symbols and their filter constraints
func (b *Bitrue) GetExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	var resp ExchangeInfo
	return &resp, b.SendHTTPRequest(ctx, bitrueExchangeInfo, nil, 10, &resp)
}

// GetTicker24hr returns rolling 24 hour statistics. An empty symbol returns
// every market; single-symbol queries may answer with a bare object instead
// of a one-element array, so both shapes are accepted.
func (b *Bitrue) GetTicker24hr(ctx context.Context, symbol string) ([]Ticker24hr, error) {
	v := url.Values{}
	weight := 40
	if symbol != "" {
		v.Set("symbol", symbol)
		weight = 1
	}
	var raw json.RawMessage
	if err := b.SendHTTPRequest(ctx, bitrueTicker24hr, v, weight, &raw); err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] == '{' {
		var single Ticker24hr
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []Ticker24hr{single}, nil
	}
	var many []Ticker24hr
	return many, json.Unmarshal(raw, &many)
}

// GetDepth returns the order book for one symbol. limit bounds each side
// when positive.
func (b *Bitrue) GetDepth(ctx context.Context, symbol string, limit int64) (*Depth, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp Depth
	return &resp, b.SendHTTPRequest(ctx, bitrueDepth, v, 1, &resp)
}

// GetTrades returns recent public trades, newest last
func (b *Bitrue) GetTrades(ctx context.Context, symbol string, limit int64) ([]PublicTrade, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp []PublicTrade
	return resp, b.SendHTTPRequest(ctx, bitrueTrades, v, 1, &resp)
}

// GetKlines returns candles for one symbol at the given scale. Row open
// times arrive in seconds under the "is" key.
func (b *Bitrue) GetKlines(ctx context.Context, symbol, scale string, limit int64) (*KlineResponse, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("scale", scale)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp KlineResponse
	return &resp, b.SendHTTPRequest(ctx, bitrueKlines, v, 1, &resp)
}

// GetAccount returns commission rates, account flags and per-asset balances
func (b *Bitrue) GetAccount(ctx context.Context) (*Account, error) {
	var resp Account
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, bitrueAccount, nil, 5, &resp)
}

// NewOrder places an order. timeInForce applies to limit orders only;
// clientOrderID is forwarded when supplied.
func (b *Bitrue) NewOrder(ctx context.Context, symbol, side, orderType string, quantity, price float64, timeInForce, clientOrderID string) (*OrderAck, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("side", side)
	v.Set("type", orderType)
	v.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	if price > 0 {
		v.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if timeInForce != "" {
		v.Set("timeInForce", timeInForce)
	}
	if clientOrderID != "" {
		v.Set("newClientOrderId", clientOrderID)
	}
	var resp OrderAck
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodPost, bitrueOrder, v, 1, &resp)
}

// CancelExistingOrder cancels one order by venue id
func (b *Bitrue) CancelExistingOrder(ctx context.Context, symbol string, orderID int64) (*OrderAck, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("orderId", strconv.FormatInt(orderID, 10))
	var resp OrderAck
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete, bitrueOrder, v, 1, &resp)
}

// QueryOrder returns one order by venue id or original client id
func (b *Bitrue) QueryOrder(ctx context.Context, symbol string, orderID int64, origClientOrderID string) (*VenueOrder, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if orderID > 0 {
		v.Set("orderId", strconv.FormatInt(orderID, 10))
	}
	if origClientOrderID != "" {
		v.Set("origClientOrderId", origClientOrderID)
	}
	var resp VenueOrder
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, bitrueOrder, v, 1, &resp)
}

// GetOpenOrders returns resting orders for one symbol
func (b *Bitrue) GetOpenOrders(ctx context.Context, symbol string) ([]VenueOrder, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	var resp []VenueOrder
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, bitrueOpenOrders, v, 1, &resp)
}

// GetAllOrders returns current and historical orders for one symbol within
// the optional time window
func (b *Bitrue) GetAllOrders(ctx context.Context, symbol string, startTime, endTime, limit int64) ([]VenueOrder, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if startTime > 0 {
		v.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		v.Set("endTime", strconv.FormatInt(endTime, 10))
	}
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp []VenueOrder
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, bitrueAllOrders, v, 5, &resp)
}

// GetMyTrades returns account fills for one symbol
func (b *Bitrue) GetMyTrades(ctx context.Context, symbol string, startTime, endTime, limit int64) ([]MyTrade, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if startTime > 0 {
		v.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		v.Set("endTime", strconv.FormatInt(endTime, 10))
	}
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp []MyTrade
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, bitrueMyTrades, v, 5, &resp)
}

// SendHTTPRequest sends an unauthenticated request and surfaces {code,msg}
// failures the venue returns with a 200
func (b *Bitrue) SendHTTPRequest(ctx context.Context, path string, values url.Values, weight int, result interface{}) error {
	fullPath := b.APIURL + path
	if len(values) > 0 {
		fullPath += "?" + values.Encode()
	}
	var interim json.RawMessage
	err := b.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		return &request.Item{
			Method:  http.MethodGet,
			Path:    fullPath,
			Result:  &interim,
			Verbose: b.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(b.Name, err, b.mapHTTPBody)
	}
	return b.unwrapResult(interim, result)
}

// SendAuthenticatedHTTPRequest signs and sends a private request. The
// timestamp, recvWindow and signature are rebuilt on every attempt. The
// signature covers the alphabetized raw k=v join of every parameter and is
// appended to the URL; POST requests additionally carry the parameters as a
// JSON body.
func (b *Bitrue) SendAuthenticatedHTTPRequest(ctx context.Context, method, path string, params url.Values, weight int, result interface{}) error {
	if err := b.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", b.Name, exchange.ErrAuthentication, err)
	}
	if params == nil {
		params = url.Values{}
	}
	recvWindow := b.RecvWindow
	if recvWindow <= 0 {
		recvWindow = bitrueRecvWindow
	}

	var interim json.RawMessage
	err := b.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		params.Set("recvWindow", strconv.FormatInt(recvWindow.Milliseconds(), 10))
		params.Set("timestamp", strconv.FormatInt(b.nowMS(), 10))
		rawQuery := common.SortedRawQuery(params)
		signature := crypto.HMACSHA256Hex(rawQuery, b.API.Secret)

		headers := map[string]string{
			"X-MBX-APIKEY": b.API.Key,
		}
		item := &request.Item{
			Method:      method,
			Path:        b.APIURL + path + "?" + rawQuery + "&signature=" + signature,
			Headers:     headers,
			Result:      &interim,
			AuthRequest: true,
			Verbose:     b.Verbose,
		}
		if method == http.MethodPost {
			body, err := json.Marshal(singleValues(params))
			if err != nil {
				return nil, err
			}
			headers["Content-Type"] = "application/json"
			item.Body = bytes.NewReader(body)
		}
		return item, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(b.Name, err, b.mapHTTPBody)
	}
	return b.unwrapResult(interim, result)
}

// singleValues flattens url.Values to the first value per key for the JSON
// request body
func singleValues(values url.Values) map[string]string {
	flat := make(map[string]string, len(values))
	for key := range values {
		flat[key] = values.Get(key)
	}
	return flat
}

// unwrapResult probes a decoded body for the {code,msg} failure envelope.
// Success payloads are arrays or code-less objects, so a present non-zero
// code is always a rejection.
func (b *Bitrue) unwrapResult(interim json.RawMessage, result interface{}) error {
	if code, err := jsonparser.GetInt(interim, "code"); err == nil && code != 0 {
		msg, _ := jsonparser.GetString(interim, "msg")
		return b.mapError(strconv.FormatInt(code, 10), msg, 0)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(interim, result)
}

// mapError resolves a venue failure code to a taxonomy error
func (b *Bitrue) mapError(code, message string, httpStatus int) error {
	kind, ok := bitrueErrors[code]
	if !ok {
		kind = exchange.ErrExchangeError
		if httpStatus != 0 {
			kind = exchange.MapHTTPStatus(httpStatus)
		}
	}
	return &exchange.APIError{
		Exchange:   b.Name,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

func (b *Bitrue) mapHTTPBody(status int, body []byte) error {
	var venueErr venueError
	if err := json.Unmarshal(body, &venueErr); err != nil {
		return nil
	}
	if venueErr.Code == 0 && venueErr.Msg == "" {
		return nil
	}
	return b.mapError(strconv.FormatInt(venueErr.Code, 10), venueErr.Msg, status)
}
