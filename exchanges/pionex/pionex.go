// Package pionex implements the Pionex venue driver: the enveloped /api/v1
// REST surface with its method-split HMAC-SHA256 signer and the public
// market websocket.
package pionex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unifex/unifex/common"
	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	pionexAPIURL = "https://api.pionex.com"
	pionexWSURL  = "wss://ws.pionex.com/wsPub"

	pionexSymbols    = "/api/v1/common/symbols"
	pionexTimestamp  = "/api/v1/common/timestamp"
	pionexTickers    = "/api/v1/market/tickers"
	pionexDepth      = "/api/v1/market/depth"
	pionexTrades     = "/api/v1/market/trades"
	pionexKlines     = "/api/v1/market/klines"
	pionexBalances   = "/api/v1/account/balances"
	pionexOrder      = "/api/v1/trade/order"
	pionexOrderByCID = "/api/v1/trade/orderByClientOrderId"
	pionexOpenOrders = "/api/v1/trade/openOrders"
	pionexAllOrders  = "/api/v1/trade/allOrders"
	pionexFills      = "/api/v1/trade/fills"

	pionexRateInterval = time.Second
	pionexRequestRate  = 10
)

// pionexErrors maps the venue's string failure codes onto the unified
// taxonomy
var pionexErrors = map[string]error{
	"APIKEY_LOST":                exchange.ErrAuthentication,
	"APIKEY_INVALID":             exchange.ErrAuthentication,
	"SIGNATURE_INVALID":          exchange.ErrAuthentication,
	"TIMESTAMP_INVALID":          exchange.ErrAuthentication,
	"IP_NOT_IN_WHITELIST":        exchange.ErrAuthentication,
	"PARAMETER_ERROR":            exchange.ErrBadRequest,
	"TRADE_INVALID_SYMBOL":       exchange.ErrBadSymbol,
	"TRADE_INSUFFICIENT_BALANCE": exchange.ErrInsufficientFunds,
	"TRADE_ORDER_NOT_FOUND":      exchange.ErrOrderNotFound,
	"TRADE_SIZE_TOO_SMALL":       exchange.ErrInvalidOrder,
	"TRADE_AMOUNT_TOO_SMALL":     exchange.ErrInvalidOrder,
	"TRADE_NOT_TRADABLE":         exchange.ErrInvalidOrder,
	"TOO_MANY_REQUESTS":          exchange.ErrRateLimitExceeded,
}

// Pionex is the overarching type across the pionex package
type Pionex struct {
	exchange.Base

	APIURL       string
	WebsocketURL string

	// nowMS feeds the signer timestamp and is fixed in tests
	nowMS func() int64
}

// New returns a configured Pionex driver
func New(cfg *exchange.Config) (*Pionex, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "Pionex"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pionex{}
	p.SetDefaults(cfg)
	p.APIURL = pionexAPIURL
	p.WebsocketURL = pionexWSURL
	p.nowMS = func() int64 {
		return time.Now().UnixMilli()
	}
	p.Features = exchange.Features{
		Ticker:          true,
		Tickers:         true,
		OrderBook:       true,
		Trades:          true,
		OHLCV:           true,
		CreateOrder:     true,
		CancelOrder:     true,
		CancelAllOrders: true,
		FetchOrder:      true,
		OpenOrders:      true,
		ClosedOrders:    true,
		MyTrades:        true,
		Balance:         true,
		TradingFees:     true,
		WatchOrderBook:  true,
		WatchTrades:     true,
	}
	opts := []request.RequesterOption{}
	if cfg.EnableRateLimit {
		opts = append(opts, request.WithLimiter(
			request.NewRateLimiter(pionexRateInterval, pionexRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	p.Requester = request.New(p.Name, new(http.Client), opts...)
	return p, nil
}

// GetSymbols returns tradable symbol metadata
func (p *Pionex) GetSymbols(ctx context.Context) ([]SymbolInfo, error) {
	var resp SymbolsData
	if err := p.SendHTTPRequest(ctx, pionexSymbols, nil, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

// GetServerTimestamp returns the venue clock in milliseconds
func (p *Pionex) GetServerTimestamp(ctx context.Context) (int64, error) {
	var resp TimestampData
	if err := p.SendHTTPRequest(ctx, pionexTimestamp, nil, 1, &resp); err != nil {
		return 0, err
	}
	return resp.Timestamp, nil
}

// GetTickers returns rolling 24 hour statistics. An empty symbol returns
// every spot market.
func (p *Pionex) GetTickers(ctx context.Context, symbol string) ([]Ticker24, error) {
	v := url.Values{}
	if symbol != "" {
		v.Set("symbol", symbol)
	} else {
		v.Set("type", "SPOT")
	}
	var resp TickersData
	if err := p.SendHTTPRequest(ctx, pionexTickers, v, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Tickers, nil
}

// GetDepth returns the order book for one symbol. limit bounds each side
// when positive.
func (p *Pionex) GetDepth(ctx context.Context, symbol string, limit int64) (*DepthData, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp DepthData
	return &resp, p.SendHTTPRequest(ctx, pionexDepth, v, 1, &resp)
}

// GetTrades returns recent public trades
func (p *Pionex) GetTrades(ctx context.Context, symbol string, limit int64) ([]PublicTrade, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp TradesData
	if err := p.SendHTTPRequest(ctx, pionexTrades, v, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// GetKlines returns candles for one symbol at the given interval
func (p *Pionex) GetKlines(ctx context.Context, symbol, interval string, limit int64) ([]KlineRow, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("interval", interval)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp KlinesData
	if err := p.SendHTTPRequest(ctx, pionexKlines, v, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Klines, nil
}

// GetBalances returns per-coin free and frozen amounts
func (p *Pionex) GetBalances(ctx context.Context) ([]AssetBalance, error) {
	var resp BalancesData
	if err := p.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, pionexBalances, nil, nil, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

// PlaceOrder submits an order
func (p *Pionex) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderAck, error) {
	var resp OrderAck
	return &resp, p.SendAuthenticatedHTTPRequest(ctx, http.MethodPost, pionexOrder, nil, req, 1, &resp)
}

// CancelExistingOrder cancels one order. The venue carries the payload as a
// JSON body on DELETE.
func (p *Pionex) CancelExistingOrder(ctx context.Context, symbol string, orderID int64) error {
	body := cancelRequest{Symbol: symbol, OrderID: orderID}
	return p.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete, pionexOrder, nil, body, 1, nil)
}

// CancelAllExistingOrders cancels every resting order on one symbol
func (p *Pionex) CancelAllExistingOrders(ctx context.Context, symbol string) error {
	body := cancelRequest{Symbol: symbol}
	return p.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete, pionexAllOrders, nil, body, 1, nil)
}

// GetOrder returns one order by venue id
func (p *Pionex) GetOrder(ctx context.Context, orderID int64) (*VenueOrder, error) {
	v := url.Values{}
	v.Set("orderId", strconv.FormatInt(orderID, 10))
	var resp VenueOrder
	return &resp, p.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, pionexOrder, v, nil, 1, &resp)
}

// GetOrderByClientID returns one order by client order id
func (p *Pionex) GetOrderByClientID(ctx context.Context, clientOrderID string) (*VenueOrder, error) {
	v := url.Values{}
	v.Set("clientOrderId", clientOrderID)
	var resp VenueOrder
	return &resp, p.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, pionexOrderByCID, v, nil, 1, &resp)
}

// GetOpenOrders returns resting orders for one symbol
func (p *Pionex) GetOpenOrders(ctx context.Context, symbol string) ([]VenueOrder, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	var resp OrdersData
	if err := p.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, pionexOpenOrders, v, nil, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetAllOrders returns current and historical orders for one symbol
func (p *Pionex) GetAllOrders(ctx context.Context, symbol string, limit int64) ([]VenueOrder, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	var resp OrdersData
	if err := p.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, pionexAllOrders, v, nil, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetFills returns account fills for one symbol within the optional window
func (p *Pionex) GetFills(ctx context.Context, symbol string, startTime, endTime int64) ([]Fill, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if startTime > 0 {
		v.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		v.Set("endTime", strconv.FormatInt(endTime, 10))
	}
	var resp FillsData
	if err := p.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, pionexFills, v, nil, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Fills, nil
}

// SendHTTPRequest sends an unauthenticated request and unwraps the result
// envelope
func (p *Pionex) SendHTTPRequest(ctx context.Context, path string, values url.Values, weight int, result interface{}) error {
	fullPath := p.APIURL + path
	if len(values) > 0 {
		fullPath += "?" + values.Encode()
	}
	var interim envelope
	err := p.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		return &request.Item{
			Method:  http.MethodGet,
			Path:    fullPath,
			Result:  &interim,
			Verbose: p.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(p.Name, err, p.mapHTTPBody)
	}
	return p.unwrapResult(&interim, result)
}

// SendAuthenticatedHTTPRequest signs and sends a private request, rebuilding
// the timestamp and signature on every attempt. GET signs
// METHOD+path+"?"+sortedQuery with the timestamp folded into the query;
// POST and DELETE sign METHOD+path+"?timestamp="+ts+body and transmit the
// same JSON body, DELETE included.
func (p *Pionex) SendAuthenticatedHTTPRequest(ctx context.Context, method, path string, params url.Values, body interface{}, weight int, result interface{}) error {
	if err := p.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", p.Name, exchange.ErrAuthentication, err)
	}
	if params == nil {
		params = url.Values{}
	}

	var interim envelope
	err := p.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		ts := strconv.FormatInt(p.nowMS(), 10)
		item := &request.Item{
			Method:      method,
			Headers:     map[string]string{"PIONEX-KEY": p.API.Key},
			Result:      &interim,
			AuthRequest: true,
			Verbose:     p.Verbose,
		}

		var signing string
		if method == http.MethodGet {
			params.Set("timestamp", ts)
			rawQuery := common.SortedRawQuery(params)
			signing = method + path + "?" + rawQuery
			item.Path = p.APIURL + path + "?" + rawQuery
		} else {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			signing = method + path + "?timestamp=" + ts + string(payload)
			item.Path = p.APIURL + path + "?timestamp=" + ts
			item.Headers["Content-Type"] = "application/json"
			item.Body = bytes.NewReader(payload)
		}
		item.Headers["PIONEX-SIGNATURE"] = crypto.HMACSHA256Hex(signing, p.API.Secret)
		return item, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(p.Name, err, p.mapHTTPBody)
	}
	return p.unwrapResult(&interim, result)
}

func (p *Pionex) unwrapResult(interim *envelope, result interface{}) error {
	if !interim.Result {
		return p.mapError(interim.Code, interim.Message, 0)
	}
	if result == nil || len(interim.Data) == 0 {
		return nil
	}
	return json.Unmarshal(interim.Data, result)
}

// mapError resolves a venue failure code to a taxonomy error
func (p *Pionex) mapError(code, message string, httpStatus int) error {
	kind, ok := pionexErrors[code]
	if !ok {
		kind = exchange.ErrExchangeError
		if httpStatus != 0 {
			kind = exchange.MapHTTPStatus(httpStatus)
		}
	}
	return &exchange.APIError{
		Exchange:   p.Name,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

func (p *Pionex) mapHTTPBody(status int, body []byte) error {
	var interim envelope
	if err := json.Unmarshal(body, &interim); err != nil {
		return nil
	}
	if interim.Result || (interim.Code == "" && interim.Message == "") {
		return nil
	}
	return p.mapError(interim.Code, interim.Message, status)
}
