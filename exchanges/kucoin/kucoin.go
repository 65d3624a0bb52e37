// Package kucoin implements the KuCoin venue driver: the key-version-2
// signed REST surface and the bullet-token bootstrapped websocket feeds.
package kucoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	kucoinAPIURL        = "https://api.kucoin.com"
	kucoinAPIKeyVersion = "2"

	kucoinSymbols        = "/api/v2/symbols"
	kucoinStats          = "/api/v1/market/stats"
	kucoinAllTickers     = "/api/v1/market/allTickers"
	kucoinOrderbookPart  = "/api/v1/market/orderbook/level2_"
	kucoinTradeHistories = "/api/v1/market/histories"
	kucoinCandles        = "/api/v1/market/candles"
	kucoinAccounts       = "/api/v1/accounts"
	kucoinOrders         = "/api/v1/orders"
	kucoinFills          = "/api/v1/fills"
	kucoinTradeFees      = "/api/v1/trade-fees"
	kucoinBulletPublic   = "/api/v1/bullet-public"
	kucoinBulletPrivate  = "/api/v1/bullet-private"

	kucoinRateInterval = time.Second
	kucoinRequestRate  = 30

	// kucoinFeeChunk bounds the symbols accepted per trade-fees call
	kucoinFeeChunk = 10
)

// kucoinErrors maps venue failure codes onto the unified taxonomy
var kucoinErrors = map[string]error{
	"400001": exchange.ErrAuthentication,
	"400002": exchange.ErrAuthentication,
	"400003": exchange.ErrAuthentication,
	"400004": exchange.ErrAuthentication,
	"400005": exchange.ErrAuthentication,
	"400006": exchange.ErrAuthentication,
	"400007": exchange.ErrAuthentication,
	"401000": exchange.ErrAuthentication,
	"400100": exchange.ErrBadRequest,
	"404000": exchange.ErrBadRequest,
	"400200": exchange.ErrInvalidOrder,
	"300000": exchange.ErrInvalidOrder,
	"200004": exchange.ErrInsufficientFunds,
	"900001": exchange.ErrBadSymbol,
	"429000": exchange.ErrRateLimitExceeded,
	"500000": exchange.ErrExchangeNotAvailable,
}

// Kucoin is the overarching type across the kucoin package
type Kucoin struct {
	exchange.Base

	APIURL string

	// nowMS is the signer's millisecond clock
	nowMS func() int64
}

// New returns a configured KuCoin driver
func New(cfg *exchange.Config) (*Kucoin, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "KuCoin"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kucoin{}
	k.SetDefaults(cfg)
	k.APIURL = kucoinAPIURL
	k.nowMS = func() int64 { return time.Now().UnixMilli() }
	k.Features = exchange.Features{
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
		WatchTicker:     true,
		WatchOrderBook:  true,
		WatchTrades:     true,
		WatchOHLCV:      true,
		WatchOrders:     true,
		WatchBalance:    true,
	}
	opts := []request.RequesterOption{}
	if cfg.EnableRateLimit {
		opts = append(opts, request.WithLimiter(
			request.NewRateLimiter(kucoinRateInterval, kucoinRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	k.Requester = request.New(k.Name, new(http.Client), opts...)
	return k, nil
}

// GetSymbols returns tradable symbol metadata
func (k *Kucoin) GetSymbols(ctx context.Context) ([]SymbolInfo, error) {
	var resp []SymbolInfo
	return resp, k.SendHTTPRequest(ctx, kucoinSymbols, nil, &resp)
}

// GetMarketStats returns the 24 hour statistics for one symbol
func (k *Kucoin) GetMarketStats(ctx context.Context, symbol string) (*Stats24hr, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	var resp Stats24hr
	return &resp, k.SendHTTPRequest(ctx, kucoinStats, v, &resp)
}

// GetAllTickers returns the market wide ticker snapshot
func (k *Kucoin) GetAllTickers(ctx context.Context) (*AllTickers, error) {
	var resp AllTickers
	return &resp, k.SendHTTPRequest(ctx, kucoinAllTickers, nil, &resp)
}

// GetPartOrderbook returns a 20 or 100 level aggregated book. Any other
// depth is rounded up to the nearest bucket.
func (k *Kucoin) GetPartOrderbook(ctx context.Context, symbol string, depth int) (*OrderbookSnapshot, error) {
	bucket := 100
	if depth > 0 && depth <= 20 {
		bucket = 20
	}
	v := url.Values{}
	v.Set("symbol", symbol)
	var resp OrderbookSnapshot
	return &resp, k.SendHTTPRequest(ctx, kucoinOrderbookPart+strconv.Itoa(bucket), v, &resp)
}

// GetTradeHistories returns the most recent public trades for one symbol
func (k *Kucoin) GetTradeHistories(ctx context.Context, symbol string) ([]TradeHistory, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	var resp []TradeHistory
	return resp, k.SendHTTPRequest(ctx, kucoinTradeHistories, v, &resp)
}

// GetCandles returns kline rows for one symbol, newest first. startAt and
// endAt are unix seconds and optional when zero.
func (k *Kucoin) GetCandles(ctx context.Context, symbol, timeframe string, startAt, endAt int64) ([]Candle, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("type", timeframe)
	if startAt > 0 {
		v.Set("startAt", strconv.FormatInt(startAt, 10))
	}
	if endAt > 0 {
		v.Set("endAt", strconv.FormatInt(endAt, 10))
	}
	var resp []Candle
	return resp, k.SendHTTPRequest(ctx, kucoinCandles, v, &resp)
}

// GetAccounts returns every ledger account across account types
func (k *Kucoin) GetAccounts(ctx context.Context) ([]AccountBalance, error) {
	var resp []AccountBalance
	return resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, kucoinAccounts, nil, nil, &resp)
}

// PostOrder places a spot order and returns the venue order id
func (k *Kucoin) PostOrder(ctx context.Context, req *OrderRequest) (string, error) {
	var resp PlaceOrderResponse
	err := k.SendAuthenticatedHTTPRequest(ctx, http.MethodPost, kucoinOrders, nil, req, &resp)
	return resp.OrderID, err
}

// GetOrderByID returns one order by venue id
func (k *Kucoin) GetOrderByID(ctx context.Context, orderID string) (*OrderDetail, error) {
	var resp OrderDetail
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, kucoinOrders+"/"+orderID, nil, nil, &resp)
}

// GetOrders returns one page of orders filtered by lifecycle status
// ("active" or "done"). symbol and startAt narrow the window when set.
func (k *Kucoin) GetOrders(ctx context.Context, status, symbol string, startAt int64) (*OrdersPage, error) {
	v := url.Values{}
	if status != "" {
		v.Set("status", status)
	}
	if symbol != "" {
		v.Set("symbol", symbol)
	}
	if startAt > 0 {
		v.Set("startAt", strconv.FormatInt(startAt, 10))
	}
	var resp OrdersPage
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, kucoinOrders, v, nil, &resp)
}

// CancelOrderByID cancels one resting order
func (k *Kucoin) CancelOrderByID(ctx context.Context, orderID string) (*CancelOrderResponse, error) {
	var resp CancelOrderResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete, kucoinOrders+"/"+orderID, nil, nil, &resp)
}

// CancelAllOrdersBySymbol cancels every resting order, scoped to symbol
// when non empty
func (k *Kucoin) CancelAllOrdersBySymbol(ctx context.Context, symbol string) (*CancelOrderResponse, error) {
	v := url.Values{}
	if symbol != "" {
		v.Set("symbol", symbol)
	}
	var resp CancelOrderResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete, kucoinOrders, v, nil, &resp)
}

// GetFills returns one page of account executions
func (k *Kucoin) GetFills(ctx context.Context, symbol string, startAt int64) (*FillsPage, error) {
	v := url.Values{}
	if symbol != "" {
		v.Set("symbol", symbol)
	}
	if startAt > 0 {
		v.Set("startAt", strconv.FormatInt(startAt, 10))
	}
	var resp FillsPage
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, kucoinFills, v, nil, &resp)
}

// GetTradeFees returns the actual fee rates for up to ten symbols
func (k *Kucoin) GetTradeFees(ctx context.Context, symbols []string) ([]TradeFee, error) {
	v := url.Values{}
	v.Set("symbols", strings.Join(symbols, ","))
	var resp []TradeFee
	return resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, kucoinTradeFees, v, nil, &resp)
}

// PostBullet requests a websocket connect token. The private bullet needs
// credentials and unlocks the account topics.
func (k *Kucoin) PostBullet(ctx context.Context, private bool) (*BulletResponse, error) {
	var resp BulletResponse
	if !private {
		return &resp, k.SendHTTPRequestPost(ctx, kucoinBulletPublic, &resp)
	}
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, http.MethodPost, kucoinBulletPrivate, nil, nil, &resp)
}

// SendHTTPRequest sends a public GET request and unwraps the envelope
func (k *Kucoin) SendHTTPRequest(ctx context.Context, path string, values url.Values, result interface{}) error {
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var interim genericResponse
	err := k.Requester.SendPayload(ctx, 1, func() (*request.Item, error) {
		return &request.Item{
			Method:  http.MethodGet,
			Path:    k.APIURL + path,
			Result:  &interim,
			Verbose: k.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(k.Name, err, k.mapHTTPBody)
	}
	return k.unwrapResult(&interim, result)
}

// SendHTTPRequestPost sends an unsigned POST with an empty body. Only the
// public bullet endpoint uses this.
func (k *Kucoin) SendHTTPRequestPost(ctx context.Context, path string, result interface{}) error {
	var interim genericResponse
	err := k.Requester.SendPayload(ctx, 1, func() (*request.Item, error) {
		return &request.Item{
			Method:  http.MethodPost,
			Path:    k.APIURL + path,
			Result:  &interim,
			Verbose: k.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(k.Name, err, k.mapHTTPBody)
	}
	return k.unwrapResult(&interim, result)
}

// SendAuthenticatedHTTPRequest signs and sends a private request. The
// timestamp and signature are rebuilt on every attempt. body is JSON
// encoded when non nil; values become the query string and are part of the
// signed payload.
func (k *Kucoin) SendAuthenticatedHTTPRequest(ctx context.Context, method, path string, values url.Values, body, result interface{}) error {
	if err := k.API.Validate(true, false); err != nil {
		return fmt.Errorf("%s %w: %v", k.Name, exchange.ErrAuthentication, err)
	}
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encoding request body: %w", k.Name, err)
		}
	}

	var interim genericResponse
	err := k.Requester.SendPayload(ctx, 2, func() (*request.Item, error) {
		timestamp := strconv.FormatInt(k.nowMS(), 10)
		headers := k.signRequest(method, path, timestamp, string(payload))
		item := &request.Item{
			Method:      method,
			Path:        k.APIURL + path,
			Headers:     headers,
			Result:      &interim,
			AuthRequest: true,
			Verbose:     k.Verbose,
		}
		if len(payload) > 0 {
			headers["Content-Type"] = "application/json"
			item.Body = bytes.NewReader(payload)
		}
		return item, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(k.Name, err, k.mapHTTPBody)
	}
	return k.unwrapResult(&interim, result)
}

// signRequest builds the key-version-2 auth headers. The signed string is
// timestamp, method, the path including any query string, then the JSON
// body. The passphrase is itself HMAC signed under version 2.
func (k *Kucoin) signRequest(method, path, timestamp, body string) map[string]string {
	return map[string]string{
		"KC-API-KEY":         k.API.Key,
		"KC-API-SIGN":        crypto.HMACSHA256Base64(timestamp+method+path+body, k.API.Secret),
		"KC-API-TIMESTAMP":   timestamp,
		"KC-API-PASSPHRASE":  crypto.HMACSHA256Base64(k.API.Passphrase, k.API.Secret),
		"KC-API-KEY-VERSION": kucoinAPIKeyVersion,
	}
}

// unwrapResult peels the envelope, surfacing non-200000 codes as APIErrors
func (k *Kucoin) unwrapResult(interim *genericResponse, result interface{}) error {
	if interim.Code != "" && interim.Code != "200000" {
		return k.mapError(interim.Code, interim.Message, 0)
	}
	if result == nil || len(interim.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(interim.Data, result); err != nil {
		return fmt.Errorf("%s: decoding response: %w", k.Name, err)
	}
	return nil
}

// mapError resolves one venue failure code. The message refines generic
// codes: 400100 doubles as the missing-order failure.
func (k *Kucoin) mapError(code, message string, httpStatus int) error {
	apiErr := exchange.NewAPIError(k.Name, code, message, httpStatus, kucoinErrors)
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "order not exist"),
		strings.Contains(lower, "order does not exist"):
		apiErr.Kind = exchange.ErrOrderNotFound
	case strings.Contains(lower, "balance insufficient"):
		apiErr.Kind = exchange.ErrInsufficientFunds
	case strings.Contains(lower, "symbol not exists"):
		apiErr.Kind = exchange.ErrBadSymbol
	}
	if apiErr.Kind == exchange.ErrExchangeError && httpStatus != 0 {
		apiErr.Kind = exchange.MapHTTPStatus(httpStatus)
	}
	return apiErr
}

// mapHTTPBody maps a non-2xx body, which carries the same envelope
func (k *Kucoin) mapHTTPBody(status int, body []byte) error {
	var interim genericResponse
	if err := json.Unmarshal(body, &interim); err != nil {
		return nil
	}
	if interim.Code == "" || interim.Code == "200000" {
		return nil
	}
	return k.mapError(interim.Code, interim.Message, status)
}
