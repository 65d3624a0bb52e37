// Package kraken implements the Kraken venue driver: the versioned /0 REST
// surface with its base64 HMAC-SHA512 signer and the v2 websocket dialect.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/nonce"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/request"
	"github.com/unifex/unifex/log"
)

const (
	krakenAPIURL     = "https://api.kraken.com"
	krakenWSURL      = "wss://ws.kraken.com/v2"
	krakenAuthWSURL  = "wss://ws-auth.kraken.com/v2"
	krakenAPIVersion = "0"

	krakenServerTime     = "Time"
	krakenAssetPairs     = "AssetPairs"
	krakenTicker         = "Ticker"
	krakenOHLC           = "OHLC"
	krakenDepth          = "Depth"
	krakenTrades         = "Trades"
	krakenBalance        = "Balance"
	krakenOpenOrders     = "OpenOrders"
	krakenClosedOrders   = "ClosedOrders"
	krakenQueryOrders    = "QueryOrders"
	krakenTradesHistory  = "TradesHistory"
	krakenOrderPlace     = "AddOrder"
	krakenOrderCancel    = "CancelOrder"
	krakenOrderCancelAll = "CancelAll"
	krakenTradeVolume    = "TradeVolume"
	krakenWebsocketToken = "GetWebSocketsToken"

	krakenRateInterval = time.Second
	krakenRequestRate  = 1
)

// krakenErrorKinds maps the venue's E-prefixed failure strings onto the
// unified taxonomy. Matching is by prefix since some strings carry detail.
var krakenErrorKinds = []struct {
	match string
	kind  error
}{
	{"EOrder:Unknown order", exchange.ErrOrderNotFound},
	{"EOrder:Insufficient funds", exchange.ErrInsufficientFunds},
	{"EOrder:Order minimum not met", exchange.ErrInvalidOrder},
	{"EOrder:Invalid price", exchange.ErrInvalidOrder},
	{"EOrder:Invalid order", exchange.ErrInvalidOrder},
	{"EQuery:Unknown asset pair", exchange.ErrBadSymbol},
	{"EQuery:Unknown asset", exchange.ErrBadSymbol},
	{"EAPI:Invalid key", exchange.ErrAuthentication},
	{"EAPI:Invalid signature", exchange.ErrAuthentication},
	{"EAPI:Invalid nonce", exchange.ErrAuthentication},
	{"EGeneral:Permission denied", exchange.ErrAuthentication},
	{"EAPI:Rate limit exceeded", exchange.ErrRateLimitExceeded},
	{"EOrder:Rate limit exceeded", exchange.ErrRateLimitExceeded},
	{"EGeneral:Too many requests", exchange.ErrRateLimitExceeded},
	{"EService:Unavailable", exchange.ErrExchangeNotAvailable},
	{"EService:Busy", exchange.ErrExchangeNotAvailable},
	{"EGeneral:Invalid arguments", exchange.ErrBadRequest},
}

// Kraken is the overarching type across the kraken package
type Kraken struct {
	exchange.Base

	APIURL           string
	WebsocketURL     string
	WebsocketAuthURL string

	// nonceFn feeds the signer; private calls require it to increase
	nonceFn func() string

	wsTokenMu      sync.Mutex
	wsToken        string
	wsTokenExpires time.Time

	wsBookMu sync.Mutex
	wsBooks  map[string]*orderbook.Base
}

// New returns a configured Kraken driver
func New(cfg *exchange.Config) (*Kraken, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "Kraken"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kraken{}
	k.SetDefaults(cfg)
	k.APIURL = krakenAPIURL
	k.WebsocketURL = krakenWSURL
	k.WebsocketAuthURL = krakenAuthWSURL
	// The venue rejects nonces that do not increase, so same-microsecond
	// private calls cannot reuse a bare clock read.
	var n nonce.Nonce
	k.nonceFn = func() string {
		return n.GetInc().String()
	}
	k.wsBooks = make(map[string]*orderbook.Base)
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
			request.NewRateLimiter(krakenRateInterval, krakenRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	k.Requester = request.New(k.Name, new(http.Client), opts...)
	return k, nil
}

// GetServerTime returns the venue clock
func (k *Kraken) GetServerTime(ctx context.Context) (*ServerTime, error) {
	var resp ServerTime
	return &resp, k.SendHTTPRequest(ctx, krakenServerTime, nil, &resp)
}

// GetAssetPairs returns tradable pair metadata keyed by the venue pair id
func (k *Kraken) GetAssetPairs(ctx context.Context) (map[string]AssetPair, error) {
	var resp map[string]AssetPair
	return resp, k.SendHTTPRequest(ctx, krakenAssetPairs, nil, &resp)
}

// GetTickers returns price statistics keyed by pair id. An empty pair
// argument returns every tradable pair.
func (k *Kraken) GetTickers(ctx context.Context, pair string) (map[string]Ticker, error) {
	v := url.Values{}
	if pair != "" {
		v.Set("pair", pair)
	}
	var resp map[string]Ticker
	return resp, k.SendHTTPRequest(ctx, krakenTicker, v, &resp)
}

// GetDepth returns the order book for one pair. count bounds each side when
// positive.
func (k *Kraken) GetDepth(ctx context.Context, marketID string, count int) (*Depth, error) {
	v := url.Values{}
	v.Set("pair", marketID)
	if count > 0 {
		v.Set("count", strconv.Itoa(count))
	}
	var resp map[string]Depth
	if err := k.SendHTTPRequest(ctx, krakenDepth, v, &resp); err != nil {
		return nil, err
	}
	for key := range resp {
		depth := resp[key]
		return &depth, nil
	}
	return nil, fmt.Errorf("%s: depth response empty for %s", k.Name, marketID)
}

// GetRecentTrades returns public trades for one pair, oldest first
func (k *Kraken) GetRecentTrades(ctx context.Context, marketID string, since time.Time) ([]RecentTrade, error) {
	v := url.Values{}
	v.Set("pair", marketID)
	if !since.IsZero() {
		v.Set("since", strconv.FormatInt(since.Unix(), 10))
	}
	var raw map[string]json.RawMessage
	if err := k.SendHTTPRequest(ctx, krakenTrades, v, &raw); err != nil {
		return nil, err
	}
	var trades []RecentTrade
	for key, blob := range raw {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(blob, &trades); err != nil {
			return nil, fmt.Errorf("%s: decoding trades for %s: %w", k.Name, key, err)
		}
		break
	}
	return trades, nil
}

// GetOHLC returns candles for one pair with the interval given in minutes
func (k *Kraken) GetOHLC(ctx context.Context, marketID string, interval int64, since time.Time) ([]OHLCRow, error) {
	v := url.Values{}
	v.Set("pair", marketID)
	v.Set("interval", strconv.FormatInt(interval, 10))
	if !since.IsZero() {
		v.Set("since", strconv.FormatInt(since.Unix(), 10))
	}
	var raw map[string]json.RawMessage
	if err := k.SendHTTPRequest(ctx, krakenOHLC, v, &raw); err != nil {
		return nil, err
	}
	var rows []OHLCRow
	for key, blob := range raw {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(blob, &rows); err != nil {
			return nil, fmt.Errorf("%s: decoding candles for %s: %w", k.Name, key, err)
		}
		break
	}
	return rows, nil
}

// GetBalance returns account totals keyed by venue asset code
func (k *Kraken) GetBalance(ctx context.Context) (map[string]string, error) {
	var resp map[string]string
	return resp, k.SendAuthenticatedHTTPRequest(ctx, krakenBalance, nil, &resp)
}

// GetOpenOrders returns resting orders keyed by transaction id
func (k *Kraken) GetOpenOrders(ctx context.Context) (*OpenOrdersResponse, error) {
	v := url.Values{}
	v.Set("trades", "true")
	var resp OpenOrdersResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenOpenOrders, v, &resp)
}

// GetClosedOrders returns completed orders, optionally bounded by a start
// time in unix seconds
func (k *Kraken) GetClosedOrders(ctx context.Context, start int64) (*ClosedOrdersResponse, error) {
	v := url.Values{}
	v.Set("trades", "true")
	if start > 0 {
		v.Set("start", strconv.FormatInt(start, 10))
	}
	var resp ClosedOrdersResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenClosedOrders, v, &resp)
}

// QueryOrdersInfo returns order state for a comma separated txid list
func (k *Kraken) QueryOrdersInfo(ctx context.Context, txids string) (map[string]OrderInfo, error) {
	v := url.Values{}
	v.Set("txid", txids)
	v.Set("trades", "true")
	var resp map[string]OrderInfo
	return resp, k.SendAuthenticatedHTTPRequest(ctx, krakenQueryOrders, v, &resp)
}

// GetTradesHistory returns account fills, optionally bounded by a start time
// in unix seconds
func (k *Kraken) GetTradesHistory(ctx context.Context, start int64) (*TradesHistoryResponse, error) {
	v := url.Values{}
	if start > 0 {
		v.Set("start", strconv.FormatInt(start, 10))
	}
	var resp TradesHistoryResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenTradesHistory, v, &resp)
}

// AddOrder submits an order. side and orderType use the venue spellings
// (buy/sell, limit/market).
func (k *Kraken) AddOrder(ctx context.Context, marketID, side, orderType string, volume, price float64, clientOrderID string) (*AddOrderResponse, error) {
	v := url.Values{}
	v.Set("pair", marketID)
	v.Set("type", side)
	v.Set("ordertype", orderType)
	v.Set("volume", strconv.FormatFloat(volume, 'f', -1, 64))
	if price > 0 {
		v.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if clientOrderID != "" {
		v.Set("cl_ord_id", clientOrderID)
	}
	var resp AddOrderResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenOrderPlace, v, &resp)
}

// CancelExistingOrder cancels one order by transaction id
func (k *Kraken) CancelExistingOrder(ctx context.Context, txid string) (*CancelOrderResponse, error) {
	v := url.Values{}
	v.Set("txid", txid)
	var resp CancelOrderResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenOrderCancel, v, &resp)
}

// CancelAllExistingOrders cancels every resting order on the account
func (k *Kraken) CancelAllExistingOrders(ctx context.Context) (*CancelOrderResponse, error) {
	var resp CancelOrderResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenOrderCancelAll, nil, &resp)
}

// GetTradeVolume returns 30 day volume and the fee schedule for the supplied
// venue pair ids
func (k *Kraken) GetTradeVolume(ctx context.Context, marketIDs ...string) (*TradeVolumeResponse, error) {
	v := url.Values{}
	if len(marketIDs) > 0 {
		v.Set("pair", strings.Join(marketIDs, ","))
	}
	v.Set("fee-info", "true")
	var resp TradeVolumeResponse
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenTradeVolume, v, &resp)
}

// GetWebsocketToken returns a short lived token authenticating private
// stream subscriptions
func (k *Kraken) GetWebsocketToken(ctx context.Context) (*WebsocketToken, error) {
	var resp WebsocketToken
	return &resp, k.SendAuthenticatedHTTPRequest(ctx, krakenWebsocketToken, nil, &resp)
}

// SendHTTPRequest sends an unauthenticated request and unwraps the error
// list envelope
func (k *Kraken) SendHTTPRequest(ctx context.Context, endpoint string, values url.Values, result interface{}) error {
	path := fmt.Sprintf("/%s/public/%s", krakenAPIVersion, endpoint)
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

// SendAuthenticatedHTTPRequest signs and sends a private request. The nonce
// and signature are rebuilt on every attempt.
func (k *Kraken) SendAuthenticatedHTTPRequest(ctx context.Context, method string, values url.Values, result interface{}) error {
	if err := k.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", k.Name, exchange.ErrAuthentication, err)
	}
	if values == nil {
		values = url.Values{}
	}
	path := fmt.Sprintf("/%s/private/%s", krakenAPIVersion, method)

	var interim genericResponse
	err := k.Requester.SendPayload(ctx, 2, func() (*request.Item, error) {
		nonce := k.nonceFn()
		values.Set("nonce", nonce)
		encoded := values.Encode()
		signature, err := k.signRequest(path, nonce, encoded)
		if err != nil {
			return nil, err
		}
		return &request.Item{
			Method: http.MethodPost,
			Path:   k.APIURL + path,
			Headers: map[string]string{
				"API-Key":      k.API.Key,
				"API-Sign":     signature,
				"Content-Type": "application/x-www-form-urlencoded",
			},
			Body:        strings.NewReader(encoded),
			Result:      &interim,
			AuthRequest: true,
			Verbose:     k.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(k.Name, err, k.mapHTTPBody)
	}
	return k.unwrapResult(&interim, result)
}

// signRequest hashes nonce+body with SHA256 and signs path||digest with the
// base64-decoded secret under HMAC-SHA512
func (k *Kraken) signRequest(path, nonce, body string) (string, error) {
	secret, err := crypto.Base64Decode(k.API.Secret)
	if err != nil {
		return "", fmt.Errorf("%s: decoding api secret: %w", k.Name, err)
	}
	digest := crypto.GetSHA256([]byte(nonce + body))
	mac := crypto.GetHMAC(crypto.HashSHA512, append([]byte(path), digest...), secret)
	return crypto.Base64Encode(mac), nil
}

func (k *Kraken) unwrapResult(interim *genericResponse, result interface{}) error {
	if err := k.mapError(interim.Error, 0); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(interim.Result, result)
}

// mapError surfaces the first E-prefixed entry as a taxonomy error.
// W-prefixed warnings are logged and skipped.
func (k *Kraken) mapError(errs []string, httpStatus int) error {
	for _, e := range errs {
		if strings.HasPrefix(e, "W") {
			log.Warnf(log.ExchangeSys, "%s API warning: %s", k.Name, e)
			continue
		}
		kind := exchange.ErrExchangeError
		if httpStatus != 0 {
			kind = exchange.MapHTTPStatus(httpStatus)
		}
		for _, row := range krakenErrorKinds {
			if strings.HasPrefix(e, row.match) {
				kind = row.kind
				break
			}
		}
		return &exchange.APIError{
			Exchange:   k.Name,
			Code:       e,
			Message:    e,
			HTTPStatus: httpStatus,
			Kind:       kind,
		}
	}
	return nil
}

func (k *Kraken) mapHTTPBody(status int, body []byte) error {
	var interim genericResponse
	if err := json.Unmarshal(body, &interim); err != nil {
		return nil
	}
	return k.mapError(interim.Error, status)
}
