// Package bittrex implements the Bittrex v3 venue driver: the plain JSON
// REST surface signed with HMAC-SHA512 over a timestamp‖url‖method‖body-hash
// string, and the SignalR hub stream spoken directly over websocket text
// frames.
package bittrex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/unifex/unifex/common/crypto"
	"github.com/unifex/unifex/currency"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	bittrexAPIURL = "https://api.bittrex.com/v3"
	bittrexWSURL  = "wss://socket-v3.bittrex.com/signalr"

	bittrexMarkets     = "/markets"
	bittrexTickers     = "/markets/tickers"
	bittrexSummaries   = "/markets/summaries"
	bittrexBalances    = "/balances"
	bittrexOrders      = "/orders"
	bittrexOpenOrders  = "/orders/open"
	bittrexOrderHist   = "/orders/closed"
	bittrexExecutions  = "/executions"
	bittrexTradingFees = "/account/fees/trading"

	bittrexRateInterval = time.Minute
	bittrexRequestRate  = 60

	// sequenceHeader carries the book revision on orderbook responses
	sequenceHeader = "Sequence"
)

// orderbookDepths are the only depths the venue serves; requests round up
// to the next bucket
var orderbookDepths = []int{1, 25, 500}

// bittrexErrors maps venue failure code tokens onto the unified taxonomy
var bittrexErrors = map[string]error{
	"APIKEY_INVALID":                  exchange.ErrAuthentication,
	"INVALID_SIGNATURE":               exchange.ErrAuthentication,
	"INVALID_TIMESTAMP":               exchange.ErrAuthentication,
	"INVALID_CONTENT_HASH":            exchange.ErrAuthentication,
	"NOT_AUTHORIZED":                  exchange.ErrAuthentication,
	"INSUFFICIENT_FUNDS":              exchange.ErrInsufficientFunds,
	"MARKET_DOES_NOT_EXIST":           exchange.ErrBadSymbol,
	"CURRENCY_DOES_NOT_EXIST":         exchange.ErrBadSymbol,
	"NOT_FOUND":                       exchange.ErrOrderNotFound,
	"ORDER_NOT_OPEN":                  exchange.ErrInvalidOrder,
	"INVALID_ORDER":                   exchange.ErrInvalidOrder,
	"MIN_TRADE_REQUIREMENT_NOT_MET":   exchange.ErrInvalidOrder,
	"DUST_TRADE_DISALLOWED_MIN_VALUE": exchange.ErrInvalidOrder,
	"SELF_TRADE":                      exchange.ErrInvalidOrder,
	"ORDER_TYPE_INVALID":              exchange.ErrInvalidOrder,
	"THROTTLED":                       exchange.ErrRateLimitExceeded,
	"TOO_MANY_REQUESTS":               exchange.ErrRateLimitExceeded,
	"MARKET_OFFLINE":                  exchange.ErrExchangeNotAvailable,
	"MAINTENANCE":                     exchange.ErrExchangeNotAvailable,
}

// Bittrex is the overarching type across the bittrex package
type Bittrex struct {
	exchange.Base

	APIURL       string
	WebsocketURL string

	// nowMS feeds the signer timestamp and is fixed in tests
	nowMS func() int64

	// wsBooks holds the depth books maintained from stream deltas, keyed
	// by venue market symbol
	wsBookMu sync.Mutex
	wsBooks  map[string]*wsLocalBook
}

// wsLocalBook is a stream-maintained depth book with its revision
type wsLocalBook struct {
	Pair     currency.Pair
	Bids     []orderbook.Item
	Asks     []orderbook.Item
	Sequence int64
}

// New returns a configured Bittrex driver
func New(cfg *exchange.Config) (*Bittrex, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "Bittrex"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bittrex{}
	b.SetDefaults(cfg)
	b.APIURL = bittrexAPIURL
	b.WebsocketURL = bittrexWSURL
	b.nowMS = func() int64 {
		return time.Now().UnixMilli()
	}
	b.wsBooks = make(map[string]*wsLocalBook)
	b.Features = exchange.Features{
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
	}
	opts := []request.RequesterOption{}
	if cfg.EnableRateLimit {
		opts = append(opts, request.WithLimiter(
			request.NewRateLimiter(bittrexRateInterval, bittrexRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	b.Requester = request.New(b.Name, new(http.Client), opts...)
	return b, nil
}

// GetMarkets returns every listed market
func (b *Bittrex) GetMarkets(ctx context.Context) ([]MarketData, error) {
	var resp []MarketData
	return resp, b.SendHTTPRequest(ctx, bittrexMarkets, nil, 1, &resp, nil)
}

// GetTicker returns the top of book and last trade for one market
func (b *Bittrex) GetTicker(ctx context.Context, marketSymbol string) (*TickerData, error) {
	var resp TickerData
	return &resp, b.SendHTTPRequest(ctx,
		bittrexMarkets+"/"+marketSymbol+"/ticker", nil, 1, &resp, nil)
}

// GetTickers returns the top of book and last trade for every market
func (b *Bittrex) GetTickers(ctx context.Context) ([]TickerData, error) {
	var resp []TickerData
	return resp, b.SendHTTPRequest(ctx, bittrexTickers, nil, 1, &resp, nil)
}

// GetMarketSummary returns 24 hour statistics for one market
func (b *Bittrex) GetMarketSummary(ctx context.Context, marketSymbol string) (*MarketSummaryData, error) {
	var resp MarketSummaryData
	return &resp, b.SendHTTPRequest(ctx,
		bittrexMarkets+"/"+marketSymbol+"/summary", nil, 1, &resp, nil)
}

// GetMarketSummaries returns 24 hour statistics for every market
func (b *Bittrex) GetMarketSummaries(ctx context.Context) ([]MarketSummaryData, error) {
	var resp []MarketSummaryData
	return resp, b.SendHTTPRequest(ctx, bittrexSummaries, nil, 1, &resp, nil)
}

// GetOrderbook returns a depth snapshot and its sequence. depth must be one
// of the served buckets; the sequence travels on a response header.
func (b *Bittrex) GetOrderbook(ctx context.Context, marketSymbol string, depth int) (*OrderbookData, int64, error) {
	v := url.Values{}
	v.Set("depth", strconv.Itoa(depth))
	var resp OrderbookData
	var hdr http.Header
	err := b.SendHTTPRequest(ctx,
		bittrexMarkets+"/"+marketSymbol+"/orderbook", v, 1, &resp, &hdr)
	if err != nil {
		return nil, 0, err
	}
	sequence, _ := strconv.ParseInt(hdr.Get(sequenceHeader), 10, 64)
	return &resp, sequence, nil
}

// GetMarketTrades returns recent public trades for one market
func (b *Bittrex) GetMarketTrades(ctx context.Context, marketSymbol string) ([]TradeData, error) {
	var resp []TradeData
	return resp, b.SendHTTPRequest(ctx,
		bittrexMarkets+"/"+marketSymbol+"/trades", nil, 1, &resp, nil)
}

// GetRecentCandles returns the most recent candles for one market at the
// given venue interval token
func (b *Bittrex) GetRecentCandles(ctx context.Context, marketSymbol, candleInterval string) ([]CandleData, error) {
	var resp []CandleData
	return resp, b.SendHTTPRequest(ctx,
		bittrexMarkets+"/"+marketSymbol+"/candles/"+candleInterval+"/recent", nil, 1, &resp, nil)
}

// GetBalances returns every currency wallet
func (b *Bittrex) GetBalances(ctx context.Context) ([]BalanceData, error) {
	var resp []BalanceData
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet,
		bittrexBalances, nil, nil, &resp)
}

// PlaceOrder submits an order
func (b *Bittrex) PlaceOrder(ctx context.Context, req *NewOrderRequest) (*OrderData, error) {
	var resp OrderData
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodPost,
		bittrexOrders, nil, req, &resp)
}

// GetOrder returns one order by id
func (b *Bittrex) GetOrder(ctx context.Context, orderID string) (*OrderData, error) {
	var resp OrderData
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet,
		bittrexOrders+"/"+orderID, nil, nil, &resp)
}

// CancelExistingOrder cancels one order by id and returns its final state
func (b *Bittrex) CancelExistingOrder(ctx context.Context, orderID string) (*OrderData, error) {
	var resp OrderData
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete,
		bittrexOrders+"/"+orderID, nil, nil, &resp)
}

// CancelOpenOrders cancels every resting order, bounded to one market when
// marketSymbol is non empty, and reports a status row per order
func (b *Bittrex) CancelOpenOrders(ctx context.Context, marketSymbol string) ([]BulkCancelResultData, error) {
	v := url.Values{}
	if marketSymbol != "" {
		v.Set("marketSymbol", marketSymbol)
	}
	var resp []BulkCancelResultData
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodDelete,
		bittrexOpenOrders, v, nil, &resp)
}

// GetOpenOrders returns resting orders, bounded to one market when
// marketSymbol is non empty
func (b *Bittrex) GetOpenOrders(ctx context.Context, marketSymbol string) ([]OrderData, error) {
	v := url.Values{}
	if marketSymbol != "" {
		v.Set("marketSymbol", marketSymbol)
	}
	var resp []OrderData
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet,
		bittrexOpenOrders, v, nil, &resp)
}

// GetOrderHistory returns one page of closed orders, newest first.
// startDate is RFC 3339 and bounds the window when non empty.
func (b *Bittrex) GetOrderHistory(ctx context.Context, marketSymbol, startDate string, pageSize int) ([]OrderData, error) {
	v := url.Values{}
	if marketSymbol != "" {
		v.Set("marketSymbol", marketSymbol)
	}
	if startDate != "" {
		v.Set("startDate", startDate)
	}
	if pageSize > 0 {
		v.Set("pageSize", strconv.Itoa(pageSize))
	}
	var resp []OrderData
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet,
		bittrexOrderHist, v, nil, &resp)
}

// GetExecutions returns account fills, bounded to one market when
// marketSymbol is non empty
func (b *Bittrex) GetExecutions(ctx context.Context, marketSymbol string) ([]ExecutionData, error) {
	v := url.Values{}
	if marketSymbol != "" {
		v.Set("marketSymbol", marketSymbol)
	}
	var resp []ExecutionData
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet,
		bittrexExecutions, v, nil, &resp)
}

// GetTradingFees returns the account's maker and taker rates per market
func (b *Bittrex) GetTradingFees(ctx context.Context) ([]TradingFeeData, error) {
	var resp []TradingFeeData
	return resp, b.SendAuthenticatedHTTPRequest(ctx, http.MethodGet,
		bittrexTradingFees, nil, nil, &resp)
}

// SendHTTPRequest sends an unauthenticated request. Successful responses
// are plain JSON with no envelope; failures arrive as HTTP error statuses
// with a code token in the body. headerResponse, when non nil, receives the
// response headers.
func (b *Bittrex) SendHTTPRequest(ctx context.Context, path string, values url.Values, weight int, result interface{}, headerResponse *http.Header) error {
	fullPath := b.APIURL + path
	if len(values) > 0 {
		fullPath += "?" + values.Encode()
	}
	err := b.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		return &request.Item{
			Method:         http.MethodGet,
			Path:           fullPath,
			Result:         result,
			HeaderResponse: headerResponse,
			Verbose:        b.Verbose,
		}, nil
	})
	return exchange.ClassifyHTTPError(b.Name, err, b.mapHTTPBody)
}

// SendAuthenticatedHTTPRequest signs and sends a private request, rebuilding
// the timestamp and signature on every attempt. The signature is
// HMAC-SHA512 over timestamp‖full url‖method‖content hash, where the
// content hash is the SHA-512 hex of the body and GET and DELETE hash the
// empty string.
func (b *Bittrex) SendAuthenticatedHTTPRequest(ctx context.Context, method, path string, values url.Values, body, result interface{}) error {
	if err := b.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", b.Name, exchange.ErrAuthentication, err)
	}
	fullPath := b.APIURL + path
	if len(values) > 0 {
		fullPath += "?" + values.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encoding request body: %w", b.Name, err)
		}
	}

	err := b.Requester.SendPayload(ctx, 1, func() (*request.Item, error) {
		ts := strconv.FormatInt(b.nowMS(), 10)
		contentHash := crypto.SHA512Hex(string(payload))
		preSign := ts + fullPath + method + contentHash
		item := &request.Item{
			Method: method,
			Path:   fullPath,
			Headers: map[string]string{
				"Api-Key":          b.API.Key,
				"Api-Timestamp":    ts,
				"Api-Content-Hash": contentHash,
				"Api-Signature":    crypto.HMACSHA512Hex(preSign, b.API.Secret),
			},
			Result:      result,
			AuthRequest: true,
			Verbose:     b.Verbose,
		}
		if len(payload) > 0 {
			item.Headers["Content-Type"] = "application/json"
			item.Body = bytes.NewReader(payload)
		}
		return item, nil
	})
	return exchange.ClassifyHTTPError(b.Name, err, b.mapHTTPBody)
}

// mapError resolves a venue failure code token to a taxonomy error
func (b *Bittrex) mapError(code, detail string, httpStatus int) error {
	kind, ok := bittrexErrors[code]
	if !ok {
		kind = exchange.ErrExchangeError
		if httpStatus != 0 {
			kind = exchange.MapHTTPStatus(httpStatus)
		}
	}
	if detail == "" {
		detail = code
	}
	return &exchange.APIError{
		Exchange:   b.Name,
		Code:       code,
		Message:    detail,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

func (b *Bittrex) mapHTTPBody(status int, body []byte) error {
	var venueErr apiError
	if err := json.Unmarshal(body, &venueErr); err != nil {
		return nil
	}
	if venueErr.Code == "" {
		return nil
	}
	return b.mapError(venueErr.Code, venueErr.Detail, status)
}
