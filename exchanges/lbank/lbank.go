// Package lbank implements the LBank venue driver: the enveloped /v2 *.do
// REST surface with its two-step MD5/HMAC-SHA256 form signer and the public
// market websocket.
package lbank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/unifex/unifex/common"
	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	lbankAPIURL = "https://api.lbkex.com"
	lbankWSURL  = "wss://www.lbkex.net/ws/V2/"

	lbankAccuracy     = "/v2/accuracy.do"
	lbankTicker       = "/v2/ticker.do"
	lbankDepth        = "/v2/depth.do"
	lbankTrades       = "/v2/trades.do"
	lbankKbar         = "/v2/kbar.do"
	lbankUserInfo     = "/v2/user_info.do"
	lbankCreateOrder  = "/v2/create_order.do"
	lbankCancelOrder  = "/v2/cancel_order.do"
	lbankQueryOrder   = "/v2/orders_info.do"
	lbankOpenOrders   = "/v2/orders_info_no_deal.do"
	lbankOrderHistory = "/v2/orders_info_history.do"
	lbankTransactions = "/v2/transaction_history.do"

	lbankSignatureMethod = "HmacSHA256"
	lbankEchostrLength   = 32

	lbankRateInterval = time.Second
	lbankRequestRate  = 10

	// cancel_order.do accepts at most three comma joined ids per call
	lbankCancelBatchSize = 3
)

// lbankErrors maps venue failure codes onto the unified taxonomy
var lbankErrors = map[int64]error{
	10001: exchange.ErrBadRequest,
	10002: exchange.ErrAuthentication,
	10003: exchange.ErrBadRequest,
	10004: exchange.ErrRateLimitExceeded,
	10005: exchange.ErrAuthentication,
	10006: exchange.ErrAuthentication,
	10007: exchange.ErrAuthentication,
	10008: exchange.ErrBadSymbol,
	10009: exchange.ErrBadRequest,
	10010: exchange.ErrInvalidOrder,
	10013: exchange.ErrInvalidOrder,
	10014: exchange.ErrInsufficientFunds,
	10015: exchange.ErrInvalidOrder,
	10016: exchange.ErrInsufficientFunds,
	10017: exchange.ErrExchangeNotAvailable,
	10022: exchange.ErrAuthentication,
	10023: exchange.ErrInvalidOrder,
	10025: exchange.ErrOrderNotFound,
	10026: exchange.ErrOrderNotFound,
}

// lbankErrorNotes carries the documented meaning of each failure code; the
// venue sends codes without messages
var lbankErrorNotes = map[int64]string{
	10001: "the required parameters can not be empty",
	10002: "validation failed",
	10003: "invalid parameter",
	10004: "request too frequent",
	10005: "secret key does not exist",
	10006: "user does not exist",
	10007: "invalid signature",
	10008: "invalid trading pair",
	10009: "price and/or amount are required for limit order",
	10010: "price and/or amount must be more than 0",
	10013: "the amount is too small",
	10014: "insufficient amount of money in account",
	10015: "invalid order type",
	10016: "insufficient account balance",
	10017: "server error",
	10022: "access denied",
	10023: "market order is not supported yet",
	10025: "order has been filled",
	10026: "order has been cancelled",
}

// Lbank is the overarching type across the lbank package
type Lbank struct {
	exchange.Base

	APIURL       string
	WebsocketURL string

	// nowMS feeds the signer timestamp and is fixed in tests
	nowMS func() int64
	// echostr feeds the signer nonce and is fixed in tests
	echostr func() (string, error)
}

// New returns a configured Lbank driver
func New(cfg *exchange.Config) (*Lbank, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "LBank"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Lbank{}
	l.SetDefaults(cfg)
	l.APIURL = lbankAPIURL
	l.WebsocketURL = lbankWSURL
	l.nowMS = func() int64 {
		return time.Now().UnixMilli()
	}
	l.echostr = func() (string, error) {
		return crypto.RandomAlphaNumeric(lbankEchostrLength)
	}
	l.Features = exchange.Features{
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
			request.NewRateLimiter(lbankRateInterval, lbankRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	l.Requester = request.New(l.Name, new(http.Client), opts...)
	return l, nil
}

// GetAccuracy returns listed pairs with their price and quantity precision
func (l *Lbank) GetAccuracy(ctx context.Context) ([]PairAccuracy, error) {
	var resp []PairAccuracy
	return resp, l.SendHTTPRequest(ctx, lbankAccuracy, nil, 1, &resp)
}

// GetTicker returns rolling 24 hour statistics. The symbol "all" returns
// every listed pair.
func (l *Lbank) GetTicker(ctx context.Context, symbol string) ([]TickerRow, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	var resp []TickerRow
	return resp, l.SendHTTPRequest(ctx, lbankTicker, v, 1, &resp)
}

// GetMarketDepth returns the order book for one symbol. size bounds each
// side when positive.
func (l *Lbank) GetMarketDepth(ctx context.Context, symbol string, size int64) (*DepthData, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if size > 0 {
		v.Set("size", strconv.FormatInt(size, 10))
	}
	var resp DepthData
	return &resp, l.SendHTTPRequest(ctx, lbankDepth, v, 1, &resp)
}

// GetTrades returns public trades for one symbol. size bounds the count and
// startMS, when positive, asks for trades from that millisecond onward.
func (l *Lbank) GetTrades(ctx context.Context, symbol string, size, startMS int64) ([]TradeRow, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if size > 0 {
		v.Set("size", strconv.FormatInt(size, 10))
	}
	if startMS > 0 {
		v.Set("time", strconv.FormatInt(startMS, 10))
	}
	var resp []TradeRow
	return resp, l.SendHTTPRequest(ctx, lbankTrades, v, 1, &resp)
}

// GetKbars returns candles as positional rows of
// [second timestamp, open, high, low, close, volume]. The venue requires
// the start time.
func (l *Lbank) GetKbars(ctx context.Context, symbol, scale string, size, startSec int64) ([][]float64, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("type", scale)
	v.Set("size", strconv.FormatInt(size, 10))
	v.Set("time", strconv.FormatInt(startSec, 10))
	var resp [][]float64
	return resp, l.SendHTTPRequest(ctx, lbankKbar, v, 1, &resp)
}

// GetUserInfo returns the per-coin free, frozen and total balance maps
func (l *Lbank) GetUserInfo(ctx context.Context) (*UserAssets, error) {
	var resp UserAssets
	return &resp, l.SendAuthenticatedHTTPRequest(ctx, lbankUserInfo, nil, 1, &resp)
}

// PlaceOrder submits an order. orderType carries side and kind combined
// (buy, sell, buy_market, sell_market); for buy_market price is the quote
// amount to spend and amount is ignored.
func (l *Lbank) PlaceOrder(ctx context.Context, symbol, orderType, price, amount, customID string) (*CreateOrderData, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("type", orderType)
	if price != "" {
		v.Set("price", price)
	}
	if amount != "" {
		v.Set("amount", amount)
	}
	if customID != "" {
		v.Set("custom_id", customID)
	}
	var resp CreateOrderData
	return &resp, l.SendAuthenticatedHTTPRequest(ctx, lbankCreateOrder, v, 1, &resp)
}

// RemoveOrder cancels up to three orders as a comma joined id list
func (l *Lbank) RemoveOrder(ctx context.Context, symbol, orderIDs string) (*CancelOrderData, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("order_id", orderIDs)
	var resp CancelOrderData
	return &resp, l.SendAuthenticatedHTTPRequest(ctx, lbankCancelOrder, v, 1, &resp)
}

// QueryOrder returns order detail for up to three comma joined ids
func (l *Lbank) QueryOrder(ctx context.Context, symbol, orderIDs string) ([]VenueOrder, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("order_id", orderIDs)
	var resp json.RawMessage
	if err := l.SendAuthenticatedHTTPRequest(ctx, lbankQueryOrder, v, 1, &resp); err != nil {
		return nil, err
	}
	return decodeOrders(resp)
}

// GetOpenOrders returns one page of resting orders for a symbol
func (l *Lbank) GetOpenOrders(ctx context.Context, symbol string, currentPage, pageLength int64) (*OrdersPage, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("current_page", strconv.FormatInt(currentPage, 10))
	v.Set("page_length", strconv.FormatInt(pageLength, 10))
	var resp OrdersPage
	return &resp, l.SendAuthenticatedHTTPRequest(ctx, lbankOpenOrders, v, 1, &resp)
}

// GetOrderHistory returns one page of current and historical orders for a
// symbol
func (l *Lbank) GetOrderHistory(ctx context.Context, symbol string, currentPage, pageLength int64) (*OrdersPage, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("current_page", strconv.FormatInt(currentPage, 10))
	v.Set("page_length", strconv.FormatInt(pageLength, 10))
	var resp OrdersPage
	return &resp, l.SendAuthenticatedHTTPRequest(ctx, lbankOrderHistory, v, 1, &resp)
}

// GetTransactionHistory returns account fills for one symbol. Dates are
// yyyy-mm-dd and bound the window; size bounds the count.
func (l *Lbank) GetTransactionHistory(ctx context.Context, symbol, startDate, endDate string, size int64) ([]FillRow, error) {
	v := url.Values{}
	v.Set("symbol", symbol)
	if startDate != "" {
		v.Set("start_date", startDate)
	}
	if endDate != "" {
		v.Set("end_date", endDate)
	}
	if size > 0 {
		v.Set("size", strconv.FormatInt(size, 10))
	}
	var resp TransactionsData
	if err := l.SendAuthenticatedHTTPRequest(ctx, lbankTransactions, v, 1, &resp); err != nil {
		return nil, err
	}
	return resp.Transaction, nil
}

// SendHTTPRequest sends an unauthenticated request and unwraps the result
// envelope
func (l *Lbank) SendHTTPRequest(ctx context.Context, path string, values url.Values, weight int, result interface{}) error {
	fullPath := l.APIURL + path
	if len(values) > 0 {
		fullPath += "?" + values.Encode()
	}
	var interim envelope
	err := l.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		return &request.Item{
			Method:  http.MethodGet,
			Path:    fullPath,
			Result:  &interim,
			Verbose: l.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(l.Name, err, l.mapHTTPBody)
	}
	return l.unwrapResult(&interim, result)
}

// SendAuthenticatedHTTPRequest signs and sends a private request,
// rebuilding the timestamp, echostr and signature on every attempt. The
// signature is HMAC-SHA256 over the uppercase MD5 hex of the alphabetized
// unencoded parameter string, which folds in api_key, echostr,
// signature_method and timestamp. The transmitted form carries only
// api_key, the request parameters and sign; the signing extras travel as
// headers.
func (l *Lbank) SendAuthenticatedHTTPRequest(ctx context.Context, path string, params url.Values, weight int, result interface{}) error {
	if err := l.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", l.Name, exchange.ErrAuthentication, err)
	}

	var interim envelope
	err := l.Requester.SendPayload(ctx, request.Weight(weight), func() (*request.Item, error) {
		ts := strconv.FormatInt(l.nowMS(), 10)
		echo, err := l.echostr()
		if err != nil {
			return nil, err
		}

		signing := url.Values{}
		for k, vals := range params {
			for _, v := range vals {
				signing.Add(k, v)
			}
		}
		signing.Set("api_key", l.API.Key)
		signing.Set("echostr", echo)
		signing.Set("signature_method", lbankSignatureMethod)
		signing.Set("timestamp", ts)
		digest := crypto.MD5UpperHex([]byte(common.SortedRawQuery(signing)))
		sign := crypto.HMACSHA256Hex(digest, l.API.Secret)

		form := url.Values{}
		for k, vals := range params {
			for _, v := range vals {
				form.Add(k, v)
			}
		}
		form.Set("api_key", l.API.Key)
		form.Set("sign", sign)

		return &request.Item{
			Method: http.MethodPost,
			Path:   l.APIURL + path,
			Headers: map[string]string{
				"Content-Type":     "application/x-www-form-urlencoded",
				"timestamp":        ts,
				"signature_method": lbankSignatureMethod,
				"echostr":          echo,
			},
			Body:        strings.NewReader(form.Encode()),
			Result:      &interim,
			AuthRequest: true,
			Verbose:     l.Verbose,
		}, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(l.Name, err, l.mapHTTPBody)
	}
	return l.unwrapResult(&interim, result)
}

func (l *Lbank) unwrapResult(interim *envelope, result interface{}) error {
	if interim.failed() {
		return l.mapError(interim.ErrorCode, 0)
	}
	payload := interim.payload()
	if result == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, result)
}

// mapError resolves a venue failure code to a taxonomy error
func (l *Lbank) mapError(code int64, httpStatus int) error {
	kind, ok := lbankErrors[code]
	if !ok {
		kind = exchange.ErrExchangeError
		if httpStatus != 0 {
			kind = exchange.MapHTTPStatus(httpStatus)
		}
	}
	message, ok := lbankErrorNotes[code]
	if !ok {
		message = "error code " + strconv.FormatInt(code, 10)
	}
	return &exchange.APIError{
		Exchange:   l.Name,
		Code:       strconv.FormatInt(code, 10),
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

func (l *Lbank) mapHTTPBody(status int, body []byte) error {
	var interim envelope
	if err := json.Unmarshal(body, &interim); err != nil {
		return nil
	}
	if interim.ErrorCode == 0 {
		return nil
	}
	return l.mapError(interim.ErrorCode, status)
}
