// Package bitstamp implements the Bitstamp venue driver: v2 REST endpoints
// signed with the X-Auth header scheme and the bts websocket dialect.
package bitstamp

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

	"github.com/gofrs/uuid"

	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/order"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	bitstampAPIURL     = "https://www.bitstamp.net"
	bitstampWSURL      = "wss://ws.bitstamp.net"
	bitstampAuthHost   = "www.bitstamp.net"
	bitstampAPIVersion = "v2"

	bitstampAPITradingPairsInfo = "trading-pairs-info"
	bitstampAPITicker           = "ticker"
	bitstampAPIOrderbook        = "order_book"
	bitstampAPITransactions     = "transactions"
	bitstampAPIOHLC             = "ohlc"
	bitstampAPIBalance          = "balance"
	bitstampAPIOpenOrders       = "open_orders"
	bitstampAPIOrderStatus      = "order_status"
	bitstampAPICancelOrder      = "cancel_order"
	bitstampAPICancelAllOrders  = "cancel_all_orders"
	bitstampAPIBuy              = "buy"
	bitstampAPISell             = "sell"
	bitstampAPIMarket           = "market"
	bitstampAPIUserTransactions = "user_transactions"
	bitstampAPITradingFees      = "fees/trading"
	bitstampAPIWebsocketsToken  = "websockets_token"

	bitstampRateInterval = 10 * time.Minute
	bitstampRequestRate  = 8000
)

// bitstampErrors maps venue failure codes onto the unified taxonomy
var bitstampErrors = map[string]error{
	"API0001": exchange.ErrAuthentication,
	"API0002": exchange.ErrAuthentication,
	"API0003": exchange.ErrAuthentication,
	"API0004": exchange.ErrAuthentication,
	"API0005": exchange.ErrAuthentication,
	"API0006": exchange.ErrAuthentication,
	"API0007": exchange.ErrAuthentication,
	"API0008": exchange.ErrAuthentication,
	"API0011": exchange.ErrAuthentication,
	"API0013": exchange.ErrBadRequest,
	"API0014": exchange.ErrBadRequest,
	"API0017": exchange.ErrBadSymbol,
	"API0021": exchange.ErrRateLimitExceeded,
}

// Bitstamp is the overarching type across the bitstamp package
type Bitstamp struct {
	exchange.Base

	APIURL       string
	WebsocketURL string

	// nonceFn and nowMS are the signer's uuid nonce and millisecond clock
	nonceFn func() string
	nowMS   func() int64

	wsTokenMu      sync.Mutex
	wsToken        *WebsocketToken
	wsTokenExpires time.Time
}

// New returns a configured Bitstamp driver
func New(cfg *exchange.Config) (*Bitstamp, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "Bitstamp"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bitstamp{}
	b.SetDefaults(cfg)
	b.APIURL = bitstampAPIURL
	b.WebsocketURL = bitstampWSURL
	b.nonceFn = func() string {
		n, err := uuid.NewV4()
		if err != nil {
			return strconv.FormatInt(time.Now().UnixNano(), 10)
		}
		return n.String()
	}
	b.nowMS = func() int64 { return time.Now().UnixMilli() }
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
		MyTrades:        true,
		Balance:         true,
		TradingFees:     true,
		WatchOrderBook:  true,
		WatchTrades:     true,
		WatchOrders:     true,
	}
	opts := []request.RequesterOption{}
	if cfg.EnableRateLimit {
		opts = append(opts, request.WithLimiter(
			request.NewRateLimiter(bitstampRateInterval, bitstampRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	b.Requester = request.New(b.Name, new(http.Client), opts...)
	return b, nil
}

// apiPath joins endpoint segments under the versioned prefix. Bitstamp paths
// always end with a trailing slash.
func apiPath(parts ...string) string {
	return "/api/" + bitstampAPIVersion + "/" + strings.Join(parts, "/") + "/"
}

// GetTradingPairsInfo returns the full pair listing
func (b *Bitstamp) GetTradingPairsInfo(ctx context.Context) ([]TradingPair, error) {
	var resp []TradingPair
	return resp, b.SendHTTPRequest(ctx, apiPath(bitstampAPITradingPairsInfo), &resp)
}

// GetTicker returns the 24h ticker for one pair
func (b *Bitstamp) GetTicker(ctx context.Context, marketID string) (*Ticker, error) {
	var resp Ticker
	path := apiPath(bitstampAPITicker, strings.ToLower(marketID))
	return &resp, b.SendHTTPRequest(ctx, path, &resp)
}

// GetOrderbook returns the current book snapshot for one pair
func (b *Bitstamp) GetOrderbook(ctx context.Context, marketID string) (*Orderbook, error) {
	var resp Orderbook
	path := apiPath(bitstampAPIOrderbook, strings.ToLower(marketID))
	return &resp, b.SendHTTPRequest(ctx, path, &resp)
}

// GetTransactions returns public trades for one pair. timeInterval is one of
// minute, hour or day.
func (b *Bitstamp) GetTransactions(ctx context.Context, marketID, timeInterval string) ([]Transaction, error) {
	var resp []Transaction
	path := apiPath(bitstampAPITransactions, strings.ToLower(marketID))
	if timeInterval != "" {
		path += "?time=" + url.QueryEscape(timeInterval)
	}
	return resp, b.SendHTTPRequest(ctx, path, &resp)
}

// GetOHLC returns candles for one pair. step is the bar length in seconds.
func (b *Bitstamp) GetOHLC(ctx context.Context, marketID string, step, limit, start int64) (*OHLCResponse, error) {
	v := url.Values{}
	v.Set("step", strconv.FormatInt(step, 10))
	v.Set("limit", strconv.FormatInt(limit, 10))
	if start > 0 {
		v.Set("start", strconv.FormatInt(start, 10))
	}
	var resp OHLCResponse
	path := apiPath(bitstampAPIOHLC, strings.ToLower(marketID)) + "?" + v.Encode()
	return &resp, b.SendHTTPRequest(ctx, path, &resp)
}

// GetBalance returns the flat account balance map. Keys are currency
// prefixed, e.g. usd_available, usd_reserved, usd_balance.
func (b *Bitstamp) GetBalance(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	return resp, b.SendAuthenticatedHTTPRequest(ctx, apiPath(bitstampAPIBalance), nil, &resp)
}

// GetOpenOrders returns resting orders for one pair, or all pairs when
// marketID is empty
func (b *Bitstamp) GetOpenOrders(ctx context.Context, marketID string) ([]OpenOrder, error) {
	target := "all"
	if marketID != "" {
		target = strings.ToLower(marketID)
	}
	var resp []OpenOrder
	return resp, b.SendAuthenticatedHTTPRequest(ctx, apiPath(bitstampAPIOpenOrders, target), nil, &resp)
}

// GetOrderStatus returns the state and fills of one order
func (b *Bitstamp) GetOrderStatus(ctx context.Context, orderID, clientOrderID string) (*OrderStatus, error) {
	v := url.Values{}
	if orderID != "" {
		v.Set("id", orderID)
	}
	if clientOrderID != "" {
		v.Set("client_order_id", clientOrderID)
	}
	var resp OrderStatus
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, apiPath(bitstampAPIOrderStatus), v, &resp)
}

// CancelExistingOrder cancels one order by id
func (b *Bitstamp) CancelExistingOrder(ctx context.Context, orderID string) (*CancelledOrder, error) {
	v := url.Values{}
	v.Set("id", orderID)
	var resp CancelledOrder
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, apiPath(bitstampAPICancelOrder), v, &resp)
}

// CancelAllExistingOrders cancels every resting order, optionally scoped to
// one pair
func (b *Bitstamp) CancelAllExistingOrders(ctx context.Context, marketID string) (*CancelAllResult, error) {
	path := apiPath(bitstampAPICancelAllOrders)
	if marketID != "" {
		path = apiPath(bitstampAPICancelAllOrders, strings.ToLower(marketID))
	}
	var resp CancelAllResult
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, path, nil, &resp)
}

// PlaceOrder submits a limit or market order. The side travels in the URL.
func (b *Bitstamp) PlaceOrder(ctx context.Context, marketID string, side order.Side, marketOrder bool, amount, price float64, clientOrderID string) (*PlacedOrder, error) {
	segment := bitstampAPIBuy
	if side == order.Sell {
		segment = bitstampAPISell
	}
	var path string
	if marketOrder {
		path = apiPath(segment, bitstampAPIMarket, strings.ToLower(marketID))
	} else {
		path = apiPath(segment, strings.ToLower(marketID))
	}

	v := url.Values{}
	v.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	if !marketOrder {
		v.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if clientOrderID != "" {
		v.Set("client_order_id", clientOrderID)
	}
	var resp PlacedOrder
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, path, v, &resp)
}

// GetUserTransactions returns account ledger rows for one pair. Trade rows
// carry type == "2" with currency-keyed amounts. Paging always starts at
// offset 0; the venue ignores time filters on this endpoint.
func (b *Bitstamp) GetUserTransactions(ctx context.Context, marketID string, limit int64) ([]map[string]interface{}, error) {
	v := url.Values{}
	v.Set("offset", "0")
	if limit > 0 {
		v.Set("limit", strconv.FormatInt(limit, 10))
	}
	v.Set("sort", "desc")

	path := apiPath(bitstampAPIUserTransactions)
	if marketID != "" {
		path = apiPath(bitstampAPIUserTransactions, strings.ToLower(marketID))
	}
	var resp []map[string]interface{}
	return resp, b.SendAuthenticatedHTTPRequest(ctx, path, v, &resp)
}

// GetTradingFees returns per-pair maker and taker rates
func (b *Bitstamp) GetTradingFees(ctx context.Context) ([]TradingFee, error) {
	var resp []TradingFee
	return resp, b.SendAuthenticatedHTTPRequest(ctx, apiPath(bitstampAPITradingFees), nil, &resp)
}

// GetWebsocketToken returns a short-lived token for private stream channels
func (b *Bitstamp) GetWebsocketToken(ctx context.Context) (*WebsocketToken, error) {
	var resp WebsocketToken
	return &resp, b.SendAuthenticatedHTTPRequest(ctx, apiPath(bitstampAPIWebsocketsToken), nil, &resp)
}

// SendHTTPRequest sends an unauthenticated HTTP request
func (b *Bitstamp) SendHTTPRequest(ctx context.Context, path string, result interface{}) error {
	item := &request.Item{
		Method:  http.MethodGet,
		Path:    b.APIURL + path,
		Result:  result,
		Verbose: b.Verbose,
	}
	err := b.Requester.SendPayload(ctx, 1, func() (*request.Item, error) {
		return item, nil
	})
	return exchange.ClassifyHTTPError(b.Name, err, b.mapHTTPBody)
}

// SendAuthenticatedHTTPRequest sends a signed POST request. values become
// the form body; signature material is rebuilt on every attempt so the nonce
// and timestamp stay fresh.
func (b *Bitstamp) SendAuthenticatedHTTPRequest(ctx context.Context, path string, values url.Values, result interface{}) error {
	if err := b.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", b.Name, exchange.ErrAuthentication, err)
	}

	interim := json.RawMessage{}
	err := b.Requester.SendPayload(ctx, 1, func() (*request.Item, error) {
		body := ""
		if len(values) > 0 {
			body = values.Encode()
		}
		headers := b.signRequest(http.MethodPost, path, body)
		item := &request.Item{
			Method:      http.MethodPost,
			Path:        b.APIURL + path,
			Headers:     headers,
			Result:      &interim,
			AuthRequest: true,
			Verbose:     b.Verbose,
		}
		if body != "" {
			item.Body = strings.NewReader(body)
		}
		return item, nil
	})
	if err != nil {
		return exchange.ClassifyHTTPError(b.Name, err, b.mapHTTPBody)
	}
	if apiErr := b.unwrapError(interim, 0); apiErr != nil {
		return apiErr
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(interim, result)
}

// signRequest builds the v2 auth headers. The signed string is
// "BITSTAMP "+key, method, host, path, content type when a body exists,
// uuid nonce, millisecond timestamp, the version tag and finally the body.
func (b *Bitstamp) signRequest(method, path, body string) map[string]string {
	auth := "BITSTAMP " + b.API.Key
	nonce := b.nonceFn()
	timestamp := strconv.FormatInt(b.nowMS(), 10)

	contentType := ""
	if body != "" {
		contentType = "application/x-www-form-urlencoded"
	}

	msg := auth + method + bitstampAuthHost + path + contentType + nonce + timestamp + bitstampAPIVersion + body
	headers := map[string]string{
		"X-Auth":           auth,
		"X-Auth-Signature": crypto.HMACSHA256Hex(msg, b.API.Secret),
		"X-Auth-Nonce":     nonce,
		"X-Auth-Timestamp": timestamp,
		"X-Auth-Version":   bitstampAPIVersion,
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return headers
}

// unwrapError inspects a decoded body for the status=="error" envelope
func (b *Bitstamp) unwrapError(raw []byte, httpStatus int) error {
	var errCap errorCapture
	if err := json.Unmarshal(raw, &errCap); err != nil {
		return nil
	}
	if errCap.Status != "error" && errCap.Error == "" {
		return nil
	}

	message := errCap.Error
	switch reason := errCap.Reason.(type) {
	case string:
		message = reason
	case map[string]interface{}:
		var details strings.Builder
		for _, messages := range reason {
			switch m := messages.(type) {
			case []interface{}:
				for _, entry := range m {
					if s, ok := entry.(string); ok {
						details.WriteString(s)
					}
				}
			case string:
				details.WriteString(m)
			}
		}
		message = details.String()
	}

	apiErr := exchange.NewAPIError(b.Name, errCap.Code, message, httpStatus, bitstampErrors)
	if apiErr.Kind == exchange.ErrExchangeError {
		apiErr.Kind = matchErrorMessage(message)
	}
	return apiErr
}

// matchErrorMessage refines failures the code table misses by scanning the
// reason text
func matchErrorMessage(message string) error {
	switch {
	case strings.Contains(message, "Order not found"):
		return exchange.ErrOrderNotFound
	case strings.Contains(message, "You have only"),
		strings.Contains(message, "Check your account balance for details"):
		return exchange.ErrInsufficientFunds
	case strings.Contains(message, "Minimum order size"),
		strings.Contains(message, "Price is more than 20%"):
		return exchange.ErrInvalidOrder
	case strings.Contains(message, "Invalid nonce"),
		strings.Contains(message, "Invalid signature"),
		strings.Contains(message, "API key"),
		strings.Contains(message, "Missing key, signature and nonce"):
		return exchange.ErrAuthentication
	case strings.Contains(message, "Invalid offset"):
		return exchange.ErrBadRequest
	default:
		return exchange.ErrExchangeError
	}
}

// mapHTTPBody is the non-2xx body mapper handed to the HTTP error classifier
func (b *Bitstamp) mapHTTPBody(status int, body []byte) error {
	return b.unwrapError(body, status)
}
