// Package coinbase implements the Coinbase Advanced Trade venue driver: the
// /api/v3/brokerage REST surface behind ES256 JWT bearer auth and the
// advanced-trade websocket feeds.
package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unifex/unifex/common/crypto"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/request"
)

const (
	coinbaseAPIURL = "https://api.coinbase.com"
	coinbaseWSURL  = "wss://advanced-trade-ws.coinbase.com"

	coinbaseBrokerage = "/api/v3/brokerage"

	coinbaseProducts           = "/products"
	coinbaseProductBook        = "/product_book"
	coinbaseOrders             = "/orders"
	coinbaseBatchCancel        = "/orders/batch_cancel"
	coinbaseHistoricalOrders   = "/orders/historical/batch"
	coinbaseHistoricalOrder    = "/orders/historical/"
	coinbaseFills              = "/orders/historical/fills"
	coinbaseAccounts           = "/accounts"
	coinbaseTransactionSummary = "/transaction_summary"

	// coinbaseMarketPrefix exposes the unauthenticated mirrors of the
	// market data endpoints
	coinbaseMarketPrefix = "/market"

	coinbaseJWTIssuer   = "coinbase-cloud"
	coinbaseJWTAudience = "retail_rest_api_proxy"
	coinbaseJWTLifetime = 2 * time.Minute

	coinbaseRateInterval = time.Second
	coinbaseRequestRate  = 30
)

// coinbaseErrors maps venue failure identifiers onto the unified taxonomy
var coinbaseErrors = map[string]error{
	"INSUFFICIENT_FUND":           exchange.ErrInsufficientFunds,
	"INSUFFICIENT_FUNDS":          exchange.ErrInsufficientFunds,
	"INVALID_PRICE_PRECISION":     exchange.ErrInvalidOrder,
	"INVALID_SIZE_PRECISION":      exchange.ErrInvalidOrder,
	"INVALID_LIMIT_PRICE":         exchange.ErrInvalidOrder,
	"INVALID_ORDER_CONFIGURATION": exchange.ErrInvalidOrder,
	"ORDER_SIZE_TOO_SMALL":        exchange.ErrInvalidOrder,
	"UNKNOWN_ORDER_ID":            exchange.ErrOrderNotFound,
	"UNKNOWN_CANCEL_ORDER":        exchange.ErrOrderNotFound,
	"NOT_FOUND":                   exchange.ErrOrderNotFound,
	"PRODUCT_NOT_FOUND":           exchange.ErrBadSymbol,
	"INVALID_PRODUCT_ID":          exchange.ErrBadSymbol,
	"PERMISSION_DENIED":           exchange.ErrAuthentication,
	"UNAUTHENTICATED":             exchange.ErrAuthentication,
	"UNAUTHORIZED":                exchange.ErrAuthentication,
	"RATE_LIMIT_EXCEEDED":         exchange.ErrRateLimitExceeded,
	"INVALID_ARGUMENT":            exchange.ErrBadRequest,
	"UNAVAILABLE":                 exchange.ErrExchangeNotAvailable,
	"INTERNAL":                    exchange.ErrExchangeNotAvailable,
}

// Coinbase is the overarching type across the coinbase package
type Coinbase struct {
	exchange.Base

	APIURL       string
	WebsocketURL string

	// now feeds the JWT validity window
	now func() time.Time

	jwtMu        sync.Mutex
	wsJWT        string
	wsJWTExpires time.Time

	wsBookMu sync.Mutex
	wsBooks  map[string]*orderbook.Base
}

// New returns a configured Coinbase Advanced Trade driver
func New(cfg *exchange.Config) (*Coinbase, error) {
	if cfg == nil {
		cfg = &exchange.Config{}
	}
	if cfg.Name == "" {
		cfg.Name = "Coinbase"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coinbase{}
	c.SetDefaults(cfg)
	c.APIURL = coinbaseAPIURL
	c.WebsocketURL = coinbaseWSURL
	c.now = time.Now
	c.wsBooks = make(map[string]*orderbook.Base)
	c.Features = exchange.Features{
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
	}
	opts := []request.RequesterOption{}
	if cfg.EnableRateLimit {
		opts = append(opts, request.WithLimiter(
			request.NewRateLimiter(coinbaseRateInterval, coinbaseRequestRate)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, request.WithTimeout(cfg.Timeout))
	}
	c.Requester = request.New(c.Name, new(http.Client), opts...)
	return c, nil
}

// hasCredentials reports whether the driver can sign requests
func (c *Coinbase) hasCredentials() bool {
	return c.API.Key != "" && c.API.PEMKey != ""
}

// marketDataPath routes a market data endpoint through the authenticated
// surface when credentials exist, and the public /market mirror otherwise
func (c *Coinbase) marketDataPath(endpoint string) string {
	if c.hasCredentials() {
		return coinbaseBrokerage + endpoint
	}
	return coinbaseBrokerage + coinbaseMarketPrefix + endpoint
}

// GetProducts returns the tradable product directory
func (c *Coinbase) GetProducts(ctx context.Context) (*ProductsResponse, error) {
	var resp ProductsResponse
	return &resp, c.sendMarketDataRequest(ctx, c.marketDataPath(coinbaseProducts), nil, &resp)
}

// GetProduct returns one product descriptor with its 24h statistics
func (c *Coinbase) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var resp Product
	return &resp, c.sendMarketDataRequest(ctx, c.marketDataPath(coinbaseProducts+"/"+productID), nil, &resp)
}

// GetProductBook returns the aggregated book for one product
func (c *Coinbase) GetProductBook(ctx context.Context, productID string, limit int) (*ProductBookResponse, error) {
	v := url.Values{}
	v.Set("product_id", productID)
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp ProductBookResponse
	return &resp, c.sendMarketDataRequest(ctx, c.marketDataPath(coinbaseProductBook), v, &resp)
}

// GetProductTicker returns recent trades plus the touch for one product
func (c *Coinbase) GetProductTicker(ctx context.Context, productID string, limit int) (*TickerResponse, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp TickerResponse
	return &resp, c.sendMarketDataRequest(ctx, c.marketDataPath(coinbaseProducts+"/"+productID+"/ticker"), v, &resp)
}

// GetProductCandles returns kline rows for one product, newest first. start
// and end are unix seconds and both required by the venue.
func (c *Coinbase) GetProductCandles(ctx context.Context, productID, granularity string, start, end int64) (*CandlesResponse, error) {
	v := url.Values{}
	v.Set("granularity", granularity)
	v.Set("start", strconv.FormatInt(start, 10))
	v.Set("end", strconv.FormatInt(end, 10))
	var resp CandlesResponse
	return &resp, c.sendMarketDataRequest(ctx, c.marketDataPath(coinbaseProducts+"/"+productID+"/candles"), v, &resp)
}

// PlaceOrder submits an order. Rejections arrive with HTTP 200 and success
// false, so the error response is mapped here.
func (c *Coinbase) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	var resp PlaceOrderResponse
	err := c.SendAuthenticatedHTTPRequest(ctx, http.MethodPost, coinbaseBrokerage+coinbaseOrders, nil, req, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		message := resp.ErrorResponse.Message
		if message == "" {
			message = resp.ErrorResponse.PreviewFailureReason
		}
		return nil, c.mapError(resp.ErrorResponse.Error, message, 0)
	}
	return &resp, nil
}

// BatchCancelOrders requests cancellation for up to 100 order ids
func (c *Coinbase) BatchCancelOrders(ctx context.Context, orderIDs []string) (*BatchCancelResponse, error) {
	var resp BatchCancelResponse
	err := c.SendAuthenticatedHTTPRequest(ctx, http.MethodPost, coinbaseBrokerage+coinbaseBatchCancel, nil,
		&BatchCancelRequest{OrderIDs: orderIDs}, &resp)
	return &resp, err
}

// GetOrder returns one order by venue id
func (c *Coinbase) GetOrder(ctx context.Context, orderID string) (*VenueOrder, error) {
	var resp GetOrderResponse
	err := c.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, coinbaseBrokerage+coinbaseHistoricalOrder+orderID, nil, nil, &resp)
	return &resp.Order, err
}

// ListOrders returns one page of historical orders. status filters by
// lifecycle state when non empty; startDate is RFC3339.
func (c *Coinbase) ListOrders(ctx context.Context, status, productID, startDate string) (*ListOrdersResponse, error) {
	v := url.Values{}
	if status != "" {
		v.Set("order_status", status)
	}
	if productID != "" {
		v.Set("product_id", productID)
	}
	if startDate != "" {
		v.Set("start_date", startDate)
	}
	var resp ListOrdersResponse
	return &resp, c.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, coinbaseBrokerage+coinbaseHistoricalOrders, v, nil, &resp)
}

// ListFills returns one page of account executions
func (c *Coinbase) ListFills(ctx context.Context, productID, startSequenceTimestamp string) (*FillsResponse, error) {
	v := url.Values{}
	if productID != "" {
		v.Set("product_id", productID)
	}
	if startSequenceTimestamp != "" {
		v.Set("start_sequence_timestamp", startSequenceTimestamp)
	}
	var resp FillsResponse
	return &resp, c.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, coinbaseBrokerage+coinbaseFills, v, nil, &resp)
}

// GetAccounts returns one page of currency wallets
func (c *Coinbase) GetAccounts(ctx context.Context, cursor string) (*AccountsResponse, error) {
	v := url.Values{}
	v.Set("limit", "250")
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	var resp AccountsResponse
	return &resp, c.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, coinbaseBrokerage+coinbaseAccounts, v, nil, &resp)
}

// GetAllAccounts walks the wallet pagination until exhausted
func (c *Coinbase) GetAllAccounts(ctx context.Context) ([]VenueAccount, error) {
	var out []VenueAccount
	cursor := ""
	for {
		page, err := c.GetAccounts(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Accounts...)
		if !page.HasNext || page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// GetTransactionSummary returns the account fee schedule
func (c *Coinbase) GetTransactionSummary(ctx context.Context) (*TransactionSummary, error) {
	var resp TransactionSummary
	return &resp, c.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, coinbaseBrokerage+coinbaseTransactionSummary, nil, nil, &resp)
}

// sendMarketDataRequest signs when credentials exist so the authenticated
// market data surface can be used, and falls back to a plain GET against
// the public mirror otherwise
func (c *Coinbase) sendMarketDataRequest(ctx context.Context, path string, values url.Values, result interface{}) error {
	if c.hasCredentials() {
		return c.SendAuthenticatedHTTPRequest(ctx, http.MethodGet, path, values, nil, result)
	}
	return c.SendHTTPRequest(ctx, path, values, result)
}

// SendHTTPRequest sends an unauthenticated GET request
func (c *Coinbase) SendHTTPRequest(ctx context.Context, path string, values url.Values, result interface{}) error {
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	err := c.Requester.SendPayload(ctx, 1, func() (*request.Item, error) {
		return &request.Item{
			Method:  http.MethodGet,
			Path:    c.APIURL + path,
			Result:  result,
			Verbose: c.Verbose,
		}, nil
	})
	return exchange.ClassifyHTTPError(c.Name, err, c.mapHTTPBody)
}

// SendAuthenticatedHTTPRequest sends a request carrying a fresh ES256 JWT
// bearer token. The token is rebuilt on every attempt because each one
// embeds the request uri and a two minute validity window.
func (c *Coinbase) SendAuthenticatedHTTPRequest(ctx context.Context, method, path string, values url.Values, body, result interface{}) error {
	if !c.hasCredentials() {
		return fmt.Errorf("%s %w: api key and EC private key required", c.Name, exchange.ErrAuthentication)
	}
	requestPath := path
	if len(values) > 0 {
		requestPath += "?" + values.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encoding request body: %w", c.Name, err)
		}
	}

	err := c.Requester.SendPayload(ctx, 2, func() (*request.Item, error) {
		token, err := c.signJWT(c.jwtURI(method, path))
		if err != nil {
			return nil, err
		}
		item := &request.Item{
			Method: method,
			Path:   c.APIURL + requestPath,
			Headers: map[string]string{
				"Authorization": "Bearer " + token,
			},
			Result:      result,
			AuthRequest: true,
			Verbose:     c.Verbose,
		}
		if len(payload) > 0 {
			item.Headers["Content-Type"] = "application/json"
			item.Body = bytes.NewReader(payload)
		}
		return item, nil
	})
	return exchange.ClassifyHTTPError(c.Name, err, c.mapHTTPBody)
}

// jwtURI builds the uri claim: method, host and path without the query
func (c *Coinbase) jwtURI(method, path string) string {
	host := c.APIURL
	if u, err := url.Parse(c.APIURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return method + " " + host + path
}

// jwtClaims carries the registered set plus the venue's uri claim
type jwtClaims struct {
	jwt.RegisteredClaims
	URI string `json:"uri,omitempty"`
}

// signJWT builds a short-lived ES256 token. The credential is a PEM encoded
// EC private key and the key name rides both the kid header and the subject
// claim. uri is empty for websocket tokens.
func (c *Coinbase) signJWT(uri string) (string, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(c.API.PEMKey))
	if err != nil {
		return "", fmt.Errorf("%s: parsing EC private key: %w", c.Name, err)
	}
	nonce, err := crypto.RandomHex(16)
	if err != nil {
		return "", err
	}
	now := c.now()
	claims := &jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    coinbaseJWTIssuer,
			Subject:   c.API.Key,
			Audience:  jwt.ClaimStrings{coinbaseJWTAudience},
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(coinbaseJWTLifetime)),
		},
		URI: uri,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = c.API.Key
	token.Header["nonce"] = nonce
	return token.SignedString(key)
}

// websocketJWT returns a cached uri-less token for stream subscriptions,
// refreshing it inside the validity window
func (c *Coinbase) websocketJWT() (string, error) {
	c.jwtMu.Lock()
	defer c.jwtMu.Unlock()
	if c.wsJWT != "" && c.now().Before(c.wsJWTExpires) {
		return c.wsJWT, nil
	}
	token, err := c.signJWT("")
	if err != nil {
		return "", err
	}
	c.wsJWT = token
	c.wsJWTExpires = c.now().Add(coinbaseJWTLifetime - 30*time.Second)
	return token, nil
}

// mapError resolves one venue failure identifier
func (c *Coinbase) mapError(code, message string, httpStatus int) error {
	apiErr := exchange.NewAPIError(c.Name, code, message, httpStatus, coinbaseErrors)
	if apiErr.Kind == exchange.ErrExchangeError {
		lower := strings.ToLower(message)
		switch {
		case strings.Contains(lower, "insufficient"):
			apiErr.Kind = exchange.ErrInsufficientFunds
		case strings.Contains(lower, "not found"):
			apiErr.Kind = exchange.ErrOrderNotFound
		case httpStatus != 0:
			apiErr.Kind = exchange.MapHTTPStatus(httpStatus)
		}
	}
	return apiErr
}

// mapHTTPBody maps a non-2xx failure payload
func (c *Coinbase) mapHTTPBody(status int, body []byte) error {
	var failure apiErrorBody
	if err := json.Unmarshal(body, &failure); err != nil {
		return nil
	}
	code := failure.Error
	if code == "" {
		code = failure.Code
	}
	if code == "" && failure.Message == "" {
		return nil
	}
	message := failure.Message
	if message == "" {
		message = failure.ErrorDetails
	}
	return c.mapError(code, message, status)
}
