package coinbase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifex/unifex/common"
	"github.com/unifex/unifex/currency"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/mock"
	"github.com/unifex/unifex/exchanges/order"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/stream"
	"github.com/unifex/unifex/exchanges/ticker"
	"github.com/unifex/unifex/exchanges/trade"
)

const testKeyName = "organizations/test-org/apiKeys/key-1"

const productsFixture = `{"num_products":2,"products":[
	{"product_id":"BTC-USD","price":"50000","price_percentage_change_24h":"2.5",
		"volume_24h":"1200.5","volume_percentage_change_24h":"7.5",
		"base_increment":"0.00000001","quote_increment":"0.01",
		"quote_min_size":"1","quote_max_size":"10000000",
		"base_min_size":"0.00001","base_max_size":"3400",
		"base_name":"Bitcoin","quote_name":"US Dollar","status":"online",
		"product_type":"SPOT","base_currency_id":"BTC","quote_currency_id":"USD"},
	{"product_id":"ETH-USD","price":"3000","base_increment":"0.001",
		"quote_increment":"0.01","status":"delisted","trading_disabled":true,
		"product_type":"SPOT","base_currency_id":"ETH","quote_currency_id":"USD"}]}`

// testPEMKey mints a throwaway EC key in the PEM form the venue issues
func testPEMKey(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return string(block), key
}

func testInstance(t *testing.T) (*Coinbase, *mock.Server, *ecdsa.PrivateKey) {
	t.Helper()
	pemKey, key := testPEMKey(t)
	c, err := New(&exchange.Config{
		Credentials: exchange.Credentials{Key: testKeyName, PEMKey: pemKey},
	})
	require.NoError(t, err)

	srv := mock.NewServer()
	t.Cleanup(srv.Close)
	c.APIURL = srv.URL
	srv.HandleJSON("GET", "/api/v3/brokerage/products", 200, productsFixture)
	return c, srv, key
}

func TestSignJWT(t *testing.T) {
	c, _, key := testInstance(t)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	uri := c.jwtURI(http.MethodGet, "/api/v3/brokerage/accounts")
	token, err := c.signJWT(uri)
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{},
		func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"ES256"}),
		jwt.WithTimeFunc(func() time.Time { return time.Unix(1700000001, 0) }))
	require.NoError(t, err)

	claims := parsed.Claims.(*jwtClaims)
	assert.Equal(t, "coinbase-cloud", claims.Issuer)
	assert.Equal(t, testKeyName, claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{"retail_rest_api_proxy"}, claims.Audience)
	assert.Equal(t, uri, claims.URI)
	assert.Equal(t, int64(1700000000), claims.NotBefore.Unix())
	assert.Equal(t, int64(1700000120), claims.ExpiresAt.Unix(), "token lives two minutes")
	assert.Equal(t, testKeyName, parsed.Header["kid"])
	assert.NotEmpty(t, parsed.Header["nonce"])
}

func TestSignJWTBadKey(t *testing.T) {
	c, err := New(&exchange.Config{
		Credentials: exchange.Credentials{Key: testKeyName, PEMKey: "not a pem block"},
	})
	require.NoError(t, err)
	_, err = c.signJWT("")
	assert.Error(t, err)
}

func TestAuthenticatedRequestSendsBearer(t *testing.T) {
	c, srv, key := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/accounts", 200, `{"accounts":[],"has_next":false}`)

	_, err := c.GetAccounts(context.Background(), "")
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "250", req.URL.Query().Get("limit"))
	auth := req.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(auth, "Bearer "))

	parsed, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &jwtClaims{},
		func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	claims := parsed.Claims.(*jwtClaims)
	assert.Equal(t, "GET "+u.Host+"/api/v3/brokerage/accounts", claims.URI,
		"uri claim carries method, host and path without the query")
}

func TestWebsocketJWTCached(t *testing.T) {
	c, _, _ := testInstance(t)
	at := time.Unix(1700000000, 0)
	c.now = func() time.Time { return at }

	first, err := c.websocketJWT()
	require.NoError(t, err)
	second, err := c.websocketJWT()
	require.NoError(t, err)
	assert.Equal(t, first, second, "token inside the validity window is reused")

	at = at.Add(coinbaseJWTLifetime)
	third, err := c.websocketJWT()
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "lapsed token is reminted")
}

func TestPublicMarketDataMirror(t *testing.T) {
	c, err := New(&exchange.Config{})
	require.NoError(t, err)

	srv := mock.NewServer()
	t.Cleanup(srv.Close)
	c.APIURL = srv.URL
	srv.HandleJSON("GET", "/api/v3/brokerage/market/products", 200, productsFixture)

	markets, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, markets, 2)
	assert.Empty(t, srv.LastRequest().Header.Get("Authorization"),
		"keyless instances ride the public mirror unsigned")
}

func TestLoadMarkets(t *testing.T) {
	c, _, _ := testInstance(t)

	markets, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets["BTC/USD"]
	require.NotNil(t, btc)
	assert.Equal(t, "BTC-USD", btc.ID)
	assert.Equal(t, 2, btc.Precision.Price)
	assert.Equal(t, 8, btc.Precision.Amount)
	assert.Equal(t, 0.01, btc.TickSize)
	assert.Equal(t, 1e-8, btc.StepSize)
	assert.Equal(t, 0.00001, btc.Limits.Amount.Min)
	assert.Equal(t, 3400.0, btc.Limits.Amount.Max)
	assert.Equal(t, 1.0, btc.Limits.Cost.Min)
	assert.True(t, btc.Active)

	eth := markets["ETH/USD"]
	require.NotNil(t, eth)
	assert.False(t, eth.Active, "delisted products stay visible but inactive")

	byID, err := c.MarketFromID("BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", byID.Symbol)
}

func TestFetchTicker(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/products/BTC-USD", 200, `{
		"product_id":"BTC-USD","price":"50000","price_percentage_change_24h":"2.5",
		"volume_24h":"1200.5","volume_percentage_change_24h":"7.5"}`)

	price, err := c.FetchTicker(context.Background(), currency.NewPair(currency.BTC, currency.USD))
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price.Last)
	assert.Equal(t, 1200.5, price.Volume)
	assert.Equal(t, 2.5, price.Percentage)
	assert.Equal(t, 7.5, price.QuoteVolume,
		"the 24h volume change figure rides QuoteVolume; the venue serves no quote volume")
	assert.InDelta(t, 48780.48, price.Open, 0.01)
	assert.False(t, price.LastUpdated.IsZero())
}

func TestFetchTickersFiltered(t *testing.T) {
	c, _, _ := testInstance(t)

	out, err := c.FetchTickers(context.Background(),
		currency.Pairs{currency.NewPair(currency.BTC, currency.USD)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 50000.0, out["BTC/USD"].Last)

	all, err := c.FetchTickers(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFetchOrderBook(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/product_book", 200, `{"pricebook":{
		"product_id":"BTC-USD","time":"2023-11-14T22:13:20Z",
		"bids":[{"price":"50000","size":"0.5"},{"price":"49990","size":"1"}],
		"asks":[{"price":"50010","size":"0.7"},{"price":"50020","size":"2"}]}}`)

	book, err := c.FetchOrderBook(context.Background(), currency.NewPair(currency.BTC, currency.USD), 10)
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "BTC-USD", req.URL.Query().Get("product_id"))
	assert.Equal(t, "10", req.URL.Query().Get("limit"))

	require.Len(t, book.Bids, 2)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
	assert.Equal(t, 0.5, book.Bids[0].Amount)
	assert.NoError(t, book.Verify())
	assert.Equal(t, int64(1700000000), book.LastUpdated.Unix())
}

func TestFetchTrades(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/products/BTC-USD/ticker", 200, `{
		"trades":[
			{"trade_id":"t2","product_id":"BTC-USD","price":"50010","size":"0.2",
				"time":"2023-11-14T22:13:40Z","side":"SELL"},
			{"trade_id":"t1","product_id":"BTC-USD","price":"50000","size":"0.1",
				"time":"2023-11-14T22:13:20Z","side":"BUY"}],
		"best_bid":"50000","best_ask":"50010"}`)

	trades, err := c.FetchTrades(context.Background(),
		currency.NewPair(currency.BTC, currency.USD), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID, "trades sort oldest first")
	assert.Equal(t, order.Buy, trades[0].Side)
	assert.Equal(t, order.Sell, trades[1].Side)
	assert.Equal(t, 50010*0.2, trades[1].Cost)

	since := time.Date(2023, 11, 14, 22, 13, 30, 0, time.UTC)
	trades, err = c.FetchTrades(context.Background(),
		currency.NewPair(currency.BTC, currency.USD), since, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t2", trades[0].ID)
}

func TestFetchOHLCVReversesRows(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/products/BTC-USD/candles", 200, `{"candles":[
		{"start":"1700000060","low":"7","high":"12","open":"9","close":"11","volume":"80.5"},
		{"start":"1700000000","low":"6","high":"10","open":"8","close":"9","volume":"50"}]}`)

	pair := currency.NewPair(currency.BTC, currency.USD)
	candles, err := c.FetchOHLCV(context.Background(), pair, kline.OneMin, time.Unix(1700000000, 0), 0)
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "ONE_MINUTE", req.URL.Query().Get("granularity"))
	assert.Equal(t, "1700000000", req.URL.Query().Get("start"))
	assert.NotEmpty(t, req.URL.Query().Get("end"), "the venue requires both window bounds")

	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000), candles[0].Time.Unix())
	assert.Equal(t, 8.0, candles[0].Open)
	assert.Equal(t, 10.0, candles[0].High)
	assert.Equal(t, 6.0, candles[0].Low)
	assert.Equal(t, 9.0, candles[0].Close)
	assert.Equal(t, 50.0, candles[0].Volume)
	assert.Equal(t, int64(1700000060), candles[1].Time.Unix())

	_, err = c.FetchOHLCV(context.Background(), pair, kline.Interval(7*time.Minute), time.Time{}, 0)
	assert.ErrorIs(t, err, kline.ErrUnsupportedInterval)
}

func TestCreateOrderMarketBuySpendsQuote(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders", 200,
		`{"success":true,"success_response":{"order_id":"ord-1","product_id":"BTC-USD","side":"BUY"}}`)

	detail, err := c.CreateOrder(context.Background(), &order.Submit{
		Pair:   currency.NewPair(currency.BTC, currency.USD),
		Type:   order.Market,
		Side:   order.Buy,
		Amount: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", detail.ID)
	assert.Equal(t, order.New, detail.Status)

	var body struct {
		ClientOrderID      string `json:"client_order_id"`
		ProductID          string `json:"product_id"`
		Side               string `json:"side"`
		OrderConfiguration struct {
			MarketMarketIOC map[string]interface{} `json:"market_market_ioc"`
			LimitLimitGTC   map[string]interface{} `json:"limit_limit_gtc"`
		} `json:"order_configuration"`
	}
	require.NoError(t, json.Unmarshal(srv.LastRequest().Body, &body))
	assert.Equal(t, "BTC-USD", body.ProductID)
	assert.Equal(t, "BUY", body.Side)
	assert.Equal(t, "50", body.OrderConfiguration.MarketMarketIOC["quote_size"],
		"market buys are quote denominated")
	_, hasBase := body.OrderConfiguration.MarketMarketIOC["base_size"]
	assert.False(t, hasBase)
	assert.Nil(t, body.OrderConfiguration.LimitLimitGTC)

	_, err = uuid.FromString(body.ClientOrderID)
	assert.NoError(t, err, "generated client order id should be a uuid")
	assert.Equal(t, body.ClientOrderID, detail.ClientOrderID)
}

func TestCreateOrderMarketSellShedsBase(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders", 200,
		`{"success":true,"success_response":{"order_id":"ord-2"}}`)

	_, err := c.CreateOrder(context.Background(), &order.Submit{
		Pair:   currency.NewPair(currency.BTC, currency.USD),
		Type:   order.Market,
		Side:   order.Sell,
		Amount: 0.25,
	})
	require.NoError(t, err)

	var body struct {
		OrderConfiguration struct {
			MarketMarketIOC map[string]interface{} `json:"market_market_ioc"`
		} `json:"order_configuration"`
	}
	require.NoError(t, json.Unmarshal(srv.LastRequest().Body, &body))
	assert.Equal(t, "0.25", body.OrderConfiguration.MarketMarketIOC["base_size"])
	_, hasQuote := body.OrderConfiguration.MarketMarketIOC["quote_size"]
	assert.False(t, hasQuote)
}

func TestCreateOrderLimit(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders", 200,
		`{"success":true,"success_response":{"order_id":"ord-3"}}`)

	detail, err := c.CreateOrder(context.Background(), &order.Submit{
		Pair:          currency.NewPair(currency.BTC, currency.USD),
		Type:          order.Limit,
		Side:          order.Sell,
		Amount:        0.5,
		Price:         45000,
		ClientOrderID: "cl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cl-1", detail.ClientOrderID)
	assert.Equal(t, 0.5, detail.Remaining)

	var body struct {
		ClientOrderID      string `json:"client_order_id"`
		OrderConfiguration struct {
			LimitLimitGTC map[string]interface{} `json:"limit_limit_gtc"`
		} `json:"order_configuration"`
	}
	require.NoError(t, json.Unmarshal(srv.LastRequest().Body, &body))
	assert.Equal(t, "cl-1", body.ClientOrderID)
	assert.Equal(t, "0.5", body.OrderConfiguration.LimitLimitGTC["base_size"])
	assert.Equal(t, "45000", body.OrderConfiguration.LimitLimitGTC["limit_price"])
}

func TestCreateOrderRejected(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders", 200, `{"success":false,
		"error_response":{"error":"INSUFFICIENT_FUND",
			"message":"Insufficient balance in source account"}}`)

	_, err := c.CreateOrder(context.Background(), &order.Submit{
		Pair:   currency.NewPair(currency.BTC, currency.USD),
		Type:   order.Market,
		Side:   order.Buy,
		Amount: 1e9,
	})
	assert.ErrorIs(t, err, exchange.ErrInsufficientFunds,
		"rejections arrive with HTTP 200 and success false")
}

func TestCancelOrder(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders/batch_cancel", 200,
		`{"results":[{"success":true,"order_id":"ord-1"}]}`)

	require.NoError(t, c.CancelOrder(context.Background(), "ord-1", currency.EMPTYPAIR))

	var body struct {
		OrderIDs []string `json:"order_ids"`
	}
	require.NoError(t, json.Unmarshal(srv.LastRequest().Body, &body))
	assert.Equal(t, []string{"ord-1"}, body.OrderIDs)
}

func TestCancelOrderRejected(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders/batch_cancel", 200,
		`{"results":[{"success":false,"order_id":"ord-9","failure_reason":"UNKNOWN_CANCEL_ORDER"}]}`)

	err := c.CancelOrder(context.Background(), "ord-9", currency.EMPTYPAIR)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestCancelAllOrders(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/orders/historical/batch", 200, `{"orders":[
		{"order_id":"o1","product_id":"BTC-USD","side":"BUY","status":"OPEN",
			"created_time":"2023-11-14T22:13:20Z",
			"order_configuration":{"limit_limit_gtc":{"base_size":"1","limit_price":"50000"}}},
		{"order_id":"o2","product_id":"BTC-USD","side":"SELL","status":"OPEN",
			"created_time":"2023-11-14T22:13:21Z",
			"order_configuration":{"limit_limit_gtc":{"base_size":"2","limit_price":"51000"}}}],
		"has_next":false}`)
	srv.HandleJSON("POST", "/api/v3/brokerage/orders/batch_cancel", 200,
		`{"results":[{"success":true,"order_id":"o1"},{"success":true,"order_id":"o2"}]}`)

	require.NoError(t, c.CancelAllOrders(context.Background(), currency.NewPair(currency.BTC, currency.USD)))

	var body struct {
		OrderIDs []string `json:"order_ids"`
	}
	require.NoError(t, json.Unmarshal(srv.LastRequest().Body, &body))
	assert.Equal(t, []string{"o1", "o2"}, body.OrderIDs,
		"every open order rides one batch cancel")
}

func TestParseOrderLifecycle(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)

	row := &VenueOrder{
		OrderID:   "abc",
		ProductID: "BTC-USD",
		Side:      "BUY",
		Status:    "OPEN",
		OrderConfiguration: OrderConfiguration{
			LimitLimitGTC: &LimitLimitGTC{BaseSize: "1", LimitPrice: "50500"},
		},
		CreatedTime: "2023-11-14T22:13:20Z",
	}

	detail, err := c.parseOrder(row)
	require.NoError(t, err)
	assert.Equal(t, order.New, detail.Status)
	assert.Equal(t, 1.0, detail.Amount)
	assert.Equal(t, 50500.0, detail.Price)
	assert.Equal(t, 1.0, detail.Remaining)
	assert.Equal(t, int64(1700000000), detail.Timestamp.Unix())

	row.FilledSize = "0.4"
	row.AverageFilledPrice = "50000"
	row.FilledValue = "20000"
	detail, err = c.parseOrder(row)
	require.NoError(t, err)
	assert.Equal(t, order.PartiallyFilled, detail.Status)
	assert.Equal(t, 0.6, detail.Remaining)
	assert.Equal(t, 50000.0, detail.Average)

	row.Status = "FILLED"
	row.FilledSize = "1"
	row.FilledValue = "50000"
	row.TotalFees = "12"
	detail, err = c.parseOrder(row)
	require.NoError(t, err)
	assert.Equal(t, order.Filled, detail.Status)
	assert.Equal(t, 12.0, detail.Fee.Cost)
	assert.Equal(t, currency.USD, detail.Fee.Currency)

	row.Status = "CANCELLED"
	detail, err = c.parseOrder(row)
	require.NoError(t, err)
	assert.Equal(t, order.Cancelled, detail.Status)

	row.Status = "EXPIRED"
	detail, err = c.parseOrder(row)
	require.NoError(t, err)
	assert.Equal(t, order.Expired, detail.Status)

	row.Status = "FAILED"
	detail, err = c.parseOrder(row)
	require.NoError(t, err)
	assert.Equal(t, order.Rejected, detail.Status)
}

func TestParseOrderMarketQuoteSize(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)

	detail, err := c.parseOrder(&VenueOrder{
		OrderID:   "mkt",
		ProductID: "BTC-USD",
		Side:      "BUY",
		Status:    "FILLED",
		OrderConfiguration: OrderConfiguration{
			MarketMarketIOC: &MarketMarketIOC{QuoteSize: "500"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, order.Market, detail.Type)
	assert.Equal(t, 500.0, detail.Amount, "quote denominated market buys keep the quote figure")
}

func TestFetchOrder(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/orders/historical/ord-9", 200, `{"order":{
		"order_id":"ord-9","product_id":"BTC-USD","side":"SELL","status":"FILLED",
		"filled_size":"0.5","average_filled_price":"50000","filled_value":"25000",
		"total_fees":"20","created_time":"2023-11-14T22:13:20Z",
		"order_configuration":{"limit_limit_gtc":{"base_size":"0.5","limit_price":"49900"}}}}`)

	detail, err := c.FetchOrder(context.Background(), "ord-9", currency.EMPTYPAIR)
	require.NoError(t, err)
	assert.Equal(t, order.Filled, detail.Status)
	assert.Equal(t, order.Sell, detail.Side)
	assert.Equal(t, 50000.0, detail.Average)
	assert.Equal(t, 20.0, detail.Fee.Cost)
}

func TestFetchOpenOrders(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/orders/historical/batch", 200, `{"orders":[
		{"order_id":"o1","product_id":"BTC-USD","side":"BUY","status":"OPEN",
			"filled_size":"0.2","created_time":"2023-11-14T22:13:20Z",
			"order_configuration":{"limit_limit_gtc":{"base_size":"1","limit_price":"50000"}}}],
		"has_next":false}`)

	orders, err := c.FetchOpenOrders(context.Background(), currency.NewPair(currency.BTC, currency.USD))
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "OPEN", req.URL.Query().Get("order_status"))
	assert.Equal(t, "BTC-USD", req.URL.Query().Get("product_id"))

	require.Len(t, orders, 1)
	assert.Equal(t, order.PartiallyFilled, orders[0].Status)
	assert.Equal(t, 0.8, orders[0].Remaining)
}

func TestFetchClosedOrders(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/orders/historical/batch", 200, `{"orders":[
		{"order_id":"o1","product_id":"BTC-USD","side":"BUY","status":"OPEN",
			"created_time":"2023-11-14T22:13:22Z",
			"order_configuration":{"limit_limit_gtc":{"base_size":"1","limit_price":"50000"}}},
		{"order_id":"o2","product_id":"BTC-USD","side":"BUY","status":"FILLED",
			"filled_size":"1","created_time":"2023-11-14T22:13:21Z",
			"order_configuration":{"limit_limit_gtc":{"base_size":"1","limit_price":"50000"}}},
		{"order_id":"o3","product_id":"BTC-USD","side":"SELL","status":"CANCELLED",
			"created_time":"2023-11-14T22:13:20Z",
			"order_configuration":{"limit_limit_gtc":{"base_size":"2","limit_price":"51000"}}}],
		"has_next":false}`)

	since := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	orders, err := c.FetchClosedOrders(context.Background(), currency.EMPTYPAIR, since, 0)
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, since.Format(time.RFC3339), req.URL.Query().Get("start_date"))
	assert.Empty(t, req.URL.Query().Get("order_status"),
		"history is fetched unfiltered and open entries drop locally")

	require.Len(t, orders, 2)
	assert.Equal(t, "o3", orders[0].ID, "orders sort oldest first")
	assert.Equal(t, "o2", orders[1].ID)
}

func TestFetchMyTrades(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/orders/historical/fills", 200, `{"fills":[
		{"entry_id":"e2","trade_id":"t2","order_id":"o2","product_id":"BTC-USD",
			"trade_time":"2023-11-14T22:13:40Z","price":"50010","size":"0.2",
			"commission":"0.5","liquidity_indicator":"TAKER","side":"BUY"},
		{"entry_id":"e1","trade_id":"t1","order_id":"o1","product_id":"BTC-USD",
			"trade_time":"2023-11-14T22:13:20Z","price":"50000","size":"0.1",
			"commission":"0.25","liquidity_indicator":"MAKER","side":"SELL"}]}`)

	trades, err := c.FetchMyTrades(context.Background(),
		currency.NewPair(currency.BTC, currency.USD), time.Time{}, 0)
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "BTC-USD", req.URL.Query().Get("product_id"))

	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID, "fills sort oldest first")
	assert.True(t, trades[0].IsMaker)
	assert.Equal(t, order.Sell, trades[0].Side)
	assert.Equal(t, 0.25, trades[0].Fee.Cost)
	assert.Equal(t, currency.USD, trades[0].Fee.Currency)
	assert.False(t, trades[1].IsMaker)
}

func TestFetchBalanceWalksPagination(t *testing.T) {
	c, srv, _ := testInstance(t)
	pages := 0
	srv.HandleFunc("GET", "/api/v3/brokerage/accounts", func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"accounts":[{"uuid":"u1","currency":"BTC",
				"available_balance":{"value":"1.5","currency":"BTC"},
				"hold":{"value":"0.5","currency":"BTC"}}],
				"has_next":true,"cursor":"c2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accounts":[{"uuid":"u2","currency":"USD",
			"available_balance":{"value":"100","currency":"USD"},
			"hold":{"value":"0","currency":"USD"}}],
			"has_next":false,"cursor":""}`))
	})

	holdings, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pages, "pagination walks until has_next clears")

	btc := holdings.Balances[currency.BTC]
	assert.Equal(t, 1.5, btc.Free)
	assert.Equal(t, 0.5, btc.Used)
	assert.Equal(t, 2.0, btc.Total)
	assert.Equal(t, 100.0, holdings.Balances[currency.USD].Free)
}

func TestFetchTradingFees(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/transaction_summary", 200, `{"fee_tier":{
		"pricing_tier":"Advanced 1","taker_fee_rate":"0.008","maker_fee_rate":"0.006"}}`)

	fees, err := c.FetchTradingFees(context.Background())
	require.NoError(t, err)
	require.Len(t, fees, 2, "the account tier covers every market")
	assert.Equal(t, 0.006, fees["BTC/USD"].Maker)
	assert.Equal(t, 0.008, fees["BTC/USD"].Taker)
	assert.Equal(t, 0.006, fees["ETH/USD"].Maker)
}

func TestErrorMapping(t *testing.T) {
	c, srv, _ := testInstance(t)
	srv.HandleJSON("GET", "/api/v3/brokerage/orders/historical/missing", 404,
		`{"error":"UNKNOWN_ORDER_ID","message":"order not found"}`)

	_, err := c.FetchOrder(context.Background(), "missing", currency.EMPTYPAIR)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	var apiErr *exchange.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNKNOWN_ORDER_ID", apiErr.Code)

	srv.HandleJSON("GET", "/api/v3/brokerage/transaction_summary", 429,
		`{"error":"RATE_LIMIT_EXCEEDED","message":"too many requests"}`)
	_, err = c.GetTransactionSummary(context.Background())
	assert.ErrorIs(t, err, exchange.ErrRateLimitExceeded)
}

func wsTestConn(t *testing.T, c *Coinbase, buffer int) *stream.Websocket {
	t.Helper()
	conn, err := stream.New(&stream.Setup{
		Name:        c.Name,
		URL:         "wss://example.invalid/ws",
		Handler:     c.wsHandleData,
		DataHandler: make(chan interface{}, buffer),
	})
	require.NoError(t, err)
	return conn
}

func TestWsProcessTicker(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	conn := wsTestConn(t, c, 4)

	msg := `{"channel":"ticker","timestamp":"2023-11-14T22:13:20.123Z","sequence_num":1,
		"events":[{"type":"snapshot","tickers":[{
			"product_id":"BTC-USD","price":"50105","volume_24_h":"120.5",
			"low_24_h":"48900","high_24_h":"51100","price_percent_chg_24_h":"1.22",
			"best_bid":"50100","best_bid_quantity":"1.5",
			"best_ask":"50110","best_ask_quantity":"2"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(msg)))

	price := (<-conn.DataHandler).(*ticker.Price)
	assert.Equal(t, "BTC/USD", price.Pair.Upper())
	assert.Equal(t, 50105.0, price.Last)
	assert.Equal(t, 50100.0, price.Bid)
	assert.Equal(t, 1.5, price.BidSize)
	assert.Equal(t, 50110.0, price.Ask)
	assert.Equal(t, 1.22, price.Percentage)
	assert.Equal(t, 120.5, price.Volume)
	assert.Equal(t, int64(1700000000), price.LastUpdated.Unix())
}

func TestWsBookMaintenance(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	conn := wsTestConn(t, c, 4)

	snapshot := `{"channel":"l2_data","timestamp":"2023-11-14T22:13:20Z","sequence_num":1,
		"events":[{"type":"snapshot","product_id":"BTC-USD","updates":[
			{"side":"bid","event_time":"2023-11-14T22:13:20Z","price_level":"50000","new_quantity":"1.5"},
			{"side":"bid","event_time":"2023-11-14T22:13:20Z","price_level":"49990","new_quantity":"2"},
			{"side":"offer","event_time":"2023-11-14T22:13:20Z","price_level":"50010","new_quantity":"1"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(snapshot)))

	book := (<-conn.DataHandler).(*orderbook.Base)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 50000.0, book.Bids[0].Price, "bids sort descending")
	require.Len(t, book.Asks, 1)
	assert.NoError(t, book.Verify())

	update := `{"channel":"l2_data","timestamp":"2023-11-14T22:13:21Z","sequence_num":2,
		"events":[{"type":"update","product_id":"BTC-USD","updates":[
			{"side":"bid","event_time":"2023-11-14T22:13:21Z","price_level":"50000","new_quantity":"0"},
			{"side":"offer","event_time":"2023-11-14T22:13:21Z","price_level":"50020","new_quantity":"3"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(update)))

	book = (<-conn.DataHandler).(*orderbook.Base)
	require.Len(t, book.Bids, 1, "zero quantity removes the level")
	assert.Equal(t, 49990.0, book.Bids[0].Price)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, 50010.0, book.Asks[0].Price, "asks sort ascending")
	assert.Equal(t, 50020.0, book.Asks[1].Price)
	assert.Equal(t, 3.0, book.Asks[1].Amount)
}

func TestWsProcessTrades(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	conn := wsTestConn(t, c, 4)

	msg := `{"channel":"market_trades","timestamp":"2023-11-14T22:13:20Z","sequence_num":1,
		"events":[{"type":"update","trades":[{
			"trade_id":"t1","product_id":"BTC-USD","price":"50000","size":"0.1",
			"side":"SELL","time":"2023-11-14T22:13:20Z"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(msg)))

	data := (<-conn.DataHandler).(trade.Data)
	assert.Equal(t, "t1", data.ID)
	assert.Equal(t, order.Sell, data.Side)
	assert.Equal(t, 50000*0.1, data.Cost)
	assert.Equal(t, int64(1700000000), data.Timestamp.Unix())
}

func TestWsProcessCandles(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	conn := wsTestConn(t, c, 4)

	msg := `{"channel":"candles","timestamp":"2023-11-14T22:13:20Z","sequence_num":1,
		"events":[{"type":"update","candles":[{
			"start":"1700000000","low":"6","high":"10","open":"8","close":"9",
			"volume":"50","product_id":"BTC-USD"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(msg)))

	k := (<-conn.DataHandler).(*stream.KlineData)
	assert.Equal(t, kline.FiveMin, k.Interval, "the channel serves a fixed five minute granularity")
	assert.Equal(t, int64(1700000000), k.Candle.Time.Unix())
	assert.Equal(t, 8.0, k.Candle.Open)
	assert.Equal(t, 9.0, k.Candle.Close)
}

func TestWsProcessUserOrders(t *testing.T) {
	c, _, _ := testInstance(t)
	_, err := c.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	conn := wsTestConn(t, c, 4)

	msg := `{"channel":"user","timestamp":"2023-11-14T22:13:20Z","sequence_num":1,
		"events":[{"type":"snapshot","orders":[{
			"order_id":"o1","client_order_id":"cl-1","product_id":"BTC-USD",
			"cumulative_quantity":"0.4","leaves_quantity":"0.6","avg_price":"50000",
			"total_fees":"2","status":"OPEN","creation_time":"2023-11-14T22:13:20Z",
			"order_side":"BUY","order_type":"Limit","limit_price":"50500"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(msg)))

	detail := (<-conn.DataHandler).(*order.Detail)
	assert.Equal(t, "o1", detail.ID)
	assert.Equal(t, order.PartiallyFilled, detail.Status)
	assert.Equal(t, 1.0, detail.Amount, "amount is filled plus remaining")
	assert.Equal(t, 0.6, detail.Remaining)
	assert.Equal(t, 50000.0, detail.Average)
	assert.Equal(t, 50500.0, detail.Price)
	assert.Equal(t, 2.0, detail.Fee.Cost)

	filled := `{"channel":"user","timestamp":"2023-11-14T22:13:30Z","sequence_num":2,
		"events":[{"type":"update","orders":[{
			"order_id":"o1","product_id":"BTC-USD","cumulative_quantity":"1",
			"leaves_quantity":"0","avg_price":"50000","status":"FILLED",
			"order_side":"BUY","order_type":"Limit"}]}]}`
	require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(filled)))
	detail = (<-conn.DataHandler).(*order.Detail)
	assert.Equal(t, order.Filled, detail.Status)
	assert.Equal(t, 50000.0, detail.Cost)
}

func TestWsControlFramesIgnored(t *testing.T) {
	c, _, _ := testInstance(t)
	conn := wsTestConn(t, c, 4)

	frames := []string{
		`{"channel":"heartbeats","timestamp":"2023-11-14T22:13:20Z","sequence_num":1,
			"events":[{"current_time":"2023-11-14 22:13:20","heartbeat_counter":1}]}`,
		`{"channel":"subscriptions","timestamp":"2023-11-14T22:13:20Z","sequence_num":2,
			"events":[{"subscriptions":{"ticker":["BTC-USD"]}}]}`,
		`{"type":"error","message":"authentication failure"}`,
	}
	for _, frame := range frames {
		require.NoError(t, c.wsHandleData(context.Background(), conn, []byte(frame)))
	}
	assert.Empty(t, conn.DataHandler, "control frames produce no events")
}

func TestWatchOrdersRequiresPEMKey(t *testing.T) {
	c, err := New(&exchange.Config{})
	require.NoError(t, err)
	err = c.WatchOrders(context.Background())
	assert.Error(t, err, "the user channel needs the signing key")
}

func TestRequireFeature(t *testing.T) {
	c, _, _ := testInstance(t)
	c.Features.OHLCV = false
	_, err := c.FetchOHLCV(context.Background(),
		currency.NewPair(currency.BTC, currency.USD), kline.OneMin, time.Time{}, 0)
	assert.ErrorIs(t, err, common.ErrFunctionNotSupported)
	assert.ErrorIs(t, c.WatchBalance(context.Background()), common.ErrFunctionNotSupported)
}
