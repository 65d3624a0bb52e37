package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifex/unifex/common/crypto"
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

const symbolsFixture = `{"code":"200000","data":[
	{"symbol":"BTC-USDT","name":"BTC-USDT","baseCurrency":"BTC","quoteCurrency":"USDT",
		"baseMinSize":"0.00001","baseMaxSize":"10000","baseIncrement":"0.00000001",
		"quoteIncrement":"0.000001","priceIncrement":"0.1","minFunds":"0.1",
		"enableTrading":true},
	{"symbol":"ETH-USDT","name":"ETH-USDT","baseCurrency":"ETH","quoteCurrency":"USDT",
		"baseMinSize":"0.0001","baseMaxSize":"10000","baseIncrement":"0.0000001",
		"quoteIncrement":"0.000001","priceIncrement":"0.01","minFunds":"0.1",
		"enableTrading":false}
]}`

func testInstance(t *testing.T) (*Kucoin, *mock.Server) {
	t.Helper()
	k, err := New(&exchange.Config{
		Credentials: exchange.Credentials{
			Key:        "key",
			Secret:     "secret",
			Passphrase: "passphrase",
		},
	})
	require.NoError(t, err)

	srv := mock.NewServer()
	t.Cleanup(srv.Close)
	k.APIURL = srv.URL
	srv.HandleJSON("GET", "/api/v2/symbols", 200, symbolsFixture)
	return k, srv
}

func TestSignRequest(t *testing.T) {
	k, srv := testInstance(t)
	k.nowMS = func() int64 { return 1700000000000 }
	srv.HandleJSON("GET", "/api/v1/accounts", 200, `{"code":"200000","data":[]}`)

	_, err := k.GetAccounts(context.Background())
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "key", req.Header.Get("KC-API-KEY"))
	assert.Equal(t, "2", req.Header.Get("KC-API-KEY-VERSION"))
	assert.Equal(t, "1700000000000", req.Header.Get("KC-API-TIMESTAMP"))
	assert.Equal(t,
		crypto.HMACSHA256Base64("passphrase", "secret"),
		req.Header.Get("KC-API-PASSPHRASE"))
	assert.Equal(t,
		crypto.HMACSHA256Base64("1700000000000GET/api/v1/accounts", "secret"),
		req.Header.Get("KC-API-SIGN"))
}

func TestSignRequestQueryInPayload(t *testing.T) {
	k, srv := testInstance(t)
	k.nowMS = func() int64 { return 1700000000000 }
	srv.HandleJSON("GET", "/api/v1/fills", 200,
		`{"code":"200000","data":{"currentPage":1,"pageSize":50,"totalNum":0,"totalPage":0,"items":[]}}`)

	_, err := k.GetFills(context.Background(), "BTC-USDT", 0)
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t,
		crypto.HMACSHA256Base64("1700000000000GET/api/v1/fills?symbol=BTC-USDT", "secret"),
		req.Header.Get("KC-API-SIGN"))
}

func TestLoadMarkets(t *testing.T) {
	k, _ := testInstance(t)

	markets, err := k.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets["BTC/USDT"]
	require.NotNil(t, btc)
	assert.Equal(t, "BTC-USDT", btc.ID)
	assert.True(t, btc.Active)
	assert.Equal(t, 1, btc.Precision.Price)
	assert.Equal(t, 8, btc.Precision.Amount)
	assert.Equal(t, 6, btc.Precision.Quote)
	assert.Equal(t, 0.1, btc.TickSize)
	assert.Equal(t, 0.00001, btc.Limits.Amount.Min)
	assert.Equal(t, 0.1, btc.Limits.Cost.Min)

	eth := markets["ETH/USDT"]
	require.NotNil(t, eth)
	assert.False(t, eth.Active)

	m, err := k.MarketFromID("BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", m.Symbol)
}

func TestFetchTicker(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/stats", 200, `{"code":"200000","data":{
		"time":1700000000000,"symbol":"BTC-USDT","buy":"49990","sell":"50010",
		"changeRate":"0.012","changePrice":"600","high":"51000","low":"48000",
		"vol":"1234.5","volValue":"61725000","last":"50000","averagePrice":"49500"}}`)

	price, err := k.FetchTicker(context.Background(), currency.NewPair(currency.BTC, currency.USDT))
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price.Last)
	assert.Equal(t, 49990.0, price.Bid)
	assert.Equal(t, 50010.0, price.Ask)
	assert.Equal(t, 51000.0, price.High)
	assert.Equal(t, 48000.0, price.Low)
	assert.Equal(t, 1234.5, price.Volume)
	assert.Equal(t, 61725000.0, price.QuoteVolume)
	assert.Equal(t, 600.0, price.Change)
	assert.InDelta(t, 1.2, price.Percentage, 1e-9)
	assert.Equal(t, int64(1700000000000), price.LastUpdated.UnixMilli())

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "BTC-USDT", req.URL.Query().Get("symbol"))
}

func TestFetchOrderBookBuckets(t *testing.T) {
	k, srv := testInstance(t)
	bookFixture := `{"code":"200000","data":{"time":1700000000000,"sequence":"3262786978",
		"bids":[["50000","0.5"],["49999","1"]],"asks":[["50001","0.7"],["50002","2"]]}}`
	srv.HandleJSON("GET", "/api/v1/market/orderbook/level2_20", 200, bookFixture)
	srv.HandleJSON("GET", "/api/v1/market/orderbook/level2_100", 200, bookFixture)

	pair := currency.NewPair(currency.BTC, currency.USDT)
	book, err := k.FetchOrderBook(context.Background(), pair, 10)
	require.NoError(t, err)
	require.NotNil(t, srv.LastRequest())
	assert.Equal(t, "/api/v1/market/orderbook/level2_20", srv.LastRequest().URL.Path)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
	assert.Equal(t, 0.5, book.Bids[0].Amount)
	assert.NoError(t, book.Verify())
	assert.Equal(t, int64(1700000000000), book.LastUpdated.UnixMilli())

	_, err = k.FetchOrderBook(context.Background(), pair, 50)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/market/orderbook/level2_100", srv.LastRequest().URL.Path)
}

func TestFetchTrades(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/histories", 200, `{"code":"200000","data":[
		{"sequence":"2","price":"50100","size":"0.2","side":"sell","time":1700000060000000000},
		{"sequence":"1","price":"50000","size":"0.5","side":"buy","time":1700000000000000000}
	]}`)

	trades, err := k.FetchTrades(context.Background(),
		currency.NewPair(currency.BTC, currency.USDT), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "1", trades[0].ID)
	assert.Equal(t, order.Buy, trades[0].Side)
	assert.Equal(t, 50000.0, trades[0].Price)
	assert.Equal(t, 0.5, trades[0].Amount)
	assert.Equal(t, 25000.0, trades[0].Cost)
	assert.Equal(t, int64(1700000000000), trades[0].Timestamp.UnixMilli())
	assert.Equal(t, order.Sell, trades[1].Side)
}

func TestFetchOHLCVReshapesRows(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/candles", 200, `{"code":"200000","data":[
		["1700000060","10","12","13","8","120.5","1440"],
		["1700000000","9","11","12","7","80.5","800"]
	]}`)

	candles, err := k.FetchOHLCV(context.Background(),
		currency.NewPair(currency.BTC, currency.USDT), kline.OneMin, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// Rows arrive newest first as [time, open, close, high, low, volume];
	// output must be oldest first with the fields untangled.
	assert.Equal(t, int64(1700000000), candles[0].Time.Unix())
	assert.Equal(t, 9.0, candles[0].Open)
	assert.Equal(t, 12.0, candles[0].High)
	assert.Equal(t, 7.0, candles[0].Low)
	assert.Equal(t, 11.0, candles[0].Close)
	assert.Equal(t, 80.5, candles[0].Volume)
	assert.Equal(t, int64(1700000060), candles[1].Time.Unix())

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "1min", req.URL.Query().Get("type"))

	_, err = k.FetchOHLCV(context.Background(),
		currency.NewPair(currency.BTC, currency.USDT), kline.Interval(7*time.Minute), time.Time{}, 0)
	assert.ErrorIs(t, err, kline.ErrUnsupportedInterval)
}

func TestCreateOrder(t *testing.T) {
	k, srv := testInstance(t)
	k.nowMS = func() int64 { return 1700000000000 }
	srv.HandleJSON("POST", "/api/v1/orders", 200, `{"code":"200000","data":{"orderId":"ord-1"}}`)

	detail, err := k.CreateOrder(context.Background(), &order.Submit{
		Pair:          currency.NewPair(currency.BTC, currency.USDT),
		Type:          order.Limit,
		Side:          order.Buy,
		Amount:        0.5,
		Price:         45000,
		ClientOrderID: "cl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", detail.ID)
	assert.Equal(t, "cl-1", detail.ClientOrderID)
	assert.Equal(t, order.New, detail.Status)
	assert.Equal(t, 0.5, detail.Remaining)

	req := srv.LastRequest()
	require.NotNil(t, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "cl-1", body["clientOid"])
	assert.Equal(t, "buy", body["side"])
	assert.Equal(t, "BTC-USDT", body["symbol"])
	assert.Equal(t, "limit", body["type"])
	assert.Equal(t, "45000", body["price"])
	assert.Equal(t, "0.5", body["size"])
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t,
		crypto.HMACSHA256Base64("1700000000000POST/api/v1/orders"+string(req.Body), "secret"),
		req.Header.Get("KC-API-SIGN"))
}

func TestCreateOrderGeneratesClientOID(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/orders", 200, `{"code":"200000","data":{"orderId":"ord-2"}}`)

	detail, err := k.CreateOrder(context.Background(), &order.Submit{
		Pair:   currency.NewPair(currency.BTC, currency.USDT),
		Type:   order.Market,
		Side:   order.Sell,
		Amount: 0.25,
	})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(srv.LastRequest().Body, &body))
	clientOID, _ := body["clientOid"].(string)
	_, err = uuid.FromString(clientOID)
	assert.NoError(t, err, "generated client order id should be a uuid")
	assert.Equal(t, clientOID, detail.ClientOrderID)
	_, hasPrice := body["price"]
	assert.False(t, hasPrice, "market orders carry no price")
}

func TestParseOrderLifecycle(t *testing.T) {
	k, _ := testInstance(t)
	_, err := k.LoadMarkets(context.Background(), false)
	require.NoError(t, err)

	base := OrderDetail{
		ID: "o1", Symbol: "BTC-USDT", Type: "limit", Side: "buy",
		Price: "50000", Size: "1", CreatedAt: 1700000000000,
	}

	resting := base
	resting.IsActive = true
	detail, err := k.parseOrder(&resting)
	require.NoError(t, err)
	assert.Equal(t, order.New, detail.Status)

	partial := base
	partial.IsActive = true
	partial.DealSize = "0.4"
	partial.DealFunds = "20000"
	detail, err = k.parseOrder(&partial)
	require.NoError(t, err)
	assert.Equal(t, order.PartiallyFilled, detail.Status)
	assert.Equal(t, 0.6, detail.Remaining)
	assert.Equal(t, 50000.0, detail.Average)

	cancelled := base
	cancelled.CancelExist = true
	detail, err = k.parseOrder(&cancelled)
	require.NoError(t, err)
	assert.Equal(t, order.Cancelled, detail.Status)

	filled := base
	filled.DealSize = "1"
	filled.DealFunds = "50000"
	detail, err = k.parseOrder(&filled)
	require.NoError(t, err)
	assert.Equal(t, order.Filled, detail.Status)
	assert.Equal(t, 0.0, detail.Remaining)
}

func TestFetchOrder(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/orders/ord-1", 200, `{"code":"200000","data":{
		"id":"ord-1","symbol":"BTC-USDT","type":"limit","side":"sell",
		"price":"50000","size":"0.5","dealSize":"0.5","dealFunds":"25000",
		"fee":"20","feeCurrency":"USDT","clientOid":"cl-9",
		"isActive":false,"cancelExist":false,"createdAt":1700000000500}}`)

	detail, err := k.FetchOrder(context.Background(), "ord-1", currency.EMPTYPAIR)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", detail.Pair.Upper())
	assert.Equal(t, order.Sell, detail.Side)
	assert.Equal(t, order.Filled, detail.Status)
	assert.Equal(t, 0.5, detail.Filled)
	assert.Equal(t, 0.0, detail.Remaining)
	assert.Equal(t, 25000.0, detail.Cost)
	assert.Equal(t, 50000.0, detail.Average)
	assert.Equal(t, 20.0, detail.Fee.Cost)
	assert.Equal(t, currency.USDT, detail.Fee.Currency)
	assert.Equal(t, int64(1700000000500), detail.Timestamp.UnixMilli())
}

func TestFetchOpenOrders(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/orders", 200, `{"code":"200000","data":{
		"currentPage":1,"pageSize":50,"totalNum":1,"totalPage":1,"items":[
			{"id":"o2","symbol":"BTC-USDT","type":"limit","side":"buy",
			 "price":"48000","size":"1","isActive":true,"createdAt":1700000001000}
	]}}`)

	orders, err := k.FetchOpenOrders(context.Background(), currency.NewPair(currency.BTC, currency.USDT))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.New, orders[0].Status)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "active", req.URL.Query().Get("status"))
	assert.Equal(t, "BTC-USDT", req.URL.Query().Get("symbol"))
}

func TestFetchMyTrades(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/fills", 200, `{"code":"200000","data":{
		"currentPage":1,"pageSize":50,"totalNum":1,"totalPage":1,"items":[
			{"symbol":"BTC-USDT","tradeId":"t1","orderId":"o1","side":"buy",
			 "liquidity":"maker","price":"50000","size":"0.5","funds":"25000",
			 "fee":"12.5","feeCurrency":"USDT","createdAt":1700000000000}
	]}}`)

	trades, err := k.FetchMyTrades(context.Background(),
		currency.NewPair(currency.BTC, currency.USDT), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, "o1", trades[0].OrderID)
	assert.True(t, trades[0].IsMaker)
	assert.Equal(t, 25000.0, trades[0].Cost)
	assert.Equal(t, 12.5, trades[0].Fee.Cost)
	assert.Equal(t, currency.USDT, trades[0].Fee.Currency)
}

func TestFetchBalancePrefersTradeLedger(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/accounts", 200, `{"code":"200000","data":[
		{"id":"1","currency":"BTC","type":"trade","balance":"1.5","available":"1","holds":"0.5"},
		{"id":"2","currency":"BTC","type":"main","balance":"9","available":"9","holds":"0"},
		{"id":"3","currency":"USDT","type":"main","balance":"100","available":"100","holds":"0"}
	]}`)

	holdings, err := k.FetchBalance(context.Background())
	require.NoError(t, err)

	btc := holdings.Balances[currency.BTC]
	assert.Equal(t, 1.5, btc.Total)
	assert.Equal(t, 1.0, btc.Free)
	assert.Equal(t, 0.5, btc.Used)

	usdt := holdings.Balances[currency.USDT]
	assert.Equal(t, 100.0, usdt.Total)
	assert.Equal(t, 100.0, usdt.Free)
}

func TestFetchTradingFees(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade-fees", 200, `{"code":"200000","data":[
		{"symbol":"BTC-USDT","takerFeeRate":"0.001","makerFeeRate":"0.0009"},
		{"symbol":"ETH-USDT","takerFeeRate":"0.001","makerFeeRate":"0.0009"}
	]}`)

	fees, err := k.FetchTradingFees(context.Background())
	require.NoError(t, err)
	require.Len(t, fees, 2)
	assert.Equal(t, 0.001, fees["BTC/USDT"].Taker)
	assert.Equal(t, 0.0009, fees["BTC/USDT"].Maker)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "BTC-USDT,ETH-USDT", req.URL.Query().Get("symbols"))
}

func TestErrorMapping(t *testing.T) {
	k, srv := testInstance(t)

	srv.HandleJSON("GET", "/api/v1/market/stats", 200,
		`{"code":"200004","msg":"Balance insufficient!"}`)
	_, err := k.GetMarketStats(context.Background(), "BTC-USDT")
	assert.ErrorIs(t, err, exchange.ErrInsufficientFunds)

	srv.HandleJSON("GET", "/api/v1/orders/missing", 200,
		`{"code":"400100","msg":"order not exist."}`)
	_, err = k.GetOrderByID(context.Background(), "missing")
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	srv.HandleJSON("GET", "/api/v1/market/histories", 200,
		`{"code":"900001","msg":"symbol not exists"}`)
	_, err = k.GetTradeHistories(context.Background(), "NOPE-COIN")
	assert.ErrorIs(t, err, exchange.ErrBadSymbol)
}

func TestHTTPStatusMapping(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/accounts", 429,
		`{"code":"429000","msg":"Too Many Requests"}`)

	_, err := k.GetAccounts(context.Background())
	assert.ErrorIs(t, err, exchange.ErrRateLimitExceeded)

	var apiErr *exchange.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "429000", apiErr.Code)
}

func TestBulletConnectURL(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/bullet-public", 200, `{"code":"200000","data":{
		"token":"tok123","instanceServers":[
			{"endpoint":"wss://ws.example.com/endpoint","protocol":"websocket","pingInterval":50000,"pingTimeout":10000}
	]}}`)

	u, err := k.wsConnectURL(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, u, "wss://ws.example.com/endpoint?token=tok123&connectId=")

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Empty(t, req.Header.Get("KC-API-SIGN"), "public bullet is unsigned")
}

func TestBulletPrivateSigned(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/bullet-private", 200, `{"code":"200000","data":{
		"token":"tok456","instanceServers":[
			{"endpoint":"wss://ws-private.example.com/endpoint","protocol":"websocket","pingInterval":50000,"pingTimeout":10000}
	]}}`)

	u, err := k.wsConnectURL(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, u, "token=tok456")

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.NotEmpty(t, req.Header.Get("KC-API-SIGN"))
}

func wsTestConn(t *testing.T, k *Kucoin, buffer int) *stream.Websocket {
	t.Helper()
	conn, err := stream.New(&stream.Setup{
		Name:        k.Name,
		URL:         "wss://example.invalid/endpoint",
		Handler:     k.wsHandleData,
		DataHandler: make(chan interface{}, buffer),
	})
	require.NoError(t, err)
	return conn
}

func TestWsProcessTicker(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	msg := `{"type":"message","topic":"/market/ticker:BTC-USDT","subject":"trade.ticker",
		"data":{"sequence":"1545896668986","price":"50000","size":"0.01",
			"bestAsk":"50010","bestAskSize":"0.2","bestBid":"49990","bestBidSize":"0.5",
			"time":1700000000000}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))

	evt := <-conn.DataHandler
	price, ok := evt.(*ticker.Price)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", price.Pair.Upper())
	assert.Equal(t, 50000.0, price.Last)
	assert.Equal(t, 49990.0, price.Bid)
	assert.Equal(t, 0.5, price.BidSize)
	assert.Equal(t, 50010.0, price.Ask)
	assert.Equal(t, int64(1700000000000), price.LastUpdated.UnixMilli())
}

func TestWsProcessDepthSnapshot(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	msg := `{"type":"message","topic":"/spotMarket/level2Depth50:BTC-USDT","subject":"level2",
		"data":{"bids":[["49990","0.5"],["49980","1"]],"asks":[["50010","0.7"],["50020","2"]],
			"timestamp":1700000000000}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))

	evt := <-conn.DataHandler
	book, ok := evt.(*orderbook.Base)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", book.Pair.Upper())
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.NoError(t, book.Verify())
	assert.Equal(t, int64(1700000000000), book.LastUpdated.UnixMilli())
}

func TestWsProcessMatch(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	msg := `{"type":"message","topic":"/market/match:BTC-USDT","subject":"trade.l3match",
		"data":{"sequence":"1545896669145","symbol":"BTC-USDT","side":"sell",
			"price":"50000","size":"0.1","tradeId":"trade-1",
			"time":"1700000000000000000","type":"match"}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))

	evt := <-conn.DataHandler
	data, ok := evt.(trade.Data)
	require.True(t, ok)
	assert.Equal(t, "trade-1", data.ID)
	assert.Equal(t, order.Sell, data.Side)
	assert.Equal(t, 50000.0, data.Price)
	assert.Equal(t, 0.1, data.Amount)
	assert.Equal(t, 5000.0, data.Cost)
	assert.Equal(t, int64(1700000000000), data.Timestamp.UnixMilli())
}

func TestWsProcessCandles(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	msg := `{"type":"message","topic":"/market/candles:BTC-USDT_1min","subject":"trade.candles.update",
		"data":{"symbol":"BTC-USDT","candles":["1700000000","9","11","12","7","80.5","800"],
			"time":1700000059000000000}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))

	evt := <-conn.DataHandler
	candle, ok := evt.(stream.KlineData)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", candle.Pair.Upper())
	assert.Equal(t, kline.OneMin, candle.Interval)
	assert.Equal(t, int64(1700000000), candle.Candle.Time.Unix())
	assert.Equal(t, 9.0, candle.Candle.Open)
	assert.Equal(t, 12.0, candle.Candle.High)
	assert.Equal(t, 7.0, candle.Candle.Low)
	assert.Equal(t, 11.0, candle.Candle.Close)
}

func TestWsProcessOrderEvents(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	open := `{"type":"message","topic":"/spotMarket/tradeOrders","subject":"orderChange",
		"data":{"symbol":"BTC-USDT","orderType":"limit","side":"buy","orderId":"o1",
			"type":"open","orderTime":1700000000000000000,"size":"1","filledSize":"0",
			"price":"50000","clientOid":"cl-1","remainSize":"1","status":"open",
			"ts":1700000000000000000}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(open)))

	evt := <-conn.DataHandler
	detail, ok := evt.(*order.Detail)
	require.True(t, ok)
	assert.Equal(t, "o1", detail.ID)
	assert.Equal(t, order.New, detail.Status)
	assert.Equal(t, int64(1700000000000), detail.Timestamp.UnixMilli())

	match := `{"type":"message","topic":"/spotMarket/tradeOrders","subject":"orderChange",
		"data":{"symbol":"BTC-USDT","orderType":"limit","side":"buy","orderId":"o1",
			"type":"match","size":"1","filledSize":"0.4","price":"50000",
			"remainSize":"0.6","status":"open","ts":1700000001000000000}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(match)))

	evt = <-conn.DataHandler
	detail = evt.(*order.Detail)
	assert.Equal(t, order.PartiallyFilled, detail.Status)
	assert.Equal(t, 0.4, detail.Filled)
	assert.Equal(t, 0.6, detail.Remaining)

	filled := `{"type":"message","topic":"/spotMarket/tradeOrders","subject":"orderChange",
		"data":{"symbol":"BTC-USDT","orderType":"limit","side":"buy","orderId":"o1",
			"type":"filled","size":"1","filledSize":"1","price":"50000",
			"remainSize":"0","status":"done","ts":1700000002000000000}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(filled)))

	evt = <-conn.DataHandler
	detail = evt.(*order.Detail)
	assert.Equal(t, order.Filled, detail.Status)
}

func TestWsProcessBalance(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	msg := `{"type":"message","topic":"/account/balance","subject":"account.balance",
		"data":{"total":"100.5","available":"90.5","availableChange":"-10",
			"currency":"USDT","hold":"10","holdChange":"10",
			"relationEvent":"trade.hold","time":"1700000000000"}}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))

	evt := <-conn.DataHandler
	change, ok := evt.(stream.BalanceChange)
	require.True(t, ok)
	assert.Equal(t, currency.USDT, change.Currency)
	assert.Equal(t, 100.5, change.Balance.Total)
	assert.Equal(t, 90.5, change.Balance.Free)
	assert.Equal(t, 10.0, change.Balance.Used)
}

func TestWsControlFramesIgnored(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	for _, msg := range []string{
		`{"id":"hello","type":"welcome"}`,
		`{"id":"1","type":"ack"}`,
		`{"id":"keepalive","type":"pong"}`,
		`{"id":"2","type":"error","code":404,"data":"topic /market/nope not found"}`,
	} {
		require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))
	}
	select {
	case evt := <-conn.DataHandler:
		t.Fatalf("unexpected event %#v", evt)
	default:
	}
}
