package pionex

import (
	"context"
	"net/http"
	"testing"
	"time"

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
	"github.com/unifex/unifex/exchanges/trade"
)

const testNowMS = int64(1699900000000)

const symbolsFixture = `{"result":true,"data":{"symbols":[
	{"symbol":"BTC_USDT","type":"SPOT","baseCurrency":"BTC","quoteCurrency":"USDT",
	 "basePrecision":6,"quotePrecision":2,"amountPrecision":8,
	 "minAmount":"10","minTradeSize":"0.0001","maxTradeSize":"1000","enable":true},
	{"symbol":"ETH_USDT","type":"SPOT","baseCurrency":"ETH","quoteCurrency":"USDT",
	 "basePrecision":5,"quotePrecision":2,"amountPrecision":8,
	 "minAmount":"10","minTradeSize":"0.001","maxTradeSize":"5000","enable":false}
]}}`

func testInstance(t *testing.T) (*Pionex, *mock.Server) {
	t.Helper()
	p, err := New(&exchange.Config{
		Credentials: exchange.Credentials{Key: "key", Secret: "secret"},
	})
	require.NoError(t, err)
	p.nowMS = func() int64 { return testNowMS }

	srv := mock.NewServer()
	t.Cleanup(srv.Close)
	p.APIURL = srv.URL
	srv.HandleJSON("GET", "/api/v1/common/symbols", 200, symbolsFixture)
	return p, srv
}

var btcPair = currency.NewPair(currency.BTC, currency.USDT)

func TestSignedGetRequest(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/account/balances", 200, `{"result":true,"data":{"balances":[]}}`)

	_, err := p.GetBalances(context.Background())
	require.NoError(t, err)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "key", req.Header.Get("PIONEX-KEY"))
	assert.Empty(t, req.Body)

	// the signature covers method, path and the sorted raw query, and the
	// URL reuses the query verbatim
	raw := "timestamp=1699900000000"
	sig := crypto.HMACSHA256Hex("GET/api/v1/account/balances?"+raw, "secret")
	assert.Equal(t, raw, req.URL.RawQuery)
	assert.Equal(t, sig, req.Header.Get("PIONEX-SIGNATURE"))
}

func TestSignedGetSortsQuery(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/fills", 200, `{"result":true,"data":{"fills":[]}}`)

	_, err := p.GetFills(context.Background(), "BTC_USDT", 1699800000000, 0)
	require.NoError(t, err)

	raw := "startTime=1699800000000&symbol=BTC_USDT&timestamp=1699900000000"
	sig := crypto.HMACSHA256Hex("GET/api/v1/trade/fills?"+raw, "secret")
	req := srv.LastRequest()
	assert.Equal(t, raw, req.URL.RawQuery)
	assert.Equal(t, sig, req.Header.Get("PIONEX-SIGNATURE"))
}

func TestSignedPostSignsBody(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/trade/order", 200,
		`{"result":true,"data":{"orderId":123456,"clientOrderId":"cl-1"}}`)

	detail, err := p.CreateOrder(context.Background(), &order.Submit{
		Pair:          btcPair,
		Type:          order.Limit,
		Side:          order.Buy,
		Amount:        0.5,
		Price:         50000,
		ClientOrderID: "cl-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "123456", detail.ID)
	assert.Equal(t, "cl-1", detail.ClientOrderID)
	assert.Equal(t, order.New, detail.Status)
	assert.Equal(t, 0.5, detail.Remaining)

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "timestamp=1699900000000", req.URL.RawQuery,
		"mutating requests carry only the timestamp in the query")

	// the transmitted body and the signed body are the same bytes
	body := `{"symbol":"BTC_USDT","side":"BUY","type":"LIMIT","size":"0.5","price":"50000","clientOrderId":"cl-1"}`
	assert.Equal(t, body, string(req.Body))
	sig := crypto.HMACSHA256Hex("POST/api/v1/trade/order?timestamp=1699900000000"+body, "secret")
	assert.Equal(t, sig, req.Header.Get("PIONEX-SIGNATURE"))
}

func TestSignedDeleteCarriesBody(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("DELETE", "/api/v1/trade/order", 200, `{"result":true,"data":{}}`)

	require.NoError(t, p.CancelOrder(context.Background(), "123456", btcPair))

	req := srv.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "timestamp=1699900000000", req.URL.RawQuery)

	body := `{"symbol":"BTC_USDT","orderId":123456}`
	assert.Equal(t, body, string(req.Body))
	sig := crypto.HMACSHA256Hex("DELETE/api/v1/trade/order?timestamp=1699900000000"+body, "secret")
	assert.Equal(t, sig, req.Header.Get("PIONEX-SIGNATURE"))
}

func TestCancelOrderNeedsPair(t *testing.T) {
	p, _ := testInstance(t)
	err := p.CancelOrder(context.Background(), "123456", currency.EMPTYPAIR)
	assert.ErrorIs(t, err, order.ErrPairIsEmpty)
}

func TestCancelOrderNonNumericID(t *testing.T) {
	p, _ := testInstance(t)
	err := p.CancelOrder(context.Background(), "not-a-number", btcPair)
	assert.ErrorIs(t, err, exchange.ErrBadRequest)
}

func TestCancelAllOrders(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("DELETE", "/api/v1/trade/allOrders", 200, `{"result":true,"data":{}}`)

	require.NoError(t, p.CancelAllOrders(context.Background(), btcPair))

	req := srv.LastRequest()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, `{"symbol":"BTC_USDT"}`, string(req.Body))
}

func TestCreateOrderMarketBuyUsesQuoteAmount(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/trade/order", 200,
		`{"result":true,"data":{"orderId":7}}`)

	_, err := p.CreateOrder(context.Background(), &order.Submit{
		Pair:   btcPair,
		Type:   order.Market,
		Side:   order.Buy,
		Amount: 100,
	})
	require.NoError(t, err)

	assert.Equal(t,
		`{"symbol":"BTC_USDT","side":"BUY","type":"MARKET","amount":"100"}`,
		string(srv.LastRequest().Body),
		"market buys spend the quote currency")
}

func TestCreateOrderMarketSellUsesSize(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/trade/order", 200,
		`{"result":true,"data":{"orderId":8}}`)

	_, err := p.CreateOrder(context.Background(), &order.Submit{
		Pair:   btcPair,
		Type:   order.Market,
		Side:   order.Sell,
		Amount: 0.25,
	})
	require.NoError(t, err)

	assert.Equal(t,
		`{"symbol":"BTC_USDT","side":"SELL","type":"MARKET","size":"0.25"}`,
		string(srv.LastRequest().Body))
}

func TestCreateOrderLimitIOC(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("POST", "/api/v1/trade/order", 200,
		`{"result":true,"data":{"orderId":9}}`)

	_, err := p.CreateOrder(context.Background(), &order.Submit{
		Pair:   btcPair,
		Type:   order.Limit,
		Side:   order.Buy,
		Amount: 1,
		Price:  49000,
		Params: map[string]interface{}{"ioc": true},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`{"symbol":"BTC_USDT","side":"BUY","type":"LIMIT","size":"1","price":"49000","IOC":true}`,
		string(srv.LastRequest().Body))
}

func TestLoadMarkets(t *testing.T) {
	p, _ := testInstance(t)

	markets, err := p.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets["BTC/USDT"]
	require.NotNil(t, btc)
	assert.Equal(t, "BTC_USDT", btc.ID)
	assert.Equal(t, 2, btc.Precision.Price)
	assert.Equal(t, 6, btc.Precision.Amount)
	assert.Equal(t, 0.0001, btc.Limits.Amount.Min)
	assert.Equal(t, 1000.0, btc.Limits.Amount.Max)
	assert.Equal(t, 10.0, btc.Limits.Cost.Min)
	assert.True(t, btc.Active)

	eth := markets["ETH/USDT"]
	require.NotNil(t, eth)
	assert.False(t, eth.Active, "disabled listings are inactive")
}

func TestGetServerTimestamp(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/common/timestamp", 200,
		`{"result":true,"data":{"timestamp":1699900000000}}`)

	ts, err := p.GetServerTimestamp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNowMS, ts)
}

func TestFetchTicker(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/tickers", 200, `{"result":true,"data":{"tickers":[
		{"symbol":"BTC_USDT","open":"49500","high":"51000","low":"49000","close":"50000.5",
		 "volume":"1200.5","amount":"60000000","count":8731,"time":1699900000000}]}}`)

	price, err := p.FetchTicker(context.Background(), btcPair)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", price.Pair.Upper())
	assert.Equal(t, 50000.5, price.Last)
	assert.Equal(t, 49500.0, price.Open)
	assert.Equal(t, 1200.5, price.Volume)
	assert.Equal(t, 60000000.0, price.QuoteVolume, "amount is quote turnover")
	assert.Equal(t, 500.5, price.Change, "change derives from open and close")
	assert.Equal(t, time.UnixMilli(1699900000000).UTC(), price.LastUpdated)

	req := srv.LastRequest()
	assert.Equal(t, "BTC_USDT", req.URL.Query().Get("symbol"))
	assert.Empty(t, req.URL.Query().Get("type"))
}

func TestFetchTickersSpotType(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/tickers", 200, `{"result":true,"data":{"tickers":[
		{"symbol":"BTC_USDT","open":"49500","close":"50000","volume":"1200","time":1699900000000},
		{"symbol":"ETH_USDT","open":"2900","close":"3000","volume":"9000","time":1699900000000}]}}`)

	out, err := p.FetchTickers(context.Background(), btcPair)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Contains(t, out, "BTC/USDT")
	assert.Equal(t, 50000.0, out["BTC/USDT"].Last)

	// the all-markets query selects the spot universe instead of a symbol
	req := srv.LastRequest()
	assert.Equal(t, "SPOT", req.URL.Query().Get("type"))
	assert.Empty(t, req.URL.Query().Get("symbol"))
}

func TestFetchOrderBook(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/depth", 200, `{"result":true,"data":{
		"bids":[["50000","1.5"],["49999","2"]],
		"asks":[["50010","1"],["50011","3"]],
		"updateTime":1699900000000}}`)

	book, err := p.FetchOrderBook(context.Background(), btcPair, 2)
	require.NoError(t, err)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
	assert.Equal(t, 1.5, book.Bids[0].Amount)
	assert.Equal(t, 50010.0, book.Asks[0].Price)
	assert.Equal(t, time.UnixMilli(1699900000000).UTC(), book.LastUpdated)

	req := srv.LastRequest()
	assert.Equal(t, "BTC_USDT", req.URL.Query().Get("symbol"))
	assert.Equal(t, "2", req.URL.Query().Get("limit"))
}

func TestFetchTrades(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/trades", 200, `{"result":true,"data":{"trades":[
		{"tradeId":2,"symbol":"BTC_USDT","price":"50005","size":"0.2","side":"SELL","timestamp":1699900001000},
		{"tradeId":1,"symbol":"BTC_USDT","price":"50000","size":"0.1","side":"BUY","timestamp":1699900000000}]}}`)

	trades, err := p.FetchTrades(context.Background(), btcPair, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "1", trades[0].ID, "oldest first")
	assert.Equal(t, order.Buy, trades[0].Side)
	assert.Equal(t, order.Sell, trades[1].Side)
	assert.Equal(t, 50005.0*0.2, trades[1].Cost)
}

func TestFetchTradesSinceTrimsLocally(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/trades", 200, `{"result":true,"data":{"trades":[
		{"tradeId":1,"price":"50000","size":"0.1","side":"BUY","timestamp":1699900000000},
		{"tradeId":2,"price":"50005","size":"0.2","side":"SELL","timestamp":1699900001000}]}}`)

	trades, err := p.FetchTrades(context.Background(), btcPair,
		time.UnixMilli(1699900000500), 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "2", trades[0].ID)
}

func TestFetchOHLCV(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/klines", 200, `{"result":true,"data":{"klines":[
		{"time":1699900060000,"open":"50010","close":"50015","high":"50020","low":"50000","volume":"12"},
		{"time":1699900000000,"open":"50000","close":"50010","high":"50015","low":"49990","volume":"10"}]}}`)

	candles, err := p.FetchOHLCV(context.Background(), btcPair, kline.OneMin, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.UnixMilli(1699900000000).UTC(), candles[0].Time, "rows sort oldest first")
	assert.Equal(t, 50010.0, candles[0].Close)
	assert.Equal(t, 12.0, candles[1].Volume)

	req := srv.LastRequest()
	assert.Equal(t, "1M", req.URL.Query().Get("interval"))
	assert.Equal(t, "BTC_USDT", req.URL.Query().Get("symbol"))
}

func TestFetchOHLCVUnsupportedInterval(t *testing.T) {
	p, _ := testInstance(t)
	_, err := p.FetchOHLCV(context.Background(), btcPair, kline.OneWeek, time.Time{}, 0)
	assert.ErrorIs(t, err, kline.ErrUnsupportedInterval)
}

func TestOrderStatusDerivation(t *testing.T) {
	// CLOSED covers fills and cancellations; the filled quantities decide.
	// Quote-denominated market buys report no size.
	for _, tc := range []struct {
		status                         string
		size, filledSize, filledAmount float64
		want                           order.Status
	}{
		{"OPEN", 1, 0, 0, order.New},
		{"OPEN", 1, 0.4, 20000, order.PartiallyFilled},
		{"CLOSED", 1, 1, 50000, order.Filled},
		{"CLOSED", 1, 0.4, 20000, order.Cancelled},
		{"CLOSED", 0, 0.002, 100, order.Filled},
		{"CLOSED", 0, 0, 0, order.Cancelled},
		{"SETTLING", 1, 0, 0, order.UnknownStatus},
	} {
		got := pionexOrderStatus(tc.status, tc.size, tc.filledSize, tc.filledAmount)
		assert.Equal(t, tc.want, got, "%s size=%v filled=%v", tc.status, tc.size, tc.filledSize)
	}
}

func TestFetchOrderByClientID(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/orderByClientOrderId", 200, `{"result":true,"data":{
		"orderId":11,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","price":"50000",
		"size":"1","amount":"0","filledSize":"0.4","filledAmount":"20000",
		"fee":"8","feeCoin":"USDT","status":"OPEN","clientOrderId":"cl-11",
		"IOC":false,"createTime":1699900000000,"updateTime":1699900005000}}`)

	detail, err := p.FetchOrder(context.Background(), "cl-11", btcPair)
	require.NoError(t, err)
	assert.Equal(t, "11", detail.ID)
	assert.Equal(t, order.PartiallyFilled, detail.Status)
	assert.Equal(t, order.Limit, detail.Type)
	assert.Equal(t, 0.6, detail.Remaining)
	assert.Equal(t, 20000.0, detail.Cost)
	assert.Equal(t, 50000.0, detail.Average, "average derives from filled amount over size")
	assert.Equal(t, 8.0, detail.Fee.Cost)
	assert.Equal(t, currency.USDT, detail.Fee.Currency)

	req := srv.LastRequest()
	assert.Equal(t, "cl-11", req.URL.Query().Get("clientOrderId"))
}

func TestFetchOrderQuoteMarketBuy(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/order", 200, `{"result":true,"data":{
		"orderId":42,"symbol":"BTC_USDT","type":"MARKET","side":"BUY","price":"0",
		"size":"0","amount":"100","filledSize":"0.002","filledAmount":"100",
		"fee":"0.05","feeCoin":"USDT","status":"CLOSED","createTime":1699900000000}}`)

	detail, err := p.FetchOrder(context.Background(), "42", btcPair)
	require.NoError(t, err)
	assert.Equal(t, order.Filled, detail.Status, "sizeless closed orders resolve on filled amount")
	assert.Equal(t, 100.0, detail.Amount, "quote-denominated market buys report the spend")
	assert.Equal(t, 100.0, detail.Cost)
	assert.Equal(t, 50000.0, detail.Average)

	req := srv.LastRequest()
	assert.Equal(t, "42", req.URL.Query().Get("orderId"))
}

func TestFetchOpenOrders(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/openOrders", 200, `{"result":true,"data":{"orders":[
		{"orderId":12,"symbol":"BTC_USDT","type":"LIMIT","side":"SELL","price":"50100",
		 "size":"2","filledSize":"0","status":"OPEN","createTime":1699900002000},
		{"orderId":11,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","price":"50000",
		 "size":"1","filledSize":"0.4","filledAmount":"20000","status":"OPEN","createTime":1699900001000}]}}`)

	orders, err := p.FetchOpenOrders(context.Background(), btcPair)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "11", orders[0].ID, "oldest first")
	assert.Equal(t, order.PartiallyFilled, orders[0].Status)
	assert.Equal(t, order.New, orders[1].Status)
	assert.Equal(t, order.Sell, orders[1].Side)
}

func TestFetchClosedOrders(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/allOrders", 200, `{"result":true,"data":{"orders":[
		{"orderId":1,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","price":"49000",
		 "size":"1","filledSize":"1","filledAmount":"49000","status":"CLOSED","createTime":1699899999000},
		{"orderId":2,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","price":"50000",
		 "size":"1","filledSize":"1","filledAmount":"50000","status":"CLOSED","createTime":1699900001000},
		{"orderId":3,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","price":"50100",
		 "size":"1","filledSize":"0","status":"OPEN","createTime":1699900002000},
		{"orderId":4,"symbol":"BTC_USDT","type":"LIMIT","side":"SELL","price":"50200",
		 "size":"1","filledSize":"0","status":"CLOSED","createTime":1699900003000}]}}`)

	since := time.UnixMilli(1699900000000)
	orders, err := p.FetchClosedOrders(context.Background(), btcPair, since, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2, "open orders and rows before since drop locally")
	assert.Equal(t, "2", orders[0].ID)
	assert.Equal(t, order.Filled, orders[0].Status)
	assert.Equal(t, "4", orders[1].ID)
	assert.Equal(t, order.Cancelled, orders[1].Status, "unfilled closed orders were cancelled")
}

func TestFetchClosedOrdersTailLimit(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/allOrders", 200, `{"result":true,"data":{"orders":[
		{"orderId":1,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","size":"1",
		 "filledSize":"1","filledAmount":"49000","status":"CLOSED","createTime":1699900001000},
		{"orderId":3,"symbol":"BTC_USDT","type":"LIMIT","side":"BUY","size":"1",
		 "filledSize":"1","filledAmount":"50000","status":"CLOSED","createTime":1699900003000}]}}`)

	orders, err := p.FetchClosedOrders(context.Background(), btcPair, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "3", orders[0].ID, "limit keeps the newest rows")
}

func TestFetchMyTrades(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/trade/fills", 200, `{"result":true,"data":{"fills":[
		{"id":78,"orderId":12,"symbol":"BTC_USDT","side":"SELL","role":"TAKER",
		 "price":"50100","size":"0.1","fee":"5.01","feeCoin":"USDT","timestamp":1699900003000},
		{"id":77,"orderId":11,"symbol":"BTC_USDT","side":"BUY","role":"MAKER",
		 "price":"50000","size":"0.4","fee":"8","feeCoin":"USDT","timestamp":1699900002000}]}}`)

	trades, err := p.FetchMyTrades(context.Background(), btcPair,
		time.UnixMilli(1699800000000), 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "77", trades[0].ID, "oldest first")
	assert.Equal(t, "11", trades[0].OrderID)
	assert.Equal(t, order.Buy, trades[0].Side)
	assert.True(t, trades[0].IsMaker)
	assert.Equal(t, 8.0, trades[0].Fee.Cost)
	assert.Equal(t, currency.USDT, trades[0].Fee.Currency)
	assert.Equal(t, 50000.0*0.4, trades[0].Cost)
	assert.False(t, trades[1].IsMaker)

	req := srv.LastRequest()
	assert.Equal(t, "1699800000000", req.URL.Query().Get("startTime"))
}

func TestFetchBalance(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/account/balances", 200, `{"result":true,"data":{"balances":[
		{"coin":"BTC","free":"1.5","frozen":"0.5"},
		{"coin":"ETH","free":"0","frozen":"0"},
		{"coin":"USDT","free":"100","frozen":"0"}]}}`)

	holdings, err := p.FetchBalance(context.Background())
	require.NoError(t, err)
	require.Contains(t, holdings.Balances, currency.BTC)
	btc := holdings.Balances[currency.BTC]
	assert.Equal(t, 1.5, btc.Free)
	assert.Equal(t, 0.5, btc.Used)
	assert.Equal(t, 2.0, btc.Total)
	assert.NotContains(t, holdings.Balances, currency.Code("ETH"), "empty rows drop")
	assert.Equal(t, 100.0, holdings.Balances[currency.USDT].Free)
}

func TestFetchTradingFeesDefaults(t *testing.T) {
	p, _ := testInstance(t)

	fees, err := p.FetchTradingFees(context.Background())
	require.NoError(t, err)
	require.Contains(t, fees, "BTC/USDT")
	assert.Equal(t, pionexDefaultMaker, fees["BTC/USDT"].Maker)
	assert.Equal(t, pionexDefaultTaker, fees["BTC/USDT"].Taker)
	require.Contains(t, fees, "ETH/USDT")
}

func TestEnvelopeFailureOn200(t *testing.T) {
	p, srv := testInstance(t)
	// the venue rejects with result:false on a 200 status
	srv.HandleJSON("GET", "/api/v1/trade/order", 200,
		`{"result":false,"code":"TRADE_ORDER_NOT_FOUND","message":"order not found"}`)

	_, err := p.FetchOrder(context.Background(), "42", btcPair)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
	var apiErr *exchange.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "TRADE_ORDER_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "order not found", apiErr.Message)
}

func TestEnvelopeFailurePublicEndpoint(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/tickers", 200,
		`{"result":false,"code":"TRADE_INVALID_SYMBOL","message":"symbol not found"}`)

	_, err := p.FetchTicker(context.Background(), btcPair)
	assert.ErrorIs(t, err, exchange.ErrBadSymbol)
}

func TestEnvelopeFailureHTTPStatus(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/depth", 400,
		`{"result":false,"code":"PARAMETER_ERROR","message":"bad limit"}`)

	_, err := p.FetchOrderBook(context.Background(), btcPair, 5)
	assert.ErrorIs(t, err, exchange.ErrBadRequest)
	var apiErr *exchange.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.HTTPStatus)
}

func TestEnvelopeUnknownCodeFallsBack(t *testing.T) {
	p, srv := testInstance(t)
	srv.HandleJSON("GET", "/api/v1/market/depth", 429,
		`{"result":false,"code":"UNEXPECTED","message":"slow down"}`)

	_, err := p.FetchOrderBook(context.Background(), btcPair, 5)
	assert.ErrorIs(t, err, exchange.ErrRateLimitExceeded)
}

func TestPairFromSymbolFallsBackToSplit(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)

	// nothing loaded: the registry misses and the underscore form decides
	pair, err := p.pairFromSymbol("sol_usdt")
	require.NoError(t, err)
	assert.Equal(t, "SOL/USDT", pair.Upper())

	_, err = p.pairFromSymbol("SOLUSDT")
	assert.ErrorIs(t, err, exchange.ErrBadSymbol)
}

func wsTestConn(t *testing.T, p *Pionex, buffer int) *stream.Websocket {
	t.Helper()
	conn, err := stream.New(&stream.Setup{
		Name:        p.Name,
		URL:         "wss://example.invalid/wsPub",
		Handler:     p.wsHandleData,
		DataHandler: make(chan interface{}, buffer),
	})
	require.NoError(t, err)
	return conn
}

func loadTestMarkets(t *testing.T, p *Pionex) {
	t.Helper()
	_, err := p.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
}

func TestWsTradeParsing(t *testing.T) {
	p, _ := testInstance(t)
	loadTestMarkets(t, p)
	conn := wsTestConn(t, p, 4)

	msg := `{"topic":"TRADE","symbol":"BTC_USDT","timestamp":1699900001000,
		"data":[{"tradeId":9,"price":"50100","size":"0.3","side":"SELL","timestamp":1699900000800}]}`
	require.NoError(t, p.wsHandleData(context.Background(), conn, []byte(msg)))

	event := <-conn.DataHandler
	data, ok := event.(trade.Data)
	require.True(t, ok)
	assert.Equal(t, "9", data.ID)
	assert.Equal(t, "BTC/USDT", data.Pair.Upper())
	assert.Equal(t, order.Sell, data.Side)
	assert.Equal(t, 50100.0, data.Price)
	assert.Equal(t, 0.3, data.Amount)
	assert.Equal(t, time.UnixMilli(1699900000800).UTC(), data.Timestamp,
		"row timestamps win over the frame timestamp")
}

func TestWsDepthParsing(t *testing.T) {
	p, _ := testInstance(t)
	loadTestMarkets(t, p)
	conn := wsTestConn(t, p, 4)

	msg := `{"topic":"DEPTH","symbol":"BTC_USDT","timestamp":1699900002000,
		"data":{"bids":[["50000","1"]],"asks":[["50010","2"]],"updateTime":1699900001500}}`
	require.NoError(t, p.wsHandleData(context.Background(), conn, []byte(msg)))

	event := <-conn.DataHandler
	book, ok := event.(*orderbook.Base)
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", book.Pair.Upper())
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
	assert.Equal(t, 2.0, book.Asks[0].Amount)
	assert.Equal(t, time.UnixMilli(1699900001500).UTC(), book.LastUpdated)
}

func TestWsDepthSymbolFallback(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	conn := wsTestConn(t, p, 4)

	// no markets loaded: the underscore split still resolves the pair
	msg := `{"topic":"DEPTH","symbol":"SOL_USDT","timestamp":1699900002000,
		"data":{"bids":[["150","10"]],"asks":[["151","5"]]}}`
	require.NoError(t, p.wsHandleData(context.Background(), conn, []byte(msg)))

	event := <-conn.DataHandler
	book, ok := event.(*orderbook.Base)
	require.True(t, ok)
	assert.Equal(t, "SOL/USDT", book.Pair.Upper())
	assert.Equal(t, time.UnixMilli(1699900002000).UTC(), book.LastUpdated,
		"frame timestamp backfills a missing updateTime")
}

func TestWsPingTriggersPong(t *testing.T) {
	p, _ := testInstance(t)
	conn := wsTestConn(t, p, 1)

	// the offline transport rejects the write, which proves the handler
	// reached the pong transmission path
	err := p.wsHandleData(context.Background(), conn, []byte(`{"op":"PING","timestamp":1699900000000}`))
	assert.ErrorIs(t, err, stream.ErrNotConnected)
	assert.Empty(t, conn.DataHandler)
}

func TestWsSubscribeAcksIgnored(t *testing.T) {
	p, _ := testInstance(t)
	conn := wsTestConn(t, p, 1)

	msg := `{"op":"SUBSCRIBED","topic":"TRADE","symbol":"BTC_USDT","timestamp":1699900000000}`
	require.NoError(t, p.wsHandleData(context.Background(), conn, []byte(msg)))
	assert.Empty(t, conn.DataHandler)

	msg = `{"op":"UNSUBSCRIBED","topic":"TRADE","symbol":"BTC_USDT","timestamp":1699900000000}`
	require.NoError(t, p.wsHandleData(context.Background(), conn, []byte(msg)))
	assert.Empty(t, conn.DataHandler)
}

func TestWatchUnsupportedFeeds(t *testing.T) {
	p, _ := testInstance(t)
	assert.Error(t, p.WatchTicker(context.Background(), btcPair))
	assert.Error(t, p.WatchOHLCV(context.Background(), btcPair, kline.OneMin))
	assert.Error(t, p.WatchOrders(context.Background()))
	assert.Error(t, p.WatchBalance(context.Background()))
}
