package kraken

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// testSecret is a throwaway base64 blob shaped like a venue API secret
const testSecret = "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="

const assetPairsFixture = `{"error":[],"result":{
	"XXBTZUSD":{"altname":"XBTUSD","wsname":"XBT/USD","base":"XXBT","quote":"ZUSD",
		"pair_decimals":1,"lot_decimals":8,"ordermin":"0.0001","costmin":"0.5",
		"tick_size":"0.1","status":"online"},
	"ADAUSD":{"altname":"ADAUSD","base":"ADA","quote":"ZUSD",
		"pair_decimals":6,"lot_decimals":8,"ordermin":"1","costmin":"0.5",
		"tick_size":"0.000001","status":"online"}
}}`

func testInstance(t *testing.T) (*Kraken, *mock.Server) {
	t.Helper()
	k, err := New(&exchange.Config{
		Credentials: exchange.Credentials{Key: "key", Secret: testSecret},
	})
	require.NoError(t, err)

	srv := mock.NewServer()
	t.Cleanup(srv.Close)
	k.APIURL = srv.URL
	srv.HandleJSON("GET", "/0/public/AssetPairs", 200, assetPairsFixture)
	return k, srv
}

func TestSignRequest(t *testing.T) {
	k, err := New(&exchange.Config{
		Credentials: exchange.Credentials{Key: "key", Secret: testSecret},
	})
	require.NoError(t, err)

	sig, err := k.signRequest(
		"/0/private/AddOrder",
		"1616492376594",
		"nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25")
	require.NoError(t, err)
	assert.Equal(t,
		"4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ==",
		sig)
}

func TestSignRequestBadSecret(t *testing.T) {
	k, err := New(&exchange.Config{
		Credentials: exchange.Credentials{Key: "key", Secret: "%%not-base64%%"},
	})
	require.NoError(t, err)
	_, err = k.signRequest("/0/private/Balance", "1", "nonce=1")
	assert.Error(t, err)
}

func TestLoadMarkets(t *testing.T) {
	k, _ := testInstance(t)

	markets, err := k.LoadMarkets(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets["BTC/USD"]
	require.NotNil(t, btc, "wsname XBT/USD should normalize to BTC/USD")
	assert.Equal(t, "XXBTZUSD", btc.ID)
	assert.Equal(t, 1, btc.Precision.Price)
	assert.Equal(t, 8, btc.Precision.Amount)
	assert.Equal(t, 0.0001, btc.Limits.Amount.Min)
	assert.Equal(t, 0.1, btc.TickSize)
	assert.True(t, btc.Active)

	ada := markets["ADA/USD"]
	require.NotNil(t, ada, "altname-only listing should normalize from base/quote")
	assert.Equal(t, "ADAUSD", ada.ID)

	// altname and wsname resolve as alias ids
	byAlt, err := k.MarketFromID("XBTUSD")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", byAlt.Symbol)
	byWS, err := k.MarketFromID("XBT/USD")
	require.NoError(t, err)
	assert.Equal(t, "XXBTZUSD", byWS.ID)
}

func TestAssetToUnified(t *testing.T) {
	assert.Equal(t, currency.BTC, assetToUnified("XXBT"))
	assert.Equal(t, currency.BTC, assetToUnified("XBT"))
	assert.Equal(t, currency.USD, assetToUnified("ZUSD"))
	assert.Equal(t, currency.Code("DOGE"), assetToUnified("XDG"))
	assert.Equal(t, currency.Code("ADA"), assetToUnified("ADA"))
	// 4 letter codes without the legacy prefix stay intact
	assert.Equal(t, currency.USDT, assetToUnified("USDT"))
}

func TestFetchTicker(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/0/public/Ticker", 200, `{"error":[],"result":{
		"XXBTZUSD":{"a":["50110.0","1","1.000"],"b":["50100.0","2","2.000"],
			"c":["50105.0","0.005"],"v":["100.0","120.5"],"p":["50000.0","49900.0"],
			"t":[100,150],"l":["49000.0","48900.0"],"h":["51000.0","51100.0"],
			"o":"49500.0"}}}`)

	price, err := k.FetchTicker(context.Background(), currency.NewPairFromStrings("BTC", "USD"))
	require.NoError(t, err)
	assert.Equal(t, 50105.0, price.Last)
	assert.Equal(t, 50100.0, price.Bid)
	assert.Equal(t, 50110.0, price.Ask)
	assert.Equal(t, 51100.0, price.High, "24h element of the stats tuple")
	assert.Equal(t, 48900.0, price.Low)
	assert.Equal(t, 120.5, price.Volume)
	assert.Equal(t, 49900.0, price.VWAP)
	assert.Equal(t, 49500.0, price.Open)
	assert.InDelta(t, 605.0, price.Change, 1e-9)
}

func TestFetchOrderBook(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/0/public/Depth", 200, `{"error":[],"result":{
		"XXBTZUSD":{
			"asks":[["50010.0","1.5",1700000001],["50011.0","2.0",1700000002]],
			"bids":[["50000.0","0.5",1700000003],["49999.0","1.0",1700000004]]}}}`)

	book, err := k.FetchOrderBook(context.Background(), currency.NewPairFromStrings("BTC", "USD"), 0)
	require.NoError(t, err)
	require.Len(t, book.Asks, 2)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 50010.0, book.Asks[0].Price)
	assert.Equal(t, 1.5, book.Asks[0].Amount)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
}

func TestFetchTrades(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/0/public/Trades", 200, `{"error":[],"result":{
		"XXBTZUSD":[
			["50000.0","0.25",1700000000.1234,"b","l","",42],
			["50001.0","0.5",1700000001.5,"s","m","",43]],
		"last":"1700000001500000000"}}`)

	trades, err := k.FetchTrades(context.Background(),
		currency.NewPairFromStrings("BTC", "USD"), time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "42", trades[0].ID)
	assert.Equal(t, order.Buy, trades[0].Side)
	assert.Equal(t, 50000.0, trades[0].Price)
	assert.Equal(t, 0.25, trades[0].Amount)
	assert.Equal(t, 12500.0, trades[0].Cost)
	assert.Equal(t, order.Sell, trades[1].Side)
}

func TestFetchOHLCV(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("GET", "/0/public/OHLC", 200, `{"error":[],"result":{
		"XXBTZUSD":[
			[1700000000,"9.0","12.0","7.0","11.0","10.0","80.5",10],
			[1700000060,"11.0","15.0","8.0","12.0","11.5","100.0",12]],
		"last":1700000060}}`)

	candles, err := k.FetchOHLCV(context.Background(),
		currency.NewPairFromStrings("BTC", "USD"), kline.OneMin, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000), candles[0].Time.Unix())
	assert.Equal(t, 9.0, candles[0].Open)
	assert.Equal(t, 12.0, candles[0].High)
	assert.Equal(t, 7.0, candles[0].Low)
	assert.Equal(t, 11.0, candles[0].Close)
	assert.Equal(t, 80.5, candles[0].Volume)

	_, err = k.FetchOHLCV(context.Background(),
		currency.NewPairFromStrings("BTC", "USD"), kline.EightHour, time.Time{}, 0)
	assert.ErrorIs(t, err, kline.ErrUnsupportedInterval)
}

func TestCreateOrder(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/AddOrder", 200, `{"error":[],"result":{
		"descr":{"order":"buy 0.50000000 XBTUSD @ limit 45000.0"},
		"txid":["OUF4EM-FRGI2-MQMWZD"]}}`)

	detail, err := k.CreateOrder(context.Background(), &order.Submit{
		Pair:   currency.NewPairFromStrings("BTC", "USD"),
		Type:   order.Limit,
		Side:   order.Buy,
		Amount: 0.5,
		Price:  45000,
	})
	require.NoError(t, err)
	assert.Equal(t, "OUF4EM-FRGI2-MQMWZD", detail.ID)
	assert.Equal(t, order.New, detail.Status)

	last := srv.LastRequest()
	require.NotNil(t, last)
	values, err := url.ParseQuery(string(last.Body))
	require.NoError(t, err)
	assert.Equal(t, "XXBTZUSD", values.Get("pair"))
	assert.Equal(t, "buy", values.Get("type"))
	assert.Equal(t, "limit", values.Get("ordertype"))
	assert.Equal(t, "0.5", values.Get("volume"))
	assert.Equal(t, "45000", values.Get("price"))
	assert.NotEmpty(t, values.Get("nonce"))
	assert.Equal(t, "key", last.Header.Get("API-Key"))
	assert.NotEmpty(t, last.Header.Get("API-Sign"))
}

func TestFetchOrder(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/QueryOrders", 200, `{"error":[],"result":{
		"OABC12-XYZ12-ABCDEF":{
			"refid":null,"status":"closed","opentm":1700000000.5,"closetm":1700000100.0,
			"descr":{"pair":"XBTUSD","type":"sell","ordertype":"limit","price":"50000.0",
				"order":"sell 0.50000000 XBTUSD @ limit 50000.0"},
			"vol":"0.50000000","vol_exec":"0.50000000","cost":"25000.0","fee":"40.0",
			"price":"50000.0","misc":"","oflags":"fciq","trades":["TAAAAA-BBBBB-CCCCC"]}}}`)

	detail, err := k.FetchOrder(context.Background(), "OABC12-XYZ12-ABCDEF", currency.EMPTYPAIR)
	require.NoError(t, err)
	assert.Equal(t, order.Filled, detail.Status)
	assert.Equal(t, order.Sell, detail.Side)
	assert.Equal(t, order.Limit, detail.Type)
	assert.Equal(t, "BTC/USD", detail.Pair.Upper(), "descr.pair altname resolves via alias ids")
	assert.Equal(t, 0.5, detail.Filled)
	assert.Equal(t, 0.0, detail.Remaining)
	assert.Equal(t, 25000.0, detail.Cost)
	assert.Equal(t, 50000.0, detail.Average)
	assert.Equal(t, 40.0, detail.Fee.Cost)
	assert.Equal(t, currency.USD, detail.Fee.Currency)
	assert.Equal(t, int64(1700000000500), detail.Timestamp.UnixMilli())
}

func TestFetchOrderNotFound(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/QueryOrders", 200, `{"error":[],"result":{}}`)

	_, err := k.FetchOrder(context.Background(), "ONOPE", currency.EMPTYPAIR)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestFetchBalance(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/Balance", 200, `{"error":[],"result":{
		"ZUSD":"100.5","XXBT":"0.25","ADA":"10"}}`)

	holdings, err := k.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.5, holdings.Balances[currency.USD].Total)
	assert.Equal(t, 100.5, holdings.Balances[currency.USD].Free)
	assert.Equal(t, 0.25, holdings.Balances[currency.BTC].Total)
	assert.Equal(t, 10.0, holdings.Balances[currency.NewCode("ADA")].Total)
}

func TestFetchTradingFees(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/TradeVolume", 200, `{"error":[],"result":{
		"currency":"ZUSD","volume":"1000.0",
		"fees":{"XXBTZUSD":{"fee":"0.2600","minfee":"0.1000","maxfee":"0.2600",
			"nextfee":"0.2400","nextvolume":"50000.0000","tiervolume":"0.0000"}},
		"fees_maker":{"XXBTZUSD":{"fee":"0.1600"}}}}`)

	fees, err := k.FetchTradingFees(context.Background())
	require.NoError(t, err)
	schedule := fees["BTC/USD"]
	require.NotNil(t, schedule)
	assert.InDelta(t, 0.0026, schedule.Taker, 1e-9)
	assert.InDelta(t, 0.0016, schedule.Maker, 1e-9)
}

func TestErrorMapping(t *testing.T) {
	k, srv := testInstance(t)

	srv.HandleJSON("POST", "/0/private/Balance", 200, `{"error":["EAPI:Invalid nonce"]}`)
	_, err := k.FetchBalance(context.Background())
	assert.ErrorIs(t, err, exchange.ErrAuthentication)

	srv.HandleJSON("POST", "/0/private/CancelOrder", 200, `{"error":["EOrder:Unknown order"]}`)
	err = k.CancelOrder(context.Background(), "ONOPE", currency.EMPTYPAIR)
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)

	srv.HandleJSON("GET", "/0/public/Depth", 200, `{"error":["EQuery:Unknown asset pair"]}`)
	_, err = k.FetchOrderBook(context.Background(), currency.NewPairFromStrings("BTC", "USD"), 0)
	assert.ErrorIs(t, err, exchange.ErrBadSymbol)
}

func TestWarningsAreNotErrors(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/Balance", 200, `{
		"error":["WGeneral:Schedule maintenance soon"],
		"result":{"ZUSD":"5.0"}}`)

	holdings, err := k.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, holdings.Balances[currency.USD].Total)
}

func wsTestConn(t *testing.T, k *Kraken, buffer int) *stream.Websocket {
	t.Helper()
	conn, err := stream.New(&stream.Setup{
		Name:        k.Name,
		URL:         "wss://example.invalid/v2",
		Handler:     k.wsHandleData,
		DataHandler: make(chan interface{}, buffer),
	})
	require.NoError(t, err)
	return conn
}

func TestWsProcessTicker(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	msg := `{"channel":"ticker","type":"snapshot","data":[{
		"symbol":"BTC/USD","bid":50100.0,"bid_qty":1.5,"ask":50110.0,"ask_qty":2.0,
		"last":50105.0,"volume":120.5,"vwap":49900.0,"low":48900.0,"high":51100.0,
		"change":605.0,"change_pct":1.22}]}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))

	event := <-conn.DataHandler
	price, ok := event.(*ticker.Price)
	require.True(t, ok)
	assert.Equal(t, "BTC/USD", price.Pair.Upper())
	assert.Equal(t, 50105.0, price.Last)
	assert.Equal(t, 1.5, price.BidSize)
	assert.Equal(t, 605.0, price.Change)
}

func TestWsBookMaintenance(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	snapshot := `{"channel":"book","type":"snapshot","data":[{
		"symbol":"BTC/USD",
		"bids":[{"price":50000.0,"qty":1.0},{"price":49999.0,"qty":2.0}],
		"asks":[{"price":50010.0,"qty":1.5}],
		"checksum":1}]}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(snapshot)))

	event := <-conn.DataHandler
	book, ok := event.(*orderbook.Base)
	require.True(t, ok)
	require.Len(t, book.Bids, 2)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
	require.NoError(t, book.Verify())

	// zero qty removes a bid, a new ask level lands sorted
	update := `{"channel":"book","type":"update","data":[{
		"symbol":"BTC/USD",
		"bids":[{"price":50000.0,"qty":0}],
		"asks":[{"price":50005.0,"qty":0.7}],
		"checksum":2,
		"timestamp":"2026-01-02T03:04:05.000000Z"}]}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(update)))

	event = <-conn.DataHandler
	book, ok = event.(*orderbook.Base)
	require.True(t, ok)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 49999.0, book.Bids[0].Price)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, 50005.0, book.Asks[0].Price, "asks stay ascending after merge")
	require.NoError(t, book.Verify())
}

func TestWsProcessTradeAndExecution(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 4)

	tradeMsg := `{"channel":"trade","type":"update","data":[{
		"symbol":"BTC/USD","side":"sell","price":50105.0,"qty":0.2,
		"ord_type":"market","trade_id":777,"timestamp":"2026-01-02T03:04:05.123456Z"}]}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(tradeMsg)))

	event := <-conn.DataHandler
	data, ok := event.(trade.Data)
	require.True(t, ok)
	assert.Equal(t, "777", data.ID)
	assert.Equal(t, order.Sell, data.Side)
	assert.InDelta(t, 10021.0, data.Cost, 1e-9)

	execMsg := `{"channel":"executions","type":"update","data":[{
		"order_id":"OXXXXX-YYYYY-ZZZZZ","symbol":"BTC/USD","order_status":"partially_filled",
		"side":"buy","order_type":"limit","order_qty":1.0,"cum_qty":0.4,
		"limit_price":50000.0,"avg_price":49999.5,"exec_type":"trade",
		"timestamp":"2026-01-02T03:04:06.000000Z"}]}`
	require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(execMsg)))

	event = <-conn.DataHandler
	detail, ok := event.(*order.Detail)
	require.True(t, ok)
	assert.Equal(t, order.PartiallyFilled, detail.Status)
	assert.Equal(t, 0.4, detail.Filled)
	assert.InDelta(t, 0.6, detail.Remaining, 1e-9)
}

func TestWsHeartbeatAndAcksIgnored(t *testing.T) {
	k, _ := testInstance(t)
	conn := wsTestConn(t, k, 1)

	for _, msg := range []string{
		`{"channel":"heartbeat"}`,
		`{"channel":"status","type":"update","data":[{"system":"online"}]}`,
		`{"method":"pong","time_in":"a","time_out":"b"}`,
		`{"method":"subscribe","success":true,"result":{"channel":"ticker"}}`,
	} {
		require.NoError(t, k.wsHandleData(context.Background(), conn, []byte(msg)))
	}
	select {
	case event := <-conn.DataHandler:
		t.Fatalf("unexpected event %T", event)
	default:
	}
}

func TestWebsocketTokenCached(t *testing.T) {
	k, srv := testInstance(t)
	srv.HandleJSON("POST", "/0/private/GetWebSocketsToken", 200, `{"error":[],"result":{
		"token":"abc123","expires":900}}`)

	first, err := k.websocketToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", first)

	srv.Reset()
	again, err := k.websocketToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", again)
	assert.Empty(t, srv.Requests(), "second call must hit the cache")
}
