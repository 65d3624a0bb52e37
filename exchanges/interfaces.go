package exchange

import (
	"context"
	"time"

	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/account"
	"github.com/unifex/unifex/exchanges/fee"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/order"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/ticker"
	"github.com/unifex/unifex/exchanges/trade"
)

// IExchange is the unified surface every venue driver implements. Methods a
// venue cannot service return a feature-unsupported error per its Features
// bits.
type IExchange interface {
	GetName() string
	GetFeatures() Features

	// LoadMarkets populates the market registry on first call; reload forces
	// a re-fetch
	LoadMarkets(ctx context.Context, reload bool) (map[string]*Market, error)
	FetchMarkets(ctx context.Context) ([]*Market, error)

	FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error)
	FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error)
	FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error)
	FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error)
	FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error)

	CreateOrder(ctx context.Context, submit *order.Submit) (*order.Detail, error)
	CancelOrder(ctx context.Context, orderID string, pair currency.Pair) error
	CancelAllOrders(ctx context.Context, pair currency.Pair) error
	FetchOrder(ctx context.Context, orderID string, pair currency.Pair) (*order.Detail, error)
	FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error)
	FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error)
	FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error)
	FetchBalance(ctx context.Context) (*account.Holdings, error)
	FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error)

	WatchTicker(ctx context.Context, pair currency.Pair) error
	WatchOrderBook(ctx context.Context, pair currency.Pair) error
	WatchTrades(ctx context.Context, pair currency.Pair) error
	WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error
	WatchOrders(ctx context.Context) error
	WatchBalance(ctx context.Context) error

	// StreamEvents carries typed unified values and errors produced by
	// watch subscriptions
	StreamEvents() <-chan interface{}
	CloseAllWs() error
}
