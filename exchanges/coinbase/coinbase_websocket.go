package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/unifex/unifex/common/convert"
	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/order"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/stream"
	"github.com/unifex/unifex/exchanges/subscription"
	"github.com/unifex/unifex/exchanges/ticker"
	"github.com/unifex/unifex/exchanges/trade"
	"github.com/unifex/unifex/log"
)

const (
	coinbaseWsTicker        = "ticker"
	coinbaseWsTrades        = "market_trades"
	coinbaseWsLevel2        = "level2"
	coinbaseWsCandles       = "candles"
	coinbaseWsUser          = "user"
	coinbaseWsHeartbeats    = "heartbeats"
	coinbaseWsSubscriptions = "subscriptions"

	// coinbaseWsLevel2Data is the inbound channel name for level2
	// subscriptions; the venue acknowledges "level2" but publishes under
	// "l2_data"
	coinbaseWsLevel2Data = "l2_data"
)

// coinbaseWsCandleInterval is the only granularity the candles channel
// serves
const coinbaseWsCandleInterval = kline.FiveMin

// wsTransport returns the stream transport, dialling it on first use.
// Public and private channels share one endpoint; private subscriptions
// carry a JWT inside the subscribe message.
func (c *Coinbase) wsTransport(ctx context.Context) (*stream.Websocket, error) {
	return c.EnsureWebsocket(ctx, c.WebsocketURL, func() (*stream.Websocket, error) {
		return stream.New(&stream.Setup{
			Name:         c.Name,
			URL:          c.WebsocketURL,
			Handler:      c.wsHandleData,
			Subscriber:   c.wsSubscribe,
			Unsubscriber: c.wsUnsubscribe,
			OnConnected:  c.wsKeepAlive,
			DataHandler:  c.EventSink(),
			ProxyURL:     c.ProxyURL,
			Verbose:      c.Verbose,
		})
	})
}

// wsKeepAlive subscribes the heartbeats channel after every dial. The venue
// drops quiet connections, and heartbeats is its documented keep-alive. The
// subscription is untracked so reconnect replay never duplicates it.
func (c *Coinbase) wsKeepAlive(ctx context.Context, conn *stream.Websocket) error {
	return conn.SendJSONMessage(ctx, wsRequest{Type: "subscribe", Channel: coinbaseWsHeartbeats})
}

func (c *Coinbase) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	return c.wsChannelRequest(ctx, conn, sub, "subscribe")
}

func (c *Coinbase) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	return c.wsChannelRequest(ctx, conn, sub, "unsubscribe")
}

// wsChannelRequest transmits a subscribe or unsubscribe for one
// subscription. Authenticated channels mint a fresh JWT when the cached one
// has lapsed, so replays after reconnects re-authenticate correctly.
func (c *Coinbase) wsChannelRequest(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription, action string) error {
	req := wsRequest{Type: action, Channel: sub.Channel}
	for _, p := range sub.Pairs {
		m, err := c.MarketFromSymbol(p.Upper())
		if err != nil {
			return err
		}
		req.ProductIDs = append(req.ProductIDs, m.ID)
	}
	if sub.Authenticated {
		jwt, err := c.websocketJWT()
		if err != nil {
			return err
		}
		req.JWT = jwt
	}
	sub.QualifiedChannel = sub.Channel
	return conn.SendJSONMessage(ctx, req)
}

// wsTerminate drops every subscription on channel so undecodable payloads
// stop arriving and are not replayed after reconnects
func (c *Coinbase) wsTerminate(conn *stream.Websocket, channel string) {
	for _, sub := range conn.Subscriptions() {
		if sub.QualifiedChannel == channel {
			conn.TerminateSubscription(sub)
		}
	}
}

func (c *Coinbase) wsHandleData(ctx context.Context, conn *stream.Websocket, respRaw []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(respRaw, &env); err != nil {
		return fmt.Errorf("%s websocket: %w", c.Name, err)
	}
	switch env.Channel {
	case coinbaseWsTicker:
		return c.wsProcessTicker(conn, &env)
	case coinbaseWsTrades:
		return c.wsProcessTrades(conn, &env)
	case coinbaseWsLevel2Data:
		return c.wsProcessLevel2(conn, &env)
	case coinbaseWsCandles:
		return c.wsProcessCandles(conn, &env)
	case coinbaseWsUser:
		return c.wsProcessUser(conn, &env)
	case coinbaseWsHeartbeats, coinbaseWsSubscriptions:
		return nil
	case "":
		var failure struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(respRaw, &failure); err == nil && failure.Type == "error" {
			log.Errorf(log.WebsocketMgr, "%s websocket: venue error: %s", c.Name, failure.Message)
			return nil
		}
	}
	if c.Verbose {
		log.Debugf(log.WebsocketMgr, "%s websocket: unhandled channel %q: %s", c.Name, env.Channel, respRaw)
	}
	return nil
}

// wsPairFromProduct resolves a venue product id such as BTC-USD, preferring
// the loaded market table and falling back to delimiter parsing
func (c *Coinbase) wsPairFromProduct(productID string) (currency.Pair, error) {
	if m, err := c.MarketFromID(productID); err == nil {
		return m.Pair, nil
	}
	return currency.NewPairFromString(productID)
}

func (c *Coinbase) wsProcessTicker(conn *stream.Websocket, env *wsEnvelope) error {
	var events []wsTickerEvent
	if err := json.Unmarshal(env.Events, &events); err != nil {
		c.wsTerminate(conn, coinbaseWsTicker)
		return fmt.Errorf("%s websocket: ticker payload: %w", c.Name, err)
	}
	at, err := convert.ParseDatetime(env.Timestamp)
	if err != nil {
		at = time.Now().UTC()
	}
	for i := range events {
		for j := range events[i].Tickers {
			row := &events[i].Tickers[j]
			pair, err := c.wsPairFromProduct(row.ProductID)
			if err != nil {
				continue
			}
			price := &ticker.Price{Pair: pair, LastUpdated: at, Info: row}
			price.Last, _ = convert.FloatFromString(row.Price)
			price.High, _ = convert.FloatFromString(row.High24H)
			price.Low, _ = convert.FloatFromString(row.Low24H)
			price.Volume, _ = convert.FloatFromString(row.Volume24H)
			price.Percentage, _ = convert.FloatFromString(row.PricePercentChg24H)
			price.Bid, _ = convert.FloatFromString(row.BestBid)
			price.BidSize, _ = convert.FloatFromString(row.BestBidQuantity)
			price.Ask, _ = convert.FloatFromString(row.BestAsk)
			price.AskSize, _ = convert.FloatFromString(row.BestAskQuantity)
			conn.DataHandler <- price
		}
	}
	return nil
}

func (c *Coinbase) wsProcessTrades(conn *stream.Websocket, env *wsEnvelope) error {
	var events []wsTradesEvent
	if err := json.Unmarshal(env.Events, &events); err != nil {
		c.wsTerminate(conn, coinbaseWsTrades)
		return fmt.Errorf("%s websocket: trade payload: %w", c.Name, err)
	}
	for i := range events {
		for j := range events[i].Trades {
			row := &events[i].Trades[j]
			pair, err := c.wsPairFromProduct(row.ProductID)
			if err != nil {
				continue
			}
			data := trade.Data{
				ID:   row.TradeID,
				Pair: pair,
				Info: row,
			}
			data.Price, _ = convert.FloatFromString(row.Price)
			data.Amount, _ = convert.FloatFromString(row.Size)
			if row.Side == "SELL" {
				data.Side = order.Sell
			} else {
				data.Side = order.Buy
			}
			if ts, err := convert.ParseDatetime(row.Time); err == nil {
				data.Timestamp = ts
			}
			data.DeriveCost()
			conn.DataHandler <- data
		}
	}
	return nil
}

// wsProcessLevel2 maintains a local book per product from snapshot and
// update events and emits a copy after every event
func (c *Coinbase) wsProcessLevel2(conn *stream.Websocket, env *wsEnvelope) error {
	var events []wsL2Event
	if err := json.Unmarshal(env.Events, &events); err != nil {
		c.wsTerminate(conn, coinbaseWsLevel2)
		return fmt.Errorf("%s websocket: book payload: %w", c.Name, err)
	}
	for i := range events {
		ev := &events[i]
		pair, err := c.wsPairFromProduct(ev.ProductID)
		if err != nil {
			continue
		}
		bids, asks, lastUpdate, err := splitL2Updates(ev.Updates)
		if err != nil {
			c.wsTerminate(conn, coinbaseWsLevel2)
			return fmt.Errorf("%s websocket: book levels: %w", c.Name, err)
		}
		c.wsBookMu.Lock()
		book := c.wsBooks[ev.ProductID]
		if ev.Type == "snapshot" || book == nil {
			book = &orderbook.Base{
				Pair: pair,
				Bids: sortItems(bids, true),
				Asks: sortItems(asks, false),
			}
			c.wsBooks[ev.ProductID] = book
		} else {
			book.Bids = applyL2Side(book.Bids, bids, true)
			book.Asks = applyL2Side(book.Asks, asks, false)
		}
		if lastUpdate.IsZero() {
			lastUpdate = time.Now().UTC()
		}
		book.LastUpdated = lastUpdate
		snapshot := &orderbook.Base{
			Pair:        book.Pair,
			Bids:        append([]orderbook.Item(nil), book.Bids...),
			Asks:        append([]orderbook.Item(nil), book.Asks...),
			LastUpdated: book.LastUpdated,
		}
		c.wsBookMu.Unlock()
		conn.DataHandler <- snapshot
	}
	return nil
}

// splitL2Updates parses book deltas into bid and ask items. The venue names
// the ask side "offer".
func splitL2Updates(updates []wsL2Update) (bids, asks []orderbook.Item, last time.Time, err error) {
	for i := range updates {
		price, perr := convert.FloatFromString(updates[i].PriceLevel)
		if perr != nil {
			return nil, nil, time.Time{}, perr
		}
		amount, aerr := convert.FloatFromString(updates[i].NewQuantity)
		if aerr != nil {
			return nil, nil, time.Time{}, aerr
		}
		item := orderbook.Item{Price: price, Amount: amount}
		if updates[i].Side == "bid" {
			bids = append(bids, item)
		} else {
			asks = append(asks, item)
		}
		if ts, terr := convert.ParseDatetime(updates[i].EventTime); terr == nil && ts.After(last) {
			last = ts
		}
	}
	return bids, asks, last, nil
}

func sortItems(items []orderbook.Item, descending bool) []orderbook.Item {
	sort.Slice(items, func(i, j int) bool {
		if descending {
			return items[i].Price > items[j].Price
		}
		return items[i].Price < items[j].Price
	})
	return items
}

// applyL2Side merges depth deltas into a side. Zero quantity removes the
// level.
func applyL2Side(levels, updates []orderbook.Item, descending bool) []orderbook.Item {
	for _, u := range updates {
		idx := -1
		for i := range levels {
			if levels[i].Price == u.Price {
				idx = i
				break
			}
		}
		switch {
		case u.Amount == 0:
			if idx >= 0 {
				levels = append(levels[:idx], levels[idx+1:]...)
			}
		case idx >= 0:
			levels[idx].Amount = u.Amount
		default:
			levels = append(levels, u)
		}
	}
	return sortItems(levels, descending)
}

func (c *Coinbase) wsProcessCandles(conn *stream.Websocket, env *wsEnvelope) error {
	var events []wsCandlesEvent
	if err := json.Unmarshal(env.Events, &events); err != nil {
		c.wsTerminate(conn, coinbaseWsCandles)
		return fmt.Errorf("%s websocket: candle payload: %w", c.Name, err)
	}
	for i := range events {
		for j := range events[i].Candles {
			row := &events[i].Candles[j]
			pair, err := c.wsPairFromProduct(row.ProductID)
			if err != nil {
				continue
			}
			candle := kline.Candle{}
			ts, err := convert.Int64FromString(row.Start)
			if err != nil {
				continue
			}
			candle.Time = convert.TimeFromUnixSec(ts)
			candle.Open, _ = convert.FloatFromString(row.Open)
			candle.High, _ = convert.FloatFromString(row.High)
			candle.Low, _ = convert.FloatFromString(row.Low)
			candle.Close, _ = convert.FloatFromString(row.Close)
			candle.Volume, _ = convert.FloatFromString(row.Volume)
			conn.DataHandler <- &stream.KlineData{
				Exchange: c.Name,
				Pair:     pair,
				Interval: coinbaseWsCandleInterval,
				Candle:   candle,
			}
		}
	}
	return nil
}

func (c *Coinbase) wsProcessUser(conn *stream.Websocket, env *wsEnvelope) error {
	var events []wsUserEvent
	if err := json.Unmarshal(env.Events, &events); err != nil {
		c.wsTerminate(conn, coinbaseWsUser)
		return fmt.Errorf("%s websocket: user payload: %w", c.Name, err)
	}
	for i := range events {
		for j := range events[i].Orders {
			row := &events[i].Orders[j]
			pair, err := c.wsPairFromProduct(row.ProductID)
			if err != nil {
				continue
			}
			detail := &order.Detail{
				ID:            row.OrderID,
				ClientOrderID: row.ClientOrderID,
				Pair:          pair,
				Info:          row,
			}
			if row.OrderSide == "SELL" {
				detail.Side = order.Sell
			} else {
				detail.Side = order.Buy
			}
			if row.OrderType == "Market" {
				detail.Type = order.Market
			} else {
				detail.Type = order.Limit
			}
			detail.Filled, _ = convert.FloatFromString(row.CumulativeQuantity)
			leaves, _ := convert.FloatFromString(row.LeavesQuantity)
			detail.Amount = detail.Filled + leaves
			detail.Remaining = leaves
			detail.Average, _ = convert.FloatFromString(row.AveragePrice)
			detail.Price, _ = convert.FloatFromString(row.LimitPrice)
			feeCost, _ := convert.FloatFromString(row.TotalFees)
			if feeCost > 0 {
				detail.Fee = order.Fee{Cost: feeCost, Currency: pair.Quote}
			}
			if ts, err := convert.ParseDatetime(row.CreationTime); err == nil {
				detail.Timestamp = ts
			}
			detail.Status = coinbaseOrderStatus(row.Status, detail.Filled)
			detail.Cost = detail.Average * detail.Filled
			conn.DataHandler <- detail
		}
	}
	return nil
}

// WatchTicker subscribes to price updates for one pair
func (c *Coinbase) WatchTicker(ctx context.Context, pair currency.Pair) error {
	if err := c.RequireFeature("WatchTicker", c.Features.WatchTicker); err != nil {
		return err
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := c.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: coinbaseWsTicker,
		Pairs:   currency.Pairs{m.Pair},
		Key:     coinbaseWsTicker + ":" + m.Symbol,
	})
}

// WatchOrderBook subscribes to depth updates for one pair. A snapshot
// arrives first; deltas maintain a local book.
func (c *Coinbase) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := c.RequireFeature("WatchOrderBook", c.Features.WatchOrderBook); err != nil {
		return err
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := c.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: coinbaseWsLevel2,
		Pairs:   currency.Pairs{m.Pair},
		Key:     coinbaseWsLevel2 + ":" + m.Symbol,
	})
}

// WatchTrades subscribes to public trades for one pair
func (c *Coinbase) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := c.RequireFeature("WatchTrades", c.Features.WatchTrades); err != nil {
		return err
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := c.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: coinbaseWsTrades,
		Pairs:   currency.Pairs{m.Pair},
		Key:     coinbaseWsTrades + ":" + m.Symbol,
	})
}

// WatchOHLCV subscribes to candle updates for one pair. The venue serves a
// fixed five-minute granularity on this channel.
func (c *Coinbase) WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error {
	if err := c.RequireFeature("WatchOHLCV", c.Features.WatchOHLCV); err != nil {
		return err
	}
	if interval != coinbaseWsCandleInterval {
		return fmt.Errorf("%s %s: %w", c.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := c.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:  coinbaseWsCandles,
		Pairs:    currency.Pairs{m.Pair},
		Interval: interval,
		Key:      coinbaseWsCandles + ":" + m.Symbol,
	})
}

// WatchOrders subscribes to lifecycle updates for every order on the account
func (c *Coinbase) WatchOrders(ctx context.Context) error {
	if err := c.RequireFeature("WatchOrders", c.Features.WatchOrders); err != nil {
		return err
	}
	if err := c.API.Validate(false, true); err != nil {
		return err
	}
	if err := c.ensureMarkets(ctx); err != nil {
		return err
	}
	conn, err := c.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:       coinbaseWsUser,
		Key:           coinbaseWsUser,
		Authenticated: true,
	})
}

// WatchBalance is not a venue stream; balance deltas arrive on the user
// channel as order fills
func (c *Coinbase) WatchBalance(_ context.Context) error {
	return c.RequireFeature("WatchBalance", c.Features.WatchBalance)
}

// CloseAllWs shuts every transport and drops the cached stream JWT and
// maintained books
func (c *Coinbase) CloseAllWs() error {
	c.jwtMu.Lock()
	c.wsJWT = ""
	c.wsJWTExpires = time.Time{}
	c.jwtMu.Unlock()

	c.wsBookMu.Lock()
	c.wsBooks = make(map[string]*orderbook.Base)
	c.wsBookMu.Unlock()
	return c.Base.CloseAllWs()
}
