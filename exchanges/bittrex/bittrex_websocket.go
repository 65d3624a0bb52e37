package bittrex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/unifex/unifex/currency"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/stream"
	"github.com/unifex/unifex/exchanges/subscription"
	"github.com/unifex/unifex/exchanges/ticker"
	"github.com/unifex/unifex/exchanges/trade"
	"github.com/unifex/unifex/log"
)

// The stream is a SignalR hub spoken directly over websocket text frames:
// subscriptions invoke the c3 hub's Subscribe method and events arrive as
// hub callbacks whose arguments are JSON documents encoded as strings.
const (
	bittrexWsHub         = "c3"
	bittrexWsSubscribe   = "Subscribe"
	bittrexWsUnsubscribe = "Unsubscribe"

	// Inbound callback method names. The book channel subscribes as
	// orderbook_{symbol}_{depth} but calls back as orderBook.
	bittrexWsTicker    = "ticker"
	bittrexWsTrade     = "trade"
	bittrexWsOrderbook = "orderBook"
	bittrexWsCandle    = "candle"
	bittrexWsHeartbeat = "heartbeat"

	// bittrexWsBookDepth is the delta stream depth and the REST bucket
	// used to seed local books
	bittrexWsBookDepth = 25
)

func bittrexWsChannel(channel, marketSymbol string) string {
	return channel + "_" + marketSymbol
}

// bittrexWsBookChannel names the depth channel; the subscribe token is
// lowercase even though the callback method is orderBook
func bittrexWsBookChannel(marketSymbol string) string {
	return "orderbook_" + marketSymbol + "_" + strconv.Itoa(bittrexWsBookDepth)
}

// wsTransport returns the connected stream transport, dialling it on first
// use. The hub sends empty frames as keep-alives, so no client-side ping
// timer is installed.
func (b *Bittrex) wsTransport(ctx context.Context) (*stream.Websocket, error) {
	return b.EnsureWebsocket(ctx, b.WebsocketURL, func() (*stream.Websocket, error) {
		return stream.New(&stream.Setup{
			Name:         b.Name,
			URL:          b.WebsocketURL,
			Handler:      b.wsHandleData,
			Subscriber:   b.wsSubscribe,
			Unsubscriber: b.wsUnsubscribe,
			DataHandler:  b.EventSink(),
			ProxyURL:     b.ProxyURL,
			Verbose:      b.Verbose,
		})
	})
}

func (b *Bittrex) wsInvoke(ctx context.Context, conn *stream.Websocket, method, channel string) error {
	return conn.SendJSONMessage(ctx, &wsHubRequest{
		Hub:          bittrexWsHub,
		Method:       method,
		Arguments:    [][]string{{channel}},
		InvocationID: conn.GenerateMessageID(false),
	})
}

func (b *Bittrex) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	sub.QualifiedChannel = sub.Key
	return b.wsInvoke(ctx, conn, bittrexWsSubscribe, sub.Key)
}

func (b *Bittrex) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	channel := sub.QualifiedChannel
	if channel == "" {
		channel = sub.Key
	}
	return b.wsInvoke(ctx, conn, bittrexWsUnsubscribe, channel)
}

// wsHandleData dispatches one inbound hub frame. Frames without callback
// messages are invocation acknowledgements or keep-alives. Each callback
// argument is a JSON document encoded as a string and is parsed again.
func (b *Bittrex) wsHandleData(_ context.Context, conn *stream.Websocket, msg []byte) error {
	var frame wsHubFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return fmt.Errorf("%s websocket: hub frame: %w", b.Name, err)
	}
	for i := range frame.Messages {
		m := &frame.Messages[i]
		for _, arg := range m.Arguments {
			if err := b.wsDispatch(conn, m.Method, []byte(arg)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bittrex) wsDispatch(conn *stream.Websocket, method string, payload []byte) error {
	switch method {
	case bittrexWsTicker:
		return b.wsProcessTicker(conn, payload)
	case bittrexWsTrade:
		return b.wsProcessTrade(conn, payload)
	case bittrexWsOrderbook:
		return b.wsProcessOrderbook(conn, payload)
	case bittrexWsCandle:
		return b.wsProcessCandle(conn, payload)
	case bittrexWsHeartbeat:
		return nil
	default:
		if b.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled method %q: %s",
				b.Name, method, string(payload))
		}
		return nil
	}
}

// wsTerminate drops the subscription carrying the feed so undecodable
// payloads stop arriving and are not replayed after reconnects
func (b *Bittrex) wsTerminate(conn *stream.Websocket, key string) {
	conn.TerminateSubscription(&subscription.Subscription{Key: key})
}

func (b *Bittrex) wsProcessTicker(conn *stream.Websocket, payload []byte) error {
	var tick TickerData
	if err := json.Unmarshal(payload, &tick); err != nil {
		return fmt.Errorf("%s websocket: ticker payload: %w", b.Name, err)
	}
	pair, err := b.pairFromSymbol(tick.Symbol)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", b.Name, err)
	}
	conn.DataHandler <- &ticker.Price{
		Pair:        pair,
		Last:        tick.LastTradeRate,
		Bid:         tick.BidRate,
		Ask:         tick.AskRate,
		LastUpdated: time.Now().UTC(),
	}
	return nil
}

func (b *Bittrex) wsProcessTrade(conn *stream.Websocket, payload []byte) error {
	var ev wsTradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%s websocket: trade payload: %w", b.Name, err)
	}
	pair, err := b.pairFromSymbol(ev.MarketSymbol)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", b.Name, err)
	}
	for i := range ev.Deltas {
		data := trade.Data{
			ID:        ev.Deltas[i].ID,
			Pair:      pair,
			Price:     ev.Deltas[i].Rate,
			Amount:    ev.Deltas[i].Quantity,
			Side:      bittrexSide(ev.Deltas[i].TakerSide),
			Timestamp: ev.Deltas[i].ExecutedAt,
		}
		data.DeriveCost()
		conn.DataHandler <- data
	}
	return nil
}

// wsSeedBook fetches a REST depth snapshot and installs it as the local
// book for delta application. The snapshot revision arrives on the Sequence
// response header.
func (b *Bittrex) wsSeedBook(ctx context.Context, m *exchange.Market) error {
	depth, sequence, err := b.GetOrderbook(ctx, m.ID, bittrexWsBookDepth)
	if err != nil {
		return err
	}
	b.wsBookMu.Lock()
	b.wsBooks[m.ID] = &wsLocalBook{
		Pair:     m.Pair,
		Bids:     entriesToItems(depth.Bid),
		Asks:     entriesToItems(depth.Ask),
		Sequence: sequence,
	}
	b.wsBookMu.Unlock()
	return nil
}

// wsProcessOrderbook applies one delta set to the seeded local book and
// emits a copied snapshot. Deltas at or below the book revision are stale
// replays and dropped; a revision gap invalidates the book, surfacing an
// error so the caller can re-watch and re-seed.
func (b *Bittrex) wsProcessOrderbook(conn *stream.Websocket, payload []byte) error {
	var ev wsOrderbookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%s websocket: orderbook payload: %w", b.Name, err)
	}

	b.wsBookMu.Lock()
	book := b.wsBooks[ev.MarketSymbol]
	if book == nil {
		b.wsBookMu.Unlock()
		if b.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: orderbook delta for unseeded book %s",
				b.Name, ev.MarketSymbol)
		}
		return nil
	}
	if ev.Sequence <= book.Sequence {
		b.wsBookMu.Unlock()
		return nil
	}
	if ev.Sequence != book.Sequence+1 {
		delete(b.wsBooks, ev.MarketSymbol)
		b.wsBookMu.Unlock()
		b.wsTerminate(conn, bittrexWsBookChannel(ev.MarketSymbol))
		return fmt.Errorf("%s websocket: orderbook %s sequence gap: have %d, got %d",
			b.Name, ev.MarketSymbol, book.Sequence, ev.Sequence)
	}
	book.Bids = applyBookDeltas(book.Bids, ev.BidDeltas, true)
	book.Asks = applyBookDeltas(book.Asks, ev.AskDeltas, false)
	book.Sequence = ev.Sequence
	snapshot := &orderbook.Base{
		Pair:        book.Pair,
		Bids:        append([]orderbook.Item(nil), book.Bids...),
		Asks:        append([]orderbook.Item(nil), book.Asks...),
		Nonce:       book.Sequence,
		LastUpdated: time.Now().UTC(),
	}
	b.wsBookMu.Unlock()

	conn.DataHandler <- snapshot
	return nil
}

// applyBookDeltas merges depth deltas into a side. Zero quantity removes
// the price level.
func applyBookDeltas(levels []orderbook.Item, deltas []OrderbookEntryData, descending bool) []orderbook.Item {
	for i := range deltas {
		d := &deltas[i]
		idx := -1
		for j := range levels {
			if levels[j].Price == d.Rate {
				idx = j
				break
			}
		}
		switch {
		case d.Quantity == 0:
			if idx >= 0 {
				levels = append(levels[:idx], levels[idx+1:]...)
			}
		case idx >= 0:
			levels[idx].Amount = d.Quantity
		default:
			levels = append(levels, orderbook.Item{Price: d.Rate, Amount: d.Quantity})
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}

func (b *Bittrex) wsProcessCandle(conn *stream.Websocket, payload []byte) error {
	var ev wsCandleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%s websocket: candle payload: %w", b.Name, err)
	}
	pair, err := b.pairFromSymbol(ev.MarketSymbol)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", b.Name, err)
	}
	conn.DataHandler <- stream.KlineData{
		Exchange: b.Name,
		Pair:     pair,
		Interval: bittrexIntervalTokens[ev.Interval],
		Candle: kline.Candle{
			Time:   ev.Delta.StartsAt,
			Open:   ev.Delta.Open,
			High:   ev.Delta.High,
			Low:    ev.Delta.Low,
			Close:  ev.Delta.Close,
			Volume: ev.Delta.Volume,
		},
	}
	return nil
}

func (b *Bittrex) wsWatch(ctx context.Context, pair currency.Pair, channel, unified string, interval kline.Interval) error {
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:  unified,
		Pairs:    currency.Pairs{pair},
		Key:      channel,
		Interval: interval,
	})
}

// WatchTicker subscribes to top of book and last trade updates for one pair
func (b *Bittrex) WatchTicker(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchTicker", b.Features.WatchTicker); err != nil {
		return err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	return b.wsWatch(ctx, pair, bittrexWsChannel(bittrexWsTicker, m.ID), subscription.TickerChannel, 0)
}

// WatchOrderBook subscribes to depth deltas for one pair. The stream sends
// deltas only, so a REST snapshot seeds the local book first.
func (b *Bittrex) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchOrderBook", b.Features.WatchOrderBook); err != nil {
		return err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	if err := b.wsSeedBook(ctx, m); err != nil {
		return err
	}
	return b.wsWatch(ctx, pair, bittrexWsBookChannel(m.ID), subscription.OrderbookChannel, 0)
}

// WatchTrades subscribes to the public trade feed for one pair
func (b *Bittrex) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchTrades", b.Features.WatchTrades); err != nil {
		return err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	return b.wsWatch(ctx, pair, bittrexWsChannel(bittrexWsTrade, m.ID), subscription.AllTradesChannel, 0)
}

// WatchOHLCV subscribes to building candles for one pair at the given
// interval
func (b *Bittrex) WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error {
	if err := b.RequireFeature("WatchOHLCV", b.Features.WatchOHLCV); err != nil {
		return err
	}
	token, ok := bittrexTimeframes[interval]
	if !ok {
		return fmt.Errorf("%s %s: %w", b.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	channel := bittrexWsChannel(bittrexWsCandle, m.ID) + "_" + token
	return b.wsWatch(ctx, pair, channel, subscription.CandlesChannel, interval)
}

// WatchOrders is not offered without the authenticated hub negotiation
func (b *Bittrex) WatchOrders(_ context.Context) error {
	return b.RequireFeature("WatchOrders", b.Features.WatchOrders)
}

// WatchBalance is not offered without the authenticated hub negotiation
func (b *Bittrex) WatchBalance(_ context.Context) error {
	return b.RequireFeature("WatchBalance", b.Features.WatchBalance)
}
