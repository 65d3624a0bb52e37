package lbank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unifex/unifex/common/convert"
	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/stream"
	"github.com/unifex/unifex/exchanges/subscription"
	"github.com/unifex/unifex/exchanges/ticker"
	"github.com/unifex/unifex/exchanges/trade"
	"github.com/unifex/unifex/log"
)

// Stream channels. Subscription keys pair a channel with a venue pair name
// as CHANNEL:PAIR, matching the (type, pair) identity of inbound frames.
const (
	lbankWsTick  = "tick"
	lbankWsDepth = "depth"
	lbankWsTrade = "trade"
	lbankWsKbar  = "kbar"

	lbankWsDepthLevels = "100"
)

func lbankWsKey(channel, pair string) string {
	return channel + ":" + pair
}

// lbankWsTimeframes maps unified intervals to the kbar subscribe scale;
// the stream uses different tokens from kbar.do
var lbankWsTimeframes = map[kline.Interval]string{
	kline.OneMin:     "1min",
	kline.FiveMin:    "5min",
	kline.FifteenMin: "15min",
	kline.ThirtyMin:  "30min",
	kline.OneHour:    "1hr",
	kline.FourHour:   "4hr",
	kline.OneDay:     "day",
	kline.OneWeek:    "week",
	kline.OneMonth:   "month",
}

// lbankWsSlotIntervals inverts lbankWsTimeframes to resolve the slot field
// echoed on kbar frames
var lbankWsSlotIntervals = func() map[string]kline.Interval {
	m := make(map[string]kline.Interval, len(lbankWsTimeframes))
	for interval, slot := range lbankWsTimeframes {
		m[slot] = interval
	}
	return m
}()

// wsTransport returns the connected public stream transport, dialling it on
// first use. The venue drives the heartbeat with ping frames, so no
// client-side ping timer is installed.
func (l *Lbank) wsTransport(ctx context.Context) (*stream.Websocket, error) {
	return l.EnsureWebsocket(ctx, l.WebsocketURL, func() (*stream.Websocket, error) {
		return stream.New(&stream.Setup{
			Name:         l.Name,
			URL:          l.WebsocketURL,
			Handler:      l.wsHandleData,
			Subscriber:   l.wsSubscribe,
			Unsubscriber: l.wsUnsubscribe,
			DataHandler:  l.EventSink(),
			ProxyURL:     l.ProxyURL,
			Verbose:      l.Verbose,
		})
	})
}

// wsBuildRequest renders a subscribe or unsubscribe message for one key,
// attaching the channel extras the venue expects: a depth bucket on depth
// and a scale on kbar
func (l *Lbank) wsBuildRequest(action, key string, interval kline.Interval) (*wsRequest, error) {
	channel, pair, ok := strings.Cut(key, ":")
	if !ok {
		return nil, fmt.Errorf("%s websocket: malformed subscription key %q", l.Name, key)
	}
	req := &wsRequest{Action: action, Subscribe: channel, Pair: pair}
	switch channel {
	case lbankWsDepth:
		req.Depth = lbankWsDepthLevels
	case lbankWsKbar:
		scale, ok := lbankWsTimeframes[interval]
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", l.Name, interval.Short(), kline.ErrUnsupportedInterval)
		}
		req.Kbar = scale
	}
	return req, nil
}

func (l *Lbank) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	req, err := l.wsBuildRequest("subscribe", sub.Key, sub.Interval)
	if err != nil {
		return err
	}
	sub.QualifiedChannel = sub.Key
	return conn.SendJSONMessage(ctx, req)
}

func (l *Lbank) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	key := sub.QualifiedChannel
	if key == "" {
		key = sub.Key
	}
	req, err := l.wsBuildRequest("unsubscribe", key, sub.Interval)
	if err != nil {
		return err
	}
	return conn.SendJSONMessage(ctx, req)
}

// wsHandleData dispatches one inbound stream message. The venue heartbeats
// with ping frames that must be echoed back verbatim.
func (l *Lbank) wsHandleData(ctx context.Context, conn *stream.Websocket, msg []byte) error {
	var env wsInbound
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%s websocket: envelope: %w", l.Name, err)
	}

	if env.Action == "ping" && env.Ping != "" {
		return conn.SendRawMessage(ctx, websocket.TextMessage, msg)
	}

	switch env.Type {
	case lbankWsTick:
		return l.wsProcessTick(conn, &env)
	case lbankWsDepth:
		return l.wsProcessDepth(conn, &env)
	case lbankWsTrade:
		return l.wsProcessTrade(conn, &env)
	case lbankWsKbar:
		return l.wsProcessKbar(conn, &env)
	default:
		if l.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled message: %s", l.Name, string(msg))
		}
		return nil
	}
}

// wsTerminate drops the subscription carrying the feed so undecodable
// payloads stop arriving and are not replayed after reconnects
func (l *Lbank) wsTerminate(conn *stream.Websocket, channel, pair string) {
	conn.TerminateSubscription(&subscription.Subscription{Key: lbankWsKey(channel, pair)})
}

// wsTimestamp parses the frame datetime, falling back to now
func wsTimestamp(ts string) time.Time {
	if t, err := convert.ParseDatetime(ts); err == nil {
		return t
	}
	return time.Now().UTC()
}

func (l *Lbank) wsProcessTick(conn *stream.Websocket, env *wsInbound) error {
	var tick wsTick
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		l.wsTerminate(conn, env.Type, env.Pair)
		return fmt.Errorf("%s websocket: tick payload: %w", l.Name, err)
	}
	pair, err := l.pairFromSymbol(env.Pair)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", l.Name, err)
	}
	conn.DataHandler <- &ticker.Price{
		Pair:        pair,
		Last:        tick.Latest,
		High:        tick.High,
		Low:         tick.Low,
		Volume:      tick.Volume,
		QuoteVolume: tick.Turnover,
		Percentage:  tick.Change,
		LastUpdated: wsTimestamp(env.TS),
	}
	return nil
}

func (l *Lbank) wsProcessDepth(conn *stream.Websocket, env *wsInbound) error {
	var depth wsDepth
	if err := json.Unmarshal(env.Depth, &depth); err != nil {
		l.wsTerminate(conn, env.Type, env.Pair)
		return fmt.Errorf("%s websocket: depth payload: %w", l.Name, err)
	}
	pair, err := l.pairFromSymbol(env.Pair)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", l.Name, err)
	}
	conn.DataHandler <- &orderbook.Base{
		Pair:        pair,
		Bids:        floatLevelsToItems(depth.Bids),
		Asks:        floatLevelsToItems(depth.Asks),
		LastUpdated: wsTimestamp(env.TS),
	}
	return nil
}

// wsProcessTrade emits one public trade. The frame carries no trade id;
// volume is the base quantity and amount the quote turnover.
func (l *Lbank) wsProcessTrade(conn *stream.Websocket, env *wsInbound) error {
	var t wsTrade
	if err := json.Unmarshal(env.Trade, &t); err != nil {
		l.wsTerminate(conn, env.Type, env.Pair)
		return fmt.Errorf("%s websocket: trade payload: %w", l.Name, err)
	}
	pair, err := l.pairFromSymbol(env.Pair)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", l.Name, err)
	}
	ts := t.TS
	if ts == "" {
		ts = env.TS
	}
	data := trade.Data{
		Pair:      pair,
		Price:     t.Price,
		Amount:    t.Volume,
		Cost:      t.Amount,
		Side:      lbankSide(t.Direction),
		Timestamp: wsTimestamp(ts),
	}
	data.DeriveCost()
	conn.DataHandler <- data
	return nil
}

func (l *Lbank) wsProcessKbar(conn *stream.Websocket, env *wsInbound) error {
	var k wsKbar
	if err := json.Unmarshal(env.Kbar, &k); err != nil {
		l.wsTerminate(conn, env.Type, env.Pair)
		return fmt.Errorf("%s websocket: kbar payload: %w", l.Name, err)
	}
	pair, err := l.pairFromSymbol(env.Pair)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", l.Name, err)
	}
	candle := kline.Candle{
		Open:   k.Open,
		High:   k.High,
		Low:    k.Low,
		Close:  k.Close,
		Volume: k.Volume,
	}
	if t, err := convert.ParseDatetime(k.Time); err == nil {
		candle.Time = t
	}
	conn.DataHandler <- stream.KlineData{
		Exchange: l.Name,
		Pair:     pair,
		Interval: lbankWsSlotIntervals[k.Slot],
		Candle:   candle,
	}
	return nil
}

func (l *Lbank) wsWatch(ctx context.Context, pair currency.Pair, channel, unified string, interval kline.Interval) error {
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := l.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:  unified,
		Pairs:    currency.Pairs{pair},
		Key:      lbankWsKey(channel, m.ID),
		Interval: interval,
	})
}

// WatchTicker subscribes to rolling statistics for one pair
func (l *Lbank) WatchTicker(ctx context.Context, pair currency.Pair) error {
	if err := l.RequireFeature("WatchTicker", l.Features.WatchTicker); err != nil {
		return err
	}
	return l.wsWatch(ctx, pair, lbankWsTick, subscription.TickerChannel, 0)
}

// WatchOrderBook subscribes to book snapshots for one pair
func (l *Lbank) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := l.RequireFeature("WatchOrderBook", l.Features.WatchOrderBook); err != nil {
		return err
	}
	return l.wsWatch(ctx, pair, lbankWsDepth, subscription.OrderbookChannel, 0)
}

// WatchTrades subscribes to the public trade feed for one pair
func (l *Lbank) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := l.RequireFeature("WatchTrades", l.Features.WatchTrades); err != nil {
		return err
	}
	return l.wsWatch(ctx, pair, lbankWsTrade, subscription.AllTradesChannel, 0)
}

// WatchOHLCV subscribes to candles for one pair at the given interval
func (l *Lbank) WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error {
	if err := l.RequireFeature("WatchOHLCV", l.Features.WatchOHLCV); err != nil {
		return err
	}
	if _, ok := lbankWsTimeframes[interval]; !ok {
		return fmt.Errorf("%s %s: %w", l.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	return l.wsWatch(ctx, pair, lbankWsKbar, subscription.CandlesChannel, interval)
}

// WatchOrders is not offered on the public stream endpoint
func (l *Lbank) WatchOrders(_ context.Context) error {
	return l.RequireFeature("WatchOrders", l.Features.WatchOrders)
}

// WatchBalance is not offered on the public stream endpoint
func (l *Lbank) WatchBalance(_ context.Context) error {
	return l.RequireFeature("WatchBalance", l.Features.WatchBalance)
}
