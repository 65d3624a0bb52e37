package bitrue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
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

// Channel names follow market_{symbol}_{family}. The trade feed marker is
// checked before the plain ticker marker since it embeds it.
const (
	bitrueWsDepthSuffix  = "_depth_step0"
	bitrueWsTradeSuffix  = "_trade_ticker"
	bitrueWsTickerSuffix = "_ticker"
	bitrueWsKlineMarker  = "_kline_"
)

// wsTransport returns the connected market stream transport, dialling it on
// first use. Frames arrive gzip-compressed as binary messages and are
// inflated by the transport before dispatch. The venue drives the heartbeat
// with JSON pings, so no client-side ping timer is installed.
func (b *Bitrue) wsTransport(ctx context.Context) (*stream.Websocket, error) {
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

func (b *Bitrue) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	sub.QualifiedChannel = sub.Key
	return conn.SendJSONMessage(ctx, wsRequest{
		Event:  "sub",
		Params: wsParams{Channel: sub.Key, CbID: sub.Key},
	})
}

func (b *Bitrue) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	channel := sub.QualifiedChannel
	if channel == "" {
		channel = sub.Key
	}
	return conn.SendJSONMessage(ctx, wsRequest{
		Event:  "unsub",
		Params: wsParams{Channel: channel, CbID: channel},
	})
}

// wsHandleData dispatches one inbound stream message. Server pings
// {"ping":ts} are answered in place with {"pong":ts}.
func (b *Bitrue) wsHandleData(ctx context.Context, conn *stream.Websocket, msg []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%s websocket: envelope: %w", b.Name, err)
	}

	if env.Ping != 0 {
		return conn.SendJSONMessage(ctx, wsPong{Pong: env.Ping})
	}
	if env.EventRep != "" {
		if env.Status != "" && env.Status != "ok" {
			log.Warnf(log.WebsocketMgr, "%s websocket: %s %s failed: %s",
				b.Name, env.EventRep, env.Channel, env.Status)
		}
		return nil
	}
	if env.Channel == "" {
		if b.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled message: %s", b.Name, string(msg))
		}
		return nil
	}

	switch {
	case strings.Contains(env.Channel, bitrueWsTradeSuffix):
		return b.wsProcessTrades(conn, &env)
	case strings.Contains(env.Channel, bitrueWsDepthSuffix):
		return b.wsProcessDepth(conn, &env)
	case strings.Contains(env.Channel, bitrueWsKlineMarker):
		return b.wsProcessKline(conn, &env)
	case strings.HasSuffix(env.Channel, bitrueWsTickerSuffix):
		return b.wsProcessTicker(conn, &env)
	default:
		if b.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled channel %q", b.Name, env.Channel)
		}
		return nil
	}
}

// wsTerminate drops the subscription carrying channel so undecodable
// payloads stop arriving and are not replayed after reconnects
func (b *Bitrue) wsTerminate(conn *stream.Websocket, channel string) {
	conn.TerminateSubscription(&subscription.Subscription{Key: channel})
}

// wsPairFromChannel resolves the lowercase symbol embedded between the
// market_ prefix and marker against the alias registry
func (b *Bitrue) wsPairFromChannel(channel, marker string) (currency.Pair, error) {
	id := strings.TrimPrefix(channel, "market_")
	if idx := strings.Index(id, marker); idx != -1 {
		id = id[:idx]
	}
	m, err := b.MarketFromID(id)
	if err != nil {
		return currency.EMPTYPAIR, fmt.Errorf("%s websocket: channel %q: %w", b.Name, channel, err)
	}
	return m.Pair, nil
}

// wsProcessDepth emits a full book snapshot. The venue names the bid side
// "buys".
func (b *Bitrue) wsProcessDepth(conn *stream.Websocket, env *wsEnvelope) error {
	var tick wsDepthTick
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: depth payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel, bitrueWsDepthSuffix)
	if err != nil {
		return err
	}
	book := orderbook.Base{
		Pair:        pair,
		Bids:        wsLevels(tick.Buys),
		Asks:        wsLevels(tick.Asks),
		LastUpdated: timeFromMS(env.Ts),
	}
	if book.LastUpdated.IsZero() {
		book.LastUpdated = time.Now().UTC()
	}
	conn.DataHandler <- &book
	return nil
}

func wsLevels(rows [][]interface{}) []orderbook.Item {
	items := make([]orderbook.Item, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := convert.FloatFromScalar(row[0])
		if err != nil {
			continue
		}
		amount, err := convert.FloatFromScalar(row[1])
		if err != nil {
			continue
		}
		items = append(items, orderbook.Item{Price: price, Amount: amount})
	}
	return items
}

// wsProcessTrades emits public trades. The venue flags the maker side only,
// and a buyer-maker print reports as a sell.
func (b *Bitrue) wsProcessTrades(conn *stream.Websocket, env *wsEnvelope) error {
	var tick wsTradeTick
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: trade payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel, bitrueWsTradeSuffix)
	if err != nil {
		return err
	}
	for i := range tick.Data {
		row := &tick.Data[i]
		price, err := convert.FloatFromScalar(row.Price)
		if err != nil {
			continue
		}
		amount, err := convert.FloatFromScalar(row.Amount)
		if err != nil {
			if amount, err = convert.FloatFromScalar(row.Vol); err != nil {
				continue
			}
		}
		side := order.Buy
		if row.IsBuyerMaker {
			side = order.Sell
		}
		ts := timeFromMS(row.Ts)
		if ts.IsZero() {
			ts = timeFromMS(env.Ts)
		}
		data := trade.Data{
			ID:        strconv.FormatInt(row.ID, 10),
			Pair:      pair,
			Price:     price,
			Amount:    amount,
			Side:      side,
			Timestamp: ts,
		}
		data.DeriveCost()
		conn.DataHandler <- data
	}
	return nil
}

func (b *Bitrue) wsProcessTicker(conn *stream.Websocket, env *wsEnvelope) error {
	var tick wsTickerTick
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: ticker payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel, bitrueWsTickerSuffix)
	if err != nil {
		return err
	}
	last, _ := convert.FloatFromScalar(tick.Close)
	open, _ := convert.FloatFromScalar(tick.Open)
	high, _ := convert.FloatFromScalar(tick.High)
	low, _ := convert.FloatFromScalar(tick.Low)
	volume, _ := convert.FloatFromScalar(tick.Amount)
	quoteVolume, _ := convert.FloatFromScalar(tick.Vol)

	price := &ticker.Price{
		Pair:        pair,
		Last:        last,
		Open:        open,
		High:        high,
		Low:         low,
		Volume:      volume,
		QuoteVolume: quoteVolume,
		LastUpdated: timeFromMS(env.Ts),
		Info:        tick,
	}
	if price.LastUpdated.IsZero() {
		price.LastUpdated = time.Now().UTC()
	}
	price.DeriveChange()
	conn.DataHandler <- price
	return nil
}

func (b *Bitrue) wsProcessKline(conn *stream.Websocket, env *wsEnvelope) error {
	var tick wsKlineTick
	if err := json.Unmarshal(env.Tick, &tick); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: kline payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel, bitrueWsKlineMarker)
	if err != nil {
		return err
	}
	scale := env.Channel[strings.Index(env.Channel, bitrueWsKlineMarker)+len(bitrueWsKlineMarker):]
	interval, err := bitrueIntervalFromScale(scale)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", b.Name, err)
	}

	candle := kline.Candle{}
	if open, err := convert.FloatFromScalar(tick.O); err == nil {
		candle.Open = open
	}
	if high, err := convert.FloatFromScalar(tick.H); err == nil {
		candle.High = high
	}
	if low, err := convert.FloatFromScalar(tick.L); err == nil {
		candle.Low = low
	}
	if closePrice, err := convert.FloatFromScalar(tick.C); err == nil {
		candle.Close = closePrice
	}
	if volume, err := convert.FloatFromScalar(tick.V); err == nil {
		candle.Volume = volume
	}
	if sec, err := convert.FloatFromScalar(tick.I); err == nil && sec > 0 {
		candle.Time = time.Unix(int64(sec), 0).UTC()
	} else {
		candle.Time = timeFromMS(env.Ts)
	}

	conn.DataHandler <- stream.KlineData{
		Exchange: b.Name,
		Pair:     pair,
		Interval: interval,
		Candle:   candle,
	}
	return nil
}

func bitrueIntervalFromScale(scale string) (kline.Interval, error) {
	for interval, s := range bitrueTimeframes {
		if s == scale {
			return interval, nil
		}
	}
	return 0, fmt.Errorf("scale %q: %w", scale, kline.ErrUnsupportedInterval)
}

func (b *Bitrue) wsMarketChannel(ctx context.Context, pair currency.Pair, suffix string) (string, error) {
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return "", err
	}
	return "market_" + strings.ToLower(m.ID) + suffix, nil
}

// WatchTicker subscribes to 24h rolling statistics for one pair
func (b *Bitrue) WatchTicker(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchTicker", b.Features.WatchTicker); err != nil {
		return err
	}
	channel, err := b.wsMarketChannel(ctx, pair, bitrueWsTickerSuffix)
	if err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.TickerChannel,
		Pairs:   currency.Pairs{pair},
		Key:     channel,
	})
}

// WatchOrderBook subscribes to book snapshots for one pair
func (b *Bitrue) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchOrderBook", b.Features.WatchOrderBook); err != nil {
		return err
	}
	channel, err := b.wsMarketChannel(ctx, pair, bitrueWsDepthSuffix)
	if err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.OrderbookChannel,
		Pairs:   currency.Pairs{pair},
		Key:     channel,
	})
}

// WatchTrades subscribes to the public trade feed for one pair
func (b *Bitrue) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchTrades", b.Features.WatchTrades); err != nil {
		return err
	}
	channel, err := b.wsMarketChannel(ctx, pair, bitrueWsTradeSuffix)
	if err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.AllTradesChannel,
		Pairs:   currency.Pairs{pair},
		Key:     channel,
	})
}

// WatchOHLCV subscribes to streamed candles for one pair
func (b *Bitrue) WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error {
	if err := b.RequireFeature("WatchOHLCV", b.Features.WatchOHLCV); err != nil {
		return err
	}
	scale, ok := bitrueTimeframes[interval]
	if !ok {
		return fmt.Errorf("%s %s: %w", b.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	channel, err := b.wsMarketChannel(ctx, pair, bitrueWsKlineMarker+scale)
	if err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.CandlesChannel,
		Pairs:   currency.Pairs{pair},
		Key:     channel,
	})
}

// WatchOrders is not offered by the venue stream
func (b *Bitrue) WatchOrders(_ context.Context) error {
	return b.RequireFeature("WatchOrders", b.Features.WatchOrders)
}

// WatchBalance is not offered by the venue stream
func (b *Bitrue) WatchBalance(_ context.Context) error {
	return b.RequireFeature("WatchBalance", b.Features.WatchBalance)
}
