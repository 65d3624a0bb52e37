package pionex

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
	"github.com/unifex/unifex/exchanges/trade"
	"github.com/unifex/unifex/log"
)

// Stream topics. Subscription keys pair a topic with a symbol as
// TOPIC:SYMBOL so one registry entry exists per feed.
const (
	pionexWsTopicTrade = "TRADE"
	pionexWsTopicDepth = "DEPTH"
)

func pionexWsKey(topic, symbol string) string {
	return topic + ":" + symbol
}

// wsTransport returns the connected public stream transport, dialling it on
// first use. The venue drives the heartbeat with PING operations, so no
// client-side ping timer is installed.
func (p *Pionex) wsTransport(ctx context.Context) (*stream.Websocket, error) {
	return p.EnsureWebsocket(ctx, p.WebsocketURL, func() (*stream.Websocket, error) {
		return stream.New(&stream.Setup{
			Name:         p.Name,
			URL:          p.WebsocketURL,
			Handler:      p.wsHandleData,
			Subscriber:   p.wsSubscribe,
			Unsubscriber: p.wsUnsubscribe,
			DataHandler:  p.EventSink(),
			ProxyURL:     p.ProxyURL,
			Verbose:      p.Verbose,
		})
	})
}

func (p *Pionex) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	topic, symbol, ok := strings.Cut(sub.Key, ":")
	if !ok {
		return fmt.Errorf("%s websocket: malformed subscription key %q", p.Name, sub.Key)
	}
	sub.QualifiedChannel = sub.Key
	return conn.SendJSONMessage(ctx, wsRequest{
		Op:     "SUBSCRIBE",
		Topic:  topic,
		Symbol: symbol,
	})
}

func (p *Pionex) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	key := sub.QualifiedChannel
	if key == "" {
		key = sub.Key
	}
	topic, symbol, ok := strings.Cut(key, ":")
	if !ok {
		return fmt.Errorf("%s websocket: malformed subscription key %q", p.Name, key)
	}
	return conn.SendJSONMessage(ctx, wsRequest{
		Op:     "UNSUBSCRIBE",
		Topic:  topic,
		Symbol: symbol,
	})
}

// wsHandleData dispatches one inbound stream message. Server PING
// operations are answered in place with a PONG echoing the timestamp;
// SUBSCRIBED and UNSUBSCRIBED acknowledgements are dropped.
func (p *Pionex) wsHandleData(ctx context.Context, conn *stream.Websocket, msg []byte) error {
	var env wsInbound
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%s websocket: envelope: %w", p.Name, err)
	}

	switch env.Op {
	case "PING":
		return conn.SendJSONMessage(ctx, wsRequest{Op: "PONG", Timestamp: env.Timestamp})
	case "SUBSCRIBED", "UNSUBSCRIBED":
		return nil
	case "ERROR":
		log.Warnf(log.WebsocketMgr, "%s websocket: server error: %s", p.Name, string(msg))
		return nil
	}

	switch env.Topic {
	case pionexWsTopicTrade:
		return p.wsProcessTrades(conn, &env)
	case pionexWsTopicDepth:
		return p.wsProcessDepth(conn, &env)
	default:
		if p.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled message: %s", p.Name, string(msg))
		}
		return nil
	}
}

// wsTerminate drops the subscription carrying the feed so undecodable
// payloads stop arriving and are not replayed after reconnects
func (p *Pionex) wsTerminate(conn *stream.Websocket, topic, symbol string) {
	conn.TerminateSubscription(&subscription.Subscription{Key: pionexWsKey(topic, symbol)})
}

func (p *Pionex) wsProcessTrades(conn *stream.Websocket, env *wsInbound) error {
	var rows []wsTradeRow
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		p.wsTerminate(conn, env.Topic, env.Symbol)
		return fmt.Errorf("%s websocket: trade payload: %w", p.Name, err)
	}
	pair, err := p.pairFromSymbol(env.Symbol)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", p.Name, err)
	}
	for i := range rows {
		price, err := convert.FloatFromString(rows[i].Price)
		if err != nil {
			continue
		}
		amount, err := convert.FloatFromString(rows[i].Size)
		if err != nil {
			continue
		}
		side := order.Sell
		if strings.EqualFold(rows[i].Side, "BUY") {
			side = order.Buy
		}
		ts := timeFromMS(rows[i].Timestamp)
		if ts.IsZero() {
			ts = timeFromMS(env.Timestamp)
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].TradeID, 10),
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

func (p *Pionex) wsProcessDepth(conn *stream.Websocket, env *wsInbound) error {
	var tick wsDepthData
	if err := json.Unmarshal(env.Data, &tick); err != nil {
		p.wsTerminate(conn, env.Topic, env.Symbol)
		return fmt.Errorf("%s websocket: depth payload: %w", p.Name, err)
	}
	pair, err := p.pairFromSymbol(env.Symbol)
	if err != nil {
		return fmt.Errorf("%s websocket: %w", p.Name, err)
	}
	book := orderbook.Base{
		Pair:        pair,
		Bids:        levelsToItems(tick.Bids),
		Asks:        levelsToItems(tick.Asks),
		LastUpdated: timeFromMS(tick.UpdateTime),
	}
	if book.LastUpdated.IsZero() {
		book.LastUpdated = timeFromMS(env.Timestamp)
	}
	if book.LastUpdated.IsZero() {
		book.LastUpdated = time.Now().UTC()
	}
	conn.DataHandler <- &book
	return nil
}

func (p *Pionex) wsWatch(ctx context.Context, pair currency.Pair, topic, channel string) error {
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := p.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: channel,
		Pairs:   currency.Pairs{pair},
		Key:     pionexWsKey(topic, m.ID),
	})
}

// WatchTrades subscribes to the public trade feed for one pair
func (p *Pionex) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := p.RequireFeature("WatchTrades", p.Features.WatchTrades); err != nil {
		return err
	}
	return p.wsWatch(ctx, pair, pionexWsTopicTrade, subscription.AllTradesChannel)
}

// WatchOrderBook subscribes to book snapshots for one pair
func (p *Pionex) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := p.RequireFeature("WatchOrderBook", p.Features.WatchOrderBook); err != nil {
		return err
	}
	return p.wsWatch(ctx, pair, pionexWsTopicDepth, subscription.OrderbookChannel)
}

// WatchTicker is not offered on the public stream endpoint
func (p *Pionex) WatchTicker(_ context.Context, _ currency.Pair) error {
	return p.RequireFeature("WatchTicker", p.Features.WatchTicker)
}

// WatchOHLCV is not offered on the public stream endpoint
func (p *Pionex) WatchOHLCV(_ context.Context, _ currency.Pair, _ kline.Interval) error {
	return p.RequireFeature("WatchOHLCV", p.Features.WatchOHLCV)
}

// WatchOrders is not offered by the venue stream
func (p *Pionex) WatchOrders(_ context.Context) error {
	return p.RequireFeature("WatchOrders", p.Features.WatchOrders)
}

// WatchBalance is not offered by the venue stream
func (p *Pionex) WatchBalance(_ context.Context) error {
	return p.RequireFeature("WatchBalance", p.Features.WatchBalance)
}
