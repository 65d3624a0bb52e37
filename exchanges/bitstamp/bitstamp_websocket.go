package bitstamp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unifex/unifex/currency"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/order"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/stream"
	"github.com/unifex/unifex/exchanges/subscription"
	"github.com/unifex/unifex/exchanges/trade"
	"github.com/unifex/unifex/log"
)

const (
	bitstampWsTradesChannel    = "live_trades"
	bitstampWsOrderbookChannel = "order_book"
	bitstampWsMyOrdersChannel  = "private-my_orders"

	bitstampWsPingDelay    = 15 * time.Second
	bitstampWsPongDeadline = 45 * time.Second
)

// wsTransport returns the connected public/private stream transport,
// dialling it on first use. Bitstamp multiplexes public and private channels
// over one socket.
func (b *Bitstamp) wsTransport(ctx context.Context) (*stream.Websocket, error) {
	return b.EnsureWebsocket(ctx, b.WebsocketURL, func() (*stream.Websocket, error) {
		return stream.New(&stream.Setup{
			Name:       b.Name,
			URL:        b.WebsocketURL,
			Handler:    b.wsHandleData,
			Subscriber: b.wsSubscribe,
			Unsubscriber: b.wsUnsubscribe,
			PingHandler: stream.PingHandler{
				Delay:        bitstampWsPingDelay,
				PongDeadline: bitstampWsPongDeadline,
			},
			DataHandler: b.EventSink(),
			ProxyURL:    b.ProxyURL,
			Verbose:     b.Verbose,
		})
	})
}

// wsSubscribe transmits a bts:subscribe message. Private channels append the
// account id to the channel name and carry the websockets token.
func (b *Bitstamp) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	data := websocketAuth{Channel: sub.Key}
	if sub.Authenticated {
		token, err := b.wsAuthToken(ctx)
		if err != nil {
			return err
		}
		data.Channel = sub.Key + "-" + strconv.FormatInt(token.UserID, 10)
		data.Auth = token.Token
	}
	sub.QualifiedChannel = data.Channel
	return conn.SendJSONMessage(ctx, map[string]interface{}{
		"event": "bts:subscribe",
		"data":  data,
	})
}

func (b *Bitstamp) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	channel := sub.QualifiedChannel
	if channel == "" {
		channel = sub.Key
	}
	return conn.SendJSONMessage(ctx, map[string]interface{}{
		"event": "bts:unsubscribe",
		"data":  websocketAuth{Channel: channel},
	})
}

// wsAuthToken returns the cached websockets token, refreshing it when the
// validity window has lapsed. The cache is dropped on CloseAllWs.
func (b *Bitstamp) wsAuthToken(ctx context.Context) (*WebsocketToken, error) {
	b.wsTokenMu.Lock()
	defer b.wsTokenMu.Unlock()
	if b.wsToken != nil && time.Now().Before(b.wsTokenExpires) {
		return b.wsToken, nil
	}
	token, err := b.GetWebsocketToken(ctx)
	if err != nil {
		return nil, err
	}
	b.wsToken = token
	b.wsTokenExpires = time.Now().Add(time.Duration(token.ValidSec) * time.Second)
	return token, nil
}

// CloseAllWs shuts every transport and drops the cached websockets token
func (b *Bitstamp) CloseAllWs() error {
	err := b.Base.CloseAllWs()
	b.wsTokenMu.Lock()
	b.wsToken = nil
	b.wsTokenMu.Unlock()
	return err
}

// wsHandleData dispatches one inbound stream message
func (b *Bitstamp) wsHandleData(_ context.Context, conn *stream.Websocket, msg []byte) error {
	var env websocketEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%s websocket: envelope: %w", b.Name, err)
	}

	switch env.Event {
	case "bts:subscription_succeeded", "bts:unsubscription_succeeded", "bts:heartbeat":
		return nil
	case "bts:request_reconnect":
		// The venue closes the socket after this notice; the transport's
		// reconnect path restores every subscription.
		log.Warnf(log.WebsocketMgr, "%s websocket: venue requested reconnect", b.Name)
		return nil
	case "bts:error":
		return fmt.Errorf("%s websocket: venue error: %s", b.Name, string(env.Data))
	case "trade":
		return b.wsProcessTrade(conn, &env)
	case "data":
		return b.wsProcessOrderbook(conn, &env)
	case "order_created", "order_changed", "order_deleted":
		return b.wsProcessOrder(conn, &env)
	default:
		if b.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled event %q", b.Name, env.Event)
		}
		return nil
	}
}

func (b *Bitstamp) wsProcessTrade(conn *stream.Websocket, env *websocketEnvelope) error {
	var t websocketTrade
	if err := json.Unmarshal(env.Data, &t); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: trade payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel)
	if err != nil {
		return err
	}
	side := order.Buy
	if t.Type == 1 {
		side = order.Sell
	}
	data := trade.Data{
		ID:        strconv.FormatInt(t.ID, 10),
		Pair:      pair,
		Price:     t.Price,
		Amount:    t.Amount,
		Side:      side,
		Timestamp: time.Unix(t.Timestamp, 0).UTC(),
	}
	data.DeriveCost()
	conn.DataHandler <- data
	return nil
}

func (b *Bitstamp) wsProcessOrderbook(conn *stream.Websocket, env *websocketEnvelope) error {
	var book websocketOrderBook
	if err := json.Unmarshal(env.Data, &book); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: orderbook payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel)
	if err != nil {
		return err
	}
	base := orderbook.Base{
		Pair:        pair,
		Bids:        parseBookRows(book.Bids),
		Asks:        parseBookRows(book.Asks),
		LastUpdated: time.Unix(book.Timestamp, 0).UTC(),
	}
	conn.DataHandler <- &base
	return nil
}

func (b *Bitstamp) wsProcessOrder(conn *stream.Websocket, env *websocketEnvelope) error {
	var o websocketOrder
	if err := json.Unmarshal(env.Data, &o); err != nil {
		b.wsTerminate(conn, env.Channel)
		return fmt.Errorf("%s websocket: order payload: %w", b.Name, err)
	}
	pair, err := b.wsPairFromChannel(env.Channel)
	if err != nil {
		return err
	}
	status := order.New
	if env.Event == "order_deleted" {
		status = order.Cancelled
	}
	side := order.Buy
	if o.OrderType == 1 {
		side = order.Sell
	}
	id := o.IDStr
	if id == "" {
		id = strconv.FormatInt(o.ID, 10)
	}
	detail := order.Detail{
		ID:            id,
		ClientOrderID: o.ClientOrderID,
		Pair:          pair,
		Side:          side,
		Price:         o.Price,
		Amount:        o.Amount,
		Status:        status,
	}
	if ts, err := strconv.ParseInt(o.Microtimestamp, 10, 64); err == nil {
		detail.Timestamp = time.UnixMicro(ts).UTC()
	}
	conn.DataHandler <- &detail
	return nil
}

// wsTerminate drops the subscription carrying channel so undecodable
// payloads stop arriving and are not replayed after reconnects
func (b *Bitstamp) wsTerminate(conn *stream.Websocket, channel string) {
	key := channel
	if id := strings.LastIndex(key, "-"); id > 0 && strings.HasPrefix(key, bitstampWsMyOrdersChannel) {
		key = key[:id]
	}
	conn.TerminateSubscription(&subscription.Subscription{Key: key})
}

// wsPairFromChannel extracts the market id suffix of a channel name and
// resolves it against the loaded markets
func (b *Bitstamp) wsPairFromChannel(channel string) (currency.Pair, error) {
	idx := strings.LastIndex(channel, "_")
	if idx == -1 || idx+1 >= len(channel) {
		return currency.EMPTYPAIR, fmt.Errorf("%s websocket: channel %q has no market suffix", b.Name, channel)
	}
	id := channel[idx+1:]
	if dash := strings.Index(id, "-"); dash != -1 {
		id = id[:dash]
	}
	m, err := b.MarketFromID(id)
	if err != nil {
		return currency.EMPTYPAIR, err
	}
	return m.Pair, nil
}

// WatchTrades subscribes to the live trade feed for one pair
func (b *Bitstamp) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchTrades", b.Features.WatchTrades); err != nil {
		return err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.AllTradesChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     bitstampWsTradesChannel + "_" + m.ID,
	})
}

// WatchOrderBook subscribes to book snapshots for one pair
func (b *Bitstamp) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("WatchOrderBook", b.Features.WatchOrderBook); err != nil {
		return err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.OrderbookChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     bitstampWsOrderbookChannel + "_" + m.ID,
	})
}

// WatchOrders subscribes to the authenticated order feed. Bitstamp scopes
// the private channel per pair.
func (b *Bitstamp) WatchOrders(ctx context.Context) error {
	if err := b.RequireFeature("WatchOrders", b.Features.WatchOrders); err != nil {
		return err
	}
	if err := b.API.Validate(false, false); err != nil {
		return fmt.Errorf("%s %w: %v", b.Name, exchange.ErrAuthentication, err)
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return err
	}
	conn, err := b.wsTransport(ctx)
	if err != nil {
		return err
	}
	subs := make([]*subscription.Subscription, 0, len(b.Symbols()))
	for _, symbol := range b.Symbols() {
		m, err := b.MarketFromSymbol(symbol)
		if err != nil {
			continue
		}
		subs = append(subs, &subscription.Subscription{
			Channel:       subscription.MyOrdersChannel,
			Pairs:         currency.Pairs{m.Pair},
			Key:           bitstampWsMyOrdersChannel + "_" + m.ID,
			Authenticated: true,
		})
	}
	return conn.Subscribe(ctx, subs...)
}

// WatchTicker is not offered by the venue stream
func (b *Bitstamp) WatchTicker(_ context.Context, _ currency.Pair) error {
	return b.RequireFeature("WatchTicker", b.Features.WatchTicker)
}

// WatchOHLCV is not offered by the venue stream
func (b *Bitstamp) WatchOHLCV(_ context.Context, _ currency.Pair, _ kline.Interval) error {
	return b.RequireFeature("WatchOHLCV", b.Features.WatchOHLCV)
}

// WatchBalance is not offered by the venue stream
func (b *Bitstamp) WatchBalance(_ context.Context) error {
	return b.RequireFeature("WatchBalance", b.Features.WatchBalance)
}
