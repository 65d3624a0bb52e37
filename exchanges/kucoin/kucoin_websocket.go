package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unifex/unifex/common/convert"
	"github.com/unifex/unifex/currency"
	exchange "github.com/unifex/unifex/exchanges"
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
	kucoinWsTickerTopic  = "/market/ticker:"
	kucoinWsDepthTopic   = "/spotMarket/level2Depth50:"
	kucoinWsMatchTopic   = "/market/match:"
	kucoinWsCandlesTopic = "/market/candles:"
	kucoinWsOrdersTopic  = "/spotMarket/tradeOrders"
	kucoinWsBalanceTopic = "/account/balance"

	kucoinWsPublicKey  = "public"
	kucoinWsPrivateKey = "private"

	// kucoinWsPingDelay stays well inside the 60 second idle window the
	// instance servers advertise
	kucoinWsPingDelay = 18 * time.Second
)

var kucoinWsPingMessage = []byte(`{"id":"keepalive","type":"ping"}`)

// wsTransport returns the public or private stream transport, dialling it on
// first use. The dial URL is rebuilt before every connect because the bullet
// token is single use: the endpoint and token are fetched fresh each time.
func (k *Kucoin) wsTransport(ctx context.Context, private bool) (*stream.Websocket, error) {
	key := kucoinWsPublicKey
	if private {
		key = kucoinWsPrivateKey
	}
	return k.EnsureWebsocket(ctx, key, func() (*stream.Websocket, error) {
		return stream.New(&stream.Setup{
			Name: k.Name,
			URLFunc: func(ctx context.Context) (string, error) {
				return k.wsConnectURL(ctx, private)
			},
			Handler:      k.wsHandleData,
			Subscriber:   k.wsSubscribe,
			Unsubscriber: k.wsUnsubscribe,
			PingHandler: stream.PingHandler{
				Message: kucoinWsPingMessage,
				Delay:   kucoinWsPingDelay,
			},
			DataHandler: k.EventSink(),
			ProxyURL:    k.ProxyURL,
			Verbose:     k.Verbose,
		})
	})
}

// wsConnectURL requests a bullet token and builds the dial URL from the
// first advertised instance server
func (k *Kucoin) wsConnectURL(ctx context.Context, private bool) (string, error) {
	bullet, err := k.PostBullet(ctx, private)
	if err != nil {
		return "", err
	}
	if bullet.Token == "" || len(bullet.InstanceServers) == 0 {
		return "", fmt.Errorf("%s websocket: bullet response missing token or servers", k.Name)
	}
	connectID := strconv.FormatInt(time.Now().UnixNano(), 10)
	return bullet.InstanceServers[0].Endpoint + "?token=" + bullet.Token + "&connectId=" + connectID, nil
}

// wsSubscribe transmits a subscribe frame for one topic
func (k *Kucoin) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	sub.QualifiedChannel = sub.Key
	return conn.SendJSONMessage(ctx, wsSubscribeRequest{
		ID:             strconv.FormatInt(conn.GenerateMessageID(false), 10),
		Type:           "subscribe",
		Topic:          sub.Key,
		PrivateChannel: sub.Authenticated,
		Response:       true,
	})
}

func (k *Kucoin) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	topic := sub.QualifiedChannel
	if topic == "" {
		topic = sub.Key
	}
	return conn.SendJSONMessage(ctx, wsSubscribeRequest{
		ID:             strconv.FormatInt(conn.GenerateMessageID(false), 10),
		Type:           "unsubscribe",
		Topic:          topic,
		PrivateChannel: sub.Authenticated,
		Response:       true,
	})
}

// wsHandleData dispatches one inbound stream message
func (k *Kucoin) wsHandleData(_ context.Context, conn *stream.Websocket, msg []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%s websocket: envelope: %w", k.Name, err)
	}

	switch env.Type {
	case "welcome", "ack", "pong":
		return nil
	case "error":
		log.Errorf(log.WebsocketMgr, "%s websocket: venue error %d: %s",
			k.Name, env.Code, string(env.Data))
		return nil
	case "message":
	default:
		if k.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled frame type %q", k.Name, env.Type)
		}
		return nil
	}

	switch {
	case strings.HasPrefix(env.Topic, kucoinWsTickerTopic):
		return k.wsProcessTicker(conn, &env)
	case strings.HasPrefix(env.Topic, kucoinWsDepthTopic):
		return k.wsProcessDepth(conn, &env)
	case strings.HasPrefix(env.Topic, kucoinWsMatchTopic):
		return k.wsProcessMatch(conn, &env)
	case strings.HasPrefix(env.Topic, kucoinWsCandlesTopic):
		return k.wsProcessCandles(conn, &env)
	case env.Topic == kucoinWsOrdersTopic:
		return k.wsProcessOrder(conn, &env)
	case env.Topic == kucoinWsBalanceTopic:
		return k.wsProcessBalance(conn, &env)
	default:
		if k.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled topic %q", k.Name, env.Topic)
		}
		return nil
	}
}

// wsTerminate drops the subscription carrying topic so undecodable payloads
// stop arriving and are not replayed after reconnects
func (k *Kucoin) wsTerminate(conn *stream.Websocket, topic string) {
	conn.TerminateSubscription(&subscription.Subscription{Key: topic})
}

// wsPairFromSymbol resolves a venue symbol such as BTC-USDT, preferring the
// loaded market table and falling back to delimiter parsing
func (k *Kucoin) wsPairFromSymbol(symbol string) (currency.Pair, error) {
	if m, err := k.MarketFromID(symbol); err == nil {
		return m.Pair, nil
	}
	return currency.NewPairFromString(symbol)
}

func (k *Kucoin) wsProcessTicker(conn *stream.Websocket, env *wsEnvelope) error {
	var t wsTicker
	if err := json.Unmarshal(env.Data, &t); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: ticker payload: %w", k.Name, err)
	}
	pair, err := k.wsPairFromSymbol(strings.TrimPrefix(env.Topic, kucoinWsTickerTopic))
	if err != nil {
		return err
	}
	price := &ticker.Price{
		Pair:        pair,
		LastUpdated: convert.TimeFromUnixMilli(t.Time),
		Info:        t,
	}
	price.Last, _ = convert.FloatFromString(t.Price)
	price.Bid, _ = convert.FloatFromString(t.BestBid)
	price.BidSize, _ = convert.FloatFromString(t.BestBidSize)
	price.Ask, _ = convert.FloatFromString(t.BestAsk)
	price.AskSize, _ = convert.FloatFromString(t.BestAskSize)
	conn.DataHandler <- price
	return nil
}

func (k *Kucoin) wsProcessDepth(conn *stream.Websocket, env *wsEnvelope) error {
	var d wsDepth
	if err := json.Unmarshal(env.Data, &d); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: depth payload: %w", k.Name, err)
	}
	pair, err := k.wsPairFromSymbol(strings.TrimPrefix(env.Topic, kucoinWsDepthTopic))
	if err != nil {
		return err
	}
	book := &orderbook.Base{
		Pair:        pair,
		LastUpdated: convert.TimeFromUnixMilli(d.Timestamp),
	}
	if book.Bids, err = levelsToItems(d.Bids); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: depth bids: %w", k.Name, err)
	}
	if book.Asks, err = levelsToItems(d.Asks); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: depth asks: %w", k.Name, err)
	}
	conn.DataHandler <- book
	return nil
}

func (k *Kucoin) wsProcessMatch(conn *stream.Websocket, env *wsEnvelope) error {
	var m wsMatch
	if err := json.Unmarshal(env.Data, &m); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: match payload: %w", k.Name, err)
	}
	pair, err := k.wsPairFromSymbol(m.Symbol)
	if err != nil {
		return err
	}
	data := trade.Data{
		ID:   m.TradeID,
		Pair: pair,
	}
	data.Price, _ = convert.FloatFromString(m.Price)
	data.Amount, _ = convert.FloatFromString(m.Size)
	if m.Side == "sell" {
		data.Side = order.Sell
	} else {
		data.Side = order.Buy
	}
	if ns, err := convert.Int64FromString(m.Time); err == nil {
		data.Timestamp = time.Unix(0, ns).UTC()
	}
	data.DeriveCost()
	conn.DataHandler <- data
	return nil
}

func (k *Kucoin) wsProcessCandles(conn *stream.Websocket, env *wsEnvelope) error {
	var c wsCandles
	if err := json.Unmarshal(env.Data, &c); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: candles payload: %w", k.Name, err)
	}
	suffix := strings.TrimPrefix(env.Topic, kucoinWsCandlesTopic)
	idx := strings.LastIndex(suffix, "_")
	if idx <= 0 {
		return fmt.Errorf("%s websocket: candles topic %q has no timeframe suffix", k.Name, env.Topic)
	}
	symbol, timeframe := suffix[:idx], suffix[idx+1:]
	interval, ok := kucoinIntervalFromTimeframe(timeframe)
	if !ok {
		return fmt.Errorf("%s websocket: unknown timeframe %q", k.Name, timeframe)
	}
	pair, err := k.wsPairFromSymbol(symbol)
	if err != nil {
		return err
	}
	conn.DataHandler <- stream.KlineData{
		Exchange: k.Name,
		Pair:     pair,
		Interval: interval,
		Candle: kline.Candle{
			Time:   convert.TimeFromUnixSec(c.Candles.Time),
			Open:   c.Candles.Open,
			High:   c.Candles.High,
			Low:    c.Candles.Low,
			Close:  c.Candles.Close,
			Volume: c.Candles.Volume,
		},
	}
	return nil
}

// kucoinWsOrderStatus maps one private order event onto the unified
// lifecycle. The venue reports transitions by event type rather than a
// status enum.
func kucoinWsOrderStatus(o *wsOrder, filled float64) order.Status {
	switch o.Type {
	case "open", "update", "received":
		if filled > 0 {
			return order.PartiallyFilled
		}
		return order.New
	case "match":
		return order.PartiallyFilled
	case "filled":
		return order.Filled
	case "canceled":
		return order.Cancelled
	default:
		return order.UnknownStatus
	}
}

func (k *Kucoin) wsProcessOrder(conn *stream.Websocket, env *wsEnvelope) error {
	var o wsOrder
	if err := json.Unmarshal(env.Data, &o); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: order payload: %w", k.Name, err)
	}
	pair, err := k.wsPairFromSymbol(o.Symbol)
	if err != nil {
		return err
	}
	detail := &order.Detail{
		ID:            o.OrderID,
		ClientOrderID: o.ClientOID,
		Pair:          pair,
		Timestamp:     time.Unix(0, o.Timestamp).UTC(),
	}
	if o.Side == "sell" {
		detail.Side = order.Sell
	} else {
		detail.Side = order.Buy
	}
	if o.OrderType == "market" {
		detail.Type = order.Market
	} else {
		detail.Type = order.Limit
	}
	detail.Price, _ = convert.FloatFromString(o.Price)
	detail.Amount, _ = convert.FloatFromString(o.Size)
	detail.Filled, _ = convert.FloatFromString(o.FilledSize)
	detail.Remaining, _ = convert.FloatFromString(o.RemainSize)
	detail.Status = kucoinWsOrderStatus(&o, detail.Filled)
	detail.DeriveRemaining()
	conn.DataHandler <- detail
	return nil
}

func (k *Kucoin) wsProcessBalance(conn *stream.Websocket, env *wsEnvelope) error {
	var b wsAccountBalance
	if err := json.Unmarshal(env.Data, &b); err != nil {
		k.wsTerminate(conn, env.Topic)
		return fmt.Errorf("%s websocket: balance payload: %w", k.Name, err)
	}
	change := stream.BalanceChange{
		Exchange: k.Name,
		Currency: currency.NewCode(b.Currency),
	}
	change.Balance.Total, _ = convert.FloatFromString(b.Total)
	change.Balance.Free, _ = convert.FloatFromString(b.Available)
	change.Balance.Used, _ = convert.FloatFromString(b.Hold)
	conn.DataHandler <- change
	return nil
}

// kucoinIntervalFromTimeframe reverses the timeframe table for topic parsing
func kucoinIntervalFromTimeframe(timeframe string) (kline.Interval, bool) {
	for interval, tf := range kucoinTimeframes {
		if tf == timeframe {
			return interval, true
		}
	}
	return 0, false
}

// WatchTicker subscribes to the ticker stream for one pair
func (k *Kucoin) WatchTicker(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("WatchTicker", k.Features.WatchTicker); err != nil {
		return err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx, false)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.TickerChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     kucoinWsTickerTopic + m.ID,
	})
}

// WatchOrderBook subscribes to 50 level book snapshots for one pair
func (k *Kucoin) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("WatchOrderBook", k.Features.WatchOrderBook); err != nil {
		return err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx, false)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.OrderbookChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     kucoinWsDepthTopic + m.ID,
		Levels:  50,
	})
}

// WatchTrades subscribes to the public match stream for one pair
func (k *Kucoin) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("WatchTrades", k.Features.WatchTrades); err != nil {
		return err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx, false)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.AllTradesChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     kucoinWsMatchTopic + m.ID,
	})
}

// WatchOHLCV subscribes to the candle stream for one pair and interval
func (k *Kucoin) WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error {
	if err := k.RequireFeature("WatchOHLCV", k.Features.WatchOHLCV); err != nil {
		return err
	}
	timeframe, ok := kucoinTimeframes[interval]
	if !ok {
		return fmt.Errorf("%s %s: %w", k.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx, false)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:  subscription.CandlesChannel,
		Pairs:    currency.Pairs{m.Pair},
		Key:      kucoinWsCandlesTopic + m.ID + "_" + timeframe,
		Interval: interval,
	})
}

// WatchOrders subscribes to the private order lifecycle stream
func (k *Kucoin) WatchOrders(ctx context.Context) error {
	if err := k.RequireFeature("WatchOrders", k.Features.WatchOrders); err != nil {
		return err
	}
	if err := k.API.Validate(true, false); err != nil {
		return fmt.Errorf("%s %w: %v", k.Name, exchange.ErrAuthentication, err)
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx, true)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:       subscription.MyOrdersChannel,
		Key:           kucoinWsOrdersTopic,
		Authenticated: true,
	})
}

// WatchBalance subscribes to the private balance change stream
func (k *Kucoin) WatchBalance(ctx context.Context) error {
	if err := k.RequireFeature("WatchBalance", k.Features.WatchBalance); err != nil {
		return err
	}
	if err := k.API.Validate(true, false); err != nil {
		return fmt.Errorf("%s %w: %v", k.Name, exchange.ErrAuthentication, err)
	}
	conn, err := k.wsTransport(ctx, true)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:       subscription.BalancesChannel,
		Key:           kucoinWsBalanceTopic,
		Authenticated: true,
	})
}
