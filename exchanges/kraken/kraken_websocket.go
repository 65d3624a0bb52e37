package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/unifex/unifex/common/convert"
	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/account"
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
	krakenWsTicker     = "ticker"
	krakenWsBook       = "book"
	krakenWsTrade      = "trade"
	krakenWsOHLC       = "ohlc"
	krakenWsExecutions = "executions"
	krakenWsBalances   = "balances"
	krakenWsHeartbeat  = "heartbeat"

	krakenWsPingDelay = 30 * time.Second
	krakenWsBookDepth = 10
)

var krakenWsPingMessage = []byte(`{"method":"ping"}`)

// wsTransport returns the public stream transport, dialling it on first use
func (k *Kraken) wsTransport(ctx context.Context) (*stream.Websocket, error) {
	return k.EnsureWebsocket(ctx, k.WebsocketURL, func() (*stream.Websocket, error) {
		return k.newWebsocket(k.WebsocketURL)
	})
}

// wsAuthTransport returns the private stream transport. Token carrying
// channels ride a separate host.
func (k *Kraken) wsAuthTransport(ctx context.Context) (*stream.Websocket, error) {
	return k.EnsureWebsocket(ctx, k.WebsocketAuthURL, func() (*stream.Websocket, error) {
		return k.newWebsocket(k.WebsocketAuthURL)
	})
}

func (k *Kraken) newWebsocket(url string) (*stream.Websocket, error) {
	return stream.New(&stream.Setup{
		Name:         k.Name,
		URL:          url,
		Handler:      k.wsHandleData,
		Subscriber:   k.wsSubscribe,
		Unsubscriber: k.wsUnsubscribe,
		PingHandler: stream.PingHandler{
			Message: krakenWsPingMessage,
			Delay:   krakenWsPingDelay,
		},
		DataHandler: k.EventSink(),
		ProxyURL:    k.ProxyURL,
		Verbose:     k.Verbose,
	})
}

func krakenChannelName(sub *subscription.Subscription) (string, error) {
	switch sub.Channel {
	case subscription.TickerChannel:
		return krakenWsTicker, nil
	case subscription.OrderbookChannel:
		return krakenWsBook, nil
	case subscription.AllTradesChannel:
		return krakenWsTrade, nil
	case subscription.CandlesChannel:
		return krakenWsOHLC, nil
	case subscription.MyOrdersChannel:
		return krakenWsExecutions, nil
	case subscription.BalancesChannel:
		return krakenWsBalances, nil
	}
	return "", fmt.Errorf("kraken: no channel mapping for %q", sub.Channel)
}

func (k *Kraken) wsSubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	return k.wsChannelRequest(ctx, conn, sub, "subscribe")
}

func (k *Kraken) wsUnsubscribe(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription) error {
	return k.wsChannelRequest(ctx, conn, sub, "unsubscribe")
}

// wsChannelRequest transmits a subscribe or unsubscribe for one
// subscription. Private channels fetch a fresh token when the cached one has
// lapsed, so replays after reconnects re-authenticate correctly.
func (k *Kraken) wsChannelRequest(ctx context.Context, conn *stream.Websocket, sub *subscription.Subscription, method string) error {
	channel, err := krakenChannelName(sub)
	if err != nil {
		return err
	}
	params := wsParams{Channel: channel}
	for _, p := range sub.Pairs {
		params.Symbol = append(params.Symbol, p.Upper())
	}
	switch channel {
	case krakenWsBook:
		params.Depth = sub.Levels
		if params.Depth == 0 {
			params.Depth = krakenWsBookDepth
		}
	case krakenWsOHLC:
		minutes, ok := krakenTimeframes[sub.Interval]
		if !ok {
			return fmt.Errorf("%s %s: %w", k.Name, sub.Interval.Short(), kline.ErrUnsupportedInterval)
		}
		params.Interval = minutes
	}
	if sub.Authenticated {
		token, err := k.websocketToken(ctx)
		if err != nil {
			return err
		}
		params.Token = token
	}
	sub.QualifiedChannel = channel
	return conn.SendJSONMessage(ctx, wsRequest{
		Method: method,
		Params: params,
		ReqID:  conn.GenerateMessageID(false),
	})
}

// websocketToken returns the cached stream token, refreshing it when the
// validity window has lapsed. The cache is dropped on CloseAllWs.
func (k *Kraken) websocketToken(ctx context.Context) (string, error) {
	k.wsTokenMu.Lock()
	defer k.wsTokenMu.Unlock()
	if k.wsToken != "" && time.Now().Before(k.wsTokenExpires) {
		return k.wsToken, nil
	}
	token, err := k.GetWebsocketToken(ctx)
	if err != nil {
		return "", err
	}
	validity := time.Duration(token.Expires) * time.Second
	if validity > 2*time.Minute {
		validity -= time.Minute
	}
	k.wsToken = token.Token
	k.wsTokenExpires = time.Now().Add(validity)
	return k.wsToken, nil
}

func (k *Kraken) wsHandleData(_ context.Context, conn *stream.Websocket, respRaw []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(respRaw, &env); err != nil {
		return fmt.Errorf("%s websocket: decoding envelope: %w", k.Name, err)
	}
	if env.Method != "" {
		switch env.Method {
		case "pong":
		case "subscribe", "unsubscribe":
			if env.Success != nil && !*env.Success {
				log.Errorf(log.WebsocketMgr, "%s websocket: %s rejected: %s",
					k.Name, env.Method, env.Error)
			}
		default:
			if k.Verbose {
				log.Debugf(log.WebsocketMgr, "%s websocket: unhandled method %q",
					k.Name, env.Method)
			}
		}
		return nil
	}
	switch env.Channel {
	case "", krakenWsHeartbeat, "status":
		return nil
	case krakenWsTicker:
		return k.wsProcessTicker(conn, &env)
	case krakenWsBook:
		return k.wsProcessBook(conn, &env)
	case krakenWsTrade:
		return k.wsProcessTrades(conn, &env)
	case krakenWsOHLC:
		return k.wsProcessCandles(conn, &env)
	case krakenWsExecutions:
		return k.wsProcessExecutions(conn, &env)
	case krakenWsBalances:
		return k.wsProcessBalances(conn, &env)
	default:
		if k.Verbose {
			log.Debugf(log.WebsocketMgr, "%s websocket: unhandled channel %q",
				k.Name, env.Channel)
		}
		return nil
	}
}

// wsTerminateChannel drops every subscription on channel so undecodable
// payloads stop arriving and are not replayed after reconnects
func (k *Kraken) wsTerminateChannel(conn *stream.Websocket, channel string) {
	for _, sub := range conn.Subscriptions() {
		if sub.QualifiedChannel == channel {
			conn.TerminateSubscription(sub)
		}
	}
}

func (k *Kraken) wsProcessTicker(conn *stream.Websocket, env *wsEnvelope) error {
	var rows []wsTicker
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		k.wsTerminateChannel(conn, krakenWsTicker)
		return fmt.Errorf("%s websocket: ticker payload: %w", k.Name, err)
	}
	for i := range rows {
		pair, err := currency.NewPairFromString(rows[i].Symbol)
		if err != nil {
			continue
		}
		conn.DataHandler <- &ticker.Price{
			Pair:        pair,
			Last:        rows[i].Last,
			Bid:         rows[i].Bid,
			BidSize:     rows[i].BidQty,
			Ask:         rows[i].Ask,
			AskSize:     rows[i].AskQty,
			High:        rows[i].High,
			Low:         rows[i].Low,
			Volume:      rows[i].Volume,
			VWAP:        rows[i].VWAP,
			Change:      rows[i].Change,
			Percentage:  rows[i].ChangePct,
			LastUpdated: time.Now().UTC(),
		}
	}
	return nil
}

func (k *Kraken) wsProcessBook(conn *stream.Websocket, env *wsEnvelope) error {
	var rows []wsBook
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		k.wsTerminateChannel(conn, krakenWsBook)
		return fmt.Errorf("%s websocket: book payload: %w", k.Name, err)
	}
	for i := range rows {
		row := &rows[i]
		pair, err := currency.NewPairFromString(row.Symbol)
		if err != nil {
			continue
		}
		k.wsBookMu.Lock()
		book := k.wsBooks[row.Symbol]
		if env.Type == "snapshot" || book == nil {
			book = &orderbook.Base{
				Pair: pair,
				Bids: levelsToItems(row.Bids),
				Asks: levelsToItems(row.Asks),
			}
			k.wsBooks[row.Symbol] = book
		} else {
			book.Bids = applyBookLevels(book.Bids, row.Bids, true)
			book.Asks = applyBookLevels(book.Asks, row.Asks, false)
		}
		if ts, err := convert.ParseDatetime(row.Timestamp); err == nil {
			book.LastUpdated = ts
		} else {
			book.LastUpdated = time.Now().UTC()
		}
		snapshot := &orderbook.Base{
			Pair:        book.Pair,
			Bids:        append([]orderbook.Item(nil), book.Bids...),
			Asks:        append([]orderbook.Item(nil), book.Asks...),
			LastUpdated: book.LastUpdated,
		}
		k.wsBookMu.Unlock()
		conn.DataHandler <- snapshot
	}
	return nil
}

func levelsToItems(levels []wsBookLevel) []orderbook.Item {
	items := make([]orderbook.Item, 0, len(levels))
	for _, l := range levels {
		items = append(items, orderbook.Item{Price: l.Price, Amount: l.Qty})
	}
	return items
}

// applyBookLevels merges depth deltas into a side. Zero quantity removes the
// level.
func applyBookLevels(levels []orderbook.Item, updates []wsBookLevel, descending bool) []orderbook.Item {
	for _, u := range updates {
		idx := -1
		for i := range levels {
			if levels[i].Price == u.Price {
				idx = i
				break
			}
		}
		switch {
		case u.Qty == 0:
			if idx >= 0 {
				levels = append(levels[:idx], levels[idx+1:]...)
			}
		case idx >= 0:
			levels[idx].Amount = u.Qty
		default:
			levels = append(levels, orderbook.Item{Price: u.Price, Amount: u.Qty})
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

func (k *Kraken) wsProcessTrades(conn *stream.Websocket, env *wsEnvelope) error {
	var rows []wsTrade
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		k.wsTerminateChannel(conn, krakenWsTrade)
		return fmt.Errorf("%s websocket: trade payload: %w", k.Name, err)
	}
	for i := range rows {
		pair, err := currency.NewPairFromString(rows[i].Symbol)
		if err != nil {
			continue
		}
		side := order.Buy
		if rows[i].Side == "sell" {
			side = order.Sell
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].TradeID, 10),
			Pair:      pair,
			Price:     rows[i].Price,
			Amount:    rows[i].Qty,
			Side:      side,
		}
		if ts, err := convert.ParseDatetime(rows[i].Timestamp); err == nil {
			data.Timestamp = ts
		}
		data.DeriveCost()
		conn.DataHandler <- data
	}
	return nil
}

func (k *Kraken) wsProcessCandles(conn *stream.Websocket, env *wsEnvelope) error {
	var rows []wsCandle
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		k.wsTerminateChannel(conn, krakenWsOHLC)
		return fmt.Errorf("%s websocket: candle payload: %w", k.Name, err)
	}
	for i := range rows {
		pair, err := currency.NewPairFromString(rows[i].Symbol)
		if err != nil {
			continue
		}
		candle := kline.Candle{
			Open:   rows[i].Open,
			High:   rows[i].High,
			Low:    rows[i].Low,
			Close:  rows[i].Close,
			Volume: rows[i].Volume,
		}
		if ts, err := convert.ParseDatetime(rows[i].IntervalBegin); err == nil {
			candle.Time = ts
		}
		conn.DataHandler <- stream.KlineData{
			Exchange: k.Name,
			Pair:     pair,
			Interval: kline.Interval(time.Duration(rows[i].Interval) * time.Minute),
			Candle:   candle,
		}
	}
	return nil
}

func krakenWsOrderStatus(status string, filled float64) order.Status {
	switch status {
	case "pending_new", "new", "open":
		if filled > 0 {
			return order.PartiallyFilled
		}
		return order.New
	case "partially_filled":
		return order.PartiallyFilled
	case "filled":
		return order.Filled
	case "canceled":
		return order.Cancelled
	case "expired":
		return order.Expired
	}
	return order.UnknownStatus
}

func (k *Kraken) wsProcessExecutions(conn *stream.Websocket, env *wsEnvelope) error {
	var rows []wsExecution
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		k.wsTerminateChannel(conn, krakenWsExecutions)
		return fmt.Errorf("%s websocket: execution payload: %w", k.Name, err)
	}
	for i := range rows {
		row := &rows[i]
		if row.OrderID == "" {
			continue
		}
		detail := &order.Detail{
			ID:            row.OrderID,
			ClientOrderID: row.ClientOrderID,
			Type:          order.StringToOrderType(row.OrderType),
			Price:         row.LimitPrice,
			Amount:        row.OrderQty,
			Filled:        row.CumQty,
			Cost:          row.CumCost,
			Average:       row.AvgPrice,
			Status:        krakenWsOrderStatus(row.OrderStatus, row.CumQty),
			Info:          row,
		}
		if row.Symbol != "" {
			if pair, err := currency.NewPairFromString(row.Symbol); err == nil {
				detail.Pair = pair
			}
		}
		if row.Side == "sell" {
			detail.Side = order.Sell
		} else if row.Side == "buy" {
			detail.Side = order.Buy
		}
		if ts, err := convert.ParseDatetime(row.Timestamp); err == nil {
			detail.Timestamp = ts
		}
		detail.DeriveRemaining()
		conn.DataHandler <- detail
	}
	return nil
}

func (k *Kraken) wsProcessBalances(conn *stream.Websocket, env *wsEnvelope) error {
	var rows []wsBalance
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		k.wsTerminateChannel(conn, krakenWsBalances)
		return fmt.Errorf("%s websocket: balance payload: %w", k.Name, err)
	}
	for i := range rows {
		conn.DataHandler <- stream.BalanceChange{
			Exchange: k.Name,
			Currency: assetToUnified(rows[i].Asset),
			Balance: account.Balance{
				Total: rows[i].Balance,
				Used:  rows[i].HoldTrade,
				Free:  rows[i].Balance - rows[i].HoldTrade,
			},
		}
	}
	return nil
}

// WatchTicker subscribes to price updates for one pair
func (k *Kraken) WatchTicker(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("WatchTicker", k.Features.WatchTicker); err != nil {
		return err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.TickerChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     krakenWsTicker + ":" + m.Symbol,
	})
}

// WatchOrderBook subscribes to depth updates for one pair. A snapshot
// arrives first; deltas maintain a local book.
func (k *Kraken) WatchOrderBook(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("WatchOrderBook", k.Features.WatchOrderBook); err != nil {
		return err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.OrderbookChannel,
		Pairs:   currency.Pairs{m.Pair},
		Levels:  krakenWsBookDepth,
		Key:     krakenWsBook + ":" + m.Symbol,
	})
}

// WatchTrades subscribes to public trades for one pair
func (k *Kraken) WatchTrades(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("WatchTrades", k.Features.WatchTrades); err != nil {
		return err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel: subscription.AllTradesChannel,
		Pairs:   currency.Pairs{m.Pair},
		Key:     krakenWsTrade + ":" + m.Symbol,
	})
}

// WatchOHLCV subscribes to candle updates for one pair
func (k *Kraken) WatchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval) error {
	if err := k.RequireFeature("WatchOHLCV", k.Features.WatchOHLCV); err != nil {
		return err
	}
	minutes, ok := krakenTimeframes[interval]
	if !ok {
		return fmt.Errorf("%s %s: %w", k.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	conn, err := k.wsTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:  subscription.CandlesChannel,
		Pairs:    currency.Pairs{m.Pair},
		Interval: interval,
		Key:      krakenWsOHLC + ":" + m.Symbol + ":" + strconv.FormatInt(minutes, 10),
	})
}

// WatchOrders subscribes to execution reports for every order on the account
func (k *Kraken) WatchOrders(ctx context.Context) error {
	if err := k.RequireFeature("WatchOrders", k.Features.WatchOrders); err != nil {
		return err
	}
	conn, err := k.wsAuthTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:       subscription.MyOrdersChannel,
		Key:           krakenWsExecutions,
		Authenticated: true,
	})
}

// WatchBalance subscribes to account balance updates
func (k *Kraken) WatchBalance(ctx context.Context) error {
	if err := k.RequireFeature("WatchBalance", k.Features.WatchBalance); err != nil {
		return err
	}
	conn, err := k.wsAuthTransport(ctx)
	if err != nil {
		return err
	}
	return conn.Subscribe(ctx, &subscription.Subscription{
		Channel:       subscription.BalancesChannel,
		Key:           krakenWsBalances,
		Authenticated: true,
	})
}

// CloseAllWs shuts every transport and drops the cached stream token and
// maintained books
func (k *Kraken) CloseAllWs() error {
	k.wsTokenMu.Lock()
	k.wsToken = ""
	k.wsTokenExpires = time.Time{}
	k.wsTokenMu.Unlock()

	k.wsBookMu.Lock()
	k.wsBooks = make(map[string]*orderbook.Base)
	k.wsBookMu.Unlock()
	return k.Base.CloseAllWs()
}
