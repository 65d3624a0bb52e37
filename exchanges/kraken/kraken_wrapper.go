package kraken

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/unifex/unifex/common/convert"
	"github.com/unifex/unifex/currency"
	exchange "github.com/unifex/unifex/exchanges"
	"github.com/unifex/unifex/exchanges/account"
	"github.com/unifex/unifex/exchanges/fee"
	"github.com/unifex/unifex/exchanges/kline"
	"github.com/unifex/unifex/exchanges/order"
	"github.com/unifex/unifex/exchanges/orderbook"
	"github.com/unifex/unifex/exchanges/ticker"
	"github.com/unifex/unifex/exchanges/trade"
	"github.com/unifex/unifex/log"
)

// krakenTimeframes maps unified intervals to the venue's interval minutes
var krakenTimeframes = map[kline.Interval]int64{
	kline.OneMin:     1,
	kline.FiveMin:    5,
	kline.FifteenMin: 15,
	kline.ThirtyMin:  30,
	kline.OneHour:    60,
	kline.FourHour:   240,
	kline.OneDay:     1440,
	kline.OneWeek:    10080,
}

// assetToUnified translates venue asset codes. Kraken prefixes legacy fiat
// with Z and crypto with X, and still calls bitcoin XBT.
func assetToUnified(code string) currency.Code {
	c := strings.ToUpper(code)
	if len(c) == 4 && (c[0] == 'X' || c[0] == 'Z') {
		c = c[1:]
	}
	switch c {
	case "XBT":
		c = "BTC"
	case "XDG":
		c = "DOGE"
	}
	return currency.Code(c)
}

// FetchMarkets returns the venue pair listing as unified markets. The
// canonical pair id keys lookups; altname and wsname resolve as aliases.
func (k *Kraken) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	pairs, err := k.GetAssetPairs(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(pairs))
	for id, info := range pairs {
		var base, quote currency.Code
		if parts := strings.Split(info.WSName, "/"); len(parts) == 2 {
			base = assetToUnified(parts[0])
			quote = assetToUnified(parts[1])
		} else {
			base = assetToUnified(info.Base)
			quote = assetToUnified(info.Quote)
		}
		p := currency.NewPair(base, quote)
		m := &exchange.Market{
			ID:      id,
			Symbol:  p.Upper(),
			Pair:    p,
			BaseID:  info.Base,
			QuoteID: info.Quote,
			Active:  info.Status == "online",
			Precision: exchange.MarketPrecision{
				Price:  info.PairDecimals,
				Amount: info.LotDecimals,
			},
			Info: info,
		}
		if info.Altname != "" {
			m.AltIDs = append(m.AltIDs, info.Altname)
		}
		if info.WSName != "" {
			m.AltIDs = append(m.AltIDs, info.WSName)
		}
		if min, err := convert.FloatFromString(info.OrderMin); err == nil {
			m.Limits.Amount.Min = min
		}
		if min, err := convert.FloatFromString(info.CostMin); err == nil {
			m.Limits.Cost.Min = min
		}
		if tick, err := convert.FloatFromString(info.TickSize); err == nil {
			m.TickSize = tick
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets populates the market registry on first call
func (k *Kraken) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
	if k.MarketsLoaded() && !reload {
		return k.Markets(), nil
	}
	markets, err := k.FetchMarkets(ctx)
	if err != nil {
		return nil, err
	}
	k.StoreMarkets(markets)
	return k.Markets(), nil
}

func (k *Kraken) ensureMarkets(ctx context.Context) error {
	if k.MarketsLoaded() {
		return nil
	}
	_, err := k.LoadMarkets(ctx, false)
	return err
}

func (k *Kraken) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return k.MarketFromSymbol(pair.Upper())
}

// stat returns the rolling 24h element of a today/24h tuple field
func stat(tuple []string) float64 {
	if len(tuple) == 0 {
		return 0
	}
	idx := len(tuple) - 1
	if idx > 1 {
		idx = 1
	}
	v, _ := convert.FloatFromString(tuple[idx])
	return v
}

func first(tuple []string) float64 {
	if len(tuple) == 0 {
		return 0
	}
	v, _ := convert.FloatFromString(tuple[0])
	return v
}

func (k *Kraken) parseTicker(m *exchange.Market, t *Ticker) *ticker.Price {
	price := &ticker.Price{
		Pair:        m.Pair,
		Last:        first(t.Last),
		Bid:         first(t.Bid),
		Ask:         first(t.Ask),
		High:        stat(t.High),
		Low:         stat(t.Low),
		Volume:      stat(t.Volume),
		VWAP:        stat(t.VWAP),
		LastUpdated: time.Now().UTC(),
		Info:        t,
	}
	if open, err := convert.FloatFromString(t.Open); err == nil {
		price.Open = open
	}
	price.DeriveChange()
	return price
}

// FetchTicker returns a price snapshot for one pair
func (k *Kraken) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := k.RequireFeature("FetchTicker", k.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	resp, err := k.GetTickers(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	t, ok := resp[m.ID]
	if !ok {
		return nil, fmt.Errorf("%s: ticker response missing %s: %w",
			k.Name, m.ID, exchange.ErrExchangeError)
	}
	return k.parseTicker(m, &t), nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed pair when none are given
func (k *Kraken) FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error) {
	if err := k.RequireFeature("FetchTickers", k.Features.Tickers); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	resp, err := k.GetTickers(ctx, "")
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		want[p.Upper()] = true
	}
	out := make(map[string]*ticker.Price, len(resp))
	for id := range resp {
		m, err := k.MarketFromID(id)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		t := resp[id]
		out[m.Symbol] = k.parseTicker(m, &t)
	}
	return out, nil
}

// FetchOrderBook returns the current book for one pair
func (k *Kraken) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := k.RequireFeature("FetchOrderBook", k.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	depth, err := k.GetDepth(ctx, m.ID, limit)
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		Bids:        depthToItems(depth.Bids),
		Asks:        depthToItems(depth.Asks),
		LastUpdated: time.Now().UTC(),
	}
	book.Limit(limit)
	return book, book.Verify()
}

func depthToItems(levels []DepthLevel) []orderbook.Item {
	items := make([]orderbook.Item, 0, len(levels))
	for _, l := range levels {
		items = append(items, orderbook.Item{Price: l.Price, Amount: l.Volume})
	}
	return items
}

// FetchTrades returns public trades for one pair, oldest first
func (k *Kraken) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := k.RequireFeature("FetchTrades", k.Features.Trades); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := k.GetRecentTrades(ctx, m.ID, since)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		side := order.Buy
		if rows[i].Side == "s" {
			side = order.Sell
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].TradeID, 10),
			Pair:      m.Pair,
			Price:     rows[i].Price,
			Amount:    rows[i].Volume,
			Side:      side,
			Timestamp: timeFromFloatSec(rows[i].Time),
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchOHLCV returns candles for one pair, oldest first
func (k *Kraken) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := k.RequireFeature("FetchOHLCV", k.Features.OHLCV); err != nil {
		return nil, err
	}
	minutes, ok := krakenTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", k.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := k.GetOHLC(ctx, m.ID, minutes, since)
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(rows))
	for _, row := range rows {
		candles = append(candles, kline.Candle{
			Time:   time.Unix(row.Time, 0).UTC(),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	kline.SortAscending(candles)
	return kline.Limit(candles, limit), nil
}

// CreateOrder submits an order and reports it as resting
func (k *Kraken) CreateOrder(ctx context.Context, s *order.Submit) (*order.Detail, error) {
	if err := k.RequireFeature("CreateOrder", k.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, s.Pair)
	if err != nil {
		return nil, err
	}
	resp, err := k.AddOrder(ctx, m.ID,
		strings.ToLower(string(s.Side)), strings.ToLower(string(s.Type)),
		s.Amount, s.Price, s.ClientOrderID)
	if err != nil {
		return nil, err
	}
	if len(resp.TransactionIDs) == 0 {
		return nil, fmt.Errorf("%s: order accepted without txid: %w",
			k.Name, exchange.ErrExchangeError)
	}
	detail := &order.Detail{
		ID:            resp.TransactionIDs[0],
		ClientOrderID: s.ClientOrderID,
		Pair:          m.Pair,
		Type:          s.Type,
		Side:          s.Side,
		Price:         s.Price,
		Amount:        s.Amount,
		Remaining:     s.Amount,
		Status:        order.New,
		Timestamp:     time.Now().UTC(),
		Info:          resp,
	}
	return detail, nil
}

// CancelOrder cancels one order by transaction id
func (k *Kraken) CancelOrder(ctx context.Context, orderID string, _ currency.Pair) error {
	if err := k.RequireFeature("CancelOrder", k.Features.CancelOrder); err != nil {
		return err
	}
	_, err := k.CancelExistingOrder(ctx, orderID)
	return err
}

// CancelAllOrders cancels every resting order. The venue endpoint is account
// wide, so a pair scope cancels matching orders one by one.
func (k *Kraken) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("CancelAllOrders", k.Features.CancelAllOrders); err != nil {
		return err
	}
	if pair.IsEmpty() {
		_, err := k.CancelAllExistingOrders(ctx)
		return err
	}
	open, err := k.FetchOpenOrders(ctx, pair)
	if err != nil {
		return err
	}
	for i := range open {
		if _, err := k.CancelExistingOrder(ctx, open[i].ID); err != nil {
			return err
		}
	}
	return nil
}

// parseOrderInfo converts a venue order row. descr.pair carries the altname,
// which the market registry resolves through alias ids.
func (k *Kraken) parseOrderInfo(txid string, info *OrderInfo, fallback currency.Pair) order.Detail {
	pair := fallback
	if m, err := k.MarketFromID(info.Descr.Pair); err == nil {
		pair = m.Pair
	}

	volume, _ := convert.FloatFromString(info.Volume)
	executed, _ := convert.FloatFromString(info.VolumeExecuted)
	cost, _ := convert.FloatFromString(info.Cost)
	feeCost, _ := convert.FloatFromString(info.Fee)
	avg, _ := convert.FloatFromString(info.Price)
	limitPrice, _ := convert.FloatFromString(info.Descr.Price)

	status := order.UnknownStatus
	switch info.Status {
	case "pending", "open":
		status = order.New
		if executed > 0 {
			status = order.PartiallyFilled
		}
	case "closed":
		status = order.Filled
	case "canceled":
		status = order.Cancelled
	case "expired":
		status = order.Expired
	}

	side := order.Buy
	if info.Descr.Side == "sell" {
		side = order.Sell
	}

	detail := order.Detail{
		ID:            txid,
		ClientOrderID: info.ClientOrderID,
		Pair:          pair,
		Type:          order.StringToOrderType(info.Descr.OrderType),
		Side:          side,
		Price:         limitPrice,
		Amount:        volume,
		Filled:        executed,
		Remaining:     volume - executed,
		Cost:          cost,
		Average:       avg,
		Status:        status,
		Timestamp:     timeFromFloatSec(info.OpenTime),
		Fee:           order.Fee{Cost: feeCost, Currency: pair.Quote},
		Info:          info,
	}
	detail.DeriveAverage()
	return detail
}

// FetchOrder returns one order by transaction id
func (k *Kraken) FetchOrder(ctx context.Context, orderID string, pair currency.Pair) (*order.Detail, error) {
	if err := k.RequireFeature("FetchOrder", k.Features.FetchOrder); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	resp, err := k.QueryOrdersInfo(ctx, orderID)
	if err != nil {
		return nil, err
	}
	info, ok := resp[orderID]
	if !ok {
		return nil, fmt.Errorf("%s: order %s: %w", k.Name, orderID, exchange.ErrOrderNotFound)
	}
	detail := k.parseOrderInfo(orderID, &info, pair)
	return &detail, nil
}

// FetchOpenOrders returns resting orders, optionally scoped to one pair
func (k *Kraken) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := k.RequireFeature("FetchOpenOrders", k.Features.OpenOrders); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	resp, err := k.GetOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	return k.collectOrders(resp.Open, pair), nil
}

// FetchClosedOrders returns completed orders, oldest first
func (k *Kraken) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := k.RequireFeature("FetchClosedOrders", k.Features.ClosedOrders); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	start := int64(0)
	if !since.IsZero() {
		start = since.Unix()
	}
	resp, err := k.GetClosedOrders(ctx, start)
	if err != nil {
		return nil, err
	}
	orders := k.collectOrders(resp.Closed, pair)
	if limit > 0 && len(orders) > limit {
		orders = orders[len(orders)-limit:]
	}
	return orders, nil
}

func (k *Kraken) collectOrders(rows map[string]OrderInfo, pair currency.Pair) []order.Detail {
	orders := make([]order.Detail, 0, len(rows))
	for txid := range rows {
		info := rows[txid]
		detail := k.parseOrderInfo(txid, &info, currency.EMPTYPAIR)
		if !pair.IsEmpty() && detail.Pair.Upper() != pair.Upper() {
			continue
		}
		orders = append(orders, detail)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.Before(orders[j].Timestamp)
	})
	return orders
}

// FetchMyTrades returns account fills, oldest first
func (k *Kraken) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := k.RequireFeature("FetchMyTrades", k.Features.MyTrades); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	start := int64(0)
	if !since.IsZero() {
		start = since.Unix()
	}
	resp, err := k.GetTradesHistory(ctx, start)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(resp.Trades))
	for id := range resp.Trades {
		row := resp.Trades[id]
		m, err := k.MarketFromID(row.Pair)
		if err != nil {
			log.Warnf(log.ExchangeSys, "%s: fill %s references unknown pair %s",
				k.Name, id, row.Pair)
			continue
		}
		if !pair.IsEmpty() && m.Symbol != pair.Upper() {
			continue
		}
		side := order.Buy
		if row.Side == "sell" {
			side = order.Sell
		}
		price, _ := convert.FloatFromString(row.Price)
		volume, _ := convert.FloatFromString(row.Volume)
		cost, _ := convert.FloatFromString(row.Cost)
		feeCost, _ := convert.FloatFromString(row.Fee)
		trades = append(trades, trade.Data{
			ID:      id,
			OrderID: row.OrderTxID,
			Pair:    m.Pair,
			Price:   price,
			Amount:  volume,
			Cost:    cost,
			Side:    side,
			IsMaker: row.Maker,
			Fee: order.Fee{
				Cost:     feeCost,
				Currency: m.Pair.Quote,
			},
			Timestamp: timeFromFloatSec(row.Time),
			Info:      row,
		})
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns account totals. The venue reports no hold split on
// this endpoint.
func (k *Kraken) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := k.RequireFeature("FetchBalance", k.Features.Balance); err != nil {
		return nil, err
	}
	balances, err := k.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	holdings := account.NewHoldings(k.Name)
	holdings.Timestamp = time.Now().UTC()
	for asset, raw := range balances {
		total, err := convert.FloatFromString(raw)
		if err != nil {
			continue
		}
		holdings.Set(assetToUnified(asset), account.Balance{Total: total})
	}
	return &holdings, nil
}

// FetchTradingFees returns the account fee schedule for every listed pair
func (k *Kraken) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := k.RequireFeature("FetchTradingFees", k.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	all := k.Markets()
	ids := make([]string, 0, len(all))
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	resp, err := k.GetTradeVolume(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*fee.PairSchedule, len(resp.Fees))
	for id, tier := range resp.Fees {
		m, err := k.MarketFromID(id)
		if err != nil {
			continue
		}
		taker, _ := convert.FloatFromString(tier.Fee)
		schedule := &fee.PairSchedule{
			Pair:  m.Pair,
			Taker: taker / 100,
			Maker: taker / 100,
		}
		if maker, ok := resp.FeesMaker[id]; ok {
			if v, err := convert.FloatFromString(maker.Fee); err == nil {
				schedule.Maker = v / 100
			}
		}
		out[m.Symbol] = schedule
	}
	return out, nil
}

func timeFromFloatSec(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ts * 1000)).UTC()
}
