package kucoin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"

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

// kucoinTimeframes maps unified intervals onto venue kline types
var kucoinTimeframes = map[kline.Interval]string{
	kline.OneMin:     "1min",
	kline.ThreeMin:   "3min",
	kline.FiveMin:    "5min",
	kline.FifteenMin: "15min",
	kline.ThirtyMin:  "30min",
	kline.OneHour:    "1hour",
	kline.TwoHour:    "2hour",
	kline.FourHour:   "4hour",
	kline.SixHour:    "6hour",
	kline.EightHour:  "8hour",
	kline.TwelveHour: "12hour",
	kline.OneDay:     "1day",
	kline.OneWeek:    "1week",
}

// decimalsFromIncrement counts the significant fractional digits of a venue
// increment such as "0.0001"
func decimalsFromIncrement(increment string) int {
	idx := strings.Index(increment, ".")
	if idx < 0 {
		return 0
	}
	return len(strings.TrimRight(increment[idx+1:], "0"))
}

// FetchMarkets returns tradable markets from the symbol directory
func (k *Kucoin) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	symbols, err := k.GetSymbols(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(symbols))
	for i := range symbols {
		s := &symbols[i]
		p := currency.NewPairFromStrings(s.BaseCurrency, s.QuoteCurrency)
		m := &exchange.Market{
			ID:      s.Symbol,
			Symbol:  p.Upper(),
			Pair:    p,
			BaseID:  s.BaseCurrency,
			QuoteID: s.QuoteCurrency,
			Active:  s.EnableTrading,
			Info:    s,
		}
		m.Precision.Price = decimalsFromIncrement(s.PriceIncrement)
		m.Precision.Amount = decimalsFromIncrement(s.BaseIncrement)
		m.Precision.Quote = decimalsFromIncrement(s.QuoteIncrement)
		m.TickSize, _ = convert.FloatFromString(s.PriceIncrement)
		m.StepSize, _ = convert.FloatFromString(s.BaseIncrement)
		m.Limits.Amount.Min, _ = convert.FloatFromString(s.BaseMinSize)
		m.Limits.Amount.Max, _ = convert.FloatFromString(s.BaseMaxSize)
		if s.MinFunds != "" {
			m.Limits.Cost.Min, _ = convert.FloatFromString(s.MinFunds)
		} else {
			m.Limits.Cost.Min, _ = convert.FloatFromString(s.QuoteMinSize)
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets caches the market table, refreshing when reload is set
func (k *Kucoin) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
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

func (k *Kucoin) ensureMarkets(ctx context.Context) error {
	if k.MarketsLoaded() {
		return nil
	}
	_, err := k.LoadMarkets(ctx, false)
	return err
}

func (k *Kucoin) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return k.MarketFromSymbol(pair.Upper())
}

// parseTickerInfo normalizes one market wide ticker row
func parseTickerInfo(t *TickerInfo, pair currency.Pair, at time.Time) (*ticker.Price, error) {
	price := &ticker.Price{Pair: pair, LastUpdated: at}
	var err error
	if price.Last, err = convert.FloatFromString(t.Last); err != nil {
		return nil, err
	}
	price.Bid, _ = convert.FloatFromString(t.Buy)
	price.Ask, _ = convert.FloatFromString(t.Sell)
	price.High, _ = convert.FloatFromString(t.High)
	price.Low, _ = convert.FloatFromString(t.Low)
	price.Volume, _ = convert.FloatFromString(t.Volume)
	price.QuoteVolume, _ = convert.FloatFromString(t.VolumeValue)
	price.Change, _ = convert.FloatFromString(t.ChangePrice)
	if rate, err := convert.FloatFromString(t.ChangeRate); err == nil {
		price.Percentage = rate * 100
	}
	price.Info = t
	return price, nil
}

// FetchTicker returns a price snapshot for one pair
func (k *Kucoin) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := k.RequireFeature("FetchTicker", k.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	stats, err := k.GetMarketStats(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	price := &ticker.Price{
		Pair:        m.Pair,
		LastUpdated: convert.TimeFromUnixMilli(stats.Time),
		Info:        stats,
	}
	price.Last, _ = convert.FloatFromString(stats.Last)
	price.Bid, _ = convert.FloatFromString(stats.Buy)
	price.Ask, _ = convert.FloatFromString(stats.Sell)
	price.High, _ = convert.FloatFromString(stats.High)
	price.Low, _ = convert.FloatFromString(stats.Low)
	price.Volume, _ = convert.FloatFromString(stats.Volume)
	price.QuoteVolume, _ = convert.FloatFromString(stats.VolumeValue)
	price.Change, _ = convert.FloatFromString(stats.ChangePrice)
	price.Average, _ = convert.FloatFromString(stats.AveragePrice)
	if rate, err := convert.FloatFromString(stats.ChangeRate); err == nil {
		price.Percentage = rate * 100
	}
	return price, nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed market when pairs is empty
func (k *Kucoin) FetchTickers(ctx context.Context, pairs currency.Pairs) (map[string]*ticker.Price, error) {
	if err := k.RequireFeature("FetchTickers", k.Features.Tickers); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	all, err := k.GetAllTickers(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(pairs))
	for i := range pairs {
		want[pairs[i].Upper()] = true
	}
	at := convert.TimeFromUnixMilli(all.Time)
	out := make(map[string]*ticker.Price, len(all.Tickers))
	for i := range all.Tickers {
		m, err := k.MarketFromID(all.Tickers[i].Symbol)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		price, err := parseTickerInfo(&all.Tickers[i], m.Pair, at)
		if err != nil {
			continue
		}
		out[m.Symbol] = price
	}
	return out, nil
}

// FetchOrderBook returns an aggregated book snapshot. The venue serves 20 or
// 100 level buckets; limit selects the smallest bucket covering it.
func (k *Kucoin) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := k.RequireFeature("FetchOrderBook", k.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	snapshot, err := k.GetPartOrderbook(ctx, m.ID, limit)
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		LastUpdated: convert.TimeFromUnixMilli(snapshot.Time),
	}
	if book.Bids, err = levelsToItems(snapshot.Bids); err != nil {
		return nil, fmt.Errorf("%s: parsing bids: %w", k.Name, err)
	}
	if book.Asks, err = levelsToItems(snapshot.Asks); err != nil {
		return nil, fmt.Errorf("%s: parsing asks: %w", k.Name, err)
	}
	book.Limit(limit)
	return book, book.Verify()
}

func levelsToItems(rows [][]string) ([]orderbook.Item, error) {
	items := make([]orderbook.Item, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := convert.FloatFromString(row[0])
		if err != nil {
			return nil, err
		}
		amount, err := convert.FloatFromString(row[1])
		if err != nil {
			return nil, err
		}
		items = append(items, orderbook.Item{Price: price, Amount: amount})
	}
	return items, nil
}

// FetchTrades returns recent public trades. The venue has no time filter,
// so since trims the returned window locally.
func (k *Kucoin) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := k.RequireFeature("FetchTrades", k.Features.Trades); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := k.GetTradeHistories(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		t := trade.Data{
			ID:        rows[i].Sequence,
			Pair:      m.Pair,
			Timestamp: time.Unix(0, rows[i].Time),
			Info:      rows[i],
		}
		t.Price, _ = convert.FloatFromString(rows[i].Price)
		t.Amount, _ = convert.FloatFromString(rows[i].Size)
		if rows[i].Side == "sell" {
			t.Side = order.Sell
		} else {
			t.Side = order.Buy
		}
		t.DeriveCost()
		if !since.IsZero() && t.Timestamp.Before(since) {
			continue
		}
		trades = append(trades, t)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchOHLCV returns candles oldest first. The venue serves rows newest
// first with open before close, so rows are reshaped and reversed.
func (k *Kucoin) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := k.RequireFeature("FetchOHLCV", k.Features.OHLCV); err != nil {
		return nil, err
	}
	timeframe, ok := kucoinTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", k.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := k.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	var startAt int64
	if !since.IsZero() {
		startAt = since.Unix()
	}
	rows, err := k.GetCandles(ctx, m.ID, timeframe, startAt, 0)
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(rows))
	for i := range rows {
		candles = append(candles, kline.Candle{
			Time:   convert.TimeFromUnixSec(rows[i].Time),
			Open:   rows[i].Open,
			High:   rows[i].High,
			Low:    rows[i].Low,
			Close:  rows[i].Close,
			Volume: rows[i].Volume,
		})
	}
	kline.SortAscending(candles)
	return kline.Limit(candles, limit), nil
}

// CreateOrder places a limit or market order. A client order id is
// generated when the caller leaves it empty, as the venue requires one.
func (k *Kucoin) CreateOrder(ctx context.Context, submit *order.Submit) (*order.Detail, error) {
	if err := k.RequireFeature("CreateOrder", k.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := submit.Validate(); err != nil {
		return nil, err
	}
	m, err := k.marketForPair(ctx, submit.Pair)
	if err != nil {
		return nil, err
	}
	req := &OrderRequest{
		ClientOID: submit.ClientOrderID,
		Side:      strings.ToLower(submit.Side.String()),
		Symbol:    m.ID,
		Type:      strings.ToLower(submit.Type.String()),
	}
	if req.ClientOID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("%s: generating client order id: %w", k.Name, err)
		}
		req.ClientOID = id.String()
	}
	req.Size = strconv.FormatFloat(submit.Amount, 'f', -1, 64)
	if submit.Type == order.Limit {
		req.Price = strconv.FormatFloat(submit.Price, 'f', -1, 64)
	}
	orderID, err := k.PostOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	return &order.Detail{
		ID:            orderID,
		ClientOrderID: req.ClientOID,
		Pair:          m.Pair,
		Type:          submit.Type,
		Side:          submit.Side,
		Price:         submit.Price,
		Amount:        submit.Amount,
		Remaining:     submit.Amount,
		Status:        order.New,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// CancelOrder cancels one resting order
func (k *Kucoin) CancelOrder(ctx context.Context, orderID string, _ currency.Pair) error {
	if err := k.RequireFeature("CancelOrder", k.Features.CancelOrder); err != nil {
		return err
	}
	_, err := k.CancelOrderByID(ctx, orderID)
	return err
}

// CancelAllOrders cancels every resting order, scoped to pair when given
func (k *Kucoin) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := k.RequireFeature("CancelAllOrders", k.Features.CancelAllOrders); err != nil {
		return err
	}
	symbol := ""
	if !pair.IsEmpty() {
		m, err := k.marketForPair(ctx, pair)
		if err != nil {
			return err
		}
		symbol = m.ID
	}
	_, err := k.CancelAllOrdersBySymbol(ctx, symbol)
	return err
}

// parseOrder normalizes one venue order. The lifecycle is encoded by
// isActive and cancelExist: an inactive order was either cancelled or fully
// filled.
func (k *Kucoin) parseOrder(row *OrderDetail) (*order.Detail, error) {
	m, err := k.MarketFromID(row.Symbol)
	if err != nil {
		return nil, err
	}
	detail := &order.Detail{
		ID:            row.ID,
		ClientOrderID: row.ClientOID,
		Pair:          m.Pair,
		Timestamp:     convert.TimeFromUnixMilli(row.CreatedAt),
		Info:          row,
	}
	switch row.Side {
	case "sell":
		detail.Side = order.Sell
	default:
		detail.Side = order.Buy
	}
	switch row.Type {
	case "market":
		detail.Type = order.Market
	default:
		detail.Type = order.Limit
	}
	detail.Price, _ = convert.FloatFromString(row.Price)
	detail.Amount, _ = convert.FloatFromString(row.Size)
	detail.Filled, _ = convert.FloatFromString(row.DealSize)
	detail.Cost, _ = convert.FloatFromString(row.DealFunds)
	feeCost, _ := convert.FloatFromString(row.Fee)
	if feeCost > 0 {
		detail.Fee = order.Fee{Cost: feeCost, Currency: currency.NewCode(row.FeeCurrency)}
	}
	switch {
	case row.IsActive && detail.Filled > 0:
		detail.Status = order.PartiallyFilled
	case row.IsActive:
		detail.Status = order.New
	case row.CancelExist:
		detail.Status = order.Cancelled
	default:
		detail.Status = order.Filled
	}
	detail.DeriveRemaining()
	detail.DeriveAverage()
	return detail, nil
}

// FetchOrder returns one order by venue id
func (k *Kucoin) FetchOrder(ctx context.Context, orderID string, _ currency.Pair) (*order.Detail, error) {
	if err := k.RequireFeature("FetchOrder", k.Features.FetchOrder); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	row, err := k.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return k.parseOrder(row)
}

// collectOrders normalizes a page of venue orders, oldest first
func (k *Kucoin) collectOrders(rows []OrderDetail) []order.Detail {
	out := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail, err := k.parseOrder(&rows[i])
		if err != nil {
			log.Warnf(log.ExchangeSys, "%s: skipping order %s for unknown symbol %s",
				k.Name, rows[i].ID, rows[i].Symbol)
			continue
		}
		out = append(out, *detail)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FetchOpenOrders returns resting orders, optionally scoped to one pair
func (k *Kucoin) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := k.RequireFeature("FetchOpenOrders", k.Features.OpenOrders); err != nil {
		return nil, err
	}
	symbol := ""
	if !pair.IsEmpty() {
		m, err := k.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		symbol = m.ID
	} else if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	page, err := k.GetOrders(ctx, "active", symbol, 0)
	if err != nil {
		return nil, err
	}
	return k.collectOrders(page.Items), nil
}

// FetchClosedOrders returns completed orders, newest window last
func (k *Kucoin) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := k.RequireFeature("FetchClosedOrders", k.Features.ClosedOrders); err != nil {
		return nil, err
	}
	symbol := ""
	if !pair.IsEmpty() {
		m, err := k.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		symbol = m.ID
	} else if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	var startAt int64
	if !since.IsZero() {
		startAt = since.UnixMilli()
	}
	page, err := k.GetOrders(ctx, "done", symbol, startAt)
	if err != nil {
		return nil, err
	}
	orders := k.collectOrders(page.Items)
	if limit > 0 && len(orders) > limit {
		orders = orders[len(orders)-limit:]
	}
	return orders, nil
}

// FetchMyTrades returns account executions, oldest first
func (k *Kucoin) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := k.RequireFeature("FetchMyTrades", k.Features.MyTrades); err != nil {
		return nil, err
	}
	symbol := ""
	if !pair.IsEmpty() {
		m, err := k.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		symbol = m.ID
	} else if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	var startAt int64
	if !since.IsZero() {
		startAt = since.UnixMilli()
	}
	page, err := k.GetFills(ctx, symbol, startAt)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(page.Items))
	for i := range page.Items {
		row := &page.Items[i]
		m, err := k.MarketFromID(row.Symbol)
		if err != nil {
			log.Warnf(log.ExchangeSys, "%s: skipping fill %s for unknown symbol %s",
				k.Name, row.TradeID, row.Symbol)
			continue
		}
		t := trade.Data{
			ID:        row.TradeID,
			OrderID:   row.OrderID,
			Pair:      m.Pair,
			IsMaker:   row.Liquidity == "maker",
			Timestamp: convert.TimeFromUnixMilli(row.CreatedAt),
			Info:      row,
		}
		t.Price, _ = convert.FloatFromString(row.Price)
		t.Amount, _ = convert.FloatFromString(row.Size)
		t.Cost, _ = convert.FloatFromString(row.Funds)
		if row.Side == "sell" {
			t.Side = order.Sell
		} else {
			t.Side = order.Buy
		}
		feeCost, _ := convert.FloatFromString(row.Fee)
		if feeCost > 0 {
			t.Fee = order.Fee{Cost: feeCost, Currency: currency.NewCode(row.FeeCurrency)}
		}
		t.DeriveCost()
		trades = append(trades, t)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns the trading ledger. Funds parked in other account
// types are reported only for currencies absent from the trading ledger.
func (k *Kucoin) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := k.RequireFeature("FetchBalance", k.Features.Balance); err != nil {
		return nil, err
	}
	accounts, err := k.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	holdings := account.NewHoldings(k.Name)
	holdings.Timestamp = time.Now().UTC()
	holdings.Info = accounts
	set := func(row *AccountBalance) {
		entry := account.Balance{}
		entry.Total, _ = convert.FloatFromString(row.Balance)
		entry.Free, _ = convert.FloatFromString(row.Available)
		entry.Used, _ = convert.FloatFromString(row.Holds)
		holdings.Set(currency.NewCode(row.Currency), entry)
	}
	for i := range accounts {
		if accounts[i].Type == "trade" {
			set(&accounts[i])
		}
	}
	for i := range accounts {
		if accounts[i].Type == "trade" {
			continue
		}
		if _, ok := holdings.Balances[currency.NewCode(accounts[i].Currency)]; ok {
			continue
		}
		set(&accounts[i])
	}
	return &holdings, nil
}

// FetchTradingFees returns the actual fee rates for every listed market.
// The endpoint accepts ten symbols per call, so the directory is chunked.
func (k *Kucoin) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := k.RequireFeature("FetchTradingFees", k.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := k.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	markets := k.Markets()
	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	out := make(map[string]*fee.PairSchedule, len(ids))
	for start := 0; start < len(ids); start += kucoinFeeChunk {
		end := start + kucoinFeeChunk
		if end > len(ids) {
			end = len(ids)
		}
		fees, err := k.GetTradeFees(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for i := range fees {
			m, err := k.MarketFromID(fees[i].Symbol)
			if err != nil {
				continue
			}
			schedule := &fee.PairSchedule{Pair: m.Pair}
			schedule.Maker, _ = convert.FloatFromString(fees[i].MakerFeeRate)
			schedule.Taker, _ = convert.FloatFromString(fees[i].TakerFeeRate)
			out[m.Symbol] = schedule
		}
	}
	return out, nil
}
