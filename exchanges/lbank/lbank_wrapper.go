package lbank

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
)

// lbankTimeframes maps unified intervals to kbar.do scale tokens
var lbankTimeframes = map[kline.Interval]string{
	kline.OneMin:     "minute1",
	kline.FiveMin:    "minute5",
	kline.FifteenMin: "minute15",
	kline.ThirtyMin:  "minute30",
	kline.OneHour:    "hour1",
	kline.FourHour:   "hour4",
	kline.EightHour:  "hour8",
	kline.TwelveHour: "hour12",
	kline.OneDay:     "day1",
	kline.OneWeek:    "week1",
	kline.OneMonth:   "month1",
}

// The venue exposes no fee endpoint; the published flat spot rate applies
// to every pair.
const (
	lbankDefaultMaker = 0.001
	lbankDefaultTaker = 0.001
)

// lbankPageLength is the page size requested from the paged order endpoints
const lbankPageLength = 200

// FetchMarkets returns tradable symbols as unified markets. Venue symbols
// are lowercase underscore separated and double as websocket pair names.
// The accuracy listing carries no status field, so every row is active.
func (l *Lbank) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	rows, err := l.GetAccuracy(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		parts := strings.Split(row.Symbol, "_")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		base := currency.Code(strings.ToUpper(parts[0]))
		quote := currency.Code(strings.ToUpper(parts[1]))
		pair := currency.NewPair(base, quote)
		m := &exchange.Market{
			ID:      row.Symbol,
			Symbol:  pair.Upper(),
			Pair:    pair,
			BaseID:  parts[0],
			QuoteID: parts[1],
			Active:  true,
			Info:    row,
		}
		if v, err := strconv.Atoi(row.PriceAccuracy); err == nil {
			m.Precision.Price = v
		}
		if v, err := strconv.Atoi(row.QuantityAccuracy); err == nil {
			m.Precision.Amount = v
		}
		if v, err := convert.FloatFromString(row.MinimumQuantity); err == nil {
			m.Limits.Amount.Min = v
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets populates the market registry on first call
func (l *Lbank) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
	if l.MarketsLoaded() && !reload {
		return l.Markets(), nil
	}
	markets, err := l.FetchMarkets(ctx)
	if err != nil {
		return nil, err
	}
	l.StoreMarkets(markets)
	return l.Markets(), nil
}

func (l *Lbank) ensureMarkets(ctx context.Context) error {
	if l.MarketsLoaded() {
		return nil
	}
	_, err := l.LoadMarkets(ctx, false)
	return err
}

func (l *Lbank) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := l.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return l.MarketFromSymbol(pair.Upper())
}

// pairFromSymbol resolves a venue symbol through the market registry, and
// falls back to splitting the underscore form when the registry misses.
func (l *Lbank) pairFromSymbol(symbol string) (currency.Pair, error) {
	if m, err := l.MarketFromID(symbol); err == nil {
		return m.Pair, nil
	}
	parts := strings.Split(strings.ToUpper(symbol), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return currency.Pair{}, fmt.Errorf("%s: cannot resolve symbol %q: %w",
			l.Name, symbol, exchange.ErrBadSymbol)
	}
	return currency.NewPair(currency.Code(parts[0]), currency.Code(parts[1])), nil
}

// lbankSide folds the venue trade side field, which arrives as a string on
// most feeds (buy, sell, buy_market, sell_market) and as a bare 0/1 on some
func lbankSide(v interface{}) order.Side {
	switch t := v.(type) {
	case string:
		if strings.Contains(strings.ToLower(t), "sell") {
			return order.Sell
		}
		return order.Buy
	case float64:
		if t == 1 {
			return order.Sell
		}
		return order.Buy
	default:
		return order.UnknownSide
	}
}

// lbankSideType splits the venue's combined order type (buy, sell,
// buy_market, sell_market) into the unified side and kind
func lbankSideType(venueType string) (order.Side, order.Type) {
	folded := strings.ToLower(venueType)
	side := order.Buy
	if strings.Contains(folded, "sell") {
		side = order.Sell
	}
	typ := order.Limit
	if strings.Contains(folded, "market") {
		typ = order.Market
	}
	return side, typ
}

// lbankOrderType renders the combined venue order type for a submission
func lbankOrderType(s *order.Submit) string {
	venueType := strings.ToLower(string(s.Side))
	if s.Type == order.Market {
		venueType += "_market"
	}
	return venueType
}

func (l *Lbank) parseTickerRow(pair currency.Pair, row *TickerRow) *ticker.Price {
	price := &ticker.Price{
		Pair:        pair,
		Last:        row.Ticker.Latest,
		High:        row.Ticker.High,
		Low:         row.Ticker.Low,
		Volume:      row.Ticker.Volume,
		QuoteVolume: row.Ticker.Turnover,
		Percentage:  row.Ticker.Change,
		LastUpdated: timeFromMS(row.Timestamp),
		Info:        row,
	}
	if price.LastUpdated.IsZero() {
		price.LastUpdated = time.Now().UTC()
	}
	return price
}

// FetchTicker returns a 24h price snapshot for one pair
func (l *Lbank) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := l.RequireFeature("FetchTicker", l.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := l.GetTicker(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: ticker response missing %s: %w",
			l.Name, m.ID, exchange.ErrExchangeError)
	}
	return l.parseTickerRow(m.Pair, &rows[0]), nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed pair when none are given
func (l *Lbank) FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error) {
	if err := l.RequireFeature("FetchTickers", l.Features.Tickers); err != nil {
		return nil, err
	}
	if err := l.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	rows, err := l.GetTicker(ctx, "all")
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(pairs))
	for _, pr := range pairs {
		want[pr.Upper()] = true
	}
	out := make(map[string]*ticker.Price, len(rows))
	for i := range rows {
		m, err := l.MarketFromID(rows[i].Symbol)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		out[m.Symbol] = l.parseTickerRow(m.Pair, &rows[i])
	}
	return out, nil
}

// FetchOrderBook returns the current book for one pair
func (l *Lbank) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := l.RequireFeature("FetchOrderBook", l.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	depth, err := l.GetMarketDepth(ctx, m.ID, int64(limit))
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		Bids:        floatLevelsToItems(depth.Bids),
		Asks:        floatLevelsToItems(depth.Asks),
		LastUpdated: timeFromMS(depth.Timestamp),
	}
	if book.LastUpdated.IsZero() {
		book.LastUpdated = time.Now().UTC()
	}
	book.Limit(limit)
	return book, book.Verify()
}

func floatLevelsToItems(levels [][]float64) []orderbook.Item {
	items := make([]orderbook.Item, 0, len(levels))
	for _, lvl := range levels {
		if len(lvl) < 2 {
			continue
		}
		items = append(items, orderbook.Item{Price: lvl[0], Amount: lvl[1]})
	}
	return items
}

// FetchTrades returns public trades for one pair, oldest first
func (l *Lbank) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := l.RequireFeature("FetchTrades", l.Features.Trades); err != nil {
		return nil, err
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	startMS := int64(0)
	if !since.IsZero() {
		startMS = since.UnixMilli()
	}
	rows, err := l.GetTrades(ctx, m.ID, int64(limit), startMS)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		ts := timeFromMS(rows[i].DateMS)
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		data := trade.Data{
			ID:        rows[i].TID,
			Pair:      m.Pair,
			Price:     rows[i].Price,
			Amount:    rows[i].Amount,
			Side:      lbankSide(rows[i].Type),
			Timestamp: ts,
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchOHLCV returns candles for one pair, oldest first. The venue requires
// a window start, so an absent since is backfilled from the requested size.
// Row open times are seconds.
func (l *Lbank) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := l.RequireFeature("FetchOHLCV", l.Features.OHLCV); err != nil {
		return nil, err
	}
	scale, ok := lbankTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", l.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	size := int64(limit)
	if size <= 0 {
		size = 100
	}
	start := since
	if start.IsZero() {
		start = time.Now().Add(-time.Duration(size) * time.Duration(interval)).UTC()
	}
	rows, err := l.GetKbars(ctx, m.ID, scale, size, start.Unix())
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts := timeFromSec(int64(row[0]))
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		candles = append(candles, kline.Candle{
			Time:   ts,
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}
	kline.SortAscending(candles)
	return kline.Limit(candles, limit), nil
}

// CreateOrder submits an order. The venue folds side and kind into one type
// token; market buys spend the quote currency, so the requested amount is
// forwarded as the venue's price field, while market sells and limit orders
// size in base.
func (l *Lbank) CreateOrder(ctx context.Context, s *order.Submit) (*order.Detail, error) {
	if err := l.RequireFeature("CreateOrder", l.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m, err := l.marketForPair(ctx, s.Pair)
	if err != nil {
		return nil, err
	}
	var price, amount string
	switch {
	case s.Type == order.Market && s.Side == order.Buy:
		price = strconv.FormatFloat(s.Amount, 'f', -1, 64)
	case s.Type == order.Market && s.Side == order.Sell:
		amount = strconv.FormatFloat(s.Amount, 'f', -1, 64)
	default:
		price = strconv.FormatFloat(s.Price, 'f', -1, 64)
		amount = strconv.FormatFloat(s.Amount, 'f', -1, 64)
	}
	ack, err := l.PlaceOrder(ctx, m.ID, lbankOrderType(s), price, amount, s.ClientOrderID)
	if err != nil {
		return nil, err
	}
	return &order.Detail{
		ID:            ack.OrderID,
		ClientOrderID: s.ClientOrderID,
		Pair:          m.Pair,
		Type:          s.Type,
		Side:          s.Side,
		Price:         s.Price,
		Amount:        s.Amount,
		Remaining:     s.Amount,
		Status:        order.New,
		Timestamp:     time.Now().UTC(),
		Info:          ack,
	}, nil
}

// CancelOrder cancels one order. The venue keys cancellation by symbol and
// order id and reports batch rejections on the error list.
func (l *Lbank) CancelOrder(ctx context.Context, orderID string, pair currency.Pair) error {
	if err := l.RequireFeature("CancelOrder", l.Features.CancelOrder); err != nil {
		return err
	}
	if pair.IsEmpty() {
		return fmt.Errorf("%s: cancel needs the order's pair: %w", l.Name, order.ErrPairIsEmpty)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	resp, err := l.RemoveOrder(ctx, m.ID, orderID)
	if err != nil {
		return err
	}
	if resp.Error != "" && strings.Contains(resp.Error, orderID) {
		return fmt.Errorf("%s: cancel rejected for %s: %w", l.Name, orderID, exchange.ErrOrderNotFound)
	}
	return nil
}

// CancelAllOrders cancels every resting order on one pair. The venue has no
// bulk endpoint, so open order ids are collected and cancelled in batches
// of three.
func (l *Lbank) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := l.RequireFeature("CancelAllOrders", l.Features.CancelAllOrders); err != nil {
		return err
	}
	if pair.IsEmpty() {
		return fmt.Errorf("%s: cancel all needs a pair: %w", l.Name, order.ErrPairIsEmpty)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	rows, err := l.openOrderRows(ctx, m.ID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(rows))
	for i := range rows {
		if rows[i].OrderID != "" {
			ids = append(ids, rows[i].OrderID)
		}
	}
	for start := 0; start < len(ids); start += lbankCancelBatchSize {
		end := start + lbankCancelBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := l.RemoveOrder(ctx, m.ID, strings.Join(ids[start:end], ",")); err != nil {
			return err
		}
	}
	return nil
}

// lbankOrderStatus folds the venue's numeric order state onto the unified
// alphabet. 3 is partially filled then cancelled and 4 is cancelling; both
// resolve as cancelled.
func lbankOrderStatus(status int64) order.Status {
	switch status {
	case -1:
		return order.Cancelled
	case 0:
		return order.New
	case 1:
		return order.PartiallyFilled
	case 2:
		return order.Filled
	case 3, 4:
		return order.Cancelled
	default:
		return order.UnknownStatus
	}
}

func (l *Lbank) parseVenueOrder(row *VenueOrder) (order.Detail, error) {
	pair, err := l.pairFromSymbol(row.Symbol)
	if err != nil {
		return order.Detail{}, err
	}
	side, typ := lbankSideType(row.Type)
	detail := order.Detail{
		ID:            row.OrderID,
		ClientOrderID: row.CustomID,
		Pair:          pair,
		Type:          typ,
		Side:          side,
		Price:         row.Price,
		Average:       row.AvgPrice,
		Amount:        row.Amount,
		Filled:        row.DealAmount,
		Status:        lbankOrderStatus(row.Status),
		Timestamp:     timeFromMS(row.CreateTime),
		Info:          row,
	}
	if row.Amount > 0 {
		detail.Remaining = row.Amount - row.DealAmount
	}
	detail.DeriveCost()
	return detail, nil
}

// FetchOrder returns one order. The venue keys lookups by symbol and id, so
// the pair is required.
func (l *Lbank) FetchOrder(ctx context.Context, orderID string, pair currency.Pair) (*order.Detail, error) {
	if err := l.RequireFeature("FetchOrder", l.Features.FetchOrder); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: order lookup needs the order's pair: %w", l.Name, order.ErrPairIsEmpty)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := l.QueryOrder(ctx, m.ID, orderID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: order %s: %w", l.Name, orderID, exchange.ErrOrderNotFound)
	}
	detail, err := l.parseVenueOrder(&rows[0])
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// openOrderRows pages orders_info_no_deal.do until a short page
func (l *Lbank) openOrderRows(ctx context.Context, symbol string) ([]VenueOrder, error) {
	var rows []VenueOrder
	for page := int64(1); ; page++ {
		resp, err := l.GetOpenOrders(ctx, symbol, page, lbankPageLength)
		if err != nil {
			return nil, err
		}
		batch, err := decodeOrders(resp.Orders)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if int64(len(batch)) < lbankPageLength {
			return rows, nil
		}
	}
}

// FetchOpenOrders returns resting orders for one pair, oldest first
func (l *Lbank) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := l.RequireFeature("FetchOpenOrders", l.Features.OpenOrders); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: open orders need a pair: %w", l.Name, order.ErrPairIsEmpty)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := l.openOrderRows(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail, err := l.parseVenueOrder(&rows[i])
		if err != nil {
			continue
		}
		orders = append(orders, detail)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.Before(orders[j].Timestamp)
	})
	return orders, nil
}

// FetchClosedOrders returns completed orders for one pair, oldest first.
// The history endpoint mixes states, so open orders are dropped locally.
func (l *Lbank) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := l.RequireFeature("FetchClosedOrders", l.Features.ClosedOrders); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: order history needs a pair: %w", l.Name, order.ErrPairIsEmpty)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	var rows []VenueOrder
	for page := int64(1); ; page++ {
		resp, err := l.GetOrderHistory(ctx, m.ID, page, lbankPageLength)
		if err != nil {
			return nil, err
		}
		batch, err := decodeOrders(resp.Orders)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if int64(len(batch)) < lbankPageLength {
			break
		}
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail, err := l.parseVenueOrder(&rows[i])
		if err != nil {
			continue
		}
		if detail.Status == order.New || detail.Status == order.PartiallyFilled {
			continue
		}
		if !since.IsZero() && detail.Timestamp.Before(since) {
			continue
		}
		orders = append(orders, detail)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.Before(orders[j].Timestamp)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[len(orders)-limit:]
	}
	return orders, nil
}

// FetchMyTrades returns account fills for one pair, oldest first. The venue
// reports no fee currency, so fees carry cost only.
func (l *Lbank) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := l.RequireFeature("FetchMyTrades", l.Features.MyTrades); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: fill history needs a pair: %w", l.Name, order.ErrPairIsEmpty)
	}
	m, err := l.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	startDate := ""
	if !since.IsZero() {
		startDate = since.UTC().Format("2006-01-02")
	}
	rows, err := l.GetTransactionHistory(ctx, m.ID, startDate, "", int64(limit))
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		ts := timeFromMS(rows[i].DealTime)
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		data := trade.Data{
			ID:        rows[i].TxUUID,
			OrderID:   rows[i].OrderUUID,
			Pair:      m.Pair,
			Price:     rows[i].DealPrice,
			Amount:    rows[i].DealQuantity,
			Cost:      rows[i].DealVolumePrice,
			Side:      lbankSide(rows[i].TradeType),
			Timestamp: ts,
			Info:      rows[i],
		}
		if rows[i].TradeFee > 0 {
			data.Fee = order.Fee{Cost: rows[i].TradeFee}
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns per-coin balances. The venue reports free, frozen
// and total maps keyed by lowercase coin names.
func (l *Lbank) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := l.RequireFeature("FetchBalance", l.Features.Balance); err != nil {
		return nil, err
	}
	assets, err := l.GetUserInfo(ctx)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]account.Balance)
	for coin, v := range assets.Free {
		if amount, err := convert.FloatFromString(v); err == nil {
			b := balances[coin]
			b.Free = amount
			balances[coin] = b
		}
	}
	for coin, v := range assets.Freeze {
		if amount, err := convert.FloatFromString(v); err == nil {
			b := balances[coin]
			b.Used = amount
			balances[coin] = b
		}
	}
	for coin, v := range assets.Asset {
		if amount, err := convert.FloatFromString(v); err == nil {
			b := balances[coin]
			b.Total = amount
			balances[coin] = b
		}
	}
	holdings := account.NewHoldings(l.Name)
	holdings.Timestamp = time.Now().UTC()
	holdings.Info = assets
	for coin, b := range balances {
		if b.Free == 0 && b.Used == 0 && b.Total == 0 {
			continue
		}
		holdings.Set(currency.Code(strings.ToUpper(coin)), b)
	}
	return &holdings, nil
}

// FetchTradingFees returns the flat default schedule for every listed pair
func (l *Lbank) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := l.RequireFeature("FetchTradingFees", l.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := l.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	all := l.Markets()
	out := make(map[string]*fee.PairSchedule, len(all))
	for _, m := range all {
		out[m.Symbol] = &fee.PairSchedule{
			Pair:  m.Pair,
			Maker: lbankDefaultMaker,
			Taker: lbankDefaultTaker,
		}
	}
	return out, nil
}

func timeFromMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeFromSec(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
