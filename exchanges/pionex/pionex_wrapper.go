package pionex

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

// pionexTimeframes maps unified intervals to venue interval strings. The
// hour is expressed in minutes.
var pionexTimeframes = map[kline.Interval]string{
	kline.OneMin:     "1M",
	kline.FiveMin:    "5M",
	kline.FifteenMin: "15M",
	kline.ThirtyMin:  "30M",
	kline.OneHour:    "60M",
	kline.FourHour:   "4H",
	kline.EightHour:  "8H",
	kline.TwelveHour: "12H",
	kline.OneDay:     "1D",
}

// The venue exposes no fee endpoint; the published flat spot rate applies
// to every pair.
const (
	pionexDefaultMaker = 0.0005
	pionexDefaultTaker = 0.0005
)

// FetchMarkets returns tradable symbols as unified markets. Venue symbols
// are underscore separated and double as websocket topic symbols.
func (p *Pionex) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	rows, err := p.GetSymbols(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(rows))
	for i := range rows {
		s := &rows[i]
		base := currency.Code(strings.ToUpper(s.BaseCurrency))
		quote := currency.Code(strings.ToUpper(s.QuoteCurrency))
		pair := currency.NewPair(base, quote)
		m := &exchange.Market{
			ID:      s.Symbol,
			Symbol:  pair.Upper(),
			Pair:    pair,
			BaseID:  s.BaseCurrency,
			QuoteID: s.QuoteCurrency,
			Active:  s.Enable,
			Precision: exchange.MarketPrecision{
				Price:  s.QuotePrecision,
				Amount: s.BasePrecision,
			},
			Info: s,
		}
		if v, err := convert.FloatFromString(s.MinTradeSize); err == nil {
			m.Limits.Amount.Min = v
		}
		if v, err := convert.FloatFromString(s.MaxTradeSize); err == nil {
			m.Limits.Amount.Max = v
		}
		if v, err := convert.FloatFromString(s.MinAmount); err == nil {
			m.Limits.Cost.Min = v
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets populates the market registry on first call
func (p *Pionex) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
	if p.MarketsLoaded() && !reload {
		return p.Markets(), nil
	}
	markets, err := p.FetchMarkets(ctx)
	if err != nil {
		return nil, err
	}
	p.StoreMarkets(markets)
	return p.Markets(), nil
}

func (p *Pionex) ensureMarkets(ctx context.Context) error {
	if p.MarketsLoaded() {
		return nil
	}
	_, err := p.LoadMarkets(ctx, false)
	return err
}

func (p *Pionex) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := p.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return p.MarketFromSymbol(pair.Upper())
}

// pairFromSymbol resolves a venue symbol through the market registry, and
// falls back to splitting the underscore form when the registry misses.
func (p *Pionex) pairFromSymbol(symbol string) (currency.Pair, error) {
	if m, err := p.MarketFromID(symbol); err == nil {
		return m.Pair, nil
	}
	parts := strings.Split(strings.ToUpper(symbol), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return currency.Pair{}, fmt.Errorf("%s: cannot resolve symbol %q: %w",
			p.Name, symbol, exchange.ErrBadSymbol)
	}
	return currency.NewPair(currency.Code(parts[0]), currency.Code(parts[1])), nil
}

func (p *Pionex) parseTicker24(pair currency.Pair, t *Ticker24) *ticker.Price {
	last, _ := convert.FloatFromString(t.Close)
	open, _ := convert.FloatFromString(t.Open)
	high, _ := convert.FloatFromString(t.High)
	low, _ := convert.FloatFromString(t.Low)
	volume, _ := convert.FloatFromString(t.Volume)
	amount, _ := convert.FloatFromString(t.Amount)

	price := &ticker.Price{
		Pair:        pair,
		Last:        last,
		Open:        open,
		High:        high,
		Low:         low,
		Volume:      volume,
		QuoteVolume: amount,
		LastUpdated: timeFromMS(t.Time),
		Info:        t,
	}
	if price.LastUpdated.IsZero() {
		price.LastUpdated = time.Now().UTC()
	}
	price.DeriveChange()
	return price
}

// FetchTicker returns a 24h price snapshot for one pair
func (p *Pionex) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := p.RequireFeature("FetchTicker", p.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := p.GetTickers(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: ticker response missing %s: %w",
			p.Name, m.ID, exchange.ErrExchangeError)
	}
	return p.parseTicker24(m.Pair, &rows[0]), nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed spot pair when none are given
func (p *Pionex) FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error) {
	if err := p.RequireFeature("FetchTickers", p.Features.Tickers); err != nil {
		return nil, err
	}
	if err := p.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	rows, err := p.GetTickers(ctx, "")
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(pairs))
	for _, pr := range pairs {
		want[pr.Upper()] = true
	}
	out := make(map[string]*ticker.Price, len(rows))
	for i := range rows {
		m, err := p.MarketFromID(rows[i].Symbol)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		out[m.Symbol] = p.parseTicker24(m.Pair, &rows[i])
	}
	return out, nil
}

// FetchOrderBook returns the current book for one pair
func (p *Pionex) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := p.RequireFeature("FetchOrderBook", p.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	depth, err := p.GetDepth(ctx, m.ID, int64(limit))
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		Bids:        levelsToItems(depth.Bids),
		Asks:        levelsToItems(depth.Asks),
		LastUpdated: timeFromMS(depth.UpdateTime),
	}
	if book.LastUpdated.IsZero() {
		book.LastUpdated = time.Now().UTC()
	}
	book.Limit(limit)
	return book, book.Verify()
}

func levelsToItems(levels [][]string) []orderbook.Item {
	items := make([]orderbook.Item, 0, len(levels))
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		price, err := convert.FloatFromString(l[0])
		if err != nil {
			continue
		}
		amount, err := convert.FloatFromString(l[1])
		if err != nil {
			continue
		}
		items = append(items, orderbook.Item{Price: price, Amount: amount})
	}
	return items
}

// FetchTrades returns public trades for one pair, oldest first
func (p *Pionex) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := p.RequireFeature("FetchTrades", p.Features.Trades); err != nil {
		return nil, err
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := p.GetTrades(ctx, m.ID, int64(limit))
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		ts := timeFromMS(rows[i].Timestamp)
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		price, _ := convert.FloatFromString(rows[i].Price)
		amount, _ := convert.FloatFromString(rows[i].Size)
		side := order.Sell
		if strings.EqualFold(rows[i].Side, "BUY") {
			side = order.Buy
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].TradeID, 10),
			Pair:      m.Pair,
			Price:     price,
			Amount:    amount,
			Side:      side,
			Timestamp: ts,
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchOHLCV returns candles for one pair, oldest first. Row open times are
// milliseconds; since trims locally.
func (p *Pionex) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := p.RequireFeature("FetchOHLCV", p.Features.OHLCV); err != nil {
		return nil, err
	}
	scale, ok := pionexTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", p.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := p.GetKlines(ctx, m.ID, scale, int64(limit))
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(rows))
	for _, row := range rows {
		ts := timeFromMS(row.Time)
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		open, _ := convert.FloatFromString(row.Open)
		high, _ := convert.FloatFromString(row.High)
		low, _ := convert.FloatFromString(row.Low)
		closePrice, _ := convert.FloatFromString(row.Close)
		volume, _ := convert.FloatFromString(row.Volume)
		candles = append(candles, kline.Candle{
			Time:   ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	kline.SortAscending(candles)
	return kline.Limit(candles, limit), nil
}

// CreateOrder submits an order. Market buys spend the quote currency, so
// the requested amount is forwarded as the venue's quote amount field;
// market sells and limit orders size in base. An ioc param marks a limit
// order immediate-or-cancel.
func (p *Pionex) CreateOrder(ctx context.Context, s *order.Submit) (*order.Detail, error) {
	if err := p.RequireFeature("CreateOrder", p.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m, err := p.marketForPair(ctx, s.Pair)
	if err != nil {
		return nil, err
	}
	req := &PlaceOrderRequest{
		Symbol:        m.ID,
		Side:          strings.ToUpper(string(s.Side)),
		Type:          strings.ToUpper(string(s.Type)),
		ClientOrderID: s.ClientOrderID,
	}
	switch {
	case s.Type == order.Market && s.Side == order.Buy:
		req.Amount = strconv.FormatFloat(s.Amount, 'f', -1, 64)
	default:
		req.Size = strconv.FormatFloat(s.Amount, 'f', -1, 64)
	}
	if s.Type == order.Limit {
		req.Price = strconv.FormatFloat(s.Price, 'f', -1, 64)
		if v, ok := s.Params["ioc"].(bool); ok {
			req.IOC = v
		}
	}
	ack, err := p.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	detail := &order.Detail{
		ID:            strconv.FormatInt(ack.OrderID, 10),
		ClientOrderID: ack.ClientOrderID,
		Pair:          m.Pair,
		Type:          s.Type,
		Side:          s.Side,
		Price:         s.Price,
		Amount:        s.Amount,
		Remaining:     s.Amount,
		Status:        order.New,
		Timestamp:     time.Now().UTC(),
		Info:          ack,
	}
	if detail.ClientOrderID == "" {
		detail.ClientOrderID = s.ClientOrderID
	}
	return detail, nil
}

// CancelOrder cancels one order. The venue keys cancellation by symbol and
// numeric order id.
func (p *Pionex) CancelOrder(ctx context.Context, orderID string, pair currency.Pair) error {
	if err := p.RequireFeature("CancelOrder", p.Features.CancelOrder); err != nil {
		return err
	}
	if pair.IsEmpty() {
		return fmt.Errorf("%s: cancel needs the order's pair: %w", p.Name, order.ErrPairIsEmpty)
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: order id %q is not numeric: %w", p.Name, orderID, exchange.ErrBadRequest)
	}
	return p.CancelExistingOrder(ctx, m.ID, id)
}

// CancelAllOrders cancels every resting order on one pair
func (p *Pionex) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := p.RequireFeature("CancelAllOrders", p.Features.CancelAllOrders); err != nil {
		return err
	}
	if pair.IsEmpty() {
		return fmt.Errorf("%s: cancel all needs a pair: %w", p.Name, order.ErrPairIsEmpty)
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	return p.CancelAllExistingOrders(ctx, m.ID)
}

// pionexOrderStatus folds the venue's two-state status onto the unified
// alphabet. CLOSED covers both full fills and cancellations, so the filled
// quantities decide which. Quote-denominated market buys report no size and
// resolve on filled amount instead.
func pionexOrderStatus(status string, size, filledSize, filledAmount float64) order.Status {
	switch status {
	case "OPEN":
		if filledSize > 0 {
			return order.PartiallyFilled
		}
		return order.New
	case "CLOSED":
		if size > 0 {
			if filledSize >= size {
				return order.Filled
			}
			return order.Cancelled
		}
		if filledAmount > 0 {
			return order.Filled
		}
		return order.Cancelled
	default:
		return order.UnknownStatus
	}
}

func (p *Pionex) parseVenueOrder(row *VenueOrder) (order.Detail, error) {
	pair, err := p.pairFromSymbol(row.Symbol)
	if err != nil {
		return order.Detail{}, err
	}
	price, _ := convert.FloatFromString(row.Price)
	size, _ := convert.FloatFromString(row.Size)
	amount, _ := convert.FloatFromString(row.Amount)
	filledSize, _ := convert.FloatFromString(row.FilledSize)
	filledAmount, _ := convert.FloatFromString(row.FilledAmount)
	feeCost, _ := convert.FloatFromString(row.Fee)

	side := order.Buy
	if strings.EqualFold(row.Side, "SELL") {
		side = order.Sell
	}
	ts := timeFromMS(row.CreateTime)
	if ts.IsZero() {
		ts = timeFromMS(row.UpdateTime)
	}
	detail := order.Detail{
		ID:            strconv.FormatInt(row.OrderID, 10),
		ClientOrderID: row.ClientOrderID,
		Pair:          pair,
		Type:          order.StringToOrderType(row.Type),
		Side:          side,
		Price:         price,
		Amount:        size,
		Filled:        filledSize,
		Cost:          filledAmount,
		Status:        pionexOrderStatus(row.Status, size, filledSize, filledAmount),
		Timestamp:     ts,
		Info:          row,
	}
	if size > 0 {
		detail.Remaining = size - filledSize
	} else if amount > 0 {
		// quote-denominated market buy: the venue reports no base size
		detail.Amount = amount
	}
	if feeCost > 0 {
		detail.Fee = order.Fee{
			Cost:     feeCost,
			Currency: currency.Code(strings.ToUpper(row.FeeCoin)),
		}
	}
	detail.DeriveAverage()
	return detail, nil
}

// FetchOrder returns one order. Numeric ids query directly; anything else
// is forwarded as the client order id. The venue keys lookups by id alone,
// so the pair is optional.
func (p *Pionex) FetchOrder(ctx context.Context, orderID string, pair currency.Pair) (*order.Detail, error) {
	if err := p.RequireFeature("FetchOrder", p.Features.FetchOrder); err != nil {
		return nil, err
	}
	if err := p.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	var row *VenueOrder
	var err error
	if id, convErr := strconv.ParseInt(orderID, 10, 64); convErr == nil {
		row, err = p.GetOrder(ctx, id)
	} else {
		row, err = p.GetOrderByClientID(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	detail, err := p.parseVenueOrder(row)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// FetchOpenOrders returns resting orders for one pair
func (p *Pionex) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := p.RequireFeature("FetchOpenOrders", p.Features.OpenOrders); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: open orders need a pair: %w", p.Name, order.ErrPairIsEmpty)
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := p.GetOpenOrders(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail, err := p.parseVenueOrder(&rows[i])
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
func (p *Pionex) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := p.RequireFeature("FetchClosedOrders", p.Features.ClosedOrders); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: order history needs a pair: %w", p.Name, order.ErrPairIsEmpty)
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := p.GetAllOrders(ctx, m.ID, 0)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail, err := p.parseVenueOrder(&rows[i])
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

// FetchMyTrades returns account fills for one pair, oldest first
func (p *Pionex) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := p.RequireFeature("FetchMyTrades", p.Features.MyTrades); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: fill history needs a pair: %w", p.Name, order.ErrPairIsEmpty)
	}
	m, err := p.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if !since.IsZero() {
		start = since.UnixMilli()
	}
	rows, err := p.GetFills(ctx, m.ID, start, 0)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		price, _ := convert.FloatFromString(rows[i].Price)
		amount, _ := convert.FloatFromString(rows[i].Size)
		feeCost, _ := convert.FloatFromString(rows[i].Fee)
		side := order.Sell
		if strings.EqualFold(rows[i].Side, "BUY") {
			side = order.Buy
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].ID, 10),
			OrderID:   strconv.FormatInt(rows[i].OrderID, 10),
			Pair:      m.Pair,
			Price:     price,
			Amount:    amount,
			Side:      side,
			IsMaker:   strings.EqualFold(rows[i].Role, "MAKER"),
			Timestamp: timeFromMS(rows[i].Timestamp),
			Fee: order.Fee{
				Cost:     feeCost,
				Currency: currency.Code(strings.ToUpper(rows[i].FeeCoin)),
			},
			Info: rows[i],
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns per-coin free and frozen amounts
func (p *Pionex) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := p.RequireFeature("FetchBalance", p.Features.Balance); err != nil {
		return nil, err
	}
	rows, err := p.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	holdings := account.NewHoldings(p.Name)
	holdings.Timestamp = time.Now().UTC()
	holdings.Info = rows
	for i := range rows {
		free, _ := convert.FloatFromString(rows[i].Free)
		frozen, _ := convert.FloatFromString(rows[i].Frozen)
		if free == 0 && frozen == 0 {
			continue
		}
		code := currency.Code(strings.ToUpper(rows[i].Coin))
		holdings.Set(code, account.Balance{Free: free, Used: frozen})
	}
	return &holdings, nil
}

// FetchTradingFees returns the flat default schedule for every listed pair
func (p *Pionex) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := p.RequireFeature("FetchTradingFees", p.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := p.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	all := p.Markets()
	out := make(map[string]*fee.PairSchedule, len(all))
	for _, m := range all {
		out[m.Symbol] = &fee.PairSchedule{
			Pair:  m.Pair,
			Maker: pionexDefaultMaker,
			Taker: pionexDefaultTaker,
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
