package bittrex

import (
	"context"
	"fmt"
	"sort"
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

// bittrexTimeframes maps unified intervals to candle path tokens; the same
// tokens name the stream's candle channels
var bittrexTimeframes = map[kline.Interval]string{
	kline.OneMin:  "MINUTE_1",
	kline.FiveMin: "MINUTE_5",
	kline.OneHour: "HOUR_1",
	kline.OneDay:  "DAY_1",
}

// bittrexIntervalTokens inverts bittrexTimeframes to resolve the interval
// echoed on candle stream events
var bittrexIntervalTokens = func() map[string]kline.Interval {
	m := make(map[string]kline.Interval, len(bittrexTimeframes))
	for interval, token := range bittrexTimeframes {
		m[token] = interval
	}
	return m
}()

// bittrexClosedPageSize is the page size requested from the closed order
// endpoint; the venue caps pages at 200 rows
const bittrexClosedPageSize = 200

// FetchMarkets returns tradable symbols as unified markets. Venue symbols
// are hyphenated uppercase and double as stream market names.
func (b *Bittrex) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	rows, err := b.GetMarkets(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		if row.BaseCurrencySymbol == "" || row.QuoteCurrencySymbol == "" {
			continue
		}
		base := currency.Code(strings.ToUpper(row.BaseCurrencySymbol))
		quote := currency.Code(strings.ToUpper(row.QuoteCurrencySymbol))
		pair := currency.NewPair(base, quote)
		m := &exchange.Market{
			ID:      row.Symbol,
			Symbol:  pair.Upper(),
			Pair:    pair,
			BaseID:  row.BaseCurrencySymbol,
			QuoteID: row.QuoteCurrencySymbol,
			Active:  row.Status == "ONLINE",
			Info:    row,
		}
		m.Precision.Price = int(row.Precision)
		m.Limits.Amount.Min = row.MinTradeSize
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets populates the market registry on first call
func (b *Bittrex) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
	if b.MarketsLoaded() && !reload {
		return b.Markets(), nil
	}
	markets, err := b.FetchMarkets(ctx)
	if err != nil {
		return nil, err
	}
	b.StoreMarkets(markets)
	return b.Markets(), nil
}

func (b *Bittrex) ensureMarkets(ctx context.Context) error {
	if b.MarketsLoaded() {
		return nil
	}
	_, err := b.LoadMarkets(ctx, false)
	return err
}

func (b *Bittrex) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return b.MarketFromSymbol(pair.Upper())
}

// pairFromSymbol resolves a venue market symbol through the registry, and
// falls back to splitting the hyphenated form when the registry misses
func (b *Bittrex) pairFromSymbol(symbol string) (currency.Pair, error) {
	if m, err := b.MarketFromID(symbol); err == nil {
		return m.Pair, nil
	}
	parts := strings.Split(strings.ToUpper(symbol), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return currency.Pair{}, fmt.Errorf("%s: cannot resolve symbol %q: %w",
			b.Name, symbol, exchange.ErrBadSymbol)
	}
	return currency.NewPair(currency.Code(parts[0]), currency.Code(parts[1])), nil
}

// bittrexSide folds a venue direction or taker side token
func bittrexSide(direction string) order.Side {
	if strings.EqualFold(direction, "SELL") {
		return order.Sell
	}
	return order.Buy
}

// bittrexOrderType folds a venue order type token. Ceiling variants size in
// quote and resolve as market orders.
func bittrexOrderType(venueType string) order.Type {
	if strings.Contains(strings.ToUpper(venueType), "MARKET") {
		return order.Market
	}
	return order.Limit
}

// bittrexOrderStatus folds the venue's two-state lifecycle onto the unified
// alphabet. The venue reports only OPEN and CLOSED; the fill quantity
// disambiguates filled from cancelled terminal states.
func bittrexOrderStatus(status string, fillQuantity, quantity float64) order.Status {
	switch strings.ToUpper(status) {
	case "OPEN":
		if fillQuantity > 0 {
			return order.PartiallyFilled
		}
		return order.New
	case "CLOSED":
		if quantity > 0 && fillQuantity >= quantity {
			return order.Filled
		}
		return order.Cancelled
	default:
		return order.UnknownStatus
	}
}

// FetchTicker returns a 24h price snapshot for one pair. The venue splits
// top of book and rolling statistics across two endpoints.
func (b *Bittrex) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := b.RequireFeature("FetchTicker", b.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	tick, err := b.GetTicker(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	summary, err := b.GetMarketSummary(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return b.constructTicker(m.Pair, tick, summary), nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed pair when none are given
func (b *Bittrex) FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error) {
	if err := b.RequireFeature("FetchTickers", b.Features.Tickers); err != nil {
		return nil, err
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	ticks, err := b.GetTickers(ctx)
	if err != nil {
		return nil, err
	}
	summaries, err := b.GetMarketSummaries(ctx)
	if err != nil {
		return nil, err
	}
	summaryBySymbol := make(map[string]*MarketSummaryData, len(summaries))
	for i := range summaries {
		summaryBySymbol[summaries[i].Symbol] = &summaries[i]
	}
	want := make(map[string]bool, len(pairs))
	for _, pr := range pairs {
		want[pr.Upper()] = true
	}
	out := make(map[string]*ticker.Price, len(ticks))
	for i := range ticks {
		m, err := b.MarketFromID(ticks[i].Symbol)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		out[m.Symbol] = b.constructTicker(m.Pair, &ticks[i], summaryBySymbol[ticks[i].Symbol])
	}
	return out, nil
}

func (b *Bittrex) constructTicker(pair currency.Pair, tick *TickerData, summary *MarketSummaryData) *ticker.Price {
	price := &ticker.Price{
		Pair:        pair,
		Last:        tick.LastTradeRate,
		Bid:         tick.BidRate,
		Ask:         tick.AskRate,
		LastUpdated: time.Now().UTC(),
		Info:        tick,
	}
	if summary != nil {
		price.High = summary.High
		price.Low = summary.Low
		price.Volume = summary.Volume
		price.QuoteVolume = summary.QuoteVolume
		price.Percentage = summary.PercentChange
		if !summary.UpdatedAt.IsZero() {
			price.LastUpdated = summary.UpdatedAt
		}
	}
	return price
}

// orderbookDepthFor rounds a requested limit up to the nearest served
// bucket. Zero and negative limits take the middle bucket.
func orderbookDepthFor(limit int) int {
	if limit <= 0 {
		return 25
	}
	for _, d := range orderbookDepths {
		if limit <= d {
			return d
		}
	}
	return orderbookDepths[len(orderbookDepths)-1]
}

// FetchOrderBook returns the current book for one pair. The venue serves
// fixed depth buckets, so the request rounds up and the result is trimmed.
func (b *Bittrex) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := b.RequireFeature("FetchOrderBook", b.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	depth, sequence, err := b.GetOrderbook(ctx, m.ID, orderbookDepthFor(limit))
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		Bids:        entriesToItems(depth.Bid),
		Asks:        entriesToItems(depth.Ask),
		Nonce:       sequence,
		LastUpdated: time.Now().UTC(),
	}
	book.Limit(limit)
	return book, book.Verify()
}

func entriesToItems(entries []OrderbookEntryData) []orderbook.Item {
	items := make([]orderbook.Item, 0, len(entries))
	for i := range entries {
		items = append(items, orderbook.Item{
			Price:  entries[i].Rate,
			Amount: entries[i].Quantity,
		})
	}
	return items
}

// FetchTrades returns recent public trades for one pair, oldest first. The
// endpoint serves a fixed recent window with no cursor.
func (b *Bittrex) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := b.RequireFeature("FetchTrades", b.Features.Trades); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := b.GetMarketTrades(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		if !since.IsZero() && rows[i].ExecutedAt.Before(since) {
			continue
		}
		data := trade.Data{
			ID:        rows[i].ID,
			Pair:      m.Pair,
			Price:     rows[i].Rate,
			Amount:    rows[i].Quantity,
			Side:      bittrexSide(rows[i].TakerSide),
			Timestamp: rows[i].ExecutedAt,
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchOHLCV returns recent candles for one pair, oldest first. The venue
// serves a fixed recent window per interval.
func (b *Bittrex) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := b.RequireFeature("FetchOHLCV", b.Features.OHLCV); err != nil {
		return nil, err
	}
	token, ok := bittrexTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", b.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := b.GetRecentCandles(ctx, m.ID, token)
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(rows))
	for i := range rows {
		if !since.IsZero() && rows[i].StartsAt.Before(since) {
			continue
		}
		candles = append(candles, kline.Candle{
			Time:   rows[i].StartsAt,
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

// CreateOrder submits an order. Orders default to GOOD_TIL_CANCELLED for
// limit and IMMEDIATE_OR_CANCEL for market; a timeInForce param overrides
// either.
func (b *Bittrex) CreateOrder(ctx context.Context, s *order.Submit) (*order.Detail, error) {
	if err := b.RequireFeature("CreateOrder", b.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, s.Pair)
	if err != nil {
		return nil, err
	}
	tif := GoodTilCancelled
	if s.Type == order.Market {
		tif = ImmediateOrCancel
	}
	if v, ok := s.Params["timeInForce"].(string); ok && v != "" {
		tif = TimeInForce(v)
	}
	req := &NewOrderRequest{
		MarketSymbol:  m.ID,
		Direction:     strings.ToUpper(string(s.Side)),
		Type:          strings.ToUpper(string(s.Type)),
		Quantity:      s.Amount,
		TimeInForce:   tif,
		ClientOrderID: s.ClientOrderID,
	}
	if s.Type == order.Limit {
		req.Limit = s.Price
	}
	ack, err := b.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	detail := b.parseVenueOrder(ack)
	return &detail, nil
}

// CancelOrder cancels one order. The venue keys cancellation by id alone,
// so the pair is advisory.
func (b *Bittrex) CancelOrder(ctx context.Context, orderID string, _ currency.Pair) error {
	if err := b.RequireFeature("CancelOrder", b.Features.CancelOrder); err != nil {
		return err
	}
	_, err := b.CancelExistingOrder(ctx, orderID)
	return err
}

// CancelAllOrders cancels every resting order on one pair, or across every
// market when the pair is empty
func (b *Bittrex) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("CancelAllOrders", b.Features.CancelAllOrders); err != nil {
		return err
	}
	marketSymbol := ""
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return err
		}
		marketSymbol = m.ID
	}
	_, err := b.CancelOpenOrders(ctx, marketSymbol)
	return err
}

// parseVenueOrder builds an order detail. The venue quotes the commission
// without naming its currency, so the fee carries cost only. Proceeds are
// the filled quote value and yield the average through the fill quantity.
func (b *Bittrex) parseVenueOrder(row *OrderData) order.Detail {
	pair, err := b.pairFromSymbol(row.MarketSymbol)
	if err != nil {
		pair = currency.Pair{}
	}
	detail := order.Detail{
		ID:            row.ID,
		ClientOrderID: row.ClientOrderID,
		Pair:          pair,
		Type:          bittrexOrderType(row.Type),
		Side:          bittrexSide(row.Direction),
		Price:         row.Limit,
		Amount:        row.Quantity,
		Filled:        row.FillQuantity,
		Cost:          row.Proceeds,
		Status:        bittrexOrderStatus(row.Status, row.FillQuantity, row.Quantity),
		Timestamp:     row.CreatedAt,
		Info:          row,
	}
	if row.Commission > 0 {
		detail.Fee = order.Fee{Cost: row.Commission}
	}
	detail.DeriveRemaining()
	detail.DeriveAverage()
	return detail
}

// FetchOrder returns one order. The venue keys lookups by id alone, so the
// pair is advisory.
func (b *Bittrex) FetchOrder(ctx context.Context, orderID string, _ currency.Pair) (*order.Detail, error) {
	if err := b.RequireFeature("FetchOrder", b.Features.FetchOrder); err != nil {
		return nil, err
	}
	row, err := b.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	detail := b.parseVenueOrder(row)
	return &detail, nil
}

// FetchOpenOrders returns resting orders, oldest first, bounded to one pair
// when given
func (b *Bittrex) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := b.RequireFeature("FetchOpenOrders", b.Features.OpenOrders); err != nil {
		return nil, err
	}
	marketSymbol := ""
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		marketSymbol = m.ID
	}
	rows, err := b.GetOpenOrders(ctx, marketSymbol)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		orders = append(orders, b.parseVenueOrder(&rows[i]))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.Before(orders[j].Timestamp)
	})
	return orders, nil
}

// FetchClosedOrders returns completed orders, oldest first, bounded to one
// pair when given
func (b *Bittrex) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := b.RequireFeature("FetchClosedOrders", b.Features.ClosedOrders); err != nil {
		return nil, err
	}
	marketSymbol := ""
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		marketSymbol = m.ID
	}
	startDate := ""
	if !since.IsZero() {
		startDate = convert.ISO8601(since)
	}
	rows, err := b.GetOrderHistory(ctx, marketSymbol, startDate, bittrexClosedPageSize)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail := b.parseVenueOrder(&rows[i])
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

// FetchMyTrades returns account fills, oldest first, bounded to one pair
// when given. The venue quotes the commission without naming its currency,
// so fees carry cost only.
func (b *Bittrex) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := b.RequireFeature("FetchMyTrades", b.Features.MyTrades); err != nil {
		return nil, err
	}
	marketSymbol := ""
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		marketSymbol = m.ID
	}
	rows, err := b.GetExecutions(ctx, marketSymbol)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		if !since.IsZero() && rows[i].ExecutedAt.Before(since) {
			continue
		}
		tradePair, err := b.pairFromSymbol(rows[i].MarketSymbol)
		if err != nil {
			continue
		}
		data := trade.Data{
			ID:        rows[i].ID,
			OrderID:   rows[i].OrderID,
			Pair:      tradePair,
			Price:     rows[i].Rate,
			Amount:    rows[i].Quantity,
			IsMaker:   !rows[i].IsTaker,
			Timestamp: rows[i].ExecutedAt,
			Info:      rows[i],
		}
		if rows[i].Commission > 0 {
			data.Fee = order.Fee{Cost: rows[i].Commission}
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns per-coin balances. The venue reports total and
// available, so held amounts are derived.
func (b *Bittrex) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := b.RequireFeature("FetchBalance", b.Features.Balance); err != nil {
		return nil, err
	}
	rows, err := b.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	holdings := account.NewHoldings(b.Name)
	holdings.Timestamp = time.Now().UTC()
	holdings.Info = rows
	for i := range rows {
		if rows[i].Total == 0 && rows[i].Available == 0 {
			continue
		}
		used := rows[i].Total - rows[i].Available
		if used < 0 {
			used = 0
		}
		holdings.Set(currency.Code(strings.ToUpper(rows[i].CurrencySymbol)), account.Balance{
			Free:  rows[i].Available,
			Used:  used,
			Total: rows[i].Total,
		})
	}
	return &holdings, nil
}

// FetchTradingFees returns the account's live fee schedule per market
func (b *Bittrex) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := b.RequireFeature("FetchTradingFees", b.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	rows, err := b.GetTradingFees(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*fee.PairSchedule, len(rows))
	for i := range rows {
		m, err := b.MarketFromID(rows[i].MarketSymbol)
		if err != nil {
			continue
		}
		out[m.Symbol] = &fee.PairSchedule{
			Pair:  m.Pair,
			Maker: rows[i].MakerRate,
			Taker: rows[i].TakerRate,
		}
	}
	return out, nil
}
