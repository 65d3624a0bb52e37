package bitrue

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

// bitrueTimeframes maps unified intervals to the venue kline scale strings.
// Minute scales are lowercase, hour and above uppercase.
var bitrueTimeframes = map[kline.Interval]string{
	kline.OneMin:     "1m",
	kline.FiveMin:    "5m",
	kline.FifteenMin: "15m",
	kline.ThirtyMin:  "30m",
	kline.OneHour:    "1H",
	kline.TwoHour:    "2H",
	kline.FourHour:   "4H",
	kline.OneDay:     "1D",
	kline.OneWeek:    "1W",
}

// The venue exposes no fee endpoint; the published VIP 0 spot rate applies
// to every pair until a tier override exists.
const (
	bitrueDefaultMaker = 0.00098
	bitrueDefaultTaker = 0.00098
)

// FetchMarkets returns tradable symbols as unified markets. The uppercase
// venue symbol keys lookups; the lowercase form resolves websocket channel
// names through the alias registry.
func (b *Bitrue) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	info, err := b.GetExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		base := currency.Code(strings.ToUpper(s.BaseAsset))
		quote := currency.Code(strings.ToUpper(s.QuoteAsset))
		p := currency.NewPair(base, quote)
		id := strings.ToUpper(s.Symbol)
		m := &exchange.Market{
			ID:      id,
			Symbol:  p.Upper(),
			Pair:    p,
			BaseID:  s.BaseAsset,
			QuoteID: s.QuoteAsset,
			Active:  s.Status == "TRADING",
			AltIDs:  []string{strings.ToLower(s.Symbol)},
			Precision: exchange.MarketPrecision{
				Price:  s.QuotePrecision,
				Amount: s.BaseAssetPrecision,
			},
			Info: s,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				if v, err := convert.FloatFromString(f.TickSize); err == nil {
					m.TickSize = v
				}
				if v, err := convert.FloatFromString(f.MinPrice); err == nil {
					m.Limits.Price.Min = v
				}
				if v, err := convert.FloatFromString(f.MaxPrice); err == nil {
					m.Limits.Price.Max = v
				}
			case "LOT_SIZE":
				if v, err := convert.FloatFromString(f.StepSize); err == nil {
					m.StepSize = v
				}
				if v, err := convert.FloatFromString(f.MinQty); err == nil {
					m.Limits.Amount.Min = v
				}
				if v, err := convert.FloatFromString(f.MaxQty); err == nil {
					m.Limits.Amount.Max = v
				}
			case "MIN_NOTIONAL":
				if v, err := convert.FloatFromString(f.MinNotional); err == nil {
					m.Limits.Cost.Min = v
				}
			}
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets populates the market registry on first call
func (b *Bitrue) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
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

func (b *Bitrue) ensureMarkets(ctx context.Context) error {
	if b.MarketsLoaded() {
		return nil
	}
	_, err := b.LoadMarkets(ctx, false)
	return err
}

func (b *Bitrue) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return b.MarketFromSymbol(pair.Upper())
}

func (b *Bitrue) parseTicker24hr(m *exchange.Market, t *Ticker24hr) *ticker.Price {
	last, _ := convert.FloatFromString(t.LastPrice)
	bid, _ := convert.FloatFromString(t.BidPrice)
	ask, _ := convert.FloatFromString(t.AskPrice)
	high, _ := convert.FloatFromString(t.HighPrice)
	low, _ := convert.FloatFromString(t.LowPrice)
	open, _ := convert.FloatFromString(t.OpenPrice)
	volume, _ := convert.FloatFromString(t.Volume)
	quoteVolume, _ := convert.FloatFromString(t.QuoteVolume)
	vwap, _ := convert.FloatFromString(t.WeightedAvgPrice)
	change, _ := convert.FloatFromString(t.PriceChange)
	percentage, _ := convert.FloatFromString(t.PriceChangePercent)

	price := &ticker.Price{
		Pair:        m.Pair,
		Last:        last,
		Bid:         bid,
		Ask:         ask,
		High:        high,
		Low:         low,
		Open:        open,
		Volume:      volume,
		QuoteVolume: quoteVolume,
		VWAP:        vwap,
		Change:      change,
		Percentage:  percentage,
		LastUpdated: timeFromMS(t.CloseTime),
		Info:        t,
	}
	if price.LastUpdated.IsZero() {
		price.LastUpdated = time.Now().UTC()
	}
	price.DeriveChange()
	return price
}

// FetchTicker returns a 24h price snapshot for one pair
func (b *Bitrue) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := b.RequireFeature("FetchTicker", b.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := b.GetTicker24hr(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: ticker response missing %s: %w",
			b.Name, m.ID, exchange.ErrExchangeError)
	}
	return b.parseTicker24hr(m, &rows[0]), nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed pair when none are given
func (b *Bitrue) FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error) {
	if err := b.RequireFeature("FetchTickers", b.Features.Tickers); err != nil {
		return nil, err
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	rows, err := b.GetTicker24hr(ctx, "")
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		want[p.Upper()] = true
	}
	out := make(map[string]*ticker.Price, len(rows))
	for i := range rows {
		m, err := b.MarketFromID(strings.ToUpper(rows[i].Symbol))
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		out[m.Symbol] = b.parseTicker24hr(m, &rows[i])
	}
	return out, nil
}

// FetchOrderBook returns the current book for one pair
func (b *Bitrue) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := b.RequireFeature("FetchOrderBook", b.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	depth, err := b.GetDepth(ctx, m.ID, int64(limit))
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		Bids:        levelsToItems(depth.Bids),
		Asks:        levelsToItems(depth.Asks),
		LastUpdated: time.Now().UTC(),
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

// FetchTrades returns public trades for one pair, oldest first. The venue
// flags the maker side only, and a buyer-maker print reports as a sell.
func (b *Bitrue) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := b.RequireFeature("FetchTrades", b.Features.Trades); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := b.GetTrades(ctx, m.ID, int64(limit))
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		ts := timeFromMS(rows[i].Time)
		if !since.IsZero() && ts.Before(since) {
			continue
		}
		price, _ := convert.FloatFromString(rows[i].Price)
		amount, _ := convert.FloatFromString(rows[i].Qty)
		side := order.Buy
		if rows[i].IsBuyerMaker {
			side = order.Sell
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].ID, 10),
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

// FetchOHLCV returns candles for one pair, oldest first. Row open times
// arrive in seconds; the endpoint has no window parameters, so since trims
// locally.
func (b *Bitrue) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := b.RequireFeature("FetchOHLCV", b.Features.OHLCV); err != nil {
		return nil, err
	}
	scale, ok := bitrueTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", b.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	resp, err := b.GetKlines(ctx, m.ID, scale, int64(limit))
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(resp.Data))
	for _, row := range resp.Data {
		ts := time.Unix(row.OpenTime, 0).UTC()
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

// CreateOrder submits an order. Limit orders default to the venue's GTT
// time in force unless a timeInForce param overrides it.
func (b *Bitrue) CreateOrder(ctx context.Context, s *order.Submit) (*order.Detail, error) {
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
	tif := ""
	if s.Type == order.Limit {
		tif = "GTT"
		if v, ok := s.Params["timeInForce"].(string); ok && v != "" {
			tif = v
		}
	}
	ack, err := b.NewOrder(ctx, m.ID,
		strings.ToUpper(string(s.Side)), strings.ToUpper(string(s.Type)),
		s.Amount, s.Price, tif, s.ClientOrderID)
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
		Timestamp:     timeFromMS(ack.TransactTime),
		Info:          ack,
	}
	if detail.ClientOrderID == "" {
		detail.ClientOrderID = s.ClientOrderID
	}
	if detail.Timestamp.IsZero() {
		detail.Timestamp = time.Now().UTC()
	}
	return detail, nil
}

// CancelOrder cancels one order. The venue keys orders by symbol, so the
// pair is required.
func (b *Bitrue) CancelOrder(ctx context.Context, orderID string, pair currency.Pair) error {
	if err := b.RequireFeature("CancelOrder", b.Features.CancelOrder); err != nil {
		return err
	}
	if pair.IsEmpty() {
		return fmt.Errorf("%s: cancel needs the order's pair: %w", b.Name, order.ErrPairIsEmpty)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: order id %q is not numeric: %w", b.Name, orderID, exchange.ErrBadRequest)
	}
	_, err = b.CancelExistingOrder(ctx, m.ID, id)
	return err
}

// CancelAllOrders is not offered by the venue API; orders cancel one by one
func (b *Bitrue) CancelAllOrders(_ context.Context, _ currency.Pair) error {
	return b.RequireFeature("CancelAllOrders", b.Features.CancelAllOrders)
}

func bitrueOrderStatus(s string) order.Status {
	switch s {
	case "NEW":
		return order.New
	case "PARTIALLY_FILLED":
		return order.PartiallyFilled
	case "FILLED":
		return order.Filled
	case "CANCELED", "PENDING_CANCEL":
		return order.Cancelled
	case "REJECTED":
		return order.Rejected
	case "EXPIRED":
		return order.Expired
	default:
		return order.UnknownStatus
	}
}

func (b *Bitrue) parseVenueOrder(m *exchange.Market, row *VenueOrder) order.Detail {
	price, _ := convert.FloatFromString(row.Price)
	amount, _ := convert.FloatFromString(row.OrigQty)
	filled, _ := convert.FloatFromString(row.ExecutedQty)

	side := order.Buy
	if strings.EqualFold(row.Side, "SELL") {
		side = order.Sell
	}
	ts := timeFromMS(row.Time)
	if ts.IsZero() {
		ts = timeFromMS(row.UpdateTime)
	}
	detail := order.Detail{
		ID:            strconv.FormatInt(row.OrderID, 10),
		ClientOrderID: row.ClientOrderID,
		Pair:          m.Pair,
		Type:          order.StringToOrderType(row.Type),
		Side:          side,
		Price:         price,
		Amount:        amount,
		Filled:        filled,
		Remaining:     amount - filled,
		Status:        bitrueOrderStatus(row.Status),
		Timestamp:     ts,
		Info:          row,
	}
	return detail
}

// FetchOrder returns one order. A non-numeric id is forwarded as the
// original client order id.
func (b *Bitrue) FetchOrder(ctx context.Context, orderID string, pair currency.Pair) (*order.Detail, error) {
	if err := b.RequireFeature("FetchOrder", b.Features.FetchOrder); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: order lookup needs the order's pair: %w", b.Name, order.ErrPairIsEmpty)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	var row *VenueOrder
	if id, convErr := strconv.ParseInt(orderID, 10, 64); convErr == nil {
		row, err = b.QueryOrder(ctx, m.ID, id, "")
	} else {
		row, err = b.QueryOrder(ctx, m.ID, 0, orderID)
	}
	if err != nil {
		return nil, err
	}
	detail := b.parseVenueOrder(m, row)
	return &detail, nil
}

// FetchOpenOrders returns resting orders for one pair
func (b *Bitrue) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := b.RequireFeature("FetchOpenOrders", b.Features.OpenOrders); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: open orders need a pair: %w", b.Name, order.ErrPairIsEmpty)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	rows, err := b.GetOpenOrders(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		orders = append(orders, b.parseVenueOrder(m, &rows[i]))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.Before(orders[j].Timestamp)
	})
	return orders, nil
}

// FetchClosedOrders returns completed orders for one pair, oldest first.
// The history endpoint mixes states, so resting orders are dropped locally.
func (b *Bitrue) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := b.RequireFeature("FetchClosedOrders", b.Features.ClosedOrders); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: order history needs a pair: %w", b.Name, order.ErrPairIsEmpty)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if !since.IsZero() {
		start = since.UnixMilli()
	}
	rows, err := b.GetAllOrders(ctx, m.ID, start, 0, 0)
	if err != nil {
		return nil, err
	}
	orders := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail := b.parseVenueOrder(m, &rows[i])
		if detail.Status == order.New || detail.Status == order.PartiallyFilled {
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
func (b *Bitrue) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := b.RequireFeature("FetchMyTrades", b.Features.MyTrades); err != nil {
		return nil, err
	}
	if pair.IsEmpty() {
		return nil, fmt.Errorf("%s: fill history needs a pair: %w", b.Name, order.ErrPairIsEmpty)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if !since.IsZero() {
		start = since.UnixMilli()
	}
	rows, err := b.GetMyTrades(ctx, m.ID, start, 0, int64(limit))
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for i := range rows {
		price, _ := convert.FloatFromString(rows[i].Price)
		amount, _ := convert.FloatFromString(rows[i].Qty)
		feeCost, _ := convert.FloatFromString(rows[i].Commission)
		side := order.Sell
		if rows[i].IsBuyer {
			side = order.Buy
		}
		data := trade.Data{
			ID:        strconv.FormatInt(rows[i].ID, 10),
			OrderID:   strconv.FormatInt(rows[i].OrderID, 10),
			Pair:      m.Pair,
			Price:     price,
			Amount:    amount,
			Side:      side,
			IsMaker:   rows[i].IsMaker,
			Timestamp: timeFromMS(rows[i].Time),
			Fee: order.Fee{
				Cost:     feeCost,
				Currency: currency.Code(strings.ToUpper(rows[i].CommissionAsset)),
			},
			Info: rows[i],
		}
		data.DeriveCost()
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns per-asset free and locked amounts
func (b *Bitrue) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := b.RequireFeature("FetchBalance", b.Features.Balance); err != nil {
		return nil, err
	}
	resp, err := b.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	holdings := account.NewHoldings(b.Name)
	holdings.Timestamp = timeFromMS(resp.UpdateTime)
	if holdings.Timestamp.IsZero() {
		holdings.Timestamp = time.Now().UTC()
	}
	holdings.Info = resp
	for i := range resp.Balances {
		free, _ := convert.FloatFromString(resp.Balances[i].Free)
		locked, _ := convert.FloatFromString(resp.Balances[i].Locked)
		if free == 0 && locked == 0 {
			continue
		}
		code := currency.Code(strings.ToUpper(resp.Balances[i].Asset))
		holdings.Set(code, account.Balance{Free: free, Used: locked})
	}
	return &holdings, nil
}

// FetchTradingFees returns the flat default schedule for every listed pair
func (b *Bitrue) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := b.RequireFeature("FetchTradingFees", b.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	all := b.Markets()
	out := make(map[string]*fee.PairSchedule, len(all))
	for _, m := range all {
		out[m.Symbol] = &fee.PairSchedule{
			Pair:  m.Pair,
			Maker: bitrueDefaultMaker,
			Taker: bitrueDefaultTaker,
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
