package bitstamp

import (
	"context"
	"fmt"
	"math"
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

// bitstampTimeframes maps unified intervals to the venue's step seconds
var bitstampTimeframes = map[kline.Interval]int64{
	kline.OneMin:     60,
	kline.ThreeMin:   180,
	kline.FiveMin:    300,
	kline.FifteenMin: 900,
	kline.ThirtyMin:  1800,
	kline.OneHour:    3600,
	kline.TwoHour:    7200,
	kline.FourHour:   14400,
	kline.SixHour:    21600,
	kline.TwelveHour: 43200,
	kline.OneDay:     86400,
}

// FetchMarkets returns the venue pair listing as unified markets
func (b *Bitstamp) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	pairs, err := b.GetTradingPairsInfo(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(pairs))
	for i := range pairs {
		parts := strings.Split(pairs[i].Name, "/")
		if len(parts) != 2 {
			continue
		}
		p := currency.NewPairFromStrings(parts[0], parts[1])
		m := &exchange.Market{
			ID:      pairs[i].URLSymbol,
			Symbol:  p.Upper(),
			Pair:    p,
			BaseID:  strings.ToLower(parts[0]),
			QuoteID: strings.ToLower(parts[1]),
			Active:  pairs[i].Trading == "Enabled",
			Precision: exchange.MarketPrecision{
				Price:  pairs[i].CounterDecimals,
				Amount: pairs[i].BaseDecimals,
			},
			Info: pairs[i],
		}
		// "20.0 USD" style minimum order values bound cost
		if fields := strings.Fields(pairs[i].MinimumOrder); len(fields) > 0 {
			if minCost, err := strconv.ParseFloat(fields[0], 64); err == nil {
				m.Limits.Cost.Min = minCost
			}
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets populates the market registry, fetching at most once unless
// reload forces a refresh
func (b *Bitstamp) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
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

func (b *Bitstamp) ensureMarkets(ctx context.Context) error {
	if b.MarketsLoaded() {
		return nil
	}
	_, err := b.LoadMarkets(ctx, false)
	return err
}

func (b *Bitstamp) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return b.MarketFromSymbol(pair.Upper())
}

// FetchTicker returns a price snapshot for one pair
func (b *Bitstamp) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := b.RequireFeature("FetchTicker", b.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	t, err := b.GetTicker(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	price := &ticker.Price{
		Pair:        m.Pair,
		Last:        t.Last,
		High:        t.High,
		Low:         t.Low,
		Bid:         t.Bid,
		Ask:         t.Ask,
		Open:        t.Open,
		Close:       t.Last,
		Volume:      t.Volume,
		VWAP:        t.Vwap,
		LastUpdated: convert.TimeFromUnixSec(t.Timestamp),
		Info:        t,
	}
	price.DeriveChange()
	return price, nil
}

// FetchTickers iterates per pair because the venue has no bulk endpoint;
// failed pairs are skipped and logged
func (b *Bitstamp) FetchTickers(ctx context.Context, pairs ...currency.Pair) (map[string]*ticker.Price, error) {
	if err := b.RequireFeature("FetchTickers", b.Features.Tickers); err != nil {
		return nil, err
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		for _, symbol := range b.Symbols() {
			if m, err := b.MarketFromSymbol(symbol); err == nil {
				pairs = append(pairs, m.Pair)
			}
		}
	}
	out := make(map[string]*ticker.Price, len(pairs))
	for i := range pairs {
		t, err := b.FetchTicker(ctx, pairs[i])
		if err != nil {
			log.Warnf(log.ExchangeSys, "%s fetch tickers: %s skipped: %v", b.Name, pairs[i].Upper(), err)
			continue
		}
		out[pairs[i].Upper()] = t
	}
	return out, nil
}

// FetchOrderBook returns a depth snapshot for one pair
func (b *Bitstamp) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := b.RequireFeature("FetchOrderBook", b.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	ob, err := b.GetOrderbook(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair:        m.Pair,
		Bids:        parseBookRows(ob.Bids),
		Asks:        parseBookRows(ob.Asks),
		LastUpdated: convert.TimeFromUnixSec(ob.Timestamp),
	}
	book.Limit(limit)
	if err := book.Verify(); err != nil {
		return nil, fmt.Errorf("%s orderbook %s: %w", b.Name, m.Symbol, err)
	}
	return book, nil
}

// parseBookRows converts venue [price, amount] string tuples
func parseBookRows(rows [][]string) []orderbook.Item {
	out := make([]orderbook.Item, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			continue
		}
		out = append(out, orderbook.Item{Price: price, Amount: amount})
	}
	return out
}

// FetchTrades returns recent public trades, chronologically ascending
func (b *Bitstamp) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := b.RequireFeature("FetchTrades", b.Features.Trades); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	interval := "hour"
	if !since.IsZero() && time.Since(since) > time.Hour {
		interval = "day"
	}
	transactions, err := b.GetTransactions(ctx, m.ID, interval)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(transactions))
	for i := range transactions {
		side := order.Buy
		if transactions[i].Type == 1 {
			side = order.Sell
		}
		data := trade.Data{
			ID:        strconv.FormatInt(transactions[i].TID, 10),
			Pair:      m.Pair,
			Price:     transactions[i].Price,
			Amount:    transactions[i].Amount,
			Side:      side,
			Timestamp: convert.TimeFromUnixSec(transactions[i].Date),
			Info:      transactions[i],
		}
		data.DeriveCost()
		if !since.IsZero() && data.Timestamp.Before(since) {
			continue
		}
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchOHLCV returns candles, chronologically ascending
func (b *Bitstamp) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := b.RequireFeature("FetchOHLCV", b.Features.OHLCV); err != nil {
		return nil, err
	}
	step, ok := bitstampTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", b.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := b.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	reqLimit := int64(limit)
	if reqLimit <= 0 || reqLimit > 1000 {
		reqLimit = 1000
	}
	var start int64
	if !since.IsZero() {
		start = since.Unix()
	}
	resp, err := b.GetOHLC(ctx, m.ID, step, reqLimit, start)
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(resp.Data.OHLC))
	for _, row := range resp.Data.OHLC {
		candles = append(candles, kline.Candle{
			Time:   convert.TimeFromUnixSec(row.Timestamp),
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

// CreateOrder places a limit or market order
func (b *Bitstamp) CreateOrder(ctx context.Context, submit *order.Submit) (*order.Detail, error) {
	if err := b.RequireFeature("CreateOrder", b.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := submit.Validate(); err != nil {
		return nil, err
	}
	m, err := b.marketForPair(ctx, submit.Pair)
	if err != nil {
		return nil, err
	}
	placed, err := b.PlaceOrder(ctx, m.ID, submit.Side, submit.Type == order.Market,
		submit.Amount, submit.Price, submit.ClientOrderID)
	if err != nil {
		return nil, err
	}
	detail := &order.Detail{
		ID:            placed.ID,
		ClientOrderID: placed.ClientOrderID,
		Pair:          m.Pair,
		Type:          submit.Type,
		Side:          submit.Side,
		Price:         placed.Price,
		Amount:        placed.Amount,
		Remaining:     placed.Amount,
		Status:        order.New,
		Info:          placed,
	}
	if ts, err := convert.ParseDatetime(placed.Datetime); err == nil {
		detail.Timestamp = ts
	}
	return detail, nil
}

// CancelOrder cancels one order by id
func (b *Bitstamp) CancelOrder(ctx context.Context, orderID string, _ currency.Pair) error {
	if err := b.RequireFeature("CancelOrder", b.Features.CancelOrder); err != nil {
		return err
	}
	_, err := b.CancelExistingOrder(ctx, orderID)
	return err
}

// CancelAllOrders cancels every resting order, optionally scoped to a pair
func (b *Bitstamp) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := b.RequireFeature("CancelAllOrders", b.Features.CancelAllOrders); err != nil {
		return err
	}
	marketID := ""
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return err
		}
		marketID = m.ID
	}
	result, err := b.CancelAllExistingOrders(ctx, marketID)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s: %w: cancel all rejected", b.Name, exchange.ErrExchangeError)
	}
	return nil
}

// FetchOrder returns the unified state of one order
func (b *Bitstamp) FetchOrder(ctx context.Context, orderID string, pair currency.Pair) (*order.Detail, error) {
	if err := b.RequireFeature("FetchOrder", b.Features.FetchOrder); err != nil {
		return nil, err
	}
	st, err := b.GetOrderStatus(ctx, orderID, "")
	if err != nil {
		return nil, err
	}
	p := pair
	if p.IsEmpty() && st.Market != "" {
		if parsed, err := currency.NewPairFromString(st.Market); err == nil {
			p = parsed
		}
	}
	baseKey := p.Base.Lower()
	quoteKey := p.Quote.Lower()

	var filled, cost, feeSum float64
	fills := make([]order.TradeHistory, 0, len(st.Transactions))
	for _, tx := range st.Transactions {
		amount := math.Abs(convert.FloatFromMap(tx, baseKey, 0))
		quoteAmount := math.Abs(convert.FloatFromMap(tx, quoteKey, 0))
		filled += amount
		cost += quoteAmount
		txFee := convert.FloatFromMap(tx, "fee", 0)
		feeSum += txFee
		fill := order.TradeHistory{
			ID:     strconv.FormatInt(convert.IntFromMap(tx, "tid", 0), 10),
			Price:  convert.FloatFromMap(tx, "price", 0),
			Amount: amount,
			Fee:    order.Fee{Cost: txFee, Currency: p.Quote},
		}
		if ts, err := convert.ParseDatetime(convert.StringFromMap(tx, "datetime", "")); err == nil {
			fill.Timestamp = ts
		}
		fills = append(fills, fill)
	}

	var status order.Status
	switch st.Status {
	case "Open":
		status = order.New
		if filled > 0 {
			status = order.PartiallyFilled
		}
	case "Finished":
		status = order.Filled
	case "Canceled":
		status = order.Cancelled
	case "Expired":
		status = order.Expired
	default:
		status = order.UnknownStatus
	}
	side := order.Buy
	if st.Type == 1 {
		side = order.Sell
	}

	detail := &order.Detail{
		ID:            strconv.FormatInt(st.ID, 10),
		ClientOrderID: st.ClientOrderID,
		Pair:          p,
		Side:          side,
		Amount:        filled + st.AmountRemaining,
		Filled:        filled,
		Remaining:     st.AmountRemaining,
		Cost:          cost,
		Status:        status,
		Trades:        fills,
		Fee:           order.Fee{Cost: feeSum, Currency: p.Quote},
		Info:          st,
	}
	if ts, err := convert.ParseDatetime(st.Datetime); err == nil {
		detail.Timestamp = ts
	}
	detail.DeriveAverage()
	return detail, nil
}

// FetchOpenOrders returns resting orders, optionally scoped to one pair
func (b *Bitstamp) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := b.RequireFeature("FetchOpenOrders", b.Features.OpenOrders); err != nil {
		return nil, err
	}
	marketID := ""
	var scope *exchange.Market
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		marketID = m.ID
		scope = m
	} else if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}

	open, err := b.GetOpenOrders(ctx, marketID)
	if err != nil {
		return nil, err
	}
	out := make([]order.Detail, 0, len(open))
	for i := range open {
		p := currency.EMPTYPAIR
		if scope != nil {
			p = scope.Pair
		} else if open[i].CurrencyPair != "" {
			if parsed, err := currency.NewPairFromString(open[i].CurrencyPair); err == nil {
				p = parsed
			}
		}
		side := order.Buy
		if open[i].Type == 1 {
			side = order.Sell
		}
		detail := order.Detail{
			ID:            open[i].ID,
			ClientOrderID: open[i].ClientOrderID,
			Pair:          p,
			Type:          order.Limit,
			Side:          side,
			Price:         open[i].Price,
			Amount:        open[i].Amount,
			Remaining:     open[i].Amount,
			Status:        order.New,
			Info:          open[i],
		}
		if ts, err := convert.ParseDatetime(open[i].Datetime); err == nil {
			detail.Timestamp = ts
		}
		out = append(out, detail)
	}
	return out, nil
}

// FetchClosedOrders is not offered by the venue REST surface
func (b *Bitstamp) FetchClosedOrders(_ context.Context, _ currency.Pair, _ time.Time, _ int) ([]order.Detail, error) {
	return nil, b.RequireFeature("FetchClosedOrders", b.Features.ClosedOrders)
}

// FetchMyTrades returns account fills from the user transaction ledger. The
// venue pages from offset zero and has no time filter, so since is ignored.
func (b *Bitstamp) FetchMyTrades(ctx context.Context, pair currency.Pair, _ time.Time, limit int) ([]trade.Data, error) {
	if err := b.RequireFeature("FetchMyTrades", b.Features.MyTrades); err != nil {
		return nil, err
	}
	marketID := ""
	if !pair.IsEmpty() {
		m, err := b.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		marketID = m.ID
	}
	rows, err := b.GetUserTransactions(ctx, marketID, int64(limit))
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(rows))
	for _, row := range rows {
		data, ok := b.parseUserTransaction(row)
		if !ok {
			continue
		}
		trades = append(trades, data)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// parseUserTransaction converts one ledger row into a fill. Trade rows carry
// type == "2" and amounts under currency-named keys alongside a rate keyed
// by the underscore pair form, e.g. btc_usd.
func (b *Bitstamp) parseUserTransaction(row map[string]interface{}) (trade.Data, bool) {
	if convert.StringFromMap(row, "type", "") != "2" {
		return trade.Data{}, false
	}
	var base, quote, rateKey string
	for key := range row {
		switch key {
		case "id", "order_id", "datetime", "type", "fee", "status", "reason":
			continue
		}
		parts := strings.Split(key, "_")
		if len(parts) != 2 {
			continue
		}
		if _, ok := row[parts[0]]; !ok {
			continue
		}
		if _, ok := row[parts[1]]; !ok {
			continue
		}
		base, quote, rateKey = parts[0], parts[1], key
		break
	}
	if rateKey == "" {
		return trade.Data{}, false
	}

	baseAmount := convert.FloatFromMap(row, base, 0)
	side := order.Buy
	if baseAmount < 0 {
		side = order.Sell
	}
	p := currency.NewPairFromStrings(base, quote)
	data := trade.Data{
		ID:      strconv.FormatInt(convert.IntFromMap(row, "id", 0), 10),
		OrderID: strconv.FormatInt(convert.IntFromMap(row, "order_id", 0), 10),
		Pair:    p,
		Price:   convert.FloatFromMap(row, rateKey, 0),
		Amount:  math.Abs(baseAmount),
		Cost:    math.Abs(convert.FloatFromMap(row, quote, 0)),
		Side:    side,
		Fee: order.Fee{
			Cost:     convert.FloatFromMap(row, "fee", 0),
			Currency: p.Quote,
		},
		Info: row,
	}
	if ts, err := convert.ParseDatetime(convert.StringFromMap(row, "datetime", "")); err == nil {
		data.Timestamp = ts
	}
	return data, true
}

// FetchBalance returns the account snapshot. The venue reports a flat map of
// currency-prefixed figures.
func (b *Bitstamp) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := b.RequireFeature("FetchBalance", b.Features.Balance); err != nil {
		return nil, err
	}
	balances, err := b.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string]account.Balance)
	for key, raw := range balances {
		idx := strings.LastIndex(key, "_")
		if idx <= 0 {
			continue
		}
		code, field := key[:idx], key[idx+1:]
		value, err := convert.FloatFromString(raw)
		if err != nil {
			continue
		}
		entry := grouped[code]
		switch field {
		case "available":
			entry.Free = value
		case "reserved":
			entry.Used = value
		case "balance":
			entry.Total = value
		default:
			continue
		}
		grouped[code] = entry
	}
	holdings := account.NewHoldings(b.Name)
	holdings.Timestamp = time.Now().UTC()
	holdings.Info = balances
	for code, entry := range grouped {
		holdings.Set(currency.NewCode(code), entry)
	}
	return &holdings, nil
}

// FetchTradingFees returns per-pair maker/taker rates. Venue rates are
// percentages and are scaled to fractions.
func (b *Bitstamp) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := b.RequireFeature("FetchTradingFees", b.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := b.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	fees, err := b.GetTradingFees(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*fee.PairSchedule, len(fees))
	for i := range fees {
		id := fees[i].CurrencyPair
		if id == "" {
			id = fees[i].Market
		}
		m, err := b.MarketFromID(strings.ToLower(strings.ReplaceAll(id, "/", "")))
		if err != nil {
			continue
		}
		out[m.Symbol] = &fee.PairSchedule{
			Pair:  m.Pair,
			Maker: fees[i].Fees.Maker / 100,
			Taker: fees[i].Fees.Taker / 100,
		}
	}
	return out, nil
}
