package coinbase

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

// coinbaseTimeframes maps unified intervals onto venue granularities
var coinbaseTimeframes = map[kline.Interval]string{
	kline.OneMin:     "ONE_MINUTE",
	kline.FiveMin:    "FIVE_MINUTE",
	kline.FifteenMin: "FIFTEEN_MINUTE",
	kline.ThirtyMin:  "THIRTY_MINUTE",
	kline.OneHour:    "ONE_HOUR",
	kline.TwoHour:    "TWO_HOUR",
	kline.SixHour:    "SIX_HOUR",
	kline.OneDay:     "ONE_DAY",
}

// coinbaseCandleWindow is the default number of candles requested when the
// caller gives no since bound; the venue caps a request at 350 rows
const coinbaseCandleWindow = 300

func decimalsFromIncrement(increment string) int {
	idx := strings.Index(increment, ".")
	if idx < 0 {
		return 0
	}
	return len(strings.TrimRight(increment[idx+1:], "0"))
}

// FetchMarkets returns tradable spot markets from the product directory
func (c *Coinbase) FetchMarkets(ctx context.Context) ([]*exchange.Market, error) {
	resp, err := c.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	markets := make([]*exchange.Market, 0, len(resp.Products))
	for i := range resp.Products {
		p := &resp.Products[i]
		if p.ProductType != "" && p.ProductType != "SPOT" {
			continue
		}
		base, quote := p.BaseCurrencyID, p.QuoteCurrencyID
		if base == "" || quote == "" {
			parts := strings.Split(p.ProductID, "-")
			if len(parts) != 2 {
				continue
			}
			base, quote = parts[0], parts[1]
		}
		pair := currency.NewPairFromStrings(base, quote)
		m := &exchange.Market{
			ID:      p.ProductID,
			Symbol:  pair.Upper(),
			Pair:    pair,
			BaseID:  base,
			QuoteID: quote,
			Active:  !p.IsDisabled && !p.TradingDisabled && p.Status == "online",
			Info:    p,
		}
		m.Precision.Price = decimalsFromIncrement(p.QuoteIncrement)
		m.Precision.Amount = decimalsFromIncrement(p.BaseIncrement)
		m.TickSize, _ = convert.FloatFromString(p.QuoteIncrement)
		m.StepSize, _ = convert.FloatFromString(p.BaseIncrement)
		m.Limits.Amount.Min, _ = convert.FloatFromString(p.BaseMinSize)
		m.Limits.Amount.Max, _ = convert.FloatFromString(p.BaseMaxSize)
		m.Limits.Cost.Min, _ = convert.FloatFromString(p.QuoteMinSize)
		m.Limits.Cost.Max, _ = convert.FloatFromString(p.QuoteMaxSize)
		markets = append(markets, m)
	}
	return markets, nil
}

// LoadMarkets caches the market table, refreshing when reload is set
func (c *Coinbase) LoadMarkets(ctx context.Context, reload bool) (map[string]*exchange.Market, error) {
	if c.MarketsLoaded() && !reload {
		return c.Markets(), nil
	}
	markets, err := c.FetchMarkets(ctx)
	if err != nil {
		return nil, err
	}
	c.StoreMarkets(markets)
	return c.Markets(), nil
}

func (c *Coinbase) ensureMarkets(ctx context.Context) error {
	if c.MarketsLoaded() {
		return nil
	}
	_, err := c.LoadMarkets(ctx, false)
	return err
}

func (c *Coinbase) marketForPair(ctx context.Context, pair currency.Pair) (*exchange.Market, error) {
	if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	return c.MarketFromSymbol(pair.Upper())
}

// parseProductTicker builds a price snapshot from a product descriptor. The
// venue's descriptor has no high/low and reports percentage moves rather
// than a quote volume, so QuoteVolume mirrors the 24h volume change figure.
func parseProductTicker(p *Product, pair currency.Pair, at time.Time) *ticker.Price {
	price := &ticker.Price{Pair: pair, LastUpdated: at, Info: p}
	price.Last, _ = convert.FloatFromString(p.Price)
	price.Volume, _ = convert.FloatFromString(p.Volume24H)
	price.QuoteVolume, _ = convert.FloatFromString(p.VolumePercentageChange24H)
	price.Percentage, _ = convert.FloatFromString(p.PricePercentageChange24H)
	if price.Percentage != 0 {
		price.Open = price.Last / (1 + price.Percentage/100)
		price.Change = price.Last - price.Open
	}
	return price
}

// FetchTicker returns a price snapshot for one pair
func (c *Coinbase) FetchTicker(ctx context.Context, pair currency.Pair) (*ticker.Price, error) {
	if err := c.RequireFeature("FetchTicker", c.Features.Ticker); err != nil {
		return nil, err
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	p, err := c.GetProduct(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return parseProductTicker(p, m.Pair, time.Now().UTC()), nil
}

// FetchTickers returns price snapshots for the requested pairs, or every
// listed market when pairs is empty
func (c *Coinbase) FetchTickers(ctx context.Context, pairs currency.Pairs) (map[string]*ticker.Price, error) {
	if err := c.RequireFeature("FetchTickers", c.Features.Tickers); err != nil {
		return nil, err
	}
	if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	resp, err := c.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(pairs))
	for i := range pairs {
		want[pairs[i].Upper()] = true
	}
	at := time.Now().UTC()
	out := make(map[string]*ticker.Price, len(resp.Products))
	for i := range resp.Products {
		m, err := c.MarketFromID(resp.Products[i].ProductID)
		if err != nil {
			continue
		}
		if len(want) > 0 && !want[m.Symbol] {
			continue
		}
		out[m.Symbol] = parseProductTicker(&resp.Products[i], m.Pair, at)
	}
	return out, nil
}

// FetchOrderBook returns an aggregated book snapshot
func (c *Coinbase) FetchOrderBook(ctx context.Context, pair currency.Pair, limit int) (*orderbook.Base, error) {
	if err := c.RequireFeature("FetchOrderBook", c.Features.OrderBook); err != nil {
		return nil, err
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	resp, err := c.GetProductBook(ctx, m.ID, limit)
	if err != nil {
		return nil, err
	}
	book := &orderbook.Base{
		Pair: m.Pair,
	}
	if at, err := convert.ParseDatetime(resp.Pricebook.Time); err == nil {
		book.LastUpdated = at
	}
	if book.Bids, err = priceSizeToItems(resp.Pricebook.Bids); err != nil {
		return nil, fmt.Errorf("%s: parsing bids: %w", c.Name, err)
	}
	if book.Asks, err = priceSizeToItems(resp.Pricebook.Asks); err != nil {
		return nil, fmt.Errorf("%s: parsing asks: %w", c.Name, err)
	}
	book.Limit(limit)
	return book, book.Verify()
}

func priceSizeToItems(rows []PriceSize) ([]orderbook.Item, error) {
	items := make([]orderbook.Item, 0, len(rows))
	for i := range rows {
		price, err := convert.FloatFromString(rows[i].Price)
		if err != nil {
			return nil, err
		}
		amount, err := convert.FloatFromString(rows[i].Size)
		if err != nil {
			return nil, err
		}
		items = append(items, orderbook.Item{Price: price, Amount: amount})
	}
	return items, nil
}

// FetchTrades returns recent public trades. The venue has no time cursor on
// this endpoint, so since trims the returned window locally.
func (c *Coinbase) FetchTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := c.RequireFeature("FetchTrades", c.Features.Trades); err != nil {
		return nil, err
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	reqLimit := limit
	if reqLimit <= 0 || reqLimit > 1000 {
		reqLimit = 100
	}
	resp, err := c.GetProductTicker(ctx, m.ID, reqLimit)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(resp.Trades))
	for i := range resp.Trades {
		row := &resp.Trades[i]
		t := trade.Data{
			ID:   row.TradeID,
			Pair: m.Pair,
			Info: row,
		}
		t.Price, _ = convert.FloatFromString(row.Price)
		t.Amount, _ = convert.FloatFromString(row.Size)
		if strings.EqualFold(row.Side, "SELL") {
			t.Side = order.Sell
		} else {
			t.Side = order.Buy
		}
		if at, err := convert.ParseDatetime(row.Time); err == nil {
			t.Timestamp = at
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

// FetchOHLCV returns candles oldest first. The venue requires an explicit
// window, so a default of 300 intervals back from now is used when since is
// zero. Rows arrive newest first and are reversed.
func (c *Coinbase) FetchOHLCV(ctx context.Context, pair currency.Pair, interval kline.Interval, since time.Time, limit int) ([]kline.Candle, error) {
	if err := c.RequireFeature("FetchOHLCV", c.Features.OHLCV); err != nil {
		return nil, err
	}
	granularity, ok := coinbaseTimeframes[interval]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", c.Name, interval.Short(), kline.ErrUnsupportedInterval)
	}
	m, err := c.marketForPair(ctx, pair)
	if err != nil {
		return nil, err
	}
	end := time.Now()
	start := since
	if start.IsZero() {
		window := coinbaseCandleWindow
		if limit > 0 && limit < window {
			window = limit
		}
		start = end.Add(-time.Duration(window) * time.Duration(interval))
	}
	resp, err := c.GetProductCandles(ctx, m.ID, granularity, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	candles := make([]kline.Candle, 0, len(resp.Candles))
	for i := range resp.Candles {
		row := &resp.Candles[i]
		candle := kline.Candle{}
		ts, err := convert.Int64FromString(row.Start)
		if err != nil {
			continue
		}
		candle.Time = convert.TimeFromUnixSec(ts)
		candle.Open, _ = convert.FloatFromString(row.Open)
		candle.High, _ = convert.FloatFromString(row.High)
		candle.Low, _ = convert.FloatFromString(row.Low)
		candle.Close, _ = convert.FloatFromString(row.Close)
		candle.Volume, _ = convert.FloatFromString(row.Volume)
		candles = append(candles, candle)
	}
	kline.SortAscending(candles)
	return kline.Limit(candles, limit), nil
}

// CreateOrder places a limit or market order. Market buys spend quote
// currency, so the submitted amount becomes quote_size on that path. A
// client order id is generated when absent, as the venue requires one.
func (c *Coinbase) CreateOrder(ctx context.Context, submit *order.Submit) (*order.Detail, error) {
	if err := c.RequireFeature("CreateOrder", c.Features.CreateOrder); err != nil {
		return nil, err
	}
	if err := submit.Validate(); err != nil {
		return nil, err
	}
	m, err := c.marketForPair(ctx, submit.Pair)
	if err != nil {
		return nil, err
	}
	req := &PlaceOrderRequest{
		ClientOrderID: submit.ClientOrderID,
		ProductID:     m.ID,
		Side:          strings.ToUpper(submit.Side.String()),
	}
	if req.ClientOrderID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("%s: generating client order id: %w", c.Name, err)
		}
		req.ClientOrderID = id.String()
	}
	amount := strconv.FormatFloat(submit.Amount, 'f', -1, 64)
	switch {
	case submit.Type == order.Limit:
		req.OrderConfiguration.LimitLimitGTC = &LimitLimitGTC{
			BaseSize:   amount,
			LimitPrice: strconv.FormatFloat(submit.Price, 'f', -1, 64),
		}
	case submit.Side == order.Buy:
		req.OrderConfiguration.MarketMarketIOC = &MarketMarketIOC{QuoteSize: amount}
	default:
		req.OrderConfiguration.MarketMarketIOC = &MarketMarketIOC{BaseSize: amount}
	}
	resp, err := c.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	return &order.Detail{
		ID:            resp.SuccessResponse.OrderID,
		ClientOrderID: req.ClientOrderID,
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

// CancelOrder cancels one resting order through the batch endpoint
func (c *Coinbase) CancelOrder(ctx context.Context, orderID string, _ currency.Pair) error {
	if err := c.RequireFeature("CancelOrder", c.Features.CancelOrder); err != nil {
		return err
	}
	resp, err := c.BatchCancelOrders(ctx, []string{orderID})
	if err != nil {
		return err
	}
	for i := range resp.Results {
		if resp.Results[i].OrderID != orderID && len(resp.Results) > 1 {
			continue
		}
		if !resp.Results[i].Success {
			return c.mapError(resp.Results[i].FailureReason, "cancel rejected for "+orderID, 0)
		}
		return nil
	}
	return fmt.Errorf("%s: no cancel result for %s: %w", c.Name, orderID, exchange.ErrExchangeError)
}

// CancelAllOrders cancels every resting order, scoped to pair when given.
// The venue has no cancel-all endpoint so open orders are collected and
// cancelled in one batch.
func (c *Coinbase) CancelAllOrders(ctx context.Context, pair currency.Pair) error {
	if err := c.RequireFeature("CancelAllOrders", c.Features.CancelAllOrders); err != nil {
		return err
	}
	open, err := c.FetchOpenOrders(ctx, pair)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}
	ids := make([]string, 0, len(open))
	for i := range open {
		ids = append(ids, open[i].ID)
	}
	_, err = c.BatchCancelOrders(ctx, ids)
	return err
}

// coinbaseOrderStatus maps one venue lifecycle state
func coinbaseOrderStatus(status string, filled float64) order.Status {
	switch status {
	case "OPEN":
		if filled > 0 {
			return order.PartiallyFilled
		}
		return order.New
	case "QUEUED", "PENDING":
		return order.New
	case "FILLED":
		return order.Filled
	case "CANCELLED", "CANCEL_QUEUED":
		return order.Cancelled
	case "EXPIRED":
		return order.Expired
	case "FAILED":
		return order.Rejected
	default:
		return order.UnknownStatus
	}
}

// parseOrder normalizes one venue order. The requested size lives inside
// the order configuration; market buys are quote denominated.
func (c *Coinbase) parseOrder(row *VenueOrder) (*order.Detail, error) {
	m, err := c.MarketFromID(row.ProductID)
	if err != nil {
		return nil, err
	}
	detail := &order.Detail{
		ID:            row.OrderID,
		ClientOrderID: row.ClientOrderID,
		Pair:          m.Pair,
		Info:          row,
	}
	if strings.EqualFold(row.Side, "SELL") {
		detail.Side = order.Sell
	} else {
		detail.Side = order.Buy
	}
	switch {
	case row.OrderConfiguration.LimitLimitGTC != nil:
		detail.Type = order.Limit
		detail.Amount, _ = convert.FloatFromString(row.OrderConfiguration.LimitLimitGTC.BaseSize)
		detail.Price, _ = convert.FloatFromString(row.OrderConfiguration.LimitLimitGTC.LimitPrice)
	case row.OrderConfiguration.MarketMarketIOC != nil:
		detail.Type = order.Market
		cfg := row.OrderConfiguration.MarketMarketIOC
		if cfg.BaseSize != "" {
			detail.Amount, _ = convert.FloatFromString(cfg.BaseSize)
		} else {
			detail.Amount, _ = convert.FloatFromString(cfg.QuoteSize)
		}
	default:
		if strings.EqualFold(row.OrderType, "MARKET") {
			detail.Type = order.Market
		} else {
			detail.Type = order.Limit
		}
	}
	detail.Filled, _ = convert.FloatFromString(row.FilledSize)
	detail.Cost, _ = convert.FloatFromString(row.FilledValue)
	detail.Average, _ = convert.FloatFromString(row.AverageFilledPrice)
	feeCost, _ := convert.FloatFromString(row.TotalFees)
	if feeCost > 0 {
		detail.Fee = order.Fee{Cost: feeCost, Currency: m.Pair.Quote}
	}
	if at, err := convert.ParseDatetime(row.CreatedTime); err == nil {
		detail.Timestamp = at
	}
	detail.Status = coinbaseOrderStatus(row.Status, detail.Filled)
	detail.DeriveRemaining()
	detail.DeriveAverage()
	return detail, nil
}

// FetchOrder returns one order by venue id
func (c *Coinbase) FetchOrder(ctx context.Context, orderID string, _ currency.Pair) (*order.Detail, error) {
	if err := c.RequireFeature("FetchOrder", c.Features.FetchOrder); err != nil {
		return nil, err
	}
	if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	row, err := c.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if row.OrderID == "" {
		return nil, fmt.Errorf("%s: order %s: %w", c.Name, orderID, exchange.ErrOrderNotFound)
	}
	return c.parseOrder(row)
}

func (c *Coinbase) collectOrders(rows []VenueOrder) []order.Detail {
	out := make([]order.Detail, 0, len(rows))
	for i := range rows {
		detail, err := c.parseOrder(&rows[i])
		if err != nil {
			log.Warnf(log.ExchangeSys, "%s: skipping order %s for unknown product %s",
				c.Name, rows[i].OrderID, rows[i].ProductID)
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
func (c *Coinbase) FetchOpenOrders(ctx context.Context, pair currency.Pair) ([]order.Detail, error) {
	if err := c.RequireFeature("FetchOpenOrders", c.Features.OpenOrders); err != nil {
		return nil, err
	}
	productID := ""
	if !pair.IsEmpty() {
		m, err := c.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		productID = m.ID
	} else if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	resp, err := c.ListOrders(ctx, "OPEN", productID, "")
	if err != nil {
		return nil, err
	}
	return c.collectOrders(resp.Orders), nil
}

// FetchClosedOrders returns completed orders. The venue filters one status
// per request, so the unfiltered history is fetched and open entries are
// dropped locally.
func (c *Coinbase) FetchClosedOrders(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]order.Detail, error) {
	if err := c.RequireFeature("FetchClosedOrders", c.Features.ClosedOrders); err != nil {
		return nil, err
	}
	productID := ""
	if !pair.IsEmpty() {
		m, err := c.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		productID = m.ID
	} else if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	startDate := ""
	if !since.IsZero() {
		startDate = since.UTC().Format(time.RFC3339)
	}
	resp, err := c.ListOrders(ctx, "", productID, startDate)
	if err != nil {
		return nil, err
	}
	orders := c.collectOrders(resp.Orders)
	closed := orders[:0]
	for _, o := range orders {
		switch o.Status {
		case order.New, order.PartiallyFilled:
			continue
		default:
			closed = append(closed, o)
		}
	}
	if limit > 0 && len(closed) > limit {
		closed = closed[len(closed)-limit:]
	}
	return closed, nil
}

// FetchMyTrades returns account executions, oldest first
func (c *Coinbase) FetchMyTrades(ctx context.Context, pair currency.Pair, since time.Time, limit int) ([]trade.Data, error) {
	if err := c.RequireFeature("FetchMyTrades", c.Features.MyTrades); err != nil {
		return nil, err
	}
	productID := ""
	if !pair.IsEmpty() {
		m, err := c.marketForPair(ctx, pair)
		if err != nil {
			return nil, err
		}
		productID = m.ID
	} else if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	start := ""
	if !since.IsZero() {
		start = since.UTC().Format(time.RFC3339)
	}
	resp, err := c.ListFills(ctx, productID, start)
	if err != nil {
		return nil, err
	}
	trades := make([]trade.Data, 0, len(resp.Fills))
	for i := range resp.Fills {
		row := &resp.Fills[i]
		m, err := c.MarketFromID(row.ProductID)
		if err != nil {
			log.Warnf(log.ExchangeSys, "%s: skipping fill %s for unknown product %s",
				c.Name, row.TradeID, row.ProductID)
			continue
		}
		t := trade.Data{
			ID:      row.TradeID,
			OrderID: row.OrderID,
			Pair:    m.Pair,
			IsMaker: strings.EqualFold(row.LiquidityIndicator, "MAKER"),
			Info:    row,
		}
		t.Price, _ = convert.FloatFromString(row.Price)
		t.Amount, _ = convert.FloatFromString(row.Size)
		if strings.EqualFold(row.Side, "SELL") {
			t.Side = order.Sell
		} else {
			t.Side = order.Buy
		}
		if at, err := convert.ParseDatetime(row.TradeTime); err == nil {
			t.Timestamp = at
		}
		commission, _ := convert.FloatFromString(row.Commission)
		if commission > 0 {
			t.Fee = order.Fee{Cost: commission, Currency: m.Pair.Quote}
		}
		t.DeriveCost()
		trades = append(trades, t)
	}
	trade.SortByTimestamp(trades)
	return trade.Limit(trades, limit), nil
}

// FetchBalance returns every currency wallet, walking the pagination
func (c *Coinbase) FetchBalance(ctx context.Context) (*account.Holdings, error) {
	if err := c.RequireFeature("FetchBalance", c.Features.Balance); err != nil {
		return nil, err
	}
	accounts, err := c.GetAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	holdings := account.NewHoldings(c.Name)
	holdings.Timestamp = time.Now().UTC()
	holdings.Info = accounts
	for i := range accounts {
		entry := account.Balance{}
		entry.Free, _ = convert.FloatFromString(accounts[i].AvailableBalance.Value)
		entry.Used, _ = convert.FloatFromString(accounts[i].Hold.Value)
		holdings.Set(currency.NewCode(accounts[i].Currency), entry)
	}
	return &holdings, nil
}

// FetchTradingFees returns the account fee tier applied to every listed
// market; the venue prices by account volume, not per pair
func (c *Coinbase) FetchTradingFees(ctx context.Context) (map[string]*fee.PairSchedule, error) {
	if err := c.RequireFeature("FetchTradingFees", c.Features.TradingFees); err != nil {
		return nil, err
	}
	if err := c.ensureMarkets(ctx); err != nil {
		return nil, err
	}
	summary, err := c.GetTransactionSummary(ctx)
	if err != nil {
		return nil, err
	}
	maker, _ := convert.FloatFromString(summary.FeeTier.MakerFeeRate)
	taker, _ := convert.FloatFromString(summary.FeeTier.TakerFeeRate)
	markets := c.Markets()
	out := make(map[string]*fee.PairSchedule, len(markets))
	for symbol, m := range markets {
		out[symbol] = &fee.PairSchedule{Pair: m.Pair, Maker: maker, Taker: taker}
	}
	return out, nil
}
