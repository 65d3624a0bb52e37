package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unifex/unifex/currency"
)

var btcUSDT = currency.NewPair(currency.BTC, currency.USDT)

func TestSubmitValidate(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name   string
		submit Submit
		err    error
	}{
		{
			name:   "empty pair",
			submit: Submit{Type: Limit, Side: Buy, Amount: 1, Price: 1},
			err:    ErrPairIsEmpty,
		},
		{
			name:   "bad side",
			submit: Submit{Pair: btcUSDT, Type: Limit, Side: Side("HOLD"), Amount: 1, Price: 1},
			err:    ErrSideIsInvalid,
		},
		{
			name:   "bad type",
			submit: Submit{Pair: btcUSDT, Type: Type("ICEBERG"), Side: Buy, Amount: 1, Price: 1},
			err:    ErrTypeIsInvalid,
		},
		{
			name:   "zero amount",
			submit: Submit{Pair: btcUSDT, Type: Limit, Side: Buy, Price: 1},
			err:    ErrAmountIsInvalid,
		},
		{
			name:   "negative amount",
			submit: Submit{Pair: btcUSDT, Type: Market, Side: Sell, Amount: -0.5},
			err:    ErrAmountIsInvalid,
		},
		{
			name:   "limit without price",
			submit: Submit{Pair: btcUSDT, Type: Limit, Side: Buy, Amount: 1},
			err:    ErrPriceMustBeSetIfLimitOrder,
		},
		{
			name:   "valid limit",
			submit: Submit{Pair: btcUSDT, Type: Limit, Side: Buy, Amount: 0.5, Price: 50000},
		},
		{
			name:   "market needs no price",
			submit: Submit{Pair: btcUSDT, Type: Market, Side: Sell, Amount: 0.5},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.submit.Validate()
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStringToOrderSide(t *testing.T) {
	t.Parallel()
	side, err := StringToOrderSide("buy")
	assert.NoError(t, err)
	assert.Equal(t, Buy, side)

	side, err = StringToOrderSide("SELL")
	assert.NoError(t, err)
	assert.Equal(t, Sell, side)

	_, err = StringToOrderSide("hold")
	assert.ErrorIs(t, err, ErrSideIsInvalid)
}

func TestStringToOrderType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Limit, StringToOrderType("limit"))
	assert.Equal(t, Market, StringToOrderType("MARKET"))
	assert.Equal(t, UnknownType, StringToOrderType(""))
	assert.Equal(t, Type("STOP_LOSS_LIMIT"), StringToOrderType("stop_loss_limit"),
		"venue extensions pass through uppercased")
}

func TestStringToOrderStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, New, StringToOrderStatus("new"))
	assert.Equal(t, PartiallyFilled, StringToOrderStatus("Partially_Filled"))
	assert.Equal(t, Filled, StringToOrderStatus("FILLED"))
	assert.Equal(t, Cancelled, StringToOrderStatus("canceled"))
	assert.Equal(t, Expired, StringToOrderStatus("EXPIRED"))
	assert.Equal(t, Rejected, StringToOrderStatus("rejected"))
	assert.Equal(t, UnknownStatus, StringToOrderStatus("pending_cancel"))
}

func TestDeriveRemaining(t *testing.T) {
	t.Parallel()
	d := &Detail{Amount: 1, Filled: 0.25}
	d.DeriveRemaining()
	assert.Equal(t, 0.75, d.Remaining)

	reported := &Detail{Amount: 1, Filled: 0.25, Remaining: 0.5}
	reported.DeriveRemaining()
	assert.Equal(t, 0.5, reported.Remaining, "venue-reported remaining wins")

	overfilled := &Detail{Amount: 1, Filled: 1.5}
	overfilled.DeriveRemaining()
	assert.Zero(t, overfilled.Remaining, "remaining never goes negative")

	unknownAmount := &Detail{Filled: 0.25}
	unknownAmount.DeriveRemaining()
	assert.Zero(t, unknownAmount.Remaining)
}

func TestDeriveAverageAndCost(t *testing.T) {
	t.Parallel()
	d := &Detail{Filled: 0.25, Cost: 12500}
	d.DeriveAverage()
	assert.Equal(t, 50000.0, d.Average)

	d = &Detail{Filled: 0.25, Average: 50000}
	d.DeriveCost()
	assert.Equal(t, 12500.0, d.Cost)

	unfilled := &Detail{Cost: 12500}
	unfilled.DeriveAverage()
	assert.Zero(t, unfilled.Average, "no average without fills")

	reported := &Detail{Filled: 0.25, Cost: 12500, Average: 49000}
	reported.DeriveAverage()
	assert.Equal(t, 49000.0, reported.Average, "venue-reported average wins")
}
