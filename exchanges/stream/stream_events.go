package stream

import (
	"github.com/unifex/unifex/currency"
	"github.com/unifex/unifex/exchanges/account"
	"github.com/unifex/unifex/exchanges/kline"
)

// KlineData defines a streamed candle update
type KlineData struct {
	Exchange string
	Pair     currency.Pair
	Interval kline.Interval
	Candle   kline.Candle
}

// BalanceChange defines a streamed account balance update
type BalanceChange struct {
	Exchange string
	Currency currency.Code
	Balance  account.Balance
}
