// Package fee defines unified trading fee shapes
package fee

import "github.com/unifex/unifex/currency"

// Schedule is a venue default maker/taker rate pair
type Schedule struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}

// PairSchedule is a per-symbol maker/taker rate pair
type PairSchedule struct {
	Pair  currency.Pair `json:"pair"`
	Maker float64       `json:"maker"`
	Taker float64       `json:"taker"`
}
