// Package order defines unified order types, sides, statuses and the
// submit/detail shapes shared by every venue driver
package order

import (
	"errors"
	"strings"
	"time"

	"github.com/unifex/unifex/currency"
)

// Validation errors for order submission
var (
	ErrPairIsEmpty    = errors.New("order pair is empty")
	ErrSideIsInvalid  = errors.New("order side is invalid")
	ErrTypeIsInvalid  = errors.New("order type is invalid")
	ErrAmountIsInvalid = errors.New("order amount is invalid")
	ErrPriceMustBeSetIfLimitOrder = errors.New("price must be set if limit order type is desired")
)

// Side is the unified order side
type Side string

// Unified sides
const (
	UnknownSide Side = ""
	Buy         Side = "BUY"
	Sell        Side = "SELL"
)

// String implements the stringer interface
func (s Side) String() string { return string(s) }

// StringToOrderSide converts a case-insensitive side token to a Side
func StringToOrderSide(side string) (Side, error) {
	switch {
	case strings.EqualFold(side, Buy.String()):
		return Buy, nil
	case strings.EqualFold(side, Sell.String()):
		return Sell, nil
	default:
		return UnknownSide, ErrSideIsInvalid
	}
}

// Type is the unified order type. Venue-specific extensions pass through
// uppercased.
type Type string

// Unified types
const (
	UnknownType Type = ""
	Limit       Type = "LIMIT"
	Market      Type = "MARKET"
)

// String implements the stringer interface
func (t Type) String() string { return string(t) }

// StringToOrderType normalizes a venue order-type token. Unknown tokens are
// preserved uppercased so venue extensions survive normalization.
func StringToOrderType(oType string) Type {
	if oType == "" {
		return UnknownType
	}
	return Type(strings.ToUpper(oType))
}

// Status is the unified order status alphabet
type Status string

// Unified statuses
const (
	UnknownStatus   Status = ""
	New             Status = "NEW"
	PartiallyFilled Status = "PARTIALLY_FILLED"
	Filled          Status = "FILLED"
	Cancelled       Status = "CANCELED"
	Expired         Status = "EXPIRED"
	Rejected        Status = "REJECTED"
)

// String implements the stringer interface
func (s Status) String() string { return string(s) }

// StringToOrderStatus converts a token already in the unified alphabet.
// Venue-specific status words are translated by per-driver tables before
// reaching this helper.
func StringToOrderStatus(status string) Status {
	switch strings.ToUpper(status) {
	case string(New):
		return New
	case string(PartiallyFilled):
		return PartiallyFilled
	case string(Filled):
		return Filled
	case string(Cancelled):
		return Cancelled
	case string(Expired):
		return Expired
	case string(Rejected):
		return Rejected
	default:
		return UnknownStatus
	}
}

// Fee is the fee paid on an order or fill
type Fee struct {
	Cost     float64       `json:"cost"`
	Currency currency.Code `json:"currency,omitempty"`
}

// TradeHistory holds a fill attached to an order
type TradeHistory struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Fee       Fee       `json:"fee,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Submit holds the parameters to place an order
type Submit struct {
	Pair          currency.Pair
	Type          Type
	Side          Side
	Amount        float64
	Price         float64
	ClientOrderID string
	// Params carries venue-specific passthrough parameters merged into the
	// outbound request
	Params map[string]interface{}
}

// Validate checks the baseline submit contract before any venue dialect is
// applied
func (s *Submit) Validate() error {
	if s.Pair.IsEmpty() {
		return ErrPairIsEmpty
	}
	if s.Side != Buy && s.Side != Sell {
		return ErrSideIsInvalid
	}
	if s.Type != Limit && s.Type != Market {
		return ErrTypeIsInvalid
	}
	if s.Amount <= 0 {
		return ErrAmountIsInvalid
	}
	if s.Type == Limit && s.Price <= 0 {
		return ErrPriceMustBeSetIfLimitOrder
	}
	return nil
}

// Detail is a normalized order
type Detail struct {
	ID            string         `json:"id"`
	ClientOrderID string         `json:"clientOrderId,omitempty"`
	Pair          currency.Pair  `json:"pair"`
	Type          Type           `json:"type"`
	Side          Side           `json:"side"`
	Price         float64        `json:"price"`
	Amount        float64        `json:"amount"`
	Filled        float64        `json:"filled"`
	Remaining     float64        `json:"remaining"`
	Cost          float64        `json:"cost"`
	Average       float64        `json:"average"`
	Status        Status         `json:"status"`
	Timestamp     time.Time      `json:"timestamp"`
	Trades        []TradeHistory `json:"trades,omitempty"`
	Fee           Fee            `json:"fee,omitempty"`
	Info          interface{}    `json:"-"`
}

// DeriveRemaining fills Remaining from Amount and Filled when the venue did
// not report it. Remaining never goes negative.
func (d *Detail) DeriveRemaining() {
	if d.Remaining != 0 || d.Amount == 0 {
		return
	}
	r := d.Amount - d.Filled
	if r < 0 {
		r = 0
	}
	d.Remaining = r
}

// DeriveAverage fills Average as Cost/Filled when fills exist and the venue
// did not report an average price
func (d *Detail) DeriveAverage() {
	if d.Average == 0 && d.Filled > 0 && d.Cost > 0 {
		d.Average = d.Cost / d.Filled
	}
}

// DeriveCost fills Cost as Average*Filled when the venue reported the
// average but not the cost
func (d *Detail) DeriveCost() {
	if d.Cost == 0 && d.Filled > 0 && d.Average > 0 {
		d.Cost = d.Average * d.Filled
	}
}
