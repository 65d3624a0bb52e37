package currency

import "strings"

// Code is a case-normalized currency identifier such as BTC or USD
type Code string

// Common codes used in tests and defaults
const (
	EMPTYCODE = Code("")
	BTC       = Code("BTC")
	ETH       = Code("ETH")
	USD       = Code("USD")
	USDT      = Code("USDT")
	EUR       = Code("EUR")
)

// NewCode returns a Code normalized to uppercase
func NewCode(s string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(s)))
}

// String implements the stringer interface
func (c Code) String() string {
	return string(c)
}

// Lower returns the lowercase representation used on venue wire formats
func (c Code) Lower() string {
	return strings.ToLower(string(c))
}

// Upper returns the uppercase representation
func (c Code) Upper() string {
	return strings.ToUpper(string(c))
}

// IsEmpty returns true when the code is unset
func (c Code) IsEmpty() bool {
	return c == EMPTYCODE
}

// Equal compares case-insensitively
func (c Code) Equal(other Code) bool {
	return strings.EqualFold(string(c), string(other))
}
