package currency

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCurrencyPairEmpty defines an error if the currency pair is empty
	ErrCurrencyPairEmpty = errors.New("currency pair is empty")
	// ErrCurrencyNotFound returned when a currency is not found in a list
	ErrCurrencyNotFound = errors.New("currency code not found in list")

	// EMPTYPAIR is an empty currency pair
	EMPTYPAIR = Pair{}
)

// Pair holds currency pair information
type Pair struct {
	Delimiter string `json:"delimiter,omitempty"`
	Base      Code   `json:"base,omitempty"`
	Quote     Code   `json:"quote,omitempty"`
}

// NewPair returns a currency pair from currency codes
func NewPair(baseCurrency, quoteCurrency Code) Pair {
	return Pair{
		Base:  baseCurrency,
		Quote: quoteCurrency,
	}
}

// NewPairFromStrings returns a Pair without a delimiter
func NewPairFromStrings(baseCurrency, quoteCurrency string) Pair {
	return Pair{
		Base:  NewCode(baseCurrency),
		Quote: NewCode(quoteCurrency),
	}
}

// NewPairWithDelimiter returns a Pair with a delimiter
func NewPairWithDelimiter(base, quote, delimiter string) Pair {
	return Pair{
		Base:      NewCode(base),
		Quote:     NewCode(quote),
		Delimiter: delimiter,
	}
}

// NewPairDelimiter splits a delimited currency string into a Pair
func NewPairDelimiter(currencyPair, delimiter string) (Pair, error) {
	result := strings.Split(currencyPair, delimiter)
	if len(result) < 2 {
		return EMPTYPAIR, fmt.Errorf("%w: no delimiter %q in %q",
			ErrCurrencyPairEmpty, delimiter, currencyPair)
	}
	return Pair{
		Delimiter: delimiter,
		Base:      NewCode(result[0]),
		Quote:     NewCode(strings.Join(result[1:], delimiter)),
	}, nil
}

// NewPairFromString converts a slash, dash or underscore delimited currency
// string into a Pair
func NewPairFromString(currencyPair string) (Pair, error) {
	for _, delim := range []string{"/", "-", "_"} {
		if strings.Contains(currencyPair, delim) {
			return NewPairDelimiter(currencyPair, delim)
		}
	}
	return EMPTYPAIR, fmt.Errorf("%w: no delimiter in %q",
		ErrCurrencyPairEmpty, currencyPair)
}

// String implements the stringer interface, rendering base, delimiter and
// quote as stored
func (p Pair) String() string {
	return p.Base.String() + p.Delimiter + p.Quote.String()
}

// Upper returns the unified representation BASE/QUOTE
func (p Pair) Upper() string {
	return p.Base.Upper() + "/" + p.Quote.Upper()
}

// IsEmpty returns true when base or quote is unset
func (p Pair) IsEmpty() bool {
	return p.Base.IsEmpty() || p.Quote.IsEmpty()
}

// Equal compares base and quote case-insensitively, ignoring delimiters
func (p Pair) Equal(other Pair) bool {
	return p.Base.Equal(other.Base) && p.Quote.Equal(other.Quote)
}

// Format renders the pair per the supplied PairFormat
func (p Pair) Format(pf PairFormat) string {
	return pf.Format(p)
}

// Pairs defines a list of pairs
type Pairs []Pair

// Strings returns the unified string form of every pair
func (p Pairs) Strings() []string {
	out := make([]string, len(p))
	for i := range p {
		out[i] = p[i].Upper()
	}
	return out
}

// Contains reports whether the list holds an equal pair
func (p Pairs) Contains(needle Pair) bool {
	for i := range p {
		if p[i].Equal(needle) {
			return true
		}
	}
	return false
}
