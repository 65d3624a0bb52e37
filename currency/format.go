package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PairFormat holds pair formatting preferences for a venue wire format
type PairFormat struct {
	Uppercase bool   `json:"uppercase"`
	Delimiter string `json:"delimiter,omitempty"`
}

// Format renders a pair per the formatting preferences
func (f PairFormat) Format(p Pair) string {
	s := p.Base.Upper() + f.Delimiter + p.Quote.Upper()
	if !f.Uppercase {
		return strings.ToLower(s)
	}
	return s
}

// FormatDecimal renders v with at most places decimal places, trimming
// trailing zeros. places < 0 renders the shortest exact form.
func FormatDecimal(v float64, places int) string {
	d := decimal.NewFromFloat(v)
	if places >= 0 {
		d = d.Truncate(int32(places))
	}
	return d.String()
}

// FormatStep rounds v down to the venue step size and renders it without
// float artifacts. A zero step renders the shortest exact form.
func FormatStep(v, step float64) string {
	if step <= 0 {
		return decimal.NewFromFloat(v).String()
	}
	d := decimal.NewFromFloat(v)
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s).String()
}
