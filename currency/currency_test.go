package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, BTC, NewCode("btc"))
	assert.Equal(t, BTC, NewCode(" BTC "))
	assert.Equal(t, USDT, NewCode("uSdT"))
	assert.Equal(t, EMPTYCODE, NewCode("   "))
}

func TestCodeCasing(t *testing.T) {
	t.Parallel()
	c := NewCode("Btc")
	assert.Equal(t, "BTC", c.String())
	assert.Equal(t, "btc", c.Lower())
	assert.Equal(t, "BTC", c.Upper())
	assert.False(t, c.IsEmpty())
	assert.True(t, EMPTYCODE.IsEmpty())
}

func TestCodeEqualFoldsCase(t *testing.T) {
	t.Parallel()
	assert.True(t, BTC.Equal(Code("btc")))
	assert.True(t, Code("eTh").Equal(ETH))
	assert.False(t, BTC.Equal(ETH))
}

func TestNewPairDelimiter(t *testing.T) {
	t.Parallel()
	p, err := NewPairDelimiter("BTC-USDT", "-")
	require.NoError(t, err)
	assert.Equal(t, BTC, p.Base)
	assert.Equal(t, USDT, p.Quote)
	assert.Equal(t, "-", p.Delimiter)
	assert.Equal(t, "BTC-USDT", p.String())
}

func TestNewPairDelimiterLowercaseInput(t *testing.T) {
	t.Parallel()
	p, err := NewPairDelimiter("eth_usd", "_")
	require.NoError(t, err)
	assert.Equal(t, ETH, p.Base)
	assert.Equal(t, USD, p.Quote)
}

func TestNewPairDelimiterMissingDelimiter(t *testing.T) {
	t.Parallel()
	_, err := NewPairDelimiter("BTCUSDT", "-")
	assert.ErrorIs(t, err, ErrCurrencyPairEmpty)
}

// Multi-part quotes such as perpetual suffixes stay attached to the quote
// side rather than being discarded.
func TestNewPairDelimiterJoinsExtraSegments(t *testing.T) {
	t.Parallel()
	p, err := NewPairDelimiter("BTC-USDT-PERP", "-")
	require.NoError(t, err)
	assert.Equal(t, BTC, p.Base)
	assert.Equal(t, Code("USDT-PERP"), p.Quote)
}

func TestNewPairFromString(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		in        string
		delimiter string
	}{
		{"BTC/USDT", "/"},
		{"BTC-USDT", "-"},
		{"BTC_USDT", "_"},
	} {
		p, err := NewPairFromString(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, BTC, p.Base, tc.in)
		assert.Equal(t, USDT, p.Quote, tc.in)
		assert.Equal(t, tc.delimiter, p.Delimiter, tc.in)
	}

	_, err := NewPairFromString("BTCUSDT")
	assert.ErrorIs(t, err, ErrCurrencyPairEmpty)
}

func TestPairUpper(t *testing.T) {
	t.Parallel()
	p := NewPairWithDelimiter("btc", "usdt", "-")
	assert.Equal(t, "BTC/USDT", p.Upper())
	assert.Equal(t, "BTC-USDT", p.String())
}

func TestPairIsEmpty(t *testing.T) {
	t.Parallel()
	assert.True(t, EMPTYPAIR.IsEmpty())
	assert.True(t, NewPair(BTC, EMPTYCODE).IsEmpty())
	assert.True(t, NewPair(EMPTYCODE, USDT).IsEmpty())
	assert.False(t, NewPair(BTC, USDT).IsEmpty())
}

func TestPairEqualIgnoresDelimiter(t *testing.T) {
	t.Parallel()
	a := NewPairWithDelimiter("BTC", "USDT", "-")
	b := NewPairWithDelimiter("btc", "usdt", "/")
	c := NewPair(BTC, USDT)
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.False(t, a.Equal(NewPair(ETH, USDT)))
	assert.False(t, a.Equal(NewPair(BTC, USD)))
}

func TestPairsStrings(t *testing.T) {
	t.Parallel()
	pairs := Pairs{
		NewPairWithDelimiter("btc", "usdt", "-"),
		NewPair(ETH, USD),
	}
	assert.Equal(t, []string{"BTC/USDT", "ETH/USD"}, pairs.Strings())
}

func TestPairsContains(t *testing.T) {
	t.Parallel()
	pairs := Pairs{NewPair(BTC, USDT), NewPair(ETH, USD)}
	assert.True(t, pairs.Contains(NewPairWithDelimiter("btc", "usdt", "/")))
	assert.False(t, pairs.Contains(NewPair(BTC, EUR)))
}

func TestPairFormat(t *testing.T) {
	t.Parallel()
	p := NewPairWithDelimiter("btc", "usdt", "/")

	upperDash := PairFormat{Uppercase: true, Delimiter: "-"}
	assert.Equal(t, "BTC-USDT", upperDash.Format(p))
	assert.Equal(t, "BTC-USDT", p.Format(upperDash))

	lowerJoined := PairFormat{Uppercase: false}
	assert.Equal(t, "btcusdt", lowerJoined.Format(p))

	lowerUnderscore := PairFormat{Delimiter: "_"}
	assert.Equal(t, "btc_usdt", lowerUnderscore.Format(p))
}

func TestFormatDecimal(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.12345678", FormatDecimal(0.123456789, 8))
	assert.Equal(t, "50000", FormatDecimal(50000.0, 2))
	assert.Equal(t, "0.1", FormatDecimal(0.1, 4))
	assert.Equal(t, "1", FormatDecimal(1.987, 0))
	assert.Equal(t, "0.5", FormatDecimal(0.5, -1))
}

// FormatStep must floor to the venue step without binary float artifacts;
// naive math.Floor(v/step)*step renders 0.30000000000000004 for the first
// case.
func TestFormatStep(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.3", FormatStep(0.3, 0.1))
	assert.Equal(t, "0.0001", FormatStep(0.00015, 0.0001))
	assert.Equal(t, "49999.5", FormatStep(49999.99, 0.5))
	assert.Equal(t, "12", FormatStep(12.9, 1))
	assert.Equal(t, "0", FormatStep(0.00009, 0.0001))
	assert.Equal(t, "0.123456", FormatStep(0.123456, 0))
	assert.Equal(t, "0.123456", FormatStep(0.123456, -1))
}
