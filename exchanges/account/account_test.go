package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifex/unifex/currency"
)

func TestNewHoldings(t *testing.T) {
	t.Parallel()
	h := NewHoldings("testVenue")
	assert.Equal(t, "testVenue", h.Exchange)
	require.NotNil(t, h.Balances)
}

func TestSetDerivesTotal(t *testing.T) {
	t.Parallel()
	h := NewHoldings("testVenue")
	h.Set(currency.BTC, Balance{Free: 1.5, Used: 0.5})
	assert.Equal(t, Balance{Free: 1.5, Used: 0.5, Total: 2}, h.Balances[currency.BTC])
}

func TestSetDerivesFree(t *testing.T) {
	t.Parallel()
	h := NewHoldings("testVenue")
	h.Set(currency.USDT, Balance{Total: 1000, Used: 250})
	assert.Equal(t, Balance{Free: 750, Used: 250, Total: 1000}, h.Balances[currency.USDT])
}

func TestSetVerbatimWhenComplete(t *testing.T) {
	t.Parallel()
	h := NewHoldings("testVenue")
	// venue reports all three; stored verbatim even if they disagree
	h.Set(currency.ETH, Balance{Free: 1, Used: 1, Total: 3})
	assert.Equal(t, Balance{Free: 1, Used: 1, Total: 3}, h.Balances[currency.ETH])

	h.Set(currency.EUR, Balance{})
	assert.Equal(t, Balance{}, h.Balances[currency.EUR], "zero rows stay zero")
}
