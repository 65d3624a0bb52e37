package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBook() *Base {
	return &Base{
		Bids: []Item{{Price: 50000, Amount: 1}, {Price: 49990, Amount: 2}, {Price: 49980, Amount: 3}},
		Asks: []Item{{Price: 50010, Amount: 1}, {Price: 50020, Amount: 2}, {Price: 50030, Amount: 3}},
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()
	require.NoError(t, testBook().Verify())

	badBids := testBook()
	badBids.Bids[1].Price = 50001
	assert.ErrorIs(t, badBids.Verify(), errBidsOutOfOrder)

	badAsks := testBook()
	badAsks.Asks[2].Price = 50015
	assert.ErrorIs(t, badAsks.Verify(), errAsksOutOfOrder)

	// equal prices on adjacent levels are tolerated; some venues publish
	// zero-spread crossed feeds during auctions
	flat := &Base{Bids: []Item{{Price: 50000}, {Price: 50000}}}
	assert.NoError(t, flat.Verify())

	assert.NoError(t, (&Base{}).Verify())
}

func TestLimit(t *testing.T) {
	t.Parallel()
	b := testBook()
	b.Limit(2)
	assert.Len(t, b.Bids, 2)
	assert.Len(t, b.Asks, 2)
	assert.Equal(t, 50000.0, b.Bids[0].Price, "truncation keeps the best levels")
	assert.Equal(t, 50010.0, b.Asks[0].Price)

	b.Limit(10)
	assert.Len(t, b.Bids, 2, "limit larger than the book is a no-op")

	untouched := testBook()
	untouched.Limit(0)
	assert.Len(t, untouched.Bids, 3)
	untouched.Limit(-1)
	assert.Len(t, untouched.Asks, 3)
}

func TestBestLevels(t *testing.T) {
	t.Parallel()
	b := testBook()
	assert.Equal(t, Item{Price: 50000, Amount: 1}, b.BestBid())
	assert.Equal(t, Item{Price: 50010, Amount: 1}, b.BestAsk())

	empty := &Base{}
	assert.Equal(t, Item{}, empty.BestBid())
	assert.Equal(t, Item{}, empty.BestAsk())
}
