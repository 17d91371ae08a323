package book

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

func TestSpecialOrderTracker_RegisterIgnoresPlainOrders(t *testing.T) {
	tr := NewSpecialOrderTracker()
	tr.Register(&pricelevel.Order{ID: common.NewOrderID(), Kind: common.Standard})
	assert.Equal(t, 0, tr.Count())
}

func TestSpecialOrderTracker_RegisterAndUnregister(t *testing.T) {
	tr := NewSpecialOrderTracker()
	pegged := &pricelevel.Order{ID: common.NewOrderID(), Kind: common.Pegged}
	trailing := &pricelevel.Order{ID: common.NewOrderID(), Kind: common.TrailingStop}

	tr.Register(pegged)
	tr.Register(trailing)
	assert.Equal(t, 2, tr.Count())
	assert.ElementsMatch(t, []common.OrderID{pegged.ID}, tr.PeggedIDs())
	assert.ElementsMatch(t, []common.OrderID{trailing.ID}, tr.TrailingStopIDs())

	tr.Unregister(pegged.ID)
	assert.Equal(t, 1, tr.Count())
}

func TestSpecialOrderTracker_Clear(t *testing.T) {
	tr := NewSpecialOrderTracker()
	tr.Register(&pricelevel.Order{ID: common.NewOrderID(), Kind: common.Pegged})
	tr.Clear()
	assert.Equal(t, 0, tr.Count())
}

func TestCalculatePeggedPrice_MidPriceWithOffset(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 110, 5, uuid.New()))))

	price, ok := b.calculatePeggedPrice(common.RefMidPrice, 5)
	require.True(t, ok)
	assert.Equal(t, uint64(110), price) // mid (105) + offset (5)
}

func TestCalculatePeggedPrice_FloorsAtOne(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 5, 5, uuid.New()))))

	price, ok := b.calculatePeggedPrice(common.RefBestBid, -100)
	require.True(t, ok)
	assert.Equal(t, uint64(1), price)
}

func TestCalculatePeggedPrice_UnavailableReference(t *testing.T) {
	b := NewBook("AAPL")
	_, ok := b.calculatePeggedPrice(common.RefBestBid, 0)
	assert.False(t, ok)
}

func TestCalculateTrailingStopPrice_SellRatchetsUpOnly(t *testing.T) {
	// Market rises: stop should tighten (move up toward the market).
	newStop, newRef, changed := calculateTrailingStopPrice(common.Sell, 120, 100, 10, 90)
	assert.True(t, changed)
	assert.Equal(t, uint64(110), newStop)
	assert.Equal(t, uint64(120), newRef)

	// Market falls back: a Sell stop must never move back down.
	newStop2, _, changed2 := calculateTrailingStopPrice(common.Sell, 105, 120, 10, newStop)
	assert.False(t, changed2)
	assert.Equal(t, newStop, newStop2)
}

func TestCalculateTrailingStopPrice_BuyRatchetsDownOnly(t *testing.T) {
	// Market falls: a Buy stop should tighten (move down toward the market).
	newStop, newRef, changed := calculateTrailingStopPrice(common.Buy, 80, 100, 10, 130)
	assert.True(t, changed)
	assert.Equal(t, uint64(90), newStop)
	assert.Equal(t, uint64(80), newRef)

	// Market rises back: a Buy stop must never move back up.
	newStop2, _, changed2 := calculateTrailingStopPrice(common.Buy, 95, 80, 10, newStop)
	assert.False(t, changed2)
	assert.Equal(t, newStop, newStop2)
}

func TestRepriceSpecialOrders_PeggedOrderFollowsBestBid(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 50, 5, uuid.New()))))

	pegged := &pricelevel.Order{
		ID:              common.NewOrderID(),
		Kind:            common.Pegged,
		Side:            common.Sell,
		Price:           110, // bestBid(50) + offset(60) at creation time
		Quantity:        5,
		TotalQuantity:   5,
		ReferenceType:   common.RefBestBid,
		ReferenceOffset: 60,
		TIF:             common.GTC,
	}
	_, err := b.AddOrder(pegged)
	require.NoError(t, err)

	// Raise the best bid without crossing the pegged ask.
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 80, 5, uuid.New()))))

	changed := b.RepriceSpecialOrders()
	require.Contains(t, changed, pegged.ID)

	askPrice, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(140), askPrice) // new bestBid(80) + offset(60)
}

func TestRepriceSpecialOrders_NoChangeWhenReferenceStable(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 50, 5, uuid.New()))))

	pegged := &pricelevel.Order{
		ID:              common.NewOrderID(),
		Kind:            common.Pegged,
		Side:            common.Sell,
		Price:           110,
		Quantity:        5,
		TotalQuantity:   5,
		ReferenceType:   common.RefBestBid,
		ReferenceOffset: 60,
		TIF:             common.GTC,
	}
	require.NoError(t, errOf(b.AddOrder(pegged)))

	changed := b.RepriceSpecialOrders()
	assert.Empty(t, changed)
}
