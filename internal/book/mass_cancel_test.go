package book

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huginn/internal/common"
)

func TestCancelAll_ClearsBothSides(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 99, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 98, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 101, 5, uuid.New()))))

	result := b.CancelAll()

	assert.Equal(t, 3, result.CancelledCount)
	_, hasBid := b.BestBid()
	_, hasAsk := b.BestAsk()
	assert.False(t, hasBid)
	assert.False(t, hasAsk)
}

func TestCancelBySide_OnlyTouchesThatSide(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 99, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 101, 5, uuid.New()))))

	result := b.CancelBySide(common.Buy)

	assert.Equal(t, 1, result.CancelledCount)
	_, hasBid := b.BestBid()
	assert.False(t, hasBid)

	askPrice, hasAsk := b.BestAsk()
	require.True(t, hasAsk)
	assert.Equal(t, uint64(101), askPrice)
}

func TestCancelByPriceRange_InclusiveBounds(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 95, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 90, 5, uuid.New()))))

	result := b.CancelByPriceRange(common.Buy, 95, 100)

	assert.Equal(t, 2, result.CancelledCount)
	bidPrice, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(90), bidPrice)
}

func TestCancelByPriceRange_InvertedRangeIsNoop(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))))

	result := b.CancelByPriceRange(common.Buy, 200, 100)

	assert.True(t, result.IsEmpty())
	_, ok := b.BestBid()
	assert.True(t, ok)
}

func TestCancelByUser_EmptyUserIsNoop(t *testing.T) {
	b := NewBook("AAPL")
	result := b.CancelByUser(uuid.New())
	assert.True(t, result.IsEmpty())
}
