package book

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huginn/internal/common"
)

func uptr(v uint64) *uint64 { return &v }

func TestPeekMatch_DoesNotMutateBook(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 100, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 101, 5, uuid.New()))))

	matched := b.PeekMatch(common.Buy, 8, uptr(101))
	assert.Equal(t, uint64(8), matched)

	// still untouched
	askPrice, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(100), askPrice)
	_, hasBid := b.BestBid()
	assert.False(t, hasBid)
}

func TestPeekMatch_CapsAtRequestedQuantity(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 100, 50, uuid.New()))))

	matched := b.PeekMatch(common.Buy, 5, nil)
	assert.Equal(t, uint64(5), matched)
}

func TestPeekMatch_StopsAtLimitPrice(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 100, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 200, 50, uuid.New()))))

	matched := b.PeekMatch(common.Buy, 20, uptr(100))
	assert.Equal(t, uint64(5), matched)
}

func TestMatchOrdersBatch_SequentialEffectsVisible(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 100, 5, uuid.New()))))

	requests := []BatchRequest{
		{TakerID: common.NewOrderID(), Side: common.Buy, Quantity: 3, LimitPrice: uptr(100), UserID: uuid.New()},
		{TakerID: common.NewOrderID(), Side: common.Buy, Quantity: 3, LimitPrice: uptr(100), UserID: uuid.New()},
	}
	outcomes := b.MatchOrdersBatch(requests)

	require.Len(t, outcomes, 2)
	require.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Result.IsComplete)

	// second request only has 2 left to consume, so it's a partial fill,
	// which returns no error (only market orders with limitPrice==nil error,
	// and only when nothing fills at all).
	require.NoError(t, outcomes[1].Err)
	assert.False(t, outcomes[1].Result.IsComplete)
	assert.Equal(t, uint64(1), outcomes[1].Result.RemainingQty)
}

func TestFeeSchedule_TakerOnly(t *testing.T) {
	fs := TakerOnly(10) // 10 bps
	assert.False(t, fs.HasMakerRebate())
	assert.Equal(t, int64(0), fs.CalculateFee(100_000, true))
	assert.Equal(t, int64(100), fs.CalculateFee(100_000, false))
}

func TestFeeSchedule_MakerRebate(t *testing.T) {
	fs := WithMakerRebate(2, 5)
	assert.True(t, fs.HasMakerRebate())
	assert.Equal(t, int64(-20), fs.CalculateFee(100_000, true))
	assert.Equal(t, int64(50), fs.CalculateFee(100_000, false))
}

func TestFeeSchedule_ZeroFee(t *testing.T) {
	fs := ZeroFee()
	assert.True(t, fs.IsZeroFee())
	assert.Equal(t, int64(0), fs.CalculateFee(1_000_000, false))
}

func TestBook_TradeListener_ReceivesFees(t *testing.T) {
	var captured *TradeResult
	b := NewBook("AAPL",
		WithFeeSchedule(WithMakerRebate(1, 3)),
		WithTradeListener(func(r *TradeResult) { captured = r }),
	)

	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 100, 1000, uuid.New()))))
	_, err := b.AddOrder(limitOrder(common.Buy, 100, 1000, uuid.New()))
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "AAPL", captured.Symbol)
	assert.Len(t, captured.MatchResult.Transactions, 1)
	assert.Negative(t, captured.TotalMakerFees, "maker is rebated")
	assert.Positive(t, captured.TotalTakerFees)
}

func TestBook_TradeListener_PanicIsIsolated(t *testing.T) {
	b := NewBook("AAPL", WithTradeListener(func(r *TradeResult) {
		panic("listener blew up")
	}))

	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 100, 5, uuid.New()))))

	assert.NotPanics(t, func() {
		_, err := b.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))
		require.NoError(t, err)
	})
}
