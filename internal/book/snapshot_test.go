package book

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huginn/internal/common"
)

func TestCreateSnapshot_RespectsDepth(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 99, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 98, 5, uuid.New()))))

	snap := b.CreateSnapshot(2)

	require.Len(t, snap.Bids, 2)
	assert.Equal(t, uint64(100), snap.Bids[0].Price)
	assert.Equal(t, uint64(99), snap.Bids[1].Price)
}

func TestCreateSnapshot_ZeroDepthMeansAll(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 99, 5, uuid.New()))))

	snap := b.CreateSnapshot(0)
	assert.Len(t, snap.Bids, 2)
}

func TestRestoreFromSnapshot_RoundTrip(t *testing.T) {
	src := NewBook("AAPL")
	user := uuid.New()
	require.NoError(t, errOf(src.AddOrder(limitOrder(common.Buy, 100, 5, user))))
	require.NoError(t, errOf(src.AddOrder(limitOrder(common.Sell, 105, 7, user))))

	snap := src.CreateSnapshot(0)

	dst := NewBook("AAPL")
	require.NoError(t, dst.RestoreFromSnapshot(snap))

	bidPrice, ok := dst.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(100), bidPrice)

	askPrice, ok := dst.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(105), askPrice)
}

func TestRestoreFromSnapshot_SymbolMismatch(t *testing.T) {
	src := NewBook("AAPL")
	snap := src.CreateSnapshot(0)

	dst := NewBook("MSFT")
	err := dst.RestoreFromSnapshot(snap)

	require.Error(t, err)
	var deserErr *common.DeserializationError
	assert.ErrorAs(t, err, &deserErr)
}

func TestSnapshotPackage_RoundTripSucceedsWithValidChecksum(t *testing.T) {
	src := NewBook("AAPL")
	require.NoError(t, errOf(src.AddOrder(limitOrder(common.Buy, 100, 5, uuid.New()))))

	pkg, err := src.CreateSnapshotPackage(0)
	require.NoError(t, err)
	assert.Equal(t, SnapshotFormatVersion, pkg.Version)
	assert.NotEmpty(t, pkg.Checksum)

	dst := NewBook("AAPL")
	require.NoError(t, dst.RestoreFromSnapshotPackage(pkg))

	bidPrice, ok := dst.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(100), bidPrice)
}

func TestSnapshotPackage_RejectsUnsupportedVersion(t *testing.T) {
	src := NewBook("AAPL")
	pkg, err := src.CreateSnapshotPackage(0)
	require.NoError(t, err)
	pkg.Version = 99

	dst := NewBook("AAPL")
	err = dst.RestoreFromSnapshotPackage(pkg)
	require.Error(t, err)
	var deserErr *common.DeserializationError
	assert.ErrorAs(t, err, &deserErr)
}

func TestEnrich_ComputesMetrics(t *testing.T) {
	b := NewBook("AAPL")
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Buy, 100, 10, uuid.New()))))
	require.NoError(t, errOf(b.AddOrder(limitOrder(common.Sell, 110, 5, uuid.New()))))

	snap := b.CreateSnapshot(0)
	enriched := Enrich(snap)

	require.NotNil(t, enriched.MidPrice)
	assert.Equal(t, uint64(105), *enriched.MidPrice)

	require.NotNil(t, enriched.SpreadBps)
	assert.Equal(t, int64(10)*10_000/105, *enriched.SpreadBps)

	assert.Equal(t, uint64(10), enriched.BidDepthTotal)
	assert.Equal(t, uint64(5), enriched.AskDepthTotal)

	require.NotNil(t, enriched.VwapBid)
	assert.Equal(t, float64(100), *enriched.VwapBid)

	// bid depth (10) outweighs ask depth (5): imbalance skews positive.
	assert.Greater(t, enriched.Imbalance, 0.0)
}

func TestEnrich_EmptyBookHasNilFields(t *testing.T) {
	b := NewBook("AAPL")
	snap := b.CreateSnapshot(0)
	enriched := Enrich(snap)

	assert.Nil(t, enriched.MidPrice)
	assert.Nil(t, enriched.SpreadBps)
	assert.Nil(t, enriched.VwapBid)
	assert.Nil(t, enriched.VwapAsk)
	assert.Equal(t, 0.0, enriched.Imbalance)
}
