package book

import (
	"fmt"

	"github.com/tidwall/btree"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// MassCancelResult is the outcome of any of the four mass-cancel variants.
// Grounded on original_source's orderbook/mass_cancel.rs MassCancelResult.
type MassCancelResult struct {
	CancelledCount    int
	CancelledOrderIDs []common.OrderID
}

// IsEmpty reports whether nothing was cancelled.
func (r MassCancelResult) IsEmpty() bool { return r.CancelledCount == 0 }

func (r MassCancelResult) String() string {
	return fmt.Sprintf("MassCancelResult{cancelled=%d}", r.CancelledCount)
}

// CancelAll clears every resting order on both sides in a single pass:
// collect all ids, emit one price-level-change event per affected level
// (quantity → 0), clear both indices, drain both side maps, and clear the
// special-order tracker. O(L + N) versus the O(N log L) a per-order
// cancel loop would cost. Grounded on mass_cancel.rs::cancel_all.
func (b *Book) CancelAll() MassCancelResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	ids := make([]common.OrderID, 0, len(b.orderLocations))
	for id := range b.orderLocations {
		ids = append(ids, id)
	}

	b.bids.Scan(func(level *pricelevel.PriceLevel) bool {
		b.notifyPriceLevelChanged(level.Price, common.Buy, 0)
		return true
	})
	b.asks.Scan(func(level *pricelevel.PriceLevel) bool {
		b.notifyPriceLevelChanged(level.Price, common.Sell, 0)
		return true
	})

	b.bids = newSideTree(common.Buy)
	b.asks = newSideTree(common.Sell)
	b.orderLocations = make(map[common.OrderID]orderLocation)
	b.userOrders = make(map[common.UserID][]common.OrderID)
	b.specialOrders.Clear()

	return MassCancelResult{CancelledCount: len(ids), CancelledOrderIDs: ids}
}

// CancelBySide cancels every order resting on one side, via the
// single-order cancel path (so listener notification and tracker cleanup
// stay uniform). Grounded on mass_cancel.rs::cancel_by_side.
func (b *Book) CancelBySide(side common.Side) MassCancelResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	var ids []common.OrderID
	b.ownSide(side).Scan(func(level *pricelevel.PriceLevel) bool {
		for _, o := range level.Orders {
			ids = append(ids, o.ID)
		}
		return true
	})

	return b.cancelBatchLocked(ids)
}

// CancelByUser cancels every live order belonging to userID, an O(1)
// lookup into user_orders followed by the single-order cancel path per
// id. Grounded on mass_cancel.rs::cancel_orders_by_user.
func (b *Book) CancelByUser(userID common.UserID) MassCancelResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	ids := make([]common.OrderID, len(b.userOrders[userID]))
	copy(ids, b.userOrders[userID])

	return b.cancelBatchLocked(ids)
}

// CancelByPriceRange cancels every order resting at a price in
// [minPrice, maxPrice] (inclusive) on the given side. A range with
// minPrice > maxPrice is rejected with an empty result rather than an
// error, matching mass_cancel.rs::cancel_orders_by_price_range.
func (b *Book) CancelByPriceRange(side common.Side, minPrice, maxPrice uint64) MassCancelResult {
	if minPrice > maxPrice {
		return MassCancelResult{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	var ids []common.OrderID
	tree := b.ownSide(side)
	pivot := &pricelevel.PriceLevel{Price: minPrice}
	scan := func(level *pricelevel.PriceLevel) bool {
		if level.Price > maxPrice {
			return false
		}
		for _, o := range level.Orders {
			ids = append(ids, o.ID)
		}
		return true
	}
	if side == common.Buy {
		// bids are ordered descending; walk from maxPrice down to minPrice.
		tree.Ascend(&pricelevel.PriceLevel{Price: maxPrice}, func(level *pricelevel.PriceLevel) bool {
			if level.Price < minPrice {
				return false
			}
			for _, o := range level.Orders {
				ids = append(ids, o.ID)
			}
			return true
		})
	} else {
		tree.Ascend(pivot, scan)
	}

	return b.cancelBatchLocked(ids)
}

// cancelBatchLocked funnels a collected id list through the single-order
// cancel path. Callers must hold b.mu and have already invalidated the
// cache.
func (b *Book) cancelBatchLocked(ids []common.OrderID) MassCancelResult {
	result := MassCancelResult{CancelledOrderIDs: make([]common.OrderID, 0, len(ids))}
	for _, id := range ids {
		if _, ok := b.cancelOrderLocked(id); ok {
			result.CancelledCount++
			result.CancelledOrderIDs = append(result.CancelledOrderIDs, id)
		}
	}
	return result
}

func newSideTree(side common.Side) *btree.BTreeG[*pricelevel.PriceLevel] {
	if side == common.Buy {
		return btree.NewBTreeG(func(a, b *pricelevel.PriceLevel) bool { return a.Price > b.Price })
	}
	return btree.NewBTreeG(func(a, b *pricelevel.PriceLevel) bool { return a.Price < b.Price })
}
