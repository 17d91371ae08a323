package book

import (
	"sync"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// SpecialOrderTracker tracks pegged and trailing-stop orders so
// RepriceSpecialOrders can find them without scanning every level.
// Grounded on original_source's orderbook/repricing.rs SpecialOrderTracker
// (DashSet-backed there); a mutex-guarded map is the direct Go analogue,
// since repricing runs far less often than matching.
type SpecialOrderTracker struct {
	mu       sync.Mutex
	pegged   map[common.OrderID]struct{}
	trailing map[common.OrderID]struct{}
}

// NewSpecialOrderTracker returns an empty tracker.
func NewSpecialOrderTracker() *SpecialOrderTracker {
	return &SpecialOrderTracker{
		pegged:   make(map[common.OrderID]struct{}),
		trailing: make(map[common.OrderID]struct{}),
	}
}

// Register adds o to the appropriate set if it is a Pegged or
// TrailingStop order; any other kind is a no-op.
func (t *SpecialOrderTracker) Register(o *pricelevel.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o.Kind {
	case common.Pegged:
		t.pegged[o.ID] = struct{}{}
	case common.TrailingStop:
		t.trailing[o.ID] = struct{}{}
	}
}

// Unregister removes id from both sets; a no-op if untracked.
func (t *SpecialOrderTracker) Unregister(id common.OrderID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pegged, id)
	delete(t.trailing, id)
}

// PeggedIDs returns a snapshot of every tracked pegged order id.
func (t *SpecialOrderTracker) PeggedIDs() []common.OrderID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]common.OrderID, 0, len(t.pegged))
	for id := range t.pegged {
		out = append(out, id)
	}
	return out
}

// TrailingStopIDs returns a snapshot of every tracked trailing-stop id.
func (t *SpecialOrderTracker) TrailingStopIDs() []common.OrderID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]common.OrderID, 0, len(t.trailing))
	for id := range t.trailing {
		out = append(out, id)
	}
	return out
}

// Count is the total number of tracked orders across both sets.
func (t *SpecialOrderTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pegged) + len(t.trailing)
}

// Clear empties both sets, used by CancelAll.
func (t *SpecialOrderTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pegged = make(map[common.OrderID]struct{})
	t.trailing = make(map[common.OrderID]struct{})
}

// calculatePeggedPrice computes new_price = reference(type) + offset,
// floored at 1, and reports false if the reference is currently
// unavailable (e.g. BestBid on an empty bid side). Callers must hold
// b.mu. Grounded on repricing.rs::calculate_pegged_price.
func (b *Book) calculatePeggedPrice(refType common.PegReferenceType, offset int64) (uint64, bool) {
	var ref uint64
	var ok bool

	switch refType {
	case common.RefBestBid:
		ref, ok = b.bestBidLocked()
	case common.RefBestAsk:
		ref, ok = b.bestAskLocked()
	case common.RefMidPrice:
		bid, okB := b.bestBidLocked()
		ask, okA := b.bestAskLocked()
		if okB && okA {
			ref, ok = (bid+ask)/2, true
		}
	case common.RefLastTrade:
		ref, ok = b.lastTradePrice.Load(), b.hasTraded.Load()
	}
	if !ok {
		return 0, false
	}

	signed := int64(ref) + offset
	if signed < 1 {
		signed = 1
	}
	return uint64(signed), true
}

// calculateTrailingStopPrice applies the one-way-ratchet rule: a Sell
// stop only ever moves up as the market makes new highs; a Buy stop
// only ever moves down as the market makes new lows. Grounded on
// repricing.rs::calculate_trailing_stop_price.
func calculateTrailingStopPrice(side common.Side, marketPrice, lastReferencePrice, trail, currentStop uint64) (newStop, newRef uint64, changed bool) {
	if side == common.Sell {
		if marketPrice > lastReferencePrice {
			var candidate uint64
			if trail < marketPrice {
				candidate = marketPrice - trail
			}
			if candidate > currentStop {
				return candidate, marketPrice, true
			}
		}
		return currentStop, lastReferencePrice, false
	}

	if marketPrice < lastReferencePrice {
		candidate := marketPrice + trail
		if candidate < currentStop {
			return candidate, marketPrice, true
		}
	}
	return currentStop, lastReferencePrice, false
}

// RepriceSpecialOrders walks the tracker and applies pegged/trailing-stop
// updates (spec.md §4.7), returning the ids whose price actually changed.
func (b *Book) RepriceSpecialOrders() []common.OrderID {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changed []common.OrderID

	for _, id := range b.specialOrders.PeggedIDs() {
		loc, ok := b.orderLocations[id]
		if !ok {
			continue
		}
		level, ok := b.ownSide(loc.Side).GetMut(&pricelevel.PriceLevel{Price: loc.Price})
		if !ok {
			continue
		}
		o, ok := level.FindOrder(id)
		if !ok {
			continue
		}
		newPrice, ok := b.calculatePeggedPrice(o.ReferenceType, o.ReferenceOffset)
		if !ok || newPrice == o.Price {
			continue
		}
		b.cache.Invalidate()
		if _, err := b.updateOrderLocked(pricelevel.OrderUpdate{Kind: pricelevel.UpdatePrice, OrderID: id, Price: newPrice}); err == nil {
			changed = append(changed, id)
		}
	}

	for _, id := range b.specialOrders.TrailingStopIDs() {
		loc, ok := b.orderLocations[id]
		if !ok {
			continue
		}
		level, ok := b.ownSide(loc.Side).GetMut(&pricelevel.PriceLevel{Price: loc.Price})
		if !ok {
			continue
		}
		o, ok := level.FindOrder(id)
		if !ok {
			continue
		}

		var market uint64
		if o.Side == common.Sell {
			market, ok = b.bestBidLocked()
		} else {
			market, ok = b.bestAskLocked()
		}
		if !ok {
			continue
		}

		newStop, newRef, didChange := calculateTrailingStopPrice(o.Side, market, o.LastReferencePrice, o.TrailAmount, o.Price)
		if !didChange {
			continue
		}
		o.LastReferencePrice = newRef

		b.cache.Invalidate()
		if _, err := b.updateOrderLocked(pricelevel.OrderUpdate{Kind: pricelevel.UpdatePrice, OrderID: id, Price: newStop}); err == nil {
			changed = append(changed, id)
		}
	}

	return changed
}
