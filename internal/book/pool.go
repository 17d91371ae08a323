package book

import (
	"sync"

	"huginn/internal/common"
)

// scratchPool reuses the small scratch slices the matching hot path needs
// (filled order ids, prices of levels that emptied out) instead of
// allocating them per match. Grounded on original_source's pool.rs
// MatchingPool, which keeps a per-thread free list of the same two slice
// kinds behind a thread_local!; sync.Pool is the idiomatic Go substitute
// for a thread-local free list (SPEC_FULL.md §7).
type scratchPool struct {
	filledOrders sync.Pool
	emptyPrices  sync.Pool
}

func newScratchPool() *scratchPool {
	return &scratchPool{
		filledOrders: sync.Pool{New: func() any { return make([]common.OrderID, 0, 16) }},
		emptyPrices:  sync.Pool{New: func() any { return make([]uint64, 0, 32) }},
	}
}

func (p *scratchPool) getFilledOrders() []common.OrderID {
	return p.filledOrders.Get().([]common.OrderID)[:0]
}

func (p *scratchPool) putFilledOrders(v []common.OrderID) {
	p.filledOrders.Put(v)
}

func (p *scratchPool) getEmptyPrices() []uint64 {
	return p.emptyPrices.Get().([]uint64)[:0]
}

func (p *scratchPool) putEmptyPrices(v []uint64) {
	p.emptyPrices.Put(v)
}
