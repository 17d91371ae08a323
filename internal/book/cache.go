package book

import "sync/atomic"

// bestPriceCache mirrors original_source's PriceLevelCache: best bid/ask are
// read far more often than they change, so cache them behind sync/atomic
// rather than walking the btree on every read. Writers must Invalidate
// before mutating either side; the next Best{Bid,Ask} call repopulates it.
//
// Go has no crossbeam AtomicCell<Option<u128>> equivalent, so "no cached
// value yet" is represented with a has-flag packed alongside the price
// rather than an Option type.
type bestPriceCache struct {
	bid     atomic.Uint64
	bidSet  atomic.Bool
	ask     atomic.Uint64
	askSet  atomic.Bool
}

func newBestPriceCache() *bestPriceCache { return &bestPriceCache{} }

// Invalidate clears both cached sides. Called before any mutation that
// could change the best price (add/cancel/update/match).
func (c *bestPriceCache) Invalidate() {
	c.bidSet.Store(false)
	c.askSet.Store(false)
}

func (c *bestPriceCache) cachedBid() (uint64, bool) {
	if c.bidSet.Load() {
		return c.bid.Load(), true
	}
	return 0, false
}

func (c *bestPriceCache) cachedAsk() (uint64, bool) {
	if c.askSet.Load() {
		return c.ask.Load(), true
	}
	return 0, false
}

func (c *bestPriceCache) storeBid(price uint64) {
	c.bid.Store(price)
	c.bidSet.Store(true)
}

func (c *bestPriceCache) storeAsk(price uint64) {
	c.ask.Store(price)
	c.askSet.Store(true)
}
