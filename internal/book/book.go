// Package book implements the order book: the dual price-ordered index,
// the matching engine, self-trade prevention wiring, mass cancel,
// pegged/trailing-stop repricing, and point-in-time snapshots. Grounded
// on the teacher's internal/engine/orderbook.go (the btree-backed
// PriceLevels pattern) and on original_source's orderbook/book.rs.
package book

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// orderLocation is the O(1) cancel-lookup index entry (spec.md §4.5).
// UserID is carried here (rather than requiring a scan of user_orders, as
// original_source's comment concedes is "acceptable because few users are
// active concurrently") so every index removal stays O(1).
type orderLocation struct {
	Price  uint64
	Side   common.Side
	UserID common.UserID
}

// Book is the root aggregate for one symbol: both price-ordered sides,
// the order-location and user-order indices, the best-bid/ask cache, a
// matching scratch-buffer pool, validation config, STP mode, an optional
// fee schedule, optional listeners, and the special-order tracker.
// Grounded on original_source's book.rs OrderBook<T> struct, collapsed
// from its SkipMap/DashMap/AtomicCell fields onto Go's nearest concurrent
// equivalents (see DESIGN.md's stdlib-justification entries).
type Book struct {
	Symbol string

	mu sync.RWMutex

	bids *btree.BTreeG[*pricelevel.PriceLevel] // ordered descending: Min() is the best bid
	asks *btree.BTreeG[*pricelevel.PriceLevel] // ordered ascending: Min() is the best ask

	orderLocations map[common.OrderID]orderLocation
	userOrders     map[common.UserID][]common.OrderID

	cache *bestPriceCache
	pool  *scratchPool

	lastTradePrice atomic.Uint64
	hasTraded      atomic.Bool
	marketCloseTS  atomic.Int64 // unix nanos; meaningless unless hasMarketClose
	hasMarketClose atomic.Bool

	tickSize     uint64 // 0 disables tick-size validation
	lotSize      uint64 // 0 disables lot-size validation
	minOrderSize *uint64
	maxOrderSize *uint64

	stpMode common.STPMode

	feeSchedule *FeeSchedule

	tradeListener             TradeListener
	priceLevelChangedListener PriceLevelChangedListener

	specialOrders *SpecialOrderTracker

	idGen pricelevel.IDGenerator
}

// Option configures a Book at construction time.
type Option func(*Book)

func WithTickSize(tick uint64) Option { return func(b *Book) { b.tickSize = tick } }
func WithLotSize(lot uint64) Option   { return func(b *Book) { b.lotSize = lot } }

func WithMinOrderSize(min uint64) Option {
	return func(b *Book) { b.minOrderSize = &min }
}

func WithMaxOrderSize(max uint64) Option {
	return func(b *Book) { b.maxOrderSize = &max }
}

func WithSTPMode(mode common.STPMode) Option { return func(b *Book) { b.stpMode = mode } }
func WithFeeSchedule(fs *FeeSchedule) Option  { return func(b *Book) { b.feeSchedule = fs } }

func WithTradeListener(l TradeListener) Option {
	return func(b *Book) { b.tradeListener = l }
}

func WithPriceLevelChangedListener(l PriceLevelChangedListener) Option {
	return func(b *Book) { b.priceLevelChangedListener = l }
}

// NewBook constructs an empty book for symbol. Grounded on
// original_source's book.rs constructor family (new/with_tick_size/
// with_lot_size/with_trade_listener/with_stp_mode/...), collapsed into a
// single functional-options constructor per Go idiom rather than one
// method per combination of settings.
func NewBook(symbol string, opts ...Option) *Book {
	b := &Book{
		Symbol:         symbol,
		bids:           btree.NewBTreeG(func(a, bb *pricelevel.PriceLevel) bool { return a.Price > bb.Price }),
		asks:           btree.NewBTreeG(func(a, bb *pricelevel.PriceLevel) bool { return a.Price < bb.Price }),
		orderLocations: make(map[common.OrderID]orderLocation),
		userOrders:     make(map[common.UserID][]common.OrderID),
		cache:          newBestPriceCache(),
		pool:           newScratchPool(),
		specialOrders:  NewSpecialOrderTracker(),
		idGen:          common.NewTransactionID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) bestBidLocked() (uint64, bool) {
	if p, ok := b.cache.cachedBid(); ok {
		return p, true
	}
	level, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	b.cache.storeBid(level.Price)
	return level.Price, true
}

func (b *Book) bestAskLocked() (uint64, bool) {
	if p, ok := b.cache.cachedAsk(); ok {
		return p, true
	}
	level, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	b.cache.storeAsk(level.Price)
	return level.Price, true
}

// BestBid returns the highest resting buy price, if any.
func (b *Book) BestBid() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBidLocked()
}

// BestAsk returns the lowest resting sell price, if any.
func (b *Book) BestAsk() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestAskLocked()
}

// MidPrice is (best_bid + best_ask) / 2, or false if either side is empty.
func (b *Book) MidPrice() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, okB := b.bestBidLocked()
	ask, okA := b.bestAskLocked()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Spread is best_ask - best_bid, or false if either side is empty or the
// book is transiently crossed mid-command.
func (b *Book) Spread() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, okB := b.bestBidLocked()
	ask, okA := b.bestAskLocked()
	if !okB || !okA || ask < bid {
		return 0, false
	}
	return ask - bid, true
}

// LastTradePrice returns the most recent trade price and whether any
// trade has occurred yet.
func (b *Book) LastTradePrice() (uint64, bool) {
	return b.lastTradePrice.Load(), b.hasTraded.Load()
}

// SetMarketCloseTimestamp configures the DAY time-in-force boundary.
func (b *Book) SetMarketCloseTimestamp(ts time.Time) {
	b.marketCloseTS.Store(ts.UnixNano())
	b.hasMarketClose.Store(true)
}

func (b *Book) hasExpired(o *pricelevel.Order, now time.Time) bool {
	switch o.TIF {
	case common.GTD:
		return !o.ExpiryTS.IsZero() && now.After(o.ExpiryTS)
	case common.DAY:
		return b.hasMarketClose.Load() && now.UnixNano() >= b.marketCloseTS.Load()
	default:
		return false
	}
}

// ExpireStaleOrders cancels every resting order whose time-in-force has
// lapsed as of now and returns their ids (spec.md §4.9's cooperative
// expiry sweep).
func (b *Book) ExpireStaleOrders(now time.Time) []common.OrderID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	var expired []common.OrderID
	for id, loc := range b.orderLocations {
		level, ok := b.ownSide(loc.Side).GetMut(&pricelevel.PriceLevel{Price: loc.Price})
		if !ok {
			continue
		}
		o, ok := level.FindOrder(id)
		if !ok || !b.hasExpired(o, now) {
			continue
		}
		if _, ok := b.cancelOrderLocked(id); ok {
			o.State = common.Expired
			expired = append(expired, id)
		}
	}
	return expired
}

// AddOrder validates o, routes it through the matching engine if it
// crosses the opposite best, and rests any residual per its time-in-force
// (spec.md §4.2's add_order contract).
func (b *Book) AddOrder(o *pricelevel.Order) (*pricelevel.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	if o.TotalQuantity == 0 {
		o.TotalQuantity = o.TotalRemaining()
	}
	if err := b.validateOrder(o); err != nil {
		return nil, err
	}
	if o.ExchTimestamp.IsZero() {
		o.ExchTimestamp = time.Now()
	}
	o.State = common.Pending

	return b.routeOrder(o)
}

// routeOrder applies the cross-check → match → rest sequence (spec.md
// §4.2 steps 2-3) to an already-validated order. Callers must hold b.mu
// and must have already invalidated the cache.
func (b *Book) routeOrder(o *pricelevel.Order) (*pricelevel.Order, error) {
	crosses, oppositeBest := b.marketable(o)

	if o.Kind == common.PostOnly && crosses {
		return nil, &common.PriceCrossingError{Price: o.Price, Side: o.Side, OppositePrice: oppositeBest}
	}

	if o.TIF == common.FOK {
		available := b.peekMatchLocked(o.Side, o.TotalRemaining(), b.limitFor(o))
		if available < o.TotalRemaining() {
			return nil, &common.InsufficientLiquidityError{Side: o.Side, Requested: o.TotalRemaining(), Available: available}
		}
	}

	if crosses || o.Kind == common.Market {
		result, err := b.matchOrderWithUser(o.ID, o.Side, o.TotalRemaining(), b.limitFor(o), o.UserID)
		b.emitTradeResult(result)
		if err != nil {
			return nil, err
		}
		o.Quantity = result.RemainingQty
	}

	if o.Kind == common.Market || !o.TIF.RestsOnBook() || o.Quantity == 0 {
		if o.Quantity == 0 {
			o.State = common.Filled
		} else {
			log.Debug().Str("order_id", o.ID.String()).Uint64("residual", o.Quantity).
				Msg("residual discarded: order does not rest")
		}
		return o, nil
	}

	b.restOrder(o)
	return o, nil
}

// marketable reports whether o would cross the opposite side's best price,
// and that opposite price (0 if the opposite side is empty).
func (b *Book) marketable(o *pricelevel.Order) (bool, uint64) {
	if o.Kind == common.Market {
		return true, 0
	}
	if o.Side == common.Buy {
		ask, ok := b.bestAskLocked()
		return ok && o.Price >= ask, ask
	}
	bid, ok := b.bestBidLocked()
	return ok && o.Price <= bid, bid
}

// limitFor returns o's limit price for the matching sweep, or nil for a
// bare Market order (meaning "no price bound, just consume liquidity").
func (b *Book) limitFor(o *pricelevel.Order) *uint64 {
	if o.Kind == common.Market {
		return nil
	}
	price := o.Price
	return &price
}

func (b *Book) ownSide(side common.Side) *btree.BTreeG[*pricelevel.PriceLevel] {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// restOrder places o at the tail of its price level's FIFO queue,
// creating the level if absent, and updates every index, registering
// pegged/trailing-stop orders with the special-order tracker.
func (b *Book) restOrder(o *pricelevel.Order) {
	levels := b.ownSide(o.Side)
	level, ok := levels.GetMut(&pricelevel.PriceLevel{Price: o.Price})
	if !ok {
		level = pricelevel.NewPriceLevel(o.Price)
		levels.Set(level)
	}
	level.AddOrder(o)

	b.orderLocations[o.ID] = orderLocation{Price: o.Price, Side: o.Side, UserID: o.UserID}
	b.userOrders[o.UserID] = append(b.userOrders[o.UserID], o.ID)

	if o.Quantity < o.TotalQuantity {
		o.State = common.PartiallyFilled
	} else {
		o.State = common.Resting
	}

	if o.Kind == common.Pegged || o.Kind == common.TrailingStop {
		b.specialOrders.Register(o)
	}

	b.notifyPriceLevelChanged(o.Price, o.Side, level.VisibleQuantity)
}

// CancelOrder removes order_id from whichever level holds it. Reports
// false if the order is not live — cancel of an unknown id is a no-op,
// never an error (spec.md §6).
func (b *Book) CancelOrder(id common.OrderID) (*pricelevel.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()
	return b.cancelOrderLocked(id)
}

// cancelOrderLocked is the single-order cancel path every mass-cancel
// variant (other than cancel_all, which is optimized) and the expiry
// sweep funnel through, so listener notification, tracker cleanup, and
// empty-level removal stay uniform (spec.md §4.6). Callers must hold
// b.mu and have already invalidated the cache.
func (b *Book) cancelOrderLocked(id common.OrderID) (*pricelevel.Order, bool) {
	loc, ok := b.orderLocations[id]
	if !ok {
		return nil, false
	}

	levels := b.ownSide(loc.Side)
	level, ok := levels.GetMut(&pricelevel.PriceLevel{Price: loc.Price})
	if !ok {
		return nil, false
	}

	cancelled, ok := level.UpdateOrder(pricelevel.OrderUpdate{Kind: pricelevel.UpdateCancel, OrderID: id})
	if !ok {
		return nil, false
	}

	visible := level.VisibleQuantity
	if level.IsEmpty() {
		levels.Delete(level)
		visible = 0
	}

	b.removeFromIndices(id)
	cancelled.State = common.Cancelled

	b.notifyPriceLevelChanged(loc.Price, loc.Side, visible)
	return cancelled, true
}

// UpdateOrder applies an UpdateQuantity or UpdatePrice request. UpdatePrice
// exits and re-enters through routeOrder, so a reprice that newly crosses
// the opposite best triggers matching exactly as add_order would.
func (b *Book) UpdateOrder(update pricelevel.OrderUpdate) (*pricelevel.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()
	return b.updateOrderLocked(update)
}

func (b *Book) updateOrderLocked(update pricelevel.OrderUpdate) (*pricelevel.Order, error) {
	loc, ok := b.orderLocations[update.OrderID]
	if !ok {
		return nil, &common.OrderNotFoundError{OrderID: update.OrderID}
	}

	levels := b.ownSide(loc.Side)
	level, ok := levels.GetMut(&pricelevel.PriceLevel{Price: loc.Price})
	if !ok {
		return nil, &common.OrderNotFoundError{OrderID: update.OrderID}
	}

	switch update.Kind {
	case pricelevel.UpdateQuantity:
		if b.lotSize > 0 && update.Quantity%b.lotSize != 0 {
			return nil, &common.InvalidLotSizeError{Quantity: update.Quantity, LotSize: b.lotSize}
		}
		o, ok := level.UpdateOrder(update)
		if !ok {
			return nil, &common.OrderNotFoundError{OrderID: update.OrderID}
		}
		b.notifyPriceLevelChanged(loc.Price, loc.Side, level.VisibleQuantity)
		return o, nil

	case pricelevel.UpdatePrice:
		if b.tickSize > 0 && update.Price%b.tickSize != 0 {
			return nil, &common.InvalidTickSizeError{Price: update.Price, TickSize: b.tickSize}
		}
		o, ok := level.UpdateOrder(update)
		if !ok {
			return nil, &common.OrderNotFoundError{OrderID: update.OrderID}
		}
		visible := level.VisibleQuantity
		if level.IsEmpty() {
			levels.Delete(level)
			visible = 0
		}
		b.removeFromIndices(o.ID)
		b.notifyPriceLevelChanged(loc.Price, loc.Side, visible)

		return b.routeOrder(o)

	default:
		return nil, &common.InvalidOperationError{Message: "update_order: cancel must go through CancelOrder"}
	}
}

func (b *Book) removeFromIndices(id common.OrderID) {
	loc, ok := b.orderLocations[id]
	if !ok {
		return
	}
	delete(b.orderLocations, id)
	b.removeFromUserOrders(loc.UserID, id)
	b.specialOrders.Unregister(id)
}

func (b *Book) removeFromUserOrders(userID common.UserID, id common.OrderID) {
	ids := b.userOrders[userID]
	for i, oid := range ids {
		if oid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(b.userOrders, userID)
	} else {
		b.userOrders[userID] = ids
	}
}

func (b *Book) buildTradeResult(mr *pricelevel.MatchResult) *TradeResult {
	if b.feeSchedule == nil {
		return NewTradeResult(b.Symbol, mr)
	}
	return NewTradeResultWithFees(b.Symbol, mr, b.feeSchedule)
}

// peekMatchLocked is shared by PeekMatch and the FOK pre-check in
// routeOrder. Callers must hold b.mu (for reading or writing).
func (b *Book) peekMatchLocked(side common.Side, qty uint64, limitPrice *uint64) uint64 {
	opposite := b.asks
	if side == common.Sell {
		opposite = b.bids
	}

	var matched uint64
	visit := func(level *pricelevel.PriceLevel) bool {
		if limitPrice != nil {
			if (side == common.Buy && level.Price > *limitPrice) ||
				(side == common.Sell && level.Price < *limitPrice) {
				return false
			}
		}
		matched += level.TotalQuantity()
		return matched < qty
	}

	if side == common.Buy {
		opposite.Ascend(&pricelevel.PriceLevel{Price: 0}, visit)
	} else {
		opposite.Ascend(&pricelevel.PriceLevel{Price: math.MaxUint64}, visit)
	}

	if matched > qty {
		matched = qty
	}
	return matched
}

// PeekMatch estimates how much of qty would be matched against side's
// opposite book without mutating any state (spec.md §4.3's non-mutating
// probe; grounded on original_source's matching.rs::peek_match).
func (b *Book) PeekMatch(side common.Side, qty uint64, limitPrice *uint64) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peekMatchLocked(side, qty, limitPrice)
}
