package pricelevel

import (
	"time"

	"huginn/internal/common"
)

// IDGenerator produces a fresh transaction id; injected so tests can
// control ids deterministically.
type IDGenerator func() common.TransactionID

// UpdateKind tags the variants of an UpdateOrder request (spec.md §4.1/4.2).
type UpdateKind int

const (
	UpdateCancel UpdateKind = iota
	UpdateQuantity
	UpdatePrice
)

// OrderUpdate is a request against a single resting order. UpdatePrice is
// only ever partially handled here: the level removes the order and the
// caller (Book) is responsible for re-inserting it at the new price,
// because a price change may move the order to a different PriceLevel.
type OrderUpdate struct {
	Kind     UpdateKind
	OrderID  common.OrderID
	Quantity uint64 // for UpdateQuantity
	Price    uint64 // for UpdatePrice
}

// PriceLevel owns the FIFO queue of resting orders at exactly one price.
// Callers (internal/book.Book) are expected to serialize all access to a
// PriceLevel behind the owning Book's mutex; PriceLevel itself holds no
// lock so it can be iterated and mutated without double-locking inside a
// single book command.
type PriceLevel struct {
	Price           uint64
	Orders          []*Order // FIFO: index 0 is the oldest (next to match)
	VisibleQuantity uint64
	HiddenQuantity  uint64
	OrderCount      int
}

// NewPriceLevel creates an empty level at the given price.
func NewPriceLevel(price uint64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// TotalQuantity is the level's full remaining liquidity, visible + hidden.
func (l *PriceLevel) TotalQuantity() uint64 {
	return l.VisibleQuantity + l.HiddenQuantity
}

// IsEmpty reports whether the level holds no orders (spec.md invariant 6:
// such a level must be removed from its side map by the caller).
func (l *PriceLevel) IsEmpty() bool {
	return l.OrderCount == 0
}

// AddOrder appends a resting order to the tail of the FIFO queue.
func (l *PriceLevel) AddOrder(o *Order) {
	l.Orders = append(l.Orders, o)
	l.VisibleQuantity += o.Quantity
	l.HiddenQuantity += o.HiddenQuantity
	l.OrderCount++
}

// IterOrders returns a read-only copy of the current FIFO queue. The
// returned slice shares order pointers with the live queue; callers must
// not mutate them.
func (l *PriceLevel) IterOrders() []*Order {
	out := make([]*Order, len(l.Orders))
	copy(out, l.Orders)
	return out
}

// FindOrder returns the resting order with the given id without removing
// it, or false if this level does not hold it. Used by the special-order
// repricing sweep and by the expiry sweep.
func (l *PriceLevel) FindOrder(id common.OrderID) (*Order, bool) {
	i := l.findIndex(id)
	if i < 0 {
		return nil, false
	}
	return l.Orders[i], true
}

// findIndex returns the index of orderID in the FIFO queue, or -1.
func (l *PriceLevel) findIndex(orderID common.OrderID) int {
	for i, o := range l.Orders {
		if o.ID == orderID {
			return i
		}
	}
	return -1
}

// removeAt deletes the order at index i, updating aggregates.
func (l *PriceLevel) removeAt(i int) {
	o := l.Orders[i]
	l.VisibleQuantity -= o.Quantity
	l.HiddenQuantity -= o.HiddenQuantity
	l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
	l.OrderCount--
}

// UpdateOrder applies Cancel/UpdateQuantity/UpdatePrice. It returns false
// ("not found") if the order is not present at this level — this is
// always a no-op, never an error, to keep the matching fast path free of
// exception handling (spec.md §4.1 failure semantics); the Book layer
// translates "not found" into its own error taxonomy where needed.
//
// UpdatePrice removes the order from this level; the caller re-inserts it
// at the new price level.
func (l *PriceLevel) UpdateOrder(u OrderUpdate) (*Order, bool) {
	i := l.findIndex(u.OrderID)
	if i < 0 {
		return nil, false
	}
	o := l.Orders[i]

	switch u.Kind {
	case UpdateCancel:
		l.removeAt(i)
		return o, true

	case UpdateQuantity:
		delta := int64(u.Quantity) - int64(o.Quantity)
		l.VisibleQuantity = uint64(int64(l.VisibleQuantity) + delta)
		o.Quantity = u.Quantity
		return o, true

	case UpdatePrice:
		l.removeAt(i)
		o.Price = u.Price
		return o, true

	default:
		return nil, false
	}
}

// replenishHead attempts to refill the head order's visible quantity from
// its hidden remainder, keeping the level's aggregate counters in sync.
// Returns true if the order still has visible quantity to offer.
func (l *PriceLevel) replenishHead(head *Order) bool {
	hiddenBefore, visibleBefore := head.HiddenQuantity, head.Quantity
	ok := head.tryReplenish()
	l.HiddenQuantity -= hiddenBefore - head.HiddenQuantity
	l.VisibleQuantity += head.Quantity - visibleBefore
	return ok
}

// MatchOrder consumes the FIFO queue from the head, producing Transactions
// until either qty is exhausted or the queue empties (spec.md §4.1).
//
// When a head order's visible quantity drains: if it carries hidden
// quantity and replenishment applies, hidden moves into visible and the
// order stays at the head (FIFO preserved within its own lifetime);
// otherwise it is removed and recorded in the result's filled-order list.
func (l *PriceLevel) MatchOrder(qty uint64, takerID common.OrderID, takerSide common.Side, gen IDGenerator) *MatchResult {
	result := NewMatchResult(takerID, qty)
	remaining := qty

	for remaining > 0 && len(l.Orders) > 0 {
		head := l.Orders[0]

		// Pathological: visible zero but hidden present and replenishment
		// didn't already run (e.g. a level freshly loaded from a snapshot).
		if head.Quantity == 0 {
			if !l.replenishHead(head) {
				l.removeAt(0)
				result.AddFilledOrderID(head.ID)
				continue
			}
		}

		matchQty := remaining
		if head.Quantity < matchQty {
			matchQty = head.Quantity
		}

		head.Quantity -= matchQty
		remaining -= matchQty
		l.VisibleQuantity -= matchQty

		result.AddTransaction(Transaction{
			TransactionID: gen(),
			Price:         l.Price,
			Quantity:      matchQty,
			MakerOrderID:  head.ID,
			TakerOrderID:  takerID,
			TakerSide:     takerSide,
			Timestamp:     time.Now(),
		})

		if head.Quantity == 0 {
			if l.replenishHead(head) {
				// Hidden revealed into visible; stays at head, keep matching.
				continue
			}
			l.removeAt(0)
			result.AddFilledOrderID(head.ID)
		}
	}

	result.RemainingQty = remaining
	result.IsComplete = remaining == 0
	return result
}
