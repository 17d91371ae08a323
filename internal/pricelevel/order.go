// Package pricelevel implements the order model and the per-price FIFO
// queue that the matching engine sweeps: Order (the eight spec.md
// variants collapsed into one tagged struct), PriceLevel, and the
// Transaction/MatchResult types produced by a level-local match.
package pricelevel

import (
	"time"

	"huginn/internal/common"
)

// Order is every resting or incoming order, tagged by Kind. Rather than
// the original Rust crate's generic extra-fields payload (which forced a
// "convert_from_unit_type" conversion at every call site), the kind-specific
// fields below are plain struct fields that are simply ignored for kinds
// that don't use them — see SPEC_FULL.md §5.
type Order struct {
	ID            common.OrderID
	Kind          common.OrderKind
	Side          common.Side
	Price         uint64 // limit price in ticks; meaningless for a bare Market order
	Quantity      uint64 // remaining *visible* quantity still to be matched
	TotalQuantity uint64 // original total requested quantity
	UserID        common.UserID
	Timestamp     time.Time // arrival time as seen by the submitter
	ExchTimestamp time.Time // arrival time into the book (assigned by Book)
	TIF           common.TimeInForce
	ExpiryTS      time.Time // only meaningful for TIF == GTD
	State         common.OrderState

	// Iceberg / ReserveOrder accounting.
	VisibleSlice       uint64 // configured visible quantity exposed at a time
	HiddenQuantity     uint64 // remaining quantity not yet revealed
	ReplenishThreshold uint64 // Reserve: stored only; matching refills solely when visible reaches zero
	ReplenishAmount    uint64 // Reserve: quantity to move from hidden on refill; 0 means "use VisibleSlice"
	AutoReplenish      bool   // Reserve: if false, hidden is forfeited once visible drains

	// TrailingStop accounting.
	TrailAmount        uint64
	LastReferencePrice uint64

	// PeggedOrder accounting.
	ReferenceOffset int64 // signed offset applied to the reference price
	ReferenceType   common.PegReferenceType
}

// TotalRemaining is the sum of visible and hidden quantity still owed.
func (o *Order) TotalRemaining() uint64 {
	return o.Quantity + o.HiddenQuantity
}

// IsIcebergLike reports whether the order splits visible/hidden quantity.
func (o *Order) IsIcebergLike() bool {
	return o.Kind == common.Iceberg || o.Kind == common.Reserve
}

// replenishSlice returns how much hidden quantity should move to visible
// on one refill, per spec.md §4.1's replenishment contract.
func (o *Order) replenishSlice() uint64 {
	slice := o.ReplenishAmount
	if slice == 0 {
		slice = o.VisibleSlice
	}
	if slice > o.HiddenQuantity {
		slice = o.HiddenQuantity
	}
	return slice
}

// tryReplenish moves hidden quantity into visible when the visible slice
// has drained, honoring AutoReplenish. Returns true if the order still has
// quantity to offer after this call (i.e. should stay at the head of the
// FIFO queue rather than being removed).
func (o *Order) tryReplenish() bool {
	if o.Quantity > 0 {
		return true
	}
	if o.HiddenQuantity == 0 {
		return false
	}
	if o.Kind == common.Reserve && !o.AutoReplenish {
		// Hidden is forfeited: spec.md §9 open question, resolved explicitly.
		o.HiddenQuantity = 0
		return false
	}
	slice := o.replenishSlice()
	if slice == 0 {
		return false
	}
	o.Quantity += slice
	o.HiddenQuantity -= slice
	return true
}

// Clone returns a deep copy suitable for snapshotting without aliasing the
// live resting order (readers must never observe in-flight mutation).
func (o *Order) Clone() *Order {
	clone := *o
	return &clone
}
