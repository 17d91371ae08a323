// Package stp implements self-trade prevention: scanning a price level's
// resting orders for a same-user conflict with an incoming taker and
// deciding how the matching engine should react (SPEC_FULL.md §6,
// grounded on original_source's orderbook/stp.rs).
package stp

import (
	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// ActionKind tags the outcome of a level scan.
type ActionKind int

const (
	// NoConflict: proceed with the match as normal.
	NoConflict ActionKind = iota
	// CancelTaker: match up to SafeQuantity, then stop and cancel the
	// remainder of the taker instead of crossing into the same-user order.
	CancelTaker
	// CancelMaker: cancel every same-user resting order at this level
	// before matching proceeds against what's left.
	CancelMaker
	// CancelBoth: match up to SafeQuantity, cancel the first same-user
	// maker order hit, and stop — taker's remainder is also cancelled.
	CancelBoth
)

// Action is the result of scanning one price level for self-trade conflicts.
type Action struct {
	Kind          ActionKind
	SafeQuantity  uint64          // CancelTaker / CancelBoth: qty matchable before the conflict
	MakerOrderID  common.OrderID  // CancelBoth: the first same-user maker hit
	MakerOrderIDs []common.OrderID // CancelMaker: every same-user maker at the level
}

// CheckAtLevel scans orders (FIFO, time-priority order) for a conflict
// between takerUserID and any resting order from the same user, under mode.
//
// Anonymous takers (common.IsAnonymous) always bypass STP, regardless of
// mode — matching the original's Hash32::zero() bypass rule.
func CheckAtLevel(orders []*pricelevel.Order, takerUserID common.UserID, mode common.STPMode) Action {
	if mode == common.STPNone || common.IsAnonymous(takerUserID) {
		return Action{Kind: NoConflict}
	}

	switch mode {
	case common.STPCancelTaker:
		var safe uint64
		for _, o := range orders {
			if o.UserID == takerUserID {
				return Action{Kind: CancelTaker, SafeQuantity: safe}
			}
			safe += o.Quantity
		}
		return Action{Kind: NoConflict}

	case common.STPCancelMaker:
		var ids []common.OrderID
		for _, o := range orders {
			if o.UserID == takerUserID {
				ids = append(ids, o.ID)
			}
		}
		if len(ids) == 0 {
			return Action{Kind: NoConflict}
		}
		return Action{Kind: CancelMaker, MakerOrderIDs: ids}

	case common.STPCancelBoth:
		var safe uint64
		for _, o := range orders {
			if o.UserID == takerUserID {
				return Action{Kind: CancelBoth, SafeQuantity: safe, MakerOrderID: o.ID}
			}
			safe += o.Quantity
		}
		return Action{Kind: NoConflict}

	default:
		return Action{Kind: NoConflict}
	}
}
