package book

import (
	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// validateOrder runs the tick/lot/min-max/STP gates in the fixed order
// spec.md §4.2 requires. Validation is mandatory and uniform across every
// add/match path; a rejection here must precede any side-effect. Grounded
// on original_source's book.rs validation order and on the teacher's own
// TODO in handleLimit flagging the validation gap it never filled.
func (b *Book) validateOrder(o *pricelevel.Order) error {
	if b.tickSize > 0 && o.Price%b.tickSize != 0 {
		return &common.InvalidTickSizeError{Price: o.Price, TickSize: b.tickSize}
	}

	if b.lotSize > 0 {
		if o.Quantity%b.lotSize != 0 {
			return &common.InvalidLotSizeError{Quantity: o.Quantity, LotSize: b.lotSize}
		}
		if o.HiddenQuantity%b.lotSize != 0 {
			return &common.InvalidLotSizeError{Quantity: o.HiddenQuantity, LotSize: b.lotSize}
		}
		if o.TotalQuantity%b.lotSize != 0 {
			return &common.InvalidLotSizeError{Quantity: o.TotalQuantity, LotSize: b.lotSize}
		}
	}

	if b.minOrderSize != nil && o.TotalQuantity < *b.minOrderSize {
		return &common.OrderSizeOutOfRangeError{Quantity: o.TotalQuantity, Min: b.minOrderSize, Max: b.maxOrderSize}
	}
	if b.maxOrderSize != nil && o.TotalQuantity > *b.maxOrderSize {
		return &common.OrderSizeOutOfRangeError{Quantity: o.TotalQuantity, Min: b.minOrderSize, Max: b.maxOrderSize}
	}

	if b.stpMode.IsEnabled() && common.IsAnonymous(o.UserID) {
		return &common.MissingUserIDError{OrderID: o.ID}
	}

	return nil
}
