package book

import (
	"math"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
	"huginn/internal/stp"
)

// matchOrderWithUser is the single choke point used by market orders,
// limit orders, and any add_order/update_order call whose price crosses
// the opposite best. It sweeps the opposite side in best-first order,
// running self-trade prevention per level, until quantity is exhausted,
// the opposite side is exhausted, or (for a limited sweep) the limit
// price is passed. Callers must hold b.mu for writing. Grounded
// structurally on original_source's orderbook/matching.rs::match_order_with_user.
func (b *Book) matchOrderWithUser(takerID common.OrderID, side common.Side, quantity uint64, limitPrice *uint64, takerUserID common.UserID) (*pricelevel.MatchResult, error) {
	b.cache.Invalidate()

	result := pricelevel.NewMatchResult(takerID, quantity)

	opposite := b.asks
	if side == common.Sell {
		opposite = b.bids
	}

	if opposite.Len() == 0 {
		if limitPrice == nil {
			return result, &common.InsufficientLiquidityError{Side: side, Requested: quantity, Available: 0}
		}
		return result, nil
	}

	stpActive := b.stpMode.IsEnabled() && !common.IsAnonymous(takerUserID)
	stpTakerCancelled := false

	emptyPrices := b.pool.getEmptyPrices()
	defer b.pool.putEmptyPrices(emptyPrices)
	filledIDs := b.pool.getFilledOrders()
	defer b.pool.putFilledOrders(filledIDs)

	applyLevelMatch := func(level *pricelevel.PriceLevel, qty uint64) {
		if qty == 0 {
			return
		}
		levelResult := level.MatchOrder(qty, takerID, side, b.idGen)
		result.Transactions = append(result.Transactions, levelResult.Transactions...)
		filledIDs = append(filledIDs, levelResult.FilledOrderIDs...)
		result.RemainingQty -= levelResult.ExecutedQuantity()

		if len(levelResult.Transactions) > 0 {
			last := levelResult.Transactions[len(levelResult.Transactions)-1]
			b.lastTradePrice.Store(last.Price)
			b.hasTraded.Store(true)
		}
		b.notifyPriceLevelChanged(level.Price, side.Opposite(), level.VisibleQuantity)
	}

	visit := func(level *pricelevel.PriceLevel) bool {
		if limitPrice != nil {
			if (side == common.Buy && level.Price > *limitPrice) ||
				(side == common.Sell && level.Price < *limitPrice) {
				return false
			}
		}

		if stpActive {
			action := stp.CheckAtLevel(level.Orders, takerUserID, b.stpMode)
			switch action.Kind {
			case stp.CancelTaker:
				applyLevelMatch(level, min(result.RemainingQty, action.SafeQuantity))
				stpTakerCancelled = true
				if level.IsEmpty() {
					emptyPrices = append(emptyPrices, level.Price)
				}
				return false

			case stp.CancelBoth:
				applyLevelMatch(level, min(result.RemainingQty, action.SafeQuantity))
				b.cancelFromLevel(level, action.MakerOrderID, side.Opposite())
				stpTakerCancelled = true
				if level.IsEmpty() {
					emptyPrices = append(emptyPrices, level.Price)
				}
				return false

			case stp.CancelMaker:
				for _, id := range action.MakerOrderIDs {
					b.cancelFromLevel(level, id, side.Opposite())
				}
			}
		}

		if level.IsEmpty() {
			emptyPrices = append(emptyPrices, level.Price)
			return result.RemainingQty > 0
		}

		applyLevelMatch(level, result.RemainingQty)
		if level.IsEmpty() {
			emptyPrices = append(emptyPrices, level.Price)
		}
		return result.RemainingQty > 0
	}

	if side == common.Buy {
		opposite.Ascend(&pricelevel.PriceLevel{Price: 0}, visit)
	} else {
		// bids are ordered descending, so Ascend walks highest price first.
		opposite.Ascend(&pricelevel.PriceLevel{Price: math.MaxUint64}, visit)
	}

	for _, price := range emptyPrices {
		opposite.Delete(&pricelevel.PriceLevel{Price: price})
	}
	for _, id := range filledIDs {
		b.removeFromIndices(id)
	}

	if stpTakerCancelled && result.RemainingQty == quantity {
		return result, &common.SelfTradePreventedError{Mode: b.stpMode, TakerOrderID: takerID, UserID: takerUserID}
	}
	if limitPrice == nil && result.RemainingQty == quantity {
		return result, &common.InsufficientLiquidityError{Side: side, Requested: quantity, Available: quantity - result.RemainingQty}
	}

	result.IsComplete = result.RemainingQty == 0
	return result, nil
}

// cancelFromLevel removes a same-user maker order hit by self-trade
// prevention, keeping index and listener bookkeeping uniform with any
// other cancel path.
func (b *Book) cancelFromLevel(level *pricelevel.PriceLevel, id common.OrderID, side common.Side) {
	if _, ok := level.UpdateOrder(pricelevel.OrderUpdate{Kind: pricelevel.UpdateCancel, OrderID: id}); ok {
		b.removeFromIndices(id)
		b.notifyPriceLevelChanged(level.Price, side, level.VisibleQuantity)
	}
}

// MatchOrderWithUser is the public, lock-acquiring entry point behind
// match_market_order (limitPrice == nil) and match_limit_order
// (limitPrice != nil), also used internally as the taker side of
// add_order when an order crosses.
func (b *Book) MatchOrderWithUser(takerID common.OrderID, side common.Side, quantity uint64, limitPrice *uint64, takerUserID common.UserID) (*pricelevel.MatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, err := b.matchOrderWithUser(takerID, side, quantity, limitPrice, takerUserID)
	b.emitTradeResult(result)
	return result, err
}

// BatchRequest is one entry in a sequential batch submitted to
// MatchOrdersBatch.
type BatchRequest struct {
	TakerID    common.OrderID
	Side       common.Side
	Quantity   uint64
	LimitPrice *uint64
	UserID     common.UserID
}

// BatchOutcome pairs one BatchRequest's result with its error, if any.
type BatchOutcome struct {
	Result *pricelevel.MatchResult
	Err    error
}

// MatchOrdersBatch applies each request in order via MatchOrderWithUser, a
// thin sequential convenience grounded on original_source's
// matching.rs::match_orders_batch. Each request observes the effects of
// every prior request in the batch.
func (b *Book) MatchOrdersBatch(requests []BatchRequest) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(requests))
	for i, req := range requests {
		result, err := b.MatchOrderWithUser(req.TakerID, req.Side, req.Quantity, req.LimitPrice, req.UserID)
		outcomes[i] = BatchOutcome{Result: result, Err: err}
	}
	return outcomes
}
