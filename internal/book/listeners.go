package book

import (
	"github.com/rs/zerolog/log"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// TradeListener is invoked once per command that produced at least one
// fill, carrying the full per-command result with fees applied. Grounded
// on original_source's orderbook/trade.rs TradeListener alias.
type TradeListener func(result *TradeResult)

// PriceLevelChangedEvent reports a price level's new visible quantity
// after a mutation (including a drop to zero, when the level is removed
// entirely). Grounded on original_source's book_change_event.rs.
type PriceLevelChangedEvent struct {
	Side     common.Side
	Price    uint64
	Quantity uint64
}

// PriceLevelChangedListener is invoked synchronously after any mutation
// that changes a level's visible quantity.
type PriceLevelChangedListener func(event PriceLevelChangedEvent)

// notifyPriceLevelChanged and emitTradeResult isolate listener panics so a
// misbehaving subscriber cannot abort an in-flight command (spec.md §5:
// listeners must not block or corrupt the caller; heavy work belongs on
// another goroutine).
func (b *Book) notifyPriceLevelChanged(price uint64, side common.Side, quantity uint64) {
	if b.priceLevelChangedListener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("price-level-changed listener panicked")
		}
	}()
	b.priceLevelChangedListener(PriceLevelChangedEvent{Side: side, Price: price, Quantity: quantity})
}

func (b *Book) emitTradeResult(result *pricelevel.MatchResult) {
	if b.tradeListener == nil || result == nil || len(result.Transactions) == 0 {
		return
	}
	trade := b.buildTradeResult(result)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("trade listener panicked")
		}
	}()
	b.tradeListener(trade)
}
