package book

import "huginn/internal/pricelevel"

// FeeSchedule holds maker/taker fee rates in basis points. A negative
// maker rate is a rebate (the book pays the maker); the taker rate is
// never negative. Grounded line-for-line on original_source's
// orderbook/fees.rs FeeSchedule.
type FeeSchedule struct {
	MakerFeeBps int32
	TakerFeeBps int32
}

// ZeroFee charges nothing on either side.
func ZeroFee() *FeeSchedule { return &FeeSchedule{} }

// TakerOnly charges only the taker side.
func TakerOnly(takerBps int32) *FeeSchedule {
	return &FeeSchedule{TakerFeeBps: takerBps}
}

// WithMakerRebate pays makers a rebate while charging takers normally.
func WithMakerRebate(makerRebateBps, takerBps int32) *FeeSchedule {
	return &FeeSchedule{MakerFeeBps: -makerRebateBps, TakerFeeBps: takerBps}
}

// HasMakerRebate reports whether makers are paid rather than charged.
func (f *FeeSchedule) HasMakerRebate() bool { return f.MakerFeeBps < 0 }

// IsZeroFee reports whether both sides are uncharged.
func (f *FeeSchedule) IsZeroFee() bool { return f.MakerFeeBps == 0 && f.TakerFeeBps == 0 }

// maxFee is the saturation ceiling used in place of the original's
// i128::MAX fallback; Go's int64 has no wider sibling in play here, so a
// fee that would overflow it saturates to this value instead.
const maxFee = int64(1)<<62 - 1

// CalculateFee returns the fee (or, if negative, rebate) owed on a fill of
// the given notional (price × quantity) for either the maker or taker
// side, saturating instead of overflowing on a pathologically large
// notional.
func (f *FeeSchedule) CalculateFee(notional uint64, isMaker bool) int64 {
	bps := int64(f.TakerFeeBps)
	if isMaker {
		bps = int64(f.MakerFeeBps)
	}
	if bps == 0 {
		return 0
	}
	absBps := bps
	if absBps < 0 {
		absBps = -absBps
	}
	if notional > uint64(maxFee)/uint64(absBps) {
		if bps < 0 {
			return -maxFee
		}
		return maxFee
	}
	return int64(notional) * bps / 10_000
}

// TradeResult is the payload delivered to a TradeListener once per
// command that produced at least one fill. Grounded on original_source's
// orderbook/trade.rs TradeResult.
type TradeResult struct {
	Symbol         string
	MatchResult    *pricelevel.MatchResult
	TotalMakerFees int64
	TotalTakerFees int64
}

// NewTradeResult wraps a match result with zero fees.
func NewTradeResult(symbol string, mr *pricelevel.MatchResult) *TradeResult {
	return &TradeResult{Symbol: symbol, MatchResult: mr}
}

// NewTradeResultWithFees wraps a match result, summing maker/taker fees
// across every transaction via fs. Each transaction's notional (price ×
// quantity) is charged independently on both the maker and taker side.
func NewTradeResultWithFees(symbol string, mr *pricelevel.MatchResult, fs *FeeSchedule) *TradeResult {
	tr := &TradeResult{Symbol: symbol, MatchResult: mr}
	if fs == nil {
		return tr
	}
	for _, t := range mr.Transactions {
		notional := t.Price * t.Quantity
		tr.TotalMakerFees += fs.CalculateFee(notional, true)
		tr.TotalTakerFees += fs.CalculateFee(notional, false)
	}
	return tr
}

// TotalFees is the combined maker+taker fee for the command.
func (t *TradeResult) TotalFees() int64 { return t.TotalMakerFees + t.TotalTakerFees }
