package pricelevel

import (
	"time"

	"huginn/internal/common"
)

// Transaction records one maker-vs-taker fill (spec.md §3).
type Transaction struct {
	TransactionID common.TransactionID
	Price         uint64
	Quantity      uint64
	MakerOrderID  common.OrderID
	TakerOrderID  common.OrderID
	TakerSide     common.Side
	Timestamp     time.Time
}

// MatchResult is the outcome of sweeping a PriceLevel (or the whole book)
// against one taker quantity.
type MatchResult struct {
	TakerID          common.OrderID
	InitialQuantity  uint64
	Transactions     []Transaction
	FilledOrderIDs   []common.OrderID
	RemainingQty     uint64
	IsComplete       bool
}

// NewMatchResult starts an empty result for the given taker.
func NewMatchResult(takerID common.OrderID, initialQuantity uint64) *MatchResult {
	return &MatchResult{
		TakerID:         takerID,
		InitialQuantity: initialQuantity,
		RemainingQty:    initialQuantity,
	}
}

// AddTransaction appends a fill to the result.
func (r *MatchResult) AddTransaction(t Transaction) {
	r.Transactions = append(r.Transactions, t)
}

// AddFilledOrderID records a maker order that was fully consumed.
func (r *MatchResult) AddFilledOrderID(id common.OrderID) {
	r.FilledOrderIDs = append(r.FilledOrderIDs, id)
}

// ExecutedQuantity is the total quantity traded across all transactions.
func (r *MatchResult) ExecutedQuantity() uint64 {
	var total uint64
	for _, t := range r.Transactions {
		total += t.Quantity
	}
	return total
}
