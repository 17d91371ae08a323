package book

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/tidwall/btree"

	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

// SnapshotFormatVersion is the only wire format SnapshotPackage currently
// accepts; RestoreFromSnapshotPackage rejects anything else.
const SnapshotFormatVersion = 1

// OrderSnapshot is one resting order's essential fields as carried in a
// PriceLevelSnapshot, grounded on original_source's snapshot.rs OrderSnapshot.
type OrderSnapshot struct {
	OrderID  common.OrderID  `json:"order_id"`
	Kind     common.OrderKind `json:"kind"`
	Side     common.Side     `json:"side"`
	Quantity uint64          `json:"quantity"`
	UserID   common.UserID   `json:"user_id"`
}

// PriceLevelSnapshot carries one level's aggregates plus its full order
// list; the aggregates must be recomputable from Orders (RefreshAggregates
// does exactly that on every read, per spec.md §6's wire-format note).
type PriceLevelSnapshot struct {
	Price           uint64          `json:"price"`
	VisibleQuantity uint64          `json:"visible_quantity"`
	HiddenQuantity  uint64          `json:"hidden_quantity"`
	OrderCount      int             `json:"order_count"`
	Orders          []OrderSnapshot `json:"orders"`
}

// RefreshAggregates recomputes VisibleQuantity and OrderCount from Orders,
// so a hand-edited or partially-transmitted snapshot can't carry aggregates
// inconsistent with its own order list. OrderSnapshot carries no hidden
// quantity, so HiddenQuantity cannot be recomputed and is reset to zero.
func (p *PriceLevelSnapshot) RefreshAggregates() {
	p.VisibleQuantity = 0
	p.HiddenQuantity = 0
	for _, o := range p.Orders {
		p.VisibleQuantity += o.Quantity
	}
	p.OrderCount = len(p.Orders)
}

// Snapshot is an immutable point-in-time copy of the top N levels on each
// side. Grounded on original_source's orderbook/snapshot.rs Snapshot.
type Snapshot struct {
	Symbol      string                `json:"symbol"`
	TimestampMS int64                 `json:"timestamp"`
	Bids        []PriceLevelSnapshot  `json:"bids"` // descending by price
	Asks        []PriceLevelSnapshot  `json:"asks"` // ascending by price
}

func snapshotLevel(level *pricelevel.PriceLevel) PriceLevelSnapshot {
	snap := PriceLevelSnapshot{
		Price:  level.Price,
		Orders: make([]OrderSnapshot, 0, len(level.Orders)),
	}
	for _, o := range level.Orders {
		snap.Orders = append(snap.Orders, OrderSnapshot{
			OrderID:  o.ID,
			Kind:     o.Kind,
			Side:     o.Side,
			Quantity: o.Quantity,
			UserID:   o.UserID,
		})
	}
	snap.RefreshAggregates()
	snap.HiddenQuantity = level.HiddenQuantity
	return snap
}

// CreateSnapshot copies the top depth levels on each side. depth == 0 means
// "all levels". Grounded on snapshot.rs::create_snapshot.
func (b *Book) CreateSnapshot(depth int) *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := &Snapshot{Symbol: b.Symbol, TimestampMS: time.Now().UnixMilli()}

	collect := func(tree *btree.BTreeG[*pricelevel.PriceLevel], out *[]PriceLevelSnapshot) {
		n := 0
		tree.Scan(func(level *pricelevel.PriceLevel) bool {
			if depth > 0 && n >= depth {
				return false
			}
			*out = append(*out, snapshotLevel(level))
			n++
			return true
		})
	}
	collect(b.bids, &snap.Bids)
	collect(b.asks, &snap.Asks)
	return snap
}

// RestoreFromSnapshot replaces the book's entire state (both sides, both
// indices, and the special-order tracker) with the contents of snap,
// rejecting a symbol mismatch. Orders are rebuilt only from OrderSnapshot's
// fields (id, kind, side, quantity, user): hidden quantity ends up zero
// after RefreshAggregates, and time-in-force and kind-specific parameters
// (iceberg/reserve, pegged, trailing-stop fields) are not restored.
// Grounded on snapshot.rs::restore_from_snapshot.
func (b *Book) RestoreFromSnapshot(snap *Snapshot) error {
	if snap.Symbol != b.Symbol {
		return &common.DeserializationError{Message: "snapshot symbol " + snap.Symbol + " does not match book symbol " + b.Symbol}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Invalidate()

	b.bids = newSideTree(common.Buy)
	b.asks = newSideTree(common.Sell)
	b.orderLocations = make(map[common.OrderID]orderLocation)
	b.userOrders = make(map[common.UserID][]common.OrderID)
	b.specialOrders.Clear()

	restoreSide := func(levels []PriceLevelSnapshot, side common.Side, tree *btree.BTreeG[*pricelevel.PriceLevel]) {
		for _, ls := range levels {
			ls.RefreshAggregates()
			level := pricelevel.NewPriceLevel(ls.Price)
			for _, os := range ls.Orders {
				o := &pricelevel.Order{
					ID:            os.OrderID,
					Kind:          os.Kind,
					Side:          os.Side,
					Price:         ls.Price,
					Quantity:      os.Quantity,
					TotalQuantity: os.Quantity,
					UserID:        os.UserID,
					State:         common.Resting,
				}
				level.AddOrder(o)
				b.orderLocations[o.ID] = orderLocation{Price: ls.Price, Side: side, UserID: o.UserID}
				b.userOrders[o.UserID] = append(b.userOrders[o.UserID], o.ID)
				if o.Kind == common.Pegged || o.Kind == common.TrailingStop {
					b.specialOrders.Register(o)
				}
			}
			level.HiddenQuantity = ls.HiddenQuantity
			tree.Set(level)
		}
	}
	restoreSide(snap.Bids, common.Buy, b.bids)
	restoreSide(snap.Asks, common.Sell, b.asks)
	return nil
}

// SnapshotPackage wraps a Snapshot with a format version and a SHA-256
// checksum over its canonical JSON serialization, so a corrupted or
// tampered transfer is detectable before it is applied. Grounded on
// snapshot.rs/serialization.rs's checksum-wrapped wire format.
type SnapshotPackage struct {
	Version  int      `json:"version"`
	Snapshot Snapshot `json:"snapshot"`
	Checksum string   `json:"checksum"`
}

func checksumOf(snap *Snapshot) (string, error) {
	canonical, err := json.Marshal(snap)
	if err != nil {
		return "", &common.SerializationError{Message: err.Error()}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CreateSnapshotPackage builds a checksummed, versioned wrapper around a
// fresh snapshot of the given depth.
func (b *Book) CreateSnapshotPackage(depth int) (*SnapshotPackage, error) {
	snap := b.CreateSnapshot(depth)
	sum, err := checksumOf(snap)
	if err != nil {
		return nil, err
	}
	return &SnapshotPackage{Version: SnapshotFormatVersion, Snapshot: *snap, Checksum: sum}, nil
}

// RestoreFromSnapshotPackage validates pkg's version and checksum before
// delegating to RestoreFromSnapshot. A checksum computed over the
// as-received snapshot that disagrees with pkg.Checksum fails closed with
// ChecksumMismatchError, never applying any partial state.
func (b *Book) RestoreFromSnapshotPackage(pkg *SnapshotPackage) error {
	if pkg.Version != SnapshotFormatVersion {
		return &common.DeserializationError{Message: "unsupported snapshot format version"}
	}
	actual, err := checksumOf(&pkg.Snapshot)
	if err != nil {
		return err
	}
	if actual != pkg.Checksum {
		return &common.ChecksumMismatchError{Expected: pkg.Checksum, Actual: actual}
	}
	return b.RestoreFromSnapshot(&pkg.Snapshot)
}

// EnrichedSnapshot augments a Snapshot with derived market metrics, all
// computed in a single pass over its top-N levels (spec.md §4.8). Unlike
// original_source's bitflag-selected subset, every field is always
// populated — see DESIGN.md for why no pack library offers a bitflags-style
// selector, and computing all five is cheap relative to the snapshot copy
// that already happened.
type EnrichedSnapshot struct {
	Snapshot       *Snapshot
	MidPrice       *uint64
	SpreadBps      *int64
	BidDepthTotal  uint64
	AskDepthTotal  uint64
	VwapBid        *float64
	VwapAsk        *float64
	Imbalance      float64
}

func vwap(levels []PriceLevelSnapshot) (float64, uint64, bool) {
	var notional float64
	var qty uint64
	for _, l := range levels {
		total := l.VisibleQuantity + l.HiddenQuantity
		notional += float64(l.Price) * float64(total)
		qty += total
	}
	if qty == 0 {
		return 0, 0, false
	}
	return notional / float64(qty), qty, true
}

// Enrich computes an EnrichedSnapshot from snap. Grounded on
// snapshot.rs::EnrichedSnapshot's metric formulas (mid_price, spread_bps,
// depth totals, vwap per side, imbalance).
func Enrich(snap *Snapshot) *EnrichedSnapshot {
	e := &EnrichedSnapshot{Snapshot: snap}

	vwapBid, bidDepth, bidOK := vwap(snap.Bids)
	vwapAsk, askDepth, askOK := vwap(snap.Asks)
	e.BidDepthTotal = bidDepth
	e.AskDepthTotal = askDepth
	if bidOK {
		e.VwapBid = &vwapBid
	}
	if askOK {
		e.VwapAsk = &vwapAsk
	}

	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		bid, ask := snap.Bids[0].Price, snap.Asks[0].Price
		mid := (bid + ask) / 2
		e.MidPrice = &mid
		if mid > 0 {
			bps := int64(ask-bid) * 10_000 / int64(mid)
			e.SpreadBps = &bps
		}
	}

	total := bidDepth + askDepth
	if total > 0 {
		e.Imbalance = (float64(bidDepth) - float64(askDepth)) / float64(total)
	}

	return e
}
