package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"huginn/internal/book"
	"huginn/internal/common"
	"huginn/internal/pricelevel"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort     = errors.New("message too short for declared field lengths")
)

// MessageType tags an inbound client message. Grounded on the teacher's
// internal/net/messages.go MessageType, generalized from the
// AssetType+float64-ticker wire shape to symbol strings and uint64 ticks.
type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	SnapshotRequest
)

// ReportMessageType tags an outbound server report.
type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
	AckReport
)

// Message is anything parseMessage can produce.
type Message interface {
	GetType() MessageType
}

// BaseMessageHeaderLen is the 2-byte type tag every message starts with.
const BaseMessageHeaderLen = 2

// BaseMessage carries the common type tag.
type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case SnapshotRequest:
		return parseSnapshotRequest(body)
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

// readString consumes a 1-byte length prefix followed by that many bytes.
func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 1 {
		return "", nil, ErrMessageTooShort
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return "", nil, ErrMessageTooShort
	}
	return string(buf[:n]), buf[n:], nil
}

// NewOrderMessage is the wire shape of add_order: a symbol, the order kind,
// side, time-in-force, price/quantity in ticks, and an owning user id.
// Iceberg/pegged/trailing-stop extra fields are not carried over this
// demo wire format; it exercises Standard,
// PostOnly, and Market orders end-to-end.
type NewOrderMessage struct {
	BaseMessage
	Symbol   string
	Kind     common.OrderKind
	Side     common.Side
	TIF      common.TimeInForce
	Price    uint64
	Quantity uint64
	UserID   common.UserID
}

// newOrderFixedLen is everything after the symbol: kind(1) + side(1) +
// tif(1) + price(8) + quantity(8) + userID(16).
const newOrderFixedLen = 1 + 1 + 1 + 8 + 8 + 16

func parseNewOrder(body []byte) (NewOrderMessage, error) {
	symbol, rest, err := readString(body)
	if err != nil {
		return NewOrderMessage{}, err
	}
	if len(rest) < newOrderFixedLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	userID, err := uuid.FromBytes(rest[19:35])
	if err != nil {
		return NewOrderMessage{}, fmt.Errorf("invalid user id: %w", err)
	}
	return NewOrderMessage{
		BaseMessage: BaseMessage{TypeOf: NewOrder},
		Symbol:      symbol,
		Kind:        common.OrderKind(rest[0]),
		Side:        common.Side(rest[1]),
		TIF:         common.TimeInForce(rest[2]),
		Price:       binary.BigEndian.Uint64(rest[3:11]),
		Quantity:    binary.BigEndian.Uint64(rest[11:19]),
		UserID:      userID,
	}, nil
}

// Order builds a fresh pricelevel.Order from the wire message, assigning a
// new random order id the way the teacher's NewOrderMessage.Order() did.
func (m NewOrderMessage) Order() *pricelevel.Order {
	return &pricelevel.Order{
		ID:            common.NewOrderID(),
		Kind:          m.Kind,
		Side:          m.Side,
		Price:         m.Price,
		Quantity:      m.Quantity,
		TotalQuantity: m.Quantity,
		UserID:        m.UserID,
		Timestamp:     time.Now(),
		TIF:           m.TIF,
	}
}

// CancelOrderMessage is the wire shape of cancel_order.
type CancelOrderMessage struct {
	BaseMessage
	Symbol  string
	OrderID common.OrderID
}

func parseCancelOrder(body []byte) (CancelOrderMessage, error) {
	symbol, rest, err := readString(body)
	if err != nil {
		return CancelOrderMessage{}, err
	}
	if len(rest) < 16 {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	orderID, err := uuid.FromBytes(rest[:16])
	if err != nil {
		return CancelOrderMessage{}, fmt.Errorf("invalid order id: %w", err)
	}
	return CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}, Symbol: symbol, OrderID: orderID}, nil
}

// SnapshotRequestMessage asks the server to log (and, for a local CLI,
// print) the current top-of-book snapshot for a symbol.
type SnapshotRequestMessage struct {
	BaseMessage
	Symbol string
	Depth  uint16
}

func parseSnapshotRequest(body []byte) (SnapshotRequestMessage, error) {
	symbol, rest, err := readString(body)
	if err != nil {
		return SnapshotRequestMessage{}, err
	}
	if len(rest) < 2 {
		return SnapshotRequestMessage{}, ErrMessageTooShort
	}
	return SnapshotRequestMessage{
		BaseMessage: BaseMessage{TypeOf: SnapshotRequest},
		Symbol:      symbol,
		Depth:       binary.BigEndian.Uint16(rest[0:2]),
	}, nil
}

// Report is an outbound execution/error/ack notification sent back to a
// connected client. Grounded on the teacher's Report/Serialize, with
// float64 price replaced by uint64 ticks.
type Report struct {
	Kind         ReportMessageType
	Symbol       string
	Side         common.Side
	Timestamp    uint64
	Quantity     uint64
	Price        uint64
	OrderID      common.OrderID
	Counterparty string
	Err          string
}

// Serialize packs a Report as:
// [1 kind][1 side][8 timestamp][8 qty][8 price][16 order id]
// [1 symbolLen][symbol][2 errLen][err][2 cpartyLen][cparty]
func (r *Report) Serialize() ([]byte, error) {
	fixed := 1 + 1 + 8 + 8 + 8 + 16
	total := fixed + 1 + len(r.Symbol) + 2 + len(r.Err) + 2 + len(r.Counterparty)
	buf := make([]byte, total)

	buf[0] = byte(r.Kind)
	buf[1] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[2:10], r.Timestamp)
	binary.BigEndian.PutUint64(buf[10:18], r.Quantity)
	binary.BigEndian.PutUint64(buf[18:26], r.Price)
	copy(buf[26:42], r.OrderID[:])

	off := fixed
	buf[off] = byte(len(r.Symbol))
	off++
	off += copy(buf[off:], r.Symbol)

	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(r.Err)))
	off += 2
	off += copy(buf[off:], r.Err)

	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(r.Counterparty)))
	off += 2
	off += copy(buf[off:], r.Counterparty)

	return buf, nil
}

// newTradeReport builds the execution report sent to one side of a fill.
func newTradeReport(symbol string, side common.Side, t pricelevel.Transaction, orderID common.OrderID, counterparty string) Report {
	return Report{
		Kind:         ExecutionReport,
		Symbol:       symbol,
		Side:         side,
		Timestamp:    uint64(t.Timestamp.UnixNano()),
		Quantity:     t.Quantity,
		Price:        t.Price,
		OrderID:      orderID,
		Counterparty: counterparty,
	}
}

// newErrorReport builds an error report carrying err's message.
func newErrorReport(err error) Report {
	return Report{Kind: ErrorReport, Timestamp: uint64(time.Now().UnixNano()), Err: err.Error()}
}

// reportsForTrade builds one execution report per side of every
// transaction in result, grounded on the teacher's
// generateWireTradeReports (there hard-coded to two parties; here it walks
// every transaction since one command can sweep several maker orders).
func reportsForTrade(result *book.TradeResult) []Report {
	reports := make([]Report, 0, len(result.MatchResult.Transactions)*2)
	for _, t := range result.MatchResult.Transactions {
		reports = append(reports,
			newTradeReport(result.Symbol, t.TakerSide, t, t.TakerOrderID, t.MakerOrderID.String()),
			newTradeReport(result.Symbol, t.TakerSide.Opposite(), t, t.MakerOrderID, t.TakerOrderID.String()),
		)
	}
	return reports
}
