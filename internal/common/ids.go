// Package common holds the shared identifiers, enums, and error taxonomy
// used across the matching core: order/transaction/user IDs, side and
// time-in-force enums, and the typed error set the book returns.
package common

import "github.com/google/uuid"

// OrderID uniquely identifies a resting or incoming order.
type OrderID = uuid.UUID

// TransactionID uniquely identifies a single maker/taker fill.
type TransactionID = uuid.UUID

// UserID identifies the owner of an order for self-trade prevention.
// The zero value (uuid.Nil) is the "anonymous" sentinel: orders carrying
// it always bypass STP regardless of the configured mode.
type UserID = uuid.UUID

// NewOrderID generates a fresh random order identifier.
func NewOrderID() OrderID { return uuid.New() }

// NewTransactionID generates a fresh random transaction identifier.
func NewTransactionID() TransactionID { return uuid.New() }

// IsAnonymous reports whether id is the zero/anonymous user sentinel.
func IsAnonymous(id UserID) bool { return id == uuid.Nil }
