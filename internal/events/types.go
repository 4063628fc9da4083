// Package events provides the in-process event bus used for cache invalidation.
package events

import (
	"strings"
)

// EventType represents different event types
type EventType string

const (
	// TransactionChanged is emitted when a portfolio's transaction ledger changes
	TransactionChanged EventType = "TRANSACTION_CHANGED"
	// PriceChanged is emitted when a stored price changes
	PriceChanged EventType = "PRICE_CHANGED"
	// FxChanged is emitted when a stored FX rate changes
	FxChanged EventType = "FX_CHANGED"
	// SnapshotsInvalidated is emitted after cached snapshots were removed
	SnapshotsInvalidated EventType = "SNAPSHOTS_INVALIDATED"
	// ErrorOccurred reports a failure inside an asynchronous handler
	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type the bus carries
var AllTypes = []EventType{
	TransactionChanged,
	PriceChanged,
	FxChanged,
	SnapshotsInvalidated,
	ErrorOccurred,
}

// ChangeType is the kind of upstream data change that invalidates cached
// performance snapshots
type ChangeType string

const (
	ChangeTransaction ChangeType = "TRANSACTION"
	ChangePrice       ChangeType = "PRICE"
	ChangeFx          ChangeType = "FX"
)

// ParseChangeType parses a change type, case-insensitively
func ParseChangeType(s string) (ChangeType, bool) {
	switch ChangeType(strings.ToUpper(strings.TrimSpace(s))) {
	case ChangeTransaction:
		return ChangeTransaction, true
	case ChangePrice:
		return ChangePrice, true
	case ChangeFx:
		return ChangeFx, true
	}
	return "", false
}

// EventType returns the bus event carrying this change
func (c ChangeType) EventType() EventType {
	switch c {
	case ChangeTransaction:
		return TransactionChanged
	case ChangePrice:
		return PriceChanged
	case ChangeFx:
		return FxChanged
	}
	return ""
}
