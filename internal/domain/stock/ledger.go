package stock

import (
	"time"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionTypeReceipt      TransactionType = "receipt"
	TransactionTypeDelivery     TransactionType = "delivery"
	TransactionTypeTransferIn   TransactionType = "transfer_in"
	TransactionTypeTransferOut  TransactionType = "transfer_out"
	TransactionTypeAdjustment   TransactionType = "adjustment"
	TransactionTypeInitialStock TransactionType = "initial_stock"
)

// AllTransactionTypes lists every valid type
var AllTransactionTypes = []TransactionType{
	TransactionTypeReceipt,
	TransactionTypeDelivery,
	TransactionTypeTransferIn,
	TransactionTypeTransferOut,
	TransactionTypeAdjustment,
	TransactionTypeInitialStock,
}

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid returns true if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeReceipt,
		TransactionTypeDelivery,
		TransactionTypeTransferIn,
		TransactionTypeTransferOut,
		TransactionTypeAdjustment,
		TransactionTypeInitialStock:
		return true
	}
	return false
}

// AllowsNegative reports whether a posting of this type may leave the
// on-hand quantity below zero. Physical counts override the books.
func (t TransactionType) AllowsNegative() bool {
	return t == TransactionTypeAdjustment
}

// LedgerEntry is an immutable record of one quantity change. BalanceVersion
// is the balance row version produced by the posting; it orders the chain of
// a key even when timestamps collide.
type LedgerEntry struct {
	ID              uuid.UUID
	ProductID       uuid.UUID
	WarehouseID     uuid.UUID
	TransactionType TransactionType
	TransactionID   uuid.UUID
	QuantityChange  int64
	QuantityBefore  int64
	QuantityAfter   int64
	BalanceVersion  int
	ReferenceNumber string
	Notes           string
	CreatedBy       uuid.UUID
	CreatedAt       time.Time
}

// Key returns the balance key of the entry
func (e *LedgerEntry) Key() Key {
	return Key{ProductID: e.ProductID, WarehouseID: e.WarehouseID}
}

// Validate checks the entry before it is appended
func (e *LedgerEntry) Validate() error {
	if e.ProductID == uuid.Nil {
		return shared.NewValidationError("ledger entry requires product_id")
	}
	if e.WarehouseID == uuid.Nil {
		return shared.NewValidationError("ledger entry requires warehouse_id")
	}
	if e.TransactionID == uuid.Nil {
		return shared.NewValidationError("ledger entry requires transaction_id")
	}
	if !e.TransactionType.IsValid() {
		return shared.NewValidationError("invalid transaction type %q", e.TransactionType)
	}
	if e.QuantityBefore+e.QuantityChange != e.QuantityAfter {
		return shared.NewValidationError(
			"ledger entry is inconsistent: %d %+d != %d",
			e.QuantityBefore, e.QuantityChange, e.QuantityAfter,
		)
	}
	return nil
}

// HistoryFilter narrows ledger history queries
type HistoryFilter struct {
	ProductID       *uuid.UUID
	WarehouseID     *uuid.UUID
	TransactionType *TransactionType
	TransactionID   *uuid.UUID
}

// ChainBreak is a point where an entry does not continue its predecessor
type ChainBreak struct {
	EntryID        uuid.UUID `json:"entry_id"`
	ExpectedBefore int64     `json:"expected_before"`
	RecordedBefore int64     `json:"recorded_before"`
	BalanceVersion int       `json:"balance_version"`
}

// Reconciliation compares a replayed ledger chain with the live balance
type Reconciliation struct {
	ProductID   uuid.UUID    `json:"product_id"`
	WarehouseID uuid.UUID    `json:"warehouse_id"`
	Entries     int          `json:"entries"`
	Replayed    int64        `json:"replayed_quantity"`
	Live        int64        `json:"live_quantity"`
	Breaks      []ChainBreak `json:"breaks,omitempty"`
	Consistent  bool         `json:"consistent"`
}

// Replay sums a chain ordered oldest first, starting from zero, and records
// every entry whose quantity_before does not match the running total.
func Replay(entries []LedgerEntry) (int64, []ChainBreak) {
	var running int64
	var breaks []ChainBreak
	for _, e := range entries {
		if e.QuantityBefore != running {
			breaks = append(breaks, ChainBreak{
				EntryID:        e.ID,
				ExpectedBefore: running,
				RecordedBefore: e.QuantityBefore,
				BalanceVersion: e.BalanceVersion,
			})
		}
		running += e.QuantityChange
	}
	return running, breaks
}

// Reconcile replays entries against the live quantity of key
func Reconcile(key Key, entries []LedgerEntry, live int64) Reconciliation {
	replayed, breaks := Replay(entries)
	return Reconciliation{
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		Entries:     len(entries),
		Replayed:    replayed,
		Live:        live,
		Breaks:      breaks,
		Consistent:  replayed == live && len(breaks) == 0,
	}
}
