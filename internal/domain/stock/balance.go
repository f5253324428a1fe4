package stock

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
)

// Key identifies one balance row. Every serialized mutation in the engine
// is scoped to a Key.
type Key struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
}

// NewKey builds a key, rejecting nil identifiers
func NewKey(productID, warehouseID uuid.UUID) (Key, error) {
	if productID == uuid.Nil {
		return Key{}, shared.NewValidationError("product_id is required")
	}
	if warehouseID == uuid.Nil {
		return Key{}, shared.NewValidationError("warehouse_id is required")
	}
	return Key{ProductID: productID, WarehouseID: warehouseID}, nil
}

// String returns the lock name of the key
func (k Key) String() string {
	return fmt.Sprintf("stock:%s:%s", k.ProductID, k.WarehouseID)
}

// SortedKeys deduplicates keys and orders them by lock name so that
// multi-key critical sections always acquire in the same order.
func SortedKeys(keys ...Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// StockBalance is the current on-hand and reserved quantity of a product in
// a warehouse. Rows are created lazily on first movement and never deleted.
type StockBalance struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	WarehouseID      uuid.UUID
	Quantity         int64
	ReservedQuantity int64
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewStockBalance returns a zero balance for key
func NewStockBalance(key Key) *StockBalance {
	now := time.Now()
	return &StockBalance{
		ID:          uuid.New(),
		ProductID:   key.ProductID,
		WarehouseID: key.WarehouseID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ZeroBalance is what reads return for a key that has never moved
func ZeroBalance(key Key) StockBalance {
	return StockBalance{ProductID: key.ProductID, WarehouseID: key.WarehouseID}
}

// Key returns the balance key
func (b *StockBalance) Key() Key {
	return Key{ProductID: b.ProductID, WarehouseID: b.WarehouseID}
}

// Available is on-hand minus reserved. It may be negative when reservations
// exceed a freshly adjusted quantity.
func (b *StockBalance) Available() int64 {
	return b.Quantity - b.ReservedQuantity
}

// ApplyDelta changes the on-hand quantity. Only adjustments may take stock
// out below zero; increases are always accepted.
func (b *StockBalance) ApplyDelta(delta int64, txType TransactionType) (before, after int64, err error) {
	if !txType.IsValid() {
		return 0, 0, shared.NewValidationError("invalid transaction type %q", txType)
	}
	before = b.Quantity
	after = before + delta
	if delta < 0 && after < 0 && !txType.AllowsNegative() {
		return before, before, &NegativeStockError{
			ProductID:       b.ProductID,
			WarehouseID:     b.WarehouseID,
			TransactionType: txType,
			Current:         before,
			Delta:           delta,
		}
	}
	b.Quantity = after
	b.UpdatedAt = time.Now()
	return before, after, nil
}

// SetReserved sets the reserved quantity, clamping at zero
func (b *StockBalance) SetReserved(reserved int64) {
	if reserved < 0 {
		reserved = 0
	}
	b.ReservedQuantity = reserved
	b.UpdatedAt = time.Now()
}

// Reserve adds quantity to the reservation
func (b *StockBalance) Reserve(quantity int64) {
	b.SetReserved(b.ReservedQuantity + quantity)
}

// Release removes quantity from the reservation, never going below zero
func (b *StockBalance) Release(quantity int64) {
	b.SetReserved(b.ReservedQuantity - quantity)
}

// BalanceFilter narrows balance listings
type BalanceFilter struct {
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
}
