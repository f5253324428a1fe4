package stock

import (
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
)

// Item is a requested quantity of one product
type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
}

// ValidateItems rejects nil products and non-positive quantities
func ValidateItems(items []Item) error {
	for i, it := range items {
		if it.ProductID == uuid.Nil {
			return shared.NewValidationError("items[%d]: product_id is required", i)
		}
		if it.Quantity <= 0 {
			return shared.NewValidationError("items[%d]: quantity must be positive", i)
		}
	}
	return nil
}

// SumByProduct totals quantities per product, keeping first-seen order
func SumByProduct(items []Item) []Item {
	index := make(map[uuid.UUID]int, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// KeysFor returns the balance keys of items in warehouseID
func KeysFor(warehouseID uuid.UUID, items []Item) []Key {
	keys := make([]Key, 0, len(items))
	for _, it := range items {
		keys = append(keys, Key{ProductID: it.ProductID, WarehouseID: warehouseID})
	}
	return keys
}
