package handler

import (
	docapp "github.com/erp/inventory-engine/internal/application/document"
	"github.com/erp/inventory-engine/internal/domain/stock"
)

// AvailabilityQuery is the single-product availability check
type AvailabilityQuery struct {
	ProductID   string `form:"product_id" binding:"required,uuid"`
	WarehouseID string `form:"warehouse_id" binding:"required,uuid"`
	Quantity    int64  `form:"quantity" binding:"required,gt=0"`
}

// AvailabilityItemRequest is one product of a batch check
type AvailabilityItemRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0" example:"5"`
}

// CheckAvailabilityRequest checks several products against one warehouse
// @Description Batch availability check. Duplicate products are evaluated independently.
type CheckAvailabilityRequest struct {
	WarehouseID string                    `json:"warehouse_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Items       []AvailabilityItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (r CheckAvailabilityRequest) items() []stock.Item {
	out := make([]stock.Item, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, stock.Item{ProductID: parseOptionalUUID(it.ProductID), Quantity: it.Quantity})
	}
	return out
}

// InitialStockRequest seeds the opening quantity of one product in one
// warehouse
type InitialStockRequest struct {
	ProductID   string `json:"product_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	WarehouseID string `json:"warehouse_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Quantity    int64  `json:"quantity" binding:"required,gt=0" example:"100"`
}

func (r InitialStockRequest) input() docapp.InitialStockInput {
	return docapp.InitialStockInput{
		ProductID:   parseOptionalUUID(r.ProductID),
		WarehouseID: parseOptionalUUID(r.WarehouseID),
		Quantity:    r.Quantity,
	}
}

// HistoryQuery holds ledger history filters
type HistoryQuery struct {
	ProductID       string `form:"product_id" binding:"omitempty,uuid"`
	WarehouseID     string `form:"warehouse_id" binding:"omitempty,uuid"`
	TransactionType string `form:"transaction_type"`
	TransactionID   string `form:"transaction_id" binding:"omitempty,uuid"`
	Limit           int    `form:"limit" binding:"omitempty,min=1"`
}

// Filter converts the query to a ledger filter. ok is false for an unknown
// transaction type.
func (q HistoryQuery) Filter() (stock.HistoryFilter, bool) {
	var f stock.HistoryFilter
	if q.ProductID != "" {
		f.ProductID = parseUUIDPtr(&q.ProductID)
	}
	if q.WarehouseID != "" {
		f.WarehouseID = parseUUIDPtr(&q.WarehouseID)
	}
	if q.TransactionID != "" {
		f.TransactionID = parseUUIDPtr(&q.TransactionID)
	}
	if q.TransactionType != "" {
		t := stock.TransactionType(q.TransactionType)
		if !t.IsValid() {
			return f, false
		}
		f.TransactionType = &t
	}
	return f, true
}
