package document

import (
	"time"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
)

// CreateInput is a typed create request for one document kind
type CreateInput struct {
	Kind   document.Kind
	Header document.Header
	Lines  []document.LineInput
}

// UpdateInput describes an edit. A nil Lines keeps the current lines; a
// non-nil Lines replaces them. Status done validates after the edit and
// status canceled cancels.
type UpdateInput struct {
	Header document.HeaderPatch
	Lines  []document.LineInput
	Status *document.Status
}

func (in UpdateInput) changesContent() bool {
	return !in.Header.IsEmpty() || in.Lines != nil
}

// HistoryEntry is a ledger entry enriched for display
type HistoryEntry struct {
	ID              uuid.UUID             `json:"id"`
	ProductID       uuid.UUID             `json:"product_id"`
	ProductName     string                `json:"product_name"`
	ProductSKU      string                `json:"product_sku"`
	WarehouseID     uuid.UUID             `json:"warehouse_id"`
	WarehouseName   string                `json:"warehouse_name"`
	TransactionType stock.TransactionType `json:"transaction_type"`
	TypeLabel       string                `json:"type_label"`
	TransactionID   uuid.UUID             `json:"transaction_id"`
	QuantityChange  int64                 `json:"quantity_change"`
	QuantityBefore  int64                 `json:"quantity_before"`
	QuantityAfter   int64                 `json:"quantity_after"`
	ReferenceNumber string                `json:"reference_number"`
	Notes           string                `json:"notes"`
	CreatedBy       uuid.UUID             `json:"created_by"`
	CreatedAt       time.Time             `json:"created_at"`
}
