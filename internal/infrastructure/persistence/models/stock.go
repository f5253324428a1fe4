package models

import (
	"time"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
)

// StockBalanceModel is the persistence model for StockBalance.
// (product_id, warehouse_id) is unique; rows are never deleted.
type StockBalanceModel struct {
	BaseModel
	ProductID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_key,priority:1"`
	WarehouseID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stock_balance_key,priority:2;index"`
	Quantity         int64     `gorm:"not null;default:0"`
	ReservedQuantity int64     `gorm:"not null;default:0"`
	Version          int       `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (StockBalanceModel) TableName() string {
	return "stock_balances"
}

// ToDomain converts the persistence model to a domain StockBalance
func (m *StockBalanceModel) ToDomain() *stock.StockBalance {
	return &stock.StockBalance{
		ID:               m.ID,
		ProductID:        m.ProductID,
		WarehouseID:      m.WarehouseID,
		Quantity:         m.Quantity,
		ReservedQuantity: m.ReservedQuantity,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// StockBalanceModelFromDomain creates a new persistence model from a domain StockBalance
func StockBalanceModelFromDomain(b *stock.StockBalance) *StockBalanceModel {
	return &StockBalanceModel{
		BaseModel:        baseModelOf(shared.BaseEntity{ID: b.ID, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}),
		ProductID:        b.ProductID,
		WarehouseID:      b.WarehouseID,
		Quantity:         b.Quantity,
		ReservedQuantity: b.ReservedQuantity,
		Version:          b.Version,
	}
}

// LedgerEntryModel is the persistence model for LedgerEntry. The table is
// insert-only; (product_id, warehouse_id, balance_version) is unique so a
// balance version can be produced by exactly one posting.
type LedgerEntryModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	ProductID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_chain,priority:1;index:idx_ledger_product"`
	WarehouseID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_chain,priority:2;index:idx_ledger_warehouse"`
	BalanceVersion  int       `gorm:"not null;uniqueIndex:idx_ledger_chain,priority:3"`
	TransactionType string    `gorm:"type:varchar(20);not null;index"`
	TransactionID   uuid.UUID `gorm:"type:uuid;not null;index"`
	QuantityChange  int64     `gorm:"not null"`
	QuantityBefore  int64     `gorm:"not null"`
	QuantityAfter   int64     `gorm:"not null"`
	ReferenceNumber string    `gorm:"type:varchar(50)"`
	Notes           string    `gorm:"type:text"`
	CreatedBy       uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "stock_ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() stock.LedgerEntry {
	return stock.LedgerEntry{
		ID:              m.ID,
		ProductID:       m.ProductID,
		WarehouseID:     m.WarehouseID,
		TransactionType: stock.TransactionType(m.TransactionType),
		TransactionID:   m.TransactionID,
		QuantityChange:  m.QuantityChange,
		QuantityBefore:  m.QuantityBefore,
		QuantityAfter:   m.QuantityAfter,
		BalanceVersion:  m.BalanceVersion,
		ReferenceNumber: m.ReferenceNumber,
		Notes:           m.Notes,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry
func LedgerEntryModelFromDomain(e *stock.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:              e.ID,
		ProductID:       e.ProductID,
		WarehouseID:     e.WarehouseID,
		BalanceVersion:  e.BalanceVersion,
		TransactionType: string(e.TransactionType),
		TransactionID:   e.TransactionID,
		QuantityChange:  e.QuantityChange,
		QuantityBefore:  e.QuantityBefore,
		QuantityAfter:   e.QuantityAfter,
		ReferenceNumber: e.ReferenceNumber,
		Notes:           e.Notes,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
	}
}
