package persistence

import (
	"context"
	"fmt"

	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLedgerRepository implements the append-only stock.LedgerRepository.
// It exposes no update or delete.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Append inserts one entry
func (r *GormLedgerRepository) Append(ctx context.Context, entry *stock.LedgerEntry) error {
	if err := r.db.WithContext(ctx).Create(models.LedgerEntryModelFromDomain(entry)).Error; err != nil {
		return fmt.Errorf("append ledger entry for %s: %w", entry.Key(), err)
	}
	return nil
}

// History returns entries newest first. Entries of one key written in the
// same instant are ordered by the balance version they produced.
func (r *GormLedgerRepository) History(ctx context.Context, filter stock.HistoryFilter, limit int) ([]stock.LedgerEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.TransactionType != nil {
		query = query.Where("transaction_type = ?", string(*filter.TransactionType))
	}
	if filter.TransactionID != nil {
		query = query.Where("transaction_id = ?", *filter.TransactionID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.LedgerEntryModel
	if err := query.Order("created_at DESC, balance_version DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query ledger history: %w", err)
	}
	return ledgerEntriesToDomain(rows), nil
}

// Chain returns every entry of key in posting order
func (r *GormLedgerRepository) Chain(ctx context.Context, key stock.Key) ([]stock.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).
		Order("balance_version ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ledger chain %s: %w", key, err)
	}
	return ledgerEntriesToDomain(rows), nil
}

func ledgerEntriesToDomain(rows []models.LedgerEntryModel) []stock.LedgerEntry {
	out := make([]stock.LedgerEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormLedgerRepository implements stock.LedgerRepository
var _ stock.LedgerRepository = (*GormLedgerRepository)(nil)
