package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBalanceRepository implements stock.BalanceRepository using GORM
type GormBalanceRepository struct {
	db *gorm.DB
}

// NewGormBalanceRepository creates a new GormBalanceRepository
func NewGormBalanceRepository(db *gorm.DB) *GormBalanceRepository {
	return &GormBalanceRepository{db: db}
}

// FindByKey finds the balance row of a product in a warehouse
func (r *GormBalanceRepository) FindByKey(ctx context.Context, key stock.Key) (*stock.StockBalance, error) {
	var m models.StockBalanceModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("find balance %s: %w", key, err)
	}
	return m.ToDomain(), nil
}

// GetOrCreateForUpdate lazily inserts a zero row for key and reads it back.
// On postgres the read takes a row lock held until the surrounding transaction ends.
func (r *GormBalanceRepository) GetOrCreateForUpdate(ctx context.Context, key stock.Key) (*stock.StockBalance, error) {
	db := r.db.WithContext(ctx)

	// ON CONFLICT DO NOTHING lets two first movements of the same key race safely
	row := models.StockBalanceModelFromDomain(stock.NewStockBalance(key))
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "warehouse_id"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create balance %s: %w", key, err)
	}

	query := db.Where("product_id = ? AND warehouse_id = ?", key.ProductID, key.WarehouseID)
	if supportsRowLocks(db) {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var m models.StockBalanceModel
	if err := query.First(&m).Error; err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", key, err)
	}
	return m.ToDomain(), nil
}

// UpdateWithVersion writes the quantities only if the stored version still
// matches balance.Version. Zero affected rows means another writer got there first.
func (r *GormBalanceRepository) UpdateWithVersion(ctx context.Context, balance *stock.StockBalance) error {
	result := r.db.WithContext(ctx).
		Model(&models.StockBalanceModel{}).
		Where("product_id = ? AND warehouse_id = ? AND version = ?",
			balance.ProductID, balance.WarehouseID, balance.Version).
		Updates(map[string]any{
			"quantity":          balance.Quantity,
			"reserved_quantity": balance.ReservedQuantity,
			"version":           balance.Version + 1,
			"updated_at":        balance.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("update balance %s: %w", balance.Key(), result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	balance.Version++
	return nil
}

// List returns balances filtered by product and/or warehouse
func (r *GormBalanceRepository) List(ctx context.Context, filter stock.BalanceFilter) ([]stock.StockBalance, error) {
	query := r.db.WithContext(ctx).Model(&models.StockBalanceModel{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}

	var rows []models.StockBalanceModel
	if err := query.Order("product_id ASC, warehouse_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]stock.StockBalance, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// supportsRowLocks reports whether the dialect understands SELECT ... FOR UPDATE.
// sqlite serializes writers on the database file instead.
func supportsRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// Ensure GormBalanceRepository implements stock.BalanceRepository
var _ stock.BalanceRepository = (*GormBalanceRepository)(nil)
