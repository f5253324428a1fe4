package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRegistry implements catalog.Registry with read-only queries on the
// products and warehouses tables
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry creates a new GormRegistry
func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

// ResolveProduct looks up an active product
func (r *GormRegistry) ResolveProduct(ctx context.Context, id uuid.UUID) (*catalog.ProductInfo, error) {
	var m models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("product", id)
		}
		return nil, fmt.Errorf("resolve product %s: %w", id, err)
	}
	return m.ToDomain(), nil
}

// ResolveWarehouse looks up an active warehouse
func (r *GormRegistry) ResolveWarehouse(ctx context.Context, id uuid.UUID) (*catalog.WarehouseInfo, error) {
	var m models.WarehouseModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("warehouse", id)
		}
		return nil, fmt.Errorf("resolve warehouse %s: %w", id, err)
	}
	return m.ToDomain(), nil
}

// ListReorderable returns active products with a reorder level, by SKU
func (r *GormRegistry) ListReorderable(ctx context.Context) ([]catalog.ProductInfo, error) {
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND reorder_level > 0", true).
		Order("sku ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reorderable products: %w", err)
	}
	out := make([]catalog.ProductInfo, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Ensure GormRegistry implements catalog.Registry
var _ catalog.Registry = (*GormRegistry)(nil)
