package models

import (
	"github.com/erp/inventory-engine/internal/domain/catalog"
)

// ProductModel maps the columns of the products table the engine reads.
// The table is owned by the catalog service.
type ProductModel struct {
	AggregateModel
	Name          string `gorm:"type:varchar(200);not null"`
	SKU           string `gorm:"type:varchar(50);not null;uniqueIndex"`
	UnitOfMeasure string `gorm:"type:varchar(20);not null;default:'pcs'"`
	ReorderLevel  int64  `gorm:"not null;default:0"`
	IsActive      bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the model to the engine's product view
func (m *ProductModel) ToDomain() *catalog.ProductInfo {
	return &catalog.ProductInfo{
		ID:            m.ID,
		Name:          m.Name,
		SKU:           m.SKU,
		UnitOfMeasure: m.UnitOfMeasure,
		ReorderLevel:  m.ReorderLevel,
	}
}

// WarehouseModel maps the columns of the warehouses table the engine reads
type WarehouseModel struct {
	AggregateModel
	Code     string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name     string `gorm:"type:varchar(200);not null"`
	IsActive bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}

// ToDomain converts the model to the engine's warehouse view
func (m *WarehouseModel) ToDomain() *catalog.WarehouseInfo {
	return &catalog.WarehouseInfo{
		ID:   m.ID,
		Name: m.Name,
		Code: m.Code,
	}
}
