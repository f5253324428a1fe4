// Package catalog holds the read-only view the stock engine has of the
// product and warehouse registries. The registries themselves are owned by
// the surrounding CRUD layer.
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductInfo is the display data of a product
type ProductInfo struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	SKU           string    `json:"sku"`
	UnitOfMeasure string    `json:"unit_of_measure"`
	ReorderLevel  int64     `json:"reorder_level"`
}

// WarehouseInfo is the display data of a warehouse
type WarehouseInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code,omitempty"`
}

// ProductRegistry resolves product ids. A missing product yields
// shared.ErrNotFound.
type ProductRegistry interface {
	ResolveProduct(ctx context.Context, id uuid.UUID) (*ProductInfo, error)
}

// WarehouseRegistry resolves warehouse ids
type WarehouseRegistry interface {
	ResolveWarehouse(ctx context.Context, id uuid.UUID) (*WarehouseInfo, error)
}

// ReorderCatalog lists the active products that have a reorder level set
type ReorderCatalog interface {
	ListReorderable(ctx context.Context) ([]ProductInfo, error)
}

// Registry combines every lookup the engine performs
type Registry interface {
	ProductRegistry
	WarehouseRegistry
	ReorderCatalog
}
