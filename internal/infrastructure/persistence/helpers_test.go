package persistence

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockGormDB opens a postgres-dialect GORM DB over sqlmock
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

// newSQLiteDB opens a fresh in-memory database with the engine schema
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func seedProduct(t *testing.T, db *gorm.DB, sku string, reorderLevel int64) uuid.UUID {
	t.Helper()
	m := &models.ProductModel{
		Name:          "Product " + sku,
		SKU:           sku,
		UnitOfMeasure: "pcs",
		ReorderLevel:  reorderLevel,
		IsActive:      true,
	}
	m.ID = uuid.New()
	require.NoError(t, db.Create(m).Error)
	return m.ID
}

func seedWarehouse(t *testing.T, db *gorm.DB, code string) uuid.UUID {
	t.Helper()
	m := &models.WarehouseModel{
		Code:     code,
		Name:     "Warehouse " + code,
		IsActive: true,
	}
	m.ID = uuid.New()
	require.NoError(t, db.Create(m).Error)
	return m.ID
}
