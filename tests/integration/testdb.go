// Package integration runs the stock engine end to end: real repositories,
// real transactions and the HTTP surface. Tests run against SQLite by
// default; PostgreSQL tests start a container through testcontainers and
// are skipped with -short.
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/erp/inventory-engine/internal/infrastructure/logger"
	"github.com/erp/inventory-engine/internal/infrastructure/migration"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence/models"
	"github.com/erp/inventory-engine/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TestDB represents a test database connection
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// NewSQLiteTestDB opens an in-memory SQLite database with the engine schema
func NewSQLiteTestDB(t *testing.T) *TestDB {
	t.Helper()

	db, err := persistence.OpenSQLite(":memory:")
	require.NoError(t, err, "Failed to open sqlite database")

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)

	testDB := &TestDB{DB: db.DB, SqlDB: sqlDB, t: t}
	t.Cleanup(testDB.Close)
	return testDB
}

// NewTestDB creates a new PostgreSQL container for testing and applies the
// embedded migrations. Each call gets a fresh container.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("inventory_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)
	return testDB
}

// Close closes the database connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// SeedProduct inserts an active product
func (tdb *TestDB) SeedProduct(sku string, reorderLevel int64) uuid.UUID {
	tdb.t.Helper()
	m := &models.ProductModel{
		Name:          "Product " + sku,
		SKU:           sku,
		UnitOfMeasure: "pcs",
		ReorderLevel:  reorderLevel,
		IsActive:      true,
	}
	m.ID = uuid.New()
	require.NoError(tdb.t, tdb.DB.Create(m).Error)
	return m.ID
}

// SeedWarehouse inserts an active warehouse
func (tdb *TestDB) SeedWarehouse(code string) uuid.UUID {
	tdb.t.Helper()
	m := &models.WarehouseModel{
		Code:     code,
		Name:     "Warehouse " + code,
		IsActive: true,
	}
	m.ID = uuid.New()
	require.NoError(tdb.t, tdb.DB.Create(m).Error)
	return m.ID
}

// connectToDatabase establishes a GORM connection to the database
func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.NewGormLogger(zaptest.NewLogger(t), level),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	// Enough connections for the concurrency tests to contend on row locks
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// runMigrations applies the embedded migrations
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.NewWithFS(sqlDB, migrations.FS, zaptest.NewLogger(t))
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty, "migration %d left the schema dirty", version)
}
