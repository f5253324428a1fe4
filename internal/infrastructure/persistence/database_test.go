package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		gormDB, mock, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		mock.ExpectPing()

		db := &Database{DB: gormDB}
		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Close(t *testing.T) {
	t.Run("successful close", func(t *testing.T) {
		gormDB, mock, _ := newMockGormDB(t)

		mock.ExpectClose()

		db := &Database{DB: gormDB}
		assert.NoError(t, db.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Stats(t *testing.T) {
	t.Run("returns pool statistics", func(t *testing.T) {
		gormDB, _, mockDB := newMockGormDB(t)
		defer mockDB.Close()

		db := &Database{DB: gormDB}
		stats, err := db.Stats()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.OpenConnections, 0)
		assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
	})
}

func TestOpenSQLite(t *testing.T) {
	t.Run("creates every engine table", func(t *testing.T) {
		db := newSQLiteDB(t)

		for _, table := range []string{
			"products", "warehouses", "stock_balances", "stock_ledger_entries",
			"stock_receipts", "stock_receipt_lines", "stock_deliveries", "stock_delivery_lines",
			"stock_transfers", "stock_transfer_lines", "stock_adjustments", "stock_adjustment_lines",
		} {
			assert.True(t, db.Migrator().HasTable(table), table)
		}
	})

	t.Run("caps the pool at one connection", func(t *testing.T) {
		db, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		defer db.Close()

		stats, err := db.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, stats.MaxOpenConnections)
	})

	t.Run("applies options", func(t *testing.T) {
		l := gormlogger.Default.LogMode(gormlogger.Warn)
		db, err := OpenSQLite(":memory:", WithLogger(l))
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, l, db.DB.Config.Logger)
	})
}

func TestSupportsRowLocks(t *testing.T) {
	t.Run("postgres supports row locks", func(t *testing.T) {
		gormDB, _, mockDB := newMockGormDB(t)
		defer mockDB.Close()
		assert.True(t, supportsRowLocks(gormDB))
	})

	t.Run("sqlite does not", func(t *testing.T) {
		assert.False(t, supportsRowLocks(newSQLiteDB(t)))
	})
}
