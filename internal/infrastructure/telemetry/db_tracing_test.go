package telemetry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func newTelemetryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func mustSQLDB(t *testing.T, db *gorm.DB) *sql.DB {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	return sqlDB
}

func TestRegisterDBTracing(t *testing.T) {
	t.Run("disabled leaves the callbacks alone", func(t *testing.T) {
		db := newTelemetryTestDB(t)
		require.NoError(t, RegisterDBTracing(db, DBTracingConfig{Enabled: false}, zap.NewNop()))
		assert.Nil(t, db.Callback().Create().Get("otel_timing:after_create"))
	})

	t.Run("statements inside a span produce child spans", func(t *testing.T) {
		tp, recorder := newRecordingTracer(t, 1)
		db := newTelemetryTestDB(t)
		require.NoError(t, RegisterDBTracing(db, DBTracingConfig{
			Enabled:  true,
			DBSystem: "sqlite",
		}, zap.NewNop()))
		assert.NotNil(t, db.Callback().Create().Get("otel_timing:after_create"))

		ctx, parent := tp.Tracer("test").Start(context.Background(), "post")
		require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "a"}).Error)
		var rows []tracedRow
		require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
		parent.End()

		var children int
		for _, s := range recorder.Ended() {
			if s.Parent().SpanID() == parent.SpanContext().SpanID() {
				children++
			}
		}
		assert.GreaterOrEqual(t, children, 2)
	})
}

func TestSlowQueryCallback(t *testing.T) {
	tp, recorder := newRecordingTracer(t, 1)
	db := newTelemetryTestDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "query")
	started := context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))

	stmt := db.WithContext(started).Session(&gorm.Session{}).Model(&tracedRow{})
	stmt.Statement.Table = "traced_rows"
	stmt.Statement.RowsAffected = 3
	slowQueryCallback(100 * time.Millisecond)(stmt)
	span.End()

	got := recorder.Ended()[0]
	slow, ok := spanAttr(got, "db.slow_query")
	require.True(t, ok)
	assert.True(t, slow.AsBool())

	table, ok := spanAttr(got, "db.sql.table")
	require.True(t, ok)
	assert.Equal(t, "traced_rows", table.AsString())

	require.Len(t, got.Events(), 1)
	assert.Equal(t, "slow_query_warning", got.Events()[0].Name)
}

func TestDBMetrics(t *testing.T) {
	t.Run("registration is skipped without an enabled provider", func(t *testing.T) {
		db := newTelemetryTestDB(t)
		disabled, err := NewMeterProvider(context.Background(), Config{}, zap.NewNop())
		require.NoError(t, err)

		m, err := RegisterDBMetrics(db, disabled, 0, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("counts statements and observes the pool", func(t *testing.T) {
		mp, reader := newManualMeterProvider(t)
		db := newTelemetryTestDB(t)

		m, err := RegisterDBMetrics(db, mp, time.Hour, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, m)
		t.Cleanup(func() { _ = m.Stop() })

		require.NoError(t, db.Create(&tracedRow{Name: "a"}).Error)
		require.NoError(t, db.Create(&tracedRow{Name: "b"}).Error)
		var rows []tracedRow
		require.NoError(t, db.Find(&rows).Error)

		rm := collect(t, reader)
		assert.Equal(t, int64(2), sumWhere(t, rm, "db_query_total", AttrDBOperation.String("create")))
		assert.Equal(t, int64(1), sumWhere(t, rm, "db_query_total", AttrDBOperation.String("query")))

		maxConns, ok := findMetric(rm, "db_pool_connections_max")
		require.True(t, ok)
		gauge := maxConns.Data.(metricdata.Gauge[int64])
		require.Len(t, gauge.DataPoints, 1)
		assert.Equal(t, int64(1), gauge.DataPoints[0].Value)
	})

	t.Run("slow statements are counted separately", func(t *testing.T) {
		mp, reader := newManualMeterProvider(t)
		m, err := NewDBMetrics(mp.Meter("db.client"), mustSQLDB(t, newTelemetryTestDB(t)), 50*time.Millisecond, nil)
		require.NoError(t, err)

		m.RecordQuery(context.Background(), "update", "stock_balances", time.Second)
		m.RecordQuery(context.Background(), "update", "stock_balances", time.Millisecond)

		rm := collect(t, reader)
		assert.Equal(t, int64(2), sumWhere(t, rm, "db_query_total", AttrDBTable.String("stock_balances")))
		assert.Equal(t, int64(1), sumWhere(t, rm, "db_slow_query_total", AttrDBTable.String("stock_balances")))

		require.NoError(t, m.Stop())
	})
}
