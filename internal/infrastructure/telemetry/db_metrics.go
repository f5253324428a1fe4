package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetrics records query counts and latency through gorm callbacks and
// observes the connection pool on every collection:
//   - db_query_total{db.operation,db.table}
//   - db_query_duration_seconds{db.operation}
//   - db_slow_query_total{db.operation,db.table}
//   - db_pool_connections{db.pool.state}, db_pool_connections_max
type DBMetrics struct {
	queryTotal     metric.Int64Counter
	queryDuration  metric.Float64Histogram
	slowQueryTotal metric.Int64Counter
	registration   metric.Registration
	slowThreshold  time.Duration
	logger         *zap.Logger
}

// NewDBMetrics creates the instruments and the pool observer for sqlDB
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB, slowThreshold time.Duration, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slowThreshold <= 0 {
		slowThreshold = 200 * time.Millisecond
	}
	m := &DBMetrics{slowThreshold: slowThreshold, logger: logger}

	var err error
	if m.queryTotal, err = meter.Int64Counter("db_query_total",
		metric.WithDescription("Database statements by operation"),
		metric.WithUnit("{query}")); err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}
	if m.queryDuration, err = meter.Float64Histogram("db_query_duration_seconds",
		metric.WithDescription("Database statement latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DBDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create query histogram: %w", err)
	}
	if m.slowQueryTotal, err = meter.Int64Counter("db_slow_query_total",
		metric.WithDescription("Database statements slower than the threshold"),
		metric.WithUnit("{query}")); err != nil {
		return nil, fmt.Errorf("failed to create slow query counter: %w", err)
	}

	poolConns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Pool connections by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pool gauge: %w", err)
	}
	poolMax, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pool max gauge: %w", err)
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(poolConns, int64(stats.InUse), metric.WithAttributes(AttrDBPoolState.String("in_use")))
		o.ObserveInt64(poolConns, int64(stats.Idle), metric.WithAttributes(AttrDBPoolState.String("idle")))
		o.ObserveInt64(poolMax, int64(stats.MaxOpenConnections))
		return nil
	}, poolConns, poolMax)
	if err != nil {
		return nil, fmt.Errorf("failed to register pool observer: %w", err)
	}
	return m, nil
}

// RecordQuery records one finished statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	opAttr := AttrDBOperation.String(operation)
	m.queryTotal.Add(ctx, 1, metric.WithAttributes(opAttr, AttrDBTable.String(table)))
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(opAttr))
	if duration > m.slowThreshold {
		m.slowQueryTotal.Add(ctx, 1, metric.WithAttributes(opAttr, AttrDBTable.String(table)))
	}
}

// Name implements gorm.Plugin
func (m *DBMetrics) Name() string {
	return "db_metrics"
}

// Initialize implements gorm.Plugin
func (m *DBMetrics) Initialize(db *gorm.DB) error {
	for _, h := range gormHooks(db) {
		op := h.op
		if err := h.before("db_metrics:before_"+op, markQueryStart); err != nil {
			return err
		}
		if err := h.after("db_metrics:after_"+op, func(tx *gorm.DB) {
			ctx := tx.Statement.Context
			if ctx == nil {
				return
			}
			elapsed, _ := queryElapsed(ctx)
			m.RecordQuery(ctx, op, tx.Statement.Table, elapsed)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop unregisters the pool observer
func (m *DBMetrics) Stop() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// RegisterDBMetrics attaches DBMetrics to db using the meter of mp. It
// returns nil when metrics are disabled.
func RegisterDBMetrics(db *gorm.DB, mp *MeterProvider, slowThreshold time.Duration, logger *zap.Logger) (*DBMetrics, error) {
	if mp == nil || !mp.IsEnabled() {
		logger.Debug("MeterProvider not available, skipping database metrics")
		return nil, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	m, err := NewDBMetrics(mp.Meter("db.client"), sqlDB, slowThreshold, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Use(m); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to register db metrics plugin: %w", err), m.Stop())
	}

	logger.Info("Database metrics registered", zap.Duration("slow_query_threshold", m.slowThreshold))
	return m, nil
}
