package telemetry

import (
	"context"
	"fmt"

	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"go.opentelemetry.io/otel/metric"
)

// StockMeterName is the instrumentation scope of the engine counters
const StockMeterName = "inventory-engine/stock"

// StockMetrics records engine counters as OpenTelemetry instruments:
//   - stock_postings_total{transaction_type}
//   - stock_posted_quantity_total{transaction_type,direction}
//   - stock_conflict_retries_total{attempt}
//   - stock_rejections_total{reason}
//   - stock_reserved_quantity (up/down)
type StockMetrics struct {
	postings        metric.Int64Counter
	postedQuantity  metric.Int64Counter
	conflictRetries metric.Int64Counter
	rejections      metric.Int64Counter
	reserved        metric.Int64UpDownCounter
}

// NewStockMetrics creates the instruments on meter
func NewStockMetrics(meter metric.Meter) (*StockMetrics, error) {
	m := &StockMetrics{}
	var err error

	if m.postings, err = meter.Int64Counter("stock_postings_total",
		metric.WithDescription("Ledger postings applied to balances"),
		metric.WithUnit("{posting}")); err != nil {
		return nil, fmt.Errorf("failed to create postings counter: %w", err)
	}
	if m.postedQuantity, err = meter.Int64Counter("stock_posted_quantity_total",
		metric.WithDescription("Absolute quantity moved by postings"),
		metric.WithUnit("{unit}")); err != nil {
		return nil, fmt.Errorf("failed to create posted quantity counter: %w", err)
	}
	if m.conflictRetries, err = meter.Int64Counter("stock_conflict_retries_total",
		metric.WithDescription("Balance writes retried after a version conflict"),
		metric.WithUnit("{retry}")); err != nil {
		return nil, fmt.Errorf("failed to create conflict retry counter: %w", err)
	}
	if m.rejections, err = meter.Int64Counter("stock_rejections_total",
		metric.WithDescription("Operations rejected by a business rule or a lock timeout"),
		metric.WithUnit("{rejection}")); err != nil {
		return nil, fmt.Errorf("failed to create rejection counter: %w", err)
	}
	if m.reserved, err = meter.Int64UpDownCounter("stock_reserved_quantity",
		metric.WithDescription("Quantity currently held by reservations"),
		metric.WithUnit("{unit}")); err != nil {
		return nil, fmt.Errorf("failed to create reservation counter: %w", err)
	}
	return m, nil
}

// RecordPosting implements appstock.Metrics
func (m *StockMetrics) RecordPosting(ctx context.Context, txType stock.TransactionType, change int64) {
	typeAttr := AttrTransactionType.String(string(txType))
	m.postings.Add(ctx, 1, metric.WithAttributes(typeAttr))

	direction, amount := "in", change
	if change < 0 {
		direction, amount = "out", -change
	}
	m.postedQuantity.Add(ctx, amount, metric.WithAttributes(typeAttr, AttrDirection.String(direction)))
}

// RecordConflictRetry implements appstock.Metrics
func (m *StockMetrics) RecordConflictRetry(ctx context.Context, attempt int) {
	m.conflictRetries.Add(ctx, 1, metric.WithAttributes(AttrAttempt.Int(attempt)))
}

// RecordRejection implements appstock.Metrics
func (m *StockMetrics) RecordRejection(ctx context.Context, reason string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(AttrReason.String(reason)))
}

// RecordReservation implements appstock.Metrics
func (m *StockMetrics) RecordReservation(ctx context.Context, delta int64) {
	m.reserved.Add(ctx, delta)
}

var _ appstock.Metrics = (*StockMetrics)(nil)
