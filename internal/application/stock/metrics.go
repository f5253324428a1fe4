package stock

import (
	"context"

	"github.com/erp/inventory-engine/internal/domain/stock"
)

// Metrics receives engine counters. The telemetry package provides the
// OpenTelemetry implementation.
type Metrics interface {
	RecordPosting(ctx context.Context, txType stock.TransactionType, change int64)
	RecordConflictRetry(ctx context.Context, attempt int)
	RecordRejection(ctx context.Context, reason string)
	RecordReservation(ctx context.Context, delta int64)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) RecordPosting(context.Context, stock.TransactionType, int64) {}
func (NoopMetrics) RecordConflictRetry(context.Context, int) {}
func (NoopMetrics) RecordRejection(context.Context, string) {}
func (NoopMetrics) RecordReservation(context.Context, int64) {}

var _ Metrics = NoopMetrics{}
