package document

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TypeLabel renders a transaction type for display, e.g. "Transfer In"
func TypeLabel(t stock.TransactionType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

func newHistoryEntry(e *stock.LedgerEntry) HistoryEntry {
	return HistoryEntry{
		ID:              e.ID,
		ProductID:       e.ProductID,
		WarehouseID:     e.WarehouseID,
		TransactionType: e.TransactionType,
		TypeLabel:       TypeLabel(e.TransactionType),
		TransactionID:   e.TransactionID,
		QuantityChange:  e.QuantityChange,
		QuantityBefore:  e.QuantityBefore,
		QuantityAfter:   e.QuantityAfter,
		ReferenceNumber: e.ReferenceNumber,
		Notes:           e.Notes,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
	}
}

// GetHistory returns ledger entries newest first, enriched with product and
// warehouse names. Registry misses leave the names empty.
func (s *DocumentService) GetHistory(ctx context.Context, filter stock.HistoryFilter, limit int) ([]HistoryEntry, error) {
	entries, err := s.ledger.History(ctx, filter, limit)
	if err != nil {
		return nil, err
	}

	products := make(map[uuid.UUID][2]string)
	warehouses := make(map[uuid.UUID]string)
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		h := newHistoryEntry(&e)
		if s.registry != nil {
			p, ok := products[e.ProductID]
			if !ok {
				if info, err := s.registry.ResolveProduct(ctx, e.ProductID); err == nil {
					p = [2]string{info.Name, info.SKU}
				} else {
					s.logLookupFailure("product", e.ProductID, err)
				}
				products[e.ProductID] = p
			}
			h.ProductName, h.ProductSKU = p[0], p[1]

			name, ok := warehouses[e.WarehouseID]
			if !ok {
				if info, err := s.registry.ResolveWarehouse(ctx, e.WarehouseID); err == nil {
					name = info.Name
				} else {
					s.logLookupFailure("warehouse", e.WarehouseID, err)
				}
				warehouses[e.WarehouseID] = name
			}
			h.WarehouseName = name
		}
		out = append(out, h)
	}
	return out, nil
}

// Reconcile replays the ledger of one balance against its live quantity
func (s *DocumentService) Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*stock.Reconciliation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "reconcile")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, productID.String(),
		telemetry.SpanAttrWarehouseID, warehouseID.String(),
	)

	var r *stock.Reconciliation
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.StockOperationLabels(telemetry.OperationReconcile, ""), func(c context.Context) {
		r, err = s.ledger.Reconcile(c, productID, warehouseID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return r, nil
}

func (s *DocumentService) logLookupFailure(resource string, id uuid.UUID, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		return
	}
	s.logger.Warn("registry lookup failed",
		zap.String("resource", resource),
		zap.String("id", id.String()),
		zap.Error(err),
	)
}
