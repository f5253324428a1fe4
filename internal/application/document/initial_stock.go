package document

import (
	"context"

	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	initialStockReference = "INITIAL"
	initialStockNotes     = "Initial stock"
)

// InitialStockInput seeds the opening quantity of one key
type InitialStockInput struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int64
}

// PostInitialStock books the opening quantity of a product in a warehouse.
// The entry carries the product id as transaction id and is accepted once
// per key.
func (s *DocumentService) PostInitialStock(ctx context.Context, in InitialStockInput) (*HistoryEntry, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "stock_ledger", "initial_stock")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrProductID, in.ProductID.String(),
		telemetry.SpanAttrWarehouseID, in.WarehouseID.String(),
	)

	var entry *stock.LedgerEntry
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.StockOperationLabels(telemetry.OperationInitialStock, ""), func(c context.Context) {
		entry, opErr = s.postInitialStock(c, in)
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.logger.Warn("initial stock rejected",
			zap.String("product_id", in.ProductID.String()),
			zap.String("warehouse_id", in.WarehouseID.String()),
			zap.Error(opErr),
		)
		return nil, opErr
	}
	s.logger.Info("initial stock posted",
		zap.String("product_id", in.ProductID.String()),
		zap.String("warehouse_id", in.WarehouseID.String()),
		zap.Int64("quantity", in.Quantity),
	)
	h := newHistoryEntry(entry)
	return &h, nil
}

func (s *DocumentService) postInitialStock(ctx context.Context, in InitialStockInput) (*stock.LedgerEntry, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, shared.NewValidationError("initial quantity must be positive")
	}
	key, err := stock.NewKey(in.ProductID, in.WarehouseID)
	if err != nil {
		return nil, err
	}
	if s.registry != nil {
		if _, err := s.registry.ResolveWarehouse(ctx, key.WarehouseID); err != nil {
			return nil, err
		}
		if _, err := s.registry.ResolveProduct(ctx, key.ProductID); err != nil {
			return nil, err
		}
	}

	txType := stock.TransactionTypeInitialStock
	return s.balances.Post(ctx, appstock.PostingRequest{
		Key:             key,
		TransactionType: txType,
		Change:          in.Quantity,
		TransactionID:   key.ProductID,
		ReferenceNumber: initialStockReference,
		Notes:           initialStockNotes,
		ActorID:         actor,
	}, func(repos appstock.TransactionalRepositories) error {
		existing, err := repos.LedgerRepo().History(ctx, stock.HistoryFilter{
			ProductID:       &key.ProductID,
			WarehouseID:     &key.WarehouseID,
			TransactionType: &txType,
		}, 1)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return shared.NewInvalidStateError("initial stock for %s is already posted", key)
		}
		return nil
	})
}
