package stock

import (
	"context"
	"errors"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Allocation is a set of items held against one warehouse
type Allocation struct {
	WarehouseID uuid.UUID
	Items       []stock.Item
}

func (a Allocation) keys() []stock.Key {
	if a.WarehouseID == uuid.Nil {
		return nil
	}
	return stock.KeysFor(a.WarehouseID, a.Items)
}

func (a Allocation) total() int64 {
	var n int64
	for _, it := range a.Items {
		n += it.Quantity
	}
	return n
}

// Hook runs inside the same transaction as the reservation change. The
// document engine uses it to persist the document.
type Hook func(repos TransactionalRepositories) error

// ReservationManager maintains reserved_quantity for outbound documents.
// Check and reserve happen in one critical section per key.
type ReservationManager struct {
	balances *BalanceStore
	checker  *AvailabilityChecker
	logger   *zap.Logger
}

// NewReservationManager creates a ReservationManager
func NewReservationManager(balances *BalanceStore, checker *AvailabilityChecker, logger *zap.Logger) *ReservationManager {
	return &ReservationManager{
		balances: balances,
		checker:  checker,
		logger:   logger,
	}
}

// Reserve adds quantity to the reservation of one key
func (m *ReservationManager) Reserve(ctx context.Context, productID, warehouseID uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	key, err := stock.NewKey(productID, warehouseID)
	if err != nil {
		return err
	}
	err = m.balances.Update(ctx, []stock.Key{key}, func(_ TransactionalRepositories, balances *Balances) error {
		balances.Get(key).Reserve(quantity)
		return nil
	})
	if err == nil {
		m.balances.metrics.RecordReservation(ctx, quantity)
	}
	return err
}

// Release removes quantity from the reservation of one key, never below zero
func (m *ReservationManager) Release(ctx context.Context, productID, warehouseID uuid.UUID, quantity int64) error {
	if quantity <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	key, err := stock.NewKey(productID, warehouseID)
	if err != nil {
		return err
	}
	err = m.balances.Update(ctx, []stock.Key{key}, func(_ TransactionalRepositories, balances *Balances) error {
		balances.Get(key).Release(quantity)
		return nil
	})
	if err == nil {
		m.balances.metrics.RecordReservation(ctx, -quantity)
	}
	return err
}

// ReserveAll checks alloc against current balances and reserves it, or
// fails with InsufficientStockError without writing anything
func (m *ReservationManager) ReserveAll(ctx context.Context, alloc Allocation, hook Hook) error {
	return m.Replace(ctx, Allocation{}, alloc, hook)
}

// ReleaseAll hands back every item of alloc
func (m *ReservationManager) ReleaseAll(ctx context.Context, alloc Allocation, hook Hook) error {
	err := m.balances.Update(ctx, alloc.keys(), func(repos TransactionalRepositories, balances *Balances) error {
		release(balances, alloc)
		if hook != nil {
			return hook(repos)
		}
		return nil
	})
	if err == nil && len(alloc.Items) > 0 {
		m.balances.metrics.RecordReservation(ctx, -alloc.total())
	}
	return err
}

// Replace swaps the reservation held by old for next. Old items are released
// against their original warehouse before next is checked and reserved
// against its warehouse, so a document never competes with its own stale
// reservation. Everything happens under the union of keys in one
// transaction.
func (m *ReservationManager) Replace(ctx context.Context, old, next Allocation, hook Hook) error {
	if err := stock.ValidateItems(next.Items); err != nil {
		return err
	}
	if len(next.Items) > 0 && next.WarehouseID == uuid.Nil {
		return shared.NewValidationError("warehouse_id is required")
	}

	keys := append(old.keys(), next.keys()...)
	err := m.balances.Update(ctx, keys, func(repos TransactionalRepositories, balances *Balances) error {
		release(balances, old)
		if len(next.Items) > 0 {
			result := CheckLocked(balances, next.WarehouseID, next.Items, nil)
			if !result.AllAvailable {
				return &stock.InsufficientStockError{WarehouseID: next.WarehouseID, Items: shortfalls(result.UnavailableItems)}
			}
			for _, it := range next.Items {
				balances.Get(stock.Key{ProductID: it.ProductID, WarehouseID: next.WarehouseID}).Reserve(it.Quantity)
			}
		}
		if hook != nil {
			return hook(repos)
		}
		return nil
	})

	var insufficient *stock.InsufficientStockError
	if errors.As(err, &insufficient) {
		m.balances.metrics.RecordRejection(ctx, "insufficient_stock")
		m.logger.Info("reservation rejected for insufficient stock",
			zap.String("warehouse_id", next.WarehouseID.String()),
			zap.Int("unavailable", len(insufficient.Items)),
		)
		return m.enrich(ctx, insufficient)
	}
	if err != nil {
		return err
	}
	m.balances.metrics.RecordReservation(ctx, next.total()-old.total())
	return nil
}

// Check re-evaluates items against the current balances, crediting the
// reservation the caller already holds. It is the pre-posting gate of
// outbound documents.
func (m *ReservationManager) Check(ctx context.Context, warehouseID uuid.UUID, items []stock.Item, own []stock.Item) error {
	owned := make(map[uuid.UUID]int64, len(own))
	for _, it := range own {
		owned[it.ProductID] += it.Quantity
	}
	result := newBatchResult(len(items))
	for _, it := range stock.SumByProduct(items) {
		b, err := m.balances.Get(ctx, it.ProductID, warehouseID)
		if err != nil {
			return err
		}
		result.add(Evaluate(b, it.Quantity, owned[it.ProductID]))
	}
	if result.AllAvailable {
		return nil
	}
	m.balances.metrics.RecordRejection(ctx, "insufficient_stock")
	return m.checker.Insufficient(ctx, warehouseID, result.UnavailableItems)
}

func (m *ReservationManager) enrich(ctx context.Context, raw *stock.InsufficientStockError) error {
	rows := make([]Availability, 0, len(raw.Items))
	for _, it := range raw.Items {
		rows = append(rows, Availability{
			ProductID:         it.ProductID,
			WarehouseID:       raw.WarehouseID,
			AvailableQuantity: it.Available,
			RequestedQuantity: it.Requested,
			Shortfall:         it.Shortfall,
		})
	}
	return m.checker.Insufficient(ctx, raw.WarehouseID, rows)
}

func release(balances *Balances, alloc Allocation) {
	if alloc.WarehouseID == uuid.Nil {
		return
	}
	for _, it := range alloc.Items {
		balances.Get(stock.Key{ProductID: it.ProductID, WarehouseID: alloc.WarehouseID}).Release(it.Quantity)
	}
}

func shortfalls(rows []Availability) []stock.Shortfall {
	out := make([]stock.Shortfall, 0, len(rows))
	for _, r := range rows {
		out = append(out, stock.Shortfall{
			ProductID: r.ProductID,
			Available: r.AvailableQuantity,
			Requested: r.RequestedQuantity,
			Shortfall: r.Shortfall,
		})
	}
	return out
}
