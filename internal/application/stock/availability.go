package stock

import (
	"context"
	"errors"

	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Availability answers whether a quantity can be taken from a warehouse
type Availability struct {
	ProductID         uuid.UUID `json:"product_id"`
	WarehouseID       uuid.UUID `json:"warehouse_id"`
	IsAvailable       bool      `json:"is_available"`
	AvailableQuantity int64     `json:"available_quantity"`
	RequestedQuantity int64     `json:"requested_quantity"`
	Shortfall         int64     `json:"shortfall"`
}

// Evaluate checks requested against b. ownReserved is a reservation held by
// the requesting document itself, which does not count against it.
func Evaluate(b stock.StockBalance, requested, ownReserved int64) Availability {
	available := b.Quantity - (b.ReservedQuantity - ownReserved)
	shortfall := requested - available
	if shortfall < 0 {
		shortfall = 0
	}
	return Availability{
		ProductID:         b.ProductID,
		WarehouseID:       b.WarehouseID,
		IsAvailable:       shortfall == 0,
		AvailableQuantity: available,
		RequestedQuantity: requested,
		Shortfall:         shortfall,
	}
}

// BatchResult aggregates per-item availability
type BatchResult struct {
	AllAvailable     bool           `json:"all_available"`
	UnavailableItems []Availability `json:"unavailable_items"`
	AvailableItems   []Availability `json:"available_items"`
}

func (r *BatchResult) add(a Availability) {
	if a.IsAvailable {
		r.AvailableItems = append(r.AvailableItems, a)
		return
	}
	r.AllAvailable = false
	r.UnavailableItems = append(r.UnavailableItems, a)
}

func newBatchResult(n int) BatchResult {
	return BatchResult{
		AllAvailable:     true,
		UnavailableItems: make([]Availability, 0),
		AvailableItems:   make([]Availability, 0, n),
	}
}

// balanceReader is the read side of BalanceStore
type balanceReader interface {
	Get(ctx context.Context, productID, warehouseID uuid.UUID) (stock.StockBalance, error)
}

// AvailabilityChecker runs read-only availability queries
type AvailabilityChecker struct {
	balances balanceReader
	products catalog.ProductRegistry
	logger   *zap.Logger
}

// NewAvailabilityChecker creates an AvailabilityChecker. products may be nil,
// in which case shortfalls are reported without names.
func NewAvailabilityChecker(balances balanceReader, products catalog.ProductRegistry, logger *zap.Logger) *AvailabilityChecker {
	return &AvailabilityChecker{
		balances: balances,
		products: products,
		logger:   logger,
	}
}

// Availability checks one product
func (c *AvailabilityChecker) Availability(ctx context.Context, productID, warehouseID uuid.UUID, requested int64) (Availability, error) {
	if requested <= 0 {
		return Availability{}, shared.NewValidationError("quantity must be positive")
	}
	b, err := c.balances.Get(ctx, productID, warehouseID)
	if err != nil {
		return Availability{}, err
	}
	return Evaluate(b, requested, 0), nil
}

// CheckBatch evaluates every item on its own against the current balances.
// Items do not reserve against each other.
func (c *AvailabilityChecker) CheckBatch(ctx context.Context, items []stock.Item, warehouseID uuid.UUID) (BatchResult, error) {
	if warehouseID == uuid.Nil {
		return BatchResult{}, shared.NewValidationError("warehouse_id is required")
	}
	if err := stock.ValidateItems(items); err != nil {
		return BatchResult{}, err
	}
	result := newBatchResult(len(items))
	for _, it := range items {
		b, err := c.balances.Get(ctx, it.ProductID, warehouseID)
		if err != nil {
			return BatchResult{}, err
		}
		result.add(Evaluate(b, it.Quantity, 0))
	}
	return result, nil
}

// Validate is CheckBatch that fails with an InsufficientStockError carrying
// the per-item breakdown
func (c *AvailabilityChecker) Validate(ctx context.Context, items []stock.Item, warehouseID uuid.UUID) error {
	result, err := c.CheckBatch(ctx, items, warehouseID)
	if err != nil {
		return err
	}
	if result.AllAvailable {
		return nil
	}
	return c.Insufficient(ctx, warehouseID, result.UnavailableItems)
}

// CheckLocked evaluates items against a locked working set. Quantities of
// the same product are summed, so the result is valid for reserving all of
// them together.
func CheckLocked(balances *Balances, warehouseID uuid.UUID, items []stock.Item, own map[uuid.UUID]int64) BatchResult {
	result := newBatchResult(len(items))
	for _, it := range stock.SumByProduct(items) {
		key := stock.Key{ProductID: it.ProductID, WarehouseID: warehouseID}
		b := balances.Get(key)
		if b == nil {
			zero := stock.ZeroBalance(key)
			b = &zero
		}
		result.add(Evaluate(*b, it.Quantity, own[it.ProductID]))
	}
	return result
}

// Insufficient builds the user-facing error for unavailable rows, resolving
// product names where the registry knows them
func (c *AvailabilityChecker) Insufficient(ctx context.Context, warehouseID uuid.UUID, rows []Availability) *stock.InsufficientStockError {
	err := &stock.InsufficientStockError{
		WarehouseID: warehouseID,
		Items:       make([]stock.Shortfall, 0, len(rows)),
	}
	for _, r := range rows {
		sf := stock.Shortfall{
			ProductID: r.ProductID,
			Available: r.AvailableQuantity,
			Requested: r.RequestedQuantity,
			Shortfall: r.Shortfall,
		}
		if c.products != nil {
			info, lookupErr := c.products.ResolveProduct(ctx, r.ProductID)
			switch {
			case lookupErr == nil:
				sf.ProductName = info.Name
				sf.SKU = info.SKU
			case !errors.Is(lookupErr, shared.ErrNotFound):
				c.logger.Warn("product lookup failed while reporting shortfall",
					zap.String("product_id", r.ProductID.String()),
					zap.Error(lookupErr),
				)
			}
		}
		err.Items = append(err.Items, sf)
	}
	return err
}
