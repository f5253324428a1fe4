package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertType classifies a stock alert
type AlertType string

const (
	AlertLowStock   AlertType = "low_stock"
	AlertCritical   AlertType = "critical"
	AlertOutOfStock AlertType = "out_of_stock"
)

// IsValid returns true if the alert type is known
func (t AlertType) IsValid() bool {
	return t == AlertLowStock || t == AlertCritical || t == AlertOutOfStock
}

// Severity of an alert
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// StockAlert is one product/warehouse pair at or below its reorder level
type StockAlert struct {
	ProductID      uuid.UUID `json:"product_id"`
	ProductName    string    `json:"product_name"`
	ProductSKU     string    `json:"product_sku"`
	WarehouseID    uuid.UUID `json:"warehouse_id"`
	WarehouseName  string    `json:"warehouse_name"`
	CurrentStock   int64     `json:"current_stock"`
	AvailableStock int64     `json:"available_stock"`
	ReorderLevel   int64     `json:"reorder_level"`
	AlertType      AlertType `json:"alert_type"`
	Severity       Severity  `json:"severity"`
}

// AlertFilter narrows StockAlerts. A nil Type means all types.
type AlertFilter struct {
	Type        *AlertType
	WarehouseID *uuid.UUID
}

// Classify returns the alert raised by available against reorderLevel, or
// false when stock is healthy. Products without a reorder level are not
// tracked and never alert.
func Classify(available, reorderLevel int64, criticalRatio float64) (AlertType, Severity, bool) {
	switch {
	case reorderLevel <= 0:
		return "", "", false
	case available <= 0:
		return AlertOutOfStock, SeverityError, true
	case float64(available) <= float64(reorderLevel)*criticalRatio:
		return AlertCritical, SeverityError, true
	case available <= reorderLevel:
		return AlertLowStock, SeverityWarning, true
	}
	return "", "", false
}

// AlertService derives reorder alerts from balances and the product catalog
type AlertService struct {
	balances *BalanceStore
	registry catalog.Registry
	opts     Options
	logger   *zap.Logger
}

// NewAlertService creates an AlertService
func NewAlertService(balances *BalanceStore, registry catalog.Registry, opts Options, logger *zap.Logger) *AlertService {
	return &AlertService{
		balances: balances,
		registry: registry,
		opts:     opts.WithDefaults(),
		logger:   logger,
	}
}

// StockAlerts lists alerts sorted errors first, then by available stock
// ascending. A reorderable product without any balance row is reported as
// out of stock across all warehouses.
func (s *AlertService) StockAlerts(ctx context.Context, filter AlertFilter) ([]StockAlert, error) {
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, shared.NewValidationError("invalid alert type %q", *filter.Type)
	}
	products, err := s.registry.ListReorderable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reorderable products: %w", err)
	}

	warehouseNames := make(map[uuid.UUID]string)
	alerts := make([]StockAlert, 0)
	for _, p := range products {
		productID := p.ID
		rows, err := s.balances.List(ctx, stock.BalanceFilter{ProductID: &productID, WarehouseID: filter.WarehouseID})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			alert := StockAlert{
				ProductID:     p.ID,
				ProductName:   p.Name,
				ProductSKU:    p.SKU,
				WarehouseName: "All Warehouses",
				ReorderLevel:  p.ReorderLevel,
				AlertType:     AlertOutOfStock,
				Severity:      SeverityError,
			}
			if filter.WarehouseID != nil {
				alert.WarehouseID = *filter.WarehouseID
				alert.WarehouseName = s.warehouseName(ctx, warehouseNames, *filter.WarehouseID)
			}
			if matches(filter, alert.AlertType) {
				alerts = append(alerts, alert)
			}
			continue
		}
		for _, b := range rows {
			available := b.Available()
			alertType, severity, ok := Classify(available, p.ReorderLevel, s.opts.CriticalRatio)
			if !ok || !matches(filter, alertType) {
				continue
			}
			alerts = append(alerts, StockAlert{
				ProductID:      p.ID,
				ProductName:    p.Name,
				ProductSKU:     p.SKU,
				WarehouseID:    b.WarehouseID,
				WarehouseName:  s.warehouseName(ctx, warehouseNames, b.WarehouseID),
				CurrentStock:   b.Quantity,
				AvailableStock: available,
				ReorderLevel:   p.ReorderLevel,
				AlertType:      alertType,
				Severity:       severity,
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity != alerts[j].Severity {
			return alerts[i].Severity == SeverityError
		}
		return alerts[i].AvailableStock < alerts[j].AvailableStock
	})
	return alerts, nil
}

func matches(filter AlertFilter, t AlertType) bool {
	return filter.Type == nil || *filter.Type == t
}

func (s *AlertService) warehouseName(ctx context.Context, cache map[uuid.UUID]string, id uuid.UUID) string {
	if name, ok := cache[id]; ok {
		return name
	}
	name := "Unknown Warehouse"
	info, err := s.registry.ResolveWarehouse(ctx, id)
	switch {
	case err == nil:
		name = info.Name
	case !errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("warehouse lookup failed", zap.String("warehouse_id", id.String()), zap.Error(err))
	}
	cache[id] = name
	return name
}
