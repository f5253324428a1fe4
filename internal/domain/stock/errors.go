package stock

import (
	"fmt"
	"strings"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
)

// NegativeStockError is returned when a non-adjustment posting would leave
// the on-hand quantity below zero.
type NegativeStockError struct {
	ProductID       uuid.UUID       `json:"product_id"`
	WarehouseID     uuid.UUID       `json:"warehouse_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Current         int64           `json:"current"`
	Delta           int64           `json:"delta"`
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf(
		"%s of %d would drive stock of product %s in warehouse %s negative (on hand %d)",
		e.TransactionType, e.Delta, e.ProductID, e.WarehouseID, e.Current,
	)
}

func (e *NegativeStockError) Unwrap() error { return shared.ErrNegativeStock }

// Shortfall is one unavailable line of an availability check
type Shortfall struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	Available   int64     `json:"available"`
	Requested   int64     `json:"requested"`
	Shortfall   int64     `json:"shortfall"`
}

// Label is the human-readable product reference of the row
func (s Shortfall) Label() string {
	switch {
	case s.ProductName != "" && s.SKU != "":
		return fmt.Sprintf("%s (%s)", s.ProductName, s.SKU)
	case s.ProductName != "":
		return s.ProductName
	default:
		return s.ProductID.String()
	}
}

// InsufficientStockError carries the per-item breakdown of a failed check
type InsufficientStockError struct {
	WarehouseID uuid.UUID   `json:"warehouse_id"`
	Items       []Shortfall `json:"items"`
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf(
			"%s: available %d, requested %d, short %d",
			it.Label(), it.Available, it.Requested, it.Shortfall,
		))
	}
	return "Insufficient stock for: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error { return shared.ErrInsufficientStock }

// ConcurrencyConflictError is surfaced once the bounded retries on a
// version conflict are exhausted. Callers may retry the whole operation.
type ConcurrencyConflictError struct {
	Keys     []Key
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	names := make([]string, 0, len(e.Keys))
	for _, k := range e.Keys {
		names = append(names, k.String())
	}
	return fmt.Sprintf("concurrent update on %s not resolved after %d attempts", strings.Join(names, ", "), e.Attempts)
}

func (e *ConcurrencyConflictError) Unwrap() error { return shared.ErrConcurrencyConflict }
