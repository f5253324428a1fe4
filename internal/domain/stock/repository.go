package stock

import (
	"context"
)

// BalanceRepository persists balances. Writes go through UpdateWithVersion
// only; there is no delete.
type BalanceRepository interface {
	// FindByKey returns shared.ErrNotFound when the key has never moved
	FindByKey(ctx context.Context, key Key) (*StockBalance, error)

	// GetOrCreateForUpdate lazily inserts the row and reads it with a row
	// lock where the store supports one
	GetOrCreateForUpdate(ctx context.Context, key Key) (*StockBalance, error)

	// UpdateWithVersion writes quantity and reserved_quantity if the stored
	// version still equals balance.Version, then bumps the version. A lost
	// race returns shared.ErrConcurrencyConflict.
	UpdateWithVersion(ctx context.Context, balance *StockBalance) error

	// List returns balances matching the filter
	List(ctx context.Context, filter BalanceFilter) ([]StockBalance, error)
}

// LedgerRepository is append-only
type LedgerRepository interface {
	Append(ctx context.Context, entry *LedgerEntry) error

	// History returns entries newest first
	History(ctx context.Context, filter HistoryFilter, limit int) ([]LedgerEntry, error)

	// Chain returns every entry of key ordered by balance version
	Chain(ctx context.Context, key Key) ([]LedgerEntry, error)
}
