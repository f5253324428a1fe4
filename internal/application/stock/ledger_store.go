package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerStore is the append-only log of quantity changes. It exposes no
// update or delete.
type LedgerStore struct {
	scope    TransactionScope
	ledger   stock.LedgerRepository
	balances stock.BalanceRepository
	opts     Options
	logger   *zap.Logger
}

// NewLedgerStore creates a LedgerStore. ledger and balances are used for
// reads outside a transaction.
func NewLedgerStore(
	scope TransactionScope,
	ledger stock.LedgerRepository,
	balances stock.BalanceRepository,
	opts Options,
	logger *zap.Logger,
) *LedgerStore {
	return &LedgerStore{
		scope:    scope,
		ledger:   ledger,
		balances: balances,
		opts:     opts.WithDefaults(),
		logger:   logger,
	}
}

// Append persists entry in its own transaction
func (s *LedgerStore) Append(ctx context.Context, entry *stock.LedgerEntry) (*stock.LedgerEntry, error) {
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return s.AppendTx(ctx, repos.LedgerRepo(), entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendTx stamps id and timestamp, validates and appends within an open
// transaction
func (s *LedgerStore) AppendTx(ctx context.Context, repo stock.LedgerRepository, entry *stock.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// History returns entries newest first. A non-positive limit selects the
// default; larger limits are capped.
func (s *LedgerStore) History(ctx context.Context, filter stock.HistoryFilter, limit int) ([]stock.LedgerEntry, error) {
	if filter.TransactionType != nil && !filter.TransactionType.IsValid() {
		return nil, shared.NewValidationError("invalid transaction type %q", *filter.TransactionType)
	}
	entries, err := s.ledger.History(ctx, filter, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger history: %w", err)
	}
	return entries, nil
}

// Chain returns every entry of one key, oldest first
func (s *LedgerStore) Chain(ctx context.Context, key stock.Key) ([]stock.LedgerEntry, error) {
	entries, err := s.ledger.Chain(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger chain %s: %w", key, err)
	}
	return entries, nil
}

// Reconcile replays the chain of key from zero and compares the result with
// the live balance
func (s *LedgerStore) Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*stock.Reconciliation, error) {
	key, err := stock.NewKey(productID, warehouseID)
	if err != nil {
		return nil, err
	}
	entries, err := s.Chain(ctx, key)
	if err != nil {
		return nil, err
	}
	var live int64
	b, err := s.balances.FindByKey(ctx, key)
	switch {
	case err == nil:
		live = b.Quantity
	case errors.Is(err, shared.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to read balance %s: %w", key, err)
	}

	r := stock.Reconcile(key, entries, live)
	if !r.Consistent {
		s.logger.Warn("ledger does not reconcile with balance",
			zap.String("key", key.String()),
			zap.Int64("replayed", r.Replayed),
			zap.Int64("live", r.Live),
			zap.Int("breaks", len(r.Breaks)),
		)
	}
	return &r, nil
}

func (s *LedgerStore) clampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.HistoryDefaultLimit
	}
	if limit > s.opts.HistoryMaxLimit {
		return s.opts.HistoryMaxLimit
	}
	return limit
}
