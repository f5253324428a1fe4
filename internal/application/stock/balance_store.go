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

// Balances is the locked working set of one Update call
type Balances struct {
	rows  map[stock.Key]*stock.StockBalance
	dirty map[stock.Key]bool
}

func newBalances(n int) *Balances {
	return &Balances{
		rows:  make(map[stock.Key]*stock.StockBalance, n),
		dirty: make(map[stock.Key]bool, n),
	}
}

// Get returns the locked row of key, or nil if key is not part of the set
func (b *Balances) Get(key stock.Key) *stock.StockBalance {
	return b.rows[key]
}

// MarkDirty forces a write of key even if its quantities did not change
func (b *Balances) MarkDirty(key stock.Key) {
	b.dirty[key] = true
}

// Mutation runs inside the critical section of Update
type Mutation func(repos TransactionalRepositories, balances *Balances) error

// PostingRequest describes one ledger posting
type PostingRequest struct {
	Key             stock.Key
	TransactionType stock.TransactionType
	Change          int64
	Release         int64
	TransactionID   uuid.UUID
	ReferenceNumber string
	Notes           string
	ActorID         uuid.UUID
}

// BalanceStore is the single mutation point for balances. Every write runs
// under the key lock of each touched balance, inside one transaction, and is
// committed with a version compare-and-swap that is retried a bounded number
// of times.
type BalanceStore struct {
	scope   TransactionScope
	reader  stock.BalanceRepository
	ledger  *LedgerStore
	locker  KeyLocker
	metrics Metrics
	opts    Options
	logger  *zap.Logger
}

// NewBalanceStore creates a BalanceStore
func NewBalanceStore(
	scope TransactionScope,
	reader stock.BalanceRepository,
	ledger *LedgerStore,
	locker KeyLocker,
	opts Options,
	logger *zap.Logger,
) *BalanceStore {
	return &BalanceStore{
		scope:   scope,
		reader:  reader,
		ledger:  ledger,
		locker:  locker,
		metrics: NoopMetrics{},
		opts:    opts.WithDefaults(),
		logger:  logger,
	}
}

// SetMetrics sets the metrics sink
func (s *BalanceStore) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// Get returns the balance of a key. A key that never moved reads as zero.
func (s *BalanceStore) Get(ctx context.Context, productID, warehouseID uuid.UUID) (stock.StockBalance, error) {
	key, err := stock.NewKey(productID, warehouseID)
	if err != nil {
		return stock.StockBalance{}, err
	}
	b, err := s.reader.FindByKey(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return stock.ZeroBalance(key), nil
	}
	if err != nil {
		return stock.StockBalance{}, fmt.Errorf("failed to read balance %s: %w", key, err)
	}
	return *b, nil
}

// List returns stored balances
func (s *BalanceStore) List(ctx context.Context, filter stock.BalanceFilter) ([]stock.StockBalance, error) {
	rows, err := s.reader.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return rows, nil
}

// Update runs fn as one critical section over keys. Changed rows are written
// back with a version check; a lost race reruns the whole section.
func (s *BalanceStore) Update(ctx context.Context, keys []stock.Key, fn Mutation) error {
	keys = stock.SortedKeys(keys...)
	unlock, err := s.lock(ctx, keys)
	if err != nil {
		return err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			return s.mutate(ctx, repos, keys, fn)
		})
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		var exhausted *stock.ConcurrencyConflictError
		if errors.As(err, &exhausted) {
			return err
		}
		if attempt >= s.opts.MaxConflictRetries {
			s.logger.Warn("balance update conflict retries exhausted",
				zap.Int("attempts", attempt),
				zap.Int("keys", len(keys)),
				zap.Error(err),
			)
			return &stock.ConcurrencyConflictError{Keys: keys, Attempts: attempt}
		}
		s.metrics.RecordConflictRetry(ctx, attempt)
		s.logger.Debug("retrying balance update after version conflict", zap.Int("attempt", attempt))
		if err := sleepContext(ctx, s.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			return err
		}
	}
}

func (s *BalanceStore) mutate(ctx context.Context, repos TransactionalRepositories, keys []stock.Key, fn Mutation) error {
	balances := newBalances(len(keys))
	loaded := make(map[stock.Key]stock.StockBalance, len(keys))
	for _, k := range keys {
		b, err := repos.BalanceRepo().GetOrCreateForUpdate(ctx, k)
		if err != nil {
			return fmt.Errorf("failed to load balance %s: %w", k, err)
		}
		balances.rows[k] = b
		loaded[k] = *b
	}

	if err := fn(repos, balances); err != nil {
		return err
	}

	for _, k := range keys {
		b := balances.rows[k]
		prev := loaded[k]
		if !balances.dirty[k] && b.Quantity == prev.Quantity && b.ReservedQuantity == prev.ReservedQuantity {
			continue
		}
		if err := repos.BalanceRepo().UpdateWithVersion(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDelta changes the on-hand quantity of one key on behalf of
// transactionID and returns the quantities either side of the change. It
// posts through Post, so every change leaves a ledger entry attributed to
// the actor in ctx.
func (s *BalanceStore) ApplyDelta(
	ctx context.Context,
	productID, warehouseID uuid.UUID,
	delta int64,
	txType stock.TransactionType,
	transactionID uuid.UUID,
) (before, after int64, err error) {
	key, err := stock.NewKey(productID, warehouseID)
	if err != nil {
		return 0, 0, err
	}
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return 0, 0, err
	}
	entry, err := s.Post(ctx, PostingRequest{
		Key:             key,
		TransactionType: txType,
		Change:          delta,
		TransactionID:   transactionID,
		ActorID:         actor,
	}, nil)
	if err != nil {
		return 0, 0, err
	}
	return entry.QuantityBefore, entry.QuantityAfter, nil
}

// SetReserved sets the reserved quantity of one key, clamped at zero
func (s *BalanceStore) SetReserved(ctx context.Context, productID, warehouseID uuid.UUID, reserved int64) error {
	key, err := stock.NewKey(productID, warehouseID)
	if err != nil {
		return err
	}
	return s.Update(ctx, []stock.Key{key}, func(_ TransactionalRepositories, balances *Balances) error {
		balances.Get(key).SetReserved(reserved)
		return nil
	})
}

// Post releases req.Release from the reservation, applies the change, runs
// hook and appends the ledger entry, all in one transaction under the key
// lock.
func (s *BalanceStore) Post(
	ctx context.Context,
	req PostingRequest,
	hook func(repos TransactionalRepositories) error,
) (*stock.LedgerEntry, error) {
	if req.ActorID == uuid.Nil {
		return nil, shared.NewValidationError("actor_id is required for ledger attribution")
	}
	var entry *stock.LedgerEntry
	err := s.Update(ctx, []stock.Key{req.Key}, func(repos TransactionalRepositories, balances *Balances) error {
		b := balances.Get(req.Key)
		if req.Release > 0 {
			b.Release(req.Release)
		}
		before, after, err := b.ApplyDelta(req.Change, req.TransactionType)
		if err != nil {
			return err
		}
		balances.MarkDirty(req.Key)

		e := &stock.LedgerEntry{
			ProductID:       req.Key.ProductID,
			WarehouseID:     req.Key.WarehouseID,
			TransactionType: req.TransactionType,
			TransactionID:   req.TransactionID,
			QuantityChange:  req.Change,
			QuantityBefore:  before,
			QuantityAfter:   after,
			BalanceVersion:  b.Version + 1,
			ReferenceNumber: req.ReferenceNumber,
			Notes:           req.Notes,
			CreatedBy:       req.ActorID,
		}
		if hook != nil {
			if err := hook(repos); err != nil {
				return err
			}
		}
		if err := s.ledger.AppendTx(ctx, repos.LedgerRepo(), e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.recordRejection(ctx, err)
		return nil, err
	}

	s.metrics.RecordPosting(ctx, req.TransactionType, req.Change)
	if req.Release > 0 {
		s.metrics.RecordReservation(ctx, -req.Release)
	}
	s.logger.Info("stock posted",
		zap.String("key", req.Key.String()),
		zap.String("transaction_type", req.TransactionType.String()),
		zap.Int64("change", req.Change),
		zap.Int64("quantity_before", entry.QuantityBefore),
		zap.Int64("quantity_after", entry.QuantityAfter),
		zap.String("reference", req.ReferenceNumber),
	)
	return entry, nil
}

func (s *BalanceStore) lock(ctx context.Context, keys []stock.Key) (func(), error) {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWaitTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, names...)
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if lockCtx.Err() != nil {
		s.metrics.RecordRejection(ctx, "lock_timeout")
		return nil, &stock.ConcurrencyConflictError{Keys: keys, Attempts: 1}
	}
	return nil, fmt.Errorf("failed to lock balances: %w", err)
}

func (s *BalanceStore) recordRejection(ctx context.Context, err error) {
	switch {
	case errors.Is(err, shared.ErrNegativeStock):
		s.metrics.RecordRejection(ctx, "negative_stock")
	case errors.Is(err, shared.ErrInsufficientStock):
		s.metrics.RecordRejection(ctx, "insufficient_stock")
	case errors.Is(err, shared.ErrConcurrencyConflict):
		s.metrics.RecordRejection(ctx, "concurrency_conflict")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
