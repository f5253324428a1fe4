package stock

import (
	"context"
	"testing"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/tests/testutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	balances     *testutil.MemoryBalances
	ledger       *testutil.MemoryLedger
	registry     *testutil.MemoryRegistry
	ledgerStore  *LedgerStore
	store        *BalanceStore
	checker      *AvailabilityChecker
	reservations *ReservationManager
	alerts       *AlertService
	actor        uuid.UUID
}

func newFixture(t *testing.T, locker KeyLocker, opts Options) *fixture {
	t.Helper()
	return newFixtureWithLogger(zaptest.NewLogger(t), locker, opts)
}

func newQuietFixture(locker KeyLocker, opts Options) *fixture {
	return newFixtureWithLogger(zap.NewNop(), locker, opts)
}

func newFixtureWithLogger(logger *zap.Logger, locker KeyLocker, opts Options) *fixture {
	f := &fixture{
		balances: testutil.NewMemoryBalances(),
		ledger:   testutil.NewMemoryLedger(),
		registry: testutil.NewMemoryRegistry(),
		actor:    uuid.New(),
	}
	if locker == nil {
		locker = NewMemoryKeyLocker()
	}
	scope := NewNoOpTransactionScope(f.balances, f.ledger, testutil.NewMemoryDocuments())
	f.ledgerStore = NewLedgerStore(scope, f.ledger, f.balances, opts, logger)
	f.store = NewBalanceStore(scope, f.balances, f.ledgerStore, locker, opts, logger)
	f.checker = NewAvailabilityChecker(f.store, f.registry, logger)
	f.reservations = NewReservationManager(f.store, f.checker, logger)
	f.alerts = NewAlertService(f.store, f.registry, opts, logger)
	return f
}

func (f *fixture) ctx() context.Context {
	return shared.WithActor(context.Background(), f.actor)
}

// noLocker relies on the version check alone
type noLocker struct{}

func (noLocker) Lock(context.Context, ...string) (func(), error) {
	return func() {}, nil
}
