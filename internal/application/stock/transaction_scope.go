package stock

import (
	"context"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/stock"
)

// TransactionScope provides transactional access to the engine repositories.
// When a function is executed within a transaction scope, all repository operations
// will be part of the same database transaction and will be committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all engine repositories within a transaction.
// All repositories returned share the same underlying database transaction, so a
// balance write, its ledger entry and the document line it posts commit together.
type TransactionalRepositories interface {
	// BalanceRepo returns the balance repository scoped to the current transaction
	BalanceRepo() stock.BalanceRepository
	// LedgerRepo returns the append-only ledger repository scoped to the current transaction
	LedgerRepo() stock.LedgerRepository
	// DocumentRepo returns the document repository scoped to the current transaction
	DocumentRepo() document.Repository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	balanceRepo  stock.BalanceRepository
	ledgerRepo   stock.LedgerRepository
	documentRepo document.Repository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	balanceRepo stock.BalanceRepository,
	ledgerRepo stock.LedgerRepository,
	documentRepo document.Repository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		balanceRepo:  balanceRepo,
		ledgerRepo:   ledgerRepo,
		documentRepo: documentRepo,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// BalanceRepo returns the balance repository.
func (s *NoOpTransactionScope) BalanceRepo() stock.BalanceRepository {
	return s.balanceRepo
}

// LedgerRepo returns the ledger repository.
func (s *NoOpTransactionScope) LedgerRepo() stock.LedgerRepository {
	return s.ledgerRepo
}

// DocumentRepo returns the document repository.
func (s *NoOpTransactionScope) DocumentRepo() document.Repository {
	return s.documentRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
