// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: base persistence models (BaseModel, AggregateModel)
//   - stock.go: stock_balances and the append-only stock_ledger_entries
//   - document.go: header and line tables of receipts, deliveries, transfers and adjustments
//   - catalog.go: read-only views of the products and warehouses tables
//
// The tables themselves are created by the SQL files under migrations/; AutoMigrate
// over AllModels is only used for sqlite test databases.
package models
