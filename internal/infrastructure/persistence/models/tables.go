package models

// AllModels lists every table of the engine in creation order, for
// AutoMigrate on test databases.
func AllModels() []any {
	return []any{
		&ProductModel{},
		&WarehouseModel{},
		&StockBalanceModel{},
		&LedgerEntryModel{},
		&ReceiptModel{},
		&ReceiptLineModel{},
		&DeliveryModel{},
		&DeliveryLineModel{},
		&TransferModel{},
		&TransferLineModel{},
		&AdjustmentModel{},
		&AdjustmentLineModel{},
	}
}
