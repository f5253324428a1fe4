package models

import (
	"fmt"
	"time"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentHeader is implemented by the header model of every document kind
type DocumentHeader interface {
	TableName() string
	ToDomain() *document.Document
	// UpdateColumns returns the mutable columns written by a versioned update
	UpdateColumns() map[string]any
}

// DocumentLine is implemented by the line model of every document kind
type DocumentLine interface {
	TableName() string
	ToDomain() document.Line
}

// DocumentHeaderModel holds the columns shared by every header table
type DocumentHeaderModel struct {
	AggregateModel
	Number      string     `gorm:"type:varchar(50);not null;uniqueIndex"`
	Status      string     `gorm:"type:varchar(20);not null;default:'draft';index"`
	Notes       string     `gorm:"type:text"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;not null"`
	ValidatedAt *time.Time `gorm:"type:timestamp"`
}

func (m DocumentHeaderModel) toDomain(kind document.Kind) *document.Document {
	return &document.Document{
		BaseAggregateRoot: m.aggregate(),
		Kind:              kind,
		Number:            m.Number,
		Status:            document.Status(m.Status),
		CreatedBy:         m.CreatedBy,
		ValidatedAt:       m.ValidatedAt,
		Header:            document.Header{Notes: m.Notes},
	}
}

func (m DocumentHeaderModel) updateColumns() map[string]any {
	return map[string]any{
		"status":       m.Status,
		"notes":        m.Notes,
		"validated_at": m.ValidatedAt,
		"updated_at":   m.UpdatedAt,
	}
}

func documentHeaderFromDomain(d *document.Document) DocumentHeaderModel {
	return DocumentHeaderModel{
		AggregateModel: aggregateModelOf(d.BaseAggregateRoot),
		Number:         d.Number,
		Status:         string(d.Status),
		Notes:          d.Notes,
		CreatedBy:      d.CreatedBy,
		ValidatedAt:    d.ValidatedAt,
	}
}

// ReceiptModel is the header of an incoming goods document
type ReceiptModel struct {
	DocumentHeaderModel
	WarehouseID  uuid.UUID `gorm:"type:uuid;not null;index"`
	SupplierName string    `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (ReceiptModel) TableName() string { return "stock_receipts" }

// ToDomain converts the header to a document without lines
func (m ReceiptModel) ToDomain() *document.Document {
	d := m.toDomain(document.KindReceipt)
	d.WarehouseID = m.WarehouseID
	d.PartnerName = m.SupplierName
	return d
}

// UpdateColumns implements DocumentHeader
func (m ReceiptModel) UpdateColumns() map[string]any {
	cols := m.updateColumns()
	cols["warehouse_id"] = m.WarehouseID
	cols["supplier_name"] = m.SupplierName
	return cols
}

// DeliveryModel is the header of an outgoing goods document
type DeliveryModel struct {
	DocumentHeaderModel
	WarehouseID  uuid.UUID `gorm:"type:uuid;not null;index"`
	CustomerName string    `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (DeliveryModel) TableName() string { return "stock_deliveries" }

// ToDomain converts the header to a document without lines
func (m DeliveryModel) ToDomain() *document.Document {
	d := m.toDomain(document.KindDelivery)
	d.WarehouseID = m.WarehouseID
	d.PartnerName = m.CustomerName
	return d
}

// UpdateColumns implements DocumentHeader
func (m DeliveryModel) UpdateColumns() map[string]any {
	cols := m.updateColumns()
	cols["warehouse_id"] = m.WarehouseID
	cols["customer_name"] = m.CustomerName
	return cols
}

// TransferModel is the header of an internal move between two warehouses
type TransferModel struct {
	DocumentHeaderModel
	FromWarehouseID uuid.UUID `gorm:"type:uuid;not null;index"`
	ToWarehouseID   uuid.UUID `gorm:"type:uuid;not null;index"`
}

// TableName returns the table name for GORM
func (TransferModel) TableName() string { return "stock_transfers" }

// ToDomain converts the header to a document without lines
func (m TransferModel) ToDomain() *document.Document {
	d := m.toDomain(document.KindTransfer)
	d.WarehouseID = m.FromWarehouseID
	to := m.ToWarehouseID
	d.DestinationWarehouseID = &to
	return d
}

// UpdateColumns implements DocumentHeader
func (m TransferModel) UpdateColumns() map[string]any {
	cols := m.updateColumns()
	cols["from_warehouse_id"] = m.FromWarehouseID
	cols["to_warehouse_id"] = m.ToWarehouseID
	return cols
}

// AdjustmentModel is the header of a physical count correction
type AdjustmentModel struct {
	DocumentHeaderModel
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index"`
	Reason      string    `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (AdjustmentModel) TableName() string { return "stock_adjustments" }

// ToDomain converts the header to a document without lines
func (m AdjustmentModel) ToDomain() *document.Document {
	d := m.toDomain(document.KindAdjustment)
	d.WarehouseID = m.WarehouseID
	d.Reason = m.Reason
	return d
}

// UpdateColumns implements DocumentHeader
func (m AdjustmentModel) UpdateColumns() map[string]any {
	cols := m.updateColumns()
	cols["warehouse_id"] = m.WarehouseID
	cols["reason"] = m.Reason
	return cols
}

// DocumentHeaderFromDomain returns a pointer to the header model of d's kind
func DocumentHeaderFromDomain(d *document.Document) (DocumentHeader, error) {
	base := documentHeaderFromDomain(d)
	switch d.Kind {
	case document.KindReceipt:
		return &ReceiptModel{DocumentHeaderModel: base, WarehouseID: d.WarehouseID, SupplierName: d.PartnerName}, nil
	case document.KindDelivery:
		return &DeliveryModel{DocumentHeaderModel: base, WarehouseID: d.WarehouseID, CustomerName: d.PartnerName}, nil
	case document.KindTransfer:
		return &TransferModel{DocumentHeaderModel: base, FromWarehouseID: d.WarehouseID, ToWarehouseID: d.DestinationWarehouse()}, nil
	case document.KindAdjustment:
		return &AdjustmentModel{DocumentHeaderModel: base, WarehouseID: d.WarehouseID, Reason: d.Reason}, nil
	}
	return nil, shared.NewValidationError("unknown document type %q", d.Kind)
}

// DocumentLineModel holds the columns shared by every line table
type DocumentLineModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key"`
	DocumentID uuid.UUID  `gorm:"type:uuid;not null;index"`
	LineNo     int        `gorm:"not null"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	Quantity   int64      `gorm:"not null"`
	Notes      string     `gorm:"type:text"`
	PostedAt   *time.Time `gorm:"type:timestamp"`
}

func (m DocumentLineModel) toDomain() document.Line {
	return document.Line{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		ProductID:  m.ProductID,
		Quantity:   m.Quantity,
		Notes:      m.Notes,
		PostedAt:   m.PostedAt,
	}
}

func documentLineFromDomain(l document.Line, lineNo int) DocumentLineModel {
	return DocumentLineModel{
		ID:         l.ID,
		DocumentID: l.DocumentID,
		LineNo:     lineNo,
		ProductID:  l.ProductID,
		Quantity:   l.Quantity,
		Notes:      l.Notes,
		PostedAt:   l.PostedAt,
	}
}

// ReceiptLineModel is a line of a receipt
type ReceiptLineModel struct {
	DocumentLineModel
	UnitPrice *decimal.Decimal `gorm:"type:decimal(18,4)"`
}

// TableName returns the table name for GORM
func (ReceiptLineModel) TableName() string { return "stock_receipt_lines" }

// ToDomain implements DocumentLine
func (m ReceiptLineModel) ToDomain() document.Line {
	l := m.toDomain()
	l.UnitPrice = m.UnitPrice
	return l
}

// DeliveryLineModel is a line of a delivery
type DeliveryLineModel struct {
	DocumentLineModel
}

// TableName returns the table name for GORM
func (DeliveryLineModel) TableName() string { return "stock_delivery_lines" }

// ToDomain implements DocumentLine
func (m DeliveryLineModel) ToDomain() document.Line {
	return m.toDomain()
}

// TransferLineModel is a line of a transfer; it posts twice, out then in
type TransferLineModel struct {
	DocumentLineModel
	InboundPostedAt *time.Time `gorm:"type:timestamp"`
}

// TableName returns the table name for GORM
func (TransferLineModel) TableName() string { return "stock_transfer_lines" }

// ToDomain implements DocumentLine
func (m TransferLineModel) ToDomain() document.Line {
	l := m.toDomain()
	l.InboundPostedAt = m.InboundPostedAt
	return l
}

// AdjustmentLineModel is a counted line of an adjustment
type AdjustmentLineModel struct {
	DocumentLineModel
	CountedQuantity  int64 `gorm:"not null"`
	RecordedQuantity int64 `gorm:"not null"`
	Difference       int64 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AdjustmentLineModel) TableName() string { return "stock_adjustment_lines" }

// ToDomain implements DocumentLine
func (m AdjustmentLineModel) ToDomain() document.Line {
	l := m.toDomain()
	l.CountedQuantity = m.CountedQuantity
	l.RecordedQuantity = m.RecordedQuantity
	l.Difference = m.Difference
	return l
}

// DocumentLinesFromDomain returns a pointer to a slice of the line model of
// d's kind, ready for a batch insert
func DocumentLinesFromDomain(d *document.Document) (any, error) {
	switch d.Kind {
	case document.KindReceipt:
		rows := make([]ReceiptLineModel, len(d.Lines))
		for i, l := range d.Lines {
			rows[i] = ReceiptLineModel{DocumentLineModel: documentLineFromDomain(l, i+1), UnitPrice: l.UnitPrice}
		}
		return &rows, nil
	case document.KindDelivery:
		rows := make([]DeliveryLineModel, len(d.Lines))
		for i, l := range d.Lines {
			rows[i] = DeliveryLineModel{DocumentLineModel: documentLineFromDomain(l, i+1)}
		}
		return &rows, nil
	case document.KindTransfer:
		rows := make([]TransferLineModel, len(d.Lines))
		for i, l := range d.Lines {
			rows[i] = TransferLineModel{DocumentLineModel: documentLineFromDomain(l, i+1), InboundPostedAt: l.InboundPostedAt}
		}
		return &rows, nil
	case document.KindAdjustment:
		rows := make([]AdjustmentLineModel, len(d.Lines))
		for i, l := range d.Lines {
			rows[i] = AdjustmentLineModel{
				DocumentLineModel: documentLineFromDomain(l, i+1),
				CountedQuantity:   l.CountedQuantity,
				RecordedQuantity:  l.RecordedQuantity,
				Difference:        l.Difference,
			}
		}
		return &rows, nil
	}
	return nil, fmt.Errorf("unknown document type %q", d.Kind)
}

// HeaderTable returns the header table of kind
func HeaderTable(kind document.Kind) string {
	switch kind {
	case document.KindReceipt:
		return ReceiptModel{}.TableName()
	case document.KindDelivery:
		return DeliveryModel{}.TableName()
	case document.KindTransfer:
		return TransferModel{}.TableName()
	case document.KindAdjustment:
		return AdjustmentModel{}.TableName()
	}
	return ""
}

// LineTable returns the line table of kind
func LineTable(kind document.Kind) string {
	switch kind {
	case document.KindReceipt:
		return ReceiptLineModel{}.TableName()
	case document.KindDelivery:
		return DeliveryLineModel{}.TableName()
	case document.KindTransfer:
		return TransferLineModel{}.TableName()
	case document.KindAdjustment:
		return AdjustmentLineModel{}.TableName()
	}
	return ""
}

// LineModelFor returns an empty line model of kind, used as the target of
// deletes
func LineModelFor(kind document.Kind) any {
	switch kind {
	case document.KindReceipt:
		return &ReceiptLineModel{}
	case document.KindDelivery:
		return &DeliveryLineModel{}
	case document.KindTransfer:
		return &TransferLineModel{}
	case document.KindAdjustment:
		return &AdjustmentLineModel{}
	}
	return nil
}
