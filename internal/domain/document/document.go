package document

import (
	"time"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Header holds the mutable document fields. WarehouseID is the single
// warehouse of receipts, deliveries and adjustments and the source of a
// transfer.
type Header struct {
	WarehouseID            uuid.UUID
	DestinationWarehouseID *uuid.UUID
	PartnerName            string // supplier for receipts, customer for deliveries
	Reason                 string
	Notes                  string
}

// HeaderPatch carries optional header changes; nil fields are left alone
type HeaderPatch struct {
	WarehouseID            *uuid.UUID
	DestinationWarehouseID *uuid.UUID
	PartnerName            *string
	Reason                 *string
	Notes                  *string
}

// IsEmpty reports whether the patch changes nothing
func (p HeaderPatch) IsEmpty() bool {
	return p.WarehouseID == nil && p.DestinationWarehouseID == nil &&
		p.PartnerName == nil && p.Reason == nil && p.Notes == nil
}

// LineInput is a line as submitted by a caller
type LineInput struct {
	ProductID       uuid.UUID
	Quantity        int64
	CountedQuantity *int64
	UnitPrice       *decimal.Decimal
	Notes           string
}

// Line is a persisted document line. For adjustments Quantity mirrors
// CountedQuantity and Difference is what gets posted.
type Line struct {
	ID               uuid.UUID
	DocumentID       uuid.UUID
	ProductID        uuid.UUID
	Quantity         int64
	CountedQuantity  int64
	RecordedQuantity int64
	Difference       int64
	UnitPrice        *decimal.Decimal
	Notes            string
	PostedAt         *time.Time
	InboundPostedAt  *time.Time
}

// Document is the aggregate root of every movement document kind
type Document struct {
	shared.BaseAggregateRoot
	Header
	Kind        Kind
	Number      string
	Status      Status
	CreatedBy   uuid.UUID
	ValidatedAt *time.Time
	Lines       []Line
}

// New builds a draft document. Adjustment lines still need their recorded
// quantity snapshot before they are saved.
func New(kind Kind, header Header, inputs []LineInput, createdBy uuid.UUID) (*Document, error) {
	if !kind.IsValid() {
		return nil, shared.NewValidationError("unknown document type %q", kind)
	}
	if createdBy == uuid.Nil {
		return nil, shared.NewValidationError("created_by is required")
	}
	if err := ValidateHeader(kind, header); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("Warehouse and items are required")
	}
	if err := ValidateLines(kind, inputs); err != nil {
		return nil, err
	}

	doc := &Document{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Kind:              kind,
		Header:            header,
		Status:            StatusDraft,
		CreatedBy:         createdBy,
	}
	doc.Number = GenerateNumber(kind, doc.CreatedAt)
	doc.Lines = BuildLines(doc.ID, kind, inputs)
	return doc, nil
}

// ValidateHeader checks the header fields required by kind
func ValidateHeader(kind Kind, h Header) error {
	if h.WarehouseID == uuid.Nil {
		if kind == KindTransfer {
			return shared.NewValidationError("from_warehouse_id is required")
		}
		return shared.NewValidationError("warehouse_id is required")
	}
	if kind != KindTransfer {
		return nil
	}
	if h.DestinationWarehouseID == nil || *h.DestinationWarehouseID == uuid.Nil {
		return shared.NewValidationError("to_warehouse_id is required")
	}
	if *h.DestinationWarehouseID == h.WarehouseID {
		return shared.NewValidationError("Source and destination warehouses must be different")
	}
	return nil
}

// ValidateLines checks quantities per kind
func ValidateLines(kind Kind, inputs []LineInput) error {
	for i, in := range inputs {
		if in.ProductID == uuid.Nil {
			return shared.NewValidationError("items[%d]: product_id is required", i)
		}
		if kind == KindAdjustment {
			if in.CountedQuantity == nil {
				return shared.NewValidationError("items[%d]: counted_quantity is required", i)
			}
			if *in.CountedQuantity < 0 {
				return shared.NewValidationError("items[%d]: counted_quantity cannot be negative", i)
			}
			continue
		}
		if in.Quantity <= 0 {
			return shared.NewValidationError("items[%d]: quantity must be positive", i)
		}
		if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
			return shared.NewValidationError("items[%d]: unit_price cannot be negative", i)
		}
	}
	return nil
}

// BuildLines turns inputs into fresh lines of documentID
func BuildLines(documentID uuid.UUID, kind Kind, inputs []LineInput) []Line {
	lines := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		line := Line{
			ID:         uuid.New(),
			DocumentID: documentID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			Notes:      in.Notes,
		}
		if kind == KindReceipt && in.UnitPrice != nil {
			price := *in.UnitPrice
			line.UnitPrice = &price
		}
		if kind == KindAdjustment && in.CountedQuantity != nil {
			line.CountedQuantity = *in.CountedQuantity
			line.Quantity = *in.CountedQuantity
		}
		lines = append(lines, line)
	}
	return lines
}

// SnapshotRecorded fixes each adjustment line's recorded quantity from the
// on-hand quantities read at save time and derives the difference.
func SnapshotRecorded(lines []Line, onHand map[uuid.UUID]int64) {
	for i := range lines {
		lines[i].RecordedQuantity = onHand[lines[i].ProductID]
		lines[i].Difference = lines[i].CountedQuantity - lines[i].RecordedQuantity
	}
}

// SourceWarehouse is the warehouse stock leaves from or lands in
func (d *Document) SourceWarehouse() uuid.UUID {
	return d.WarehouseID
}

// DestinationWarehouse is only set on transfers
func (d *Document) DestinationWarehouse() uuid.UUID {
	if d.DestinationWarehouseID == nil {
		return uuid.Nil
	}
	return *d.DestinationWarehouseID
}

// IsDone reports whether the document has been fully posted
func (d *Document) IsDone() bool {
	return d.Status == StatusDone
}

// HasPostedLines reports whether any posting leg has already hit the ledger
func (d *Document) HasPostedLines() bool {
	for _, l := range d.Lines {
		if l.PostedAt != nil || l.InboundPostedAt != nil {
			return true
		}
	}
	return false
}

// ReservedItems is what the document currently holds in reservation: the
// outbound quantity of every line whose outbound leg has not posted yet.
// Inbound kinds and terminal documents hold nothing.
func (d *Document) ReservedItems() []stock.Item {
	if !d.Kind.IsOutbound() || d.Status.IsTerminal() {
		return nil
	}
	return OutboundItems(d.Lines)
}

// OutboundItems returns the unposted outbound quantities of lines
func OutboundItems(lines []Line) []stock.Item {
	items := make([]stock.Item, 0, len(lines))
	for _, l := range lines {
		if l.PostedAt != nil {
			continue
		}
		items = append(items, stock.Item{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}

// EditableCheck rejects edits on terminal documents
func (d *Document) EditableCheck() error {
	switch d.Status {
	case StatusDone:
		return shared.NewValidationError("Cannot edit validated %s", d.Kind.Label())
	case StatusCanceled:
		return shared.NewValidationError("Cannot edit canceled %s", d.Kind.Label())
	}
	return nil
}

// ApplyHeaderPatch applies p and revalidates the header
func (d *Document) ApplyHeaderPatch(p HeaderPatch) error {
	h := d.Header
	if p.WarehouseID != nil {
		h.WarehouseID = *p.WarehouseID
	}
	if p.DestinationWarehouseID != nil {
		dst := *p.DestinationWarehouseID
		h.DestinationWarehouseID = &dst
	}
	if p.PartnerName != nil {
		h.PartnerName = *p.PartnerName
	}
	if p.Reason != nil {
		h.Reason = *p.Reason
	}
	if p.Notes != nil {
		h.Notes = *p.Notes
	}
	if err := ValidateHeader(d.Kind, h); err != nil {
		return err
	}
	d.Header = h
	d.Touch()
	return nil
}

// SetStatus moves between the non-terminal statuses. Done and canceled are
// reached through validation and cancellation only.
func (d *Document) SetStatus(s Status) error {
	if !s.IsValid() {
		return shared.NewValidationError("invalid status %q", s)
	}
	if s.IsTerminal() {
		return shared.NewInvalidStateError("status %s is reached through its own operation", s)
	}
	if err := d.EditableCheck(); err != nil {
		return err
	}
	d.Status = s
	d.Touch()
	return nil
}

// MarkDone finalizes the document. validated_at is set once.
func (d *Document) MarkDone(at time.Time) {
	d.Status = StatusDone
	if d.ValidatedAt == nil {
		ts := at
		d.ValidatedAt = &ts
	}
	d.Touch()
}

// Cancel moves a document without postings to canceled
func (d *Document) Cancel() error {
	switch {
	case d.Status == StatusDone:
		return shared.NewInvalidStateError("Cannot cancel validated %s", d.Kind.Label())
	case d.Status == StatusCanceled:
		return shared.NewInvalidStateError("%s %s is already canceled", d.Kind.Label(), d.Number)
	case d.HasPostedLines():
		return shared.NewInvalidStateError("%s %s is partially posted and cannot be canceled", d.Kind.Label(), d.Number)
	}
	d.Status = StatusCanceled
	d.Touch()
	return nil
}

// ListFilter narrows document listings
type ListFilter struct {
	Status      *Status
	WarehouseID *uuid.UUID
	Page        int
	PageSize    int
	OrderBy     string // column name, validated by the repository
	OrderDir    string // asc or desc
}
