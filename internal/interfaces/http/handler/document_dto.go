package handler

import (
	"time"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentItemRequest is one line of a create or update request
// @Description Document line. Adjustments use counted_quantity, other kinds quantity.
type DocumentItemRequest struct {
	ProductID       string           `json:"product_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	Quantity        int64            `json:"quantity" binding:"gte=0" example:"10"`
	CountedQuantity *int64           `json:"counted_quantity,omitempty" binding:"omitempty,gte=0" example:"95"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty" swaggertype:"string" example:"12.50"`
	Notes           string           `json:"notes,omitempty" binding:"max=500" example:"Pallet 3"`
}

// CreateDocumentRequest creates a document of the kind named in the path.
// Which header fields apply depends on the kind.
// @Description Request body for creating a receipt, delivery, transfer or adjustment
type CreateDocumentRequest struct {
	WarehouseID     string                `json:"warehouse_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	FromWarehouseID string                `json:"from_warehouse_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	ToWarehouseID   string                `json:"to_warehouse_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440009"`
	SupplierName    string                `json:"supplier_name" binding:"max=200" example:"Acme Supplies"`
	CustomerName    string                `json:"customer_name" binding:"max=200" example:"Globex"`
	Reason          string                `json:"reason" binding:"max=255" example:"Cycle count"`
	Notes           string                `json:"notes" binding:"max=1000"`
	Items           []DocumentItemRequest `json:"items" binding:"dive"`
}

// UpdateDocumentRequest edits a non-terminal document. Omitted fields are
// kept; items, when present, replace every line. Status done validates the
// document after the edit and canceled cancels it.
// @Description Request body for updating a document
type UpdateDocumentRequest struct {
	WarehouseID     *string               `json:"warehouse_id" binding:"omitempty,uuid"`
	FromWarehouseID *string               `json:"from_warehouse_id" binding:"omitempty,uuid"`
	ToWarehouseID   *string               `json:"to_warehouse_id" binding:"omitempty,uuid"`
	SupplierName    *string               `json:"supplier_name" binding:"omitempty,max=200"`
	CustomerName    *string               `json:"customer_name" binding:"omitempty,max=200"`
	Reason          *string               `json:"reason" binding:"omitempty,max=255"`
	Notes           *string               `json:"notes" binding:"omitempty,max=1000"`
	Status          *string               `json:"status" binding:"omitempty,document_status" example:"ready"`
	Items           []DocumentItemRequest `json:"items" binding:"omitempty,dive"`
}

// ListDocumentsQuery holds the list filters
type ListDocumentsQuery struct {
	Status      string `form:"status" binding:"omitempty,document_status"`
	WarehouseID string `form:"warehouse_id" binding:"omitempty,uuid"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy     string `form:"order_by" binding:"omitempty,oneof=created_at updated_at validated_at number status"`
	OrderDir    string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// Filter converts the query to a repository filter
func (q ListDocumentsQuery) Filter() document.ListFilter {
	filter := document.ListFilter{Page: q.Page, PageSize: q.PageSize, OrderBy: q.OrderBy, OrderDir: q.OrderDir}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}
	if q.Status != "" {
		s := document.Status(q.Status)
		filter.Status = &s
	}
	if q.WarehouseID != "" {
		filter.WarehouseID = parseUUIDPtr(&q.WarehouseID)
	}
	return filter
}

func (r CreateDocumentRequest) header(kind document.Kind) document.Header {
	h := document.Header{
		WarehouseID: parseOptionalUUID(r.WarehouseID),
		Reason:      r.Reason,
		Notes:       r.Notes,
	}
	switch kind {
	case document.KindReceipt:
		h.PartnerName = r.SupplierName
	case document.KindDelivery:
		h.PartnerName = r.CustomerName
	case document.KindTransfer:
		if r.FromWarehouseID != "" {
			h.WarehouseID = parseOptionalUUID(r.FromWarehouseID)
		}
		if r.ToWarehouseID != "" {
			to := parseOptionalUUID(r.ToWarehouseID)
			h.DestinationWarehouseID = &to
		}
	}
	return h
}

func (r UpdateDocumentRequest) patch(kind document.Kind) document.HeaderPatch {
	p := document.HeaderPatch{
		WarehouseID: parseUUIDPtr(r.WarehouseID),
		Reason:      r.Reason,
		Notes:       r.Notes,
	}
	switch kind {
	case document.KindReceipt:
		p.PartnerName = r.SupplierName
	case document.KindDelivery:
		p.PartnerName = r.CustomerName
	case document.KindTransfer:
		if r.FromWarehouseID != nil {
			p.WarehouseID = parseUUIDPtr(r.FromWarehouseID)
		}
		p.DestinationWarehouseID = parseUUIDPtr(r.ToWarehouseID)
	}
	return p
}

func lineInputs(items []DocumentItemRequest) []document.LineInput {
	if items == nil {
		return nil
	}
	out := make([]document.LineInput, 0, len(items))
	for _, it := range items {
		out = append(out, document.LineInput{
			ProductID:       parseOptionalUUID(it.ProductID),
			Quantity:        it.Quantity,
			CountedQuantity: it.CountedQuantity,
			UnitPrice:       it.UnitPrice,
			Notes:           it.Notes,
		})
	}
	return out
}

// parseOptionalUUID parses a value already checked by the binding tags.
// Empty input yields uuid.Nil, which the domain rejects where required.
func parseOptionalUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func parseUUIDPtr(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id := parseOptionalUUID(*s)
	return &id
}

// DocumentLineResponse represents a document line in API responses
// @Description Document line with posting state
type DocumentLineResponse struct {
	ID               string           `json:"id" example:"550e8400-e29b-41d4-a716-446655440010"`
	ProductID        string           `json:"product_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	Quantity         int64            `json:"quantity" example:"10"`
	CountedQuantity  *int64           `json:"counted_quantity,omitempty" example:"95"`
	RecordedQuantity *int64           `json:"recorded_quantity,omitempty" example:"100"`
	Difference       *int64           `json:"difference,omitempty" example:"-5"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty" swaggertype:"string" example:"12.50"`
	Notes            string           `json:"notes,omitempty"`
	PostedAt         *time.Time       `json:"posted_at,omitempty"`
	InboundPostedAt  *time.Time       `json:"inbound_posted_at,omitempty"`
}

// DocumentResponse represents a movement document in API responses
// @Description Receipt, delivery, transfer or adjustment with its lines
type DocumentResponse struct {
	ID              string                 `json:"id" example:"550e8400-e29b-41d4-a716-446655440020"`
	Kind            string                 `json:"kind" example:"delivery" enums:"receipt,delivery,transfer,adjustment"`
	Number          string                 `json:"number" example:"DO-1737720000000-K3Z9QA"`
	Status          string                 `json:"status" example:"draft" enums:"draft,waiting,ready,done,canceled"`
	WarehouseID     *string                `json:"warehouse_id,omitempty"`
	FromWarehouseID *string                `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *string                `json:"to_warehouse_id,omitempty"`
	SupplierName    string                 `json:"supplier_name,omitempty"`
	CustomerName    string                 `json:"customer_name,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedBy       string                 `json:"created_by"`
	ValidatedAt     *time.Time             `json:"validated_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Version         int                    `json:"version" example:"1"`
	Items           []DocumentLineResponse `json:"items"`
}

// ToDocumentResponse maps a document to its kind-specific wire shape
func ToDocumentResponse(d *document.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:          d.ID.String(),
		Kind:        d.Kind.String(),
		Number:      d.Number,
		Status:      d.Status.String(),
		Reason:      d.Reason,
		Notes:       d.Notes,
		CreatedBy:   d.CreatedBy.String(),
		ValidatedAt: d.ValidatedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Version:     d.Version,
		Items:       make([]DocumentLineResponse, 0, len(d.Lines)),
	}

	warehouse := d.WarehouseID.String()
	switch d.Kind {
	case document.KindTransfer:
		resp.FromWarehouseID = &warehouse
		if d.DestinationWarehouseID != nil {
			to := d.DestinationWarehouseID.String()
			resp.ToWarehouseID = &to
		}
	case document.KindReceipt:
		resp.WarehouseID = &warehouse
		resp.SupplierName = d.PartnerName
	case document.KindDelivery:
		resp.WarehouseID = &warehouse
		resp.CustomerName = d.PartnerName
	default:
		resp.WarehouseID = &warehouse
	}

	for _, l := range d.Lines {
		line := DocumentLineResponse{
			ID:              l.ID.String(),
			ProductID:       l.ProductID.String(),
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			Notes:           l.Notes,
			PostedAt:        l.PostedAt,
			InboundPostedAt: l.InboundPostedAt,
		}
		if d.Kind == document.KindAdjustment {
			counted, recorded, diff := l.CountedQuantity, l.RecordedQuantity, l.Difference
			line.CountedQuantity = &counted
			line.RecordedQuantity = &recorded
			line.Difference = &diff
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}

// ToDocumentResponses maps a page of documents
func ToDocumentResponses(page shared.Paginated[document.Document]) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(page.Items))
	for i := range page.Items {
		out = append(out, ToDocumentResponse(&page.Items[i]))
	}
	return out
}
