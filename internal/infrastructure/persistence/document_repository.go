package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDocumentRepository implements document.Repository over one header
// table and one line table per document kind.
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// FindByID loads a document with its lines
func (r *GormDocumentRepository) FindByID(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error) {
	if !kind.IsValid() {
		return nil, shared.NewValidationError("unknown document type %q", kind)
	}
	docs, err := r.findHeaders(r.db.WithContext(ctx).Where("id = ?", id).Limit(1), kind)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, shared.NewNotFoundError(kind.Label(), id)
	}
	if err := r.attachLines(ctx, kind, docs); err != nil {
		return nil, err
	}
	return &docs[0], nil
}

// List returns one page of documents of kind with their lines, newest first
// unless filter.OrderBy names another column
func (r *GormDocumentRepository) List(ctx context.Context, kind document.Kind, filter document.ListFilter) ([]document.Document, int64, error) {
	if !kind.IsValid() {
		return nil, 0, shared.NewValidationError("unknown document type %q", kind)
	}
	query := r.db.WithContext(ctx).Table(models.HeaderTable(kind))
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.WarehouseID != nil {
		if kind == document.KindTransfer {
			query = query.Where("from_warehouse_id = ? OR to_warehouse_id = ?", *filter.WarehouseID, *filter.WarehouseID)
		} else {
			query = query.Where("warehouse_id = ?", *filter.WarehouseID)
		}
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count %s documents: %w", kind, err)
	}

	if filter.PageSize > 0 {
		page := max(filter.Page, 1)
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	docs, err := r.findHeaders(query.Order(documentOrder(filter.OrderBy, filter.OrderDir)), kind)
	if err != nil {
		return nil, 0, err
	}
	if err := r.attachLines(ctx, kind, docs); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// Create inserts the header and every line
func (r *GormDocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	header, err := models.DocumentHeaderFromDomain(doc)
	if err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if err := db.Create(header).Error; err != nil {
		return fmt.Errorf("create %s %s: %w", doc.Kind, doc.Number, err)
	}
	return r.insertLines(db, doc)
}

// Update writes the mutable header columns if the stored version still
// equals doc.Version
func (r *GormDocumentRepository) Update(ctx context.Context, doc *document.Document) error {
	header, err := models.DocumentHeaderFromDomain(doc)
	if err != nil {
		return err
	}
	cols := header.UpdateColumns()
	cols["version"] = doc.Version + 1

	result := r.db.WithContext(ctx).
		Table(models.HeaderTable(doc.Kind)).
		Where("id = ? AND version = ?", doc.ID, doc.Version).
		Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("update %s %s: %w", doc.Kind, doc.Number, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Table(models.HeaderTable(doc.Kind)).
			Where("id = ?", doc.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update %s %s: %w", doc.Kind, doc.Number, err)
		}
		if count == 0 {
			return shared.NewNotFoundError(doc.Kind.Label(), doc.ID)
		}
		return shared.ErrConcurrencyConflict
	}
	doc.Version++
	return nil
}

// ReplaceLines deletes the stored lines of doc and inserts doc.Lines
func (r *GormDocumentRepository) ReplaceLines(ctx context.Context, doc *document.Document) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("document_id = ?", doc.ID).
		Delete(models.LineModelFor(doc.Kind)).Error; err != nil {
		return fmt.Errorf("delete lines of %s %s: %w", doc.Kind, doc.Number, err)
	}
	return r.insertLines(db, doc)
}

// MarkLinePosted stamps one posting leg with a conditional update, so the
// leg can only be stamped once even across concurrent transactions.
func (r *GormDocumentRepository) MarkLinePosted(ctx context.Context, kind document.Kind, lineID uuid.UUID, inbound bool, at time.Time) error {
	column := "posted_at"
	if inbound {
		if kind != document.KindTransfer {
			return shared.NewValidationError("only transfer lines have an inbound leg")
		}
		column = "inbound_posted_at"
	}
	table := models.LineTable(kind)
	if table == "" {
		return shared.NewValidationError("unknown document type %q", kind)
	}

	result := r.db.WithContext(ctx).
		Table(table).
		Where("id = ? AND "+column+" IS NULL", lineID).
		Update(column, at)
	if result.Error != nil {
		return fmt.Errorf("mark %s line %s posted: %w", kind, lineID, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Table(table).Where("id = ?", lineID).Count(&count).Error; err != nil {
		return fmt.Errorf("mark %s line %s posted: %w", kind, lineID, err)
	}
	if count == 0 {
		return shared.NewNotFoundError("line", lineID)
	}
	return document.ErrLineAlreadyPosted
}

func (r *GormDocumentRepository) insertLines(db *gorm.DB, doc *document.Document) error {
	if len(doc.Lines) == 0 {
		return nil
	}
	rows, err := models.DocumentLinesFromDomain(doc)
	if err != nil {
		return err
	}
	if err := db.Create(rows).Error; err != nil {
		return fmt.Errorf("insert lines of %s %s: %w", doc.Kind, doc.Number, err)
	}
	return nil
}

func (r *GormDocumentRepository) findHeaders(query *gorm.DB, kind document.Kind) ([]document.Document, error) {
	switch kind {
	case document.KindReceipt:
		return findHeaders[models.ReceiptModel](query)
	case document.KindDelivery:
		return findHeaders[models.DeliveryModel](query)
	case document.KindTransfer:
		return findHeaders[models.TransferModel](query)
	case document.KindAdjustment:
		return findHeaders[models.AdjustmentModel](query)
	}
	return nil, shared.NewValidationError("unknown document type %q", kind)
}

func (r *GormDocumentRepository) attachLines(ctx context.Context, kind document.Kind, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}

	query := r.db.WithContext(ctx).Where("document_id IN ?", ids).Order("document_id ASC, line_no ASC")
	var (
		lines []document.Line
		err   error
	)
	switch kind {
	case document.KindReceipt:
		lines, err = findLines[models.ReceiptLineModel](query)
	case document.KindDelivery:
		lines, err = findLines[models.DeliveryLineModel](query)
	case document.KindTransfer:
		lines, err = findLines[models.TransferLineModel](query)
	case document.KindAdjustment:
		lines, err = findLines[models.AdjustmentLineModel](query)
	}
	if err != nil {
		return fmt.Errorf("load %s lines: %w", kind, err)
	}

	byDoc := make(map[uuid.UUID][]document.Line, len(docs))
	for _, l := range lines {
		byDoc[l.DocumentID] = append(byDoc[l.DocumentID], l)
	}
	for i := range docs {
		docs[i].Lines = byDoc[docs[i].ID]
		if docs[i].Lines == nil {
			docs[i].Lines = []document.Line{}
		}
	}
	return nil
}

func findHeaders[T models.DocumentHeader](query *gorm.DB) ([]document.Document, error) {
	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load document headers: %w", err)
	}
	out := make([]document.Document, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

func findLines[T models.DocumentLine](query *gorm.DB) ([]document.Line, error) {
	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]document.Line, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Ensure GormDocumentRepository implements document.Repository
var _ document.Repository = (*GormDocumentRepository)(nil)
