package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const spanService = "stock_document"

// DocumentService drives receipts, deliveries, transfers and adjustments
// through their lifecycle. It never writes balances itself: reservations go
// through the ReservationManager and postings through the BalanceStore.
type DocumentService struct {
	scope        appstock.TransactionScope
	docs         document.Repository
	balances     *appstock.BalanceStore
	reservations *appstock.ReservationManager
	checker      *appstock.AvailabilityChecker
	ledger       *appstock.LedgerStore
	registry     catalog.Registry
	locker       appstock.KeyLocker
	opts         appstock.Options
	logger       *zap.Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(
	scope appstock.TransactionScope,
	docs document.Repository,
	balances *appstock.BalanceStore,
	reservations *appstock.ReservationManager,
	checker *appstock.AvailabilityChecker,
	ledger *appstock.LedgerStore,
	registry catalog.Registry,
	locker appstock.KeyLocker,
	opts appstock.Options,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		scope:        scope,
		docs:         docs,
		balances:     balances,
		reservations: reservations,
		checker:      checker,
		ledger:       ledger,
		registry:     registry,
		locker:       locker,
		opts:         opts.WithDefaults(),
		logger:       logger,
	}
}

// CreateDocument saves a new draft. Outbound documents reserve their lines
// in the same transaction, or fail with InsufficientStockError and save
// nothing. Adjustment lines snapshot the on-hand quantity at save time.
func (s *DocumentService) CreateDocument(ctx context.Context, in CreateInput) (*document.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentKind, in.Kind.String(),
		telemetry.SpanAttrLineCount, len(in.Lines),
	)

	var doc *document.Document
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.StockOperationLabels(telemetry.OperationCreateDocument, in.Kind.String()), func(c context.Context) {
		actor, err := shared.RequireActor(c)
		if err != nil {
			opErr = err
			return
		}
		doc, err = document.New(in.Kind, in.Header, in.Lines, actor)
		if err != nil {
			opErr = err
			return
		}
		if err := s.resolveReferences(c, doc); err != nil {
			opErr = err
			return
		}
		if doc.Kind == document.KindAdjustment {
			if err := s.snapshot(c, doc); err != nil {
				opErr = err
				return
			}
		}

		persist := func(repos appstock.TransactionalRepositories) error {
			return repos.DocumentRepo().Create(c, doc)
		}
		if doc.Kind.IsOutbound() {
			opErr = s.reservations.ReserveAll(c, allocationOf(doc), persist)
		} else {
			opErr = s.scope.Execute(c, persist)
		}
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.logRejected("create", in.Kind, uuid.Nil, opErr)
		return nil, opErr
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentID, doc.ID.String(),
		telemetry.SpanAttrDocumentNumber, doc.Number,
	)
	s.logger.Info("document created",
		zap.String("kind", doc.Kind.String()),
		zap.String("document_id", doc.ID.String()),
		zap.String("number", doc.Number),
		zap.Int("lines", len(doc.Lines)),
	)
	return doc, nil
}

// UpdateDocument edits a non-terminal document. Line replacement on an
// outbound document releases the old reservation against the original
// warehouse before checking and reserving the new lines against the target
// warehouse. A validated document only accepts a bare re-submission of
// status done, which is a no-op.
func (s *DocumentService) UpdateDocument(ctx context.Context, kind document.Kind, id uuid.UUID, in UpdateInput) (*document.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "update")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentKind, kind.String(),
		telemetry.SpanAttrDocumentID, id.String(),
	)

	var doc *document.Document
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.StockOperationLabels(telemetry.OperationUpdateDocument, kind.String()), func(c context.Context) {
		doc, opErr = s.update(c, kind, id, in)
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.logRejected("update", kind, id, opErr)
		return nil, opErr
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrDocumentStatus, doc.Status.String())
	return doc, nil
}

func (s *DocumentService) update(ctx context.Context, kind document.Kind, id uuid.UUID, in UpdateInput) (*document.Document, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.IsValid() {
		return nil, shared.NewValidationError("invalid status %q", *in.Status)
	}
	unlock, err := s.lockDocument(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.docs.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if doc.IsDone() && in.Status != nil && *in.Status == document.StatusDone && !in.changesContent() {
		return doc, nil
	}
	if err := doc.EditableCheck(); err != nil {
		return nil, err
	}
	if in.changesContent() && doc.HasPostedLines() {
		return nil, shared.NewInvalidStateError(
			"%s %s is partially posted; only validation can complete it", kind.Label(), doc.Number)
	}

	if in.changesContent() || (in.Status != nil && !in.Status.IsTerminal()) {
		doc, err = s.edit(ctx, doc, in)
		if err != nil {
			return nil, err
		}
	}

	if in.Status == nil {
		return doc, nil
	}
	switch *in.Status {
	case document.StatusDone:
		return s.validate(ctx, doc, actor)
	case document.StatusCanceled:
		return s.cancel(ctx, doc)
	}
	return doc, nil
}

// edit applies header, lines and non-terminal status changes and persists
// them together with the reservation change
func (s *DocumentService) edit(ctx context.Context, doc *document.Document, in UpdateInput) (*document.Document, error) {
	next := *doc
	next.Lines = append([]document.Line(nil), doc.Lines...)

	if !in.Header.IsEmpty() {
		if err := next.ApplyHeaderPatch(in.Header); err != nil {
			return nil, err
		}
	}
	linesChanged := in.Lines != nil
	if linesChanged {
		if len(in.Lines) == 0 {
			return nil, shared.NewValidationError("Warehouse and items are required")
		}
		if err := document.ValidateLines(next.Kind, in.Lines); err != nil {
			return nil, err
		}
		next.Lines = document.BuildLines(next.ID, next.Kind, in.Lines)
	}
	if in.Status != nil && !in.Status.IsTerminal() {
		if err := next.SetStatus(*in.Status); err != nil {
			return nil, err
		}
	}
	if err := s.resolveReferences(ctx, &next); err != nil {
		return nil, err
	}

	warehouseChanged := next.WarehouseID != doc.WarehouseID
	if next.Kind == document.KindAdjustment && (linesChanged || warehouseChanged) {
		if err := s.snapshot(ctx, &next); err != nil {
			return nil, err
		}
		linesChanged = true
	}
	next.Touch()

	persist := func(repos appstock.TransactionalRepositories) error {
		if err := repos.DocumentRepo().Update(ctx, &next); err != nil {
			return err
		}
		if linesChanged {
			return repos.DocumentRepo().ReplaceLines(ctx, &next)
		}
		return nil
	}

	var err error
	if next.Kind.IsOutbound() && (linesChanged || warehouseChanged) {
		err = s.reservations.Replace(ctx, allocationOf(doc), allocationOf(&next), persist)
	} else {
		err = s.scope.Execute(ctx, persist)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("document updated",
		zap.String("kind", next.Kind.String()),
		zap.String("document_id", next.ID.String()),
		zap.Bool("lines_replaced", linesChanged),
		zap.Bool("warehouse_changed", warehouseChanged),
		zap.String("status", next.Status.String()),
	)
	return &next, nil
}

// ValidateDocument posts every pending leg of a document and moves it to
// done. Outbound documents are re-checked first against current balances,
// crediting their own reservation; a failed re-check rejects the whole
// transition before anything is posted.
//
// Each leg posts in its own transaction together with its posted marker. If
// some legs fail, the posted ones stay posted, the document stays open and
// a PartialPostingError lists both sides. Validating again resumes with the
// failed legs. Validating a done document is a no-op.
func (s *DocumentService) ValidateDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "validate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentKind, kind.String(),
		telemetry.SpanAttrDocumentID, id.String(),
	)

	var doc *document.Document
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.StockOperationLabels(telemetry.OperationValidateDocument, kind.String()), func(c context.Context) {
		actor, err := shared.RequireActor(c)
		if err != nil {
			opErr = err
			return
		}
		unlock, err := s.lockDocument(c, kind, id)
		if err != nil {
			opErr = err
			return
		}
		defer unlock()

		current, err := s.docs.FindByID(c, kind, id)
		if err != nil {
			opErr = err
			return
		}
		doc, opErr = s.validate(c, current, actor)
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.logRejected("validate", kind, id, opErr)
		return nil, opErr
	}
	return doc, nil
}

func (s *DocumentService) validate(ctx context.Context, doc *document.Document, actor uuid.UUID) (*document.Document, error) {
	span := telemetry.SpanFromContext(ctx)
	if doc.IsDone() {
		s.logger.Debug("document already validated",
			zap.String("document_id", doc.ID.String()),
			zap.String("number", doc.Number),
		)
		return doc, nil
	}
	if doc.Status == document.StatusCanceled {
		return nil, shared.NewInvalidStateError("Cannot validate canceled %s", doc.Kind.Label())
	}

	if doc.Kind.IsOutbound() {
		pending := document.OutboundItems(doc.Lines)
		if len(pending) > 0 {
			if err := s.reservations.Check(ctx, doc.SourceWarehouse(), pending, doc.ReservedItems()); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now()
	var posted []document.PostingResult
	var failed []document.PostingFailure
	outboundFailed := make(map[uuid.UUID]bool)
	for _, p := range doc.PendingPostings() {
		if p.Inbound && outboundFailed[p.LineID] {
			failed = append(failed, document.PostingFailure{
				PostingResult: document.ResultOf(p),
				Reason:        "outbound leg did not post",
			})
			continue
		}
		if err := s.post(ctx, doc, p, actor, now); err != nil {
			if !p.Inbound {
				outboundFailed[p.LineID] = true
			}
			failed = append(failed, document.PostingFailure{
				PostingResult: document.ResultOf(p),
				Reason:        err.Error(),
				Err:           err,
			})
			s.logger.Warn("posting leg failed",
				zap.String("document_id", doc.ID.String()),
				zap.String("number", doc.Number),
				zap.String("key", p.Key().String()),
				zap.String("transaction_type", p.TransactionType.String()),
				zap.Error(err),
			)
			continue
		}
		posted = append(posted, document.ResultOf(p))
		telemetry.AddEvent(span, "leg_posted",
			telemetry.SpanAttrProductID, p.ProductID.String(),
			telemetry.SpanAttrWarehouseID, p.WarehouseID.String(),
			telemetry.SpanAttrTransactionType, p.TransactionType.String(),
			telemetry.SpanAttrQuantity, p.Change,
		)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPostedLegs, len(posted),
		telemetry.SpanAttrFailedLegs, len(failed),
	)

	if len(failed) > 0 {
		return nil, &document.PartialPostingError{
			DocumentID: doc.ID,
			Number:     doc.Number,
			Posted:     posted,
			Failed:     failed,
		}
	}

	doc.MarkDone(now)
	err := s.scope.Execute(ctx, func(repos appstock.TransactionalRepositories) error {
		return repos.DocumentRepo().Update(ctx, doc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize %s %s: %w", doc.Kind.Label(), doc.Number, err)
	}

	s.logger.Info("document validated",
		zap.String("kind", doc.Kind.String()),
		zap.String("document_id", doc.ID.String()),
		zap.String("number", doc.Number),
		zap.Int("legs_posted", len(posted)),
	)
	return s.docs.FindByID(ctx, doc.Kind, doc.ID)
}

// post writes one leg. A leg that an earlier attempt already marked is
// counted as posted.
func (s *DocumentService) post(ctx context.Context, doc *document.Document, p document.Posting, actor uuid.UUID, at time.Time) error {
	_, err := s.balances.Post(ctx, appstock.PostingRequest{
		Key:             p.Key(),
		TransactionType: p.TransactionType,
		Change:          p.Change,
		Release:         p.Release,
		TransactionID:   doc.ID,
		ReferenceNumber: doc.Number,
		Notes:           p.Notes,
		ActorID:         actor,
	}, func(repos appstock.TransactionalRepositories) error {
		return repos.DocumentRepo().MarkLinePosted(ctx, doc.Kind, p.LineID, p.Inbound, at)
	})
	if errors.Is(err, document.ErrLineAlreadyPosted) {
		return nil
	}
	return err
}

// CancelDocument moves a document without postings to canceled and hands
// back its reservation
func (s *DocumentService) CancelDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, spanService, "cancel")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentKind, kind.String(),
		telemetry.SpanAttrDocumentID, id.String(),
	)

	var doc *document.Document
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.StockOperationLabels(telemetry.OperationCancelDocument, kind.String()), func(c context.Context) {
		if _, err := shared.RequireActor(c); err != nil {
			opErr = err
			return
		}
		unlock, err := s.lockDocument(c, kind, id)
		if err != nil {
			opErr = err
			return
		}
		defer unlock()

		current, err := s.docs.FindByID(c, kind, id)
		if err != nil {
			opErr = err
			return
		}
		doc, opErr = s.cancel(c, current)
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		s.logRejected("cancel", kind, id, opErr)
		return nil, opErr
	}
	return doc, nil
}

func (s *DocumentService) cancel(ctx context.Context, doc *document.Document) (*document.Document, error) {
	held := allocationOf(doc)
	next := *doc
	if err := next.Cancel(); err != nil {
		return nil, err
	}

	persist := func(repos appstock.TransactionalRepositories) error {
		return repos.DocumentRepo().Update(ctx, &next)
	}
	var err error
	if next.Kind.IsOutbound() {
		err = s.reservations.ReleaseAll(ctx, held, persist)
	} else {
		err = s.scope.Execute(ctx, persist)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("document canceled",
		zap.String("kind", next.Kind.String()),
		zap.String("document_id", next.ID.String()),
		zap.String("number", next.Number),
	)
	return &next, nil
}

// GetDocument loads one document with its lines
func (s *DocumentService) GetDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error) {
	return s.docs.FindByID(ctx, kind, id)
}

// ListDocuments returns one page of documents of kind, newest first
func (s *DocumentService) ListDocuments(ctx context.Context, kind document.Kind, filter document.ListFilter) (shared.Paginated[document.Document], error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return shared.Paginated[document.Document]{}, shared.NewValidationError("invalid status %q", *filter.Status)
	}
	docs, total, err := s.docs.List(ctx, kind, filter)
	if err != nil {
		return shared.Paginated[document.Document]{}, fmt.Errorf("failed to list %s documents: %w", kind, err)
	}
	return shared.NewPaginated(docs, total, filter.Page, filter.PageSize), nil
}

// GetAvailability answers a single availability question
func (s *DocumentService) GetAvailability(ctx context.Context, productID, warehouseID uuid.UUID, quantity int64) (appstock.Availability, error) {
	return s.checker.Availability(ctx, productID, warehouseID, quantity)
}

// CheckAvailability evaluates a batch of items independently
func (s *DocumentService) CheckAvailability(ctx context.Context, warehouseID uuid.UUID, items []stock.Item) (appstock.BatchResult, error) {
	return s.checker.CheckBatch(ctx, items, warehouseID)
}

func (s *DocumentService) snapshot(ctx context.Context, doc *document.Document) error {
	onHand := make(map[uuid.UUID]int64, len(doc.Lines))
	for _, l := range doc.Lines {
		if _, ok := onHand[l.ProductID]; ok {
			continue
		}
		b, err := s.balances.Get(ctx, l.ProductID, doc.WarehouseID)
		if err != nil {
			return err
		}
		onHand[l.ProductID] = b.Quantity
	}
	document.SnapshotRecorded(doc.Lines, onHand)
	return nil
}

// resolveReferences rejects documents that point at unknown warehouses or
// products
func (s *DocumentService) resolveReferences(ctx context.Context, doc *document.Document) error {
	if s.registry == nil {
		return nil
	}
	warehouses := []uuid.UUID{doc.WarehouseID}
	if dst := doc.DestinationWarehouse(); dst != uuid.Nil {
		warehouses = append(warehouses, dst)
	}
	for _, id := range warehouses {
		if _, err := s.registry.ResolveWarehouse(ctx, id); err != nil {
			return err
		}
	}
	seen := make(map[uuid.UUID]bool, len(doc.Lines))
	for _, l := range doc.Lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		if _, err := s.registry.ResolveProduct(ctx, l.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func (s *DocumentService) lockDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWaitTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, fmt.Sprintf("document:%s:%s", kind, id))
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if lockCtx.Err() != nil {
		return nil, shared.NewDomainError(shared.ErrConcurrencyConflict.Code,
			fmt.Sprintf("%s %s is being modified by another request", kind.Label(), id))
	}
	return nil, fmt.Errorf("failed to lock document: %w", err)
}

func (s *DocumentService) logRejected(op string, kind document.Kind, id uuid.UUID, err error) {
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("kind", kind.String()),
		zap.Error(err),
	}
	if id != uuid.Nil {
		fields = append(fields, zap.String("document_id", id.String()))
	}
	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &domainErr),
		errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrPartialPosting),
		errors.Is(err, shared.ErrNegativeStock),
		errors.Is(err, shared.ErrConcurrencyConflict):
		s.logger.Warn("document operation rejected", fields...)
	default:
		s.logger.Error("document operation failed", fields...)
	}
}

// allocationOf is the reservation a document currently holds
func allocationOf(doc *document.Document) appstock.Allocation {
	return appstock.Allocation{
		WarehouseID: doc.SourceWarehouse(),
		Items:       doc.ReservedItems(),
	}
}
