package handler

import (
	"context"

	docapp "github.com/erp/inventory-engine/internal/application/document"
	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentEngine is the document lifecycle surface used by DocumentHandler
type DocumentEngine interface {
	CreateDocument(ctx context.Context, in docapp.CreateInput) (*document.Document, error)
	UpdateDocument(ctx context.Context, kind document.Kind, id uuid.UUID, in docapp.UpdateInput) (*document.Document, error)
	ValidateDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error)
	CancelDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error)
	GetDocument(ctx context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error)
	ListDocuments(ctx context.Context, kind document.Kind, filter document.ListFilter) (shared.Paginated[document.Document], error)
}

// DocumentHandler handles receipts, deliveries, transfers and adjustments.
// The kind comes from the :kind path segment in singular or plural form.
type DocumentHandler struct {
	BaseHandler
	engine DocumentEngine
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(engine DocumentEngine) *DocumentHandler {
	return &DocumentHandler{engine: engine}
}

func (h *DocumentHandler) kind(c *gin.Context) (document.Kind, bool) {
	kind, ok := document.ParseKind(c.Param("kind"))
	if !ok {
		h.NotFound(c, "Unknown document type: "+c.Param("kind"))
		return "", false
	}
	return kind, true
}

func (h *DocumentHandler) ref(c *gin.Context) (document.Kind, uuid.UUID, bool) {
	kind, ok := h.kind(c)
	if !ok {
		return "", uuid.Nil, false
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return "", uuid.Nil, false
	}
	return kind, id, true
}

// Create godoc
// @ID           createStockDocument
// @Summary      Create a stock document
// @Description  Create a draft document. Outbound kinds (deliveries, transfers) reserve stock at the source warehouse and fail with a per-item shortfall when stock is insufficient.
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        kind path string true "Document kind" Enums(receipts, deliveries, transfers, adjustments)
// @Param        request body CreateDocumentRequest true "Document"
// @Success      201 {object} APIResponse[DocumentResponse]
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Failure      503 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/documents/{kind} [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	doc, err := h.engine.CreateDocument(c.Request.Context(), docapp.CreateInput{
		Kind:   kind,
		Header: req.header(kind),
		Lines:  lineInputs(req.Items),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, ToDocumentResponse(doc))
}

// List godoc
// @ID           listStockDocuments
// @Summary      List stock documents
// @Description  List documents of one kind, newest first
// @Tags         documents
// @Produce      json
// @Param        kind path string true "Document kind" Enums(receipts, deliveries, transfers, adjustments)
// @Param        status query string false "Status" Enums(draft, waiting, ready, done, canceled)
// @Param        warehouse_id query string false "Warehouse (source or destination)" format(uuid)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Sort column" Enums(created_at, updated_at, validated_at, number, status) default(created_at)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc) default(desc)
// @Success      200 {object} APIResponse[[]DocumentResponse]
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/documents/{kind} [get]
func (h *DocumentHandler) List(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}

	var query ListDocumentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.engine.ListDocuments(c.Request.Context(), kind, query.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, ToDocumentResponses(page), page.Total, page.Page, page.PageSize)
}

// Get godoc
// @ID           getStockDocument
// @Summary      Get a stock document
// @Tags         documents
// @Produce      json
// @Param        kind path string true "Document kind" Enums(receipts, deliveries, transfers, adjustments)
// @Param        id path string true "Document ID" format(uuid)
// @Success      200 {object} APIResponse[DocumentResponse]
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/documents/{kind}/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	kind, id, ok := h.ref(c)
	if !ok {
		return
	}

	doc, err := h.engine.GetDocument(c.Request.Context(), kind, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ToDocumentResponse(doc))
}

// Update godoc
// @ID           updateStockDocument
// @Summary      Update a stock document
// @Description  Edit header fields and lines of a non-terminal document. Reservations of outbound documents follow the edit. Setting status to done validates the document; canceled cancels it.
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        kind path string true "Document kind" Enums(receipts, deliveries, transfers, adjustments)
// @Param        id path string true "Document ID" format(uuid)
// @Param        request body UpdateDocumentRequest true "Changes"
// @Success      200 {object} APIResponse[DocumentResponse]
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Failure      503 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/documents/{kind}/{id} [put]
func (h *DocumentHandler) Update(c *gin.Context) {
	kind, id, ok := h.ref(c)
	if !ok {
		return
	}

	var req UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	in := docapp.UpdateInput{
		Header: req.patch(kind),
		Lines:  lineInputs(req.Items),
	}
	if req.Status != nil {
		s := document.Status(*req.Status)
		in.Status = &s
	}

	doc, err := h.engine.UpdateDocument(c.Request.Context(), kind, id, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ToDocumentResponse(doc))
}

// Validate godoc
// @ID           validateStockDocument
// @Summary      Validate a stock document
// @Description  Post every unposted line to the ledger and mark the document done. A partial failure returns 409 with the posted and failed legs; calling validate again resumes with the failed ones.
// @Tags         documents
// @Produce      json
// @Param        kind path string true "Document kind" Enums(receipts, deliveries, transfers, adjustments)
// @Param        id path string true "Document ID" format(uuid)
// @Success      200 {object} APIResponse[DocumentResponse]
// @Failure      404 {object} dto.ErrorResponse
// @Failure      409 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Failure      503 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/documents/{kind}/{id}/validate [post]
func (h *DocumentHandler) Validate(c *gin.Context) {
	kind, id, ok := h.ref(c)
	if !ok {
		return
	}

	doc, err := h.engine.ValidateDocument(c.Request.Context(), kind, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ToDocumentResponse(doc))
}

// Cancel godoc
// @ID           cancelStockDocument
// @Summary      Cancel a stock document
// @Description  Cancel a non-terminal document and release its reservations
// @Tags         documents
// @Produce      json
// @Param        kind path string true "Document kind" Enums(receipts, deliveries, transfers, adjustments)
// @Param        id path string true "Document ID" format(uuid)
// @Success      200 {object} APIResponse[DocumentResponse]
// @Failure      404 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/documents/{kind}/{id}/cancel [post]
func (h *DocumentHandler) Cancel(c *gin.Context) {
	kind, id, ok := h.ref(c)
	if !ok {
		return
	}

	doc, err := h.engine.CancelDocument(c.Request.Context(), kind, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ToDocumentResponse(doc))
}
