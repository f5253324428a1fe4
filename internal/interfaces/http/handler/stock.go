package handler

import (
	"context"

	docapp "github.com/erp/inventory-engine/internal/application/document"
	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StockQueries is the read side of the engine used by StockHandler
type StockQueries interface {
	GetAvailability(ctx context.Context, productID, warehouseID uuid.UUID, quantity int64) (appstock.Availability, error)
	CheckAvailability(ctx context.Context, warehouseID uuid.UUID, items []stock.Item) (appstock.BatchResult, error)
	GetHistory(ctx context.Context, filter stock.HistoryFilter, limit int) ([]docapp.HistoryEntry, error)
	Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*stock.Reconciliation, error)
}

// InitialStockPoster seeds opening quantities
type InitialStockPoster interface {
	PostInitialStock(ctx context.Context, in docapp.InitialStockInput) (*docapp.HistoryEntry, error)
}

// AlertProvider computes low stock alerts
type AlertProvider interface {
	StockAlerts(ctx context.Context, filter appstock.AlertFilter) ([]appstock.StockAlert, error)
}

// StockHandler serves availability, ledger history, alerts, reconciliation
// and opening stock
type StockHandler struct {
	BaseHandler
	queries StockQueries
	alerts  AlertProvider
	initial InitialStockPoster
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(queries StockQueries, alerts AlertProvider, initial InitialStockPoster) *StockHandler {
	return &StockHandler{queries: queries, alerts: alerts, initial: initial}
}

// GetAvailability godoc
// @ID           getStockAvailability
// @Summary      Check availability of one product
// @Description  Available quantity is on hand minus reserved
// @Tags         stock
// @Produce      json
// @Param        product_id query string true "Product ID" format(uuid)
// @Param        warehouse_id query string true "Warehouse ID" format(uuid)
// @Param        quantity query int true "Requested quantity" minimum(1)
// @Success      200 {object} APIResponse[appstock.Availability]
// @Failure      400 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/availability [get]
func (h *StockHandler) GetAvailability(c *gin.Context) {
	var query AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.queries.GetAvailability(c.Request.Context(),
		parseOptionalUUID(query.ProductID), parseOptionalUUID(query.WarehouseID), query.Quantity)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// CheckAvailability godoc
// @ID           checkStockAvailability
// @Summary      Check availability of several products
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body CheckAvailabilityRequest true "Items to check"
// @Success      200 {object} APIResponse[appstock.BatchResult]
// @Failure      400 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/availability [post]
func (h *StockHandler) CheckAvailability(c *gin.Context) {
	var req CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.queries.CheckAvailability(c.Request.Context(), parseOptionalUUID(req.WarehouseID), req.items())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// GetHistory godoc
// @ID           getStockHistory
// @Summary      Ledger history
// @Description  Ledger entries newest first with product and warehouse names
// @Tags         stock
// @Produce      json
// @Param        product_id query string false "Product ID" format(uuid)
// @Param        warehouse_id query string false "Warehouse ID" format(uuid)
// @Param        transaction_type query string false "Transaction type" Enums(receipt, delivery, transfer_in, transfer_out, adjustment, initial_stock)
// @Param        transaction_id query string false "Document ID" format(uuid)
// @Param        limit query int false "Maximum entries" default(100)
// @Success      200 {object} APIResponse[[]docapp.HistoryEntry]
// @Failure      400 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/history [get]
func (h *StockHandler) GetHistory(c *gin.Context) {
	var query HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	filter, ok := query.Filter()
	if !ok {
		h.BadRequest(c, "Unknown transaction_type: "+query.TransactionType)
		return
	}

	entries, err := h.queries.GetHistory(c.Request.Context(), filter, query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, entries)
}

// GetAlerts godoc
// @ID           getStockAlerts
// @Summary      Low stock alerts
// @Description  Balances at or below their reorder level, errors first
// @Tags         stock
// @Produce      json
// @Param        type query string false "Alert type" Enums(low_stock, critical, out_of_stock)
// @Param        warehouse_id query string false "Warehouse ID" format(uuid)
// @Success      200 {object} APIResponse[[]appstock.StockAlert]
// @Failure      400 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/alerts [get]
func (h *StockHandler) GetAlerts(c *gin.Context) {
	var filter appstock.AlertFilter
	if raw := c.Query("type"); raw != "" {
		t := appstock.AlertType(raw)
		if !t.IsValid() {
			h.BadRequest(c, "Unknown alert type: "+raw)
			return
		}
		filter.Type = &t
	}
	warehouseID, ok := h.parseUUIDQuery(c, "warehouse_id")
	if !ok {
		return
	}
	filter.WarehouseID = warehouseID

	alerts, err := h.alerts.StockAlerts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, alerts)
}

// Reconcile godoc
// @ID           reconcileStockBalance
// @Summary      Reconcile a balance with its ledger
// @Description  Replays the ledger chain of one product in one warehouse and compares it with the live quantity
// @Tags         stock
// @Produce      json
// @Param        product_id path string true "Product ID" format(uuid)
// @Param        warehouse_id path string true "Warehouse ID" format(uuid)
// @Success      200 {object} APIResponse[stock.Reconciliation]
// @Failure      400 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/balances/{product_id}/{warehouse_id}/reconcile [get]
func (h *StockHandler) Reconcile(c *gin.Context) {
	productID, ok := h.parseUUIDParam(c, "product_id")
	if !ok {
		return
	}
	warehouseID, ok := h.parseUUIDParam(c, "warehouse_id")
	if !ok {
		return
	}

	report, err := h.queries.Reconcile(c.Request.Context(), productID, warehouseID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}

// PostInitialStock godoc
// @ID           postInitialStock
// @Summary      Post the opening quantity of a product
// @Description  Books an initial_stock ledger entry. Each product and warehouse accepts one.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Param        request body InitialStockRequest true "Opening quantity"
// @Success      201 {object} APIResponse[docapp.HistoryEntry]
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Failure      422 {object} dto.ErrorResponse
// @Security     BearerAuth
// @Router       /stock/initial [post]
func (h *StockHandler) PostInitialStock(c *gin.Context) {
	var req InitialStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	entry, err := h.initial.PostInitialStock(c.Request.Context(), req.input())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, entry)
}
