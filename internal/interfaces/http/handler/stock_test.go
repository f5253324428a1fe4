package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	docapp "github.com/erp/inventory-engine/internal/application/document"
	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStockQueries struct {
	mock.Mock
}

func (m *MockStockQueries) GetAvailability(ctx context.Context, productID, warehouseID uuid.UUID, quantity int64) (appstock.Availability, error) {
	args := m.Called(ctx, productID, warehouseID, quantity)
	return args.Get(0).(appstock.Availability), args.Error(1)
}

func (m *MockStockQueries) CheckAvailability(ctx context.Context, warehouseID uuid.UUID, items []stock.Item) (appstock.BatchResult, error) {
	args := m.Called(ctx, warehouseID, items)
	return args.Get(0).(appstock.BatchResult), args.Error(1)
}

func (m *MockStockQueries) GetHistory(ctx context.Context, filter stock.HistoryFilter, limit int) ([]docapp.HistoryEntry, error) {
	args := m.Called(ctx, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]docapp.HistoryEntry), args.Error(1)
}

func (m *MockStockQueries) Reconcile(ctx context.Context, productID, warehouseID uuid.UUID) (*stock.Reconciliation, error) {
	args := m.Called(ctx, productID, warehouseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Reconciliation), args.Error(1)
}

type MockAlertProvider struct {
	mock.Mock
}

func (m *MockAlertProvider) StockAlerts(ctx context.Context, filter appstock.AlertFilter) ([]appstock.StockAlert, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]appstock.StockAlert), args.Error(1)
}

type MockInitialStockPoster struct {
	mock.Mock
}

func (m *MockInitialStockPoster) PostInitialStock(ctx context.Context, in docapp.InitialStockInput) (*docapp.HistoryEntry, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docapp.HistoryEntry), args.Error(1)
}

func newStockRouter(queries *MockStockQueries, alerts *MockAlertProvider) *gin.Engine {
	return newStockRouterWithPoster(queries, alerts, nil)
}

func newStockRouterWithPoster(queries *MockStockQueries, alerts *MockAlertProvider, initial *MockInitialStockPoster) *gin.Engine {
	h := NewStockHandler(queries, alerts, initial)
	r := newTestRouter()
	g := r.Group("/api/v1/stock")
	g.GET("/availability", h.GetAvailability)
	g.POST("/availability", h.CheckAvailability)
	g.GET("/history", h.GetHistory)
	g.GET("/alerts", h.GetAlerts)
	g.GET("/balances/:product_id/:warehouse_id/reconcile", h.Reconcile)
	g.POST("/initial", h.PostInitialStock)
	return r
}

func TestStockHandler_GetAvailability(t *testing.T) {
	t.Run("returns the availability row", func(t *testing.T) {
		queries := new(MockStockQueries)
		productID, warehouseID := uuid.New(), uuid.New()
		queries.On("GetAvailability", mock.Anything, productID, warehouseID, int64(7)).Return(appstock.Availability{
			ProductID: productID, WarehouseID: warehouseID,
			IsAvailable: false, AvailableQuantity: 5, RequestedQuantity: 7, Shortfall: 2,
		}, nil)

		w := doJSON(newStockRouter(queries, nil), http.MethodGet,
			"/api/v1/stock/availability?product_id="+productID.String()+"&warehouse_id="+warehouseID.String()+"&quantity=7", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := dataMap(t, decode(t, w))
		assert.Equal(t, false, data["is_available"])
		assert.Equal(t, float64(2), data["shortfall"])
	})

	t.Run("quantity must be positive", func(t *testing.T) {
		queries := new(MockStockQueries)
		w := doJSON(newStockRouter(queries, nil), http.MethodGet,
			"/api/v1/stock/availability?product_id="+uuid.NewString()+"&warehouse_id="+uuid.NewString()+"&quantity=0", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		queries.AssertNotCalled(t, "GetAvailability", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestStockHandler_CheckAvailability(t *testing.T) {
	queries := new(MockStockQueries)
	warehouseID, p1 := uuid.New(), uuid.New()
	items := []stock.Item{{ProductID: p1, Quantity: 2}, {ProductID: p1, Quantity: 3}}
	queries.On("CheckAvailability", mock.Anything, warehouseID, items).Return(appstock.BatchResult{
		AllAvailable:     true,
		UnavailableItems: []appstock.Availability{},
		AvailableItems:   []appstock.Availability{{ProductID: p1, IsAvailable: true}, {ProductID: p1, IsAvailable: true}},
	}, nil)

	w := doJSON(newStockRouter(queries, nil), http.MethodPost, "/api/v1/stock/availability", map[string]any{
		"warehouse_id": warehouseID.String(),
		"items": []map[string]any{
			{"product_id": p1.String(), "quantity": 2},
			{"product_id": p1.String(), "quantity": 3},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decode(t, w))
	assert.Equal(t, true, data["all_available"])
	assert.Len(t, data["available_items"], 2)
	queries.AssertExpectations(t)
}

func TestStockHandler_GetHistory(t *testing.T) {
	t.Run("passes filters and limit", func(t *testing.T) {
		queries := new(MockStockQueries)
		productID := uuid.New()
		queries.On("GetHistory", mock.Anything, mock.MatchedBy(func(f stock.HistoryFilter) bool {
			return f.ProductID != nil && *f.ProductID == productID &&
				f.WarehouseID == nil &&
				f.TransactionType != nil && *f.TransactionType == stock.TransactionTypeTransferIn
		}), 25).Return([]docapp.HistoryEntry{{
			ProductID:       productID,
			TransactionType: stock.TransactionTypeTransferIn,
			TypeLabel:       "Transfer In",
			QuantityChange:  4,
		}}, nil)

		w := doJSON(newStockRouter(queries, nil), http.MethodGet,
			"/api/v1/stock/history?product_id="+productID.String()+"&transaction_type=transfer_in&limit=25", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		rows := decode(t, w).Data.([]any)
		require.Len(t, rows, 1)
		assert.Equal(t, "Transfer In", rows[0].(map[string]any)["type_label"])
	})

	t.Run("unknown transaction type", func(t *testing.T) {
		queries := new(MockStockQueries)
		w := doJSON(newStockRouter(queries, nil), http.MethodGet, "/api/v1/stock/history?transaction_type=sale", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		queries.AssertNotCalled(t, "GetHistory", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("storage failure", func(t *testing.T) {
		queries := new(MockStockQueries)
		queries.On("GetHistory", mock.Anything, stock.HistoryFilter{}, 0).Return(nil, errors.New("connection refused"))

		w := doJSON(newStockRouter(queries, nil), http.MethodGet, "/api/v1/stock/history", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestStockHandler_GetAlerts(t *testing.T) {
	t.Run("filters by type and warehouse", func(t *testing.T) {
		alerts := new(MockAlertProvider)
		warehouseID := uuid.New()
		alerts.On("StockAlerts", mock.Anything, mock.MatchedBy(func(f appstock.AlertFilter) bool {
			return f.Type != nil && *f.Type == appstock.AlertCritical &&
				f.WarehouseID != nil && *f.WarehouseID == warehouseID
		})).Return([]appstock.StockAlert{{
			WarehouseID: warehouseID, AlertType: appstock.AlertCritical, Severity: appstock.SeverityError,
			AvailableStock: 2, ReorderLevel: 10,
		}}, nil)

		w := doJSON(newStockRouter(nil, alerts), http.MethodGet,
			"/api/v1/stock/alerts?type=critical&warehouse_id="+warehouseID.String(), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		rows := decode(t, w).Data.([]any)
		require.Len(t, rows, 1)
		assert.Equal(t, "error", rows[0].(map[string]any)["severity"])
	})

	t.Run("rejects unknown types", func(t *testing.T) {
		w := doJSON(newStockRouter(nil, new(MockAlertProvider)), http.MethodGet, "/api/v1/stock/alerts?type=overstock", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed warehouse", func(t *testing.T) {
		w := doJSON(newStockRouter(nil, new(MockAlertProvider)), http.MethodGet, "/api/v1/stock/alerts?warehouse_id=main", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStockHandler_Reconcile(t *testing.T) {
	queries := new(MockStockQueries)
	productID, warehouseID := uuid.New(), uuid.New()
	queries.On("Reconcile", mock.Anything, productID, warehouseID).Return(&stock.Reconciliation{
		ProductID: productID, WarehouseID: warehouseID,
		Entries: 3, Replayed: 12, Live: 12, Consistent: true,
	}, nil)

	w := doJSON(newStockRouter(queries, nil), http.MethodGet,
		"/api/v1/stock/balances/"+productID.String()+"/"+warehouseID.String()+"/reconcile", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decode(t, w))
	assert.Equal(t, true, data["consistent"])
	assert.Equal(t, float64(12), data["replayed_quantity"])
}

func TestStockHandler_PostInitialStock(t *testing.T) {
	t.Run("posts the opening quantity", func(t *testing.T) {
		initial := new(MockInitialStockPoster)
		productID, warehouseID := uuid.New(), uuid.New()
		in := docapp.InitialStockInput{ProductID: productID, WarehouseID: warehouseID, Quantity: 40}
		initial.On("PostInitialStock", mock.Anything, in).Return(&docapp.HistoryEntry{
			ProductID: productID, WarehouseID: warehouseID,
			TransactionType: stock.TransactionTypeInitialStock, TypeLabel: "Initial Stock",
			TransactionID: productID, QuantityChange: 40, QuantityAfter: 40,
			ReferenceNumber: "INITIAL", Notes: "Initial stock",
		}, nil)

		w := doJSON(newStockRouterWithPoster(nil, nil, initial), http.MethodPost, "/api/v1/stock/initial", map[string]any{
			"product_id":   productID.String(),
			"warehouse_id": warehouseID.String(),
			"quantity":     40,
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		data := dataMap(t, decode(t, w))
		assert.Equal(t, "initial_stock", data["transaction_type"])
		assert.Equal(t, "INITIAL", data["reference_number"])
		assert.Equal(t, float64(40), data["quantity_after"])
		initial.AssertExpectations(t)
	})

	t.Run("quantity must be positive", func(t *testing.T) {
		initial := new(MockInitialStockPoster)
		w := doJSON(newStockRouterWithPoster(nil, nil, initial), http.MethodPost, "/api/v1/stock/initial", map[string]any{
			"product_id":   uuid.NewString(),
			"warehouse_id": uuid.NewString(),
			"quantity":     0,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		initial.AssertNotCalled(t, "PostInitialStock", mock.Anything, mock.Anything)
	})

	t.Run("second posting for the key", func(t *testing.T) {
		initial := new(MockInitialStockPoster)
		initial.On("PostInitialStock", mock.Anything, mock.Anything).
			Return(nil, shared.NewInvalidStateError("initial stock is already posted"))

		w := doJSON(newStockRouterWithPoster(nil, nil, initial), http.MethodPost, "/api/v1/stock/initial", map[string]any{
			"product_id":   uuid.NewString(),
			"warehouse_id": uuid.NewString(),
			"quantity":     5,
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
