package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	productID := uuid.New()
	warehouseID := uuid.New()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.NewNotFoundError("delivery", uuid.New()), http.StatusNotFound, "ERR_NOT_FOUND"},
		{"validation", shared.NewValidationError("items[0]: quantity must be positive"), http.StatusBadRequest, "ERR_VALIDATION"},
		{"invalid state", shared.NewInvalidStateError("document is done"), http.StatusUnprocessableEntity, "ERR_INVALID_STATE"},
		{"wrapped domain error", fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound, "ERR_NOT_FOUND"},
		{
			"insufficient stock",
			&stock.InsufficientStockError{WarehouseID: warehouseID, Items: []stock.Shortfall{
				{ProductID: productID, Available: 3, Requested: 5, Shortfall: 2},
			}},
			http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_STOCK",
		},
		{
			"negative stock",
			&stock.NegativeStockError{ProductID: productID, WarehouseID: warehouseID, Current: 1, Delta: -4},
			http.StatusUnprocessableEntity, "ERR_NEGATIVE_STOCK",
		},
		{
			"partial posting",
			&document.PartialPostingError{DocumentID: uuid.New(), Number: "TRF-1-ABCDEF"},
			http.StatusConflict, "ERR_PARTIAL_POSTING",
		},
		{
			"concurrency conflict",
			&stock.ConcurrencyConflictError{Keys: []stock.Key{{ProductID: productID, WarehouseID: warehouseID}}, Attempts: 3},
			http.StatusServiceUnavailable, "ERR_CONCURRENCY_CONFLICT",
		},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter()
			r.GET("/err", func(c *gin.Context) {
				var h BaseHandler
				h.HandleError(c, tt.err)
			})

			w := doJSON(r, http.MethodGet, "/err", nil)
			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestHandleError_Details(t *testing.T) {
	productID := uuid.New()
	r := newTestRouter()
	r.GET("/err", func(c *gin.Context) {
		var h BaseHandler
		h.HandleError(c, fmt.Errorf("create delivery: %w", &stock.InsufficientStockError{
			WarehouseID: uuid.New(),
			Items: []stock.Shortfall{
				{ProductID: productID, ProductName: "Widget", SKU: "W-1", Available: 3, Requested: 5, Shortfall: 2},
			},
		}))
	})

	w := doJSON(r, http.MethodGet, "/err", nil)
	resp := decode(t, w)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	items := details["items"].([]any)
	require.Len(t, items, 1)
	row := items[0].(map[string]any)
	assert.Equal(t, productID.String(), row["product_id"])
	assert.Equal(t, float64(2), row["shortfall"])
	assert.Contains(t, resp.Error.Message, "Widget (W-1): available 3, requested 5, short 2")
}

func TestHandleError_ConflictIsRetryable(t *testing.T) {
	r := newTestRouter()
	r.GET("/err", func(c *gin.Context) {
		var h BaseHandler
		h.HandleError(c, &stock.ConcurrencyConflictError{Attempts: 5})
	})

	w := doJSON(r, http.MethodGet, "/err", nil)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestHandleError_Nil(t *testing.T) {
	r := newTestRouter()
	r.GET("/err", func(c *gin.Context) {
		var h BaseHandler
		h.HandleError(c, nil)
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodGet, "/err", nil).Code)
}
