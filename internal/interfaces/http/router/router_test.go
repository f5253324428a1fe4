package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	docapp "github.com/erp/inventory-engine/internal/application/document"
	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/erp/inventory-engine/internal/interfaces/http/handler"
	"github.com/erp/inventory-engine/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	assert.Equal(t, "v2", NewRouter(gin.New(), WithAPIVersion("v2")).apiVersion)
}

func TestDomainGroup(t *testing.T) {
	t.Run("routes land under the version and group prefix", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("stock", "/stock")
		g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		g.Group("documents", "/documents").PUT("/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) })

		r := NewRouter(engine)
		r.Register(g)
		r.Setup()

		w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/stock/ping", nil))
		assert.Equal(t, "pong", w.Body.String())

		w = serve(engine, httptest.NewRequest(http.MethodPut, "/api/v1/stock/documents/7", nil))
		assert.Equal(t, "7", w.Body.String())
	})

	t.Run("group middleware runs before the handlers", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("stock", "/stock").Use(func(c *gin.Context) {
			c.Header("X-Group", "stock")
			c.Next()
		})
		g.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/stock/x", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "stock", w.Header().Get("X-Group"))
	})

	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("stock", "/stock")
		assert.Equal(t, "stock", g.Name())
		assert.Equal(t, "/stock", g.Prefix())
	})
}

type stubEngine struct{}

func (stubEngine) CreateDocument(ctx context.Context, in docapp.CreateInput) (*document.Document, error) {
	actor, err := shared.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	return document.New(in.Kind, in.Header, in.Lines, actor)
}

func (stubEngine) UpdateDocument(context.Context, document.Kind, uuid.UUID, docapp.UpdateInput) (*document.Document, error) {
	return nil, shared.ErrNotFound
}

func (stubEngine) ValidateDocument(context.Context, document.Kind, uuid.UUID) (*document.Document, error) {
	return nil, shared.ErrNotFound
}

func (stubEngine) CancelDocument(context.Context, document.Kind, uuid.UUID) (*document.Document, error) {
	return nil, shared.ErrNotFound
}

func (stubEngine) GetDocument(context.Context, document.Kind, uuid.UUID) (*document.Document, error) {
	return nil, shared.ErrNotFound
}

func (stubEngine) ListDocuments(_ context.Context, _ document.Kind, f document.ListFilter) (shared.Paginated[document.Document], error) {
	return shared.NewPaginated([]document.Document{}, 0, f.Page, f.PageSize), nil
}

func (stubEngine) GetAvailability(_ context.Context, p, w uuid.UUID, q int64) (appstock.Availability, error) {
	return appstock.Availability{ProductID: p, WarehouseID: w, RequestedQuantity: q}, nil
}

func (stubEngine) CheckAvailability(context.Context, uuid.UUID, []stock.Item) (appstock.BatchResult, error) {
	return appstock.BatchResult{AllAvailable: true}, nil
}

func (stubEngine) GetHistory(context.Context, stock.HistoryFilter, int) ([]docapp.HistoryEntry, error) {
	return []docapp.HistoryEntry{}, nil
}

func (stubEngine) Reconcile(_ context.Context, p, w uuid.UUID) (*stock.Reconciliation, error) {
	return &stock.Reconciliation{ProductID: p, WarehouseID: w, Consistent: true}, nil
}

func (stubEngine) StockAlerts(context.Context, appstock.AlertFilter) ([]appstock.StockAlert, error) {
	return []appstock.StockAlert{}, nil
}

func (stubEngine) PostInitialStock(_ context.Context, in docapp.InitialStockInput) (*docapp.HistoryEntry, error) {
	return &docapp.HistoryEntry{ProductID: in.ProductID, WarehouseID: in.WarehouseID, QuantityChange: in.Quantity}, nil
}

func newTestEngine(cfg Config) *gin.Engine {
	return New(cfg, Handlers{
		Documents: handler.NewDocumentHandler(stubEngine{}),
		Stock:     handler.NewStockHandler(stubEngine{}, stubEngine{}, stubEngine{}),
		System:    handler.NewSystemHandler("test", nil),
	})
}

func TestNew_Routes(t *testing.T) {
	engine := newTestEngine(Config{})

	registered := make(map[string]bool)
	for _, r := range engine.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/stock/documents/:kind",
		"GET /api/v1/stock/documents/:kind",
		"GET /api/v1/stock/documents/:kind/:id",
		"PUT /api/v1/stock/documents/:kind/:id",
		"POST /api/v1/stock/documents/:kind/:id/validate",
		"POST /api/v1/stock/documents/:kind/:id/cancel",
		"GET /api/v1/stock/availability",
		"POST /api/v1/stock/availability",
		"GET /api/v1/stock/history",
		"GET /api/v1/stock/alerts",
		"GET /api/v1/stock/balances/:product_id/:warehouse_id/reconcile",
		"POST /api/v1/stock/initial",
		"GET /health",
		"GET /api/v1/ping",
		"GET /swagger/*any",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestNew_Middleware(t *testing.T) {
	t.Run("health has request ID and security headers", func(t *testing.T) {
		w := serve(newTestEngine(Config{}), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("swagger is hidden unless enabled", func(t *testing.T) {
		w := serve(newTestEngine(Config{}), httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("mutations need an actor", func(t *testing.T) {
		engine := newTestEngine(Config{})
		body := `{"warehouse_id":"` + uuid.NewString() + `","items":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`

		req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/documents/receipts", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, serve(engine, req).Code)

		req = httptest.NewRequest(http.MethodPost, "/api/v1/stock/documents/receipts", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.ActorIDHeader, uuid.NewString())
		assert.Equal(t, http.StatusCreated, serve(engine, req).Code)
	})

	t.Run("required auth rejects anonymous API calls but not health", func(t *testing.T) {
		engine := newTestEngine(Config{Auth: middleware.ActorAuthConfig{Required: true}})

		w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/stock/alerts", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("oversized bodies are refused", func(t *testing.T) {
		engine := newTestEngine(Config{MaxBodySize: 16})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/availability",
			strings.NewReader(`{"warehouse_id":"`+uuid.NewString()+`"}`))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusRequestEntityTooLarge, serve(engine, req).Code)
	})
}
