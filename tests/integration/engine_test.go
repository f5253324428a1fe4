package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	docapp "github.com/erp/inventory-engine/internal/application/document"
	appstock "github.com/erp/inventory-engine/internal/application/stock"
	"github.com/erp/inventory-engine/internal/infrastructure/persistence"
	"github.com/erp/inventory-engine/internal/interfaces/http/handler"
	"github.com/erp/inventory-engine/internal/interfaces/http/middleware"
	"github.com/erp/inventory-engine/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// EngineTestServer wires the whole engine over a test database
type EngineTestServer struct {
	DB     *TestDB
	Engine *gin.Engine
	Actor  uuid.UUID
}

// NewEngineTestServer builds repositories, services and the HTTP engine the
// way cmd/server does, with the in-process key locker
func NewEngineTestServer(t *testing.T, db *TestDB) *EngineTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	scope := persistence.NewGormTransactionScope(db.DB)
	balanceRepo := persistence.NewGormBalanceRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	registry := persistence.NewGormRegistry(db.DB)
	locker := appstock.NewMemoryKeyLocker()
	opts := appstock.Options{}

	ledger := appstock.NewLedgerStore(scope, ledgerRepo, balanceRepo, opts, log)
	balances := appstock.NewBalanceStore(scope, balanceRepo, ledger, locker, opts, log)
	checker := appstock.NewAvailabilityChecker(balances, registry, log)
	reservations := appstock.NewReservationManager(balances, checker, log)
	alerts := appstock.NewAlertService(balances, registry, opts, log)
	documents := docapp.NewDocumentService(scope, persistence.NewGormDocumentRepository(db.DB),
		balances, reservations, checker, ledger, registry, locker, opts, log)

	engine := router.New(router.Config{
		Logger: log,
		Auth:   middleware.ActorAuthConfig{Logger: log},
	}, router.Handlers{
		Documents: handler.NewDocumentHandler(documents),
		Stock:     handler.NewStockHandler(documents, alerts, documents),
		System: handler.NewSystemHandler("test", map[string]handler.HealthCheck{
			"database": func(ctx context.Context) error { return db.SqlDB.PingContext(ctx) },
		}),
	})

	return &EngineTestServer{DB: db, Engine: engine, Actor: uuid.New()}
}

// envelope is the standard response body
type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// request sends body as JSON on behalf of the server's actor
func request[T any](t *testing.T, s *EngineTestServer, method, path string, body any) (int, envelope[T]) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorIDHeader, s.Actor.String())
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)

	var resp envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

type documentView = handler.DocumentResponse

type availabilityView struct {
	IsAvailable       bool  `json:"is_available"`
	AvailableQuantity int64 `json:"available_quantity"`
	Shortfall         int64 `json:"shortfall"`
}

type historyView struct {
	TransactionType string `json:"transaction_type"`
	QuantityChange  int64  `json:"quantity_change"`
	QuantityBefore  int64  `json:"quantity_before"`
	QuantityAfter   int64  `json:"quantity_after"`
	ReferenceNumber string `json:"reference_number"`
}

type alertView struct {
	WarehouseID string `json:"warehouse_id"`
	AlertType   string `json:"alert_type"`
}

type reconcileView struct {
	Entries    int   `json:"entries"`
	Replayed   int64 `json:"replayed_quantity"`
	Live       int64 `json:"live_quantity"`
	Consistent bool  `json:"consistent"`
}

func (s *EngineTestServer) createDocument(t *testing.T, kind string, body map[string]any) documentView {
	t.Helper()
	code, resp := request[documentView](t, s, http.MethodPost, "/api/v1/stock/documents/"+kind, body)
	require.Equal(t, http.StatusCreated, code, "%+v", resp.Error)
	return resp.Data
}

func (s *EngineTestServer) validateDocument(t *testing.T, kind, id string) documentView {
	t.Helper()
	code, resp := request[documentView](t, s, http.MethodPost, "/api/v1/stock/documents/"+kind+"/"+id+"/validate", nil)
	require.Equal(t, http.StatusOK, code, "%+v", resp.Error)
	return resp.Data
}

func (s *EngineTestServer) available(t *testing.T, product, warehouse uuid.UUID) int64 {
	t.Helper()
	path := fmt.Sprintf("/api/v1/stock/availability?product_id=%s&warehouse_id=%s&quantity=1", product, warehouse)
	code, resp := request[availabilityView](t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	return resp.Data.AvailableQuantity
}

func items(product uuid.UUID, quantity int64) []map[string]any {
	return []map[string]any{{"product_id": product.String(), "quantity": quantity}}
}

// runDocumentFlow drives every document kind through the HTTP surface and
// checks balances, ledger history, alerts and reconciliation
func runDocumentFlow(t *testing.T, db *TestDB) {
	s := NewEngineTestServer(t, db)
	whA := db.SeedWarehouse("WH-A")
	whB := db.SeedWarehouse("WH-B")
	product := db.SeedProduct("SKU-1", 100)

	receipt := s.createDocument(t, "receipts", map[string]any{
		"warehouse_id":  whA.String(),
		"supplier_name": "Acme Supplies",
		"items":         items(product, 100),
	})
	assert.Equal(t, "draft", receipt.Status)
	assert.Zero(t, s.available(t, product, whA))

	done := s.validateDocument(t, "receipts", receipt.ID)
	assert.Equal(t, "done", done.Status)
	assert.NotNil(t, done.ValidatedAt)
	assert.Equal(t, int64(100), s.available(t, product, whA))

	t.Run("validating twice posts once", func(t *testing.T) {
		again := s.validateDocument(t, "receipts", receipt.ID)
		assert.Equal(t, "done", again.Status)
		assert.Equal(t, int64(100), s.available(t, product, whA))
	})

	t.Run("deliveries reserve on save and post on validation", func(t *testing.T) {
		delivery := s.createDocument(t, "deliveries", map[string]any{
			"warehouse_id":  whA.String(),
			"customer_name": "Globex",
			"items":         items(product, 30),
		})
		assert.Equal(t, int64(70), s.available(t, product, whA))

		code, resp := request[documentView](t, s, http.MethodPost, "/api/v1/stock/documents/deliveries", map[string]any{
			"warehouse_id": whA.String(),
			"items":        items(product, 80),
		})
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "ERR_INSUFFICIENT_STOCK", resp.Error.Code)
		assert.Contains(t, string(resp.Error.Details), `"shortfall":10`)

		s.validateDocument(t, "deliveries", delivery.ID)
		assert.Equal(t, int64(70), s.available(t, product, whA))
	})

	t.Run("canceling a delivery releases its reservation", func(t *testing.T) {
		delivery := s.createDocument(t, "deliveries", map[string]any{
			"warehouse_id": whA.String(),
			"items":        items(product, 20),
		})
		assert.Equal(t, int64(50), s.available(t, product, whA))

		code, resp := request[documentView](t, s, http.MethodPost, "/api/v1/stock/documents/deliveries/"+delivery.ID+"/cancel", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "canceled", resp.Data.Status)
		assert.Equal(t, int64(70), s.available(t, product, whA))

		code, _ = request[documentView](t, s, http.MethodPost, "/api/v1/stock/documents/deliveries/"+delivery.ID+"/validate", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, code)
	})

	t.Run("transfers move stock between warehouses", func(t *testing.T) {
		transfer := s.createDocument(t, "transfers", map[string]any{
			"from_warehouse_id": whA.String(),
			"to_warehouse_id":   whB.String(),
			"items":             items(product, 10),
		})
		s.validateDocument(t, "transfers", transfer.ID)

		assert.Equal(t, int64(60), s.available(t, product, whA))
		assert.Equal(t, int64(10), s.available(t, product, whB))

		code, resp := request[[]historyView](t, s, http.MethodGet, "/api/v1/stock/history?transaction_id="+transfer.ID, nil)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, resp.Data, 2)
		types := []string{resp.Data[0].TransactionType, resp.Data[1].TransactionType}
		assert.ElementsMatch(t, []string{"transfer_out", "transfer_in"}, types)
	})

	t.Run("adjustments post the counted difference", func(t *testing.T) {
		counted := int64(55)
		adjustment := s.createDocument(t, "adjustments", map[string]any{
			"warehouse_id": whA.String(),
			"reason":       "Cycle count",
			"items":        []map[string]any{{"product_id": product.String(), "counted_quantity": counted}},
		})
		require.Len(t, adjustment.Items, 1)
		require.NotNil(t, adjustment.Items[0].RecordedQuantity)
		assert.Equal(t, int64(60), *adjustment.Items[0].RecordedQuantity)
		assert.Equal(t, int64(-5), *adjustment.Items[0].Difference)

		s.validateDocument(t, "adjustments", adjustment.ID)
		assert.Equal(t, counted, s.available(t, product, whA))
	})

	t.Run("ledger history chains before and after quantities", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/stock/history?product_id=%s&warehouse_id=%s", product, whA)
		code, resp := request[[]historyView](t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, resp.Data, 4)

		// newest first
		for i := 0; i < len(resp.Data)-1; i++ {
			assert.Equal(t, resp.Data[i+1].QuantityAfter, resp.Data[i].QuantityBefore)
		}
		assert.Equal(t, "adjustment", resp.Data[0].TransactionType)
		assert.Equal(t, "receipt", resp.Data[3].TransactionType)
		assert.Equal(t, receipt.Number, resp.Data[3].ReferenceNumber)
	})

	t.Run("reconciliation replays the ledger", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/stock/balances/%s/%s/reconcile", product, whA)
		code, resp := request[reconcileView](t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Data.Consistent)
		assert.Equal(t, 4, resp.Data.Entries)
		assert.Equal(t, int64(55), resp.Data.Replayed)
		assert.Equal(t, resp.Data.Replayed, resp.Data.Live)
	})

	t.Run("alerts classify against the reorder level", func(t *testing.T) {
		code, resp := request[[]alertView](t, s, http.MethodGet, "/api/v1/stock/alerts", nil)
		require.Equal(t, http.StatusOK, code)

		byWarehouse := make(map[string]string)
		for _, a := range resp.Data {
			byWarehouse[a.WarehouseID] = a.AlertType
		}
		assert.Equal(t, "low_stock", byWarehouse[whA.String()])
		assert.Equal(t, "critical", byWarehouse[whB.String()])
	})

	t.Run("listing filters by warehouse", func(t *testing.T) {
		code, resp := request[[]documentView](t, s, http.MethodGet, "/api/v1/stock/documents/deliveries?warehouse_id="+whA.String(), nil)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, resp.Data, 2)
	})

	t.Run("mutations require an actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/documents/receipts",
			bytes.NewBufferString(fmt.Sprintf(`{"warehouse_id":%q,"items":[{"product_id":%q,"quantity":1}]}`, whA, product)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDocumentFlow_SQLite(t *testing.T) {
	runDocumentFlow(t, NewSQLiteTestDB(t))
}

func TestDocumentFlow_PostgreSQL(t *testing.T) {
	runDocumentFlow(t, NewTestDB(t))
}

func (s *EngineTestServer) adjust(t *testing.T, warehouse, product uuid.UUID, counted int64) documentView {
	t.Helper()
	return s.createDocument(t, "adjustments", map[string]any{
		"warehouse_id": warehouse.String(),
		"reason":       "Cycle count",
		"items":        []map[string]any{{"product_id": product.String(), "counted_quantity": counted}},
	})
}

func (s *EngineTestServer) reconcile(t *testing.T, product, warehouse uuid.UUID) reconcileView {
	t.Helper()
	path := fmt.Sprintf("/api/v1/stock/balances/%s/%s/reconcile", product, warehouse)
	code, resp := request[reconcileView](t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	return resp.Data
}

// runAdjustmentFlow seeds opening stock and books counts that match the
// books or leave the key below zero, then checks the ledger still replays
func runAdjustmentFlow(t *testing.T, db *TestDB) {
	s := NewEngineTestServer(t, db)
	wh := db.SeedWarehouse("WH-ADJ")
	product := db.SeedProduct("SKU-ADJ", 0)

	code, opening := request[historyView](t, s, http.MethodPost, "/api/v1/stock/initial", map[string]any{
		"product_id":   product.String(),
		"warehouse_id": wh.String(),
		"quantity":     20,
	})
	require.Equal(t, http.StatusCreated, code, "%+v", opening.Error)
	assert.Equal(t, "initial_stock", opening.Data.TransactionType)
	assert.Equal(t, "INITIAL", opening.Data.ReferenceNumber)
	assert.Equal(t, int64(20), opening.Data.QuantityAfter)
	assert.Equal(t, int64(20), s.available(t, product, wh))

	t.Run("opening stock is posted once per key", func(t *testing.T) {
		code, resp := request[historyView](t, s, http.MethodPost, "/api/v1/stock/initial", map[string]any{
			"product_id":   product.String(),
			"warehouse_id": wh.String(),
			"quantity":     5,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "ERR_INVALID_STATE", resp.Error.Code)
		assert.Equal(t, int64(20), s.available(t, product, wh))
	})

	t.Run("a count matching the books posts a zero change", func(t *testing.T) {
		adjustment := s.adjust(t, wh, product, 20)
		require.Len(t, adjustment.Items, 1)
		assert.Equal(t, int64(0), *adjustment.Items[0].Difference)

		done := s.validateDocument(t, "adjustments", adjustment.ID)
		assert.Equal(t, "done", done.Status)

		code, resp := request[[]historyView](t, s, http.MethodGet, "/api/v1/stock/history?transaction_id="+adjustment.ID, nil)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, resp.Data, 1)
		assert.Zero(t, resp.Data[0].QuantityChange)
		assert.Equal(t, int64(20), resp.Data[0].QuantityBefore)
		assert.Equal(t, int64(20), resp.Data[0].QuantityAfter)
	})

	t.Run("a stale count may leave the key below zero", func(t *testing.T) {
		adjustment := s.adjust(t, wh, product, 0)
		assert.Equal(t, int64(-20), *adjustment.Items[0].Difference)

		delivery := s.createDocument(t, "deliveries", map[string]any{
			"warehouse_id": wh.String(),
			"items":        items(product, 15),
		})
		s.validateDocument(t, "deliveries", delivery.ID)
		assert.Equal(t, int64(5), s.available(t, product, wh))

		done := s.validateDocument(t, "adjustments", adjustment.ID)
		assert.Equal(t, "done", done.Status)
		assert.Equal(t, int64(-15), s.available(t, product, wh))

		code, resp := request[documentView](t, s, http.MethodPost, "/api/v1/stock/documents/deliveries", map[string]any{
			"warehouse_id": wh.String(),
			"items":        items(product, 1),
		})
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "ERR_INSUFFICIENT_STOCK", resp.Error.Code)
	})

	t.Run("receipts refill a negative key", func(t *testing.T) {
		receipt := s.createDocument(t, "receipts", map[string]any{
			"warehouse_id": wh.String(),
			"items":        items(product, 25),
		})
		s.validateDocument(t, "receipts", receipt.ID)
		assert.Equal(t, int64(10), s.available(t, product, wh))
	})

	t.Run("the ledger still replays to the live quantity", func(t *testing.T) {
		r := s.reconcile(t, product, wh)
		assert.True(t, r.Consistent)
		assert.Equal(t, 5, r.Entries)
		assert.Equal(t, int64(10), r.Replayed)
		assert.Equal(t, r.Replayed, r.Live)
	})
}

func TestAdjustmentFlow_SQLite(t *testing.T) {
	runAdjustmentFlow(t, NewSQLiteTestDB(t))
}

func TestAdjustmentFlow_PostgreSQL(t *testing.T) {
	runAdjustmentFlow(t, NewTestDB(t))
}

// TestConcurrentDeliveries_PostgreSQL saves deliveries for the same key from
// many goroutines. Reservations are serialized per key, so exactly the
// stock on hand gets reserved and nothing goes negative.
func TestConcurrentDeliveries_PostgreSQL(t *testing.T) {
	db := NewTestDB(t)
	s := NewEngineTestServer(t, db)
	wh := db.SeedWarehouse("WH-C")
	product := db.SeedProduct("SKU-C", 0)

	receipt := s.createDocument(t, "receipts", map[string]any{
		"warehouse_id": wh.String(),
		"items":        items(product, 10),
	})
	s.validateDocument(t, "receipts", receipt.ID)

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
		rejected int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{"warehouse_id": wh.String(), "items": items(product, 1)})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/documents/deliveries", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(middleware.ActorIDHeader, s.Actor.String())
			w := httptest.NewRecorder()
			s.Engine.ServeHTTP(w, req)

			var resp envelope[documentView]
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			mu.Lock()
			defer mu.Unlock()
			switch w.Code {
			case http.StatusCreated:
				accepted = append(accepted, resp.Data.ID)
			case http.StatusUnprocessableEntity:
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 10)
	assert.Equal(t, workers-10, rejected)
	assert.Zero(t, s.available(t, product, wh))

	var vg sync.WaitGroup
	for _, id := range accepted {
		vg.Add(1)
		go func() {
			defer vg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/documents/deliveries/"+id+"/validate", nil)
			req.Header.Set(middleware.ActorIDHeader, s.Actor.String())
			w := httptest.NewRecorder()
			s.Engine.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		}()
	}
	vg.Wait()

	path := fmt.Sprintf("/api/v1/stock/balances/%s/%s/reconcile", product, wh)
	code, resp := request[reconcileView](t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Data.Consistent)
	assert.Equal(t, 11, resp.Data.Entries)
	assert.Zero(t, resp.Data.Live)
}
