// Package testutil provides in-memory repositories with the same
// semantics as the database implementations, for engine tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/erp/inventory-engine/internal/domain/document"
	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
)

// MemoryBalances is an in-memory stock.BalanceRepository with the same
// version compare-and-swap semantics as the database implementation.
type MemoryBalances struct {
	mu   sync.Mutex
	rows map[stock.Key]stock.StockBalance
}

// NewMemoryBalances creates an empty balance table
func NewMemoryBalances() *MemoryBalances {
	return &MemoryBalances{rows: make(map[stock.Key]stock.StockBalance)}
}

func (m *MemoryBalances) FindByKey(_ context.Context, key stock.Key) (*stock.StockBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &b, nil
}

func (m *MemoryBalances) GetOrCreateForUpdate(_ context.Context, key stock.Key) (*stock.StockBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[key]
	if !ok {
		b = *stock.NewStockBalance(key)
		m.rows[key] = b
	}
	return &b, nil
}

func (m *MemoryBalances) UpdateWithVersion(_ context.Context, balance *stock.StockBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[balance.Key()]
	if !ok || cur.Version != balance.Version {
		return shared.ErrConcurrencyConflict
	}
	balance.Version++
	m.rows[balance.Key()] = *balance
	return nil
}

func (m *MemoryBalances) List(_ context.Context, filter stock.BalanceFilter) ([]stock.StockBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stock.StockBalance, 0)
	for _, b := range m.rows {
		if filter.ProductID != nil && b.ProductID != *filter.ProductID {
			continue
		}
		if filter.WarehouseID != nil && b.WarehouseID != *filter.WarehouseID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

// Seed stores b as is, for test setup
func (m *MemoryBalances) Seed(b stock.StockBalance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	m.rows[b.Key()] = b
}

// MemoryLedger is an in-memory append-only stock.LedgerRepository
type MemoryLedger struct {
	mu      sync.Mutex
	entries []stock.LedgerEntry
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (m *MemoryLedger) Append(_ context.Context, entry *stock.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemoryLedger) History(_ context.Context, filter stock.HistoryFilter, limit int) ([]stock.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stock.LedgerEntry, 0)
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filter.ProductID != nil && e.ProductID != *filter.ProductID {
			continue
		}
		if filter.WarehouseID != nil && e.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.TransactionType != nil && e.TransactionType != *filter.TransactionType {
			continue
		}
		if filter.TransactionID != nil && e.TransactionID != *filter.TransactionID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryLedger) Chain(_ context.Context, key stock.Key) ([]stock.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stock.LedgerEntry, 0)
	for _, e := range m.entries {
		if e.Key() == key {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BalanceVersion < out[j].BalanceVersion })
	return out, nil
}

// All returns a copy of every entry in append order
func (m *MemoryLedger) All() []stock.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stock.LedgerEntry(nil), m.entries...)
}

// MemoryDocuments is an in-memory document.Repository
type MemoryDocuments struct {
	mu   sync.Mutex
	docs map[uuid.UUID]document.Document

	// FailMarkPosted, when set, is returned by MarkLinePosted for that line.
	// FailInboundPosted does the same for the inbound leg only.
	FailMarkPosted    map[uuid.UUID]error
	FailInboundPosted map[uuid.UUID]error
}

// NewMemoryDocuments creates an empty document store
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{
		docs:              make(map[uuid.UUID]document.Document),
		FailMarkPosted:    make(map[uuid.UUID]error),
		FailInboundPosted: make(map[uuid.UUID]error),
	}
}

func cloneDocument(d document.Document) document.Document {
	d.Lines = append([]document.Line(nil), d.Lines...)
	return d
}

func (m *MemoryDocuments) FindByID(_ context.Context, kind document.Kind, id uuid.UUID) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Kind != kind {
		return nil, shared.NewNotFoundError(kind.Label(), id)
	}
	c := cloneDocument(d)
	return &c, nil
}

func (m *MemoryDocuments) List(_ context.Context, kind document.Kind, filter document.ListFilter) ([]document.Document, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]document.Document, 0)
	for _, d := range m.docs {
		if d.Kind != kind {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.WarehouseID != nil && d.WarehouseID != *filter.WarehouseID &&
			(d.DestinationWarehouseID == nil || *d.DestinationWarehouseID != *filter.WarehouseID) {
			continue
		}
		out = append(out, cloneDocument(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if filter.PageSize > 0 {
		start := 0
		if filter.Page > 1 {
			start = (filter.Page - 1) * filter.PageSize
		}
		if start > len(out) {
			start = len(out)
		}
		end := min(start+filter.PageSize, len(out))
		out = out[start:end]
	}
	return out, total, nil
}

func (m *MemoryDocuments) Create(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return shared.NewDomainError("ALREADY_EXISTS", "document already exists")
	}
	m.docs[doc.ID] = cloneDocument(*doc)
	return nil
}

func (m *MemoryDocuments) Update(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok {
		return shared.NewNotFoundError(doc.Kind.Label(), doc.ID)
	}
	if cur.Version != doc.Version {
		return shared.ErrConcurrencyConflict
	}
	doc.Version++
	next := cloneDocument(*doc)
	next.Lines = cur.Lines
	m.docs[doc.ID] = next
	return nil
}

func (m *MemoryDocuments) ReplaceLines(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok {
		return shared.NewNotFoundError(doc.Kind.Label(), doc.ID)
	}
	cur.Lines = append([]document.Line(nil), doc.Lines...)
	m.docs[doc.ID] = cur
	return nil
}

func (m *MemoryDocuments) MarkLinePosted(_ context.Context, kind document.Kind, lineID uuid.UUID, inbound bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailMarkPosted[lineID]; ok {
		return err
	}
	if err, ok := m.FailInboundPosted[lineID]; ok && inbound {
		return err
	}
	for id, d := range m.docs {
		if d.Kind != kind {
			continue
		}
		for i := range d.Lines {
			if d.Lines[i].ID != lineID {
				continue
			}
			target := &d.Lines[i].PostedAt
			if inbound {
				target = &d.Lines[i].InboundPostedAt
			}
			if *target != nil {
				return document.ErrLineAlreadyPosted
			}
			ts := at
			*target = &ts
			m.docs[id] = d
			return nil
		}
	}
	return shared.NewNotFoundError("line", lineID)
}

// Get returns the stored copy of a document, for assertions
func (m *MemoryDocuments) Get(id uuid.UUID) (document.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return cloneDocument(d), ok
}

// MemoryRegistry is a map-backed catalog.Registry
type MemoryRegistry struct {
	Products   map[uuid.UUID]catalog.ProductInfo
	Warehouses map[uuid.UUID]catalog.WarehouseInfo
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		Products:   make(map[uuid.UUID]catalog.ProductInfo),
		Warehouses: make(map[uuid.UUID]catalog.WarehouseInfo),
	}
}

// AddProduct registers a product and returns its id
func (r *MemoryRegistry) AddProduct(name, sku string, reorderLevel int64) uuid.UUID {
	id := uuid.New()
	r.Products[id] = catalog.ProductInfo{ID: id, Name: name, SKU: sku, UnitOfMeasure: "pcs", ReorderLevel: reorderLevel}
	return id
}

// AddWarehouse registers a warehouse and returns its id
func (r *MemoryRegistry) AddWarehouse(name string) uuid.UUID {
	id := uuid.New()
	r.Warehouses[id] = catalog.WarehouseInfo{ID: id, Name: name}
	return id
}

func (r *MemoryRegistry) ResolveProduct(_ context.Context, id uuid.UUID) (*catalog.ProductInfo, error) {
	p, ok := r.Products[id]
	if !ok {
		return nil, shared.NewNotFoundError("product", id)
	}
	return &p, nil
}

func (r *MemoryRegistry) ResolveWarehouse(_ context.Context, id uuid.UUID) (*catalog.WarehouseInfo, error) {
	w, ok := r.Warehouses[id]
	if !ok {
		return nil, shared.NewNotFoundError("warehouse", id)
	}
	return &w, nil
}

func (r *MemoryRegistry) ListReorderable(_ context.Context) ([]catalog.ProductInfo, error) {
	out := make([]catalog.ProductInfo, 0)
	for _, p := range r.Products {
		if p.ReorderLevel > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

var (
	_ stock.BalanceRepository = (*MemoryBalances)(nil)
	_ stock.LedgerRepository  = (*MemoryLedger)(nil)
	_ document.Repository     = (*MemoryDocuments)(nil)
	_ catalog.Registry        = (*MemoryRegistry)(nil)
)