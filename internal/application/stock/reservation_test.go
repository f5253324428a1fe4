package stock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/erp/inventory-engine/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) balance(t *testing.T, p, w uuid.UUID) stock.StockBalance {
	t.Helper()
	b, err := f.store.Get(f.ctx(), p, w)
	require.NoError(t, err)
	return b
}

func TestReservationManager_ReserveRelease(t *testing.T) {
	f := newFixture(t, nil, Options{})
	p, w := uuid.New(), uuid.New()

	require.NoError(t, f.reservations.Reserve(f.ctx(), p, w, 5))
	assert.Equal(t, int64(5), f.balance(t, p, w).ReservedQuantity)

	t.Run("release never goes below zero", func(t *testing.T) {
		require.NoError(t, f.reservations.Release(f.ctx(), p, w, 8))
		assert.Equal(t, int64(0), f.balance(t, p, w).ReservedQuantity)
	})

	t.Run("rejects non positive quantities", func(t *testing.T) {
		assert.True(t, errors.Is(f.reservations.Reserve(f.ctx(), p, w, 0), shared.ErrValidation))
		assert.True(t, errors.Is(f.reservations.Release(f.ctx(), p, w, -1), shared.ErrValidation))
	})
}

func TestReservationManager_ReserveAll(t *testing.T) {
	t.Run("reserves every item and runs the hook", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		w := uuid.New()
		a, b := uuid.New(), uuid.New()
		f.balances.Seed(stock.StockBalance{ProductID: a, WarehouseID: w, Quantity: 10})
		f.balances.Seed(stock.StockBalance{ProductID: b, WarehouseID: w, Quantity: 10})
		called := false

		err := f.reservations.ReserveAll(f.ctx(), Allocation{WarehouseID: w, Items: []stock.Item{
			{ProductID: a, Quantity: 4},
			{ProductID: b, Quantity: 10},
		}}, func(TransactionalRepositories) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, int64(4), f.balance(t, a, w).ReservedQuantity)
		assert.Equal(t, int64(10), f.balance(t, b, w).ReservedQuantity)
	})

	t.Run("insufficient stock writes nothing", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		w := uuid.New()
		a := uuid.New()
		b := f.registry.AddProduct("Bolt", "B-7", 0)
		f.balances.Seed(stock.StockBalance{ProductID: a, WarehouseID: w, Quantity: 10})
		f.balances.Seed(stock.StockBalance{ProductID: b, WarehouseID: w, Quantity: 3})
		called := false

		err := f.reservations.ReserveAll(f.ctx(), Allocation{WarehouseID: w, Items: []stock.Item{
			{ProductID: a, Quantity: 4},
			{ProductID: b, Quantity: 5},
		}}, func(TransactionalRepositories) error {
			called = true
			return nil
		})

		var insufficient *stock.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		require.Len(t, insufficient.Items, 1)
		assert.Equal(t, "Bolt", insufficient.Items[0].ProductName)
		assert.Equal(t, int64(2), insufficient.Items[0].Shortfall)
		assert.False(t, called)
		assert.Equal(t, int64(0), f.balance(t, a, w).ReservedQuantity)
		assert.Equal(t, int64(0), f.balance(t, b, w).ReservedQuantity)
	})

	t.Run("repeated product lines are checked together", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		p, w := uuid.New(), uuid.New()
		f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w, Quantity: 10})

		err := f.reservations.ReserveAll(f.ctx(), Allocation{WarehouseID: w, Items: []stock.Item{
			{ProductID: p, Quantity: 6},
			{ProductID: p, Quantity: 6},
		}}, nil)

		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		assert.Equal(t, int64(0), f.balance(t, p, w).ReservedQuantity)
	})
}

func TestReservationManager_ConcurrentReserveAllNeverOversubscribes(t *testing.T) {
	f := newQuietFixture(nil, Options{})
	p, w := uuid.New(), uuid.New()
	f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w, Quantity: 50})

	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.reservations.ReserveAll(f.ctx(), Allocation{WarehouseID: w, Items: []stock.Item{{ProductID: p, Quantity: 1}}}, nil)
			if err == nil {
				ok.Add(1)
				return
			}
			assert.True(t, errors.Is(err, shared.ErrInsufficientStock), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), ok.Load())
	b := f.balance(t, p, w)
	assert.Equal(t, int64(50), b.ReservedQuantity)
	assert.Equal(t, int64(0), b.Available())
}

func TestReservationManager_Replace(t *testing.T) {
	t.Run("moves a reservation to another warehouse", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		p := uuid.New()
		w1, w2 := uuid.New(), uuid.New()
		f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w1, Quantity: 20})
		f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w2, Quantity: 20})
		old := Allocation{WarehouseID: w1, Items: []stock.Item{{ProductID: p, Quantity: 10}}}
		require.NoError(t, f.reservations.ReserveAll(f.ctx(), old, nil))

		next := Allocation{WarehouseID: w2, Items: []stock.Item{{ProductID: p, Quantity: 12}}}
		require.NoError(t, f.reservations.Replace(f.ctx(), old, next, nil))

		assert.Equal(t, int64(0), f.balance(t, p, w1).ReservedQuantity)
		assert.Equal(t, int64(12), f.balance(t, p, w2).ReservedQuantity)
	})

	t.Run("old reservation is released before the new one is checked", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		p, w := uuid.New(), uuid.New()
		f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w, Quantity: 10})
		old := Allocation{WarehouseID: w, Items: []stock.Item{{ProductID: p, Quantity: 8}}}
		require.NoError(t, f.reservations.ReserveAll(f.ctx(), old, nil))

		next := Allocation{WarehouseID: w, Items: []stock.Item{{ProductID: p, Quantity: 10}}}
		require.NoError(t, f.reservations.Replace(f.ctx(), old, next, nil))

		assert.Equal(t, int64(10), f.balance(t, p, w).ReservedQuantity)
	})

	t.Run("failed replace keeps the old reservation", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		p, w := uuid.New(), uuid.New()
		f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w, Quantity: 10})
		old := Allocation{WarehouseID: w, Items: []stock.Item{{ProductID: p, Quantity: 8}}}
		require.NoError(t, f.reservations.ReserveAll(f.ctx(), old, nil))

		next := Allocation{WarehouseID: w, Items: []stock.Item{{ProductID: p, Quantity: 11}}}
		err := f.reservations.Replace(f.ctx(), old, next, nil)

		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		assert.Equal(t, int64(8), f.balance(t, p, w).ReservedQuantity)
	})

	t.Run("release all drops every item", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		p, w := uuid.New(), uuid.New()
		f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w, Quantity: 10})
		alloc := Allocation{WarehouseID: w, Items: []stock.Item{{ProductID: p, Quantity: 7}}}
		require.NoError(t, f.reservations.ReserveAll(f.ctx(), alloc, nil))

		require.NoError(t, f.reservations.ReleaseAll(f.ctx(), alloc, nil))

		assert.Equal(t, int64(0), f.balance(t, p, w).ReservedQuantity)
	})
}

func TestReservationManager_Check(t *testing.T) {
	f := newFixture(t, nil, Options{})
	p, w := uuid.New(), uuid.New()
	f.balances.Seed(stock.StockBalance{ProductID: p, WarehouseID: w, Quantity: 10, ReservedQuantity: 10})
	items := []stock.Item{{ProductID: p, Quantity: 10}}

	t.Run("own reservation does not block posting", func(t *testing.T) {
		assert.NoError(t, f.reservations.Check(f.ctx(), w, items, items))
	})

	t.Run("someone else's reservation does", func(t *testing.T) {
		err := f.reservations.Check(f.ctx(), w, items, nil)
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
	})
}
