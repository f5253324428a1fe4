package stock

import (
	"errors"
	"testing"

	"github.com/erp/inventory-engine/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey() Key {
	return Key{ProductID: uuid.New(), WarehouseID: uuid.New()}
}

func TestNewKey(t *testing.T) {
	t.Run("rejects nil product", func(t *testing.T) {
		_, err := NewKey(uuid.Nil, uuid.New())
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("rejects nil warehouse", func(t *testing.T) {
		_, err := NewKey(uuid.New(), uuid.Nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "warehouse_id")
	})
}

func TestSortedKeys(t *testing.T) {
	a, b, c := newTestKey(), newTestKey(), newTestKey()

	sorted := SortedKeys(c, a, b, a, c)

	require.Len(t, sorted, 3)
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, sorted[i-1].String(), sorted[i].String())
	}
}

func TestStockBalance_ApplyDelta(t *testing.T) {
	t.Run("increases quantity and returns before and after", func(t *testing.T) {
		b := NewStockBalance(newTestKey())

		before, after, err := b.ApplyDelta(100, TransactionTypeReceipt)

		require.NoError(t, err)
		assert.Equal(t, int64(0), before)
		assert.Equal(t, int64(100), after)
		assert.Equal(t, int64(100), b.Quantity)
	})

	t.Run("rejects delivery beyond on hand and leaves quantity unchanged", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Quantity = 10

		_, _, err := b.ApplyDelta(-11, TransactionTypeDelivery)

		var negErr *NegativeStockError
		require.ErrorAs(t, err, &negErr)
		assert.True(t, errors.Is(err, shared.ErrNegativeStock))
		assert.Equal(t, int64(10), negErr.Current)
		assert.Equal(t, int64(-11), negErr.Delta)
		assert.Equal(t, int64(10), b.Quantity)
	})

	t.Run("allows delivery down to exactly zero", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Quantity = 10

		_, after, err := b.ApplyDelta(-10, TransactionTypeDelivery)

		require.NoError(t, err)
		assert.Equal(t, int64(0), after)
	})

	t.Run("adjustment may go negative", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Quantity = 3

		before, after, err := b.ApplyDelta(-5, TransactionTypeAdjustment)

		require.NoError(t, err)
		assert.Equal(t, int64(3), before)
		assert.Equal(t, int64(-2), after)
	})

	t.Run("receipt refills a key left negative by an adjustment", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Quantity = -6

		before, after, err := b.ApplyDelta(4, TransactionTypeReceipt)

		require.NoError(t, err)
		assert.Equal(t, int64(-6), before)
		assert.Equal(t, int64(-2), after)
	})

	t.Run("delivery from a negative key is still rejected", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Quantity = -2

		_, _, err := b.ApplyDelta(-1, TransactionTypeDelivery)

		assert.True(t, errors.Is(err, shared.ErrNegativeStock))
		assert.Equal(t, int64(-2), b.Quantity)
	})

	t.Run("rejects unknown transaction type", func(t *testing.T) {
		b := NewStockBalance(newTestKey())

		_, _, err := b.ApplyDelta(1, TransactionType("gift"))

		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}

func TestStockBalance_Reservations(t *testing.T) {
	t.Run("release never goes below zero", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Reserve(5)

		b.Release(3)
		b.Release(3)
		b.Release(3)

		assert.Equal(t, int64(0), b.ReservedQuantity)
	})

	t.Run("set reserved clamps negative values", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.SetReserved(-4)
		assert.Equal(t, int64(0), b.ReservedQuantity)
	})

	t.Run("available can be negative", func(t *testing.T) {
		b := NewStockBalance(newTestKey())
		b.Quantity = 10
		b.Reserve(15)
		assert.Equal(t, int64(-5), b.Available())
	})
}
