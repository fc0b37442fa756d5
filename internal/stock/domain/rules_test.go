package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNetDeltas(t *testing.T) {
	refs := []MaterialRef{
		{MaterialID: "sugar", Quantity: d("2"), Direction: DirectionConsume},
		{MaterialID: "jackfruit", Quantity: d("5"), Direction: DirectionConsume},
		{MaterialID: "sugar", Quantity: d("0.5"), Direction: DirectionConsume},
		{MaterialID: "chips", Quantity: d("3"), Direction: DirectionReceive},
		{MaterialID: "salt", Quantity: d("1"), Direction: DirectionReceive},
		{MaterialID: "salt", Quantity: d("1"), Direction: DirectionConsume},
	}

	got := NetDeltas(refs)
	require.Len(t, got, 3)

	assert.Equal(t, "chips", got[0].MaterialID)
	assert.True(t, got[0].Delta.Equal(d("3")))
	assert.Equal(t, "jackfruit", got[1].MaterialID)
	assert.True(t, got[1].Delta.Equal(d("-5")))
	assert.Equal(t, "sugar", got[2].MaterialID)
	assert.True(t, got[2].Delta.Equal(d("-2.5")))
}

func TestReviseDeltas_ProductionEdit(t *testing.T) {
	oldRefs := []MaterialRef{{MaterialID: "jackfruit", Quantity: d("5"), Direction: DirectionConsume}}
	newRefs := []MaterialRef{{MaterialID: "jackfruit", Quantity: d("8"), Direction: DirectionConsume}}

	got := ReviseDeltas(oldRefs, newRefs)
	require.Len(t, got, 1)
	assert.True(t, got[0].Delta.Equal(d("-3")), "got %s", got[0].Delta)

	assert.Empty(t, ReviseDeltas(newRefs, newRefs))
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysUntil(time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 1, DaysUntil(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 7, DaysUntil(time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, -3, DaysUntil(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), now))
}

func TestStockBatch_ExpiresWithin(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		e := now.AddDate(0, 0, days)
		return &e
	}

	assert.True(t, (&StockBatch{Expiry: at(7)}).ExpiresWithin(7, now))
	assert.False(t, (&StockBatch{Expiry: at(8)}).ExpiresWithin(7, now))
	assert.True(t, (&StockBatch{Expiry: at(-2)}).ExpiresWithin(7, now), "expired batches count")
	assert.False(t, (&StockBatch{}).ExpiresWithin(7, now))
}

func TestMaterialStock_IsLow(t *testing.T) {
	m := &MaterialStock{Quantity: d("20"), ReorderLevel: d("20")}
	assert.True(t, m.IsLow())
	m.Quantity = d("20.01")
	assert.False(t, m.IsLow())
}
