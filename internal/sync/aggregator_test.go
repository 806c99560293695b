package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copytrader/models"
)

func TestAggregatorCoalescesAcrossCycles(t *testing.T) {
	a := NewOrderAggregator(2 * time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.BeginCycle()
	a.Observe("BTCUSDT", models.SideBuy, ActionOpen, d("0.5"))
	assert.Empty(t, a.Ready(), "a fresh order must wait for its window")
	assert.Equal(t, 1, a.Pending())

	now = now.Add(10 * time.Second)
	a.BeginCycle()
	a.Observe("BTCUSDT", models.SideBuy, ActionOpen, d("0.7"))

	ready := a.Ready()
	require.Len(t, ready, 1)
	assert.True(t, ready[0].Qty.Equal(d("0.7")), "quantity must be the latest observed, got %s", ready[0].Qty)
	assert.Equal(t, 2, ready[0].Count)
	assert.Equal(t, 0, a.Pending())
}

func TestAggregatorDropsWithdrawnOrders(t *testing.T) {
	a := NewOrderAggregator(2 * time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	a.BeginCycle()
	a.Observe("BTCUSDT", models.SideBuy, ActionOpen, d("0.5"))
	assert.Empty(t, a.Ready())

	// Next cycle the plan no longer wants the order.
	now = now.Add(10 * time.Second)
	a.BeginCycle()
	assert.Empty(t, a.Ready(), "withdrawn orders must not be released")
	assert.Equal(t, 0, a.Pending())
}

func TestAggregatorSeparatesKeys(t *testing.T) {
	a := NewOrderAggregator(0)

	a.BeginCycle()
	a.Observe("BTCUSDT", models.SideBuy, ActionOpen, d("1"))
	a.Observe("BTCUSDT", models.SideSell, ActionOpen, d("1"))
	a.Observe("BTCUSDT", models.SideBuy, ActionIncrease, d("1"))
	a.Observe("ETHUSDT", models.SideBuy, ActionOpen, d("1"))

	assert.Len(t, a.Ready(), 4, "symbol, side and action form the batch key")
}
