package report

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"copytrader/models"
)

func entry(day int, balance float64) models.BalanceEntry {
	return models.BalanceEntry{
		Timestamp: time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC),
		Balance:   balance,
	}
}

func TestTotalReturn(t *testing.T) {
	entries := []models.BalanceEntry{entry(1, 1000), entry(2, 1100)}
	assert.InDelta(t, 10, TotalReturn(entries), 1e-9)

	assert.Zero(t, TotalReturn(nil))
	assert.Zero(t, TotalReturn([]models.BalanceEntry{entry(1, 1000)}))
	assert.Zero(t, TotalReturn([]models.BalanceEntry{entry(1, 0), entry(2, 100)}))
}

func TestDailyPnL(t *testing.T) {
	entries := []models.BalanceEntry{
		entry(1, 1000),
		{Timestamp: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC), Balance: 1020}, // same day, later
		entry(2, 1050),
		entry(3, 1010),
	}

	pnl := DailyPnL(entries)
	if assert.Len(t, pnl, 2) {
		assert.InDelta(t, 30, pnl[0], 1e-9) // 1050 - 1020, day close wins
		assert.InDelta(t, -40, pnl[1], 1e-9)
	}
}

func TestMaxDrawdown(t *testing.T) {
	entries := []models.BalanceEntry{
		entry(1, 1000),
		entry(2, 1200),
		entry(3, 900), // 25% off the 1200 peak
		entry(4, 1100),
	}

	pct, amount := MaxDrawdown(entries)
	assert.InDelta(t, 25, pct, 1e-9)
	assert.InDelta(t, 300, amount, 1e-9)
}

func TestMaxDrawdownMonotonicGrowth(t *testing.T) {
	entries := []models.BalanceEntry{entry(1, 100), entry(2, 200), entry(3, 300)}
	pct, amount := MaxDrawdown(entries)
	assert.Zero(t, pct)
	assert.Zero(t, amount)
}

func TestSharpeRatio(t *testing.T) {
	// Alternating gains and losses give non-zero variance.
	entries := []models.BalanceEntry{
		entry(1, 1000), entry(2, 1020), entry(3, 1010),
		entry(4, 1040), entry(5, 1030),
	}

	sharpe := SharpeRatio(entries)
	assert.False(t, math.IsNaN(sharpe))
	assert.NotZero(t, sharpe)
}

func TestSharpeRatioZeroVariance(t *testing.T) {
	entries := []models.BalanceEntry{entry(1, 1000), entry(2, 1000), entry(3, 1000)}
	assert.Zero(t, SharpeRatio(entries))
}

func TestSharpeRatioTooFewSamples(t *testing.T) {
	assert.Zero(t, SharpeRatio([]models.BalanceEntry{entry(1, 1000), entry(2, 1100)}))
}

func TestWinRate(t *testing.T) {
	assert.Zero(t, WinRate(nil))
	assert.InDelta(t, 50, WinRate([]float64{10, -5}), 1e-9)
	assert.InDelta(t, 100, WinRate([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, WinRate([]float64{-1, 0}))
}
