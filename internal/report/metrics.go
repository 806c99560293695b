package report

import (
	"math"
	"sort"
	"time"

	"copytrader/models"
)

// annual risk-free rate used for the Sharpe ratio.
const riskFreeRate = 0.02

// TotalReturn returns the percentage change between the first and last
// balance snapshots.
func TotalReturn(entries []models.BalanceEntry) float64 {
	if len(entries) < 2 || entries[0].Balance == 0 {
		return 0
	}
	first, last := entries[0].Balance, entries[len(entries)-1].Balance
	return (last - first) / first * 100
}

// dayCloses reduces the history to one closing balance per UTC day, oldest
// first.
func dayCloses(entries []models.BalanceEntry) []float64 {
	if len(entries) == 0 {
		return nil
	}

	byDay := make(map[string]float64)
	var days []string
	for _, entry := range entries {
		day := entry.Timestamp.UTC().Format(time.DateOnly)
		if _, seen := byDay[day]; !seen {
			days = append(days, day)
		}
		byDay[day] = entry.Balance
	}
	sort.Strings(days)

	closes := make([]float64, 0, len(days))
	for _, day := range days {
		closes = append(closes, byDay[day])
	}
	return closes
}

// DailyPnL returns the balance change for each day after the first.
func DailyPnL(entries []models.BalanceEntry) []float64 {
	closes := dayCloses(entries)
	if len(closes) < 2 {
		return nil
	}

	pnl := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		pnl = append(pnl, closes[i]-closes[i-1])
	}
	return pnl
}

// dailyReturns returns the fractional day-over-day balance changes.
func dailyReturns(entries []models.BalanceEntry) []float64 {
	closes := dayCloses(entries)
	if len(closes) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

// MaxDrawdown returns the largest peak-to-trough decline as a percentage of
// the peak, and its absolute size.
func MaxDrawdown(entries []models.BalanceEntry) (pct, amount float64) {
	peak := 0.0
	for _, entry := range entries {
		if entry.Balance > peak {
			peak = entry.Balance
		}
		if peak == 0 {
			continue
		}
		drop := peak - entry.Balance
		if dropPct := drop / peak * 100; dropPct > pct {
			pct, amount = dropPct, drop
		}
	}
	return pct, amount
}

// SharpeRatio computes the annualized Sharpe ratio of the daily returns
// against the risk-free rate.
func SharpeRatio(entries []models.BalanceEntry) float64 {
	returns := dailyReturns(entries)
	if len(returns) < 2 {
		return 0
	}

	dailyRF := riskFreeRate / 365

	mean := 0.0
	for _, r := range returns {
		mean += r - dailyRF
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := (r - dailyRF) - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(365)
}

// WinRate returns the fraction of days with positive PnL, in percent.
func WinRate(pnl []float64) float64 {
	if len(pnl) == 0 {
		return 0
	}
	wins := 0
	for _, p := range pnl {
		if p > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnl)) * 100
}
