package sync

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"copytrader/models"
)

// RiskManager applies position sizing limits and tracks drawdown alerts.
type RiskManager struct {
	maxPositionSize decimal.Decimal // max notional in USDT per position, zero disables
	riskFraction    decimal.Decimal // fraction of the computed size to actually trade
	maxDrawdownPct  float64         // alert step in percent, zero disables
	logger          zerolog.Logger
}

// RiskOptions configures a RiskManager.
type RiskOptions struct {
	MaxPositionSize float64 // USDT notional cap per position
	RiskPercentage  float64 // 100 trades the full computed size
	MaxDrawdownPct  float64 // drawdown alert step in percent
}

// NewRiskManager creates a risk manager from the given limits.
func NewRiskManager(opts RiskOptions) *RiskManager {
	riskPct := opts.RiskPercentage
	if riskPct <= 0 || riskPct > 100 {
		riskPct = 100
	}

	return &RiskManager{
		maxPositionSize: decimal.NewFromFloat(opts.MaxPositionSize),
		riskFraction:    decimal.NewFromFloat(riskPct / 100),
		maxDrawdownPct:  opts.MaxDrawdownPct,
		logger:          log.With().Str("component", "trading").Logger(),
	}
}

// AdjustQty scales a computed order quantity by the risk percentage and caps
// it so the position notional stays under the configured maximum.
func (r *RiskManager) AdjustQty(qty, markPrice decimal.Decimal) decimal.Decimal {
	adjusted := qty.Mul(r.riskFraction)

	if r.maxPositionSize.IsPositive() && markPrice.IsPositive() {
		maxQty := r.maxPositionSize.Div(markPrice)
		if adjusted.GreaterThan(maxQty) {
			r.logger.Warn().
				Str("qty", adjusted.String()).
				Str("max_qty", maxQty.String()).
				Msg("Position size capped")
			adjusted = maxQty
		}
	}

	return adjusted
}

// DrawdownAlerts updates the account's intraday balance extremes and returns
// the drawdown levels newly crossed since the last check. Crossed levels are
// recorded on the account so each alert fires once per day.
func (r *RiskManager) DrawdownAlerts(account *models.Account, balance float64) []float64 {
	if account.MaxBalanceToday == nil || balance > *account.MaxBalanceToday {
		account.MaxBalanceToday = &balance
	}
	if account.MinBalanceToday == nil || balance < *account.MinBalanceToday {
		account.MinBalanceToday = &balance
	}

	if r.maxDrawdownPct <= 0 || *account.MaxBalanceToday <= 0 {
		return nil
	}

	drawdownPct := (*account.MaxBalanceToday - balance) / *account.MaxBalanceToday * 100

	var crossed []float64
	for level := r.maxDrawdownPct; level <= drawdownPct; level += r.maxDrawdownPct {
		if !containsLevel(account.DrawdownAlertedLevels, level) {
			account.DrawdownAlertedLevels = append(account.DrawdownAlertedLevels, level)
			crossed = append(crossed, level)
		}
	}

	if len(crossed) > 0 {
		r.logger.Warn().
			Str("account", account.Nickname).
			Float64("drawdown_pct", drawdownPct).
			Floats64("levels", crossed).
			Msg("Drawdown alert levels crossed")
	}

	return crossed
}

func containsLevel(levels []float64, level float64) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}
