package report

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"copytrader/internal/database"
	"copytrader/internal/store"
	"copytrader/models"
)

// historyRetention is how long balance snapshots are kept.
const historyRetention = 90 * 24 * time.Hour

// Manager records balance history and produces performance reports.
// History goes to Postgres when configured, otherwise to JSON files.
type Manager struct {
	store  *store.FileStore
	db     *database.DB // nil when Postgres is not configured
	logger zerolog.Logger
}

// NewManager creates a reporting manager.
func NewManager(fileStore *store.FileStore, db *database.DB) *Manager {
	return &Manager{
		store:  fileStore,
		db:     db,
		logger: log.With().Str("component", "reporting").Logger(),
	}
}

// RecordBalance appends a balance snapshot for the account and prunes
// history past the retention period.
func (m *Manager) RecordBalance(account string, balance, equity float64) error {
	entry := models.BalanceEntry{
		Timestamp: time.Now().UTC(),
		Balance:   balance,
		Equity:    equity,
	}

	if m.db != nil {
		if err := m.db.AddBalanceEntry(account, entry); err != nil {
			return fmt.Errorf("recording balance: %w", err)
		}
		if err := m.db.PruneBalanceHistory(time.Now().Add(-historyRetention)); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to prune balance history")
		}
		return nil
	}

	entries, err := m.store.LoadBalanceHistory(account)
	if err != nil {
		return fmt.Errorf("loading balance history: %w", err)
	}
	entries = append(entries, entry)

	cutoff := time.Now().Add(-historyRetention)
	for len(entries) > 0 && entries[0].Timestamp.Before(cutoff) {
		entries = entries[1:]
	}

	return m.store.SaveBalanceHistory(account, entries)
}

// History returns the retained balance snapshots for an account, oldest
// first.
func (m *Manager) History(account string) ([]models.BalanceEntry, error) {
	if m.db != nil {
		return m.db.GetBalanceHistory(account, time.Now().Add(-historyRetention))
	}
	return m.store.LoadBalanceHistory(account)
}

// DailyReport builds the performance report for one account from its
// balance history.
func (m *Manager) DailyReport(account string) (*models.DailyReport, error) {
	entries, err := m.History(account)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no balance history for %s", account)
	}

	report := &models.DailyReport{
		Account:        account,
		GeneratedAt:    time.Now().UTC(),
		CurrentBalance: entries[len(entries)-1].Balance,
		InitialBalance: entries[0].Balance,
		TotalReturnPct: TotalReturn(entries),
		SharpeRatio:    SharpeRatio(entries),
	}
	report.MaxDrawdownPct, report.MaxDrawdownAmount = MaxDrawdown(entries)

	dayAgo := time.Now().Add(-24 * time.Hour)
	for _, entry := range entries {
		if entry.Timestamp.After(dayAgo) {
			report.Change24h = report.CurrentBalance - entry.Balance
			if entry.Balance != 0 {
				report.Change24hPct = report.Change24h / entry.Balance * 100
			}
			break
		}
	}

	pnl := DailyPnL(entries)
	report.TotalDays = len(pnl)
	for _, p := range pnl {
		if p > 0 {
			report.ProfitableDays++
		}
		report.AvgDailyPnL += p
	}
	if len(pnl) > 0 {
		report.AvgDailyPnL /= float64(len(pnl))
	}

	return report, nil
}

// Summary aggregates per-account reports across the given accounts.
func (m *Manager) Summary(accounts map[string]*models.Account) (*models.SummaryReport, error) {
	summary := &models.SummaryReport{
		GeneratedAt:   time.Now().UTC(),
		TotalAccounts: len(accounts),
		Accounts:      make(map[string]*models.DailyReport),
	}

	for nickname, account := range accounts {
		if account.Enabled {
			summary.ActiveAccounts++
		}

		report, err := m.DailyReport(nickname)
		if err != nil {
			m.logger.Warn().Err(err).Str("account", nickname).Msg("Skipping account in summary")
			continue
		}
		summary.Accounts[nickname] = report
		summary.TotalBalance += report.CurrentBalance
		summary.TotalPnL24h += report.Change24h
	}

	if base := summary.TotalBalance - summary.TotalPnL24h; base != 0 {
		summary.TotalPnL24hPct = summary.TotalPnL24h / base * 100
	}

	return summary, nil
}

// SaveDaily writes a dated per-account report file.
func (m *Manager) SaveDaily(report *models.DailyReport) error {
	name := fmt.Sprintf("%s_%s.json", report.Account, report.GeneratedAt.Format(time.DateOnly))
	return m.store.SaveReport(name, report)
}

// SaveSummary writes a dated summary report file.
func (m *Manager) SaveSummary(summary *models.SummaryReport) error {
	name := fmt.Sprintf("summary_%s.json", summary.GeneratedAt.Format(time.DateOnly))
	return m.store.SaveReport(name, summary)
}
