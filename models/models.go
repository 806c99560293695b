package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account roles
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
)

// Account types
const (
	AccountLive = "live"
	AccountDemo = "demo"
)

// Order sides
const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

// OppositeSide returns the closing side for a position side.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Account holds the configuration for a single exchange account.
// Credentials are stored encrypted when an encryption key is configured.
type Account struct {
	Nickname       string    `json:"nickname"`
	APIKey         string    `json:"api_key"`
	APISecret      string    `json:"api_secret"`
	URL            string    `json:"url"`
	AccountType    string    `json:"account_type"` // live or demo
	Role           string    `json:"role"`         // master or slave
	TelegramID     int64     `json:"telegram_id,omitempty"`
	CopyMultiplier float64   `json:"copy_multiplier"`
	SymbolsToCopy  []string  `json:"symbols_to_copy,omitempty"`
	SLLossTiersUSD []float64 `json:"sl_loss_tiers_usd,omitempty"`

	// Daily tracking, reset at UTC midnight.
	MaxBalanceToday       *float64  `json:"max_balance_today,omitempty"`
	MinBalanceToday       *float64  `json:"min_balance_today,omitempty"`
	DayStartBalance       *float64  `json:"day_start_balance,omitempty"`
	PnLToday              float64   `json:"pnl_today"`
	DrawdownAlertedLevels []float64 `json:"drawdown_alerted_levels,omitempty"`
	LastTradeID           string    `json:"last_trade_id,omitempty"`
	Enabled               bool      `json:"enabled"`
}

// UpdatePnLToday records the first balance seen today and the running
// intraday PnL against it.
func (a *Account) UpdatePnLToday(balance float64) {
	if a.DayStartBalance == nil {
		start := balance
		a.DayStartBalance = &start
	}
	a.PnLToday = balance - *a.DayStartBalance
}

// IsMaster reports whether the account is a copy source.
func (a *Account) IsMaster() bool { return a.Role == RoleMaster }

// IsSlave reports whether the account mirrors a master.
func (a *Account) IsSlave() bool { return a.Role == RoleSlave }

// Position is an open position on the exchange.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"avgPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealisedPnl"`
	PositionIdx   int             `json:"positionIdx"`
	Leverage      string          `json:"leverage"`
}

// IsOpen reports whether the position has any size.
func (p *Position) IsOpen() bool { return p.Size.IsPositive() }

// Order is an order on the exchange.
type Order struct {
	OrderID     string          `json:"orderId"`
	OrderLinkID string          `json:"orderLinkId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	OrderType   string          `json:"orderType"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	OrderStatus string          `json:"orderStatus"`
	TimeInForce string          `json:"timeInForce"`
	CreatedTime string          `json:"createdTime"`
}

// IsActive reports whether the order is still working on the book.
func (o *Order) IsActive() bool {
	switch o.OrderStatus {
	case "New", "PartiallyFilled", "Untriggered":
		return true
	}
	return false
}

// CoinBalance is the per-coin balance inside a wallet.
type CoinBalance struct {
	Coin          string          `json:"coin"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	Equity        decimal.Decimal `json:"equity"`
}

// WalletBalance is a unified account wallet snapshot.
type WalletBalance struct {
	AccountType string        `json:"accountType"`
	Coins       []CoinBalance `json:"coin"`
}

// CoinAmount returns the wallet balance held in the given coin.
func (w *WalletBalance) CoinAmount(coin string) decimal.Decimal {
	for _, c := range w.Coins {
		if c.Coin == coin {
			return c.WalletBalance
		}
	}
	return decimal.Zero
}

// Instrument describes tradable contract metadata needed for sizing.
type Instrument struct {
	Symbol      string          `json:"symbol"`
	QtyStep     decimal.Decimal `json:"qtyStep"`
	MinOrderQty decimal.Decimal `json:"minOrderQty"`
}

// SyncState is the persisted state of a master→slave pair.
type SyncState struct {
	Master          string    `json:"master"`
	Slave           string    `json:"slave"`
	LastSync        time.Time `json:"last_sync"`
	CopyMultiplier  float64   `json:"copy_multiplier"`
	SymbolsToCopy   []string  `json:"symbols_to_copy,omitempty"`
	SyncedPositions int       `json:"synced_positions"`
	CancelledOrders int       `json:"cancelled_orders"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Discrepancy kinds detected when comparing master and slave books.
const (
	DiscrepancySizeMismatch   = "size_mismatch"
	DiscrepancyMissingOnSlave = "missing_on_slave"
	DiscrepancyExtraOnSlave   = "extra_on_slave"
)

// Discrepancy is a single divergence between master and slave positions.
type Discrepancy struct {
	Type        string          `json:"type"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	ExpectedQty decimal.Decimal `json:"expected_qty"`
	ActualQty   decimal.Decimal `json:"actual_qty"`
}

// BalanceEntry is a single balance snapshot in an account's history.
type BalanceEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Balance   float64   `json:"balance"`
	Equity    float64   `json:"equity,omitempty"`
}

// DailyReport is the per-account report produced by the reporting manager.
type DailyReport struct {
	Account     string    `json:"account"`
	GeneratedAt time.Time `json:"generated_at"`

	CurrentBalance float64 `json:"current_balance"`
	InitialBalance float64 `json:"initial_balance"`
	Change24h      float64 `json:"change_24h"`
	Change24hPct   float64 `json:"change_24h_pct"`

	TotalReturnPct    float64 `json:"total_return_pct"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	MaxDrawdownAmount float64 `json:"max_drawdown_amount"`
	SharpeRatio       float64 `json:"sharpe_ratio"`

	TotalDays      int     `json:"total_days"`
	ProfitableDays int     `json:"profitable_days"`
	AvgDailyPnL    float64 `json:"avg_daily_pnl"`
}

// SummaryReport aggregates daily reports across accounts.
type SummaryReport struct {
	GeneratedAt    time.Time               `json:"generated_at"`
	TotalAccounts  int                     `json:"total_accounts"`
	ActiveAccounts int                     `json:"active_accounts"`
	TotalBalance   float64                 `json:"total_balance"`
	TotalPnL24h    float64                 `json:"total_pnl_24h"`
	TotalPnL24hPct float64                 `json:"total_pnl_24h_pct"`
	Accounts       map[string]*DailyReport `json:"accounts"`
}
